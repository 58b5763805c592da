package priority

import (
	"math"
	"testing"

	"github.com/Developer-Emre/dropspotapp-sub000/pkg/seed"
)

func TestScoreWorkedExample(t *testing.T) {
	s := seed.Seed{Value: "ffffffffffff", CoeffA: 9, CoeffB: 15, CoeffC: 4}
	f := Factors{
		SignupLatencyMS: 5000,
		AccountAgeDays:  10,
		RapidActions:    2,
		UserHistory:     3,
	}

	// 1000 + mod(5000,9)=5 + mod(10,15)=10 - 2%4=2 + 3*0.1 = 1013.3
	if got := Score(f, s); got != 1013.3 {
		t.Fatalf("Score = %v, want 1013.3", got)
	}
}

func TestScoreDeterministic(t *testing.T) {
	s := seed.Generate("proj|100|200")
	f := Factors{SignupLatencyMS: 1234.5, AccountAgeDays: 3.25, RapidActions: 4, UserHistory: 7}

	first := Score(f, s)
	for i := 0; i < 10; i++ {
		if got := Score(f, s); got != first {
			t.Fatalf("Score not deterministic: %v vs %v", got, first)
		}
	}
}

func TestScoreBoundsAndPrecision(t *testing.T) {
	seeds := []seed.Seed{
		{CoeffA: 7, CoeffB: 13, CoeffC: 3},
		{CoeffA: 11, CoeffB: 19, CoeffC: 5},
		seed.Generate("bounds-sweep"),
	}
	factors := []Factors{
		{},
		{SignupLatencyMS: 0.5, AccountAgeDays: 0.001},
		{SignupLatencyMS: 1e9, AccountAgeDays: 10000, RapidActions: 1000, UserHistory: 10000},
		{SignupLatencyMS: 86400000, AccountAgeDays: 365.25, RapidActions: 11, UserHistory: 42},
	}

	for _, s := range seeds {
		for _, f := range factors {
			got := Score(f, s)
			if got < 100 || got > 2000 {
				t.Fatalf("Score(%+v, %+v) = %v out of [100,2000]", f, s, got)
			}
			if math.Abs(got*10-math.Round(got*10)) > 1e-9 {
				t.Fatalf("Score(%+v, %+v) = %v not rounded to one decimal", f, s, got)
			}
		}
	}
}

func TestDetectGamingAttemptAllReasons(t *testing.T) {
	f := Factors{SignupLatencyMS: 500, AccountAgeDays: 0.01, RapidActions: 20}
	report := DetectGamingAttempt(f)
	if !report.IsGaming {
		t.Fatalf("expected IsGaming=true: %+v", report)
	}
	if len(report.Reasons) != 3 {
		t.Fatalf("expected all 3 reasons, got %v", report.Reasons)
	}
}

func TestDetectGamingAttemptClean(t *testing.T) {
	f := Factors{SignupLatencyMS: 5000, AccountAgeDays: 30, RapidActions: 1, UserHistory: 2}
	report := DetectGamingAttempt(f)
	if report.IsGaming || len(report.Reasons) != 0 {
		t.Fatalf("expected clean report, got %+v", report)
	}
}

func TestDetectGamingAttemptThresholdsExclusive(t *testing.T) {
	// Exactly-at-threshold values do not trip the heuristics.
	f := Factors{SignupLatencyMS: 1000, AccountAgeDays: 0.1, RapidActions: 10}
	report := DetectGamingAttempt(f)
	if report.IsGaming {
		t.Fatalf("threshold values must not flag: %+v", report)
	}
}
