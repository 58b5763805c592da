// Package priority scores waitlist entries. The formula folds a user's
// join-time factors against the per-deployment seed coefficients, which keeps
// scores deterministic within a deployment but hard to reverse-engineer from
// the outside.
package priority

import (
	"math"

	"github.com/Developer-Emre/dropspotapp-sub000/pkg/seed"
)

const (
	baseScore = 1000.0
	minScore  = 100.0
	maxScore  = 2000.0

	historyWeight = 0.1
)

// Factors are the join-time inputs to scoring. All values are non-negative.
type Factors struct {
	SignupLatencyMS float64 // time between drop start and the user's join
	AccountAgeDays  float64 // fractional days since account creation
	RapidActions    int     // recent suspicious-action count
	UserHistory     int     // prior successful participations
}

// Score maps factors plus seed coefficients to a priority score, clamped to
// [100, 2000] and rounded to one decimal place. Pure: same factors and seed
// always yield the same score.
func Score(f Factors, s seed.Seed) float64 {
	score := baseScore +
		math.Mod(f.SignupLatencyMS, float64(s.CoeffA)) +
		math.Mod(f.AccountAgeDays, float64(s.CoeffB)) -
		float64(f.RapidActions%s.CoeffC) +
		float64(f.UserHistory)*historyWeight

	if score < minScore {
		score = minScore
	}
	if score > maxScore {
		score = maxScore
	}
	return math.Round(score*10) / 10
}

// GamingReport lists every heuristic a set of factors tripped. Advisory only:
// it annotates scoring, it never blocks it.
type GamingReport struct {
	IsGaming bool
	Reasons  []string
}

const (
	rapidActionLimit = 10
	minSignupLatency = 1000.0 // ms
	minAccountAge    = 0.1    // days, ~2.4h
)

// DetectGamingAttempt flags factor combinations that look automated. All
// matching reasons are returned, not just the first.
func DetectGamingAttempt(f Factors) GamingReport {
	var reasons []string
	if f.RapidActions > rapidActionLimit {
		reasons = append(reasons, "too many rapid actions")
	}
	if f.SignupLatencyMS < minSignupLatency {
		reasons = append(reasons, "signup latency suspiciously low")
	}
	if f.AccountAgeDays < minAccountAge {
		reasons = append(reasons, "account too new")
	}
	return GamingReport{
		IsGaming: len(reasons) > 0,
		Reasons:  reasons,
	}
}
