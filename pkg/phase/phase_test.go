package phase

import (
	"context"
	"testing"
	"time"
)

func testSchedule() Schedule {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return Schedule{
		Start:      start,
		ClaimStart: start.Add(24 * time.Hour),
		ClaimEnd:   start.Add(48 * time.Hour),
		End:        start.Add(48 * time.Hour),
	}
}

func TestCalculateBoundaries(t *testing.T) {
	s := testSchedule()

	cases := []struct {
		name string
		now  time.Time
		want Phase
	}{
		{"just before start", s.Start.Add(-time.Nanosecond), Upcoming},
		{"exactly at start", s.Start, Waitlist},
		{"just before claim start", s.ClaimStart.Add(-time.Nanosecond), Waitlist},
		{"exactly at claim start", s.ClaimStart, Claiming},
		{"just before claim end", s.ClaimEnd.Add(-time.Nanosecond), Claiming},
		{"exactly at claim end", s.ClaimEnd, Ended},
		{"long after end", s.End.Add(365 * 24 * time.Hour), Ended},
	}

	for _, tc := range cases {
		if got := Calculate(s, tc.now).Current; got != tc.want {
			t.Errorf("%s: phase = %s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestCalculateRemainingAndNext(t *testing.T) {
	s := testSchedule()

	st := Calculate(s, s.Start.Add(12*time.Hour))
	if st.Current != Waitlist || st.Next != Claiming {
		t.Fatalf("mid-waitlist: got current=%s next=%s", st.Current, st.Next)
	}
	if st.TimeRemaining != 12*time.Hour {
		t.Fatalf("mid-waitlist: remaining = %v, want 12h", st.TimeRemaining)
	}

	st = Calculate(s, s.Start.Add(-time.Hour))
	if st.Current != Upcoming || st.Next != Waitlist || st.TimeRemaining != time.Hour {
		t.Fatalf("upcoming: got %+v", st)
	}

	st = Calculate(s, s.ClaimEnd)
	if st.Current != Ended || st.Next != "" || st.TimeRemaining != 0 {
		t.Fatalf("ended status must be zero-valued beyond Current: %+v", st)
	}
}

func TestCalculateMonotonicSweep(t *testing.T) {
	s := testSchedule()
	order := map[Phase]int{Upcoming: 0, Waitlist: 1, Claiming: 2, Ended: 3}

	prev := -1
	for at := s.Start.Add(-time.Hour); at.Before(s.End.Add(time.Hour)); at = at.Add(13 * time.Minute) {
		cur := order[Calculate(s, at).Current]
		if cur < prev {
			t.Fatalf("phase went backwards at %v", at)
		}
		prev = cur
	}
}

func TestActionPredicates(t *testing.T) {
	s := testSchedule()
	midWaitlist := s.Start.Add(time.Hour)
	midClaiming := s.ClaimStart.Add(time.Hour)

	if !CanJoinWaitlist(s, 5, midWaitlist) {
		t.Fatal("join should be enabled in waitlist phase with stock")
	}
	if CanJoinWaitlist(s, 0, midWaitlist) {
		t.Fatal("join must be disabled with zero stock")
	}
	if CanJoinWaitlist(s, 5, midClaiming) {
		t.Fatal("join must be disabled outside waitlist phase")
	}

	if !CanClaim(s, 1, midClaiming) {
		t.Fatal("claim should be enabled in claiming phase with stock")
	}
	if CanClaim(s, 0, midClaiming) {
		t.Fatal("claim must be disabled with zero stock")
	}
	if CanClaim(s, 1, midWaitlist) {
		t.Fatal("claim must be disabled outside claiming phase")
	}
}

func TestFormatRemaining(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want string
	}{
		{0, "0s"},
		{-5 * time.Second, "0s"},
		{45 * time.Second, "45s"},
		{time.Minute, "1m 0s"},
		{3*time.Minute + 5*time.Second, "3m 5s"},
		{3*time.Hour + 12*time.Minute + 59*time.Second, "3h 12m"},
		{2*24*time.Hour + 5*time.Hour, "2d 5h"},
		{26 * time.Hour, "1d 2h"},
	}
	for _, tc := range cases {
		if got := FormatRemaining(tc.d); got != tc.want {
			t.Errorf("FormatRemaining(%v) = %q, want %q", tc.d, got, tc.want)
		}
	}
}

func TestTickerStopsAtEnded(t *testing.T) {
	s := testSchedule()

	// Fake clock: advance 12 hours per evaluation so the drop runs its whole
	// lifecycle in a handful of ticks.
	at := s.Start.Add(-12 * time.Hour)
	tk := &Ticker{
		interval: time.Millisecond,
		now: func() time.Time {
			at = at.Add(12 * time.Hour)
			return at
		},
	}

	var seen []Phase
	done := make(chan struct{})
	go func() {
		defer close(done)
		tk.Run(context.Background(), s, func(st Status) {
			seen = append(seen, st.Current)
		})
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Ticker.Run did not stop after the schedule ended")
	}

	if len(seen) == 0 || seen[len(seen)-1] != Ended {
		t.Fatalf("expected final callback with Ended, got %v", seen)
	}
}

func TestTickerStopsOnCancel(t *testing.T) {
	s := testSchedule()
	tk := &Ticker{
		interval: 10 * time.Millisecond,
		now:      func() time.Time { return s.Start }, // forever in waitlist
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		tk.Run(ctx, s, func(Status) {})
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Ticker.Run did not stop on ctx cancel")
	}
}
