// Package phase derives a drop's lifecycle phase from its timestamps. The
// calculator is pure and cheap; callers re-invoke it every second from a
// Ticker (or their own timer) to keep countdowns live.
package phase

import (
	"fmt"
	"time"
)

// Phase is one of the four lifecycle states of a drop.
type Phase string

const (
	Upcoming Phase = "upcoming"
	Waitlist Phase = "waitlist"
	Claiming Phase = "claiming"
	Ended    Phase = "ended"
)

// Schedule holds a drop's four ordered timestamps. The calculator assumes
// Start <= ClaimStart <= ClaimEnd <= End but does not enforce it; ordering is
// validated where drops are created.
type Schedule struct {
	Start      time.Time // waitlist opens
	ClaimStart time.Time // claiming opens
	ClaimEnd   time.Time // claiming closes
	End        time.Time // drop fully closed, conventionally == ClaimEnd
}

// Status is the result of a phase calculation. TimeRemaining and Next are
// zero-valued when Current is Ended.
type Status struct {
	Current       Phase
	TimeRemaining time.Duration
	Next          Phase
}

// Calculate maps a schedule and an instant to exactly one phase. Boundaries
// are half-open (>= start, < end), so there is no gap or overlap: at exactly
// Start the phase is Waitlist, at exactly ClaimStart it is Claiming, at
// exactly ClaimEnd it is Ended.
func Calculate(s Schedule, now time.Time) Status {
	switch {
	case now.Before(s.Start):
		return Status{Current: Upcoming, TimeRemaining: s.Start.Sub(now), Next: Waitlist}
	case now.Before(s.ClaimStart):
		return Status{Current: Waitlist, TimeRemaining: s.ClaimStart.Sub(now), Next: Claiming}
	case now.Before(s.ClaimEnd):
		return Status{Current: Claiming, TimeRemaining: s.ClaimEnd.Sub(now), Next: Ended}
	default:
		return Status{Current: Ended}
	}
}

// CanJoinWaitlist reports whether the join action should be enabled. This
// predicate and CanClaim are the sole gates for the corresponding actions.
func CanJoinWaitlist(s Schedule, availableStock int64, now time.Time) bool {
	return Calculate(s, now).Current == Waitlist && availableStock > 0
}

// CanClaim reports whether the claim action should be enabled.
func CanClaim(s Schedule, availableStock int64, now time.Time) bool {
	return Calculate(s, now).Current == Claiming && availableStock > 0
}

// FormatRemaining renders a duration as its two largest non-zero units,
// e.g. "2d 5h", "3h 12m", "45s". Non-positive durations render as "0s".
func FormatRemaining(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}

	days := int64(d / (24 * time.Hour))
	hours := int64(d/time.Hour) % 24
	mins := int64(d/time.Minute) % 60
	secs := int64(d/time.Second) % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh", days, hours)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, mins)
	case mins > 0:
		return fmt.Sprintf("%dm %ds", mins, secs)
	default:
		return fmt.Sprintf("%ds", secs)
	}
}
