package dropclient

import (
	"context"
	"sync"
	"time"
)

// Urgency is a presentation tier for a running countdown. It styles the UI;
// it never gates actions.
type Urgency string

const (
	UrgencyNormal   Urgency = "normal"
	UrgencyWarning  Urgency = "warning"  // <= 6h remaining
	UrgencyCritical Urgency = "critical" // <= 2h remaining
)

const (
	criticalThreshold = 2 * time.Hour
	warningThreshold  = 6 * time.Hour
)

// Remaining is the h/m/s breakdown of time left on a pending claim.
type Remaining struct {
	Hours   int
	Minutes int
	Seconds int
}

// Countdown tracks one pending claim toward its deadline and signals expiry
// exactly once. The remaining time is recomputed from the absolute ExpiresAt
// on every tick, never from elapsed-tick counting, so a process that slept
// through ticks still expires on schedule. The engine is inert for claims
// that are not pending.
//
// The local expiry signal is advisory: the server's deadline check is
// authoritative, and stores reconcile any disagreement from server responses.
type Countdown struct {
	claim    Claim
	interval time.Duration
	now      func() time.Time // injected for testability
	onExpire func(Claim)

	mu      sync.Mutex
	expired bool
}

// NewCountdown creates a 1-second-cadence countdown for the claim. onExpire
// may be nil.
func NewCountdown(claim Claim, onExpire func(Claim)) *Countdown {
	return &Countdown{
		claim:    claim,
		interval: time.Second,
		now:      time.Now,
		onExpire: onExpire,
	}
}

// Remaining reports the time left, the urgency tier, and whether the claim
// has expired (locally or by status).
func (c *Countdown) Remaining() (Remaining, Urgency, bool) {
	c.mu.Lock()
	expired := c.expired
	c.mu.Unlock()

	if c.claim.Status != ClaimPending || expired {
		return Remaining{}, UrgencyNormal, c.claim.Status == ClaimExpired || expired
	}

	left := c.claim.ExpiresAt.Sub(c.now())
	if left <= 0 {
		return Remaining{}, UrgencyCritical, true
	}

	ms := left.Milliseconds()
	rem := Remaining{
		Hours:   int(ms / (60 * 60 * 1000)),
		Minutes: int(ms % (60 * 60 * 1000) / (60 * 1000)),
		Seconds: int(ms % (60 * 1000) / 1000),
	}

	tier := UrgencyNormal
	switch {
	case left <= criticalThreshold:
		tier = UrgencyCritical
	case left <= warningThreshold:
		tier = UrgencyWarning
	}
	return rem, tier, false
}

// evaluate runs one deadline check. It returns true when ticking should stop:
// the claim is non-pending, or it just expired (callback fired exactly once).
func (c *Countdown) evaluate() bool {
	if c.claim.Status != ClaimPending {
		return true
	}
	if c.claim.ExpiresAt.After(c.now()) {
		return false
	}

	c.mu.Lock()
	already := c.expired
	c.expired = true
	c.mu.Unlock()

	if !already && c.onExpire != nil {
		c.onExpire(c.claim)
	}
	return true
}

// Run ticks until the claim expires or the ctx is cancelled. Callers own
// cancelling it on teardown; a cancelled countdown never fires its callback
// afterwards.
func (c *Countdown) Run(ctx context.Context) {
	if c.evaluate() {
		return
	}

	t := time.NewTicker(c.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if c.evaluate() {
				return
			}
		}
	}
}
