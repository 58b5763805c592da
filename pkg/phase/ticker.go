package phase

import (
	"context"
	"time"
)

// Ticker is the one stateful piece around the pure calculator: it re-runs
// Calculate on a fixed cadence and hands each Status to a callback. It stops
// when the ctx is cancelled or the drop reaches Ended, whichever comes first.
type Ticker struct {
	interval time.Duration
	now      func() time.Time
}

func NewTicker(interval time.Duration) *Ticker {
	if interval <= 0 {
		interval = time.Second
	}
	return &Ticker{interval: interval, now: time.Now}
}

// Run evaluates once immediately, then on every tick. It blocks until the ctx
// is cancelled or the schedule ends; callers own starting it in a goroutine
// and cancelling it on teardown so no stale callbacks fire after unmount.
func (t *Ticker) Run(ctx context.Context, s Schedule, fn func(Status)) {
	tick := time.NewTicker(t.interval)
	defer tick.Stop()

	st := Calculate(s, t.now())
	fn(st)
	if st.Current == Ended {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			st = Calculate(s, t.now())
			fn(st)
			if st.Current == Ended {
				return
			}
		}
	}
}
