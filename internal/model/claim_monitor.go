package model

import (
	"context"
	"database/sql"
	"time"

	"github.com/Developer-Emre/dropspotapp-sub000/internal/obs"
)

type ClaimMonitor struct {
	db       *sql.DB
	logger   *obs.Logger
	metrics  *obs.Metrics
	interval time.Duration
}

// NewClaimMonitor creates a periodic sweeper that:
// 1) counts unexpired pending claims -> sets gauge
// 2) lapses pending claims past their deadline and returns their stock
//    -> increments expired_total by rows changed
// The sweep compares absolute deadlines against wall clock, so a process that
// slept through several intervals still lapses everything overdue on the next
// pass.
func NewClaimMonitor(db *sql.DB, logger *obs.Logger, metrics *obs.Metrics, interval time.Duration) *ClaimMonitor {
	if interval <= 0 {
		interval = time.Second
	}
	return &ClaimMonitor{
		db:       db,
		logger:   logger,
		metrics:  metrics,
		interval: interval,
	}
}

func (m *ClaimMonitor) Run(ctx context.Context) {
	t := time.NewTicker(m.interval)
	defer t.Stop()

	// Run once immediately
	m.sweepOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.sweepOnce(ctx)
		}
	}
}

func (m *ClaimMonitor) sweepOnce(ctx context.Context) {
	start := time.Now()
	nowNs := start.UnixNano()

	var pendingCount int64
	err := m.db.QueryRowContext(ctx, `
SELECT COUNT(*)
FROM claims
WHERE status = 'pending'
  AND expires_at_ns > ?;
`, nowNs).Scan(&pendingCount)

	if err == nil && m.metrics != nil && m.metrics.ClaimsPending != nil {
		m.metrics.ClaimsPending.Set(float64(pendingCount))
	}

	// Return the stock of overdue claims before flipping them, while the
	// 'pending and overdue' predicate still selects them. A drop may have
	// several overdue claims, hence the per-drop count.
	_, err2 := m.db.ExecContext(ctx, `
UPDATE drops
SET claimed_stock = MAX(0, claimed_stock - (
  SELECT COUNT(*) FROM claims
  WHERE claims.drop_id = drops.drop_id
    AND status = 'pending' AND expires_at_ns <= ?
))
WHERE drop_id IN (
  SELECT drop_id FROM claims
  WHERE status = 'pending' AND expires_at_ns <= ?
);
`, nowNs, nowNs)

	res, err3 := m.db.ExecContext(ctx, `
UPDATE claims
SET status = 'expired'
WHERE status = 'pending'
  AND expires_at_ns <= ?;
`, nowNs)

	var lapsed int64
	if err3 == nil && res != nil {
		lapsed, _ = res.RowsAffected()
		if lapsed > 0 && m.metrics != nil && m.metrics.ClaimsExpiredTotal != nil {
			m.metrics.ClaimsExpiredTotal.Add(float64(lapsed))
		}
	}

	if m.logger != nil {
		fields := map[string]interface{}{
			"op":         "claim_sweep",
			"pending":    pendingCount,
			"lapsed":     lapsed,
			"latency_ms": time.Since(start).Milliseconds(),
		}
		if err != nil {
			fields["count_err"] = err.Error()
		}
		if err2 != nil {
			fields["stock_err"] = err2.Error()
		}
		if err3 != nil {
			fields["lapse_err"] = err3.Error()
		}
		if lapsed > 0 || err != nil || err2 != nil || err3 != nil {
			m.logger.Info(fields)
		}
	}
}
