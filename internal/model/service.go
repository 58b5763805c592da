package model

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/Developer-Emre/dropspotapp-sub000/internal/obs"
	"github.com/Developer-Emre/dropspotapp-sub000/pkg/phase"
	"github.com/Developer-Emre/dropspotapp-sub000/pkg/priority"
	"github.com/Developer-Emre/dropspotapp-sub000/pkg/seed"
)

// rapidActionWindow is the sliding window used to count a user's recent
// mutations for the anti-gaming heuristic.
const rapidActionWindow = 60 * time.Second

type Service struct {
	db       *sql.DB
	logger   *obs.Logger
	metrics  *obs.Metrics
	seeds    *seed.Generator
	claimTTL time.Duration
}

func NewService(db *sql.DB, logger *obs.Logger, metrics *obs.Metrics, seeds *seed.Generator, claimTTL time.Duration) *Service {
	if claimTTL <= 0 {
		claimTTL = 24 * time.Hour
	}
	return &Service{
		db:       db,
		logger:   logger,
		metrics:  metrics,
		seeds:    seeds,
		claimTTL: claimTTL,
	}
}

func (s *Service) observeLatency(op string, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.OpLatencyMS.WithLabelValues(op).Observe(float64(time.Since(start).Milliseconds()))
}

func (s *Service) incResult(op, result string) {
	if s.metrics == nil {
		return
	}
	switch op {
	case "join":
		s.metrics.JoinTotal.WithLabelValues(result).Inc()
	case "leave":
		s.metrics.LeaveTotal.WithLabelValues(result).Inc()
	case "claim":
		s.metrics.ClaimTotal.WithLabelValues(result).Inc()
	case "complete":
		s.metrics.CompleteTotal.WithLabelValues(result).Inc()
	}
}

func (s *Service) incBusy(op string) {
	if s.metrics != nil {
		s.metrics.DBBusyTotal.WithLabelValues(op).Inc()
	}
}

func (s *Service) now(reqNow time.Time) time.Time {
	if !reqNow.IsZero() {
		return reqNow
	}
	return time.Now()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	if se, ok := err.(sqlite3.Error); ok {
		return se.Code == sqlite3.ErrBusy ||
			se.Code == sqlite3.ErrLocked
	}
	return false
}

// CreateDrop validates and persists a new drop. The four timestamps must be
// non-decreasing; this is the only place the ordering invariant is enforced,
// so the phase calculator never has to see a misordered drop.
func (s *Service) CreateDrop(ctx context.Context, req CreateDropRequest) (CreateDropResult, error) {
	if req.Title == "" {
		return CreateDropResult{}, fmt.Errorf("title required")
	}
	if req.TotalStock <= 0 {
		return CreateDropResult{}, fmt.Errorf("total_stock must be > 0")
	}
	if req.Start.IsZero() || req.ClaimStart.IsZero() || req.ClaimEnd.IsZero() {
		return CreateDropResult{}, fmt.Errorf("start, claim_start, claim_end required")
	}

	end := req.End
	if end.IsZero() {
		end = req.ClaimEnd
	}
	if req.ClaimStart.Before(req.Start) || req.ClaimEnd.Before(req.ClaimStart) || end.Before(req.ClaimEnd) {
		return CreateDropResult{Created: false, Reason: "timestamps must be non-decreasing"}, nil
	}

	now := s.now(req.Now)
	dropID := req.DropID
	if dropID == "" {
		dropID = uuid.NewString()
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO drops(drop_id, title, description, total_stock, claimed_stock, start_ns, claim_start_ns, claim_end_ns, end_ns, created_at_ns)
VALUES(?, ?, ?, ?, 0, ?, ?, ?, ?, ?);
`, dropID, req.Title, req.Description, req.TotalStock,
		req.Start.UnixNano(), req.ClaimStart.UnixNano(), req.ClaimEnd.UnixNano(), end.UnixNano(), now.UnixNano())
	if err != nil {
		if isUniqueViolation(err) {
			return CreateDropResult{Created: false, Reason: "drop already exists"}, nil
		}
		return CreateDropResult{}, err
	}

	d := Drop{
		DropID:      dropID,
		Title:       req.Title,
		Description: req.Description,
		TotalStock:  req.TotalStock,
		Start:       req.Start,
		ClaimStart:  req.ClaimStart,
		ClaimEnd:    req.ClaimEnd,
		End:         end,
		CreatedAt:   now,
	}
	if s.logger != nil {
		s.logger.Info(map[string]interface{}{
			"op":    "create_drop",
			"drop":  dropID,
			"stock": req.TotalStock,
		})
	}
	return CreateDropResult{Created: true, Drop: d}, nil
}

func (s *Service) GetDrop(ctx context.Context, dropID string) (Drop, bool, error) {
	if dropID == "" {
		return Drop{}, false, fmt.Errorf("drop_id required")
	}
	d, err := scanDrop(s.db.QueryRowContext(ctx, dropSelect+` WHERE drop_id = ?;`, dropID))
	if errors.Is(err, sql.ErrNoRows) {
		return Drop{}, false, nil
	}
	if err != nil {
		return Drop{}, false, err
	}
	return d, true, nil
}

func (s *Service) ListDrops(ctx context.Context) ([]Drop, error) {
	rows, err := s.db.QueryContext(ctx, dropSelect+` ORDER BY start_ns ASC;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Drop
	for rows.Next() {
		d, err := scanDrop(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// JoinWaitlist appends the user to a drop's waitlist, scoring the entry with
// the process seed. Domain rejections come back as Joined=false plus a
// human-readable Reason; the error return is reserved for infrastructure
// failures.
func (s *Service) JoinWaitlist(ctx context.Context, req JoinRequest) (JoinResult, error) {
	if req.DropID == "" || req.UserID == "" {
		return JoinResult{}, fmt.Errorf("drop_id and user_id required")
	}
	start := time.Now()

	var (
		logJoined bool
		logScore  float64
		logPos    int
		logReason string
		logErrMsg string
	)
	defer func() {
		if s.logger == nil {
			return
		}
		fields := map[string]interface{}{
			"op":         "join",
			"drop":       req.DropID,
			"user":       req.UserID,
			"joined":     logJoined,
			"position":   logPos,
			"score":      logScore,
			"reason":     logReason,
			"latency_ms": time.Since(start).Milliseconds(),
		}
		if logErrMsg != "" {
			fields["error"] = logErrMsg
			s.logger.Error(fields)
		} else {
			s.logger.Info(fields)
		}
	}()

	now := s.now(req.Now)

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		if isSQLiteBusy(err) {
			s.incBusy("join")
			s.incResult("join", "error")
			return JoinResult{Joined: false, Reason: "server busy, retry shortly"}, nil
		}
		logErrMsg = err.Error()
		return JoinResult{}, err
	}
	defer func() { _ = tx.Rollback() }()

	d, err := scanDrop(tx.QueryRowContext(ctx, dropSelect+` WHERE drop_id = ?;`, req.DropID))
	if errors.Is(err, sql.ErrNoRows) {
		logReason = "drop not found"
		s.incResult("join", "rejected")
		return JoinResult{Joined: false, Reason: logReason}, nil
	}
	if err != nil {
		logErrMsg = err.Error()
		return JoinResult{}, err
	}

	if st := phase.Calculate(d.Schedule(), now); st.Current != phase.Waitlist {
		logReason = "drop is not open for waitlist"
		s.incResult("join", "rejected")
		s.observeLatency("join", start)
		return JoinResult{Joined: false, Reason: logReason}, tx.Commit()
	}
	if d.AvailableStock() <= 0 {
		logReason = "drop is sold out"
		s.incResult("join", "rejected")
		s.observeLatency("join", start)
		return JoinResult{Joined: false, Reason: logReason}, tx.Commit()
	}

	var existing int
	if err := tx.QueryRowContext(ctx, `
SELECT COUNT(*) FROM waitlist_entries WHERE drop_id = ? AND user_id = ?;
`, req.DropID, req.UserID).Scan(&existing); err != nil {
		logErrMsg = err.Error()
		return JoinResult{}, err
	}
	if existing > 0 {
		logReason = "already in waitlist"
		s.incResult("join", "rejected")
		s.observeLatency("join", start)
		return JoinResult{Joined: false, Reason: logReason}, tx.Commit()
	}

	factors, err := s.touchUser(ctx, tx, req.UserID, d, now)
	if err != nil {
		logErrMsg = err.Error()
		return JoinResult{}, err
	}

	score := priority.Score(factors, s.seeds.Seed())
	if report := priority.DetectGamingAttempt(factors); report.IsGaming {
		if s.metrics != nil {
			s.metrics.GamingFlagsTotal.Inc()
		}
		if s.logger != nil {
			s.logger.Info(map[string]interface{}{
				"op":      "gaming_flag",
				"drop":    req.DropID,
				"user":    req.UserID,
				"reasons": strings.Join(report.Reasons, "; "),
			})
		}
	}

	var position int
	if err := tx.QueryRowContext(ctx, `
SELECT COUNT(*) + 1 FROM waitlist_entries WHERE drop_id = ?;
`, req.DropID).Scan(&position); err != nil {
		logErrMsg = err.Error()
		return JoinResult{}, err
	}

	entryID := uuid.NewString()
	if _, err := tx.ExecContext(ctx, `
INSERT INTO waitlist_entries(entry_id, drop_id, user_id, position, priority_score, joined_at_ns)
VALUES(?, ?, ?, ?, ?, ?);
`, entryID, req.DropID, req.UserID, position, score, now.UnixNano()); err != nil {
		if isSQLiteBusy(err) {
			s.incBusy("join")
			s.incResult("join", "error")
			return JoinResult{Joined: false, Reason: "server busy, retry shortly"}, nil
		}
		logErrMsg = err.Error()
		return JoinResult{}, err
	}

	if err := tx.Commit(); err != nil {
		if isSQLiteBusy(err) {
			s.incBusy("join")
			s.incResult("join", "error")
			return JoinResult{Joined: false, Reason: "server busy, retry shortly"}, nil
		}
		logErrMsg = err.Error()
		return JoinResult{}, err
	}

	logJoined = true
	logPos = position
	logScore = score
	s.incResult("join", "success")
	s.observeLatency("join", start)

	return JoinResult{
		Joined: true,
		Entry: WaitlistEntry{
			EntryID:       entryID,
			DropID:        req.DropID,
			UserID:        req.UserID,
			Position:      position,
			PriorityScore: score,
			JoinedAt:      now,
		},
	}, nil
}

// LeaveWaitlist removes the user's entry and closes the position gap. Leaving
// is refused once the claim window is active.
func (s *Service) LeaveWaitlist(ctx context.Context, req LeaveRequest) (LeaveResult, error) {
	if req.DropID == "" || req.UserID == "" {
		return LeaveResult{}, fmt.Errorf("drop_id and user_id required")
	}
	start := time.Now()
	now := s.now(req.Now)

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		if isSQLiteBusy(err) {
			s.incBusy("leave")
			return LeaveResult{Left: false, Reason: "server busy, retry shortly"}, nil
		}
		return LeaveResult{}, err
	}
	defer func() { _ = tx.Rollback() }()

	d, err := scanDrop(tx.QueryRowContext(ctx, dropSelect+` WHERE drop_id = ?;`, req.DropID))
	if errors.Is(err, sql.ErrNoRows) {
		s.incResult("leave", "rejected")
		return LeaveResult{Left: false, Reason: "drop not found"}, nil
	}
	if err != nil {
		return LeaveResult{}, err
	}

	if !now.Before(d.ClaimStart) {
		s.incResult("leave", "rejected")
		s.observeLatency("leave", start)
		return LeaveResult{Left: false, Reason: "claim window already active"}, tx.Commit()
	}

	var pos int
	err = tx.QueryRowContext(ctx, `
SELECT position FROM waitlist_entries WHERE drop_id = ? AND user_id = ?;
`, req.DropID, req.UserID).Scan(&pos)
	if errors.Is(err, sql.ErrNoRows) {
		s.incResult("leave", "rejected")
		s.observeLatency("leave", start)
		return LeaveResult{Left: false, Reason: "not in waitlist"}, tx.Commit()
	}
	if err != nil {
		return LeaveResult{}, err
	}

	if _, err := tx.ExecContext(ctx, `
DELETE FROM waitlist_entries WHERE drop_id = ? AND user_id = ?;
`, req.DropID, req.UserID); err != nil {
		return LeaveResult{}, err
	}
	// Close the gap so positions stay a dense 1-based ranking.
	if _, err := tx.ExecContext(ctx, `
UPDATE waitlist_entries SET position = position - 1 WHERE drop_id = ? AND position > ?;
`, req.DropID, pos); err != nil {
		return LeaveResult{}, err
	}

	if err := tx.Commit(); err != nil {
		if isSQLiteBusy(err) {
			s.incBusy("leave")
			return LeaveResult{Left: false, Reason: "server busy, retry shortly"}, nil
		}
		return LeaveResult{}, err
	}

	if s.logger != nil {
		s.logger.Info(map[string]interface{}{
			"op":         "leave",
			"drop":       req.DropID,
			"user":       req.UserID,
			"position":   pos,
			"latency_ms": time.Since(start).Milliseconds(),
		})
	}
	s.incResult("leave", "success")
	s.observeLatency("leave", start)
	return LeaveResult{Left: true}, nil
}

func (s *Service) WaitlistStatus(ctx context.Context, dropID, userID string) (WaitlistStatusResult, error) {
	if dropID == "" || userID == "" {
		return WaitlistStatusResult{}, fmt.Errorf("drop_id and user_id required")
	}

	var (
		e        WaitlistEntry
		joinedNs int64
	)
	err := s.db.QueryRowContext(ctx, `
SELECT entry_id, drop_id, user_id, position, priority_score, joined_at_ns
FROM waitlist_entries WHERE drop_id = ? AND user_id = ?;
`, dropID, userID).Scan(&e.EntryID, &e.DropID, &e.UserID, &e.Position, &e.PriorityScore, &joinedNs)
	if errors.Is(err, sql.ErrNoRows) {
		return WaitlistStatusResult{InWaitlist: false}, nil
	}
	if err != nil {
		return WaitlistStatusResult{}, err
	}
	e.JoinedAt = time.Unix(0, joinedNs)
	return WaitlistStatusResult{InWaitlist: true, Entry: e}, nil
}

// ClaimDrop converts a waitlist entry into a pending claim and reserves one
// unit of stock. The claim must be completed before ExpiresAt or the monitor
// lapses it and returns the unit.
func (s *Service) ClaimDrop(ctx context.Context, req ClaimRequest) (ClaimResult, error) {
	if req.DropID == "" || req.UserID == "" {
		return ClaimResult{}, fmt.Errorf("drop_id and user_id required")
	}
	start := time.Now()

	var (
		logClaimed bool
		logClaimID string
		logReason  string
		logErrMsg  string
	)
	defer func() {
		if s.logger == nil {
			return
		}
		fields := map[string]interface{}{
			"op":         "claim",
			"drop":       req.DropID,
			"user":       req.UserID,
			"claimed":    logClaimed,
			"claim_id":   logClaimID,
			"reason":     logReason,
			"latency_ms": time.Since(start).Milliseconds(),
		}
		if logErrMsg != "" {
			fields["error"] = logErrMsg
			s.logger.Error(fields)
		} else {
			s.logger.Info(fields)
		}
	}()

	now := s.now(req.Now)

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		if isSQLiteBusy(err) {
			s.incBusy("claim")
			s.incResult("claim", "error")
			return ClaimResult{Claimed: false, Reason: "server busy, retry shortly"}, nil
		}
		logErrMsg = err.Error()
		return ClaimResult{}, err
	}
	defer func() { _ = tx.Rollback() }()

	d, err := scanDrop(tx.QueryRowContext(ctx, dropSelect+` WHERE drop_id = ?;`, req.DropID))
	if errors.Is(err, sql.ErrNoRows) {
		logReason = "drop not found"
		s.incResult("claim", "rejected")
		return ClaimResult{Claimed: false, Reason: logReason}, nil
	}
	if err != nil {
		logErrMsg = err.Error()
		return ClaimResult{}, err
	}

	if st := phase.Calculate(d.Schedule(), now); st.Current != phase.Claiming {
		logReason = "drop is not open for claiming"
		s.incResult("claim", "rejected")
		s.observeLatency("claim", start)
		return ClaimResult{Claimed: false, Reason: logReason}, tx.Commit()
	}
	if d.AvailableStock() <= 0 {
		logReason = "drop is sold out"
		s.incResult("claim", "rejected")
		s.observeLatency("claim", start)
		return ClaimResult{Claimed: false, Reason: logReason}, tx.Commit()
	}

	var inWaitlist int
	if err := tx.QueryRowContext(ctx, `
SELECT COUNT(*) FROM waitlist_entries WHERE drop_id = ? AND user_id = ?;
`, req.DropID, req.UserID).Scan(&inWaitlist); err != nil {
		logErrMsg = err.Error()
		return ClaimResult{}, err
	}
	if inWaitlist == 0 {
		logReason = "not eligible: join the waitlist first"
		s.incResult("claim", "rejected")
		s.observeLatency("claim", start)
		return ClaimResult{Claimed: false, Reason: logReason}, tx.Commit()
	}

	var existingClaims int
	if err := tx.QueryRowContext(ctx, `
SELECT COUNT(*) FROM claims WHERE drop_id = ? AND user_id = ?;
`, req.DropID, req.UserID).Scan(&existingClaims); err != nil {
		logErrMsg = err.Error()
		return ClaimResult{}, err
	}
	if existingClaims > 0 {
		logReason = "already claimed"
		s.incResult("claim", "rejected")
		s.observeLatency("claim", start)
		return ClaimResult{Claimed: false, Reason: logReason}, tx.Commit()
	}

	if _, err := tx.ExecContext(ctx, `
UPDATE drops SET claimed_stock = claimed_stock + 1 WHERE drop_id = ?;
`, req.DropID); err != nil {
		if isSQLiteBusy(err) {
			s.incBusy("claim")
			s.incResult("claim", "error")
			return ClaimResult{Claimed: false, Reason: "server busy, retry shortly"}, nil
		}
		logErrMsg = err.Error()
		return ClaimResult{}, err
	}

	claimID := uuid.NewString()
	claimCode := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	expiresAt := now.Add(s.claimTTL)

	if _, err := tx.ExecContext(ctx, `
INSERT INTO claims(claim_id, drop_id, user_id, claim_code, status, created_at_ns, expires_at_ns, completed_at_ns)
VALUES(?, ?, ?, ?, ?, ?, ?, NULL);
`, claimID, req.DropID, req.UserID, claimCode, string(ClaimPending), now.UnixNano(), expiresAt.UnixNano()); err != nil {
		logErrMsg = err.Error()
		return ClaimResult{}, err
	}

	if err := tx.Commit(); err != nil {
		if isSQLiteBusy(err) {
			s.incBusy("claim")
			s.incResult("claim", "error")
			return ClaimResult{Claimed: false, Reason: "server busy, retry shortly"}, nil
		}
		logErrMsg = err.Error()
		return ClaimResult{}, err
	}

	logClaimed = true
	logClaimID = claimID
	s.incResult("claim", "success")
	s.observeLatency("claim", start)

	return ClaimResult{
		Claimed: true,
		Claim: Claim{
			ClaimID:   claimID,
			DropID:    req.DropID,
			UserID:    req.UserID,
			ClaimCode: claimCode,
			Status:    ClaimPending,
			CreatedAt: now,
			ExpiresAt: expiresAt,
		},
	}, nil
}

// CompleteClaim finalizes a pending claim. The deadline check here is the
// authoritative one: a claim past ExpiresAt is lapsed on the spot and its
// stock returned, whatever the client's clock said.
func (s *Service) CompleteClaim(ctx context.Context, req CompleteRequest) (CompleteResult, error) {
	if req.ClaimID == "" || req.UserID == "" {
		return CompleteResult{}, fmt.Errorf("claim_id and user_id required")
	}
	start := time.Now()
	now := s.now(req.Now)

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		if isSQLiteBusy(err) {
			s.incBusy("complete")
			return CompleteResult{Completed: false, Reason: "server busy, retry shortly"}, nil
		}
		return CompleteResult{}, err
	}
	defer func() { _ = tx.Rollback() }()

	c, err := scanClaim(tx.QueryRowContext(ctx, claimSelect+` WHERE claim_id = ? AND user_id = ?;`, req.ClaimID, req.UserID))
	if errors.Is(err, sql.ErrNoRows) {
		s.incResult("complete", "rejected")
		return CompleteResult{Completed: false, Reason: "claim not found"}, nil
	}
	if err != nil {
		return CompleteResult{}, err
	}

	switch c.Status {
	case ClaimCompleted:
		s.incResult("complete", "rejected")
		return CompleteResult{Completed: false, Claim: c, Reason: "claim already completed"}, tx.Commit()
	case ClaimExpired:
		s.incResult("complete", "rejected")
		return CompleteResult{Completed: false, Claim: c, Reason: "claim already expired"}, tx.Commit()
	}

	if !now.Before(c.ExpiresAt) {
		// Lapse it now rather than waiting for the sweeper.
		if _, err := tx.ExecContext(ctx, `
UPDATE claims SET status = ? WHERE claim_id = ?;
`, string(ClaimExpired), c.ClaimID); err != nil {
			return CompleteResult{}, err
		}
		if _, err := tx.ExecContext(ctx, `
UPDATE drops SET claimed_stock = claimed_stock - 1 WHERE drop_id = ? AND claimed_stock > 0;
`, c.DropID); err != nil {
			return CompleteResult{}, err
		}
		if err := tx.Commit(); err != nil {
			return CompleteResult{}, err
		}
		c.Status = ClaimExpired
		s.incResult("complete", "rejected")
		s.observeLatency("complete", start)
		return CompleteResult{Completed: false, Claim: c, Reason: "claim already expired"}, nil
	}

	if _, err := tx.ExecContext(ctx, `
UPDATE claims SET status = ?, completed_at_ns = ? WHERE claim_id = ?;
`, string(ClaimCompleted), now.UnixNano(), c.ClaimID); err != nil {
		return CompleteResult{}, err
	}
	if _, err := tx.ExecContext(ctx, `
UPDATE users SET completed_claims = completed_claims + 1 WHERE user_id = ?;
`, req.UserID); err != nil {
		return CompleteResult{}, err
	}

	if err := tx.Commit(); err != nil {
		if isSQLiteBusy(err) {
			s.incBusy("complete")
			return CompleteResult{Completed: false, Reason: "server busy, retry shortly"}, nil
		}
		return CompleteResult{}, err
	}

	c.Status = ClaimCompleted
	c.CompletedAt = now

	if s.logger != nil {
		s.logger.Info(map[string]interface{}{
			"op":         "complete",
			"claim_id":   c.ClaimID,
			"drop":       c.DropID,
			"user":       c.UserID,
			"latency_ms": time.Since(start).Milliseconds(),
		})
	}
	s.incResult("complete", "success")
	s.observeLatency("complete", start)
	return CompleteResult{Completed: true, Claim: c}, nil
}

// ClaimStatus reports the user's claim for a drop, if any. Read-only: lapsing
// is left to the monitor and to CompleteClaim.
func (s *Service) ClaimStatus(ctx context.Context, dropID, userID string) (ClaimStatusResult, error) {
	if dropID == "" || userID == "" {
		return ClaimStatusResult{}, fmt.Errorf("drop_id and user_id required")
	}
	c, err := scanClaim(s.db.QueryRowContext(ctx, claimSelect+` WHERE drop_id = ? AND user_id = ?;`, dropID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return ClaimStatusResult{Found: false}, nil
	}
	if err != nil {
		return ClaimStatusResult{}, err
	}
	return ClaimStatusResult{Found: true, Claim: c}, nil
}

// touchUser upserts the user's activity row and derives the scoring factors
// for a join: signup latency against the drop's start, fractional account age,
// a sliding-window rapid-action count (this join included), and completed
// participations.
func (s *Service) touchUser(ctx context.Context, tx *sql.Tx, userID string, d Drop, now time.Time) (priority.Factors, error) {
	nowNs := now.UnixNano()

	if _, err := tx.ExecContext(ctx, `
INSERT INTO users(user_id, first_seen_ns, completed_claims, recent_actions, recent_window_start_ns)
VALUES(?, ?, 0, 0, ?)
ON CONFLICT(user_id) DO NOTHING;
`, userID, nowNs, nowNs); err != nil {
		return priority.Factors{}, err
	}

	var (
		firstSeenNs   int64
		completed     int
		recent        int
		windowStartNs int64
	)
	if err := tx.QueryRowContext(ctx, `
SELECT first_seen_ns, completed_claims, recent_actions, recent_window_start_ns
FROM users WHERE user_id = ?;
`, userID).Scan(&firstSeenNs, &completed, &recent, &windowStartNs); err != nil {
		return priority.Factors{}, err
	}

	if now.Sub(time.Unix(0, windowStartNs)) > rapidActionWindow {
		recent = 0
		windowStartNs = nowNs
	}
	recent++

	if _, err := tx.ExecContext(ctx, `
UPDATE users SET recent_actions = ?, recent_window_start_ns = ? WHERE user_id = ?;
`, recent, windowStartNs, userID); err != nil {
		return priority.Factors{}, err
	}

	latencyMS := float64(now.Sub(d.Start).Milliseconds())
	if latencyMS < 0 {
		latencyMS = 0
	}
	ageDays := now.Sub(time.Unix(0, firstSeenNs)).Hours() / 24

	return priority.Factors{
		SignupLatencyMS: latencyMS,
		AccountAgeDays:  ageDays,
		RapidActions:    recent,
		UserHistory:     completed,
	}, nil
}

const dropSelect = `
SELECT drop_id, title, description, total_stock, claimed_stock, start_ns, claim_start_ns, claim_end_ns, end_ns, created_at_ns
FROM drops`

const claimSelect = `
SELECT claim_id, drop_id, user_id, claim_code, status, created_at_ns, expires_at_ns, completed_at_ns
FROM claims`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDrop(row rowScanner) (Drop, error) {
	var (
		d                                          Drop
		startNs, claimStartNs, claimEndNs, endNs   int64
		createdNs                                  int64
	)
	if err := row.Scan(&d.DropID, &d.Title, &d.Description, &d.TotalStock, &d.ClaimedStock,
		&startNs, &claimStartNs, &claimEndNs, &endNs, &createdNs); err != nil {
		return Drop{}, err
	}
	d.Start = time.Unix(0, startNs)
	d.ClaimStart = time.Unix(0, claimStartNs)
	d.ClaimEnd = time.Unix(0, claimEndNs)
	d.End = time.Unix(0, endNs)
	d.CreatedAt = time.Unix(0, createdNs)
	return d, nil
}

func scanClaim(row rowScanner) (Claim, error) {
	var (
		c           Claim
		status      string
		createdNs   int64
		expiresNs   int64
		completedNs sql.NullInt64
	)
	if err := row.Scan(&c.ClaimID, &c.DropID, &c.UserID, &c.ClaimCode, &status, &createdNs, &expiresNs, &completedNs); err != nil {
		return Claim{}, err
	}
	c.Status = ClaimState(status)
	c.CreatedAt = time.Unix(0, createdNs)
	c.ExpiresAt = time.Unix(0, expiresNs)
	if completedNs.Valid {
		c.CompletedAt = time.Unix(0, completedNs.Int64)
	}
	return c, nil
}

func isUniqueViolation(err error) bool {
	if se, ok := err.(sqlite3.Error); ok {
		return se.Code == sqlite3.ErrConstraint
	}
	return false
}
