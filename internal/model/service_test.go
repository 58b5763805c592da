package model_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Developer-Emre/dropspotapp-sub000/internal/model"
	"github.com/Developer-Emre/dropspotapp-sub000/internal/storage"
	"github.com/Developer-Emre/dropspotapp-sub000/pkg/seed"
)

var base = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

func openTestDB(t *testing.T) *storage.DB {
	t.Helper()

	ctx := context.Background()
	db, err := storage.Open(ctx, storage.Config{
		Path:         filepath.Join(t.TempDir(), "dropspot_test.db"),
		BusyTimeout:  5 * time.Second,
		MaxOpenConns: 10,
		MaxIdleConns: 10,
	})
	if err != nil {
		t.Fatalf("db open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestService(t *testing.T, claimTTL time.Duration) *model.Service {
	t.Helper()
	db := openTestDB(t)
	seeds := seed.NewGenerator(seed.Fingerprint("svc-test", base, base))
	return model.NewService(db.DB, nil, nil, seeds, claimTTL)
}

// mustCreateDrop creates a drop with waitlist [base, base+24h) and claim
// window [base+24h, base+48h).
func mustCreateDrop(t *testing.T, svc *model.Service, dropID string, stock int64) model.Drop {
	t.Helper()
	res, err := svc.CreateDrop(context.Background(), model.CreateDropRequest{
		DropID:     dropID,
		Title:      "Test Drop",
		TotalStock: stock,
		Start:      base,
		ClaimStart: base.Add(24 * time.Hour),
		ClaimEnd:   base.Add(48 * time.Hour),
		Now:        base.Add(-time.Hour),
	})
	if err != nil {
		t.Fatalf("create drop: %v", err)
	}
	if !res.Created {
		t.Fatalf("create drop rejected: %s", res.Reason)
	}
	return res.Drop
}

func mustJoin(t *testing.T, svc *model.Service, dropID, userID string, at time.Time) model.WaitlistEntry {
	t.Helper()
	res, err := svc.JoinWaitlist(context.Background(), model.JoinRequest{DropID: dropID, UserID: userID, Now: at})
	if err != nil {
		t.Fatalf("join %s: %v", userID, err)
	}
	if !res.Joined {
		t.Fatalf("join %s rejected: %s", userID, res.Reason)
	}
	return res.Entry
}

func TestCreateDropValidation(t *testing.T) {
	svc := newTestService(t, 24*time.Hour)
	ctx := context.Background()

	// Misordered timestamps: domain rejection, not an error.
	res, err := svc.CreateDrop(ctx, model.CreateDropRequest{
		Title:      "Bad",
		TotalStock: 5,
		Start:      base.Add(24 * time.Hour),
		ClaimStart: base,
		ClaimEnd:   base.Add(48 * time.Hour),
	})
	if err != nil {
		t.Fatalf("misordered timestamps must not error: %v", err)
	}
	if res.Created || res.Reason != "timestamps must be non-decreasing" {
		t.Fatalf("unexpected result: %+v", res)
	}

	if _, err := svc.CreateDrop(ctx, model.CreateDropRequest{TotalStock: 5, Start: base, ClaimStart: base, ClaimEnd: base}); err == nil {
		t.Fatal("missing title must be an input error")
	}

	mustCreateDrop(t, svc, "dup", 5)
	res, err = svc.CreateDrop(ctx, model.CreateDropRequest{
		DropID:     "dup",
		Title:      "Again",
		TotalStock: 5,
		Start:      base,
		ClaimStart: base.Add(24 * time.Hour),
		ClaimEnd:   base.Add(48 * time.Hour),
	})
	if err != nil {
		t.Fatalf("duplicate create: %v", err)
	}
	if res.Created || res.Reason != "drop already exists" {
		t.Fatalf("unexpected duplicate result: %+v", res)
	}
}

func TestCreateDropEndDefaultsToClaimEnd(t *testing.T) {
	svc := newTestService(t, 24*time.Hour)
	d := mustCreateDrop(t, svc, "d1", 5)
	if !d.End.Equal(d.ClaimEnd) {
		t.Fatalf("End = %v, want ClaimEnd %v", d.End, d.ClaimEnd)
	}
}

func TestJoinWaitlistLifecycle(t *testing.T) {
	svc := newTestService(t, 24*time.Hour)
	ctx := context.Background()
	mustCreateDrop(t, svc, "d1", 10)

	// Before the drop opens.
	res, err := svc.JoinWaitlist(ctx, model.JoinRequest{DropID: "d1", UserID: "u1", Now: base.Add(-time.Minute)})
	if err != nil {
		t.Fatalf("early join: %v", err)
	}
	if res.Joined || res.Reason != "drop is not open for waitlist" {
		t.Fatalf("early join: %+v", res)
	}

	e1 := mustJoin(t, svc, "d1", "u1", base.Add(time.Hour))
	e2 := mustJoin(t, svc, "d1", "u2", base.Add(2*time.Hour))
	if e1.Position != 1 || e2.Position != 2 {
		t.Fatalf("positions = %d, %d; want 1, 2", e1.Position, e2.Position)
	}
	if e1.PriorityScore < 100 || e1.PriorityScore > 2000 {
		t.Fatalf("score %v out of bounds", e1.PriorityScore)
	}

	// Second join by the same user.
	res, err = svc.JoinWaitlist(ctx, model.JoinRequest{DropID: "d1", UserID: "u1", Now: base.Add(3 * time.Hour)})
	if err != nil {
		t.Fatalf("double join: %v", err)
	}
	if res.Joined || res.Reason != "already in waitlist" {
		t.Fatalf("double join: %+v", res)
	}

	st, err := svc.WaitlistStatus(ctx, "d1", "u2")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !st.InWaitlist || st.Entry.Position != 2 {
		t.Fatalf("status: %+v", st)
	}

	st, err = svc.WaitlistStatus(ctx, "d1", "nobody")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.InWaitlist {
		t.Fatalf("unknown user reported in waitlist: %+v", st)
	}

	res, err = svc.JoinWaitlist(ctx, model.JoinRequest{DropID: "missing", UserID: "u1", Now: base.Add(time.Hour)})
	if err != nil {
		t.Fatalf("join missing drop: %v", err)
	}
	if res.Joined || res.Reason != "drop not found" {
		t.Fatalf("join missing drop: %+v", res)
	}
}

func TestLeaveClosesPositionGap(t *testing.T) {
	svc := newTestService(t, 24*time.Hour)
	ctx := context.Background()
	mustCreateDrop(t, svc, "d1", 10)

	mustJoin(t, svc, "d1", "u1", base.Add(time.Hour))
	mustJoin(t, svc, "d1", "u2", base.Add(2*time.Hour))
	mustJoin(t, svc, "d1", "u3", base.Add(3*time.Hour))

	res, err := svc.LeaveWaitlist(ctx, model.LeaveRequest{DropID: "d1", UserID: "u2", Now: base.Add(4 * time.Hour)})
	if err != nil {
		t.Fatalf("leave: %v", err)
	}
	if !res.Left {
		t.Fatalf("leave rejected: %s", res.Reason)
	}

	st1, _ := svc.WaitlistStatus(ctx, "d1", "u1")
	st3, _ := svc.WaitlistStatus(ctx, "d1", "u3")
	if st1.Entry.Position != 1 || st3.Entry.Position != 2 {
		t.Fatalf("positions after leave = %d, %d; want 1, 2", st1.Entry.Position, st3.Entry.Position)
	}

	st2, _ := svc.WaitlistStatus(ctx, "d1", "u2")
	if st2.InWaitlist {
		t.Fatal("u2 still reported in waitlist after leaving")
	}
}

func TestLeaveRefusedOnceClaimWindowActive(t *testing.T) {
	svc := newTestService(t, 24*time.Hour)
	ctx := context.Background()
	mustCreateDrop(t, svc, "d1", 10)
	mustJoin(t, svc, "d1", "u1", base.Add(time.Hour))

	res, err := svc.LeaveWaitlist(ctx, model.LeaveRequest{DropID: "d1", UserID: "u1", Now: base.Add(25 * time.Hour)})
	if err != nil {
		t.Fatalf("leave: %v", err)
	}
	if res.Left || res.Reason != "claim window already active" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestClaimDrop(t *testing.T) {
	svc := newTestService(t, 24*time.Hour)
	ctx := context.Background()
	mustCreateDrop(t, svc, "d1", 2)

	mustJoin(t, svc, "d1", "u1", base.Add(time.Hour))
	mustJoin(t, svc, "d1", "u2", base.Add(time.Hour))
	claimAt := base.Add(25 * time.Hour)

	// Claiming before the window opens.
	res, err := svc.ClaimDrop(ctx, model.ClaimRequest{DropID: "d1", UserID: "u1", Now: base.Add(time.Hour)})
	if err != nil {
		t.Fatalf("early claim: %v", err)
	}
	if res.Claimed || res.Reason != "drop is not open for claiming" {
		t.Fatalf("early claim: %+v", res)
	}

	// Claiming without a waitlist entry.
	res, err = svc.ClaimDrop(ctx, model.ClaimRequest{DropID: "d1", UserID: "outsider", Now: claimAt})
	if err != nil {
		t.Fatalf("outsider claim: %v", err)
	}
	if res.Claimed || res.Reason != "not eligible: join the waitlist first" {
		t.Fatalf("outsider claim: %+v", res)
	}

	res, err = svc.ClaimDrop(ctx, model.ClaimRequest{DropID: "d1", UserID: "u1", Now: claimAt})
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !res.Claimed {
		t.Fatalf("claim rejected: %s", res.Reason)
	}
	if res.Claim.Status != model.ClaimPending || len(res.Claim.ClaimCode) != 8 {
		t.Fatalf("unexpected claim: %+v", res.Claim)
	}
	if want := claimAt.Add(24 * time.Hour); !res.Claim.ExpiresAt.Equal(want) {
		t.Fatalf("ExpiresAt = %v, want %v", res.Claim.ExpiresAt, want)
	}

	d, _, err := svc.GetDrop(ctx, "d1")
	if err != nil {
		t.Fatalf("get drop: %v", err)
	}
	if d.AvailableStock() != 1 {
		t.Fatalf("available stock = %d, want 1", d.AvailableStock())
	}

	// Same user claiming again.
	res, err = svc.ClaimDrop(ctx, model.ClaimRequest{DropID: "d1", UserID: "u1", Now: claimAt})
	if err != nil {
		t.Fatalf("re-claim: %v", err)
	}
	if res.Claimed || res.Reason != "already claimed" {
		t.Fatalf("re-claim: %+v", res)
	}

	// u2 takes the last unit; a third eligible user finds it sold out.
	mustJoin(t, svc, "d1", "u3", base.Add(2*time.Hour))
	if res, _ = svc.ClaimDrop(ctx, model.ClaimRequest{DropID: "d1", UserID: "u2", Now: claimAt}); !res.Claimed {
		t.Fatalf("u2 claim rejected: %s", res.Reason)
	}
	res, err = svc.ClaimDrop(ctx, model.ClaimRequest{DropID: "d1", UserID: "u3", Now: claimAt})
	if err != nil {
		t.Fatalf("u3 claim: %v", err)
	}
	if res.Claimed || res.Reason != "drop is sold out" {
		t.Fatalf("u3 claim: %+v", res)
	}
}

func TestCompleteClaim(t *testing.T) {
	svc := newTestService(t, 24*time.Hour)
	ctx := context.Background()
	mustCreateDrop(t, svc, "d1", 5)
	mustJoin(t, svc, "d1", "u1", base.Add(time.Hour))

	claimAt := base.Add(25 * time.Hour)
	cr, err := svc.ClaimDrop(ctx, model.ClaimRequest{DropID: "d1", UserID: "u1", Now: claimAt})
	if err != nil || !cr.Claimed {
		t.Fatalf("claim: err=%v res=%+v", err, cr)
	}

	completeAt := claimAt.Add(time.Hour)
	res, err := svc.CompleteClaim(ctx, model.CompleteRequest{ClaimID: cr.Claim.ClaimID, UserID: "u1", Now: completeAt})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !res.Completed || res.Claim.Status != model.ClaimCompleted || !res.Claim.CompletedAt.Equal(completeAt) {
		t.Fatalf("complete: %+v", res)
	}

	// Completing twice.
	res, err = svc.CompleteClaim(ctx, model.CompleteRequest{ClaimID: cr.Claim.ClaimID, UserID: "u1", Now: completeAt.Add(time.Minute)})
	if err != nil {
		t.Fatalf("re-complete: %v", err)
	}
	if res.Completed || res.Reason != "claim already completed" {
		t.Fatalf("re-complete: %+v", res)
	}

	// Wrong user.
	res, err = svc.CompleteClaim(ctx, model.CompleteRequest{ClaimID: cr.Claim.ClaimID, UserID: "u2", Now: completeAt})
	if err != nil {
		t.Fatalf("wrong-user complete: %v", err)
	}
	if res.Completed || res.Reason != "claim not found" {
		t.Fatalf("wrong-user complete: %+v", res)
	}
}

func TestCompleteAfterDeadlineLapsesClaimAndReturnsStock(t *testing.T) {
	svc := newTestService(t, time.Hour)
	ctx := context.Background()
	mustCreateDrop(t, svc, "d1", 3)
	mustJoin(t, svc, "d1", "u1", base.Add(time.Hour))

	claimAt := base.Add(25 * time.Hour)
	cr, err := svc.ClaimDrop(ctx, model.ClaimRequest{DropID: "d1", UserID: "u1", Now: claimAt})
	if err != nil || !cr.Claimed {
		t.Fatalf("claim: err=%v res=%+v", err, cr)
	}

	// Two hours later, an hour past the claim's one-hour deadline.
	res, err := svc.CompleteClaim(ctx, model.CompleteRequest{ClaimID: cr.Claim.ClaimID, UserID: "u1", Now: claimAt.Add(2 * time.Hour)})
	if err != nil {
		t.Fatalf("late complete: %v", err)
	}
	if res.Completed || res.Reason != "claim already expired" {
		t.Fatalf("late complete: %+v", res)
	}
	if res.Claim.Status != model.ClaimExpired {
		t.Fatalf("claim status = %s, want expired", res.Claim.Status)
	}

	d, _, err := svc.GetDrop(ctx, "d1")
	if err != nil {
		t.Fatalf("get drop: %v", err)
	}
	if d.AvailableStock() != 3 {
		t.Fatalf("stock must be returned on lapse: available=%d want 3", d.AvailableStock())
	}

	st, err := svc.ClaimStatus(ctx, "d1", "u1")
	if err != nil {
		t.Fatalf("claim status: %v", err)
	}
	if !st.Found || st.Claim.Status != model.ClaimExpired {
		t.Fatalf("claim status: %+v", st)
	}
}
