package model

import (
	"time"

	"github.com/Developer-Emre/dropspotapp-sub000/pkg/phase"
)

type Drop struct {
	DropID       string
	Title        string
	Description  string
	TotalStock   int64
	ClaimedStock int64
	Start        time.Time
	ClaimStart   time.Time
	ClaimEnd     time.Time
	End          time.Time
	CreatedAt    time.Time
}

func (d Drop) AvailableStock() int64 {
	return d.TotalStock - d.ClaimedStock
}

func (d Drop) Schedule() phase.Schedule {
	return phase.Schedule{
		Start:      d.Start,
		ClaimStart: d.ClaimStart,
		ClaimEnd:   d.ClaimEnd,
		End:        d.End,
	}
}

type WaitlistEntry struct {
	EntryID       string
	DropID        string
	UserID        string
	Position      int
	PriorityScore float64
	JoinedAt      time.Time
}

type ClaimState string

const (
	ClaimPending   ClaimState = "pending"
	ClaimCompleted ClaimState = "completed"
	ClaimExpired   ClaimState = "expired"
)

type Claim struct {
	ClaimID     string
	DropID      string
	UserID      string
	ClaimCode   string
	Status      ClaimState
	CreatedAt   time.Time
	ExpiresAt   time.Time
	CompletedAt time.Time // zero unless Status == completed
}

type CreateDropRequest struct {
	DropID      string // optional; generated when empty
	Title       string
	Description string
	TotalStock  int64
	Start       time.Time
	ClaimStart  time.Time
	ClaimEnd    time.Time
	End         time.Time // defaults to ClaimEnd when zero
	Now         time.Time // injected for testability; if zero, service uses time.Now()
}

type CreateDropResult struct {
	Created bool
	Drop    Drop
	Reason  string
}

type JoinRequest struct {
	DropID string
	UserID string
	Now    time.Time
}

type JoinResult struct {
	Joined bool
	Entry  WaitlistEntry
	Reason string
}

type LeaveRequest struct {
	DropID string
	UserID string
	Now    time.Time
}

type LeaveResult struct {
	Left   bool
	Reason string
}

type WaitlistStatusResult struct {
	InWaitlist bool
	Entry      WaitlistEntry
}

type ClaimRequest struct {
	DropID string
	UserID string
	Now    time.Time
}

type ClaimResult struct {
	Claimed bool
	Claim   Claim
	Reason  string
}

type CompleteRequest struct {
	ClaimID string
	UserID  string
	Now     time.Time
}

type CompleteResult struct {
	Completed bool
	Claim     Claim
	Reason    string
}

type ClaimStatusResult struct {
	Found bool
	Claim Claim
}
