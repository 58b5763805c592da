package dropclient

import (
	"time"

	"github.com/Developer-Emre/dropspotapp-sub000/pkg/phase"
)

// Drop is the client-side view of a drop record.
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

// WaitlistEntry is a user's ranked registration of interest in a drop.
// Entries whose EntryID carries the temp- prefix are optimistic and not yet
// server-confirmed.
type WaitlistEntry struct {
	EntryID       string
	DropID        string
	UserID        string
	Position      int
	PriorityScore float64
	JoinedAt      time.Time
}

// Confirmed reports whether the entry came from the server rather than an
// optimistic local insert.
func (e WaitlistEntry) Confirmed() bool {
	return e.EntryID != "" && !isTempID(e.EntryID)
}

type ClaimState string

const (
	ClaimPending   ClaimState = "pending"
	ClaimCompleted ClaimState = "completed"
	ClaimExpired   ClaimState = "expired"
)

// Claim is a time-limited reservation of stock. Pending claims must be
// completed before ExpiresAt or they lapse.
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

func (c Claim) Confirmed() bool {
	return c.ClaimID != "" && !isTempID(c.ClaimID)
}

// WaitlistStatus is the result of a waitlist status query.
type WaitlistStatus struct {
	InWaitlist bool
	Position   int
	Entry      WaitlistEntry
}

// CreateDropParams is the admin create-drop request.
type CreateDropParams struct {
	DropID      string
	Title       string
	Description string
	TotalStock  int64
	Start       time.Time
	ClaimStart  time.Time
	ClaimEnd    time.Time
	End         time.Time
}

const tempIDPrefix = "temp-"

func isTempID(id string) bool {
	return len(id) >= len(tempIDPrefix) && id[:len(tempIDPrefix)] == tempIDPrefix
}
