package dropclient

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
)

const storeCacheSize = 1024

// WaitlistStore caches the user's last-known waitlist state per drop and
// wraps join/leave mutations with optimistic updates.
//
// Mutation protocol, per key (dropID):
//  1. reject silently if a mutation for the key is already in flight
//  2. apply a tentative local change synchronously (temp- entry id)
//  3. issue the backend request
//  4. on success, replace the tentative entry with the server-confirmed one
//     under the same key, so subscribers see one coherent update
//  5. on failure, restore the pre-optimistic state and record a per-key
//     error message; never retry automatically
type WaitlistStore struct {
	client *Client
	userID string

	mu       sync.Mutex
	inflight map[string]bool
	errs     map[string]string
	cache    *lru.Cache // dropID -> WaitlistEntry
	subs     []func(dropID string)
}

func NewWaitlistStore(client *Client, userID string) *WaitlistStore {
	cache, _ := lru.New(storeCacheSize)
	return &WaitlistStore{
		client:   client,
		userID:   userID,
		inflight: make(map[string]bool),
		errs:     make(map[string]string),
		cache:    cache,
	}
}

// Subscribe registers a callback invoked with the dropID after every visible
// state change. Callbacks run on the mutating goroutine; keep them cheap.
func (s *WaitlistStore) Subscribe(fn func(dropID string)) {
	s.mu.Lock()
	s.subs = append(s.subs, fn)
	s.mu.Unlock()
}

func (s *WaitlistStore) notify(dropID string) {
	s.mu.Lock()
	subs := make([]func(string), len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()
	for _, fn := range subs {
		fn(dropID)
	}
}

// Entry returns the last-known entry for a drop, optimistic or confirmed.
func (s *WaitlistStore) Entry(dropID string) (WaitlistEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.cache.Get(dropID); ok {
		return v.(WaitlistEntry), true
	}
	return WaitlistEntry{}, false
}

// Err returns the last mutation error recorded for a drop, or "".
func (s *WaitlistStore) Err(dropID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errs[dropID]
}

// Join registers interest in a drop. Returns false without touching the
// network when a mutation for the drop is already in flight (a UI debouncing
// concern, not an error) or when the backend rejects the join; the rejection
// reason is available via Err.
func (s *WaitlistStore) Join(ctx context.Context, dropID string) bool {
	s.mu.Lock()
	if s.inflight[dropID] {
		s.mu.Unlock()
		return false
	}
	s.inflight[dropID] = true

	prev, hadPrev := s.cache.Get(dropID)
	temp := WaitlistEntry{
		EntryID:  tempIDPrefix + uuid.NewString(),
		DropID:   dropID,
		UserID:   s.userID,
		JoinedAt: time.Now(),
	}
	s.cache.Add(dropID, temp)
	delete(s.errs, dropID)
	s.mu.Unlock()
	s.notify(dropID)

	entry, de, err := s.client.JoinWaitlist(ctx, dropID, s.userID)

	s.mu.Lock()
	delete(s.inflight, dropID)
	ok := de == nil && err == nil
	if ok {
		s.cache.Add(dropID, entry)
	} else {
		// Roll back the tentative entry so visible state matches the server.
		if hadPrev {
			s.cache.Add(dropID, prev)
		} else {
			s.cache.Remove(dropID)
		}
		s.errs[dropID] = mutationErr(de, err)
	}
	s.mu.Unlock()
	s.notify(dropID)
	return ok
}

// Leave removes the user's entry for a drop with the same optimistic
// protocol: the entry disappears immediately and is restored on failure.
func (s *WaitlistStore) Leave(ctx context.Context, dropID string) bool {
	s.mu.Lock()
	if s.inflight[dropID] {
		s.mu.Unlock()
		return false
	}
	s.inflight[dropID] = true

	prev, hadPrev := s.cache.Get(dropID)
	s.cache.Remove(dropID)
	delete(s.errs, dropID)
	s.mu.Unlock()
	s.notify(dropID)

	de, err := s.client.LeaveWaitlist(ctx, dropID, s.userID)

	s.mu.Lock()
	delete(s.inflight, dropID)
	ok := de == nil && err == nil
	if !ok {
		if hadPrev {
			s.cache.Add(dropID, prev)
		}
		s.errs[dropID] = mutationErr(de, err)
	}
	s.mu.Unlock()
	s.notify(dropID)
	return ok
}

// Refresh polls the server's waitlist status and reconciles the cache with
// it (position and priority score move as the backend re-ranks).
func (s *WaitlistStore) Refresh(ctx context.Context, dropID string) error {
	st, err := s.client.WaitlistStatus(ctx, dropID, s.userID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.inflight[dropID] {
		// A mutation owns this key right now; its reconciliation wins.
		s.mu.Unlock()
		return nil
	}
	if st.InWaitlist {
		s.cache.Add(dropID, st.Entry)
	} else {
		s.cache.Remove(dropID)
	}
	s.mu.Unlock()
	s.notify(dropID)
	return nil
}

// mutationErr renders a per-key error string: domain rejections keep the
// server's message, transport failures collapse to a generic tag so the UI
// can tell the two apart.
func mutationErr(de *DomainError, err error) string {
	if de != nil {
		return de.Reason
	}
	if err != nil {
		return "network error"
	}
	return ""
}
