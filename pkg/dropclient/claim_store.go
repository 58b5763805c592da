package dropclient

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
)

// ClaimStore caches the user's last-known claim per drop, wraps claim and
// complete mutations with the optimistic protocol (see WaitlistStore), and
// owns a Countdown per confirmed pending claim. Close must be called on
// teardown so no countdown keeps ticking after its owner is gone.
type ClaimStore struct {
	client *Client
	userID string

	mu       sync.Mutex
	inflight map[string]bool
	errs     map[string]string
	cache    *lru.Cache // dropID -> Claim
	watchers map[string]context.CancelFunc
	subs     []func(dropID string)

	ctx      context.Context
	cancel   context.CancelFunc
	onExpire func(Claim) // optional UI callback, fires once per claim
}

func NewClaimStore(client *Client, userID string, onExpire func(Claim)) *ClaimStore {
	cache, _ := lru.New(storeCacheSize)
	ctx, cancel := context.WithCancel(context.Background())
	return &ClaimStore{
		client:   client,
		userID:   userID,
		inflight: make(map[string]bool),
		errs:     make(map[string]string),
		cache:    cache,
		watchers: make(map[string]context.CancelFunc),
		ctx:      ctx,
		cancel:   cancel,
		onExpire: onExpire,
	}
}

// Close stops every running countdown. Safe to call more than once.
func (s *ClaimStore) Close() {
	s.cancel()
	s.mu.Lock()
	for _, stop := range s.watchers {
		stop()
	}
	s.watchers = make(map[string]context.CancelFunc)
	s.mu.Unlock()
}

func (s *ClaimStore) Subscribe(fn func(dropID string)) {
	s.mu.Lock()
	s.subs = append(s.subs, fn)
	s.mu.Unlock()
}

func (s *ClaimStore) notify(dropID string) {
	s.mu.Lock()
	subs := make([]func(string), len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()
	for _, fn := range subs {
		fn(dropID)
	}
}

// Claim returns the last-known claim for a drop, optimistic or confirmed.
func (s *ClaimStore) Claim(dropID string) (Claim, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.cache.Get(dropID); ok {
		return v.(Claim), true
	}
	return Claim{}, false
}

func (s *ClaimStore) Err(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errs[key]
}

// ClaimDrop reserves a unit of the drop. The tentative claim carries the
// conventional 24h deadline until the server-confirmed one replaces it.
func (s *ClaimStore) ClaimDrop(ctx context.Context, dropID string) bool {
	s.mu.Lock()
	if s.inflight[dropID] {
		s.mu.Unlock()
		return false
	}
	s.inflight[dropID] = true

	prev, hadPrev := s.cache.Get(dropID)
	now := time.Now()
	temp := Claim{
		ClaimID:   tempIDPrefix + uuid.NewString(),
		DropID:    dropID,
		UserID:    s.userID,
		Status:    ClaimPending,
		CreatedAt: now,
		ExpiresAt: now.Add(24 * time.Hour),
	}
	s.cache.Add(dropID, temp)
	delete(s.errs, dropID)
	s.mu.Unlock()
	s.notify(dropID)

	claim, de, err := s.client.ClaimDrop(ctx, dropID, s.userID)

	s.mu.Lock()
	delete(s.inflight, dropID)
	ok := de == nil && err == nil
	if ok {
		s.cache.Add(dropID, claim)
		s.startWatchLocked(claim)
	} else {
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

// CompleteClaim finalizes the pending claim for a drop. The server response
// is authoritative either way: a success replaces the optimistic completion,
// and a rejection (e.g. the claim lapsed server-side despite the local clock)
// rolls back and surfaces the server's reason.
func (s *ClaimStore) CompleteClaim(ctx context.Context, dropID string) bool {
	s.mu.Lock()
	if s.inflight[dropID] {
		s.mu.Unlock()
		return false
	}

	v, ok := s.cache.Get(dropID)
	if !ok {
		s.mu.Unlock()
		return false
	}
	prev := v.(Claim)
	if !prev.Confirmed() || prev.Status != ClaimPending {
		s.mu.Unlock()
		return false
	}

	s.inflight[dropID] = true
	tentative := prev
	tentative.Status = ClaimCompleted
	tentative.CompletedAt = time.Now()
	s.cache.Add(dropID, tentative)
	delete(s.errs, dropID)
	s.mu.Unlock()
	s.notify(dropID)

	claim, de, err := s.client.CompleteClaim(ctx, prev.ClaimID, s.userID)

	s.mu.Lock()
	delete(s.inflight, dropID)
	ok = de == nil && err == nil
	if ok {
		s.cache.Add(dropID, claim)
		s.stopWatchLocked(dropID)
	} else {
		s.cache.Add(dropID, prev)
		s.errs[dropID] = mutationErr(de, err)
	}
	s.mu.Unlock()
	s.notify(dropID)

	if !ok && de != nil {
		// The server may have lapsed the claim; pick up its terminal state.
		_ = s.Refresh(ctx, dropID)
	}
	return ok
}

// Refresh polls the server's claim status and reconciles the cache with it.
func (s *ClaimStore) Refresh(ctx context.Context, dropID string) error {
	claim, found, err := s.client.ClaimStatus(ctx, dropID, s.userID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.inflight[dropID] {
		s.mu.Unlock()
		return nil
	}
	if found {
		s.cache.Add(dropID, claim)
		if claim.Status == ClaimPending {
			s.startWatchLocked(claim)
		} else {
			s.stopWatchLocked(dropID)
		}
	} else {
		s.cache.Remove(dropID)
		s.stopWatchLocked(dropID)
	}
	s.mu.Unlock()
	s.notify(dropID)
	return nil
}

// startWatchLocked spins up a countdown for a confirmed pending claim,
// replacing any previous watcher for the drop. Caller holds s.mu.
func (s *ClaimStore) startWatchLocked(claim Claim) {
	if claim.Status != ClaimPending || !claim.Confirmed() {
		return
	}
	if stop, ok := s.watchers[claim.DropID]; ok {
		stop()
	}
	ctx, stop := context.WithCancel(s.ctx)
	s.watchers[claim.DropID] = stop

	cd := NewCountdown(claim, func(expired Claim) {
		s.markExpired(expired)
	})
	go cd.Run(ctx)
}

func (s *ClaimStore) stopWatchLocked(dropID string) {
	if stop, ok := s.watchers[dropID]; ok {
		stop()
		delete(s.watchers, dropID)
	}
}

// markExpired flips the local view of a lapsed claim. Advisory only: the
// next Refresh or server response still wins if the backend disagrees.
func (s *ClaimStore) markExpired(claim Claim) {
	s.mu.Lock()
	if v, ok := s.cache.Get(claim.DropID); ok {
		cur := v.(Claim)
		if cur.ClaimID == claim.ClaimID && cur.Status == ClaimPending {
			cur.Status = ClaimExpired
			s.cache.Add(claim.DropID, cur)
		}
	}
	s.stopWatchLocked(claim.DropID)
	s.mu.Unlock()
	s.notify(claim.DropID)

	if s.onExpire != nil {
		s.onExpire(claim)
	}
}
