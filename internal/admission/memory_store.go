package admission

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for tests and local development.
// Its clock is injectable so window expiry can be tested without sleeping.
type MemoryStore struct {
	mu        sync.Mutex
	now       func() time.Time
	cooldowns map[string]time.Time // userID -> activeUntil
	quotas    map[string]*quotaWindow
}

type quotaWindow struct {
	used     int
	resetsAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:       time.Now,
		cooldowns: make(map[string]time.Time),
		quotas:    make(map[string]*quotaWindow),
	}
}

// SetClock replaces the store's time source.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryStore) CooldownRemaining(ctx context.Context, userID string) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	until, ok := s.cooldowns[userID]
	if !ok {
		return 0, nil
	}
	remaining := until.Sub(s.now())
	if remaining <= 0 {
		delete(s.cooldowns, userID)
		return 0, nil
	}
	return remaining, nil
}

func (s *MemoryStore) SetCooldown(ctx context.Context, userID string, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cooldowns[userID] = s.now().Add(d)
	return nil
}

func (s *MemoryStore) IncrementWithinLimit(ctx context.Context, userID string, limit int, window time.Duration) (int, bool, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()

	w := s.quotas[userID]
	if w == nil || !now.Before(w.resetsAt) {
		w = &quotaWindow{resetsAt: now.Add(window)}
		s.quotas[userID] = w
	}
	if w.used >= limit {
		return w.used, false, w.resetsAt.Sub(now), nil
	}
	w.used++
	return w.used, true, w.resetsAt.Sub(now), nil
}

func (s *MemoryStore) QuotaUsage(ctx context.Context, userID string) (int, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	w := s.quotas[userID]
	if w == nil || !now.Before(w.resetsAt) {
		return 0, 0, nil
	}
	return w.used, w.resetsAt.Sub(now), nil
}
