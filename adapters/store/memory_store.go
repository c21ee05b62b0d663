package store

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory implementation of the Denylist interface
type MemoryStore struct {
	invalidatedTokens map[string]time.Time
	mu                sync.Mutex
	now               func() time.Time
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		invalidatedTokens: make(map[string]time.Time),
		now:               time.Now,
	}
}

// WithClock replaces the time source.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

// InvalidateToken marks a token as invalidated until expiry elapses.
// Expired entries are pruned on the way.
func (s *MemoryStore) InvalidateToken(ctx context.Context, tokenID string, expiry time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.pruneLocked(now)

	if _, exists := s.invalidatedTokens[tokenID]; exists {
		return false, nil
	}
	if expiry <= 0 {
		// keep a short entry so a racing second consumer still loses
		expiry = time.Second
	}
	s.invalidatedTokens[tokenID] = now.Add(expiry)
	return true, nil
}

// IsTokenInvalidated checks if a token is invalidated
func (s *MemoryStore) IsTokenInvalidated(ctx context.Context, tokenID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiryTime, exists := s.invalidatedTokens[tokenID]
	if !exists {
		return false, nil
	}
	if !s.now().Before(expiryTime) {
		delete(s.invalidatedTokens, tokenID)
		return false, nil
	}
	return true, nil
}

// Len reports the number of live entries.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked(s.now())
	return len(s.invalidatedTokens)
}

func (s *MemoryStore) pruneLocked(now time.Time) {
	for id, expiryTime := range s.invalidatedTokens {
		if !now.Before(expiryTime) {
			delete(s.invalidatedTokens, id)
		}
	}
}
