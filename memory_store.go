package gatekeeper

import (
	"context"
	"sync"
)

// MemoryTokenStore keeps the token pair in process memory
type MemoryTokenStore struct {
	tokens Tokens
	mu     sync.RWMutex
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{}
}

func (s *MemoryTokenStore) Load(ctx context.Context) (Tokens, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.tokens.Access == "" && s.tokens.Refresh == "" {
		return Tokens{}, ErrNoTokens
	}
	return s.tokens, nil
}

func (s *MemoryTokenStore) Save(ctx context.Context, tokens Tokens) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tokens = tokens
	return nil
}

func (s *MemoryTokenStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tokens = Tokens{}
	return nil
}
