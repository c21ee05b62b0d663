package users

import (
	"context"
	"strings"
	"sync"

	"github.com/layer-3/gatekeeper/core"
)

// MemoryStore keeps accounts in process memory. Accounts are copied on the
// way in and out so callers never share state with the store.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]core.Account
	byEmail  map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]core.Account),
		byEmail:  make(map[string]string),
	}
}

func (s *MemoryStore) FindByID(ctx context.Context, id string) (*core.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acc, ok := s.accounts[id]
	if !ok {
		return nil, core.ErrAccountNotFound
	}
	return &acc, nil
}

func (s *MemoryStore) FindByEmail(ctx context.Context, email string) (*core.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[normalizeEmail(email)]
	if !ok {
		return nil, core.ErrAccountNotFound
	}
	acc := s.accounts[id]
	return &acc, nil
}

func (s *MemoryStore) FindByVerificationToken(ctx context.Context, tokenHash string) (*core.Account, error) {
	return s.findBy(func(acc *core.Account) bool {
		return tokenHash != "" && acc.EmailVerificationTokenHash == tokenHash
	})
}

func (s *MemoryStore) FindByResetToken(ctx context.Context, tokenHash string) (*core.Account, error) {
	return s.findBy(func(acc *core.Account) bool {
		return tokenHash != "" && acc.PasswordResetTokenHash == tokenHash
	})
}

func (s *MemoryStore) findBy(match func(*core.Account) bool) (*core.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, acc := range s.accounts {
		if match(&acc) {
			found := acc
			return &found, nil
		}
	}
	return nil, core.ErrAccountNotFound
}

// Save inserts or replaces the account keyed by ID.
func (s *MemoryStore) Save(ctx context.Context, account *core.Account) error {
	if account == nil || account.ID == "" {
		return core.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	email := normalizeEmail(account.Email)
	if owner, ok := s.byEmail[email]; ok && owner != account.ID {
		return core.ErrEmailTaken
	}
	if prev, ok := s.accounts[account.ID]; ok {
		delete(s.byEmail, normalizeEmail(prev.Email))
	}

	s.accounts[account.ID] = *account
	s.byEmail[email] = account.ID
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
