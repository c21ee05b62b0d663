package hasher

import (
	"errors"
	"fmt"

	"github.com/layer-3/gatekeeper/core"
	"golang.org/x/crypto/bcrypt"
)

// DefaultCost matches the work factor used for stored account passwords.
const DefaultCost = 12

// Bcrypt hashes passwords with golang.org/x/crypto/bcrypt
type Bcrypt struct {
	cost int
}

// NewBcrypt falls back to DefaultCost when cost is outside bcrypt's range.
func NewBcrypt(cost int) *Bcrypt {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultCost
	}
	return &Bcrypt{cost: cost}
}

// Hash will generate a password hash
func (b *Bcrypt) Hash(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("%w: empty password", core.ErrInvalidInput)
	}

	h, err := bcrypt.GenerateFromPassword([]byte(password), b.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(h), nil
}

// Compare validates that password matches the stored hash
func (b *Bcrypt) Compare(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return core.ErrInvalidCredentials
		}
		return fmt.Errorf("failed to compare password: %w", err)
	}
	return nil
}
