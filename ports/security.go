package ports

import (
	"context"
	"time"
)

// PasswordHasher returns core.ErrInvalidCredentials from Compare on mismatch.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

// RateLimiter counts attempts per key in a sliding window. A rejected
// attempt is not recorded and yields a *core.RateLimitError.
type RateLimiter interface {
	Check(ctx context.Context, key string, window time.Duration, max int) error
}
