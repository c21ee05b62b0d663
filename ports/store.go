package ports

import (
	"context"
	"time"
)

// Denylist remembers revoked token IDs until the tokens would have expired anyway
type Denylist interface {
	// InvalidateToken reports false if the token was already invalidated.
	InvalidateToken(ctx context.Context, tokenID string, expiry time.Duration) (bool, error)
	IsTokenInvalidated(ctx context.Context, tokenID string) (bool, error)
}
