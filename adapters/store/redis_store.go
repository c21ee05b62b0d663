package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "gatekeeper:denylist:"

// RedisStore is a Redis implementation of the Denylist interface, shared
// by every instance behind the load balancer.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore creates a new Redis store
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: defaultPrefix,
	}
}

// InvalidateToken marks a token as invalidated in Redis. SETNX makes
// concurrent invalidations of the same token agree on a single winner.
func (s *RedisStore) InvalidateToken(ctx context.Context, tokenID string, expiry time.Duration) (bool, error) {
	if expiry <= 0 {
		// redis rejects non-positive TTLs; keep the entry briefly so a racing
		// caller still observes the consumption.
		expiry = time.Second
	}

	ok, err := s.client.SetNX(ctx, s.prefix+tokenID, "1", expiry).Result()
	if err != nil {
		return false, fmt.Errorf("failed to invalidate token: %w", err)
	}
	return ok, nil
}

// IsTokenInvalidated checks if a token is invalidated in Redis
func (s *RedisStore) IsTokenInvalidated(ctx context.Context, tokenID string) (bool, error) {
	val, err := s.client.Exists(ctx, s.prefix+tokenID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check token invalidation: %w", err)
	}
	return val > 0, nil
}
