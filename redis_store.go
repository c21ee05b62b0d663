package gatekeeper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisTokenStore keeps a token pair under one Redis key, so several
// processes acting for the same user can share a session.
type RedisTokenStore struct {
	client redis.UniversalClient
	key    string
	now    func() time.Time
}

// NewRedisTokenStore stores tokens under key
func NewRedisTokenStore(client redis.UniversalClient, key string) *RedisTokenStore {
	return &RedisTokenStore{
		client: client,
		key:    key,
		now:    time.Now,
	}
}

func (s *RedisTokenStore) Load(ctx context.Context) (Tokens, error) {
	raw, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Tokens{}, ErrNoTokens
		}
		return Tokens{}, fmt.Errorf("failed to load tokens: %w", err)
	}

	var tokens Tokens
	if err := json.Unmarshal(raw, &tokens); err != nil {
		return Tokens{}, fmt.Errorf("failed to decode tokens: %w", err)
	}
	return tokens, nil
}

// Save keeps the pair until the refresh token expires. Pairs whose refresh
// token cannot be decoded are kept without expiry.
func (s *RedisTokenStore) Save(ctx context.Context, tokens Tokens) error {
	raw, err := json.Marshal(tokens)
	if err != nil {
		return fmt.Errorf("failed to encode tokens: %w", err)
	}

	var ttl time.Duration
	if refresh, err := ParseToken(tokens.Refresh); err == nil {
		ttl = refresh.ExpiresAt().Sub(s.now())
		if ttl <= 0 {
			return s.Clear(ctx)
		}
	}

	if err := s.client.Set(ctx, s.key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save tokens: %w", err)
	}
	return nil
}

func (s *RedisTokenStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("failed to clear tokens: %w", err)
	}
	return nil
}
