package gatekeeper

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs against a real server when GATEKEEPER_TEST_REDIS_URL is set.
func TestRedisTokenStore(t *testing.T) {
	url := os.Getenv("GATEKEEPER_TEST_REDIS_URL")
	if url == "" {
		t.Skip("GATEKEEPER_TEST_REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	s := NewRedisTokenStore(client, "gatekeeper:test:"+uuid.NewString())

	_, err = s.Load(ctx)
	assert.ErrorIs(t, err, ErrNoTokens)

	// opaque tokens are stored without expiry
	require.NoError(t, s.Save(ctx, Tokens{Access: "a", Refresh: "r"}))
	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "r", got.Refresh)

	require.NoError(t, s.Clear(ctx))
	_, err = s.Load(ctx)
	assert.ErrorIs(t, err, ErrNoTokens)
}
