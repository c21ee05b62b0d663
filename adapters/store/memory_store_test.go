package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreInvalidate(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewMemoryStore().WithClock(func() time.Time { return now })

	fresh, err := s.InvalidateToken(ctx, "jti-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, fresh)

	fresh, err = s.InvalidateToken(ctx, "jti-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, fresh, "second invalidation must lose")

	revoked, err := s.IsTokenInvalidated(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, err = s.IsTokenInvalidated(ctx, "jti-2")
	require.NoError(t, err)
	assert.False(t, revoked)

	now = now.Add(time.Minute)
	revoked, err = s.IsTokenInvalidated(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)
	assert.Equal(t, 0, s.Len())
}

func TestMemoryStorePrunesExpiredEntries(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewMemoryStore().WithClock(func() time.Time { return now })

	for _, id := range []string{"a", "b", "c"} {
		_, err := s.InvalidateToken(ctx, id, time.Second)
		require.NoError(t, err)
	}
	_, err := s.InvalidateToken(ctx, "long", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 4, s.Len())

	now = now.Add(2 * time.Second)
	assert.Equal(t, 1, s.Len())
}

func TestMemoryStoreNonPositiveExpiry(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewMemoryStore().WithClock(func() time.Time { return now })

	fresh, err := s.InvalidateToken(context.Background(), "gone", 0)
	require.NoError(t, err)
	assert.True(t, fresh)

	fresh, err = s.InvalidateToken(context.Background(), "gone", -time.Minute)
	require.NoError(t, err)
	assert.False(t, fresh, "second consumer of an expiring token must lose")
	assert.Equal(t, 1, s.Len())

	now = now.Add(time.Second)
	assert.Equal(t, 0, s.Len())
}

func TestMemoryStoreConcurrentInvalidationHasOneWinner(t *testing.T) {
	s := NewMemoryStore()
	var winners atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fresh, err := s.InvalidateToken(context.Background(), "jti", time.Minute)
			if err == nil && fresh {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), winners.Load())
}
