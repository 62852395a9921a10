package dispatcher

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestRateLimiter_AllowsWithinBurstThenBlocks(t *testing.T) {
	client := newTestRedis(t)
	limiter := NewRateLimiter(client)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, err := limiter.Allow(ctx, "trig-1", 60, 3)
		require.NoError(t, err)
		require.True(t, allowed, "attempt %d should be within burst", i)
	}

	allowed, err := limiter.Allow(ctx, "trig-1", 60, 3)
	require.NoError(t, err)
	require.False(t, allowed, "fourth immediate attempt should exhaust the burst")
}

func TestRateLimiter_ZeroRateMeansUnlimited(t *testing.T) {
	client := newTestRedis(t)
	limiter := NewRateLimiter(client)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		allowed, err := limiter.Allow(ctx, "trig-unlimited", 0, 0)
		require.NoError(t, err)
		require.True(t, allowed)
	}
}

func TestDedupCache_SecondDeliveryIsSeen(t *testing.T) {
	client := newTestRedis(t)
	cache := NewDedupCache(client, time.Minute)
	ctx := context.Background()

	seen, err := cache.Seen(ctx, "wf-1", "evt-1")
	require.NoError(t, err)
	require.False(t, seen)

	seen, err = cache.Seen(ctx, "wf-1", "evt-1")
	require.NoError(t, err)
	require.True(t, seen)
}

func TestDedupCache_DifferentEventIDsAreIndependent(t *testing.T) {
	client := newTestRedis(t)
	cache := NewDedupCache(client, time.Minute)
	ctx := context.Background()

	seen1, err := cache.Seen(ctx, "wf-1", "evt-a")
	require.NoError(t, err)
	require.False(t, seen1)

	seen2, err := cache.Seen(ctx, "wf-1", "evt-b")
	require.NoError(t, err)
	require.False(t, seen2)
}

func TestDedupCache_EmptyEventIDIsNeverDeduplicated(t *testing.T) {
	client := newTestRedis(t)
	cache := NewDedupCache(client, time.Minute)
	ctx := context.Background()

	seen, err := cache.Seen(ctx, "wf-1", "")
	require.NoError(t, err)
	require.False(t, seen)
}
