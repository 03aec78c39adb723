package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *RedisSeriesCache {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisSeriesCache(client, time.Hour)
}

func TestRedisSeriesCacheRoundTrip(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	series := []BalancePoint{
		{Date: day("2024-01-10"), Net: -176.37, Balance: -419.67},
		{Date: day("2024-01-11"), Net: 50, Balance: -369.67},
	}
	require.NoError(t, cache.Store(ctx, series))

	loaded, ok, err := cache.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, series, loaded)
}

func TestRedisSeriesCacheMiss(t *testing.T) {
	cache := newTestCache(t)

	_, ok, err := cache.Load(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRedisSeriesCacheInvalidate(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Store(ctx, []BalancePoint{{Date: day("2024-01-10"), Net: 1, Balance: 1}}))
	require.NoError(t, cache.Invalidate(ctx))

	_, ok, err := cache.Load(ctx)
	require.NoError(t, err)
	require.False(t, ok)
}
