package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const seriesCacheKey = "ledger:balance_series"

// RedisSeriesCache stores the latest balance series in Redis so report reads
// do not re-run the engine. Entries expire; a miss falls back to recompute.
type RedisSeriesCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSeriesCache constructs the cache. A zero TTL disables expiry.
func NewRedisSeriesCache(client *redis.Client, ttl time.Duration) *RedisSeriesCache {
	return &RedisSeriesCache{client: client, ttl: ttl}
}

type cachedPoint struct {
	Date    string  `json:"date"`
	Net     float64 `json:"net"`
	Balance float64 `json:"balance"`
}

// Store replaces the cached series.
func (c *RedisSeriesCache) Store(ctx context.Context, series []BalancePoint) error {
	points := make([]cachedPoint, 0, len(series))
	for _, p := range series {
		points = append(points, cachedPoint{Date: DateKey(p.Date), Net: p.Net, Balance: p.Balance})
	}
	data, err := json.Marshal(points)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, seriesCacheKey, data, c.ttl).Err()
}

// Load returns the cached series and whether the cache held one.
func (c *RedisSeriesCache) Load(ctx context.Context) ([]BalancePoint, bool, error) {
	data, err := c.client.Get(ctx, seriesCacheKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var points []cachedPoint
	if err := json.Unmarshal(data, &points); err != nil {
		return nil, false, err
	}
	series := make([]BalancePoint, 0, len(points))
	for _, p := range points {
		day, err := parseDateKey(p.Date)
		if err != nil {
			return nil, false, err
		}
		series = append(series, BalancePoint{Date: day, Net: p.Net, Balance: p.Balance})
	}
	return series, true, nil
}

// Invalidate drops the cached series.
func (c *RedisSeriesCache) Invalidate(ctx context.Context) error {
	return c.client.Del(ctx, seriesCacheKey).Err()
}
