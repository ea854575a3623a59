package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/trogers1052/position-exit-signals/internal/metrics"
	"github.com/trogers1052/position-exit-signals/internal/models"
)

// DefaultCacheTTL keeps daily bars for the length of a typical session
const DefaultCacheTTL = 5 * time.Minute

// Cached is a Redis read-through cache in front of a Provider. Redis
// failures are logged and bypassed; errors from the provider are not cached.
type Cached struct {
	rdb     redis.Cmdable
	next    Provider
	ttl     time.Duration
	metrics *metrics.Metrics
}

// NewCached wraps next with a cache; m may be nil
func NewCached(rdb redis.Cmdable, next Provider, ttl time.Duration, m *metrics.Metrics) *Cached {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cached{rdb: rdb, next: next, ttl: ttl, metrics: m}
}

func cacheKey(ticker string, lookback int) string {
	return fmt.Sprintf("prices:%s:%d", ticker, lookback)
}

// GetDailyHistory implements Provider
func (c *Cached) GetDailyHistory(ctx context.Context, ticker string, lookback int) ([]models.PriceBar, error) {
	key := cacheKey(ticker, lookback)

	data, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var bars []models.PriceBar
		if jerr := json.Unmarshal(data, &bars); jerr == nil {
			c.metrics.ObserveCache("hit")
			return bars, nil
		}
		log.Warn().Str("key", key).Msg("Discarding undecodable cached price history")
		c.metrics.ObserveCache("error")
	case errors.Is(err, redis.Nil):
		c.metrics.ObserveCache("miss")
	default:
		log.Warn().Err(err).Str("key", key).Msg("Price cache read failed")
		c.metrics.ObserveCache("error")
	}

	bars, err := c.next.GetDailyHistory(ctx, ticker, lookback)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(bars)
	if err != nil {
		return bars, nil
	}
	if err := c.rdb.Set(ctx, key, string(payload), c.ttl).Err(); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Price cache write failed")
	}
	return bars, nil
}

// Invalidate drops every cached lookback for a ticker
func (c *Cached) Invalidate(ctx context.Context, ticker string) error {
	iter := c.rdb.Scan(ctx, 0, fmt.Sprintf("prices:%s:*", ticker), 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan cache keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete cache keys: %w", err)
	}
	return nil
}
