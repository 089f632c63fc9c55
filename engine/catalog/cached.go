package catalog

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/WessleyAI/festa/engine/domain"
)

// DefaultCacheKey is the Redis key holding the catalog snapshot.
const DefaultCacheKey = "festa:catalog:embedded"

// RedisClient is the subset of *redis.Client the cache uses.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Cached serves ListEmbedded from a Redis snapshot and refills it from the
// wrapped store on a miss. Redis failures fall through to the store.
type Cached struct {
	next   Store
	rdb    RedisClient
	key    string
	ttl    time.Duration
	logger *slog.Logger
}

// NewCached wraps next with a snapshot cache that expires after ttl.
func NewCached(next Store, rdb RedisClient, key string, ttl time.Duration, logger *slog.Logger) *Cached {
	if key == "" {
		key = DefaultCacheKey
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cached{next: next, rdb: rdb, key: key, ttl: ttl, logger: logger}
}

// ListEmbedded implements Store.
func (c *Cached) ListEmbedded(ctx context.Context) ([]domain.Event, error) {
	data, err := c.rdb.Get(ctx, c.key).Bytes()
	switch {
	case err == nil:
		var events []domain.Event
		uerr := json.Unmarshal(data, &events)
		if uerr == nil {
			return events, nil
		}
		c.logger.Warn("catalog: corrupt cache snapshot, reloading", "key", c.key, "err", uerr)
	case errors.Is(err, redis.Nil):
	default:
		c.logger.Warn("catalog: cache read failed", "key", c.key, "err", err)
	}

	events, err := c.next.ListEmbedded(ctx)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(events); err == nil {
		if err := c.rdb.Set(ctx, c.key, data, c.ttl).Err(); err != nil {
			c.logger.Warn("catalog: cache write failed", "key", c.key, "err", err)
		}
	}
	return events, nil
}

// Invalidate drops the snapshot so the next read goes to the store.
func (c *Cached) Invalidate(ctx context.Context) error {
	return c.rdb.Del(ctx, c.key).Err()
}
