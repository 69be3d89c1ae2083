package capacity

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/clinic-frontdesk/pkg/logging"
)

// missing marks a cached absence so lookups of unset keys also skip the database.
const missing = "none"

// CachedStore is a read-through Redis cache in front of another Store.
// Writes go to the backing store first and then invalidate the cached key.
type CachedStore struct {
	next   Store
	redis  *redis.Client
	ttl    time.Duration
	logger *logging.Logger
}

// NewCachedStore wraps next with a Redis cache.
func NewCachedStore(next Store, client *redis.Client, ttl time.Duration, logger *logging.Logger) *CachedStore {
	if next == nil || client == nil {
		panic("capacity: backing store and redis client required")
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &CachedStore{next: next, redis: client, ttl: ttl, logger: logger}
}

func (c *CachedStore) cacheKey(key string) string {
	return "capacity:entry:" + key
}

func (c *CachedStore) Get(ctx context.Context, key string) (int, error) {
	raw, err := c.redis.Get(ctx, c.cacheKey(key)).Result()
	switch {
	case err == nil:
		if raw == missing {
			return 0, ErrNotFound
		}
		if capacity, convErr := strconv.Atoi(raw); convErr == nil {
			return capacity, nil
		}
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("capacity cache read failed", "key", key, "error", err)
		return c.next.Get(ctx, key)
	}

	capacity, err := c.next.Get(ctx, key)
	value := strconv.Itoa(capacity)
	if errors.Is(err, ErrNotFound) {
		value = missing
	} else if err != nil {
		return 0, err
	}
	if setErr := c.redis.Set(ctx, c.cacheKey(key), value, c.ttl).Err(); setErr != nil {
		c.logger.Warn("capacity cache write failed", "key", key, "error", setErr)
	}
	return capacity, err
}

func (c *CachedStore) Set(ctx context.Context, key string, capacity int) error {
	if err := c.next.Set(ctx, key, capacity); err != nil {
		return err
	}
	c.invalidate(ctx, key)
	return nil
}

func (c *CachedStore) Delete(ctx context.Context, key string) error {
	if err := c.next.Delete(ctx, key); err != nil {
		return err
	}
	c.invalidate(ctx, key)
	return nil
}

func (c *CachedStore) List(ctx context.Context) ([]Entry, error) {
	return c.next.List(ctx)
}

func (c *CachedStore) invalidate(ctx context.Context, key string) {
	if err := c.redis.Del(ctx, c.cacheKey(key)).Err(); err != nil {
		c.logger.Warn("capacity cache invalidate failed", "key", key, "error", err)
	}
}
