package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/html-librarian/mig-catalog/internal/client"
	"github.com/html-librarian/mig-catalog/internal/config"
	"github.com/html-librarian/mig-catalog/internal/util"
)

// Cache is an explicit cache-aside helper over Redis. Values are stored as
// JSON. A cache outage is never fatal: misses and store errors fall through
// to the loader so reads keep working without Redis.
type Cache struct {
	client *client.RedisClient
	cfg    config.CacheConfig
	logger *zap.Logger
}

func NewCache(redisClient *client.RedisClient, cfg config.CacheConfig, logger *zap.Logger) *Cache {
	return &Cache{
		client: redisClient,
		cfg:    cfg,
		logger: logger,
	}
}

// GetOrLoad fills dest from cache when present, otherwise calls loader,
// stores the result under key and fills dest from it. A zero ttl uses the
// configured default.
func (c *Cache) GetOrLoad(ctx context.Context, key string, ttl time.Duration, dest interface{}, loader func(ctx context.Context) (interface{}, error)) error {
	if c.enabled() {
		cached, err := c.client.Get(ctx, key)
		switch {
		case err == nil:
			if err := json.Unmarshal([]byte(cached), dest); err == nil {
				return nil
			}
			// Unreadable entry, drop it and reload.
			if delErr := c.client.Del(ctx, key); delErr != nil {
				c.logger.Warn("failed to drop corrupt cache entry",
					util.String("key", key), util.ErrorField(delErr))
			}
		case errors.Is(err, client.ErrKeyNotFound):
			// miss
		default:
			c.logger.Warn("cache read failed, falling through to loader",
				util.String("key", key), util.ErrorField(err))
		}
	}

	value, err := loader(ctx)
	if err != nil {
		return err
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}

	if c.enabled() {
		if ttl <= 0 {
			ttl = c.cfg.DefaultTTL
		}
		if err := c.client.Set(ctx, key, string(data), ttl); err != nil {
			c.logger.Warn("cache write failed",
				util.String("key", key), util.ErrorField(err))
		}
	}

	return json.Unmarshal(data, dest)
}

// Invalidate removes a single cache entry.
func (c *Cache) Invalidate(ctx context.Context, key string) error {
	if !c.enabled() {
		return nil
	}
	return c.client.Del(ctx, key)
}

// InvalidatePrefix removes every entry whose key starts with prefix. Used
// after writes to drop stale list and detail entries together.
func (c *Cache) InvalidatePrefix(ctx context.Context, prefix string) error {
	if !c.enabled() {
		return nil
	}

	deleted, err := c.client.DeleteByPattern(ctx, prefix+"*")
	if err != nil {
		return fmt.Errorf("failed to invalidate cache prefix %q: %w", prefix, err)
	}
	if deleted > 0 {
		c.logger.Debug("cache entries invalidated",
			util.String("prefix", prefix), util.Int("count", deleted))
	}
	return nil
}

func (c *Cache) enabled() bool {
	return c.cfg.Enabled && c.client != nil
}
