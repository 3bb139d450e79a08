// Package redis provides a Redis-backed cache implementation.
package redis

import (
	"context"
	"errors"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"github.com/depotfs/depotfs/internal/logger"
	"github.com/depotfs/depotfs/pkg/cache"
)

// Config holds configuration for the Redis cache.
type Config struct {
	// Addr is the host:port of the Redis server.
	Addr string

	// Password is optional.
	Password string

	// DB selects the Redis logical database.
	DB int

	// OpTimeout bounds every cache call. Defaults to 250ms.
	OpTimeout time.Duration
}

// Cache is a Redis-backed implementation of cache.Cache.
//
// All failures are swallowed: the caller sees a miss or a no-op, never an
// error. Failures are logged at debug level only, since a flapping cache
// must not flood the logs of an otherwise healthy server.
type Cache struct {
	client    *goredis.Client
	opTimeout time.Duration
}

// New creates a new Redis cache.
func New(config Config) *Cache {
	if config.OpTimeout <= 0 {
		config.OpTimeout = 250 * time.Millisecond
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})
	return &Cache{client: client, opTimeout: config.OpTimeout}
}

func (c *Cache) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.opTimeout)
}

// Get returns the cached value if present.
func (c *Cache) Get(ctx context.Context, key string) (string, bool) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	value, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			logger.Debug("Redis get failed, treating as miss", "key", key, "error", err)
		}
		return "", false
	}
	return value, true
}

// Set stores a value with an optional TTL.
func (c *Cache) Set(ctx context.Context, key, value string, ttl time.Duration) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if ttl < 0 {
		ttl = 0
	}
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		logger.Debug("Redis set failed, ignoring", "key", key, "error", err)
	}
}

// Del removes keys.
func (c *Cache) Del(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		logger.Debug("Redis del failed, ignoring", "keys", len(keys), "error", err)
	}
}

// MGet returns one slot per key; nil means miss.
func (c *Cache) MGet(ctx context.Context, keys []string) []*string {
	out := make([]*string, len(keys))
	if len(keys) == 0 {
		return out
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		logger.Debug("Redis mget failed, treating as misses", "keys", len(keys), "error", err)
		return out
	}
	for i, v := range values {
		if s, ok := v.(string); ok {
			value := s
			out[i] = &value
		}
	}
	return out
}

// Close closes the underlying client.
func (c *Cache) Close() error {
	return c.client.Close()
}

// Ensure Cache implements cache.Cache.
var _ cache.Cache = (*Cache)(nil)
