// Package memory provides an in-process TTL cache implementation.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/depotfs/depotfs/pkg/cache"
)

type entry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

// Cache is an in-memory implementation of cache.Cache with lazy expiry.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	now     func() time.Time
}

// New creates a new in-memory cache.
func New() *Cache {
	return &Cache{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

func (c *Cache) lookup(key string) (string, bool) {
	e, ok := c.entries[key]
	if !ok {
		return "", false
	}
	if !e.expiresAt.IsZero() && c.now().After(e.expiresAt) {
		return "", false
	}
	return e.value, true
}

// Get returns the cached value if present and not expired.
func (c *Cache) Get(ctx context.Context, key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lookup(key)
}

// Set stores a value with an optional TTL.
func (c *Cache) Set(ctx context.Context, key, value string, ttl time.Duration) {
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = c.now().Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{value: value, expiresAt: expiresAt}
}

// Del removes keys.
func (c *Cache) Del(ctx context.Context, keys ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		delete(c.entries, key)
	}
}

// MGet returns one slot per key; nil means miss.
func (c *Cache) MGet(ctx context.Context, keys []string) []*string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*string, len(keys))
	for i, key := range keys {
		if value, ok := c.lookup(key); ok {
			v := value
			out[i] = &v
		}
	}
	return out
}

// Ensure Cache implements cache.Cache.
var _ cache.Cache = (*Cache)(nil)
