// Package cache provides the non-essential lookup cache contract.
//
// The cache is a collaborator, never an authority: every operation is
// non-throwing from the caller's perspective. Failures degrade silently to
// a miss or a no-op, so replacing any implementation with Null yields the
// same observable results for every sequence of core operations.
package cache

import (
	"context"
	"time"
)

// Cache is a string key/value cache with optional TTLs.
//
// Implementations must never propagate backend errors: a failed Get is a
// miss, a failed Set or Del is a no-op, a failed MGet yields nil slots.
type Cache interface {
	// Get returns the cached value and whether it was present.
	Get(ctx context.Context, key string) (string, bool)

	// Set stores a value. ttl <= 0 means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration)

	// Del removes keys.
	Del(ctx context.Context, keys ...string)

	// MGet returns one slot per key; nil means miss.
	MGet(ctx context.Context, keys []string) []*string
}

// Null is the no-op cache. Every Get is a miss.
type Null struct{}

func (Null) Get(ctx context.Context, key string) (string, bool) { return "", false }

func (Null) Set(ctx context.Context, key, value string, ttl time.Duration) {}

func (Null) Del(ctx context.Context, keys ...string) {}

func (Null) MGet(ctx context.Context, keys []string) []*string {
	return make([]*string, len(keys))
}

// Ensure Null implements Cache.
var _ Cache = Null{}
