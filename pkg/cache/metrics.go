package cache

import (
	"context"
	"time"
)

// Metrics is the sink for cache operation observations. Implementations
// must tolerate a nil receiver so a disabled deployment costs nothing.
type Metrics interface {
	// ObserveGet records one lookup and whether it hit.
	ObserveGet(hit bool, duration time.Duration)

	// ObserveSet records one write.
	ObserveSet(duration time.Duration)

	// ObserveDel records one delete of n keys.
	ObserveDel(n int, duration time.Duration)
}

// Instrumented wraps a cache and reports every operation to a Metrics
// sink. A nil sink passes through unobserved.
type Instrumented struct {
	inner   Cache
	metrics Metrics
}

// NewInstrumented wraps inner with metric reporting.
func NewInstrumented(inner Cache, m Metrics) *Instrumented {
	return &Instrumented{inner: inner, metrics: m}
}

func (c *Instrumented) Get(ctx context.Context, key string) (string, bool) {
	start := time.Now()
	value, ok := c.inner.Get(ctx, key)
	if c.metrics != nil {
		c.metrics.ObserveGet(ok, time.Since(start))
	}
	return value, ok
}

func (c *Instrumented) Set(ctx context.Context, key, value string, ttl time.Duration) {
	start := time.Now()
	c.inner.Set(ctx, key, value, ttl)
	if c.metrics != nil {
		c.metrics.ObserveSet(time.Since(start))
	}
}

func (c *Instrumented) Del(ctx context.Context, keys ...string) {
	start := time.Now()
	c.inner.Del(ctx, keys...)
	if c.metrics != nil {
		c.metrics.ObserveDel(len(keys), time.Since(start))
	}
}

func (c *Instrumented) MGet(ctx context.Context, keys []string) []*string {
	start := time.Now()
	slots := c.inner.MGet(ctx, keys)
	if c.metrics != nil {
		duration := time.Since(start)
		for _, slot := range slots {
			c.metrics.ObserveGet(slot != nil, duration)
		}
	}
	return slots
}

// Ensure Instrumented implements Cache.
var _ Cache = (*Instrumented)(nil)
