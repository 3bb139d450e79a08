package node

import (
	"context"
	"errors"
	"time"

	"github.com/depotfs/depotfs/pkg/cas"
)

// Metrics is the sink for node store observations. Implementations must
// tolerate a nil receiver.
type Metrics interface {
	// ObserveGet records one read. found is false for ErrNodeNotFound.
	ObserveGet(bytes int64, duration time.Duration, found bool)

	// ObservePut records one write.
	ObservePut(bytes int64, duration time.Duration)

	// ObserveHas records one existence probe.
	ObserveHas(duration time.Duration)
}

// Instrumented wraps a store and reports every operation to a Metrics
// sink. A nil sink passes through unobserved.
type Instrumented struct {
	inner   Store
	metrics Metrics
}

// NewInstrumented wraps inner with metric reporting.
func NewInstrumented(inner Store, m Metrics) *Instrumented {
	return &Instrumented{inner: inner, metrics: m}
}

func (s *Instrumented) Put(ctx context.Context, key cas.Key, raw []byte) error {
	start := time.Now()
	err := s.inner.Put(ctx, key, raw)
	if s.metrics != nil && err == nil {
		s.metrics.ObservePut(int64(len(raw)), time.Since(start))
	}
	return err
}

func (s *Instrumented) Get(ctx context.Context, key cas.Key) ([]byte, error) {
	start := time.Now()
	raw, err := s.inner.Get(ctx, key)
	if s.metrics != nil {
		s.metrics.ObserveGet(int64(len(raw)), time.Since(start), !errors.Is(err, ErrNodeNotFound))
	}
	return raw, err
}

func (s *Instrumented) Has(ctx context.Context, key cas.Key) (bool, error) {
	start := time.Now()
	ok, err := s.inner.Has(ctx, key)
	if s.metrics != nil {
		s.metrics.ObserveHas(time.Since(start))
	}
	return ok, err
}

func (s *Instrumented) Close() error { return s.inner.Close() }

func (s *Instrumented) HealthCheck(ctx context.Context) error {
	return s.inner.HealthCheck(ctx)
}

// Ensure Instrumented implements Store.
var _ Store = (*Instrumented)(nil)
