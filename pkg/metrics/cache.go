package metrics

import (
	"github.com/depotfs/depotfs/pkg/cache"
)

// NewCacheMetrics creates a Prometheus-backed cache.Metrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
// A nil sink passed to cache.NewInstrumented results in zero overhead.
func NewCacheMetrics() cache.Metrics {
	if !IsEnabled() || newPrometheusCacheMetrics == nil {
		return nil
	}
	return newPrometheusCacheMetrics()
}

// newPrometheusCacheMetrics is implemented in pkg/metrics/prometheus.
// The indirection avoids an import cycle between this package and the
// implementation package, which needs GetRegistry.
var newPrometheusCacheMetrics func() cache.Metrics

// RegisterCacheMetricsConstructor registers the Prometheus cache metrics
// constructor. Called by pkg/metrics/prometheus during package init.
func RegisterCacheMetricsConstructor(constructor func() cache.Metrics) {
	newPrometheusCacheMetrics = constructor
}
