package metrics

import (
	"time"
)

// HTTPMetrics is the sink for API request observations. Implementations
// must tolerate a nil receiver.
type HTTPMetrics interface {
	// ObserveRequest records one completed request against its matched
	// route pattern.
	ObserveRequest(method, route string, status int, duration time.Duration)

	// ObserveRequestSize records the request body size in bytes.
	ObserveRequestSize(method, route string, bytes int64)
}

// NewHTTPMetrics creates a Prometheus-backed HTTPMetrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewHTTPMetrics() HTTPMetrics {
	if !IsEnabled() || newPrometheusHTTPMetrics == nil {
		return nil
	}
	return newPrometheusHTTPMetrics()
}

// newPrometheusHTTPMetrics is implemented in pkg/metrics/prometheus.
var newPrometheusHTTPMetrics func() HTTPMetrics

// RegisterHTTPMetricsConstructor registers the Prometheus HTTP metrics
// constructor. Called by pkg/metrics/prometheus during package init.
func RegisterHTTPMetricsConstructor(constructor func() HTTPMetrics) {
	newPrometheusHTTPMetrics = constructor
}
