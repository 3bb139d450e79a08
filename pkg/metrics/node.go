package metrics

import (
	nodestore "github.com/depotfs/depotfs/pkg/store/node"
)

// NewNodeStoreMetrics creates a Prometheus-backed node store metrics
// instance for the named backend ("memory", "badger", "s3").
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewNodeStoreMetrics(backend string) nodestore.Metrics {
	if !IsEnabled() || newPrometheusNodeStoreMetrics == nil {
		return nil
	}
	return newPrometheusNodeStoreMetrics(backend)
}

// newPrometheusNodeStoreMetrics is implemented in pkg/metrics/prometheus.
var newPrometheusNodeStoreMetrics func(backend string) nodestore.Metrics

// RegisterNodeStoreMetricsConstructor registers the Prometheus node store
// metrics constructor. Called by pkg/metrics/prometheus during package init.
func RegisterNodeStoreMetricsConstructor(constructor func(backend string) nodestore.Metrics) {
	newPrometheusNodeStoreMetrics = constructor
}
