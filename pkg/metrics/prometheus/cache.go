// Package prometheus holds the Prometheus-backed implementations of the
// metric sinks declared across the repository. Importing this package
// registers its constructors with pkg/metrics.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/depotfs/depotfs/pkg/cache"
	"github.com/depotfs/depotfs/pkg/metrics"
)

func init() {
	metrics.RegisterCacheMetricsConstructor(newCacheMetrics)
}

// cacheMetrics is the Prometheus implementation of cache.Metrics.
type cacheMetrics struct {
	lookups     *prometheus.CounterVec
	getDuration prometheus.Histogram
	setDuration prometheus.Histogram
	deletes     prometheus.Counter
}

func newCacheMetrics() cache.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &cacheMetrics{
		lookups: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "depotfs_cache_lookups_total",
				Help: "Total number of cache lookups by outcome",
			},
			[]string{"outcome"}, // "hit", "miss"
		),
		getDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name: "depotfs_cache_get_duration_milliseconds",
				Help: "Duration of cache lookups in milliseconds",
				Buckets: []float64{
					0.1, // 100us - in-process cache
					0.5,
					1, // 1ms - Redis round trip
					5,
					10,
					50,
					100,
					250, // operation timeout ceiling
				},
			},
		),
		setDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name: "depotfs_cache_set_duration_milliseconds",
				Help: "Duration of cache writes in milliseconds",
				Buckets: []float64{
					0.1,
					0.5,
					1,
					5,
					10,
					50,
					100,
					250,
				},
			},
		),
		deletes: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "depotfs_cache_deletes_total",
				Help: "Total number of cache keys deleted",
			},
		),
	}
}

func (m *cacheMetrics) ObserveGet(hit bool, duration time.Duration) {
	if m == nil {
		return
	}

	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.lookups.WithLabelValues(outcome).Inc()
	m.getDuration.Observe(duration.Seconds() * 1000)
}

func (m *cacheMetrics) ObserveSet(duration time.Duration) {
	if m == nil {
		return
	}

	m.setDuration.Observe(duration.Seconds() * 1000)
}

func (m *cacheMetrics) ObserveDel(n int, duration time.Duration) {
	if m == nil {
		return
	}

	m.deletes.Add(float64(n))
}
