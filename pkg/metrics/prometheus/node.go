package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/depotfs/depotfs/pkg/metrics"
	nodestore "github.com/depotfs/depotfs/pkg/store/node"
)

func init() {
	metrics.RegisterNodeStoreMetricsConstructor(newNodeStoreMetrics)
}

// nodeStoreMetrics is the Prometheus implementation of node.Metrics.
type nodeStoreMetrics struct {
	backend string

	reads        *prometheus.CounterVec
	readBytes    *prometheus.HistogramVec
	readDuration *prometheus.HistogramVec

	writes        *prometheus.CounterVec
	writeBytes    *prometheus.HistogramVec
	writeDuration *prometheus.HistogramVec

	probes *prometheus.HistogramVec
}

// nodeSizeBuckets covers the node spectrum from a bare header up to the
// default node limit.
var nodeSizeBuckets = []float64{
	64,      // empty-ish nodes
	256,     // small dicts
	1024,    // 1KB
	16384,   // 16KB
	65536,   // 64KB
	262144,  // 256KB
	1048576, // 1MB
	4194304, // 4MB - default node limit
}

var storeDurationBuckets = []float64{
	0.1, // 100us - memory
	0.5,
	1, // 1ms - Badger
	5,
	10,
	50, // S3 round trip
	100,
	500,
	1000,
}

func newNodeStoreMetrics(backend string) nodestore.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &nodeStoreMetrics{
		backend: backend,
		reads: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "depotfs_nodestore_reads_total",
				Help: "Total number of node reads by backend and outcome",
			},
			[]string{"backend", "outcome"}, // outcome: "found", "missing"
		),
		readBytes: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "depotfs_nodestore_read_bytes",
				Help:    "Distribution of node bytes read",
				Buckets: nodeSizeBuckets,
			},
			[]string{"backend"},
		),
		readDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "depotfs_nodestore_read_duration_milliseconds",
				Help:    "Duration of node reads in milliseconds",
				Buckets: storeDurationBuckets,
			},
			[]string{"backend"},
		),
		writes: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "depotfs_nodestore_writes_total",
				Help: "Total number of node writes by backend",
			},
			[]string{"backend"},
		),
		writeBytes: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "depotfs_nodestore_write_bytes",
				Help:    "Distribution of node bytes written",
				Buckets: nodeSizeBuckets,
			},
			[]string{"backend"},
		),
		writeDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "depotfs_nodestore_write_duration_milliseconds",
				Help:    "Duration of node writes in milliseconds",
				Buckets: storeDurationBuckets,
			},
			[]string{"backend"},
		),
		probes: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "depotfs_nodestore_probe_duration_milliseconds",
				Help:    "Duration of node existence probes in milliseconds",
				Buckets: storeDurationBuckets,
			},
			[]string{"backend"},
		),
	}
}

func (m *nodeStoreMetrics) ObserveGet(bytes int64, duration time.Duration, found bool) {
	if m == nil {
		return
	}

	outcome := "missing"
	if found {
		outcome = "found"
	}
	m.reads.WithLabelValues(m.backend, outcome).Inc()
	m.readDuration.WithLabelValues(m.backend).Observe(duration.Seconds() * 1000)
	if bytes > 0 {
		m.readBytes.WithLabelValues(m.backend).Observe(float64(bytes))
	}
}

func (m *nodeStoreMetrics) ObservePut(bytes int64, duration time.Duration) {
	if m == nil {
		return
	}

	m.writes.WithLabelValues(m.backend).Inc()
	m.writeDuration.WithLabelValues(m.backend).Observe(duration.Seconds() * 1000)
	if bytes > 0 {
		m.writeBytes.WithLabelValues(m.backend).Observe(float64(bytes))
	}
}

func (m *nodeStoreMetrics) ObserveHas(duration time.Duration) {
	if m == nil {
		return
	}

	m.probes.WithLabelValues(m.backend).Observe(duration.Seconds() * 1000)
}
