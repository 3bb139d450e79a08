package prometheus

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/depotfs/depotfs/pkg/metrics"
)

func init() {
	metrics.RegisterHTTPMetricsConstructor(newHTTPMetrics)
}

// httpMetrics is the Prometheus implementation of metrics.HTTPMetrics.
type httpMetrics struct {
	requests     *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	requestBytes *prometheus.HistogramVec
	inFlight     prometheus.Gauge
}

func newHTTPMetrics() metrics.HTTPMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &httpMetrics{
		requests: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "depotfs_http_requests_total",
				Help: "Total number of API requests by method, route and status",
			},
			[]string{"method", "route", "status"},
		),
		duration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "depotfs_http_request_duration_milliseconds",
				Help: "Duration of API requests in milliseconds",
				Buckets: []float64{
					1,
					5,
					10,
					25,
					50,
					100,
					250,
					500,
					1000,
					5000,
				},
			},
			[]string{"method", "route"},
		),
		requestBytes: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "depotfs_http_request_size_bytes",
				Help:    "Distribution of API request body sizes",
				Buckets: nodeSizeBuckets,
			},
			[]string{"method", "route"},
		),
		inFlight: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "depotfs_http_requests_in_flight",
				Help: "Current number of API requests being served",
			},
		),
	}
}

func (m *httpMetrics) ObserveRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(method, route).Observe(duration.Seconds() * 1000)
}

func (m *httpMetrics) ObserveRequestSize(method, route string, bytes int64) {
	if m == nil {
		return
	}

	if bytes > 0 {
		m.requestBytes.WithLabelValues(method, route).Observe(float64(bytes))
	}
}
