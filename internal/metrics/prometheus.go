package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// rendersTotal counts render calls by cell role and outcome
	rendersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "explorer_renders_total",
		Help: "Total render calls by role and outcome",
	}, []string{"role", "outcome"})

	// renderDuration tracks backend render latency
	renderDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "explorer_render_duration_seconds",
		Help:    "Render call duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 10), // 250ms to ~2min
	}, []string{"role"})

	// batchesTotal counts generated batches
	batchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "explorer_batches_total",
		Help: "Total variation batches generated",
	})

	// paddedCells tracks how many cells per batch came from the fallback fill
	paddedCells = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "explorer_batch_padded_cells",
		Help:    "Fallback cells per batch",
		Buckets: []float64{0, 1, 2, 4, 6, 8},
	})

	// activeSessions is the number of live exploration sessions
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "explorer_active_sessions",
		Help: "Live exploration sessions",
	})

	// httpRequests counts API requests by route and status class
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "explorer_http_requests_total",
		Help: "Total HTTP requests by method, route and status",
	}, []string{"method", "route", "status"})

	// httpDuration tracks API latency
	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "explorer_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
)

// PrometheusHandler serves the default registry
func PrometheusHandler() http.Handler {
	return promhttp.Handler()
}
