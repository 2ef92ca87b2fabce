package metrics

import (
	"context"
	"strconv"
	"time"
)

// Recorder fans each observation out to Prometheus, Sentry and CloudWatch
type Recorder struct {
	cloudwatch *Client
	sentry     *SentryMetrics
}

// NewRecorder creates a recorder. A nil CloudWatch client disables that sink.
func NewRecorder(cw *Client, sentryMetrics *SentryMetrics) *Recorder {
	if cw == nil {
		cw = &Client{enabled: false}
	}
	if sentryMetrics == nil {
		sentryMetrics = &SentryMetrics{enabled: false}
	}
	return &Recorder{cloudwatch: cw, sentry: sentryMetrics}
}

// ObserveRender records one render call
func (r *Recorder) ObserveRender(role string, d time.Duration, outcome string) {
	rendersTotal.WithLabelValues(role, outcome).Inc()
	renderDuration.WithLabelValues(role).Observe(d.Seconds())
	r.cloudwatch.RecordRender(role, outcome, d)
}

// ObserveBatch records one generated batch
func (r *Recorder) ObserveBatch(ctx context.Context, sessionID string, cells, padded int) {
	batchesTotal.Inc()
	paddedCells.Observe(float64(padded))
	r.sentry.RecordBatch(ctx, sessionID, cells, padded)
	r.cloudwatch.RecordBatch(padded)
}

// ObserveAPIRequest records one HTTP request against a route template
func (r *Recorder) ObserveAPIRequest(ctx context.Context, method, route string, status int, d time.Duration) {
	httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
	r.sentry.RecordAPIRequest(ctx, route, status, d)
	r.cloudwatch.RecordAPIRequest(route, status, d)
}

// SessionOpened increments the live session gauge
func (r *Recorder) SessionOpened() {
	activeSessions.Inc()
}

// SessionClosed decrements the live session gauge
func (r *Recorder) SessionClosed() {
	activeSessions.Dec()
}
