package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
)

const (
	// HTTP status code threshold for considering a request successful
	successStatusCodeThreshold = http.StatusBadRequest
)

// SentryMetrics records spans for Sentry performance monitoring
type SentryMetrics struct {
	enabled bool
}

// NewSentryMetrics creates a new Sentry metrics client. It records nothing
// unless enabled, which callers set when a Sentry DSN is configured.
func NewSentryMetrics(enabled bool) *SentryMetrics {
	return &SentryMetrics{enabled: enabled}
}

// Enabled reports whether spans are recorded
func (m *SentryMetrics) Enabled() bool {
	return m != nil && m.enabled
}

// RecordAPIRequest records API request metrics
func (m *SentryMetrics) RecordAPIRequest(ctx context.Context, endpoint string, statusCode int, duration time.Duration) {
	if !m.Enabled() {
		return
	}

	span := sentry.StartSpan(ctx, "api.request")
	defer span.Finish()

	span.SetTag("endpoint", endpoint)
	span.SetTag("status_code", fmt.Sprintf("%d", statusCode))
	span.SetData("duration_ms", duration.Milliseconds())

	if statusCode < successStatusCodeThreshold {
		span.Status = sentry.SpanStatusOK
	} else {
		span.Status = sentry.SpanStatusInternalError
	}
	span.Description = fmt.Sprintf("API Request: %s", endpoint)
}

// RecordBatch records one generated batch and how much of it was padding
func (m *SentryMetrics) RecordBatch(ctx context.Context, sessionID string, cells, padded int) {
	if !m.Enabled() {
		return
	}

	span := sentry.StartSpan(ctx, "explore.batch")
	defer span.Finish()

	span.SetTag("session_id", sessionID)
	span.SetData("cells", cells)
	span.SetData("padded", padded)
	span.Status = sentry.SpanStatusOK
	span.Description = fmt.Sprintf("Batch: %d cells, %d padded", cells, padded)
}
