package metrics

import (
	"time"

	"github.com/junki-kanda/AutGuardRails/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// RequestMetrics tracks metrics for the HTTP surface.
//
// Metrics:
//   - guardrails_http_requests_total: Total HTTP requests by method, path, status
//   - guardrails_http_request_duration_seconds: Request duration histogram
type RequestMetrics struct {
	// Total request count
	requestsTotal *prometheus.CounterVec

	// Request duration histogram
	requestDuration *prometheus.HistogramVec
}

// NewRequestMetrics creates and registers request metrics with the provided registry.
func NewRequestMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *RequestMetrics {
	rm := &RequestMetrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests served",
			},
			[]string{"method", "path", "status"},
		),

		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds",
				Buckets:   cfg.DurationBuckets,
			},
			[]string{"method", "path"},
		),
	}

	// Register all metrics
	registry.MustRegister(
		rm.requestsTotal,
		rm.requestDuration,
	)

	return rm
}

// RecordRequest records a completed HTTP request.
//
// Parameters:
//   - method: HTTP method
//   - path: mounted route pattern, not the raw URL
//   - status: response status code as a string
//   - duration: request duration
func (rm *RequestMetrics) RecordRequest(method, path, status string, duration time.Duration) {
	rm.requestsTotal.WithLabelValues(method, path, status).Inc()
	rm.requestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}
