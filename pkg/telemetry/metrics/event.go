package metrics

import (
	"github.com/junki-kanda/AutGuardRails/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// EventMetrics tracks metrics related to cost-event ingestion.
//
// Metrics:
//   - guardrails_events_total: Total events received by source and ingest status
//   - guardrails_event_amount_usd: Distribution of reported overage amounts
type EventMetrics struct {
	// Total event count
	eventsTotal *prometheus.CounterVec

	// Reported overage amount histogram (in USD)
	amountUSD *prometheus.HistogramVec
}

// NewEventMetrics creates and registers event metrics with the provided registry.
func NewEventMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *EventMetrics {
	em := &EventMetrics{
		eventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "events_total",
				Help:      "Total number of cost events received",
			},
			[]string{"source", "status"},
		),

		amountUSD: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "event_amount_usd",
				Help:      "Reported overage amount per event in USD",
				Buckets:   cfg.AmountBuckets,
			},
			[]string{"source"},
		),
	}

	// Register all metrics
	registry.MustRegister(
		em.eventsTotal,
		em.amountUSD,
	)

	return em
}

// RecordEvent records a received cost event.
//
// Parameters:
//   - source: event source ("budget_threshold", "anomaly_detection")
//   - status: ingest status ("accepted", "invalid")
//   - amountUSD: reported overage amount; only observed for accepted events
func (em *EventMetrics) RecordEvent(source, status string, amountUSD float64) {
	em.eventsTotal.WithLabelValues(source, status).Inc()

	if status == "accepted" && amountUSD > 0 {
		em.amountUSD.WithLabelValues(source).Observe(amountUSD)
	}
}
