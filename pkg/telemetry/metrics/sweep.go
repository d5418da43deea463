package metrics

import (
	"time"

	"github.com/junki-kanda/AutGuardRails/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// SweepMetrics tracks metrics for the rollback sweeper.
//
// Metrics:
//   - guardrails_sweeps_total: Total sweep passes
//   - guardrails_sweep_duration_seconds: Sweep pass duration
//   - guardrails_rollbacks_total: Rollback attempts by result
//   - guardrails_approvals_expired_total: Stale approval requests expired
//   - guardrails_sweep_rows_skipped_total: Rows lost to concurrent writers
//   - guardrails_escalations_total: Rollback failure escalations raised
type SweepMetrics struct {
	// Sweep pass counter
	sweepsTotal prometheus.Counter

	// Sweep duration histogram
	sweepDuration prometheus.Histogram

	// Rollback attempts by result ("success", "failure")
	rollbacksTotal *prometheus.CounterVec

	// Stale approvals expired
	approvalsExpiredTotal prometheus.Counter

	// Rows skipped on version conflicts
	rowsSkippedTotal prometheus.Counter

	// Escalations raised
	escalationsTotal prometheus.Counter
}

// NewSweepMetrics creates and registers sweep metrics with the provided registry.
func NewSweepMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *SweepMetrics {
	sm := &SweepMetrics{
		sweepsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "sweeps_total",
				Help:      "Total number of rollback sweep passes",
			},
		),

		sweepDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "sweep_duration_seconds",
				Help:      "Duration of a rollback sweep pass in seconds",
				Buckets:   cfg.DurationBuckets,
			},
		),

		rollbacksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "rollbacks_total",
				Help:      "Total number of rollback attempts",
			},
			[]string{"result"},
		),

		approvalsExpiredTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "approvals_expired_total",
				Help:      "Total number of stale approval requests expired",
			},
		),

		rowsSkippedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "sweep_rows_skipped_total",
				Help:      "Total number of rows skipped due to concurrent updates",
			},
		),

		escalationsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "escalations_total",
				Help:      "Total number of rollback failure escalations",
			},
		),
	}

	// Register all metrics
	registry.MustRegister(
		sm.sweepsTotal,
		sm.sweepDuration,
		sm.rollbacksTotal,
		sm.approvalsExpiredTotal,
		sm.rowsSkippedTotal,
		sm.escalationsTotal,
	)

	return sm
}

// RecordSweep records the result of one sweep pass.
func (sm *SweepMetrics) RecordSweep(duration time.Duration, rolledBack, rollbackFailed, expired, skipped, escalated int) {
	sm.sweepsTotal.Inc()
	sm.sweepDuration.Observe(duration.Seconds())

	if rolledBack > 0 {
		sm.rollbacksTotal.WithLabelValues("success").Add(float64(rolledBack))
	}
	if rollbackFailed > 0 {
		sm.rollbacksTotal.WithLabelValues("failure").Add(float64(rollbackFailed))
	}
	if expired > 0 {
		sm.approvalsExpiredTotal.Add(float64(expired))
	}
	if skipped > 0 {
		sm.rowsSkippedTotal.Add(float64(skipped))
	}
	if escalated > 0 {
		sm.escalationsTotal.Add(float64(escalated))
	}
}
