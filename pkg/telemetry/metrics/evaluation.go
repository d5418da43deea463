package metrics

import (
	"time"

	"github.com/junki-kanda/AutGuardRails/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// EvaluationMetrics tracks metrics related to policy evaluation.
//
// Metrics:
//   - guardrails_evaluations_total: Total evaluations by matched policy and outcome
//   - guardrails_evaluation_duration_seconds: Evaluation duration by outcome
type EvaluationMetrics struct {
	// Total evaluations
	evaluationsTotal *prometheus.CounterVec

	// Evaluation duration histogram
	evaluationDuration *prometheus.HistogramVec
}

// NewEvaluationMetrics creates and registers evaluation metrics with the
// provided registry.
func NewEvaluationMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *EvaluationMetrics {
	em := &EvaluationMetrics{
		evaluationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "evaluations_total",
				Help:      "Total number of policy evaluations",
			},
			[]string{"policy_id", "outcome"},
		),

		evaluationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "evaluation_duration_seconds",
				Help:      "Duration of policy evaluation in seconds",
				Buckets:   cfg.DurationBuckets,
			},
			[]string{"outcome"},
		),
	}

	// Register all metrics
	registry.MustRegister(
		em.evaluationsTotal,
		em.evaluationDuration,
	)

	return em
}

// RecordEvaluation records one evaluation of an event against the policy set.
//
// Parameters:
//   - policyID: matched policy ("none" when nothing matched)
//   - outcome: evaluation outcome ("no_match", "simulated", "pending_approval",
//     "executed", "failed", "duplicate")
//   - duration: end-to-end evaluation duration, including any IAM calls
func (em *EvaluationMetrics) RecordEvaluation(policyID, outcome string, duration time.Duration) {
	em.evaluationsTotal.WithLabelValues(policyID, outcome).Inc()
	em.evaluationDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}
