package metrics

import (
	"github.com/junki-kanda/AutGuardRails/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// ExecutionMetrics tracks metrics for ledger executions and approval
// resolutions.
//
// Metrics:
//   - guardrails_executions_total: Ledger rows by policy, mode, and status
//   - guardrails_resolutions_total: Approval link resolutions by decision and result
type ExecutionMetrics struct {
	// Execution rows created or advanced
	executionsTotal *prometheus.CounterVec

	// Approval link resolutions
	resolutionsTotal *prometheus.CounterVec
}

// NewExecutionMetrics creates and registers execution metrics with the
// provided registry.
func NewExecutionMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *ExecutionMetrics {
	em := &ExecutionMetrics{
		executionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "executions_total",
				Help:      "Total number of ledger executions recorded",
			},
			[]string{"policy_id", "mode", "status"},
		),

		resolutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "resolutions_total",
				Help:      "Total number of approval link resolutions",
			},
			[]string{"decision", "result"},
		),
	}

	// Register all metrics
	registry.MustRegister(
		em.executionsTotal,
		em.resolutionsTotal,
	)

	return em
}

// RecordExecution records a ledger row created or advanced by an evaluation.
//
// Parameters:
//   - policyID: policy that produced the execution
//   - mode: policy mode ("simulate", "approve", "automatic")
//   - status: resulting execution status
func (em *ExecutionMetrics) RecordExecution(policyID, mode, status string) {
	em.executionsTotal.WithLabelValues(policyID, mode, status).Inc()
}

// RecordResolution records an approval link resolution.
//
// Parameters:
//   - decision: requested decision ("approve", "reject")
//   - result: resolution result ("executed", "rejected", "failed",
//     "already_resolved", "invalid_token")
func (em *ExecutionMetrics) RecordResolution(decision, result string) {
	em.resolutionsTotal.WithLabelValues(decision, result).Inc()
}
