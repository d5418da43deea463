// Package metrics provides Prometheus metrics collection for the guardrails
// controller.
//
// # Overview
//
// The metrics package implements Prometheus metrics for monitoring cost-event
// ingestion, policy evaluation, guardrail executions, approval resolutions,
// and rollback sweeps. All metrics share one registry and one namespace
// (default "guardrails").
//
// # Metrics Categories
//
//   - Event Metrics: Events received and overage amount distribution
//   - Evaluation Metrics: Evaluation count and duration by outcome
//   - Execution Metrics: Ledger rows by policy/mode/status, approval resolutions
//   - Sweep Metrics: Sweep passes, rollbacks, expirations, escalations
//   - Request Metrics: HTTP request count and duration for the server surface
//
// # Usage
//
//	// Create collector
//	collector := metrics.NewCollector(config, registry)
//
//	// Record an ingested event
//	collector.RecordEvent("budget_threshold", "accepted", 1450.00)
//
//	// Record an evaluation
//	collector.RecordEvaluation("ec2-spike", "executed", 800*time.Millisecond)
//
//	// Record a sweep pass
//	collector.RecordSweep(120*time.Millisecond, 2, 0, 1, 0, 0)
//
// # Custom Histogram Buckets
//
// Histogram buckets come from MetricsConfig and default to values sized for
// cost-guardrail workloads:
//
//	Event Amounts (USD): 10, 50, 100, 500, 1K, 5K, 10K, 50K
//	Durations (seconds): 1ms to 30s (evaluation includes IAM round trips)
//
// # Prometheus Endpoint
//
// All metrics are exposed on the /metrics endpoint in standard Prometheus format:
//
//	# HELP guardrails_evaluations_total Total number of policy evaluations
//	# TYPE guardrails_evaluations_total counter
//	guardrails_evaluations_total{policy_id="ec2-spike",outcome="executed"} 12
//
// # Cardinality Management
//
// Label sets that carry policy IDs pass through a cardinality limiter
// (maximum 10,000 unique combinations); past the limit the policy label is
// aggregated into "other".
package metrics
