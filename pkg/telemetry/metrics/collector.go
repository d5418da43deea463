package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/junki-kanda/AutGuardRails/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector is the main orchestrator for all Prometheus metrics in the
// guardrails controller. It manages metric registration and provides a
// unified interface for recording metrics across all components.
//
// Every Record* method is a no-op while metrics are disabled, so callers can
// hold a collector unconditionally. Policy IDs come from operator-written
// files, so label sets that include them pass through a cardinality limiter.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	// Event ingestion metrics
	eventMetrics *EventMetrics

	// Policy evaluation metrics
	evaluationMetrics *EvaluationMetrics

	// Execution and approval resolution metrics
	executionMetrics *ExecutionMetrics

	// Rollback sweep metrics
	sweepMetrics *SweepMetrics

	// HTTP request metrics
	requestMetrics *RequestMetrics

	// Cardinality tracking
	cardinalityLimiter *CardinalityLimiter
}

// NewCollector creates a new metrics collector with the specified configuration
// and Prometheus registry. If registry is nil, a fresh registry is used.
//
// Example:
//
//	cfg := &config.MetricsConfig{
//		Enabled:   true,
//		Namespace: "guardrails",
//	}
//	collector := metrics.NewCollector(cfg, nil)
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	// Set defaults if not specified
	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsNamespace
	}
	if len(cfg.AmountBuckets) == 0 {
		cfg.AmountBuckets = config.DefaultAmountBuckets
	}
	if len(cfg.DurationBuckets) == 0 {
		cfg.DurationBuckets = config.DefaultDurationBuckets
	}

	c := &Collector{
		config:             cfg,
		registry:           registry,
		cardinalityLimiter: NewCardinalityLimiter(10000), // Max 10K unique label sets
	}

	// Initialize metric subsystems
	c.eventMetrics = NewEventMetrics(cfg, registry)
	c.evaluationMetrics = NewEvaluationMetrics(cfg, registry)
	c.executionMetrics = NewExecutionMetrics(cfg, registry)
	c.sweepMetrics = NewSweepMetrics(cfg, registry)
	c.requestMetrics = NewRequestMetrics(cfg, registry)

	return c
}

// RecordEvent records an ingested cost event.
//
// Parameters:
//   - source: event source ("budget_threshold", "anomaly_detection")
//   - status: ingest status ("accepted", "invalid")
//   - amountUSD: reported overage amount in USD
func (c *Collector) RecordEvent(source, status string, amountUSD float64) {
	if !c.config.Enabled {
		return
	}

	c.eventMetrics.RecordEvent(source, status, amountUSD)
}

// RecordEvaluation records the outcome of evaluating one event against the
// policy set.
//
// Parameters:
//   - policyID: matched policy identifier, or "" when no policy matched
//   - outcome: evaluation outcome ("no_match", "simulated", "pending_approval",
//     "executed", "failed", "duplicate")
//   - duration: end-to-end evaluation duration
func (c *Collector) RecordEvaluation(policyID, outcome string, duration time.Duration) {
	if !c.config.Enabled {
		return
	}

	if policyID == "" {
		policyID = "none"
	}

	// Check cardinality limit
	labelSet := fmt.Sprintf("evaluation:%s:%s", policyID, outcome)
	if !c.cardinalityLimiter.Allow(labelSet) {
		// Aggregate into "other" to prevent cardinality explosion
		policyID = "other"
	}

	c.evaluationMetrics.RecordEvaluation(policyID, outcome, duration)
}

// RecordExecution records a ledger row created or advanced by an evaluation.
//
// Parameters:
//   - policyID: policy that produced the execution
//   - mode: policy mode ("simulate", "approve", "automatic")
//   - status: execution status after the evaluation ("planned", "executed",
//     "failed", ...)
func (c *Collector) RecordExecution(policyID, mode, status string) {
	if !c.config.Enabled {
		return
	}

	labelSet := fmt.Sprintf("execution:%s:%s:%s", policyID, mode, status)
	if !c.cardinalityLimiter.Allow(labelSet) {
		policyID = "other"
	}

	c.executionMetrics.RecordExecution(policyID, mode, status)
}

// RecordResolution records an approval link resolution.
//
// Parameters:
//   - decision: requested decision ("approve", "reject")
//   - result: resolution result ("executed", "rejected", "failed",
//     "already_resolved", "invalid_token")
func (c *Collector) RecordResolution(decision, result string) {
	if !c.config.Enabled {
		return
	}

	c.executionMetrics.RecordResolution(decision, result)
}

// RecordSweep records one rollback sweep pass.
//
// Parameters:
//   - duration: wall-clock duration of the sweep
//   - rolledBack: expired executions reverted successfully
//   - rollbackFailed: expired executions whose revert failed
//   - expired: stale approval requests marked expired
//   - skipped: rows lost to concurrent writers
//   - escalated: failure escalations raised
func (c *Collector) RecordSweep(duration time.Duration, rolledBack, rollbackFailed, expired, skipped, escalated int) {
	if !c.config.Enabled {
		return
	}

	c.sweepMetrics.RecordSweep(duration, rolledBack, rollbackFailed, expired, skipped, escalated)
}

// RecordHTTPRequest records a completed HTTP request.
//
// Parameters:
//   - method: HTTP method
//   - path: request route (use the mounted pattern, not the raw URL)
//   - status: response status code as a string
//   - duration: request duration
func (c *Collector) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if !c.config.Enabled {
		return
	}

	c.requestMetrics.RecordRequest(method, path, status, duration)
}

// Registry returns the Prometheus registry used by this collector.
// This can be used to create an HTTP handler for the /metrics endpoint:
//
//	http.Handle("/metrics", promhttp.HandlerFor(
//		collector.Registry(),
//		promhttp.HandlerOpts{},
//	))
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// CardinalityLimiter prevents metric cardinality explosion by limiting
// the number of unique label combinations per metric.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a new cardinality limiter with the specified
// maximum cardinality.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow checks if a label set is allowed. Returns true if the label set
// already exists or if we haven't reached the cardinality limit yet.
// Returns false if adding this label set would exceed the limit.
func (cl *CardinalityLimiter) Allow(labelSet string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[labelSet]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	// Double-check after acquiring write lock
	if _, exists := cl.current[labelSet]; exists {
		return true
	}

	if len(cl.current) >= cl.maxCardinality {
		return false
	}

	cl.current[labelSet] = struct{}{}
	return true
}

// Count returns the current cardinality.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
