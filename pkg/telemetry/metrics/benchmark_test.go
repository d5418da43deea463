package metrics

import (
	"strconv"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Benchmark_Collector_RecordEvent benchmarks event recording
func Benchmark_Collector_RecordEvent(b *testing.B) {
	cfg := testConfig()
	registry := prometheus.NewRegistry()
	collector := NewCollector(cfg, registry)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		collector.RecordEvent("budget_threshold", "accepted", 1450.00)
	}
}

// Benchmark_Collector_RecordEvent_Parallel benchmarks parallel event recording
func Benchmark_Collector_RecordEvent_Parallel(b *testing.B) {
	cfg := testConfig()
	registry := prometheus.NewRegistry()
	collector := NewCollector(cfg, registry)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			collector.RecordEvent("budget_threshold", "accepted", 1450.00)
		}
	})
}

// Benchmark_Collector_RecordEvaluation benchmarks evaluation recording
func Benchmark_Collector_RecordEvaluation(b *testing.B) {
	cfg := testConfig()
	registry := prometheus.NewRegistry()
	collector := NewCollector(cfg, registry)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		collector.RecordEvaluation("ec2-spike", "executed", 2*time.Millisecond)
	}
}

// Benchmark_Collector_RecordExecution benchmarks execution recording
func Benchmark_Collector_RecordExecution(b *testing.B) {
	cfg := testConfig()
	registry := prometheus.NewRegistry()
	collector := NewCollector(cfg, registry)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		collector.RecordExecution("ec2-spike", "automatic", "executed")
	}
}

// Benchmark_Collector_RecordSweep benchmarks sweep recording
func Benchmark_Collector_RecordSweep(b *testing.B) {
	cfg := testConfig()
	registry := prometheus.NewRegistry()
	collector := NewCollector(cfg, registry)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		collector.RecordSweep(100*time.Millisecond, 2, 0, 1, 0, 0)
	}
}

// Benchmark_Collector_RecordHTTPRequest benchmarks HTTP request recording
func Benchmark_Collector_RecordHTTPRequest(b *testing.B) {
	cfg := testConfig()
	registry := prometheus.NewRegistry()
	collector := NewCollector(cfg, registry)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		collector.RecordHTTPRequest("POST", "/events", "202", 15*time.Millisecond)
	}
}

// Benchmark_EventMetrics_RecordEvent benchmarks raw event metric recording
func Benchmark_EventMetrics_RecordEvent(b *testing.B) {
	cfg := testConfig()
	registry := prometheus.NewRegistry()
	em := NewEventMetrics(cfg, registry)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		em.RecordEvent("budget_threshold", "accepted", 1450.00)
	}
}

// Benchmark_EvaluationMetrics_RecordEvaluation benchmarks raw evaluation recording
func Benchmark_EvaluationMetrics_RecordEvaluation(b *testing.B) {
	cfg := testConfig()
	registry := prometheus.NewRegistry()
	em := NewEvaluationMetrics(cfg, registry)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		em.RecordEvaluation("ec2-spike", "executed", 2*time.Millisecond)
	}
}

// Benchmark_CardinalityLimiter_Allow benchmarks cardinality checking
func Benchmark_CardinalityLimiter_Allow(b *testing.B) {
	limiter := NewCardinalityLimiter(1000)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		limiter.Allow("label1")
	}
}

// Benchmark_CardinalityLimiter_Allow_New benchmarks cardinality checking with new labels
func Benchmark_CardinalityLimiter_Allow_New(b *testing.B) {
	limiter := NewCardinalityLimiter(100000)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		limiter.Allow("label" + strconv.Itoa(i))
	}
}

// Benchmark_Collector_Disabled benchmarks metrics when disabled
func Benchmark_Collector_Disabled(b *testing.B) {
	cfg := testConfig()
	cfg.Enabled = false
	registry := prometheus.NewRegistry()
	collector := NewCollector(cfg, registry)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		collector.RecordEvent("budget_threshold", "accepted", 1450.00)
	}
}

// Benchmark_Collector_ManyLabels benchmarks recording with many different label values
func Benchmark_Collector_ManyLabels(b *testing.B) {
	cfg := testConfig()
	registry := prometheus.NewRegistry()
	collector := NewCollector(cfg, registry)

	policies := []string{"ec2-spike", "batch-runaway", "dev-sandbox", "nat-gateway"}
	modes := []string{"simulate", "approve", "automatic"}
	statuses := []string{"executed", "simulated", "pending_approval"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		policy := policies[i%len(policies)]
		mode := modes[i%len(modes)]
		status := statuses[i%len(statuses)]
		collector.RecordExecution(policy, mode, status)
	}
}

// Benchmark_Collector_AllMetrics benchmarks recording all metric types
func Benchmark_Collector_AllMetrics(b *testing.B) {
	cfg := testConfig()
	registry := prometheus.NewRegistry()
	collector := NewCollector(cfg, registry)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		// Record event intake
		collector.RecordEvent("budget_threshold", "accepted", 1450.00)

		// Record policy evaluation
		collector.RecordEvaluation("ec2-spike", "executed", 2*time.Millisecond)

		// Record execution outcome
		collector.RecordExecution("ec2-spike", "automatic", "executed")

		// Record HTTP surface
		collector.RecordHTTPRequest("POST", "/events", "202", 15*time.Millisecond)
	}
}
