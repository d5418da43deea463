// Package server provides the HTTP surface of the guardrails controller.
//
// This package ties together event ingestion, approval resolution, probes,
// and metrics behind one listener, and provides server lifecycle management
// including start, shutdown, and OS signal handling.
//
// # Basic Usage
//
// Creating and starting a server:
//
//	import (
//	    "context"
//	    "github.com/junki-kanda/AutGuardRails/pkg/config"
//	    "github.com/junki-kanda/AutGuardRails/pkg/server"
//	)
//
//	cfg := config.GetConfig()
//
//	srv := server.NewServer(&cfg.Server, controller, server.Options{
//	    Checker:     checker,
//	    Collector:   collector,
//	    MetricsPath: cfg.Telemetry.Metrics.Path,
//	})
//	if err := srv.Start(context.Background()); err != nil {
//	    log.Fatal(err)
//	}
//
// Start blocks until the context is cancelled, a shutdown signal arrives,
// or the listener fails.
//
// # Routes
//
// The server exposes the following HTTP endpoints:
//
//   - POST /events - Cost event ingestion; the body is a raw AWS Budgets SNS
//     notification, an EventBridge anomaly event, or a direct cost event.
//     Returns 202 with the evaluation decision, 400 on malformed input.
//   - GET|POST /approve - Signed decision links minted for approve-mode
//     policies. Returns 200 with the resolution outcome; any token defect is
//     an opaque 403.
//   - GET /health, /healthz - Liveness probe
//   - GET /readyz - Readiness probe (runs registered component checks)
//   - GET /version - Build information
//   - GET /metrics - Prometheus metrics (path configurable)
//
// A decision link that was already consumed resolves with 200 and outcome
// "already_resolved" rather than an error status, so chat clients that
// prefetch or retry links see an idempotent endpoint.
//
// # Middleware Chain
//
// Requests pass through the following middleware (outermost first):
//  1. Recovery: turns handler panics into 500 responses
//  2. RequestID: assigns or propagates X-Request-ID
//  3. Logging: logs request completion with latency and status
//  4. Metrics: records request counts and durations per route
//
// # Graceful Shutdown
//
// The server shuts down gracefully on SIGTERM or SIGINT, or when the Start
// context is cancelled. In-flight requests get ShutdownTimeout to complete
// before connections are closed.
package server
