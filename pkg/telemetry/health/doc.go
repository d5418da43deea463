// Package health provides liveness and readiness probes for the guardrail
// controller.
//
// # Overview
//
// The health package implements probe endpoints for Kubernetes and other
// orchestration systems, along with a version information endpoint. Component
// checks are registered against a Checker and evaluated concurrently on each
// readiness probe.
//
// # Endpoints
//
//   - /healthz: Liveness probe - indicates the process is running
//   - /readyz: Readiness probe - indicates the controller can accept cost events
//   - /version: Build information - version, commit, build time
//
// # Usage
//
//	checker := health.New(5 * time.Second)
//
//	// Register component checks
//	checker.RegisterCheck("ledger", func(ctx context.Context) error {
//	    _, err := store.Recent(ctx, 1, "")
//	    return err
//	})
//	checker.RegisterCheck("policies", func(ctx context.Context) error {
//	    if policyStore.Len() == 0 {
//	        return errors.New("no policies loaded")
//	    }
//	    return nil
//	})
//
//	// Mount the endpoints
//	mux := http.NewServeMux()
//	checker.RegisterRoutes(mux, version, commit, buildTime)
//
// # Liveness vs Readiness
//
// The liveness probe answers "is the process alive" and never consults
// component checks; a failing liveness probe should restart the process. The
// readiness probe answers "can this instance do useful work right now" by
// running every registered check with a per-check timeout; any unhealthy
// component degrades the instance and returns 503 so load balancers stop
// routing events to it without restarting it.
package health
