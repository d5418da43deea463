// Package ledger defines the execution ledger: the durable record of every
// guardrail action the controller has planned, executed, or rolled back.
//
// # Lifecycle
//
// An Execution is created when a matched policy produces an action against
// one target principal, and moves through a fixed state machine:
//
//	planned ──▶ approved ──▶ executed ──▶ rolled_back
//	   │            │            │
//	   ├──▶ rejected│            └──▶ failed
//	   ├──▶ expired ├──▶ expired
//	   ├──▶ executed└──▶ failed
//	   └──▶ failed
//
// rejected, expired, rolled_back, and failed are terminal. Transitions only
// move forward; TransitionTo rejects anything else with a StateError.
//
// # Invariants
//
// At most one non-terminal execution exists per (policy_id, target). The
// backends enforce this at creation time, so duplicate deliveries and
// concurrent evaluations of the same event collapse into one execution and
// the losers surface a ConflictError.
//
// The diff is captured when the execution is created and never recomputed.
// Rollback consumes the recorded diff, not the current state of the world.
//
// # Concurrency
//
// Updates use optimistic concurrency: every write carries the version it
// read, the store applies it only if the row still has that version, and a
// lost race surfaces a ConflictError. There are no row locks and no
// distributed locks; version checks are the sole mechanism.
package ledger
