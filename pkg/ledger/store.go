package ledger

import (
	"context"
	"time"
)

// Store is the interface execution ledger backends implement.
type Store interface {
	// Create persists a new execution with version 1. It fails with a
	// ConflictError if an active execution already occupies the
	// (policy_id, target) slot or the execution id is taken.
	Create(ctx context.Context, e *Execution) error

	// Get returns the execution with the given id, or a NotFoundError.
	Get(ctx context.Context, executionID string) (*Execution, error)

	// Update writes the execution if and only if the stored row still has
	// the version the caller read. On success the version is incremented,
	// both in the store and on e. A stale version fails with a
	// ConflictError and writes nothing.
	Update(ctx context.Context, e *Execution) error

	// FindActive returns the non-terminal execution for the (policy_id,
	// target) slot, or nil if the slot is free.
	FindActive(ctx context.Context, policyID, target string) (*Execution, error)

	// FindByEvent returns all executions created for the given event, in
	// creation order. Used for idempotent handling of redelivered events.
	FindByEvent(ctx context.Context, eventID string) ([]*Execution, error)

	// FindExpired returns up to limit executed executions whose ttl has
	// passed at the given instant, oldest expiry first.
	FindExpired(ctx context.Context, now time.Time, limit int) ([]*Execution, error)

	// FindStaleApprovals returns up to limit planned or approved
	// executions whose approval window has lapsed at the given instant.
	FindStaleApprovals(ctx context.Context, now time.Time, limit int) ([]*Execution, error)

	// Recent returns up to limit executions, newest first, optionally
	// filtered to one status.
	Recent(ctx context.Context, limit int, status Status) ([]*Execution, error)

	// ByPolicy returns up to limit executions for the policy, newest
	// first.
	ByPolicy(ctx context.Context, policyID string, limit int) ([]*Execution, error)

	// Close releases backend resources.
	Close() error
}
