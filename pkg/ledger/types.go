package ledger

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/junki-kanda/AutGuardRails/pkg/policy"
)

// Status is the lifecycle state of an execution.
type Status string

const (
	// StatusPlanned means the action is recorded and waiting for approval.
	StatusPlanned Status = "planned"

	// StatusApproved means a human approved the action but it has not been
	// applied yet.
	StatusApproved Status = "approved"

	// StatusExecuted means the action is applied and in effect.
	StatusExecuted Status = "executed"

	// StatusRolledBack means the applied action was reverted.
	StatusRolledBack Status = "rolled_back"

	// StatusRejected means a human declined the planned action.
	StatusRejected Status = "rejected"

	// StatusExpired means the approval window lapsed before a decision.
	StatusExpired Status = "expired"

	// StatusFailed means applying the action failed.
	StatusFailed Status = "failed"
)

// Valid reports whether s is a recognized status.
func (s Status) Valid() bool {
	switch s {
	case StatusPlanned, StatusApproved, StatusExecuted, StatusRolledBack,
		StatusRejected, StatusExpired, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether s is an end state.
func (s Status) Terminal() bool {
	switch s {
	case StatusRolledBack, StatusRejected, StatusExpired, StatusFailed:
		return true
	}
	return false
}

// transitions holds the legal forward edges of the state machine.
var transitions = map[Status][]Status{
	StatusPlanned:  {StatusApproved, StatusRejected, StatusExpired, StatusExecuted, StatusFailed},
	StatusApproved: {StatusExecuted, StatusExpired, StatusFailed},
	StatusExecuted: {StatusRolledBack, StatusFailed},
}

// CanTransition reports whether s → to is a legal edge.
func (s Status) CanTransition(to Status) bool {
	for _, t := range transitions[s] {
		if t == to {
			return true
		}
	}
	return false
}

// Execution is one ledger row: a single action against a single target
// principal, traced from planning through rollback.
type Execution struct {
	ExecutionID string `json:"execution_id"`
	PolicyID    string `json:"policy_id"`
	EventID     string `json:"event_id"`

	// Target is the ARN of the principal the action applies to.
	Target string `json:"target"`

	Mode   policy.Mode `json:"mode"`
	Status Status      `json:"status"`

	// Diff is the exact change the execution makes, captured at creation.
	// Rollback replays it in reverse; it is never recomputed.
	Diff json.RawMessage `json:"diff"`

	// ExecutedBy records who triggered execution: "system:auto" for
	// automatic mode, "user:<name>" for approvals.
	ExecutedBy string `json:"executed_by,omitempty"`

	// Error holds the failure message when Status is failed, and the most
	// recent rollback error while a rollback is being retried.
	Error string `json:"error,omitempty"`

	// RollbackFailures counts consecutive failed rollback attempts. It
	// resets on success and drives escalation.
	RollbackFailures int `json:"rollback_failures,omitempty"`

	// TTLMinutes is the rollback delay frozen from the plan at creation.
	// Zero means no automatic rollback.
	TTLMinutes int `json:"ttl_minutes,omitempty"`

	// Version is the optimistic concurrency token. Create sets it to 1
	// and every successful update increments it.
	Version int64 `json:"version"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// ExecutedAt is set exactly once, when the execution enters executed.
	ExecutedAt *time.Time `json:"executed_at,omitempty"`

	// TTLExpiresAt is when the sweeper becomes responsible for rolling
	// the execution back. Nil means no automatic rollback.
	TTLExpiresAt *time.Time `json:"ttl_expires_at,omitempty"`

	// ApprovalExpiresAt bounds the approval window for planned and
	// approved executions.
	ApprovalExpiresAt *time.Time `json:"approval_expires_at,omitempty"`
}

// NewExecutionID returns a fresh unique execution id.
func NewExecutionID() string {
	return "exec-" + uuid.New().String()
}

// TransitionTo moves the execution to the given status, stamping UpdatedAt
// and, on entry to executed, ExecutedAt. Illegal edges return a StateError
// and leave the execution untouched.
func (e *Execution) TransitionTo(to Status, now time.Time) error {
	if !e.Status.CanTransition(to) {
		return &StateError{ExecutionID: e.ExecutionID, From: e.Status, To: to}
	}
	e.Status = to
	e.UpdatedAt = now
	if to == StatusExecuted {
		t := now
		e.ExecutedAt = &t
	}
	return nil
}

// Active reports whether the execution still occupies the one-per-target
// slot, i.e. its status is non-terminal.
func (e *Execution) Active() bool {
	return !e.Status.Terminal()
}
