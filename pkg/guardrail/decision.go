package guardrail

import (
	"github.com/junki-kanda/AutGuardRails/pkg/ledger"
	"github.com/junki-kanda/AutGuardRails/pkg/policy/engine"
)

// Outcome summarizes what evaluating an event did.
type Outcome string

const (
	// OutcomeNoMatch means no enabled policy matched the event.
	OutcomeNoMatch Outcome = "no_match"

	// OutcomeSimulated means a simulate-mode policy matched; the plan was
	// reported and nothing was changed or recorded.
	OutcomeSimulated Outcome = "simulated"

	// OutcomePendingApproval means planned executions were created and
	// approvers were notified.
	OutcomePendingApproval Outcome = "pending_approval"

	// OutcomeExecuted means at least one target was executed.
	OutcomeExecuted Outcome = "executed"

	// OutcomeFailed means execution was attempted and every target failed.
	OutcomeFailed Outcome = "failed"

	// OutcomeDuplicate means the event, or its (policy, target) slots,
	// were already handled by earlier executions.
	OutcomeDuplicate Outcome = "duplicate"
)

// Decision is the result of evaluating one cost event.
type Decision struct {
	Outcome  Outcome `json:"outcome"`
	EventID  string  `json:"event_id"`
	PolicyID string  `json:"policy_id,omitempty"`

	// Plan is the expanded action plan. Nil when no policy matched.
	Plan *engine.ActionPlan `json:"plan,omitempty"`

	// Executions are the ledger rows this evaluation created or found.
	Executions []*ledger.Execution `json:"executions,omitempty"`
}

// ResolutionOutcome summarizes what an approval decision did.
type ResolutionOutcome string

const (
	// ResolutionExecuted means the approval was accepted and the action
	// applied.
	ResolutionExecuted ResolutionOutcome = "executed"

	// ResolutionRejected means the plan was rejected and released.
	ResolutionRejected ResolutionOutcome = "rejected"

	// ResolutionAlreadyResolved means someone else decided first.
	ResolutionAlreadyResolved ResolutionOutcome = "already_resolved"

	// ResolutionFailed means the approval was accepted but applying the
	// action failed.
	ResolutionFailed ResolutionOutcome = "failed"
)

// Resolution is the result of consuming one decision link.
type Resolution struct {
	Outcome     ResolutionOutcome `json:"outcome"`
	ExecutionID string            `json:"execution_id"`
	Status      ledger.Status     `json:"status"`
	Error       string            `json:"error,omitempty"`
}
