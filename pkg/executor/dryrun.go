package executor

import (
	"context"

	"github.com/junki-kanda/AutGuardRails/pkg/policy/engine"
)

// DryRun is an Executor that previews instead of applying. Apply returns
// the same diff Preview computes and Revert does nothing, so a full
// evaluation can run on a box with no AWS access: events flow through
// matching, planning, and the ledger while IAM stays untouched.
//
// The ledger rows a dry run creates look executed, so only feed it a
// throwaway store.
type DryRun struct{}

// Apply reports what the real executor would change for the target.
func (DryRun) Apply(_ context.Context, policyID string, target engine.PlanTarget) (*Diff, error) {
	return Preview(policyID, target), nil
}

// Revert does nothing. A dry run applied nothing.
func (DryRun) Revert(context.Context, *Diff) error {
	return nil
}
