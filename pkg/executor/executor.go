package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/junki-kanda/AutGuardRails/pkg/policy"
	"github.com/junki-kanda/AutGuardRails/pkg/policy/engine"
)

// Diff records what an executor changed, or would change, for one plan
// target. Applied diffs carry the managed policy ARN rollback needs; preview
// diffs carry the would_deny list approvers review.
type Diff struct {
	Action     policy.ActionType    `json:"action"`
	Target     string               `json:"target"`
	TargetType policy.PrincipalType `json:"target_type,omitempty"`
	TargetName string               `json:"target_name,omitempty"`

	// DryRun marks a preview diff. Nothing was applied.
	DryRun bool `json:"dry_run,omitempty"`

	// NoChanges marks a target whose actions never touch IAM.
	NoChanges bool `json:"no_changes,omitempty"`

	// WouldDeny is the deny set a preview would apply.
	WouldDeny []string `json:"would_deny,omitempty"`

	// DeniedActions is the deny set an applied diff did apply.
	DeniedActions []string `json:"denied_actions,omitempty"`

	PolicyARN  string `json:"policy_arn,omitempty"`
	PolicyName string `json:"policy_name,omitempty"`
}

// Encode serializes the diff for ledger storage.
func (d *Diff) Encode() (json.RawMessage, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encoding diff: %w", err)
	}
	return raw, nil
}

// ParseDiff decodes a diff previously frozen into the ledger.
func ParseDiff(raw json.RawMessage) (*Diff, error) {
	if len(raw) == 0 {
		return nil, errors.New("empty diff")
	}
	var d Diff
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("parsing diff: %w", err)
	}
	if !d.Action.Valid() {
		return nil, fmt.Errorf("diff has unknown action %q", d.Action)
	}
	return &d, nil
}

// Executor applies and reverts a plan target's actions against the cloud
// account.
type Executor interface {
	// Apply performs the target's actions and reports what changed.
	Apply(ctx context.Context, policyID string, target engine.PlanTarget) (*Diff, error)

	// Revert undoes a previously applied diff.
	Revert(ctx context.Context, diff *Diff) error
}

// Preview reports what Apply would change for the target without touching
// anything. It needs no credentials, so simulation works on a box with no
// AWS access at all.
func Preview(policyID string, target engine.PlanTarget) *Diff {
	deny := target.DenyActions()
	if len(deny) == 0 {
		return &Diff{
			Action:    policy.ActionNotifyOnly,
			Target:    target.Principal.ARN,
			NoChanges: true,
		}
	}
	return &Diff{
		Action:     policy.ActionAttachDenyPolicy,
		Target:     target.Principal.ARN,
		TargetType: target.Principal.Type,
		TargetName: target.Principal.Name(),
		DryRun:     true,
		WouldDeny:  deny,
		PolicyName: DenyPolicyName(policyID, deny),
	}
}
