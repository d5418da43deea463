package guardrail

import (
	"context"
	"errors"
	"fmt"

	"github.com/junki-kanda/AutGuardRails/pkg/approval"
	"github.com/junki-kanda/AutGuardRails/pkg/executor"
	"github.com/junki-kanda/AutGuardRails/pkg/ledger"
	"github.com/junki-kanda/AutGuardRails/pkg/notify"
	"github.com/junki-kanda/AutGuardRails/pkg/policy"
	"github.com/junki-kanda/AutGuardRails/pkg/policy/engine"
)

// ResolveRequest carries one decision-link click as received on the wire.
// Timestamp stays a string so signature verification sees exactly what was
// signed.
type ResolveRequest struct {
	ExecutionID string
	Decision    approval.Decision
	Token       string
	Timestamp   string

	// Actor identifies who clicked, when the transport knows. Empty
	// means the link itself is the only identity.
	Actor string
}

// ResolveApproval settles a pending execution from a decision link. The
// planned row is claimed with a version-checked update, so of two
// simultaneous clicks exactly one side executes and the other learns the
// row was already resolved. approval.ErrInvalidToken covers every way the
// link can be bad.
func (c *Controller) ResolveApproval(ctx context.Context, req ResolveRequest) (*Resolution, error) {
	if c.signer == nil {
		return nil, approval.ErrInvalidToken
	}
	if !req.Decision.Valid() {
		return nil, approval.ErrInvalidToken
	}
	if err := c.signer.VerifyQuery(req.ExecutionID, req.Token, req.Timestamp, c.now()); err != nil {
		return nil, err
	}

	exec, err := c.ledger.Get(ctx, req.ExecutionID)
	if err != nil {
		return nil, fmt.Errorf("loading execution: %w", err)
	}
	if exec.Status != ledger.StatusPlanned {
		return &Resolution{
			Outcome:     ResolutionAlreadyResolved,
			ExecutionID: exec.ExecutionID,
			Status:      exec.Status,
		}, nil
	}

	actor := req.Actor
	if actor == "" {
		actor = "approval-link"
	}

	if req.Decision == approval.DecisionReject {
		return c.reject(ctx, exec, actor)
	}
	return c.approve(ctx, exec, actor)
}

// reject settles the row without touching IAM.
func (c *Controller) reject(ctx context.Context, exec *ledger.Execution, actor string) (*Resolution, error) {
	exec.ExecutedBy = "user:" + actor
	if err := exec.TransitionTo(ledger.StatusRejected, c.now()); err != nil {
		return nil, err
	}
	if err := c.ledger.Update(ctx, exec); err != nil {
		return c.lostClaim(ctx, exec.ExecutionID, err)
	}

	c.logger.Info("execution rejected",
		"execution_id", exec.ExecutionID,
		"policy_id", exec.PolicyID,
		"target", exec.Target,
		"actor", actor)
	return &Resolution{
		Outcome:     ResolutionRejected,
		ExecutionID: exec.ExecutionID,
		Status:      ledger.StatusRejected,
	}, nil
}

// approve claims the row, then executes the plan frozen into it at
// creation. The current policy set is consulted only for notification
// routing, never for what to apply.
func (c *Controller) approve(ctx context.Context, exec *ledger.Execution, actor string) (*Resolution, error) {
	exec.ExecutedBy = "user:" + actor
	if err := exec.TransitionTo(ledger.StatusApproved, c.now()); err != nil {
		return nil, err
	}
	if err := c.ledger.Update(ctx, exec); err != nil {
		return c.lostClaim(ctx, exec.ExecutionID, err)
	}

	frozen, err := executor.ParseDiff(exec.Diff)
	if err != nil {
		c.fail(ctx, exec, fmt.Errorf("frozen plan unreadable: %w", err))
		return &Resolution{
			Outcome:     ResolutionFailed,
			ExecutionID: exec.ExecutionID,
			Status:      exec.Status,
			Error:       err.Error(),
		}, nil
	}

	target := planTargetFromDiff(frozen)
	if err := c.execute(ctx, target, exec, "user:"+actor); err != nil {
		return &Resolution{
			Outcome:     ResolutionFailed,
			ExecutionID: exec.ExecutionID,
			Status:      exec.Status,
			Error:       err.Error(),
		}, nil
	}

	channel, mentions := c.notifyRoute(exec.PolicyID)
	c.send(ctx, notify.Message{
		Kind:        notify.KindExecution,
		Channel:     channel,
		Mentions:    mentions,
		PolicyID:    exec.PolicyID,
		EventID:     exec.EventID,
		ExecutionID: exec.ExecutionID,
		Mode:        exec.Mode,
		Targets:     []string{exec.Target},
		DenyActions: frozen.WouldDeny,
		TTLMinutes:  exec.TTLMinutes,
		RollbackAt:  derefTime(exec.TTLExpiresAt),
	})

	return &Resolution{
		Outcome:     ResolutionExecuted,
		ExecutionID: exec.ExecutionID,
		Status:      exec.Status,
	}, nil
}

// lostClaim turns a version conflict into the row's settled state. Any
// other update failure propagates.
func (c *Controller) lostClaim(ctx context.Context, executionID string, cause error) (*Resolution, error) {
	var conflict *ledger.ConflictError
	if !errors.As(cause, &conflict) {
		return nil, cause
	}
	current, err := c.ledger.Get(ctx, executionID)
	if err != nil {
		return nil, fmt.Errorf("reloading contested execution: %w", err)
	}
	return &Resolution{
		Outcome:     ResolutionAlreadyResolved,
		ExecutionID: current.ExecutionID,
		Status:      current.Status,
	}, nil
}

// planTargetFromDiff rebuilds the plan target an approved row was created
// for. The diff is the record of intent, so approval executes what was
// shown to the approver even if the policy changed since.
func planTargetFromDiff(d *executor.Diff) engine.PlanTarget {
	target := engine.PlanTarget{
		Principal: policy.Principal{Type: d.TargetType, ARN: d.Target},
	}
	if d.NoChanges {
		target.Actions = []policy.Action{{Type: policy.ActionNotifyOnly}}
		return target
	}
	target.Actions = []policy.Action{{Type: policy.ActionAttachDenyPolicy, Deny: d.WouldDeny}}
	return target
}

// notifyRoute reads the current notification routing for a policy. A
// deleted policy routes to the webhook default channel.
func (c *Controller) notifyRoute(policyID string) (string, []string) {
	p, ok := c.policies.Get(policyID)
	if !ok {
		return "", nil
	}
	return p.Notify.SlackChannel, p.Notify.MentionUsers
}
