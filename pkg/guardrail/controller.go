package guardrail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/junki-kanda/AutGuardRails/pkg/approval"
	"github.com/junki-kanda/AutGuardRails/pkg/event"
	"github.com/junki-kanda/AutGuardRails/pkg/executor"
	"github.com/junki-kanda/AutGuardRails/pkg/ledger"
	"github.com/junki-kanda/AutGuardRails/pkg/notify"
	"github.com/junki-kanda/AutGuardRails/pkg/policy"
	"github.com/junki-kanda/AutGuardRails/pkg/policy/engine"
)

// DefaultExecuteTimeout bounds one executor call.
const DefaultExecuteTimeout = 30 * time.Second

// plannedRecoveryWindow bounds how long an automatic-mode row may sit in
// planned. The row is planned only for the instant between Create and
// execute; the window lets the sweeper release the slot if the process dies
// in between.
const plannedRecoveryWindow = 15 * time.Minute

// Options tune controller behavior beyond its collaborators.
type Options struct {
	// BaseURL is the externally reachable address decision links point
	// at.
	BaseURL string

	// ExecuteTimeout bounds a single executor call. Defaults to
	// DefaultExecuteTimeout.
	ExecuteTimeout time.Duration

	// Now supplies the controller clock. Defaults to time.Now.
	Now func() time.Time
}

// Controller evaluates cost events against the loaded policy set and drives
// the resulting executions through the ledger.
type Controller struct {
	policies *policy.Store
	matcher  *engine.Matcher
	ledger   ledger.Store
	executor executor.Executor
	signer   *approval.Signer
	notifier notify.Notifier
	logger   *slog.Logger

	baseURL        string
	executeTimeout time.Duration
	now            func() time.Time
}

// NewController wires a controller from its collaborators. The signer may
// be nil when no approve-mode policy is loaded; evaluating one without a
// signer fails the event.
func NewController(policies *policy.Store, ledgerStore ledger.Store, exec executor.Executor, signer *approval.Signer, notifier notify.Notifier, opts Options) *Controller {
	if notifier == nil {
		notifier = notify.NopNotifier{}
	}
	if opts.ExecuteTimeout <= 0 {
		opts.ExecuteTimeout = DefaultExecuteTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Controller{
		policies:       policies,
		matcher:        engine.NewMatcher(),
		ledger:         ledgerStore,
		executor:       exec,
		signer:         signer,
		notifier:       notifier,
		logger:         slog.With("component", "guardrail-controller"),
		baseURL:        opts.BaseURL,
		executeTimeout: opts.ExecuteTimeout,
		now:            opts.Now,
	}
}

// Evaluate runs one cost event through matching and mode dispatch. The
// returned error is reserved for infrastructure failures; an action that
// could not be applied is reported as OutcomeFailed.
func (c *Controller) Evaluate(ctx context.Context, ev *event.CostEvent) (*Decision, error) {
	now := c.now()

	existing, err := c.ledger.FindByEvent(ctx, ev.EventID)
	if err != nil {
		return nil, fmt.Errorf("checking event history: %w", err)
	}
	if len(existing) > 0 {
		c.logger.Info("event already handled",
			"event_id", ev.EventID,
			"executions", len(existing))
		return &Decision{
			Outcome:    OutcomeDuplicate,
			EventID:    ev.EventID,
			PolicyID:   existing[0].PolicyID,
			Executions: existing,
		}, nil
	}

	matched := c.matcher.Match(ev, c.policies.Policies(), now)
	if matched == nil {
		return &Decision{Outcome: OutcomeNoMatch, EventID: ev.EventID}, nil
	}

	plan := engine.BuildPlan(matched, ev)
	c.logger.Info("policy matched",
		"policy_id", plan.PolicyID,
		"event_id", ev.EventID,
		"mode", plan.Mode,
		"amount_usd", ev.AmountUSD,
		"targets", len(plan.Targets))

	switch plan.Mode {
	case policy.ModeSimulate:
		return c.handleSimulate(ctx, plan, ev)
	case policy.ModeApprove:
		return c.handleApprove(ctx, plan, ev)
	case policy.ModeAutomatic:
		return c.handleAutomatic(ctx, plan, ev)
	}
	return nil, fmt.Errorf("policy %s has unknown mode %q", plan.PolicyID, plan.Mode)
}

// handleSimulate reports what would happen. No ledger row is written, so a
// redelivered event simulates again.
func (c *Controller) handleSimulate(ctx context.Context, plan *engine.ActionPlan, ev *event.CostEvent) (*Decision, error) {
	c.send(ctx, notify.Message{
		Kind:        notify.KindSimulation,
		Channel:     plan.Notify.SlackChannel,
		Mentions:    plan.Notify.MentionUsers,
		PolicyID:    plan.PolicyID,
		EventID:     ev.EventID,
		Mode:        plan.Mode,
		AmountUSD:   ev.AmountUSD,
		Targets:     planTargets(plan),
		DenyActions: plan.Targets[0].DenyActions(),
	})

	return &Decision{
		Outcome:  OutcomeSimulated,
		EventID:  ev.EventID,
		PolicyID: plan.PolicyID,
		Plan:     plan,
	}, nil
}

// handleApprove freezes the plan into planned rows and asks a human.
func (c *Controller) handleApprove(ctx context.Context, plan *engine.ActionPlan, ev *event.CostEvent) (*Decision, error) {
	if c.signer == nil {
		return nil, fmt.Errorf("policy %s needs approval but no approval secret is configured", plan.PolicyID)
	}

	d := &Decision{EventID: ev.EventID, PolicyID: plan.PolicyID, Plan: plan}
	pending := 0
	for _, target := range plan.Targets {
		exec, err := c.createPlanned(ctx, plan, target, c.signer.Window())
		if err != nil {
			var conflict *ledger.ConflictError
			if errors.As(err, &conflict) {
				c.logger.Info("target slot already held, skipping",
					"policy_id", plan.PolicyID,
					"target", target.Principal.ARN,
					"reason", conflict.Reason)
				continue
			}
			return nil, err
		}
		d.Executions = append(d.Executions, exec)
		pending++

		issued := exec.CreatedAt
		approve := c.signer.NewRequest(exec.ExecutionID, approval.DecisionApprove, issued)
		reject := c.signer.NewRequest(exec.ExecutionID, approval.DecisionReject, issued)
		c.send(ctx, notify.Message{
			Kind:        notify.KindApprovalRequest,
			Channel:     plan.Notify.SlackChannel,
			Mentions:    plan.Notify.MentionUsers,
			PolicyID:    plan.PolicyID,
			EventID:     ev.EventID,
			ExecutionID: exec.ExecutionID,
			Mode:        plan.Mode,
			AmountUSD:   ev.AmountUSD,
			Targets:     []string{target.Principal.ARN},
			DenyActions: target.DenyActions(),
			TTLMinutes:  plan.TTLMinutes,
			ApproveURL:  approve.URL(c.baseURL),
			RejectURL:   reject.URL(c.baseURL),
			ExpiresAt:   *exec.ApprovalExpiresAt,
		})
	}

	if pending == 0 {
		d.Outcome = OutcomeDuplicate
	} else {
		d.Outcome = OutcomePendingApproval
	}
	return d, nil
}

// handleAutomatic executes every target synchronously.
func (c *Controller) handleAutomatic(ctx context.Context, plan *engine.ActionPlan, ev *event.CostEvent) (*Decision, error) {
	d := &Decision{EventID: ev.EventID, PolicyID: plan.PolicyID, Plan: plan}
	executed, failed := 0, 0
	for _, target := range plan.Targets {
		exec, err := c.createPlanned(ctx, plan, target, plannedRecoveryWindow)
		if err != nil {
			var conflict *ledger.ConflictError
			if errors.As(err, &conflict) {
				c.logger.Info("target slot already held, skipping",
					"policy_id", plan.PolicyID,
					"target", target.Principal.ARN,
					"reason", conflict.Reason)
				continue
			}
			return nil, err
		}
		d.Executions = append(d.Executions, exec)

		if err := c.execute(ctx, target, exec, "system:auto"); err != nil {
			failed++
			continue
		}
		executed++

		c.send(ctx, notify.Message{
			Kind:        notify.KindExecution,
			Channel:     plan.Notify.SlackChannel,
			Mentions:    plan.Notify.MentionUsers,
			PolicyID:    plan.PolicyID,
			EventID:     ev.EventID,
			ExecutionID: exec.ExecutionID,
			Mode:        plan.Mode,
			AmountUSD:   ev.AmountUSD,
			Targets:     []string{exec.Target},
			DenyActions: target.DenyActions(),
			TTLMinutes:  plan.TTLMinutes,
			RollbackAt:  derefTime(exec.TTLExpiresAt),
		})
	}

	switch {
	case executed > 0:
		d.Outcome = OutcomeExecuted
	case failed > 0:
		d.Outcome = OutcomeFailed
	default:
		d.Outcome = OutcomeDuplicate
	}
	return d, nil
}

// createPlanned freezes one plan target into a planned ledger row. The
// preview diff and the ttl ride along so resolution never consults the
// mutable policy set.
func (c *Controller) createPlanned(ctx context.Context, plan *engine.ActionPlan, target engine.PlanTarget, window time.Duration) (*ledger.Execution, error) {
	now := c.now()
	preview := executor.Preview(plan.PolicyID, target)
	raw, err := preview.Encode()
	if err != nil {
		return nil, fmt.Errorf("encoding preview diff: %w", err)
	}

	exec := &ledger.Execution{
		ExecutionID: ledger.NewExecutionID(),
		PolicyID:    plan.PolicyID,
		EventID:     plan.EventID,
		Target:      target.Principal.ARN,
		Mode:        plan.Mode,
		Status:      ledger.StatusPlanned,
		Diff:        raw,
		TTLMinutes:  plan.TTLMinutes,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if window > 0 {
		t := now.Add(window)
		exec.ApprovalExpiresAt = &t
	}

	if err := c.ledger.Create(ctx, exec); err != nil {
		return nil, err
	}
	return exec, nil
}

// execute applies the target and moves exec to executed with the applied
// diff frozen in. On apply failure the row moves to failed. If the applied
// change cannot be recorded it is reverted, so no IAM change exists outside
// the ledger.
func (c *Controller) execute(ctx context.Context, target engine.PlanTarget, exec *ledger.Execution, actor string) error {
	execCtx, cancel := context.WithTimeout(ctx, c.executeTimeout)
	diff, err := c.executor.Apply(execCtx, exec.PolicyID, target)
	cancel()
	if err != nil {
		c.logger.Error("execution failed",
			"execution_id", exec.ExecutionID,
			"target", exec.Target,
			"error", err)
		c.fail(ctx, exec, err)
		return err
	}

	raw, err := diff.Encode()
	if err != nil {
		c.revertApplied(ctx, diff, err)
		c.fail(ctx, exec, err)
		return err
	}

	now := c.now()
	exec.Diff = raw
	exec.ExecutedBy = actor
	if exec.TTLMinutes > 0 {
		t := now.Add(time.Duration(exec.TTLMinutes) * time.Minute)
		exec.TTLExpiresAt = &t
	}
	if err := exec.TransitionTo(ledger.StatusExecuted, now); err != nil {
		c.revertApplied(ctx, diff, err)
		return err
	}
	if err := c.ledger.Update(ctx, exec); err != nil {
		c.revertApplied(ctx, diff, err)
		return err
	}

	c.logger.Info("execution applied",
		"execution_id", exec.ExecutionID,
		"policy_id", exec.PolicyID,
		"target", exec.Target,
		"executed_by", actor)
	return nil
}

// fail records the failure on the row. Errors here are logged, not
// returned; the original failure is what callers report.
func (c *Controller) fail(ctx context.Context, exec *ledger.Execution, cause error) {
	exec.Error = cause.Error()
	if err := exec.TransitionTo(ledger.StatusFailed, c.now()); err != nil {
		c.logger.Error("marking execution failed",
			"execution_id", exec.ExecutionID, "error", err)
		return
	}
	if err := c.ledger.Update(ctx, exec); err != nil {
		c.logger.Error("recording failed execution",
			"execution_id", exec.ExecutionID, "error", err)
	}
}

// revertApplied undoes an applied change that could not be recorded.
func (c *Controller) revertApplied(ctx context.Context, diff *executor.Diff, cause error) {
	c.logger.Error("recording execution failed, reverting applied change",
		"target", diff.Target, "error", cause)
	if err := c.executor.Revert(ctx, diff); err != nil {
		c.logger.Error("revert after failed record also failed, manual cleanup required",
			"target", diff.Target, "error", err)
	}
}

// send delivers a notification and logs delivery refusal. Notification
// problems never fail the pipeline.
func (c *Controller) send(ctx context.Context, msg notify.Message) {
	if err := c.notifier.Send(ctx, msg); err != nil {
		c.logger.Warn("notification rejected", "kind", msg.Kind, "error", err)
	}
}

func planTargets(plan *engine.ActionPlan) []string {
	arns := make([]string, 0, len(plan.Targets))
	for _, t := range plan.Targets {
		arns = append(arns, t.Principal.ARN)
	}
	return arns
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
