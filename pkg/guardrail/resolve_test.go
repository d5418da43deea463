package guardrail

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/junki-kanda/AutGuardRails/pkg/approval"
	"github.com/junki-kanda/AutGuardRails/pkg/ledger"
	"github.com/junki-kanda/AutGuardRails/pkg/notify"
	"github.com/junki-kanda/AutGuardRails/pkg/policy"
)

// pendingExecution runs one approve-mode evaluation and returns its planned
// row.
func pendingExecution(t *testing.T, f *fixture) *ledger.Execution {
	t.Helper()
	d := f.evaluate(t, testEvent("evt-1", 500))
	if d.Outcome != OutcomePendingApproval {
		t.Fatalf("outcome = %s, want %s", d.Outcome, OutcomePendingApproval)
	}
	return d.Executions[0]
}

// resolveRequest mints a well-formed decision link request for exec.
func resolveRequest(f *fixture, exec *ledger.Execution, decision approval.Decision, actor string) ResolveRequest {
	return ResolveRequest{
		ExecutionID: exec.ExecutionID,
		Decision:    decision,
		Token:       f.signer.Sign(exec.ExecutionID, exec.CreatedAt),
		Timestamp:   strconv.FormatInt(exec.CreatedAt.Unix(), 10),
		Actor:       actor,
	}
}

func TestResolveApprove(t *testing.T) {
	f := newFixture(t, testPolicy("ec2-spike", policy.ModeApprove))
	exec := pendingExecution(t, f)

	res, err := f.controller.ResolveApproval(context.Background(), resolveRequest(f, exec, approval.DecisionApprove, "alice"))
	if err != nil {
		t.Fatalf("ResolveApproval: %v", err)
	}
	if res.Outcome != ResolutionExecuted {
		t.Fatalf("outcome = %s, want %s", res.Outcome, ResolutionExecuted)
	}
	if res.Status != ledger.StatusExecuted {
		t.Errorf("status = %s, want %s", res.Status, ledger.StatusExecuted)
	}

	stored, err := f.store.Get(context.Background(), exec.ExecutionID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.Status != ledger.StatusExecuted {
		t.Errorf("stored status = %s", stored.Status)
	}
	if stored.ExecutedBy != "user:alice" {
		t.Errorf("executed by = %q, want user:alice", stored.ExecutedBy)
	}
	if stored.TTLExpiresAt == nil || !stored.TTLExpiresAt.Equal(testNow.Add(60*time.Minute)) {
		t.Errorf("ttl expiry = %v, want %v", stored.TTLExpiresAt, testNow.Add(60*time.Minute))
	}

	if n := f.executor.applyCount(); n != 1 {
		t.Fatalf("executor applied %d times, want 1", n)
	}

	msgs := f.notifier.byKind(notify.KindExecution)
	if len(msgs) != 1 {
		t.Fatalf("got %d execution notifications, want 1", len(msgs))
	}
	msg := msgs[0]
	if msg.Channel != "#cost-alerts" {
		t.Errorf("channel = %q", msg.Channel)
	}
	if len(msg.DenyActions) != 2 {
		t.Errorf("deny actions = %v", msg.DenyActions)
	}
	if msg.ExecutionID != exec.ExecutionID {
		t.Errorf("execution id = %q", msg.ExecutionID)
	}
}

func TestResolveReject(t *testing.T) {
	f := newFixture(t, testPolicy("ec2-spike", policy.ModeApprove))
	exec := pendingExecution(t, f)

	res, err := f.controller.ResolveApproval(context.Background(), resolveRequest(f, exec, approval.DecisionReject, ""))
	if err != nil {
		t.Fatalf("ResolveApproval: %v", err)
	}
	if res.Outcome != ResolutionRejected {
		t.Fatalf("outcome = %s, want %s", res.Outcome, ResolutionRejected)
	}

	stored, err := f.store.Get(context.Background(), exec.ExecutionID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.Status != ledger.StatusRejected {
		t.Errorf("stored status = %s", stored.Status)
	}
	if stored.ExecutedBy != "user:approval-link" {
		t.Errorf("executed by = %q", stored.ExecutedBy)
	}
	if n := f.executor.applyCount(); n != 0 {
		t.Errorf("executor applied %d times after rejection", n)
	}
	if msgs := f.notifier.byKind(notify.KindExecution); len(msgs) != 0 {
		t.Errorf("got %d execution notifications after rejection", len(msgs))
	}
}

func TestResolveUsesFrozenPlan(t *testing.T) {
	f := newFixture(t, testPolicy("ec2-spike", policy.ModeApprove))
	exec := pendingExecution(t, f)

	// The policy is edited while the approval is pending. The approver saw
	// the frozen plan, so that is what executes.
	edited := testPolicy("ec2-spike", policy.ModeApprove)
	edited.Actions = []policy.Action{{Type: policy.ActionAttachDenyPolicy, Deny: []string{"s3:PutObject"}}}
	f.policies.Replace([]*policy.GuardrailPolicy{edited})

	res, err := f.controller.ResolveApproval(context.Background(), resolveRequest(f, exec, approval.DecisionApprove, "alice"))
	if err != nil {
		t.Fatalf("ResolveApproval: %v", err)
	}
	if res.Outcome != ResolutionExecuted {
		t.Fatalf("outcome = %s", res.Outcome)
	}

	if n := f.executor.applyCount(); n != 1 {
		t.Fatalf("executor applied %d times", n)
	}
	applied := f.executor.applied[0].target
	deny := applied.DenyActions()
	if len(deny) != 2 || deny[0] != "ec2:RunInstances" || deny[1] != "ec2:StartInstances" {
		t.Errorf("applied deny = %v, want the plan frozen at creation", deny)
	}
}

func TestResolveWhenPolicyDeleted(t *testing.T) {
	f := newFixture(t, testPolicy("ec2-spike", policy.ModeApprove))
	exec := pendingExecution(t, f)

	f.policies.Replace(nil)

	res, err := f.controller.ResolveApproval(context.Background(), resolveRequest(f, exec, approval.DecisionApprove, "alice"))
	if err != nil {
		t.Fatalf("ResolveApproval: %v", err)
	}
	if res.Outcome != ResolutionExecuted {
		t.Fatalf("outcome = %s", res.Outcome)
	}

	// Routing falls back to the webhook default channel.
	msgs := f.notifier.byKind(notify.KindExecution)
	if len(msgs) != 1 {
		t.Fatalf("got %d execution notifications", len(msgs))
	}
	if msgs[0].Channel != "" {
		t.Errorf("channel = %q, want default", msgs[0].Channel)
	}
}

func TestResolveRejectsBadLinks(t *testing.T) {
	f := newFixture(t, testPolicy("ec2-spike", policy.ModeApprove))
	exec := pendingExecution(t, f)
	good := resolveRequest(f, exec, approval.DecisionApprove, "alice")

	staleIssued := testNow.Add(-2 * time.Hour)

	cases := []struct {
		name string
		req  ResolveRequest
	}{
		{"tampered token", func() ResolveRequest {
			r := good
			r.Token = "0" + r.Token[1:]
			return r
		}()},
		{"timestamp mismatch", func() ResolveRequest {
			r := good
			r.Timestamp = strconv.FormatInt(exec.CreatedAt.Unix()+1, 10)
			return r
		}()},
		{"garbage timestamp", func() ResolveRequest {
			r := good
			r.Timestamp = "not-a-number"
			return r
		}()},
		{"unknown decision", func() ResolveRequest {
			r := good
			r.Decision = approval.Decision("escalate")
			return r
		}()},
		{"expired link", ResolveRequest{
			ExecutionID: exec.ExecutionID,
			Decision:    approval.DecisionApprove,
			Token:       f.signer.Sign(exec.ExecutionID, staleIssued),
			Timestamp:   strconv.FormatInt(staleIssued.Unix(), 10),
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.controller.ResolveApproval(context.Background(), tc.req)
			if !errors.Is(err, approval.ErrInvalidToken) {
				t.Fatalf("err = %v, want ErrInvalidToken", err)
			}
		})
	}

	// None of the bad links touched the row.
	stored, err := f.store.Get(context.Background(), exec.ExecutionID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.Status != ledger.StatusPlanned {
		t.Errorf("stored status = %s, want %s", stored.Status, ledger.StatusPlanned)
	}
	if n := f.executor.applyCount(); n != 0 {
		t.Errorf("executor applied %d times", n)
	}
}

func TestResolveUnknownExecution(t *testing.T) {
	f := newFixture(t, testPolicy("ec2-spike", policy.ModeApprove))

	req := ResolveRequest{
		ExecutionID: "exec-missing",
		Decision:    approval.DecisionApprove,
		Token:       f.signer.Sign("exec-missing", testNow),
		Timestamp:   strconv.FormatInt(testNow.Unix(), 10),
	}
	_, err := f.controller.ResolveApproval(context.Background(), req)
	var notFound *ledger.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("err = %v, want NotFoundError", err)
	}
}

func TestResolveAlreadyResolved(t *testing.T) {
	f := newFixture(t, testPolicy("ec2-spike", policy.ModeApprove))
	exec := pendingExecution(t, f)

	if _, err := f.controller.ResolveApproval(context.Background(), resolveRequest(f, exec, approval.DecisionApprove, "alice")); err != nil {
		t.Fatalf("first resolve: %v", err)
	}

	// The second click on either link reports the settled state.
	res, err := f.controller.ResolveApproval(context.Background(), resolveRequest(f, exec, approval.DecisionReject, "bob"))
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if res.Outcome != ResolutionAlreadyResolved {
		t.Fatalf("outcome = %s, want %s", res.Outcome, ResolutionAlreadyResolved)
	}
	if res.Status != ledger.StatusExecuted {
		t.Errorf("status = %s, want %s", res.Status, ledger.StatusExecuted)
	}
	if n := f.executor.applyCount(); n != 1 {
		t.Errorf("executor applied %d times, want 1", n)
	}
}

func TestResolveExpiredRow(t *testing.T) {
	f := newFixture(t, testPolicy("ec2-spike", policy.ModeApprove))
	exec := pendingExecution(t, f)

	// The sweeper expired the row before anyone clicked.
	stored, err := f.store.Get(context.Background(), exec.ExecutionID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if err := stored.TransitionTo(ledger.StatusExpired, testNow.Add(2*time.Hour)); err != nil {
		t.Fatalf("TransitionTo: %v", err)
	}
	if err := f.store.Update(context.Background(), stored); err != nil {
		t.Fatalf("Update: %v", err)
	}

	res, err := f.controller.ResolveApproval(context.Background(), resolveRequest(f, exec, approval.DecisionApprove, "alice"))
	if err != nil {
		t.Fatalf("ResolveApproval: %v", err)
	}
	if res.Outcome != ResolutionAlreadyResolved {
		t.Fatalf("outcome = %s, want %s", res.Outcome, ResolutionAlreadyResolved)
	}
	if res.Status != ledger.StatusExpired {
		t.Errorf("status = %s, want %s", res.Status, ledger.StatusExpired)
	}
	if n := f.executor.applyCount(); n != 0 {
		t.Errorf("executor applied %d times", n)
	}
}

func TestResolveDoubleClick(t *testing.T) {
	f := newFixture(t, testPolicy("ec2-spike", policy.ModeApprove))
	exec := pendingExecution(t, f)
	req := resolveRequest(f, exec, approval.DecisionApprove, "alice")

	var wg sync.WaitGroup
	results := make([]*Resolution, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.controller.ResolveApproval(context.Background(), req)
		}(i)
	}
	wg.Wait()

	executed, alreadyResolved := 0, 0
	for i := 0; i < 2; i++ {
		if errs[i] != nil {
			t.Fatalf("resolve %d: %v", i, errs[i])
		}
		switch results[i].Outcome {
		case ResolutionExecuted:
			executed++
		case ResolutionAlreadyResolved:
			alreadyResolved++
		default:
			t.Errorf("resolve %d outcome = %s", i, results[i].Outcome)
		}
	}
	if executed != 1 || alreadyResolved != 1 {
		t.Errorf("executed=%d alreadyResolved=%d, want exactly one of each", executed, alreadyResolved)
	}
	if n := f.executor.applyCount(); n != 1 {
		t.Errorf("executor applied %d times, want 1", n)
	}
}

func TestResolveApplyFailure(t *testing.T) {
	f := newFixture(t, testPolicy("ec2-spike", policy.ModeApprove))
	exec := pendingExecution(t, f)
	f.executor.applyErr = errors.New("iam throttled")

	res, err := f.controller.ResolveApproval(context.Background(), resolveRequest(f, exec, approval.DecisionApprove, "alice"))
	if err != nil {
		t.Fatalf("ResolveApproval: %v", err)
	}
	if res.Outcome != ResolutionFailed {
		t.Fatalf("outcome = %s, want %s", res.Outcome, ResolutionFailed)
	}
	if res.Error == "" {
		t.Error("resolution carries no error")
	}

	stored, err := f.store.Get(context.Background(), exec.ExecutionID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.Status != ledger.StatusFailed {
		t.Errorf("stored status = %s, want %s", stored.Status, ledger.StatusFailed)
	}
	if msgs := f.notifier.byKind(notify.KindExecution); len(msgs) != 0 {
		t.Errorf("got %d execution notifications after failure", len(msgs))
	}
}
