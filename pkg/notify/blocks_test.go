package notify

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/junki-kanda/AutGuardRails/pkg/policy"
)

func renderPayload(t *testing.T, msg Message) string {
	t.Helper()
	raw, err := json.Marshal(buildPayload(msg))
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return string(raw)
}

func TestSimulationPayload(t *testing.T) {
	msg := Message{
		Kind:        KindSimulation,
		Channel:     "#cost-alerts",
		PolicyID:    "ec2-spike",
		EventID:     "evt-1",
		Mode:        policy.ModeSimulate,
		AmountUSD:   1200.50,
		Targets:     []string{"arn:aws:iam::123456789012:role/ci-deployer"},
		DenyActions: []string{"ec2:RunInstances"},
	}
	raw := renderPayload(t, msg)

	for _, want := range []string{"#cost-alerts", "ec2-spike", "evt-1", "1200.50", "No changes were made", "ec2:RunInstances"} {
		if !strings.Contains(raw, want) {
			t.Errorf("payload missing %q:\n%s", want, raw)
		}
	}
}

func TestApprovalRequestPayload(t *testing.T) {
	msg := Message{
		Kind:        KindApprovalRequest,
		Channel:     "#cost-alerts",
		Mentions:    []string{"U024BE7LH", "@U0AAAAAAA"},
		PolicyID:    "ec2-spike",
		EventID:     "evt-1",
		ExecutionID: "exec-1",
		AmountUSD:   900,
		Targets:     []string{"arn:aws:iam::123456789012:role/ci-deployer"},
		DenyActions: []string{"ec2:RunInstances", "ec2:StartInstances"},
		TTLMinutes:  120,
		ApproveURL:  "https://guardrails.internal/approve?id=exec-1&decision=approve",
		RejectURL:   "https://guardrails.internal/approve?id=exec-1&decision=reject",
		ExpiresAt:   time.Date(2026, 3, 10, 13, 0, 0, 0, time.UTC),
	}
	raw := renderPayload(t, msg)

	for _, want := range []string{
		"<@U024BE7LH>",
		"<@U0AAAAAAA>",
		"decision=approve",
		"decision=reject",
		"exec-1",
		"after 120 minutes",
		"2026-03-10 13:00 UTC",
	} {
		if !strings.Contains(raw, want) {
			t.Errorf("payload missing %q:\n%s", want, raw)
		}
	}
	if strings.Contains(raw, "<@@") {
		t.Error("leading @ not stripped from mention")
	}
}

func TestExecutionPayload(t *testing.T) {
	msg := Message{
		Kind:        KindExecution,
		PolicyID:    "ec2-spike",
		ExecutionID: "exec-1",
		Targets:     []string{"arn:aws:iam::123456789012:role/ci-deployer"},
		DenyActions: []string{"ec2:RunInstances"},
		RollbackAt:  time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC),
	}
	raw := renderPayload(t, msg)

	if !strings.Contains(raw, "Rolls back automatically at 2026-03-10 14:00 UTC") {
		t.Errorf("payload missing rollback time:\n%s", raw)
	}

	msg.RollbackAt = time.Time{}
	raw = renderPayload(t, msg)
	if strings.Contains(raw, "Rolls back automatically") {
		t.Error("zero rollback time still announced")
	}
}

func TestRollbackPayload(t *testing.T) {
	ok := Message{
		Kind:        KindRollback,
		ExecutionID: "exec-1",
		Targets:     []string{"arn:aws:iam::123456789012:role/ci-deployer"},
	}
	raw := renderPayload(t, ok)
	if !strings.Contains(raw, "rolled back") || strings.Contains(raw, "failed") {
		t.Errorf("success payload wrong:\n%s", raw)
	}

	failed := ok
	failed.Error = "throttled"
	failed.Failures = 2
	raw = renderPayload(t, failed)
	if !strings.Contains(raw, "failed") || !strings.Contains(raw, "throttled") || !strings.Contains(raw, "attempt 2") {
		t.Errorf("failure payload wrong:\n%s", raw)
	}
}

func TestEscalationPayload(t *testing.T) {
	msg := Message{
		Kind:        KindEscalation,
		Mentions:    []string{"U024BE7LH"},
		ExecutionID: "exec-1",
		Targets:     []string{"arn:aws:iam::123456789012:role/ci-deployer"},
		Error:       "access denied",
		Failures:    3,
	}
	raw := renderPayload(t, msg)

	for _, want := range []string{"<@U024BE7LH>", "manual intervention", "failed 3 times", "access denied", "still attached"} {
		if !strings.Contains(raw, want) {
			t.Errorf("payload missing %q:\n%s", want, raw)
		}
	}
}

func TestHeadlinePerKind(t *testing.T) {
	tests := []struct {
		msg  Message
		want string
	}{
		{Message{Kind: KindSimulation, PolicyID: "p"}, "simulation"},
		{Message{Kind: KindApprovalRequest, PolicyID: "p"}, "approval required"},
		{Message{Kind: KindExecution, PolicyID: "p"}, "executed"},
		{Message{Kind: KindRollback, ExecutionID: "e"}, "rolled back"},
		{Message{Kind: KindRollback, ExecutionID: "e", Error: "x"}, "rollback failed"},
		{Message{Kind: KindEscalation, ExecutionID: "e"}, "manual intervention"},
	}
	for _, tt := range tests {
		t.Run(string(tt.msg.Kind), func(t *testing.T) {
			got := headline(tt.msg)
			if !strings.Contains(got, tt.want) {
				t.Errorf("headline() = %q, want substring %q", got, tt.want)
			}
		})
	}
}
