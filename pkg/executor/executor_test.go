package executor

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/junki-kanda/AutGuardRails/pkg/policy"
	"github.com/junki-kanda/AutGuardRails/pkg/policy/engine"
)

func denyTarget(arn string, deny ...string) engine.PlanTarget {
	return engine.PlanTarget{
		Principal: policy.Principal{Type: policy.PrincipalRole, ARN: arn},
		Actions: []policy.Action{
			{Type: policy.ActionAttachDenyPolicy, Deny: deny},
			{Type: policy.ActionNotifyOnly},
		},
	}
}

func TestPreviewDenyTarget(t *testing.T) {
	target := denyTarget("arn:aws:iam::123456789012:role/ci-deployer",
		"ec2:StartInstances", "ec2:RunInstances")

	diff := Preview("ec2-spike", target)

	if diff.Action != policy.ActionAttachDenyPolicy {
		t.Errorf("Action = %q, want attach_deny_policy", diff.Action)
	}
	if !diff.DryRun {
		t.Error("preview diff must be marked dry_run")
	}
	if diff.NoChanges {
		t.Error("deny target preview must not be marked no_changes")
	}
	if diff.Target != "arn:aws:iam::123456789012:role/ci-deployer" {
		t.Errorf("Target = %q", diff.Target)
	}
	if diff.TargetName != "ci-deployer" {
		t.Errorf("TargetName = %q, want ci-deployer", diff.TargetName)
	}
	if len(diff.WouldDeny) != 2 || diff.WouldDeny[0] != "ec2:RunInstances" {
		t.Errorf("WouldDeny = %v, want sorted deny set", diff.WouldDeny)
	}
	if diff.DeniedActions != nil {
		t.Errorf("preview must not claim applied actions, got %v", diff.DeniedActions)
	}
	if !strings.HasPrefix(diff.PolicyName, "guardrails-deny-ec2-spike-") {
		t.Errorf("PolicyName = %q", diff.PolicyName)
	}
	if diff.PolicyARN != "" {
		t.Errorf("preview must not invent a policy ARN, got %q", diff.PolicyARN)
	}
}

func TestPreviewNotifyOnlyTarget(t *testing.T) {
	target := engine.PlanTarget{
		Principal: policy.Principal{Type: policy.PrincipalRole, ARN: "arn:aws:iam::123456789012:role/ci-deployer"},
		Actions:   []policy.Action{{Type: policy.ActionNotifyOnly}},
	}

	diff := Preview("ec2-spike", target)

	if diff.Action != policy.ActionNotifyOnly {
		t.Errorf("Action = %q, want notify_only", diff.Action)
	}
	if !diff.NoChanges {
		t.Error("notify_only preview must be marked no_changes")
	}
	if diff.DryRun {
		t.Error("no_changes diff needs no dry_run marker")
	}
}

func TestDiffEncodeParseRoundTrip(t *testing.T) {
	in := &Diff{
		Action:        policy.ActionAttachDenyPolicy,
		Target:        "arn:aws:iam::123456789012:role/ci-deployer",
		TargetType:    policy.PrincipalRole,
		TargetName:    "ci-deployer",
		DeniedActions: []string{"ec2:RunInstances"},
		PolicyARN:     "arn:aws:iam::123456789012:policy/guardrails-deny-ec2-spike-deadbeef",
		PolicyName:    "guardrails-deny-ec2-spike-deadbeef",
	}

	raw, err := in.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	out, err := ParseDiff(raw)
	if err != nil {
		t.Fatalf("ParseDiff() error = %v", err)
	}

	if out.Action != in.Action || out.Target != in.Target || out.PolicyARN != in.PolicyARN {
		t.Errorf("round trip changed diff: %+v", out)
	}
	if len(out.DeniedActions) != 1 || out.DeniedActions[0] != "ec2:RunInstances" {
		t.Errorf("DeniedActions = %v", out.DeniedActions)
	}
}

func TestParseDiffRejects(t *testing.T) {
	tests := []struct {
		name string
		raw  json.RawMessage
	}{
		{"empty", nil},
		{"garbage", json.RawMessage(`not json`)},
		{"unknown action", json.RawMessage(`{"action":"detach_everything","target":"arn"}`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseDiff(tt.raw); err == nil {
				t.Error("ParseDiff() accepted invalid input")
			}
		})
	}
}
