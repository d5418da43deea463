package engine

import (
	"sort"

	"github.com/junki-kanda/AutGuardRails/pkg/event"
	"github.com/junki-kanda/AutGuardRails/pkg/policy"
)

// ActionPlan is the concrete, frozen outcome of a match: which policy
// fired, for which event, and exactly which principals get which actions.
// Everything downstream (simulation, approval, execution) works from the
// plan; the policy set can change afterwards without affecting it.
type ActionPlan struct {
	PolicyID   string        `json:"policy_id"`
	EventID    string        `json:"event_id"`
	Mode       policy.Mode   `json:"mode"`
	TTLMinutes int           `json:"ttl_minutes"`
	Notify     policy.Notify `json:"notify"`
	Targets    []PlanTarget  `json:"targets"`
}

// PlanTarget is one principal from the policy scope together with the
// ordered actions to apply to it.
type PlanTarget struct {
	Principal policy.Principal `json:"principal"`
	Actions   []policy.Action  `json:"actions"`
}

// BuildPlan expands a matched policy into an ActionPlan: one target per
// scope principal, each carrying the policy's full action list in declared
// order.
func BuildPlan(p *policy.GuardrailPolicy, ev *event.CostEvent) *ActionPlan {
	plan := &ActionPlan{
		PolicyID:   p.PolicyID,
		EventID:    ev.EventID,
		Mode:       p.Mode,
		TTLMinutes: p.TTLMinutes,
		Notify:     p.Notify,
		Targets:    make([]PlanTarget, 0, len(p.Scope.Principals)),
	}
	for _, pr := range p.Scope.Principals {
		plan.Targets = append(plan.Targets, PlanTarget{
			Principal: pr,
			Actions:   p.Actions,
		})
	}
	return plan
}

// DenyActions returns the union of all attach_deny_policy deny lists on the
// target, deduplicated and sorted. The sorted form keeps generated deny
// policy documents, and therefore their content hashes, stable.
func (t PlanTarget) DenyActions() []string {
	set := make(map[string]struct{})
	for _, a := range t.Actions {
		if a.Type != policy.ActionAttachDenyPolicy {
			continue
		}
		for _, op := range a.Deny {
			set[op] = struct{}{}
		}
	}

	out := make([]string, 0, len(set))
	for op := range set {
		out = append(out, op)
	}
	sort.Strings(out)
	return out
}

// IAMChange reports whether applying the target touches IAM at all. A
// target whose actions are all notify_only executes trivially and leaves
// nothing to roll back.
func (t PlanTarget) IAMChange() bool {
	for _, a := range t.Actions {
		if a.Type == policy.ActionAttachDenyPolicy {
			return true
		}
	}
	return false
}
