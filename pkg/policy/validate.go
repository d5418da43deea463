package policy

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/junki-kanda/AutGuardRails/pkg/event"
)

// policyIDPattern is the character set IAM accepts in managed policy names.
// The policy ID is embedded in generated deny policy names, so it has to
// stay within this set.
var policyIDPattern = regexp.MustCompile(`^[a-zA-Z0-9+=,.@_-]+$`)

// deletionClassActions are rejected in deny lists. The controller only ever
// applies reversible restrictions, and a deny list naming destructive
// operations invites policies that look like remediations but are written
// to break workloads.
var deletionClassActions = map[string]struct{}{
	"s3:DeleteBucket":        {},
	"dynamodb:DeleteTable":   {},
	"rds:DeleteDBInstance":   {},
	"ec2:TerminateInstances": {},
	"ec2:DeleteVolume":       {},
}

const principalARNPrefix = "arn:aws:iam::"

// Validate checks the policy against the full rule set and returns a
// *ValidationError listing every violation, or nil if the policy is sound.
func (p *GuardrailPolicy) Validate() error {
	var errs []string

	if p.PolicyID == "" {
		errs = append(errs, "policy_id is required")
	} else if !policyIDPattern.MatchString(p.PolicyID) {
		errs = append(errs, fmt.Sprintf("policy_id %q contains characters outside [a-zA-Z0-9+=,.@_-]", p.PolicyID))
	}

	if !p.Mode.Valid() {
		errs = append(errs, fmt.Sprintf("invalid mode %q (want simulate, approve, or automatic)", p.Mode))
	}

	if p.TTLMinutes < 0 {
		errs = append(errs, "ttl_minutes must not be negative")
	}

	errs = append(errs, p.Match.validate()...)
	errs = append(errs, p.Scope.validate()...)
	errs = append(errs, validateActions(p.Actions)...)

	if p.Notify.SlackChannel == "" {
		errs = append(errs, "notify.slack_channel is required")
	}

	if p.Exceptions != nil {
		errs = append(errs, p.Exceptions.validate()...)
	}

	if len(errs) > 0 {
		return &ValidationError{PolicyID: p.PolicyID, Errors: errs}
	}
	return nil
}

func (m *Match) validate() []string {
	var errs []string

	if len(m.Sources) == 0 {
		errs = append(errs, "match.sources must list at least one source")
	}
	for _, s := range m.Sources {
		if !s.Valid() {
			errs = append(errs, fmt.Sprintf("match.sources: unknown source %q", s))
		}
	}

	if len(m.AccountIDs) == 0 {
		errs = append(errs, "match.account_ids must list at least one account")
	}
	for _, id := range m.AccountIDs {
		if !event.ValidAccountID(id) {
			errs = append(errs, fmt.Sprintf("match.account_ids: invalid account id %q", id))
		}
	}

	if m.MinAmountUSD <= 0 {
		errs = append(errs, "match.min_amount_usd must be positive")
	}
	if m.MaxAmountUSD < 0 {
		errs = append(errs, "match.max_amount_usd must not be negative")
	} else if m.MaxAmountUSD != 0 && m.MaxAmountUSD <= m.MinAmountUSD {
		errs = append(errs, "match.max_amount_usd must exceed match.min_amount_usd")
	}

	return errs
}

func (s *Scope) validate() []string {
	var errs []string

	if len(s.Principals) == 0 {
		errs = append(errs, "scope.principals must list at least one principal")
	}
	for i, pr := range s.Principals {
		if !pr.Type.Valid() {
			errs = append(errs, fmt.Sprintf("scope.principals[%d]: invalid type %q (want iam_role or iam_user)", i, pr.Type))
		}
		if !strings.HasPrefix(pr.ARN, principalARNPrefix) {
			errs = append(errs, fmt.Sprintf("scope.principals[%d]: arn must start with %q", i, principalARNPrefix))
		}
		if strings.Contains(pr.ARN, "*") {
			errs = append(errs, fmt.Sprintf("scope.principals[%d]: wildcard arns are not allowed", i))
		}
	}

	return errs
}

func validateActions(actions []Action) []string {
	var errs []string

	if len(actions) == 0 {
		errs = append(errs, "actions must list at least one action")
	}
	for i, a := range actions {
		if !a.Type.Valid() {
			errs = append(errs, fmt.Sprintf("actions[%d]: invalid type %q", i, a.Type))
			continue
		}
		if a.Type == ActionAttachDenyPolicy && len(a.Deny) == 0 {
			errs = append(errs, fmt.Sprintf("actions[%d]: attach_deny_policy requires a non-empty deny list", i))
		}
		for _, op := range a.Deny {
			if op == "" {
				errs = append(errs, fmt.Sprintf("actions[%d]: deny list contains an empty entry", i))
				continue
			}
			if _, bad := deletionClassActions[op]; bad {
				errs = append(errs, fmt.Sprintf("actions[%d]: deny list contains deletion-class operation %q", i, op))
			}
		}
	}

	return errs
}

func (e *Exceptions) validate() []string {
	var errs []string

	for _, id := range e.Accounts {
		if !event.ValidAccountID(id) {
			errs = append(errs, fmt.Sprintf("exceptions.accounts: invalid account id %q", id))
		}
	}
	for i, p := range e.Principals {
		if p == "" {
			errs = append(errs, fmt.Sprintf("exceptions.principals[%d]: empty pattern", i))
		}
	}
	for i, w := range e.TimeWindows {
		errs = append(errs, w.validate(i)...)
	}

	return errs
}

func (w *ExceptionWindow) validate(idx int) []string {
	var errs []string

	start, err := parseClock(w.Start)
	if err != nil {
		errs = append(errs, fmt.Sprintf("exceptions.time_windows[%d]: start: %v", idx, err))
	}
	end, err := parseClock(w.End)
	if err != nil {
		errs = append(errs, fmt.Sprintf("exceptions.time_windows[%d]: end: %v", idx, err))
	} else if len(errs) == 0 && end <= start {
		errs = append(errs, fmt.Sprintf("exceptions.time_windows[%d]: end must be after start (declare overnight windows as two windows)", idx))
	}

	if w.Timezone == "" {
		errs = append(errs, fmt.Sprintf("exceptions.time_windows[%d]: timezone is required", idx))
	} else if _, err := time.LoadLocation(w.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("exceptions.time_windows[%d]: unknown timezone %q", idx, w.Timezone))
	}

	for _, d := range w.Days {
		if _, ok := weekdayAbbrev[strings.ToLower(d)]; !ok {
			errs = append(errs, fmt.Sprintf("exceptions.time_windows[%d]: unknown day %q (want mon..sun)", idx, d))
		}
	}

	return errs
}
