package engine

import (
	"log/slog"
	"strings"
	"time"

	"github.com/junki-kanda/AutGuardRails/pkg/event"
	"github.com/junki-kanda/AutGuardRails/pkg/policy"
)

// Matcher evaluates cost events against an ordered policy set.
type Matcher struct {
	logger *slog.Logger
}

// NewMatcher creates a matcher.
func NewMatcher() *Matcher {
	return &Matcher{
		logger: slog.With("component", "policy-matcher"),
	}
}

// Match returns the first enabled policy in order whose predicate holds for
// the event and which is not exempted at the given instant, or nil when no
// policy applies. Evaluating the same event against the same set at the
// same instant always yields the same policy.
func (m *Matcher) Match(ev *event.CostEvent, policies []*policy.GuardrailPolicy, now time.Time) *policy.GuardrailPolicy {
	for _, p := range policies {
		if !p.Enabled {
			continue
		}
		if !m.predicateHolds(p, ev) {
			continue
		}
		if reason, exempt := m.exempted(p, ev, now); exempt {
			m.logger.Info("policy exempted",
				"policy_id", p.PolicyID,
				"event_id", ev.EventID,
				"reason", reason,
			)
			continue
		}
		return p
	}
	return nil
}

// predicateHolds checks the match block field by field. Every populated
// field must hold.
func (m *Matcher) predicateHolds(p *policy.GuardrailPolicy, ev *event.CostEvent) bool {
	if !containsSource(p.Match.Sources, ev.Source) {
		return false
	}
	if !containsString(p.Match.AccountIDs, ev.AccountID) {
		return false
	}
	if ev.AmountUSD < p.Match.MinAmountUSD {
		return false
	}
	if p.Match.MaxAmountUSD != 0 && ev.AmountUSD > p.Match.MaxAmountUSD {
		return false
	}
	if len(p.Match.Services) > 0 && !containsString(p.Match.Services, ev.Detail(event.DetailService)) {
		return false
	}
	if len(p.Match.Regions) > 0 && !containsString(p.Match.Regions, ev.Detail(event.DetailRegion)) {
		return false
	}
	return true
}

// exempted reports whether any exemption suppresses the match, and why.
func (m *Matcher) exempted(p *policy.GuardrailPolicy, ev *event.CostEvent, now time.Time) (string, bool) {
	ex := p.Exceptions
	if ex == nil {
		return "", false
	}

	if containsString(ex.Accounts, ev.AccountID) {
		return "account " + ev.AccountID + " is exempt", true
	}

	if arn := ev.Detail(event.DetailPrincipalARN); arn != "" {
		for _, pattern := range ex.Principals {
			if principalMatches(arn, pattern) {
				return "principal matches exempt pattern " + pattern, true
			}
		}
	}

	for _, w := range ex.TimeWindows {
		if w.Contains(now) {
			return "inside exempt time window " + w.Start + "-" + w.End + " " + w.Timezone, true
		}
	}

	return "", false
}

// principalMatches compares an ARN against an exemption pattern. A trailing
// "*" matches any ARN with the preceding prefix; anything else is an exact
// comparison.
func principalMatches(arn, pattern string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(arn, prefix)
	}
	return arn == pattern
}

func containsSource(list []event.Source, s event.Source) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
