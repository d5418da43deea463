package policy

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/junki-kanda/AutGuardRails/pkg/event"
)

// Mode controls how far the controller goes when a policy matches.
type Mode string

const (
	// ModeSimulate evaluates and notifies but never touches IAM and never
	// writes an execution record.
	ModeSimulate Mode = "simulate"

	// ModeApprove plans the action and waits for a signed human approval
	// before executing.
	ModeApprove Mode = "approve"

	// ModeAutomatic executes the action synchronously during evaluation.
	ModeAutomatic Mode = "automatic"
)

// Valid reports whether m is one of the recognized modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeSimulate, ModeApprove, ModeAutomatic:
		return true
	}
	return false
}

// PrincipalType identifies the kind of IAM principal a policy targets.
type PrincipalType string

const (
	PrincipalRole PrincipalType = "iam_role"
	PrincipalUser PrincipalType = "iam_user"
)

// Valid reports whether t is a recognized principal type.
func (t PrincipalType) Valid() bool {
	return t == PrincipalRole || t == PrincipalUser
}

// ActionType identifies a remediation the controller knows how to apply.
type ActionType string

const (
	// ActionAttachDenyPolicy attaches a generated deny-only IAM policy to
	// every principal in the scope.
	ActionAttachDenyPolicy ActionType = "attach_deny_policy"

	// ActionNotifyOnly sends notifications without changing IAM state.
	ActionNotifyOnly ActionType = "notify_only"
)

// Valid reports whether t is a recognized action type.
func (t ActionType) Valid() bool {
	return t == ActionAttachDenyPolicy || t == ActionNotifyOnly
}

// Principal is a single IAM role or user targeted by a policy's scope.
type Principal struct {
	Type PrincipalType `yaml:"type" json:"type"`
	ARN  string        `yaml:"arn" json:"arn"`
}

// Name returns the resource name portion of the principal ARN, which is what
// the IAM attach and detach calls expect. Paths are stripped, so
// "arn:aws:iam::123456789012:role/ops/ci-deployer" yields "ci-deployer".
func (p Principal) Name() string {
	idx := strings.LastIndex(p.ARN, "/")
	if idx < 0 || idx == len(p.ARN)-1 {
		return p.ARN
	}
	return p.ARN[idx+1:]
}

// Match is the predicate deciding whether a cost event triggers the policy.
// All populated fields must hold for the policy to match.
type Match struct {
	// Sources lists the event sources the policy reacts to.
	Sources []event.Source `yaml:"sources" json:"sources"`

	// AccountIDs restricts the policy to events from these accounts.
	AccountIDs []string `yaml:"account_ids" json:"account_ids"`

	// MinAmountUSD is the inclusive lower bound on the event amount.
	MinAmountUSD float64 `yaml:"min_amount_usd" json:"min_amount_usd"`

	// MaxAmountUSD is the inclusive upper bound on the event amount.
	// Zero means no upper bound.
	MaxAmountUSD float64 `yaml:"max_amount_usd,omitempty" json:"max_amount_usd,omitempty"`

	// Services optionally restricts matching to events whose service
	// detail is in this list.
	Services []string `yaml:"services,omitempty" json:"services,omitempty"`

	// Regions optionally restricts matching to events whose region detail
	// is in this list.
	Regions []string `yaml:"regions,omitempty" json:"regions,omitempty"`
}

// Scope fixes the set of principals an action is applied to. The matched
// event never widens or narrows it.
type Scope struct {
	Principals []Principal `yaml:"principals" json:"principals"`
}

// Action is one remediation step. Policies carry an ordered list; the plan
// preserves the order.
type Action struct {
	Type ActionType `yaml:"type" json:"type"`

	// Deny lists the IAM actions the generated deny policy blocks.
	// Required for attach_deny_policy, ignored for notify_only.
	Deny []string `yaml:"deny,omitempty" json:"deny,omitempty"`
}

// Notify names the channel and people to alert whenever the policy fires.
type Notify struct {
	SlackChannel string   `yaml:"slack_channel" json:"slack_channel"`
	MentionUsers []string `yaml:"mention_users,omitempty" json:"mention_users,omitempty"`
}

// Exceptions carve events out of a policy that would otherwise match.
// Any single exception suppresses the match.
type Exceptions struct {
	// Accounts are exempt account IDs.
	Accounts []string `yaml:"accounts,omitempty" json:"accounts,omitempty"`

	// Principals are exempt principal ARNs. A trailing "*" matches any
	// ARN with the preceding prefix; otherwise the comparison is exact.
	Principals []string `yaml:"principals,omitempty" json:"principals,omitempty"`

	// TimeWindows exempt events evaluated inside any of the windows.
	TimeWindows []ExceptionWindow `yaml:"time_windows,omitempty" json:"time_windows,omitempty"`
}

// ExceptionWindow is a recurring weekly window during which a policy does
// not fire, for example a maintenance window where load spikes are expected.
type ExceptionWindow struct {
	// Start and End are wall-clock times in "HH:MM" form, inclusive on
	// both ends. End must be after Start; an overnight window is declared
	// as two windows.
	Start string `yaml:"start" json:"start"`
	End   string `yaml:"end" json:"end"`

	// Timezone is the IANA zone the wall-clock times are interpreted in.
	Timezone string `yaml:"timezone" json:"timezone"`

	// Days restricts the window to these weekdays ("mon" through "sun").
	// Empty means every day.
	Days []string `yaml:"days,omitempty" json:"days,omitempty"`
}

var weekdayAbbrev = map[string]time.Weekday{
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
	"sun": time.Sunday,
}

// Contains reports whether t falls inside the window. The instant is
// converted into the window's timezone before the weekday and wall-clock
// checks, so a window declared in Asia/Tokyo behaves the same no matter
// where the controller runs.
func (w ExceptionWindow) Contains(t time.Time) bool {
	loc, err := time.LoadLocation(w.Timezone)
	if err != nil {
		// Validation rejects unknown zones before a policy is loaded,
		// so an error here means the window never applies.
		return false
	}
	local := t.In(loc)

	if len(w.Days) > 0 {
		ok := false
		for _, d := range w.Days {
			if wd, known := weekdayAbbrev[strings.ToLower(d)]; known && wd == local.Weekday() {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}

	startMin, err := parseClock(w.Start)
	if err != nil {
		return false
	}
	endMin, err := parseClock(w.End)
	if err != nil {
		return false
	}
	nowMin := local.Hour()*60 + local.Minute()
	return nowMin >= startMin && nowMin <= endMin
}

// parseClock converts an "HH:MM" wall-clock string to minutes after
// midnight.
func parseClock(s string) (int, error) {
	hh, mm, ok := strings.Cut(s, ":")
	if !ok {
		return 0, fmt.Errorf("invalid clock time %q: want HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q: %w", s, err)
	}
	m, err := strconv.Atoi(mm)
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid clock time %q: out of range", s)
	}
	return h*60 + m, nil
}

// GuardrailPolicy is one guardrail: a match predicate, a principal scope,
// an ordered action list, and the mode and ttl governing execution.
type GuardrailPolicy struct {
	PolicyID    string `yaml:"policy_id" json:"policy_id"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Enabled policies participate in matching. Defaults to true.
	Enabled bool `yaml:"enabled" json:"enabled"`

	Mode Mode `yaml:"mode" json:"mode"`

	// TTLMinutes is how long an executed action stays in place before the
	// sweeper rolls it back. Zero means no automatic rollback.
	TTLMinutes int `yaml:"ttl_minutes" json:"ttl_minutes"`

	Match   Match    `yaml:"match" json:"match"`
	Scope   Scope    `yaml:"scope" json:"scope"`
	Actions []Action `yaml:"actions" json:"actions"`
	Notify  Notify   `yaml:"notify" json:"notify"`

	Exceptions *Exceptions `yaml:"exceptions,omitempty" json:"exceptions,omitempty"`
}
