package event

import (
	"time"

	"github.com/google/uuid"
)

// Source identifies the upstream detector that produced a cost event.
type Source string

const (
	// SourceBudget is an AWS Budgets threshold notification.
	SourceBudget Source = "budget_threshold"

	// SourceAnomaly is an AWS Cost Anomaly Detection alert.
	SourceAnomaly Source = "anomaly_detection"
)

// Valid reports whether s is a known source kind.
func (s Source) Valid() bool {
	switch s {
	case SourceBudget, SourceAnomaly:
		return true
	}
	return false
}

// Detail keys recognized by the policy matcher. Anything else in the details
// map is carried through for audit purposes only.
const (
	DetailService      = "service"
	DetailRegion       = "region"
	DetailPrincipalARN = "principal_arn"
	DetailBudgetName   = "budget_name"
	DetailAnomalyID    = "anomaly_id"
)

// CostEvent is a normalized cost signal: one spend observation attributed to
// a single account over a time window. Events are immutable after creation
// and may be delivered more than once with the same EventID.
type CostEvent struct {
	// EventID uniquely identifies this event. Parsers derive it from the
	// upstream payload where a stable identifier exists.
	EventID string `json:"event_id"`

	// Source is the detector kind that produced the event.
	Source Source `json:"source"`

	// AccountID is the owning account, exactly 12 digits.
	AccountID string `json:"account_id"`

	// AmountUSD is the observed spend. Always positive.
	AmountUSD float64 `json:"amount_usd"`

	// WindowStart and WindowEnd bound the cost aggregation window. For
	// point-in-time notifications both carry the notification timestamp.
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`

	// Details carries free-form source attributes (service, region,
	// principal_arn, ...).
	Details map[string]string `json:"details,omitempty"`
}

// NewEventID returns a fresh unique event identifier.
func NewEventID() string {
	return "evt-" + uuid.New().String()
}

// Detail returns the named detail value, or "" when absent.
func (e *CostEvent) Detail(key string) string {
	if e.Details == nil {
		return ""
	}
	return e.Details[key]
}

// Validate checks the event against the ingest contract. Invalid events are
// rejected before they ever reach policy evaluation; they are never coerced.
func (e *CostEvent) Validate() error {
	if e.EventID == "" {
		return &ValidationError{Field: "event_id", Reason: "must not be empty"}
	}
	if !e.Source.Valid() {
		return &ValidationError{Field: "source", Reason: "unknown source kind " + string(e.Source)}
	}
	if !ValidAccountID(e.AccountID) {
		return &ValidationError{Field: "account_id", Reason: "must be exactly 12 digits"}
	}
	if e.AmountUSD <= 0 {
		return &ValidationError{Field: "amount_usd", Reason: "must be positive"}
	}
	if !e.WindowEnd.IsZero() && !e.WindowStart.IsZero() && e.WindowEnd.Before(e.WindowStart) {
		return &ValidationError{Field: "window_end", Reason: "must not precede window_start"}
	}
	return nil
}

// ValidAccountID reports whether s is a well-formed 12-digit account id.
func ValidAccountID(s string) bool {
	if len(s) != 12 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
