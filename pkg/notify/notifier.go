package notify

import (
	"context"
	"time"

	"github.com/junki-kanda/AutGuardRails/pkg/policy"
)

// Kind classifies a notification.
type Kind string

const (
	// KindSimulation reports a simulate-mode match. Nothing was changed.
	KindSimulation Kind = "simulation"

	// KindApprovalRequest asks a human to approve or reject a planned
	// execution.
	KindApprovalRequest Kind = "approval_request"

	// KindExecution reports an applied action.
	KindExecution Kind = "execution"

	// KindRollback reports a rollback attempt, successful or not.
	KindRollback Kind = "rollback"

	// KindEscalation reports a rollback that repeatedly failed and needs a
	// human.
	KindEscalation Kind = "escalation"
)

// Message is one notification about a guardrail decision. Fields that do
// not apply to the kind stay zero.
type Message struct {
	Kind     Kind
	Channel  string
	Mentions []string

	PolicyID    string
	EventID     string
	ExecutionID string
	Mode        policy.Mode
	AmountUSD   float64

	Targets     []string
	DenyActions []string
	TTLMinutes  int

	ApproveURL string
	RejectURL  string
	ExpiresAt  time.Time

	RollbackAt time.Time
	Error      string
	Failures   int
}

// Notifier delivers guardrail notifications.
type Notifier interface {
	// Send delivers or queues msg. A delivery problem is never surfaced
	// as an error to the caller; guardrail actions do not fail because
	// Slack is down.
	Send(ctx context.Context, msg Message) error

	// Close flushes queued messages and stops background delivery.
	Close() error
}

// NopNotifier drops every message. Used when no webhook is configured.
type NopNotifier struct{}

// Send discards the message.
func (NopNotifier) Send(context.Context, Message) error { return nil }

// Close does nothing.
func (NopNotifier) Close() error { return nil }
