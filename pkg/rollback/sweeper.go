package rollback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/junki-kanda/AutGuardRails/pkg/executor"
	"github.com/junki-kanda/AutGuardRails/pkg/ledger"
	"github.com/junki-kanda/AutGuardRails/pkg/notify"
	"github.com/junki-kanda/AutGuardRails/pkg/policy"
	"github.com/junki-kanda/AutGuardRails/pkg/telemetry/metrics"
)

// Config contains configuration for the rollback sweeper.
type Config struct {
	// Schedule is a cron expression for automatic sweeps.
	// Example: "*/5 * * * *" (every five minutes).
	// Empty disables the scheduler; Sweep can still be called directly.
	Schedule string

	// BatchSize caps how many rows one sweep processes per category.
	BatchSize int

	// EscalateAfter is the rollback failure count at which the sweeper
	// pages a human. The revert is still retried every sweep after.
	EscalateAfter int
}

// DefaultConfig returns the default sweeper configuration.
func DefaultConfig() *Config {
	return &Config{
		Schedule:      "*/5 * * * *",
		BatchSize:     100,
		EscalateAfter: 3,
	}
}

// Summary counts what one sweep did.
type Summary struct {
	// RolledBack executions had their deny policy detached and moved to
	// rolled_back.
	RolledBack int `json:"rolled_back"`

	// RollbackFailed executions could not be reverted this sweep. They
	// stay executed and are retried next sweep.
	RollbackFailed int `json:"rollback_failed"`

	// Expired approval requests lapsed without a decision.
	Expired int `json:"expired"`

	// Skipped rows changed under the sweeper, usually a decision link
	// click racing the sweep. The other writer wins.
	Skipped int `json:"skipped"`

	// Escalated rollbacks crossed the failure threshold and paged.
	Escalated int `json:"escalated"`
}

// Empty reports whether the sweep found nothing to do.
func (s *Summary) Empty() bool {
	return s.RolledBack == 0 && s.RollbackFailed == 0 && s.Expired == 0 && s.Skipped == 0
}

// Sweeper enforces ttl rollback and approval expiry on the ledger.
type Sweeper struct {
	ledger    ledger.Store
	executor  executor.Executor
	policies  *policy.Store
	notifier  notify.Notifier
	config    *Config
	logger    *slog.Logger
	metrics   *metrics.Collector
	now       func() time.Time
	scheduler *Scheduler
}

// NewSweeper creates a sweeper. A nil config uses DefaultConfig.
func NewSweeper(ledgerStore ledger.Store, exec executor.Executor, policies *policy.Store, notifier notify.Notifier, config *Config) *Sweeper {
	if config == nil {
		config = DefaultConfig()
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultConfig().BatchSize
	}
	if config.EscalateAfter <= 0 {
		config.EscalateAfter = DefaultConfig().EscalateAfter
	}
	if notifier == nil {
		notifier = notify.NopNotifier{}
	}

	sweeper := &Sweeper{
		ledger:   ledgerStore,
		executor: exec,
		policies: policies,
		notifier: notifier,
		config:   config,
		logger:   slog.Default().With("component", "rollback.sweeper"),
		now:      time.Now,
	}
	sweeper.scheduler = NewScheduler(sweeper)
	return sweeper
}

// SetMetrics attaches a Prometheus collector. Each sweep pass records its
// duration and outcome counts once attached.
func (s *Sweeper) SetMetrics(collector *metrics.Collector) {
	s.metrics = collector
}

// Sweep runs one pass: expired ttls first, then lapsed approvals. A storage
// error aborts the pass; per-row revert failures are recorded on the row
// and do not.
func (s *Sweeper) Sweep(ctx context.Context) (*Summary, error) {
	now := s.now()
	sum := &Summary{}

	// An aborted pass still records; rows already processed are counted.
	defer func() {
		if s.metrics != nil {
			s.metrics.RecordSweep(s.now().Sub(now),
				sum.RolledBack, sum.RollbackFailed, sum.Expired, sum.Skipped, sum.Escalated)
		}
	}()

	if err := s.sweepExpiredTTLs(ctx, now, sum); err != nil {
		return sum, err
	}
	if err := s.sweepStaleApprovals(ctx, now, sum); err != nil {
		return sum, err
	}

	if sum.Empty() {
		s.logger.Debug("sweep found nothing to do")
	} else {
		s.logger.Info("sweep completed",
			"rolled_back", sum.RolledBack,
			"rollback_failed", sum.RollbackFailed,
			"expired", sum.Expired,
			"skipped", sum.Skipped,
			"escalated", sum.Escalated,
		)
	}
	return sum, nil
}

// sweepExpiredTTLs reverts executed actions whose ttl has passed.
func (s *Sweeper) sweepExpiredTTLs(ctx context.Context, now time.Time, sum *Summary) error {
	rows, err := s.ledger.FindExpired(ctx, now, s.config.BatchSize)
	if err != nil {
		return fmt.Errorf("finding expired executions: %w", err)
	}
	for _, e := range rows {
		s.rollbackOne(ctx, e, sum)
	}
	return nil
}

// rollbackOne reverts a single execution using its frozen diff.
func (s *Sweeper) rollbackOne(ctx context.Context, e *ledger.Execution, sum *Summary) {
	diff, err := executor.ParseDiff(e.Diff)
	if err == nil {
		err = s.executor.Revert(ctx, diff)
	}
	if err != nil {
		s.recordFailure(ctx, e, err, sum)
		return
	}

	if err := e.TransitionTo(ledger.StatusRolledBack, s.now()); err != nil {
		s.logger.Error("rollback transition refused",
			"execution_id", e.ExecutionID, "error", err)
		sum.Skipped++
		return
	}
	if err := s.ledger.Update(ctx, e); err != nil {
		s.loseRow(e, err, sum)
		return
	}
	sum.RolledBack++

	s.logger.Info("execution rolled back",
		"execution_id", e.ExecutionID,
		"policy_id", e.PolicyID,
		"target", e.Target)

	channel, mentions := s.route(e.PolicyID)
	s.send(ctx, notify.Message{
		Kind:        notify.KindRollback,
		Channel:     channel,
		Mentions:    mentions,
		PolicyID:    e.PolicyID,
		EventID:     e.EventID,
		ExecutionID: e.ExecutionID,
		Targets:     []string{e.Target},
	})
}

// recordFailure bumps the failure count on the row and pages once the
// count crosses the threshold. The row stays executed so the next sweep
// retries.
func (s *Sweeper) recordFailure(ctx context.Context, e *ledger.Execution, cause error, sum *Summary) {
	e.RollbackFailures++
	e.Error = cause.Error()
	e.UpdatedAt = s.now()
	if err := s.ledger.Update(ctx, e); err != nil {
		s.loseRow(e, err, sum)
		return
	}
	sum.RollbackFailed++

	s.logger.Error("rollback failed",
		"execution_id", e.ExecutionID,
		"policy_id", e.PolicyID,
		"target", e.Target,
		"failures", e.RollbackFailures,
		"error", cause)

	channel, mentions := s.route(e.PolicyID)
	s.send(ctx, notify.Message{
		Kind:        notify.KindRollback,
		Channel:     channel,
		Mentions:    mentions,
		PolicyID:    e.PolicyID,
		EventID:     e.EventID,
		ExecutionID: e.ExecutionID,
		Targets:     []string{e.Target},
		Failures:    e.RollbackFailures,
		Error:       cause.Error(),
	})

	if e.RollbackFailures == s.config.EscalateAfter {
		sum.Escalated++
		s.send(ctx, notify.Message{
			Kind:        notify.KindEscalation,
			Channel:     channel,
			Mentions:    mentions,
			PolicyID:    e.PolicyID,
			EventID:     e.EventID,
			ExecutionID: e.ExecutionID,
			Targets:     []string{e.Target},
			Failures:    e.RollbackFailures,
			Error:       cause.Error(),
		})
	}
}

// sweepStaleApprovals expires approval requests nobody decided in time.
func (s *Sweeper) sweepStaleApprovals(ctx context.Context, now time.Time, sum *Summary) error {
	rows, err := s.ledger.FindStaleApprovals(ctx, now, s.config.BatchSize)
	if err != nil {
		return fmt.Errorf("finding stale approvals: %w", err)
	}
	for _, e := range rows {
		if err := e.TransitionTo(ledger.StatusExpired, s.now()); err != nil {
			s.logger.Error("expiry transition refused",
				"execution_id", e.ExecutionID, "error", err)
			sum.Skipped++
			continue
		}
		if err := s.ledger.Update(ctx, e); err != nil {
			s.loseRow(e, err, sum)
			continue
		}
		sum.Expired++

		s.logger.Info("approval request expired",
			"execution_id", e.ExecutionID,
			"policy_id", e.PolicyID,
			"target", e.Target)
	}
	return nil
}

// loseRow classifies an update failure. A version conflict means another
// writer resolved the row mid-sweep, which is fine; anything else is a
// storage problem worth a loud log.
func (s *Sweeper) loseRow(e *ledger.Execution, cause error, sum *Summary) {
	sum.Skipped++
	var conflict *ledger.ConflictError
	if errors.As(cause, &conflict) {
		s.logger.Info("row changed under sweep, skipping",
			"execution_id", e.ExecutionID, "reason", conflict.Reason)
		return
	}
	s.logger.Error("recording sweep result failed",
		"execution_id", e.ExecutionID, "error", cause)
}

// route reads the current notification routing for a policy. A deleted
// policy routes to the webhook default channel.
func (s *Sweeper) route(policyID string) (string, []string) {
	if s.policies == nil {
		return "", nil
	}
	p, ok := s.policies.Get(policyID)
	if !ok {
		return "", nil
	}
	return p.Notify.SlackChannel, p.Notify.MentionUsers
}

func (s *Sweeper) send(ctx context.Context, msg notify.Message) {
	if err := s.notifier.Send(ctx, msg); err != nil {
		s.logger.Warn("notification rejected", "kind", msg.Kind, "error", err)
	}
}

// Start starts the automatic sweep scheduler.
func (s *Sweeper) Start(ctx context.Context) error {
	return s.scheduler.Start(ctx)
}

// Stop stops the automatic sweep scheduler.
func (s *Sweeper) Stop() {
	s.scheduler.Stop()
}

// NextSweep returns the time of the next scheduled sweep.
func (s *Sweeper) NextSweep() *time.Time {
	return s.scheduler.NextRun()
}
