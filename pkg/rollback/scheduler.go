package rollback

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler runs the sweeper at scheduled intervals using cron syntax.
type Scheduler struct {
	sweeper *Sweeper
	cron    *cron.Cron
	mu      sync.Mutex
	logger  *slog.Logger
	running bool
}

// NewScheduler creates a sweep scheduler.
func NewScheduler(sweeper *Sweeper) *Scheduler {
	return &Scheduler{
		sweeper: sweeper,
		cron:    cron.New(),
		logger:  slog.Default().With("component", "rollback.scheduler"),
	}
}

// Start begins scheduled sweeping based on the configured cron expression.
// An empty schedule means the scheduler does nothing; sweeps can still be
// triggered directly.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	schedule := s.sweeper.config.Schedule
	if schedule == "" {
		s.logger.Info("sweep schedule not configured, skipping scheduler")
		return nil
	}

	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}

	if _, err := s.cron.AddFunc(schedule, func() {
		s.runSweep(ctx)
	}); err != nil {
		return fmt.Errorf("failed to schedule sweeping: %w", err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info("rollback scheduler started",
		"schedule", schedule,
		"batch_size", s.sweeper.config.BatchSize,
		"escalate_after", s.sweeper.config.EscalateAfter,
	)

	// Stop with the surrounding process.
	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// runSweep executes one sweep cycle.
func (s *Scheduler) runSweep(ctx context.Context) {
	sum, err := s.sweeper.Sweep(ctx)
	if err != nil {
		s.logger.Error("scheduled sweep failed",
			"error", err,
			"rolled_back", sum.RolledBack,
			"expired", sum.Expired,
		)
	}
}

// Stop stops the scheduler and waits for a running sweep to complete.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil && s.running {
		ctx := s.cron.Stop()
		<-ctx.Done()
		s.running = false
		s.logger.Info("rollback scheduler stopped")
	}
}

// IsRunning reports whether the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.running
}

// NextRun returns the next scheduled sweep time.
func (s *Scheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron == nil {
		return nil
	}

	entries := s.cron.Entries()
	if len(entries) == 0 {
		return nil
	}

	next := entries[0].Next
	return &next
}
