package retention

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler runs a Pruner on a cron schedule.
type Scheduler struct {
	pruner  *Pruner
	cron    *cron.Cron
	mu      sync.Mutex
	logger  *slog.Logger
	running bool
}

// NewScheduler creates a scheduler for pruner.
func NewScheduler(pruner *Pruner) *Scheduler {
	return &Scheduler{
		pruner: pruner,
		cron:   cron.New(),
		logger: slog.Default().With("component", "limits.retention.scheduler"),
	}
}

// Start schedules pruning using the pruner's PruneSchedule. The scheduler
// stops when ctx is cancelled.
//
// Common cron expressions:
//   - "0 3 * * *"    - Daily at 3 AM
//   - "0 */6 * * *"  - Every 6 hours
//   - "@every 1h"    - Hourly from start
//
// If PruneSchedule is empty, the scheduler does nothing.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	schedule := s.pruner.config.PruneSchedule
	if schedule == "" {
		s.logger.Info("prune schedule not configured, skipping scheduler")
		return nil
	}
	if s.running {
		return fmt.Errorf("retention scheduler already running")
	}

	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", schedule, err)
	}

	if _, err := s.cron.AddFunc(schedule, func() {
		s.runPruning(ctx)
	}); err != nil {
		return fmt.Errorf("failed to schedule pruning: %w", err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info("retention scheduler started",
		"schedule", schedule,
		"retention_days", s.pruner.config.RetentionDays,
		"max_records", s.pruner.config.MaxRecords,
	)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// runPruning executes one pruning cycle.
func (s *Scheduler) runPruning(ctx context.Context) {
	deleted, err := s.pruner.Prune(ctx)
	if err != nil {
		s.logger.Error("scheduled pruning failed", "error", err)
		return
	}
	s.logger.Debug("scheduled pruning completed", "deleted_count", deleted)
}

// Stop stops the scheduler and waits for a running prune to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	s.logger.Info("retention scheduler stopped")
}

// IsRunning reports whether the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next scheduled pruning time, or nil when nothing is
// scheduled.
func (s *Scheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.cron.Entries()
	if len(entries) == 0 || !s.running {
		return nil
	}
	next := entries[0].Next
	return &next
}
