package runner

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Scheduler triggers recurring runs on a cron spec. Overlapping triggers
// are handled inside the runner: outlets still busy from a prior run are
// skipped, not queued.
type Scheduler struct {
	cron   *cron.Cron
	runner *Runner
	logger *slog.Logger
}

// NewScheduler wires the runner to a cron schedule.
func NewScheduler(spec string, r *Runner, logger *slog.Logger) (*Scheduler, error) {
	c := cron.New()
	s := &Scheduler{
		cron:   c,
		runner: r,
		logger: logger.With("component", "scheduler"),
	}

	if _, err := c.AddFunc(spec, func() {
		s.runner.RunOnce(context.Background())
	}); err != nil {
		return nil, fmt.Errorf("invalid schedule spec %q: %w", spec, err)
	}
	return s, nil
}

// Start begins the schedule.
func (s *Scheduler) Start() {
	s.logger.Info("schedule started")
	s.cron.Start()
}

// Stop halts new triggers and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.logger.Info("schedule stopped")
}
