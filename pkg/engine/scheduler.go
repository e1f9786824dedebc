package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

const (
	DefaultDueSpec        = "@every 1s"
	DefaultInactivitySpec = "@every 1m"
)

// Runner is the part of the engine the scheduler drives.
type Runner interface {
	ProcessDue(ctx context.Context) (int, error)
	SweepInactivity(ctx context.Context) (int, error)
}

// Scheduler fires the timers of parked sessions and the inactivity sweep.
// Sessions never hold a worker while they wait: delays and input timeouts
// are stored on the session and picked up here.
type Scheduler struct {
	logger         *slog.Logger
	runner         Runner
	cron           *cron.Cron
	dueSpec        string
	inactivitySpec string
}

type SchedulerOption func(*Scheduler)

func WithDueSpec(spec string) SchedulerOption {
	return func(s *Scheduler) { s.dueSpec = spec }
}

// WithInactivitySpec sets the sweep schedule. An empty spec disables it.
func WithInactivitySpec(spec string) SchedulerOption {
	return func(s *Scheduler) { s.inactivitySpec = spec }
}

func NewScheduler(logger *slog.Logger, runner Runner, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		logger:         logger.With("module", "scheduler"),
		runner:         runner,
		dueSpec:        DefaultDueSpec,
		inactivitySpec: DefaultInactivitySpec,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start registers the jobs and runs them until ctx is done. A job still
// running when its next tick comes is skipped.
func (s *Scheduler) Start(ctx context.Context) error {
	s.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	_, err := s.cron.AddFunc(s.dueSpec, func() { s.processDue(ctx) })
	if err != nil {
		return fmt.Errorf("invalid due spec %q: %w", s.dueSpec, err)
	}

	if s.inactivitySpec != "" {
		_, err = s.cron.AddFunc(s.inactivitySpec, func() { s.sweep(ctx) })
		if err != nil {
			return fmt.Errorf("invalid inactivity spec %q: %w", s.inactivitySpec, err)
		}
	}

	s.cron.Start()
	s.logger.InfoContext(ctx, "Scheduler started", "due_spec", s.dueSpec, "inactivity_spec", s.inactivitySpec)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// Stop waits for running jobs to return.
func (s *Scheduler) Stop() {
	if s.cron == nil {
		return
	}

	<-s.cron.Stop().Done()
}

func (s *Scheduler) processDue(ctx context.Context) {
	processed, err := s.runner.ProcessDue(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to process due sessions", "processed", processed, "error", err)

		return
	}

	if processed > 0 {
		s.logger.DebugContext(ctx, "processed due sessions", "processed", processed)
	}
}

func (s *Scheduler) sweep(ctx context.Context) {
	started, err := s.runner.SweepInactivity(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "inactivity sweep failed", "started", started, "error", err)

		return
	}

	if started > 0 {
		s.logger.InfoContext(ctx, "inactivity sweep started sessions", "started", started)
	}
}
