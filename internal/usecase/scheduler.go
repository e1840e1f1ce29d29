package usecase

import (
	"context"
	"log/slog"
	"time"

	"ideadigest/internal/ports"
)

// Scheduler wires the cron driver with the pipeline use case.
type Scheduler struct {
	driver   ports.Scheduler
	pipeline *Pipeline
	opts     Options
	log      *slog.Logger
}

// NewScheduler returns a helper to start and stop recurring runs.
func NewScheduler(driver ports.Scheduler, pipeline *Pipeline, opts Options, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{driver: driver, pipeline: pipeline, opts: opts, log: log}
}

// Start registers the pipeline with the provided scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.pipeline == nil {
		return nil
	}

	job := func(trigger time.Time) {
		s.log.Info("scheduled run triggered", "at", trigger.Format(time.RFC3339))
		summary := s.pipeline.Run(ctx, s.opts)
		s.log.Info("scheduled run finished",
			"run_id", summary.RunID,
			"fetched", summary.TotalFetched,
			"failed_sources", summary.SourcesFailed(),
			"errors", len(summary.Errors))
	}

	return s.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}
	return s.driver.Stop(ctx)
}
