package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/lms-notifications/pkg/logger"
	"github.com/angelmondragon/lms-notifications/pkg/metrics"
)

// Scheduled notifications become visible at most one interval late.
const defaultInterval = time.Minute

type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.CronJobMetrics
	Interval time.Duration
}

// Service runs every registered job once per interval on whichever instance
// holds the lock.
type Service struct {
	logg     *logger.Logger
	registry *Registry
	lock     Lock
	metrics  *metrics.CronJobMetrics
	interval time.Duration
	cycles   int64
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case params.Lock == nil:
		return nil, fmt.Errorf("lock required")
	}
	svc := &Service{
		logg:     params.Logger,
		registry: params.Registry,
		lock:     params.Lock,
		metrics:  params.Metrics,
		interval: params.Interval,
	}
	if svc.registry == nil {
		svc.registry = NewRegistry()
	}
	if svc.interval <= 0 {
		svc.interval = defaultInterval
	}
	return svc, nil
}

// Run runs a cycle immediately and then on every tick until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	ctx = s.logg.WithField(ctx, "interval", s.interval.String())
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if err := s.runCycle(ctx); err != nil {
			s.logg.Error(ctx, "cron.cycle_failed", err)
		}
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron service context canceled")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Service) runCycle(ctx context.Context) error {
	held, err := s.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("lock acquire: %w", err)
	}
	if !held {
		s.logg.Debug(ctx, "cron.lock_held_elsewhere")
		return nil
	}
	defer func() {
		if err := s.lock.Release(context.WithoutCancel(ctx)); err != nil {
			s.logg.Error(ctx, "cron.lock_release_failed", err)
		}
	}()

	s.cycles++
	ctx = s.logg.WithField(ctx, "cycle", s.cycles)

	jobs := s.registry.Jobs()
	failed := 0
	for i, job := range jobs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if i > 0 {
			// Long jobs can outlive the TTL; stop if another instance took over.
			stillHeld, err := s.lock.Refresh(ctx)
			if err != nil {
				return fmt.Errorf("lock refresh: %w", err)
			}
			if !stillHeld {
				s.logg.Warn(s.logg.WithField(ctx, "remaining_jobs", len(jobs)-i), "cron.lock_lost")
				return nil
			}
		}
		if !s.runJob(ctx, job) {
			failed++
		}
	}
	if failed > 0 {
		s.logg.Warn(s.logg.WithField(ctx, "failed_jobs", failed), "cron.cycle_finished_with_failures")
	}
	return nil
}

func (s *Service) runJob(ctx context.Context, job Job) bool {
	name := job.Name()
	ctx = s.logg.WithField(ctx, "job", name)

	start := time.Now()
	err := job.Run(ctx)
	elapsed := time.Since(start)
	s.metrics.ObserveRun(name, elapsed, err)

	ctx = s.logg.WithField(ctx, "duration_ms", elapsed.Milliseconds())
	if err != nil {
		s.logg.Error(ctx, "cron.job_failed", err)
		return false
	}
	s.logg.Debug(ctx, "cron.job_completed")
	return true
}
