package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/lms-notifications/pkg/logger"
	"github.com/angelmondragon/lms-notifications/pkg/metrics"
)

const (
	defaultDispatchBatch = 100
	maxDispatchRounds    = 10
)

// ScheduledDispatchJobParams wires the scheduled send job.
type ScheduledDispatchJobParams struct {
	Logger     *logger.Logger
	Dispatcher scheduledDispatcher
	Metrics    *metrics.CronJobMetrics
	BatchSize  int
}

type scheduledDispatcher interface {
	DispatchDue(ctx context.Context, now time.Time, limit int) (int, error)
}

// NewScheduledDispatchJob releases scheduled notifications whose send time has passed.
func NewScheduledDispatchJob(params ScheduledDispatchJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Dispatcher == nil {
		return nil, fmt.Errorf("notification dispatcher required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultDispatchBatch
	}
	return &scheduledDispatchJob{
		logg:       params.Logger,
		dispatcher: params.Dispatcher,
		metrics:    params.Metrics,
		batch:      batch,
		now:        time.Now,
	}, nil
}

type scheduledDispatchJob struct {
	logg       *logger.Logger
	dispatcher scheduledDispatcher
	metrics    *metrics.CronJobMetrics
	batch      int
	now        func() time.Time
}

func (j *scheduledDispatchJob) Name() string { return "notification-scheduled-dispatch" }

// Run drains due notifications in batches. A full batch means more may be
// waiting, so it loops up to maxDispatchRounds within one cycle.
func (j *scheduledDispatchJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	var total int
	for round := 0; round < maxDispatchRounds; round++ {
		sent, err := j.dispatcher.DispatchDue(ctx, now, j.batch)
		total += sent
		if err != nil {
			j.metrics.AddProcessed(j.Name(), int64(total))
			return fmt.Errorf("dispatch scheduled notifications: %w", err)
		}
		if sent < j.batch {
			break
		}
	}
	j.metrics.AddProcessed(j.Name(), int64(total))
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"as_of": now,
		"sent":  total,
	})
	j.logg.Info(logCtx, "scheduled dispatch complete")
	return nil
}
