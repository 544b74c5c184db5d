package cron

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/lms-notifications/pkg/logger"
	"github.com/angelmondragon/lms-notifications/pkg/metrics"
)

const defaultRetention = 90 * 24 * time.Hour

type expiredPurger interface {
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// RetentionJobParams wires the expired notification purge.
type RetentionJobParams struct {
	Logger  *logger.Logger
	Purger  expiredPurger
	Metrics *metrics.CronJobMetrics
	// RetentionDays is how long a notification is kept past its expiry.
	RetentionDays int
	Clock         func() time.Time
}

type retentionJob struct {
	RetentionJobParams
	keep time.Duration
}

// NewRetentionJob purges notifications, and their receipts, once they have
// been expired for longer than the retention window.
func NewRetentionJob(p RetentionJobParams) (Job, error) {
	switch {
	case p.Logger == nil:
		return nil, errors.New("logger required")
	case p.Purger == nil:
		return nil, errors.New("notification purger required")
	}
	if p.Clock == nil {
		p.Clock = time.Now
	}
	keep := defaultRetention
	if p.RetentionDays > 0 {
		keep = time.Duration(p.RetentionDays) * 24 * time.Hour
	}
	return &retentionJob{RetentionJobParams: p, keep: keep}, nil
}

func (j *retentionJob) Name() string { return "notification-retention" }

func (j *retentionJob) Run(ctx context.Context) error {
	cutoff := j.Clock().UTC().Add(-j.keep)
	purged, err := j.Purger.DeleteExpiredBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	j.Metrics.AddProcessed(j.Name(), purged)
	j.Logger.Info(j.Logger.WithFields(ctx, map[string]any{
		"cutoff": cutoff.Format(time.RFC3339),
		"purged": purged,
	}), "notification retention purge complete")
	return nil
}
