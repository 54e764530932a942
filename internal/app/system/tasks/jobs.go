// internal/app/system/tasks/jobs.go
package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dalemusser/stratabox/internal/app/cycle"
	runstore "github.com/dalemusser/stratabox/internal/app/store/runs"
	"go.uber.org/zap"
)

// CycleJob creates a job that runs one collection cycle per interval. A
// cycle already in progress (a manual trigger) makes the tick a skip.
// A cycle that ran but did not succeed is not a job failure: the cycle has
// already logged and recorded it.
func CycleJob(c cycle.Cycle, interval, delay time.Duration) Job {
	return Job{
		Name:     c.Kind() + "-cycle",
		Interval: interval,
		Delay:    delay,
		Run: func(ctx context.Context) error {
			_, err := c.Run(ctx, runstore.TriggerSchedule)
			if errors.Is(err, cycle.ErrBusy) {
				return fmt.Errorf("%w: %v", ErrSkipped, err)
			}
			return nil
		},
	}
}

// RunPruner deletes old run records.
type RunPruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// RunRetentionJob creates a job that removes run records older than keep.
func RunRetentionJob(runs RunPruner, keep time.Duration, logger *zap.Logger) Job {
	return Job{
		Name:     "run-retention",
		Interval: 6 * time.Hour,
		Run: func(ctx context.Context) error {
			deleted, err := runs.DeleteOlderThan(ctx, time.Now().Add(-keep))
			if err != nil {
				return err
			}
			if deleted > 0 {
				logger.Info("pruned old crawl runs",
					zap.Int64("deleted", deleted),
					zap.Duration("keep", keep))
			}
			return nil
		},
	}
}
