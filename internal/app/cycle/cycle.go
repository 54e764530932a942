// Package cycle runs the two scheduled collection cycles: the ranking cycle
// (crawl the reservation table, update the history book) and the daily
// cycle (official daily list, trend backfill, detail enrichment).
//
// Each cycle loads its dataset once, works on it in memory, and commits it
// once at the end. A cycle never runs concurrently with itself; a second
// start while one is in progress returns ErrBusy.
package cycle

import (
	"context"
	"errors"
	"sync"
	"time"

	runstore "github.com/dalemusser/stratabox/internal/app/store/runs"
	"github.com/dalemusser/stratabox/internal/app/system/metrics"
	"github.com/dalemusser/stratabox/internal/app/system/status"
	"github.com/dalemusser/stratabox/internal/domain/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrBusy is returned when a cycle is started while the same cycle runs.
var ErrBusy = errors.New("cycle: already running")

// Cycle is one runnable collection cycle.
type Cycle interface {
	Kind() string
	Running() bool
	Run(ctx context.Context, trigger string) (runstore.Run, error)
}

// RankingStore persists the ranking dataset.
type RankingStore interface {
	Load(ctx context.Context) (models.RankingDataset, error)
	Save(ctx context.Context, ds models.RankingDataset) error
}

// DailyStore persists the daily dataset.
type DailyStore interface {
	Load(ctx context.Context) (models.DailyDataset, error)
	Save(ctx context.Context, ds models.DailyDataset) error
}

// RunRecorder stores run log records.
type RunRecorder interface {
	Create(ctx context.Context, run runstore.Run) error
}

const recordTimeout = 5 * time.Second

// base holds what both cycles share: the overlap guard and run bookkeeping.
type base struct {
	kind    string
	runs    RunRecorder
	metrics *metrics.Registry
	logger  *zap.Logger
	now     func() time.Time

	mu      sync.Mutex
	running bool
}

func utcNow() time.Time { return time.Now().UTC() }

func (b *base) acquire() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return false
	}
	b.running = true
	return true
}

func (b *base) release() {
	b.mu.Lock()
	b.running = false
	b.mu.Unlock()
}

// Kind returns the cycle kind recorded in the run log.
func (b *base) Kind() string { return b.kind }

// Running reports whether the cycle is in progress.
func (b *base) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

func (b *base) start(trigger string) runstore.Run {
	if trigger == "" {
		trigger = runstore.TriggerSchedule
	}
	return runstore.Run{
		RunID:     uuid.NewString(),
		Kind:      b.kind,
		Trigger:   trigger,
		Status:    status.Running,
		StartedAt: b.now(),
	}
}

// finish stamps the run, records it and its metrics. Recording uses its own
// deadline so a cycle that ran out of time still leaves a run record.
func (b *base) finish(ctx context.Context, run *runstore.Run, err error) {
	run.CompletedAt = b.now()
	dur := run.CompletedAt.Sub(run.StartedAt)
	run.DurationMs = float64(dur.Microseconds()) / 1000
	if err != nil && run.Error == "" {
		run.Error = err.Error()
	}

	b.metrics.ObserveCycle(b.kind, run.Status, dur)

	fields := []zap.Field{
		zap.String("run_id", run.RunID),
		zap.String("kind", b.kind),
		zap.String("trigger", run.Trigger),
		zap.String("status", run.Status),
		zap.Int("rows", run.Rows),
		zap.Duration("duration", dur),
	}
	if run.Status == status.Succeeded {
		b.logger.Info("cycle complete", fields...)
	} else {
		b.logger.Warn("cycle did not succeed", append(fields, zap.String("error", run.Error))...)
	}

	if b.runs == nil {
		return
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if rerr := b.runs.Create(rctx, *run); rerr != nil {
		b.logger.Error("failed to record run", zap.String("run_id", run.RunID), zap.Error(rerr))
	}
}
