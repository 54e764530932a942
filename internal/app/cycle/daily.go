package cycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dalemusser/stratabox/internal/app/backfill"
	"github.com/dalemusser/stratabox/internal/app/provider"
	runstore "github.com/dalemusser/stratabox/internal/app/store/runs"
	"github.com/dalemusser/stratabox/internal/app/system/htmlsanitize"
	"github.com/dalemusser/stratabox/internal/app/system/metrics"
	"github.com/dalemusser/stratabox/internal/app/system/status"
	"github.com/dalemusser/stratabox/internal/app/system/timeouts"
	"github.com/dalemusser/stratabox/internal/app/system/timezones"
	"github.com/dalemusser/stratabox/internal/domain/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultWindowDays is the trend window kept for each listed movie.
	DefaultWindowDays = 14
	// DefaultDetailWorkers bounds concurrent detail fetches.
	DefaultDetailWorkers = 5
)

// DailyConfig tunes the daily cycle.
type DailyConfig struct {
	WindowDays    int
	DetailWorkers int
	Backfill      backfill.Config
	Location      *time.Location // calendar used to pick "yesterday"
}

// Daily is the daily statistics collection cycle.
type Daily struct {
	base
	daily   provider.DailyProvider
	details provider.DetailProvider
	store   DailyStore
	cfg     DailyConfig
}

// NewDaily creates the daily cycle. details, runs and m may be nil.
func NewDaily(daily provider.DailyProvider, details provider.DetailProvider, store DailyStore, runs RunRecorder, cfg DailyConfig, m *metrics.Registry, logger *zap.Logger) *Daily {
	if cfg.WindowDays <= 0 {
		cfg.WindowDays = DefaultWindowDays
	}
	if cfg.DetailWorkers <= 0 {
		cfg.DetailWorkers = DefaultDetailWorkers
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Daily{
		base:    base{kind: runstore.KindDaily, runs: runs, metrics: m, logger: logger, now: utcNow},
		daily:   daily,
		details: details,
		store:   store,
		cfg:     cfg,
	}
}

// Run performs one daily cycle for the day before now.
//
// A provider failure or an empty list leaves the stored dataset untouched.
// Otherwise the dataset is replaced by the new list, each listed movie's
// trend over the window (gaps backfilled), and its detail (reused from the
// previous dataset when cached).
func (c *Daily) Run(ctx context.Context, trigger string) (runstore.Run, error) {
	if !c.acquire() {
		return runstore.Run{}, ErrBusy
	}
	defer c.release()

	run := c.start(trigger)
	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Cycle(), c.logger, "daily cycle")
	defer cancel()

	err := c.run(ctx, &run, timezones.Yesterday(run.StartedAt, c.cfg.Location))
	c.finish(ctx, &run, err)
	return run, err
}

func (c *Daily) run(ctx context.Context, run *runstore.Run, target time.Time) error {
	date := models.FormatDay(target)
	run.Metadata = map[string]any{"date": date}

	prev, err := c.store.Load(ctx)
	if err != nil {
		run.Status = status.Failed
		return fmt.Errorf("load daily dataset: %w", err)
	}

	lctx, cancel := timeouts.WithTimeout(ctx, timeouts.Table(), c.logger, "daily list")
	list, err := c.daily.DailyList(lctx, target)
	cancel()
	if err != nil {
		run.Status = status.Failed
		return fmt.Errorf("daily list %s: %w", date, err)
	}
	if len(list) == 0 {
		run.Status = status.Empty
		return fmt.Errorf("daily list %s: %w", date, provider.ErrLookupMiss)
	}

	cache := provider.NewDayCache(c.daily)
	cache.Put(target, list)
	window := backfill.Window(target, c.cfg.WindowDays)

	series := make(map[string][]models.TrendPoint, len(list))
	for _, rec := range list {
		kept := backfill.InRange(prev.TrendFor(rec.EntityCode), window)
		series[rec.EntityCode] = backfill.MergePoints([]models.TrendPoint{models.PointFrom(rec)}, kept)
	}
	coord := backfill.New(cache, c.cfg.Backfill, c.metrics, c.logger)
	filled, rep := coord.BackfillAll(ctx, series, window)

	trends := make([]models.TrendSeries, 0, len(list))
	for _, rec := range list {
		trends = append(trends, models.TrendSeries{EntityCode: rec.EntityCode, Points: filled[rec.EntityCode]})
	}

	details, fetched, failed := c.enrich(ctx, list, prev)

	next := models.DailyDataset{
		Date:    date,
		Records: list,
		Trends:  trends,
		Details: details,
	}
	if err := c.store.Save(ctx, next); err != nil {
		run.Status = status.Failed
		return fmt.Errorf("save daily dataset: %w", err)
	}

	run.Status = status.Succeeded
	run.Rows = len(list)
	run.Metadata["backfill_missing"] = rep.Missing
	run.Metadata["backfill_lookups"] = rep.Looked
	run.Metadata["backfill_misses"] = rep.Misses
	run.Metadata["backfill_found"] = rep.Found
	run.Metadata["details_fetched"] = fetched
	run.Metadata["details_failed"] = failed
	return nil
}

// enrich returns one detail per listed movie that has one, reusing cached
// details and fetching the rest on a bounded pool. A failed fetch leaves the
// movie without detail.
func (c *Daily) enrich(ctx context.Context, list []models.DailyStatRecord, prev models.DailyDataset) (out []models.DetailRecord, fetched, failed int) {
	type slot struct {
		rec models.DetailRecord
		ok  bool
	}
	slots := make([]slot, len(list))

	var missing []int
	for i, rec := range list {
		if d, ok := prev.DetailFor(rec.EntityCode); ok {
			slots[i] = slot{rec: d, ok: true}
			continue
		}
		missing = append(missing, i)
	}

	if c.details != nil && len(missing) > 0 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(c.cfg.DetailWorkers)
		for _, i := range missing {
			code := list[i].EntityCode
			g.Go(func() error {
				dctx, cancel := timeouts.WithTimeout(gctx, timeouts.Detail(), c.logger, "detail fetch")
				defer cancel()

				attrs, err := c.details.Detail(dctx, code)
				if err != nil {
					if !errors.Is(err, provider.ErrLookupMiss) {
						c.logger.Debug("detail fetch failed", zap.String("code", code), zap.Error(err))
					}
					return nil
				}
				slots[i] = slot{rec: models.DetailRecord{
					EntityCode: code,
					Attributes: htmlsanitize.Attributes(attrs),
					FetchedAt:  c.now(),
				}, ok: true}
				return nil
			})
		}
		_ = g.Wait()
	}

	for _, i := range missing {
		if slots[i].ok {
			fetched++
		} else {
			failed++
		}
	}
	for _, s := range slots {
		if s.ok {
			out = append(out, s.rec)
		}
	}
	return out, fetched, failed
}
