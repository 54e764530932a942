// Package backfill fills gaps in per-movie trend series with per-date
// lookups against the daily statistics provider.
package backfill

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/dalemusser/stratabox/internal/app/provider"
	"github.com/dalemusser/stratabox/internal/app/system/metrics"
	"github.com/dalemusser/stratabox/internal/app/system/timeouts"
	"github.com/dalemusser/stratabox/internal/domain/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultWorkers bounds concurrent provider lookups.
	DefaultWorkers = 5
	// DefaultCeilingDays is the longest range a backfill will look at.
	DefaultCeilingDays = 30
)

// Range is an inclusive span of calendar days.
type Range struct {
	From time.Time
	To   time.Time
}

// Window returns the days-long range ending at end.
func Window(end time.Time, days int) Range {
	if days < 1 {
		days = 1
	}
	end = day(end)
	return Range{From: end.AddDate(0, 0, -(days - 1)), To: end}
}

// Days lists the range's dates in ascending order.
func (r Range) Days() []time.Time {
	from, to := day(r.From), day(r.To)
	var out []time.Time
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out
}

// Clamp shortens the range from the front so it covers at most maxDays.
func (r Range) Clamp(maxDays int) Range {
	if maxDays < 1 {
		return r
	}
	r.From, r.To = day(r.From), day(r.To)
	if earliest := r.To.AddDate(0, 0, -(maxDays - 1)); r.From.Before(earliest) {
		r.From = earliest
	}
	return r
}

func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Report summarizes one backfill.
type Report struct {
	Missing int // dates absent before the backfill
	Looked  int // provider lookups issued
	Misses  int // lookups that failed or timed out
	Found   int // points added
}

// Config configures a Coordinator.
type Config struct {
	Workers     int
	CeilingDays int
}

// Coordinator performs backfills. It is safe for concurrent use.
type Coordinator struct {
	provider provider.DailyProvider
	cfg      Config
	metrics  *metrics.Registry
	logger   *zap.Logger
}

// New creates a Coordinator.
func New(p provider.DailyProvider, cfg Config, m *metrics.Registry, logger *zap.Logger) *Coordinator {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.CeilingDays <= 0 {
		cfg.CeilingDays = DefaultCeilingDays
	}
	return &Coordinator{provider: p, cfg: cfg, metrics: m, logger: logger}
}

// CeilingDays returns the configured lookback ceiling.
func (c *Coordinator) CeilingDays() int { return c.cfg.CeilingDays }

// Backfill returns existing merged with points for every missing date in rng
// on which the provider lists code. Dates where the movie is absent or the
// lookup failed stay absent.
func (c *Coordinator) Backfill(ctx context.Context, code string, rng Range, existing []models.TrendPoint) ([]models.TrendPoint, Report) {
	out, rep := c.BackfillAll(ctx, map[string][]models.TrendPoint{code: existing}, rng)
	return out[code], rep
}

// BackfillAll backfills many series at once, issuing at most one lookup per
// distinct missing date across all of them.
func (c *Coordinator) BackfillAll(ctx context.Context, series map[string][]models.TrendPoint, rng Range) (map[string][]models.TrendPoint, Report) {
	rng = rng.Clamp(c.cfg.CeilingDays)
	days := rng.Days()

	var rep Report
	need := map[string]bool{}
	wanted := map[string][]string{} // date -> codes missing it
	for code, pts := range series {
		have := make(map[string]bool, len(pts))
		for _, p := range pts {
			have[p.Date] = true
		}
		for _, d := range days {
			key := models.FormatDay(d)
			if have[key] {
				continue
			}
			rep.Missing++
			need[key] = true
			wanted[key] = append(wanted[key], code)
		}
	}

	var dates []time.Time
	for _, d := range days {
		if need[models.FormatDay(d)] {
			dates = append(dates, d)
		}
	}

	lists := c.lookup(ctx, dates)
	rep.Looked = len(dates)

	added := map[string][]models.TrendPoint{}
	for i, d := range dates {
		list, ok := lists[i].list, lists[i].ok
		if !ok {
			rep.Misses++
			continue
		}
		for _, code := range wanted[models.FormatDay(d)] {
			if rec, found := provider.FindEntity(list, code); found {
				added[code] = append(added[code], models.PointFrom(rec))
				rep.Found++
			}
		}
	}

	out := make(map[string][]models.TrendPoint, len(series))
	for code, pts := range series {
		out[code] = MergePoints(pts, added[code])
	}

	if rep.Missing > 0 {
		c.logger.Debug("backfill complete",
			zap.Int("series", len(series)),
			zap.Int("missing", rep.Missing),
			zap.Int("looked", rep.Looked),
			zap.Int("misses", rep.Misses),
			zap.Int("found", rep.Found))
	}
	return out, rep
}

type slot struct {
	list []models.DailyStatRecord
	ok   bool
}

// lookup fetches the daily list for each date on a bounded pool. Each task
// writes only its own slot.
func (c *Coordinator) lookup(ctx context.Context, dates []time.Time) []slot {
	results := make([]slot, len(dates))
	if len(dates) == 0 {
		return results
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Workers)
	for i, d := range dates {
		g.Go(func() error {
			if gctx.Err() != nil {
				c.metrics.ObserveBackfill("cancelled")
				return nil
			}
			lctx, cancel := timeouts.WithTimeout(gctx, timeouts.Lookup(), c.logger, "backfill lookup")
			defer cancel()

			list, err := c.provider.DailyList(lctx, d)
			if err != nil {
				outcome := "error"
				if errors.Is(err, context.DeadlineExceeded) {
					outcome = "timeout"
				}
				c.metrics.ObserveBackfill(outcome)
				c.logger.Debug("backfill lookup failed",
					zap.String("date", models.FormatDay(d)),
					zap.Error(err))
				return nil
			}
			c.metrics.ObserveBackfill("ok")
			results[i] = slot{list: list, ok: true}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// MergePoints combines two point sets, keeping the first occurrence of each
// date, and returns them sorted by date.
func MergePoints(a, b []models.TrendPoint) []models.TrendPoint {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]models.TrendPoint, 0, len(a)+len(b))
	for _, set := range [][]models.TrendPoint{a, b} {
		for _, p := range set {
			if p.Date == "" || seen[p.Date] {
				continue
			}
			seen[p.Date] = true
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

// InRange returns the points whose dates fall within rng.
func InRange(points []models.TrendPoint, rng Range) []models.TrendPoint {
	from, to := models.FormatDay(day(rng.From)), models.FormatDay(day(rng.To))
	var out []models.TrendPoint
	for _, p := range points {
		if p.Date >= from && p.Date <= to {
			out = append(out, p)
		}
	}
	return out
}
