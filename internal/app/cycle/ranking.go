package cycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/dalemusser/stratabox/internal/app/crawl"
	"github.com/dalemusser/stratabox/internal/app/history"
	"github.com/dalemusser/stratabox/internal/app/resolve"
	runstore "github.com/dalemusser/stratabox/internal/app/store/runs"
	"github.com/dalemusser/stratabox/internal/app/system/metrics"
	"github.com/dalemusser/stratabox/internal/app/system/status"
	"github.com/dalemusser/stratabox/internal/app/system/timeouts"
	"github.com/dalemusser/stratabox/internal/domain/models"
	"go.uber.org/zap"
)

// DefaultTopN is how many leading rows feed the history book each cycle.
const DefaultTopN = 10

// RankingFetcher retrieves the ranking table.
type RankingFetcher interface {
	Fetch(ctx context.Context) (crawl.Result, error)
}

// DailyReader reads the stored daily dataset. The ranking cycle uses it to
// fill in codes the ranking page left out.
type DailyReader interface {
	Load(ctx context.Context) (models.DailyDataset, error)
}

// RankingConfig tunes the ranking cycle.
type RankingConfig struct {
	HistoryCap int // samples kept per movie; <= 0 uses history.DefaultCap
	TopN       int // leading rows recorded in history; <= 0 uses DefaultTopN
}

// Ranking is the ranking collection cycle.
type Ranking struct {
	base
	fetcher RankingFetcher
	store   RankingStore
	daily   DailyReader
	cfg     RankingConfig
}

// NewRanking creates the ranking cycle. daily, runs and m may be nil.
func NewRanking(f RankingFetcher, store RankingStore, daily DailyReader, runs RunRecorder, cfg RankingConfig, m *metrics.Registry, logger *zap.Logger) *Ranking {
	if cfg.TopN <= 0 {
		cfg.TopN = DefaultTopN
	}
	return &Ranking{
		base:    base{kind: runstore.KindRanking, runs: runs, metrics: m, logger: logger, now: utcNow},
		fetcher: f,
		store:   store,
		daily:   daily,
		cfg:     cfg,
	}
}

// Run performs one ranking cycle.
//
// The stored snapshot is replaced only when rows were fetched. A page with
// no rows records an "empty" run and an unreachable page a "failed" run;
// both leave the previous snapshot and history untouched.
func (c *Ranking) Run(ctx context.Context, trigger string) (runstore.Run, error) {
	if !c.acquire() {
		return runstore.Run{}, ErrBusy
	}
	defer c.release()

	run := c.start(trigger)
	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Cycle(), c.logger, "ranking cycle")
	defer cancel()

	err := c.run(ctx, &run)
	c.finish(ctx, &run, err)
	return run, err
}

func (c *Ranking) run(ctx context.Context, run *runstore.Run) error {
	ds, err := c.store.Load(ctx)
	if err != nil {
		run.Status = status.Failed
		return fmt.Errorf("load ranking dataset: %w", err)
	}

	res, err := c.fetcher.Fetch(ctx)
	run.Attempts = attemptsForLog(res.Attempts, err)
	if err != nil {
		run.Status = status.Failed
		if !crawl.IsOutage(err) {
			run.Status = status.Empty
		}
		return err
	}

	filled := c.fillCodes(ctx, res.Rows)

	book := history.NewBook(c.cfg.HistoryCap, ds.History)
	var appended, refreshed int
	for i, row := range res.Rows {
		if i >= c.cfg.TopN {
			break
		}
		switch book.Record(row) {
		case history.Appended:
			appended++
		case history.Refreshed:
			refreshed++
		}
	}

	ds.Snapshot = models.RankingSnapshot{
		CapturedAt: res.CapturedAt,
		Mode:       res.Mode.String(),
		Rows:       res.Rows,
	}
	ds.History = book.Series()

	if err := c.store.Save(ctx, ds); err != nil {
		run.Status = status.Failed
		return fmt.Errorf("save ranking dataset: %w", err)
	}

	c.metrics.SetRankingRows(len(res.Rows))
	run.Status = status.Succeeded
	run.Mode = res.Mode.String()
	run.Rows = len(res.Rows)
	run.Metadata = map[string]any{
		"history_appended":  appended,
		"history_refreshed": refreshed,
		"history_series":    book.Len(),
		"codes_resolved":    filled,
	}
	return nil
}

// fillCodes resolves codes for code-less rows against the stored daily
// records, so their history lands in the code series. A daily dataset that
// cannot be read only costs the resolution.
func (c *Ranking) fillCodes(ctx context.Context, rows []models.RankingRecord) int {
	if c.daily == nil {
		return 0
	}
	ds, err := c.daily.Load(ctx)
	if err != nil {
		c.logger.Warn("daily dataset unavailable for code resolution", zap.Error(err))
		return 0
	}
	return resolve.FillCodes(rows, ds.Records)
}

// attemptsForLog converts fetch diagnostics into run log attempts, taking
// them from the error when the fetch failed.
func attemptsForLog(attempts []crawl.Attempt, err error) []runstore.Attempt {
	var fe *crawl.FetchError
	if errors.As(err, &fe) {
		attempts = fe.Attempts
	}
	out := make([]runstore.Attempt, 0, len(attempts))
	for _, a := range attempts {
		out = append(out, runstore.Attempt{
			Mode:        a.Mode,
			Rows:        a.Rows,
			StatusCode:  a.StatusCode,
			Fields:      a.Fields,
			Error:       a.Error,
			DurationMs:  float64(a.Duration.Microseconds()) / 1000,
			BodyPreview: a.BodyPreview,
		})
	}
	return out
}
