// Package query answers read requests from the stored datasets: the current
// ranking, reservation lookups, per-movie history and trends, and the
// composite daily view.
package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dalemusser/stratabox/internal/app/backfill"
	"github.com/dalemusser/stratabox/internal/app/history"
	"github.com/dalemusser/stratabox/internal/app/provider"
	"github.com/dalemusser/stratabox/internal/app/resolve"
	runstore "github.com/dalemusser/stratabox/internal/app/store/runs"
	"github.com/dalemusser/stratabox/internal/app/system/status"
	"github.com/dalemusser/stratabox/internal/app/system/timeouts"
	"github.com/dalemusser/stratabox/internal/app/system/timezones"
	"github.com/dalemusser/stratabox/internal/domain/models"
	"go.uber.org/zap"
)

// ErrBadRange is returned for an inverted or unparsable date range.
var ErrBadRange = errors.New("query: invalid date range")

// DefaultStaleAfter is the snapshot age after which the ranking is stale.
const DefaultStaleAfter = 2 * time.Hour

// RankingReader reads the ranking dataset.
type RankingReader interface {
	Load(ctx context.Context) (models.RankingDataset, error)
	Snapshot(ctx context.Context) (models.RankingSnapshot, error)
}

// DailyReader reads the daily dataset.
type DailyReader interface {
	Load(ctx context.Context) (models.DailyDataset, error)
}

// RunReader reads the run log.
type RunReader interface {
	Latest(ctx context.Context, kind string) (*runstore.Run, error)
}

// Config tunes the service.
type Config struct {
	StaleAfter time.Duration
	WindowDays int
	Location   *time.Location
}

// Service answers queries. live and coord may be nil, in which case dates
// outside the stored dataset and trend gaps are simply not filled.
type Service struct {
	rankings RankingReader
	daily    DailyReader
	runs     RunReader
	live     provider.DailyProvider
	coord    *backfill.Coordinator
	cfg      Config
	logger   *zap.Logger
	now      func() time.Time
}

// New creates a query service.
func New(rankings RankingReader, daily DailyReader, runs RunReader, live provider.DailyProvider, coord *backfill.Coordinator, cfg Config, logger *zap.Logger) *Service {
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultStaleAfter
	}
	if cfg.WindowDays <= 0 {
		cfg.WindowDays = 14
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Service{
		rankings: rankings,
		daily:    daily,
		runs:     runs,
		live:     live,
		coord:    coord,
		cfg:      cfg,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// RankingView is the current ranking table with its freshness.
type RankingView struct {
	Status     string                 `json:"status"`
	CapturedAt *time.Time             `json:"captured_at,omitempty"`
	Mode       string                 `json:"mode,omitempty"`
	Rows       []models.RankingRecord `json:"rows"`
}

// Ranking returns the current snapshot. Status is "ok" for a fresh table,
// "stale" when the table is old or the last ranking cycle did not succeed,
// "empty" when the page has never had rows, and "unavailable" when nothing
// could ever be fetched.
func (s *Service) Ranking(ctx context.Context) (RankingView, error) {
	snap, err := s.rankings.Snapshot(ctx)
	if err != nil {
		return RankingView{}, fmt.Errorf("load snapshot: %w", err)
	}
	last, err := s.latest(ctx, runstore.KindRanking)
	if err != nil {
		return RankingView{}, err
	}

	view := RankingView{Rows: snap.Rows, Mode: snap.Mode}
	if view.Rows == nil {
		view.Rows = []models.RankingRecord{}
	}
	if snap.IsZero() {
		view.Status = status.Unavailable
		if last != nil && last.Status == status.Empty {
			view.Status = status.Empty
		}
		return view, nil
	}

	at := snap.CapturedAt
	view.CapturedAt = &at
	view.Status = status.OK
	if s.now().Sub(at) > s.cfg.StaleAfter || (last != nil && status.IsTerminal(last.Status) && last.Status != status.Succeeded) {
		view.Status = status.Stale
	}
	return view, nil
}

// ReservationView is the result of a reservation lookup.
type ReservationView struct {
	Found      bool                  `json:"found"`
	CapturedAt *time.Time            `json:"captured_at,omitempty"`
	MatchBy    string                `json:"match_by,omitempty"`
	Candidates int                   `json:"candidates,omitempty"`
	Record     *models.RankingRecord `json:"record,omitempty"`
}

// FindReservation looks a movie up in the current ranking by code, then
// exact normalized title, then fuzzy title.
func (s *Service) FindReservation(ctx context.Context, code, title string) (ReservationView, error) {
	snap, err := s.rankings.Snapshot(ctx)
	if err != nil {
		return ReservationView{}, fmt.Errorf("load snapshot: %w", err)
	}
	var view ReservationView
	if !snap.IsZero() {
		at := snap.CapturedAt
		view.CapturedAt = &at
	}

	m := resolve.NewIndex(snap.Rows).Lookup(code, title)
	if !m.Found() {
		return view, nil
	}
	if m.Candidates > 1 {
		s.logger.Debug("ambiguous reservation lookup",
			zap.String("code", code),
			zap.String("title", title),
			zap.Int("candidates", m.Candidates))
	}
	rec := *m.Row
	view.Found = true
	view.MatchBy = string(m.By)
	view.Candidates = m.Candidates
	view.Record = &rec
	return view, nil
}

// History returns the stored ranking history of one movie.
func (s *Service) History(ctx context.Context, code, title string) (models.SnapshotSeries, bool, error) {
	ds, err := s.rankings.Load(ctx)
	if err != nil {
		return models.SnapshotSeries{}, false, fmt.Errorf("load ranking dataset: %w", err)
	}
	series, ok := history.NewBook(0, ds.History).Get(code, title)
	return series, ok, nil
}

// TrendView is one movie's trend over a range.
type TrendView struct {
	Code   string              `json:"code"`
	From   string              `json:"from"`
	To     string              `json:"to"`
	Points []models.TrendPoint `json:"points"`
	Filled int                 `json:"filled"`
}

// Trend returns the trend of code between from and to (YYYYMMDD, inclusive).
// Empty bounds default to the configured window ending at the stored
// dataset's date, or yesterday. Gaps are backfilled on the fly when a
// coordinator is configured; the range is clamped to its lookback ceiling.
func (s *Service) Trend(ctx context.Context, code, from, to string) (TrendView, error) {
	ds, err := s.daily.Load(ctx)
	if err != nil {
		return TrendView{}, fmt.Errorf("load daily dataset: %w", err)
	}

	rng, err := s.trendRange(ds, from, to)
	if err != nil {
		return TrendView{}, err
	}

	points := backfill.InRange(ds.TrendFor(code), rng)
	filled := 0
	if s.coord != nil {
		rng = rng.Clamp(s.coord.CeilingDays())
		var rep backfill.Report
		points, rep = s.coord.Backfill(ctx, code, rng, backfill.InRange(points, rng))
		filled = rep.Found
	}
	if points == nil {
		points = []models.TrendPoint{}
	}
	return TrendView{
		Code:   code,
		From:   models.FormatDay(rng.From),
		To:     models.FormatDay(rng.To),
		Points: points,
		Filled: filled,
	}, nil
}

func (s *Service) trendRange(ds models.DailyDataset, from, to string) (backfill.Range, error) {
	var end time.Time
	switch {
	case to != "":
		t, err := models.ParseDay(to)
		if err != nil {
			return backfill.Range{}, fmt.Errorf("%w: to=%q", ErrBadRange, to)
		}
		end = t
	case ds.Date != "":
		t, err := models.ParseDay(ds.Date)
		if err != nil {
			return backfill.Range{}, fmt.Errorf("stored dataset date %q: %w", ds.Date, err)
		}
		end = t
	default:
		end = timezones.Yesterday(s.now(), s.cfg.Location)
	}

	rng := backfill.Window(end, s.cfg.WindowDays)
	if from != "" {
		t, err := models.ParseDay(from)
		if err != nil {
			return backfill.Range{}, fmt.Errorf("%w: from=%q", ErrBadRange, from)
		}
		rng.From = t
	}
	if rng.From.After(rng.To) {
		return backfill.Range{}, fmt.Errorf("%w: %s after %s", ErrBadRange, models.FormatDay(rng.From), models.FormatDay(rng.To))
	}
	return rng, nil
}

// CompositeView is the daily list joined with the live ranking.
type CompositeView struct {
	Date       string                   `json:"date"`
	CapturedAt *time.Time               `json:"captured_at,omitempty"`
	Records    []models.CompositeRecord `json:"records"`
}

// Composite joins the daily list for date (YYYYMMDD; empty means the stored
// dataset's date) with the current ranking, attaching stored trends and
// details. A date other than the stored one is fetched from the live
// provider when one is configured; otherwise the result is empty.
func (s *Service) Composite(ctx context.Context, date string) (CompositeView, error) {
	ds, err := s.daily.Load(ctx)
	if err != nil {
		return CompositeView{}, fmt.Errorf("load daily dataset: %w", err)
	}
	if date == "" {
		date = ds.Date
	}

	var list []models.DailyStatRecord
	switch {
	case date == "":
	case date == ds.Date:
		list = ds.Records
	case s.live != nil:
		day, err := models.ParseDay(date)
		if err != nil {
			return CompositeView{}, fmt.Errorf("%w: date=%q", ErrBadRange, date)
		}
		lctx, cancel := timeouts.WithTimeout(ctx, timeouts.Table(), s.logger, "composite daily list")
		list, err = s.live.DailyList(lctx, day)
		cancel()
		if err != nil {
			s.logger.Warn("composite daily list unavailable", zap.String("date", date), zap.Error(err))
			list = nil
		}
	default:
		if _, err := models.ParseDay(date); err != nil {
			return CompositeView{}, fmt.Errorf("%w: date=%q", ErrBadRange, date)
		}
	}

	snap, err := s.rankings.Snapshot(ctx)
	if err != nil {
		return CompositeView{}, fmt.Errorf("load snapshot: %w", err)
	}

	view := CompositeView{Date: date, Records: resolve.Join(list, snap.Rows)}
	if !snap.IsZero() {
		at := snap.CapturedAt
		view.CapturedAt = &at
	}
	for i := range view.Records {
		code := view.Records[i].Daily.EntityCode
		view.Records[i].Trend = ds.TrendFor(code)
		if d, ok := ds.DetailFor(code); ok {
			view.Records[i].Detail = d.Attributes
		}
	}
	if view.Records == nil {
		view.Records = []models.CompositeRecord{}
	}
	return view, nil
}

func (s *Service) latest(ctx context.Context, kind string) (*runstore.Run, error) {
	if s.runs == nil {
		return nil, nil
	}
	run, err := s.runs.Latest(ctx, kind)
	if err != nil {
		return nil, fmt.Errorf("latest %s run: %w", kind, err)
	}
	return run, nil
}
