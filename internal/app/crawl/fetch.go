// internal/app/crawl/fetch.go
package crawl

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dalemusser/stratabox/internal/app/system/metrics"
	"github.com/dalemusser/stratabox/internal/app/system/timeouts"
	"github.com/dalemusser/stratabox/internal/domain/models"
	"go.uber.org/zap"
)

// DefaultMinRows is the row count at which the first attempt is trusted.
const DefaultMinRows = 2

const defaultPreviewBytes = 512

// FetcherConfig tunes the adaptive fetcher.
type FetcherConfig struct {
	// MinRows is the smallest first-attempt result accepted without
	// falling back to the exhaustive request.
	MinRows int
	// PreviewBytes bounds the response body kept in diagnostics.
	PreviewBytes int
}

// Result is the outcome of a successful fetch.
type Result struct {
	Rows       []models.RankingRecord
	Mode       Mode
	CapturedAt time.Time
	Attempts   []Attempt
}

// Fetcher retrieves the ranking table with a two-tier strategy: a fixed
// minimal form first, then an exhaustive replay of every page field on a
// fresh session when the first attempt fails or looks truncated.
type Fetcher struct {
	negotiator *Negotiator
	cfg        FetcherConfig
	metrics    *metrics.Registry
	logger     *zap.Logger
	now        func() time.Time
}

// NewFetcher creates a Fetcher. m may be nil.
func NewFetcher(n *Negotiator, cfg FetcherConfig, m *metrics.Registry, logger *zap.Logger) *Fetcher {
	if cfg.MinRows <= 0 {
		cfg.MinRows = DefaultMinRows
	}
	if cfg.PreviewBytes <= 0 {
		cfg.PreviewBytes = defaultPreviewBytes
	}
	return &Fetcher{
		negotiator: n,
		cfg:        cfg,
		metrics:    m,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Fetch runs at most two attempts, each under its own timeout.
//
// A first attempt below MinRows is discarded. The exhaustive attempt is
// final: its rows are returned whatever their count, and its failure is
// returned as a *FetchError carrying the per-attempt diagnostics. Rows from
// a successful result are stamped with the capture time.
func (f *Fetcher) Fetch(ctx context.Context) (Result, error) {
	rows1, a1, err1 := f.attempt(ctx, ModeFixed)
	attempts := []Attempt{a1}
	if err1 == nil && len(rows1) >= f.cfg.MinRows {
		return f.result(rows1, ModeFixed, attempts), nil
	}

	if ctx.Err() != nil {
		return Result{Attempts: attempts}, &FetchError{
			Attempts: attempts,
			Err:      fmt.Errorf("%w: %v", ErrTransport, ctx.Err()),
		}
	}

	f.logger.Info("fixed ranking request insufficient, retrying exhaustive",
		zap.Int("rows", len(rows1)),
		zap.Int("min_rows", f.cfg.MinRows),
		zap.String("error", a1.Error))

	rows2, a2, err2 := f.attempt(ctx, ModeExhaustive)
	attempts = append(attempts, a2)

	if err2 != nil {
		return Result{Attempts: attempts}, &FetchError{Attempts: attempts, Err: err2}
	}
	return f.result(rows2, ModeExhaustive, attempts), nil
}

func (f *Fetcher) result(rows []models.RankingRecord, mode Mode, attempts []Attempt) Result {
	at := f.now()
	for i := range rows {
		rows[i].CapturedAt = at
	}
	return Result{Rows: rows, Mode: mode, CapturedAt: at, Attempts: attempts}
}

func (f *Fetcher) attempt(ctx context.Context, mode Mode) ([]models.RankingRecord, Attempt, error) {
	start := time.Now()
	a := Attempt{Mode: mode.String()}

	actx, cancel := timeouts.WithTimeout(ctx, timeouts.Table(), f.logger, "ranking fetch "+mode.String())
	defer cancel()

	rows, err := f.run(actx, mode, &a)
	a.Duration = time.Since(start)
	a.Rows = len(rows)

	outcome := "ok"
	if err != nil {
		a.Error = err.Error()
		outcome = "error"
	} else if len(rows) < f.cfg.MinRows {
		outcome = "short"
	}
	f.metrics.ObserveFetchAttempt(mode.String(), outcome)

	f.logger.Debug("ranking fetch attempt",
		zap.String("mode", a.Mode),
		zap.Int("rows", a.Rows),
		zap.Int("status", a.StatusCode),
		zap.Duration("duration", a.Duration),
		zap.String("error", a.Error))

	return rows, a, err
}

func (f *Fetcher) run(ctx context.Context, mode Mode, a *Attempt) ([]models.RankingRecord, error) {
	nctx, cancel := context.WithTimeout(ctx, timeouts.Negotiate())
	sess, err := f.negotiator.Negotiate(nctx, mode)
	cancel()
	if err != nil {
		return nil, err
	}
	a.Fields = len(sess.Fields)

	resp, err := sess.Submit(ctx)
	if resp != nil {
		a.StatusCode = resp.StatusCode()
	}
	if err != nil {
		if resp != nil {
			a.BodyPreview = f.preview(resp.Body())
		}
		return nil, err
	}

	rows, err := Extract(bytes.NewReader(resp.Body()), resp.Header().Get("Content-Type"))
	if err != nil {
		a.BodyPreview = f.preview(resp.Body())
		return nil, err
	}
	return rows, nil
}

func (f *Fetcher) preview(body []byte) string {
	if len(body) > f.cfg.PreviewBytes {
		body = body[:f.cfg.PreviewBytes]
	}
	return strings.ToValidUTF8(string(body), "")
}
