// Package export serves spreadsheet downloads of the current ranking and of
// one movie's daily trend.
package export

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/dalemusser/stratabox/internal/app/query"
	"github.com/dalemusser/stratabox/internal/app/system/jsonutil"
	"github.com/dalemusser/stratabox/internal/app/system/normalize"
	pquery "github.com/dalemusser/waffle/pantry/query"
	"github.com/go-chi/chi/v5"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Source is the read side exported. *query.Service satisfies it.
type Source interface {
	Ranking(ctx context.Context) (query.RankingView, error)
	Trend(ctx context.Context, code, from, to string) (query.TrendView, error)
}

// Handler serves exports.
type Handler struct {
	src    Source
	logger *zap.Logger
}

// NewHandler creates a new export handler.
func NewHandler(src Source, logger *zap.Logger) *Handler {
	return &Handler{src: src, logger: logger}
}

var rankingHeader = []any{
	"rank", "code", "title", "reservation_share", "period_sales", "cumulative_sales",
	"period_attendance", "cumulative_attendance", "open_date", "captured_at",
}

// ServeRankingXLSX handles GET /ranking.xlsx.
func (h *Handler) ServeRankingXLSX(w http.ResponseWriter, r *http.Request) {
	view, err := h.src.Ranking(r.Context())
	if err != nil {
		h.logger.Error("ranking export failed", zap.Error(err))
		jsonutil.InternalError(w, "export failed")
		return
	}

	rows := make([][]any, 0, len(view.Rows))
	for _, rec := range view.Rows {
		rows = append(rows, []any{
			rec.Rank,
			rec.EntityCode,
			sanitizeField(rec.DisplayTitle),
			rec.ReservationShare,
			rec.PeriodSales,
			rec.CumulativeSales,
			rec.PeriodAttendance,
			rec.CumulativeAttendance,
			rec.OpenDate,
			rec.CapturedAt.Format(time.RFC3339),
		})
	}

	stamp := "empty"
	if view.CapturedAt != nil {
		stamp = view.CapturedAt.Format("20060102_1504")
	}
	h.writeXLSX(w, "ranking_"+stamp+".xlsx", "Ranking", rankingHeader, rows)
}

var trendHeader = []any{"date", "attendance", "sales", "screens", "shows"}

// ServeTrendXLSX handles GET /trend/{code}.xlsx?from=&to=.
func (h *Handler) ServeTrendXLSX(w http.ResponseWriter, r *http.Request) {
	code := normalize.Code(chi.URLParam(r, "code"))
	from := normalize.QueryParam(pquery.Get(r, "from"))
	to := normalize.QueryParam(pquery.Get(r, "to"))
	view, err := h.src.Trend(r.Context(), code, from, to)
	if errors.Is(err, query.ErrBadRange) {
		jsonutil.BadRequest(w, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("trend export failed", zap.String("code", code), zap.Error(err))
		jsonutil.InternalError(w, "export failed")
		return
	}

	rows := make([][]any, 0, len(view.Points))
	for _, p := range view.Points {
		rows = append(rows, []any{p.Date, p.AttendanceCount, p.SalesAmount, p.ScreenCount, p.ShowCount})
	}
	filename := fmt.Sprintf("trend_%s_%s_%s.xlsx", code, view.From, view.To)
	h.writeXLSX(w, filename, "Trend", trendHeader, rows)
}

func (h *Handler) writeXLSX(w http.ResponseWriter, filename, sheet string, header []any, rows [][]any) {
	f, err := buildWorkbook(sheet, header, rows)
	if err != nil {
		h.logger.Error("xlsx build failed", zap.String("file", filename), zap.Error(err))
		jsonutil.InternalError(w, "export failed")
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, url.PathEscape(filename)))
	if err := f.Write(w); err != nil {
		h.logger.Error("xlsx write failed", zap.String("file", filename), zap.Error(err))
		return
	}
	h.logger.Info("xlsx exported", zap.String("file", filename), zap.Int("rows", len(rows)))
}

// buildWorkbook lays out one sheet: a header row, then one row per record.
func buildWorkbook(sheet string, header []any, rows [][]any) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		f.Close()
		return nil, err
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			f.Close()
			return nil, err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			f.Close()
			return nil, err
		}
	}
	return f, nil
}

// sanitizeField neutralizes values a spreadsheet would evaluate as formulas.
func sanitizeField(s string) string {
	if len(s) == 0 {
		return s
	}
	switch s[0] {
	case '=', '+', '-', '@':
		return "'" + s
	}
	return s
}

// Routes returns a router with the export endpoints.
//
// When mounted at /api/export:
//   - GET /api/export/ranking.xlsx      - current ranking table
//   - GET /api/export/trend/{code}.xlsx - one movie's trend (from, to)
func Routes(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/ranking.xlsx", h.ServeRankingXLSX)
	r.Get("/trend/{code}.xlsx", h.ServeTrendXLSX)
	return r
}
