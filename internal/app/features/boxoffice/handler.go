// Package boxoffice serves the read API over the collected datasets: the
// current reservation ranking, single-movie lookups, ranking history, daily
// trends and the composite daily view.
package boxoffice

import (
	"context"
	"errors"
	"net/http"

	"github.com/dalemusser/stratabox/internal/app/query"
	"github.com/dalemusser/stratabox/internal/app/system/jsonutil"
	"github.com/dalemusser/stratabox/internal/app/system/normalize"
	"github.com/dalemusser/stratabox/internal/domain/models"
	pquery "github.com/dalemusser/waffle/pantry/query"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Querier is the read side the handler needs. *query.Service satisfies it.
type Querier interface {
	Ranking(ctx context.Context) (query.RankingView, error)
	FindReservation(ctx context.Context, code, title string) (query.ReservationView, error)
	History(ctx context.Context, code, title string) (models.SnapshotSeries, bool, error)
	Trend(ctx context.Context, code, from, to string) (query.TrendView, error)
	Composite(ctx context.Context, date string) (query.CompositeView, error)
}

// Handler handles box office API requests.
type Handler struct {
	q      Querier
	logger *zap.Logger
}

// NewHandler creates a new box office handler.
func NewHandler(q Querier, logger *zap.Logger) *Handler {
	return &Handler{q: q, logger: logger}
}

// Ranking handles GET /ranking.
func (h *Handler) Ranking(w http.ResponseWriter, r *http.Request) {
	view, err := h.q.Ranking(r.Context())
	if err != nil {
		h.fail(w, "ranking", err)
		return
	}
	jsonutil.OK(w, view)
}

// Reservation handles GET /reservation?code=&title=.
func (h *Handler) Reservation(w http.ResponseWriter, r *http.Request) {
	code, title := lookupParams(r)
	if code == "" && title == "" {
		jsonutil.ValidationError(w, map[string]string{"title": "code or title is required"})
		return
	}
	view, err := h.q.FindReservation(r.Context(), code, title)
	if err != nil {
		h.fail(w, "reservation", err)
		return
	}
	jsonutil.OK(w, view)
}

// History handles GET /history?code=&title=.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	code, title := lookupParams(r)
	if code == "" && title == "" {
		jsonutil.ValidationError(w, map[string]string{"title": "code or title is required"})
		return
	}
	series, ok, err := h.q.History(r.Context(), code, title)
	if err != nil {
		h.fail(w, "history", err)
		return
	}
	if !ok {
		jsonutil.NotFound(w, "no ranking history for that movie")
		return
	}
	jsonutil.OK(w, series)
}

// Trend handles GET /trend/{code}?from=&to=.
func (h *Handler) Trend(w http.ResponseWriter, r *http.Request) {
	code := normalize.Code(chi.URLParam(r, "code"))
	view, err := h.q.Trend(r.Context(), code, param(r, "from"), param(r, "to"))
	if err != nil {
		h.fail(w, "trend", err)
		return
	}
	jsonutil.OK(w, view)
}

// Composite handles GET /composite?date=.
func (h *Handler) Composite(w http.ResponseWriter, r *http.Request) {
	view, err := h.q.Composite(r.Context(), param(r, "date"))
	if err != nil {
		h.fail(w, "composite", err)
		return
	}
	jsonutil.OK(w, view)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, query.ErrBadRange) {
		jsonutil.BadRequest(w, err.Error())
		return
	}
	h.logger.Error("box office query failed", zap.String("op", op), zap.Error(err))
	jsonutil.InternalError(w, "query failed")
}

func lookupParams(r *http.Request) (code, title string) {
	return param(r, "code"), param(r, "title")
}

func param(r *http.Request, key string) string {
	return normalize.QueryParam(pquery.Get(r, key))
}
