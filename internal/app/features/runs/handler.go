// Package runs exposes the crawl run log and the manual cycle trigger.
package runs

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/dalemusser/stratabox/internal/app/cycle"
	runstore "github.com/dalemusser/stratabox/internal/app/store/runs"
	"github.com/dalemusser/stratabox/internal/app/system/jsonutil"
	"github.com/dalemusser/stratabox/internal/app/system/normalize"
	"github.com/dalemusser/stratabox/internal/app/system/status"
	"github.com/dalemusser/waffle/pantry/query"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

const (
	defaultLimit = 50
	maxLimit     = 200
)

// Reader reads the run log. *runstore.Store satisfies it.
type Reader interface {
	List(ctx context.Context, filter runstore.ListFilter, page, pageSize int) ([]runstore.Run, error)
	GetByRunID(ctx context.Context, runID string) (*runstore.Run, error)
}

// Handler handles run log and trigger requests.
type Handler struct {
	runs   Reader
	cycles map[string]cycle.Cycle
	logger *zap.Logger
}

// NewHandler creates a new runs handler. cycles are indexed by Kind().
func NewHandler(runs Reader, cycles []cycle.Cycle, logger *zap.Logger) *Handler {
	byKind := make(map[string]cycle.Cycle, len(cycles))
	for _, c := range cycles {
		byKind[c.Kind()] = c
	}
	return &Handler{runs: runs, cycles: byKind, logger: logger}
}

// ListResponse is the body of GET /runs.
type ListResponse struct {
	Page  int            `json:"page"`
	Limit int            `json:"limit"`
	Runs  []runstore.Run `json:"runs"`
}

// List handles GET /runs?kind=&status=&page=&limit=.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	filter := runstore.ListFilter{
		Kind:   normalize.QueryParam(query.Get(r, "kind")),
		Status: normalize.QueryParam(query.Get(r, "status")),
	}
	if filter.Status != "" && !status.IsValid(filter.Status) {
		jsonutil.ValidationError(w, map[string]string{"status": "unknown run status"})
		return
	}

	page, _ := strconv.Atoi(query.Get(r, "page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(query.Get(r, "limit"))
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	list, err := h.runs.List(r.Context(), filter, page, limit)
	if err != nil {
		h.logger.Error("failed to list runs", zap.Error(err))
		jsonutil.InternalError(w, "failed to list runs")
		return
	}
	jsonutil.OK(w, ListResponse{Page: page, Limit: limit, Runs: list})
}

// Get handles GET /runs/{runID}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	runID := normalize.Code(chi.URLParam(r, "runID"))
	run, err := h.runs.GetByRunID(r.Context(), runID)
	if errors.Is(err, mongo.ErrNoDocuments) {
		jsonutil.NotFound(w, "run not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to load run", zap.String("run_id", runID), zap.Error(err))
		jsonutil.InternalError(w, "failed to load run")
		return
	}
	jsonutil.OK(w, run)
}

// Trigger handles POST /cycles/{kind}. The cycle runs to completion and the
// resulting run record is returned, whatever its status. A cycle already in
// progress yields 409.
func (h *Handler) Trigger(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "kind")
	c, ok := h.cycles[kind]
	if !ok {
		jsonutil.NotFound(w, "unknown cycle kind")
		return
	}
	if c.Running() {
		jsonutil.Conflict(w, "cycle already running")
		return
	}

	// The cycle outlives a disconnecting client.
	run, err := c.Run(context.WithoutCancel(r.Context()), runstore.TriggerManual)
	if errors.Is(err, cycle.ErrBusy) {
		jsonutil.Conflict(w, "cycle already running")
		return
	}
	if err != nil {
		h.logger.Info("manual cycle did not succeed",
			zap.String("kind", kind),
			zap.String("run_id", run.RunID),
			zap.Error(err))
	}
	jsonutil.OK(w, run)
}
