package runs

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Routes returns a router with the run log endpoints.
//
// When mounted at /api/runs:
//   - GET /api/runs         - recent runs, newest first (kind, status, page, limit)
//   - GET /api/runs/{runID} - one run with its fetch attempts
func Routes(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Get("/{runID}", h.Get)
	return r
}

// CycleRoutes returns a router with the manual trigger endpoint.
//
// When mounted at /api/cycles:
//   - POST /api/cycles/{kind} - run one ranking or daily cycle now
func CycleRoutes(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Post("/{kind}", h.Trigger)
	return r
}
