// internal/app/features/health/health.go
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	runstore "github.com/dalemusser/stratabox/internal/app/store/runs"
	"github.com/dalemusser/stratabox/internal/app/system/timeouts"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// RunReader returns the most recent run of a cycle kind.
type RunReader interface {
	Latest(ctx context.Context, kind string) (*runstore.Run, error)
}

// Handler provides health check endpoints.
type Handler struct {
	mongoClient *mongo.Client
	runs        RunReader
	kinds       []string
	logger      *zap.Logger
}

// NewHandler creates a new health check Handler. runs may be nil, in which
// case cycle state is omitted from the full check.
func NewHandler(mongoClient *mongo.Client, runs RunReader, logger *zap.Logger) *Handler {
	return &Handler{
		mongoClient: mongoClient,
		runs:        runs,
		kinds:       []string{runstore.KindRanking, runstore.KindDaily},
		logger:      logger,
	}
}

// Response represents the health check response.
type Response struct {
	Status   string                `json:"status"`
	Services map[string]string     `json:"services,omitempty"`
	Cycles   map[string]CycleState `json:"cycles,omitempty"`
}

// CycleState summarizes the last run of one cycle.
type CycleState struct {
	Status    string     `json:"status"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// Routes returns a chi.Router with health check routes mounted.
// Provides /health (full check), /health/ready, and /health/live.
func Routes(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/", h.Check)
	r.Get("/ready", h.Ready)
	r.Get("/live", h.Live)
	return r
}

// MountRootEndpoints adds /ready and /livez endpoints directly on the root router.
// This is the standard convention for Kubernetes probes:
//   - /ready (or /readyz) - readiness probe
//   - /livez - liveness probe
func MountRootEndpoints(r chi.Router, h *Handler) {
	r.Get("/ready", h.Ready)
	r.Get("/readyz", h.Ready)
	r.Get("/livez", h.Live)
}

// Check performs a full health check: database connectivity plus the state
// of the last run of each cycle. A failed cycle does not degrade the status;
// the service still answers from its last stored datasets.
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	resp := Response{
		Status:   "ok",
		Services: make(map[string]string),
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Ping())
	defer cancel()

	if err := h.mongoClient.Ping(ctx, readpref.Primary()); err != nil {
		resp.Status = "degraded"
		resp.Services["mongodb"] = "unavailable"
		h.logger.Warn("health check: mongodb ping failed", zap.Error(err))
	} else {
		resp.Services["mongodb"] = "ok"
		resp.Cycles = h.cycleStates(ctx)
	}

	w.Header().Set("Content-Type", "application/json")
	if resp.Status != "ok" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(resp)
}

func (h *Handler) cycleStates(ctx context.Context) map[string]CycleState {
	if h.runs == nil {
		return nil
	}
	out := make(map[string]CycleState, len(h.kinds))
	for _, kind := range h.kinds {
		run, err := h.runs.Latest(ctx, kind)
		switch {
		case err != nil:
			h.logger.Warn("health check: last run lookup failed", zap.String("kind", kind), zap.Error(err))
			out[kind] = CycleState{Status: "unknown"}
		case run == nil:
			out[kind] = CycleState{Status: "never"}
		default:
			at := run.StartedAt
			out[kind] = CycleState{Status: run.Status, StartedAt: &at, Error: run.Error}
		}
	}
	return out
}

// Ready checks if the service is ready to accept requests.
// Used by Kubernetes readiness probes.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Ping())
	defer cancel()

	if err := h.mongoClient.Ping(ctx, readpref.Primary()); err != nil {
		h.logger.Warn("readiness check failed", zap.Error(err))
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"not ready"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ready"}`))
}

// Live checks if the service is alive.
// Used by Kubernetes liveness probes.
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"alive"}`))
}
