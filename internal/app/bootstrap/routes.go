// internal/app/bootstrap/routes.go
package bootstrap

import (
	"errors"
	"net/http"
	"time"

	"github.com/dalemusser/stratabox/internal/app/cycle"
	boxofficefeature "github.com/dalemusser/stratabox/internal/app/features/boxoffice"
	exportfeature "github.com/dalemusser/stratabox/internal/app/features/export"
	healthfeature "github.com/dalemusser/stratabox/internal/app/features/health"
	runsfeature "github.com/dalemusser/stratabox/internal/app/features/runs"
	"github.com/dalemusser/stratabox/internal/app/system/apicors"
	"github.com/dalemusser/stratabox/internal/app/system/jsonutil"
	"github.com/dalemusser/waffle/config"
	"github.com/dalemusser/waffle/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// requestTimeout bounds every API request except the manual cycle trigger,
// which runs under the cycle timeout instead.
const requestTimeout = 30 * time.Second

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE app.
//
// WAFFLE calls this after configuration, DB connections, schema setup, and
// Startup have completed. The router serves:
//   - /api/*            box office queries, run log, manual triggers, exports
//   - /health, /ready, /readyz, /livez
//   - /metrics          Prometheus exposition
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	if svc == nil {
		return nil, errors.New("bootstrap: services not initialized; Startup must run first")
	}

	r := chi.NewRouter()

	// ─────────────────────────────────────────────────────────────────────────────
	// Global Middleware (applies to ALL routes)
	// ─────────────────────────────────────────────────────────────────────────────

	// Security headers middleware: adds X-Frame-Options, X-Content-Type-Options, etc.
	r.Use(middleware.SecurityHeadersFromConfig(coreCfg))

	// Request counts and latency by route pattern.
	r.Use(svc.metrics.Middleware)

	// ─────────────────────────────────────────────────────────────────────────────
	// Routes
	// ─────────────────────────────────────────────────────────────────────────────

	// Health check endpoints for load balancers and orchestrators
	healthHandler := healthfeature.NewHandler(deps.MongoClient, deps.Runs, logger)
	r.Mount("/health", healthfeature.Routes(healthHandler))
	healthfeature.MountRootEndpoints(r, healthHandler)

	r.Handle("/metrics", svc.metrics.Handler())

	boxofficeHandler := boxofficefeature.NewHandler(svc.query, logger)
	runsHandler := runsfeature.NewHandler(deps.Runs, []cycle.Cycle{svc.ranking, svc.daily}, logger)
	exportHandler := exportfeature.NewHandler(svc.query, logger)

	r.Route("/api", func(api chi.Router) {
		// CORS must run before routing so preflight requests are answered.
		api.Use(apicors.Middleware(appCfg.CORSOrigins...))

		api.Mount("/cycles", runsfeature.CycleRoutes(runsHandler))

		api.Group(func(api chi.Router) {
			api.Use(chimw.Timeout(requestTimeout))
			api.Mount("/runs", runsfeature.Routes(runsHandler))
			api.Mount("/export", exportfeature.Routes(exportHandler))
			api.Mount("/", boxofficefeature.Routes(boxofficeHandler))
		})
	})

	// 404 catch-all for unmatched routes
	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		jsonutil.NotFound(w, "not found")
	})

	return r, nil
}
