// Package metrics exposes Prometheus instruments for collection cycles,
// ranking fetches, provider calls and the HTTP API.
//
// All recording methods are safe to call on a nil *Registry, so components
// can be built without metrics in tests.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dalemusser/stratabox/internal/app/system/status"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds all Prometheus metrics for stratabox.
type Registry struct {
	gatherer prometheus.Gatherer

	CycleRuns     *prometheus.CounterVec
	CycleDuration *prometheus.HistogramVec
	LastSuccess   *prometheus.GaugeVec

	FetchAttempts *prometheus.CounterVec
	RankingRows   prometheus.Gauge

	ProviderRequests *prometheus.CounterVec
	ProviderLatency  *prometheus.HistogramVec

	BackfillLookups *prometheus.CounterVec

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// New creates the metrics and registers them with reg. When reg is nil a
// fresh private registry is used.
func New(reg *prometheus.Registry) *Registry {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Registry{
		gatherer: reg,

		CycleRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stratabox_cycle_runs_total",
				Help: "Collection cycles by kind and final status",
			},
			[]string{"kind", "status"},
		),
		CycleDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stratabox_cycle_duration_seconds",
				Help:    "Duration of collection cycles in seconds",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"kind"},
		),
		LastSuccess: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "stratabox_cycle_last_success_timestamp_seconds",
				Help: "Unix time of the last successful cycle by kind",
			},
			[]string{"kind"},
		),
		FetchAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stratabox_ranking_fetch_attempts_total",
				Help: "Ranking page fetch attempts by request mode and outcome",
			},
			[]string{"mode", "outcome"},
		),
		RankingRows: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "stratabox_ranking_rows",
				Help: "Rows in the most recently stored ranking snapshot",
			},
		),
		ProviderRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stratabox_provider_requests_total",
				Help: "Statistics provider requests by endpoint and outcome",
			},
			[]string{"endpoint", "outcome"},
		),
		ProviderLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stratabox_provider_request_duration_seconds",
				Help:    "Statistics provider request latency in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5, 10},
			},
			[]string{"endpoint"},
		),
		BackfillLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stratabox_backfill_lookups_total",
				Help: "Per-date backfill lookups by outcome",
			},
			[]string{"outcome"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stratabox_http_requests_total",
				Help: "HTTP requests by route and status code",
			},
			[]string{"method", "route", "code"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stratabox_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}

	reg.MustRegister(
		m.CycleRuns,
		m.CycleDuration,
		m.LastSuccess,
		m.FetchAttempts,
		m.RankingRows,
		m.ProviderRequests,
		m.ProviderLatency,
		m.BackfillLookups,
		m.HTTPRequests,
		m.HTTPDuration,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Registry) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ObserveCycle records one finished cycle.
func (m *Registry) ObserveCycle(kind, runStatus string, d time.Duration) {
	if m == nil {
		return
	}
	m.CycleRuns.WithLabelValues(kind, runStatus).Inc()
	m.CycleDuration.WithLabelValues(kind).Observe(d.Seconds())
	if runStatus == status.Succeeded {
		m.LastSuccess.WithLabelValues(kind).SetToCurrentTime()
	}
}

// ObserveFetchAttempt records one ranking fetch attempt.
func (m *Registry) ObserveFetchAttempt(mode, outcome string) {
	if m == nil {
		return
	}
	m.FetchAttempts.WithLabelValues(mode, outcome).Inc()
}

// SetRankingRows records the size of the stored snapshot.
func (m *Registry) SetRankingRows(n int) {
	if m == nil {
		return
	}
	m.RankingRows.Set(float64(n))
}

// ObserveProvider records one provider request.
func (m *Registry) ObserveProvider(endpoint, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.ProviderRequests.WithLabelValues(endpoint, outcome).Inc()
	m.ProviderLatency.WithLabelValues(endpoint).Observe(d.Seconds())
}

// ObserveBackfill records a per-date lookup outcome ("hit", "miss", "error").
func (m *Registry) ObserveBackfill(outcome string) {
	if m == nil {
		return
	}
	m.BackfillLookups.WithLabelValues(outcome).Inc()
}

// Middleware records request counts and latency keyed by the chi route
// pattern, so path parameters do not explode label cardinality.
func (m *Registry) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		m.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(sw.status)).Inc()
		m.HTTPDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
