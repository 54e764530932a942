package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveCycle(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveCycle("ranking", "succeeded", 2*time.Second)
	m.ObserveCycle("ranking", "failed", time.Second)
	m.ObserveCycle("ranking", "succeeded", time.Second)

	if got := testutil.ToFloat64(m.CycleRuns.WithLabelValues("ranking", "succeeded")); got != 2 {
		t.Errorf("succeeded runs = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.CycleRuns.WithLabelValues("ranking", "failed")); got != 1 {
		t.Errorf("failed runs = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.LastSuccess.WithLabelValues("ranking")); got == 0 {
		t.Error("last success timestamp not set")
	}
}

func TestNilRegistry(t *testing.T) {
	var m *Registry
	// none of these may panic
	m.ObserveCycle("daily", "succeeded", time.Second)
	m.ObserveFetchAttempt("fixed", "ok")
	m.SetRankingRows(3)
	m.ObserveProvider("daily", "ok", time.Millisecond)
	m.ObserveBackfill("hit")

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	if h := m.Middleware(next); h == nil {
		t.Error("Middleware() returned nil")
	}
}

func TestMiddleware_UsesRoutePattern(t *testing.T) {
	m := New(nil)

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/api/trend/{code}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	for _, code := range []string{"1", "2", "3"} {
		req := httptest.NewRequest(http.MethodGet, "/api/trend/"+code, nil)
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	got := testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "/api/trend/{code}", "418"))
	if got != 3 {
		t.Errorf("requests for route = %v, want 3", got)
	}
}

func TestHandler(t *testing.T) {
	m := New(nil)
	m.SetRankingRows(7)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "stratabox_ranking_rows 7") {
		t.Errorf("body missing ranking rows gauge:\n%s", rec.Body.String())
	}
}
