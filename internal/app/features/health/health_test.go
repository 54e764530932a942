package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	runstore "github.com/dalemusser/stratabox/internal/app/store/runs"
	"github.com/dalemusser/stratabox/internal/app/system/status"
	"github.com/dalemusser/stratabox/internal/testutil"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type fakeRuns map[string]*runstore.Run

func (f fakeRuns) Latest(ctx context.Context, kind string) (*runstore.Run, error) {
	if kind == "broken" {
		return nil, errors.New("boom")
	}
	return f[kind], nil
}

func TestHandler_Check(t *testing.T) {
	db := testutil.SetupTestDB(t)
	logger := zap.NewNop()

	started := time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC)
	runs := fakeRuns{runstore.KindRanking: {Status: status.Failed, StartedAt: started, Error: "negotiation failed"}}
	h := NewHandler(db.Client(), runs, logger)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	h.Check(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Check() status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp Response
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if resp.Status != "ok" {
		t.Errorf("response status = %q, want %q", resp.Status, "ok")
	}
	if resp.Services["mongodb"] != "ok" {
		t.Errorf("mongodb status = %q, want %q", resp.Services["mongodb"], "ok")
	}
	ranking := resp.Cycles[runstore.KindRanking]
	if ranking.Status != status.Failed || ranking.Error != "negotiation failed" || ranking.StartedAt == nil {
		t.Errorf("ranking cycle = %+v", ranking)
	}
	if resp.Cycles[runstore.KindDaily].Status != "never" {
		t.Errorf("daily cycle = %+v, want never", resp.Cycles[runstore.KindDaily])
	}
}

func TestCycleStates_LookupError(t *testing.T) {
	h := NewHandler(nil, fakeRuns{}, zap.NewNop())
	h.kinds = []string{"broken"}

	states := h.cycleStates(context.Background())
	if states["broken"].Status != "unknown" {
		t.Errorf("state = %+v, want unknown", states["broken"])
	}
}

func TestCycleStates_NoRunReader(t *testing.T) {
	h := NewHandler(nil, nil, zap.NewNop())
	if states := h.cycleStates(context.Background()); states != nil {
		t.Errorf("states = %v, want nil", states)
	}
}

func TestHandler_Ready(t *testing.T) {
	db := testutil.SetupTestDB(t)
	logger := zap.NewNop()

	h := NewHandler(db.Client(), nil, logger)

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	rec := httptest.NewRecorder()

	h.Ready(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Ready() status = %d, want %d", rec.Code, http.StatusOK)
	}

	body := rec.Body.String()
	if body != `{"status":"ready"}` {
		t.Errorf("Ready() body = %q, want %q", body, `{"status":"ready"}`)
	}
}

func TestHandler_Live(t *testing.T) {
	logger := zap.NewNop()

	// Live doesn't need DB - just check the handler works
	h := NewHandler(nil, nil, logger)

	req := httptest.NewRequest(http.MethodGet, "/livez", nil)
	rec := httptest.NewRecorder()

	h.Live(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Live() status = %d, want %d", rec.Code, http.StatusOK)
	}

	body := rec.Body.String()
	if body != `{"status":"alive"}` {
		t.Errorf("Live() body = %q, want %q", body, `{"status":"alive"}`)
	}
}

func TestMountRootEndpoints(t *testing.T) {
	db := testutil.SetupTestDB(t)
	logger := zap.NewNop()

	h := NewHandler(db.Client(), nil, logger)
	r := chi.NewRouter()
	MountRootEndpoints(r, h)

	for _, path := range []string{"/ready", "/readyz", "/livez"} {
		t.Run(path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, path, nil)
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			if rec.Code != http.StatusOK {
				t.Errorf("%s status = %d, want %d", path, rec.Code, http.StatusOK)
			}
		})
	}
}
