package crawl

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func testFetcher(srv *httptest.Server) *Fetcher {
	return NewFetcher(testNegotiator(srv), FetcherConfig{}, nil, zap.NewNop())
}

func TestFetch_FixedSucceeds(t *testing.T) {
	site, srv := newFakeSite(t, 5, 10)

	res, err := testFetcher(srv).Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if res.Mode != ModeFixed {
		t.Errorf("Mode = %v, want fixed", res.Mode)
	}
	if len(res.Rows) != 5 {
		t.Errorf("len(Rows) = %d, want 5", len(res.Rows))
	}
	if len(res.Attempts) != 1 {
		t.Errorf("len(Attempts) = %d, want 1", len(res.Attempts))
	}
	if res.CapturedAt.IsZero() {
		t.Error("CapturedAt not set")
	}
	for i, r := range res.Rows {
		if !r.CapturedAt.Equal(res.CapturedAt) {
			t.Errorf("Rows[%d].CapturedAt = %v, want %v", i, r.CapturedAt, res.CapturedAt)
		}
	}
	if gets, posts := site.counts(); gets != 1 || posts != 1 {
		t.Errorf("gets/posts = %d/%d, want 1/1", gets, posts)
	}
}

func TestFetch_FallsBackToExhaustive(t *testing.T) {
	site, srv := newFakeSite(t, 1, 8)

	res, err := testFetcher(srv).Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if res.Mode != ModeExhaustive {
		t.Errorf("Mode = %v, want exhaustive", res.Mode)
	}
	if len(res.Rows) != 8 {
		t.Errorf("len(Rows) = %d, want 8", len(res.Rows))
	}
	if len(res.Attempts) != 2 {
		t.Fatalf("len(Attempts) = %d, want 2", len(res.Attempts))
	}
	if res.Attempts[0].Rows != 1 || res.Attempts[1].Rows != 8 {
		t.Errorf("attempt rows = %d, %d; want 1, 8", res.Attempts[0].Rows, res.Attempts[1].Rows)
	}
	// the second attempt negotiates its own session
	if gets, _ := site.counts(); gets != 2 {
		t.Errorf("gets = %d, want 2", gets)
	}
}

func TestFetch_ShortFirstAttemptIsNeverReturned(t *testing.T) {
	tests := []struct {
		name           string
		rowsExhaustive int
		status         int
		wantRows       int
		wantErr        error
	}{
		{"second finds nothing", 0, 0, 0, ErrExtraction},
		{"second fails", 0, http.StatusInternalServerError, 0, ErrTransport},
		{"second finds fewer", 1, 0, 1, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			site, srv := newFakeSite(t, 1, tt.rowsExhaustive)
			site.exhaustiveStatus = tt.status

			res, err := testFetcher(srv).Fetch(context.Background())
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Fetch() error = %v, want %v", err, tt.wantErr)
				}
				var fe *FetchError
				if !errors.As(err, &fe) || len(fe.Attempts) != 2 {
					t.Fatalf("error = %#v, want *FetchError with 2 attempts", err)
				}
			} else if err != nil {
				t.Fatalf("Fetch() error = %v", err)
			}
			if len(res.Rows) != tt.wantRows {
				t.Errorf("len(Rows) = %d, want %d", len(res.Rows), tt.wantRows)
			}
			if tt.wantRows > 0 && res.Mode != ModeExhaustive {
				t.Errorf("Mode = %v, want exhaustive", res.Mode)
			}
		})
	}
}

func TestFetch_NoRowsIsNotAnOutage(t *testing.T) {
	_, srv := newFakeSite(t, 0, 0)

	res, err := testFetcher(srv).Fetch(context.Background())
	if !errors.Is(err, ErrExtraction) {
		t.Fatalf("Fetch() error = %v, want ErrExtraction", err)
	}
	if IsOutage(err) {
		t.Error("IsOutage() = true for an empty table")
	}
	if len(res.Rows) != 0 {
		t.Errorf("len(Rows) = %d, want 0", len(res.Rows))
	}

	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("error %T is not *FetchError", err)
	}
	if len(fe.Attempts) != 2 {
		t.Errorf("len(Attempts) = %d, want 2", len(fe.Attempts))
	}
	if fe.Attempts[1].BodyPreview == "" {
		t.Error("diagnostics missing body preview")
	}
}

func TestFetch_TokenMissingOnFirstAttempt(t *testing.T) {
	site, srv := newFakeSite(t, 6, 6)
	site.tokenMissing = 1

	res, err := testFetcher(srv).Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if res.Mode != ModeExhaustive {
		t.Errorf("Mode = %v, want exhaustive", res.Mode)
	}
	if res.Attempts[0].Error == "" {
		t.Error("first attempt should record the negotiation error")
	}
}

func TestFetch_Outage(t *testing.T) {
	site, srv := newFakeSite(t, 5, 5)
	site.postStatus = http.StatusBadGateway

	_, err := testFetcher(srv).Fetch(context.Background())
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("Fetch() error = %v, want ErrTransport", err)
	}
	if !IsOutage(err) {
		t.Error("IsOutage() = false for a transport failure")
	}

	var fe *FetchError
	if errors.As(err, &fe) {
		for _, a := range fe.Attempts {
			if a.StatusCode != http.StatusBadGateway {
				t.Errorf("attempt %s status = %d, want 502", a.Mode, a.StatusCode)
			}
		}
	}
}

func TestFetch_ServerDown(t *testing.T) {
	_, srv := newFakeSite(t, 5, 5)
	f := testFetcher(srv)
	srv.Close()

	_, err := f.Fetch(context.Background())
	if !IsOutage(err) {
		t.Errorf("Fetch() error = %v, want an outage", err)
	}
}

func TestFetch_CancelledContextStopsAfterFirstAttempt(t *testing.T) {
	site, srv := newFakeSite(t, 5, 5)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := testFetcher(srv).Fetch(ctx)
	if !errors.Is(err, ErrTransport) {
		t.Errorf("Fetch() error = %v, want ErrTransport", err)
	}
	if gets, _ := site.counts(); gets > 1 {
		t.Errorf("gets = %d, want at most 1", gets)
	}
}
