package backfill

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dalemusser/stratabox/internal/domain/models"
	"go.uber.org/zap"
)

// fakeDaily serves lists keyed by date and counts lookups per date.
type fakeDaily struct {
	mu      sync.Mutex
	lists   map[string][]models.DailyStatRecord
	fail    map[string]bool
	calls   map[string]int
	active  atomic.Int32
	maxSeen atomic.Int32
	delay   time.Duration
}

func newFakeDaily() *fakeDaily {
	return &fakeDaily{
		lists: map[string][]models.DailyStatRecord{},
		fail:  map[string]bool{},
		calls: map[string]int{},
	}
}

func (f *fakeDaily) add(date, code string, att int64) {
	f.lists[date] = append(f.lists[date], models.DailyStatRecord{EntityCode: code, Date: date, AttendanceCount: att})
}

func (f *fakeDaily) DailyList(ctx context.Context, d time.Time) ([]models.DailyStatRecord, error) {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		m := f.maxSeen.Load()
		if n <= m || f.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	key := models.FormatDay(d)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[key]++
	if f.fail[key] {
		return nil, errors.New("lookup failed")
	}
	return f.lists[key], nil
}

func (f *fakeDaily) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func date(s string) time.Time {
	t, _ := models.ParseDay(s)
	return t
}

func TestRange_DaysAndClamp(t *testing.T) {
	r := Range{From: date("20240228"), To: date("20240302")}
	days := r.Days()
	if len(days) != 4 || models.FormatDay(days[1]) != "20240229" {
		t.Errorf("Days() = %v", days)
	}

	c := Range{From: date("20240101"), To: date("20240310")}.Clamp(30)
	if got := models.FormatDay(c.From); got != "20240210" {
		t.Errorf("Clamp(30).From = %s, want 20240210", got)
	}
	if n := len(c.Days()); n != 30 {
		t.Errorf("len(Clamp(30).Days()) = %d, want 30", n)
	}
}

func TestWindow(t *testing.T) {
	w := Window(date("20240314"), 14)
	if models.FormatDay(w.From) != "20240301" || models.FormatDay(w.To) != "20240314" {
		t.Errorf("Window() = %v..%v", w.From, w.To)
	}
}

func TestBackfill_OnlyMissingDatesLookedUp(t *testing.T) {
	f := newFakeDaily()
	f.add("20240302", "A", 20)
	f.add("20240303", "A", 30)
	c := New(f, Config{}, nil, zap.NewNop())

	existing := []models.TrendPoint{{Date: "20240301", AttendanceCount: 10}}
	got, rep := c.Backfill(context.Background(), "A", Range{From: date("20240301"), To: date("20240303")}, existing)

	if len(got) != 3 {
		t.Fatalf("len(points) = %d, want 3", len(got))
	}
	for i, want := range []string{"20240301", "20240302", "20240303"} {
		if got[i].Date != want {
			t.Errorf("points[%d].Date = %s, want %s", i, got[i].Date, want)
		}
	}
	if f.calls["20240301"] != 0 {
		t.Error("present date was looked up")
	}
	if rep.Missing != 2 || rep.Looked != 2 || rep.Found != 2 || rep.Misses != 0 {
		t.Errorf("Report = %+v", rep)
	}
}

func TestBackfill_AbsentIsNotZero(t *testing.T) {
	f := newFakeDaily()
	f.add("20240302", "B", 99) // a different movie
	c := New(f, Config{}, nil, zap.NewNop())

	got, rep := c.Backfill(context.Background(), "A", Range{From: date("20240302"), To: date("20240302")}, nil)
	if len(got) != 0 {
		t.Errorf("points = %+v, want none", got)
	}
	if rep.Found != 0 || rep.Misses != 0 {
		t.Errorf("Report = %+v", rep)
	}
}

func TestBackfill_FailedLookupLeavesGap(t *testing.T) {
	f := newFakeDaily()
	f.add("20240301", "A", 1)
	f.add("20240302", "A", 2)
	f.fail["20240302"] = true
	c := New(f, Config{}, nil, zap.NewNop())

	got, rep := c.Backfill(context.Background(), "A", Range{From: date("20240301"), To: date("20240302")}, nil)
	if len(got) != 1 || got[0].Date != "20240301" {
		t.Errorf("points = %+v, want only 20240301", got)
	}
	if rep.Misses != 1 {
		t.Errorf("Misses = %d, want 1", rep.Misses)
	}
}

func TestBackfillAll_OneLookupPerDate(t *testing.T) {
	f := newFakeDaily()
	for _, d := range []string{"20240301", "20240302", "20240303"} {
		f.add(d, "A", 1)
		f.add(d, "B", 2)
		f.add(d, "C", 3)
	}
	c := New(f, Config{}, nil, zap.NewNop())

	series := map[string][]models.TrendPoint{
		"A": nil,
		"B": {{Date: "20240302"}},
		"C": nil,
	}
	out, rep := c.BackfillAll(context.Background(), series, Range{From: date("20240301"), To: date("20240303")})

	for d, n := range f.calls {
		if n != 1 {
			t.Errorf("date %s looked up %d times, want 1", d, n)
		}
	}
	if f.totalCalls() != 3 || rep.Looked != 3 {
		t.Errorf("calls = %d, Looked = %d; want 3", f.totalCalls(), rep.Looked)
	}
	for _, code := range []string{"A", "B", "C"} {
		if len(out[code]) != 3 {
			t.Errorf("len(out[%s]) = %d, want 3", code, len(out[code]))
		}
	}
}

func TestBackfill_CeilingBoundsLookups(t *testing.T) {
	f := newFakeDaily()
	c := New(f, Config{CeilingDays: 5}, nil, zap.NewNop())

	c.Backfill(context.Background(), "A", Range{From: date("20240101"), To: date("20240331")}, nil)
	if n := f.totalCalls(); n != 5 {
		t.Errorf("lookups = %d, want 5", n)
	}
}

func TestBackfill_PoolIsBounded(t *testing.T) {
	f := newFakeDaily()
	f.delay = 10 * time.Millisecond
	c := New(f, Config{Workers: 2}, nil, zap.NewNop())

	c.Backfill(context.Background(), "A", Range{From: date("20240301"), To: date("20240310")}, nil)
	if m := f.maxSeen.Load(); m > 2 {
		t.Errorf("max concurrent lookups = %d, want <= 2", m)
	}
}

func TestBackfill_Idempotent(t *testing.T) {
	f := newFakeDaily()
	f.add("20240301", "A", 1)
	f.add("20240302", "A", 2)
	c := New(f, Config{}, nil, zap.NewNop())
	rng := Range{From: date("20240301"), To: date("20240302")}

	first, _ := c.Backfill(context.Background(), "A", rng, nil)
	second, rep := c.Backfill(context.Background(), "A", rng, first)
	if len(second) != len(first) || rep.Looked != 0 {
		t.Errorf("second pass: %d points, %d lookups; want %d, 0", len(second), rep.Looked, len(first))
	}
}

func TestMergePoints(t *testing.T) {
	a := []models.TrendPoint{{Date: "20240303", AttendanceCount: 3}, {Date: "20240301", AttendanceCount: 1}}
	b := []models.TrendPoint{{Date: "20240301", AttendanceCount: 100}, {Date: "20240302", AttendanceCount: 2}}

	got := MergePoints(a, b)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].AttendanceCount != 1 {
		t.Errorf("duplicate date did not keep first occurrence: %+v", got[0])
	}
	if got[1].Date != "20240302" || got[2].Date != "20240303" {
		t.Errorf("not sorted: %+v", got)
	}
}

func TestInRange(t *testing.T) {
	pts := []models.TrendPoint{{Date: "20240228"}, {Date: "20240301"}, {Date: "20240305"}}
	got := InRange(pts, Range{From: date("20240301"), To: date("20240304")})
	if len(got) != 1 || got[0].Date != "20240301" {
		t.Errorf("InRange() = %+v", got)
	}
}
