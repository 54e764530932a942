package provider

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dalemusser/stratabox/internal/domain/models"
)

type countingProvider struct {
	calls atomic.Int32
	err   error
}

func (p *countingProvider) DailyList(ctx context.Context, day time.Time) ([]models.DailyStatRecord, error) {
	p.calls.Add(1)
	if p.err != nil {
		return nil, p.err
	}
	return []models.DailyStatRecord{{EntityCode: "1", Date: models.FormatDay(day)}}, nil
}

func TestDayCache_FetchesOncePerDay(t *testing.T) {
	p := &countingProvider{}
	c := NewDayCache(p)
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		list, err := c.DailyList(context.Background(), day)
		if err != nil {
			t.Fatalf("DailyList() error = %v", err)
		}
		if len(list) != 1 || list[0].Date != "20240301" {
			t.Errorf("DailyList() = %+v", list)
		}
	}
	if p.calls.Load() != 1 {
		t.Errorf("provider calls = %d, want 1", p.calls.Load())
	}
}

func TestDayCache_DoesNotCacheErrors(t *testing.T) {
	p := &countingProvider{err: errors.New("boom")}
	c := NewDayCache(p)
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 2; i++ {
		if _, err := c.DailyList(context.Background(), day); err == nil {
			t.Fatal("DailyList() error = nil, want error")
		}
	}
	if p.calls.Load() != 2 {
		t.Errorf("provider calls = %d, want 2", p.calls.Load())
	}
}

func TestDayCache_Put(t *testing.T) {
	p := &countingProvider{}
	c := NewDayCache(p)
	day := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
	c.Put(day, nil)

	list, err := c.DailyList(context.Background(), day)
	if err != nil || len(list) != 0 {
		t.Errorf("DailyList() = %v, %v; want seeded empty list", list, err)
	}
	if p.calls.Load() != 0 {
		t.Errorf("provider calls = %d, want 0", p.calls.Load())
	}
}

func TestFindEntity(t *testing.T) {
	list := []models.DailyStatRecord{{EntityCode: "1"}, {EntityCode: "2", Rank: 2}}
	if r, ok := FindEntity(list, "2"); !ok || r.Rank != 2 {
		t.Errorf("FindEntity(2) = %+v, %v", r, ok)
	}
	if _, ok := FindEntity(list, "3"); ok {
		t.Error("FindEntity(3) found a record")
	}
}
