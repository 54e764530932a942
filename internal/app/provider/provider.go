// Package provider defines the statistics provider contracts used by the
// collection cycles, plus a per-cycle cache of daily lists.
package provider

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dalemusser/stratabox/internal/domain/models"
)

// ErrLookupMiss means the provider answered but had nothing for the key.
var ErrLookupMiss = errors.New("provider: lookup miss")

// DailyProvider returns the official daily statistics list for one day.
// An empty list with a nil error means the provider published nothing.
type DailyProvider interface {
	DailyList(ctx context.Context, day time.Time) ([]models.DailyStatRecord, error)
}

// DetailProvider returns opaque detail attributes for one movie.
type DetailProvider interface {
	Detail(ctx context.Context, code string) (map[string]any, error)
}

// DayCache memoizes successful daily lists for the lifetime of one cycle.
// Failed lookups are not cached. It is safe for concurrent use.
type DayCache struct {
	next DailyProvider

	mu    sync.Mutex
	lists map[string][]models.DailyStatRecord
}

// NewDayCache wraps next with a cache.
func NewDayCache(next DailyProvider) *DayCache {
	return &DayCache{next: next, lists: map[string][]models.DailyStatRecord{}}
}

// Put seeds the cache with an already fetched list.
func (c *DayCache) Put(day time.Time, list []models.DailyStatRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lists[models.FormatDay(day)] = list
}

// DailyList returns the cached list for day, fetching it on first use.
func (c *DayCache) DailyList(ctx context.Context, day time.Time) ([]models.DailyStatRecord, error) {
	key := models.FormatDay(day)

	c.mu.Lock()
	list, ok := c.lists[key]
	c.mu.Unlock()
	if ok {
		return list, nil
	}

	list, err := c.next.DailyList(ctx, day)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.lists[key] = list
	c.mu.Unlock()
	return list, nil
}

// FindEntity returns the record for code in list.
func FindEntity(list []models.DailyStatRecord, code string) (models.DailyStatRecord, bool) {
	for _, r := range list {
		if r.EntityCode == code {
			return r, true
		}
	}
	return models.DailyStatRecord{}, false
}
