// Package timezones resolves the calendar timezone used to decide which day
// a collection cycle targets.
package timezones

import (
	"fmt"
	"sync"
	"time"

	// Embed the IANA database so minimal containers without zoneinfo work.
	_ "time/tzdata"
)

// Default is the timezone the statistics provider publishes dates in.
const Default = "Asia/Seoul"

var (
	mu    sync.RWMutex
	cache = map[string]*time.Location{}
)

// Load returns the location for id. An empty id means Default.
func Load(id string) (*time.Location, error) {
	if id == "" {
		id = Default
	}

	mu.RLock()
	loc, ok := cache[id]
	mu.RUnlock()
	if ok {
		return loc, nil
	}

	loc, err := time.LoadLocation(id)
	if err != nil {
		return nil, fmt.Errorf("timezones: unknown zone %q: %w", id, err)
	}
	mu.Lock()
	cache[id] = loc
	mu.Unlock()
	return loc, nil
}

// Valid reports whether id names a loadable timezone.
func Valid(id string) bool {
	_, err := Load(id)
	return err == nil
}

// Day returns the calendar date of t in loc, as midnight UTC.
func Day(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Yesterday returns the calendar date before t in loc, as midnight UTC.
func Yesterday(t time.Time, loc *time.Location) time.Time {
	return Day(t, loc).AddDate(0, 0, -1)
}
