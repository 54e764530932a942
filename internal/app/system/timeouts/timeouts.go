// Package timeouts provides centralized timeout values for outbound calls and cycles.
package timeouts

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Default timeout values (used if Configure is not called).
const (
	DefaultPing      = 2 * time.Second
	DefaultNegotiate = 10 * time.Second
	DefaultTable     = 20 * time.Second
	DefaultLookup    = 3 * time.Second
	DefaultDetail    = 5 * time.Second
	DefaultCycle     = 5 * time.Minute
)

// mu protects all timeout values from concurrent access.
var mu sync.RWMutex

// Configurable timeout values.
var (
	ping      = DefaultPing
	negotiate = DefaultNegotiate
	table     = DefaultTable
	lookup    = DefaultLookup
	detail    = DefaultDetail
	cycle     = DefaultCycle
)

// Ping returns the timeout for health checks.
func Ping() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return ping
}

// Negotiate returns the timeout for reading the ranking page and its token.
func Negotiate() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return negotiate
}

// Table returns the timeout for one full ranking fetch attempt
// (negotiation plus the table request).
func Table() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return table
}

// Lookup returns the timeout for a single per-date statistics lookup.
func Lookup() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return lookup
}

// Detail returns the timeout for a single movie detail request.
func Detail() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return detail
}

// Cycle returns the timeout for one whole collection cycle.
func Cycle() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return cycle
}

// Config holds timeout configuration values.
type Config struct {
	Ping      time.Duration
	Negotiate time.Duration
	Table     time.Duration
	Lookup    time.Duration
	Detail    time.Duration
	Cycle     time.Duration
}

// Configure sets custom timeout values. Zero fields keep their current value.
func Configure(cfg Config) {
	mu.Lock()
	defer mu.Unlock()
	if cfg.Ping > 0 {
		ping = cfg.Ping
	}
	if cfg.Negotiate > 0 {
		negotiate = cfg.Negotiate
	}
	if cfg.Table > 0 {
		table = cfg.Table
	}
	if cfg.Lookup > 0 {
		lookup = cfg.Lookup
	}
	if cfg.Detail > 0 {
		detail = cfg.Detail
	}
	if cfg.Cycle > 0 {
		cycle = cfg.Cycle
	}
}

// Reset restores all timeouts to defaults.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	ping = DefaultPing
	negotiate = DefaultNegotiate
	table = DefaultTable
	lookup = DefaultLookup
	detail = DefaultDetail
	cycle = DefaultCycle
}

// Current returns the current timeout configuration.
func Current() Config {
	mu.RLock()
	defer mu.RUnlock()
	return Config{
		Ping:      ping,
		Negotiate: negotiate,
		Table:     table,
		Lookup:    lookup,
		Detail:    detail,
		Cycle:     cycle,
	}
}

// WithTimeout creates a context with timeout and logging.
func WithTimeout(parent context.Context, timeout time.Duration, log *zap.Logger, operation string) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	return ctx, func() {
		if ctx.Err() == context.DeadlineExceeded && log != nil {
			log.Warn("operation timed out",
				zap.String("operation", operation),
				zap.Duration("timeout", timeout),
			)
		}
		cancel()
	}
}
