// Package retry holds the single bounded-retry policy shared by every
// provider call, plus a circuit breaker that stops hammering a provider
// that is clearly down.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// ErrOpen is returned while the breaker refuses calls.
var ErrOpen = errors.New("retry: circuit open")

// Policy is a bounded retry policy. A Multiplier of 0 or 1 means a fixed delay.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
}

// DefaultPolicy returns three attempts with a doubling delay starting at 500ms.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		Delay:       500 * time.Millisecond,
		Multiplier:  2,
		MaxDelay:    5 * time.Second,
	}
}

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying. Do returns the wrapped error unchanged.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Do runs fn until it succeeds, returns a permanent error, the context ends,
// or MaxAttempts is reached. The last error is returned.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := p.Delay

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if errors.Is(err, ErrOpen) || attempt == attempts {
			break
		}

		select {
		case <-ctx.Done():
			return err
		case <-time.After(delay):
		}
		delay = p.next(delay)
	}
	return err
}

func (p Policy) next(d time.Duration) time.Duration {
	if p.Multiplier <= 1 {
		return d
	}
	n := time.Duration(float64(d) * p.Multiplier)
	if p.MaxDelay > 0 && n > p.MaxDelay {
		return p.MaxDelay
	}
	return n
}

// Breaker wraps a gobreaker circuit breaker for one upstream.
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

// NewBreaker creates a breaker that trips after the given number of
// consecutive failures, or when more than 5% of at least 20 requests in
// the current window failed. It stays open for openFor before probing again.
// Permanent errors, context cancellation and calls cut short by the caller's
// own deadline (see ExecuteContext) are not counted as failures.
func NewBreaker(name string, failures uint32, openFor time.Duration, logger *zap.Logger) *Breaker {
	if failures == 0 {
		failures = 3
	}
	if openFor <= 0 {
		openFor = 60 * time.Second
	}
	st := gobreaker.Settings{
		Name:     name,
		Interval: 60 * time.Second,
		Timeout:  openFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= failures {
				return true
			}
			if counts.Requests < 20 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) > 0.05
		},
		IsSuccessful: func(err error) bool {
			var cd callerDone
			return err == nil || IsPermanent(err) || errors.Is(err, context.Canceled) || errors.As(err, &cd)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if logger != nil {
				logger.Warn("circuit breaker state change",
					zap.String("breaker", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			}
		},
	}
	return &Breaker{cb: gobreaker.NewCircuitBreaker(st)}
}

// Execute runs fn through the breaker. While the breaker is open it returns
// ErrOpen without calling fn.
func (b *Breaker) Execute(fn func() error) error {
	if b == nil {
		return fn()
	}
	_, err := b.cb.Execute(func() (any, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrOpen
	}
	return err
}

// ExecuteContext is Execute for calls bound to ctx. When fn fails after ctx
// is done, the failure belongs to the caller's deadline rather than the
// upstream and is not counted against the breaker.
func (b *Breaker) ExecuteContext(ctx context.Context, fn func() error) error {
	err := b.Execute(func() error {
		err := fn()
		if err != nil && ctx.Err() != nil {
			return callerDone{err}
		}
		return err
	})
	var cd callerDone
	if errors.As(err, &cd) {
		return cd.err
	}
	return err
}

// callerDone marks an error that happened after the caller's context ended.
type callerDone struct{ err error }

func (c callerDone) Error() string { return c.err.Error() }
func (c callerDone) Unwrap() error { return c.err }

// State returns the breaker state name ("closed", "half-open", "open").
func (b *Breaker) State() string {
	if b == nil {
		return gobreaker.StateClosed.String()
	}
	return b.cb.State().String()
}

// Guarded combines a policy with a breaker: every attempt passes through the
// breaker, and an open breaker ends the retries early.
type Guarded struct {
	Policy  Policy
	Breaker *Breaker
}

// Do runs fn under the policy, each attempt through the breaker.
func (g Guarded) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	return g.Policy.Do(ctx, func(ctx context.Context) error {
		return g.Breaker.ExecuteContext(ctx, func() error {
			return fn(ctx)
		})
	})
}
