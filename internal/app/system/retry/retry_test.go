package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dalemusser/stratabox/internal/app/system/retry"
	"go.uber.org/zap"
)

var errFlaky = errors.New("flaky")

func fastPolicy(attempts int) retry.Policy {
	return retry.Policy{MaxAttempts: attempts, Delay: time.Millisecond}
}

func TestPolicy_SucceedsAfterRetries(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errFlaky
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestPolicy_GivesUpAtMaxAttempts(t *testing.T) {
	calls := 0
	err := fastPolicy(2).Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errFlaky
	})
	if !errors.Is(err, errFlaky) {
		t.Errorf("Do() error = %v, want %v", err, errFlaky)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestPolicy_PermanentStopsImmediately(t *testing.T) {
	calls := 0
	err := fastPolicy(5).Do(context.Background(), func(ctx context.Context) error {
		calls++
		return retry.Permanent(errFlaky)
	})
	if err != errFlaky {
		t.Errorf("Do() error = %v, want unwrapped %v", err, errFlaky)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestPolicy_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := retry.Policy{MaxAttempts: 10, Delay: time.Hour}

	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- p.Do(ctx, func(ctx context.Context) error {
			calls++
			return errFlaky
		})
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, errFlaky) {
			t.Errorf("Do() error = %v, want %v", err, errFlaky)
		}
	case <-time.After(time.Second):
		t.Fatal("Do() did not return after cancel")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestPolicy_ZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	_ = retry.Policy{}.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errFlaky
	})
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	b := retry.NewBreaker("test", 2, time.Hour, zap.NewNop())

	for i := 0; i < 2; i++ {
		if err := b.Execute(func() error { return errFlaky }); !errors.Is(err, errFlaky) {
			t.Fatalf("Execute() #%d error = %v, want %v", i, err, errFlaky)
		}
	}

	called := false
	err := b.Execute(func() error {
		called = true
		return nil
	})
	if !errors.Is(err, retry.ErrOpen) {
		t.Errorf("Execute() on open breaker error = %v, want ErrOpen", err)
	}
	if called {
		t.Error("fn was called while breaker open")
	}
	if b.State() != "open" {
		t.Errorf("State() = %q, want %q", b.State(), "open")
	}
}

func TestBreaker_PermanentErrorsDoNotTrip(t *testing.T) {
	b := retry.NewBreaker("test", 1, time.Hour, zap.NewNop())

	for i := 0; i < 3; i++ {
		_ = b.Execute(func() error { return retry.Permanent(errFlaky) })
	}
	if b.State() != "closed" {
		t.Errorf("State() = %q, want %q", b.State(), "closed")
	}
}

func TestBreaker_CallerDeadlineDoesNotTrip(t *testing.T) {
	b := retry.NewBreaker("test", 2, time.Hour, zap.NewNop())

	for i := 0; i < 5; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
		<-ctx.Done()
		err := b.ExecuteContext(ctx, func() error { return ctx.Err() })
		cancel()
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("ExecuteContext() #%d error = %v, want DeadlineExceeded", i, err)
		}
	}
	if b.State() != "closed" {
		t.Errorf("State() = %q, want %q", b.State(), "closed")
	}

	// an upstream failure with a live context still counts
	for i := 0; i < 2; i++ {
		_ = b.ExecuteContext(context.Background(), func() error { return errFlaky })
	}
	if b.State() != "open" {
		t.Errorf("State() = %q, want %q", b.State(), "open")
	}
}

func TestGuarded_ShortDeadlinesLeaveBreakerClosed(t *testing.T) {
	g := retry.Guarded{
		Policy:  fastPolicy(1),
		Breaker: retry.NewBreaker("guarded", 2, time.Hour, zap.NewNop()),
	}

	for i := 0; i < 4; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
		_ = g.Do(ctx, func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})
		cancel()
	}
	if g.Breaker.State() != "closed" {
		t.Errorf("State() = %q, want %q", g.Breaker.State(), "closed")
	}
}

func TestGuarded_StopsWhenOpen(t *testing.T) {
	g := retry.Guarded{
		Policy:  fastPolicy(10),
		Breaker: retry.NewBreaker("guarded", 2, time.Hour, zap.NewNop()),
	}

	calls := 0
	err := g.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errFlaky
	})
	if !errors.Is(err, retry.ErrOpen) {
		t.Errorf("Do() error = %v, want ErrOpen", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestBreaker_NilPassesThrough(t *testing.T) {
	var b *retry.Breaker
	if err := b.Execute(func() error { return nil }); err != nil {
		t.Errorf("nil Breaker Execute() error = %v", err)
	}
	if b.State() != "closed" {
		t.Errorf("nil Breaker State() = %q, want closed", b.State())
	}
}
