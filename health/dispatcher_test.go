package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonwraymond/guardrail/clock"
	"github.com/jonwraymond/guardrail/dispatch"
	"github.com/jonwraymond/guardrail/resilience"
)

func newTestDispatcher(t *testing.T, cfg dispatch.Config) *dispatch.Dispatcher {
	t.Helper()
	d, err := dispatch.New(cfg)
	if err != nil {
		t.Fatalf("dispatch.New() error = %v", err)
	}
	t.Cleanup(func() { d.Shutdown(false) })
	return d
}

func TestDispatcherChecker_Healthy(t *testing.T) {
	d := newTestDispatcher(t, dispatch.Config{
		Limiter: resilience.TokenBucketConfig{Capacity: 100, RefillRate: 100},
		Queue:   dispatch.QueueConfig{Capacity: 16},
		Retry:   resilience.Policy{MaxAttempts: 1},
		Workers: 1,
	})

	c := NewDispatcherChecker("orders", d)
	if got := c.Name(); got != "orders" {
		t.Errorf("Name() = %q, want orders", got)
	}

	res := c.Check(context.Background())
	if res.Status != StatusHealthy {
		t.Errorf("Status = %v (%s), want healthy", res.Status, res.Message)
	}
	if res.Details["breaker_state"] != "closed" {
		t.Errorf("breaker_state = %v, want closed", res.Details["breaker_state"])
	}
}

func TestDispatcherChecker_OpenBreakerUnhealthy(t *testing.T) {
	d := newTestDispatcher(t, dispatch.Config{
		Limiter: resilience.TokenBucketConfig{Capacity: 100, RefillRate: 100},
		Queue:   dispatch.QueueConfig{Capacity: 16},
		Breaker: resilience.BreakerConfig{FailureThreshold: 1, Cooldown: time.Hour},
		Retry:   resilience.Policy{MaxAttempts: 1, JitterFraction: -1},
		Workers: 1,
	})

	f := d.Submit(func(ctx context.Context) error { return errors.New("down") }, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := f.Wait(ctx); err != nil {
		t.Fatalf("future did not resolve: %v", err)
	}

	res := NewDispatcherChecker("orders", d).Check(context.Background())
	if res.Status != StatusUnhealthy {
		t.Errorf("Status = %v (%s), want unhealthy", res.Status, res.Message)
	}
	if !errors.Is(res.Error, resilience.ErrCircuitOpen) {
		t.Errorf("Error = %v, want ErrCircuitOpen", res.Error)
	}
}

func TestDispatcherChecker_ExhaustedTokensDegraded(t *testing.T) {
	clk := clock.NewManual(time.Unix(0, 0))
	d := newTestDispatcher(t, dispatch.Config{
		Limiter: resilience.TokenBucketConfig{Capacity: 1, RefillRate: 0.001},
		Queue:   dispatch.QueueConfig{Capacity: 16},
		Retry:   resilience.Policy{MaxAttempts: 1},
		Workers: 1,
		Clock:   clk,
	})

	f := d.Submit(func(ctx context.Context) error { return nil }, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := f.Wait(ctx); err != nil {
		t.Fatalf("future did not resolve: %v", err)
	}

	res := NewDispatcherChecker("orders", d).Check(context.Background())
	if res.Status != StatusDegraded {
		t.Errorf("Status = %v (%s), want degraded", res.Status, res.Message)
	}
}

func TestDispatcherChecker_QueueBacklogDegraded(t *testing.T) {
	d := newTestDispatcher(t, dispatch.Config{
		Limiter: resilience.TokenBucketConfig{Capacity: 100, RefillRate: 100},
		Queue:   dispatch.QueueConfig{Capacity: 4, HighWaterMark: 0.5},
		Retry:   resilience.Policy{MaxAttempts: 1},
		Workers: 1,
	})

	release := make(chan struct{})
	defer close(release)
	blocker := func(ctx context.Context) error {
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	// One in flight plus a backlog past the high-water mark.
	for i := 0; i < 4; i++ {
		d.Submit(blocker, 0)
	}
	time.Sleep(20 * time.Millisecond)

	res := NewDispatcherChecker("orders", d).Check(context.Background())
	if res.Status != StatusDegraded {
		t.Errorf("Status = %v (%s), want degraded", res.Status, res.Message)
	}
}

func TestDispatcherChecker_CancelledContext(t *testing.T) {
	d := newTestDispatcher(t, dispatch.Config{
		Limiter: resilience.TokenBucketConfig{Capacity: 100, RefillRate: 100},
		Queue:   dispatch.QueueConfig{Capacity: 16},
		Retry:   resilience.Policy{MaxAttempts: 1},
		Workers: 1,
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := NewDispatcherChecker("orders", d).Check(ctx)
	if res.Status != StatusUnhealthy {
		t.Errorf("Status = %v, want unhealthy", res.Status)
	}
}
