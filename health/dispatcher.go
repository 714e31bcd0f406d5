package health

import (
	"context"
	"fmt"

	"github.com/jonwraymond/guardrail/dispatch"
	"github.com/jonwraymond/guardrail/resilience"
)

// DispatcherChecker reports the health of one dispatcher from its
// observability snapshot. An open circuit is unhealthy: the downstream
// dependency is known to be failing. A half-open circuit, a queue at
// its high-water mark, or an exhausted token bucket all report
// degraded, signalling pressure before hard failure.
type DispatcherChecker struct {
	name string
	d    *dispatch.Dispatcher
}

// NewDispatcherChecker creates a checker for the given dispatcher.
func NewDispatcherChecker(name string, d *dispatch.Dispatcher) *DispatcherChecker {
	return &DispatcherChecker{name: name, d: d}
}

// Name returns the name of this checker.
func (c *DispatcherChecker) Name() string {
	return c.name
}

// Check reads a dispatcher snapshot and classifies it.
func (c *DispatcherChecker) Check(ctx context.Context) Result {
	select {
	case <-ctx.Done():
		return Unhealthy("context cancelled", ctx.Err())
	default:
	}

	snap := c.d.Metrics()
	details := map[string]any{
		"queue_depth":   snap.QueueDepth,
		"breaker_state": snap.BreakerState.String(),
		"tokens":        snap.Tokens,
		"rejected":      snap.Rejected,
		"retried":       snap.Retried,
	}

	switch snap.BreakerState {
	case resilience.StateOpen:
		return Unhealthy("circuit breaker open", resilience.ErrCircuitOpen).WithDetails(details)
	case resilience.StateHalfOpen:
		return Degraded("circuit breaker probing recovery").WithDetails(details)
	}

	if c.d.NearCapacity() {
		return Degraded(fmt.Sprintf("queue near capacity: depth %d", snap.QueueDepth)).WithDetails(details)
	}
	if snap.Tokens < 1 {
		return Degraded("rate limit exhausted").WithDetails(details)
	}

	return Healthy("dispatcher nominal").WithDetails(details)
}
