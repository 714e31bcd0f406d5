// Package resilience provides the admission and failure-isolation
// primitives that protect a downstream dependency from overload.
//
// Three cooperating mechanisms are implemented:
//
//   - TokenBucket: smooths bursty arrival rates to a configured
//     steady-state rate with bounded burst capacity. Decides per call
//     whether the caller proceeds now, after a wait, or not at all.
//
//   - Breaker: a circuit breaker that stops sending requests to a
//     dependency once consecutive failures cross a threshold, and
//     probes recovery after a cooldown.
//
//   - Executor: retries a unit of work with exponential backoff and
//     jitter, consulting the breaker before each attempt so retries do
//     not amplify load during an outage.
//
// Rate and health are deliberately separate concerns: a healthy
// dependency under excessive load needs the bucket, an unhealthy
// dependency under light load needs the breaker.
//
// # Usage
//
//	tb, err := resilience.NewTokenBucket(resilience.TokenBucketConfig{
//	    Capacity:   10,
//	    RefillRate: 100, // tokens per second
//	})
//	if err != nil {
//	    return err
//	}
//
//	cb := resilience.NewBreaker(resilience.BreakerConfig{
//	    FailureThreshold: 5,
//	    Cooldown:         30 * time.Second,
//	})
//
//	exec := resilience.NewExecutor(cb, resilience.Policy{
//	    MaxAttempts: 3,
//	    BaseDelay:   100 * time.Millisecond,
//	    MaxDelay:    5 * time.Second,
//	}, nil)
//
//	if !tb.Allow() {
//	    return resilience.ErrThrottled
//	}
//	err = exec.Execute(ctx, func(ctx context.Context) error {
//	    return callDependency(ctx)
//	})
//
// Every limiter rejection and breaker transition is an expected,
// typed outcome of the algorithm, not exceptional control flow. All
// components accept a clock.Clock so time-driven behavior (refill,
// cooldown, backoff) is deterministic under test.
//
// The dispatch package composes these primitives with a bounded queue
// and a worker pool into a full admission control plane.
package resilience
