// Package dispatch composes the resilience primitives into an
// admission-and-resilience control plane for one downstream dependency.
//
// A producer calls Submit, which runs two independent admission gates:
// the token bucket smooths arrival rate, then the bounded queue bounds
// backlog. Work that passes both gates waits in FIFO order until one of
// a fixed pool of workers dequeues it and drives it through the retry
// executor, which consults the circuit breaker before every attempt.
// The terminal outcome reaches the producer through a write-once
// Future.
//
//	d, err := dispatch.New(dispatch.Config{
//	    Limiter: resilience.TokenBucketConfig{Capacity: 10, RefillRate: 100},
//	    Queue:   dispatch.QueueConfig{Capacity: 64},
//	    Breaker: resilience.BreakerConfig{FailureThreshold: 5, Cooldown: 30 * time.Second},
//	    Retry:   resilience.Policy{MaxAttempts: 3},
//	    Workers: 4,
//	})
//	if err != nil {
//	    return err
//	}
//	defer d.Shutdown(true)
//
//	fut := d.Submit(func(ctx context.Context) error {
//	    return callDependency(ctx)
//	}, 5*time.Second)
//	res, err := fut.Wait(ctx)
//
// Ordering: items are dequeued in submission order, but with several
// workers draining concurrently the completion order across items is
// unspecified. Attempts within one item are strictly sequential.
//
// The queue is in-memory and forgets its backlog on process exit; there
// is no crash durability or redelivery. Hosts that need at-least-once
// semantics must layer a durable queue in front of the dispatcher.
package dispatch
