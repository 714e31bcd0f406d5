// Package clock abstracts wall-clock time so that time-based algorithms
// (token refill, circuit breaker cooldown, retry backoff) can be tested
// deterministically with a manual clock.
package clock

import (
	"context"
	"time"
)

// Clock provides the current time and a cancellable sleep.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: Sleep must return promptly when ctx is done.
// - Errors: Sleep returns nil after the duration elapses, ctx.Err() otherwise.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// Sleep suspends the caller for d or until ctx is done.
	Sleep(ctx context.Context, d time.Duration) error
}

// System returns the wall clock backed by the time package.
func System() Clock {
	return systemClock{}
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

func (systemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Or returns c when non-nil, otherwise the system clock. Components use
// this to make the Clock field of their configs optional.
func Or(c Clock) Clock {
	if c != nil {
		return c
	}
	return System()
}
