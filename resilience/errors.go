package resilience

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for resilience outcomes. Rejections are expected
// results of the algorithms, not internal faults; callers match them
// with errors.Is.
var (
	// ErrCircuitOpen is returned when the circuit breaker is open.
	ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

	// ErrThrottled is returned when the token bucket rejects a request.
	ErrThrottled = errors.New("resilience: rate limit exceeded")

	// ErrRetriesExhausted is returned when all retry attempts failed.
	ErrRetriesExhausted = errors.New("resilience: retries exhausted")

	// ErrNonRetryable is returned when the error predicate classified a
	// failure as not worth retrying.
	ErrNonRetryable = errors.New("resilience: non-retryable error")

	// ErrTimeout is returned when the caller deadline elapsed.
	ErrTimeout = errors.New("resilience: deadline exceeded")

	// ErrCancelled is returned when the caller cancelled the operation.
	ErrCancelled = errors.New("resilience: operation cancelled")

	// ErrInvalidCost is returned when a request asks for more tokens
	// than the bucket can ever hold.
	ErrInvalidCost = errors.New("resilience: cost exceeds bucket capacity")
)

// ExhaustedError reports that every retry attempt failed with a
// retryable error. It wraps the final underlying failure.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("resilience: retries exhausted after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// Is reports a match for ErrRetriesExhausted so callers can classify
// the outcome without inspecting the cause.
func (e *ExhaustedError) Is(target error) bool { return target == ErrRetriesExhausted }

// NonRetryableError reports a failure the retry predicate refused to
// retry. The wrapped cause is the error from the single attempt made.
type NonRetryableError struct {
	Cause error
}

func (e *NonRetryableError) Error() string {
	return fmt.Sprintf("resilience: non-retryable error: %v", e.Cause)
}

func (e *NonRetryableError) Unwrap() error { return e.Cause }

func (e *NonRetryableError) Is(target error) bool { return target == ErrNonRetryable }

// ctxErr maps a context error to the resilience taxonomy: deadline
// expiry becomes ErrTimeout, explicit cancellation ErrCancelled.
func ctxErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return ErrCancelled
}
