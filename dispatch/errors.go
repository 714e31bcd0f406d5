package dispatch

import "errors"

// Sentinel errors for dispatcher admission and lifecycle outcomes.
// Limiter, breaker, timeout and cancellation outcomes reuse the
// resilience package sentinels so callers match one taxonomy end to
// end.
var (
	// ErrQueueFull is returned when the bounded queue rejects an item.
	// This is the backpressure signal: the backlog bound was hit.
	ErrQueueFull = errors.New("dispatch: queue full")

	// ErrShutdown is returned for work submitted after shutdown began,
	// and delivered to futures of items still queued when a non-drain
	// shutdown discards the backlog.
	ErrShutdown = errors.New("dispatch: dispatcher shut down")
)
