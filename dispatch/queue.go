package dispatch

import (
	"context"
	"fmt"
	"sync"
)

// QueueConfig configures a bounded queue.
type QueueConfig struct {
	// Capacity is the maximum number of buffered items. Must be >= 1.
	Capacity int

	// HighWaterMark is the depth ratio at which NearCapacity starts
	// reporting true, letting producers slow down cooperatively before
	// hard rejection. Must be in (0, 1].
	// Default: 0.8
	HighWaterMark float64
}

// Validate checks the configuration, applying the high-water default.
func (c *QueueConfig) Validate() error {
	if c.Capacity < 1 {
		return fmt.Errorf("dispatch: queue capacity must be >= 1, got %d", c.Capacity)
	}
	if c.HighWaterMark == 0 {
		c.HighWaterMark = 0.8
	}
	if c.HighWaterMark < 0 || c.HighWaterMark > 1 {
		return fmt.Errorf("dispatch: queue high-water mark must be in (0, 1], got %g", c.HighWaterMark)
	}
	return nil
}

// Queue is a bounded FIFO buffer decoupling producers from consumers.
// Enqueue never blocks: a full queue rejects, shedding load instead of
// buffering it unboundedly. Dequeue is the only blocking operation and
// unblocks on context cancellation or Close.
type Queue[T any] struct {
	capacity  int
	highWater int

	mu     sync.RWMutex
	closed bool
	items  chan T
}

// NewQueue creates a bounded queue.
func NewQueue[T any](cfg QueueConfig) (*Queue[T], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	highWater := int(float64(cfg.Capacity) * cfg.HighWaterMark)
	if highWater < 1 {
		highWater = 1
	}

	return &Queue[T]{
		capacity:  cfg.Capacity,
		highWater: highWater,
		items:     make(chan T, cfg.Capacity),
	}, nil
}

// TryEnqueue appends v in FIFO order. It returns false without blocking
// when the queue is full or closed.
func (q *Queue[T]) TryEnqueue(v T) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return false
	}
	select {
	case q.items <- v:
		return true
	default:
		return false
	}
}

// Dequeue removes the oldest item, blocking until one is available. It
// returns false when ctx is done or the queue is closed and drained.
func (q *Queue[T]) Dequeue(ctx context.Context) (T, bool) {
	var zero T
	select {
	case v, ok := <-q.items:
		if !ok {
			return zero, false
		}
		return v, true
	case <-ctx.Done():
		return zero, false
	}
}

// TryDequeue removes the oldest item without blocking.
func (q *Queue[T]) TryDequeue() (T, bool) {
	var zero T
	select {
	case v, ok := <-q.items:
		if !ok {
			return zero, false
		}
		return v, true
	default:
		return zero, false
	}
}

// Depth returns the current number of buffered items.
func (q *Queue[T]) Depth() int {
	return len(q.items)
}

// Capacity returns the fixed capacity.
func (q *Queue[T]) Capacity() int {
	return q.capacity
}

// NearCapacity reports whether depth has reached the high-water mark.
func (q *Queue[T]) NearCapacity() bool {
	return q.Depth() >= q.highWater
}

// Close stops intake. Buffered items remain dequeueable until drained;
// consumers ranging via Dequeue observe the drain finishing. Idempotent.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.items)
}
