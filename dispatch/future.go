package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Work is an opaque unit of work executed by the dispatcher. The
// context carries the caller deadline and shutdown cancellation; work
// that blocks should honor it.
type Work func(ctx context.Context) error

// Result is the terminal outcome of a submitted work item.
type Result struct {
	// ID identifies the work item across logs, traces and the future.
	ID uuid.UUID

	// Err is nil on success, otherwise one of the typed admission,
	// retry or lifecycle errors wrapping any underlying cause.
	Err error

	// Attempts is the number of times the work function was invoked.
	// Zero when the item was rejected or discarded before execution.
	Attempts int

	// Elapsed is the time from submission to the terminal outcome.
	Elapsed time.Duration
}

// Future resolves exactly once with the Result of a submitted work
// item. Safe for concurrent use; multiple goroutines may wait on the
// same future.
type Future struct {
	once sync.Once
	done chan struct{}
	res  Result
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// failedFuture builds an already-resolved future for admission
// rejections.
func failedFuture(id uuid.UUID, err error) *Future {
	f := newFuture()
	f.resolve(Result{ID: id, Err: err})
	return f
}

// resolve delivers the terminal outcome. Later calls are ignored: the
// first terminal outcome wins.
func (f *Future) resolve(r Result) {
	f.once.Do(func() {
		f.res = r
		close(f.done)
	})
}

// Done returns a channel closed when the result is available.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the result is available or ctx is done. The error
// return concerns the wait itself; the work outcome is Result.Err.
func (f *Future) Wait(ctx context.Context) (Result, error) {
	select {
	case <-f.done:
		return f.res, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Result returns the outcome without blocking. ok is false while the
// work is still pending.
func (f *Future) Result() (r Result, ok bool) {
	select {
	case <-f.done:
		return f.res, true
	default:
		return Result{}, false
	}
}

// item is a queued unit of work. It is owned by the submitting call
// until a terminal result is written to its future; the attempt counter
// is touched only by the single worker that dequeued it.
type item struct {
	id          uuid.UUID
	work        Work
	future      *Future
	submittedAt time.Time
	deadline    time.Time // zero means no caller deadline
	attempts    int
}
