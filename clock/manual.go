package clock

import (
	"context"
	"sync"
	"time"
)

// Manual is a simulated clock for tests. Time only moves when Advance is
// called; sleepers are released once the clock reaches their deadline.
type Manual struct {
	mu      sync.Mutex
	now     time.Time
	waiters []waiter
}

type waiter struct {
	deadline time.Time
	ch       chan struct{}
}

// NewManual creates a manual clock starting at the given instant.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// Now returns the simulated current time.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the clock forward and wakes any sleeper whose deadline
// has been reached.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)

	remaining := m.waiters[:0]
	var due []chan struct{}
	for _, w := range m.waiters {
		if !w.deadline.After(m.now) {
			due = append(due, w.ch)
		} else {
			remaining = append(remaining, w)
		}
	}
	m.waiters = remaining
	m.mu.Unlock()

	for _, ch := range due {
		close(ch)
	}
}

// Sleep suspends the caller until the clock is advanced past d or ctx is
// done.
func (m *Manual) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	m.mu.Lock()
	w := waiter{deadline: m.now.Add(d), ch: make(chan struct{})}
	m.waiters = append(m.waiters, w)
	m.mu.Unlock()

	select {
	case <-ctx.Done():
		m.remove(w.ch)
		return ctx.Err()
	case <-w.ch:
		return nil
	}
}

// Sleepers returns the number of goroutines currently blocked in Sleep.
// Tests use this to synchronize before advancing the clock.
func (m *Manual) Sleepers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.waiters)
}

func (m *Manual) remove(ch chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, w := range m.waiters {
		if w.ch == ch {
			m.waiters = append(m.waiters[:i], m.waiters[i+1:]...)
			return
		}
	}
}
