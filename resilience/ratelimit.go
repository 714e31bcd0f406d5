package resilience

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonwraymond/guardrail/clock"
)

// TokenBucketConfig configures a token bucket rate limiter.
type TokenBucketConfig struct {
	// Capacity is the maximum burst size in tokens. Must be >= 1.
	Capacity int

	// RefillRate is the steady-state refill rate in tokens per second.
	// Must be > 0.
	RefillRate float64

	// Clock supplies time. Defaults to the system clock.
	Clock clock.Clock
}

// Validate checks the configuration.
func (c TokenBucketConfig) Validate() error {
	if c.Capacity < 1 {
		return fmt.Errorf("resilience: token bucket capacity must be >= 1, got %d", c.Capacity)
	}
	if c.RefillRate <= 0 {
		return fmt.Errorf("resilience: token bucket refill rate must be > 0, got %g", c.RefillRate)
	}
	return nil
}

// Decision is the outcome of a non-consuming admission check.
type Decision struct {
	// Allowed reports whether the tokens were acquired.
	Allowed bool

	// RetryAt is the earliest instant at which the requested tokens
	// could be available. Zero when Allowed is true, and zero when the
	// request can never succeed. No allocation is guaranteed at
	// RetryAt: contenders race for the refilled tokens.
	RetryAt time.Time
}

// TokenBucket is a token bucket rate limiter. It smooths bursty
// arrivals to a configured steady-state rate with bounded burst
// capacity.
//
// Refill-then-consume is atomic under a single mutex held only for O(1)
// arithmetic; the bucket is safe for concurrent use.
type TokenBucket struct {
	capacity float64
	rate     float64
	clk      clock.Clock

	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
}

// NewTokenBucket creates a token bucket. It returns an error for
// invalid configuration rather than applying defaults: a mis-sized
// bucket silently admits the wrong load.
func NewTokenBucket(cfg TokenBucketConfig) (*TokenBucket, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	clk := clock.Or(cfg.Clock)
	return &TokenBucket{
		capacity:   float64(cfg.Capacity),
		rate:       cfg.RefillRate,
		clk:        clk,
		tokens:     float64(cfg.Capacity),
		lastRefill: clk.Now(),
	}, nil
}

// Allow reports whether a single request is admitted now.
func (tb *TokenBucket) Allow() bool {
	return tb.AllowN(1)
}

// AllowN reports whether a request costing n tokens is admitted now.
// This is the non-blocking mode: a false result is final, the caller
// sheds or defers the request.
func (tb *TokenBucket) AllowN(n int) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refillLocked()

	if tb.tokens >= float64(n) {
		tb.tokens -= float64(n)
		return true
	}
	return false
}

// Acquire attempts to take n tokens. When the bucket cannot admit the
// request now, the decision carries the instant at which n tokens will
// have accumulated, so callers wanting blocking semantics can suspend
// and retry once. n greater than capacity yields a not-allowed decision
// with zero RetryAt; that request can never succeed.
func (tb *TokenBucket) Acquire(n int) Decision {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refillLocked()

	if tb.tokens >= float64(n) {
		tb.tokens -= float64(n)
		return Decision{Allowed: true}
	}

	if float64(n) > tb.capacity {
		return Decision{}
	}

	deficit := float64(n) - tb.tokens
	wait := time.Duration(deficit / tb.rate * float64(time.Second))
	return Decision{RetryAt: tb.lastRefill.Add(wait)}
}

// Wait blocks until a single token is acquired, the retry-once window
// passes, or ctx is done.
func (tb *TokenBucket) Wait(ctx context.Context) error {
	return tb.WaitN(ctx, 1)
}

// WaitN is the blocking admission mode: it suspends until the bucket
// projects n tokens to exist, then retries exactly once. There is no
// reservation, so a burst of contenders may race and the retry can
// still lose; sustained overload can starve waiters.
func (tb *TokenBucket) WaitN(ctx context.Context, n int) error {
	if float64(n) > tb.capacity {
		return ErrInvalidCost
	}

	d := tb.Acquire(n)
	if d.Allowed {
		return nil
	}

	if err := tb.clk.Sleep(ctx, d.RetryAt.Sub(tb.clk.Now())); err != nil {
		return ctxErr(err)
	}

	if tb.AllowN(n) {
		return nil
	}
	return ErrThrottled
}

// Tokens returns the current token count after refill, for
// observability snapshots.
func (tb *TokenBucket) Tokens() float64 {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refillLocked()
	return tb.tokens
}

func (tb *TokenBucket) refillLocked() {
	now := tb.clk.Now()
	elapsed := now.Sub(tb.lastRefill).Seconds()
	tb.lastRefill = now

	tb.tokens += elapsed * tb.rate
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
}
