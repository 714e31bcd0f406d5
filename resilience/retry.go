package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/jonwraymond/guardrail/clock"
)

// Policy configures retry behavior. It is immutable after construction.
type Policy struct {
	// MaxAttempts is the maximum number of attempts including the
	// first.
	// Default: 3
	MaxAttempts int

	// BaseDelay is the delay before the first retry.
	// Default: 100ms
	BaseDelay time.Duration

	// MaxDelay caps the delay between retries after exponential growth.
	// Default: 30s
	MaxDelay time.Duration

	// JitterFraction perturbs each delay by up to +/- this fraction so
	// concurrent callers at the same attempt number do not wake in
	// lockstep. Must be in [0, 1].
	// Default: 0.25. A negative value disables jitter.
	JitterFraction float64

	// RetryIf decides whether an error is worth retrying. Supplied by
	// the caller so the retry core stays decoupled from any transport's
	// error taxonomy.
	// Default: all non-nil errors are retried.
	RetryIf func(err error) bool

	// OnRetry is called before each backoff sleep.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// withDefaults fills zero values. Negative jitter is treated as none.
func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 100 * time.Millisecond
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 30 * time.Second
	}
	if p.JitterFraction == 0 {
		p.JitterFraction = 0.25
	}
	if p.JitterFraction < 0 {
		p.JitterFraction = 0
	}
	if p.JitterFraction > 1 {
		p.JitterFraction = 1
	}
	if p.RetryIf == nil {
		p.RetryIf = func(err error) bool { return err != nil }
	}
	return p
}

// Executor orchestrates repeated attempts of a unit of work, consulting
// a circuit breaker before each attempt and applying exponential
// backoff with jitter between failed attempts.
//
// A nil breaker disables health gating and leaves plain retry.
type Executor struct {
	breaker *Breaker
	policy  Policy
	clk     clock.Clock
}

// NewExecutor creates a retry executor. breaker and clk may be nil.
func NewExecutor(breaker *Breaker, policy Policy, clk clock.Clock) *Executor {
	return &Executor{
		breaker: breaker,
		policy:  policy.withDefaults(),
		clk:     clock.Or(clk),
	}
}

// Policy returns the effective policy with defaults applied.
func (e *Executor) Policy() Policy {
	return e.policy
}

// Execute runs op until it succeeds, the policy is exhausted, the error
// is classified non-retryable, the breaker opens, or ctx is done.
//
// An open breaker is never retried against: the attempt fails with
// ErrCircuitOpen immediately and without a backoff delay, since backing
// off into a known-failing dependency only delays the caller learning
// about the outage.
func (e *Executor) Execute(ctx context.Context, op func(context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= e.policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return ctxErr(err)
		}

		if e.breaker != nil && !e.breaker.Allow() {
			return ErrCircuitOpen
		}

		err := op(ctx)
		if e.breaker != nil {
			if err != nil {
				e.breaker.RecordFailure()
			} else {
				e.breaker.RecordSuccess()
			}
		}
		if err == nil {
			return nil
		}
		lastErr = err

		if !e.policy.RetryIf(err) {
			return &NonRetryableError{Cause: err}
		}
		if attempt == e.policy.MaxAttempts {
			break
		}

		// If this failure tripped the breaker there is no point
		// sleeping just to be rejected; fail now, delay-free.
		if e.breaker != nil && e.breaker.State() == StateOpen {
			return ErrCircuitOpen
		}

		delay := e.backoff(attempt)
		if e.policy.OnRetry != nil {
			e.policy.OnRetry(attempt, err, delay)
		}
		if err := e.clk.Sleep(ctx, delay); err != nil {
			return ctxErr(err)
		}
	}

	return &ExhaustedError{Attempts: e.policy.MaxAttempts, Last: lastErr}
}

// backoff computes min(base * 2^(attempt-1), max) with symmetric
// jitter.
func (e *Executor) backoff(attempt int) time.Duration {
	d := float64(e.policy.BaseDelay) * math.Pow(2, float64(attempt-1))
	if d > float64(e.policy.MaxDelay) {
		d = float64(e.policy.MaxDelay)
	}

	if e.policy.JitterFraction > 0 {
		// #nosec G404 -- jitter is non-cryptographic timing variance.
		d *= 1 + e.policy.JitterFraction*(2*rand.Float64()-1)
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}
