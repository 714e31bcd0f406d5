package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/jonwraymond/guardrail/clock"
)

// State represents the circuit breaker state.
type State int

const (
	// StateClosed means calls flow through normally.
	StateClosed State = iota
	// StateOpen means all calls are rejected without being attempted.
	StateOpen
	// StateHalfOpen means a limited number of probes test recovery.
	StateHalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig configures the circuit breaker.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens
	// the circuit. A consecutive counter rather than a sliding window
	// keeps the state machine O(1) and deterministic under test.
	// Default: 5
	FailureThreshold int

	// Cooldown is how long the circuit stays open before permitting a
	// recovery probe.
	// Default: 30 seconds
	Cooldown time.Duration

	// HalfOpenTrials is the number of successful probes required to
	// close the circuit again. Probes run one at a time; a single
	// failed probe reopens the circuit immediately.
	// Default: 1
	HalfOpenTrials int

	// OnStateChange is called after each state transition.
	OnStateChange func(from, to State)

	// IsFailure decides whether an error counts against the threshold.
	// Default: all non-nil errors are failures.
	IsFailure func(err error) bool

	// Clock supplies time. Defaults to the system clock.
	Clock clock.Clock
}

// Breaker is a failure-isolation state machine. It stops sending
// requests to a dependency once consecutive failures cross a threshold
// and probes for recovery after a cooldown.
//
// The breaker tracks health; it knows nothing about request rate. Pair
// it with a TokenBucket when the dependency also needs load smoothing.
type Breaker struct {
	config BreakerConfig
	clk    clock.Clock

	mu               sync.Mutex
	state            State
	failures         int
	halfOpenSuccess  int
	halfOpenInFlight int
	openedAt         time.Time
}

// NewBreaker creates a circuit breaker, applying defaults for zero
// config values.
func NewBreaker(config BreakerConfig) *Breaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.Cooldown <= 0 {
		config.Cooldown = 30 * time.Second
	}
	if config.HalfOpenTrials <= 0 {
		config.HalfOpenTrials = 1
	}
	if config.IsFailure == nil {
		config.IsFailure = func(err error) bool { return err != nil }
	}

	return &Breaker{
		config: config,
		clk:    clock.Or(config.Clock),
		state:  StateClosed,
	}
}

// Allow reports whether a call may be attempted now. In the half-open
// state it also reserves the single probe slot, so callers that get
// true must report the outcome via RecordSuccess or RecordFailure.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.currentStateLocked() {
	case StateClosed:
		return true
	case StateHalfOpen:
		if b.halfOpenInFlight > 0 {
			return false
		}
		b.halfOpenInFlight++
		return true
	default:
		return false
	}
}

// RecordSuccess reports a successful call. A no-op while the circuit is
// open: the call should not have been attempted.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.currentStateLocked() {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		b.halfOpenInFlight = 0
		b.halfOpenSuccess++
		if b.halfOpenSuccess >= b.config.HalfOpenTrials {
			b.transitionLocked(StateClosed)
		}
	}
}

// RecordFailure reports a failed call. A no-op while the circuit is
// open.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.currentStateLocked() {
	case StateClosed:
		b.failures++
		if b.failures >= b.config.FailureThreshold {
			b.openedAt = b.clk.Now()
			b.transitionLocked(StateOpen)
		}
	case StateHalfOpen:
		// One bad probe reopens the circuit; recovery is conservative.
		b.halfOpenInFlight = 0
		b.openedAt = b.clk.Now()
		b.transitionLocked(StateOpen)
	}
}

// Execute runs op through the breaker, reporting the outcome back to
// the state machine.
func (b *Breaker) Execute(ctx context.Context, op func(context.Context) error) error {
	if !b.Allow() {
		return ErrCircuitOpen
	}

	err := op(ctx)
	if b.config.IsFailure(err) {
		b.RecordFailure()
	} else {
		b.RecordSuccess()
	}
	return err
}

// State returns the current state, applying the cooldown transition if
// it is due.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentStateLocked()
}

// Failures returns the consecutive failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Reset forces the breaker back to the closed state.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	if b.state != StateClosed {
		b.transitionLocked(StateClosed)
	}
}

// currentStateLocked resolves the open -> half-open transition lazily
// on observation, the same way the bucket refills lazily on acquire.
func (b *Breaker) currentStateLocked() State {
	if b.state == StateOpen && b.clk.Now().Sub(b.openedAt) >= b.config.Cooldown {
		b.transitionLocked(StateHalfOpen)
	}
	return b.state
}

func (b *Breaker) transitionLocked(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to

	switch to {
	case StateClosed:
		b.failures = 0
		b.halfOpenSuccess = 0
		b.halfOpenInFlight = 0
	case StateHalfOpen:
		b.halfOpenSuccess = 0
		b.halfOpenInFlight = 0
	}

	if b.config.OnStateChange != nil {
		b.config.OnStateChange(from, to)
	}
}
