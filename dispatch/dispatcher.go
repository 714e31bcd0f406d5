package dispatch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/jonwraymond/guardrail/clock"
	"github.com/jonwraymond/guardrail/observe"
	"github.com/jonwraymond/guardrail/resilience"
)

// Config configures a dispatcher. All components are validated up
// front; a dispatcher never fails at call time for configuration
// reasons.
type Config struct {
	// Name identifies this dispatcher in logs, metrics and spans.
	// Default: "default". One dispatcher protects one downstream
	// dependency; processes typically run several, independently
	// configured.
	Name string

	// Limiter configures the token bucket admission gate.
	Limiter resilience.TokenBucketConfig

	// Queue configures the bounded backlog between producers and
	// workers.
	Queue QueueConfig

	// Breaker configures the circuit breaker guarding execution. Zero
	// values take the resilience defaults.
	Breaker resilience.BreakerConfig

	// Retry configures attempt orchestration. MaxAttempts must be set
	// explicitly (>= 1).
	Retry resilience.Policy

	// Workers is the fixed size of the worker pool. Must be >= 1.
	Workers int

	// Clock supplies time to every component that does not set its
	// own. Defaults to the system clock.
	Clock clock.Clock
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Name == "" {
		c.Name = "default"
	}
	if err := c.Limiter.Validate(); err != nil {
		return err
	}
	if err := c.Queue.Validate(); err != nil {
		return err
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("dispatch: retry max attempts must be >= 1, got %d", c.Retry.MaxAttempts)
	}
	if c.Workers < 1 {
		return fmt.Errorf("dispatch: worker count must be >= 1, got %d", c.Workers)
	}
	return nil
}

// Option configures optional dispatcher behavior.
type Option func(*Dispatcher)

// WithLogger attaches a structured logger for lifecycle and worker
// events. The data plane itself never logs outcomes; those are
// delivered through futures.
func WithLogger(l observe.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l.WithComponent("dispatch." + d.name)
		}
	}
}

// WithMetrics attaches telemetry for admissions, executions, retries
// and breaker transitions.
func WithMetrics(m observe.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithTracer attaches span creation around work execution.
func WithTracer(t observe.Tracer) Option {
	return func(d *Dispatcher) { d.tracer = t }
}

// Snapshot is a read-only view of dispatcher state for monitoring.
type Snapshot struct {
	QueueDepth   int
	BreakerState resilience.State
	Tokens       float64
	Rejected     uint64
	Retried      uint64
}

// Dispatcher is the admission-and-resilience control plane in front of
// a downstream dependency. Producers submit opaque units of work; two
// independent gates decide admission (the token bucket smooths rate,
// the bounded queue bounds backlog), and a fixed worker pool drives
// execution through retry and the circuit breaker.
//
// Each dispatcher is fully self-contained: no global state is shared,
// so one dispatcher per dependency coexists without interference.
type Dispatcher struct {
	name    string
	limiter *resilience.TokenBucket
	queue   *Queue[*item]
	breaker *resilience.Breaker
	exec    *resilience.Executor
	clk     clock.Clock

	logger  observe.Logger
	metrics observe.Metrics
	tracer  observe.Tracer

	group         *errgroup.Group
	cancelWorkers context.CancelFunc

	mu       sync.Mutex
	stopped  bool
	rejected atomic.Uint64
	retried  atomic.Uint64
}

// New creates a dispatcher and starts its worker pool. Construction
// fails fast on any invalid configuration value.
func New(cfg Config, opts ...Option) (*Dispatcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	clk := clock.Or(cfg.Clock)
	if cfg.Limiter.Clock == nil {
		cfg.Limiter.Clock = clk
	}
	if cfg.Breaker.Clock == nil {
		cfg.Breaker.Clock = clk
	}

	limiter, err := resilience.NewTokenBucket(cfg.Limiter)
	if err != nil {
		return nil, err
	}
	queue, err := NewQueue[*item](cfg.Queue)
	if err != nil {
		return nil, err
	}

	d := &Dispatcher{
		name:    cfg.Name,
		limiter: limiter,
		queue:   queue,
		clk:     clk,
		logger:  observe.NopLogger(),
	}
	for _, opt := range opts {
		opt(d)
	}

	// Chain telemetry into the breaker and retry callbacks without
	// displacing any caller-supplied hooks.
	userTransition := cfg.Breaker.OnStateChange
	cfg.Breaker.OnStateChange = func(from, to resilience.State) {
		d.onBreakerTransition(from, to)
		if userTransition != nil {
			userTransition(from, to)
		}
	}
	userRetry := cfg.Retry.OnRetry
	cfg.Retry.OnRetry = func(attempt int, err error, delay time.Duration) {
		d.onRetry(attempt, err, delay)
		if userRetry != nil {
			userRetry(attempt, err, delay)
		}
	}

	d.breaker = resilience.NewBreaker(cfg.Breaker)
	d.exec = resilience.NewExecutor(d.breaker, cfg.Retry, clk)

	ctx, cancel := context.WithCancel(context.Background())
	d.cancelWorkers = cancel
	d.group, ctx = errgroup.WithContext(ctx)
	for i := 0; i < cfg.Workers; i++ {
		d.group.Go(func() error {
			d.worker(ctx)
			return nil
		})
	}

	d.logger.Info(context.Background(), "dispatcher started",
		observe.Field{Key: "workers", Value: cfg.Workers},
		observe.Field{Key: "queue_capacity", Value: cfg.Queue.Capacity},
	)
	return d, nil
}

// Submit offers a unit of work to the control plane. The returned
// future resolves with the terminal outcome; rejections resolve it
// immediately. A timeout of zero means no caller deadline.
//
// The limiter and the queue are independent gates: the limiter smooths
// arrival rate, the queue bounds backlog, and either can reject on its
// own. Submission order is preserved through to dequeue, not through
// to completion.
func (d *Dispatcher) Submit(work Work, timeout time.Duration) *Future {
	id := uuid.New()
	ctx := context.Background()

	if d.isStopped() {
		d.recordAdmission(ctx, observe.OutcomeShutdown)
		return failedFuture(id, ErrShutdown)
	}

	if !d.limiter.Allow() {
		d.rejected.Add(1)
		d.recordAdmission(ctx, observe.OutcomeThrottled)
		return failedFuture(id, resilience.ErrThrottled)
	}

	now := d.clk.Now()
	it := &item{
		id:          id,
		work:        work,
		future:      newFuture(),
		submittedAt: now,
	}
	if timeout > 0 {
		it.deadline = now.Add(timeout)
	}

	if !d.queue.TryEnqueue(it) {
		d.rejected.Add(1)
		if d.isStopped() {
			d.recordAdmission(ctx, observe.OutcomeShutdown)
			return failedFuture(id, ErrShutdown)
		}
		d.recordAdmission(ctx, observe.OutcomeQueueFull)
		return failedFuture(id, ErrQueueFull)
	}

	d.recordAdmission(ctx, observe.OutcomeAdmitted)
	return it.future
}

// NearCapacity reports whether the queue has reached its high-water
// mark, so producers can slow down before hitting hard rejection.
func (d *Dispatcher) NearCapacity() bool {
	return d.queue.NearCapacity()
}

// Metrics returns a point-in-time observability snapshot.
func (d *Dispatcher) Metrics() Snapshot {
	return Snapshot{
		QueueDepth:   d.queue.Depth(),
		BreakerState: d.breaker.State(),
		Tokens:       d.limiter.Tokens(),
		Rejected:     d.rejected.Load(),
		Retried:      d.retried.Load(),
	}
}

// Shutdown stops the dispatcher. With drain, intake stops and workers
// finish the backlog before returning. Without drain, workers are
// cancelled at their next checkpoint and every still-queued item fails
// with ErrShutdown; in-flight work observes context cancellation.
// Idempotent: repeated calls return nil without effect.
func (d *Dispatcher) Shutdown(drain bool) error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil
	}
	d.stopped = true
	d.mu.Unlock()

	ctx := context.Background()
	d.logger.Info(ctx, "dispatcher shutting down", observe.Field{Key: "drain", Value: drain})

	if drain {
		d.queue.Close()
		_ = d.group.Wait()
		d.cancelWorkers()
	} else {
		d.cancelWorkers()
		d.queue.Close()
		_ = d.group.Wait()
		for {
			it, ok := d.queue.TryDequeue()
			if !ok {
				break
			}
			it.future.resolve(Result{
				ID:      it.id,
				Err:     ErrShutdown,
				Elapsed: d.clk.Now().Sub(it.submittedAt),
			})
		}
	}

	d.logger.Info(ctx, "dispatcher stopped")
	return nil
}

func (d *Dispatcher) isStopped() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stopped
}

// worker loops dequeue-execute-deliver until the queue drains or the
// pool is cancelled.
func (d *Dispatcher) worker(ctx context.Context) {
	for {
		it, ok := d.queue.Dequeue(ctx)
		if !ok {
			return
		}
		d.run(ctx, it)
	}
}

func (d *Dispatcher) run(ctx context.Context, it *item) {
	// A dequeued item whose deadline already passed is not worth
	// executing; the producer stopped listening for a useful answer.
	if !it.deadline.IsZero() && !d.clk.Now().Before(it.deadline) {
		it.future.resolve(Result{
			ID:      it.id,
			Err:     resilience.ErrTimeout,
			Elapsed: d.clk.Now().Sub(it.submittedAt),
		})
		return
	}

	wctx := ctx
	if !it.deadline.IsZero() {
		var cancel context.CancelFunc
		wctx, cancel = context.WithDeadline(ctx, it.deadline)
		defer cancel()
	}

	meta := observe.TaskMeta{ID: it.id.String(), Dispatcher: d.name}
	var span trace.Span
	if d.tracer != nil {
		wctx, span = d.tracer.StartSpan(wctx, meta)
	}

	start := d.clk.Now()
	err := d.exec.Execute(wctx, func(ctx context.Context) error {
		it.attempts++
		return it.work(ctx)
	})
	elapsed := d.clk.Now().Sub(it.submittedAt)

	if d.tracer != nil {
		d.tracer.EndSpan(span, err)
	}

	if d.metrics != nil {
		d.metrics.RecordExecution(wctx, meta, d.clk.Now().Sub(start), it.attempts, err)
	}
	if err != nil {
		d.logger.Debug(wctx, "work failed",
			observe.Field{Key: "task_id", Value: it.id.String()},
			observe.Field{Key: "attempts", Value: it.attempts},
			observe.Field{Key: "error", Value: err.Error()},
		)
	}

	it.future.resolve(Result{
		ID:       it.id,
		Err:      err,
		Attempts: it.attempts,
		Elapsed:  elapsed,
	})
}

func (d *Dispatcher) recordAdmission(ctx context.Context, outcome string) {
	if d.metrics != nil {
		d.metrics.RecordAdmission(ctx, d.name, outcome)
	}
}

func (d *Dispatcher) onRetry(attempt int, err error, delay time.Duration) {
	d.retried.Add(1)
	if d.metrics != nil {
		d.metrics.RecordRetry(context.Background(), d.name, attempt)
	}
	d.logger.Debug(context.Background(), "retrying work",
		observe.Field{Key: "attempt", Value: attempt},
		observe.Field{Key: "delay_ms", Value: float64(delay.Milliseconds())},
		observe.Field{Key: "error", Value: err.Error()},
	)
}

func (d *Dispatcher) onBreakerTransition(from, to resilience.State) {
	ctx := context.Background()
	if d.metrics != nil {
		d.metrics.RecordBreakerTransition(ctx, d.name, from.String(), to.String())
	}
	d.logger.Warn(ctx, "circuit breaker state changed",
		observe.Field{Key: "from", Value: from.String()},
		observe.Field{Key: "to", Value: to.String()},
	)
}
