package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Admission outcomes recorded by RecordAdmission.
const (
	OutcomeAdmitted  = "admitted"
	OutcomeThrottled = "throttled"
	OutcomeQueueFull = "queue_full"
	OutcomeShutdown  = "shutdown"
)

// Metrics records dispatcher telemetry.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: must honor cancellation/deadlines and return quickly.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordAdmission records the outcome of one Submit admission check.
	RecordAdmission(ctx context.Context, dispatcher, outcome string)

	// RecordExecution records one completed work execution with its
	// total duration, attempt count and error status.
	RecordExecution(ctx context.Context, meta TaskMeta, duration time.Duration, attempts int, err error)

	// RecordRetry records one backoff-and-retry of a work attempt.
	RecordRetry(ctx context.Context, dispatcher string, attempt int)

	// RecordBreakerTransition records a circuit breaker state change.
	RecordBreakerTransition(ctx context.Context, dispatcher, from, to string)
}

// metricsImpl is the concrete implementation of Metrics.
type metricsImpl struct {
	meter          metric.Meter
	admissionCount metric.Int64Counter
	execCount      metric.Int64Counter
	errorCount     metric.Int64Counter
	retryCount     metric.Int64Counter
	breakerCount   metric.Int64Counter
	durationHist   metric.Float64Histogram
	attemptsHist   metric.Int64Histogram
}

// NewMetrics creates a Metrics instance recording to the given meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	admissionCount, err := meter.Int64Counter(
		"dispatch.submit.total",
		metric.WithDescription("Total number of Submit calls by admission outcome"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	execCount, err := meter.Int64Counter(
		"dispatch.exec.total",
		metric.WithDescription("Total number of completed work executions"),
		metric.WithUnit("{execution}"),
	)
	if err != nil {
		return nil, err
	}

	errorCount, err := meter.Int64Counter(
		"dispatch.exec.errors",
		metric.WithDescription("Total number of work executions with a terminal error"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	retryCount, err := meter.Int64Counter(
		"dispatch.retry.total",
		metric.WithDescription("Total number of work attempt retries"),
		metric.WithUnit("{retry}"),
	)
	if err != nil {
		return nil, err
	}

	breakerCount, err := meter.Int64Counter(
		"dispatch.breaker.transitions",
		metric.WithDescription("Total number of circuit breaker state transitions"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return nil, err
	}

	durationHist, err := meter.Float64Histogram(
		"dispatch.exec.duration_ms",
		metric.WithDescription("Work execution duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	attemptsHist, err := meter.Int64Histogram(
		"dispatch.exec.attempts",
		metric.WithDescription("Attempts made per work execution"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, err
	}

	return &metricsImpl{
		meter:          meter,
		admissionCount: admissionCount,
		execCount:      execCount,
		errorCount:     errorCount,
		retryCount:     retryCount,
		breakerCount:   breakerCount,
		durationHist:   durationHist,
		attemptsHist:   attemptsHist,
	}, nil
}

func (m *metricsImpl) RecordAdmission(ctx context.Context, dispatcher, outcome string) {
	m.admissionCount.Add(ctx, 1, metric.WithAttributes(
		attribute.String("dispatcher", dispatcher),
		attribute.String("outcome", outcome),
	))
}

func (m *metricsImpl) RecordExecution(ctx context.Context, meta TaskMeta, duration time.Duration, attempts int, err error) {
	opt := metric.WithAttributes(
		attribute.String("dispatcher", meta.Dispatcher),
		attribute.Bool("error", err != nil),
	)

	m.execCount.Add(ctx, 1, opt)
	if err != nil {
		m.errorCount.Add(ctx, 1, metric.WithAttributes(
			attribute.String("dispatcher", meta.Dispatcher),
		))
	}
	m.durationHist.Record(ctx, float64(duration.Milliseconds()), opt)
	m.attemptsHist.Record(ctx, int64(attempts), opt)
}

func (m *metricsImpl) RecordRetry(ctx context.Context, dispatcher string, attempt int) {
	m.retryCount.Add(ctx, 1, metric.WithAttributes(
		attribute.String("dispatcher", dispatcher),
		attribute.Int("attempt", attempt),
	))
}

func (m *metricsImpl) RecordBreakerTransition(ctx context.Context, dispatcher, from, to string) {
	m.breakerCount.Add(ctx, 1, metric.WithAttributes(
		attribute.String("dispatcher", dispatcher),
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

// NopMetrics returns a Metrics implementation that records nothing.
func NopMetrics() Metrics {
	return &nopMetrics{}
}

// nopMetrics is a metrics implementation that does nothing.
type nopMetrics struct{}

func (m *nopMetrics) RecordAdmission(ctx context.Context, dispatcher, outcome string) {}
func (m *nopMetrics) RecordExecution(ctx context.Context, meta TaskMeta, duration time.Duration, attempts int, err error) {
}
func (m *nopMetrics) RecordRetry(ctx context.Context, dispatcher string, attempt int)       {}
func (m *nopMetrics) RecordBreakerTransition(ctx context.Context, dispatcher, from, to string) {}
