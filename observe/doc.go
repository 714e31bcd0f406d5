// Package observe provides observability primitives for dispatcher
// work execution: structured logging, OpenTelemetry metrics and
// tracing.
//
// It is a pure instrumentation library: no execution, no transport, no
// I/O beyond exporter setup. Consumers wire an Observer's logger,
// metrics and tracer into a dispatcher via dispatch.WithLogger,
// dispatch.WithMetrics and dispatch.WithTracer.
package observe
