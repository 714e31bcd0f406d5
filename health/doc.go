// Package health provides health checking for dispatcher-protected
// processes.
//
// A Checker reports the status of one component as Healthy, Degraded
// or Unhealthy. DispatcherChecker derives status from a dispatcher's
// observability snapshot: an open circuit breaker is unhealthy, while
// a saturated queue or exhausted rate limit is degraded. Aggregator
// combines any number of checkers into a single composite status.
//
//	agg := health.NewAggregator()
//	agg.Register("orders", health.NewDispatcherChecker("orders", orders))
//	agg.Register("memory", health.NewMemoryChecker(health.MemoryCheckerConfig{}))
//
//	results := agg.CheckAll(ctx)
//	overall := agg.OverallStatus(results)
//
// The package is transport-neutral: callers decide how to surface the
// aggregate status, whether through a probe endpoint, a log line or a
// metrics gauge.
package health
