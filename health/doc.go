// Package health provides health checks for event processing components.
//
// Checkers report the state of circuit breakers, error budgets, and the
// dead letter queue, and an Aggregator combines them into an overall
// status:
//
//	agg := health.NewAggregator()
//	agg.Register(health.NewBreakerChecker("payments", breaker))
//	agg.Register(health.NewDLQChecker("dlq", store, 100))
//
//	results := agg.CheckAll(ctx)
//	status := agg.OverallStatus(results)
package health
