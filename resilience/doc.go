// Package resilience provides the failure-handling primitives for reliable
// event processing.
//
// This package implements the patterns that bound cascading failure when a
// handler or its downstream dependency misbehaves. The primitives carry no
// business logic and can be composed freely.
//
// # Patterns
//
//   - Circuit Breaker: stops calling a failing dependency after a threshold
//     of consecutive failures, re-admitting probe calls after a cooldown.
//
//   - Retry: retries transient failures with capped exponential backoff and
//     optional jitter, aborting immediately on non-retryable errors.
//
//   - Rate Limiter: token-bucket admission control with immediate rejection,
//     no queuing.
//
//   - Error Budget: rolling success-rate tracking against an SLO target,
//     producing a normalized daily burn rate for alerting.
//
// # Error classification
//
// Retry decisions are driven by explicit marks rather than error types:
//
//	return resilience.NonRetryable(fmt.Errorf("bad payload: %w", err))
//
// Unmarked errors default to retryable. Circuit-open and rate-limit
// rejections are always non-retryable.
//
// # Usage
//
//	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
//	    Name:             "billing-api",
//	    FailureThreshold: 5,
//	    SuccessThreshold: 2,
//	    Timeout:          time.Minute,
//	})
//
//	retry := resilience.NewRetry(resilience.RetryConfig{
//	    MaxAttempts:  3,
//	    InitialDelay: 100 * time.Millisecond,
//	    Jitter:       true,
//	})
//
//	err := retry.Execute(ctx, func(ctx context.Context) error {
//	    return cb.Execute(ctx, callBillingAPI)
//	})
package resilience
