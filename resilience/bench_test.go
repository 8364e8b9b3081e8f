package resilience

import (
	"context"
	"testing"
	"time"
)

// BenchmarkCircuitBreaker_Execute_Closed measures happy path execution.
func BenchmarkCircuitBreaker_Execute_Closed(b *testing.B) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "bench",
		FailureThreshold: 100,
		Timeout:          time.Minute,
	})
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = cb.Execute(ctx, func(ctx context.Context) error {
			return nil
		})
	}
}

// BenchmarkRateLimiter_Allow measures token admission overhead.
func BenchmarkRateLimiter_Allow(b *testing.B) {
	rl := NewRateLimiter(RateLimiterConfig{
		Capacity:   1000000,
		RefillRate: 1000000,
	})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = rl.Allow()
	}
}

// BenchmarkErrorBudget_RecordRequest measures recording overhead.
func BenchmarkErrorBudget_RecordRequest(b *testing.B) {
	m := NewErrorBudgetMonitor(ErrorBudgetConfig{
		SLOTarget: 0.99,
		Window:    time.Hour,
	})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.RecordRequest(i%10 != 0)
	}
}

// BenchmarkIsRetryable measures error classification overhead.
func BenchmarkIsRetryable(b *testing.B) {
	err := NonRetryable(context.DeadlineExceeded)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = IsRetryable(err)
	}
}
