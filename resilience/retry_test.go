package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNewRetry_Defaults(t *testing.T) {
	r := NewRetry(RetryConfig{})

	if r.config.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", r.config.MaxAttempts)
	}
	if r.config.InitialDelay != 100*time.Millisecond {
		t.Errorf("InitialDelay = %v, want 100ms", r.config.InitialDelay)
	}
	if r.config.MaxDelay != 30*time.Second {
		t.Errorf("MaxDelay = %v, want 30s", r.config.MaxDelay)
	}
	if r.config.ExponentialBase != 2.0 {
		t.Errorf("ExponentialBase = %f, want 2.0", r.config.ExponentialBase)
	}
}

func TestRetry_SuccessOnFirstAttempt(t *testing.T) {
	r := NewRetry(RetryConfig{MaxAttempts: 3})

	attempts := 0
	err := r.Execute(context.Background(), func(ctx context.Context) error {
		attempts++
		return nil
	})

	if err != nil {
		t.Errorf("Execute() error = %v", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestRetry_SuccessAfterTwoFailures(t *testing.T) {
	r := NewRetry(RetryConfig{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
	})

	attempts := 0
	err := r.Execute(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})

	if err != nil {
		t.Errorf("Execute() error = %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestRetry_ExhaustionReturnsLastError(t *testing.T) {
	r := NewRetry(RetryConfig{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
	})

	attempts := 0
	lastErr := errors.New("attempt 3")
	err := r.Execute(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts == 3 {
			return lastErr
		}
		return errors.New("earlier failure")
	})

	if err != lastErr {
		t.Errorf("Execute() error = %v, want %v", err, lastErr)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestRetry_NonRetryableShortCircuits(t *testing.T) {
	r := NewRetry(RetryConfig{
		MaxAttempts:  5,
		InitialDelay: time.Millisecond,
	})

	attempts := 0
	err := r.Execute(context.Background(), func(ctx context.Context) error {
		attempts++
		return NonRetryable(errors.New("bad payload"))
	})

	if err == nil {
		t.Fatal("Execute() error = nil, want non-retryable error")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestRetry_CircuitOpenNotRetried(t *testing.T) {
	r := NewRetry(RetryConfig{
		MaxAttempts:  5,
		InitialDelay: time.Millisecond,
	})

	attempts := 0
	err := r.Execute(context.Background(), func(ctx context.Context) error {
		attempts++
		return ErrCircuitOpen
	})

	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Execute() error = %v, want ErrCircuitOpen", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestRetry_OnRetryCallback(t *testing.T) {
	type call struct {
		attempt int
		delay   time.Duration
	}
	var calls []call

	r := NewRetry(RetryConfig{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			calls = append(calls, call{attempt, delay})
		},
	})

	_ = r.Execute(context.Background(), func(ctx context.Context) error {
		return errors.New("always fails")
	})

	// 3 attempts means 2 sleeps, so 2 callbacks.
	if len(calls) != 2 {
		t.Fatalf("OnRetry calls = %d, want 2", len(calls))
	}
	if calls[0].attempt != 1 || calls[1].attempt != 2 {
		t.Errorf("attempts = %d, %d, want 1, 2", calls[0].attempt, calls[1].attempt)
	}
}

func TestRetry_DelayGrowsExponentiallyAndCaps(t *testing.T) {
	r := NewRetry(RetryConfig{
		MaxAttempts:     10,
		InitialDelay:    10 * time.Millisecond,
		MaxDelay:        50 * time.Millisecond,
		ExponentialBase: 2.0,
	})

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 10 * time.Millisecond},
		{2, 20 * time.Millisecond},
		{3, 40 * time.Millisecond},
		{4, 50 * time.Millisecond}, // capped
		{9, 50 * time.Millisecond},
	}

	for _, tt := range tests {
		if got := r.delay(tt.attempt); got != tt.want {
			t.Errorf("delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestRetry_JitterStaysInRange(t *testing.T) {
	r := NewRetry(RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		Jitter:       true,
	})

	for i := 0; i < 100; i++ {
		d := r.delay(1)
		if d < 50*time.Millisecond || d >= 100*time.Millisecond {
			t.Fatalf("delay(1) = %v, want in [50ms, 100ms)", d)
		}
	}
}

func TestRetry_ContextCancelDuringBackoff(t *testing.T) {
	r := NewRetry(RetryConfig{
		MaxAttempts:  3,
		InitialDelay: time.Second,
	})

	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	done := make(chan error, 1)
	go func() {
		done <- r.Execute(ctx, func(ctx context.Context) error {
			attempts++
			return errors.New("transient")
		})
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Execute() error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Execute() did not return after cancel")
	}

	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}
