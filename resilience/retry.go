package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// RetryConfig configures the retry behavior. The zero value gets sensible
// defaults applied by NewRetry; a constructed config is never mutated after.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including initial).
	// Default: 3
	MaxAttempts int

	// InitialDelay is the delay before the first retry.
	// Default: 100ms
	InitialDelay time.Duration

	// MaxDelay caps the delay between retries.
	// Default: 30s
	MaxDelay time.Duration

	// ExponentialBase is the backoff multiplier applied per attempt.
	// Default: 2.0
	ExponentialBase float64

	// Jitter randomizes each delay to delay * uniform(0.5, 1.0) to avoid
	// synchronized retry storms.
	// Default: false
	Jitter bool

	// RetryIf determines if an error should trigger a retry.
	// Default: IsRetryable.
	RetryIf func(err error) bool

	// OnRetry is called before each backoff sleep.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// Retry executes operations with bounded exponential backoff.
type Retry struct {
	config RetryConfig
}

// NewRetry creates a new retry executor.
func NewRetry(config RetryConfig) *Retry {
	// Apply defaults
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = 100 * time.Millisecond
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 30 * time.Second
	}
	if config.ExponentialBase <= 1 {
		config.ExponentialBase = 2.0
	}
	if config.RetryIf == nil {
		config.RetryIf = IsRetryable
	}

	return &Retry{config: config}
}

// Execute runs the operation with retry logic. A non-retryable error aborts
// immediately; on exhaustion the last error is returned. The backoff sleep
// is cut short by context cancellation.
func (r *Retry) Execute(ctx context.Context, op func(context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}

		lastErr = err

		if !r.config.RetryIf(err) {
			return err
		}

		if attempt >= r.config.MaxAttempts {
			break
		}

		delay := r.delay(attempt)

		if r.config.OnRetry != nil {
			r.config.OnRetry(attempt, err, delay)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return lastErr
}

// delay computes the backoff before the retry following the given attempt.
func (r *Retry) delay(attempt int) time.Duration {
	backoff := float64(r.config.InitialDelay) * math.Pow(r.config.ExponentialBase, float64(attempt-1))

	delay := time.Duration(backoff)
	if delay > r.config.MaxDelay || delay <= 0 {
		delay = r.config.MaxDelay
	}

	if r.config.Jitter && delay > 0 {
		// Scale into [0.5, 1.0) of the computed delay.
		// #nosec G404 -- jitter is non-cryptographic timing variance.
		delay = time.Duration(float64(delay) * (0.5 + rand.Float64()/2))
	}

	return delay
}

// Config returns the retry configuration.
func (r *Retry) Config() RetryConfig {
	return r.config
}
