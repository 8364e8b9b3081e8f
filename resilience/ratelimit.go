package resilience

import (
	"context"
	"sync"
	"time"
)

// RateLimiterConfig configures the token bucket.
type RateLimiterConfig struct {
	// Capacity is the maximum number of tokens the bucket holds.
	// Default: 10
	Capacity int

	// RefillRate is the number of tokens added per second.
	// Default: 100
	RefillRate float64
}

// RateLimiter is a token bucket admission gate. There is no blocking or
// queuing variant: a call arriving at an empty bucket is rejected
// immediately with ErrRateLimitExceeded, which is non-retryable.
type RateLimiter struct {
	config RateLimiterConfig

	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
}

// NewRateLimiter creates a rate limiter with a full bucket.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	// Apply defaults
	if config.Capacity <= 0 {
		config.Capacity = 10
	}
	if config.RefillRate <= 0 {
		config.RefillRate = 100
	}

	return &RateLimiter{
		config:     config,
		tokens:     float64(config.Capacity),
		lastRefill: time.Now(),
	}
}

// Allow reports whether one request is admitted, consuming a token if so.
// Refill and decrement happen atomically under the limiter lock.
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refillLocked()

	if rl.tokens >= 1 {
		rl.tokens--
		return true
	}
	return false
}

// Execute runs the operation if admitted, otherwise returns
// ErrRateLimitExceeded without invoking it.
func (rl *RateLimiter) Execute(ctx context.Context, op func(context.Context) error) error {
	if !rl.Allow() {
		return ErrRateLimitExceeded
	}
	return op(ctx)
}

func (rl *RateLimiter) refillLocked() {
	now := time.Now()
	elapsed := now.Sub(rl.lastRefill)
	rl.lastRefill = now

	rl.tokens += elapsed.Seconds() * rl.config.RefillRate

	if rl.tokens > float64(rl.config.Capacity) {
		rl.tokens = float64(rl.config.Capacity)
	}
}

// Tokens returns the current number of available tokens after refill.
func (rl *RateLimiter) Tokens() float64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.refillLocked()
	return rl.tokens
}

// Capacity returns the configured bucket capacity.
func (rl *RateLimiter) Capacity() int {
	return rl.config.Capacity
}

// Reset refills the bucket to capacity.
func (rl *RateLimiter) Reset() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.tokens = float64(rl.config.Capacity)
	rl.lastRefill = time.Now()
}
