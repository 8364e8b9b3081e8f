package resilience

import (
	"errors"
	"fmt"
)

// Sentinel errors for resilience operations.
var (
	// ErrCircuitOpen is returned when the circuit breaker is open.
	ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

	// ErrRateLimitExceeded is returned when the rate limit is exceeded.
	ErrRateLimitExceeded = errors.New("resilience: rate limit exceeded")
)

// ErrorKind classifies a failure for retry decisions.
type ErrorKind int

const (
	// KindRetryable marks a transient failure that is safe to retry.
	KindRetryable ErrorKind = iota
	// KindNonRetryable marks a failure that must not be retried, such as
	// a circuit-open or rate-limit rejection.
	KindNonRetryable
)

// String returns the string representation of the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindRetryable:
		return "retryable"
	case KindNonRetryable:
		return "non-retryable"
	default:
		return "unknown"
	}
}

// classifiedError wraps an error with an explicit retry classification.
type classifiedError struct {
	kind ErrorKind
	err  error
}

func (e *classifiedError) Error() string {
	return fmt.Sprintf("%s: %s", e.kind, e.err)
}

func (e *classifiedError) Unwrap() error {
	return e.err
}

// Retryable marks err as safe to retry. A nil err returns nil.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &classifiedError{kind: KindRetryable, err: err}
}

// NonRetryable marks err as terminal. A nil err returns nil.
func NonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &classifiedError{kind: KindNonRetryable, err: err}
}

// IsRetryable reports whether err should be retried.
//
// Errors explicitly marked via Retryable/NonRetryable follow their mark.
// The sentinel rejections ErrCircuitOpen and ErrRateLimitExceeded are never
// retryable. Everything else defaults to retryable: unclassified handler
// failures are treated as transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var ce *classifiedError
	if errors.As(err, &ce) {
		return ce.kind == KindRetryable
	}

	if errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrRateLimitExceeded) {
		return false
	}

	return true
}
