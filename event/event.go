package event

import (
	"context"
	"time"
)

// Priority orders event dispatch. Higher priorities always drain first;
// within one priority events drain in submission order. PriorityDefault
// resolves to the priority registered for the event type, falling back to
// PriorityNormal.
type Priority int

const (
	// PriorityDefault defers to the handler registration's priority.
	PriorityDefault Priority = iota
	PriorityCritical
	PriorityHigh
	PriorityNormal
	PriorityLow
)

// drainOrder lists queue priorities from most to least urgent.
var drainOrder = []Priority{PriorityCritical, PriorityHigh, PriorityNormal, PriorityLow}

// String returns the string representation of the priority.
func (p Priority) String() string {
	switch p {
	case PriorityDefault:
		return "default"
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	default:
		return "unknown"
	}
}

func (p Priority) valid() bool {
	return p >= PriorityCritical && p <= PriorityLow
}

// Envelope wraps a submitted event. It is created at submission and owned
// exclusively by the processor until the event is acked or dead-lettered.
type Envelope struct {
	// EventID is caller-supplied or generated at submission.
	EventID string `json:"event_id"`

	// Type routes the event to its registered handlers.
	Type string `json:"type"`

	// Payload is opaque structured data. It must be JSON-marshalable so it
	// can be hashed for deduplication and persisted on dead-letter.
	Payload any `json:"payload,omitempty"`

	// Priority is the queue tier assigned at submission.
	Priority Priority `json:"priority"`

	// SequenceNumber is assigned once at submission and increases
	// monotonically across all priorities.
	SequenceNumber uint64 `json:"sequence_number"`

	// SubmittedAt is when the processor accepted the event.
	SubmittedAt time.Time `json:"submitted_at"`
}

// Handler processes one event. Handlers classify their own failures:
// wrap terminal errors with resilience.NonRetryable, everything else is
// treated as transient and retried.
type Handler func(ctx context.Context, evt Envelope) error
