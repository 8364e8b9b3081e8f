package event

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonwraymond/eventops/dlq"
	"github.com/jonwraymond/eventops/resilience"
)

func benchDispatcher(b *testing.B) *Dispatcher {
	b.Helper()
	store, err := dlq.Open(filepath.Join(b.TempDir(), "dead_letter.json"))
	if err != nil {
		b.Fatalf("dlq.Open() error = %v", err)
	}
	d, err := NewDispatcher(DispatcherConfig{
		DLQ:   store,
		Retry: resilience.RetryConfig{MaxAttempts: 1, InitialDelay: time.Millisecond},
	})
	if err != nil {
		b.Fatalf("NewDispatcher() error = %v", err)
	}
	return d
}

// BenchmarkDispatcher_Dispatch measures the happy-path resilience chain.
func BenchmarkDispatcher_Dispatch(b *testing.B) {
	d := benchDispatcher(b)
	evt := testEnvelope("evt-1", "task.created")
	h := func(ctx context.Context, evt Envelope) error { return nil }
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = d.Dispatch(ctx, "task-store", evt, h)
	}
}

// BenchmarkProcessor_Submit measures dedup hashing plus enqueue.
func BenchmarkProcessor_Submit(b *testing.B) {
	p, err := NewProcessor(ProcessorConfig{
		Dispatcher:   benchDispatcher(b),
		MaxQueueSize: 1 << 20,
	})
	if err != nil {
		b.Fatalf("NewProcessor() error = %v", err)
	}
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = p.Submit(ctx, Submission{
			Type:    "task.created",
			Payload: map[string]any{"i": i},
		})
	}
}

// BenchmarkIdempotencyStore_IsDuplicate measures key hashing and lookup.
func BenchmarkIdempotencyStore_IsDuplicate(b *testing.B) {
	s := NewIdempotencyStore(IdempotencyConfig{MaxEntries: 1 << 20})
	payload := map[string]any{"order_id": 42, "zone": "west"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = s.IsDuplicate("order.created", payload)
	}
}
