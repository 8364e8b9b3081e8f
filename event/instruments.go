package event

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// instruments holds the OpenTelemetry counters for the dispatch path.
type instruments struct {
	processed    metric.Int64Counter
	failed       metric.Int64Counter
	retried      metric.Int64Counter
	dlqAdded     metric.Int64Counter
	dropped      metric.Int64Counter
	durationHist metric.Float64Histogram
}

// newInstruments creates the instrument set on the given meter. A nil meter
// falls back to noop instruments.
func newInstruments(meter metric.Meter) (*instruments, error) {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("noop")
	}

	processed, err := meter.Int64Counter(
		"event.dispatch.processed",
		metric.WithDescription("Events dispatched successfully"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}

	failed, err := meter.Int64Counter(
		"event.dispatch.failed",
		metric.WithDescription("Events that failed all dispatch attempts"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}

	retried, err := meter.Int64Counter(
		"event.dispatch.retried",
		metric.WithDescription("Retry attempts across all dispatches"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, err
	}

	dlqAdded, err := meter.Int64Counter(
		"event.dlq.added",
		metric.WithDescription("Events appended to the dead-letter queue"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}

	dropped, err := meter.Int64Counter(
		"event.queue.dropped",
		metric.WithDescription("Events discarded by bounded-queue overflow"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}

	durationHist, err := meter.Float64Histogram(
		"event.dispatch.duration_ms",
		metric.WithDescription("Handler dispatch duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &instruments{
		processed:    processed,
		failed:       failed,
		retried:      retried,
		dlqAdded:     dlqAdded,
		dropped:      dropped,
		durationHist: durationHist,
	}, nil
}

func (in *instruments) recordDispatch(ctx context.Context, eventType string, duration time.Duration, err error) {
	opt := metric.WithAttributes(attribute.String("event.type", eventType))

	if err != nil {
		in.failed.Add(ctx, 1, opt)
	} else {
		in.processed.Add(ctx, 1, opt)
	}
	in.durationHist.Record(ctx, float64(duration.Milliseconds()), opt)
}
