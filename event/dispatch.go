package event

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/jonwraymond/eventops/dlq"
	"github.com/jonwraymond/eventops/resilience"
	"github.com/jonwraymond/eventops/telemetry"
)

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	// Retry is the retry policy applied around every handler call. OnRetry
	// is chained: the dispatcher's own accounting runs first, then any
	// callback configured here.
	Retry resilience.RetryConfig

	// Breaker is the template for per-dependency circuit breakers; Name is
	// filled in per dependency.
	Breaker resilience.CircuitBreakerConfig

	// RateLimiter optionally gates dispatches before any attempt is made.
	// A rejection is non-retryable and dead-letters the event.
	RateLimiter *resilience.RateLimiter

	// Budget optionally records every dispatch outcome for SLO tracking.
	Budget *resilience.ErrorBudgetMonitor

	// AttemptTimeout optionally bounds a single handler attempt.
	// Default: 0 (no per-attempt bound)
	AttemptTimeout time.Duration

	// DLQ receives events whose dispatch failed terminally. Required.
	DLQ *dlq.Store

	// Logger defaults to a noop logger.
	Logger telemetry.Logger

	// Telemetry hooks; both default to noop.
	Meter  metric.Meter
	Tracer trace.Tracer
}

// Dispatcher wraps handler calls with retry, per-dependency circuit
// breaking, optional rate limiting, and dead-letter recording. It is the
// single path every handler invocation takes.
type Dispatcher struct {
	config DispatcherConfig
	retry  *resilience.Retry
	inst   *instruments
	logger telemetry.Logger
	tracer trace.Tracer

	mu       sync.Mutex
	breakers map[string]*resilience.CircuitBreaker

	processed atomic.Int64
	failed    atomic.Int64
	retried   atomic.Int64
	dlqAdded  atomic.Int64
}

// NewDispatcher creates a dispatcher. The DLQ store is required.
func NewDispatcher(config DispatcherConfig) (*Dispatcher, error) {
	if config.DLQ == nil {
		return nil, fmt.Errorf("event: dispatcher requires a DLQ store")
	}
	if config.Logger == nil {
		config.Logger = telemetry.NopLogger()
	}
	if config.Tracer == nil {
		config.Tracer = tracenoop.NewTracerProvider().Tracer("noop")
	}

	d := &Dispatcher{
		config:   config,
		logger:   config.Logger.WithComponent("dispatcher"),
		tracer:   config.Tracer,
		breakers: make(map[string]*resilience.CircuitBreaker),
	}

	inst, err := newInstruments(config.Meter)
	if err != nil {
		return nil, fmt.Errorf("event: create instruments: %w", err)
	}
	d.inst = inst

	retryCfg := config.Retry
	userOnRetry := retryCfg.OnRetry
	retryCfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		d.retried.Add(1)
		d.inst.retried.Add(context.Background(), 1)
		d.logger.Debug(context.Background(), "retrying handler",
			telemetry.Field{Key: "attempt", Value: attempt},
			telemetry.Field{Key: "delay_ms", Value: delay.Milliseconds()},
			telemetry.Field{Key: "error", Value: err.Error()},
		)
		if userOnRetry != nil {
			userOnRetry(attempt, err, delay)
		}
	}
	d.retry = resilience.NewRetry(retryCfg)

	return d, nil
}

// breaker returns the circuit breaker for a dependency, creating it on
// first use from the configured template.
func (d *Dispatcher) breaker(dependency string) *resilience.CircuitBreaker {
	d.mu.Lock()
	defer d.mu.Unlock()

	if cb, ok := d.breakers[dependency]; ok {
		return cb
	}

	cfg := d.config.Breaker
	cfg.Name = dependency
	cb := resilience.NewCircuitBreaker(cfg)
	d.breakers[dependency] = cb
	return cb
}

// Dispatch delivers one event to one handler through the full resilience
// chain. Terminal failure appends the event to the DLQ and returns the
// error; the processing loop never crashes on a failed handler.
func (d *Dispatcher) Dispatch(ctx context.Context, dependency string, evt Envelope, h Handler) error {
	return d.dispatch(ctx, dependency, evt, h, "")
}

// dispatch runs the resilience chain and dead-letters terminal failures.
// A non-empty dlqKey pins the DLQ document key, so a replayed entry that
// fails again updates in place instead of creating a sibling under a
// freshly computed content key.
func (d *Dispatcher) dispatch(ctx context.Context, dependency string, evt Envelope, h Handler, dlqKey string) error {
	ctx, span := d.tracer.Start(ctx, "event.dispatch",
		trace.WithAttributes(
			attribute.String("event.id", evt.EventID),
			attribute.String("event.type", evt.Type),
			attribute.String("event.dependency", dependency),
		),
	)
	defer span.End()

	start := time.Now()
	err := d.attempt(ctx, dependency, evt, h)
	d.inst.recordDispatch(ctx, evt.Type, time.Since(start), err)

	if d.config.Budget != nil {
		d.config.Budget.RecordRequest(err == nil)
	}

	if err == nil {
		d.processed.Add(1)
		return nil
	}

	span.RecordError(err)
	d.failed.Add(1)

	var key string
	var dlqErr error
	if dlqKey != "" {
		key, dlqErr = d.config.DLQ.AddKeyed(dlqKey, evt.EventID, evt.Type, evt.Payload, err)
	} else {
		key, dlqErr = d.config.DLQ.Add(evt.EventID, evt.Type, evt.Payload, err)
	}
	if dlqErr != nil {
		d.logger.Error(ctx, "failed to dead-letter event",
			telemetry.Field{Key: "event_id", Value: evt.EventID},
			telemetry.Field{Key: "error", Value: dlqErr.Error()},
		)
	} else {
		d.dlqAdded.Add(1)
		d.inst.dlqAdded.Add(ctx, 1)
		d.logger.Warn(ctx, "event dead-lettered",
			telemetry.Field{Key: "event_id", Value: evt.EventID},
			telemetry.Field{Key: "event_type", Value: evt.Type},
			telemetry.Field{Key: "dlq_key", Value: key},
			telemetry.Field{Key: "error", Value: err.Error()},
		)
	}

	return err
}

// attempt runs the resilience chain: rate limit gate, then retry around a
// breaker-gated, optionally time-bounded handler call.
func (d *Dispatcher) attempt(ctx context.Context, dependency string, evt Envelope, h Handler) error {
	if d.config.RateLimiter != nil && !d.config.RateLimiter.Allow() {
		return resilience.ErrRateLimitExceeded
	}

	cb := d.breaker(dependency)

	return d.retry.Execute(ctx, func(ctx context.Context) error {
		return cb.Execute(ctx, func(ctx context.Context) error {
			if d.config.AttemptTimeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, d.config.AttemptTimeout)
				defer cancel()
			}
			return h(ctx, evt)
		})
	})
}

// ReprocessDLQ replays up to maxEvents dead-lettered entries through the
// handler, oldest failures first. Entries that now succeed are removed;
// entries that fail again stay with an incremented attempt count. Returns
// the number of entries recovered.
func (d *Dispatcher) ReprocessDLQ(ctx context.Context, h Handler, maxEvents int) (int, error) {
	entries := d.config.DLQ.Entries(0)
	if maxEvents > 0 && len(entries) > maxEvents {
		entries = entries[:maxEvents]
	}

	recovered := 0
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return recovered, err
		}

		evt := Envelope{
			EventID:     e.EventID,
			Type:        e.EventType,
			Payload:     e.Payload,
			Priority:    PriorityNormal,
			SubmittedAt: time.Now(),
		}

		if err := d.dispatch(ctx, e.EventType, evt, h, e.Key); err != nil {
			continue
		}

		if err := d.config.DLQ.Remove(e.Key); err != nil {
			d.logger.Error(ctx, "failed to remove recovered DLQ entry",
				telemetry.Field{Key: "dlq_key", Value: e.Key},
				telemetry.Field{Key: "error", Value: err.Error()},
			)
			continue
		}
		recovered++
	}

	return recovered, nil
}

// DispatcherMetrics is a point-in-time snapshot of dispatcher state, read
// by the surrounding observability layer.
type DispatcherMetrics struct {
	Processed int64
	Failed    int64
	Retried   int64
	DLQAdded  int64

	// CircuitStates maps dependency name to breaker state.
	CircuitStates map[string]resilience.State

	// RateLimiterTokens is the current token count, or -1 when no rate
	// limiter is configured.
	RateLimiterTokens float64
}

// Metrics returns a snapshot of dispatcher counters and breaker states.
func (d *Dispatcher) Metrics() DispatcherMetrics {
	d.mu.Lock()
	states := make(map[string]resilience.State, len(d.breakers))
	for name, cb := range d.breakers {
		states[name] = cb.State()
	}
	d.mu.Unlock()

	tokens := -1.0
	if d.config.RateLimiter != nil {
		tokens = d.config.RateLimiter.Tokens()
	}

	return DispatcherMetrics{
		Processed:         d.processed.Load(),
		Failed:            d.failed.Load(),
		Retried:           d.retried.Load(),
		DLQAdded:          d.dlqAdded.Load(),
		CircuitStates:     states,
		RateLimiterTokens: tokens,
	}
}
