package event

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/jonwraymond/eventops/resilience"
	"github.com/jonwraymond/eventops/telemetry"
)

// ProcessorConfig configures a Processor.
type ProcessorConfig struct {
	// Dispatcher delivers drained events to handlers. Required.
	Dispatcher *Dispatcher

	// Idempotency deduplicates submissions. Defaults to a store with
	// default TTL and bounds.
	Idempotency *IdempotencyStore

	// SubmitLimiter optionally gates Submit; a rejected submission is
	// reported as not accepted.
	SubmitLimiter *resilience.RateLimiter

	// DrainInterval is the pause between drain passes.
	// Default: 100ms
	DrainInterval time.Duration

	// BatchSize is the maximum number of events drained per pass.
	// Default: 16
	BatchSize int

	// MaxQueueSize bounds each priority queue. Once full, the oldest
	// queued event is silently discarded to admit the new one.
	// Default: 1024
	MaxQueueSize int

	// MaxConcurrent caps concurrent event dispatches within one batch.
	// Default: 8
	MaxConcurrent int64

	// Logger defaults to a noop logger.
	Logger telemetry.Logger
}

// Submission describes one event offered to Submit. EventID is optional
// and generated when absent; Priority defaults to the priority registered
// for the type, then to PriorityNormal.
type Submission struct {
	Type     string
	Payload  any
	EventID  string
	Priority Priority
}

type registration struct {
	handler Handler
}

// Processor assigns monotonic sequence numbers and priorities to incoming
// events, deduplicates them, and drains per-priority queues in strict
// priority order through the dispatcher.
//
// A single background goroutine drains the queues; dispatches within one
// batch run concurrently. Within a priority tier events dispatch in
// submission order; across tiers higher priority always drains first, so a
// continuous stream of critical events can starve low-priority ones. Stop
// waits for the in-flight batch to finish and never interrupts handlers.
type Processor struct {
	config     ProcessorConfig
	dispatcher *Dispatcher
	idem       *IdempotencyStore
	logger     telemetry.Logger
	sem        *semaphore.Weighted

	mu        sync.Mutex
	queues    map[Priority][]Envelope
	handlers  map[string][]registration
	defaults  map[string]Priority
	pending   map[uint64]struct{}
	seq       uint64
	submitted int64
	dups      int64
	dropped   int64
	unrouted  int64
	lastDrain time.Time

	runMu   sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
	stopped bool
}

// NewProcessor creates a processor. The dispatcher is required; every other
// field has a usable default.
func NewProcessor(config ProcessorConfig) (*Processor, error) {
	if config.Dispatcher == nil {
		return nil, fmt.Errorf("event: processor requires a dispatcher")
	}

	// Apply defaults
	if config.Idempotency == nil {
		config.Idempotency = NewIdempotencyStore(IdempotencyConfig{})
	}
	if config.DrainInterval <= 0 {
		config.DrainInterval = 100 * time.Millisecond
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 16
	}
	if config.MaxQueueSize <= 0 {
		config.MaxQueueSize = 1024
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 8
	}
	if config.Logger == nil {
		config.Logger = telemetry.NopLogger()
	}

	p := &Processor{
		config:     config,
		dispatcher: config.Dispatcher,
		idem:       config.Idempotency,
		logger:     config.Logger.WithComponent("processor"),
		sem:        semaphore.NewWeighted(config.MaxConcurrent),
		queues:     make(map[Priority][]Envelope, len(drainOrder)),
		handlers:   make(map[string][]registration),
		defaults:   make(map[string]Priority),
		pending:    make(map[uint64]struct{}),
	}
	for _, pr := range drainOrder {
		p.queues[pr] = nil
	}

	return p, nil
}

// RegisterHandler registers a handler for an event type. The priority
// becomes the type's default for submissions that don't specify one; the
// last registration for a type wins the default.
func (p *Processor) RegisterHandler(eventType string, h Handler, priority Priority) {
	if priority == PriorityDefault || !priority.valid() {
		priority = PriorityNormal
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.handlers[eventType] = append(p.handlers[eventType], registration{handler: h})
	p.defaults[eventType] = priority
}

// Submit offers an event for processing. It returns false when the event
// is a duplicate, rate limited, or the processor has stopped; duplicates
// are dropped silently per the dedup contract. An accepted event has been
// assigned a sequence number and enqueued.
func (p *Processor) Submit(ctx context.Context, s Submission) (bool, error) {
	if s.Type == "" {
		return false, fmt.Errorf("event: submission requires a type")
	}

	p.runMu.Lock()
	stopped := p.stopped
	p.runMu.Unlock()
	if stopped {
		return false, nil
	}

	if p.config.SubmitLimiter != nil && !p.config.SubmitLimiter.Allow() {
		p.logger.Debug(ctx, "submission rate limited",
			telemetry.Field{Key: "event_type", Value: s.Type},
		)
		return false, nil
	}

	dup, err := p.idem.IsDuplicate(s.Type, s.Payload)
	if err != nil {
		return false, err
	}
	if dup {
		p.mu.Lock()
		p.dups++
		p.mu.Unlock()
		return false, nil
	}

	priority := s.Priority
	eventID := s.EventID
	if eventID == "" {
		eventID = uuid.NewString()
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if priority == PriorityDefault {
		if def, ok := p.defaults[s.Type]; ok {
			priority = def
		} else {
			priority = PriorityNormal
		}
	}
	if !priority.valid() {
		return false, fmt.Errorf("event: invalid priority %d", priority)
	}

	p.seq++
	evt := Envelope{
		EventID:        eventID,
		Type:           s.Type,
		Payload:        s.Payload,
		Priority:       priority,
		SequenceNumber: p.seq,
		SubmittedAt:    time.Now(),
	}

	q := p.queues[priority]
	if len(q) >= p.config.MaxQueueSize {
		// Bounded queue: admit the new event by discarding the oldest.
		oldest := q[0]
		q = q[1:]
		delete(p.pending, oldest.SequenceNumber)
		p.dropped++
		p.dispatcher.inst.dropped.Add(ctx, 1)
		p.logger.Warn(ctx, "queue full, oldest event discarded",
			telemetry.Field{Key: "priority", Value: priority.String()},
			telemetry.Field{Key: "event_id", Value: oldest.EventID},
		)
	}
	p.queues[priority] = append(q, evt)
	p.pending[evt.SequenceNumber] = struct{}{}
	p.submitted++

	return true, nil
}

// Start launches the background drain loop. It is an error to start a
// processor twice or after Stop.
func (p *Processor) Start() error {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	if p.started {
		return fmt.Errorf("event: processor already started")
	}
	if p.stopped {
		return fmt.Errorf("event: processor already stopped")
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	p.started = true

	go p.run(ctx)
	return nil
}

// Stop halts the drain loop and blocks until the in-flight batch has
// finished. Handlers are not interrupted. Stop is idempotent.
func (p *Processor) Stop() {
	p.runMu.Lock()
	if !p.started || p.stopped {
		p.stopped = true
		p.runMu.Unlock()
		return
	}
	p.stopped = true
	cancel, done := p.cancel, p.done
	p.runMu.Unlock()

	cancel()
	<-done
}

func (p *Processor) run(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.config.DrainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.drain()
		}
	}
}

// drain dispatches one batch and blocks until every event in it has been
// handled, so the loop (and Stop) always observes batch boundaries.
// Dispatch uses a background context: stopping the processor must not
// cancel handlers mid-flight.
func (p *Processor) drain() {
	batch := p.nextBatch()
	if len(batch) == 0 {
		return
	}

	ctx := context.Background()

	var wg sync.WaitGroup
	for _, evt := range batch {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			// Unreachable with a background context; be safe anyway.
			p.finish(evt)
			continue
		}

		wg.Add(1)
		go func(evt Envelope) {
			defer wg.Done()
			defer p.sem.Release(1)
			p.process(ctx, evt)
		}(evt)
	}
	wg.Wait()
}

// nextBatch pops up to BatchSize events in strict priority order, FIFO by
// sequence number within each tier.
func (p *Processor) nextBatch() []Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.lastDrain = time.Now()

	batch := make([]Envelope, 0, p.config.BatchSize)
	for _, pr := range drainOrder {
		q := p.queues[pr]
		for len(q) > 0 && len(batch) < p.config.BatchSize {
			batch = append(batch, q[0])
			q = q[1:]
		}
		p.queues[pr] = q
		if len(batch) >= p.config.BatchSize {
			break
		}
	}
	return batch
}

// process dispatches one event to every handler registered for its type.
// A failing handler never blocks the rest of the batch: the dispatcher has
// already absorbed, logged, and dead-lettered the failure.
func (p *Processor) process(ctx context.Context, evt Envelope) {
	defer p.finish(evt)

	p.mu.Lock()
	regs := make([]registration, len(p.handlers[evt.Type]))
	copy(regs, p.handlers[evt.Type])
	p.mu.Unlock()

	if len(regs) == 0 {
		p.mu.Lock()
		p.unrouted++
		p.mu.Unlock()
		p.logger.Warn(ctx, "no handler registered for event type",
			telemetry.Field{Key: "event_type", Value: evt.Type},
			telemetry.Field{Key: "event_id", Value: evt.EventID},
		)
		return
	}

	for _, reg := range regs {
		// Dispatch absorbs the error; it is logged and dead-lettered there.
		_ = p.dispatcher.Dispatch(ctx, evt.Type, evt, reg.handler)
	}
}

// finish marks the event processed, success or terminal failure alike.
func (p *Processor) finish(evt Envelope) {
	p.mu.Lock()
	delete(p.pending, evt.SequenceNumber)
	p.mu.Unlock()
}

// ProcessorMetrics is a point-in-time snapshot of processor state.
type ProcessorMetrics struct {
	Submitted  int64
	Duplicates int64
	Dropped    int64
	Unrouted   int64

	// QueueDepths reports the current length of each priority queue.
	QueueDepths map[Priority]int

	// Pending counts events accepted but not yet processed.
	Pending int

	// NextSequence is the sequence number the next accepted event gets.
	NextSequence uint64

	LastDrainAt time.Time

	// Dispatcher carries the dispatch-side counters and breaker states.
	Dispatcher DispatcherMetrics
}

// Metrics returns a snapshot of queue and dispatch state.
func (p *Processor) Metrics() ProcessorMetrics {
	p.mu.Lock()
	depths := make(map[Priority]int, len(drainOrder))
	for _, pr := range drainOrder {
		depths[pr] = len(p.queues[pr])
	}
	m := ProcessorMetrics{
		Submitted:    p.submitted,
		Duplicates:   p.dups,
		Dropped:      p.dropped,
		Unrouted:     p.unrouted,
		QueueDepths:  depths,
		Pending:      len(p.pending),
		NextSequence: p.seq + 1,
		LastDrainAt:  p.lastDrain,
	}
	p.mu.Unlock()

	m.Dispatcher = p.dispatcher.Metrics()
	return m
}
