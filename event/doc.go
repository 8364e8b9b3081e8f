// Package event provides reliable event processing: a resilient
// dispatcher that wraps handlers with retry, circuit breaking, rate
// limiting, and dead-lettering, and an ordered processor that queues
// submissions by priority and drains them in batches.
//
// Dispatching a single event:
//
//	store, _ := dlq.Open("dead_letters.json")
//	d, _ := event.NewDispatcher(event.DispatcherConfig{DLQ: store})
//
//	evt := event.Envelope{EventID: "evt-1", Type: "order.created", Payload: order}
//	err := d.Dispatch(ctx, "orders", evt, handleOrder)
//
// Ordered processing with deduplication:
//
//	p, _ := event.NewProcessor(event.ProcessorConfig{Dispatcher: d})
//	p.RegisterHandler("order.created", handleOrder, event.PriorityHigh)
//	p.Start()
//	defer p.Stop()
//
//	p.Submit(ctx, event.Submission{Type: "order.created", Payload: order})
package event
