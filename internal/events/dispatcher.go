package events

import (
	"context"
	"log/slog"

	"limsd/internal/platform/metrics"
)

// Dispatcher decouples event emission from delivery. Emit is non-blocking:
// services call it inside their transaction boundary and move on; Run fans
// events out to sinks on a background goroutine.
//
// The inbox is bounded. When it is full the event is dropped and counted
// rather than back-pressuring a workflow transition; notification loss is
// explicitly acceptable, investigation-triggering sinks re-derive anything
// critical from persisted state.
type Dispatcher struct {
	inbox   chan Event
	sinks   []Sink
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type DispatcherOption func(*Dispatcher)

func WithLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = logger }
}

func WithMetrics(m *metrics.Metrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

// NewDispatcher creates a dispatcher with the given inbox capacity and sinks.
func NewDispatcher(buffer int, sinks []Sink, opts ...DispatcherOption) *Dispatcher {
	if buffer <= 0 {
		buffer = 1024
	}
	d := &Dispatcher{
		inbox:  make(chan Event, buffer),
		sinks:  sinks,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Emit queues an event for asynchronous delivery. It never blocks and never
// returns an error; the emitting transaction has already committed.
func (d *Dispatcher) Emit(_ context.Context, event Event) {
	select {
	case d.inbox <- event:
	default:
		if d.metrics != nil {
			d.metrics.EventsDropped.Inc()
		}
		d.logger.Warn("event dropped, dispatcher inbox full",
			"kind", event.Kind,
			"sample_id", event.SampleID.String(),
		)
	}
}

// Run delivers queued events until ctx is cancelled. Sink failures are
// logged and do not stop the loop or other sinks.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			d.drain()
			return ctx.Err()
		case event := <-d.inbox:
			d.deliver(ctx, event)
		}
	}
}

// drain flushes whatever is already queued at shutdown. Delivery uses a
// background context; the run context is already cancelled.
func (d *Dispatcher) drain() {
	for {
		select {
		case event := <-d.inbox:
			d.deliver(context.Background(), event)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, event Event) {
	for _, sink := range d.sinks {
		if err := sink.Deliver(ctx, event); err != nil {
			d.logger.Error("event delivery failed",
				"sink", sink.Name(),
				"kind", event.Kind,
				"error", err,
			)
			continue
		}
		if d.metrics != nil {
			d.metrics.EventsDelivered.WithLabelValues(sink.Name()).Inc()
		}
	}
}
