package saga

import (
	"context"
	"encoding/json"
	"sync"

	"busline/pkg/logger"
)

// Handler consumes saga events. Handlers must be idempotent: the bus
// guarantees at-least-once delivery, never exactly-once.
type Handler interface {
	HandlePaymentCompleted(ctx context.Context, event PaymentCompletedEvent)
	HandleTicketCancelled(ctx context.Context, event TicketCancelledEvent)
}

// Bus transports saga events between the services and the coordinator
type Bus interface {
	PublishPaymentCompleted(ctx context.Context, event PaymentCompletedEvent) error
	PublishTicketCancelled(ctx context.Context, event TicketCancelledEvent) error
	// Subscribe registers the handler. Must be called before Start.
	Subscribe(handler Handler)
	// Start begins dispatching events until the context is cancelled
	Start(ctx context.Context) error
	Close() error
}

// InProcessBus dispatches events over a buffered channel inside the
// process. Used when Kafka is disabled.
type InProcessBus struct {
	events  chan Envelope
	handler Handler
	log     *logger.Logger

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

func NewInProcessBus(bufferSize int) *InProcessBus {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &InProcessBus{
		events: make(chan Envelope, bufferSize),
		log:    logger.GetDefault(),
		done:   make(chan struct{}),
	}
}

func (b *InProcessBus) Subscribe(handler Handler) {
	b.handler = handler
}

func (b *InProcessBus) PublishPaymentCompleted(ctx context.Context, event PaymentCompletedEvent) error {
	return b.publish(ctx, EventPaymentCompleted, event)
}

func (b *InProcessBus) PublishTicketCancelled(ctx context.Context, event TicketCancelledEvent) error {
	return b.publish(ctx, EventTicketCancelled, event)
}

func (b *InProcessBus) publish(ctx context.Context, eventType EventType, data interface{}) error {
	envelope, err := newEnvelope(eventType, data)
	if err != nil {
		return err
	}
	select {
	case b.events <- envelope:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *InProcessBus) Start(ctx context.Context) error {
	go func() {
		defer close(b.done)
		for {
			select {
			case envelope := <-b.events:
				b.dispatch(ctx, envelope)
			case <-ctx.Done():
				// Drain what is already queued before stopping
				for {
					select {
					case envelope := <-b.events:
						b.dispatch(context.WithoutCancel(ctx), envelope)
					default:
						return
					}
				}
			}
		}
	}()
	return nil
}

func (b *InProcessBus) dispatch(ctx context.Context, envelope Envelope) {
	if b.handler == nil {
		b.log.ErrorWithContext(ctx, "saga event dropped, no handler subscribed", "type", string(envelope.Type))
		return
	}

	switch envelope.Type {
	case EventPaymentCompleted:
		var event PaymentCompletedEvent
		if err := json.Unmarshal(envelope.Data, &event); err != nil {
			b.log.ErrorWithContext(ctx, "malformed payment completed event", "error", err.Error())
			return
		}
		b.handler.HandlePaymentCompleted(ctx, event)
	case EventTicketCancelled:
		var event TicketCancelledEvent
		if err := json.Unmarshal(envelope.Data, &event); err != nil {
			b.log.ErrorWithContext(ctx, "malformed ticket cancelled event", "error", err.Error())
			return
		}
		b.handler.HandleTicketCancelled(ctx, event)
	default:
		b.log.ErrorWithContext(ctx, "unknown saga event type", "type", string(envelope.Type))
	}
}

func (b *InProcessBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	<-b.done
	return nil
}
