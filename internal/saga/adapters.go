package saga

import (
	"context"

	"busline/internal/tickets"

	"github.com/google/uuid"
)

// PaymentPublisher adapts the bus to the payments service's publisher
// interface.
type PaymentPublisher struct {
	bus Bus
}

func NewPaymentPublisher(bus Bus) *PaymentPublisher {
	return &PaymentPublisher{bus: bus}
}

func (p *PaymentPublisher) PublishPaymentCompleted(ctx context.Context, bookingID uuid.UUID, orderCode int64) error {
	return p.bus.PublishPaymentCompleted(ctx, PaymentCompletedEvent{
		BookingID: bookingID,
		OrderCode: orderCode,
	})
}

// TicketPublisher adapts the bus to the tickets service's publisher
// interface.
type TicketPublisher struct {
	bus Bus
}

func NewTicketPublisher(bus Bus) *TicketPublisher {
	return &TicketPublisher{bus: bus}
}

func (p *TicketPublisher) PublishTicketCancelled(ctx context.Context, event tickets.CancelledEvent) error {
	return p.bus.PublishTicketCancelled(ctx, TicketCancelledEvent{
		TicketID:     event.TicketID,
		BookingID:    event.BookingID,
		OrderCode:    event.OrderCode,
		RefundAmount: event.RefundAmount,
		Reason:       event.Reason,
		UserID:       event.UserID,
	})
}
