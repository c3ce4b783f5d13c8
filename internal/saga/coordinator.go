package saga

import (
	"context"

	"busline/internal/bookings"
	"busline/internal/notifications"
	"busline/internal/payments"
	"busline/internal/tickets"
	"busline/pkg/logger"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Coordinator drives the cross-entity transitions of the reservation
// saga. It reacts synchronously inside the webhook transaction for the
// payment-completed step and asynchronously off the bus for everything
// else.
type Coordinator struct {
	bookings bookings.Service
	tickets  tickets.Service
	payments payments.Service
	notifier notifications.Sender
	log      *logger.Logger
}

func NewCoordinator(bookingService bookings.Service, ticketService tickets.Service, paymentService payments.Service, notifier notifications.Sender) *Coordinator {
	return &Coordinator{
		bookings: bookingService,
		tickets:  ticketService,
		payments: paymentService,
		notifier: notifier,
		log:      logger.GetDefault(),
	}
}

// PaymentCompleted confirms the booking and issues its tickets inside
// the webhook-verification transaction. It never returns an error for
// an issuance failure: that path is compensated by cancelling the
// booking, and the payment stays COMPLETED. Money taken for a
// cancelled booking is flagged for manual reconciliation rather than
// auto-refunded.
func (c *Coordinator) PaymentCompleted(ctx context.Context, tx *gorm.DB, bookingID uuid.UUID, orderCode int64) error {
	// Confirmation and issuance run under a savepoint so a failed
	// insert does not poison the outer transaction.
	err := tx.Transaction(func(inner *gorm.DB) error {
		booking, err := c.bookings.ConfirmTx(ctx, inner, bookingID)
		if err != nil {
			return err
		}
		return c.tickets.IssueForBookingTx(ctx, inner, booking)
	})
	if err == nil {
		c.log.LogBookingConfirmed(ctx, bookingID.String(), orderCode)
		return nil
	}

	c.log.LogCompensation(ctx, bookingID.String(), orderCode, err)

	if cancelErr := c.bookings.CancelTx(ctx, tx, bookingID, "ticket issuance failed"); cancelErr != nil {
		c.log.ErrorWithContext(ctx, "compensating cancel failed",
			"booking_id", bookingID.String(),
			"order_code", orderCode,
			"error", cancelErr.Error(),
			"requires_reconciliation", true)
	}
	return nil
}

// HandlePaymentCompleted runs after the webhook transaction has
// committed and only carries best-effort side effects.
func (c *Coordinator) HandlePaymentCompleted(ctx context.Context, event PaymentCompletedEvent) {
	userID, _, err := c.bookings.OwnerAndOrder(ctx, event.BookingID)
	if err != nil {
		c.log.ErrorWithContext(ctx, "cannot resolve booking owner for notification",
			"booking_id", event.BookingID.String(), "error", err.Error())
		return
	}

	notification := notifications.NewNotification(
		userID,
		"Payment received",
		"Your payment was received and your booking is confirmed.",
		"/bookings/"+event.BookingID.String(),
	)
	if err := c.notifier.Send(ctx, notification); err != nil {
		c.log.ErrorWithContext(ctx, "failed to send booking confirmed notification",
			"booking_id", event.BookingID.String(), "error", err.Error())
	}
}

// HandleTicketCancelled originates the refund for a cancelled ticket.
// Delivery is at least once; the ticket id keys the refund so replays
// cannot duplicate it. The notification attempt is isolated from the
// refund outcome.
func (c *Coordinator) HandleTicketCancelled(ctx context.Context, event TicketCancelledEvent) {
	err := c.payments.CreateRefundForTicket(ctx, event.OrderCode, event.TicketID, event.RefundAmount, event.Reason)
	if err != nil {
		c.log.ErrorWithContext(ctx, "failed to create refund for cancelled ticket",
			"ticket_id", event.TicketID.String(),
			"order_code", event.OrderCode,
			"error", err.Error(),
			"requires_reconciliation", true)
		return
	}

	notification := notifications.NewNotification(
		event.UserID,
		"Refund initiated",
		"Your ticket was cancelled and a refund is being processed.",
		"/bookings/"+event.BookingID.String(),
	)
	if err := c.notifier.Send(ctx, notification); err != nil {
		c.log.ErrorWithContext(ctx, "failed to send refund initiated notification",
			"ticket_id", event.TicketID.String(), "error", err.Error())
	}
}
