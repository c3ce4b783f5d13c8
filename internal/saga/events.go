package saga

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventPaymentCompleted EventType = "payment.completed"
	EventTicketCancelled  EventType = "ticket.cancelled"
)

// Envelope is the wire form of a saga event. Delivery is at least
// once; every handler deduplicates on its own key.
type Envelope struct {
	Type       EventType       `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

// PaymentCompletedEvent announces a payment that reached COMPLETED.
// Emitted after the webhook transaction commits.
type PaymentCompletedEvent struct {
	BookingID uuid.UUID `json:"booking_id"`
	OrderCode int64     `json:"order_code"`
}

// TicketCancelledEvent announces an owner cancellation and carries
// everything the refund flow needs. The ticket id doubles as the
// refund deduplication key.
type TicketCancelledEvent struct {
	TicketID     uuid.UUID `json:"ticket_id"`
	BookingID    uuid.UUID `json:"booking_id"`
	OrderCode    int64     `json:"order_code"`
	RefundAmount float64   `json:"refund_amount"`
	Reason       string    `json:"reason"`
	UserID       uuid.UUID `json:"user_id"`
}

func newEnvelope(eventType EventType, data interface{}) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		Type:       eventType,
		OccurredAt: time.Now().UTC(),
		Data:       raw,
	}, nil
}
