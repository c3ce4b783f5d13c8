package tickets

import (
	"time"

	"github.com/google/uuid"
)

// Ticket is a seat entitlement issued once its booking's payment
// completes. The partial unique index on (trip_id, seat_id) over
// ACTIVE rows backstops the reservation lock.
type Ticket struct {
	ID          uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	BookingID   uuid.UUID  `json:"booking_id" gorm:"type:uuid;not null;index"`
	TripID      uuid.UUID  `json:"trip_id" gorm:"type:uuid;not null;index"`
	UserID      uuid.UUID  `json:"user_id" gorm:"type:uuid;not null;index"`
	SeatID      string     `json:"seat_id" gorm:"not null"`
	SeatCode    string     `json:"seat_code" gorm:"not null"`
	Price       float64    `json:"price" gorm:"not null"`
	Status      Status     `json:"status" gorm:"not null;default:'ACTIVE';index"`
	CancelNote  string     `json:"cancel_note,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}

func (Ticket) TableName() string {
	return "tickets"
}

// CancelTicketRequest is the owner-initiated cancellation payload
type CancelTicketRequest struct {
	Reason string `json:"reason" binding:"required,min=3,max=500"`
}

type TicketResponse struct {
	ID          uuid.UUID  `json:"id"`
	BookingID   uuid.UUID  `json:"booking_id"`
	TripID      uuid.UUID  `json:"trip_id"`
	SeatID      string     `json:"seat_id"`
	SeatCode    string     `json:"seat_code"`
	Price       float64    `json:"price"`
	Status      Status     `json:"status"`
	CancelNote  string     `json:"cancel_note,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func (t *Ticket) ToResponse() TicketResponse {
	return TicketResponse{
		ID:          t.ID,
		BookingID:   t.BookingID,
		TripID:      t.TripID,
		SeatID:      t.SeatID,
		SeatCode:    t.SeatCode,
		Price:       t.Price,
		Status:      t.Status,
		CancelNote:  t.CancelNote,
		CancelledAt: t.CancelledAt,
		CreatedAt:   t.CreatedAt,
	}
}

// ExpiryResult summarizes one markExpiredForTrip run
type ExpiryResult struct {
	TicketsExpired  int `json:"tickets_expired"`
	RefundsCreated  int `json:"refunds_created"`
	RefundsFailed   int `json:"refunds_failed"`
	UsersNotified   int `json:"users_notified"`
	BookingsTouched int `json:"bookings_touched"`
}
