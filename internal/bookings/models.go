package bookings

import (
	"time"

	"github.com/google/uuid"
)

// Booking defines a user's request to occupy seats on a trip, pending
// payment. The seat list and total price are captured at creation and
// never recomputed afterwards.
type Booking struct {
	ID          uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID      uuid.UUID  `gorm:"type:uuid;index;not null" json:"user_id"`
	TripID      uuid.UUID  `gorm:"type:uuid;index;not null" json:"trip_id"`
	TotalPrice  float64    `gorm:"not null" json:"total_price"`
	Status      Status     `gorm:"type:varchar(20);check:status IN ('PENDING', 'CONFIRMED', 'CANCELLED', 'COMPLETED');default:'PENDING'" json:"status"`
	OrderCode   *int64     `gorm:"uniqueIndex" json:"order_code,omitempty"`
	CancelNote  string     `json:"cancel_note,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`

	// Relationships
	Seats []BookingSeat `json:"seats,omitempty" gorm:"foreignKey:BookingID;constraint:OnDelete:CASCADE;"`
}

// BookingSeat defines one requested seat with the price captured at
// booking time.
type BookingSeat struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	BookingID uuid.UUID `gorm:"type:uuid;index;not null" json:"booking_id"`
	SeatID    string    `gorm:"not null" json:"seat_id"`
	SeatCode  string    `gorm:"not null" json:"seat_code"`
	Price     float64   `gorm:"not null" json:"price"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName sets the table name for Booking
func (Booking) TableName() string {
	return "bookings"
}

// TableName sets the table name for BookingSeat
func (BookingSeat) TableName() string {
	return "booking_seats"
}

func (b *Booking) IsPending() bool {
	return b.Status == StatusPending
}

func (b *Booking) IsConfirmed() bool {
	return b.Status == StatusConfirmed
}

func (b *Booking) IsCancelled() bool {
	return b.Status == StatusCancelled
}

// SeatRequest is one requested seat in a booking creation request
type SeatRequest struct {
	SeatID   string `json:"seat_id" binding:"required"`
	SeatCode string `json:"seat_code" binding:"required"`
}

// CreateBookingRequest represents a booking creation request
type CreateBookingRequest struct {
	TripID string        `json:"trip_id" binding:"required,uuid"`
	Seats  []SeatRequest `json:"seats" binding:"required,min=1,dive"`
}

// BookingResponse represents a booking in API responses
type BookingResponse struct {
	ID          uuid.UUID     `json:"id"`
	TripID      uuid.UUID     `json:"trip_id"`
	UserID      uuid.UUID     `json:"user_id"`
	Status      string        `json:"status"`
	TotalPrice  float64       `json:"total_price"`
	OrderCode   *int64        `json:"order_code,omitempty"`
	CheckoutURL string        `json:"checkout_url,omitempty"`
	Seats       []BookingSeat `json:"seats"`
	CreatedAt   time.Time     `json:"created_at"`
}

// ToResponse converts a Booking to its API shape
func (b *Booking) ToResponse(checkoutURL string) BookingResponse {
	return BookingResponse{
		ID:          b.ID,
		TripID:      b.TripID,
		UserID:      b.UserID,
		Status:      b.Status.String(),
		TotalPrice:  b.TotalPrice,
		OrderCode:   b.OrderCode,
		CheckoutURL: checkoutURL,
		Seats:       b.Seats,
		CreatedAt:   b.CreatedAt,
	}
}

// BookingListQuery holds pagination for booking listings
type BookingListQuery struct {
	Page   int    `form:"page"`
	Limit  int    `form:"limit"`
	Status string `form:"status"`
}

// AdminStatusRequest is the admin booking status override payload
type AdminStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=PENDING CONFIRMED CANCELLED COMPLETED"`
	Note   string `json:"note"`
}
