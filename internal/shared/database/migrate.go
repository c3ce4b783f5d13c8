package database

import (
	"busline/internal/bookings"
	"busline/internal/payments"
	"busline/internal/tickets"
	"busline/internal/trips"

	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&trips.Trip{},
		&bookings.Booking{},
		&bookings.BookingSeat{},
		&payments.Payment{},
		&tickets.Ticket{},
	)
}
