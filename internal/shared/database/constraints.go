package database

import (
	"gorm.io/gorm"
)

// MigrateConstraints adds critical database constraints for concurrency control
func MigrateConstraints(db *gorm.DB) error {
	// Backstop for the per-trip reservation lock: a seat can carry at
	// most one ACTIVE ticket per trip.
	err := db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS unique_active_ticket_per_seat
		ON tickets (trip_id, seat_id)
		WHERE status = 'ACTIVE';
	`).Error
	if err != nil {
		return err
	}

	// A cancelled ticket yields at most one refund payment even when
	// the cancellation event is delivered twice.
	err = db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS unique_refund_per_ticket
		ON payments (refund_ticket_id)
		WHERE refund_ticket_id IS NOT NULL;
	`).Error
	if err != nil {
		return err
	}

	// Index for seat availability queries
	err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_tickets_trip_status
		ON tickets (trip_id, status);
	`).Error
	if err != nil {
		return err
	}

	// Index for refund-to-original lookups in both directions
	err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_payments_original_order_code
		ON payments (original_order_code)
		WHERE original_order_code IS NOT NULL;
	`).Error
	if err != nil {
		return err
	}

	return nil
}
