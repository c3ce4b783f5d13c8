package tickets

import (
	"context"
	"errors"
	"time"

	"busline/internal/shared/apperrors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository interface {
	// CreateBatch inserts the tickets inside the given transaction. A
	// duplicate active (trip_id, seat_id) pair surfaces as a conflict.
	CreateBatch(ctx context.Context, tx *gorm.DB, tickets []*Ticket) error
	GetByID(ctx context.Context, id uuid.UUID) (*Ticket, error)
	GetForUpdate(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*Ticket, error)
	UpdateStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, status Status, cancelNote string, cancelledAt *time.Time) error
	ActiveSeatIDs(ctx context.Context, tripID uuid.UUID) ([]string, error)
	// ActiveByTripForUpdate locks and returns the trip's active tickets
	ActiveByTripForUpdate(ctx context.Context, tx *gorm.DB, tripID uuid.UUID) ([]Ticket, error)
	// BulkTransitionForTrip moves every ticket of the trip in `from`
	// status to `to` and reports how many rows changed.
	BulkTransitionForTrip(ctx context.Context, tx *gorm.DB, tripID uuid.UUID, from, to Status, note string) (int64, error)
	// CancelForBooking cancels the booking's active tickets
	CancelForBooking(ctx context.Context, tx *gorm.DB, bookingID uuid.UUID, note string) error
	ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]Ticket, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]Ticket, error)
	Transaction(ctx context.Context, fn func(txRepo Repository, tx *gorm.DB) error) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) dbOr(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *repository) CreateBatch(ctx context.Context, tx *gorm.DB, tickets []*Ticket) error {
	if len(tickets) == 0 {
		return nil
	}
	err := r.dbOr(tx).WithContext(ctx).Create(tickets).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return apperrors.Conflictf("a seat on this trip already has an active ticket")
		}
		return err
	}
	return nil
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*Ticket, error) {
	var ticket Ticket
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&ticket).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFoundf("ticket %s not found", id)
		}
		return nil, err
	}
	return &ticket, nil
}

func (r *repository) GetForUpdate(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*Ticket, error) {
	var ticket Ticket
	err := r.dbOr(tx).WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&ticket).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFoundf("ticket %s not found", id)
		}
		return nil, err
	}
	return &ticket, nil
}

func (r *repository) UpdateStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, status Status, cancelNote string, cancelledAt *time.Time) error {
	updates := map[string]interface{}{
		"status":     status,
		"updated_at": time.Now().UTC(),
	}
	if cancelNote != "" {
		updates["cancel_note"] = cancelNote
	}
	if cancelledAt != nil {
		updates["cancelled_at"] = *cancelledAt
	}
	return r.dbOr(tx).WithContext(ctx).
		Model(&Ticket{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *repository) ActiveSeatIDs(ctx context.Context, tripID uuid.UUID) ([]string, error) {
	var seatIDs []string
	err := r.db.WithContext(ctx).
		Model(&Ticket{}).
		Where("trip_id = ? AND status = ?", tripID, StatusActive).
		Pluck("seat_id", &seatIDs).Error
	return seatIDs, err
}

func (r *repository) ActiveByTripForUpdate(ctx context.Context, tx *gorm.DB, tripID uuid.UUID) ([]Ticket, error) {
	var tickets []Ticket
	err := r.dbOr(tx).WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("trip_id = ? AND status = ?", tripID, StatusActive).
		Order("created_at ASC").
		Find(&tickets).Error
	return tickets, err
}

func (r *repository) BulkTransitionForTrip(ctx context.Context, tx *gorm.DB, tripID uuid.UUID, from, to Status, note string) (int64, error) {
	updates := map[string]interface{}{
		"status":     to,
		"updated_at": time.Now().UTC(),
	}
	if note != "" {
		updates["cancel_note"] = note
	}
	result := r.dbOr(tx).WithContext(ctx).
		Model(&Ticket{}).
		Where("trip_id = ? AND status = ?", tripID, from).
		Updates(updates)
	return result.RowsAffected, result.Error
}

func (r *repository) CancelForBooking(ctx context.Context, tx *gorm.DB, bookingID uuid.UUID, note string) error {
	now := time.Now().UTC()
	return r.dbOr(tx).WithContext(ctx).
		Model(&Ticket{}).
		Where("booking_id = ? AND status = ?", bookingID, StatusActive).
		Updates(map[string]interface{}{
			"status":       StatusCancelled,
			"cancel_note":  note,
			"cancelled_at": now,
			"updated_at":   now,
		}).Error
}

func (r *repository) ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]Ticket, error) {
	var tickets []Ticket
	err := r.db.WithContext(ctx).
		Where("booking_id = ?", bookingID).
		Order("created_at ASC").
		Find(&tickets).Error
	return tickets, err
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]Ticket, error) {
	var tickets []Ticket
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&tickets).Error
	return tickets, err
}

func (r *repository) Transaction(ctx context.Context, fn func(txRepo Repository, tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&repository{db: tx}, tx)
	})
}
