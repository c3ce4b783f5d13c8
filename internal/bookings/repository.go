package bookings

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
	Create(ctx context.Context, booking *Booking) error
	GetByID(ctx context.Context, id uuid.UUID) (*Booking, error)
	// GetForUpdate locks the booking row and preloads seats. Pass the
	// transaction handle when called inside one; nil uses the base
	// connection.
	GetForUpdate(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*Booking, error)
	// UpdateStatus persists a transition decided by the state machine
	UpdateStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, status Status, cancelNote string, cancelledAt *time.Time) error
	// AttachOrderCode binds the order code exactly once; returns a
	// conflict when a code is already attached.
	AttachOrderCode(ctx context.Context, id uuid.UUID, orderCode int64) error
	// ReservedSeatIDs returns seat ids held by live (pending or
	// confirmed) bookings on the trip.
	ReservedSeatIDs(ctx context.Context, tripID uuid.UUID) ([]string, error)
	GetUserBookings(ctx context.Context, userID uuid.UUID, query BookingListQuery) ([]Booking, int64, error)
	Transaction(ctx context.Context, fn func(txRepo Repository, tx *gorm.DB) error) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// dbOr returns the transaction handle when given, the base connection
// otherwise.
func (r *repository) dbOr(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *repository) Create(ctx context.Context, booking *Booking) error {
	return r.db.WithContext(ctx).Create(booking).Error
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*Booking, error) {
	var booking Booking
	err := r.db.WithContext(ctx).
		Preload("Seats").
		Where("id = ?", id).
		First(&booking).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFoundf("booking %s not found", id)
		}
		return nil, err
	}
	return &booking, nil
}

func (r *repository) GetForUpdate(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*Booking, error) {
	var booking Booking
	err := r.dbOr(tx).WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&booking).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFoundf("booking %s not found", id)
		}
		return nil, err
	}

	// Seats are loaded separately: FOR UPDATE cannot be combined with
	// the preload join.
	if err := r.dbOr(tx).WithContext(ctx).
		Where("booking_id = ?", id).
		Find(&booking.Seats).Error; err != nil {
		return nil, err
	}
	return &booking, nil
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
		Model(&Booking{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *repository) AttachOrderCode(ctx context.Context, id uuid.UUID, orderCode int64) error {
	result := r.db.WithContext(ctx).
		Model(&Booking{}).
		Where("id = ? AND order_code IS NULL", id).
		Update("order_code", orderCode)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperrors.Conflictf("booking %s already has an order code", id)
	}
	return nil
}

func (r *repository) ReservedSeatIDs(ctx context.Context, tripID uuid.UUID) ([]string, error) {
	var seatIDs []string
	err := r.db.WithContext(ctx).
		Table("booking_seats").
		Select("booking_seats.seat_id").
		Joins("JOIN bookings ON bookings.id = booking_seats.booking_id").
		Where("bookings.trip_id = ? AND bookings.status IN ?", tripID, []Status{StatusPending, StatusConfirmed}).
		Scan(&seatIDs).Error
	return seatIDs, err
}

func (r *repository) GetUserBookings(ctx context.Context, userID uuid.UUID, query BookingListQuery) ([]Booking, int64, error) {
	var bookings []Booking
	var totalCount int64

	// Set defaults
	if query.Page <= 0 {
		query.Page = 1
	}
	if query.Limit <= 0 {
		query.Limit = 10
	}

	baseQuery := r.db.WithContext(ctx).
		Model(&Booking{}).
		Where("user_id = ?", userID)

	if query.Status != "" {
		baseQuery = baseQuery.Where("status = ?", query.Status)
	}

	if err := baseQuery.Count(&totalCount).Error; err != nil {
		return nil, 0, err
	}

	offset := (query.Page - 1) * query.Limit
	err := baseQuery.
		Preload("Seats").
		Order("created_at DESC").
		Offset(offset).
		Limit(query.Limit).
		Find(&bookings).Error

	return bookings, totalCount, err
}

func (r *repository) Transaction(ctx context.Context, fn func(txRepo Repository, tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&repository{db: tx}, tx)
	})
}
