package payments

import (
	"context"
	"errors"

	"busline/internal/shared/apperrors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository interface {
	Create(ctx context.Context, payment *Payment) error
	GetByOrderCode(ctx context.Context, orderCode int64) (*Payment, error)
	// GetForUpdate locks the payment row; only meaningful inside Transaction.
	GetForUpdate(ctx context.Context, orderCode int64) (*Payment, error)
	Save(ctx context.Context, payment *Payment) error
	// UpdateStatusIfPending transitions a non-refund payment out of
	// PENDING with an optimistic status guard. Returns false when the
	// payment was no longer pending.
	UpdateStatusIfPending(ctx context.Context, orderCode int64, status Status, adminNote string) (bool, error)
	FindRefundByTicketID(ctx context.Context, ticketID uuid.UUID) (*Payment, error)
	RefundsForOriginal(ctx context.Context, originalOrderCode int64) ([]Payment, error)
	ListRefunds(ctx context.Context, status Status, limit, offset int) ([]Payment, int64, error)
	UserIDForBooking(ctx context.Context, bookingID uuid.UUID) (uuid.UUID, error)
	// Transaction runs fn inside a database transaction. The callback
	// receives a repository bound to the transaction plus the raw
	// transaction handle for cross-package writes by the saga.
	Transaction(ctx context.Context, fn func(txRepo Repository, tx *gorm.DB) error) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, payment *Payment) error {
	err := r.db.WithContext(ctx).Create(payment).Error
	if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperrors.Conflictf("order code %d already exists", payment.OrderCode)
	}
	return err
}

func (r *repository) GetByOrderCode(ctx context.Context, orderCode int64) (*Payment, error) {
	var payment Payment
	err := r.db.WithContext(ctx).Where("order_code = ?", orderCode).First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFoundf("payment %d not found", orderCode)
		}
		return nil, err
	}
	return &payment, nil
}

func (r *repository) GetForUpdate(ctx context.Context, orderCode int64) (*Payment, error) {
	var payment Payment
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("order_code = ?", orderCode).
		First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFoundf("payment %d not found", orderCode)
		}
		return nil, err
	}
	return &payment, nil
}

func (r *repository) Save(ctx context.Context, payment *Payment) error {
	return r.db.WithContext(ctx).Save(payment).Error
}

func (r *repository) UpdateStatusIfPending(ctx context.Context, orderCode int64, status Status, adminNote string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&Payment{}).
		Where("order_code = ? AND status = ? AND is_refund = false", orderCode, StatusPending).
		Updates(map[string]interface{}{
			"status":     status,
			"admin_note": adminNote,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) FindRefundByTicketID(ctx context.Context, ticketID uuid.UUID) (*Payment, error) {
	var payment Payment
	err := r.db.WithContext(ctx).
		Where("is_refund = true AND refund_ticket_id = ?", ticketID).
		First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFoundf("no refund for ticket %s", ticketID)
		}
		return nil, err
	}
	return &payment, nil
}

func (r *repository) RefundsForOriginal(ctx context.Context, originalOrderCode int64) ([]Payment, error) {
	var refunds []Payment
	err := r.db.WithContext(ctx).
		Where("is_refund = true AND original_order_code = ?", originalOrderCode).
		Order("created_at ASC").
		Find(&refunds).Error
	return refunds, err
}

func (r *repository) ListRefunds(ctx context.Context, status Status, limit, offset int) ([]Payment, int64, error) {
	var refunds []Payment
	var totalCount int64

	if limit <= 0 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}

	baseQuery := r.db.WithContext(ctx).Model(&Payment{}).Where("is_refund = true")
	if status != "" {
		baseQuery = baseQuery.Where("status = ?", status)
	}

	if err := baseQuery.Count(&totalCount).Error; err != nil {
		return nil, 0, err
	}

	err := baseQuery.
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&refunds).Error

	return refunds, totalCount, err
}

func (r *repository) UserIDForBooking(ctx context.Context, bookingID uuid.UUID) (uuid.UUID, error) {
	var userID uuid.UUID
	err := r.db.WithContext(ctx).
		Table("bookings").
		Select("user_id").
		Where("id = ?", bookingID).
		Scan(&userID).Error
	if err != nil {
		return uuid.Nil, err
	}
	if userID == uuid.Nil {
		return uuid.Nil, apperrors.NotFoundf("booking %s not found", bookingID)
	}
	return userID, nil
}

func (r *repository) Transaction(ctx context.Context, fn func(txRepo Repository, tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&repository{db: tx}, tx)
	})
}
