package payments

import (
	"context"
	"time"

	"busline/internal/notifications"
	"busline/internal/shared/apperrors"
	"busline/pkg/logger"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CompletedReaction is invoked inside the webhook-verification
// transaction when a payment first reaches COMPLETED. The saga
// coordinator implements it: booking confirmation and ticket issuance
// become atomic with the payment transition. Implementations must not
// return errors for failures they can compensate themselves.
type CompletedReaction interface {
	PaymentCompleted(ctx context.Context, tx *gorm.DB, bookingID uuid.UUID, orderCode int64) error
}

// EventPublisher announces a completed payment to out-of-transaction
// consumers (notifications, external processes). Publishing happens
// after commit and is best-effort.
type EventPublisher interface {
	PublishPaymentCompleted(ctx context.Context, bookingID uuid.UUID, orderCode int64) error
}

// Service interface defines the contract for payment business logic
type Service interface {
	// CreateLink generates an order code, creates the hosted checkout
	// link and persists the PENDING payment. Returns the order code and
	// checkout URL. A gateway failure persists nothing.
	CreateLink(ctx context.Context, bookingID uuid.UUID, amount float64, description string) (int64, string, error)

	// VerifyWebhook validates and applies a gateway callback. Replays
	// on an already-settled payment succeed without further effect.
	VerifyWebhook(ctx context.Context, payload WebhookPayload) error

	// CancelLink voids a pending payment; admin action, gateway failure
	// is fatal and persists nothing.
	CancelLink(ctx context.Context, orderCode int64, reason string) error

	// CreateRefund opens a PROCESSING refund against a completed
	// original payment.
	CreateRefund(ctx context.Context, input CreateRefundInput) (*Payment, error)

	// CreateRefundForTicket is the event-driven form of CreateRefund,
	// keyed by ticket id for deduplication under replays.
	CreateRefundForTicket(ctx context.Context, originalOrderCode int64, ticketID uuid.UUID, amount float64, reason string) error

	// ProcessRefund resolves a PROCESSING refund with transfer proof.
	ProcessRefund(ctx context.Context, refundOrderCode int64, req ProcessRefundRequest) (*Payment, error)

	GetByOrderCode(ctx context.Context, orderCode int64) (*Payment, error)
	GetRefundsForPayment(ctx context.Context, originalOrderCode int64) ([]Payment, error)
	ListRefunds(ctx context.Context, status Status, limit, offset int) ([]Payment, int64, error)

	// SetCompletedReaction wires the saga coordinator in after both
	// sides are constructed.
	SetCompletedReaction(reaction CompletedReaction)
}

// ServiceConfig carries the gateway-facing settings the service needs
type ServiceConfig struct {
	ChecksumKey string
	ReturnURL   string
	CancelURL   string
}

type service struct {
	repo      Repository
	gateway   Gateway
	cfg       ServiceConfig
	reaction  CompletedReaction
	publisher EventPublisher
	notifier  notifications.Sender
	log       *logger.Logger
}

// NewService creates a new payment service instance
func NewService(repo Repository, gateway Gateway, cfg ServiceConfig, publisher EventPublisher, notifier notifications.Sender) Service {
	return &service{
		repo:      repo,
		gateway:   gateway,
		cfg:       cfg,
		publisher: publisher,
		notifier:  notifier,
		log:       logger.GetDefault(),
	}
}

func (s *service) SetCompletedReaction(reaction CompletedReaction) {
	s.reaction = reaction
}

func (s *service) CreateLink(ctx context.Context, bookingID uuid.UUID, amount float64, description string) (int64, string, error) {
	if amount <= 0 {
		return 0, "", apperrors.Validationf("payment amount must be positive")
	}

	orderCode := GenerateOrderCode()

	link, err := s.gateway.CreateLink(ctx, CreateLinkRequest{
		OrderCode:   orderCode,
		Amount:      amount,
		Description: description,
		ReturnURL:   s.cfg.ReturnURL,
		CancelURL:   s.cfg.CancelURL,
	})
	if err != nil {
		return 0, "", apperrors.Gateway("failed to create checkout link", err)
	}

	payment := &Payment{
		OrderCode:   orderCode,
		BookingID:   &bookingID,
		Amount:      amount,
		Status:      StatusPending,
		Description: description,
		CheckoutURL: link.CheckoutURL,
	}
	if err := s.repo.Create(ctx, payment); err != nil {
		return 0, "", err
	}

	return orderCode, link.CheckoutURL, nil
}

func (s *service) VerifyWebhook(ctx context.Context, payload WebhookPayload) error {
	if !VerifyWebhookSignature(s.cfg.ChecksumKey, payload) {
		return apperrors.Validationf("invalid webhook signature")
	}
	if payload.Data.OrderCode == 0 {
		return apperrors.Validationf("webhook payload missing order code")
	}

	var completed *Payment

	err := s.repo.Transaction(ctx, func(txRepo Repository, tx *gorm.DB) error {
		payment, err := txRepo.GetForUpdate(ctx, payload.Data.OrderCode)
		if err != nil {
			return err
		}
		if payment.IsRefund {
			return apperrors.Conflictf("order code %d belongs to a refund", payment.OrderCode)
		}

		// Idempotency guard: the gateway delivers at least once. A
		// replay on a payment that already left PENDING is a no-op,
		// not an error, and must not re-emit the completion event.
		if payment.Status != StatusPending {
			return nil
		}

		if payload.Data.Code != webhookSuccessCode {
			payment.Status = StatusFailed
			payment.AdminNote = payload.Data.Desc
			return txRepo.Save(ctx, payment)
		}

		payment.Status = StatusCompleted
		if err := txRepo.Save(ctx, payment); err != nil {
			return err
		}

		if s.reaction != nil && payment.BookingID != nil {
			if err := s.reaction.PaymentCompleted(ctx, tx, *payment.BookingID, payment.OrderCode); err != nil {
				return err
			}
		}

		completed = payment
		return nil
	})
	if err != nil {
		return err
	}

	if completed != nil {
		s.log.LogPaymentCompleted(ctx, completed.OrderCode, completed.Amount)
		if s.publisher != nil && completed.BookingID != nil {
			if err := s.publisher.PublishPaymentCompleted(ctx, *completed.BookingID, completed.OrderCode); err != nil {
				s.log.ErrorWithContext(ctx, "Failed to publish payment completed event",
					"order_code", completed.OrderCode,
					"error", err.Error())
			}
		}
	}

	return nil
}

func (s *service) CancelLink(ctx context.Context, orderCode int64, reason string) error {
	payment, err := s.repo.GetByOrderCode(ctx, orderCode)
	if err != nil {
		return err
	}
	if payment.IsRefund {
		return apperrors.Validationf("order code %d belongs to a refund; cancel it through refund processing", orderCode)
	}
	if !payment.IsPending() {
		return apperrors.Conflictf("payment %d is %s, only pending payments can be cancelled", orderCode, payment.Status)
	}

	// Admin action: a gateway failure fails the whole operation and
	// persists nothing.
	if err := s.gateway.CancelLink(ctx, orderCode, reason); err != nil {
		return apperrors.Gateway("failed to cancel checkout link", err)
	}

	ok, err := s.repo.UpdateStatusIfPending(ctx, orderCode, StatusCancelled, reason)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.Conflictf("payment %d changed state concurrently, re-read and retry", orderCode)
	}
	return nil
}

func (s *service) CreateRefund(ctx context.Context, input CreateRefundInput) (*Payment, error) {
	// Replay safety for ticket-driven refunds: the cancellation event
	// may be delivered more than once.
	if input.TicketID != nil {
		if existing, err := s.repo.FindRefundByTicketID(ctx, *input.TicketID); err == nil {
			return existing, nil
		}
	}

	original, err := s.repo.GetByOrderCode(ctx, input.OriginalOrderCode)
	if err != nil {
		return nil, err
	}
	if original.IsRefund {
		return nil, apperrors.Validationf("payment %d is a refund and cannot itself be refunded", original.OrderCode)
	}
	if !original.IsCompleted() {
		return nil, apperrors.Validationf("payment %d is %s, only completed payments are refundable", original.OrderCode, original.Status)
	}
	if input.Amount <= 0 {
		return nil, apperrors.Validationf("refund amount must be positive")
	}
	if input.Amount > original.Amount {
		return nil, apperrors.Validationf("refund amount %.0f exceeds original payment amount %.0f", input.Amount, original.Amount)
	}

	now := time.Now().UTC()
	refund := &Payment{
		OrderCode:         GenerateOrderCode(),
		BookingID:         original.BookingID,
		Amount:            input.Amount,
		Status:            StatusProcessing,
		IsRefund:          true,
		OriginalOrderCode: &original.OrderCode,
		RefundTicketID:    input.TicketID,
		RefundAmount:      &input.Amount,
		RefundReason:      input.Reason,
		RefundRequestedAt: &now,
	}

	if err := s.repo.Create(ctx, refund); err != nil {
		// The partial unique index on refund_ticket_id resolves the
		// race between two replayed cancellation events; surface the
		// winner instead of the conflict.
		if input.TicketID != nil && apperrors.IsKind(err, apperrors.KindConflict) {
			if existing, findErr := s.repo.FindRefundByTicketID(ctx, *input.TicketID); findErr == nil {
				return existing, nil
			}
		}
		return nil, err
	}

	return refund, nil
}

func (s *service) CreateRefundForTicket(ctx context.Context, originalOrderCode int64, ticketID uuid.UUID, amount float64, reason string) error {
	_, err := s.CreateRefund(ctx, CreateRefundInput{
		OriginalOrderCode: originalOrderCode,
		Amount:            amount,
		Reason:            reason,
		TicketID:          &ticketID,
	})
	return err
}

func (s *service) ProcessRefund(ctx context.Context, refundOrderCode int64, req ProcessRefundRequest) (*Payment, error) {
	var resolved *Payment

	err := s.repo.Transaction(ctx, func(txRepo Repository, _ *gorm.DB) error {
		refund, err := txRepo.GetForUpdate(ctx, refundOrderCode)
		if err != nil {
			return err
		}
		if !refund.IsRefund {
			return apperrors.Validationf("payment %d is not a refund", refundOrderCode)
		}
		if !refund.IsProcessing() {
			return apperrors.Conflictf("refund %d is %s, only processing refunds can be resolved", refundOrderCode, refund.Status)
		}

		now := time.Now().UTC()
		refund.Status = StatusResolved
		refund.ProofImageURL = req.ProofImageURL
		refund.ProofImageID = req.ProofImageID
		refund.RefundProcessedAt = &now
		if req.AdminNote != "" {
			refund.AdminNote = req.AdminNote
		}

		if err := txRepo.Save(ctx, refund); err != nil {
			return err
		}
		resolved = refund
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifyRefundResolved(ctx, resolved)
	return resolved, nil
}

// notifyRefundResolved informs the user their refund went through. The
// refund stays resolved even when this fails.
func (s *service) notifyRefundResolved(ctx context.Context, refund *Payment) {
	if s.notifier == nil || refund.BookingID == nil {
		return
	}

	userID, err := s.repo.UserIDForBooking(ctx, *refund.BookingID)
	if err != nil {
		s.log.ErrorWithContext(ctx, "Failed to resolve user for refund notification",
			"refund_order_code", refund.OrderCode,
			"error", err.Error())
		return
	}

	notification := notifications.NewNotification(
		userID,
		"Refund processed",
		"Your refund has been transferred. Check the attached proof for details.",
		refund.ProofImageURL,
	)
	if err := s.notifier.Send(ctx, notification); err != nil {
		s.log.ErrorWithContext(ctx, "Failed to send refund notification",
			"refund_order_code", refund.OrderCode,
			"user_id", userID.String(),
			"error", err.Error())
	}
}

func (s *service) GetByOrderCode(ctx context.Context, orderCode int64) (*Payment, error) {
	return s.repo.GetByOrderCode(ctx, orderCode)
}

func (s *service) GetRefundsForPayment(ctx context.Context, originalOrderCode int64) ([]Payment, error) {
	return s.repo.RefundsForOriginal(ctx, originalOrderCode)
}

func (s *service) ListRefunds(ctx context.Context, status Status, limit, offset int) ([]Payment, int64, error) {
	return s.repo.ListRefunds(ctx, status, limit, offset)
}
