package tickets

import (
	"context"
	"time"

	"busline/internal/bookings"
	"busline/internal/notifications"
	"busline/internal/shared/apperrors"
	"busline/pkg/logger"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CancelledEvent is emitted after a ticket cancellation commits. The
// order code routes the refund to the booking's original payment.
type CancelledEvent struct {
	TicketID     uuid.UUID `json:"ticket_id"`
	BookingID    uuid.UUID `json:"booking_id"`
	OrderCode    int64     `json:"order_code"`
	RefundAmount float64   `json:"refund_amount"`
	Reason       string    `json:"reason"`
	UserID       uuid.UUID `json:"user_id"`
}

// EventPublisher publishes ticket lifecycle events. Satisfied by the
// saga bus adapter.
type EventPublisher interface {
	PublishTicketCancelled(ctx context.Context, event CancelledEvent) error
}

// BookingResolver resolves a booking's owner and attached order code.
// Satisfied by the bookings service.
type BookingResolver interface {
	OwnerAndOrder(ctx context.Context, bookingID uuid.UUID) (uuid.UUID, *int64, error)
}

// RefundCreator originates a refund against an original payment, keyed
// by ticket id for deduplication. Satisfied by the payments service.
type RefundCreator interface {
	CreateRefundForTicket(ctx context.Context, originalOrderCode int64, ticketID uuid.UUID, amount float64, reason string) error
}

type Service interface {
	// IssueForBookingTx creates one active ticket per booked seat
	// inside the caller's transaction.
	IssueForBookingTx(ctx context.Context, tx *gorm.DB, booking *bookings.Booking) error
	// Cancel moves an active ticket to cancelled on behalf of its
	// owner and emits a cancellation event for the refund flow.
	Cancel(ctx context.Context, userID, ticketID uuid.UUID, reason string) (*Ticket, error)
	// CancelForBookingTx cancels the booking's active tickets inside
	// the caller's transaction. Used by the admin cascade.
	CancelForBookingTx(ctx context.Context, tx *gorm.DB, bookingID uuid.UUID, note string) error
	ActiveSeatIDs(ctx context.Context, tripID uuid.UUID) ([]string, error)
	GetTicket(ctx context.Context, id uuid.UUID) (*Ticket, error)
	ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]Ticket, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]Ticket, error)
	// MarkUsedForTrip bulk-moves a completed trip's active tickets to
	// used and reports how many changed.
	MarkUsedForTrip(ctx context.Context, tripID uuid.UUID) (int64, error)
	// MarkExpiredForTrip bulk-expires a voided trip's active tickets,
	// notifies each affected user, and issues one aggregated refund
	// per affected booking. Safe to rerun.
	MarkExpiredForTrip(ctx context.Context, tripID uuid.UUID) (*ExpiryResult, error)
	SetBookingResolver(resolver BookingResolver)
}

type service struct {
	repo      Repository
	resolver  BookingResolver
	refunds   RefundCreator
	publisher EventPublisher
	notifier  notifications.Sender
	log       *logger.Logger
}

func NewService(repo Repository, refunds RefundCreator, publisher EventPublisher, notifier notifications.Sender) Service {
	return &service{
		repo:      repo,
		refunds:   refunds,
		publisher: publisher,
		notifier:  notifier,
		log:       logger.GetDefault(),
	}
}

// SetBookingResolver wires the bookings service after construction.
func (s *service) SetBookingResolver(resolver BookingResolver) {
	s.resolver = resolver
}

func (s *service) IssueForBookingTx(ctx context.Context, tx *gorm.DB, booking *bookings.Booking) error {
	tickets := make([]*Ticket, 0, len(booking.Seats))
	for _, seat := range booking.Seats {
		tickets = append(tickets, &Ticket{
			ID:        uuid.New(),
			BookingID: booking.ID,
			TripID:    booking.TripID,
			UserID:    booking.UserID,
			SeatID:    seat.SeatID,
			SeatCode:  seat.SeatCode,
			Price:     seat.Price,
			Status:    StatusActive,
		})
	}
	return s.repo.CreateBatch(ctx, tx, tickets)
}

func (s *service) Cancel(ctx context.Context, userID, ticketID uuid.UUID, reason string) (*Ticket, error) {
	var cancelled *Ticket

	err := s.repo.Transaction(ctx, func(txRepo Repository, tx *gorm.DB) error {
		ticket, err := txRepo.GetForUpdate(ctx, tx, ticketID)
		if err != nil {
			return err
		}

		// Non-owners are told the ticket does not exist
		if ticket.UserID != userID {
			return apperrors.NotFoundf("ticket %s not found", ticketID)
		}
		if !ticket.Status.CanTransitionTo(StatusCancelled) {
			return apperrors.Conflictf("ticket %s cannot be cancelled from status %s", ticketID, ticket.Status)
		}

		now := time.Now().UTC()
		if err := txRepo.UpdateStatus(ctx, tx, ticketID, StatusCancelled, reason, &now); err != nil {
			return err
		}

		ticket.Status = StatusCancelled
		ticket.CancelNote = reason
		ticket.CancelledAt = &now
		cancelled = ticket
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.LogTicketCancelled(ctx, ticketID.String(), userID.String(), reason)
	s.emitCancelled(ctx, cancelled)

	return cancelled, nil
}

// emitCancelled publishes the cancellation event that drives refund
// creation. The cancellation has already committed, so a publish
// failure is logged for reconciliation instead of propagating.
func (s *service) emitCancelled(ctx context.Context, ticket *Ticket) {
	_, orderCode, err := s.resolver.OwnerAndOrder(ctx, ticket.BookingID)
	if err != nil || orderCode == nil {
		s.log.ErrorWithContext(ctx, "cancelled ticket has no resolvable order code",
			"ticket_id", ticket.ID.String(),
			"booking_id", ticket.BookingID.String(),
			"requires_reconciliation", true)
		return
	}

	event := CancelledEvent{
		TicketID:     ticket.ID,
		BookingID:    ticket.BookingID,
		OrderCode:    *orderCode,
		RefundAmount: ticket.Price,
		Reason:       ticket.CancelNote,
		UserID:       ticket.UserID,
	}
	if err := s.publisher.PublishTicketCancelled(ctx, event); err != nil {
		s.log.ErrorWithContext(ctx, "failed to publish ticket cancelled event",
			"ticket_id", ticket.ID.String(),
			"order_code", *orderCode,
			"error", err.Error(),
			"requires_reconciliation", true)
	}
}

func (s *service) CancelForBookingTx(ctx context.Context, tx *gorm.DB, bookingID uuid.UUID, note string) error {
	return s.repo.CancelForBooking(ctx, tx, bookingID, note)
}

func (s *service) ActiveSeatIDs(ctx context.Context, tripID uuid.UUID) ([]string, error) {
	return s.repo.ActiveSeatIDs(ctx, tripID)
}

func (s *service) GetTicket(ctx context.Context, id uuid.UUID) (*Ticket, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *service) ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]Ticket, error) {
	return s.repo.ListByBooking(ctx, bookingID)
}

func (s *service) ListByUser(ctx context.Context, userID uuid.UUID) ([]Ticket, error) {
	return s.repo.ListByUser(ctx, userID)
}

func (s *service) MarkUsedForTrip(ctx context.Context, tripID uuid.UUID) (int64, error) {
	var updated int64
	err := s.repo.Transaction(ctx, func(txRepo Repository, tx *gorm.DB) error {
		var err error
		updated, err = txRepo.BulkTransitionForTrip(ctx, tx, tripID, StatusActive, StatusUsed, "")
		return err
	})
	if err != nil {
		return 0, err
	}

	s.log.InfoWithContext(ctx, "trip tickets marked used",
		"trip_id", tripID.String(), "tickets", updated)
	return updated, nil
}

// bookingGroup aggregates a booking's expired tickets for one refund
type bookingGroup struct {
	userID      uuid.UUID
	totalRefund float64
	// the oldest ticket keys the refund so reruns and event replays
	// cannot create a duplicate
	dedupTicket uuid.UUID
}

func (s *service) MarkExpiredForTrip(ctx context.Context, tripID uuid.UUID) (*ExpiryResult, error) {
	result := &ExpiryResult{}
	groups := make(map[uuid.UUID]*bookingGroup)

	err := s.repo.Transaction(ctx, func(txRepo Repository, tx *gorm.DB) error {
		// Only ACTIVE tickets participate; EXPIRED ones from an earlier
		// run are skipped, which makes retries safe.
		active, err := txRepo.ActiveByTripForUpdate(ctx, tx, tripID)
		if err != nil {
			return err
		}
		if len(active) == 0 {
			return nil
		}

		for _, t := range active {
			group, ok := groups[t.BookingID]
			if !ok {
				group = &bookingGroup{userID: t.UserID, dedupTicket: t.ID}
				groups[t.BookingID] = group
			}
			group.totalRefund += t.Price
		}

		expired, err := txRepo.BulkTransitionForTrip(ctx, tx, tripID, StatusActive, StatusExpired, "trip expired")
		if err != nil {
			return err
		}
		result.TicketsExpired = int(expired)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(groups) == 0 {
		return result, nil
	}
	result.BookingsTouched = len(groups)

	// Users hear about the expiry before refunds are originated
	result.UsersNotified = s.notifyExpiredUsers(ctx, groups)

	for bookingID, group := range groups {
		if err := s.refundExpiredBooking(ctx, bookingID, group); err != nil {
			result.RefundsFailed++
			continue
		}
		result.RefundsCreated++
	}

	s.log.InfoWithContext(ctx, "trip tickets expired",
		"trip_id", tripID.String(),
		"tickets_expired", result.TicketsExpired,
		"refunds_created", result.RefundsCreated,
		"refunds_failed", result.RefundsFailed)
	return result, nil
}

func (s *service) notifyExpiredUsers(ctx context.Context, groups map[uuid.UUID]*bookingGroup) int {
	seen := make(map[uuid.UUID]bool)
	notified := 0
	for _, group := range groups {
		if seen[group.userID] {
			continue
		}
		seen[group.userID] = true

		notification := notifications.NewNotification(
			group.userID,
			"Trip cancelled",
			"Your trip has been cancelled. A refund for your tickets is being processed.",
			"/bookings",
		)
		if err := s.notifier.Send(ctx, notification); err != nil {
			s.log.ErrorWithContext(ctx, "failed to notify user of trip expiry",
				"user_id", group.userID.String(), "error", err.Error())
			continue
		}
		notified++
	}
	return notified
}

func (s *service) refundExpiredBooking(ctx context.Context, bookingID uuid.UUID, group *bookingGroup) error {
	_, orderCode, err := s.resolver.OwnerAndOrder(ctx, bookingID)
	if err != nil || orderCode == nil {
		s.log.ErrorWithContext(ctx, "expired booking has no resolvable order code",
			"booking_id", bookingID.String(),
			"requires_reconciliation", true)
		if err != nil {
			return err
		}
		return apperrors.Validationf("booking %s has no order code", bookingID)
	}

	err = s.refunds.CreateRefundForTicket(ctx, *orderCode, group.dedupTicket, group.totalRefund, "trip expired")
	if err != nil {
		s.log.ErrorWithContext(ctx, "failed to create expiry refund",
			"booking_id", bookingID.String(),
			"order_code", *orderCode,
			"error", err.Error(),
			"requires_reconciliation", true)
		return err
	}
	return nil
}
