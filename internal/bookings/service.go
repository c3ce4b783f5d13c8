package bookings

import (
	"context"
	"fmt"
	"strings"
	"time"

	"busline/internal/shared/apperrors"
	"busline/internal/trips"
	"busline/pkg/logger"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SeatAvailability reports seat ids already held by issued tickets on a
// trip. Satisfied by the tickets service.
type SeatAvailability interface {
	ActiveSeatIDs(ctx context.Context, tripID uuid.UUID) ([]string, error)
}

// PaymentLinker creates a hosted checkout link for a booking and
// returns the order code plus checkout URL. Satisfied by the payments
// service.
type PaymentLinker interface {
	CreateLink(ctx context.Context, bookingID uuid.UUID, amount float64, description string) (int64, string, error)
}

// TicketCanceller cascades an admin cancellation onto the booking's
// tickets inside the same transaction. Satisfied by the tickets
// service.
type TicketCanceller interface {
	CancelForBookingTx(ctx context.Context, tx *gorm.DB, bookingID uuid.UUID, note string) error
}

// TripGetter narrows the trips service to what bookings needs.
type TripGetter interface {
	GetTrip(ctx context.Context, id uuid.UUID) (*trips.Trip, error)
}

type Service interface {
	Create(ctx context.Context, userID uuid.UUID, req CreateBookingRequest) (*BookingResponse, error)
	GetBooking(ctx context.Context, id uuid.UUID) (*Booking, error)
	GetUserBookings(ctx context.Context, userID uuid.UUID, query BookingListQuery) ([]Booking, int64, error)
	// OwnerAndOrder resolves the booking's owner and attached order
	// code. Used by the cancellation flow to authorize and to route
	// refunds.
	OwnerAndOrder(ctx context.Context, bookingID uuid.UUID) (uuid.UUID, *int64, error)
	// ConfirmTx moves a pending booking to confirmed inside the caller's
	// transaction and returns it with seats loaded.
	ConfirmTx(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*Booking, error)
	// CancelTx cancels a booking inside the caller's transaction.
	// Cancelling an already cancelled booking is a no-op.
	CancelTx(ctx context.Context, tx *gorm.DB, id uuid.UUID, reason string) error
	AdminSetStatus(ctx context.Context, id uuid.UUID, status Status, note string) error
	// SetPaymentLinker and SetTicketCanceller wire mutually dependent
	// services after construction.
	SetPaymentLinker(linker PaymentLinker)
	SetTicketCanceller(tc TicketCanceller)
}

type service struct {
	repo            Repository
	tripGetter      TripGetter
	seats           SeatAvailability
	locker          TripLocker
	linker          PaymentLinker
	ticketCanceller TicketCanceller
	defaultPrice    float64
	log             *logger.Logger
}

func NewService(repo Repository, tripGetter TripGetter, seats SeatAvailability, locker TripLocker, defaultPrice float64) Service {
	return &service{
		repo:         repo,
		tripGetter:   tripGetter,
		seats:        seats,
		locker:       locker,
		defaultPrice: defaultPrice,
		log:          logger.GetDefault(),
	}
}

// SetPaymentLinker wires the payments service after construction. The
// two services reference each other, so one side is attached late.
func (s *service) SetPaymentLinker(linker PaymentLinker) {
	s.linker = linker
}

// SetTicketCanceller wires the tickets service after construction.
func (s *service) SetTicketCanceller(tc TicketCanceller) {
	s.ticketCanceller = tc
}

func (s *service) Create(ctx context.Context, userID uuid.UUID, req CreateBookingRequest) (*BookingResponse, error) {
	tripID, err := uuid.Parse(req.TripID)
	if err != nil {
		return nil, apperrors.Validationf("invalid trip id")
	}

	if err := validateSeatRequests(req.Seats); err != nil {
		return nil, err
	}

	trip, err := s.tripGetter.GetTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}

	totalPrice, bookingSeats, err := PriceSeats(trip, req.Seats, s.defaultPrice)
	if err != nil {
		return nil, err
	}

	// Reservation for a trip is serialized: the availability check and
	// the booking insert happen under the per-trip lock.
	unlock, err := s.locker.Lock(ctx, tripID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	taken, err := s.takenSeatIDs(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if conflicts := seatConflicts(req.Seats, taken); len(conflicts) > 0 {
		return nil, apperrors.Conflictf("seats already taken: %s", strings.Join(conflicts, ", "))
	}

	booking := &Booking{
		ID:         uuid.New(),
		UserID:     userID,
		TripID:     tripID,
		TotalPrice: totalPrice,
		Status:     StatusPending,
		Seats:      bookingSeats,
	}
	if err := s.repo.Create(ctx, booking); err != nil {
		return nil, err
	}

	s.log.LogBookingCreated(ctx, booking.ID.String(), tripID.String(), userID.String())

	// Checkout link creation is best effort. The booking stands even
	// when the gateway is down; the client can retry payment later.
	checkoutURL := s.attachCheckoutLink(ctx, booking, trip)

	resp := booking.ToResponse(checkoutURL)
	return &resp, nil
}

func (s *service) attachCheckoutLink(ctx context.Context, booking *Booking, trip *trips.Trip) string {
	if s.linker == nil {
		return ""
	}

	description := fmt.Sprintf("%s - %d seat(s)", trip.Name, len(booking.Seats))
	orderCode, checkoutURL, err := s.linker.CreateLink(ctx, booking.ID, booking.TotalPrice, description)
	if err != nil {
		s.log.ErrorWithContext(ctx, "checkout link creation failed",
			"booking_id", booking.ID.String(), "error", err.Error())
		return ""
	}

	if err := s.repo.AttachOrderCode(ctx, booking.ID, orderCode); err != nil {
		s.log.ErrorWithContext(ctx, "failed to attach order code",
			"booking_id", booking.ID.String(), "order_code", orderCode, "error", err.Error())
		return ""
	}
	booking.OrderCode = &orderCode
	return checkoutURL
}

func (s *service) takenSeatIDs(ctx context.Context, tripID uuid.UUID) (map[string]bool, error) {
	taken := make(map[string]bool)

	active, err := s.seats.ActiveSeatIDs(ctx, tripID)
	if err != nil {
		return nil, err
	}
	for _, id := range active {
		taken[id] = true
	}

	// Seats held by live bookings count as taken even before payment
	// completes, so two buyers cannot both reach checkout for the same
	// seat.
	reserved, err := s.repo.ReservedSeatIDs(ctx, tripID)
	if err != nil {
		return nil, err
	}
	for _, id := range reserved {
		taken[id] = true
	}
	return taken, nil
}

func validateSeatRequests(seats []SeatRequest) error {
	seen := make(map[string]bool, len(seats))
	for _, seat := range seats {
		if seen[seat.SeatID] {
			return apperrors.Validationf("duplicate seat in request: %s", seat.SeatID)
		}
		seen[seat.SeatID] = true
	}
	return nil
}

func seatConflicts(requested []SeatRequest, taken map[string]bool) []string {
	var conflicts []string
	for _, seat := range requested {
		if taken[seat.SeatID] {
			conflicts = append(conflicts, seat.SeatID)
		}
	}
	return conflicts
}

func (s *service) GetBooking(ctx context.Context, id uuid.UUID) (*Booking, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *service) GetUserBookings(ctx context.Context, userID uuid.UUID, query BookingListQuery) ([]Booking, int64, error) {
	return s.repo.GetUserBookings(ctx, userID, query)
}

func (s *service) OwnerAndOrder(ctx context.Context, bookingID uuid.UUID) (uuid.UUID, *int64, error) {
	booking, err := s.repo.GetByID(ctx, bookingID)
	if err != nil {
		return uuid.Nil, nil, err
	}
	return booking.UserID, booking.OrderCode, nil
}

func (s *service) ConfirmTx(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*Booking, error) {
	booking, err := s.repo.GetForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if !booking.Status.CanTransitionTo(StatusConfirmed) {
		return nil, apperrors.Conflictf("booking %s cannot be confirmed from status %s", id, booking.Status)
	}

	if err := s.repo.UpdateStatus(ctx, tx, id, StatusConfirmed, "", nil); err != nil {
		return nil, err
	}
	booking.Status = StatusConfirmed
	return booking, nil
}

func (s *service) CancelTx(ctx context.Context, tx *gorm.DB, id uuid.UUID, reason string) error {
	booking, err := s.repo.GetForUpdate(ctx, tx, id)
	if err != nil {
		return err
	}

	if booking.Status == StatusCancelled {
		return nil
	}
	if !booking.Status.CanTransitionTo(StatusCancelled) {
		return apperrors.Conflictf("booking %s cannot be cancelled from status %s", id, booking.Status)
	}

	now := time.Now().UTC()
	return s.repo.UpdateStatus(ctx, tx, id, StatusCancelled, reason, &now)
}

func (s *service) AdminSetStatus(ctx context.Context, id uuid.UUID, status Status, note string) error {
	if !status.IsValid() {
		return apperrors.Validationf("invalid booking status: %s", status)
	}

	return s.repo.Transaction(ctx, func(txRepo Repository, tx *gorm.DB) error {
		booking, err := txRepo.GetForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}

		if booking.Status == status {
			return nil
		}
		if !booking.Status.CanTransitionTo(status) {
			return apperrors.Conflictf("booking %s cannot move from %s to %s", id, booking.Status, status)
		}

		var cancelledAt *time.Time
		if status == StatusCancelled {
			now := time.Now().UTC()
			cancelledAt = &now
		}
		if err := txRepo.UpdateStatus(ctx, tx, id, status, note, cancelledAt); err != nil {
			return err
		}

		// Cancelling a booking invalidates its issued tickets.
		if status == StatusCancelled && s.ticketCanceller != nil {
			if err := s.ticketCanceller.CancelForBookingTx(ctx, tx, id, note); err != nil {
				return err
			}
		}
		return nil
	})
}
