package bookings

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"busline/internal/shared/apperrors"
	"busline/internal/trips"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// mockRepository is an in-memory stand-in for the bookings repository
type mockRepository struct {
	mu       sync.Mutex
	bookings map[uuid.UUID]*Booking
}

func newMockRepository() *mockRepository {
	return &mockRepository{bookings: make(map[uuid.UUID]*Booking)}
}

func (m *mockRepository) Create(ctx context.Context, booking *Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bookings[booking.ID] = booking
	return nil
}

func (m *mockRepository) GetByID(ctx context.Context, id uuid.UUID) (*Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	booking, ok := m.bookings[id]
	if !ok {
		return nil, apperrors.NotFoundf("booking %s not found", id)
	}
	return booking, nil
}

func (m *mockRepository) GetForUpdate(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*Booking, error) {
	return m.GetByID(ctx, id)
}

func (m *mockRepository) UpdateStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, status Status, cancelNote string, cancelledAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	booking, ok := m.bookings[id]
	if !ok {
		return apperrors.NotFoundf("booking %s not found", id)
	}
	booking.Status = status
	if cancelNote != "" {
		booking.CancelNote = cancelNote
	}
	booking.CancelledAt = cancelledAt
	return nil
}

func (m *mockRepository) AttachOrderCode(ctx context.Context, id uuid.UUID, orderCode int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	booking, ok := m.bookings[id]
	if !ok {
		return apperrors.NotFoundf("booking %s not found", id)
	}
	if booking.OrderCode != nil {
		return apperrors.Conflictf("booking %s already has an order code", id)
	}
	booking.OrderCode = &orderCode
	return nil
}

func (m *mockRepository) ReservedSeatIDs(ctx context.Context, tripID uuid.UUID) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var seatIDs []string
	for _, b := range m.bookings {
		if b.TripID != tripID || (b.Status != StatusPending && b.Status != StatusConfirmed) {
			continue
		}
		for _, seat := range b.Seats {
			seatIDs = append(seatIDs, seat.SeatID)
		}
	}
	return seatIDs, nil
}

func (m *mockRepository) GetUserBookings(ctx context.Context, userID uuid.UUID, query BookingListQuery) ([]Booking, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []Booking
	for _, b := range m.bookings {
		if b.UserID == userID {
			result = append(result, *b)
		}
	}
	return result, int64(len(result)), nil
}

func (m *mockRepository) Transaction(ctx context.Context, fn func(txRepo Repository, tx *gorm.DB) error) error {
	return fn(m, nil)
}

type mockTripGetter struct {
	trip *trips.Trip
	err  error
}

func (m *mockTripGetter) GetTrip(ctx context.Context, id uuid.UUID) (*trips.Trip, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.trip, nil
}

type mockSeatAvailability struct {
	active []string
}

func (m *mockSeatAvailability) ActiveSeatIDs(ctx context.Context, tripID uuid.UUID) ([]string, error) {
	return m.active, nil
}

type mockPaymentLinker struct {
	mu        sync.Mutex
	orderCode int64
	err       error
	calls     int
}

func (m *mockPaymentLinker) CreateLink(ctx context.Context, bookingID uuid.UUID, amount float64, description string) (int64, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return 0, "", m.err
	}
	// Each booking gets its own code; reuse would trip the unique index
	m.orderCode++
	return m.orderCode, "https://pay.example.com/checkout/abc", nil
}

type mockTicketCanceller struct {
	calls int
}

func (m *mockTicketCanceller) CancelForBookingTx(ctx context.Context, tx *gorm.DB, bookingID uuid.UUID, note string) error {
	m.calls++
	return nil
}

func testTrip() *trips.Trip {
	return &trips.Trip{
		ID:         uuid.New(),
		Name:       "Hanoi - Da Nang",
		Status:     "SCHEDULED",
		SeatPrices: trips.SeatPriceMap{"A1": 100000, "A2": 100000, "B1": 120000},
	}
}

type serviceDeps struct {
	repo    *mockRepository
	seats   *mockSeatAvailability
	linker  *mockPaymentLinker
	tickets *mockTicketCanceller
}

func newTestService(trip *trips.Trip) (Service, *serviceDeps) {
	deps := &serviceDeps{
		repo:    newMockRepository(),
		seats:   &mockSeatAvailability{},
		linker:  &mockPaymentLinker{orderCode: 424242},
		tickets: &mockTicketCanceller{},
	}
	svc := NewService(deps.repo, &mockTripGetter{trip: trip}, deps.seats, NewLocalTripLocker(), 100000)
	svc.SetPaymentLinker(deps.linker)
	svc.SetTicketCanceller(deps.tickets)
	return svc, deps
}

func TestCreateBooking(t *testing.T) {
	trip := testTrip()
	userID := uuid.New()

	t.Run("creates pending booking with checkout link", func(t *testing.T) {
		svc, deps := newTestService(trip)

		resp, err := svc.Create(context.Background(), userID, CreateBookingRequest{
			TripID: trip.ID.String(),
			Seats: []SeatRequest{
				{SeatID: "A1", SeatCode: "A1"},
				{SeatID: "B1", SeatCode: "B1"},
			},
		})
		require.NoError(t, err)

		assert.Equal(t, string(StatusPending), resp.Status)
		assert.Equal(t, float64(220000), resp.TotalPrice)
		require.NotNil(t, resp.OrderCode)
		assert.NotZero(t, *resp.OrderCode)
		assert.NotEmpty(t, resp.CheckoutURL)

		stored := deps.repo.bookings[resp.ID]
		require.NotNil(t, stored)
		assert.Equal(t, userID, stored.UserID)
		assert.Len(t, stored.Seats, 2)
	})

	t.Run("rejects seat held by an active ticket", func(t *testing.T) {
		svc, deps := newTestService(trip)
		deps.seats.active = []string{"A1"}

		_, err := svc.Create(context.Background(), userID, CreateBookingRequest{
			TripID: trip.ID.String(),
			Seats:  []SeatRequest{{SeatID: "A1", SeatCode: "A1"}},
		})
		assert.True(t, apperrors.IsKind(err, apperrors.KindConflict))
		assert.Contains(t, err.Error(), "A1")
		assert.Empty(t, deps.repo.bookings, "no partial state on conflict")
	})

	t.Run("rejects seat held by a live booking", func(t *testing.T) {
		svc, _ := newTestService(trip)

		_, err := svc.Create(context.Background(), userID, CreateBookingRequest{
			TripID: trip.ID.String(),
			Seats:  []SeatRequest{{SeatID: "A2", SeatCode: "A2"}},
		})
		require.NoError(t, err)

		_, err = svc.Create(context.Background(), uuid.New(), CreateBookingRequest{
			TripID: trip.ID.String(),
			Seats:  []SeatRequest{{SeatID: "A2", SeatCode: "A2"}},
		})
		assert.True(t, apperrors.IsKind(err, apperrors.KindConflict))
	})

	t.Run("rejects duplicate seat in one request", func(t *testing.T) {
		svc, _ := newTestService(trip)

		_, err := svc.Create(context.Background(), userID, CreateBookingRequest{
			TripID: trip.ID.String(),
			Seats: []SeatRequest{
				{SeatID: "A1", SeatCode: "A1"},
				{SeatID: "A1", SeatCode: "A1"},
			},
		})
		assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))
	})

	t.Run("booking survives gateway failure without a link", func(t *testing.T) {
		svc, deps := newTestService(trip)
		deps.linker.err = errors.New("gateway down")

		resp, err := svc.Create(context.Background(), userID, CreateBookingRequest{
			TripID: trip.ID.String(),
			Seats:  []SeatRequest{{SeatID: "A1", SeatCode: "A1"}},
		})
		require.NoError(t, err)
		assert.Nil(t, resp.OrderCode)
		assert.Empty(t, resp.CheckoutURL)
		assert.NotNil(t, deps.repo.bookings[resp.ID])
	})
}

func TestCreateBookingConcurrentSameSeat(t *testing.T) {
	trip := testTrip()
	svc, _ := newTestService(trip)

	const attempts = 10
	var wg sync.WaitGroup
	results := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Create(context.Background(), uuid.New(), CreateBookingRequest{
				TripID: trip.ID.String(),
				Seats:  []SeatRequest{{SeatID: "A1", SeatCode: "A1"}},
			})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	successes := 0
	for err := range results {
		if err == nil {
			successes++
		} else {
			assert.True(t, apperrors.IsKind(err, apperrors.KindConflict))
		}
	}
	assert.Equal(t, 1, successes, "exactly one of the overlapping requests may win the seat")
}

func TestConfirmTx(t *testing.T) {
	trip := testTrip()
	svc, deps := newTestService(trip)

	booking := &Booking{ID: uuid.New(), TripID: trip.ID, UserID: uuid.New(), Status: StatusPending}
	deps.repo.bookings[booking.ID] = booking

	confirmed, err := svc.ConfirmTx(context.Background(), nil, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, confirmed.Status)

	// Confirming again is a state conflict, not a silent success
	_, err = svc.ConfirmTx(context.Background(), nil, booking.ID)
	assert.True(t, apperrors.IsKind(err, apperrors.KindConflict))
}

func TestCancelTx(t *testing.T) {
	trip := testTrip()
	svc, deps := newTestService(trip)

	booking := &Booking{ID: uuid.New(), TripID: trip.ID, UserID: uuid.New(), Status: StatusPending}
	deps.repo.bookings[booking.ID] = booking

	require.NoError(t, svc.CancelTx(context.Background(), nil, booking.ID, "ticket issuance failed"))
	assert.Equal(t, StatusCancelled, booking.Status)
	assert.Equal(t, "ticket issuance failed", booking.CancelNote)

	// Cancelling a cancelled booking is a no-op
	require.NoError(t, svc.CancelTx(context.Background(), nil, booking.ID, "again"))
	assert.Equal(t, "ticket issuance failed", booking.CancelNote)
}

func TestAdminSetStatusCascadesTicketCancellation(t *testing.T) {
	trip := testTrip()
	svc, deps := newTestService(trip)

	booking := &Booking{ID: uuid.New(), TripID: trip.ID, UserID: uuid.New(), Status: StatusConfirmed}
	deps.repo.bookings[booking.ID] = booking

	require.NoError(t, svc.AdminSetStatus(context.Background(), booking.ID, StatusCancelled, "fraud"))
	assert.Equal(t, StatusCancelled, booking.Status)
	assert.Equal(t, 1, deps.tickets.calls, "owned tickets must be cancelled with the booking")
}

func TestAdminSetStatusRejectsInvalidTransition(t *testing.T) {
	trip := testTrip()
	svc, deps := newTestService(trip)

	booking := &Booking{ID: uuid.New(), TripID: trip.ID, UserID: uuid.New(), Status: StatusPending}
	deps.repo.bookings[booking.ID] = booking

	err := svc.AdminSetStatus(context.Background(), booking.ID, StatusCompleted, "")
	assert.True(t, apperrors.IsKind(err, apperrors.KindConflict))
	assert.Equal(t, StatusPending, booking.Status)
}
