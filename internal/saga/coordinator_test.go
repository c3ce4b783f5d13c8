package saga

import (
	"context"
	"testing"

	"busline/internal/bookings"
	"busline/internal/notifications"
	"busline/internal/payments"
	"busline/internal/shared/apperrors"
	"busline/internal/tickets"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// The mocks embed the service interfaces so only the methods the
// coordinator touches need implementations.

type mockBookingService struct {
	bookings.Service
	booking    *bookings.Booking
	confirmErr error
	cancelErr  error

	confirmCalls int
	cancelCalls  int
	cancelNote   string

	owner    uuid.UUID
	ownerErr error
}

func (m *mockBookingService) ConfirmTx(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*bookings.Booking, error) {
	m.confirmCalls++
	if m.confirmErr != nil {
		return nil, m.confirmErr
	}
	return m.booking, nil
}

func (m *mockBookingService) CancelTx(ctx context.Context, tx *gorm.DB, id uuid.UUID, reason string) error {
	m.cancelCalls++
	m.cancelNote = reason
	return m.cancelErr
}

func (m *mockBookingService) OwnerAndOrder(ctx context.Context, bookingID uuid.UUID) (uuid.UUID, *int64, error) {
	if m.ownerErr != nil {
		return uuid.Nil, nil, m.ownerErr
	}
	return m.owner, nil, nil
}

type mockTicketService struct {
	tickets.Service
	issueErr   error
	issueCalls int
}

func (m *mockTicketService) IssueForBookingTx(ctx context.Context, tx *gorm.DB, booking *bookings.Booking) error {
	m.issueCalls++
	return m.issueErr
}

type mockPaymentService struct {
	payments.Service
	refundErr   error
	refundCalls int
	lastAmount  float64
}

func (m *mockPaymentService) CreateRefundForTicket(ctx context.Context, originalOrderCode int64, ticketID uuid.UUID, amount float64, reason string) error {
	m.refundCalls++
	m.lastAmount = amount
	return m.refundErr
}

type mockNotifier struct {
	sent []notifications.Notification
}

func (m *mockNotifier) Send(ctx context.Context, n notifications.Notification) error {
	m.sent = append(m.sent, n)
	return nil
}

func (m *mockNotifier) Close() error { return nil }

// newMockDB backs a gorm connection with sqlmock so the coordinator's
// savepoint handling can be observed.
func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	return db, mock
}

func TestPaymentCompletedIssuesTickets(t *testing.T) {
	bookingID := uuid.New()
	bookingSvc := &mockBookingService{
		booking: &bookings.Booking{ID: bookingID, Status: bookings.StatusConfirmed},
	}
	ticketSvc := &mockTicketService{}
	coordinator := NewCoordinator(bookingSvc, ticketSvc, &mockPaymentService{}, &mockNotifier{})

	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectExec("SAVEPOINT sp").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	tx := db.Begin()
	require.NoError(t, tx.Error)
	require.NoError(t, coordinator.PaymentCompleted(context.Background(), tx, bookingID, 9001))
	require.NoError(t, tx.Commit().Error)

	assert.Equal(t, 1, bookingSvc.confirmCalls)
	assert.Equal(t, 1, ticketSvc.issueCalls)
	assert.Equal(t, 0, bookingSvc.cancelCalls, "no compensation on success")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentCompletedCompensatesFailedIssuance(t *testing.T) {
	bookingID := uuid.New()
	bookingSvc := &mockBookingService{
		booking: &bookings.Booking{ID: bookingID, Status: bookings.StatusConfirmed},
	}
	ticketSvc := &mockTicketService{
		issueErr: apperrors.Conflictf("a seat on this trip already has an active ticket"),
	}
	coordinator := NewCoordinator(bookingSvc, ticketSvc, &mockPaymentService{}, &mockNotifier{})

	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectExec("SAVEPOINT sp").WillReturnResult(sqlmock.NewResult(0, 0))
	// The failed issuance rolls back to the savepoint, leaving the
	// outer transaction healthy for the compensating cancel and the
	// payment's own commit.
	mock.ExpectExec("ROLLBACK TO SAVEPOINT sp").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	tx := db.Begin()
	require.NoError(t, tx.Error)
	err := coordinator.PaymentCompleted(context.Background(), tx, bookingID, 9002)
	require.NoError(t, err, "issuance failures are compensated, not propagated")
	require.NoError(t, tx.Commit().Error)

	assert.Equal(t, 1, bookingSvc.cancelCalls)
	assert.Equal(t, "ticket issuance failed", bookingSvc.cancelNote)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentCompletedCompensatesFailedConfirmation(t *testing.T) {
	bookingID := uuid.New()
	bookingSvc := &mockBookingService{
		confirmErr: apperrors.Conflictf("booking %s cannot be confirmed from status CANCELLED", bookingID),
	}
	ticketSvc := &mockTicketService{}
	coordinator := NewCoordinator(bookingSvc, ticketSvc, &mockPaymentService{}, &mockNotifier{})

	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectExec("SAVEPOINT sp").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("ROLLBACK TO SAVEPOINT sp").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	tx := db.Begin()
	require.NoError(t, tx.Error)
	require.NoError(t, coordinator.PaymentCompleted(context.Background(), tx, bookingID, 9003))
	require.NoError(t, tx.Commit().Error)

	assert.Equal(t, 0, ticketSvc.issueCalls, "no tickets when confirmation fails")
	assert.Equal(t, 1, bookingSvc.cancelCalls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandlePaymentCompletedNotifiesOwner(t *testing.T) {
	owner := uuid.New()
	bookingSvc := &mockBookingService{owner: owner}
	notifier := &mockNotifier{}
	coordinator := NewCoordinator(bookingSvc, &mockTicketService{}, &mockPaymentService{}, notifier)

	coordinator.HandlePaymentCompleted(context.Background(), PaymentCompletedEvent{
		BookingID: uuid.New(),
		OrderCode: 9004,
	})

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, owner, notifier.sent[0].UserID)
	assert.Equal(t, "Payment received", notifier.sent[0].Title)
}

func TestHandleTicketCancelledCreatesRefund(t *testing.T) {
	paymentSvc := &mockPaymentService{}
	notifier := &mockNotifier{}
	coordinator := NewCoordinator(&mockBookingService{}, &mockTicketService{}, paymentSvc, notifier)

	userID := uuid.New()
	coordinator.HandleTicketCancelled(context.Background(), TicketCancelledEvent{
		TicketID:     uuid.New(),
		BookingID:    uuid.New(),
		OrderCode:    9005,
		RefundAmount: 100000,
		Reason:       "changed plans",
		UserID:       userID,
	})

	assert.Equal(t, 1, paymentSvc.refundCalls)
	assert.Equal(t, float64(100000), paymentSvc.lastAmount)
	require.Len(t, notifier.sent, 1)
	assert.Equal(t, "Refund initiated", notifier.sent[0].Title)
}

func TestHandleTicketCancelledRefundFailureSkipsNotification(t *testing.T) {
	paymentSvc := &mockPaymentService{refundErr: apperrors.Internal("refund path down", nil)}
	notifier := &mockNotifier{}
	coordinator := NewCoordinator(&mockBookingService{}, &mockTicketService{}, paymentSvc, notifier)

	coordinator.HandleTicketCancelled(context.Background(), TicketCancelledEvent{
		TicketID:  uuid.New(),
		OrderCode: 9006,
	})

	assert.Equal(t, 1, paymentSvc.refundCalls)
	assert.Empty(t, notifier.sent, "no refund notification when the refund fails")
}
