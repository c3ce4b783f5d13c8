package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"busline/internal/shared/apperrors"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testChecksumKey = "test-checksum-key"

// mockRepository is an in-memory stand-in for the payments repository
type mockRepository struct {
	payments    map[int64]*Payment
	users       map[uuid.UUID]uuid.UUID
	createErr   error
	createCalls int
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		payments: make(map[int64]*Payment),
		users:    make(map[uuid.UUID]uuid.UUID),
	}
}

func (m *mockRepository) Create(ctx context.Context, payment *Payment) error {
	m.createCalls++
	if m.createErr != nil {
		return m.createErr
	}
	m.payments[payment.OrderCode] = payment
	return nil
}

func (m *mockRepository) GetByOrderCode(ctx context.Context, orderCode int64) (*Payment, error) {
	payment, ok := m.payments[orderCode]
	if !ok {
		return nil, apperrors.NotFoundf("payment %d not found", orderCode)
	}
	return payment, nil
}

func (m *mockRepository) GetForUpdate(ctx context.Context, orderCode int64) (*Payment, error) {
	return m.GetByOrderCode(ctx, orderCode)
}

func (m *mockRepository) Save(ctx context.Context, payment *Payment) error {
	m.payments[payment.OrderCode] = payment
	return nil
}

func (m *mockRepository) UpdateStatusIfPending(ctx context.Context, orderCode int64, status Status, adminNote string) (bool, error) {
	payment, ok := m.payments[orderCode]
	if !ok || payment.Status != StatusPending {
		return false, nil
	}
	payment.Status = status
	payment.AdminNote = adminNote
	return true, nil
}

func (m *mockRepository) FindRefundByTicketID(ctx context.Context, ticketID uuid.UUID) (*Payment, error) {
	for _, p := range m.payments {
		if p.IsRefund && p.RefundTicketID != nil && *p.RefundTicketID == ticketID {
			return p, nil
		}
	}
	return nil, apperrors.NotFoundf("no refund for ticket %s", ticketID)
}

func (m *mockRepository) RefundsForOriginal(ctx context.Context, originalOrderCode int64) ([]Payment, error) {
	var refunds []Payment
	for _, p := range m.payments {
		if p.IsRefund && p.OriginalOrderCode != nil && *p.OriginalOrderCode == originalOrderCode {
			refunds = append(refunds, *p)
		}
	}
	return refunds, nil
}

func (m *mockRepository) ListRefunds(ctx context.Context, status Status, limit, offset int) ([]Payment, int64, error) {
	var refunds []Payment
	for _, p := range m.payments {
		if p.IsRefund && (status == "" || p.Status == status) {
			refunds = append(refunds, *p)
		}
	}
	return refunds, int64(len(refunds)), nil
}

func (m *mockRepository) UserIDForBooking(ctx context.Context, bookingID uuid.UUID) (uuid.UUID, error) {
	userID, ok := m.users[bookingID]
	if !ok {
		return uuid.Nil, apperrors.NotFoundf("booking %s not found", bookingID)
	}
	return userID, nil
}

func (m *mockRepository) Transaction(ctx context.Context, fn func(txRepo Repository, tx *gorm.DB) error) error {
	return fn(m, nil)
}

// mockGateway records calls and can be told to fail
type mockGateway struct {
	createErr   error
	cancelErr   error
	createCalls int
	cancelCalls int
}

func (m *mockGateway) CreateLink(ctx context.Context, req CreateLinkRequest) (*CheckoutLink, error) {
	m.createCalls++
	if m.createErr != nil {
		return nil, m.createErr
	}
	return &CheckoutLink{
		OrderCode:   req.OrderCode,
		CheckoutURL: "https://pay.example.com/checkout/abc123",
		Status:      "PENDING",
	}, nil
}

func (m *mockGateway) GetLink(ctx context.Context, orderCode int64) (*CheckoutLink, error) {
	return &CheckoutLink{OrderCode: orderCode, Status: "PENDING"}, nil
}

func (m *mockGateway) CancelLink(ctx context.Context, orderCode int64, reason string) error {
	m.cancelCalls++
	return m.cancelErr
}

type mockReaction struct {
	calls int
	err   error
}

func (m *mockReaction) PaymentCompleted(ctx context.Context, tx *gorm.DB, bookingID uuid.UUID, orderCode int64) error {
	m.calls++
	return m.err
}

type mockPublisher struct {
	calls int
}

func (m *mockPublisher) PublishPaymentCompleted(ctx context.Context, bookingID uuid.UUID, orderCode int64) error {
	m.calls++
	return nil
}

func newTestService(repo *mockRepository, gateway *mockGateway) (Service, *mockReaction, *mockPublisher) {
	publisher := &mockPublisher{}
	svc := NewService(repo, gateway, ServiceConfig{
		ChecksumKey: testChecksumKey,
		ReturnURL:   "https://app.example.com/return",
		CancelURL:   "https://app.example.com/cancel",
	}, publisher, nil)

	reaction := &mockReaction{}
	svc.SetCompletedReaction(reaction)
	return svc, reaction, publisher
}

func signedWebhook(orderCode int64, amount float64, code string) WebhookPayload {
	data := WebhookData{
		OrderCode: orderCode,
		Amount:    amount,
		Code:      code,
		Desc:      "success",
	}
	return WebhookPayload{
		Code:      code,
		Success:   code == "00",
		Data:      data,
		Signature: SignWebhookPayload(testChecksumKey, data),
	}
}

func pendingPayment(orderCode int64, amount float64) *Payment {
	bookingID := uuid.New()
	return &Payment{
		OrderCode: orderCode,
		BookingID: &bookingID,
		Amount:    amount,
		Status:    StatusPending,
	}
}

func TestVerifyWebhookCompletesPaymentExactlyOnce(t *testing.T) {
	repo := newMockRepository()
	payment := pendingPayment(7001, 100000)
	repo.payments[payment.OrderCode] = payment

	svc, reaction, publisher := newTestService(repo, &mockGateway{})
	payload := signedWebhook(payment.OrderCode, payment.Amount, "00")

	require.NoError(t, svc.VerifyWebhook(context.Background(), payload))
	assert.Equal(t, StatusCompleted, payment.Status)
	assert.Equal(t, 1, reaction.calls)
	assert.Equal(t, 1, publisher.calls)

	// Replayed delivery: success, but nothing happens again
	require.NoError(t, svc.VerifyWebhook(context.Background(), payload))
	assert.Equal(t, StatusCompleted, payment.Status)
	assert.Equal(t, 1, reaction.calls, "reaction must not re-fire on replay")
	assert.Equal(t, 1, publisher.calls, "completion event must not re-emit on replay")
}

func TestVerifyWebhookRejectsBadSignature(t *testing.T) {
	repo := newMockRepository()
	payment := pendingPayment(7002, 50000)
	repo.payments[payment.OrderCode] = payment

	svc, reaction, _ := newTestService(repo, &mockGateway{})
	payload := signedWebhook(payment.OrderCode, payment.Amount, "00")
	payload.Signature = "deadbeef"

	err := svc.VerifyWebhook(context.Background(), payload)
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))
	assert.Equal(t, StatusPending, payment.Status)
	assert.Equal(t, 0, reaction.calls)
}

func TestVerifyWebhookFailureCodeMarksFailed(t *testing.T) {
	repo := newMockRepository()
	payment := pendingPayment(7003, 50000)
	repo.payments[payment.OrderCode] = payment

	svc, reaction, publisher := newTestService(repo, &mockGateway{})
	payload := signedWebhook(payment.OrderCode, payment.Amount, "01")

	require.NoError(t, svc.VerifyWebhook(context.Background(), payload))
	assert.Equal(t, StatusFailed, payment.Status)
	assert.Equal(t, 0, reaction.calls)
	assert.Equal(t, 0, publisher.calls)
}

func TestVerifyWebhookRejectsRefundOrderCode(t *testing.T) {
	repo := newMockRepository()
	original := int64(7004)
	refund := &Payment{
		OrderCode:         9004,
		Amount:            20000,
		Status:            StatusProcessing,
		IsRefund:          true,
		OriginalOrderCode: &original,
	}
	repo.payments[refund.OrderCode] = refund

	svc, _, _ := newTestService(repo, &mockGateway{})
	payload := signedWebhook(refund.OrderCode, refund.Amount, "00")

	err := svc.VerifyWebhook(context.Background(), payload)
	assert.True(t, apperrors.IsKind(err, apperrors.KindConflict))
	assert.Equal(t, StatusProcessing, refund.Status)
}

func TestCreateLinkGatewayFailurePersistsNothing(t *testing.T) {
	repo := newMockRepository()
	gateway := &mockGateway{createErr: errors.New("gateway down")}
	svc, _, _ := newTestService(repo, gateway)

	_, _, err := svc.CreateLink(context.Background(), uuid.New(), 100000, "trip seats")
	assert.True(t, apperrors.IsKind(err, apperrors.KindGateway))
	assert.Equal(t, 0, repo.createCalls, "no payment row on gateway failure")
}

func TestCreateLinkPersistsPendingPayment(t *testing.T) {
	repo := newMockRepository()
	svc, _, _ := newTestService(repo, &mockGateway{})

	orderCode, checkoutURL, err := svc.CreateLink(context.Background(), uuid.New(), 100000, "trip seats")
	require.NoError(t, err)
	assert.NotZero(t, orderCode)
	assert.NotEmpty(t, checkoutURL)

	stored := repo.payments[orderCode]
	require.NotNil(t, stored)
	assert.Equal(t, StatusPending, stored.Status)
	assert.Equal(t, float64(100000), stored.Amount)
	assert.False(t, stored.IsRefund)
}

func completedPayment(orderCode int64, amount float64) *Payment {
	bookingID := uuid.New()
	return &Payment{
		OrderCode: orderCode,
		BookingID: &bookingID,
		Amount:    amount,
		Status:    StatusCompleted,
	}
}

func TestCreateRefundValidation(t *testing.T) {
	original := completedPayment(8001, 100000)
	pending := pendingPayment(8002, 100000)
	originalCode := original.OrderCode
	priorRefund := &Payment{
		OrderCode:         8003,
		Amount:            100000,
		Status:            StatusProcessing,
		IsRefund:          true,
		OriginalOrderCode: &originalCode,
	}

	tests := []struct {
		name      string
		orderCode int64
		amount    float64
	}{
		{name: "amount exceeds original", orderCode: 8001, amount: 150000},
		{name: "amount not positive", orderCode: 8001, amount: 0},
		{name: "original not completed", orderCode: 8002, amount: 50000},
		{name: "original is itself a refund", orderCode: 8003, amount: 50000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMockRepository()
			repo.payments[original.OrderCode] = original
			repo.payments[pending.OrderCode] = pending
			repo.payments[priorRefund.OrderCode] = priorRefund
			svc, _, _ := newTestService(repo, &mockGateway{})
			before := len(repo.payments)

			_, err := svc.CreateRefund(context.Background(), CreateRefundInput{
				OriginalOrderCode: tt.orderCode,
				Amount:            tt.amount,
				Reason:            "changed plans",
			})
			assert.True(t, apperrors.IsKind(err, apperrors.KindValidation), "got %v", err)
			assert.Len(t, repo.payments, before, "no refund row on validation failure")
		})
	}
}

func TestCreateRefundOpensProcessingRefund(t *testing.T) {
	repo := newMockRepository()
	original := completedPayment(8010, 100000)
	repo.payments[original.OrderCode] = original
	svc, _, _ := newTestService(repo, &mockGateway{})

	refund, err := svc.CreateRefund(context.Background(), CreateRefundInput{
		OriginalOrderCode: original.OrderCode,
		Amount:            100000,
		Reason:            "changed plans",
	})
	require.NoError(t, err)

	assert.True(t, refund.IsRefund)
	assert.Equal(t, StatusProcessing, refund.Status)
	assert.Equal(t, float64(100000), refund.Amount)
	require.NotNil(t, refund.OriginalOrderCode)
	assert.Equal(t, original.OrderCode, *refund.OriginalOrderCode)
	assert.NotEqual(t, original.OrderCode, refund.OrderCode, "refund gets its own order code")
	assert.NotNil(t, refund.RefundRequestedAt)
}

func TestCreateRefundForTicketIsIdempotent(t *testing.T) {
	repo := newMockRepository()
	original := completedPayment(8020, 100000)
	repo.payments[original.OrderCode] = original
	svc, _, _ := newTestService(repo, &mockGateway{})

	ticketID := uuid.New()
	require.NoError(t, svc.CreateRefundForTicket(context.Background(), original.OrderCode, ticketID, 100000, "changed plans"))
	require.NoError(t, svc.CreateRefundForTicket(context.Background(), original.OrderCode, ticketID, 100000, "changed plans"))

	refunds, err := svc.GetRefundsForPayment(context.Background(), original.OrderCode)
	require.NoError(t, err)
	assert.Len(t, refunds, 1, "replayed cancellation must not open a second refund")
}

func TestCancelLink(t *testing.T) {
	t.Run("cancels pending payment", func(t *testing.T) {
		repo := newMockRepository()
		payment := pendingPayment(8030, 40000)
		repo.payments[payment.OrderCode] = payment
		gateway := &mockGateway{}
		svc, _, _ := newTestService(repo, gateway)

		require.NoError(t, svc.CancelLink(context.Background(), payment.OrderCode, "customer request"))
		assert.Equal(t, StatusCancelled, payment.Status)
		assert.Equal(t, "customer request", payment.AdminNote)
		assert.Equal(t, 1, gateway.cancelCalls)
	})

	t.Run("rejects non-pending payment", func(t *testing.T) {
		repo := newMockRepository()
		payment := completedPayment(8031, 40000)
		repo.payments[payment.OrderCode] = payment
		svc, _, _ := newTestService(repo, &mockGateway{})

		err := svc.CancelLink(context.Background(), payment.OrderCode, "too late")
		assert.True(t, apperrors.IsKind(err, apperrors.KindConflict))
		assert.Equal(t, StatusCompleted, payment.Status)
	})

	t.Run("gateway failure persists nothing", func(t *testing.T) {
		repo := newMockRepository()
		payment := pendingPayment(8032, 40000)
		repo.payments[payment.OrderCode] = payment
		svc, _, _ := newTestService(repo, &mockGateway{cancelErr: errors.New("gateway down")})

		err := svc.CancelLink(context.Background(), payment.OrderCode, "customer request")
		assert.True(t, apperrors.IsKind(err, apperrors.KindGateway))
		assert.Equal(t, StatusPending, payment.Status)
	})
}

func TestProcessRefund(t *testing.T) {
	originalCode := int64(8040)

	processingRefund := func() *Payment {
		now := time.Now().UTC()
		amount := 60000.0
		return &Payment{
			OrderCode:         9040,
			Amount:            60000,
			Status:            StatusProcessing,
			IsRefund:          true,
			OriginalOrderCode: &originalCode,
			RefundAmount:      &amount,
			RefundRequestedAt: &now,
		}
	}

	t.Run("resolves processing refund with proof", func(t *testing.T) {
		repo := newMockRepository()
		refund := processingRefund()
		repo.payments[refund.OrderCode] = refund
		svc, _, _ := newTestService(repo, &mockGateway{})

		resolved, err := svc.ProcessRefund(context.Background(), refund.OrderCode, ProcessRefundRequest{
			ProofImageURL: "https://cdn.example.com/proof.png",
			ProofImageID:  "proof-1",
			AdminNote:     "transferred",
		})
		require.NoError(t, err)
		assert.Equal(t, StatusResolved, resolved.Status)
		assert.Equal(t, "https://cdn.example.com/proof.png", resolved.ProofImageURL)
		assert.NotNil(t, resolved.RefundProcessedAt)
		assert.Equal(t, "transferred", resolved.AdminNote)
	})

	t.Run("rejects non-refund payment", func(t *testing.T) {
		repo := newMockRepository()
		payment := completedPayment(8041, 60000)
		repo.payments[payment.OrderCode] = payment
		svc, _, _ := newTestService(repo, &mockGateway{})

		_, err := svc.ProcessRefund(context.Background(), payment.OrderCode, ProcessRefundRequest{
			ProofImageURL: "https://cdn.example.com/proof.png",
			ProofImageID:  "proof-1",
		})
		assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))
	})

	t.Run("rejects already resolved refund", func(t *testing.T) {
		repo := newMockRepository()
		refund := processingRefund()
		refund.Status = StatusResolved
		repo.payments[refund.OrderCode] = refund
		svc, _, _ := newTestService(repo, &mockGateway{})

		_, err := svc.ProcessRefund(context.Background(), refund.OrderCode, ProcessRefundRequest{
			ProofImageURL: "https://cdn.example.com/proof.png",
			ProofImageID:  "proof-1",
		})
		assert.True(t, apperrors.IsKind(err, apperrors.KindConflict))
	})
}
