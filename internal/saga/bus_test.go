package saga

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingHandler collects dispatched events for assertions
type recordingHandler struct {
	mu        sync.Mutex
	completed []PaymentCompletedEvent
	cancelled []TicketCancelledEvent
}

func (h *recordingHandler) HandlePaymentCompleted(ctx context.Context, event PaymentCompletedEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.completed = append(h.completed, event)
}

func (h *recordingHandler) HandleTicketCancelled(ctx context.Context, event TicketCancelledEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cancelled = append(h.cancelled, event)
}

func (h *recordingHandler) counts() (int, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.completed), len(h.cancelled)
}

func TestInProcessBusDispatchesBothEventTypes(t *testing.T) {
	bus := NewInProcessBus(8)
	handler := &recordingHandler{}
	bus.Subscribe(handler)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, bus.Start(ctx))

	bookingID := uuid.New()
	require.NoError(t, bus.PublishPaymentCompleted(ctx, PaymentCompletedEvent{
		BookingID: bookingID,
		OrderCode: 4001,
	}))
	require.NoError(t, bus.PublishTicketCancelled(ctx, TicketCancelledEvent{
		TicketID:     uuid.New(),
		BookingID:    bookingID,
		OrderCode:    4001,
		RefundAmount: 100000,
	}))

	require.Eventually(t, func() bool {
		completed, cancelled := handler.counts()
		return completed == 1 && cancelled == 1
	}, time.Second, 5*time.Millisecond)

	handler.mu.Lock()
	assert.Equal(t, bookingID, handler.completed[0].BookingID)
	assert.Equal(t, int64(4001), handler.cancelled[0].OrderCode)
	handler.mu.Unlock()

	cancel()
	require.NoError(t, bus.Close())
}

func TestInProcessBusDrainsQueueOnShutdown(t *testing.T) {
	bus := NewInProcessBus(16)
	handler := &recordingHandler{}
	bus.Subscribe(handler)

	ctx, cancel := context.WithCancel(context.Background())

	// Queue events before the dispatcher runs, then shut down
	// immediately. Everything already accepted must still be handled.
	for i := 0; i < 5; i++ {
		require.NoError(t, bus.PublishTicketCancelled(context.Background(), TicketCancelledEvent{
			TicketID:  uuid.New(),
			OrderCode: int64(5000 + i),
		}))
	}

	require.NoError(t, bus.Start(ctx))
	cancel()
	require.NoError(t, bus.Close())

	_, cancelled := handler.counts()
	assert.Equal(t, 5, cancelled)
}

func TestInProcessBusPublishHonoursContext(t *testing.T) {
	// Capacity one and no dispatcher: the second publish must block
	// until the context expires.
	bus := NewInProcessBus(1)
	bus.Subscribe(&recordingHandler{})

	require.NoError(t, bus.PublishPaymentCompleted(context.Background(), PaymentCompletedEvent{OrderCode: 1}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := bus.PublishPaymentCompleted(ctx, PaymentCompletedEvent{OrderCode: 2})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
