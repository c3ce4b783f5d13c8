package bookings

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalTripLockerSerializesPerTrip(t *testing.T) {
	locker := NewLocalTripLocker()
	tripID := uuid.New()

	var inCritical int
	var maxInCritical int
	var mu sync.Mutex

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(context.Background(), tripID)
			require.NoError(t, err)
			defer unlock()

			mu.Lock()
			inCritical++
			if inCritical > maxInCritical {
				maxInCritical = inCritical
			}
			mu.Unlock()

			mu.Lock()
			inCritical--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxInCritical, "critical section must admit one holder at a time")
}

func TestLocalTripLockerIndependentTrips(t *testing.T) {
	locker := NewLocalTripLocker()

	unlockA, err := locker.Lock(context.Background(), uuid.New())
	require.NoError(t, err)
	defer unlockA()

	// A second trip must not be blocked by the first trip's holder
	done := make(chan struct{})
	go func() {
		unlockB, err := locker.Lock(context.Background(), uuid.New())
		assert.NoError(t, err)
		unlockB()
		close(done)
	}()
	<-done
}
