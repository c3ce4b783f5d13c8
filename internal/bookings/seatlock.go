package bookings

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// TripLocker serializes the seat-availability check against the
// booking insert per trip. Without it two concurrent requests for the
// same seat can both pass the availability check.
type TripLocker interface {
	// Lock acquires the per-trip reservation lock and returns an
	// unlock function. Blocks until acquired or ctx is done.
	Lock(ctx context.Context, tripID uuid.UUID) (func(), error)
}

// Lua script for safe unlock - only the holder may delete the lock key
const luaUnlockTripLock = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`

// RedisTripLocker implements TripLocker with SET NX PX plus a scripted
// compare-and-delete unlock, so a crashed holder's lock expires instead
// of wedging the trip.
type RedisTripLocker struct {
	redis        *redis.Client
	ttl          time.Duration
	retryBackoff time.Duration
	unlockScript *redis.Script
}

// NewRedisTripLocker creates a Redis-backed per-trip lock
func NewRedisTripLocker(redisClient *redis.Client, ttl time.Duration) *RedisTripLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &RedisTripLocker{
		redis:        redisClient,
		ttl:          ttl,
		retryBackoff: 25 * time.Millisecond,
		unlockScript: redis.NewScript(luaUnlockTripLock),
	}
}

func (l *RedisTripLocker) Lock(ctx context.Context, tripID uuid.UUID) (func(), error) {
	key := "trip_reservation_lock:" + tripID.String()
	token := newLockToken()

	for {
		ok, err := l.redis.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire trip lock: %w", err)
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retryBackoff):
		}
	}

	unlock := func() {
		// Detached context: the request context may already be done
		// and the lock must still be released.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = l.unlockScript.Run(releaseCtx, l.redis, []string{key}, token).Err()
	}
	return unlock, nil
}

func newLockToken() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return uuid.New().String()
	}
	return hex.EncodeToString(buf)
}

// LocalTripLocker implements TripLocker with in-process keyed mutexes.
// Used when Redis is not configured (single-instance deployments and
// tests); the database's partial unique index on active tickets remains
// the cross-instance backstop.
type LocalTripLocker struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

// NewLocalTripLocker creates an in-process per-trip lock
func NewLocalTripLocker() *LocalTripLocker {
	return &LocalTripLocker{locks: make(map[uuid.UUID]*sync.Mutex)}
}

func (l *LocalTripLocker) Lock(ctx context.Context, tripID uuid.UUID) (func(), error) {
	l.mu.Lock()
	tripMu, ok := l.locks[tripID]
	if !ok {
		tripMu = &sync.Mutex{}
		l.locks[tripID] = tripMu
	}
	l.mu.Unlock()

	tripMu.Lock()
	return tripMu.Unlock, nil
}
