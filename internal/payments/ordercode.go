package payments

import (
	"crypto/rand"
	"math/big"
	"time"
)

// GenerateOrderCode produces a process-wide-unique numeric order code
// accepted by the gateway. Millisecond timestamp plus a random suffix;
// the primary-key constraint on payments backstops the rare collision.
func GenerateOrderCode() int64 {
	suffix, err := rand.Int(rand.Reader, big.NewInt(1000))
	if err != nil {
		// crypto/rand failure is effectively fatal elsewhere; fall back
		// to the timestamp alone rather than panicking here.
		return time.Now().UnixMilli() * 1000
	}
	return time.Now().UnixMilli()*1000 + suffix.Int64()
}
