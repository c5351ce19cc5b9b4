package authgate

import (
	"hash/fnv"
	"sync"
)

const lockStripeCount = 64

// keyedMutex serializes OTP and lockout mutations per user. Striping bounds
// memory: two users may share a stripe, which only costs contention, never
// correctness.
type keyedMutex struct {
	stripes [lockStripeCount]sync.Mutex
}

func (m *keyedMutex) lock(key string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	stripe := &m.stripes[h.Sum32()%lockStripeCount]
	stripe.Lock()
	return stripe.Unlock
}
