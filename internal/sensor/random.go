package sensor

import (
	"fmt"
	"math/rand"
	"sync"
)

// Random produces uniformly distributed values in [lo, hi). It stands in
// for hardware on development machines.
type Random struct {
	lo, hi float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandom creates a Random sensor. lo must be below hi.
func NewRandom(lo, hi float64, seed int64) (*Random, error) {
	if lo >= hi {
		return nil, fmt.Errorf("invalid range [%g, %g)", lo, hi)
	}
	return &Random{lo: lo, hi: hi, rng: rand.New(rand.NewSource(seed))}, nil
}

// Read returns the next value.
func (r *Random) Read() (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lo + r.rng.Float64()*(r.hi-r.lo), nil
}

// Close is a no-op.
func (r *Random) Close() error {
	return nil
}
