package tools

import (
	"math/rand/v2"
	"sync"
)

// Faults injects simulated failures at a fixed rate. A zero rate never fails.
type Faults struct {
	mu   sync.Mutex
	rate float64
	rng  *rand.Rand
}

// NewFaults creates a fault injector seeded for reproducible runs.
func NewFaults(rate float64, seed uint64) *Faults {
	return &Faults{rate: rate, rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Fail reports whether this call should fail.
func (f *Faults) Fail() bool {
	if f == nil || f.rate <= 0 {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rng.Float64() < f.rate
}
