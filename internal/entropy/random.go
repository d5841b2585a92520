// Package entropy provides the seedable random source behind every
// stochastic effect in the simulation: yield variance, quality-control
// rolls, initial ore reserves, and transit times. A nil *Source falls
// back to crypto/rand so callers never need to nil-check.
package entropy

import (
	"crypto/rand"
	"encoding/binary"
	mrand "math/rand/v2"
	"sync"
)

// Source produces random values from a seeded generator. Safe for
// concurrent use. The zero seed is valid and deterministic like any other.
type Source struct {
	mu  sync.Mutex
	rng *mrand.Rand
}

// NewSource creates a deterministic source from a seed.
func NewSource(seed int64) *Source {
	return &Source{rng: mrand.New(mrand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15))}
}

// Float returns a random float64 in [0, 1). Falls back to crypto/rand
// when the source is nil.
func (s *Source) Float() float64 {
	if s == nil {
		return cryptoRandFloat()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}

// Uniform returns a random float64 in [lo, hi).
func (s *Source) Uniform(lo, hi float64) float64 {
	return lo + s.Float()*(hi-lo)
}

// Variance returns a multiplier in [1-spread, 1+spread), e.g. spread 0.05
// yields the ±5% output variability applied on job completion.
func (s *Source) Variance(spread float64) float64 {
	return s.Uniform(1-spread, 1+spread)
}

// Chance reports true with probability p.
func (s *Source) Chance(p float64) bool {
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}
	return s.Float() < p
}

// cryptoRandFloat generates a random float64 using crypto/rand as fallback.
func cryptoRandFloat() float64 {
	var buf [8]byte
	_, err := rand.Read(buf[:])
	if err != nil {
		// This should never happen but return 0.5 as a safe default.
		return 0.5
	}
	// Use only 53 bits for a uniform float64 in [0, 1).
	n := binary.LittleEndian.Uint64(buf[:]) >> 11
	return float64(n) / float64(1<<53)
}
