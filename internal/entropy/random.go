// Package entropy provides the random source for stochastic consumer
// behavior. The simulation takes a Source by injection so tests can run on a
// fixed seed; the default source draws from crypto/rand.
package entropy

import (
	"crypto/rand"
	"encoding/binary"
	mrand "math/rand"
	"sync"
)

// Source yields uniform floats in [0, 1).
type Source interface {
	Float() float64
}

// Seeded is a deterministic PRNG source for reproducible runs.
type Seeded struct {
	mu  sync.Mutex
	rng *mrand.Rand
}

// NewSeeded creates a source that replays the same sequence for a seed.
func NewSeeded(seed int64) *Seeded {
	return &Seeded{rng: mrand.New(mrand.NewSource(seed))}
}

// Float returns the next value in the seeded sequence.
func (s *Seeded) Float() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}

// Crypto is a non-deterministic source backed by crypto/rand.
type Crypto struct{}

// NewCrypto returns the default non-reproducible source.
func NewCrypto() Crypto { return Crypto{} }

// Float returns a uniform float from the OS entropy pool.
func (Crypto) Float() float64 { return cryptoRandFloat() }

func cryptoRandFloat() float64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// Should never happen; 0.5 keeps callers on a sane path.
		return 0.5
	}
	// Use only 53 bits for a uniform float64 in [0, 1).
	n := binary.LittleEndian.Uint64(buf[:]) >> 11
	return float64(n) / float64(1<<53)
}
