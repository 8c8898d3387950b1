package services

import (
	cryptoRand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
	"sync"
)

// RandomSource yields uniform samples in [0, 1).
type RandomSource interface {
	Float64() float64
}

type cryptoRNG struct{}

func (cryptoRNG) Float64() float64 {
	var buf [8]byte
	if _, err := cryptoRand.Read(buf[:]); err != nil {
		return rand.Float64()
	}
	u := binary.BigEndian.Uint64(buf[:]) >> 11 // 53 bits
	return float64(u) / (1 << 53)
}

// DefaultRNG is backed by crypto/rand.
func DefaultRNG() RandomSource { return cryptoRNG{} }

// seededRNG locks because one engine's source serves every tenant's draw.
type seededRNG struct {
	mu sync.Mutex
	r  *rand.Rand
}

// NewSeededRNG returns a reproducible source, for simulations and tests.
func NewSeededRNG(seed uint64) RandomSource {
	return &seededRNG{r: rand.New(rand.NewPCG(seed, 0))}
}

func (s *seededRNG) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Float64()
}

// fixedRNG replays the given samples in order, repeating the last one.
type fixedRNG struct {
	mu      sync.Mutex
	samples []float64
	next    int
}

// NewFixedRNG returns a source that yields samples in order. Once they are
// exhausted the last sample repeats.
func NewFixedRNG(samples ...float64) RandomSource {
	if len(samples) == 0 {
		samples = []float64{0}
	}
	return &fixedRNG{samples: samples}
}

func (f *fixedRNG) Float64() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	v := f.samples[f.next]
	if f.next < len(f.samples)-1 {
		f.next++
	}
	return v
}
