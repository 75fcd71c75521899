// Package dice provides the injectable die roller used by the rules engine.
package dice

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand/v2"
	"sync"
)

// Roller rolls a single die with the given number of sides, returning a value in [1, sides].
type Roller interface {
	Roll(sides int) int
}

// D6 rolls one six-sided die.
func D6(r Roller) int { return r.Roll(6) }

// D10 rolls one ten-sided die.
func D10(r Roller) int { return r.Roll(10) }

// Rand is a seeded, goroutine-safe Roller.
type Rand struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// New returns a Roller seeded with seed. The same seed yields the same sequence.
func New(seed uint64) *Rand {
	return &Rand{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// NewSeeded returns a Roller seeded from crypto/rand.
func NewSeeded() (*Rand, error) {
	seed, err := NewSeed()
	if err != nil {
		return nil, err
	}
	return New(seed), nil
}

// Roll implements Roller. sides < 1 is treated as 1.
func (r *Rand) Roll(sides int) int {
	if sides < 1 {
		return 1
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.IntN(sides) + 1
}

// NewSeed generates a random seed using crypto/rand.
func NewSeed() (uint64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

// Sequence replays fixed results in order, wrapping around when exhausted.
// Results are clamped into [1, sides].
type Sequence struct {
	mu      sync.Mutex
	results []int
	next    int
	rolls   int
}

// NewSequence returns a Sequence roller over results.
func NewSequence(results ...int) *Sequence {
	return &Sequence{results: results}
}

// Roll implements Roller.
func (s *Sequence) Roll(sides int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rolls++
	if len(s.results) == 0 {
		return 1
	}
	v := s.results[s.next%len(s.results)]
	s.next++
	return min(max(v, 1), max(sides, 1))
}

// Rolls returns how many dice have been rolled.
func (s *Sequence) Rolls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rolls
}
