// Package rng provides the injectable random source used by speaker
// selection, affinity fallbacks and membership draws.
package rng

import (
	"math/rand/v2"
	"sync"
	"time"
)

// Source is the subset of math/rand the scheduler depends on.
// Implementations must be safe for concurrent use.
type Source interface {
	// Float64 returns a value in [0.0, 1.0).
	Float64() float64
	// IntN returns a value in [0, n). n must be > 0.
	IntN(n int) int
}

// Locked wraps a *rand.Rand with a mutex.
type Locked struct {
	mu sync.Mutex
	r  *rand.Rand
}

// New returns a seeded, goroutine-safe source.
func New(seed uint64) *Locked {
	return &Locked{r: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// NewTimeSeeded returns a source seeded from the wall clock.
func NewTimeSeeded() *Locked {
	return New(uint64(time.Now().UnixNano()))
}

func (l *Locked) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}

func (l *Locked) IntN(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.IntN(n)
}

// Sequence replays a fixed list of floats, cycling when exhausted.
// IntN maps the next float onto [0, n).
type Sequence struct {
	mu     sync.Mutex
	values []float64
	next   int
}

// NewSequence returns a Sequence over values. An empty list always yields 0.
func NewSequence(values ...float64) *Sequence {
	return &Sequence{values: values}
}

func (s *Sequence) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.values) == 0 {
		return 0
	}
	v := s.values[s.next%len(s.values)]
	s.next++
	return v
}

func (s *Sequence) IntN(n int) int {
	if n <= 0 {
		return 0
	}
	i := int(s.Float64() * float64(n))
	if i >= n {
		i = n - 1
	}
	if i < 0 {
		i = 0
	}
	return i
}
