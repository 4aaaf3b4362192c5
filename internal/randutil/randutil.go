// Package randutil provides the random source used for codes, imposter choice
// and word selection. Tests pass a seeded source for reproducible outcomes.
package randutil

import (
	"math/rand/v2"
	"sync"
)

// Source is the subset of *rand.Rand the game needs.
type Source interface {
	IntN(n int) int
	Shuffle(n int, swap func(i, j int))
}

// Locked is a Source safe for concurrent use.
type Locked struct {
	mu sync.Mutex
	r  *rand.Rand
}

// New returns a deterministic source for the given seed.
func New(seed uint64) *Locked {
	return &Locked{r: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// NewRandom returns a source seeded from the runtime's entropy.
func NewRandom() *Locked {
	return New(rand.Uint64())
}

func (l *Locked) IntN(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.IntN(n)
}

func (l *Locked) Shuffle(n int, swap func(i, j int)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.r.Shuffle(n, swap)
}

// Sample returns k distinct indices in [0, n), each subset equally likely.
// It panics if k > n.
func Sample(src Source, n, k int) []int {
	if k > n {
		panic("randutil: sample larger than population")
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	// partial Fisher-Yates
	for i := 0; i < k; i++ {
		j := i + src.IntN(n-i)
		idx[i], idx[j] = idx[j], idx[i]
	}
	return idx[:k]
}
