package randutil

import (
	rand "math/rand/v2"
	"sync"
	"time"
)

const goldenRatio64 = 0x9e3779b97f4a7c15

// New returns a *rand.Rand seeded deterministically from the provided int64.
func New(seed int64) *rand.Rand {
	u := uint64(seed)
	return rand.New(rand.NewPCG(mix(u), mix(u+goldenRatio64)))
}

// Seed returns the configured seed, or a time-derived one when none is set.
func Seed(configured *int64) int64 {
	if configured != nil {
		return *configured
	}
	return time.Now().UnixNano()
}

// Locked serialises access to a *rand.Rand so one source can shuffle decks
// for many tables at once.
type Locked struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewLocked wraps rng.
func NewLocked(rng *rand.Rand) *Locked {
	return &Locked{rng: rng}
}

// IntN returns a uniform integer in [0, n).
func (l *Locked) IntN(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rng.IntN(n)
}

func mix(x uint64) uint64 {
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}
