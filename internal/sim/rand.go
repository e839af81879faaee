package sim

import "math/rand"

// Rand is the run's single pseudo-random source. It is seeded exactly once
// from the run seed, and every stage that needs randomness draws from it in a
// fixed order, so the full draw sequence is a function of the seed alone.
//
// Draw order per processed event: the event source consumes one NextFloat per
// synthetic burst event it injects, then the decision engine consumes one
// NextFloat per decision for its service-time jitter. Nothing else draws.
type Rand struct {
	src   *rand.Rand
	draws int64
}

// NewRand returns a source seeded from the run seed.
func NewRand(seed int64) *Rand {
	return &Rand{src: rand.New(rand.NewSource(seed))}
}

// NextFloat returns the next draw in [0, 1).
func (r *Rand) NextFloat() float64 {
	r.draws++
	return r.src.Float64()
}

// NextChoice returns the next draw in [0, n). n must be positive.
func (r *Rand) NextChoice(n int) int {
	r.draws++
	return r.src.Intn(n)
}

// Cursor reports how many draws have been consumed. Used by tests to pin the
// burst injector and decision engine to an exact position in the sequence.
func (r *Rand) Cursor() int64 {
	return r.draws
}
