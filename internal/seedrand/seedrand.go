// Package seedrand derives identical pseudo-random draws on both clients from
// a shared integer seed, so mini-game content never has to cross the wire.
// It is deliberately not cryptographically sound; the goal is reproducibility.
package seedrand

import "math"

// Draw returns a float in [0,1) as a pure function of seed. Call sites
// combine a shared base seed with local offsets (question index, attempt
// counter) to get a fresh draw per decision point; no state is carried
// between calls.
func Draw(seed int64) float64 {
	x := math.Sin(float64(seed)) * 10000
	return x - math.Floor(x)
}

// IntN returns an int in [0,n) derived from seed. n must be positive.
func IntN(seed int64, n int) int {
	return int(Draw(seed) * float64(n))
}

// Shuffle permutes items in place with a seeded Fisher-Yates walk, using one
// offset per swap so the permutation is a pure function of seed.
func Shuffle[T any](items []T, seed int64) {
	for i := len(items) - 1; i > 0; i-- {
		j := IntN(seed+int64(i), i+1)
		items[i], items[j] = items[j], items[i]
	}
}
