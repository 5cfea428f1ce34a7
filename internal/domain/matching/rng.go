package matching

import "math/rand/v2"

// RNG is the source of randomness threaded through every match.
// *rand.Rand satisfies it.
type RNG interface {
	Float64() float64
	IntN(n int) int
	Shuffle(n int, swap func(i, j int))
	Perm(n int) []int
}

// NewRNG returns a PCG-backed generator. Equal seeds give equal streams.
func NewRNG(seed uint64) RNG {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}
