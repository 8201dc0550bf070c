// Package seed derives reproducible sub-seeds from a run seed and a list
// of string labels, so per-student and per-item randomness is stable across
// runs regardless of scheduling order.
package seed

import (
	"hash/fnv"
	"math/rand/v2"
)

// Derive mixes the base seed with the labels into a 64-bit sub-seed.
// The same inputs always produce the same output.
func Derive(base uint64, labels ...string) uint64 {
	h := fnv.New64a()
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(base >> (8 * i))
	}
	h.Write(buf[:])
	for _, l := range labels {
		h.Write([]byte(l))
		h.Write([]byte{0})
	}
	return h.Sum64()
}

// Rand returns a PRNG seeded from Derive(base, labels...).
func Rand(base uint64, labels ...string) *rand.Rand {
	s := Derive(base, labels...)
	return rand.New(rand.NewPCG(s, s^0x9e3779b97f4a7c15))
}
