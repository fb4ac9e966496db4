// Package rng threads explicit seeds through the pipeline.
//
// Nothing here keeps state: per-pixel randomness is a pure hash of
// (seed, stream, x, y), so parallel workers can evaluate any coordinate
// in any order and still agree bit for bit.
package rng

import "math/rand"

const golden = 0x9e3779b97f4a7c15

// mix is the splitmix64 finalizer.
func mix(z uint64) uint64 {
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// Hash combines a seed with a stream tag and two lattice coordinates.
func Hash(seed int64, stream uint64, x, y int) uint64 {
	h := mix(uint64(seed) + golden)
	h = mix(h ^ (stream + golden))
	h = mix(h ^ uint64(int64(x)) + golden)
	h = mix(h ^ uint64(int64(y)) + golden)
	return h
}

// Float returns a value in [0,1) for the given coordinate.
func Float(seed int64, stream uint64, x, y int) float64 {
	return float64(Hash(seed, stream, x, y)>>11) / (1 << 53)
}

// Signed returns a value in [-1,1) for the given coordinate.
func Signed(seed int64, stream uint64, x, y int) float64 {
	return Float(seed, stream, x, y)*2 - 1
}

// Derive returns the seed for variation index i of a run started with base.
func Derive(base int64, index int) int64 {
	return int64(mix(uint64(base)^mix(uint64(int64(index))+golden)) >> 1)
}

// New returns a private generator for sequential draws such as scattering
// feature points before a parallel pass.
func New(seed int64, stream uint64) *rand.Rand {
	return rand.New(rand.NewSource(int64(Hash(seed, stream, 0, 0) >> 1)))
}
