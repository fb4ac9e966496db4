// Package post holds the passes that shape an image around the color lookup:
// turbulence warp, low-energy softening and film grain.
package post

import (
	"github.com/MeKo-Tech/cue/internal/rng"
	"github.com/aquilax/go-perlin"
)

const (
	streamWarpX uint64 = iota + 101
	streamWarpY
	streamGrainCoarse
	streamGrainFine
)

// warpOctaves keeps the offset field low-frequency.
const warpOctaves = 2

// Warp is a coherent offset field used to distort sampling coordinates.
// A nil *Warp yields zero offsets.
type Warp struct {
	amplitude float64
	frequency float64
	px, py    *perlin.Perlin
}

// NewWarp returns a warp of the given amplitude (fraction of the image) and
// frequency (cycles per image). It returns nil when amplitude is not positive.
func NewWarp(amplitude, frequency float64, seed int64) *Warp {
	if amplitude <= 0 {
		return nil
	}
	return &Warp{
		amplitude: amplitude,
		frequency: frequency,
		px:        perlin.NewPerlin(2, 2, warpOctaves, subSeed(seed, streamWarpX)),
		py:        perlin.NewPerlin(2, 2, warpOctaves, subSeed(seed, streamWarpY)),
	}
}

// Amplitude reports the configured amplitude.
func (w *Warp) Amplitude() float64 {
	if w == nil {
		return 0
	}
	return w.amplitude
}

// Offset returns the displacement at normalized coordinates (u, v).
func (w *Warp) Offset(u, v float64) (du, dv float64) {
	if w == nil {
		return 0, 0
	}
	// the +0.5 shift keeps samples off the lattice points where Perlin noise is zero
	x := u*w.frequency + 0.5
	y := v*w.frequency + 0.5
	return w.amplitude * w.px.Noise2D(x, y), w.amplitude * w.py.Noise2D(x, y)
}

func subSeed(seed int64, stream uint64) int64 {
	return int64(rng.Hash(seed, stream, 0, 0) >> 1)
}
