package noise

import (
	"context"

	"github.com/MeKo-Tech/cue/internal/config"
	"github.com/MeKo-Tech/cue/internal/params"
	"github.com/MeKo-Tech/cue/internal/rng"
	"github.com/aquilax/go-perlin"
)

// FBM sums Octaves layers of Perlin noise. Each octave multiplies frequency
// by Lacunarity and amplitude by Persistence. The sum is renormalized, so the
// result stays in [0,1] for any octave count.
type FBM struct {
	tuning config.Tuning
}

func (n *FBM) Algorithm() params.Algorithm { return params.FBM }

func (n *FBM) Generate(ctx context.Context, width, height int, seed int64, vis params.Visual) (*Field, error) {
	if err := CheckSize(width, height); err != nil {
		return nil, err
	}

	t := n.tuning
	// A single-octave generator; the octave loop lives here so persistence
	// and lacunarity come from the tuning rather than the library defaults.
	p := perlin.NewPerlin(2, 2, 1, seed)

	// Perlin noise is zero on integer lattice points. A per-octave offset
	// keeps octaves from lining up on them.
	r := rng.New(seed, streamFBM)
	offsets := make([][2]float64, t.Octaves)
	for i := range offsets {
		offsets[i] = [2]float64{r.Float64() * 256, r.Float64() * 256}
	}

	base := t.FBMBaseFrequency * vis.Detail
	scale := float64(max(width, height))

	f := NewField(width, height)
	err := fill(ctx, t.Workers, f, func(x, y int) float64 {
		u := (float64(x) + 0.5) / scale
		v := (float64(y) + 0.5) / scale

		sum, amp, freq := 0.0, 1.0, base
		for o := 0; o < t.Octaves; o++ {
			sum += amp * p.Noise2D(u*freq+offsets[o][0], v*freq+offsets[o][1])
			amp *= t.Persistence
			freq *= t.Lacunarity
		}
		return sum
	})
	if err != nil {
		return nil, err
	}
	return finish(f)
}
