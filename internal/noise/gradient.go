package noise

import (
	"context"
	"math"

	"github.com/MeKo-Tech/cue/internal/config"
	"github.com/MeKo-Tech/cue/internal/params"
	"github.com/MeKo-Tech/cue/internal/rng"
)

// Gradient is a linear ramp at a seeded angle modulated by two sinusoidal bands.
type Gradient struct {
	tuning config.Tuning
}

func (g *Gradient) Algorithm() params.Algorithm { return params.Gradient }

func (g *Gradient) Generate(ctx context.Context, width, height int, seed int64, vis params.Visual) (*Field, error) {
	if err := CheckSize(width, height); err != nil {
		return nil, err
	}

	r := rng.New(seed, streamGradient)
	angle := r.Float64() * 2 * math.Pi
	// band frequencies in cycles per image, rising with detail
	fu := 0.5 + r.Float64()*0.5*vis.Detail
	fv := 0.5 + r.Float64()*0.5*vis.Detail
	pu, pv := r.Float64(), r.Float64()
	ca, sa := math.Cos(angle), math.Sin(angle)

	f := NewField(width, height)
	err := fill(ctx, g.tuning.Workers, f, func(x, y int) float64 {
		u, v := center(x, width), center(y, height)
		ramp := (u-0.5)*ca + (v-0.5)*sa
		bands := math.Sin(2*math.Pi*(fu*u+pu)) * math.Cos(2*math.Pi*(fv*v+pv))
		return ramp + 0.25*bands
	})
	if err != nil {
		return nil, err
	}
	return finish(f)
}
