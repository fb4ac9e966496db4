package noise

import (
	"context"
	"math"

	"github.com/MeKo-Tech/cue/internal/config"
	"github.com/MeKo-Tech/cue/internal/params"
	"github.com/MeKo-Tech/cue/internal/rng"
)

// Terrain sums radial gaussian hills over a low-frequency sinusoidal undulation.
type Terrain struct {
	tuning config.Tuning
}

type hill struct {
	x, y   float64
	inv2r2 float64 // 1 / (2·radius²)
	amp    float64
}

func (n *Terrain) Algorithm() params.Algorithm { return params.Terrain }

func (n *Terrain) Generate(ctx context.Context, width, height int, seed int64, vis params.Visual) (*Field, error) {
	if err := CheckSize(width, height); err != nil {
		return nil, err
	}

	t := n.tuning
	// e is detail rescaled to [0,1]; more detail gives smaller hills
	e := 0.0
	if t.DetailMax > t.DetailMin {
		e = math.Min(1, math.Max(0, (vis.Detail-t.DetailMin)/(t.DetailMax-t.DetailMin)))
	}
	minR := 0.05 + (1-e)*0.1
	maxR := 0.2 + (1-e)*0.3
	extent := float64(min(width, height))

	r := rng.New(seed, streamTerrain)
	hills := make([]hill, countFor(t.TerrainHillsPerDetail, vis.Detail))
	for i := range hills {
		radius := (minR + r.Float64()*(maxR-minR)) * extent
		hills[i] = hill{
			x:      r.Float64() * float64(width),
			y:      r.Float64() * float64(height),
			inv2r2: 1 / (2 * radius * radius),
			amp:    0.3 + r.Float64()*0.7,
		}
	}
	xf, yf := 1+r.Float64()*2, 1+r.Float64()*2
	xp, yp := r.Float64()*2*math.Pi, r.Float64()*2*math.Pi

	f := NewField(width, height)
	err := fill(ctx, t.Workers, f, func(x, y int) float64 {
		px, py := float64(x)+0.5, float64(y)+0.5
		h := 0.0
		for _, hl := range hills {
			dx, dy := px-hl.x, py-hl.y
			h += hl.amp * math.Exp(-(dx*dx+dy*dy)*hl.inv2r2)
		}
		u, v := center(x, width), center(y, height)
		h += 0.3 * (math.Sin(u*xf*math.Pi+xp) + math.Sin(v*yf*math.Pi+yp))
		return h
	})
	if err != nil {
		return nil, err
	}
	return finish(f)
}
