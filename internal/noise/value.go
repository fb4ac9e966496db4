package noise

import (
	"context"
	"math"

	"github.com/MeKo-Tech/cue/internal/config"
	"github.com/MeKo-Tech/cue/internal/params"
	"github.com/MeKo-Tech/cue/internal/rng"
)

// Value interpolates random lattice values bilinearly. The lattice gets
// denser as detail grows.
type Value struct {
	tuning config.Tuning
}

func (n *Value) Algorithm() params.Algorithm { return params.Value }

func (n *Value) Generate(ctx context.Context, width, height int, seed int64, vis params.Visual) (*Field, error) {
	if err := CheckSize(width, height); err != nil {
		return nil, err
	}

	cells := countFor(n.tuning.ValueCellsPerDetail, vis.Detail)
	// square cells sized against the longer edge
	spacing := float64(max(width, height)) / float64(cells)

	lattice := func(ix, iy int) float64 {
		return rng.Float(seed, streamValue, ix, iy)
	}

	f := NewField(width, height)
	err := fill(ctx, n.tuning.Workers, f, func(x, y int) float64 {
		fx := (float64(x) + 0.5) / spacing
		fy := (float64(y) + 0.5) / spacing
		ix, iy := int(math.Floor(fx)), int(math.Floor(fy))
		tx, ty := fx-float64(ix), fy-float64(iy)

		top := lerp(lattice(ix, iy), lattice(ix+1, iy), tx)
		bottom := lerp(lattice(ix, iy+1), lattice(ix+1, iy+1), tx)
		return lerp(top, bottom, ty)
	})
	if err != nil {
		return nil, err
	}
	return finish(f)
}
