package noise

import (
	"context"
	"math"

	"github.com/MeKo-Tech/cue/internal/config"
	"github.com/MeKo-Tech/cue/internal/params"
	"github.com/MeKo-Tech/cue/internal/rng"
)

// Worley is cellular noise: the inverted distance to the nearest of K scattered points.
type Worley struct {
	tuning config.Tuning
}

func (n *Worley) Algorithm() params.Algorithm { return params.Worley }

func (n *Worley) Generate(ctx context.Context, width, height int, seed int64, vis params.Visual) (*Field, error) {
	if err := CheckSize(width, height); err != nil {
		return nil, err
	}

	k := countFor(n.tuning.WorleyPointsPerDetail, vis.Detail)
	r := rng.New(seed, streamWorley)
	points := make([][2]float64, k)
	for i := range points {
		points[i] = [2]float64{r.Float64() * float64(width), r.Float64() * float64(height)}
	}

	f := NewField(width, height)
	err := fill(ctx, n.tuning.Workers, f, func(x, y int) float64 {
		px, py := float64(x)+0.5, float64(y)+0.5
		best := math.Inf(1)
		for _, p := range points {
			dx, dy := px-p[0], py-p[1]
			if d := dx*dx + dy*dy; d < best {
				best = d
			}
		}
		return math.Sqrt(best)
	})
	if err != nil {
		return nil, err
	}

	// invert so cell centers are bright; Normalize stretches the result
	_, far := f.Range()
	if far > 0 {
		for i, d := range f.Data {
			f.Data[i] = 1 - d/far
		}
	}
	return finish(f)
}
