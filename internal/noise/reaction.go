package noise

import (
	"context"
	"fmt"
	"math"

	"github.com/MeKo-Tech/cue/internal/config"
	"github.com/MeKo-Tech/cue/internal/generr"
	"github.com/MeKo-Tech/cue/internal/parallel"
	"github.com/MeKo-Tech/cue/internal/params"
	"github.com/MeKo-Tech/cue/internal/rng"
)

// Nine-point Laplacian weights.
const (
	lapCenter = -1.0
	lapEdge   = 0.2
	lapCorner = 0.05
)

// minRowsPerBand keeps per-step goroutine overhead below the work it splits.
const minRowsPerBand = 16

// ReactionDiffusion runs a Gray-Scott simulation on a compute grid that is
// usually coarser than the output; the color mapper upsamples it. The
// returned field is the normalized B concentration.
type ReactionDiffusion struct {
	tuning config.Tuning
}

func (n *ReactionDiffusion) Algorithm() params.Algorithm { return params.ReactionDiffusion }

// GridSize returns the compute grid used for a width×height output.
func (n *ReactionDiffusion) GridSize(width, height int) (gw, gh int) {
	ds := max(n.tuning.RDDownsample, ceilDiv(max(width, height), n.tuning.RDMaxGrid))
	return max(1, ceilDiv(width, ds)), max(1, ceilDiv(height, ds))
}

func (n *ReactionDiffusion) Generate(ctx context.Context, width, height int, seed int64, vis params.Visual) (*Field, error) {
	if err := CheckSize(width, height); err != nil {
		return nil, err
	}
	t := n.tuning
	if limit := t.MaxStableDt(); t.RDDt > limit {
		return nil, generr.ConfigurationError(fmt.Sprintf("time step %.4f exceeds the stable bound %.4f", t.RDDt, limit)).
			WithContext("rd_dt", t.RDDt)
	}

	gw, gh := n.GridSize(width, height)
	sim := &grayScott{
		w: gw, h: gh,
		dt: t.RDDt, da: t.RDDiffusionA, db: t.RDDiffusionB,
		feed: t.RDFeed, kill: t.RDKill,
	}
	a, b := sim.seed(seed, countFor(t.RDSeedsPerDetail, vis.Detail))
	na, nb := make([]float64, len(a)), make([]float64, len(b))

	workers := parallel.Workers(t.Workers)
	workers = max(1, min(workers, gh/minRowsPerBand))

	for step := 0; step < t.RDSteps; step++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		err := parallel.Rows(ctx, workers, gh, func(y0, y1 int) error {
			return sim.step(step, a, b, na, nb, y0, y1)
		})
		if err != nil {
			return nil, err
		}
		a, na = na, a
		b, nb = nb, b
	}

	return finish(&Field{W: gw, H: gh, Data: b})
}

type grayScott struct {
	w, h       int
	dt, da, db float64
	feed, kill float64
}

// seed fills A with 1 and B with 0, then places count discs near the middle
// of the grid with A≈0.5 and B≈0.25 plus a little jitter.
func (s *grayScott) seed(seed int64, count int) (a, b []float64) {
	a = make([]float64, s.w*s.h)
	b = make([]float64, s.w*s.h)
	for i := range a {
		a[i] = 1
	}

	r := rng.New(seed, streamReaction)
	extent := float64(min(s.w, s.h))
	for range count {
		cx := s.w/4 + r.Intn(max(1, s.w/2))
		cy := s.h/4 + r.Intn(max(1, s.h/2))
		radius := math.Max(1, (0.04+r.Float64()*0.08)*extent)
		ri := int(math.Ceil(radius))

		for y := max(0, cy-ri); y <= min(s.h-1, cy+ri); y++ {
			for x := max(0, cx-ri); x <= min(s.w-1, cx+ri); x++ {
				dx, dy := float64(x-cx), float64(y-cy)
				if dx*dx+dy*dy > radius*radius {
					continue
				}
				i := y*s.w + x
				a[i] = 0.5 + 0.01*rng.Signed(seed, streamReactionJitterA, x, y)
				b[i] = 0.25 + 0.01*rng.Signed(seed, streamReactionJitterB, x, y)
			}
		}
	}
	return a, b
}

// step advances rows [y0,y1) by one explicit Euler step, reading a and b and
// writing na and nb. Edges replicate their nearest cell.
func (s *grayScott) step(step int, a, b, na, nb []float64, y0, y1 int) error {
	w, h := s.w, s.h
	for y := y0; y < y1; y++ {
		up, down := max(y-1, 0)*w, min(y+1, h-1)*w
		row := y * w
		for x := 0; x < w; x++ {
			left, right := max(x-1, 0), min(x+1, w-1)
			i := row + x

			lapA := laplacian(a, i, up, row, down, x, left, right)
			lapB := laplacian(b, i, up, row, down, x, left, right)

			ai, bi := a[i], b[i]
			abb := ai * bi * bi
			va := ai + s.dt*(s.da*lapA-abb+s.feed*(1-ai))
			vb := bi + s.dt*(s.db*lapB+abb-(s.kill+s.feed)*bi)

			if math.IsNaN(va) || math.IsInf(va, 0) || math.IsNaN(vb) || math.IsInf(vb, 0) {
				return generr.NumericalInstabilityError("reaction-diffusion produced a non-finite concentration").
					WithContext("step", step).
					WithContext("x", x).
					WithContext("y", y)
			}
			na[i], nb[i] = va, vb
		}
	}
	return nil
}

func laplacian(g []float64, i, up, row, down, x, left, right int) float64 {
	edges := g[up+x] + g[down+x] + g[row+left] + g[row+right]
	corners := g[up+left] + g[up+right] + g[down+left] + g[down+right]
	return lapCenter*g[i] + lapEdge*edges + lapCorner*corners
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
