package noise

import (
	"context"
	"fmt"

	"github.com/MeKo-Tech/cue/internal/config"
	"github.com/MeKo-Tech/cue/internal/generr"
	"github.com/MeKo-Tech/cue/internal/parallel"
	"github.com/MeKo-Tech/cue/internal/params"
)

// RNG streams. Each variant draws from its own stream so that two variants
// run with the same seed never share random numbers.
const (
	streamGradient uint64 = iota + 1
	streamValue
	streamFBM
	streamWorley
	streamTerrain
	streamReaction
	streamReactionJitterA
	streamReactionJitterB
)

// Synthesizer generates a scalar field in [0,1] for one algorithm.
// Output is a pure function of its arguments and the synthesizer's tuning.
type Synthesizer interface {
	Algorithm() params.Algorithm
	Generate(ctx context.Context, width, height int, seed int64, v params.Visual) (*Field, error)
}

// New returns the synthesizer for alg.
func New(alg params.Algorithm, t config.Tuning) (Synthesizer, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	switch alg {
	case params.Gradient:
		return &Gradient{tuning: t}, nil
	case params.Value:
		return &Value{tuning: t}, nil
	case params.FBM:
		return &FBM{tuning: t}, nil
	case params.Worley:
		return &Worley{tuning: t}, nil
	case params.Terrain:
		return &Terrain{tuning: t}, nil
	case params.ReactionDiffusion:
		return &ReactionDiffusion{tuning: t}, nil
	default:
		return nil, generr.ConfigurationError(fmt.Sprintf("unknown algorithm %q", alg.String())).
			WithContext("algorithm", alg.String())
	}
}

// CheckSize rejects non-positive output dimensions.
func CheckSize(width, height int) error {
	if width <= 0 || height <= 0 {
		return generr.ConfigurationError(fmt.Sprintf("dimensions must be positive, got %dx%d", width, height)).
			WithContext("width", width).
			WithContext("height", height)
	}
	return nil
}

// fill evaluates fn for every cell of f, parallel across rows. fn must be
// pure in (x, y) so the result does not depend on scheduling.
func fill(ctx context.Context, workers int, f *Field, fn func(x, y int) float64) error {
	return parallel.Rows(ctx, workers, f.H, func(y0, y1 int) error {
		for y := y0; y < y1; y++ {
			row := f.Data[y*f.W : (y+1)*f.W]
			for x := range row {
				row[x] = fn(x, y)
			}
		}
		return nil
	})
}

// finish validates and normalizes a freshly synthesized field.
func finish(f *Field) (*Field, error) {
	if err := f.CheckFinite(); err != nil {
		return nil, err
	}
	f.Normalize()
	return f, nil
}

// center maps cell index i of n to its normalized center coordinate.
func center(i, n int) float64 {
	return (float64(i) + 0.5) / float64(n)
}

// countFor scales a per-detail density to a count of at least one.
func countFor(perDetail, detail float64) int {
	n := int(perDetail*detail + 0.5)
	if n < 1 {
		return 1
	}
	return n
}
