package post

import (
	"context"
	"image"
	"math"

	"github.com/MeKo-Tech/cue/internal/parallel"
	"github.com/MeKo-Tech/cue/internal/rng"
	"golang.org/x/image/draw"
)

// Weights of the coarse and fine grain components. They sum to one so the
// combined perturbation never exceeds the requested bound.
const (
	coarseWeight = 0.6
	fineWeight   = 0.4
)

// Grain describes a film grain pass.
type Grain struct {
	// Intensity in [0,1] scales MaxDelta.
	Intensity float64
	// MaxDelta is the largest per-channel shift at full intensity, in 8-bit units.
	MaxDelta float64
	// Block is the size in pixels of one coarse grain cell.
	Block   int
	Seed    int64
	Workers int
}

// Bound is the largest absolute shift the pass can apply before rounding.
func (g Grain) Bound() float64 {
	return math.Max(0, g.Intensity) * g.MaxDelta
}

// ApplyGrain returns a copy of img with a luminance perturbation of at most
// ±Intensity·MaxDelta added to every pixel and clipped to [0,255]. The same
// shift is added to all three channels.
func ApplyGrain(ctx context.Context, img *image.RGBA, g Grain) (*image.RGBA, error) {
	b := img.Bounds()
	out := image.NewRGBA(b)
	copy(out.Pix, img.Pix)

	bound := g.Bound()
	if bound == 0 || b.Empty() {
		return out, nil
	}

	coarse := coarseGrain(b, max(1, g.Block), g.Seed)

	err := parallel.Rows(ctx, g.Workers, b.Dy(), func(y0, y1 int) error {
		for y := y0; y < y1; y++ {
			for x := 0; x < b.Dx(); x++ {
				c := (float64(coarse.Pix[y*coarse.Stride+x]) - 128) / 127
				f := rng.Signed(g.Seed, streamGrainFine, x, y)
				delta := (coarseWeight*c + fineWeight*f) * bound

				i := y*out.Stride + x*4
				out.Pix[i+0] = shift(out.Pix[i+0], delta)
				out.Pix[i+1] = shift(out.Pix[i+1], delta)
				out.Pix[i+2] = shift(out.Pix[i+2], delta)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// coarseGrain renders one random gray level per block and scales it up to
// the full image with nearest-neighbour sampling.
func coarseGrain(b image.Rectangle, block int, seed int64) *image.Gray {
	cw := (b.Dx() + block - 1) / block
	ch := (b.Dy() + block - 1) / block
	small := image.NewGray(image.Rect(0, 0, cw, ch))
	for y := 0; y < ch; y++ {
		for x := 0; x < cw; x++ {
			small.Pix[y*small.Stride+x] = uint8(math.Round(128 + 127*rng.Signed(seed, streamGrainCoarse, x, y)))
		}
	}

	full := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.NearestNeighbor.Scale(full, full.Bounds(), small, small.Bounds(), draw.Src, nil)
	return full
}

func shift(v uint8, delta float64) uint8 {
	n := math.Round(float64(v) + delta)
	if n < 0 {
		return 0
	}
	if n > 255 {
		return 255
	}
	return uint8(n)
}
