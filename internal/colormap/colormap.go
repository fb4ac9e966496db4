// Package colormap turns a scalar field into an RGB raster by interpolating
// along a palette.
package colormap

import (
	"context"
	"fmt"
	"image"

	"github.com/MeKo-Tech/cue/internal/generr"
	"github.com/MeKo-Tech/cue/internal/noise"
	"github.com/MeKo-Tech/cue/internal/parallel"
	"github.com/MeKo-Tech/cue/internal/params"
	colorful "github.com/lucasb-eyer/go-colorful"
)

// Warper displaces normalized sampling coordinates. Turbulence is applied
// through it while the field is sampled.
type Warper interface {
	Offset(u, v float64) (du, dv float64)
}

// Options controls output size and sampling.
type Options struct {
	// Width and Height of the output; zero means the field's own size.
	Width, Height int
	// Warp is optional.
	Warp Warper
	// Workers bounds row parallelism (0 = GOMAXPROCS).
	Workers int
}

// Map colors f with the palette in v. A field coarser than the output is
// upsampled bilinearly. Interpolation runs in RGB: a straight blend across two
// anchors, or two blends meeting at 0.5 across three. The result depends only
// on the arguments.
func Map(ctx context.Context, f *noise.Field, v params.Visual, opts Options) (*image.RGBA, error) {
	if f == nil || f.W <= 0 || f.H <= 0 {
		return nil, generr.ConfigurationError("field is empty")
	}
	width, height := opts.Width, opts.Height
	if width == 0 && height == 0 {
		width, height = f.W, f.H
	}
	if err := noise.CheckSize(width, height); err != nil {
		return nil, err
	}
	lut, err := newRamp(v.Palette)
	if err != nil {
		return nil, err
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	warp := opts.Warp

	err = parallel.Rows(ctx, opts.Workers, height, func(y0, y1 int) error {
		for y := y0; y < y1; y++ {
			row := img.Pix[y*img.Stride : y*img.Stride+width*4]
			sv := (float64(y) + 0.5) / float64(height)
			for x := 0; x < width; x++ {
				u := (float64(x) + 0.5) / float64(width)
				vv := sv
				if warp != nil {
					du, dv := warp.Offset(u, vv)
					u += du
					vv += dv
				}
				r, g, b := lut.at(f.Sample(u, vv))
				i := x * 4
				row[i+0] = r
				row[i+1] = g
				row[i+2] = b
				row[i+3] = 0xff
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return img, nil
}

// ramp is the palette resolved to float RGB.
type ramp struct {
	colors []colorful.Color
}

func newRamp(palette []params.Anchor) (ramp, error) {
	if n := len(palette); n != 2 && n != 3 {
		return ramp{}, generr.ConfigurationError(fmt.Sprintf("palette must have 2 or 3 anchors, got %d", n)).
			WithContext("anchors", n)
	}
	r := ramp{colors: make([]colorful.Color, len(palette))}
	for i, a := range palette {
		r.colors[i] = a.Color()
	}
	return r, nil
}

// at maps t in [0,1] to an 8-bit color.
func (r ramp) at(t float64) (uint8, uint8, uint8) {
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}

	var c colorful.Color
	if len(r.colors) == 2 {
		c = r.colors[0].BlendRgb(r.colors[1], t)
	} else if t < 0.5 {
		c = r.colors[0].BlendRgb(r.colors[1], t*2)
	} else {
		c = r.colors[1].BlendRgb(r.colors[2], (t-0.5)*2)
	}
	return c.Clamped().RGB255()
}
