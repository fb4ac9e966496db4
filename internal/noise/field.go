// Package noise synthesizes the scalar fields that drive image coloring.
package noise

import (
	"fmt"
	"math"

	"github.com/MeKo-Tech/cue/internal/generr"
)

// Field is a row-major grid of scalars. After generation every value lies in [0,1].
type Field struct {
	W, H int
	Data []float64
}

// NewField allocates a zeroed w×h field.
func NewField(w, h int) *Field {
	return &Field{W: w, H: h, Data: make([]float64, w*h)}
}

// At returns the value at (x, y), clamping coordinates to the grid.
func (f *Field) At(x, y int) float64 {
	x = clampInt(x, 0, f.W-1)
	y = clampInt(y, 0, f.H-1)
	return f.Data[y*f.W+x]
}

// Set stores v at (x, y). Coordinates must be in range.
func (f *Field) Set(x, y int, v float64) {
	f.Data[y*f.W+x] = v
}

// Sample bilinearly interpolates the field at normalized coordinates (u, v)
// in [0,1]. Cell centers sit at ((x+0.5)/W, (y+0.5)/H) so a field sampled at
// its own resolution returns the stored values exactly.
func (f *Field) Sample(u, v float64) float64 {
	fx := u*float64(f.W) - 0.5
	fy := v*float64(f.H) - 0.5

	x0 := int(math.Floor(fx))
	y0 := int(math.Floor(fy))
	tx := fx - float64(x0)
	ty := fy - float64(y0)

	top := lerp(f.At(x0, y0), f.At(x0+1, y0), tx)
	bottom := lerp(f.At(x0, y0+1), f.At(x0+1, y0+1), tx)
	return lerp(top, bottom, ty)
}

// Normalize rescales the field linearly into [0,1]. A constant field becomes 0.5.
func (f *Field) Normalize() {
	if len(f.Data) == 0 {
		return
	}
	lo, hi := f.Data[0], f.Data[0]
	for _, v := range f.Data[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	span := hi - lo
	if span <= 0 || math.IsInf(span, 0) || math.IsNaN(span) {
		for i := range f.Data {
			f.Data[i] = 0.5
		}
		return
	}
	for i, v := range f.Data {
		n := (v - lo) / span
		// guard against rounding just outside the unit interval
		if n < 0 {
			n = 0
		} else if n > 1 {
			n = 1
		}
		f.Data[i] = n
	}
}

// CheckFinite reports the first NaN or infinite value as a NumericalInstabilityError.
func (f *Field) CheckFinite() error {
	for i, v := range f.Data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return generr.NumericalInstabilityError("field contains a non-finite value").
				WithContext("x", i%f.W).
				WithContext("y", i/f.W).
				WithContext("value", fmt.Sprint(v))
		}
	}
	return nil
}

// Range returns the minimum and maximum value of the field.
func (f *Field) Range() (lo, hi float64) {
	if len(f.Data) == 0 {
		return 0, 0
	}
	lo, hi = f.Data[0], f.Data[0]
	for _, v := range f.Data[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}

func lerp(a, b, t float64) float64 { return a + (b-a)*t }

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
