package noise

import (
	"math"
	"testing"

	"github.com/MeKo-Tech/cue/internal/generr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldNormalize(t *testing.T) {
	f := &Field{W: 2, H: 2, Data: []float64{-3, 1, 5, -1}}
	f.Normalize()
	assert.Equal(t, []float64{0, 0.5, 1, 0.25}, f.Data)
}

func TestFieldNormalizeConstant(t *testing.T) {
	f := &Field{W: 3, H: 1, Data: []float64{7, 7, 7}}
	f.Normalize()
	assert.Equal(t, []float64{0.5, 0.5, 0.5}, f.Data)
}

func TestFieldSampleAtOwnResolution(t *testing.T) {
	f := &Field{W: 3, H: 2, Data: []float64{0, 0.2, 0.4, 0.6, 0.8, 1}}
	for y := 0; y < f.H; y++ {
		for x := 0; x < f.W; x++ {
			assert.InDelta(t, f.At(x, y), f.Sample(center(x, f.W), center(y, f.H)), 1e-12)
		}
	}
}

func TestFieldSampleInterpolates(t *testing.T) {
	f := &Field{W: 2, H: 1, Data: []float64{0, 1}}
	assert.InDelta(t, 0.5, f.Sample(0.5, 0.5), 1e-12)
	// beyond the outer cell centers the edge value is held
	assert.InDelta(t, 0.0, f.Sample(0, 0.5), 1e-12)
	assert.InDelta(t, 1.0, f.Sample(1, 0.5), 1e-12)
}

func TestFieldAtClamps(t *testing.T) {
	f := &Field{W: 2, H: 2, Data: []float64{1, 2, 3, 4}}
	assert.Equal(t, 1.0, f.At(-5, -5))
	assert.Equal(t, 4.0, f.At(9, 9))
}

func TestFieldCheckFinite(t *testing.T) {
	f := NewField(2, 2)
	require.NoError(t, f.CheckFinite())

	f.Set(1, 1, math.NaN())
	err := f.CheckFinite()
	require.Error(t, err)
	assert.True(t, generr.IsNumericalInstability(err))

	ge, ok := generr.As(err)
	require.True(t, ok)
	assert.Equal(t, 1, ge.Context["x"])
	assert.Equal(t, 1, ge.Context["y"])

	f.Set(1, 1, math.Inf(-1))
	assert.True(t, generr.IsNumericalInstability(f.CheckFinite()))
}
