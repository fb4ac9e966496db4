package params

import (
	"fmt"
	"image/color"
	"math"

	"github.com/MeKo-Tech/cue/internal/config"
	"github.com/MeKo-Tech/cue/internal/generr"
	colorful "github.com/lucasb-eyer/go-colorful"
)

// conflictThreshold splits two-anchor from three-anchor palettes.
const conflictThreshold = 0.5

// Anchor is one palette color, kept in HSL so interpolation can start from
// the exact value rather than the 8-bit rounding in RGB.
type Anchor struct {
	Hue        float64    `json:"hue"`
	Saturation float64    `json:"saturation"`
	Lightness  float64    `json:"lightness"`
	RGB        color.RGBA `json:"rgb"`
}

// Color returns the anchor as a float RGB color.
func (a Anchor) Color() colorful.Color {
	return colorful.Hsl(a.Hue, a.Saturation, a.Lightness)
}

// Visual is the immutable set of parameters derived from one Scores value.
type Visual struct {
	// Scores are the clamped inputs the parameters were derived from.
	Scores Scores `json:"scores"`
	// WarmthHue is the unwrapped hue of the base anchor in degrees. It grows
	// from ColdHue at positiveness 0 to ColdHue+span at positiveness 1.
	WarmthHue   float64   `json:"warmth_hue"`
	Palette     []Anchor  `json:"palette"`
	Turbulence  float64   `json:"turbulence"`
	Grain       float64   `json:"grain"`
	Detail      float64   `json:"detail"`
	SoftenSigma float64   `json:"soften_sigma"`
	Algorithm   Algorithm `json:"algorithm"`
}

// Mapper derives Visual parameters from Scores. It is safe for concurrent use.
type Mapper struct {
	tuning     config.Tuning
	defaultAlg Algorithm
}

// NewMapper validates the tuning and returns a mapper bound to it.
func NewMapper(t config.Tuning) (*Mapper, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	def, err := ParseAlgorithm(t.DefaultAlgorithm)
	if err != nil {
		return nil, err
	}
	return &Mapper{tuning: t, defaultAlg: def}, nil
}

// DefaultAlgorithm returns the algorithm used when none is requested.
func (m *Mapper) DefaultAlgorithm() Algorithm { return m.defaultAlg }

// Map derives the visual parameters. Scores are clamped to [0,1] first.
// A zero alg selects the default; an unknown non-zero alg is a configuration error.
func (m *Mapper) Map(s Scores, alg Algorithm) (Visual, error) {
	if alg == 0 {
		alg = m.defaultAlg
	}
	if !alg.Valid() {
		return Visual{}, generr.ConfigurationError(fmt.Sprintf("unknown algorithm %d", uint8(alg))).
			WithContext("algorithm", uint8(alg))
	}

	s = s.Clamped()
	t := m.tuning

	v := Visual{
		Scores:     s,
		WarmthHue:  m.WarmthHue(s.Positiveness),
		Turbulence: lerp(t.MinTurbulence, t.MaxTurbulence, s.Energy),
		Grain:      s.Energy * t.GrainScale,
		Detail:     lerp(t.DetailMin, t.DetailMax, s.Energy),
		Algorithm:  alg,
	}
	v.Palette = m.palette(v.WarmthHue, s.Conflictness)
	if s.Energy < t.SoftenEnergyThreshold {
		v.SoftenSigma = 1 - 0.5*s.Energy
	}
	return v, nil
}

// WarmthHue interpolates from the cold anchor to the warm anchor, always
// travelling in the direction of increasing hue.
func (m *Mapper) WarmthHue(positiveness float64) float64 {
	span := wrapHue(m.tuning.WarmHue - m.tuning.ColdHue)
	return m.tuning.ColdHue + span*clamp01(positiveness)
}

// PaletteSize returns 2 below the conflict threshold and 3 at or above it.
func PaletteSize(conflictness float64) int {
	if conflictness < conflictThreshold {
		return 2
	}
	return 3
}

func (m *Mapper) palette(warmth, conflictness float64) []Anchor {
	t := m.tuning
	spread := conflictness * t.MaxSpreadDegrees

	var hues []float64
	if PaletteSize(conflictness) == 2 {
		hues = []float64{warmth, warmth + spread}
	} else {
		hues = []float64{warmth - spread, warmth, warmth + spread}
	}

	anchors := make([]Anchor, len(hues))
	for i, h := range hues {
		l := lerp(t.LightnessLow, t.LightnessHigh, float64(i)/float64(len(hues)-1))
		a := Anchor{Hue: wrapHue(h), Saturation: t.Saturation, Lightness: l}
		r, g, b := a.Color().Clamped().RGB255()
		a.RGB = color.RGBA{R: r, G: g, B: b, A: 255}
		anchors[i] = a
	}
	return anchors
}

// wrapHue maps any angle into [0,360).
func wrapHue(h float64) float64 {
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	return h
}
