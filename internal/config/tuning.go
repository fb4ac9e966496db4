// Package config holds the numeric tuning shared by the parameter mapper and the synthesizers.
package config

import (
	"fmt"
	"math"

	"github.com/MeKo-Tech/cue/internal/generr"
)

// laplacianSpectralRadius is the magnitude of the most negative eigenvalue of
// the nine-point Laplacian (center -1, edges 0.2, corners 0.05).
const laplacianSpectralRadius = 1.6

// Tuning collects every constant the pipeline depends on.
// A zero Tuning is not usable; start from Default.
type Tuning struct {
	// Palette
	ColdHue          float64 `mapstructure:"cold_hue"`
	WarmHue          float64 `mapstructure:"warm_hue"`
	Saturation       float64 `mapstructure:"saturation"`
	LightnessLow     float64 `mapstructure:"lightness_low"`
	LightnessHigh    float64 `mapstructure:"lightness_high"`
	MaxSpreadDegrees float64 `mapstructure:"max_spread_degrees"`

	// Turbulence and grain
	MinTurbulence         float64 `mapstructure:"min_turbulence"`
	MaxTurbulence         float64 `mapstructure:"max_turbulence"`
	TurbulenceFrequency   float64 `mapstructure:"turbulence_frequency"`
	GrainScale            float64 `mapstructure:"grain_scale"`
	MaxGrainDelta         float64 `mapstructure:"max_grain_delta"`
	GrainBlock            int     `mapstructure:"grain_block"`
	SoftenEnergyThreshold float64 `mapstructure:"soften_energy_threshold"`

	// Detail
	DetailMin float64 `mapstructure:"detail_min"`
	DetailMax float64 `mapstructure:"detail_max"`

	// fBm
	Octaves          int     `mapstructure:"octaves"`
	Persistence      float64 `mapstructure:"persistence"`
	Lacunarity       float64 `mapstructure:"lacunarity"`
	FBMBaseFrequency float64 `mapstructure:"fbm_base_frequency"`

	// Lattice, cellular and terrain densities per unit of detail
	ValueCellsPerDetail   float64 `mapstructure:"value_cells_per_detail"`
	WorleyPointsPerDetail float64 `mapstructure:"worley_points_per_detail"`
	TerrainHillsPerDetail float64 `mapstructure:"terrain_hills_per_detail"`

	// Reaction-diffusion (Gray-Scott)
	RDSteps          int     `mapstructure:"rd_steps"`
	RDDt             float64 `mapstructure:"rd_dt"`
	RDDiffusionA     float64 `mapstructure:"rd_diffusion_a"`
	RDDiffusionB     float64 `mapstructure:"rd_diffusion_b"`
	RDFeed           float64 `mapstructure:"rd_feed"`
	RDKill           float64 `mapstructure:"rd_kill"`
	RDDownsample     int     `mapstructure:"rd_downsample"`
	RDMaxGrid        int     `mapstructure:"rd_max_grid"`
	RDSeedsPerDetail float64 `mapstructure:"rd_seeds_per_detail"`

	// Workers bounds row/band parallelism inside a single image (0 = GOMAXPROCS).
	Workers int `mapstructure:"workers"`

	// DefaultAlgorithm is used when the caller does not pick one.
	DefaultAlgorithm string `mapstructure:"default_algorithm"`
}

// Default returns the stock tuning.
func Default() Tuning {
	return Tuning{
		ColdHue:          220,
		WarmHue:          40,
		Saturation:       0.65,
		LightnessLow:     0.30,
		LightnessHigh:    0.72,
		MaxSpreadDegrees: 90,

		MinTurbulence:         0,
		MaxTurbulence:         0.08,
		TurbulenceFrequency:   2.5,
		GrainScale:            0.2,
		MaxGrainDelta:         40,
		GrainBlock:            3,
		SoftenEnergyThreshold: 0.7,

		DetailMin: 1,
		DetailMax: 5,

		Octaves:          6,
		Persistence:      0.5,
		Lacunarity:       2,
		FBMBaseFrequency: 2,

		ValueCellsPerDetail:   4,
		WorleyPointsPerDetail: 20,
		TerrainHillsPerDetail: 6,

		RDSteps:          1200,
		RDDt:             1.0,
		RDDiffusionA:     1.0,
		RDDiffusionB:     0.5,
		RDFeed:           0.055,
		RDKill:           0.062,
		RDDownsample:     2,
		RDMaxGrid:        256,
		RDSeedsPerDetail: 3,

		DefaultAlgorithm: "terrain",
	}
}

// MaxStableDt returns the largest reaction-diffusion time step the explicit
// update tolerates for the configured diffusion rates.
func (t Tuning) MaxStableDt() float64 {
	d := math.Max(t.RDDiffusionA, t.RDDiffusionB)
	if d <= 0 {
		return math.Inf(1)
	}
	return 2 / (laplacianSpectralRadius * d)
}

// Validate checks the tuning for values the pipeline cannot work with.
func (t Tuning) Validate() error {
	finite := map[string]float64{
		"cold_hue": t.ColdHue, "warm_hue": t.WarmHue, "saturation": t.Saturation,
		"lightness_low": t.LightnessLow, "lightness_high": t.LightnessHigh,
		"max_spread_degrees": t.MaxSpreadDegrees, "min_turbulence": t.MinTurbulence,
		"max_turbulence": t.MaxTurbulence, "turbulence_frequency": t.TurbulenceFrequency,
		"grain_scale": t.GrainScale, "max_grain_delta": t.MaxGrainDelta,
		"detail_min": t.DetailMin, "detail_max": t.DetailMax,
		"persistence": t.Persistence, "lacunarity": t.Lacunarity,
		"rd_dt": t.RDDt, "rd_feed": t.RDFeed, "rd_kill": t.RDKill,
	}
	for name, v := range finite {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return generr.ConfigurationError(fmt.Sprintf("%s must be finite", name)).WithContext("field", name)
		}
	}

	switch {
	case t.Saturation < 0 || t.Saturation > 1:
		return invalid("saturation", "must be within [0,1]", t.Saturation)
	case t.LightnessLow < 0 || t.LightnessHigh > 1 || t.LightnessLow > t.LightnessHigh:
		return invalid("lightness_low", "lightness range must satisfy 0 <= low <= high <= 1", t.LightnessLow)
	case t.MaxSpreadDegrees < 0 || t.MaxSpreadDegrees > 180:
		return invalid("max_spread_degrees", "must be within [0,180]", t.MaxSpreadDegrees)
	case t.MinTurbulence < 0 || t.MinTurbulence > t.MaxTurbulence:
		return invalid("min_turbulence", "turbulence range must satisfy 0 <= min <= max", t.MinTurbulence)
	case t.TurbulenceFrequency <= 0:
		return invalid("turbulence_frequency", "must be positive", t.TurbulenceFrequency)
	case t.GrainScale < 0:
		return invalid("grain_scale", "must be non-negative", t.GrainScale)
	case t.MaxGrainDelta < 0 || t.MaxGrainDelta > 255:
		return invalid("max_grain_delta", "must be within [0,255]", t.MaxGrainDelta)
	case t.GrainBlock < 1:
		return invalid("grain_block", "must be at least 1", t.GrainBlock)
	case t.DetailMin <= 0 || t.DetailMin > t.DetailMax:
		return invalid("detail_min", "detail range must satisfy 0 < min <= max", t.DetailMin)
	case t.Octaves < 1:
		return invalid("octaves", "must be at least 1", t.Octaves)
	case t.Persistence <= 0 || t.Persistence > 1:
		return invalid("persistence", "must be within (0,1]", t.Persistence)
	case t.Lacunarity <= 0:
		return invalid("lacunarity", "must be positive", t.Lacunarity)
	case t.FBMBaseFrequency <= 0:
		return invalid("fbm_base_frequency", "must be positive", t.FBMBaseFrequency)
	case t.ValueCellsPerDetail <= 0 || t.WorleyPointsPerDetail <= 0 || t.TerrainHillsPerDetail <= 0 || t.RDSeedsPerDetail <= 0:
		return invalid("value_cells_per_detail", "per-detail densities must be positive", t.ValueCellsPerDetail)
	case t.RDSteps < 0:
		return invalid("rd_steps", "must be non-negative", t.RDSteps)
	case t.RDDiffusionA < 0 || t.RDDiffusionB < 0:
		return invalid("rd_diffusion_a", "diffusion rates must be non-negative", t.RDDiffusionA)
	case t.RDDt <= 0:
		return invalid("rd_dt", "must be positive", t.RDDt)
	case t.RDDt > t.MaxStableDt():
		return invalid("rd_dt", fmt.Sprintf("exceeds the stable bound %.4f", t.MaxStableDt()), t.RDDt)
	case t.RDDownsample < 1:
		return invalid("rd_downsample", "must be at least 1", t.RDDownsample)
	case t.RDMaxGrid < 1:
		return invalid("rd_max_grid", "must be at least 1", t.RDMaxGrid)
	case t.Workers < 0:
		return invalid("workers", "must be non-negative", t.Workers)
	}
	return nil
}

func invalid(field, msg string, value any) error {
	return generr.ConfigurationError(field+" "+msg).
		WithContext("field", field).
		WithContext("value", value)
}
