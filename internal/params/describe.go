package params

import (
	"fmt"
	"strings"
)

var patternPhrases = map[Algorithm]string{
	Gradient:          "with simple gradients",
	Value:             "with soft value-noise clouds",
	FBM:               "with fractal noise patterns",
	Worley:            "featuring cellular structures",
	Terrain:           "shaped like rolling terrain",
	ReactionDiffusion: "with intricate reaction-diffusion patterns",
}

// Describe renders a human-readable summary of the parameters for logs.
func Describe(v Visual) string {
	s := v.Scores
	parts := make([]string, 0, 4)

	switch {
	case s.Positiveness > 0.7:
		parts = append(parts, "warm and inviting")
	case s.Positiveness < 0.3:
		parts = append(parts, "cool and contemplative")
	default:
		parts = append(parts, "neutral-toned")
	}

	switch {
	case s.Energy > 0.7:
		parts = append(parts, "dynamic and turbulent")
	case s.Energy < 0.3:
		parts = append(parts, "calm and flowing")
	default:
		parts = append(parts, "moderately energetic")
	}

	if p, ok := patternPhrases[v.Algorithm]; ok {
		parts = append(parts, p)
	}

	switch {
	case s.Conflictness > 0.7:
		parts = append(parts, "and highly varied, conflicting colors")
	case s.Conflictness > 0.3:
		parts = append(parts, "with some color variation")
	default:
		parts = append(parts, "in a unified color scheme")
	}

	return fmt.Sprintf("A %s composition (%d-color palette, hue %.0f°)",
		strings.Join(parts, ", "), len(v.Palette), wrapHue(v.WarmthHue))
}
