package params

import (
	"fmt"
	"strings"

	"github.com/MeKo-Tech/cue/internal/generr"
)

// Algorithm identifies a noise field synthesizer. The zero value means
// "not chosen" and is replaced by the configured default during mapping.
type Algorithm uint8

const (
	Gradient Algorithm = iota + 1
	Value
	FBM
	Worley
	Terrain
	ReactionDiffusion
)

var algorithmNames = [...]string{
	Gradient:          "gradient",
	Value:             "value",
	FBM:               "fbm",
	Worley:            "worley",
	Terrain:           "terrain",
	ReactionDiffusion: "reaction_diffusion",
}

var algorithmAliases = map[string]Algorithm{
	"cellular":           Worley,
	"reaction-diffusion": ReactionDiffusion,
	"reaction":           ReactionDiffusion,
	"rd":                 ReactionDiffusion,
}

// Algorithms returns every registered algorithm in a stable order.
func Algorithms() []Algorithm {
	return []Algorithm{Gradient, Value, FBM, Worley, Terrain, ReactionDiffusion}
}

// Valid reports whether a names a registered algorithm.
func (a Algorithm) Valid() bool {
	return a >= Gradient && a <= ReactionDiffusion
}

func (a Algorithm) String() string {
	if !a.Valid() {
		return fmt.Sprintf("algorithm(%d)", uint8(a))
	}
	return algorithmNames[a]
}

// ParseAlgorithm resolves a case-insensitive name.
func ParseAlgorithm(name string) (Algorithm, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	for _, a := range Algorithms() {
		if algorithmNames[a] == key {
			return a, nil
		}
	}
	if a, ok := algorithmAliases[key]; ok {
		return a, nil
	}
	return 0, generr.ConfigurationError(fmt.Sprintf("unknown algorithm %q", name)).
		WithContext("algorithm", name)
}

// MarshalText implements encoding.TextMarshaler.
func (a Algorithm) MarshalText() ([]byte, error) {
	if !a.Valid() {
		return nil, generr.ConfigurationError(fmt.Sprintf("unknown algorithm %d", uint8(a)))
	}
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Algorithm) UnmarshalText(text []byte) error {
	parsed, err := ParseAlgorithm(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
