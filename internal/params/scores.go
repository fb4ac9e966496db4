// Package params turns sentiment scores into the visual parameters that drive synthesis.
package params

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"github.com/MeKo-Tech/cue/internal/generr"
)

// Dimension names, in canonical order.
const (
	DimPositiveness = "positiveness"
	DimEnergy       = "energy"
	DimComplexity   = "complexity"
	DimConflictness = "conflictness"
)

// Dimensions lists the four sentiment dimensions.
var Dimensions = []string{DimPositiveness, DimEnergy, DimComplexity, DimConflictness}

// Scores are the four normalized sentiment dimensions of a text.
type Scores struct {
	Positiveness float64 `json:"positiveness"`
	Energy       float64 `json:"energy"`
	// Complexity is carried through to metadata but does not influence synthesis.
	Complexity   float64 `json:"complexity"`
	Conflictness float64 `json:"conflictness"`
}

// ScoresFromMap builds Scores from a name-keyed map, failing if a dimension
// is absent or out of range. Unknown keys are ignored.
func ScoresFromMap(m map[string]float64) (Scores, error) {
	for _, dim := range Dimensions {
		if _, ok := m[dim]; !ok {
			return Scores{}, generr.ValidationError("missing sentiment dimension "+dim).
				WithContext("dimension", dim)
		}
	}
	s := Scores{
		Positiveness: m[DimPositiveness],
		Energy:       m[DimEnergy],
		Complexity:   m[DimComplexity],
		Conflictness: m[DimConflictness],
	}
	if err := s.Validate(); err != nil {
		return Scores{}, err
	}
	return s, nil
}

// ParseScores decodes the first JSON object in raw, which may be a bare
// object or an oracle reply with prose on either side, and validates it.
// A dimension set to null counts as missing; other keys are ignored.
func ParseScores(raw []byte) (Scores, error) {
	start := bytes.IndexByte(raw, '{')
	if start < 0 {
		return Scores{}, generr.ValidationError("no JSON object found in sentiment scores")
	}

	var fields map[string]json.RawMessage
	if err := json.NewDecoder(bytes.NewReader(raw[start:])).Decode(&fields); err != nil {
		ve := generr.ValidationError("malformed sentiment scores")
		ve.Cause = err
		return Scores{}, ve
	}

	m := make(map[string]float64, len(Dimensions))
	for _, dim := range Dimensions {
		v, ok := fields[dim]
		if !ok || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			continue
		}
		var f float64
		if err := json.Unmarshal(v, &f); err != nil {
			return Scores{}, generr.ValidationError(dim+" must be a number").
				WithContext("dimension", dim).
				WithContext("value", string(v))
		}
		m[dim] = f
	}
	return ScoresFromMap(m)
}

// Validate fails with a validation error if any dimension is outside [0,1].
func (s Scores) Validate() error {
	for _, dim := range Dimensions {
		v := s.get(dim)
		if math.IsNaN(v) || v < 0 || v > 1 {
			return generr.ValidationError(fmt.Sprintf("%s must be within [0,1], got %v", dim, v)).
				WithContext("dimension", dim).
				WithContext("value", v)
		}
	}
	return nil
}

// Clamped returns a copy with every dimension clamped to [0,1]; NaN becomes 0.
func (s Scores) Clamped() Scores {
	return Scores{
		Positiveness: clamp01(s.Positiveness),
		Energy:       clamp01(s.Energy),
		Complexity:   clamp01(s.Complexity),
		Conflictness: clamp01(s.Conflictness),
	}
}

// Map returns the scores keyed by dimension name.
func (s Scores) Map() map[string]float64 {
	return map[string]float64{
		DimPositiveness: s.Positiveness,
		DimEnergy:       s.Energy,
		DimComplexity:   s.Complexity,
		DimConflictness: s.Conflictness,
	}
}

func (s Scores) get(dim string) float64 {
	switch dim {
	case DimPositiveness:
		return s.Positiveness
	case DimEnergy:
		return s.Energy
	case DimComplexity:
		return s.Complexity
	case DimConflictness:
		return s.Conflictness
	}
	return math.NaN()
}

func clamp01(x float64) float64 {
	if math.IsNaN(x) || x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

func lerp(a, b, t float64) float64 { return a + (b-a)*t }
