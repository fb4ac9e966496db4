package gallery

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image/png"

	"github.com/MeKo-Tech/cue/internal/engine"
)

// FromResult encodes a generated image as PNG and describes it as an Entry.
func FromResult(session, name string, r *engine.Result) (Entry, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, r.Image); err != nil {
		return Entry{}, fmt.Errorf("failed to encode %s: %w", name, err)
	}

	visual, err := json.Marshal(r.Params)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to encode params for %s: %w", name, err)
	}

	m := r.Metadata
	return Entry{
		Session:     session,
		Name:        name,
		Algorithm:   m.Algorithm.String(),
		Seed:        m.Seed,
		Variation:   m.Variation,
		Width:       m.Size.Width,
		Height:      m.Size.Height,
		Scores:      m.Scores.Map(),
		Description: m.Description,
		Params:      visual,
		PNG:         buf.Bytes(),
	}, nil
}
