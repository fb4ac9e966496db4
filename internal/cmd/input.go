package cmd

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MeKo-Tech/cue/internal/engine"
	"github.com/MeKo-Tech/cue/internal/params"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func addScoreFlags(c *cobra.Command) {
	c.Flags().String("scores", "", "Scores as JSON or raw oracle reply (@file reads a file, - reads stdin)")
	for _, dim := range params.Dimensions {
		c.Flags().Float64(dim, 0, fmt.Sprintf("%s score in [0,1] (used when --scores is empty)", dim))
	}
}

// readScores takes --scores when given, otherwise the four per-dimension flags.
func readScores(c *cobra.Command, stdin io.Reader) (params.Scores, error) {
	raw, _ := c.Flags().GetString("scores")
	if raw != "" {
		return parseScoresArg(raw, stdin)
	}

	m := make(map[string]float64, len(params.Dimensions))
	for _, dim := range params.Dimensions {
		if c.Flags().Changed(dim) {
			v, _ := c.Flags().GetFloat64(dim)
			m[dim] = v
		}
	}
	if len(m) == 0 {
		return params.Scores{}, fmt.Errorf("no scores given: use --scores or --%s", strings.Join(params.Dimensions, ", --"))
	}
	return params.ScoresFromMap(m)
}

func parseScoresArg(raw string, stdin io.Reader) (params.Scores, error) {
	var (
		data []byte
		err  error
	)
	switch {
	case raw == "-":
		data, err = io.ReadAll(stdin)
	case strings.HasPrefix(raw, "@"):
		data, err = os.ReadFile(raw[1:])
	default:
		data = []byte(raw)
	}
	if err != nil {
		return params.Scores{}, fmt.Errorf("failed to read scores: %w", err)
	}
	return params.ParseScores(data)
}

// parseSize parses WIDTHxHEIGHT, or a single number for a square image.
func parseSize(s string) (engine.Size, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return engine.Size{}, fmt.Errorf("empty size")
	}

	w, h, found := strings.Cut(s, "x")
	if !found {
		h = w
	}
	width, err := strconv.Atoi(strings.TrimSpace(w))
	if err != nil {
		return engine.Size{}, fmt.Errorf("invalid width %q: %w", w, err)
	}
	height, err := strconv.Atoi(strings.TrimSpace(h))
	if err != nil {
		return engine.Size{}, fmt.Errorf("invalid height %q: %w", h, err)
	}
	if width <= 0 || height <= 0 {
		return engine.Size{}, fmt.Errorf("size must be positive, got %dx%d", width, height)
	}
	return engine.Size{Width: width, Height: height}, nil
}

// seedFor returns the configured seed, or a time-based one when none was set.
func seedFor(c *cobra.Command, key string) int64 {
	if c.Flags().Changed("seed") || viper.InConfig(key) {
		return viper.GetInt64(key)
	}
	return time.Now().UnixNano()
}

func parseAlgorithmFlag(name string) (params.Algorithm, error) {
	if strings.TrimSpace(name) == "" {
		return 0, nil
	}
	return params.ParseAlgorithm(name)
}
