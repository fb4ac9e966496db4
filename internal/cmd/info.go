package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/MeKo-Tech/cue/internal/config"
	"github.com/MeKo-Tech/cue/internal/params"
	"github.com/MeKo-Tech/cue/internal/session"
	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the effective tuning and the available algorithms",
	RunE:  runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)
	infoCmd.Flags().Bool("json", false, "Print as JSON")
}

type infoReport struct {
	Version          string        `json:"version"`
	Algorithms       []string      `json:"algorithms"`
	DefaultAlgorithm string        `json:"default_algorithm"`
	MaxStableDt      float64       `json:"max_stable_dt"`
	Tuning           config.Tuning `json:"tuning"`
}

func runInfo(cmd *cobra.Command, args []string) error {
	t, err := loadTuning()
	if err != nil {
		return err
	}

	def, err := params.ParseAlgorithm(t.DefaultAlgorithm)
	if err != nil {
		return err
	}

	report := infoReport{
		Version:          session.Version,
		DefaultAlgorithm: def.String(),
		MaxStableDt:      t.MaxStableDt(),
		Tuning:           t,
	}
	for _, a := range params.Algorithms() {
		report.Algorithms = append(report.Algorithms, a.String())
	}

	asJSON, _ := cmd.Flags().GetBool("json")
	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	return printInfo(cmd.OutOrStdout(), report)
}

func printInfo(w io.Writer, r infoReport) error {
	fmt.Fprintf(w, "cue %s\n\n", r.Version)
	fmt.Fprintln(w, "Algorithms:")
	for _, a := range r.Algorithms {
		marker := ""
		if a == r.DefaultAlgorithm {
			marker = " (default)"
		}
		fmt.Fprintf(w, "  %s%s\n", a, marker)
	}

	fmt.Fprintln(w, "\nTuning:")
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	t := r.Tuning
	rows := []struct {
		name  string
		value any
	}{
		{"hue range", fmt.Sprintf("%g -> %g", t.ColdHue, t.WarmHue)},
		{"lightness", fmt.Sprintf("%g - %g", t.LightnessLow, t.LightnessHigh)},
		{"turbulence", fmt.Sprintf("%g - %g", t.MinTurbulence, t.MaxTurbulence)},
		{"max grain delta", t.MaxGrainDelta},
		{"detail", fmt.Sprintf("%g - %g", t.DetailMin, t.DetailMax)},
		{"octaves", t.Octaves},
		{"rd steps", t.RDSteps},
		{"rd dt", fmt.Sprintf("%g (stable up to %g)", t.RDDt, r.MaxStableDt)},
		{"rd feed/kill", fmt.Sprintf("%g / %g", t.RDFeed, t.RDKill)},
		{"workers", t.Workers},
	}
	for _, row := range rows {
		fmt.Fprintf(tw, "  %s\t%v\n", row.name, row.value)
	}
	return tw.Flush()
}
