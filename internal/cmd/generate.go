package cmd

import (
	"context"
	"fmt"
	"image/png"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/MeKo-Tech/cue/internal/engine"
	"github.com/MeKo-Tech/cue/internal/gallery"
	"github.com/MeKo-Tech/cue/internal/params"
	"github.com/MeKo-Tech/cue/internal/session"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate images from sentiment scores",
	Long: `Generate one image, a set of variations, or one image per algorithm from a
single set of sentiment scores. Output goes to a new timestamped session
directory together with a JSON generation log.`,
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)

	addScoreFlags(generateCmd)
	generateCmd.Flags().StringP("name", "n", "image", "Label used in file names (usually the analysed text)")
	generateCmd.Flags().StringP("algorithm", "a", "", "Noise algorithm (default from tuning.default_algorithm)")
	generateCmd.Flags().Int64("seed", 0, "Deterministic seed (default: time based)")
	generateCmd.Flags().StringP("size", "s", "512x512", "Output size WIDTHxHEIGHT")
	generateCmd.Flags().Int("variations", 0, "Generate N seeded variations instead of one image")
	generateCmd.Flags().Bool("all-algorithms", false, "Generate one image per algorithm")
	generateCmd.Flags().IntP("workers", "w", 0, "Images rendered in parallel (default: one per image)")
	generateCmd.Flags().String("png-compression", "default", "PNG compression (default, fast, best, none)")
	generateCmd.Flags().String("gallery", "", "Also store images in this SQLite gallery")

	bindFlags := []struct {
		key  string
		flag string
	}{
		{"generate.name", "name"},
		{"generate.algorithm", "algorithm"},
		{"generate.seed", "seed"},
		{"generate.size", "size"},
		{"generate.variations", "variations"},
		{"generate.all_algorithms", "all-algorithms"},
		{"generate.workers", "workers"},
		{"generate.png_compression", "png-compression"},
		{"generate.gallery", "gallery"},
	}

	for _, bf := range bindFlags {
		if err := viper.BindPFlag(bf.key, generateCmd.Flags().Lookup(bf.flag)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", bf.flag, err))
		}
	}
}

// generationLog is the generation_info section of a session log.
type generationLog struct {
	Name      string            `json:"name"`
	Mode      string            `json:"mode"`
	BaseSeed  int64             `json:"base_seed"`
	Scores    params.Scores     `json:"sentiment_scores"`
	Params    params.Visual     `json:"visual_params"`
	Images    []engine.Metadata `json:"images"`
	Files     []string          `json:"files"`
	ElapsedMS int64             `json:"elapsed_ms"`
}

func runGenerate(cmd *cobra.Command, args []string) error {
	name := viper.GetString("generate.name")
	variations := viper.GetInt("generate.variations")
	allAlgorithms := viper.GetBool("generate.all_algorithms")
	workers := viper.GetInt("generate.workers")
	outputDir := viper.GetString("output-dir")
	galleryPath := viper.GetString("generate.gallery")

	if variations > 0 && allAlgorithms {
		return fmt.Errorf("--variations and --all-algorithms are mutually exclusive")
	}

	scores, err := readScores(cmd, os.Stdin)
	if err != nil {
		return err
	}
	size, err := parseSize(viper.GetString("generate.size"))
	if err != nil {
		return err
	}
	alg, err := parseAlgorithmFlag(viper.GetString("generate.algorithm"))
	if err != nil {
		return err
	}
	level, err := session.ParseCompression(viper.GetString("generate.png_compression"))
	if err != nil {
		return err
	}
	seed := seedFor(cmd, "generate.seed")

	eng, err := newEngine(workers)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	start := time.Now()
	var results []*engine.Result
	mode := "single"
	switch {
	case allAlgorithms:
		mode = "all_algorithms"
		byAlg, err := eng.GenerateAllAlgorithms(ctx, scores, size, seed)
		if err != nil {
			return err
		}
		for _, a := range params.Algorithms() {
			results = append(results, byAlg[a])
		}
	case variations > 0:
		mode = "variations"
		results, err = eng.GenerateVariations(ctx, scores, size, seed, variations, alg)
		if err != nil {
			return err
		}
	default:
		res, err := eng.GenerateSingle(ctx, scores, size, seed, alg)
		if err != nil {
			return err
		}
		results = []*engine.Result{res}
	}

	sess, err := session.New(outputDir, start)
	if err != nil {
		return err
	}
	files, err := writeResults(sess, mode, name, results, level)
	if err != nil {
		return err
	}

	info := generationLog{
		Name:      name,
		Mode:      mode,
		BaseSeed:  seed,
		Scores:    scores,
		Params:    results[0].Params,
		Files:     files,
		ElapsedMS: time.Since(start).Milliseconds(),
	}
	for _, r := range results {
		info.Images = append(info.Images, r.Metadata)
	}
	logPath, err := session.WriteLog(sess.Dir, filePrefix(mode, name), info, session.CurrentSystem(start))
	if err != nil {
		return err
	}

	if galleryPath != "" {
		if err := saveToGallery(galleryPath, sess.Name, files, results); err != nil {
			return err
		}
	}

	logger.Info("Generation complete",
		"session", sess.Dir,
		"mode", mode,
		"images", len(results),
		"log", logPath,
		"description", results[0].Metadata.Description,
		"elapsed", time.Since(start),
	)
	return nil
}

func filePrefix(mode, name string) string {
	safe := session.SafeName(name, 30)
	switch mode {
	case "variations":
		return "variations_" + safe
	case "all_algorithms":
		return "algorithms_" + safe
	default:
		return "art_" + safe
	}
}

// writeResults writes PNGs into the session; multi-image modes use a sub-directory.
// Returned paths are relative to the session directory.
func writeResults(sess *session.Session, mode, name string, results []*engine.Result, level png.CompressionLevel) ([]string, error) {
	prefix := filePrefix(mode, name)
	if mode == "single" {
		rel := prefix + ".png"
		if err := session.WritePNG(filepath.Join(sess.Dir, rel), results[0].Image, level); err != nil {
			return nil, err
		}
		return []string{rel}, nil
	}

	dir, err := sess.Subdir(prefix)
	if err != nil {
		return nil, err
	}
	files := make([]string, len(results))
	for i, r := range results {
		file := fmt.Sprintf("variation_%02d.png", i+1)
		if mode == "all_algorithms" {
			file = r.Metadata.Algorithm.String() + ".png"
		}
		if err := session.WritePNG(filepath.Join(dir, file), r.Image, level); err != nil {
			return nil, err
		}
		files[i] = filepath.Join(prefix, file)
	}
	return files, nil
}

func saveToGallery(path, sessionName string, names []string, results []*engine.Result) error {
	store, err := gallery.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	for i, r := range results {
		entry, err := gallery.FromResult(sessionName, names[i], r)
		if err != nil {
			return err
		}
		if _, err := store.Save(entry); err != nil {
			return err
		}
	}
	if err := store.Flush(); err != nil {
		return err
	}
	logger.Info("Saved to gallery", "path", path, "session", sessionName, "images", len(results))
	return nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			logger.Info("Received interrupt signal, cancelling...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}
