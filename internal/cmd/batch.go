package cmd

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/MeKo-Tech/cue/internal/engine"
	"github.com/MeKo-Tech/cue/internal/params"
	"github.com/MeKo-Tech/cue/internal/session"
	"github.com/MeKo-Tech/cue/internal/worker"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var batchCmd = &cobra.Command{
	Use:   "batch [file.jsonl]",
	Short: "Render many score sets from a JSON-lines file",
	Long: `Batch reads one JSON object per line (from a file, or stdin when the file is
"-" or omitted) and renders every line through the worker pool.

A line is either a bare score object or
  {"name": "...", "scores": {...}, "seed": 1, "algorithm": "worley", "width": 256, "height": 256}
Lines without a seed get one derived from --seed and their position.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().StringP("algorithm", "a", "", "Algorithm for lines that name none")
	batchCmd.Flags().Int64("seed", 1337, "Base seed for lines without their own seed")
	batchCmd.Flags().StringP("size", "s", "512x512", "Default output size WIDTHxHEIGHT")
	batchCmd.Flags().IntP("workers", "w", 0, "Number of parallel workers (default: number of CPUs)")
	batchCmd.Flags().Bool("progress", true, "Show a live status line while rendering")
	batchCmd.Flags().Bool("allow-failures", false, "Keep the successful images when some lines fail")
	batchCmd.Flags().String("png-compression", "default", "PNG compression (default, fast, best, none)")
	batchCmd.Flags().String("gallery", "", "Also store images in this SQLite gallery")

	bindFlags := []struct {
		key  string
		flag string
	}{
		{"batch.algorithm", "algorithm"},
		{"batch.seed", "seed"},
		{"batch.size", "size"},
		{"batch.workers", "workers"},
		{"batch.progress", "progress"},
		{"batch.allow_failures", "allow-failures"},
		{"batch.png_compression", "png-compression"},
		{"batch.gallery", "gallery"},
	}

	for _, bf := range bindFlags {
		if err := viper.BindPFlag(bf.key, batchCmd.Flags().Lookup(bf.flag)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", bf.flag, err))
		}
	}
}

// batchLine is one input line in its object form.
type batchLine struct {
	Name      string          `json:"name"`
	Scores    json.RawMessage `json:"scores"`
	Seed      *int64          `json:"seed"`
	Algorithm string          `json:"algorithm"`
	Width     int             `json:"width"`
	Height    int             `json:"height"`
}

type batchDefaults struct {
	Seed      int64
	Algorithm params.Algorithm
	Size      engine.Size
}

// parseBatch turns JSON lines into render tasks. Blank lines and lines
// starting with '#' are skipped; any other bad line fails the whole batch.
func parseBatch(r io.Reader, def batchDefaults) ([]worker.Task, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1<<20)

	var tasks []worker.Task
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 || line[0] == '#' {
			continue
		}

		task, err := parseBatchLine(line, len(tasks), def)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		tasks = append(tasks, task)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read batch input: %w", err)
	}
	if len(tasks) == 0 {
		return nil, fmt.Errorf("batch input contains no lines")
	}
	return tasks, nil
}

func parseBatchLine(line []byte, index int, def batchDefaults) (worker.Task, error) {
	var bl batchLine
	if err := json.Unmarshal(line, &bl); err != nil {
		return worker.Task{}, fmt.Errorf("invalid JSON: %w", err)
	}

	// Without a "scores" object the line itself carries the dimensions.
	src := []byte(bl.Scores)
	if len(src) == 0 {
		src = line
	}
	scores, err := params.ParseScores(src)
	if err != nil {
		return worker.Task{}, err
	}

	task := worker.Task{
		Index:     index,
		Name:      bl.Name,
		Scores:    scores,
		Algorithm: def.Algorithm,
		Seed:      engine.VariationSeed(def.Seed, index),
		Width:     def.Size.Width,
		Height:    def.Size.Height,
	}
	if task.Name == "" {
		task.Name = fmt.Sprintf("item_%03d", index+1)
	}
	if bl.Seed != nil {
		task.Seed = *bl.Seed
	}
	if bl.Algorithm != "" {
		if task.Algorithm, err = params.ParseAlgorithm(bl.Algorithm); err != nil {
			return worker.Task{}, err
		}
	}
	if bl.Width != 0 || bl.Height != 0 {
		task.Width, task.Height = bl.Width, bl.Height
	}
	return task, nil
}

type batchItemLog struct {
	Name     string          `json:"name"`
	File     string          `json:"file,omitempty"`
	Metadata engine.Metadata `json:"metadata"`
	Params   params.Visual   `json:"visual_params"`
	Error    string          `json:"error,omitempty"`
}

type batchSummary struct {
	Input     string         `json:"input"`
	Total     int            `json:"total"`
	Failed    int            `json:"failed"`
	Items     []batchItemLog `json:"items"`
	ElapsedMS int64          `json:"elapsed_ms"`
}

func runBatch(cmd *cobra.Command, args []string) error {
	workers := viper.GetInt("batch.workers")
	showProgress := viper.GetBool("batch.progress")
	allowFailures := viper.GetBool("batch.allow_failures")
	outputDir := viper.GetString("output-dir")
	galleryPath := viper.GetString("batch.gallery")

	if logger == nil {
		initLogging()
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	size, err := parseSize(viper.GetString("batch.size"))
	if err != nil {
		return err
	}
	alg, err := parseAlgorithmFlag(viper.GetString("batch.algorithm"))
	if err != nil {
		return err
	}
	level, err := session.ParseCompression(viper.GetString("batch.png_compression"))
	if err != nil {
		return err
	}

	input := "-"
	if len(args) == 1 {
		input = args[0]
	}
	var in io.Reader = os.Stdin
	if input != "-" {
		f, err := os.Open(input)
		if err != nil {
			return fmt.Errorf("failed to open batch input: %w", err)
		}
		defer f.Close()
		in = f
	}

	tasks, err := parseBatch(in, batchDefaults{Seed: viper.GetInt64("batch.seed"), Algorithm: alg, Size: size})
	if err != nil {
		return err
	}

	eng, err := newEngine(workers)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	start := time.Now()
	report := worker.NewReport(len(tasks), showProgress)
	pool := worker.New(worker.Config{
		Workers:    workers,
		Renderer:   eng,
		OnProgress: report.Observe,
	})

	logger.Info("Starting batch", "input", input, "count", len(tasks), "workers", workers)
	results := pool.Run(ctx, tasks)
	report.Finish()
	logger.Info(report.Summary())

	failures := report.Failures()
	for _, f := range failures {
		logger.Error("Image generation failed", "name", f.Name, "index", f.Index, "error", f.Err)
	}
	if len(failures) > 0 && !allowFailures {
		return fmt.Errorf("%d of %d images failed to generate", len(failures), len(results))
	}

	sess, err := session.New(outputDir, start)
	if err != nil {
		return err
	}
	summary, saved, files, err := writeBatch(sess, results, level)
	if err != nil {
		return err
	}
	summary.Input = input
	summary.ElapsedMS = time.Since(start).Milliseconds()
	if _, err := session.WriteLog(sess.Dir, "batch_summary", summary, session.CurrentSystem(start)); err != nil {
		return err
	}

	if galleryPath != "" && len(saved) > 0 {
		if err := saveToGallery(galleryPath, sess.Name, files, saved); err != nil {
			return err
		}
	}

	logger.Info("Batch complete", "session", sess.Dir, "total", summary.Total, "failed", summary.Failed,
		"elapsed", time.Since(start))
	return nil
}

// writeBatch writes one PNG and one log per successful result under the
// session's batch directory. It returns the summary plus the written results
// and their session-relative file names.
func writeBatch(sess *session.Session, results []worker.Result, level png.CompressionLevel) (batchSummary, []*engine.Result, []string, error) {
	summary := batchSummary{Total: len(results)}

	dir, err := sess.Subdir("batch")
	if err != nil {
		return summary, nil, nil, err
	}

	var (
		saved []*engine.Result
		files []string
	)
	for _, r := range results {
		item := batchItemLog{Name: r.Task.Name}
		if r.Err != nil {
			summary.Failed++
			item.Error = r.Err.Error()
			summary.Items = append(summary.Items, item)
			continue
		}

		res := engine.ResultOf(r)
		prefix := fmt.Sprintf("%03d_%s", r.Task.Index+1, session.SafeName(r.Task.Name, 30))
		if err := session.WritePNG(filepath.Join(dir, prefix+".png"), res.Image, level); err != nil {
			return summary, nil, nil, err
		}

		item.File = filepath.Join("batch", prefix+".png")
		item.Metadata = res.Metadata
		item.Params = res.Params
		if _, err := session.WriteLog(dir, prefix, item, session.CurrentSystem(time.Now())); err != nil {
			return summary, nil, nil, err
		}

		summary.Items = append(summary.Items, item)
		saved = append(saved, res)
		files = append(files, item.File)
	}
	return summary, saved, files, nil
}
