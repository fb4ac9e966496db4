// Package engine composes parameter mapping, synthesis, coloring and post
// processing into single-image, variation and all-algorithm runs.
package engine

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/MeKo-Tech/cue/internal/colormap"
	"github.com/MeKo-Tech/cue/internal/config"
	"github.com/MeKo-Tech/cue/internal/generr"
	"github.com/MeKo-Tech/cue/internal/metrics"
	"github.com/MeKo-Tech/cue/internal/noise"
	"github.com/MeKo-Tech/cue/internal/params"
	"github.com/MeKo-Tech/cue/internal/post"
	"github.com/MeKo-Tech/cue/internal/rng"
	"github.com/MeKo-Tech/cue/internal/worker"
)

// Size is the output resolution in pixels.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (s Size) String() string { return fmt.Sprintf("%dx%d", s.Width, s.Height) }

// Metadata describes how an image was produced. It is meant for session logs
// and the gallery; nothing in the pipeline reads it back.
type Metadata struct {
	Algorithm   params.Algorithm `json:"algorithm"`
	Seed        int64            `json:"seed"`
	Variation   int              `json:"variation"`
	Size        Size             `json:"size"`
	Scores      params.Scores    `json:"scores"`
	Description string           `json:"description"`
	Elapsed     time.Duration    `json:"elapsed_ns"`
}

// Result is one generated image with the parameters that produced it.
type Result struct {
	Image    *image.RGBA
	Params   params.Visual
	Metadata Metadata
}

// Options configures an Engine.
type Options struct {
	Logger *slog.Logger
	// Workers bounds how many images render at once in multi-image runs
	// (0 = one per algorithm).
	Workers int
}

// Engine is safe for concurrent use. It holds only immutable configuration,
// so every call is a function of its arguments.
type Engine struct {
	tuning  config.Tuning
	mapper  *params.Mapper
	synths  map[params.Algorithm]noise.Synthesizer
	logger  *slog.Logger
	workers int
}

// New validates t and builds one synthesizer per algorithm.
func New(t config.Tuning, opts Options) (*Engine, error) {
	mapper, err := params.NewMapper(t)
	if err != nil {
		return nil, err
	}

	synths := make(map[params.Algorithm]noise.Synthesizer, len(params.Algorithms()))
	for _, alg := range params.Algorithms() {
		s, err := noise.New(alg, t)
		if err != nil {
			return nil, err
		}
		synths[alg] = s
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = len(synths)
	}

	return &Engine{
		tuning:  t,
		mapper:  mapper,
		synths:  synths,
		logger:  opts.Logger,
		workers: workers,
	}, nil
}

// Tuning returns the configuration the engine was built with.
func (e *Engine) Tuning() config.Tuning { return e.tuning }

// DefaultAlgorithm is used when callers pass the zero Algorithm.
func (e *Engine) DefaultAlgorithm() params.Algorithm { return e.mapper.DefaultAlgorithm() }

// Workers reports the multi-image concurrency.
func (e *Engine) Workers() int { return e.workers }

// Visual maps scores to parameters without rendering.
func (e *Engine) Visual(scores params.Scores, alg params.Algorithm) (params.Visual, error) {
	if err := scores.Validate(); err != nil {
		return params.Visual{}, err
	}
	return e.mapper.Map(scores, alg)
}

// GenerateSingle renders one image. alg may be zero for the default algorithm.
func (e *Engine) GenerateSingle(ctx context.Context, scores params.Scores, size Size, seed int64, alg params.Algorithm) (*Result, error) {
	if err := e.check(scores, size); err != nil {
		return nil, err
	}
	task := worker.Task{Scores: scores, Algorithm: alg, Seed: seed, Width: size.Width, Height: size.Height}

	start := time.Now()
	out, err := e.Render(ctx, task)
	if err != nil {
		return nil, err
	}
	return ResultOf(worker.Result{Task: task, Output: out, Elapsed: time.Since(start)}), nil
}

// VariationSeed derives the seed of variation index from base.
func VariationSeed(base int64, index int) int64 {
	return rng.Derive(base, index)
}

// GenerateVariations renders count images whose seeds derive from baseSeed
// and the variation index. The same inputs always reproduce the same
// sequence. Either every image is returned or none.
func (e *Engine) GenerateVariations(ctx context.Context, scores params.Scores, size Size, baseSeed int64, count int, alg params.Algorithm) ([]*Result, error) {
	if count <= 0 {
		return nil, generr.ConfigurationError(fmt.Sprintf("variation count must be positive, got %d", count)).
			WithContext("count", count)
	}
	if err := e.check(scores, size); err != nil {
		return nil, err
	}

	tasks := make([]worker.Task, count)
	for i := range tasks {
		tasks[i] = worker.Task{
			Index:     i,
			Name:      fmt.Sprintf("variation_%d", i+1),
			Scores:    scores,
			Algorithm: alg,
			Seed:      VariationSeed(baseSeed, i),
			Width:     size.Width,
			Height:    size.Height,
		}
	}

	results, err := e.runAll(ctx, tasks)
	if err != nil {
		return nil, err
	}
	e.log().Info("Generated variations", "count", count, "base_seed", baseSeed, "size", size.String())
	return results, nil
}

// GenerateAllAlgorithms renders every registered algorithm with the same
// scores, size and seed.
func (e *Engine) GenerateAllAlgorithms(ctx context.Context, scores params.Scores, size Size, seed int64) (map[params.Algorithm]*Result, error) {
	if err := e.check(scores, size); err != nil {
		return nil, err
	}

	algs := params.Algorithms()
	tasks := make([]worker.Task, len(algs))
	for i, alg := range algs {
		tasks[i] = worker.Task{
			Index:     i,
			Name:      alg.String(),
			Scores:    scores,
			Algorithm: alg,
			Seed:      seed,
			Width:     size.Width,
			Height:    size.Height,
		}
	}

	results, err := e.runAll(ctx, tasks)
	if err != nil {
		return nil, err
	}
	out := make(map[params.Algorithm]*Result, len(results))
	for _, r := range results {
		out[r.Metadata.Algorithm] = r
	}
	e.log().Info("Generated all algorithms", "count", len(out), "seed", seed, "size", size.String())
	return out, nil
}

// Render implements worker.Renderer so the engine can back a worker pool.
// The pipeline is Map, Synthesize, Color with turbulence, Soften, Grain.
func (e *Engine) Render(ctx context.Context, task worker.Task) (worker.Output, error) {
	start := time.Now()
	out, err := e.render(ctx, task)

	alg := out.Visual.Algorithm
	if !alg.Valid() {
		alg = task.Algorithm
		if alg == 0 {
			alg = e.DefaultAlgorithm()
		}
	}
	label := alg.String()
	metrics.GenerationsTotal.WithLabelValues(label, status(err)).Inc()
	if err != nil {
		if generr.IsNumericalInstability(err) {
			metrics.InstabilityTotal.Inc()
		}
		e.log().Warn("Generation failed", "algorithm", label, "seed", task.Seed, "error", err)
		return worker.Output{}, err
	}

	elapsed := time.Since(start)
	metrics.GenerationDuration.WithLabelValues(label).Observe(elapsed.Seconds())
	e.log().Debug("Generated image", "algorithm", label, "seed", task.Seed,
		"size", Size{task.Width, task.Height}.String(), "elapsed", elapsed)
	return out, nil
}

func (e *Engine) render(ctx context.Context, task worker.Task) (worker.Output, error) {
	if err := e.check(task.Scores, Size{task.Width, task.Height}); err != nil {
		return worker.Output{}, err
	}
	t := e.tuning

	v, err := e.mapper.Map(task.Scores, task.Algorithm)
	if err != nil {
		return worker.Output{}, err
	}
	synth, ok := e.synths[v.Algorithm]
	if !ok {
		return worker.Output{}, generr.ConfigurationError("no synthesizer registered for " + v.Algorithm.String())
	}

	var field *noise.Field
	err = stage("synthesize", func() error {
		var err error
		field, err = synth.Generate(ctx, task.Width, task.Height, task.Seed, v)
		return err
	})
	if err != nil {
		return worker.Output{Visual: v}, err
	}

	opts := colormap.Options{Width: task.Width, Height: task.Height, Workers: t.Workers}
	if w := post.NewWarp(v.Turbulence, t.TurbulenceFrequency, task.Seed); w != nil {
		opts.Warp = w
	}
	var img *image.RGBA
	err = stage("color", func() error {
		var err error
		img, err = colormap.Map(ctx, field, v, opts)
		return err
	})
	if err != nil {
		return worker.Output{Visual: v}, err
	}

	err = stage("soften", func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		img = post.Soften(img, v.SoftenSigma)
		return nil
	})
	if err != nil {
		return worker.Output{Visual: v}, err
	}

	err = stage("grain", func() error {
		var err error
		img, err = post.ApplyGrain(ctx, img, post.Grain{
			Intensity: v.Grain,
			MaxDelta:  t.MaxGrainDelta,
			Block:     t.GrainBlock,
			Seed:      task.Seed,
			Workers:   t.Workers,
		})
		return err
	})
	if err != nil {
		return worker.Output{Visual: v}, err
	}

	return worker.Output{Image: img, Visual: v}, nil
}

// runAll renders tasks through a worker pool and fails as a whole if any task fails.
func (e *Engine) runAll(ctx context.Context, tasks []worker.Task) ([]*Result, error) {
	pool := worker.New(worker.Config{Workers: e.workers, Renderer: e})
	results := pool.Run(ctx, tasks)
	if err := worker.FirstError(results); err != nil {
		return nil, err
	}

	out := make([]*Result, len(results))
	for i, r := range results {
		out[i] = ResultOf(r)
	}
	return out, nil
}

// ResultOf converts a successful pool result into a Result with metadata.
func ResultOf(r worker.Result) *Result {
	task, out, elapsed := r.Task, r.Output, r.Elapsed
	return &Result{
		Image:  out.Image,
		Params: out.Visual,
		Metadata: Metadata{
			Algorithm:   out.Visual.Algorithm,
			Seed:        task.Seed,
			Variation:   task.Index,
			Size:        Size{task.Width, task.Height},
			Scores:      out.Visual.Scores,
			Description: params.Describe(out.Visual),
			Elapsed:     elapsed,
		},
	}
}

func (e *Engine) check(scores params.Scores, size Size) error {
	if err := scores.Validate(); err != nil {
		return err
	}
	return noise.CheckSize(size.Width, size.Height)
}

func (e *Engine) log() *slog.Logger {
	if e.logger != nil {
		return e.logger
	}
	return slog.Default()
}

func stage(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.StageDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	return err
}

func status(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
