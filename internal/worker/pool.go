// Package worker runs independent image renders in parallel.
package worker

import (
	"context"
	"image"
	"sort"
	"sync"
	"time"

	"github.com/MeKo-Tech/cue/internal/params"
)

// Renderer produces one image for a task.
type Renderer interface {
	Render(ctx context.Context, task Task) (Output, error)
}

// Task is a single image to render.
type Task struct {
	// Index orders the results; Run returns them sorted by it.
	Index     int
	Name      string
	Scores    params.Scores
	Algorithm params.Algorithm
	Seed      int64
	Width     int
	Height    int
}

// Output is what a Renderer hands back for a task.
type Output struct {
	Image  *image.RGBA
	Visual params.Visual
}

// Result represents the outcome of a render task.
type Result struct {
	Task    Task
	Output  Output
	Err     error
	Elapsed time.Duration
}

// ProgressFunc is called once per finished task, from a single goroutine,
// with the number of tasks finished so far.
type ProgressFunc func(r Result, completed, total int)

// Config configures the worker pool.
type Config struct {
	Workers    int
	Renderer   Renderer
	OnProgress ProgressFunc
}

// Pool manages parallel rendering.
type Pool struct {
	workers    int
	renderer   Renderer
	onProgress ProgressFunc
}

// New creates a new worker pool.
func New(cfg Config) *Pool {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	return &Pool{
		workers:    workers,
		renderer:   cfg.Renderer,
		onProgress: cfg.OnProgress,
	}
}

// Run executes all tasks and returns one result per task, sorted by Index.
// It blocks until all tasks complete or the context is cancelled; tasks that
// never started carry the context error.
func (p *Pool) Run(ctx context.Context, tasks []Task) []Result {
	if len(tasks) == 0 {
		return nil
	}

	taskCh := make(chan Task, len(tasks))
	resultCh := make(chan Result, len(tasks))

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.worker(ctx, taskCh, resultCh)
		}()
	}

	// Feed tasks; the buffer holds them all so this never blocks.
	for _, task := range tasks {
		taskCh <- task
	}
	close(taskCh)

	results := make([]Result, 0, len(tasks))
	done := make(chan struct{})

	go func() {
		for result := range resultCh {
			results = append(results, result)
			if p.onProgress != nil {
				p.onProgress(result, len(results), len(tasks))
			}
		}
		close(done)
	}()

	wg.Wait()
	close(resultCh)
	<-done

	sort.Slice(results, func(i, j int) bool {
		return results[i].Task.Index < results[j].Task.Index
	})
	return results
}

// FirstError returns the error of the lowest-indexed failed result, if any.
func FirstError(results []Result) error {
	for _, r := range results {
		if r.Err != nil {
			return r.Err
		}
	}
	return nil
}

// worker processes tasks from the task channel and sends results to the result channel.
func (p *Pool) worker(ctx context.Context, tasks <-chan Task, results chan<- Result) {
	for task := range tasks {
		if err := ctx.Err(); err != nil {
			results <- Result{Task: task, Err: err}
			continue
		}

		start := time.Now()
		out, err := p.renderer.Render(ctx, task)
		results <- Result{
			Task:    task,
			Output:  out,
			Err:     err,
			Elapsed: time.Since(start),
		}
	}
}
