package worker

import (
	"context"
	"errors"
	"image"
	"sync/atomic"
	"testing"
	"time"
)

// mockRenderer simulates image rendering for testing
type mockRenderer struct {
	delay     time.Duration
	failNames map[string]bool // tasks that should fail
	callCount atomic.Int32
}

func (m *mockRenderer) Render(ctx context.Context, task Task) (Output, error) {
	m.callCount.Add(1)

	select {
	case <-ctx.Done():
		return Output{}, ctx.Err()
	case <-time.After(m.delay):
	}

	if m.failNames != nil && m.failNames[task.Name] {
		return Output{}, errors.New("simulated failure")
	}

	return Output{Image: image.NewRGBA(image.Rect(0, 0, task.Width, task.Height))}, nil
}

func makeTasks(n int) []Task {
	tasks := make([]Task, n)
	for i := range tasks {
		tasks[i] = Task{Index: i, Name: string(rune('a' + i)), Seed: int64(i), Width: 4, Height: 2}
	}
	return tasks
}

func TestPool_BasicExecution(t *testing.T) {
	gen := &mockRenderer{delay: 10 * time.Millisecond}

	pool := New(Config{
		Workers:  2,
		Renderer: gen,
	})

	tasks := makeTasks(3)
	results := pool.Run(context.Background(), tasks)

	if len(results) != len(tasks) {
		t.Errorf("Expected %d results, got %d", len(tasks), len(results))
	}

	for _, r := range results {
		if r.Err != nil {
			t.Errorf("Unexpected error for %s: %v", r.Task.Name, r.Err)
		}
		if r.Output.Image == nil {
			t.Errorf("Expected image for %s, got nil", r.Task.Name)
		}
	}

	if gen.callCount.Load() != int32(len(tasks)) {
		t.Errorf("Expected %d render calls, got %d", len(tasks), gen.callCount.Load())
	}
}

func TestPool_ResultsSortedByIndex(t *testing.T) {
	gen := &mockRenderer{delay: time.Millisecond}

	pool := New(Config{
		Workers:  4,
		Renderer: gen,
	})

	// feed in reverse order
	tasks := makeTasks(12)
	for i, j := 0, len(tasks)-1; i < j; i, j = i+1, j-1 {
		tasks[i], tasks[j] = tasks[j], tasks[i]
	}

	results := pool.Run(context.Background(), tasks)
	for i, r := range results {
		if r.Task.Index != i {
			t.Fatalf("result %d has index %d", i, r.Task.Index)
		}
	}
}

func TestPool_Parallelism(t *testing.T) {
	// Use a longer delay to ensure parallelism is tested
	gen := &mockRenderer{delay: 50 * time.Millisecond}

	pool := New(Config{
		Workers:  4,
		Renderer: gen,
	})

	tasks := makeTasks(8)

	start := time.Now()
	results := pool.Run(context.Background(), tasks)
	elapsed := time.Since(start)

	// With 4 workers and 8 tasks at 50ms each, should take ~100ms (2 batches)
	// Allow some margin for overhead
	maxExpected := 300 * time.Millisecond
	if elapsed > maxExpected {
		t.Errorf("Expected parallel execution in ~100ms, took %v", elapsed)
	}

	if len(results) != len(tasks) {
		t.Errorf("Expected %d results, got %d", len(tasks), len(results))
	}

	t.Logf("Processed %d tasks with %d workers in %v", len(tasks), 4, elapsed)
}

func TestPool_ErrorHandling(t *testing.T) {
	gen := &mockRenderer{
		delay:     10 * time.Millisecond,
		failNames: map[string]bool{"b": true},
	}

	pool := New(Config{
		Workers:  2,
		Renderer: gen,
	})

	tasks := makeTasks(3)
	results := pool.Run(context.Background(), tasks)

	// Should still get all results
	if len(results) != len(tasks) {
		t.Errorf("Expected %d results, got %d", len(tasks), len(results))
	}

	var successCount, failCount int
	for _, r := range results {
		if r.Err != nil {
			failCount++
			if r.Task.Name != "b" {
				t.Errorf("Unexpected failure for %s", r.Task.Name)
			}
		} else {
			successCount++
		}
	}

	if successCount != 2 {
		t.Errorf("Expected 2 successes, got %d", successCount)
	}
	if failCount != 1 {
		t.Errorf("Expected 1 failure, got %d", failCount)
	}
	if err := FirstError(results); err == nil || err.Error() != "simulated failure" {
		t.Errorf("Expected simulated failure from FirstError, got %v", err)
	}
}

func TestPool_Cancellation(t *testing.T) {
	gen := &mockRenderer{delay: 100 * time.Millisecond}

	pool := New(Config{
		Workers:  2,
		Renderer: gen,
	})

	tasks := makeTasks(10)

	ctx, cancel := context.WithCancel(context.Background())

	// Cancel after a short time
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	results := pool.Run(ctx, tasks)
	elapsed := time.Since(start)

	// Should return early due to cancellation
	if elapsed > 300*time.Millisecond {
		t.Errorf("Expected early cancellation, took %v", elapsed)
	}

	// Every task is still accounted for
	if len(results) != len(tasks) {
		t.Errorf("Expected %d results, got %d", len(tasks), len(results))
	}

	var cancelledCount int
	for _, r := range results {
		if r.Err != nil && errors.Is(r.Err, context.Canceled) {
			cancelledCount++
		}
	}
	if cancelledCount == 0 {
		t.Error("Expected cancelled results")
	}

	t.Logf("Completed with %d results (%d cancelled) in %v", len(results), cancelledCount, elapsed)
}

func TestPool_ProgressCallback(t *testing.T) {
	gen := &mockRenderer{delay: 10 * time.Millisecond}

	var progressCalls atomic.Int32
	var lastCompleted, lastTotal int

	pool := New(Config{
		Workers:  2,
		Renderer: gen,
		OnProgress: func(_ Result, completed, total int) {
			progressCalls.Add(1)
			lastCompleted = completed
			lastTotal = total
		},
	})

	tasks := makeTasks(3)
	pool.Run(context.Background(), tasks)

	if progressCalls.Load() != int32(len(tasks)) {
		t.Errorf("Expected %d progress callbacks, got %d", len(tasks), progressCalls.Load())
	}

	// Final callback should show all completed
	if lastCompleted != len(tasks) {
		t.Errorf("Expected lastCompleted=%d, got %d", len(tasks), lastCompleted)
	}
	if lastTotal != len(tasks) {
		t.Errorf("Expected lastTotal=%d, got %d", len(tasks), lastTotal)
	}
}

func TestPool_EmptyTasks(t *testing.T) {
	gen := &mockRenderer{}

	pool := New(Config{
		Workers:  2,
		Renderer: gen,
	})

	results := pool.Run(context.Background(), nil)

	if len(results) != 0 {
		t.Errorf("Expected 0 results for empty tasks, got %d", len(results))
	}

	if gen.callCount.Load() != 0 {
		t.Errorf("Expected 0 render calls for empty tasks, got %d", gen.callCount.Load())
	}
}

func TestPool_DefaultsToOneWorker(t *testing.T) {
	pool := New(Config{Renderer: &mockRenderer{}})
	if pool.workers != 1 {
		t.Errorf("Expected 1 worker, got %d", pool.workers)
	}
}
