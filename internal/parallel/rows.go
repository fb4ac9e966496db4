// Package parallel splits per-row raster work across goroutines.
package parallel

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// bandsPerWorker oversubscribes bands so uneven rows still balance.
const bandsPerWorker = 4

// Workers resolves a configured worker count (0 or less means GOMAXPROCS).
func Workers(n int) int {
	if n <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return n
}

// Rows splits [0,height) into contiguous bands and calls fn once per band.
// fn must only write rows in [y0,y1); reads of shared read-only state are fine.
// The first error cancels the remaining bands and is returned.
func Rows(ctx context.Context, workers, height int, fn func(y0, y1 int) error) error {
	if height <= 0 {
		return nil
	}
	workers = Workers(workers)

	bands := workers * bandsPerWorker
	if bands > height {
		bands = height
	}
	if workers == 1 || bands == 1 {
		if err := ctx.Err(); err != nil {
			return err
		}
		return fn(0, height)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	step := (height + bands - 1) / bands
	for start := 0; start < height; start += step {
		y0, y1 := start, min(start+step, height)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(y0, y1)
		})
	}
	return g.Wait()
}
