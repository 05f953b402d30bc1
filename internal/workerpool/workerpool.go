// Package workerpool implements the CPU/batch-size parameterised pool that
// replaces the process-pool and bespoke goroutine fan-outs scattered through
// the original crawler and BM25 builder. It makes no assumption about what
// kind of work item it runs.
package workerpool

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Result pairs a pool item's output with any error it produced. The pool
// never aborts early on a single item's failure; callers inspect Results.
type Result[R any] struct {
	Value R
	Err   error
}

// Run fans `items` out across `workers` goroutines (each invoking fn on a
// contiguous batch of size `batchSize`), preserving input order in the
// returned slice. workers <= 0 defaults to GOMAXPROCS; batchSize <= 0
// defaults to 1.
func Run[T, R any](ctx context.Context, items []T, workers, batchSize int, fn func(context.Context, T) (R, error)) []Result[R] {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers <= 0 {
		workers = 1
	}
	if batchSize <= 0 {
		batchSize = 1
	}
	results := make([]Result[R], len(items))
	if len(items) == 0 {
		return results
	}

	type batch struct {
		start, end int
	}
	var batches []batch
	for start := 0; start < len(items); start += batchSize {
		end := start + batchSize
		if end > len(items) {
			end = len(items)
		}
		batches = append(batches, batch{start, end})
	}

	sem := make(chan struct{}, workers)
	g, gctx := errgroup.WithContext(ctx)
	for _, b := range batches {
		b := b
		sem <- struct{}{}
		g.Go(func() error {
			defer func() { <-sem }()
			for i := b.start; i < b.end; i++ {
				v, err := fn(gctx, items[i])
				results[i] = Result[R]{Value: v, Err: err}
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// SafeCPUCount mirrors the original's get_safe_cpu_count(): an explicit
// override takes precedence, otherwise half the available CPUs, floored at 1.
func SafeCPUCount(override int) int {
	if override > 0 {
		return override
	}
	n := runtime.NumCPU() / 2
	if n < 1 {
		n = 1
	}
	return n
}

// BatchSize mirrors len(items) / (workers * 10), floored at 1.
func BatchSize(itemCount, workers int) int {
	if workers <= 0 {
		workers = 1
	}
	b := itemCount / (workers * 10)
	if b < 1 {
		b = 1
	}
	return b
}
