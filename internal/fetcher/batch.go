package fetcher

import (
	"context"
	"sync"
	"time"
)

// Defaults for batch processing.
const (
	DefaultBatchSize  = 25
	DefaultBatchPause = 100 * time.Millisecond
)

// BatchConfig bounds the concurrency of a batched run.
type BatchConfig struct {
	Size  int           // Tasks run concurrently per batch
	Pause time.Duration // Sleep between consecutive batches
}

// Result is the outcome of one task. OK is false when the task produced nothing.
type Result[T any] struct {
	Value T
	OK    bool
}

// BatchOutcome reports how far a batched run got.
type BatchOutcome struct {
	Batches   int // Batches in the plan
	Completed int // Batches that ran to completion
}

// Partial reports whether the run stopped before all batches completed.
func (o BatchOutcome) Partial() bool {
	return o.Completed < o.Batches
}

// RunBatches runs task for every index in [0, n) in sequential batches of
// cfg.Size concurrent calls. Results are positioned by index. When ctx is done
// no further batch is started and the outcome is partial; tasks already
// running observe the same ctx.
func RunBatches[T any](ctx context.Context, cfg BatchConfig, n int, task func(ctx context.Context, i int) (T, bool)) ([]Result[T], BatchOutcome) {
	size := cfg.Size
	if size <= 0 {
		size = DefaultBatchSize
	}
	results := make([]Result[T], n)
	outcome := BatchOutcome{Batches: (n + size - 1) / size}

	for start := 0; start < n; start += size {
		if start > 0 && cfg.Pause > 0 {
			timer := time.NewTimer(cfg.Pause)
			select {
			case <-ctx.Done():
				timer.Stop()
				return results, outcome
			case <-timer.C:
			}
		}
		if ctx.Err() != nil {
			return results, outcome
		}

		end := start + size
		if end > n {
			end = n
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				v, ok := task(ctx, i)
				results[i] = Result[T]{Value: v, OK: ok}
			}(i)
		}
		wg.Wait()

		if ctx.Err() != nil {
			// Tasks in this batch may have been cut short.
			return results, outcome
		}
		outcome.Completed++
	}
	return results, outcome
}
