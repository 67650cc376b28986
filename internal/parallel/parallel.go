// package parallel runs one action per item with a bounded number of goroutines.
//
// A failing or panicking item is logged and counted; it never cancels or fails its siblings.
package parallel

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/plsync/internal/shared"
	"github.com/sourcegraph/conc/pool"
)

// RunEach calls action for every item with at most degree calls in flight and returns the number of failed items.
//
// degree below 1 is treated as 1. Items not yet started when ctx is done are counted as failed.
func RunEach[T any](ctx context.Context, logger *log.Logger, items []T, degree int, action func(context.Context, T) error) int {
	if len(items) == 0 {
		return 0
	}
	if degree < 1 {
		degree = 1
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	var failed atomic.Int64
	p := pool.New().WithMaxGoroutines(min(degree, len(items)))
	for i, item := range items {
		p.Go(func() {
			defer func() {
				if r := recover(); r != nil {
					failed.Add(1)
					logger.Error("task panicked", "index", i, "panic", fmt.Sprint(r))
				}
			}()

			if err := ctx.Err(); err != nil {
				failed.Add(1)
				logger.Debug("task skipped", "index", i, "error", err)
				return
			}

			if err := action(ctx, item); err != nil {
				failed.Add(1)
				logger.Error("task failed", "index", i, "error", err)
			}
		})
	}
	p.Wait()

	return int(failed.Load())
}
