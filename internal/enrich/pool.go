package enrich

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Progress is reported after each item of a per-item stage completes.
type Progress struct {
	Stage  string `json:"stage"`
	Done   int    `json:"done"`
	Total  int    `json:"total"`
	Failed int    `json:"failed"`
}

// ProgressFunc receives incremental progress. Calls are serialized.
type ProgressFunc func(Progress)

// poolCounters is shared between the workers and the reporter.
type poolCounters struct {
	mu     sync.Mutex
	done   int
	failed int
}

// runPool calls work for every index in [0, n) on at most workers
// goroutines. work writes its own result slot and reports whether the item
// succeeded. runPool returns ctx.Err() if the context ends before all items
// finish.
func runPool(ctx context.Context, log zerolog.Logger, stage string, n, workers int,
	reportInterval time.Duration, progress ProgressFunc, work func(ctx context.Context, i int) bool) error {
	if workers < 1 {
		workers = 1
	}

	var c poolCounters
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	stopReporter := make(chan struct{})
	if reportInterval > 0 {
		go reporter(log, stage, n, reportInterval, &c, stopReporter)
	}

	for i := 0; i < n; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			ok := work(gctx, i)

			c.mu.Lock()
			defer c.mu.Unlock()
			c.done++
			if !ok {
				c.failed++
			}
			if progress != nil {
				progress(Progress{Stage: stage, Done: c.done, Total: n, Failed: c.failed})
			}
			return nil
		})
	}
	g.Wait()
	close(stopReporter)

	return ctx.Err()
}

// reporter logs pool progress at a fixed interval until stop is closed.
func reporter(log zerolog.Logger, stage string, total int, interval time.Duration,
	c *poolCounters, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			done, failed := c.done, c.failed
			c.mu.Unlock()

			log.Info().
				Str("stage", stage).
				Int("done", done).
				Int("total", total).
				Int("failed", failed).
				Msg("Enrichment progress")
		}
	}
}
