package pager

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/keypage/pkg/paging"
)

// WalkConfig holds walk and batch configuration.
type WalkConfig struct {
	// PageSize is the load size of each step.
	PageSize int

	// MaxConcurrency is the maximum number of parallel loads in LoadMany.
	MaxConcurrency int

	// Timeout per load
	Timeout time.Duration

	// Retry configures retries of transient failures.
	Retry RetryConfig

	// Logger defaults to the global logger with component "pager".
	Logger *zerolog.Logger
}

// DefaultWalkConfig returns safe default configuration.
func DefaultWalkConfig() WalkConfig {
	return WalkConfig{
		PageSize:       100,
		MaxConcurrency: 10,
		Timeout:        15 * time.Second,
		Retry:          DefaultRetryConfig(),
	}
}

func (c WalkConfig) withDefaults() WalkConfig {
	d := DefaultWalkConfig()
	if c.PageSize <= 0 {
		c.PageSize = d.PageSize
	}
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = d.MaxConcurrency
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	c.Retry = c.Retry.withDefaults()
	return c
}

func (c WalkConfig) logger() zerolog.Logger {
	if c.Logger != nil {
		return *c.Logger
	}
	return log.With().Str("component", "pager").Logger()
}

// WalkStats summarizes a walk.
type WalkStats struct {
	Pages    int
	Items    int
	Duration time.Duration
}

// Walk drains src from the start to the end, calling fn for every non-empty
// page in order. Each step is an End load anchored at the previous page's
// last key, so the steps are inherently sequential. An error from fn stops
// the walk and is returned as is.
func Walk[K, V any](ctx context.Context, src paging.Source[K, V], cfg WalkConfig, fn func(*paging.Page[K, V]) error) (WalkStats, error) {
	cfg = cfg.withDefaults()
	start := time.Now()
	logger := cfg.logger()

	var stats WalkStats
	params := paging.LoadParams[K]{
		Type:     paging.Refresh,
		LoadSize: cfg.PageSize,
		PageSize: cfg.PageSize,
	}

	for {
		page, err := loadWithTimeout(ctx, src, params, cfg, logger)
		if err != nil {
			stats.Duration = time.Since(start)
			return stats, fmt.Errorf("walk page %d: %w", stats.Pages+1, err)
		}
		if page.Empty() {
			break
		}

		if err := fn(page); err != nil {
			stats.Duration = time.Since(start)
			return stats, err
		}
		stats.Pages++
		stats.Items += len(page.Data)

		// Progress logging every 50 pages
		if stats.Pages%50 == 0 {
			logger.Info().
				Int("pages", stats.Pages).
				Int("items", stats.Items).
				Msg("Walk progress")
		}

		params = paging.LoadParams[K]{
			Type:     paging.End,
			Key:      page.NextKey,
			LoadSize: cfg.PageSize,
			PageSize: cfg.PageSize,
		}
	}

	stats.Duration = time.Since(start)
	logger.Info().
		Int("pages", stats.Pages).
		Int("items", stats.Items).
		Dur("duration", stats.Duration).
		Msg("Walk complete")
	return stats, nil
}

// BatchResult is the outcome of one load in LoadMany.
type BatchResult[K, V any] struct {
	Index int
	Page  *paging.Page[K, V]
	Err   error
}

// LoadMany runs independent loads in parallel using a worker pool and returns
// one result per params entry, in input order. A failed load does not stop the
// others; loads not started before ctx is done fail with the context error.
func LoadMany[K, V any](ctx context.Context, src paging.Source[K, V], params []paging.LoadParams[K], cfg WalkConfig) []BatchResult[K, V] {
	cfg = cfg.withDefaults()
	start := time.Now()
	logger := cfg.logger()

	results := make([]BatchResult[K, V], len(params))
	if len(params) == 0 {
		return results
	}

	queue := make(chan int, len(params))
	for i := range params {
		queue <- i
	}
	close(queue)

	workers := min(cfg.MaxConcurrency, len(params))
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			processed := 0
			for i := range queue {
				// Results are written by index, so no lock is needed.
				if err := ctx.Err(); err != nil {
					results[i] = BatchResult[K, V]{Index: i, Err: err}
					continue
				}
				page, err := loadWithTimeout(ctx, src, params[i], cfg, logger)
				results[i] = BatchResult[K, V]{Index: i, Page: page, Err: err}
				processed++
			}
			if processed > 0 {
				logger.Debug().
					Int("worker_id", workerID).
					Int("loads_processed", processed).
					Msg("Worker completed")
			}
		}(w)
	}
	wg.Wait()

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	logger.Info().
		Int("loads", len(params)).
		Int("failed", failed).
		Int("workers", workers).
		Dur("duration", time.Since(start)).
		Msg("Batch load complete")

	return results
}

// loadWithTimeout runs one load bounded by cfg.Timeout and the retry policy.
func loadWithTimeout[K, V any](ctx context.Context, src paging.Source[K, V], params paging.LoadParams[K], cfg WalkConfig, logger zerolog.Logger) (*paging.Page[K, V], error) {
	loadCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	var page *paging.Page[K, V]
	err := retryWithBackoff(loadCtx, cfg.Retry, logger, func() error {
		var err error
		page, err = paging.Resolve[K, V](src.Load(loadCtx, params))
		return err
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}
