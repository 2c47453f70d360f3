// Package pager drives a paging.Source the way a scrolling list does: an
// initial refresh, then appends and prepends threaded through the boundary
// keys of the loaded pages, with invalidation that keeps the view position.
//
// Retry policy lives here; sources never retry on their own.
//
// # Basic Usage
//
//	p, err := pager.New[Key, Item](src, pager.Config{PageSize: 20, PlaceholdersEnabled: true})
//	if err != nil {
//		return err
//	}
//	if _, err := p.Refresh(ctx); err != nil {
//		return err
//	}
//	for {
//		page, err := p.Append(ctx)
//		if err != nil || page.Empty() {
//			break
//		}
//	}
package pager

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/keypage/pkg/paging"
)

// Config holds the pager configuration.
type Config struct {
	// PageSize is the load size of appends and prepends (required).
	PageSize int

	// InitialLoadSize is the load size of refreshes. Defaults to 3*PageSize.
	InitialLoadSize int

	// PlaceholdersEnabled asks refreshes for placeholder counts.
	PlaceholdersEnabled bool

	// Retry configures retries of transient failures.
	Retry RetryConfig

	// Logger defaults to the global logger with component "pager".
	Logger *zerolog.Logger
}

// DefaultConfig returns a configuration with the given page size.
func DefaultConfig(pageSize int) Config {
	return Config{
		PageSize:            pageSize,
		InitialLoadSize:     3 * pageSize,
		PlaceholdersEnabled: true,
		Retry:               DefaultRetryConfig(),
	}
}

// Pager holds the pages loaded from one source. Operations are serialized.
type Pager[K, V any] struct {
	mu     sync.Mutex
	source paging.Source[K, V]
	config Config
	logger zerolog.Logger
	state  State[K, V]
}

// New creates a pager over source.
func New[K, V any](source paging.Source[K, V], cfg Config) (*Pager[K, V], error) {
	if source == nil {
		return nil, fmt.Errorf("source is required")
	}
	if cfg.PageSize <= 0 {
		return nil, fmt.Errorf("page size must be positive (got %d)", cfg.PageSize)
	}
	if cfg.InitialLoadSize <= 0 {
		cfg.InitialLoadSize = 3 * cfg.PageSize
	}
	cfg.Retry = cfg.Retry.withDefaults()

	logger := log.With().Str("component", "pager").Logger()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	return &Pager[K, V]{
		source: source,
		config: cfg,
		logger: logger,
	}, nil
}

// Refresh replaces all pages with a window at the start of the dataset.
func (p *Pager[K, V]) Refresh(ctx context.Context) (*paging.Page[K, V], error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.refresh(ctx, nil)
}

// Invalidate drops all pages and reloads a window around the item at
// anchorPosition, an absolute position counting leading placeholders.
// Without loaded pages it behaves like Refresh.
func (p *Pager[K, V]) Invalidate(ctx context.Context, anchorPosition int) (*paging.Page[K, V], error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var key *K
	if k, ok := p.state.RefreshKey(p.source, anchorPosition); ok {
		key = &k
	}

	p.logger.Debug().
		Int("anchor_position", anchorPosition).
		Bool("keyed", key != nil).
		Msg("Invalidating pages")

	return p.refresh(ctx, key)
}

// Append loads the page after the last loaded item. At the end of the data
// it returns an empty page without loading.
func (p *Pager[K, V]) Append(ctx context.Context) (*paging.Page[K, V], error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.state.loaded {
		return nil, &OpError{Op: "append", Err: ErrNotLoaded}
	}
	if p.state.ReachedEnd {
		return &paging.Page[K, V]{ItemsBefore: paging.CountUndefined, ItemsAfter: paging.CountUndefined}, nil
	}

	last := p.state.Pages[len(p.state.Pages)-1]
	page, err := p.load(ctx, paging.LoadParams[K]{
		Type:     paging.End,
		Key:      last.NextKey,
		LoadSize: p.config.PageSize,
		PageSize: p.config.PageSize,
	})
	if err != nil {
		return nil, &OpError{Op: "append", Err: err}
	}

	if page.Empty() {
		p.state.ReachedEnd = true
		return page, nil
	}
	p.state.Pages = append(p.state.Pages, page)
	return page, nil
}

// Prepend loads the page before the first loaded item. At the start of the
// data it returns an empty page without loading.
func (p *Pager[K, V]) Prepend(ctx context.Context) (*paging.Page[K, V], error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.state.loaded {
		return nil, &OpError{Op: "prepend", Err: ErrNotLoaded}
	}
	if p.state.ReachedStart {
		return &paging.Page[K, V]{ItemsBefore: paging.CountUndefined, ItemsAfter: paging.CountUndefined}, nil
	}

	first := p.state.Pages[0]
	page, err := p.load(ctx, paging.LoadParams[K]{
		Type:     paging.Start,
		Key:      first.PrevKey,
		LoadSize: p.config.PageSize,
		PageSize: p.config.PageSize,
	})
	if err != nil {
		return nil, &OpError{Op: "prepend", Err: err}
	}

	if page.Empty() {
		p.state.ReachedStart = true
		return page, nil
	}
	p.state.Pages = append([]*paging.Page[K, V]{page}, p.state.Pages...)
	if p.state.leading != paging.CountUndefined {
		p.state.leading = max(0, p.state.leading-len(page.Data))
	}
	return page, nil
}

// Snapshot returns a copy of the current state.
func (p *Pager[K, V]) Snapshot() State[K, V] {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.clone()
}

func (p *Pager[K, V]) refresh(ctx context.Context, key *K) (*paging.Page[K, V], error) {
	page, err := p.load(ctx, paging.LoadParams[K]{
		Type:                paging.Refresh,
		Key:                 key,
		LoadSize:            p.config.InitialLoadSize,
		PlaceholdersEnabled: p.config.PlaceholdersEnabled,
		PageSize:            p.config.PageSize,
	})
	if err != nil {
		// The previous pages stay valid.
		return nil, &OpError{Op: "refresh", Err: err}
	}

	p.state = State[K, V]{
		loaded:       true,
		leading:      page.ItemsBefore,
		ReachedStart: page.Empty() || page.ItemsBefore == 0,
		ReachedEnd:   page.Empty() || page.ItemsAfter == 0,
	}
	if !page.Empty() {
		p.state.Pages = []*paging.Page[K, V]{page}
	}

	p.logger.Debug().
		Int("items", len(page.Data)).
		Int("items_before", page.ItemsBefore).
		Int("items_after", page.ItemsAfter).
		Msg("Refreshed")
	return page, nil
}

// load runs one load with the configured retry policy.
func (p *Pager[K, V]) load(ctx context.Context, params paging.LoadParams[K]) (*paging.Page[K, V], error) {
	var page *paging.Page[K, V]
	err := retryWithBackoff(ctx, p.config.Retry, p.logger, func() error {
		var err error
		page, err = paging.Resolve[K, V](p.source.Load(ctx, params))
		return err
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}
