package paging

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Snapshot is a consistent read of an ordered dataset, valid only inside
// Dataset.View.
type Snapshot[K, V any] interface {
	// Len returns the number of items.
	Len() (int, error)

	// FirstIndexAfter returns the smallest index whose key sorts after key,
	// or Len when there is none.
	FirstIndexAfter(key K) (int, error)

	// FirstIndexBefore returns the largest index whose key sorts before key,
	// or -1 when there is none.
	FirstIndexBefore(key K) (int, error)

	// Slice returns the items in [start, end).
	Slice(start, end int) ([]V, error)
}

// Dataset is an ordered collection that can be read consistently.
type Dataset[K, V any] interface {
	// View runs fn against a consistent snapshot. Mutations concurrent with
	// a view must not be observable inside it.
	View(ctx context.Context, fn func(Snapshot[K, V]) error) error

	// KeyOf derives the ordering key of an item.
	KeyOf(item V) K
}

// Option configures a WindowSource.
type Option func(*options)

type options struct {
	counted bool
	logger  zerolog.Logger
}

// WithCounted sets whether the source reports placeholder counts.
// Sources are counted by default.
func WithCounted(counted bool) Option {
	return func(o *options) {
		o.counted = counted
	}
}

// WithLogger sets the logger used for load tracing.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WindowSource implements Source over a Dataset using the reference
// windowing algorithm.
type WindowSource[K, V any] struct {
	dataset Dataset[K, V]
	counted bool
	logger  zerolog.Logger
}

// NewWindowSource creates a source over dataset.
func NewWindowSource[K, V any](dataset Dataset[K, V], opts ...Option) *WindowSource[K, V] {
	if dataset == nil {
		panic("dataset cannot be nil")
	}
	o := options{
		counted: true,
		logger:  log.With().Str("component", "paging").Logger(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &WindowSource[K, V]{
		dataset: dataset,
		counted: o.counted,
		logger:  o.logger,
	}
}

// Counted reports whether the source computes placeholder counts.
func (s *WindowSource[K, V]) Counted() bool {
	return s.counted
}

// Load dispatches params to the Refresh, Start or End window computation.
func (s *WindowSource[K, V]) Load(ctx context.Context, params LoadParams[K]) LoadResult[K, V] {
	loadType := params.Type.String()
	startTime := time.Now()
	defer func() {
		loadDuration.WithLabelValues(loadType).Observe(time.Since(startTime).Seconds())
	}()

	if err := params.Validate(); err != nil {
		loadsTotal.WithLabelValues(loadType, "invalid").Inc()
		s.logger.Error().Err(err).Str("load_type", loadType).Msg("Rejected load params")
		return &LoadError{Type: params.Type, Cause: err}
	}

	if err := ctx.Err(); err != nil {
		loadsTotal.WithLabelValues(loadType, "cancelled").Inc()
		return &LoadError{Type: params.Type, Cause: err}
	}

	var page *Page[K, V]
	err := s.dataset.View(ctx, func(snap Snapshot[K, V]) error {
		var err error
		page, err = s.window(snap, params)
		return err
	})
	if err == nil {
		// A page computed after cancellation is not committed.
		err = ctx.Err()
	}
	if err != nil {
		outcome := "error"
		if IsCancelled(err) {
			outcome = "cancelled"
		}
		loadsTotal.WithLabelValues(loadType, outcome).Inc()
		s.logger.Warn().
			Err(err).
			Str("load_type", loadType).
			Int("load_size", params.LoadSize).
			Msg("Load failed")
		return &LoadError{Type: params.Type, Cause: err}
	}

	outcome := "page"
	if page.Empty() {
		outcome = "empty"
	}
	loadsTotal.WithLabelValues(loadType, outcome).Inc()
	itemsLoadedTotal.WithLabelValues(loadType).Add(float64(len(page.Data)))

	return page
}

// window computes the page for params inside one snapshot.
func (s *WindowSource[K, V]) window(snap Snapshot[K, V], params LoadParams[K]) (*Page[K, V], error) {
	size, err := snap.Len()
	if err != nil {
		return nil, fmt.Errorf("dataset len: %w", err)
	}

	var w Window
	if params.Type == Refresh && params.Key == nil {
		w = InitialWindow(size, params.LoadSize)
	} else {
		anchor, err := locate(snap, *params.Key, params.Type, size)
		if err != nil {
			return nil, err
		}
		switch params.Type {
		case Refresh:
			w = RefreshWindow(anchor, params.LoadSize)
		case Start:
			w = PrependWindow(anchor, params.LoadSize)
		case End:
			w = AppendWindow(anchor, params.LoadSize)
		}
		s.logger.Debug().
			Str("load_type", params.Type.String()).
			Int("after", anchor.After).
			Int("before", anchor.Before).
			Int("size", size).
			Msg("Anchor located")
	}

	var data []V
	if w.Len() > 0 {
		data, err = snap.Slice(w.Start, w.End)
		if err != nil {
			return nil, fmt.Errorf("dataset slice [%d,%d): %w", w.Start, w.End, err)
		}
	}

	before, after := Placeholders(params.Type, w, size, s.counted, params.PlaceholdersEnabled)

	s.logger.Debug().
		Str("load_type", params.Type.String()).
		Int("start", w.Start).
		Int("end", w.End).
		Int("returned", len(data)).
		Msg("Window computed")

	return NewPage(data, s.dataset.KeyOf, before, after), nil
}

// locate runs only the searches the load type needs.
func locate[K, V any](snap Snapshot[K, V], key K, t LoadType, size int) (Anchor, error) {
	anchor := Anchor{After: size, Before: -1, Size: size}
	var err error
	if t != Start {
		if anchor.After, err = snap.FirstIndexAfter(key); err != nil {
			return anchor, fmt.Errorf("find first index after: %w", err)
		}
	}
	if t != End {
		if anchor.Before, err = snap.FirstIndexBefore(key); err != nil {
			return anchor, fmt.Errorf("find first index before: %w", err)
		}
	}
	return anchor, nil
}

// RefreshKey returns the key of page.Data[indexInPage].
func (s *WindowSource[K, V]) RefreshKey(indexInPage int, page *Page[K, V]) (K, bool) {
	var zero K
	if page == nil || indexInPage < 0 || indexInPage >= len(page.Data) {
		return zero, false
	}
	return s.dataset.KeyOf(page.Data[indexInPage]), true
}

// Ensure WindowSource implements Source.
var _ Source[string, string] = (*WindowSource[string, string])(nil)
