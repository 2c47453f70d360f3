package pager

import (
	"slices"

	"github.com/Sternrassler/keypage/pkg/paging"
)

// State is the set of loaded pages, in dataset order.
type State[K, V any] struct {
	// Pages are the loaded non-empty pages.
	Pages []*paging.Page[K, V]

	// ReachedStart is true once no items precede the first page.
	ReachedStart bool

	// ReachedEnd is true once no items follow the last page.
	ReachedEnd bool

	loaded bool

	// leading counts placeholders before the first page, or CountUndefined.
	leading int
}

// Loaded reports whether a refresh has succeeded.
func (s State[K, V]) Loaded() bool {
	return s.loaded
}

// Len returns the number of loaded items.
func (s State[K, V]) Len() int {
	n := 0
	for _, page := range s.Pages {
		n += len(page.Data)
	}
	return n
}

// Items returns the loaded items in order.
func (s State[K, V]) Items() []V {
	out := make([]V, 0, s.Len())
	for _, page := range s.Pages {
		out = append(out, page.Data...)
	}
	return out
}

// LeadingPlaceholders returns the number of unloaded items before the first
// page, or 0 when unknown.
func (s State[K, V]) LeadingPlaceholders() int {
	if !s.loaded || s.leading == paging.CountUndefined {
		return 0
	}
	return s.leading
}

// RefreshKey derives the anchor key for reloading around anchorPosition, an
// absolute position counting leading placeholders. Positions outside the
// loaded items are clamped to the nearest loaded item. False means no key
// can be derived and the reload should start at the beginning.
func (s State[K, V]) RefreshKey(source paging.Source[K, V], anchorPosition int) (K, bool) {
	var zero K
	total := s.Len()
	if total == 0 {
		return zero, false
	}

	index := anchorPosition - s.LeadingPlaceholders()
	index = max(0, min(index, total-1))

	for _, page := range s.Pages {
		if index < len(page.Data) {
			return source.RefreshKey(index, page)
		}
		index -= len(page.Data)
	}
	return zero, false
}

func (s State[K, V]) clone() State[K, V] {
	s.Pages = slices.Clone(s.Pages)
	return s
}
