// Package source provides in-memory datasets for paging.WindowSource.
package source

import (
	"context"
	"slices"
	"sync"

	"github.com/Sternrassler/keypage/pkg/paging"
)

// Slice is a comparator-sorted, mutable in-memory dataset.
// Items with equal keys replace each other.
type Slice[K, V any] struct {
	mu      sync.RWMutex
	items   []V
	keyOf   func(V) K
	compare paging.Comparator[K]
}

// NewSlice creates a dataset holding a sorted copy of items.
func NewSlice[K, V any](items []V, keyOf func(V) K, compare paging.Comparator[K]) *Slice[K, V] {
	if keyOf == nil || compare == nil {
		panic("keyOf and compare cannot be nil")
	}
	s := &Slice[K, V]{
		keyOf:   keyOf,
		compare: compare,
	}
	s.Insert(items...)
	return s
}

// KeyOf implements paging.Dataset.
func (s *Slice[K, V]) KeyOf(item V) K {
	return s.keyOf(item)
}

// View implements paging.Dataset. The read lock is held for the whole view.
func (s *Slice[K, V]) View(ctx context.Context, fn func(paging.Snapshot[K, V]) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(sliceSnapshot[K, V]{s})
}

// Insert adds items, replacing any item with an equal key.
func (s *Slice[K, V]) Insert(items ...V) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range items {
		key := s.keyOf(item)
		i, found := slices.BinarySearchFunc(s.items, key, func(e V, k K) int {
			return s.compare(s.keyOf(e), k)
		})
		if found {
			s.items[i] = item
			continue
		}
		s.items = slices.Insert(s.items, i, item)
	}
}

// Remove deletes the items with the given keys and returns how many existed.
func (s *Slice[K, V]) Remove(keys ...K) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for _, key := range keys {
		i, found := slices.BinarySearchFunc(s.items, key, func(e V, k K) int {
			return s.compare(s.keyOf(e), k)
		})
		if found {
			s.items = slices.Delete(s.items, i, i+1)
			removed++
		}
	}
	return removed
}

// Len returns the number of items.
func (s *Slice[K, V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Items returns a copy of all items in order.
func (s *Slice[K, V]) Items() []V {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.items)
}

// sliceSnapshot reads Slice under the caller's read lock.
type sliceSnapshot[K, V any] struct {
	s *Slice[K, V]
}

func (v sliceSnapshot[K, V]) Len() (int, error) {
	return len(v.s.items), nil
}

func (v sliceSnapshot[K, V]) FirstIndexAfter(key K) (int, error) {
	return paging.FirstIndexAfter(v.s.items, key, v.s.keyOf, v.s.compare), nil
}

func (v sliceSnapshot[K, V]) FirstIndexBefore(key K) (int, error) {
	return paging.FirstIndexBefore(v.s.items, key, v.s.keyOf, v.s.compare), nil
}

func (v sliceSnapshot[K, V]) Slice(start, end int) ([]V, error) {
	start = max(0, start)
	end = min(end, len(v.s.items))
	if start >= end {
		return []V{}, nil
	}
	// Pages must not alias the mutable backing array.
	return slices.Clone(v.s.items[start:end]), nil
}

// IsSorted reports whether items are in comparator order; for tests and
// debugging of custom comparators.
func IsSorted[K, V any](items []V, keyOf func(V) K, compare paging.Comparator[K]) bool {
	return slices.IsSortedFunc(items, func(a, b V) int {
		return compare(keyOf(a), keyOf(b))
	})
}

// Ensure Slice implements paging.Dataset.
var _ paging.Dataset[int, int] = (*Slice[int, int])(nil)
