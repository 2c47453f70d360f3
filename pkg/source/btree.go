package source

import (
	"context"
	"sync"

	"github.com/google/btree"

	"github.com/Sternrassler/keypage/pkg/paging"
)

// DefaultDegree is the B-tree degree used by NewBTree.
const DefaultDegree = 32

type entry[K, V any] struct {
	key  K
	item V
}

// BTree is a mutable in-memory dataset kept in a B-tree ordered by key.
// Inserts and removals are O(log n); rank queries walk the tree and are
// O(rank), so it suits write-heavy datasets read near their start.
type BTree[K, V any] struct {
	mu    sync.RWMutex
	tree  *btree.BTreeG[entry[K, V]]
	keyOf func(V) K
}

// NewBTree creates a dataset holding items.
func NewBTree[K, V any](items []V, keyOf func(V) K, compare paging.Comparator[K]) *BTree[K, V] {
	if keyOf == nil || compare == nil {
		panic("keyOf and compare cannot be nil")
	}
	less := func(a, b entry[K, V]) bool {
		return compare(a.key, b.key) < 0
	}
	t := &BTree[K, V]{
		tree:  btree.NewG(DefaultDegree, less),
		keyOf: keyOf,
	}
	t.Insert(items...)
	return t
}

// KeyOf implements paging.Dataset.
func (t *BTree[K, V]) KeyOf(item V) K {
	return t.keyOf(item)
}

// View implements paging.Dataset. The read lock is held for the whole view.
func (t *BTree[K, V]) View(ctx context.Context, fn func(paging.Snapshot[K, V]) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return fn(btreeSnapshot[K, V]{t.tree})
}

// Insert adds items, replacing any item with an equal key.
func (t *BTree[K, V]) Insert(items ...V) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, item := range items {
		t.tree.ReplaceOrInsert(entry[K, V]{key: t.keyOf(item), item: item})
	}
}

// Remove deletes the items with the given keys and returns how many existed.
func (t *BTree[K, V]) Remove(keys ...K) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	removed := 0
	for _, key := range keys {
		if _, ok := t.tree.Delete(entry[K, V]{key: key}); ok {
			removed++
		}
	}
	return removed
}

// Len returns the number of items.
func (t *BTree[K, V]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.tree.Len()
}

type btreeSnapshot[K, V any] struct {
	tree *btree.BTreeG[entry[K, V]]
}

func (v btreeSnapshot[K, V]) Len() (int, error) {
	return v.tree.Len(), nil
}

// countLess returns the number of items whose key sorts before key.
func (v btreeSnapshot[K, V]) countLess(key K) int {
	n := 0
	v.tree.AscendLessThan(entry[K, V]{key: key}, func(entry[K, V]) bool {
		n++
		return true
	})
	return n
}

func (v btreeSnapshot[K, V]) FirstIndexAfter(key K) (int, error) {
	n := v.countLess(key)
	if v.tree.Has(entry[K, V]{key: key}) {
		n++
	}
	return n, nil
}

func (v btreeSnapshot[K, V]) FirstIndexBefore(key K) (int, error) {
	return v.countLess(key) - 1, nil
}

func (v btreeSnapshot[K, V]) Slice(start, end int) ([]V, error) {
	out := make([]V, 0, max(0, end-start))
	i := 0
	v.tree.Ascend(func(e entry[K, V]) bool {
		if i >= end {
			return false
		}
		if i >= start {
			out = append(out, e.item)
		}
		i++
		return true
	})
	return out, nil
}

// Ensure BTree implements paging.Dataset.
var _ paging.Dataset[int, int] = (*BTree[int, int])(nil)
