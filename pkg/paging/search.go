package paging

import (
	"cmp"
	"sort"
)

// Comparator orders keys. It returns a negative number when a sorts before b,
// zero when they are equal and a positive number otherwise. Ties on primary
// fields must be broken deterministically so the order is total.
type Comparator[K any] func(a, b K) int

// By orders keys by a single ordered field.
func By[K any, F cmp.Ordered](field func(K) F) Comparator[K] {
	return func(a, b K) int {
		return cmp.Compare(field(a), field(b))
	}
}

// Then chains comparators; later ones break ties of earlier ones.
func Then[K any](first Comparator[K], rest ...Comparator[K]) Comparator[K] {
	return func(a, b K) int {
		if c := first(a, b); c != 0 {
			return c
		}
		for _, next := range rest {
			if c := next(a, b); c != 0 {
				return c
			}
		}
		return 0
	}
}

// Reverse inverts a comparator.
func Reverse[K any](c Comparator[K]) Comparator[K] {
	return func(a, b K) int {
		return c(b, a)
	}
}

// FirstIndexAfter returns the smallest index i with key < keyOf(items[i]),
// or len(items) when the key is at or past the last item.
// items must be sorted by compare.
func FirstIndexAfter[K, V any](items []V, key K, keyOf func(V) K, compare Comparator[K]) int {
	return sort.Search(len(items), func(i int) bool {
		return compare(key, keyOf(items[i])) < 0
	})
}

// FirstIndexBefore returns the largest index i with key > keyOf(items[i]),
// or -1 when the key is at or before the first item.
// items must be sorted by compare.
func FirstIndexBefore[K, V any](items []V, key K, keyOf func(V) K, compare Comparator[K]) int {
	n := sort.Search(len(items), func(i int) bool {
		return compare(key, keyOf(items[i])) <= 0
	})
	return n - 1
}
