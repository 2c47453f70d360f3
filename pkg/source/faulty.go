package source

import (
	"context"
	"sync"

	"github.com/Sternrassler/keypage/pkg/paging"
)

// Faulty wraps a dataset and fails queued views. A queued failure affects
// exactly one subsequent view; later views reach the wrapped dataset again.
type Faulty[K, V any] struct {
	paging.Dataset[K, V]

	mu      sync.Mutex
	pending []error
}

// NewFaulty wraps dataset.
func NewFaulty[K, V any](dataset paging.Dataset[K, V]) *Faulty[K, V] {
	return &Faulty[K, V]{Dataset: dataset}
}

// FailNext queues err for the next view.
func (f *Faulty[K, V]) FailNext(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = append(f.pending, err)
}

// Pending returns the number of queued failures.
func (f *Faulty[K, V]) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

// View implements paging.Dataset.
func (f *Faulty[K, V]) View(ctx context.Context, fn func(paging.Snapshot[K, V]) error) error {
	f.mu.Lock()
	var err error
	if len(f.pending) > 0 {
		err = f.pending[0]
		f.pending = f.pending[1:]
	}
	f.mu.Unlock()

	if err != nil {
		return err
	}
	return f.Dataset.View(ctx, fn)
}
