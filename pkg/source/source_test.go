package source_test

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/Sternrassler/keypage/internal/testutil"
	"github.com/Sternrassler/keypage/pkg/paging"
	"github.com/Sternrassler/keypage/pkg/source"
)

type mutableDataset interface {
	paging.Dataset[testutil.Key, testutil.Item]
	Insert(items ...testutil.Item)
	Remove(keys ...testutil.Key) int
	Len() int
}

func datasets(items []testutil.Item) map[string]mutableDataset {
	return map[string]mutableDataset{
		"slice": source.NewSlice(items, testutil.KeyOf, testutil.CompareKeys),
		"btree": source.NewBTree(items, testutil.KeyOf, testutil.CompareKeys),
	}
}

func view(t *testing.T, ds paging.Dataset[testutil.Key, testutil.Item], fn func(paging.Snapshot[testutil.Key, testutil.Item])) {
	t.Helper()
	err := ds.View(context.Background(), func(s paging.Snapshot[testutil.Key, testutil.Item]) error {
		fn(s)
		return nil
	})
	if err != nil {
		t.Fatalf("View() error = %v", err)
	}
}

func TestDatasets_SnapshotQueries(t *testing.T) {
	items := testutil.ItemsByNameID()

	anchors := []testutil.Key{
		items[0].Key(),
		items[49].Key(),
		items[99].Key(),
		{Name: "f", ID: 0},
		{Name: "fc", ID: 1000},
		{Name: "fcc", ID: 0},
		{Name: "fz", ID: 0},
	}

	for name, ds := range datasets(items) {
		t.Run(name, func(t *testing.T) {
			view(t, ds, func(s paging.Snapshot[testutil.Key, testutil.Item]) {
				n, _ := s.Len()
				if n != len(items) {
					t.Fatalf("Len() = %d, want %d", n, len(items))
				}
				for _, key := range anchors {
					wantAfter := paging.FirstIndexAfter(items, key, testutil.KeyOf, testutil.CompareKeys)
					wantBefore := paging.FirstIndexBefore(items, key, testutil.KeyOf, testutil.CompareKeys)
					if got, _ := s.FirstIndexAfter(key); got != wantAfter {
						t.Errorf("FirstIndexAfter(%v) = %d, want %d", key, got, wantAfter)
					}
					if got, _ := s.FirstIndexBefore(key); got != wantBefore {
						t.Errorf("FirstIndexBefore(%v) = %d, want %d", key, got, wantBefore)
					}
				}

				got, _ := s.Slice(45, 55)
				if !reflect.DeepEqual(got, items[45:55]) {
					t.Errorf("Slice(45, 55) = %v, want %v", got, items[45:55])
				}
				if got, _ := s.Slice(10, 10); len(got) != 0 {
					t.Errorf("Slice(10, 10) returned %d items", len(got))
				}
			})
		})
	}
}

func TestDatasets_InsertReplaceRemove(t *testing.T) {
	items := testutil.Items(10)

	for name, ds := range datasets(nil) {
		t.Run(name, func(t *testing.T) {
			// Reverse insertion order must not matter.
			for i := len(items) - 1; i >= 0; i-- {
				ds.Insert(items[i])
			}
			if ds.Len() != len(items) {
				t.Fatalf("Len() = %d, want %d", ds.Len(), len(items))
			}

			replaced := items[3]
			replaced.Balance = -1
			ds.Insert(replaced)
			if ds.Len() != len(items) {
				t.Errorf("Len() after replace = %d, want %d", ds.Len(), len(items))
			}

			if got := ds.Remove(items[0].Key(), testutil.Key{Name: "nope"}); got != 1 {
				t.Errorf("Remove() = %d, want 1", got)
			}

			want := append([]testutil.Item{}, items[1:]...)
			want[2] = replaced
			view(t, ds, func(s paging.Snapshot[testutil.Key, testutil.Item]) {
				got, _ := s.Slice(0, len(want))
				if !reflect.DeepEqual(got, want) {
					t.Errorf("items = %v, want %v", got, want)
				}
			})
		})
	}
}

func TestDatasets_ViewHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for name, ds := range datasets(testutil.Items(5)) {
		t.Run(name, func(t *testing.T) {
			called := false
			err := ds.View(ctx, func(paging.Snapshot[testutil.Key, testutil.Item]) error {
				called = true
				return nil
			})
			if !errors.Is(err, context.Canceled) {
				t.Errorf("View() error = %v, want context.Canceled", err)
			}
			if called {
				t.Error("View() ran callback on cancelled context")
			}
		})
	}
}

func TestSlice_PagesDoNotAlias(t *testing.T) {
	items := testutil.Items(5)
	ds := source.NewSlice(items, testutil.KeyOf, testutil.CompareKeys)

	var page []testutil.Item
	view(t, ds, func(s paging.Snapshot[testutil.Key, testutil.Item]) {
		page, _ = s.Slice(0, 3)
	})
	ds.Remove(items[0].Key())

	if page[0] != items[0] {
		t.Errorf("page changed after Remove: %v", page[0])
	}
	if !source.IsSorted(ds.Items(), testutil.KeyOf, testutil.CompareKeys) {
		t.Error("Items() not sorted")
	}
}

func TestFaulty_OneShotFailure(t *testing.T) {
	items := testutil.Items(20)
	faulty := source.NewFaulty[testutil.Key, testutil.Item](source.NewSlice(items, testutil.KeyOf, testutil.CompareKeys))
	src := paging.NewWindowSource[testutil.Key, testutil.Item](faulty)
	ctx := context.Background()
	params := paging.LoadParams[testutil.Key]{Type: paging.Refresh, LoadSize: 5}

	boom := errors.New("boom")
	faulty.FailNext(boom)
	if faulty.Pending() != 1 {
		t.Fatalf("Pending() = %d, want 1", faulty.Pending())
	}

	_, err := paging.Resolve[testutil.Key, testutil.Item](src.Load(ctx, params))
	if !errors.Is(err, boom) {
		t.Fatalf("first Load() error = %v, want boom", err)
	}
	var loadErr *paging.LoadError
	if !errors.As(err, &loadErr) || loadErr.Type != paging.Refresh {
		t.Errorf("error %v is not a refresh LoadError", err)
	}

	page, err := paging.Resolve[testutil.Key, testutil.Item](src.Load(ctx, params))
	if err != nil {
		t.Fatalf("second Load() error = %v", err)
	}
	if !reflect.DeepEqual(page.Data, items[:5]) {
		t.Errorf("Data = %v, want %v", page.Data, items[:5])
	}
	if faulty.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", faulty.Pending())
	}
}
