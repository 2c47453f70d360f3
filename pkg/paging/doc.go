// Package paging defines the key-anchored load contract for ordered datasets
// and the reference windowing algorithm that satisfies it.
//
// A Source loads fixed-size windows ("pages") of an ordered dataset. Pages are
// addressed by a stable per-item key instead of an absolute offset, so loading
// stays correct while the dataset grows, shrinks or is reordered between calls.
//
// # Load Types
//
//   - Refresh: initial window centered on a key (nil key means the start)
//   - Start: window strictly before a key (prepend)
//   - End: window strictly after a key (append)
//
// # Basic Usage
//
//	ds := source.NewSlice(items, Item.Key, compareKeys)
//	src := paging.NewWindowSource[Key, Item](ds, paging.WithCounted(true))
//
//	res := src.Load(ctx, paging.LoadParams[Key]{
//		Type:                paging.Refresh,
//		Key:                 &anchor,
//		LoadSize:            30,
//		PlaceholdersEnabled: true,
//		PageSize:            10,
//	})
//
//	switch r := res.(type) {
//	case *paging.Page[Key, Item]:
//		// render r.Data, continue with r.PrevKey / r.NextKey
//	case *paging.LoadError:
//		// hand r.Cause to retry policy
//	}
//
// # Placeholder Counts
//
// ItemsBefore and ItemsAfter are only computed for Refresh loads on counted
// sources with placeholders enabled. Everywhere else they are CountUndefined.
//
// # Errors
//
// Boundary conditions (empty dataset, key past the end, anchor at an edge)
// are valid, possibly empty pages. A load failure is a *LoadError carrying the
// cause. Invalid parameters wrap ErrInvalidParams. The core never retries.
package paging
