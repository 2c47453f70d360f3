package paging

// Window is the half-open index range [Start, End) of a page.
type Window struct {
	Start int
	End   int
}

// Len returns the number of items in the window.
func (w Window) Len() int {
	return w.End - w.Start
}

// Anchor locates a key in a dataset of Size items.
// After is FirstIndexAfter(key), Before is FirstIndexBefore(key).
type Anchor struct {
	After  int
	Before int
	Size   int
}

// Matched reports whether an item equal to the key exists; its index is After-1.
func (a Anchor) Matched() bool {
	return a.After-a.Before > 1
}

// PastEnd reports whether the key sorts after every item of a non-empty dataset.
func (a Anchor) PastEnd() bool {
	return a.Size > 0 && a.Before == a.Size-1 && !a.Matched()
}

// RefreshWindow centers a window of loadSize items on the anchor.
//
// A key past the whole dataset pulls the window back to end at the last item,
// returning up to loadSize items instead of the naive centered remainder.
// A key equal to an item always keeps that item inside the window.
func RefreshWindow(a Anchor, loadSize int) Window {
	if a.PastEnd() {
		return Window{Start: max(0, a.Size-loadSize), End: a.Size}
	}
	start := max(0, a.After-loadSize/2)
	if a.Matched() && start > a.After-1 {
		start = a.After - 1
	}
	return Window{Start: start, End: min(start+loadSize, a.Size)}
}

// InitialWindow is the Refresh window for a nil key.
func InitialWindow(size, loadSize int) Window {
	return Window{Start: 0, End: min(loadSize, size)}
}

// AppendWindow is the End window: up to loadSize items after the key.
func AppendWindow(a Anchor, loadSize int) Window {
	start := min(a.After, a.Size)
	return Window{Start: start, End: min(start+loadSize, a.Size)}
}

// PrependWindow is the Start window: up to loadSize items before the key.
func PrependWindow(a Anchor, loadSize int) Window {
	return Window{
		Start: max(0, a.Before-loadSize+1),
		End:   max(0, a.Before+1),
	}
}

// Placeholders returns ItemsBefore and ItemsAfter for a window. Counts are only
// known for Refresh loads on counted sources with placeholders enabled.
func Placeholders(t LoadType, w Window, size int, counted, enabled bool) (before, after int) {
	if t != Refresh || !counted || !enabled {
		return CountUndefined, CountUndefined
	}
	return w.Start, size - w.End
}
