package paging

import (
	"context"
	"fmt"
	"math"
)

// CountUndefined marks an unknown placeholder count.
const CountUndefined = math.MinInt32

// LoadType selects the direction of a load.
type LoadType int

const (
	// Refresh loads an initial window centered on the anchor key.
	Refresh LoadType = iota

	// Start loads the window directly before the anchor key, exclusive.
	Start

	// End loads the window directly after the anchor key, exclusive.
	End
)

// String returns the lower-case name used in logs and metric labels.
func (t LoadType) String() string {
	switch t {
	case Refresh:
		return "refresh"
	case Start:
		return "start"
	case End:
		return "end"
	default:
		return fmt.Sprintf("loadtype(%d)", int(t))
	}
}

// ParseLoadType converts a name produced by LoadType.String back to a LoadType.
func ParseLoadType(s string) (LoadType, error) {
	switch s {
	case "refresh":
		return Refresh, nil
	case "start", "prepend":
		return Start, nil
	case "end", "append":
		return End, nil
	default:
		return 0, fmt.Errorf("%w: unknown load type %q", ErrInvalidParams, s)
	}
}

// LoadParams describes a single load request.
type LoadParams[K any] struct {
	// Type is the load direction.
	Type LoadType

	// Key is the anchor. It is nil only for Refresh, where nil means the
	// start of the dataset.
	Key *K

	// LoadSize is the number of items requested.
	LoadSize int

	// PlaceholdersEnabled asks the source to report ItemsBefore/ItemsAfter.
	PlaceholdersEnabled bool

	// PageSize is the caller's configured page size. It is informational;
	// windows are sized by LoadSize.
	PageSize int
}

// Validate reports contract violations. A nil error does not guarantee the
// load will succeed.
func (p LoadParams[K]) Validate() error {
	switch p.Type {
	case Refresh:
	case Start, End:
		if p.Key == nil {
			return fmt.Errorf("%w: %s load without anchor key", ErrMissingKey, p.Type)
		}
	default:
		return fmt.Errorf("%w: unknown load type %d", ErrInvalidParams, int(p.Type))
	}
	if p.LoadSize <= 0 {
		return fmt.Errorf("%w: load size must be positive (got %d)", ErrInvalidParams, p.LoadSize)
	}
	return nil
}

// LoadResult is the outcome of Source.Load: either *Page or *LoadError.
type LoadResult[K, V any] interface {
	isLoadResult()
}

// Page is a contiguous window of the dataset.
type Page[K, V any] struct {
	// Data holds the items in dataset order.
	Data []V `json:"data"`

	// PrevKey is the key of the first item, nil when Data is empty.
	PrevKey *K `json:"prev_key,omitempty"`

	// NextKey is the key of the last item, nil when Data is empty.
	NextKey *K `json:"next_key,omitempty"`

	// ItemsBefore counts items preceding Data, or CountUndefined.
	ItemsBefore int `json:"items_before"`

	// ItemsAfter counts items following Data, or CountUndefined.
	ItemsAfter int `json:"items_after"`
}

func (*Page[K, V]) isLoadResult() {}

// Empty reports whether the page holds no items.
func (p *Page[K, V]) Empty() bool {
	return len(p.Data) == 0
}

// Counted reports whether both placeholder counts are known.
func (p *Page[K, V]) Counted() bool {
	return p.ItemsBefore != CountUndefined && p.ItemsAfter != CountUndefined
}

// NewPage builds a page over data, deriving PrevKey and NextKey with keyOf.
func NewPage[K, V any](data []V, keyOf func(V) K, itemsBefore, itemsAfter int) *Page[K, V] {
	page := &Page[K, V]{
		Data:        data,
		ItemsBefore: itemsBefore,
		ItemsAfter:  itemsAfter,
	}
	if len(data) > 0 {
		first := keyOf(data[0])
		last := keyOf(data[len(data)-1])
		page.PrevKey = &first
		page.NextKey = &last
	}
	return page
}

// Source is the load contract a data source implements.
type Source[K, V any] interface {
	// Load returns the window described by params.
	Load(ctx context.Context, params LoadParams[K]) LoadResult[K, V]

	// RefreshKey derives the key of page.Data[indexInPage], used to re-anchor
	// a Refresh after invalidation. False tells the caller to fall back to a
	// Refresh with a nil key.
	RefreshKey(indexInPage int, page *Page[K, V]) (K, bool)
}

// Resolve unwraps a LoadResult into a page or an error. LoadResult carries
// no K or V in its method set, so callers instantiate explicitly:
//
//	page, err := paging.Resolve[Key, Item](src.Load(ctx, params))
func Resolve[K, V any](res LoadResult[K, V]) (*Page[K, V], error) {
	switch r := res.(type) {
	case *Page[K, V]:
		return r, nil
	case *LoadError:
		return nil, r
	case nil:
		return nil, &LoadError{Cause: ErrNoResult}
	default:
		return nil, &LoadError{Cause: fmt.Errorf("%w: %T", ErrNoResult, res)}
	}
}
