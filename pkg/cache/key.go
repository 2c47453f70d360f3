package cache

import (
	"fmt"
	"strings"

	"github.com/Sternrassler/keypage/pkg/paging"
)

// CacheKey identifies one cached page.
type CacheKey struct {
	// Source names the cached source; it scopes generations.
	Source string

	// Generation is the source generation the page was loaded in.
	Generation int64

	// LoadType is the load direction.
	LoadType paging.LoadType

	// Key is the encoded anchor key. Ignored when HasKey is false.
	Key string

	// HasKey is false for a Refresh with a nil key.
	HasKey bool

	// LoadSize is the number of items requested.
	LoadSize int

	// Placeholders records whether placeholder counts were requested.
	Placeholders bool
}

// String generates a deterministic cache key string. The anchor comes last
// because it may itself contain separators.
// Format: keypage:page:source:g<gen>:type:n<size>:p<0|1>:k=<key>
//
// Example:
//
//	keypage:page:items:g3:refresh:n10:p1:k=fa:90
func (k CacheKey) String() string {
	placeholders := 0
	if k.Placeholders {
		placeholders = 1
	}

	parts := []string{
		"keypage",
		"page",
		k.Source,
		fmt.Sprintf("g%d", k.Generation),
		k.LoadType.String(),
		fmt.Sprintf("n%d", k.LoadSize),
		fmt.Sprintf("p%d", placeholders),
	}

	if k.HasKey {
		parts = append(parts, "k="+k.Key)
	} else {
		parts = append(parts, "k-")
	}

	return strings.Join(parts, ":")
}

// generationKey is the counter key holding the current generation of source.
func generationKey(source string) string {
	return "keypage:gen:" + source
}
