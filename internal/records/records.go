// Package records defines the account record served by keypaged.
package records

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/Sternrassler/keypage/pkg/paging"
)

// Key orders records by name, then by descending id.
type Key struct {
	Name string `json:"name"`
	ID   int    `json:"id"`
}

// String formats the key as name:id.
func (k Key) String() string {
	return fmt.Sprintf("%s:%d", k.Name, k.ID)
}

// Record is an account row.
type Record struct {
	Name    string  `json:"name"`
	ID      int     `json:"id"`
	Balance float64 `json:"balance"`
	Address string  `json:"address"`
}

// Key derives the ordering key of the record.
func (r Record) Key() Key {
	return Key{Name: r.Name, ID: r.ID}
}

// Validate rejects records whose key cannot be encoded.
func (r Record) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("record %d: name is required", r.ID)
	}
	if strings.IndexByte(r.Name, 0) >= 0 {
		return fmt.Errorf("record %q: name contains NUL", r.Name)
	}
	if r.ID < 0 {
		return fmt.Errorf("record %q: negative id %d", r.Name, r.ID)
	}
	return nil
}

// KeyOf is Record.Key as a function value.
func KeyOf(r Record) Key {
	return r.Key()
}

// Compare orders by name ascending, then id descending.
var Compare = paging.Then(
	paging.By(func(k Key) string { return k.Name }),
	paging.Reverse(paging.By(func(k Key) int { return k.ID })),
)

// Generate returns n records named fa..fj in rotation, sorted by Compare.
func Generate(n int) []Record {
	out := make([]Record, n)
	for i := range out {
		out[i] = Record{
			Name:    "f" + string(rune('a'+i%10)),
			ID:      i,
			Balance: float64((i*7919)%1000) + 0.5,
			Address: strconv.Itoa((i*31)%200) + " fake st.",
		}
	}
	slices.SortFunc(out, func(a, b Record) int {
		return Compare(a.Key(), b.Key())
	})
	return out
}

// ParseKey parses name:id. The name may itself contain ':'.
func ParseKey(s string) (Key, error) {
	i := strings.LastIndexByte(s, ':')
	if i < 0 {
		return Key{}, fmt.Errorf("key %q: missing ':'", s)
	}
	id, err := strconv.Atoi(s[i+1:])
	if err != nil {
		return Key{}, fmt.Errorf("key %q: %w", s, err)
	}
	return Key{Name: s[:i], ID: id}, nil
}

// LexKey encodes a key so that byte order matches Compare.
// Names must not contain NUL bytes and ids must be non-negative.
func LexKey(k Key) string {
	return k.Name + "\x00" + fmt.Sprintf("%016x", uint64(math.MaxInt64-int64(k.ID)))
}

// Columns splits a key into a sortable text column and an integer tiebreak.
func Columns(k Key) (string, int64) {
	return k.Name, int64(k.ID)
}
