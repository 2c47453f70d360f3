// Package testutil provides fixtures and scripted sources for keypage tests.
package testutil

import (
	"github.com/Sternrassler/keypage/internal/records"
)

// Key is the fixture ordering key.
type Key = records.Key

// Item is a fixture record.
type Item = records.Record

// KeyOf is Item.Key as a function value.
func KeyOf(i Item) Key {
	return i.Key()
}

// CompareKeys orders by name ascending, then id descending.
var CompareKeys = records.Compare

// Items returns n items named fa..fj in rotation, sorted by CompareKeys.
func Items(n int) []Item {
	return records.Generate(n)
}

// ItemsByNameID is the 100-item fixture dataset.
func ItemsByNameID() []Item {
	return Items(100)
}

// KeyPtr returns a pointer to k.
func KeyPtr(k Key) *Key {
	return &k
}

// ParseKey parses name:id.
func ParseKey(s string) (Key, error) {
	return records.ParseKey(s)
}

// LexKey encodes a key so that byte order matches CompareKeys.
func LexKey(k Key) string {
	return records.LexKey(k)
}

// KeyColumns splits a key into a sortable text column and an integer tiebreak.
func KeyColumns(k Key) (string, int64) {
	return records.Columns(k)
}
