// Package entry defines the key/record pair returned by tree reads.
package entry

import (
	"fmt"
	"io"
)

// Entry is a key/record pair as stored in the B+-tree.
type Entry struct {
	Key   []byte
	Value []byte
}

// New constructs an Entry from key and value.
func New(key []byte, value []byte) Entry {
	return Entry{Key: key, Value: value}
}

// Print writes the entry to w as "(<key>, <value>), ".
func (e Entry) Print(w io.Writer) {
	fmt.Fprintf(w, "(%x, %x), ", e.Key, e.Value)
}
