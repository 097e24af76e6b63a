// Package cursor declares the minimal ordered-traversal interface any
// index implementation (currently just pkg/btree) exposes to callers that
// only need forward iteration, such as BTreeIndex.Select.
package cursor

import (
	"bptreekv/pkg/entry"
)

// Cursor walks an index's entries in order.
type Cursor interface {
	Next() bool                     // Moves the cursor to the next entry. Returns true at the end.
	GetEntry() (entry.Entry, error) // Returns the entry at the position of the cursor.
	Close()                         // Releases the cursor's resources.
}
