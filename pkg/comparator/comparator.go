// Package comparator implements the total-order comparator registry the
// B+-tree core consults to order keys: a default byte-lexicographic order,
// plus named custom and prefix comparators an embedder can register.
package comparator

import (
	"bytes"
	"errors"
	"sync"
)

// ErrCompareFailed is the sentinel a Comparator returns when it cannot
// produce an order for the given keys; pkg/btree surfaces this as
// ErrKindCompareFailed.
var ErrCompareFailed = errors.New("comparator failed to order keys")

// Comparator totally orders two keys, returning <0, 0, >0 like bytes.Compare.
type Comparator func(a, b []byte) (int, error)

// Default is the byte-lexicographic comparator used when no custom
// comparator is registered for a tree.
func Default(a, b []byte) (int, error) {
	return bytes.Compare(a, b), nil
}

// Prefix returns a comparator that orders keys by their first n bytes only,
// falling back to length once the shared prefix is equal.
func Prefix(n int) Comparator {
	return func(a, b []byte) (int, error) {
		pa, pb := a, b
		if len(pa) > n {
			pa = pa[:n]
		}
		if len(pb) > n {
			pb = pb[:n]
		}
		if c := bytes.Compare(pa, pb); c != 0 {
			return c, nil
		}
		return len(a) - len(b), nil
	}
}

// Registry holds named comparators an embedder can attach to a tree by name,
// so trees remain usable across process restarts without recompiling a
// function pointer into the store file.
type Registry struct {
	mu    sync.RWMutex
	named map[string]Comparator
}

// NewRegistry returns a Registry pre-populated with the "default" comparator.
func NewRegistry() *Registry {
	r := &Registry{named: make(map[string]Comparator)}
	r.Register("default", Default)
	return r
}

// Register attaches a comparator under name, overwriting any prior entry.
func (r *Registry) Register(name string, cmp Comparator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.named[name] = cmp
}

// Lookup returns the comparator registered under name, if any.
func (r *Registry) Lookup(name string) (Comparator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmp, ok := r.named[name]
	return cmp, ok
}
