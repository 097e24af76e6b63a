// Package alloc implements the page allocator abstraction the B+-tree core
// and blob store consume: a free list of page numbers that can be reused
// before the backing file is grown further.
package alloc

import (
	"sync"

	"github.com/bits-and-blooms/bitset"
)

// Allocator hands out page numbers, preferring previously-freed ones over
// growing the high-water mark. It has no knowledge of what a page number
// actually holds; that's the pager's and the B+-tree core's concern.
type Allocator struct {
	mu      sync.Mutex
	free    *bitset.BitSet
	nextNew int64
}

// New returns an empty Allocator with nothing yet reserved.
func New() *Allocator {
	return &Allocator{free: bitset.New(0)}
}

// Reserve bumps the allocator's high-water mark up to at least upTo,
// so page numbers already present in a reopened file are never handed
// out again as if they were free.
func (a *Allocator) Reserve(upTo int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if upTo > a.nextNew {
		a.nextNew = upTo
	}
}

// Alloc returns a page number to use for a newly allocated page, reusing a
// freed page number if one is available.
func (a *Allocator) Alloc() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if idx, ok := a.free.NextSet(0); ok {
		a.free.Clear(idx)
		return int64(idx)
	}
	pn := a.nextNew
	a.nextNew++
	return pn
}

// Free marks a page number as available for reuse by a future Alloc call.
func (a *Allocator) Free(pagenum int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.free.Set(uint(pagenum))
}

// HighWaterMark returns one past the greatest page number ever handed out.
func (a *Allocator) HighWaterMark() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.nextNew
}
