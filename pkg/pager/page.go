package pager

import (
	"bptreekv/pkg/list"
)

// NoPage is the pagenum for when there is no page being held.
const NoPage int64 = -1

// PageType tags what a page currently holds. The B+-tree core owns the
// interpretation of index/leaf; the pager only persists the tag. There is
// no root tag: the root is identified by its page number.
type PageType byte

const (
	TypeFree  PageType = 0
	TypeIndex PageType = 1
	TypeLeaf  PageType = 2
	TypeBlob  PageType = 3
)

// Page caches one page of the backing file (or of the anonymous in-memory
// image) and carries the bookkeeping the B+-tree core needs around it: a pin
// count that keeps the pager from evicting it while the core holds raw
// slices into its buffer, and a cursor list (spec sec 4.7/9) that the core
// and the pager both must walk before the page moves or is evicted.
type Page struct {
	pager    *Pager
	pagenum  int64
	pinCount int64
	dirty    bool
	typ      PageType
	data     []byte

	// cursors is the intrusive list of btree cursors currently coupled to
	// this page. The pager never interprets it; it only passes the page to
	// the hook installed with SetEvictHook before reusing the frame.
	cursors *list.List
}

// GetPager returns the pager this page belongs to.
func (page *Page) GetPager() *Pager {
	return page.pager
}

// GetPageNum returns the page's pagenum (unique identifier).
func (page *Page) GetPageNum() int64 {
	return page.pagenum
}

// GetType returns the page's type tag.
func (page *Page) GetType() PageType {
	return page.typ
}

// SetType sets the page's type tag and marks the page dirty.
func (page *Page) SetType(typ PageType) {
	page.typ = typ
	page.dirty = true
}

// IsDirty reports whether the page's data has changed and needs to be written to disk.
func (page *Page) IsDirty() bool {
	return page.dirty
}

// SetDirty changes the dirty status of a page.
func (page *Page) SetDirty(dirty bool) {
	page.dirty = dirty
}

// GetData returns the page's usable byte data, excluding the trailing
// checksum reserved by the pager for integrity verification.
func (page *Page) GetData() []byte {
	return page.data[:UsableSize]
}

// Cursors returns the page's cursor list, creating it on first use.
func (page *Page) Cursors() *list.List {
	if page.cursors == nil {
		page.cursors = list.NewList()
	}
	return page.cursors
}

// Pin increments the pin count, indicating a caller is holding raw pointers
// into this page's buffer across a call that could otherwise evict it.
func (page *Page) Pin() {
	page.pinCount++
}

// Unpin decrements the pin count and returns the count after decrementing.
func (page *Page) Unpin() int64 {
	page.pinCount--
	return page.pinCount
}

// PinCount returns the current pin count.
func (page *Page) PinCount() int64 {
	return page.pinCount
}

// Update overwrites `size` bytes of the page's data at the given offset.
func (page *Page) Update(data []byte, offset int64, size int64) {
	page.dirty = true
	copy(page.data[offset:offset+size], data)
}
