package btree

import (
	"bptreekv/pkg/entry"
	"bptreekv/pkg/list"
	"bptreekv/pkg/pager"
)

// cursorState is one of the three states spec sec 3/4.7 defines.
type cursorState int

const (
	stateNil cursorState = iota
	stateCoupled
	stateUncoupled
)

// Cursor walks a tree's leaves in key order, in one of three states: NIL
// (not positioned), COUPLED (pinned to a specific page+slot), or UNCOUPLED
// (holding an owned copy of a key after the page it was coupled to changed
// shape out from under it). dupeID exists for forward compatibility with
// duplicate-key chains but is never set away from zero (non-goal).
type Cursor struct {
	tree    *BTreeIndex
	state   cursorState
	page    *pager.Page
	index   int64
	link    *list.Link
	key     []byte
	dupeID  int64
}

// newCursor returns a fresh, NIL cursor over tree.
func newCursor(tree *BTreeIndex) *Cursor {
	return &Cursor{tree: tree, state: stateNil}
}

// couple pins the cursor to (page, index), registering it in the page's
// intrusive cursor list so a future split/evict can find and adjust it.
func (c *Cursor) couple(page *pager.Page, index int64) {
	c.setToNil()
	c.page = page
	c.index = index
	c.link = page.Cursors().PushTail(c)
	c.state = stateCoupled
}

// setToNil transitions the cursor to NIL, dropping any page coupling.
func (c *Cursor) setToNil() {
	if c.state == stateCoupled && c.link != nil {
		c.link.PopSelf()
	}
	c.page = nil
	c.link = nil
	c.key = nil
	c.index = 0
	c.dupeID = 0
	c.state = stateNil
}

// uncouple converts a COUPLED cursor to UNCOUPLED, capturing an owned copy
// of its current key so it can find its way back after the page it was on
// changes shape (spec sec 4.7/9).
func (c *Cursor) uncouple() error {
	if c.state != stateCoupled {
		return nil
	}
	leaf := pageToLeafNode(c.page)
	if c.index < leaf.count {
		key, err := leaf.getKeyAt(c.tree, c.index)
		if err != nil {
			return err
		}
		c.key = key
	}
	if c.link != nil {
		c.link.PopSelf()
	}
	c.page = nil
	c.link = nil
	c.state = stateUncoupled
	return nil
}

// recouple resolves an UNCOUPLED cursor back to a specific page+slot by
// re-finding its key, which is the only way a cursor comes back off of
// UNCOUPLED per spec sec 4.7.
func (c *Cursor) recouple() error {
	if c.state != stateUncoupled {
		return nil
	}
	page, idx, found, err := c.tree.locateSlot(c.key)
	if err != nil {
		return err
	}
	if !found {
		c.tree.pager.PutPage(page)
		c.setToNil()
		return newErr(ErrKindKeyNotFound, "cursor's key no longer exists")
	}
	c.couple(page, idx)
	c.tree.pager.PutPage(page)
	return nil
}

// Clone returns an independent copy of the cursor in the same state.
func (c *Cursor) Clone() *Cursor {
	clone := newCursor(c.tree)
	switch c.state {
	case stateCoupled:
		clone.couple(c.page, c.index)
	case stateUncoupled:
		clone.state = stateUncoupled
		clone.key = append([]byte(nil), c.key...)
	}
	return clone
}

// First couples the cursor to the first entry in the tree.
func (c *Cursor) First() error {
	page, err := c.tree.leftmostLeaf()
	if err != nil {
		return newErr(ErrKindIOError, err.Error())
	}
	leaf := pageToLeafNode(page)
	if leaf.count == 0 {
		c.tree.pager.PutPage(page)
		c.setToNil()
		return newErr(ErrKindKeyNotFound, "tree is empty")
	}
	c.couple(page, 0)
	c.tree.pager.PutPage(page)
	return nil
}

// Last couples the cursor to the last entry in the tree.
func (c *Cursor) Last() error {
	page, err := c.tree.rightmostLeaf()
	if err != nil {
		return newErr(ErrKindIOError, err.Error())
	}
	leaf := pageToLeafNode(page)
	if leaf.count == 0 {
		c.tree.pager.PutPage(page)
		c.setToNil()
		return newErr(ErrKindKeyNotFound, "tree is empty")
	}
	c.couple(page, leaf.count-1)
	c.tree.pager.PutPage(page)
	return nil
}

// Find couples the cursor to the entry with the given key.
func (c *Cursor) Find(key []byte) error {
	page, idx, found, err := c.tree.locateSlot(key)
	if err != nil {
		return err
	}
	if !found {
		c.tree.pager.PutPage(page)
		c.setToNil()
		return newErr(ErrKindKeyNotFound, "key not found")
	}
	c.couple(page, idx)
	c.tree.pager.PutPage(page)
	return nil
}

// Next advances the cursor by one entry. Returns true once it walks off
// the end, leaving the cursor NIL.
func (c *Cursor) Next() bool {
	if c.state == stateNil {
		return c.First() != nil
	}
	if c.state == stateUncoupled {
		if err := c.recouple(); err != nil {
			return true
		}
	}
	if c.state != stateCoupled {
		return true
	}
	leaf := pageToLeafNode(c.page)
	if c.index+1 < leaf.count {
		c.index++
		return false
	}
	nextPN := leaf.rightSiblingPN
	c.setToNil()
	if nextPN == NoPN {
		return true
	}
	nextPage, err := c.tree.pager.GetPage(nextPN)
	if err != nil {
		return true
	}
	nextLeaf := pageToLeafNode(nextPage)
	if nextLeaf.count == 0 {
		c.couple(nextPage, 0)
		c.tree.pager.PutPage(nextPage)
		return c.Next()
	}
	c.couple(nextPage, 0)
	c.tree.pager.PutPage(nextPage)
	return false
}

// Previous retreats the cursor by one entry. Returns true once it walks
// off the start, leaving the cursor NIL.
func (c *Cursor) Previous() bool {
	if c.state == stateNil {
		return c.Last() != nil
	}
	if c.state == stateUncoupled {
		if err := c.recouple(); err != nil {
			return true
		}
	}
	if c.state != stateCoupled {
		return true
	}
	leaf := pageToLeafNode(c.page)
	if c.index > 0 {
		c.index--
		return false
	}
	prevPN := leaf.leftSiblingPN
	c.setToNil()
	if prevPN == NoPN {
		return true
	}
	prevPage, err := c.tree.pager.GetPage(prevPN)
	if err != nil {
		return true
	}
	prevLeaf := pageToLeafNode(prevPage)
	if prevLeaf.count == 0 {
		c.couple(prevPage, 0)
		c.tree.pager.PutPage(prevPage)
		return c.Previous()
	}
	c.couple(prevPage, prevLeaf.count-1)
	c.tree.pager.PutPage(prevPage)
	return false
}

// GetEntry returns the key/record currently pointed to by the cursor.
func (c *Cursor) GetEntry() (entry.Entry, error) {
	if c.state == stateUncoupled {
		if err := c.recouple(); err != nil {
			return entry.Entry{}, err
		}
	}
	if c.state != stateCoupled {
		return entry.Entry{}, newErr(ErrKindCursorIsNil, "cursor is not positioned")
	}
	leaf := pageToLeafNode(c.page)
	key, err := leaf.getKeyAt(c.tree, c.index)
	if err != nil {
		return entry.Entry{}, err
	}
	rec, err := leaf.getRecordAt(c.tree, c.index)
	if err != nil {
		return entry.Entry{}, err
	}
	return entry.Entry{Key: key, Value: rec}, nil
}

// Overwrite replaces the record of the entry the cursor points to, without
// touching its key - the sole record-mutation path (spec sec 4.7/9: Insert
// with Overwrite on an exact match is a no-op, cursor-level Overwrite is
// what actually mutates).
func (c *Cursor) Overwrite(record []byte) error {
	if c.state == stateUncoupled {
		if err := c.recouple(); err != nil {
			return err
		}
	}
	if c.state != stateCoupled {
		return newErr(ErrKindCursorIsNil, "cursor is not positioned")
	}
	leaf := pageToLeafNode(c.page)
	return leaf.setRecordAt(c.tree, c.index, record)
}

// Erase removes the entry the cursor points to and sets the cursor to NIL.
func (c *Cursor) Erase() error {
	entry, err := c.GetEntry()
	if err != nil {
		return err
	}
	if err := c.tree.Erase(entry.Key); err != nil {
		return err
	}
	c.setToNil()
	return nil
}

// Close releases the cursor's page registration. Safe to call from any
// state.
func (c *Cursor) Close() {
	c.setToNil()
}

// recoupleSplit rehomes every cursor coupled to a slot that moved from
// oldPage to newPage during a leaf split (spec sec 4.7/9, grounded in
// upscaledb's btree_cursor.c couple_all_cursors sweep).
func (tree *BTreeIndex) recoupleSplit(oldPage, newPage *pager.Page, midpoint int64) {
	var moved []*Cursor
	oldPage.Cursors().Map(func(link *list.Link) {
		cur := link.GetValue().(*Cursor)
		if cur.index >= midpoint {
			moved = append(moved, cur)
		}
	})
	for _, cur := range moved {
		newIdx := cur.index - midpoint
		cur.link.PopSelf()
		cur.page = newPage
		cur.index = newIdx
		cur.link = newPage.Cursors().PushTail(cur)
	}
}

// rehomeAll moves every cursor coupled to oldPage onto newPage at the same
// index, unchanged - used when a root node's entire content is relocated
// to a fresh page during a root split (spec sec 4.7/9).
func (tree *BTreeIndex) rehomeAll(oldPage, newPage *pager.Page) {
	var all []*Cursor
	oldPage.Cursors().Map(func(link *list.Link) {
		all = append(all, link.GetValue().(*Cursor))
	})
	for _, cur := range all {
		idx := cur.index
		cur.link.PopSelf()
		cur.page = newPage
		cur.index = idx
		cur.link = newPage.Cursors().PushTail(cur)
	}
}

// eraseAdjustCursors fixes up every cursor coupled to page after the slot
// at pos was removed: a cursor on the removed slot goes NIL, any cursor
// past it shifts left by one.
func (tree *BTreeIndex) eraseAdjustCursors(page *pager.Page, pos int64) {
	var onErased, after []*Cursor
	page.Cursors().Map(func(link *list.Link) {
		cur := link.GetValue().(*Cursor)
		switch {
		case cur.index == pos:
			onErased = append(onErased, cur)
		case cur.index > pos:
			after = append(after, cur)
		}
	})
	for _, cur := range onErased {
		cur.setToNil()
	}
	for _, cur := range after {
		cur.index--
	}
}

// evictCursors force-uncouples every cursor still coupled to page, used as
// the pager's EvictHook before an unpinned frame is repurposed for a
// different page number (spec sec 4.7/9).
func evictCursors(page *pager.Page) {
	var coupled []*Cursor
	page.Cursors().Map(func(link *list.Link) {
		coupled = append(coupled, link.GetValue().(*Cursor))
	})
	for _, cur := range coupled {
		cur.uncouple()
	}
}
