package btree

import (
	"fmt"
	"io"

	"bptreekv/pkg/blob"
	"bptreekv/pkg/pager"
)

// LeafNode stores the actual key/record pairs at the bottom of the tree.
type LeafNode struct {
	nodeHeader
}

func pageToLeafNode(page *pager.Page) *LeafNode {
	return &LeafNode{readNodeHeader(page)}
}

// createLeafNode allocates and initializes a new, empty leaf node. Callers
// must PutPage its page when done.
func createLeafNode(tree *BTreeIndex) (*LeafNode, error) {
	page, err := tree.pager.GetNewPage()
	if err != nil {
		return nil, newErr(ErrKindOutOfMemory, err.Error())
	}
	initLeafPage(page)
	return pageToLeafNode(page), nil
}

func (n *LeafNode) stride(tree *BTreeIndex) int64 {
	return leafStride(tree.maxKeySize)
}

func (n *LeafNode) slotOffset(tree *BTreeIndex, i int64) int64 {
	return nodeHeaderSize + i*n.stride(tree)
}

func (n *LeafNode) getFlagAt(tree *BTreeIndex, i int64) byte {
	off := n.slotOffset(tree, i)
	return n.page.GetData()[off]
}

func (n *LeafNode) keyRegion(tree *BTreeIndex, i int64) []byte {
	off := n.slotOffset(tree, i) + 1
	return n.page.GetData()[off : off+slotKeyRegionSize(tree.maxKeySize)]
}

func (n *LeafNode) pointerWord(tree *BTreeIndex, i int64) [8]byte {
	off := n.slotOffset(tree, i) + 1 + slotKeyRegionSize(tree.maxKeySize)
	var w [8]byte
	copy(w[:], n.page.GetData()[off:off+pointerWidth])
	return w
}

func (n *LeafNode) getKeyAt(tree *BTreeIndex, i int64) ([]byte, error) {
	return resolveKey(n.keyRegion(tree, i), tree.maxKeySize, tree.blobs, tree.extkeys)
}

func (n *LeafNode) getRecordAt(tree *BTreeIndex, i int64) ([]byte, error) {
	flag := n.getFlagAt(tree, i)
	word := n.pointerWord(tree, i)
	if flag != recFlagBlob {
		return decodeInlineRecord(flag, word), nil
	}
	id := decodeBlobID(word)
	data, err := tree.blobs.Read(id)
	if err != nil {
		return nil, newErr(ErrKindIOError, err.Error())
	}
	return data, nil
}

// freeRecordAt releases any blob backing the record currently at i.
func (n *LeafNode) freeRecordAt(tree *BTreeIndex, i int64) error {
	if n.getFlagAt(tree, i) != recFlagBlob {
		return nil
	}
	id := decodeBlobID(n.pointerWord(tree, i))
	return tree.blobs.Free(id)
}

// recordBlobIDAt returns the BlobID currently backing the record at i, or
// blob.NoBlob if it's inlined rather than blob-backed.
func (n *LeafNode) recordBlobIDAt(tree *BTreeIndex, i int64) blob.BlobID {
	if n.getFlagAt(tree, i) != recFlagBlob {
		return blob.NoBlob
	}
	return decodeBlobID(n.pointerWord(tree, i))
}

// freeKeyAt releases any blob (and extended-key cache entry) backing the
// key currently at i.
func (n *LeafNode) freeKeyAt(tree *BTreeIndex, i int64) error {
	region := n.keyRegion(tree, i)
	keylen := uint16FromRegion(region)
	if keylen != extKeyMarker {
		return nil
	}
	id := blobIDFromRegion(region)
	tree.extkeys.Remove(id)
	return tree.blobs.Free(id)
}

// setSlotAt writes key and record into slot i. It is only ever called on a
// slot that holds no live entry: either genuinely unused page space, or a
// slot whose previous occupant has already been copied one position over by
// the shift-right in insert() (spec sec 4.4). Unlike setRecordAt, it must
// never try to free whatever bytes are currently sitting in that slot -
// doing so could silently free a blob a shifted neighbor still references,
// or (since a never-written slot reads back as flag 0 / recFlagBlob)
// misinterpret zeroed page space as a stale blob pointer.
func (n *LeafNode) setSlotAt(tree *BTreeIndex, i int64, key []byte, record []byte) error {
	off := n.slotOffset(tree, i)
	data := n.page.GetData()

	if err := writeKey(n.keyRegion(tree, i), key, tree.maxKeySize, tree.blobs, tree.extkeys); err != nil {
		return err
	}

	flag, word, needsBlob := encodeRecord(record)
	if needsBlob {
		id, err := tree.blobs.Allocate(record)
		if err != nil {
			return newErr(ErrKindOutOfMemory, err.Error())
		}
		encodeBlobID(word[:], id)
	}
	data[off] = flag
	wordOff := off + 1 + slotKeyRegionSize(tree.maxKeySize)
	n.page.Update(word[:], wordOff, pointerWidth)
	n.page.Update(data[off:off+1], off, 1)
	return nil
}

// setRecordAt overwrites only the record at slot i, leaving its key
// untouched - the path cursor.Overwrite uses (spec sec 4.7). It routes a
// blob-to-blob overwrite through blobs.Overwrite so the blob may relocate
// (spec sec 6) rather than free-then-reallocate as two separate steps.
func (n *LeafNode) setRecordAt(tree *BTreeIndex, i int64, record []byte) error {
	oldRecordID := n.recordBlobIDAt(tree, i)
	off := n.slotOffset(tree, i)
	flag, word, needsBlob := encodeRecord(record)
	if needsBlob {
		id, err := tree.blobs.Overwrite(oldRecordID, record)
		if err != nil {
			return newErr(ErrKindOutOfMemory, err.Error())
		}
		encodeBlobID(word[:], id)
	} else if oldRecordID != blob.NoBlob {
		if err := tree.blobs.Free(oldRecordID); err != nil {
			return newErr(ErrKindIOError, err.Error())
		}
	}
	n.page.Update([]byte{flag}, off, 1)
	wordOff := off + 1 + slotKeyRegionSize(tree.maxKeySize)
	n.page.Update(word[:], wordOff, pointerWidth)
	return nil
}

// copySlot copies slot src of srcNode into slot dst of n, without
// re-encoding (blob ids, if any, move verbatim).
func (n *LeafNode) copySlot(tree *BTreeIndex, dst int64, src *LeafNode, srcIdx int64) {
	srcOff := src.slotOffset(tree, srcIdx)
	dstOff := n.slotOffset(tree, dst)
	stride := n.stride(tree)
	n.page.Update(src.page.GetData()[srcOff:srcOff+stride], dstOff, stride)
}

// searchSlot returns the first index i such that key(i) >= key, or count if
// no such index exists.
func (n *LeafNode) searchSlot(tree *BTreeIndex, key []byte) (int64, error) {
	return binarySearch(n.count, func(i int64) (int, error) {
		k, err := n.getKeyAt(tree, i)
		if err != nil {
			return 0, err
		}
		return tree.compare(k, key)
	})
}

func (n *LeafNode) find(tree *BTreeIndex, key []byte) ([]byte, bool, error) {
	pos, err := n.searchSlot(tree, key)
	if err != nil {
		return nil, false, err
	}
	if pos >= n.count {
		return nil, false, nil
	}
	k, err := n.getKeyAt(tree, pos)
	if err != nil {
		return nil, false, err
	}
	c, err := tree.compare(k, key)
	if err != nil {
		return nil, false, err
	}
	if c != 0 {
		return nil, false, nil
	}
	rec, err := n.getRecordAt(tree, pos)
	return rec, true, err
}

func (n *LeafNode) insert(tree *BTreeIndex, key []byte, record []byte, overwrite bool) (Split, error) {
	pos, err := n.searchSlot(tree, key)
	if err != nil {
		return Split{}, err
	}
	exists := false
	if pos < n.count {
		k, err := n.getKeyAt(tree, pos)
		if err != nil {
			return Split{}, err
		}
		c, err := tree.compare(k, key)
		if err != nil {
			return Split{}, err
		}
		exists = c == 0
	}
	if exists {
		if !overwrite {
			return Split{}, newErr(ErrKindDuplicateKey, "key already exists")
		}
		// An exact-match OVERWRITE insert is a no-op (spec sec 4.4): the
		// record-replacement path belongs to the cursor, not the tree-level
		// insert. Returning here without touching the slot matches
		// upscaledb's btree_insert, which returns success without writing.
		return Split{}, nil
	}
	// Shift slots right to make room.
	for i := n.count - 1; i >= pos; i-- {
		n.copySlot(tree, i+1, n, i)
	}
	n.setCount(n.count + 1)
	if err := n.setSlotAt(tree, pos, key, record); err != nil {
		return Split{}, err
	}
	if n.count >= maxLeafEntries(tree.maxKeySize) {
		return n.split(tree)
	}
	return Split{}, nil
}

func (n *LeafNode) split(tree *BTreeIndex) (Split, error) {
	newNode, err := createLeafNode(tree)
	if err != nil {
		return Split{}, err
	}
	defer tree.pager.PutPage(newNode.page)

	newNode.setRightSibling(n.rightSiblingPN)
	newNode.setLeftSibling(n.page.GetPageNum())
	n.setRightSibling(newNode.page.GetPageNum())
	if rightPage, err := tree.getSibling(newNode.rightSiblingPN); err == nil && rightPage != nil {
		rightPage.setLeftSibling(newNode.page.GetPageNum())
		tree.pager.PutPage(rightPage.page)
	}

	midpoint := n.count / 2
	for i := midpoint; i < n.count; i++ {
		newNode.copySlot(tree, newNode.count, n, i)
		newNode.setCount(newNode.count + 1)
	}
	n.setCount(midpoint)

	tree.recoupleSplit(n.page, newNode.page, midpoint)

	pivotKey, err := newNode.getKeyAt(tree, 0)
	if err != nil {
		return Split{}, err
	}
	return Split{
		isSplit: true,
		key:     pivotKey,
		leftPN:  n.page.GetPageNum(),
		rightPN: newNode.page.GetPageNum(),
	}, nil
}

func (n *LeafNode) erase(tree *BTreeIndex, key []byte) error {
	pos, err := n.searchSlot(tree, key)
	if err != nil {
		return err
	}
	if pos >= n.count {
		return newErr(ErrKindKeyNotFound, "key not found")
	}
	k, err := n.getKeyAt(tree, pos)
	if err != nil {
		return err
	}
	c, err := tree.compare(k, key)
	if err != nil {
		return err
	}
	if c != 0 {
		return newErr(ErrKindKeyNotFound, "key not found")
	}
	if err := n.freeKeyAt(tree, pos); err != nil {
		return err
	}
	if err := n.freeRecordAt(tree, pos); err != nil {
		return err
	}
	tree.eraseAdjustCursors(n.page, pos)
	for i := pos; i < n.count-1; i++ {
		n.copySlot(tree, i, n, i+1)
	}
	n.setCount(n.count - 1)
	// Merge/rebalance across sibling leaves is delegated (spec sec 4.5);
	// this leaf may now be under-full without the tree rebalancing.
	return nil
}

func (n *LeafNode) printNode(w io.Writer, firstPrefix, prefix string) {
	isRoot := ""
	if n.page.GetPageNum() == ROOT_PN {
		isRoot = " (root)"
	}
	fmt.Fprintf(w, "%v[%v] Leaf%v size: %v\n", firstPrefix, n.page.GetPageNum(), isRoot, n.count)
}
