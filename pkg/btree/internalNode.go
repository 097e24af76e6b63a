package btree

import (
	"encoding/binary"
	"fmt"
	"io"

	"bptreekv/pkg/pager"
)

// InternalNode stores search keys and child page-number pointers used to
// route traversal down to the leaves.
type InternalNode struct {
	nodeHeader
}

func pageToInternalNode(page *pager.Page) *InternalNode {
	return &InternalNode{readNodeHeader(page)}
}

func createInternalNode(tree *BTreeIndex) (*InternalNode, error) {
	page, err := tree.pager.GetNewPage()
	if err != nil {
		return nil, newErr(ErrKindOutOfMemory, err.Error())
	}
	initInternalPage(page)
	page.SetType(pager.TypeIndex)
	return pageToInternalNode(page), nil
}

func (n *InternalNode) stride(tree *BTreeIndex) int64 {
	return internalStride(tree.maxKeySize)
}

func (n *InternalNode) slotOffset(tree *BTreeIndex, i int64) int64 {
	return nodeHeaderSize + i*n.stride(tree)
}

func (n *InternalNode) keyRegion(tree *BTreeIndex, i int64) []byte {
	off := n.slotOffset(tree, i)
	return n.page.GetData()[off : off+slotKeyRegionSize(tree.maxKeySize)]
}

func (n *InternalNode) getKeyAt(tree *BTreeIndex, i int64) ([]byte, error) {
	return resolveKey(n.keyRegion(tree, i), tree.maxKeySize, tree.blobs, tree.extkeys)
}

func (n *InternalNode) childPNAt(tree *BTreeIndex, slotIdx int64) int64 {
	off := n.slotOffset(tree, slotIdx) + slotKeyRegionSize(tree.maxKeySize)
	return int64(binary.LittleEndian.Uint64(n.page.GetData()[off : off+8]))
}

func (n *InternalNode) setChildPNAt(tree *BTreeIndex, slotIdx int64, pn int64) {
	off := n.slotOffset(tree, slotIdx) + slotKeyRegionSize(tree.maxKeySize)
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(pn))
	n.page.Update(buf[:], off, 8)
}

// getChildPNAt returns the page number of the idx'th child (idx in
// [0, count]): idx 0 is the left-pointer, idx i>0 is slot i-1's child.
func (n *InternalNode) getChildPNAt(tree *BTreeIndex, idx int64) int64 {
	if idx == 0 {
		return n.leftPointerPN
	}
	return n.childPNAt(tree, idx-1)
}

func (n *InternalNode) getChildAt(tree *BTreeIndex, idx int64) (Node, error) {
	pn := n.getChildPNAt(tree, idx)
	page, err := tree.pager.GetPage(pn)
	if err != nil {
		return nil, newErr(ErrKindIOError, err.Error())
	}
	return pageToNode(page), nil
}

func (n *InternalNode) setKeyAt(tree *BTreeIndex, slotIdx int64, key []byte) error {
	return writeKey(n.keyRegion(tree, slotIdx), key, tree.maxKeySize, tree.blobs, tree.extkeys)
}

func (n *InternalNode) copySlot(tree *BTreeIndex, dst int64, src *InternalNode, srcIdx int64) {
	srcOff := src.slotOffset(tree, srcIdx)
	dstOff := n.slotOffset(tree, dst)
	stride := n.stride(tree)
	n.page.Update(src.page.GetData()[srcOff:srcOff+stride], dstOff, stride)
}

// searchSlot returns the child index to descend into for key: the number
// of keys less than or equal to key.
func (n *InternalNode) searchSlot(tree *BTreeIndex, key []byte) (int64, error) {
	return binarySearch(n.count, func(i int64) (int, error) {
		k, err := n.getKeyAt(tree, i)
		if err != nil {
			return 0, err
		}
		c, err := tree.compare(k, key)
		if err != nil {
			return 0, err
		}
		if c > 0 {
			return 1, nil
		}
		return -1, nil
	})
}

func (n *InternalNode) find(tree *BTreeIndex, key []byte) ([]byte, bool, error) {
	idx, err := n.searchSlot(tree, key)
	if err != nil {
		return nil, false, err
	}
	child, err := n.getChildAt(tree, idx)
	if err != nil {
		return nil, false, err
	}
	defer tree.pager.PutPage(child.getPage())
	return child.find(tree, key)
}

func (n *InternalNode) insert(tree *BTreeIndex, key []byte, record []byte, overwrite bool) (Split, error) {
	idx, err := n.searchSlot(tree, key)
	if err != nil {
		return Split{}, err
	}
	child, err := n.getChildAt(tree, idx)
	if err != nil {
		return Split{}, err
	}
	defer tree.pager.PutPage(child.getPage())

	result, err := child.insert(tree, key, record, overwrite)
	if err != nil {
		return Split{}, err
	}
	if !result.isSplit {
		return Split{}, nil
	}
	return n.insertPivot(tree, idx, result.key, result.rightPN)
}

// insertPivot inserts the pivot key/right-child-PN produced by a child
// split at slot position idx, shifting later slots right. The pivot is
// written without comparing it to any existing key, so there is no
// duplicate check and no overwrite handling: an equal key already in the
// node would be kept alongside the new slot.
func (n *InternalNode) insertPivot(tree *BTreeIndex, idx int64, key []byte, rightPN int64) (Split, error) {
	for i := n.count - 1; i >= idx; i-- {
		n.copySlot(tree, i+1, n, i)
	}
	n.setCount(n.count + 1)
	if err := n.setKeyAt(tree, idx, key); err != nil {
		return Split{}, err
	}
	n.setChildPNAt(tree, idx, rightPN)

	if n.count >= maxInternalEntries(tree.maxKeySize) {
		return n.split(tree)
	}
	return Split{}, nil
}

func (n *InternalNode) split(tree *BTreeIndex) (Split, error) {
	newNode, err := createInternalNode(tree)
	if err != nil {
		return Split{}, err
	}
	defer tree.pager.PutPage(newNode.page)

	midpoint := n.count / 2
	pivotKey, err := n.getKeyAt(tree, midpoint)
	if err != nil {
		return Split{}, err
	}
	newNode.setLeftPointer(n.childPNAt(tree, midpoint))

	for i := midpoint + 1; i < n.count; i++ {
		newNode.copySlot(tree, newNode.count, n, i)
		newNode.setCount(newNode.count + 1)
	}
	n.setCount(midpoint)

	return Split{
		isSplit: true,
		key:     pivotKey,
		leftPN:  n.page.GetPageNum(),
		rightPN: newNode.page.GetPageNum(),
	}, nil
}

func (n *InternalNode) erase(tree *BTreeIndex, key []byte) error {
	idx, err := n.searchSlot(tree, key)
	if err != nil {
		return err
	}
	child, err := n.getChildAt(tree, idx)
	if err != nil {
		return err
	}
	defer tree.pager.PutPage(child.getPage())
	return child.erase(tree, key)
}

func (n *InternalNode) printNode(w io.Writer, firstPrefix, prefix string) {
	isRoot := ""
	if n.page.GetPageNum() == ROOT_PN {
		isRoot = " (root)"
	}
	fmt.Fprintf(w, "%v[%v] Internal%v size: %v\n", firstPrefix, n.page.GetPageNum(), isRoot, n.count+1)
}
