package btree

import (
	"encoding/binary"
	"io"

	"bptreekv/pkg/blob"
	"bptreekv/pkg/extkey"
	"bptreekv/pkg/pager"
)

// Split carries the information needed to propagate a split upward after
// an insert (spec sec 4.3/4.4).
type Split struct {
	isSplit bool
	key     []byte
	leftPN  int64
	rightPN int64
}

// Node is the common interface leaf and internal nodes implement.
type Node interface {
	insert(tree *BTreeIndex, key []byte, record []byte, overwrite bool) (Split, error)
	erase(tree *BTreeIndex, key []byte) error
	find(tree *BTreeIndex, key []byte) ([]byte, bool, error)
	searchSlot(tree *BTreeIndex, key []byte) (int64, error)
	getPage() *pager.Page
	numEntries() int64
	printNode(w io.Writer, firstPrefix, prefix string)
}

// nodeHeader is embedded by both LeafNode and InternalNode and carries the
// fields common to both (spec sec 3): entry count, left/right sibling page
// numbers, and (for internal nodes) the left-pointer child page number.
type nodeHeader struct {
	page          *pager.Page
	count         int64
	leftSiblingPN int64
	rightSiblingPN int64
	leftPointerPN int64
}

func readNodeHeader(page *pager.Page) nodeHeader {
	data := page.GetData()
	count := int64(binary.LittleEndian.Uint32(data[countOffset : countOffset+countSize]))
	leftSib := int64(binary.LittleEndian.Uint64(data[leftSibOffset : leftSibOffset+leftSibSize]))
	rightSib := int64(binary.LittleEndian.Uint64(data[rightSibOffset : rightSibOffset+rightSibSize]))
	leftPtr := int64(binary.LittleEndian.Uint64(data[leftPtrOffset : leftPtrOffset+leftPtrSize]))
	return nodeHeader{
		page:           page,
		count:          count,
		leftSiblingPN:  leftSib,
		rightSiblingPN: rightSib,
		leftPointerPN:  leftPtr,
	}
}

func (h *nodeHeader) getPage() *pager.Page { return h.page }
func (h *nodeHeader) numEntries() int64    { return h.count }

func (h *nodeHeader) setCount(n int64) {
	h.count = n
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(n))
	h.page.Update(buf[:], countOffset, countSize)
}

func (h *nodeHeader) setLeftSibling(pn int64) {
	h.leftSiblingPN = pn
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(pn))
	h.page.Update(buf[:], leftSibOffset, leftSibSize)
}

func (h *nodeHeader) setRightSibling(pn int64) {
	h.rightSiblingPN = pn
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(pn))
	h.page.Update(buf[:], rightSibOffset, rightSibSize)
}

func (h *nodeHeader) setLeftPointer(pn int64) {
	h.leftPointerPN = pn
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(pn))
	h.page.Update(buf[:], leftPtrOffset, leftPtrSize)
}

// initLeafPage resets a page's data and tags it as a fresh, empty leaf.
func initLeafPage(page *pager.Page) {
	data := page.GetData()
	for i := range data {
		data[i] = 0
	}
	page.SetType(pager.TypeLeaf)
	h := nodeHeader{page: page}
	h.setLeftSibling(NoPN)
	h.setRightSibling(NoPN)
	h.setLeftPointer(NoPN)
}

// initInternalPage resets a page's data and tags it as a fresh, empty
// internal node.
func initInternalPage(page *pager.Page) {
	data := page.GetData()
	for i := range data {
		data[i] = 0
	}
	page.SetType(pager.TypeIndex)
	h := nodeHeader{page: page}
	h.setLeftSibling(NoPN)
	h.setRightSibling(NoPN)
	h.setLeftPointer(NoPN)
}

// pageToNode dispatches on the page's PageType to build the right Node.
// The root (spec's invariant: always page 0) is tagged TypeLeaf or
// TypeIndex exactly like any other page; "is this the root" is purely
// positional (pagenum == ROOT_PN), not a distinct on-disk type.
func pageToNode(page *pager.Page) Node {
	if page.GetType() == pager.TypeLeaf {
		return pageToLeafNode(page)
	}
	return pageToInternalNode(page)
}

// encodeRecord returns the flag byte and 8-byte pointer word for an inline
// record, or indicates the record must be stored in the blob store instead.
func encodeRecord(data []byte) (flag byte, word [8]byte, needsBlob bool) {
	switch {
	case len(data) == 0:
		return recFlagEmpty, word, false
	case int64(len(data)) < pointerWidth:
		copy(word[:], data)
		word[pointerWidth-1] = byte(len(data))
		return recFlagTiny, word, false
	case int64(len(data)) == pointerWidth:
		copy(word[:], data)
		return recFlagSmall, word, false
	default:
		return recFlagBlob, word, true
	}
}

// decodeInlineRecord reverses encodeRecord for the non-blob flags.
func decodeInlineRecord(flag byte, word [8]byte) []byte {
	switch flag {
	case recFlagEmpty:
		return []byte{}
	case recFlagTiny:
		n := int(word[pointerWidth-1])
		out := make([]byte, n)
		copy(out, word[:n])
		return out
	case recFlagSmall:
		out := make([]byte, pointerWidth)
		copy(out, word[:])
		return out
	default:
		return nil
	}
}

// resolveKey reads the key region of a slot, following the extended-key
// blob chain (and its cache) when the key overflowed maxKeySize.
func resolveKey(region []byte, maxKeySize int64, blobs *blob.Store, cache *extkey.Cache) ([]byte, error) {
	keylen := binary.LittleEndian.Uint16(region[0:2])
	if keylen != extKeyMarker {
		out := make([]byte, keylen)
		copy(out, region[2:2+int(keylen)])
		return out, nil
	}
	id := extkey.BlobID(binary.LittleEndian.Uint64(region[2 : 2+8]))
	if cache != nil {
		if key, ok := cache.Get(id); ok {
			return key, nil
		}
	}
	key, err := blobs.Read(blob.BlobID(id))
	if err != nil {
		return nil, newErr(ErrKindIOError, "failed to resolve extended key: "+err.Error())
	}
	if cache != nil {
		cache.Put(id, key)
	}
	return key, nil
}

func decodeBlobID(word [8]byte) blob.BlobID {
	return blob.BlobID(binary.LittleEndian.Uint64(word[:]))
}

func encodeBlobID(word []byte, id blob.BlobID) {
	binary.LittleEndian.PutUint64(word, uint64(id))
}

func uint16FromRegion(region []byte) uint16 {
	return binary.LittleEndian.Uint16(region[0:2])
}

func blobIDFromRegion(region []byte) blob.BlobID {
	return blob.BlobID(binary.LittleEndian.Uint64(region[2 : 2+8]))
}

// binarySearch returns the smallest i in [0,n) for which cmp(i) >= 0, or n
// if no such i exists. cmp(i) compares the element at i against the search
// target the same way bytes.Compare would (elem - target).
func binarySearch(n int64, cmp func(i int64) (int, error)) (int64, error) {
	lo, hi := int64(0), n
	var outerErr error
	for lo < hi {
		mid := lo + (hi-lo)/2
		c, err := cmp(mid)
		if err != nil {
			outerErr = newErr(ErrKindCompareFailed, err.Error())
			break
		}
		if c >= 0 {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	if outerErr != nil {
		return 0, outerErr
	}
	return lo, nil
}

// writeKey encodes key into a slot's key region, using the blob store and
// extended-key cache when it exceeds maxKeySize.
func writeKey(region []byte, key []byte, maxKeySize int64, blobs *blob.Store, cache *extkey.Cache) error {
	if int64(len(key)) <= maxKeySize {
		binary.LittleEndian.PutUint16(region[0:2], uint16(len(key)))
		copy(region[2:], key)
		for i := 2 + len(key); i < len(region); i++ {
			region[i] = 0
		}
		return nil
	}
	id, err := blobs.Allocate(key)
	if err != nil {
		return newErr(ErrKindOutOfMemory, "failed to store extended key: "+err.Error())
	}
	binary.LittleEndian.PutUint16(region[0:2], extKeyMarker)
	binary.LittleEndian.PutUint64(region[2:2+8], uint64(id))
	if cache != nil {
		cache.Put(extkey.BlobID(id), key)
	}
	return nil
}
