package btree

import (
	"io"
	"path/filepath"

	"bptreekv/pkg/blob"
	"bptreekv/pkg/comparator"
	"bptreekv/pkg/entry"
	"bptreekv/pkg/extkey"
	"bptreekv/pkg/pager"
	"bptreekv/pkg/txn"
)

// DefaultMaxKeySize is used when OpenIndex is not given an explicit one.
const DefaultMaxKeySize int64 = 64

// BTreeIndex is an embedded key/value store backed by an on-disk B+-tree.
type BTreeIndex struct {
	pager      *pager.Pager
	rootPN     int64
	maxKeySize int64
	blobs      *blob.Store
	extkeys    *extkey.Cache
	comparator comparator.Comparator
	txns       *txn.Manager
}

// Option configures OpenIndex.
type Option func(*BTreeIndex)

// WithComparator overrides the default byte-lexicographic key order.
func WithComparator(cmp comparator.Comparator) Option {
	return func(t *BTreeIndex) { t.comparator = cmp }
}

// WithMaxKeySize overrides the in-node key size before a key overflows to
// the extended-key cache.
func WithMaxKeySize(n int64) Option {
	return func(t *BTreeIndex) { t.maxKeySize = n }
}

// OpenIndex opens (or creates, if the file is new/empty) a B+-tree index
// backed by filename. An empty filename opens an anonymous in-memory image.
func OpenIndex(filename string, opts ...Option) (*BTreeIndex, error) {
	p, err := pager.New(filename)
	if err != nil {
		return nil, newErr(ErrKindIOError, err.Error())
	}

	tree := &BTreeIndex{
		pager:      p,
		rootPN:     ROOT_PN,
		maxKeySize: DefaultMaxKeySize,
		comparator: comparator.Default,
	}
	for _, opt := range opts {
		opt(tree)
	}
	tree.blobs = blob.New(p)
	tree.extkeys = extkey.New()
	tree.txns = txn.NewManager(p)
	p.SetEvictHook(evictCursors)

	if p.GetNumPages() == 0 {
		rootPage, err := p.GetNewPage()
		if err != nil {
			return nil, newErr(ErrKindOutOfMemory, err.Error())
		}
		defer p.PutPage(rootPage)
		initLeafPage(rootPage)
	}
	return tree, nil
}

func (tree *BTreeIndex) compare(a, b []byte) (int, error) {
	c, err := tree.comparator(a, b)
	if err != nil {
		return 0, newErr(ErrKindCompareFailed, err.Error())
	}
	return c, nil
}

// GetName returns the base file name backing this index, or "" if
// anonymous.
func (tree *BTreeIndex) GetName() string {
	name := tree.pager.GetFileName()
	if name == "" {
		return ""
	}
	return filepath.Base(name)
}

// GetPager returns the index's pager.
func (tree *BTreeIndex) GetPager() *pager.Pager {
	return tree.pager
}

// SetTxnLogger wires an append-only transaction diagnostics logger (spec
// sec 4.16) so every begin/commit/abort of the local-txn wrapper is
// recorded. Never consulted to reconstruct tree state.
func (tree *BTreeIndex) SetTxnLogger(l txn.Logger) {
	tree.txns.SetLogger(l)
}

// Close flushes all changes and closes the backing file.
func (tree *BTreeIndex) Close() error {
	if err := tree.pager.Close(); err != nil {
		return newErr(ErrKindIOError, err.Error())
	}
	return nil
}

func (tree *BTreeIndex) root() (Node, error) {
	page, err := tree.pager.GetPage(tree.rootPN)
	if err != nil {
		return nil, newErr(ErrKindIOError, err.Error())
	}
	return pageToNode(page), nil
}

// withRootTxn scopes fn under a begin/commit/abort pair per spec sec 4.8's
// local-transaction wrapper. Every call begins a fresh transaction: there is
// no outer-transaction handle, so a caller-owned transaction is never
// detected or reused. Only the tree-level Find, Insert, Overwrite and Erase
// run under it; Cursor methods, Select and SelectRange do not. No page is
// registered with Txn.Touch, so Commit flushes nothing; dirty pages reach
// the backend on eviction or Close.
func (tree *BTreeIndex) withRootTxn(fn func() error) error {
	t := tree.txns.Begin()
	if err := fn(); err != nil {
		t.Abort()
		return err
	}
	return t.Commit()
}

// Find returns the record associated with key.
func (tree *BTreeIndex) Find(key []byte) ([]byte, error) {
	var rec []byte
	err := tree.withRootTxn(func() error {
		root, err := tree.root()
		if err != nil {
			return err
		}
		defer tree.pager.PutPage(root.getPage())
		value, found, err := root.find(tree, key)
		if err != nil {
			return err
		}
		if !found {
			return newErr(ErrKindKeyNotFound, "no entry with the given key was found")
		}
		rec = value
		return nil
	})
	return rec, err
}

// Insert inserts a new key/record pair, returning ErrKindDuplicateKey if
// key already exists.
func (tree *BTreeIndex) Insert(key []byte, record []byte) error {
	return tree.insert(key, record, false)
}

// Overwrite inserts a new key/record pair like Insert, except that an
// existing key is not an error: per the spec's resolved Open Question
// (sec 9), Insert-with-overwrite on an existing key is a no-op that returns
// success without mutating the record. Use a Cursor's Overwrite to actually
// mutate an existing record.
func (tree *BTreeIndex) Overwrite(key []byte, record []byte) error {
	return tree.insert(key, record, true)
}

func (tree *BTreeIndex) insert(key []byte, record []byte, overwrite bool) error {
	return tree.withRootTxn(func() error {
		rootPage, err := tree.pager.GetPage(tree.rootPN)
		if err != nil {
			return newErr(ErrKindIOError, err.Error())
		}
		defer tree.pager.PutPage(rootPage)
		rootNode := pageToNode(rootPage)

		result, err := rootNode.insert(tree, key, record, overwrite)
		if err != nil {
			return err
		}
		if !result.isSplit {
			return nil
		}
		return tree.splitRoot(rootNode, result)
	})
}

// splitRoot handles a split that propagated all the way to the root,
// preserving the invariant that the root always occupies page 0: it moves
// the old root's contents into a fresh page and reinitializes page 0 as a
// new internal node pointing at the old root's data (now elsewhere) and
// its new sibling.
func (tree *BTreeIndex) splitRoot(rootNode Node, result Split) error {
	if result.leftPN != ROOT_PN {
		return newErr(ErrKindIOError, "root split produced an unexpected left page")
	}

	var movedPN int64
	if leaf, ok := rootNode.(*LeafNode); ok {
		newNode, err := createLeafNode(tree)
		if err != nil {
			return err
		}
		defer tree.pager.PutPage(newNode.page)
		copyLeafInto(newNode, leaf)
		tree.rehomeAll(leaf.page, newNode.page)
		movedPN = newNode.page.GetPageNum()
		if newNode.rightSiblingPN != NoPN {
			rightSib, err := tree.getSibling(newNode.rightSiblingPN)
			if err == nil && rightSib != nil {
				rightSib.setLeftSibling(movedPN)
				tree.pager.PutPage(rightSib.page)
			}
		}
	} else {
		internal := rootNode.(*InternalNode)
		newNode, err := createInternalNode(tree)
		if err != nil {
			return err
		}
		defer tree.pager.PutPage(newNode.page)
		copyInternalInto(newNode, internal)
		movedPN = newNode.page.GetPageNum()
	}

	initInternalPage(rootNode.getPage())
	newRoot := pageToInternalNode(rootNode.getPage())
	newRoot.setLeftPointer(movedPN)
	if err := newRoot.setKeyAt(tree, 0, result.key); err != nil {
		return err
	}
	newRoot.setChildPNAt(tree, 0, result.rightPN)
	newRoot.setCount(1)
	return nil
}

func copyLeafInto(dst *LeafNode, src *LeafNode) {
	data := src.page.GetData()
	dst.page.Update(data, 0, int64(len(data)))
	dst.count = src.count
	dst.leftSiblingPN = src.leftSiblingPN
	dst.rightSiblingPN = src.rightSiblingPN
	dst.page.SetType(src.page.GetType())
}

func copyInternalInto(dst *InternalNode, src *InternalNode) {
	data := src.page.GetData()
	dst.page.Update(data, 0, int64(len(data)))
	dst.count = src.count
	dst.leftPointerPN = src.leftPointerPN
	dst.page.SetType(src.page.GetType())
}

// Erase removes the entry with the given key.
func (tree *BTreeIndex) Erase(key []byte) error {
	return tree.withRootTxn(func() error {
		root, err := tree.root()
		if err != nil {
			return err
		}
		defer tree.pager.PutPage(root.getPage())
		return root.erase(tree, key)
	})
}

// NewCursor returns a fresh, NIL cursor over the tree.
func (tree *BTreeIndex) NewCursor() *Cursor {
	return newCursor(tree)
}

func (tree *BTreeIndex) leftmostLeaf() (*pager.Page, error) {
	page, err := tree.pager.GetPage(tree.rootPN)
	if err != nil {
		return nil, err
	}
	for page.GetType() != pager.TypeLeaf {
		internal := pageToInternalNode(page)
		childPN := internal.getChildPNAt(tree, 0)
		child, err := tree.pager.GetPage(childPN)
		if err != nil {
			tree.pager.PutPage(page)
			return nil, err
		}
		tree.pager.PutPage(page)
		page = child
	}
	return page, nil
}

func (tree *BTreeIndex) rightmostLeaf() (*pager.Page, error) {
	page, err := tree.pager.GetPage(tree.rootPN)
	if err != nil {
		return nil, err
	}
	for page.GetType() != pager.TypeLeaf {
		internal := pageToInternalNode(page)
		childPN := internal.getChildPNAt(tree, internal.count)
		child, err := tree.pager.GetPage(childPN)
		if err != nil {
			tree.pager.PutPage(page)
			return nil, err
		}
		tree.pager.PutPage(page)
		page = child
	}
	return page, nil
}

// getSibling returns the leaf at pn, or nil if pn is NoPN.
func (tree *BTreeIndex) getSibling(pn int64) (*LeafNode, error) {
	if pn == NoPN {
		return nil, nil
	}
	page, err := tree.pager.GetPage(pn)
	if err != nil {
		return nil, err
	}
	return pageToLeafNode(page), nil
}

// locateSlot descends to the leaf that would hold key and returns it
// (pinned - caller must PutPage), the slot index, and whether key is
// actually present there.
func (tree *BTreeIndex) locateSlot(key []byte) (*pager.Page, int64, bool, error) {
	page, err := tree.pager.GetPage(tree.rootPN)
	if err != nil {
		return nil, 0, false, newErr(ErrKindIOError, err.Error())
	}
	for page.GetType() != pager.TypeLeaf {
		internal := pageToInternalNode(page)
		idx, err := internal.searchSlot(tree, key)
		if err != nil {
			tree.pager.PutPage(page)
			return nil, 0, false, err
		}
		childPN := internal.getChildPNAt(tree, idx)
		child, err := tree.pager.GetPage(childPN)
		if err != nil {
			tree.pager.PutPage(page)
			return nil, 0, false, newErr(ErrKindIOError, err.Error())
		}
		tree.pager.PutPage(page)
		page = child
	}
	leaf := pageToLeafNode(page)
	idx, err := leaf.searchSlot(tree, key)
	if err != nil {
		tree.pager.PutPage(page)
		return nil, 0, false, err
	}
	if idx >= leaf.count {
		return page, idx, false, nil
	}
	k, err := leaf.getKeyAt(tree, idx)
	if err != nil {
		tree.pager.PutPage(page)
		return nil, 0, false, err
	}
	c, err := tree.compare(k, key)
	if err != nil {
		tree.pager.PutPage(page)
		return nil, 0, false, err
	}
	return page, idx, c == 0, nil
}

// Select returns every entry in the tree ordered by key.
func (tree *BTreeIndex) Select() ([]entry.Entry, error) {
	entries := make([]entry.Entry, 0)
	c := tree.NewCursor()
	if err := c.First(); err != nil {
		if kind, ok := KindOf(err); ok && kind == ErrKindKeyNotFound {
			return entries, nil
		}
		return nil, err
	}
	defer c.Close()
	for {
		e, err := c.GetEntry()
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
		if c.Next() {
			break
		}
	}
	return entries, nil
}

// SelectRange returns entries with keys in [startKey, endKey).
func (tree *BTreeIndex) SelectRange(startKey, endKey []byte) ([]entry.Entry, error) {
	if c, err := tree.compare(startKey, endKey); err != nil {
		return nil, err
	} else if c >= 0 {
		return nil, newErr(ErrKindInvParameter, "startKey must be less than endKey")
	}
	ret := make([]entry.Entry, 0)
	cur := tree.NewCursor()
	page, idx, _, err := tree.locateSlot(startKey)
	if err != nil {
		return nil, err
	}
	leaf := pageToLeafNode(page)
	pastEnd := idx >= leaf.count
	cur.couple(page, idx)
	tree.pager.PutPage(page)
	if pastEnd && cur.Next() {
		cur.Close()
		return ret, nil
	}

	for {
		e, err := cur.GetEntry()
		if err != nil {
			break
		}
		if c, err := tree.compare(e.Key, endKey); err != nil {
			return nil, err
		} else if c >= 0 {
			break
		}
		ret = append(ret, e)
		if cur.Next() {
			break
		}
	}
	cur.Close()
	return ret, nil
}

// Print pretty-prints every node in the tree starting from the root.
func (tree *BTreeIndex) Print(w io.Writer) {
	root, err := tree.root()
	if err != nil {
		return
	}
	defer tree.pager.PutPage(root.getPage())
	printSubtree(tree, w, root, "", "")
}

// PrintPN pretty-prints the single node at pagenum.
func (tree *BTreeIndex) PrintPN(pagenum int64, w io.Writer) {
	page, err := tree.pager.GetPage(pagenum)
	if err != nil {
		return
	}
	defer tree.pager.PutPage(page)
	pageToNode(page).printNode(w, "", "")
}

func printSubtree(tree *BTreeIndex, w io.Writer, node Node, firstPrefix, prefix string) {
	node.printNode(w, firstPrefix, prefix)
	internal, ok := node.(*InternalNode)
	if !ok {
		return
	}
	nextFirst := prefix + " |--> "
	nextPrefix := prefix + " |    "
	for i := int64(0); i <= internal.count; i++ {
		child, err := internal.getChildAt(tree, i)
		if err != nil {
			return
		}
		printSubtree(tree, w, child, nextFirst, nextPrefix)
		tree.pager.PutPage(child.getPage())
	}
}
