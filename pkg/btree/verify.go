package btree

import (
	"errors"
)

// IsBTree verifies the B+-tree invariant (spec sec 3, property 1): every
// key in a child subtree is >= the separator key before it and strictly <
// the separator key after it, and every leaf's keys are strictly
// increasing. Returns the subtree's lowest and highest key.
func IsBTree(tree *BTreeIndex) (lo []byte, hi []byte, ok bool, err error) {
	root, err := tree.root()
	if err != nil {
		return nil, nil, false, err
	}
	defer tree.pager.PutPage(root.getPage())
	return isBTree(tree, root)
}

func isBTree(tree *BTreeIndex, n Node) (lo []byte, hi []byte, ok bool, err error) {
	switch node := n.(type) {
	case *InternalNode:
		var lowest, highest []byte
		for i := int64(0); i <= node.count; i++ {
			child, err := node.getChildAt(tree, i)
			if err != nil {
				return nil, nil, false, err
			}
			cl, ch, cok, err := isBTree(tree, child)
			tree.pager.PutPage(child.getPage())
			if err != nil {
				return nil, nil, false, err
			}
			if !cok {
				return nil, nil, false, nil
			}
			if i == 0 {
				lowest = cl
			}
			if i == node.count {
				highest = ch
			}
			if i > 0 {
				k, err := node.getKeyAt(tree, i-1)
				if err != nil {
					return nil, nil, false, err
				}
				if c, _ := tree.compare(k, cl); c > 0 {
					return nil, nil, false, nil
				}
			}
			if i < node.count {
				k, err := node.getKeyAt(tree, i)
				if err != nil {
					return nil, nil, false, err
				}
				if c, _ := tree.compare(k, ch); c <= 0 {
					return nil, nil, false, nil
				}
			}
		}
		return lowest, highest, true, nil
	case *LeafNode:
		for i := int64(0); i < node.count-1; i++ {
			a, err := node.getKeyAt(tree, i)
			if err != nil {
				return nil, nil, false, err
			}
			b, err := node.getKeyAt(tree, i+1)
			if err != nil {
				return nil, nil, false, err
			}
			if c, _ := tree.compare(a, b); c >= 0 {
				return nil, nil, false, nil
			}
		}
		if node.count == 0 {
			return nil, nil, true, nil
		}
		first, err := node.getKeyAt(tree, 0)
		if err != nil {
			return nil, nil, false, err
		}
		last, err := node.getKeyAt(tree, node.count-1)
		if err != nil {
			return nil, nil, false, err
		}
		return first, last, true, nil
	default:
		return nil, nil, false, errors.New("unreachable node type")
	}
}
