// internal/art/node.go
package art

import (
	"babydb/internal/applog"
	"babydb/internal/version"
)

// kind identifies which of the four inner-node fan-out variants a node is
// (spec.md §4.2): Node4, Node16, Node48, Node256.
type kind uint8

const (
	kind4 kind = iota
	kind16
	kind48
	kind256
)

// maxPrefixLen bounds the inline path-compression prefix a node stores.
// spec.md §4.2 describes recovering longer prefixes via minimum() descent;
// since every key in this tree is a fixed 8-byte big-endian uint64, the
// logical prefix at any node can never exceed 7 bytes (8 minus at least one
// branch byte), so the overflow path in minimum() below is never exercised
// in practice — it is implemented anyway for fidelity to the design note and
// in case a future key width change requires it.
const maxPrefixLen = 9

// keyBytes is the fixed-width encoded form of a Key.
type keyBytes [8]byte

// child is the tagged pointer at a node's slot: exactly one of inner or leaf
// is non-nil, or both are nil (empty slot). Modeled as a two-variant struct
// rather than stealing the low bit of a pointer word (spec.md Design Notes:
// "rebuild in a language with sum types as a two-variant enum... avoid the
// bit-stealing trick").
type child struct {
	inner *node
	leaf  *version.Chain
}

func (c child) isEmpty() bool { return c.inner == nil && c.leaf == nil }

// node is an ART inner node. A single struct serves all four fan-out
// variants (selected by kind) rather than four separate Go types, to keep
// growth/shrink transitions (which reuse most fields) straightforward; the
// spec's four distinct variants are represented by `kind` plus which of the
// variant-specific fields are populated.
type node struct {
	kind        kind
	prefix      [maxPrefixLen]byte
	prefixLen   int
	numChildren int

	// Node4 / Node16: parallel sorted-by-key-byte arrays, length capacity
	// 4 or 16 respectively (only the first numChildren entries are valid).
	keys     []byte
	children []child

	// Node48: a 256-entry index mapping key byte -> 1-based slot in
	// children48 (0 = unused), plus a 48-slot dense child array.
	index48    [256]uint8
	children48 []child

	// Node256: direct 256-entry child array, indexed by key byte.
	direct []child
}

func newNode4() *node {
	return &node{kind: kind4, keys: make([]byte, 0, 4), children: make([]child, 0, 4)}
}

func newNode16() *node {
	return &node{kind: kind16, keys: make([]byte, 0, 16), children: make([]child, 0, 16)}
}

func newNode48() *node {
	return &node{kind: kind48, children48: make([]child, 0, 48)}
}

func newNode256() *node {
	return &node{kind: kind256, direct: make([]child, 256)}
}

func (n *node) setPrefix(b []byte) {
	n.prefixLen = len(b)
	copy(n.prefix[:], b)
}

// isFull reports whether addChild needs a grow first.
func (n *node) isFull() bool {
	switch n.kind {
	case kind4:
		return n.numChildren >= 4
	case kind16:
		return n.numChildren >= 16
	case kind48:
		return n.numChildren >= 48
	default: // kind256 never needs to grow further
		return false
	}
}

func (n *node) findChild(b byte) *child {
	switch n.kind {
	case kind4, kind16:
		for i := 0; i < n.numChildren; i++ {
			if n.keys[i] == b {
				return &n.children[i]
			}
		}
		return nil
	case kind48:
		idx := n.index48[b]
		if idx == 0 {
			return nil
		}
		return &n.children48[idx-1]
	default: // kind256
		if n.direct[b].isEmpty() {
			return nil
		}
		return &n.direct[b]
	}
}

// addChild inserts a new child for key byte b. Caller must ensure !isFull()
// (growing the node first via grow if necessary).
func (n *node) addChild(b byte, c child) {
	switch n.kind {
	case kind4, kind16:
		i := n.numChildren
		n.keys = append(n.keys, 0)
		n.children = append(n.children, child{})
		for i > 0 && n.keys[i-1] > b {
			n.keys[i] = n.keys[i-1]
			n.children[i] = n.children[i-1]
			i--
		}
		n.keys[i] = b
		n.children[i] = c
		n.numChildren++
	case kind48:
		slot := len(n.children48)
		n.children48 = append(n.children48, c)
		n.index48[b] = uint8(slot + 1)
		n.numChildren++
	default: // kind256
		n.direct[b] = c
		n.numChildren++
	}
}

// removeChild deletes the child at key byte b, if present.
func (n *node) removeChild(b byte) {
	switch n.kind {
	case kind4, kind16:
		for i := 0; i < n.numChildren; i++ {
			if n.keys[i] == b {
				copy(n.keys[i:], n.keys[i+1:n.numChildren])
				copy(n.children[i:], n.children[i+1:n.numChildren])
				n.numChildren--
				n.keys = n.keys[:n.numChildren]
				n.children = n.children[:n.numChildren]
				return
			}
		}
	case kind48:
		idx := n.index48[b]
		if idx == 0 {
			return
		}
		slot := int(idx) - 1
		last := len(n.children48) - 1
		if slot != last {
			n.children48[slot] = n.children48[last]
			for bb := 0; bb < 256; bb++ {
				if int(n.index48[bb]) == last+1 {
					n.index48[bb] = uint8(slot + 1)
					break
				}
			}
		}
		n.children48 = n.children48[:last]
		n.index48[b] = 0
		n.numChildren--
	default: // kind256
		n.direct[b] = child{}
		n.numChildren--
	}
}

// forEachChild visits children in ascending key-byte order. fn returns false
// to stop iteration early (used by range-scan pruning once keys exceed the
// upper bound).
func (n *node) forEachChild(fn func(b byte, c child) bool) {
	switch n.kind {
	case kind4, kind16:
		for i := 0; i < n.numChildren; i++ {
			if !fn(n.keys[i], n.children[i]) {
				return
			}
		}
	case kind48:
		for b := 0; b < 256; b++ {
			idx := n.index48[b]
			if idx == 0 {
				continue
			}
			if !fn(byte(b), n.children48[idx-1]) {
				return
			}
		}
	default: // kind256
		for b := 0; b < 256; b++ {
			if n.direct[b].isEmpty() {
				continue
			}
			if !fn(byte(b), n.direct[b]) {
				return
			}
		}
	}
}

// minChild returns the leftmost (smallest key byte) child, used to recover a
// leaf for prefix-overflow comparison (minimum() in the design notes).
func (n *node) minChild() *child {
	var result *child
	n.forEachChild(func(_ byte, c child) bool {
		cc := c
		result = &cc
		return false
	})
	return result
}

// minimum descends to the leftmost leaf reachable from c, recovering the
// full key of some leaf under this subtree. Used when a node's true prefix
// length exceeds maxPrefixLen (never the case for 8-byte keys, kept for
// fidelity to the design note).
func minimum(c *child) *version.Chain {
	for {
		if c == nil || c.isEmpty() {
			return nil
		}
		if c.leaf != nil {
			return c.leaf
		}
		c = c.inner.minChild()
	}
}

func growNode4(n *node) *node {
	g := newNode16()
	g.setPrefix(n.prefix[:n.prefixLen])
	for i := 0; i < n.numChildren; i++ {
		g.addChild(n.keys[i], n.children[i])
	}
	return g
}

func growNode16(n *node) *node {
	g := newNode48()
	g.setPrefix(n.prefix[:n.prefixLen])
	for i := 0; i < n.numChildren; i++ {
		g.addChild(n.keys[i], n.children[i])
	}
	return g
}

func growNode48(n *node) *node {
	g := newNode256()
	g.setPrefix(n.prefix[:n.prefixLen])
	n.forEachChild(func(b byte, c child) bool {
		g.addChild(b, c)
		return true
	})
	return g
}

// grow returns a node one fan-out tier larger, preserving prefix and children.
func grow(n *node) *node {
	from := n.kind
	var g *node
	switch n.kind {
	case kind4:
		g = growNode4(n)
	case kind16:
		g = growNode16(n)
	case kind48:
		g = growNode48(n)
	default:
		return n // kind256 cannot grow further
	}
	applog.Debug("art: node grown", "from", from, "to", g.kind, "children", g.numChildren)
	return g
}

// shrinkThreshold reports whether n has dropped low enough to shrink, per
// spec.md §4.2 ("Node256->48 at count=37; Node48->16 at count=12; Node16->4
// at count=3").
func shrinkThreshold(n *node) bool {
	switch n.kind {
	case kind256:
		return n.numChildren <= 37
	case kind48:
		return n.numChildren <= 12
	case kind16:
		return n.numChildren <= 3
	default:
		return false
	}
}

func shrinkNode256(n *node) *node {
	g := newNode48()
	g.setPrefix(n.prefix[:n.prefixLen])
	n.forEachChild(func(b byte, c child) bool {
		g.addChild(b, c)
		return true
	})
	return g
}

func shrinkNode48(n *node) *node {
	g := newNode16()
	g.setPrefix(n.prefix[:n.prefixLen])
	n.forEachChild(func(b byte, c child) bool {
		g.addChild(b, c)
		return true
	})
	return g
}

func shrinkNode16(n *node) *node {
	g := newNode4()
	g.setPrefix(n.prefix[:n.prefixLen])
	n.forEachChild(func(b byte, c child) bool {
		g.addChild(b, c)
		return true
	})
	return g
}

// shrink returns a node one fan-out tier smaller, preserving prefix and children.
func shrink(n *node) *node {
	from := n.kind
	var g *node
	switch n.kind {
	case kind256:
		g = shrinkNode256(n)
	case kind48:
		g = shrinkNode48(n)
	case kind16:
		g = shrinkNode16(n)
	default:
		return n
	}
	applog.Debug("art: node shrunk", "from", from, "to", g.kind, "children", g.numChildren)
	return g
}
