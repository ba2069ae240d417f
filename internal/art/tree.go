// internal/art/tree.go
package art

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"babydb/internal/version"
)

// ErrDuplicateKey is raised by Insert when requireNew is set and a version
// already visible to the caller's snapshot exists on the target key (spec.md
// §4.4 Insert operator: "an attempt to insert a key already 'live' at the
// caller's snapshot raises WriteConflict"). It wraps ErrWriteConflict so
// callers that only check for the general conflict class via errors.Is still
// see it as one.
var ErrDuplicateKey = fmt.Errorf("babydb: duplicate key: %w", version.ErrWriteConflict)

// ErrNotFound names the "key has no leaf at all" condition. Lookup reports a
// missing key through its boolean result; no function in this package
// returns ErrNotFound.
var ErrNotFound = errors.New("babydb: key not found")

// TxnView exposes the caller's transaction snapshot to index operations
// without internal/art needing to import internal/txn (which in turn depends
// on internal/art for storage) — avoids an import cycle.
type TxnView interface {
	ReadTS() uint64
	TxnID() uint64
}

// WriteRecorder is a TxnView that also records chains touched by a write, so
// the transaction manager can build the write set for commit/abort (spec.md
// §4.5 Transaction object).
type WriteRecorder interface {
	TxnView
	RecordWrite(*version.Chain)
}

// ReadRecorder is a TxnView that records chains touched by a read, needed for
// serializable-isolation conflict checking (spec.md §4.4/§4.5).
type ReadRecorder interface {
	TxnView
	RecordRead(*version.Chain)
}

// RangeInfo describes a scan's lower/upper bounds, both in key space, with
// independent inclusivity flags (spec.md §4.2 ScanRange).
type RangeInfo struct {
	Start        uint64
	End          uint64
	ContainStart bool
	ContainEnd   bool
}

// KV is one result row produced by ScanRange.
type KV struct {
	Key   uint64
	RowID version.RowID
}

func encodeKey(k uint64) keyBytes {
	var kb keyBytes
	binary.BigEndian.PutUint64(kb[:], k)
	return kb
}

func decodeKey(kb keyBytes) uint64 {
	return binary.BigEndian.Uint64(kb[:])
}

func commonPrefixLen(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}

// Tree is the ART primary index: a single ordered structure over 8-byte
// big-endian keys, with each leaf a *version.Chain carrying that key's MVCC
// history (spec.md §4.2). A single RWMutex guards structural changes (leaf
// creation, node growth/shrink, path-compression splits); a leaf's own chain
// has its own latch (internal/version.Chain) so reads/writes of an existing
// key's version history do not contend on tree structure at all — matching
// the "tree lock is for structural changes only" split in spec.md §7.
type Tree struct {
	mu   sync.RWMutex
	root child
	size int64
}

// NewTree returns an empty index.
func NewTree() *Tree {
	return &Tree{}
}

// lookupLeaf returns the chain for key, or nil if no leaf exists for it.
// Caller must hold at least a read lock on t.mu.
func (t *Tree) lookupLeaf(kb keyBytes) *version.Chain {
	return lookupRecursive(&t.root, kb, 0)
}

func lookupRecursive(c *child, key keyBytes, depth int) *version.Chain {
	if c == nil || c.isEmpty() {
		return nil
	}
	if c.leaf != nil {
		if encodeKey(c.leaf.Key()) == key {
			return c.leaf
		}
		return nil
	}
	n := c.inner
	if n.prefixLen > 0 {
		for i := 0; i < n.prefixLen; i++ {
			if key[depth+i] != n.prefix[i] {
				return nil
			}
		}
		depth += n.prefixLen
	}
	if depth >= len(key) {
		return nil
	}
	next := n.findChild(key[depth])
	if next == nil {
		return nil
	}
	return lookupRecursive(next, key, depth+1)
}

// Lookup returns the row-id visible to ctx's snapshot for key, recording the
// read for serializable-isolation tracking.
func (t *Tree) Lookup(key uint64, ctx ReadRecorder) (version.RowID, bool) {
	kb := encodeKey(key)
	t.mu.RLock()
	chain := t.lookupLeaf(kb)
	t.mu.RUnlock()
	if chain == nil {
		return 0, false
	}
	ctx.RecordRead(chain)
	return chain.Search(ctx.ReadTS(), ctx.TxnID())
}

// findOrCreateLeaf returns the chain for key, creating (and structurally
// inserting) an empty one if none exists yet. Uses an optimistic read-then-
// upgrade pattern: most lookups (existing key) only need the shared lock.
func (t *Tree) findOrCreateLeaf(kb keyBytes) (chain *version.Chain, created bool) {
	t.mu.RLock()
	chain = t.lookupLeaf(kb)
	t.mu.RUnlock()
	if chain != nil {
		return chain, false
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	// Re-check: another writer may have created the leaf while we waited
	// for the exclusive lock.
	if chain = t.lookupLeaf(kb); chain != nil {
		return chain, false
	}
	chain = version.NewChain(decodeKey(kb))
	t.insertLeafLocked(kb, chain)
	t.size++
	return chain, true
}

// insertLeafLocked performs the structural ART insert of a brand-new leaf.
// Caller must hold t.mu exclusively.
func (t *Tree) insertLeafLocked(kb keyBytes, leaf *version.Chain) {
	insertRecursive(&t.root, kb, 0, leaf)
}

func insertRecursive(slot *child, key keyBytes, depth int, leaf *version.Chain) {
	if slot.isEmpty() {
		slot.leaf = leaf
		return
	}

	if slot.leaf != nil {
		existing := slot.leaf
		existingKey := encodeKey(existing.Key())
		if existingKey == key {
			// Caller (findOrCreateLeaf) only calls this path for genuinely
			// new keys; reaching an identical existing key here would mean
			// a caller bug, but leave the old leaf untouched defensively.
			return
		}
		common := commonPrefixLen(existingKey[depth:], key[depth:])
		branch := newNode4()
		branch.setPrefix(key[depth : depth+common])
		branch.addChild(existingKey[depth+common], child{leaf: existing})
		branch.addChild(key[depth+common], child{leaf: leaf})
		slot.leaf = nil
		slot.inner = branch
		return
	}

	n := slot.inner
	if n.prefixLen > 0 {
		matched := 0
		for matched < n.prefixLen && key[depth+matched] == n.prefix[matched] {
			matched++
		}
		if matched < n.prefixLen {
			branch := newNode4()
			branch.setPrefix(n.prefix[:matched])
			branchByte := n.prefix[matched]
			remaining := append([]byte(nil), n.prefix[matched+1:n.prefixLen]...)
			n.setPrefix(remaining)
			branch.addChild(branchByte, child{inner: n})
			branch.addChild(key[depth+matched], child{leaf: leaf})
			slot.inner = branch
			return
		}
		depth += n.prefixLen
	}

	b := key[depth]
	existingChild := n.findChild(b)
	if existingChild == nil {
		if n.isFull() {
			n = grow(n)
			slot.inner = n
		}
		n.addChild(b, child{leaf: leaf})
		return
	}
	insertRecursive(existingChild, key, depth+1, leaf)
}

// Insert installs rowID as key's latest write under ctx's transaction,
// creating the key's chain (and ART leaf) on first use (spec.md §4.2 Insert,
// §4.4 Insert/Update operators both route through this). When requireNew is
// set (used by the Insert operator, not Update), a version already visible
// to ctx's snapshot is rejected as ErrDuplicateKey rather than silently
// layered as a new version — this is the one place Insert and Update
// diverge, since Update's whole point is overwriting a row it can already
// see (open question recorded in DESIGN.md).
func (t *Tree) Insert(key uint64, rowID version.RowID, ctx WriteRecorder, requireNew bool) error {
	kb := encodeKey(key)
	chain, created := t.findOrCreateLeaf(kb)

	if requireNew && !created {
		if _, visible := chain.Search(ctx.ReadTS(), ctx.TxnID()); visible {
			return ErrDuplicateKey
		}
	}

	if err := chain.InstallUncommitted(rowID, ctx.ReadTS(), ctx.TxnID()); err != nil {
		return err
	}
	ctx.RecordWrite(chain)
	return nil
}

// ScanRange returns every key in [start,end] (bounds inclusive/exclusive per
// rng's flags) whose most-recent version visible to ctx's snapshot exists,
// in ascending key order (spec.md §4.2 ScanRange).
func (t *Tree) ScanRange(rng RangeInfo, ctx ReadRecorder) []KV {
	start := encodeKey(rng.Start)
	end := encodeKey(rng.End)
	var out []KV

	t.mu.RLock()
	defer t.mu.RUnlock()
	scanNode(&t.root, start, end, rng, 0, false, false, ctx, &out)
	return out
}

func scanNode(c *child, start, end keyBytes, rng RangeInfo, depth int, leftSure, rightSure bool, ctx ReadRecorder, out *[]KV) {
	if c == nil || c.isEmpty() {
		return
	}

	if c.leaf != nil {
		kb := encodeKey(c.leaf.Key())
		cmpStart := bytes.Compare(kb[:], start[:])
		if cmpStart < 0 || (cmpStart == 0 && !rng.ContainStart) {
			return
		}
		cmpEnd := bytes.Compare(kb[:], end[:])
		if cmpEnd > 0 || (cmpEnd == 0 && !rng.ContainEnd) {
			return
		}
		ctx.RecordRead(c.leaf)
		if rowID, ok := c.leaf.Search(ctx.ReadTS(), ctx.TxnID()); ok {
			*out = append(*out, KV{Key: decodeKey(kb), RowID: rowID})
		}
		return
	}

	n := c.inner
	nd := depth
	if n.prefixLen > 0 {
		for i := 0; i < n.prefixLen; i++ {
			pb := n.prefix[i]
			if !leftSure {
				sb := start[nd+i]
				if pb < sb {
					return
				}
				if pb > sb {
					leftSure = true
				}
			}
			if !rightSure {
				eb := end[nd+i]
				if pb > eb {
					return
				}
				if pb < eb {
					rightSure = true
				}
			}
		}
		nd += n.prefixLen
	}

	n.forEachChild(func(b byte, cc child) bool {
		nextLeftSure := leftSure
		nextRightSure := rightSure
		if !nextLeftSure {
			sb := start[nd]
			if b < sb {
				return true // keep scanning ascending children
			}
			if b > sb {
				nextLeftSure = true
			}
		}
		if !nextRightSure {
			eb := end[nd]
			if b > eb {
				return false // every further child (ascending) is also > eb
			}
			if b < eb {
				nextRightSure = true
			}
		}
		child := cc
		scanNode(&child, start, end, rng, nd+1, nextLeftSure, nextRightSure, ctx, out)
		return true
	})
}

// Delete removes key's leaf entirely, including structural node shrink and
// collapse. Used only by table/index teardown (DropIndex, DropTable) — live
// row deletion is represented as a tombstoned version, not an ART removal
// (spec.md §4.3 BaseRow.deleted), since a deleted key may still need to
// answer reads from transactions whose snapshot predates the delete.
func (t *Tree) Delete(key uint64) bool {
	kb := encodeKey(key)
	t.mu.Lock()
	defer t.mu.Unlock()
	removed := deleteRecursive(&t.root, kb, 0, nil, 0)
	if removed {
		t.size--
	}
	return removed
}

// deleteRecursive removes the leaf for key if present, shrinking/collapsing
// parent as needed. parent/parentByte identify the edge leading to slot, so a
// Node4 left with a single child can be collapsed into that child directly
// (spec.md §4.2 shrink transitions).
func deleteRecursive(slot *child, key keyBytes, depth int, parent *node, parentByte byte) bool {
	if slot == nil || slot.isEmpty() {
		return false
	}
	if slot.leaf != nil {
		if encodeKey(slot.leaf.Key()) != key {
			return false
		}
		*slot = child{}
		return true
	}

	n := slot.inner
	if n.prefixLen > 0 {
		for i := 0; i < n.prefixLen; i++ {
			if key[depth+i] != n.prefix[i] {
				return false
			}
		}
		depth += n.prefixLen
	}
	b := key[depth]
	target := n.findChild(b)
	if target == nil {
		return false
	}
	if target.leaf != nil {
		if encodeKey(target.leaf.Key()) != key {
			return false
		}
		n.removeChild(b)
		collapseIfNeeded(slot, n)
		return true
	}
	return deleteRecursive(target, key, depth+1, n, b)
}

// collapseIfNeeded shrinks n's fan-out tier if it has dropped below
// threshold, or collapses a Node4 holding exactly one remaining child into
// that child directly (merging prefixes), per spec.md §4.2.
func collapseIfNeeded(slot *child, n *node) {
	if n.kind == kind4 && n.numChildren == 1 {
		var onlyByte byte
		var only child
		n.forEachChild(func(b byte, c child) bool {
			onlyByte, only = b, c
			return false
		})
		if only.inner != nil {
			merged := append(append([]byte(nil), n.prefix[:n.prefixLen]...), onlyByte)
			merged = append(merged, only.inner.prefix[:only.inner.prefixLen]...)
			only.inner.setPrefix(merged)
			*slot = only
		} else {
			*slot = only
		}
		return
	}
	if shrinkThreshold(n) {
		*slot = child{inner: shrink(n)}
	}
}

// Size returns the number of live keys in the index.
func (t *Tree) Size() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.size
}

// Keys returns every key with a live leaf in the index, regardless of MVCC
// visibility at any particular snapshot. Used for structural teardown
// (DropTable, DropIndex), not ordinary query execution — a query-time caller
// should go through ScanRange so deletion/visibility rules still apply.
func (t *Tree) Keys() []uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []uint64
	collectKeys(&t.root, &out)
	return out
}

func collectKeys(c *child, out *[]uint64) {
	if c == nil || c.isEmpty() {
		return
	}
	if c.leaf != nil {
		*out = append(*out, c.leaf.Key())
		return
	}
	c.inner.forEachChild(func(_ byte, cc child) bool {
		collectKeys(&cc, out)
		return true
	})
}
