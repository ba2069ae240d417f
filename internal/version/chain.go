// internal/version/chain.go
package version

import (
	"errors"
	"sync"

	"babydb/internal/applog"
)

// ErrWriteConflict is raised by InstallUncommitted when the chain's single
// uncommitted slot is held by another transaction, or when a committed
// version has landed since the writer's snapshot was taken (first-committer-
// wins, spec.md §4.1).
var ErrWriteConflict = errors.New("babydb: write-write conflict")

// slot holds the chain's at-most-one pending (uncommitted) write (spec.md I1).
type slot struct {
	txnID uint64
	rowID RowID
}

// Chain is the per-key ordered history of committed values plus at most one
// pending write (spec.md §3 VersionChain, §4.1). Exactly one Chain exists per
// live key, reached through an ART leaf (internal/art).
type Chain struct {
	mu           sync.RWMutex
	key          uint64
	committed    *skipList
	pending      *slot
	lastCommitTS uint64
}

// NewChain creates an empty chain for key.
func NewChain(key uint64) *Chain {
	return &Chain{key: key, committed: newSkipList()}
}

// Key returns the key this chain belongs to.
func (c *Chain) Key() uint64 { return c.key }

// LastCommitTS returns the commit_ts of the most recently committed version,
// or 0 if none has been committed yet (spec.md I3).
func (c *Chain) LastCommitTS() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastCommitTS
}

// Search returns the row-id visible to txnID at snapshot ts (spec.md I4):
// the transaction's own uncommitted write if present, else the latest
// committed version with commit_ts <= ts. ok is false if nothing is visible.
func (c *Chain) Search(ts, txnID uint64) (rowID RowID, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.pending != nil && c.pending.txnID == txnID {
		return c.pending.rowID, true
	}
	n := c.committed.Search(ts)
	if n == nil {
		return 0, false
	}
	return n.RowID(), true
}

// InstallUncommitted writes (or, if already owned by txnID, overwrites) the
// chain's pending slot. Returns ErrWriteConflict if another transaction holds
// the slot, or if a commit has landed on this chain since readTS (spec.md
// §4.1).
func (c *Chain) InstallUncommitted(newRowID RowID, readTS, txnID uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending != nil && c.pending.txnID != txnID {
		return ErrWriteConflict
	}
	if c.lastCommitTS > readTS {
		return ErrWriteConflict
	}
	c.pending = &slot{txnID: txnID, rowID: newRowID}
	return nil
}

// PendingOwner returns the txn id holding the uncommitted slot, and whether
// one exists.
func (c *Chain) PendingOwner() (txnID uint64, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.pending == nil {
		return 0, false
	}
	return c.pending.txnID, true
}

// Commit appends the pending slot as a new committed node stamped with
// commitTS, updates last_commit_ts, and clears the slot. The caller (the
// transaction manager, under its commit latch) is responsible for ensuring
// commitTS values handed to a chain are strictly increasing (spec.md I2).
func (c *Chain) Commit(commitTS uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending == nil {
		return
	}
	c.committed.Insert(commitTS, c.pending.rowID)
	c.lastCommitTS = commitTS
	c.pending = nil
}

// Rollback clears the pending slot iff it is owned by txnID; otherwise a no-op.
func (c *Chain) Rollback(txnID uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending != nil && c.pending.txnID == txnID {
		c.pending = nil
	}
}

// GarbageCollect drops committed nodes with commit_ts < gcTS, retaining the
// latest such node as the floor visible to readers at or below gcTS. Never
// touches the pending slot or the newest committed node (spec.md §4.1, §9
// edge cases: "all versions older than gc_ts" and "concurrent readers at
// gc_ts" are both satisfied by keeping the floor rather than dropping
// everything below gcTS outright).
func (c *Chain) GarbageCollect(gcTS uint64) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gcTS == 0 {
		return 0
	}
	floor := c.committed.Search(gcTS - 1)
	if floor == nil {
		return 0
	}
	trimmed := c.committed.TrimBelow(floor.CommitTS())
	if trimmed > 0 {
		applog.Debug("version: gc sweep", "key", c.key, "gc_ts", gcTS, "trimmed", trimmed)
	}
	return trimmed
}

// Len returns the number of committed nodes currently retained.
func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.committed.Len()
}
