// internal/version/node.go
package version

import "sync/atomic"

// RowID is a stable handle into a table's base row vector (spec.md §3).
type RowID uint64

// Node is a single committed version in a chain: the commit timestamp that
// stamped it and the row-id it resolves to. Nodes are singly-linked at
// multiple skip-list levels by skiplist.go.
type Node struct {
	commitTS uint64
	rowID    RowID
	forward  []*Node
}

// CommitTS returns the commit timestamp that produced this version.
func (n *Node) CommitTS() uint64 { return n.commitTS }

// RowID returns the base-row handle this version resolves to.
func (n *Node) RowID() RowID { return n.rowID }

// Process-wide version-node bookkeeping (spec.md §4.1 "Bookkeeping").
// Every allocation calls register; every free calls unregister. The pairing
// is enforced by routing all allocation through newNode and all freeing
// through release, so the two counts can never drift (spec.md §9, open
// question on RegisterVersionNode/UnregisterVersionNode underflow).
var (
	currentNodes int64
	maxNodes     int64
)

func newNode(commitTS uint64, rowID RowID, levels int) *Node {
	n := &Node{commitTS: commitTS, rowID: rowID, forward: make([]*Node, levels)}
	register()
	return n
}

func release(n *Node) {
	if n == nil {
		return
	}
	unregister()
}

func register() {
	cur := atomic.AddInt64(&currentNodes, 1)
	for {
		prevMax := atomic.LoadInt64(&maxNodes)
		if cur <= prevMax {
			return
		}
		if atomic.CompareAndSwapInt64(&maxNodes, prevMax, cur) {
			return
		}
	}
}

func unregister() {
	atomic.AddInt64(&currentNodes, -1)
}

// CurrentNodes returns the number of version nodes currently live, process-wide.
func CurrentNodes() int64 { return atomic.LoadInt64(&currentNodes) }

// MaxNodes returns the high-water mark of live version nodes, process-wide.
func MaxNodes() int64 { return atomic.LoadInt64(&maxNodes) }

// ResetMetrics zeroes the process-wide counters. Test-only: production code
// never needs to reset a running watermark.
func ResetMetrics() {
	atomic.StoreInt64(&currentNodes, 0)
	atomic.StoreInt64(&maxNodes, 0)
}
