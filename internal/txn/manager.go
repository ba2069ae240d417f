// internal/txn/manager.go
package txn

import (
	"math"
	"sync"
	"sync/atomic"

	"babydb/internal/applog"
	"babydb/internal/config"
)

// Manager is the transaction manager (spec.md §4.3): tracks active
// transactions, assigns ids and commit timestamps, and runs the commit/
// abort protocol. Grounded directly on tur/pkg/mvcc/manager.go (Begin/
// Commit/Rollback/MinActiveTimestamp/CleanupOldTransactions), restructured
// to use two separate latches — a map latch guarding the active-transaction
// set and a commit latch serializing the commit/abort critical section — per
// spec.md's explicit two-latch discipline (tur uses a single RWMutex for
// both concerns, since it has no equivalent split in its own design).
type Manager struct {
	mapLatch sync.RWMutex
	active   map[uint64]*Transaction

	commitLatch sync.Mutex

	nextTxnID    atomic.Uint64
	lastCommitTS atomic.Uint64
}

// NewManager returns a manager with no active transactions and commit
// timestamps starting from 0 (so the first commit is stamped 1).
func NewManager() *Manager {
	m := &Manager{active: make(map[uint64]*Transaction)}
	m.nextTxnID.Store(TxnStartID)
	return m
}

// CreateTxn begins a new transaction at the current commit watermark,
// capturing T_min (spec.md §4.3 CreateTxn). release, if non-nil, is called
// exactly once when the transaction terminates (Commit or Abort) — intended
// for a catalog layer to drop a database-wide shared guard it acquired
// before calling CreateTxn.
func (m *Manager) CreateTxn(isolation config.Isolation, release func()) *Transaction {
	m.mapLatch.Lock()
	defer m.mapLatch.Unlock()

	readTS := m.lastCommitTS.Load()
	gcTS := m.tMinLocked(readTS)
	txnID := m.nextTxnID.Add(1) - 1

	t := newTransaction(txnID, readTS, gcTS, isolation, release)
	m.active[txnID] = t
	return t
}

// tMinLocked computes T_min: the minimum read_ts among active transactions,
// or fallbackReadTS (the manager's last_commit_ts) if none are active
// (spec.md §4.3: "or last_commit_ts if none"). Caller must hold mapLatch.
func (m *Manager) tMinLocked(fallbackReadTS uint64) uint64 {
	if len(m.active) == 0 {
		return fallbackReadTS
	}
	min := uint64(math.MaxUint64)
	for _, t := range m.active {
		if r := t.ReadTS(); r < min {
			min = r
		}
	}
	return min
}

// MinReadTimestamp exposes T_min for observability/tests.
func (m *Manager) MinReadTimestamp() uint64 {
	m.mapLatch.RLock()
	defer m.mapLatch.RUnlock()
	return m.tMinLocked(m.lastCommitTS.Load())
}

// ActiveCount returns the number of currently active transactions.
func (m *Manager) ActiveCount() int {
	m.mapLatch.RLock()
	defer m.mapLatch.RUnlock()
	return len(m.active)
}

func (m *Manager) removeActive(txnID uint64) {
	m.mapLatch.Lock()
	defer m.mapLatch.Unlock()
	delete(m.active, txnID)
}

// verifyTxn implements spec.md §4.3 VerifyTxn: trivially true under SNAPSHOT,
// and under SERIALIZABLE, fails if any chain in the read set has a
// last_commit_ts past the transaction's own snapshot (a concurrent committer
// wrote something this transaction read).
func (m *Manager) verifyTxn(t *Transaction) bool {
	if t.Isolation() != config.Serializable {
		return true
	}
	for _, c := range t.readSetSnapshot() {
		if c.LastCommitTS() > t.readTS {
			return false
		}
	}
	return true
}

// Commit attempts to commit t. Precondition: t.Status() == Running, else
// this is a programming error (panics, per spec.md §6 LogicError). Returns
// false (after automatically aborting t) if VerifyTxn fails.
func (m *Manager) Commit(t *Transaction) bool {
	if t.Status() != Running {
		panic(LogicError{Msg: "Commit called on a transaction that is not RUNNING"})
	}

	m.commitLatch.Lock()
	if !m.verifyTxn(t) {
		m.commitLatch.Unlock()
		applog.Debug("txn: serialization conflict at commit, aborting", "txn_id", t.txnID, "read_ts", t.readTS)
		m.Abort(t)
		return false
	}

	commitTS := m.lastCommitTS.Load() + 1
	writes := t.writeSetSnapshot()
	// Trim each written chain against t.gcTS before appending its new
	// version, so a commit never briefly retains an already-reclaimable
	// version alongside the new one.
	for _, c := range writes {
		c.GarbageCollect(t.gcTS)
	}
	for _, c := range writes {
		c.Commit(commitTS)
	}
	m.lastCommitTS.Store(commitTS)

	t.mu.Lock()
	t.commitTS = commitTS
	t.status = Committed
	t.mu.Unlock()
	m.commitLatch.Unlock()

	// GC is opportunistic and best-effort: a chain with nothing eligible
	// below t.gcTS is simply a no-op (spec.md §4.3, "GarbageCollect ...
	// opportunistically on every chain in T's read set").
	for _, c := range t.readSetSnapshot() {
		c.GarbageCollect(t.gcTS)
	}

	m.removeActive(t.txnID)
	if t.release != nil {
		t.release()
	}
	return true
}

// Abort rolls t back. Precondition: t.Status() is Running or Tainted.
func (m *Manager) Abort(t *Transaction) {
	st := t.Status()
	if st != Running && st != Tainted {
		panic(LogicError{Msg: "Abort called on an already-terminated transaction"})
	}

	m.commitLatch.Lock()
	for _, c := range t.writeSetSnapshot() {
		c.Rollback(t.txnID)
	}
	t.mu.Lock()
	t.status = Aborted
	t.mu.Unlock()
	m.commitLatch.Unlock()

	m.removeActive(t.txnID)
	if t.release != nil {
		t.release()
	}
}
