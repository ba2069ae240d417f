// internal/catalog/catalog.go
package catalog

import (
	"fmt"
	"sync"

	"babydb/internal/art"
	"babydb/internal/config"
	"babydb/internal/rowstore"
	"babydb/internal/txn"
	"babydb/internal/version"
)

// Table pairs a base row store with the ART index that carries its primary
// key's version chains (spec.md §6.1 — DDL is explicitly "not part of the
// hard engineering", so this is deliberately thin: one index, fixed-width
// int64 tuples, no schema/type system).
type Table struct {
	Name    string
	NumCols int
	Rows    rowstore.Store
	Index   *art.Tree
}

// Database is the top-level handle: a table catalog plus the transaction
// manager, guarded by a database-wide RWMutex (spec.md §5/§7: "database
// guard ⊃ txn lifetime ⊃ (table latch, chain latch, commit latch, txn-map
// latch)" — DDL takes the guard exclusively, every transaction holds it
// shared for its entire lifetime). Grounded on tur/pkg/schema's TableDef/
// catalog map shape and tur/pkg/turdb/db.go's top-level handle, intentionally
// left thin.
type Database struct {
	mu      sync.RWMutex
	manager *txn.Manager
	tables  map[string]*Table
	cfg     config.Config
}

// New returns an empty database using cfg for per-transaction defaults
// (chunk size, isolation level).
func New(cfg config.Config) *Database {
	return &Database{
		manager: txn.NewManager(),
		tables:  make(map[string]*Table),
		cfg:     cfg,
	}
}

// Config returns the database's configuration.
func (d *Database) Config() config.Config { return d.cfg }

// CreateTable registers a new table with numCols int64 columns and an empty
// ART primary index. DDL takes the database guard exclusively.
func (d *Database) CreateTable(name string, numCols int) (*Table, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.tables[name]; exists {
		return nil, fmt.Errorf("babydb: table %q already exists", name)
	}
	t := &Table{
		Name:    name,
		NumCols: numCols,
		Rows:    rowstore.NewStore(),
		Index:   art.NewTree(),
	}
	d.tables[name] = t
	return t, nil
}

// DropTable tears down a table's index and row store, then removes it from
// the catalog.
func (d *Database) DropTable(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	t, exists := d.tables[name]
	if !exists {
		return fmt.Errorf("babydb: table %q does not exist", name)
	}
	clearIndex(t.Index)
	tombstoneAllRows(t.Rows)
	delete(d.tables, name)
	return nil
}

// clearIndex removes every key from idx via Tree.Delete, structurally
// collapsing it back to empty rather than just dropping the Go reference.
func clearIndex(idx *art.Tree) {
	for _, key := range idx.Keys() {
		idx.Delete(key)
	}
}

// tombstoneAllRows marks every row in store deleted. Used during index/table
// teardown so no read guard taken afterwards can still surface a row whose
// index entry has just been removed (spec.md §3: "rows are never deleted
// physically, only marked").
func tombstoneAllRows(store rowstore.Store) {
	n := store.Len() // read before Write: Len takes the store's shared lock
	wg := store.Write()
	defer wg.Close()
	for id := 0; id < n; id++ {
		wg.MarkDeleted(version.RowID(id))
	}
}

// Table looks up a table by name.
func (d *Database) Table(name string) (*Table, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	t, ok := d.tables[name]
	return t, ok
}

// CreateIndex and DropIndex are thin per spec.md §6.1/§6.3: BabyDB carries
// exactly one index per table, the ART primary index created alongside the
// table itself. A secondary index structure (Stlmap, §6.3) exists as a
// standalone single-transaction test double, not as something CreateIndex
// attaches to a table — multi-index tables are out of this spec's scope.
func (d *Database) CreateIndex(tableName string) (*art.Tree, error) {
	t, ok := d.Table(tableName)
	if !ok {
		return nil, fmt.Errorf("babydb: table %q does not exist", tableName)
	}
	return t.Index, nil
}

// DropIndex removes every entry from tableName's primary index, structurally
// collapsing it back to empty and tombstoning the rows it reached (spec.md
// §6.1 DropIndex). The table itself, and its row store slots, survive the
// call — only the index content and the rows' liveness go away.
func (d *Database) DropIndex(tableName string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	t, ok := d.tables[tableName]
	if !ok {
		return fmt.Errorf("babydb: table %q does not exist", tableName)
	}
	clearIndex(t.Index)
	tombstoneAllRows(t.Rows)
	return nil
}

// CreateTxn begins a transaction, taking the database guard shared for the
// transaction's entire lifetime (released automatically on Commit or Abort).
func (d *Database) CreateTxn(isolation config.Isolation) *txn.Transaction {
	d.mu.RLock()
	return d.manager.CreateTxn(isolation, d.mu.RUnlock)
}

// Commit commits t via the database's transaction manager.
func (d *Database) Commit(t *txn.Transaction) bool {
	return d.manager.Commit(t)
}

// Abort aborts t via the database's transaction manager.
func (d *Database) Abort(t *txn.Transaction) {
	d.manager.Abort(t)
}

// MinReadTimestamp exposes the manager's T_min watermark.
func (d *Database) MinReadTimestamp() uint64 {
	return d.manager.MinReadTimestamp()
}
