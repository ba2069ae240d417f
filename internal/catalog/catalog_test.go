// internal/catalog/catalog_test.go
package catalog

import (
	"testing"

	"babydb/internal/config"
)

func TestCreateAndDropTable(t *testing.T) {
	db := New(config.Default())
	tbl, err := db.CreateTable("t0", 2)
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if tbl.NumCols != 2 {
		t.Errorf("NumCols = %d, want 2", tbl.NumCols)
	}
	if _, err := db.CreateTable("t0", 2); err == nil {
		t.Error("expected error creating a duplicate table")
	}
	if err := db.DropTable("t0"); err != nil {
		t.Fatalf("DropTable: %v", err)
	}
	if _, ok := db.Table("t0"); ok {
		t.Error("table should be gone after DropTable")
	}
}

func TestCreateTxnCommitRoundTrip(t *testing.T) {
	db := New(config.Default())
	db.CreateTable("t0", 1)

	txn := db.CreateTxn(config.Snapshot)
	if !db.Commit(txn) {
		t.Fatal("expected commit to succeed")
	}
}

func TestDropIndexClearsEntriesAndTombstonesRows(t *testing.T) {
	db := New(config.Default())
	tbl, err := db.CreateTable("t0", 1)
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}

	seed := db.CreateTxn(config.Snapshot)
	wg := tbl.Rows.Write()
	id := wg.Append([]int64{1})
	wg.Close()
	if err := tbl.Index.Insert(1, id, seed, true); err != nil {
		t.Fatalf("Index.Insert: %v", err)
	}
	if !db.Commit(seed) {
		t.Fatal("expected commit to succeed")
	}

	if tbl.Index.Size() != 1 {
		t.Fatalf("Index.Size() = %d, want 1", tbl.Index.Size())
	}
	if err := db.DropIndex("t0"); err != nil {
		t.Fatalf("DropIndex: %v", err)
	}
	if tbl.Index.Size() != 0 {
		t.Errorf("Index.Size() after DropIndex = %d, want 0", tbl.Index.Size())
	}

	rg := tbl.Rows.Read()
	defer rg.Close()
	row, ok := rg.Get(id)
	if !ok || !row.Deleted {
		t.Errorf("row %d should be tombstoned after DropIndex, got %+v (ok=%v)", id, row, ok)
	}
}

func TestDropTableOnNonexistentTableErrors(t *testing.T) {
	db := New(config.Default())
	if err := db.DropTable("nope"); err == nil {
		t.Error("expected error dropping a table that doesn't exist")
	}
	if err := db.DropIndex("nope"); err == nil {
		t.Error("expected error dropping an index on a table that doesn't exist")
	}
}

func TestStlmapBasic(t *testing.T) {
	m := NewStlmap()
	m.Put(1, 100)
	if id, ok := m.Get(1); !ok || id != 100 {
		t.Errorf("Get(1) = (%v,%v), want (100,true)", id, ok)
	}
	m.Delete(1)
	if _, ok := m.Get(1); ok {
		t.Error("expected miss after Delete")
	}
	if m.Len() != 0 {
		t.Errorf("Len = %d, want 0", m.Len())
	}
}
