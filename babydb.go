// babydb.go
package babydb

import (
	"babydb/internal/applog"
	"babydb/internal/catalog"
	"babydb/internal/config"
	"babydb/internal/txn"
)

// Isolation re-exports internal/config's isolation levels so callers never
// need to import an internal package directly.
type Isolation = config.Isolation

const (
	Snapshot     = config.Snapshot
	Serializable = config.Serializable
)

// Table is the handle CreateTable returns: a base row store plus the ART
// primary index over its key column.
type Table = catalog.Table

// Transaction is the handle CreateTxn returns.
type Transaction = txn.Transaction

// Status is a Transaction's lifecycle state.
type Status = txn.Status

const (
	Running   = txn.Running
	Tainted   = txn.Tainted
	Committed = txn.Committed
	Aborted   = txn.Aborted
)

// Database is the single-process, single-node relational store (spec.md §1
// Purpose & Scope): an MVCC engine over an ART primary index, reached
// through a deliberately thin catalog façade (spec.md §6.1 — DDL and config
// loading are named as external collaborators, not the hard engineering
// this module implements). Grounded on tur/pkg/turdb/db.go's top-level
// handle shape.
type Database struct {
	*catalog.Database
}

// Open constructs a Database from cfg, initializing the package-level
// logger as a side effect the way a long-running process would at startup
// (grounded on tur/cmd/turdb/main.go's init-logger-then-open-db sequence).
func Open(cfg config.Config) *Database {
	applog.Init(applog.Config{Level: "INFO", Format: "text"})
	return &Database{Database: catalog.New(cfg)}
}

// OpenDefault opens a Database using config.Default(), for tests and
// examples that don't need environment-driven configuration.
func OpenDefault() *Database {
	return Open(config.Default())
}

// LoadAndOpen reads configuration from environment variables named with
// envPrefix (e.g. "BABYDB_") plus an optional .env file, falling back to defaults for anything unset,
// then opens a Database (spec.md §7 Config: "ISOLATION_LEVEL: SNAPSHOT
// (default) or SERIALIZABLE").
func LoadAndOpen(envPrefix string) (*Database, error) {
	cfg, err := config.Load(envPrefix)
	if err != nil {
		return nil, err
	}
	return Open(cfg), nil
}
