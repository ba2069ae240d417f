// internal/catalog/stlmap.go
package catalog

import (
	"sync"

	"babydb/internal/version"
)

// Stlmap is the plain, non-versioned index spec.md §6.3 describes as a
// "single-transaction test index": a bare map[key]RowID with no version
// chains and no MVCC semantics at all, guarded by an ordinary mutex. It
// exists purely as a baseline to validate ART-backed behavior against in
// tests that don't need snapshot isolation — never used on a live table.
type Stlmap struct {
	mu   sync.Mutex
	rows map[uint64]version.RowID
}

// NewStlmap returns an empty map-backed index.
func NewStlmap() *Stlmap {
	return &Stlmap{rows: make(map[uint64]version.RowID)}
}

func (s *Stlmap) Put(key uint64, id version.RowID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[key] = id
}

func (s *Stlmap) Get(key uint64) (version.RowID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.rows[key]
	return id, ok
}

func (s *Stlmap) Delete(key uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, key)
}

func (s *Stlmap) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}
