// internal/exec/core.go
package exec

import (
	"errors"

	"babydb/internal/art"
	"babydb/internal/catalog"
	"babydb/internal/version"
)

// RangeIndexScan pulls rows from a table's ART index within a key range, at
// full MVCC fidelity: each key's visibility is resolved through its version
// chain at ctx's snapshot (spec.md §4.2 ScanRange). Grounded on
// tur/pkg/sql/executor/iterator.go's TableScanIterator, generalized from
// full-table scan to an arbitrary RangeInfo.
type RangeIndexScan struct {
	Table *catalog.Table
	Range art.RangeInfo

	pulled  bool
	results []art.KV
	pos     int
}

func (s *RangeIndexScan) Init(ctx *ExecutionContext) error { return nil }

func (s *RangeIndexScan) Check(ctx *ExecutionContext) error {
	if s.Table == nil {
		panic("babydb: RangeIndexScan.Check: nil table")
	}
	return nil
}

func (s *RangeIndexScan) Next(ctx *ExecutionContext, out *Chunk) (State, error) {
	if !s.pulled {
		s.results = s.Table.Index.ScanRange(s.Range, ctx.Transaction)
		s.pulled = true
	}

	out.Reset()
	guard := s.Table.Rows.Read()
	defer guard.Close()

	for !out.Full() && s.pos < len(s.results) {
		kv := s.results[s.pos]
		s.pos++
		row, ok := guard.Get(kv.RowID)
		if !ok || row.Deleted {
			continue
		}
		out.Append(Tuple(append([]int64(nil), row.Tuple...)))
	}

	if s.pos >= len(s.results) {
		return Exhausted, nil
	}
	return HaveMoreOutput, nil
}

// FullRange is the [MinKey, MaxKey] bound SeqScan uses.
var FullRange = art.RangeInfo{Start: 0, End: ^uint64(0), ContainStart: true, ContainEnd: true}

// Insert appends each tuple its child produces as a new base row and
// installs it into the table's index, rejecting a tuple whose key is
// already visible at the caller's snapshot as a duplicate key (spec.md §4.4
// Insert; requireNew=true is what distinguishes Insert from Update at the
// art.Tree.Insert call site — see DESIGN.md). Grounded on
// tur/pkg/sql/executor/executor.go's insert-operator shape.
type Insert struct {
	Table *catalog.Table
	Child Operator
	KeyCol int // column of Child's output tuples that holds the primary key
}

func (ins *Insert) Init(ctx *ExecutionContext) error { return ins.Child.Init(ctx) }

func (ins *Insert) Check(ctx *ExecutionContext) error {
	if ins.Table == nil {
		panic("babydb: Insert.Check: nil table")
	}
	return ins.Child.Check(ctx)
}

func (ins *Insert) Next(ctx *ExecutionContext, out *Chunk) (State, error) {
	ctx.CheckActive()

	in := NewChunk(ctx.Config)
	state, err := ins.Child.Next(ctx, in)
	if err != nil {
		return Exhausted, err
	}

	out.Reset()
	for _, tuple := range in.Tuples {
		key := uint64(tuple[ins.KeyCol])

		wg := ins.Table.Rows.Write()
		rowID := wg.Append([]int64(tuple))
		wg.Close()

		if err := ins.Table.Index.Insert(key, rowID, ctx.Transaction, true); err != nil {
			if errors.Is(err, version.ErrWriteConflict) {
				ctx.Transaction.Taint()
			}
			return Exhausted, err
		}
		out.Append(tuple)
	}
	return state, nil
}

// Update eagerly pulls its entire input (spec.md §4.4: "pulling all input
// first" before mutating), then for each input tuple runs Mutate to compute
// the new tuple, appends it as a fresh base row, and installs it into the
// index with requireNew=false — overwriting a row the transaction can
// already see is the entire point of an update (spec.md §4.4: "two
// successive writes by the same transaction [are] overwrite ... not
// conflict").
type Update struct {
	Table  *catalog.Table
	Child  Operator
	KeyCol int
	Mutate func(Tuple) Tuple

	pulled bool
	rows   []Tuple
	pos    int
}

func (u *Update) Init(ctx *ExecutionContext) error {
	if err := u.Child.Init(ctx); err != nil {
		return err
	}
	for {
		c := NewChunk(ctx.Config)
		state, err := u.Child.Next(ctx, c)
		if err != nil {
			return err
		}
		u.rows = append(u.rows, c.Tuples...)
		if state == Exhausted {
			break
		}
	}
	u.pulled = true
	return nil
}

func (u *Update) Check(ctx *ExecutionContext) error {
	if u.Table == nil {
		panic("babydb: Update.Check: nil table")
	}
	if u.Mutate == nil {
		panic("babydb: Update.Check: nil Mutate function")
	}
	return u.Child.Check(ctx)
}

func (u *Update) Next(ctx *ExecutionContext, out *Chunk) (State, error) {
	ctx.CheckActive()

	out.Reset()
	for !out.Full() && u.pos < len(u.rows) {
		old := u.rows[u.pos]
		u.pos++
		newTuple := u.Mutate(old)
		key := uint64(newTuple[u.KeyCol])

		wg := u.Table.Rows.Write()
		rowID := wg.Append([]int64(newTuple))
		wg.Close()

		if err := u.Table.Index.Insert(key, rowID, ctx.Transaction, false); err != nil {
			if errors.Is(err, version.ErrWriteConflict) {
				ctx.Transaction.Taint()
			}
			return Exhausted, err
		}
		out.Append(newTuple)
	}

	if u.pos >= len(u.rows) {
		return Exhausted, nil
	}
	return HaveMoreOutput, nil
}

// Value is a leaf operator producing a fixed in-memory tuple list — the
// source of rows handed to Insert in tests and small seed workloads.
type Value struct {
	Rows []Tuple
	pos  int
}

func (v *Value) Init(ctx *ExecutionContext) error  { return nil }
func (v *Value) Check(ctx *ExecutionContext) error { return nil }

func (v *Value) Next(ctx *ExecutionContext, out *Chunk) (State, error) {
	out.Reset()
	for !out.Full() && v.pos < len(v.Rows) {
		out.Append(v.Rows[v.pos])
		v.pos++
	}
	if v.pos >= len(v.Rows) {
		return Exhausted, nil
	}
	return HaveMoreOutput, nil
}
