// internal/exec/operator.go
package exec

import (
	"babydb/internal/config"
	"babydb/internal/txn"
)

// State is an operator's progress signal from Next (spec.md §4.4).
type State int

const (
	HaveMoreOutput State = iota
	Exhausted
)

func (s State) String() string {
	if s == Exhausted {
		return "EXHAUSTED"
	}
	return "HAVE_MORE_OUTPUT"
}

// Tuple is a fixed-width row of int64 columns — BabyDB carries only
// integer-typed columns (SPEC_FULL.md Non-goals: no value type system, no
// SQL expression language to evaluate against).
type Tuple []int64

// Chunk is a reusable batch of tuples sized by ExecutionContext.Config's
// ChunkSuggestSize (spec.md §4.4: "Next(output_chunk)" is chunked, not
// single-row).
type Chunk struct {
	Tuples []Tuple
}

// NewChunk allocates a chunk with capacity cfg.ChunkSuggestSize.
func NewChunk(cfg config.Config) *Chunk {
	size := cfg.ChunkSuggestSize
	if size <= 0 {
		size = 1
	}
	return &Chunk{Tuples: make([]Tuple, 0, size)}
}

func (c *Chunk) Reset()         { c.Tuples = c.Tuples[:0] }
func (c *Chunk) Append(t Tuple) { c.Tuples = append(c.Tuples, t) }
func (c *Chunk) Len() int       { return len(c.Tuples) }
func (c *Chunk) Full() bool     { return len(c.Tuples) >= cap(c.Tuples) }

// ExecutionContext carries the transaction an operator tree runs under,
// plus the chunking/isolation configuration. Embeds *txn.Transaction so
// operators can call ctx.ReadTS()/ctx.TxnID()/ctx.RecordRead()/
// ctx.RecordWrite()/ctx.Taint() directly — the same Transaction value
// satisfies internal/art's TxnView/ReadRecorder/WriteRecorder interfaces.
type ExecutionContext struct {
	*txn.Transaction
	Config config.Config
}

// NewExecutionContext binds a transaction to a chunking/isolation config.
func NewExecutionContext(t *txn.Transaction, cfg config.Config) *ExecutionContext {
	return &ExecutionContext{Transaction: t, Config: cfg}
}

// Operator is the pull-based pipeline stage (spec.md §4.4). Generalizes
// tur/pkg/sql/executor/iterator.go's RowIterator (Next() bool/Value()/Err()/
// Close()) from single-row-pull to chunked-pull, since spec.md mandates
// Next(output_chunk) rather than one row at a time.
type Operator interface {
	// Init prepares the operator and its children to run under ctx. Called
	// exactly once before the first Next.
	Init(ctx *ExecutionContext) error
	// Check validates the operator's own static configuration (a non-nil
	// table, predicate, Mutate function or column list) and panics with a
	// plain message on a misconfiguration rather than returning through Next.
	// Column indices are not checked against the width of the tuples the
	// operator will receive.
	Check(ctx *ExecutionContext) error
	// Next fills out with as many tuples as fit (or are available) and
	// reports whether more output remains. out may still contain tuples
	// even when the returned state is Exhausted (the final partial chunk).
	Next(ctx *ExecutionContext, out *Chunk) (State, error)
}
