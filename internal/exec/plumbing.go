// internal/exec/plumbing.go
package exec

import "babydb/internal/catalog"

// SeqScan is a full unfiltered table scan: RangeIndexScan over
// [MinKey, MaxKey] (spec.md §4.4 plumbing operators — "standard, not
// concurrency-sensitive", so it is simply the core scan with the widest
// possible range rather than a distinct code path).
type SeqScan struct {
	RangeIndexScan
}

// NewSeqScan returns a scan covering every key in table.
func NewSeqScan(table *catalog.Table) *SeqScan {
	return &SeqScan{RangeIndexScan{Table: table, Range: FullRange}}
}

// Filter drops tuples that don't satisfy Pred. No expression language is
// evaluated here (SQL parsing is out of scope) — Pred is a plain function
// over a tuple's int64 columns, grounded on tur/pkg/sql/executor/
// iterator.go's FilterIterator shape, simplified accordingly.
type Filter struct {
	Child Operator
	Pred  func(Tuple) bool
}

func (f *Filter) Init(ctx *ExecutionContext) error  { return f.Child.Init(ctx) }
func (f *Filter) Check(ctx *ExecutionContext) error {
	if f.Pred == nil {
		panic("babydb: Filter.Check: nil predicate")
	}
	return f.Child.Check(ctx)
}

func (f *Filter) Next(ctx *ExecutionContext, out *Chunk) (State, error) {
	out.Reset()
	for {
		in := NewChunk(ctx.Config)
		state, err := f.Child.Next(ctx, in)
		if err != nil {
			return Exhausted, err
		}
		for _, t := range in.Tuples {
			if f.Pred(t) {
				out.Append(t)
			}
		}
		if state == Exhausted {
			return Exhausted, nil
		}
		if out.Len() > 0 {
			return HaveMoreOutput, nil
		}
		// This child chunk produced nothing that passed the predicate;
		// keep pulling rather than returning an empty HAVE_MORE_OUTPUT.
	}
}

// Projection reorders/selects columns by index. No column-name resolution —
// that belongs to a SQL layer this spec excludes.
type Projection struct {
	Child Operator
	Cols  []int
}

func (p *Projection) Init(ctx *ExecutionContext) error  { return p.Child.Init(ctx) }
func (p *Projection) Check(ctx *ExecutionContext) error {
	if len(p.Cols) == 0 {
		panic("babydb: Projection.Check: no columns selected")
	}
	return p.Child.Check(ctx)
}

func (p *Projection) Next(ctx *ExecutionContext, out *Chunk) (State, error) {
	in := NewChunk(ctx.Config)
	state, err := p.Child.Next(ctx, in)
	if err != nil {
		return Exhausted, err
	}
	out.Reset()
	for _, t := range in.Tuples {
		projected := make(Tuple, len(p.Cols))
		for i, col := range p.Cols {
			projected[i] = t[col]
		}
		out.Append(projected)
	}
	return state, nil
}

// AggFunc selects Aggregate's reduction.
type AggFunc int

const (
	AggSum AggFunc = iota
	AggCount
	AggMin
	AggMax
)

// Aggregate reduces one column to a single scalar over the whole input —
// SUM/COUNT/MIN/MAX, single-group (no GROUP BY: grouping would need a
// schema/expression layer this spec excludes). Pulls its child to
// exhaustion on the first Next call, then emits exactly one row.
type Aggregate struct {
	Child Operator
	Col   int
	Func  AggFunc

	computed bool
	emitted  bool
	result   int64
}

func (a *Aggregate) Init(ctx *ExecutionContext) error  { return a.Child.Init(ctx) }
func (a *Aggregate) Check(ctx *ExecutionContext) error { return a.Child.Check(ctx) }

func (a *Aggregate) Next(ctx *ExecutionContext, out *Chunk) (State, error) {
	out.Reset()
	if a.emitted {
		return Exhausted, nil
	}

	if !a.computed {
		var sum, count, min, max int64
		first := true
		for {
			c := NewChunk(ctx.Config)
			state, err := a.Child.Next(ctx, c)
			if err != nil {
				return Exhausted, err
			}
			for _, t := range c.Tuples {
				v := t[a.Col]
				sum += v
				count++
				if first || v < min {
					min = v
				}
				if first || v > max {
					max = v
				}
				first = false
			}
			if state == Exhausted {
				break
			}
		}
		switch a.Func {
		case AggSum:
			a.result = sum
		case AggCount:
			a.result = count
		case AggMin:
			a.result = min
		case AggMax:
			a.result = max
		}
		a.computed = true
	}

	out.Append(Tuple{a.result})
	a.emitted = true
	return Exhausted, nil
}

// HashJoin is an in-memory hash equi-join: Build is hashed on BuildKeyCol,
// then Probe is streamed and matched on ProbeKeyCol. Joined tuples are the
// probe tuple's columns followed by the matching build tuple's columns.
type HashJoin struct {
	Build       Operator
	Probe       Operator
	BuildKeyCol int
	ProbeKeyCol int

	built       bool
	table       map[int64][]Tuple
	probeBuf    []Tuple
	probePos    int
	probeDone   bool
	curMatches  []Tuple
	curMatchPos int
	curProbe    Tuple
}

func (h *HashJoin) Init(ctx *ExecutionContext) error {
	if err := h.Build.Init(ctx); err != nil {
		return err
	}
	return h.Probe.Init(ctx)
}

func (h *HashJoin) Check(ctx *ExecutionContext) error {
	if err := h.Build.Check(ctx); err != nil {
		return err
	}
	return h.Probe.Check(ctx)
}

func (h *HashJoin) buildHashTable(ctx *ExecutionContext) error {
	h.table = make(map[int64][]Tuple)
	for {
		c := NewChunk(ctx.Config)
		state, err := h.Build.Next(ctx, c)
		if err != nil {
			return err
		}
		for _, t := range c.Tuples {
			k := t[h.BuildKeyCol]
			h.table[k] = append(h.table[k], t)
		}
		if state == Exhausted {
			return nil
		}
	}
}

// nextProbeTuple advances to the next probe-side row, refilling probeBuf
// from the probe child as needed. Returns false once the probe side and its
// buffer are both drained.
func (h *HashJoin) nextProbeTuple(ctx *ExecutionContext) (bool, error) {
	for h.probePos >= len(h.probeBuf) {
		if h.probeDone {
			return false, nil
		}
		c := NewChunk(ctx.Config)
		state, err := h.Probe.Next(ctx, c)
		if err != nil {
			return false, err
		}
		h.probeBuf = c.Tuples
		h.probePos = 0
		if state == Exhausted {
			h.probeDone = true
		}
	}
	h.curProbe = h.probeBuf[h.probePos]
	h.probePos++
	h.curMatches = h.table[h.curProbe[h.ProbeKeyCol]]
	h.curMatchPos = 0
	return true, nil
}

func (h *HashJoin) Next(ctx *ExecutionContext, out *Chunk) (State, error) {
	if !h.built {
		if err := h.buildHashTable(ctx); err != nil {
			return Exhausted, err
		}
		h.built = true
	}

	out.Reset()
	for !out.Full() {
		if h.curMatchPos >= len(h.curMatches) {
			ok, err := h.nextProbeTuple(ctx)
			if err != nil {
				return Exhausted, err
			}
			if !ok {
				return Exhausted, nil
			}
			continue
		}
		match := h.curMatches[h.curMatchPos]
		h.curMatchPos++
		joined := make(Tuple, 0, len(h.curProbe)+len(match))
		joined = append(joined, h.curProbe...)
		joined = append(joined, match...)
		out.Append(joined)
	}

	if h.probeDone && h.probePos >= len(h.probeBuf) && h.curMatchPos >= len(h.curMatches) {
		return Exhausted, nil
	}
	return HaveMoreOutput, nil
}
