// Package agg implements the aggregation function kernel: a fixed table of
// per-column aggregation, selection and projection operators driven through
// a uniform evaluation context, cooperating with a two-phase (node-local
// then coordinator) distributed reduction protocol.
package agg

import (
	"github.com/prometheus/prometheus/model/labels"

	"github.com/tsengine/aggwheel/pkg/scalar"
)

// Stage governs how a hook interprets the bytes handed to it.
type Stage uint8

const (
	// StagePrimary is a node-local scan over raw typed data.
	StagePrimary Stage = iota
	// StageFirstMerge consolidates binary snapshots from multiple groups
	// at one node.
	StageFirstMerge
	// StageSecondMerge consolidates binary snapshots arriving from
	// multiple nodes at the coordinator.
	StageSecondMerge
)

// ResultInfo is the per-operator, per-group scratch cell. Its buffer
// length is fixed at Setup and must match the operator's
// declared intermediate size for the context's stage and IsSuperTable flag.
type ResultInfo struct {
	Initialized bool
	Complete    bool
	HasResult   bool
	NumOfRes    int64
	InterBuf    []byte
}

// Reset clears the cell back to its pre-Setup state while keeping the
// allocated InterBuf capacity, so a ResultInfo can be reused across groups
// without reallocating.
func (r *ResultInfo) Reset(bufLen int) {
	r.Initialized = false
	r.Complete = false
	r.HasResult = false
	r.NumOfRes = 0
	if cap(r.InterBuf) < bufLen {
		r.InterBuf = make([]byte, bufLen)
	} else {
		r.InterBuf = r.InterBuf[:bufLen]
		for i := range r.InterBuf {
			r.InterBuf[i] = 0
		}
	}
}

// TagContext is a sibling evaluation context whose value must be carried
// alongside a selected row — e.g. the tag columns that travel with a chosen
// min/max/top-k row. Tag contexts are modeled as labels.Label-shaped
// name/value pairs plus the arbitrary-width payload actually carried.
//
// Pending holds the tag value for the row currently being scanned, updated
// by the caller before each StepRow/StepBlock call; Value holds the
// committed value of the most recently selected row. A selecting operator
// calls Commit when it accepts a new row as its current extremum/endpoint.
//
// Outputs is the multi-row counterpart to Value: a selectivity operator
// with more than one output row (top/bottom-k) populates one entry per
// output row at Finalize, parallel to Context.PtsOutput, instead of
// driving Value forward one row at a time.
type TagContext struct {
	Label   labels.Label
	Pending []byte
	Value   []byte
	Outputs [][]byte
	ValType scalar.Type
}

// Commit copies Pending into Value, the row just having been selected.
func (tc *TagContext) Commit() {
	if cap(tc.Value) < len(tc.Pending) {
		tc.Value = make([]byte, len(tc.Pending))
	} else {
		tc.Value = tc.Value[:len(tc.Pending)]
	}
	copy(tc.Value, tc.Pending)
}

// commitTagContexts drives every sibling tag context forward: the row that
// just produced a new selected extremum/endpoint.
func (ctx *Context) commitTagContexts() {
	for _, tc := range ctx.TagContexts {
		tc.Commit()
	}
}

// Context is the per-invocation state passed to every operator hook.
type Context struct {
	// Size is the row count in the current block.
	Size int

	// Input addresses the input column: a byte slice of Size*InputBytes
	// bytes, InputBytes the element stride, InputType its scalar type.
	Input      []byte
	InputBytes int
	InputType  scalar.Type

	// Output is the destination buffer for the final/intermediate value.
	Output      []byte
	OutputBytes int
	OutputType  scalar.Type

	// PtsOutput is the parallel timestamp output array diff/top-k write
	// into alongside Output.
	PtsOutput []int64

	HasNull bool
	PreAgg  scalar.PreAgg

	// TsList is the parallel array of row timestamps; non-nil whenever the
	// operator's capability mask includes NeedTS.
	TsList []int64

	Order Order
	Stage Stage

	// TagContexts are driven forward whenever a selecting operator updates
	// its chosen row.
	TagContexts []*TagContext

	// Params is operator-specific scratch: top-k limit, percentile ratio,
	// interpolation anchors, the cached "last value" for diff, etc.
	Params [4]float64

	// GroupID identifies the group (e.g. a single table, or a super-table
	// partition) this context belongs to; used as the result-cache key
	// prefix and as the owner of carried tag contexts.
	GroupID string

	// WindowStart and WindowEnd are the query's nominal start/end
	// timestamps, consulted by window-anchored operators (twa) to close
	// their leading and trailing segments. Unused by operators that don't
	// need them.
	WindowStart int64
	WindowEnd   int64

	// IsSuperTable drives GetResultDataInfo's widening rule.
	IsSuperTable bool

	// ValueType is the operator's narrow final value type (e.g. the int64
	// or float64 sum/avg would emit for a single-table query), fixed for
	// the context's lifetime regardless of stage or IsSuperTable. Stages
	// that widen to a binary snapshot (InputType/OutputType == TypeBytes)
	// still need this to know which family the packed bytes belong to.
	ValueType scalar.Type

	Result ResultInfo

	// Aux holds operator-private working state that cannot be expressed as
	// flat bytes (a histogram, a sorted top-k slice, a scratch file
	// handle). The binary InterBuf remains the bit-exact cross-node
	// transport form; Aux is rebuilt from it on demand and is never
	// serialized directly.
	Aux any
}

// Order is a local alias of scalar.Order kept for readability at call sites
// that only touch the aggregation package.
type Order = scalar.Order

const (
	Asc  = scalar.Asc
	Desc = scalar.Desc
)
