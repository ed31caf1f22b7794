package agg

import (
	"github.com/pkg/errors"

	"github.com/tsengine/aggwheel/pkg/scalar"
)

// ID identifies one of the 28 fixed operators. Numbering is stable: it is
// serialized as part of distributed-reduction wire state, so it must never
// be renumbered once assigned.
type ID uint8

const (
	Ts ID = iota
	Count
	Sum
	Avg
	Min
	Max
	First
	Last
	FirstDist
	LastDist
	LastRow
	Spread
	Percentile
	Apercentile
	Stddev
	Leastsquares
	Top
	Bottom
	Twa
	Diff
	TsComp
	Interp
	Arithmetic
	Projection
	Tag
	Elapsed
	opReserved26
	opReserved27
)

const numOperators = 28

// Capability is a bitmask of operator traits.
type Capability uint16

const (
	// SO marks a single-output operator.
	SO Capability = 1 << iota
	// MO marks a multi-output operator (top/bottom, diff).
	MO
	// Stream marks an operator that supports streaming evaluation.
	Stream
	// Metric marks an operator applicable to super-table queries.
	Metric
	// NeedTS marks an operator that requires the primary timestamp column.
	NeedTS
	// Selectivity marks a "selecting" operator that may drive tag-context
	// copying when it updates its chosen row.
	Selectivity
)

// CompatClass values from the operator compatibility matrix: 1 means
// stackable with same-class operators, -1 means exclusive (must appear
// alone in a query), 2 is the tag class (stackable with selectivity
// operators but not plain scalar aggregates), 4 is the last_row class,
// 5 is the interp class.
type CompatClass int8

const (
	CompatStackable CompatClass = 1
	CompatExclusive CompatClass = -1
	CompatTag       CompatClass = 2
	CompatLastRow   CompatClass = 4
	CompatInterp    CompatClass = 5
)

// LoadNeed is the storage-load hint returned by BlockLoadNeed.
type LoadNeed uint8

const (
	LoadNone LoadNeed = iota
	LoadFieldsOnly
	LoadAll
)

// Operator is the capability interface every aggregation/selection/
// projection operator implements. Hooks must be non-blocking; a single
// Operator value is invoked for exactly one (Context, group) pair across
// its lifetime (Setup..Finalize).
type Operator interface {
	// Setup initializes ctx.Result and the intermediate buffer; returns
	// false if the cell was already initialized.
	Setup(ctx *Context) bool
	// StepBlock consumes ctx.Size rows in one batch.
	StepBlock(ctx *Context)
	// StepRow consumes a single row at index i.
	StepRow(ctx *Context, i int)
	// NextStage advances a multi-pass operator (only stddev uses this).
	NextStage(ctx *Context)
	// Finalize produces the user-visible output, writing the null
	// sentinel if ctx.Result.HasResult was never set.
	Finalize(ctx *Context)
	// FirstMerge consumes binary intermediate buffers produced by primary
	// scans at one node.
	FirstMerge(ctx *Context)
	// SecondMerge consumes intermediate buffers arriving from multiple
	// nodes at the coordinator.
	SecondMerge(ctx *Context)
	// BlockLoadNeed tells the storage layer how much of the block must be
	// materialized to answer this operator for the given column.
	BlockLoadNeed(ctx *Context, colID int) LoadNeed
}

// DataInfo is the output of GetResultDataInfo: the output and intermediate
// shapes an operator produces for a given input type/bytes/param/
// super-table combination.
type DataInfo struct {
	OutType    scalar.Type
	OutBytes   int
	InterBytes int
}

// Descriptor is a fixed registry entry: an operator id, its distributed
// partner id, a capability mask, a compatibility class, a factory for a
// fresh Operator value, and the output-size estimator required by
// GetResultDataInfo.
type Descriptor struct {
	Name       string
	ID         ID
	DistID     ID
	Capability Capability
	Compat     CompatClass
	New        func() Operator
	DataInfo   func(inType scalar.Type, inBytes int, param int, isSuperTable bool) (DataInfo, error)
}

var registry [numOperators]*Descriptor

func register(d *Descriptor) {
	if registry[d.ID] != nil {
		panic("agg: duplicate operator id " + d.Name)
	}
	registry[d.ID] = d
}

// Lookup returns the fixed descriptor for id, or nil if id is unassigned.
func Lookup(id ID) *Descriptor {
	if int(id) >= numOperators {
		return nil
	}
	return registry[id]
}

// ErrInvalidSQL is returned by GetResultDataInfo for an unsupported
// (type, operator) combination.
var ErrInvalidSQL = errors.New("invalid sql: unsupported aggregate type/operator combination")

// errorsUnsupportedSuperTable reports that an operator without super-table
// support (stddev, percentile, leastsquares, diff, interp, arithmetic) was
// asked to run in super-table mode.
func errorsUnsupportedSuperTable(name string) error {
	return errors.Wrapf(ErrInvalidSQL, "operator %q does not support super-table mode", name)
}

// ErrInvalidType wraps ErrInvalidSQL with the offending (type, operator)
// pair for diagnostics.
func ErrInvalidType(t scalar.Type, id ID) error {
	name := "?"
	if d := Lookup(id); d != nil {
		name = d.Name
	}
	return errors.Wrapf(ErrInvalidSQL, "operator %q does not support column type %d", name, t)
}

// GetResultDataInfo computes (output type, output bytes, intermediate
// bytes) for a given (inType, inBytes, opID, param, isSuperTable)
// combination. Downstream serialization depends on this matching exactly.
func GetResultDataInfo(inType scalar.Type, inBytes int, id ID, param int, isSuperTable bool) (DataInfo, error) {
	d := Lookup(id)
	if d == nil {
		return DataInfo{}, errors.Wrapf(ErrInvalidSQL, "unknown operator id %d", id)
	}
	return d.DataInfo(inType, inBytes, param, isSuperTable)
}

// interBytesWithHeader returns the intermediate size for a pass-through
// operator: the output size plus the fixed ResultInfo header carried
// ahead of the value (Initialized/Complete/HasResult/NumOfRes).
const resultInfoHeaderBytes = 1 + 1 + 1 + 8 // three flags + numOfRes

func interBytesWithHeader(outBytes int) int {
	return outBytes + resultInfoHeaderBytes
}
