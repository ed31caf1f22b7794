package agg

import "github.com/tsengine/aggwheel/pkg/scalar"

// dataSetFlagBytes is the width of the "data-set" byte appended after a
// raw value in a super-table intermediate.
const dataSetFlagBytes = 1

// tsFlagBytes is the width of the 8-byte timestamp + 1-byte has-result
// trailer used by the first/last-dist binary layout.
const tsFlagBytes = 8 + 1

// widenedDataInfo implements the "super-table queries widen to a binary
// intermediate, others stay narrow" rule for sum/min/max/first/last/
// last-row; avg, spread, apercentile, top/bottom and twa build their
// widened DataInfo themselves.
func widenedDataInfo(narrowType scalar.Type, narrowBytes, interBytesNarrow, extraWideBytes int, isSuperTable bool) DataInfo {
	if isSuperTable {
		wide := interBytesNarrow + extraWideBytes
		return DataInfo{OutType: scalar.TypeBytes, OutBytes: wide, InterBytes: wide}
	}
	return DataInfo{OutType: narrowType, OutBytes: narrowBytes, InterBytes: interBytesNarrow}
}

// assertMergeInput panics unless a second-merge context carries the binary
// snapshot type. A mismatch is a programming error in the reduction driver,
// not a data error, so it is fatal rather than returned.
func assertMergeInput(ctx *Context) {
	if ctx.Stage == StageSecondMerge && ctx.InputType != scalar.TypeBytes {
		panic("agg: second-merge input must be the binary intermediate type")
	}
}

// isFloatFamily reports whether the operator's narrow value type belongs to
// the float family, used to dispatch sum/avg accumulation across every
// stage, including merge stages where ctx.InputType/OutputType read as the
// binary snapshot type rather than the original column type.
func isFloatFamily(ctx *Context) bool {
	return ctx.ValueType.IsFloat()
}
