package agg

import (
	"math"

	"github.com/tsengine/aggwheel/pkg/scalar"
)

// minmaxOp implements both min and max: they differ only in comparison
// direction and in the seed value used at Setup. Max seeds with -Inf and
// min with +Inf so the first non-null value always wins the comparison.
type minmaxOp struct {
	isMax bool
}

const minmaxNarrowBytes = 8

func init() {
	register(&Descriptor{
		Name: "min", ID: Min, DistID: Min,
		Capability: SO | Stream | Metric | Selectivity,
		Compat:     CompatStackable,
		New:        func() Operator { return &minmaxOp{isMax: false} },
		DataInfo:   minmaxDataInfo,
	})
	register(&Descriptor{
		Name: "max", ID: Max, DistID: Max,
		Capability: SO | Stream | Metric | Selectivity,
		Compat:     CompatStackable,
		New:        func() Operator { return &minmaxOp{isMax: true} },
		DataInfo:   minmaxDataInfo,
	})
}

func minmaxDataInfo(inType scalar.Type, inBytes int, param int, isSuperTable bool) (DataInfo, error) {
	if !inType.IsNumeric() {
		return DataInfo{}, ErrInvalidType(inType, Min)
	}
	return widenedDataInfo(inType, minmaxNarrowBytes, minmaxNarrowBytes, dataSetFlagBytes, isSuperTable), nil
}

func (o *minmaxOp) seed() float64 {
	if o.isMax {
		return math.Inf(-1)
	}
	return math.Inf(1)
}

func (o *minmaxOp) Setup(ctx *Context) bool {
	if ctx.Result.Initialized {
		return false
	}
	n := minmaxNarrowBytes
	if ctx.IsSuperTable {
		n += dataSetFlagBytes
	}
	ctx.Result.Reset(n)
	writeFloat64(ctx.Result.InterBuf[:8], o.seed())
	ctx.Result.Initialized = true
	return true
}

func (o *minmaxOp) better(candidate, current float64) bool {
	if o.isMax {
		return candidate > current // strict: first occurrence wins ties
	}
	return candidate < current
}

func (o *minmaxOp) accept(ctx *Context, v float64) {
	writeFloat64(ctx.Result.InterBuf[:8], v)
	ctx.Result.HasResult = true
	ctx.commitTagContexts()
}

func (o *minmaxOp) snapshot(ctx *Context) {
	if !ctx.IsSuperTable {
		return
	}
	copy(ctx.Output, ctx.Result.InterBuf[:8])
	ctx.Output[8] = flagByte(ctx.Result.HasResult)
}

func (o *minmaxOp) StepBlock(ctx *Context) {
	current := readFloat64(ctx.Result.InterBuf[:8])
	if ctx.PreAgg.IsSet {
		candidate := ctx.PreAgg.MinFloat
		if o.isMax {
			candidate = ctx.PreAgg.MaxFloat
		}
		if !isFloatFamily(ctx) {
			candidate = float64(ctx.PreAgg.MinInt)
			if o.isMax {
				candidate = float64(ctx.PreAgg.MaxInt)
			}
		}
		if o.better(candidate, current) {
			current = candidate
			o.accept(ctx, current)
		}
		o.snapshot(ctx)
		return
	}
	for i := 0; i < ctx.Size; i++ {
		v, isNull := readFloat(ctx, i)
		if isNull {
			continue
		}
		if o.better(v, current) {
			current = v
			o.accept(ctx, current)
		}
	}
	o.snapshot(ctx)
}

func (o *minmaxOp) StepRow(ctx *Context, i int) {
	v, isNull := readFloat(ctx, i)
	if isNull {
		return
	}
	current := readFloat64(ctx.Result.InterBuf[:8])
	if o.better(v, current) {
		o.accept(ctx, v)
	}
	o.snapshot(ctx)
}

func (minmaxOp) NextStage(ctx *Context) {}

func (o *minmaxOp) Finalize(ctx *Context) {
	if !ctx.Result.HasResult {
		writeNullSentinel(ctx.Output[:minmaxNarrowBytes], ctx.ValueType)
		return
	}
	v := readFloat64(ctx.Result.InterBuf[:8])
	writeValueAs(ctx.Output[:minmaxNarrowBytes], ctx.ValueType, v)
	ctx.Result.Complete = true
}

func (o *minmaxOp) merge(ctx *Context) {
	assertMergeInput(ctx)
	current := readFloat64(ctx.Result.InterBuf[:8])
	for i := 0; i < ctx.Size; i++ {
		off := i * ctx.InputBytes
		snap := ctx.Input[off : off+ctx.InputBytes]
		if snap[8] == 0 {
			continue
		}
		v := readFloat64(snap[:8])
		if o.better(v, current) {
			current = v
			o.accept(ctx, current)
		}
	}
	o.snapshot(ctx)
}

func (o *minmaxOp) FirstMerge(ctx *Context)  { o.merge(ctx) }
func (o *minmaxOp) SecondMerge(ctx *Context) { o.merge(ctx) }

func (o *minmaxOp) BlockLoadNeed(ctx *Context, colID int) LoadNeed {
	if ctx.PreAgg.IsSet {
		return LoadNone
	}
	return LoadFieldsOnly
}

// writeValueAs writes float64 v into dst using the encoding appropriate for
// t, preserving integer identity for the integer family.
func writeValueAs(dst []byte, t scalar.Type, v float64) {
	if t.IsFloat() {
		writeFloat64(dst, v)
		return
	}
	writeInt64(dst, int64(v))
}
