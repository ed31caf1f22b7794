package agg

import (
	"math"

	"github.com/tsengine/aggwheel/pkg/scalar"
)

// spreadOp implements spread = max - min over all non-null values.
// Intermediate is {min, max, has-result} with min seeded +Inf, max -Inf.
// Second-merge uses ctx.Params[0] as the running min and ctx.Params[3] as
// the running max.
type spreadOp struct {
	// elapsed computes max(ts) - min(ts) instead of max(v) - min(v),
	// reusing this exact state layout.
	elapsed bool
}

const spreadInterBytes = 8 + 8 + 1

func init() {
	register(&Descriptor{
		Name:       "spread",
		ID:         Spread,
		DistID:     Spread,
		Capability: SO | Metric,
		Compat:     CompatStackable,
		New:        func() Operator { return &spreadOp{} },
		DataInfo: func(inType scalar.Type, inBytes int, param int, isSuperTable bool) (DataInfo, error) {
			if isSuperTable {
				return DataInfo{OutType: scalar.TypeBytes, OutBytes: spreadInterBytes, InterBytes: spreadInterBytes}, nil
			}
			return DataInfo{OutType: scalar.TypeFloat64, OutBytes: 8, InterBytes: spreadInterBytes}, nil
		},
	})
	register(&Descriptor{
		Name:       "elapsed",
		ID:         Elapsed,
		DistID:     Elapsed,
		Capability: SO | Metric | NeedTS,
		Compat:     CompatStackable,
		New:        func() Operator { return &spreadOp{elapsed: true} },
		DataInfo: func(inType scalar.Type, inBytes int, param int, isSuperTable bool) (DataInfo, error) {
			if isSuperTable {
				return DataInfo{OutType: scalar.TypeBytes, OutBytes: spreadInterBytes, InterBytes: spreadInterBytes}, nil
			}
			return DataInfo{OutType: scalar.TypeInt64, OutBytes: 8, InterBytes: spreadInterBytes}, nil
		},
	})
}

func (spreadOp) Setup(ctx *Context) bool {
	if ctx.Result.Initialized {
		return false
	}
	ctx.Result.Reset(spreadInterBytes)
	writeFloat64(ctx.Result.InterBuf[0:8], math.Inf(1))
	writeFloat64(ctx.Result.InterBuf[8:16], math.Inf(-1))
	ctx.Result.Initialized = true
	return true
}

func (o *spreadOp) min(ctx *Context) float64 { return readFloat64(ctx.Result.InterBuf[0:8]) }
func (o *spreadOp) max(ctx *Context) float64 { return readFloat64(ctx.Result.InterBuf[8:16]) }

func (o *spreadOp) update(ctx *Context, v float64) {
	if v < o.min(ctx) {
		writeFloat64(ctx.Result.InterBuf[0:8], v)
	}
	if v > o.max(ctx) {
		writeFloat64(ctx.Result.InterBuf[8:16], v)
	}
	ctx.Result.InterBuf[16] = 1
	ctx.Result.HasResult = true
}

func (o *spreadOp) valueAt(ctx *Context, i int) (float64, bool) {
	if o.elapsed {
		return float64(ctx.TsList[i]), false
	}
	return readFloat(ctx, i)
}

func (o *spreadOp) snapshot(ctx *Context) {
	if ctx.IsSuperTable {
		copy(ctx.Output[:spreadInterBytes], ctx.Result.InterBuf[:spreadInterBytes])
	}
}

func (o *spreadOp) StepBlock(ctx *Context) {
	if ctx.PreAgg.IsSet && !o.elapsed {
		if int(ctx.PreAgg.NullCount) < ctx.Size {
			mn, mx := ctx.PreAgg.MinFloat, ctx.PreAgg.MaxFloat
			if !isFloatFamily(ctx) {
				mn, mx = float64(ctx.PreAgg.MinInt), float64(ctx.PreAgg.MaxInt)
			}
			o.update(ctx, mn)
			o.update(ctx, mx)
		}
		o.snapshot(ctx)
		return
	}
	for i := 0; i < ctx.Size; i++ {
		v, isNull := o.valueAt(ctx, i)
		if isNull {
			continue
		}
		o.update(ctx, v)
	}
	o.snapshot(ctx)
}

func (o *spreadOp) StepRow(ctx *Context, i int) {
	v, isNull := o.valueAt(ctx, i)
	if isNull {
		return
	}
	o.update(ctx, v)
	o.snapshot(ctx)
}

func (spreadOp) NextStage(ctx *Context) {}

func (o *spreadOp) Finalize(ctx *Context) {
	if o.elapsed {
		if !ctx.Result.HasResult {
			writeNullSentinel(ctx.Output[:8], scalar.TypeInt64)
			return
		}
		writeInt64(ctx.Output[:8], int64(o.max(ctx)-o.min(ctx)))
		ctx.Result.Complete = true
		return
	}
	if !ctx.Result.HasResult {
		writeNullSentinel(ctx.Output[:8], scalar.TypeFloat64)
		return
	}
	writeFloat64(ctx.Output[:8], o.max(ctx)-o.min(ctx))
	ctx.Result.Complete = true
}

func (o *spreadOp) merge(ctx *Context) {
	assertMergeInput(ctx)
	runningMin, runningMax := ctx.Params[0], ctx.Params[3]
	if !ctx.Result.HasResult {
		runningMin, runningMax = math.Inf(1), math.Inf(-1)
	}
	for i := 0; i < ctx.Size; i++ {
		off := i * ctx.InputBytes
		snap := ctx.Input[off : off+ctx.InputBytes]
		if snap[16] == 0 {
			continue
		}
		mn, mx := readFloat64(snap[0:8]), readFloat64(snap[8:16])
		if mn < runningMin {
			runningMin = mn
		}
		if mx > runningMax {
			runningMax = mx
		}
		ctx.Result.HasResult = true
	}
	ctx.Params[0], ctx.Params[3] = runningMin, runningMax
	writeFloat64(ctx.Result.InterBuf[0:8], runningMin)
	writeFloat64(ctx.Result.InterBuf[8:16], runningMax)
	if ctx.Result.HasResult {
		ctx.Result.InterBuf[16] = 1
	}
	o.snapshot(ctx)
}

func (o *spreadOp) FirstMerge(ctx *Context)  { o.merge(ctx) }
func (o *spreadOp) SecondMerge(ctx *Context) { o.merge(ctx) }

func (spreadOp) BlockLoadNeed(ctx *Context, colID int) LoadNeed {
	if ctx.PreAgg.IsSet {
		return LoadNone
	}
	return LoadFieldsOnly
}
