package agg

import "github.com/tsengine/aggwheel/pkg/scalar"

// diffOp implements diff: a multi-output operator emitting, for every
// non-null row after the first, the difference from the previous non-null
// value, paired with the current row's timestamp.
// It is scan-only and streams across StepBlock calls by keeping the running
// previous value in ctx.Params[0] and a has-previous flag in ctx.Params[1].
// diff preserves the input type: an integer column's differences stay
// integer-width rather than widening to float64.
type diffOp struct{}

// isIntegerFamily reports whether t is one of the fixed-width integer types
// diff writes through writeIntWidth rather than the float64 path.
func isIntegerFamily(t scalar.Type) bool {
	switch t {
	case scalar.TypeInt8, scalar.TypeInt16, scalar.TypeInt32, scalar.TypeInt64, scalar.TypeTimestamp:
		return true
	default:
		return false
	}
}

func init() {
	register(&Descriptor{
		Name:       "diff",
		ID:         Diff,
		DistID:     Diff,
		Capability: MO | Stream | NeedTS,
		Compat:     CompatStackable,
		New:        func() Operator { return &diffOp{} },
		DataInfo: func(inType scalar.Type, inBytes int, param int, isSuperTable bool) (DataInfo, error) {
			if isSuperTable {
				return DataInfo{}, errorsUnsupportedSuperTable("diff")
			}
			return DataInfo{OutType: inType, OutBytes: inBytes, InterBytes: interBytesWithHeader(inBytes)}, nil
		},
	})
}

func (diffOp) Setup(ctx *Context) bool {
	if ctx.Result.Initialized {
		return false
	}
	ctx.Result.Reset(0)
	ctx.Params[1] = 0
	ctx.Result.Initialized = true
	return true
}

// writeDiff writes v-last into dst, sized ctx.InputBytes (OutBytes mirrors
// it per DataInfo), using the integer path for integer-family columns and
// the float64 path otherwise.
func (diffOp) writeDiff(ctx *Context, dst []byte, v, last float64) {
	if isIntegerFamily(ctx.InputType) {
		writeIntWidth(dst, ctx.InputType, int64(v)-int64(last))
		return
	}
	writeFloat64(dst, v-last)
}

func (o diffOp) StepBlock(ctx *Context) {
	out := 0
	hasLast := ctx.Params[1] != 0
	last := ctx.Params[0]
	w := ctx.InputBytes
	for i := 0; i < ctx.Size; i++ {
		v, isNull := readFloat(ctx, i)
		if isNull {
			continue
		}
		if hasLast {
			o.writeDiff(ctx, ctx.Output[out*w:out*w+w], v, last)
			if ctx.PtsOutput != nil && out < len(ctx.PtsOutput) {
				ctx.PtsOutput[out] = ctx.TsList[i]
			}
			out++
			ctx.Result.HasResult = true
		}
		last, hasLast = v, true
	}
	ctx.Params[0] = last
	if hasLast {
		ctx.Params[1] = 1
	}
	ctx.Result.NumOfRes += int64(out)
}

func (o diffOp) StepRow(ctx *Context, i int) {
	v, isNull := readFloat(ctx, i)
	if isNull {
		return
	}
	hasLast := ctx.Params[1] != 0
	if hasLast {
		o.writeDiff(ctx, ctx.Output[:ctx.InputBytes], v, ctx.Params[0])
		if ctx.PtsOutput != nil && len(ctx.PtsOutput) > 0 {
			ctx.PtsOutput[0] = ctx.TsList[i]
		}
		ctx.Result.HasResult = true
		ctx.Result.NumOfRes++
	}
	ctx.Params[0] = v
	ctx.Params[1] = 1
}

func (diffOp) NextStage(ctx *Context) {}

func (diffOp) Finalize(ctx *Context) {
	if ctx.Result.HasResult {
		ctx.Result.Complete = true
	}
}

func (diffOp) FirstMerge(ctx *Context)  {}
func (diffOp) SecondMerge(ctx *Context) {}

func (diffOp) BlockLoadNeed(ctx *Context, colID int) LoadNeed { return LoadAll }
