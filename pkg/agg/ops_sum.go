package agg

import "github.com/tsengine/aggwheel/pkg/scalar"

// sumOp implements the sum aggregate. It dispatches on the column's value
// family: integers accumulate into a signed 64-bit accumulator, floats into
// a 64-bit float accumulator. The intermediate's first
// 8 bytes are a union holding whichever accumulator the family selects, so
// integer sums never lose identity through a float64 round trip.
type sumOp struct{}

const sumNarrowBytes = 8

func init() {
	register(&Descriptor{
		Name:       "sum",
		ID:         Sum,
		DistID:     Sum,
		Capability: SO | Stream | Metric,
		Compat:     CompatStackable,
		New:        func() Operator { return &sumOp{} },
		DataInfo: func(inType scalar.Type, inBytes int, param int, isSuperTable bool) (DataInfo, error) {
			if !inType.IsNumeric() {
				return DataInfo{}, ErrInvalidType(inType, Sum)
			}
			out := scalar.TypeInt64
			if inType.IsFloat() {
				out = scalar.TypeFloat64
			}
			return widenedDataInfo(out, sumNarrowBytes, sumNarrowBytes, dataSetFlagBytes, isSuperTable), nil
		},
	})
}

func (sumOp) Setup(ctx *Context) bool {
	if ctx.Result.Initialized {
		return false
	}
	n := sumNarrowBytes
	if ctx.IsSuperTable {
		n += dataSetFlagBytes
	}
	ctx.Result.Reset(n)
	ctx.Result.Initialized = true
	return true
}

func (sumOp) addInt(ctx *Context, delta int64) {
	writeInt64(ctx.Result.InterBuf[:8], readInt64(ctx.Result.InterBuf[:8])+delta)
}

func (sumOp) addFloat(ctx *Context, delta float64) {
	writeFloat64(ctx.Result.InterBuf[:8], readFloat64(ctx.Result.InterBuf[:8])+delta)
}

func (o sumOp) StepBlock(ctx *Context) {
	if ctx.PreAgg.IsSet {
		if isFloatFamily(ctx) {
			o.addFloat(ctx, ctx.PreAgg.SumFloat)
		} else {
			o.addInt(ctx, ctx.PreAgg.SumInt)
		}
		if ctx.Size-int(ctx.PreAgg.NullCount) > 0 {
			ctx.Result.HasResult = true
		}
	} else if isFloatFamily(ctx) {
		var sum float64
		var any bool
		for i := 0; i < ctx.Size; i++ {
			v, isNull := readFloat(ctx, i)
			if isNull {
				continue
			}
			sum += v
			any = true
		}
		o.addFloat(ctx, sum)
		if any {
			ctx.Result.HasResult = true
		}
	} else {
		var sum int64
		var any bool
		for i := 0; i < ctx.Size; i++ {
			v, isNull := readInt(ctx, i)
			if isNull {
				continue
			}
			sum += v
			any = true
		}
		o.addInt(ctx, sum)
		if any {
			ctx.Result.HasResult = true
		}
	}
	if ctx.IsSuperTable {
		o.writeSnapshot(ctx)
	}
}

func (o sumOp) StepRow(ctx *Context, i int) {
	if isFloatFamily(ctx) {
		v, isNull := readFloat(ctx, i)
		if isNull {
			return
		}
		o.addFloat(ctx, v)
	} else {
		v, isNull := readInt(ctx, i)
		if isNull {
			return
		}
		o.addInt(ctx, v)
	}
	ctx.Result.HasResult = true
	if ctx.IsSuperTable {
		o.writeSnapshot(ctx)
	}
}

func (sumOp) writeSnapshot(ctx *Context) {
	copy(ctx.Output, ctx.Result.InterBuf)
	ctx.Output[8] = flagByte(ctx.Result.HasResult)
}

func (sumOp) NextStage(ctx *Context) {}

func (o sumOp) Finalize(ctx *Context) {
	if !ctx.Result.HasResult {
		writeNullSentinel(ctx.Output[:8], ctx.ValueType)
		return
	}
	copy(ctx.Output[:8], ctx.Result.InterBuf[:8])
	ctx.Result.Complete = true
}

func (o sumOp) merge(ctx *Context) {
	assertMergeInput(ctx)
	for i := 0; i < ctx.Size; i++ {
		off := i * ctx.InputBytes
		snap := ctx.Input[off : off+ctx.InputBytes]
		if snap[8] == 0 {
			continue
		}
		if isFloatFamily(ctx) {
			o.addFloat(ctx, readFloat64(snap[:8]))
		} else {
			o.addInt(ctx, readInt64(snap[:8]))
		}
		ctx.Result.HasResult = true
	}
	if ctx.IsSuperTable {
		o.writeSnapshot(ctx)
	}
}

func (o sumOp) FirstMerge(ctx *Context)  { o.merge(ctx) }
func (o sumOp) SecondMerge(ctx *Context) { o.merge(ctx) }

func (sumOp) BlockLoadNeed(ctx *Context, colID int) LoadNeed {
	if ctx.PreAgg.IsSet {
		return LoadNone
	}
	return LoadFieldsOnly
}

// flagByte converts a bool to the canonical 1-byte "data-set"/"has-result"
// flag used across every widened super-table intermediate layout.
func flagByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
