package agg

import "github.com/tsengine/aggwheel/pkg/scalar"

// avgOp implements the average aggregate. The intermediate layout is
// {runningSum float64, runningCount int64} regardless of super-table mode
// — presence of any data is signaled by count > 0, so no extra data-set
// flag is required. The wire layout is [8-byte sum][8-byte count].
type avgOp struct{}

const avgInterBytes = 16

func init() {
	register(&Descriptor{
		Name:       "avg",
		ID:         Avg,
		DistID:     Avg,
		Capability: SO | Stream | Metric,
		Compat:     CompatStackable,
		New:        func() Operator { return &avgOp{} },
		DataInfo: func(inType scalar.Type, inBytes int, param int, isSuperTable bool) (DataInfo, error) {
			if !inType.IsNumeric() {
				return DataInfo{}, ErrInvalidType(inType, Avg)
			}
			if isSuperTable {
				return DataInfo{OutType: scalar.TypeBytes, OutBytes: avgInterBytes, InterBytes: avgInterBytes}, nil
			}
			return DataInfo{OutType: scalar.TypeFloat64, OutBytes: 8, InterBytes: avgInterBytes}, nil
		},
	})
}

func (avgOp) sum(ctx *Context) float64   { return readFloat64(ctx.Result.InterBuf[0:8]) }
func (avgOp) count(ctx *Context) int64   { return readInt64(ctx.Result.InterBuf[8:16]) }
func (avgOp) set(ctx *Context, sum float64, count int64) {
	writeFloat64(ctx.Result.InterBuf[0:8], sum)
	writeInt64(ctx.Result.InterBuf[8:16], count)
}

func (avgOp) Setup(ctx *Context) bool {
	if ctx.Result.Initialized {
		return false
	}
	ctx.Result.Reset(avgInterBytes)
	ctx.Result.Initialized = true
	return true
}

func (o avgOp) snapshot(ctx *Context) {
	if ctx.IsSuperTable {
		copy(ctx.Output[:avgInterBytes], ctx.Result.InterBuf)
	}
}

func (o avgOp) StepBlock(ctx *Context) {
	sum, count := o.sum(ctx), o.count(ctx)
	if ctx.PreAgg.IsSet {
		delta := ctx.PreAgg.SumFloat
		if !isFloatFamily(ctx) {
			delta = float64(ctx.PreAgg.SumInt)
		}
		sum += delta
		count += int64(ctx.Size) - ctx.PreAgg.NullCount
	} else {
		for i := 0; i < ctx.Size; i++ {
			v, isNull := readFloat(ctx, i)
			if isNull {
				continue
			}
			sum += v
			count++
		}
	}
	o.set(ctx, sum, count)
	if count > 0 {
		ctx.Result.HasResult = true
	}
	o.snapshot(ctx)
}

func (o avgOp) StepRow(ctx *Context, i int) {
	v, isNull := readFloat(ctx, i)
	if isNull {
		return
	}
	sum, count := o.sum(ctx), o.count(ctx)
	o.set(ctx, sum+v, count+1)
	ctx.Result.HasResult = true
	o.snapshot(ctx)
}

func (avgOp) NextStage(ctx *Context) {}

func (o avgOp) Finalize(ctx *Context) {
	count := o.count(ctx)
	if count == 0 {
		writeNullSentinel(ctx.Output[:8], scalar.TypeFloat64)
		return
	}
	writeFloat64(ctx.Output[:8], o.sum(ctx)/float64(count))
	ctx.Result.Complete = true
}

func (o avgOp) merge(ctx *Context) {
	assertMergeInput(ctx)
	sum, count := o.sum(ctx), o.count(ctx)
	for i := 0; i < ctx.Size; i++ {
		off := i * ctx.InputBytes
		snap := ctx.Input[off : off+ctx.InputBytes]
		snapCount := readInt64(snap[8:16])
		if snapCount == 0 {
			continue
		}
		sum += readFloat64(snap[0:8])
		count += snapCount
	}
	o.set(ctx, sum, count)
	if count > 0 {
		ctx.Result.HasResult = true
	}
	o.snapshot(ctx)
}

func (o avgOp) FirstMerge(ctx *Context)  { o.merge(ctx) }
func (o avgOp) SecondMerge(ctx *Context) { o.merge(ctx) }

func (avgOp) BlockLoadNeed(ctx *Context, colID int) LoadNeed {
	if ctx.PreAgg.IsSet {
		return LoadNone
	}
	return LoadFieldsOnly
}
