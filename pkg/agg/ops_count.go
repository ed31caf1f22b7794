package agg

import "github.com/tsengine/aggwheel/pkg/scalar"

// countOp implements the count aggregate: number of non-null rows. Count
// never produces a null result — an empty group still emits 0 — so Setup
// marks HasResult immediately.
type countOp struct{}

const countInterBytes = 8

func init() {
	register(&Descriptor{
		Name:       "count",
		ID:         Count,
		DistID:     Count,
		Capability: SO | Stream | Metric,
		Compat:     CompatStackable,
		New:        func() Operator { return &countOp{} },
		DataInfo: func(inType scalar.Type, inBytes int, param int, isSuperTable bool) (DataInfo, error) {
			return DataInfo{OutType: scalar.TypeInt64, OutBytes: 8, InterBytes: countInterBytes}, nil
		},
	})
}

func (countOp) Setup(ctx *Context) bool {
	if ctx.Result.Initialized {
		return false
	}
	ctx.Result.Reset(countInterBytes)
	ctx.Result.Initialized = true
	ctx.Result.HasResult = true
	return true
}

func (countOp) running(ctx *Context) int64 { return readInt64(ctx.Result.InterBuf) }
func (countOp) setRunning(ctx *Context, v int64) {
	writeInt64(ctx.Result.InterBuf, v)
	ctx.Result.NumOfRes = v
}

func (o countOp) StepBlock(ctx *Context) {
	running := o.running(ctx)
	if ctx.PreAgg.IsSet {
		running += int64(ctx.Size) - ctx.PreAgg.NullCount
	} else {
		for i := 0; i < ctx.Size; i++ {
			if _, isNull := readFloat(ctx, i); !isNull {
				running++
			}
		}
	}
	o.setRunning(ctx, running)
}

func (o countOp) StepRow(ctx *Context, i int) {
	if _, isNull := readFloat(ctx, i); !isNull {
		o.setRunning(ctx, o.running(ctx)+1)
	}
}

func (countOp) NextStage(ctx *Context) {}

func (o countOp) Finalize(ctx *Context) {
	writeInt64(ctx.Output[:8], o.running(ctx))
	ctx.Result.Complete = true
}

func (o countOp) mergeAdd(ctx *Context) {
	assertMergeInput(ctx)
	running := o.running(ctx)
	for i := 0; i < ctx.Size; i++ {
		off := i * ctx.InputBytes
		running += readInt64(ctx.Input[off : off+8])
	}
	o.setRunning(ctx, running)
	ctx.Result.HasResult = true
}

func (o countOp) FirstMerge(ctx *Context)  { o.mergeAdd(ctx) }
func (o countOp) SecondMerge(ctx *Context) { o.mergeAdd(ctx) }

func (countOp) BlockLoadNeed(ctx *Context, colID int) LoadNeed {
	if ctx.PreAgg.IsSet {
		return LoadNone
	}
	return LoadFieldsOnly
}
