package agg

import "github.com/tsengine/aggwheel/pkg/scalar"

// firstLastOp implements first/last (single-table scan): first non-null
// stops a forward search, last non-null stops a backward search.
type firstLastOp struct {
	isLast bool
}

const firstLastNarrowBytes = 8

func init() {
	register(&Descriptor{
		Name: "first", ID: First, DistID: FirstDist,
		Capability: SO | Stream | Metric | Selectivity,
		Compat:     CompatStackable,
		New:        func() Operator { return &firstLastOp{isLast: false} },
		DataInfo:   firstLastDataInfo,
	})
	register(&Descriptor{
		Name: "last", ID: Last, DistID: LastDist,
		Capability: SO | Stream | Metric | Selectivity,
		Compat:     CompatStackable,
		New:        func() Operator { return &firstLastOp{isLast: true} },
		DataInfo:   firstLastDataInfo,
	})
}

func firstLastDataInfo(inType scalar.Type, inBytes int, param int, isSuperTable bool) (DataInfo, error) {
	return widenedDataInfo(inType, firstLastNarrowBytes, firstLastNarrowBytes, dataSetFlagBytes, isSuperTable), nil
}

func (o *firstLastOp) Setup(ctx *Context) bool {
	if ctx.Result.Initialized {
		return false
	}
	n := firstLastNarrowBytes
	if ctx.IsSuperTable {
		n += dataSetFlagBytes
	}
	ctx.Result.Reset(n)
	ctx.Result.Initialized = true
	return true
}

func (o *firstLastOp) snapshot(ctx *Context) {
	if !ctx.IsSuperTable {
		return
	}
	copy(ctx.Output, ctx.Result.InterBuf[:8])
	ctx.Output[8] = flagByte(ctx.Result.HasResult)
}

func (o *firstLastOp) scanOrder(ctx *Context) []int {
	idx := make([]int, ctx.Size)
	if (ctx.Order == Desc) == o.isLast {
		for i := range idx {
			idx[i] = i
		}
	} else {
		for i := range idx {
			idx[i] = ctx.Size - 1 - i
		}
	}
	return idx
}

func (o *firstLastOp) StepBlock(ctx *Context) {
	if ctx.Result.HasResult && !o.isLast {
		// first is satisfied by the earliest non-null row already found;
		// nothing later in scan order can beat it.
		return
	}
	for _, i := range o.scanOrder(ctx) {
		v, isNull := readFloat(ctx, i)
		if isNull {
			continue
		}
		writeFloat64(ctx.Result.InterBuf[:8], v)
		ctx.Result.HasResult = true
		ctx.commitTagContexts()
		// The first non-null in scan order is the answer for this block:
		// forward order for first, backward for last. Later blocks still
		// overwrite a previous block's last.
		break
	}
	o.snapshot(ctx)
}

func (o *firstLastOp) StepRow(ctx *Context, i int) {
	if ctx.Result.HasResult && !o.isLast {
		return
	}
	v, isNull := readFloat(ctx, i)
	if isNull {
		return
	}
	writeFloat64(ctx.Result.InterBuf[:8], v)
	ctx.Result.HasResult = true
	ctx.commitTagContexts()
	o.snapshot(ctx)
}

func (firstLastOp) NextStage(ctx *Context) {}

func (o *firstLastOp) Finalize(ctx *Context) {
	if !ctx.Result.HasResult {
		writeNullSentinel(ctx.Output[:firstLastNarrowBytes], ctx.ValueType)
		return
	}
	writeValueAs(ctx.Output[:firstLastNarrowBytes], ctx.ValueType, readFloat64(ctx.Result.InterBuf[:8]))
	ctx.Result.Complete = true
}

// first/last (single-table) are scan-only; the
// distributed variants are first_dist/last_dist below.
func (firstLastOp) FirstMerge(ctx *Context)  {}
func (firstLastOp) SecondMerge(ctx *Context) {}

func (firstLastOp) BlockLoadNeed(ctx *Context, colID int) LoadNeed { return LoadAll }

// distOp implements first_dist/last_dist: the distributed selection
// variants whose intermediate layout is [value][timestamp][has-result],
// comparing timestamps across partial results rather than relying on
// single-table scan order.
type distOp struct {
	isLast bool
}

const distInterBytes = 8 + tsFlagBytes // value + timestamp + has-result

func init() {
	register(&Descriptor{
		Name: "first_dist", ID: FirstDist, DistID: FirstDist,
		Capability: SO | Stream | Metric | Selectivity | NeedTS,
		Compat:     CompatStackable,
		New:        func() Operator { return &distOp{isLast: false} },
		DataInfo:   distDataInfo,
	})
	register(&Descriptor{
		Name: "last_dist", ID: LastDist, DistID: LastDist,
		Capability: SO | Stream | Metric | Selectivity | NeedTS,
		Compat:     CompatStackable,
		New:        func() Operator { return &distOp{isLast: true} },
		DataInfo:   distDataInfo,
	})
}

func distDataInfo(inType scalar.Type, inBytes int, param int, isSuperTable bool) (DataInfo, error) {
	return DataInfo{OutType: scalar.TypeBytes, OutBytes: distInterBytes, InterBytes: distInterBytes}, nil
}

func (o *distOp) value(ctx *Context) float64 { return readFloat64(ctx.Result.InterBuf[0:8]) }
func (o *distOp) ts(ctx *Context) int64      { return readInt64(ctx.Result.InterBuf[8:16]) }
func (o *distOp) hasResult(ctx *Context) bool { return ctx.Result.InterBuf[16] != 0 }

func (o *distOp) set(ctx *Context, v float64, ts int64) {
	writeFloat64(ctx.Result.InterBuf[0:8], v)
	writeInt64(ctx.Result.InterBuf[8:16], ts)
	ctx.Result.InterBuf[16] = 1
}

func (o *distOp) betterTs(candidate, current int64) bool {
	if o.isLast {
		return candidate > current
	}
	return candidate < current
}

func (o *distOp) Setup(ctx *Context) bool {
	if ctx.Result.Initialized {
		return false
	}
	ctx.Result.Reset(distInterBytes)
	if o.isLast {
		writeInt64(ctx.Result.InterBuf[8:16], -1<<63)
	} else {
		writeInt64(ctx.Result.InterBuf[8:16], 1<<62)
	}
	ctx.Result.Initialized = true
	return true
}

func (o *distOp) snapshot(ctx *Context) {
	copy(ctx.Output[:distInterBytes], ctx.Result.InterBuf[:distInterBytes])
}

func (o *distOp) StepBlock(ctx *Context) {
	for i := 0; i < ctx.Size; i++ {
		v, isNull := readFloat(ctx, i)
		if isNull {
			continue
		}
		ts := ctx.TsList[i]
		if !o.hasResult(ctx) || o.betterTs(ts, o.ts(ctx)) {
			o.set(ctx, v, ts)
			ctx.Result.HasResult = true
			ctx.commitTagContexts()
		}
	}
	o.snapshot(ctx)
}

func (o *distOp) StepRow(ctx *Context, i int) {
	v, isNull := readFloat(ctx, i)
	if isNull {
		return
	}
	ts := ctx.TsList[i]
	if !o.hasResult(ctx) || o.betterTs(ts, o.ts(ctx)) {
		o.set(ctx, v, ts)
		ctx.Result.HasResult = true
		ctx.commitTagContexts()
	}
	o.snapshot(ctx)
}

func (distOp) NextStage(ctx *Context) {}

func (o *distOp) Finalize(ctx *Context) {
	if !ctx.Result.HasResult {
		writeNullSentinel(ctx.Output[:8], ctx.ValueType)
		return
	}
	writeValueAs(ctx.Output[:8], ctx.ValueType, o.value(ctx))
	ctx.Result.Complete = true
}

// running best timestamp tracked in ctx.Params[1].
func (o *distOp) mergeStage(ctx *Context) {
	assertMergeInput(ctx)
	running := ctx.Params[1]
	haveRunning := ctx.Result.HasResult
	if !haveRunning {
		if o.isLast {
			running = float64(int64(-1 << 63))
		} else {
			running = float64(int64(1 << 62))
		}
	}
	for i := 0; i < ctx.Size; i++ {
		off := i * ctx.InputBytes
		snap := ctx.Input[off : off+ctx.InputBytes]
		if snap[16] == 0 {
			continue
		}
		ts := readInt64(snap[8:16])
		if !haveRunning || o.betterTs(ts, int64(running)) {
			running = float64(ts)
			haveRunning = true
			o.set(ctx, readFloat64(snap[0:8]), ts)
			ctx.Result.HasResult = true
			ctx.commitTagContexts()
		}
	}
	ctx.Params[1] = running
	o.snapshot(ctx)
}

func (o *distOp) FirstMerge(ctx *Context)  { o.mergeStage(ctx) }
func (o *distOp) SecondMerge(ctx *Context) { o.mergeStage(ctx) }

func (distOp) BlockLoadNeed(ctx *Context, colID int) LoadNeed { return LoadAll }

// lastRowOp implements last_row: always accepts the single incoming value.
// It keeps no timestamp: ctx.Params[0] is not read, and the intermediate
// holds only the value (plus the data-set flag in super-table mode).
type lastRowOp struct{}

func init() {
	register(&Descriptor{
		Name:       "last_row",
		ID:         LastRow,
		DistID:     LastRow,
		Capability: SO | Metric | Selectivity,
		Compat:     CompatLastRow,
		New:        func() Operator { return &lastRowOp{} },
		DataInfo: func(inType scalar.Type, inBytes int, param int, isSuperTable bool) (DataInfo, error) {
			return widenedDataInfo(inType, 8, 8, dataSetFlagBytes, isSuperTable), nil
		},
	})
}

func (lastRowOp) Setup(ctx *Context) bool {
	if ctx.Result.Initialized {
		return false
	}
	n := 8
	if ctx.IsSuperTable {
		n += dataSetFlagBytes
	}
	ctx.Result.Reset(n)
	ctx.Result.Initialized = true
	return true
}

func (lastRowOp) accept(ctx *Context, v float64) {
	writeFloat64(ctx.Result.InterBuf[:8], v)
	ctx.Result.HasResult = true
	ctx.commitTagContexts()
	if ctx.IsSuperTable {
		copy(ctx.Output[:8], ctx.Result.InterBuf[:8])
		ctx.Output[8] = flagByte(true)
	}
}

func (o lastRowOp) StepBlock(ctx *Context) {
	if ctx.Size == 0 {
		return
	}
	v, _ := readFloat(ctx, ctx.Size-1)
	o.accept(ctx, v)
}

func (o lastRowOp) StepRow(ctx *Context, i int) {
	v, _ := readFloat(ctx, i)
	o.accept(ctx, v)
}

func (lastRowOp) NextStage(ctx *Context) {}

func (lastRowOp) Finalize(ctx *Context) {
	if !ctx.Result.HasResult {
		writeNullSentinel(ctx.Output[:8], ctx.ValueType)
		return
	}
	writeValueAs(ctx.Output[:8], ctx.ValueType, readFloat64(ctx.Result.InterBuf[:8]))
	ctx.Result.Complete = true
}

func (o lastRowOp) merge(ctx *Context) {
	assertMergeInput(ctx)
	for i := 0; i < ctx.Size; i++ {
		off := i * ctx.InputBytes
		snap := ctx.Input[off : off+ctx.InputBytes]
		if snap[8] == 0 {
			continue
		}
		o.accept(ctx, readFloat64(snap[:8]))
	}
}

func (o lastRowOp) FirstMerge(ctx *Context)  { o.merge(ctx) }
func (o lastRowOp) SecondMerge(ctx *Context) { o.merge(ctx) }

func (lastRowOp) BlockLoadNeed(ctx *Context, colID int) LoadNeed { return LoadFieldsOnly }
