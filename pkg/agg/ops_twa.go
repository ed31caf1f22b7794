package agg

import "github.com/tsengine/aggwheel/pkg/scalar"

// twaOp implements time-weighted average: a zero-order-hold step integral
// of the value over time, divided by the query window's span. Each
// observed value is held constant from its own timestamp
// until the next observation arrives; the leading segment (window start to
// the first observed point) and trailing segment (last observed point to
// window end) close against the query's nominal start/end timestamps.
type twaOp struct{}

const twaInterBytes = 8 + 8 + 8 + 8 + 1 + 8 + 8 + 1 + 8 // start,end,firstVal,firstKey,hasFirst,lastVal,lastKey,hasLast,runningSum

func init() {
	register(&Descriptor{
		Name:       "twa",
		ID:         Twa,
		DistID:     Twa,
		Capability: SO | Metric | NeedTS,
		Compat:     CompatStackable,
		New:        func() Operator { return &twaOp{} },
		DataInfo: func(inType scalar.Type, inBytes int, param int, isSuperTable bool) (DataInfo, error) {
			if isSuperTable {
				return DataInfo{OutType: scalar.TypeBytes, OutBytes: twaInterBytes, InterBytes: twaInterBytes}, nil
			}
			return DataInfo{OutType: scalar.TypeFloat64, OutBytes: 8, InterBytes: twaInterBytes}, nil
		},
	})
}

type twaState struct {
	startKey, endKey int64
	firstVal         float64
	firstKey         int64
	hasFirst         bool
	lastVal          float64
	lastKey          int64
	hasLast          bool
	runningSum       float64
}

func (twaOp) load(b []byte) twaState {
	return twaState{
		startKey:   readInt64(b[0:8]),
		endKey:     readInt64(b[8:16]),
		firstVal:   readFloat64(b[16:24]),
		firstKey:   readInt64(b[24:32]),
		hasFirst:   b[32] != 0,
		lastVal:    readFloat64(b[33:41]),
		lastKey:    readInt64(b[41:49]),
		hasLast:    b[49] != 0,
		runningSum: readFloat64(b[50:58]),
	}
}

func (twaOp) store(b []byte, s twaState) {
	writeInt64(b[0:8], s.startKey)
	writeInt64(b[8:16], s.endKey)
	writeFloat64(b[16:24], s.firstVal)
	writeInt64(b[24:32], s.firstKey)
	b[32] = flagByte(s.hasFirst)
	writeFloat64(b[33:41], s.lastVal)
	writeInt64(b[41:49], s.lastKey)
	b[49] = flagByte(s.hasLast)
	writeFloat64(b[50:58], s.runningSum)
}

func (o twaOp) Setup(ctx *Context) bool {
	if ctx.Result.Initialized {
		return false
	}
	ctx.Result.Reset(twaInterBytes)
	o.store(ctx.Result.InterBuf, twaState{startKey: ctx.WindowStart, endKey: ctx.WindowEnd})
	ctx.Result.Initialized = true
	return true
}

// extend folds one more observed (ts, v) pair into s. The first point seen
// only records itself as both the first and last point, with no charge to
// running-sum: the gap between window start and this point is resolved at
// Finalize, not here, so extend behaves identically whether this state will
// end up being the only segment or one of several stitched together. Every
// later point charges the PREVIOUS value held constant across the gap to
// ts, per the step formula.
func (o twaOp) extend(s twaState, v float64, ts int64) twaState {
	if !s.hasFirst {
		s.firstVal, s.firstKey, s.hasFirst = v, ts, true
	} else {
		s.runningSum += s.lastVal * float64(ts-s.lastKey)
	}
	s.lastVal, s.lastKey, s.hasLast = v, ts, true
	return s
}

func (o twaOp) snapshot(ctx *Context, s twaState) {
	o.store(ctx.Result.InterBuf, s)
	if ctx.IsSuperTable {
		copy(ctx.Output[:twaInterBytes], ctx.Result.InterBuf)
	}
}

func (o twaOp) StepBlock(ctx *Context) {
	s := o.load(ctx.Result.InterBuf)
	for i := 0; i < ctx.Size; i++ {
		v, isNull := readFloat(ctx, i)
		if isNull {
			continue
		}
		s = o.extend(s, v, ctx.TsList[i])
		ctx.Result.HasResult = true
	}
	o.snapshot(ctx, s)
}

func (o twaOp) StepRow(ctx *Context, i int) {
	v, isNull := readFloat(ctx, i)
	if isNull {
		return
	}
	s := o.load(ctx.Result.InterBuf)
	s = o.extend(s, v, ctx.TsList[i])
	ctx.Result.HasResult = true
	o.snapshot(ctx, s)
}

func (twaOp) NextStage(ctx *Context) {}

// Finalize closes the leading segment (window start to the first observed
// point, held at the first value) and the trailing segment (last observed
// point to window end, held at the last value), adds both to the
// accumulated running-sum, and divides by the window's span. A zero span
// yields 0 rather than dividing by zero; no observed data yields null.
func (o twaOp) Finalize(ctx *Context) {
	s := o.load(ctx.Result.InterBuf)
	if !s.hasFirst {
		writeNullSentinel(ctx.Output[:8], scalar.TypeFloat64)
		return
	}
	span := float64(s.endKey - s.startKey)
	if span == 0 {
		writeFloat64(ctx.Output[:8], 0)
		ctx.Result.Complete = true
		return
	}
	total := s.runningSum
	total += s.firstVal * float64(s.firstKey-s.startKey)
	total += s.lastVal * float64(s.endKey-s.lastKey)
	writeFloat64(ctx.Output[:8], total/span)
	ctx.Result.Complete = true
}

// stitch joins a followed by b (b strictly later in time), bridging the gap
// between a's last point and b's first point by holding a's last value
// constant across it, per the step formula.
func (twaOp) stitch(a, b twaState) twaState {
	if !a.hasFirst {
		return b
	}
	if !b.hasFirst {
		return a
	}
	out := a
	out.runningSum += a.lastVal*float64(b.firstKey-a.lastKey) + b.runningSum
	out.lastVal, out.lastKey, out.hasLast = b.lastVal, b.lastKey, b.hasLast
	return out
}

func (o twaOp) merge(ctx *Context) {
	assertMergeInput(ctx)
	running := o.load(ctx.Result.InterBuf)
	for i := 0; i < ctx.Size; i++ {
		off := i * ctx.InputBytes
		incoming := o.load(ctx.Input[off : off+ctx.InputBytes])
		if !incoming.hasFirst {
			continue
		}
		running = o.stitch(running, incoming)
		ctx.Result.HasResult = true
	}
	o.snapshot(ctx, running)
}

func (o twaOp) FirstMerge(ctx *Context)  { o.merge(ctx) }
func (o twaOp) SecondMerge(ctx *Context) { o.merge(ctx) }

func (twaOp) BlockLoadNeed(ctx *Context, colID int) LoadNeed { return LoadAll }
