package agg

import "github.com/tsengine/aggwheel/pkg/scalar"

// interpMode selects how interp fills the value at its anchor timestamp,
// read from ctx.Params[3].
type interpMode int

const (
	// interpDirect emits the value only when a row lands exactly on the
	// anchor timestamp; otherwise the result is null.
	interpDirect interpMode = iota
	// interpPrev holds the nearest value at or before the anchor.
	interpPrev
	// interpLinear interpolates between the rows bracketing the anchor.
	interpLinear
	// interpSetValue ignores the data and emits ctx.Params[2].
	interpSetValue
	// interpNull always emits the null sentinel.
	interpNull
	// interpNone emits no row at all.
	interpNone
)

// interpOp implements interp: exactly one output row holding the column's
// value at a single caller-supplied anchor timestamp (ctx.Params[1]),
// filled per the mode in ctx.Params[3]. A FILL over a range of generated
// timestamps drives this operator once per anchor rather than the operator
// emitting the whole range itself.
type interpOp struct{}

func init() {
	register(&Descriptor{
		Name:       "interp",
		ID:         Interp,
		DistID:     Interp,
		Capability: SO | NeedTS,
		Compat:     CompatInterp,
		New:        func() Operator { return &interpOp{} },
		DataInfo: func(inType scalar.Type, inBytes int, param int, isSuperTable bool) (DataInfo, error) {
			if isSuperTable {
				return DataInfo{}, errorsUnsupportedSuperTable("interp")
			}
			return DataInfo{OutType: scalar.TypeFloat64, OutBytes: 8, InterBytes: interpInterBytes}, nil
		},
	})
}

// intermediate layout: prevVal[0:8] prevTs[8:16] hasPrev[16]
const interpInterBytes = 17

func (interpOp) prev(ctx *Context) (val, ts float64, has bool) {
	b := ctx.Result.InterBuf
	return readFloat64(b[0:8]), readFloat64(b[8:16]), b[16] != 0
}

func (interpOp) setPrev(ctx *Context, val, ts float64) {
	b := ctx.Result.InterBuf
	writeFloat64(b[0:8], val)
	writeFloat64(b[8:16], ts)
	b[16] = 1
}

func (interpOp) Setup(ctx *Context) bool {
	if ctx.Result.Initialized {
		return false
	}
	ctx.Result.Reset(interpInterBytes)
	ctx.Result.Initialized = true
	return true
}

func (o interpOp) mode(ctx *Context) interpMode { return interpMode(int(ctx.Params[3])) }
func (o interpOp) anchor(ctx *Context) float64  { return ctx.Params[1] }

func (o interpOp) settle(ctx *Context, v float64) {
	writeFloat64(ctx.Output[:8], v)
	ctx.Result.HasResult = true
	ctx.Result.Complete = true
	ctx.Result.NumOfRes = 1
}

// consider processes one non-null (v, ts) observation against the pending
// anchor, resolving the result once enough bracketing data is available.
func (o interpOp) consider(ctx *Context, v, ts float64) {
	if ctx.Result.Complete {
		return
	}
	switch o.mode(ctx) {
	case interpSetValue, interpNull, interpNone:
		// resolved at Finalize without reading data.
		return
	}
	anchor := o.anchor(ctx)
	prevVal, prevTs, hasPrev := o.prev(ctx)
	switch {
	case ts == anchor:
		o.settle(ctx, v)
	case ts > anchor:
		switch o.mode(ctx) {
		case interpPrev:
			if hasPrev {
				o.settle(ctx, prevVal)
			}
		case interpLinear:
			if hasPrev {
				frac := (anchor - prevTs) / (ts - prevTs)
				o.settle(ctx, prevVal+frac*(v-prevVal))
			}
		default:
			// direct never matches off-anchor; set-value/null/none resolve
			// at Finalize without reading data.
		}
	default:
		o.setPrev(ctx, v, ts)
	}
}

func (o interpOp) StepBlock(ctx *Context) {
	for i := 0; i < ctx.Size; i++ {
		v, isNull := readFloat(ctx, i)
		if isNull {
			continue
		}
		o.consider(ctx, v, float64(ctx.TsList[i]))
	}
}

func (o interpOp) StepRow(ctx *Context, i int) {
	v, isNull := readFloat(ctx, i)
	if isNull {
		return
	}
	o.consider(ctx, v, float64(ctx.TsList[i]))
}

func (interpOp) NextStage(ctx *Context) {}

func (o interpOp) Finalize(ctx *Context) {
	switch o.mode(ctx) {
	case interpSetValue:
		o.settle(ctx, ctx.Params[2])
		return
	case interpNone:
		ctx.Result.NumOfRes = 0
		ctx.Result.Complete = true
		return
	case interpPrev:
		if prevVal, _, hasPrev := o.prev(ctx); hasPrev && !ctx.Result.HasResult {
			o.settle(ctx, prevVal)
			return
		}
	}
	if !ctx.Result.HasResult {
		// covers interpNull plus any mode whose bracketing data never
		// arrived: the one output row is the null sentinel.
		writeNullSentinel(ctx.Output[:8], scalar.TypeFloat64)
		ctx.Result.NumOfRes = 1
	}
}

func (interpOp) FirstMerge(ctx *Context)  {}
func (interpOp) SecondMerge(ctx *Context) {}

func (interpOp) BlockLoadNeed(ctx *Context, colID int) LoadNeed { return LoadAll }
