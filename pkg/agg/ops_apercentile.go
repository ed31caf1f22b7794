package agg

import (
	"github.com/tsengine/aggwheel/pkg/agg/histogram"
	"github.com/tsengine/aggwheel/pkg/scalar"
)

// apercentileOp implements approximate percentile over a bounded-bin
// histogram. Unlike percentile, it supports
// super-table mode: the histogram is serialized to/from InterBuf at every
// block boundary so a coordinator can merge it. Views are reconstituted
// from offsets on read, never from stored pointers.
type apercentileOp struct {
	maxBins int
}

const (
	apercentileBinSlots    = histogram.MaxHistogramBin + 1
	apercentileBinBytes    = 8 + 8 + 8 // Lower, Upper, Count
	apercentileHeaderBytes = 4
	apercentileInterBytes  = apercentileHeaderBytes + apercentileBinSlots*apercentileBinBytes
)

func init() {
	register(&Descriptor{
		Name:       "apercentile",
		ID:         Apercentile,
		DistID:     Apercentile,
		Capability: SO | Metric,
		Compat:     CompatExclusive,
		New:        func() Operator { return &apercentileOp{} },
		DataInfo: func(inType scalar.Type, inBytes int, param int, isSuperTable bool) (DataInfo, error) {
			if isSuperTable {
				return DataInfo{OutType: scalar.TypeBytes, OutBytes: apercentileInterBytes, InterBytes: apercentileInterBytes}, nil
			}
			return DataInfo{OutType: scalar.TypeFloat64, OutBytes: 8, InterBytes: apercentileInterBytes}, nil
		},
	})
}

func (o *apercentileOp) binBudget() int {
	if o.maxBins == 0 {
		o.maxBins = histogram.DefaultConfig().MaxBins()
	}
	return o.maxBins
}

func (o *apercentileOp) histo(ctx *Context) *histogram.Approx {
	h, ok := ctx.Aux.(*histogram.Approx)
	if !ok || h == nil {
		h = histogram.NewApprox(o.binBudget())
		ctx.Aux = h
	}
	return h
}

func (apercentileOp) Setup(ctx *Context) bool {
	if ctx.Result.Initialized {
		return false
	}
	ctx.Result.Reset(apercentileInterBytes)
	ctx.Aux = nil
	ctx.Result.Initialized = true
	return true
}

func (o *apercentileOp) StepBlock(ctx *Context) {
	h := o.histo(ctx)
	for i := 0; i < ctx.Size; i++ {
		v, isNull := readFloat(ctx, i)
		if isNull {
			continue
		}
		h.Insert(v)
	}
	if !h.Empty() {
		ctx.Result.HasResult = true
	}
	if ctx.IsSuperTable {
		serializeApprox(h, ctx.Result.InterBuf)
		copy(ctx.Output[:apercentileInterBytes], ctx.Result.InterBuf)
	}
}

func (o *apercentileOp) StepRow(ctx *Context, i int) {
	v, isNull := readFloat(ctx, i)
	if isNull {
		return
	}
	o.histo(ctx).Insert(v)
	ctx.Result.HasResult = true
	if ctx.IsSuperTable {
		serializeApprox(o.histo(ctx), ctx.Result.InterBuf)
		copy(ctx.Output[:apercentileInterBytes], ctx.Result.InterBuf)
	}
}

func (apercentileOp) NextStage(ctx *Context) {}

func (o *apercentileOp) Finalize(ctx *Context) {
	h := o.histo(ctx)
	if h.Empty() {
		writeNullSentinel(ctx.Output[:8], scalar.TypeFloat64)
		return
	}
	writeFloat64(ctx.Output[:8], h.Uniform(ctx.Params[0]))
	ctx.Result.Complete = true
}

func (o *apercentileOp) merge(ctx *Context) {
	assertMergeInput(ctx)
	target := o.histo(ctx)
	for i := 0; i < ctx.Size; i++ {
		off := i * ctx.InputBytes
		snap := ctx.Input[off : off+ctx.InputBytes]
		incoming := deserializeApprox(snap, o.binBudget())
		target.Merge(incoming)
	}
	if !target.Empty() {
		ctx.Result.HasResult = true
	}
	serializeApprox(target, ctx.Result.InterBuf)
	if ctx.IsSuperTable {
		copy(ctx.Output[:apercentileInterBytes], ctx.Result.InterBuf)
	}
}

func (o *apercentileOp) FirstMerge(ctx *Context)  { o.merge(ctx) }
func (o *apercentileOp) SecondMerge(ctx *Context) { o.merge(ctx) }

func (apercentileOp) BlockLoadNeed(ctx *Context, colID int) LoadNeed { return LoadAll }

// serializeApprox flattens h's bins into dst: a 4-byte bin count header
// followed by up to apercentileBinSlots fixed {Lower,Upper,Count} records.
func serializeApprox(h *histogram.Approx, dst []byte) {
	bins := h.Bins()
	n := len(bins)
	if n > apercentileBinSlots {
		n = apercentileBinSlots
	}
	dst[0] = byte(n)
	dst[1] = byte(n >> 8)
	dst[2] = byte(n >> 16)
	dst[3] = byte(n >> 24)
	for i := 0; i < n; i++ {
		off := apercentileHeaderBytes + i*apercentileBinBytes
		writeFloat64(dst[off:off+8], bins[i].Lower)
		writeFloat64(dst[off+8:off+16], bins[i].Upper)
		writeFloat64(dst[off+16:off+24], float64(bins[i].Count))
	}
}

// deserializeApprox reconstitutes a view Approx histogram from a snapshot
// written by serializeApprox: offsets in, a rebuilt view out, never a
// stored pointer.
func deserializeApprox(src []byte, maxBins int) *histogram.Approx {
	n := int(src[0]) | int(src[1])<<8 | int(src[2])<<16 | int(src[3])<<24
	bins := make([]histogram.Bin, n)
	for i := 0; i < n; i++ {
		off := apercentileHeaderBytes + i*apercentileBinBytes
		bins[i] = histogram.Bin{
			Lower: readFloat64(src[off : off+8]),
			Upper: readFloat64(src[off+8 : off+16]),
			Count: int64(readFloat64(src[off+16 : off+24])),
		}
	}
	return histogram.FromBins(bins, maxBins)
}
