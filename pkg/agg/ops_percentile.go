package agg

import (
	"github.com/tsengine/aggwheel/pkg/agg/histogram"
	"github.com/tsengine/aggwheel/pkg/scalar"
)

// percentileOp implements exact percentile over an insertable sorted-order
// collaborator (pkg/agg/histogram.Exact). Scan-only, not super-table safe.
type percentileOp struct{}

func init() {
	register(&Descriptor{
		Name:       "percentile",
		ID:         Percentile,
		DistID:     Percentile,
		Capability: SO,
		Compat:     CompatExclusive,
		New:        func() Operator { return &percentileOp{} },
		DataInfo: func(inType scalar.Type, inBytes int, param int, isSuperTable bool) (DataInfo, error) {
			if isSuperTable {
				return DataInfo{}, errorsUnsupportedSuperTable("percentile")
			}
			return DataInfo{OutType: scalar.TypeFloat64, OutBytes: 8, InterBytes: 0}, nil
		},
	})
}

func (percentileOp) sketch(ctx *Context) *histogram.Exact {
	s, ok := ctx.Aux.(*histogram.Exact)
	if !ok || s == nil {
		s = &histogram.Exact{}
		ctx.Aux = s
	}
	return s
}

func (percentileOp) Setup(ctx *Context) bool {
	if ctx.Result.Initialized {
		return false
	}
	ctx.Result.Reset(0)
	ctx.Aux = &histogram.Exact{}
	ctx.Result.Initialized = true
	return true
}

func (o percentileOp) StepBlock(ctx *Context) {
	s := o.sketch(ctx)
	for i := 0; i < ctx.Size; i++ {
		v, isNull := readFloat(ctx, i)
		if isNull {
			continue
		}
		s.Insert(v)
	}
	if s.Len() > 0 {
		ctx.Result.HasResult = true
	}
}

func (o percentileOp) StepRow(ctx *Context, i int) {
	v, isNull := readFloat(ctx, i)
	if isNull {
		return
	}
	o.sketch(ctx).Insert(v)
	ctx.Result.HasResult = true
}

func (percentileOp) NextStage(ctx *Context) {}

func (o percentileOp) Finalize(ctx *Context) {
	s := o.sketch(ctx)
	if s.Len() == 0 {
		writeNullSentinel(ctx.Output[:8], scalar.TypeFloat64)
		return
	}
	writeFloat64(ctx.Output[:8], s.Percentile(ctx.Params[0]))
	ctx.Result.Complete = true
}

func (percentileOp) FirstMerge(ctx *Context)  {}
func (percentileOp) SecondMerge(ctx *Context) {}

func (percentileOp) BlockLoadNeed(ctx *Context, colID int) LoadNeed { return LoadAll }
