package agg

import (
	"encoding/binary"
	"os"

	"github.com/tsengine/aggwheel/pkg/scalar"
)

// tsOp is the timestamp pseudo-column (operator id 0): selecting the
// primary timestamp as an ordinary output column, distinct from ts_comp,
// which delta-encodes the timestamps into a scratch file and emits that
// file's path as its single result row.
type tsOp struct{}

func init() {
	register(&Descriptor{
		Name:       "ts",
		ID:         Ts,
		DistID:     Ts,
		Capability: SO | Stream | NeedTS,
		Compat:     CompatStackable,
		New:        func() Operator { return &tsOp{} },
		DataInfo: func(inType scalar.Type, inBytes int, param int, isSuperTable bool) (DataInfo, error) {
			return DataInfo{OutType: scalar.TypeTimestamp, OutBytes: 8, InterBytes: interBytesWithHeader(8)}, nil
		},
	})
}

func (tsOp) Setup(ctx *Context) bool {
	if ctx.Result.Initialized {
		return false
	}
	ctx.Result.Reset(0)
	ctx.Result.Initialized = true
	return true
}

func (tsOp) StepBlock(ctx *Context) {
	if ctx.Size == 0 {
		return
	}
	writeInt64(ctx.Output[:8], ctx.TsList[ctx.Size-1])
	ctx.Result.HasResult = true
}

func (tsOp) StepRow(ctx *Context, i int) {
	writeInt64(ctx.Output[:8], ctx.TsList[i])
	ctx.Result.HasResult = true
}

func (tsOp) NextStage(ctx *Context) {}

func (tsOp) Finalize(ctx *Context) {
	if !ctx.Result.HasResult {
		writeNullSentinel(ctx.Output[:8], scalar.TypeTimestamp)
		return
	}
	ctx.Result.Complete = true
}

func (tsOp) FirstMerge(ctx *Context)  {}
func (tsOp) SecondMerge(ctx *Context) {}

func (tsOp) BlockLoadNeed(ctx *Context, colID int) LoadNeed { return LoadNone }

// projectionOp passes every row's raw bytes straight through unchanged: the
// "select column" case with no aggregation or transform applied.
type projectionOp struct{}

func init() {
	register(&Descriptor{
		Name:       "projection",
		ID:         Projection,
		DistID:     Projection,
		Capability: MO | Stream,
		Compat:     CompatStackable,
		New:        func() Operator { return &projectionOp{} },
		DataInfo: func(inType scalar.Type, inBytes int, param int, isSuperTable bool) (DataInfo, error) {
			return DataInfo{OutType: inType, OutBytes: inBytes, InterBytes: interBytesWithHeader(inBytes)}, nil
		},
	})
}

func (projectionOp) Setup(ctx *Context) bool {
	if ctx.Result.Initialized {
		return false
	}
	ctx.Result.Reset(0)
	ctx.Result.Initialized = true
	return true
}

func (projectionOp) StepBlock(ctx *Context) {
	if ctx.Order == Desc {
		// descending scans write at decreasing offsets.
		for i := 0; i < ctx.Size; i++ {
			writeRaw(ctx, ctx.Size-1-i, inputElemAt(ctx, i))
		}
	} else {
		n := ctx.Size * ctx.InputBytes
		copy(ctx.Output[:n], ctx.Input[:n])
	}
	ctx.Result.HasResult = true
	ctx.Result.NumOfRes = int64(ctx.Size)
}

func (projectionOp) StepRow(ctx *Context, i int) {
	writeRaw(ctx, 0, inputElemAt(ctx, i))
	ctx.Result.HasResult = true
	ctx.Result.NumOfRes++
}

func (projectionOp) NextStage(ctx *Context) {}

func (projectionOp) Finalize(ctx *Context) {
	if ctx.Result.HasResult {
		ctx.Result.Complete = true
	}
}

func (projectionOp) FirstMerge(ctx *Context)  {}
func (projectionOp) SecondMerge(ctx *Context) {}

func (projectionOp) BlockLoadNeed(ctx *Context, colID int) LoadNeed { return LoadAll }

// tagOp emits a constant tag value for every row of the result, one per
// group rather than one per row: CompatTag lets it stack alongside a
// selectivity operator (min/max/top/last_row) whose chosen row it rides
// along with, rather than alongside plain scalar aggregates.
type tagOp struct{}

func init() {
	register(&Descriptor{
		Name:       "tag",
		ID:         Tag,
		DistID:     Tag,
		Capability: SO,
		Compat:     CompatTag,
		New:        func() Operator { return &tagOp{} },
		DataInfo: func(inType scalar.Type, inBytes int, param int, isSuperTable bool) (DataInfo, error) {
			return DataInfo{OutType: inType, OutBytes: inBytes, InterBytes: interBytesWithHeader(inBytes)}, nil
		},
	})
}

func (tagOp) Setup(ctx *Context) bool {
	if ctx.Result.Initialized {
		return false
	}
	ctx.Result.Reset(0)
	ctx.Result.Initialized = true
	return true
}

// tag has no row loop of its own: it reads the committed value of the first
// registered tag context once a sibling selectivity operator has chosen a
// row, or the pending value directly for an ungrouped single-table query.
func (tagOp) resolve(ctx *Context) []byte {
	if len(ctx.TagContexts) > 0 {
		tc := ctx.TagContexts[0]
		if len(tc.Value) > 0 {
			return tc.Value
		}
		return tc.Pending
	}
	return nil
}

func (o tagOp) StepBlock(ctx *Context) {
	if v := o.resolve(ctx); v != nil {
		copy(ctx.Output, v)
		ctx.Result.HasResult = true
	}
}

func (o tagOp) StepRow(ctx *Context, i int) { o.StepBlock(ctx) }

func (tagOp) NextStage(ctx *Context) {}

func (tagOp) Finalize(ctx *Context) {
	if ctx.Result.HasResult {
		ctx.Result.Complete = true
	}
}

func (tagOp) FirstMerge(ctx *Context)  {}
func (tagOp) SecondMerge(ctx *Context) {}

func (tagOp) BlockLoadNeed(ctx *Context, colID int) LoadNeed { return LoadNone }

// tsCompPathBytes is the fixed width of ts_comp's output: the path of the
// scratch file holding the group's delta-compressed timestamps.
const tsCompPathBytes = 128

// tsCompScratch is the per-group sink ts_comp appends to: a scratch file
// receiving varint-delta-encoded timestamps; the storage format of the
// file is private to this operator.
type tsCompScratch struct {
	file   *os.File
	path   string
	lastTs int64
	any    bool
	err    error
}

func (s *tsCompScratch) append(ts int64) {
	if s.err != nil {
		return
	}
	if s.file == nil {
		f, err := os.CreateTemp("", "tscomp-*.bin")
		if err != nil {
			s.err = err
			return
		}
		s.file = f
		s.path = f.Name()
	}
	delta := ts - s.lastTs
	if !s.any {
		delta = ts
	}
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutVarint(buf[:], delta)
	if _, err := s.file.Write(buf[:n]); err != nil {
		s.err = err
		return
	}
	s.lastTs = ts
	s.any = true
}

// tsCompOp appends the primary timestamp column, delta-compressed, into a
// per-group scratch file; Finalize emits the file path as the result.
type tsCompOp struct{}

func init() {
	register(&Descriptor{
		Name:       "ts_comp",
		ID:         TsComp,
		DistID:     TsComp,
		Capability: MO | Stream | NeedTS,
		Compat:     CompatStackable,
		New:        func() Operator { return &tsCompOp{} },
		DataInfo: func(inType scalar.Type, inBytes int, param int, isSuperTable bool) (DataInfo, error) {
			return DataInfo{OutType: scalar.TypeBytes, OutBytes: tsCompPathBytes, InterBytes: interBytesWithHeader(tsCompPathBytes)}, nil
		},
	})
}

func (tsCompOp) scratch(ctx *Context) *tsCompScratch {
	s, ok := ctx.Aux.(*tsCompScratch)
	if !ok || s == nil {
		s = &tsCompScratch{}
		ctx.Aux = s
	}
	return s
}

func (tsCompOp) Setup(ctx *Context) bool {
	if ctx.Result.Initialized {
		return false
	}
	ctx.Result.Reset(0)
	ctx.Aux = &tsCompScratch{}
	ctx.Result.Initialized = true
	return true
}

func (o tsCompOp) StepBlock(ctx *Context) {
	s := o.scratch(ctx)
	for i := 0; i < ctx.Size; i++ {
		s.append(ctx.TsList[i])
	}
	if s.any {
		ctx.Result.HasResult = true
	}
}

func (o tsCompOp) StepRow(ctx *Context, i int) {
	s := o.scratch(ctx)
	s.append(ctx.TsList[i])
	if s.any {
		ctx.Result.HasResult = true
	}
}

func (tsCompOp) NextStage(ctx *Context) {}

func (o tsCompOp) Finalize(ctx *Context) {
	out := ctx.Output[:tsCompPathBytes]
	for i := range out {
		out[i] = 0
	}
	s := o.scratch(ctx)
	if s.file != nil {
		s.err = s.file.Close()
	}
	if !ctx.Result.HasResult || s.err != nil {
		return
	}
	copy(out, s.path)
	ctx.Result.NumOfRes = 1
	ctx.Result.Complete = true
}

func (tsCompOp) FirstMerge(ctx *Context)  {}
func (tsCompOp) SecondMerge(ctx *Context) {}

func (tsCompOp) BlockLoadNeed(ctx *Context, colID int) LoadNeed { return LoadNone }
