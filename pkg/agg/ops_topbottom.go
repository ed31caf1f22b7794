package agg

import (
	"sort"

	"github.com/tsengine/aggwheel/pkg/scalar"
)

// topBottomOp implements top/bottom-k: a multi-output selection operator
// that keeps the k largest (top) or smallest (bottom) non-null values seen,
// paired with their row timestamps and a packed copy of the row's tag
// columns. k is read from ctx.Params[0] at Setup
// and must match the param GetResultDataInfo was called with. Params[1] and
// Params[2] select Finalize's output order: by value or by timestamp,
// ascending or descending.
type topBottomOp struct {
	isTop bool
}

const (
	// maxTopBottomK bounds how many rows top/bottom-k may select.
	maxTopBottomK = 100

	// topBottomTagBytes is the fixed per-entry budget for an entry's packed
	// tag snapshot, mirroring maxTopBottomK's fixed ceiling: a query with
	// tag payloads too wide to fit is truncated rather than unbounded.
	topBottomTagBytes = 64

	topBottomHeaderBytes = 4
	topBottomEntryBytes  = 8 + 8 + topBottomTagBytes // value + ts + packed tags

	topBottomSortByValue     = 0
	topBottomSortByTimestamp = 1
)

type tbEntry struct {
	value float64
	ts    int64
	tags  []byte // topBottomTagBytes-wide packed snapshot, see packTags
}

func clampTopBottomK(param int) int {
	if param < 1 {
		return 1
	}
	if param > maxTopBottomK {
		return maxTopBottomK
	}
	return param
}

func init() {
	register(&Descriptor{
		Name:       "top",
		ID:         Top,
		DistID:     Top,
		Capability: MO | Metric | NeedTS | Selectivity,
		Compat:     CompatExclusive,
		New:        func() Operator { return &topBottomOp{isTop: true} },
		DataInfo:   topBottomDataInfo,
	})
	register(&Descriptor{
		Name:       "bottom",
		ID:         Bottom,
		DistID:     Bottom,
		Capability: MO | Metric | NeedTS | Selectivity,
		Compat:     CompatExclusive,
		New:        func() Operator { return &topBottomOp{isTop: false} },
		DataInfo:   topBottomDataInfo,
	})
}

func topBottomDataInfo(inType scalar.Type, inBytes int, param int, isSuperTable bool) (DataInfo, error) {
	k := clampTopBottomK(param)
	interBytes := topBottomHeaderBytes + k*topBottomEntryBytes
	if isSuperTable {
		return DataInfo{OutType: scalar.TypeBytes, OutBytes: interBytes, InterBytes: interBytes}, nil
	}
	return DataInfo{OutType: scalar.TypeBytes, OutBytes: k * 8, InterBytes: interBytes}, nil
}

func (o *topBottomOp) k(ctx *Context) int {
	return clampTopBottomK(int(ctx.Params[0]))
}

func (o *topBottomOp) entries(ctx *Context) []tbEntry {
	es, ok := ctx.Aux.([]tbEntry)
	if !ok {
		es = nil
	}
	return es
}

// better reports whether candidate belongs ahead of current in the kept
// order: larger-first for top, smaller-first for bottom.
func (o *topBottomOp) better(candidate, current float64) bool {
	if o.isTop {
		return candidate > current
	}
	return candidate < current
}

func (o *topBottomOp) insert(ctx *Context, v float64, ts int64) {
	k := o.k(ctx)
	es := o.entries(ctx)
	i := 0
	for i < len(es) && o.better(es[i].value, v) {
		i++
	}
	if i >= k {
		return
	}
	es = append(es, tbEntry{})
	copy(es[i+1:], es[i:])
	es[i] = tbEntry{value: v, ts: ts, tags: packTags(ctx)}
	if len(es) > k {
		es = es[:k]
	}
	ctx.Aux = es
	ctx.Result.HasResult = true
}

func (topBottomOp) Setup(ctx *Context) bool {
	if ctx.Result.Initialized {
		return false
	}
	k := clampTopBottomK(int(ctx.Params[0]))
	ctx.Result.Reset(topBottomHeaderBytes + k*topBottomEntryBytes)
	ctx.Aux = []tbEntry(nil)
	ctx.Result.Initialized = true
	return true
}

func (o *topBottomOp) snapshot(ctx *Context) {
	es := o.entries(ctx)
	serializeTopBottom(es, ctx.Result.InterBuf)
	if ctx.IsSuperTable {
		copy(ctx.Output[:len(ctx.Result.InterBuf)], ctx.Result.InterBuf)
	}
}

func (o *topBottomOp) StepBlock(ctx *Context) {
	for i := 0; i < ctx.Size; i++ {
		v, isNull := readFloat(ctx, i)
		if isNull {
			continue
		}
		o.insert(ctx, v, ctx.TsList[i])
	}
	o.snapshot(ctx)
}

func (o *topBottomOp) StepRow(ctx *Context, i int) {
	v, isNull := readFloat(ctx, i)
	if isNull {
		return
	}
	o.insert(ctx, v, ctx.TsList[i])
	o.snapshot(ctx)
}

func (topBottomOp) NextStage(ctx *Context) {}

// Finalize orders the kept entries per ctx.Params[1] (sort key) and
// ctx.Params[2] (order), then writes values to ctx.Output, timestamps to
// ctx.PtsOutput, and unpacks each entry's tag snapshot into every tag
// context's per-row Outputs. Params[1] ==
// topBottomSortByValue keeps the natural rank order insert/merge already
// maintain (descending for top, ascending for bottom — each operator's own
// notion of "best first"); topBottomSortByTimestamp re-sorts by timestamp,
// ascending or descending per Params[2].
func (o *topBottomOp) Finalize(ctx *Context) {
	es := append([]tbEntry(nil), o.entries(ctx)...)
	k := o.k(ctx)
	if len(es) > k {
		es = es[:k]
	}

	if int(ctx.Params[1]) == topBottomSortByTimestamp {
		order := Order(int(ctx.Params[2]))
		sort.SliceStable(es, func(i, j int) bool {
			if order == Desc {
				return es[i].ts > es[j].ts
			}
			return es[i].ts < es[j].ts
		})
	}

	out := ctx.Output[:k*8]
	for i := range out {
		out[i] = 0
	}
	parsedTags := make([][][]byte, len(es))
	for i, e := range es {
		writeValueAs(out[i*8:i*8+8], ctx.ValueType, e.value)
		if ctx.PtsOutput != nil && i < len(ctx.PtsOutput) {
			ctx.PtsOutput[i] = e.ts
		}
		parsedTags[i] = unpackTags(e.tags)
	}
	for j, tc := range ctx.TagContexts {
		tc.Outputs = make([][]byte, len(es))
		for i, tags := range parsedTags {
			if j < len(tags) {
				tc.Outputs[i] = tags[j]
			}
		}
	}

	ctx.Result.NumOfRes = int64(len(es))
	if len(es) > 0 {
		ctx.Result.Complete = true
	}
}

func (o *topBottomOp) merge(ctx *Context) {
	assertMergeInput(ctx)
	es := o.entries(ctx)
	for i := 0; i < ctx.Size; i++ {
		off := i * ctx.InputBytes
		incoming := deserializeTopBottom(ctx.Input[off : off+ctx.InputBytes])
		for _, e := range incoming {
			k := o.k(ctx)
			j := 0
			for j < len(es) && o.better(es[j].value, e.value) {
				j++
			}
			if j >= k {
				continue
			}
			es = append(es, tbEntry{})
			copy(es[j+1:], es[j:])
			es[j] = e
			if len(es) > k {
				es = es[:k]
			}
		}
	}
	ctx.Aux = es
	if len(es) > 0 {
		ctx.Result.HasResult = true
	}
	o.snapshot(ctx)
}

func (o *topBottomOp) FirstMerge(ctx *Context)  { o.merge(ctx) }
func (o *topBottomOp) SecondMerge(ctx *Context) { o.merge(ctx) }

// BlockLoadNeed skips a block entirely once k entries are held and the
// block's pre-aggregated extremum cannot improve on the worst of them.
func (o *topBottomOp) BlockLoadNeed(ctx *Context, colID int) LoadNeed {
	es := o.entries(ctx)
	if ctx.PreAgg.IsSet && len(es) > 0 && len(es) >= o.k(ctx) {
		best := ctx.PreAgg.MaxFloat
		if !o.isTop {
			best = ctx.PreAgg.MinFloat
		}
		if !isFloatFamily(ctx) {
			best = float64(ctx.PreAgg.MaxInt)
			if !o.isTop {
				best = float64(ctx.PreAgg.MinInt)
			}
		}
		worst := es[len(es)-1].value
		if !o.better(best, worst) {
			return LoadNone
		}
	}
	return LoadAll
}

// serializeTopBottom flattens the kept entries (already in rank order) into
// dst: a 4-byte count header followed by fixed {value, ts, packed tags}
// records.
func serializeTopBottom(es []tbEntry, dst []byte) {
	n := len(es)
	dst[0] = byte(n)
	dst[1] = byte(n >> 8)
	dst[2] = byte(n >> 16)
	dst[3] = byte(n >> 24)
	for i, e := range es {
		off := topBottomHeaderBytes + i*topBottomEntryBytes
		writeFloat64(dst[off:off+8], e.value)
		writeInt64(dst[off+8:off+16], e.ts)
		tagOff := off + 16
		tagDst := dst[tagOff : tagOff+topBottomTagBytes]
		for j := range tagDst {
			tagDst[j] = 0
		}
		copy(tagDst, e.tags)
	}
}

func deserializeTopBottom(src []byte) []tbEntry {
	n := int(src[0]) | int(src[1])<<8 | int(src[2])<<16 | int(src[3])<<24
	es := make([]tbEntry, n)
	for i := 0; i < n; i++ {
		off := topBottomHeaderBytes + i*topBottomEntryBytes
		tagOff := off + 16
		es[i] = tbEntry{
			value: readFloat64(src[off : off+8]),
			ts:    readInt64(src[off+8 : off+16]),
			tags:  append([]byte(nil), src[tagOff:tagOff+topBottomTagBytes]...),
		}
	}
	return es
}

// packTags snapshots every sibling tag context's currently-pending value
// into a single topBottomTagBytes-wide blob: a 1-byte column count followed
// by {1-byte length, value bytes} per column, truncated if it would overrun
// the fixed budget.
func packTags(ctx *Context) []byte {
	buf := make([]byte, topBottomTagBytes)
	n := len(ctx.TagContexts)
	if n > 255 {
		n = 255
	}
	buf[0] = byte(n)
	off := 1
	for i := 0; i < n; i++ {
		if off+1 > topBottomTagBytes {
			break
		}
		v := ctx.TagContexts[i].Pending
		l := len(v)
		if off+1+l > topBottomTagBytes {
			l = topBottomTagBytes - off - 1
			if l < 0 {
				l = 0
			}
		}
		buf[off] = byte(l)
		off++
		copy(buf[off:off+l], v[:l])
		off += l
	}
	return buf
}

// unpackTags reverses packTags, returning one slice per tag column.
func unpackTags(buf []byte) [][]byte {
	if len(buf) == 0 {
		return nil
	}
	n := int(buf[0])
	out := make([][]byte, 0, n)
	off := 1
	for i := 0; i < n && off < len(buf); i++ {
		l := int(buf[off])
		off++
		if off+l > len(buf) {
			l = len(buf) - off
		}
		out = append(out, append([]byte(nil), buf[off:off+l]...))
		off += l
	}
	return out
}
