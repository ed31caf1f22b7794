package agg

import (
	"bytes"
	"encoding/binary"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsengine/aggwheel/pkg/agg/histogram"
	"github.com/tsengine/aggwheel/pkg/scalar"
)

func floatColumn(vals []float64) []byte {
	buf := make([]byte, len(vals)*8)
	for i, v := range vals {
		writeFloat64(buf[i*8:i*8+8], v)
	}
	return buf
}

func newCtx(vals []float64, ts []int64) *Context {
	return &Context{
		Size:       len(vals),
		Input:      floatColumn(vals),
		InputBytes: 8,
		InputType:  scalar.TypeFloat64,
		ValueType:  scalar.TypeFloat64,
		TsList:     ts,
		Output:     make([]byte, 256),
	}
}

func TestCountStepBlock(t *testing.T) {
	ctx := newCtx([]float64{1, scalar.NullFloat64(), 3}, nil)
	op := &countOp{}
	op.Setup(ctx)
	op.StepBlock(ctx)
	op.Finalize(ctx)
	assert.Equal(t, int64(2), readInt64(ctx.Output[:8]))
}

func TestSumIntegerVsFloatFamily(t *testing.T) {
	ctx := newCtx([]float64{1, 2, 3}, nil)
	op := &sumOp{}
	op.Setup(ctx)
	op.StepBlock(ctx)
	op.Finalize(ctx)
	assert.Equal(t, 6.0, readFloat64(ctx.Output[:8]))

	// Integer family: an int32 column with nulls accumulates as int64.
	vals := []int32{1, 2, scalar.NullInt32, 4, scalar.NullInt32, 8}
	col := make([]byte, len(vals)*4)
	for i, v := range vals {
		binary.LittleEndian.PutUint32(col[i*4:], uint32(v))
	}
	ictx := &Context{
		Size:       len(vals),
		Input:      col,
		InputBytes: 4,
		InputType:  scalar.TypeInt32,
		ValueType:  scalar.TypeInt64,
		Output:     make([]byte, 8),
	}
	iop := &sumOp{}
	iop.Setup(ictx)
	iop.StepBlock(ictx)
	iop.Finalize(ictx)
	assert.Equal(t, int64(15), readInt64(ictx.Output[:8]))
}

func TestSumAllNullProducesNullSentinel(t *testing.T) {
	ctx := newCtx([]float64{scalar.NullFloat64(), scalar.NullFloat64()}, nil)
	op := &sumOp{}
	op.Setup(ctx)
	op.StepBlock(ctx)
	op.Finalize(ctx)
	assert.True(t, scalar.IsNullFloat64(readFloat64(ctx.Output[:8])))
}

func TestAvgDividesByNonNullCount(t *testing.T) {
	ctx := newCtx([]float64{2, 4, scalar.NullFloat64()}, nil)
	op := &avgOp{}
	op.Setup(ctx)
	op.StepBlock(ctx)
	op.Finalize(ctx)
	assert.Equal(t, 3.0, readFloat64(ctx.Output[:8]))
}

func TestMinMaxSeedsWithInfNotFltMin(t *testing.T) {
	ctx := newCtx([]float64{5, -2, 9, 1}, nil)
	maxOp := &minmaxOp{isMax: true}
	maxOp.Setup(ctx)
	maxOp.StepBlock(ctx)
	maxOp.Finalize(ctx)
	assert.Equal(t, 9.0, readFloat64(ctx.Output[:8]))

	ctx2 := newCtx([]float64{5, -2, 9, 1}, nil)
	minOp := &minmaxOp{isMax: false}
	minOp.Setup(ctx2)
	minOp.StepBlock(ctx2)
	minOp.Finalize(ctx2)
	assert.Equal(t, -2.0, readFloat64(ctx2.Output[:8]))

	// All-negative input: a -FLT_MIN seed would win here, a -Inf seed cannot.
	ctx3 := newCtx([]float64{-5, -3}, nil)
	negMax := &minmaxOp{isMax: true}
	negMax.Setup(ctx3)
	negMax.StepBlock(ctx3)
	negMax.Finalize(ctx3)
	assert.Equal(t, -3.0, readFloat64(ctx3.Output[:8]))
}

func TestMinMaxEmptyGroupIsNull(t *testing.T) {
	ctx := newCtx(nil, nil)
	op := &minmaxOp{isMax: true}
	op.Setup(ctx)
	op.StepBlock(ctx)
	op.Finalize(ctx)
	assert.True(t, scalar.IsNullFloat64(readFloat64(ctx.Output[:8])))
}

func TestSpreadMaxMinusMin(t *testing.T) {
	ctx := newCtx([]float64{5, -2, 9, 1}, nil)
	op := &spreadOp{}
	op.Setup(ctx)
	op.StepBlock(ctx)
	op.Finalize(ctx)
	assert.Equal(t, 11.0, readFloat64(ctx.Output[:8]))
}

func TestElapsedReusesSpreadLayoutOverTimestamps(t *testing.T) {
	ctx := newCtx([]float64{1, 2, 3}, []int64{100, 150, 400})
	op := &spreadOp{elapsed: true}
	op.Setup(ctx)
	op.StepBlock(ctx)
	op.Finalize(ctx)
	assert.Equal(t, int64(300), readInt64(ctx.Output[:8]))
}

func TestStddevTwoPhase(t *testing.T) {
	vals := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	ctx := newCtx(vals, nil)
	op := &stddevOp{}
	op.Setup(ctx)
	op.StepBlock(ctx)
	op.NextStage(ctx)
	op.StepBlock(ctx)
	op.Finalize(ctx)
	assert.InDelta(t, 2.0, readFloat64(ctx.Output[:8]), 1e-9)
}

func TestStddevNextStageIdempotent(t *testing.T) {
	vals := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	ctx := newCtx(vals, nil)
	op := &stddevOp{}
	op.Setup(ctx)
	op.StepBlock(ctx)
	op.NextStage(ctx)
	op.NextStage(ctx) // repeat call before the variance-pass block arrives
	op.StepBlock(ctx)
	op.Finalize(ctx)
	assert.InDelta(t, 2.0, readFloat64(ctx.Output[:8]), 1e-9)
}

func TestPercentileExactMedian(t *testing.T) {
	ctx := newCtx([]float64{1, 2, 3, 4, 5}, nil)
	ctx.Params[0] = 0.5
	op := &percentileOp{}
	op.Setup(ctx)
	op.StepBlock(ctx)
	op.Finalize(ctx)
	assert.Equal(t, 3.0, readFloat64(ctx.Output[:8]))
}

func TestApercentileUniformApprox(t *testing.T) {
	vals := make([]float64, 0, 200)
	for i := 0; i < 200; i++ {
		vals = append(vals, float64(i))
	}
	ctx := newCtx(vals, nil)
	ctx.Params[0] = 0.5
	op := &apercentileOp{}
	op.Setup(ctx)
	op.StepBlock(ctx)
	op.Finalize(ctx)
	assert.InDelta(t, 100, readFloat64(ctx.Output[:8]), 30)
}

func TestApercentileMergeOnEmptyTargetCopies(t *testing.T) {
	a := histogram.NewApprox(10)
	require.True(t, a.Empty())
	b := histogram.NewApprox(10)
	b.Insert(1)
	b.Insert(2)
	a.Merge(b)
	assert.False(t, a.Empty())
	assert.Equal(t, 2, len(a.Bins()))
}

func TestTopKKeepsLargestInRankOrder(t *testing.T) {
	ctx := newCtx([]float64{3, 9, 1, 7, 5}, []int64{1, 2, 3, 4, 5})
	ctx.Params[0] = 3
	ctx.PtsOutput = make([]int64, 3)
	op := &topBottomOp{isTop: true}
	op.Setup(ctx)
	op.StepBlock(ctx)
	op.Finalize(ctx)
	assert.Equal(t, 9.0, readFloat64(ctx.Output[0:8]))
	assert.Equal(t, 7.0, readFloat64(ctx.Output[8:16]))
	assert.Equal(t, 5.0, readFloat64(ctx.Output[16:24]))
	assert.Equal(t, int64(2), ctx.PtsOutput[0])
}

func TestBottomKKeepsSmallest(t *testing.T) {
	ctx := newCtx([]float64{3, 9, 1, 7, 5}, []int64{1, 2, 3, 4, 5})
	ctx.Params[0] = 2
	ctx.PtsOutput = make([]int64, 2)
	op := &topBottomOp{isTop: false}
	op.Setup(ctx)
	op.StepBlock(ctx)
	op.Finalize(ctx)
	assert.Equal(t, 1.0, readFloat64(ctx.Output[0:8]))
	assert.Equal(t, 3.0, readFloat64(ctx.Output[8:16]))
}

// TestTop2SortByTimestampAscOnTies: rows (10,3),(20,7),(30,5),(40,7) with k=2 keep the two sevens; sorting the
// output by timestamp ascending yields (20,7) then (40,7).
func TestTop2SortByTimestampAscOnTies(t *testing.T) {
	ctx := newCtx([]float64{3, 7, 5, 7}, []int64{10, 20, 30, 40})
	ctx.Params[0] = 2
	ctx.Params[1] = topBottomSortByTimestamp
	ctx.Params[2] = float64(Asc)
	ctx.PtsOutput = make([]int64, 2)
	op := &topBottomOp{isTop: true}
	op.Setup(ctx)
	op.StepBlock(ctx)
	op.Finalize(ctx)
	assert.Equal(t, 7.0, readFloat64(ctx.Output[0:8]))
	assert.Equal(t, int64(20), ctx.PtsOutput[0])
	assert.Equal(t, 7.0, readFloat64(ctx.Output[8:16]))
	assert.Equal(t, int64(40), ctx.PtsOutput[1])
}

func TestTopBlockPreFilterSkipsUnimprovableBlocks(t *testing.T) {
	ctx := newCtx([]float64{9, 7}, []int64{1, 2})
	ctx.Params[0] = 2
	op := &topBottomOp{isTop: true}
	op.Setup(ctx)
	op.StepBlock(ctx)

	ctx.PreAgg = scalar.PreAgg{IsSet: true, MaxFloat: 6}
	assert.Equal(t, LoadNone, op.BlockLoadNeed(ctx, 0))
	ctx.PreAgg.MaxFloat = 8
	assert.Equal(t, LoadAll, op.BlockLoadNeed(ctx, 0))
}

func TestTwaStepIntegration(t *testing.T) {
	// start=0, end=10, rows (0,10),(5,20): segment 1 holds 10 from 0 to 5
	// (50), closure holds 20 from 5 to 10 (100); total 150 / span 10 = 15.
	ctx := newCtx([]float64{10, 20}, []int64{0, 5})
	ctx.WindowStart, ctx.WindowEnd = 0, 10
	op := &twaOp{}
	op.Setup(ctx)
	op.StepBlock(ctx)
	op.Finalize(ctx)
	assert.Equal(t, 15.0, readFloat64(ctx.Output[:8]))
}

func TestTwaZeroSpanYieldsZero(t *testing.T) {
	ctx := newCtx([]float64{10}, []int64{5})
	ctx.WindowStart, ctx.WindowEnd = 5, 5
	op := &twaOp{}
	op.Setup(ctx)
	op.StepBlock(ctx)
	op.Finalize(ctx)
	assert.Equal(t, 0.0, readFloat64(ctx.Output[:8]))
}

func TestTwaNoDataYieldsNull(t *testing.T) {
	ctx := newCtx(nil, nil)
	ctx.WindowStart, ctx.WindowEnd = 0, 10
	op := &twaOp{}
	op.Setup(ctx)
	op.StepBlock(ctx)
	op.Finalize(ctx)
	assert.True(t, scalar.IsNullFloat64(readFloat64(ctx.Output[:8])))
}

func TestDiffStreamsAcrossBlocks(t *testing.T) {
	ctx := newCtx([]float64{1, 3}, []int64{10, 20})
	ctx.PtsOutput = make([]int64, 4)
	op := &diffOp{}
	op.Setup(ctx)
	op.StepBlock(ctx)
	assert.Equal(t, 2.0, readFloat64(ctx.Output[0:8]))
	assert.Equal(t, int64(20), ctx.PtsOutput[0])

	ctx.Input = floatColumn([]float64{6})
	ctx.TsList = []int64{30}
	ctx.Size = 1
	op.StepBlock(ctx)
	assert.Equal(t, 3.0, readFloat64(ctx.Output[0:8]))
}

func TestDiffPreservesInt32Width(t *testing.T) {
	buf := make([]byte, 3*4)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(int32(10)))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(int32(13)))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(int32(9)))
	ctx := &Context{
		Size:       3,
		Input:      buf,
		InputBytes: 4,
		InputType:  scalar.TypeInt32,
		ValueType:  scalar.TypeInt32,
		TsList:     []int64{1, 2, 3},
		Output:     make([]byte, 64),
		PtsOutput:  make([]int64, 3),
	}
	op := &diffOp{}
	op.Setup(ctx)
	op.StepBlock(ctx)
	assert.Equal(t, int32(3), int32(binary.LittleEndian.Uint32(ctx.Output[0:4])))
	assert.Equal(t, int32(-4), int32(binary.LittleEndian.Uint32(ctx.Output[4:8])))
	assert.Equal(t, int64(2), ctx.PtsOutput[0])
	assert.Equal(t, int64(3), ctx.PtsOutput[1])
}

func TestTsCompWritesDeltaEncodedScratchFileAndEmitsPath(t *testing.T) {
	ctx := newCtx([]float64{0, 0, 0}, []int64{1000, 1010, 1025})
	ctx.Output = make([]byte, tsCompPathBytes)
	op := &tsCompOp{}
	op.Setup(ctx)
	op.StepBlock(ctx)
	op.Finalize(ctx)

	path := string(bytes.TrimRight(ctx.Output, "\x00"))
	require.NotEmpty(t, path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	defer os.Remove(path)

	var deltas []int64
	for len(data) > 0 {
		v, n := binary.Varint(data)
		require.Greater(t, n, 0)
		deltas = append(deltas, v)
		data = data[n:]
	}
	assert.Equal(t, []int64{1000, 10, 15}, deltas)
}

func TestInterpModes(t *testing.T) {
	mkCtx := func(mode interpMode) *Context {
		ctx := newCtx([]float64{10, 30}, []int64{100, 300})
		ctx.Params[1] = 200 // anchor timestamp
		ctx.Params[3] = float64(mode)
		return ctx
	}
	run := func(ctx *Context) {
		op := &interpOp{}
		op.Setup(ctx)
		op.StepBlock(ctx)
		op.Finalize(ctx)
	}

	linear := mkCtx(interpLinear)
	run(linear)
	assert.Equal(t, 20.0, readFloat64(linear.Output[:8]))

	prev := mkCtx(interpPrev)
	run(prev)
	assert.Equal(t, 10.0, readFloat64(prev.Output[:8]))

	direct := mkCtx(interpDirect)
	run(direct)
	assert.True(t, scalar.IsNullFloat64(readFloat64(direct.Output[:8])))

	setValue := mkCtx(interpSetValue)
	setValue.Params[2] = 42
	run(setValue)
	assert.Equal(t, 42.0, readFloat64(setValue.Output[:8]))

	filledNull := mkCtx(interpNull)
	run(filledNull)
	assert.True(t, scalar.IsNullFloat64(readFloat64(filledNull.Output[:8])))

	none := mkCtx(interpNone)
	run(none)
	assert.Equal(t, int64(0), none.Result.NumOfRes)
}

func TestArithmeticEvaluatesCallerExpressionOverResolvedColumns(t *testing.T) {
	base := floatColumn([]float64{1, 2, 3})
	other := floatColumn([]float64{10, 20, 30})
	columns := map[int][]byte{0: base, 1: other}

	ctx := newCtx([]float64{1, 2, 3}, nil)
	resolve := func(colID int) ([]byte, int, scalar.Type) {
		return columns[colID], 8, scalar.TypeFloat64
	}
	ctx.Aux = &ArithmeticExpr{
		Resolve: resolve,
		Eval: func(resolve ColumnResolver, row int) (float64, bool) {
			a, _, _ := resolve(0)
			b, _, _ := resolve(1)
			return readFloat64(a[row*8:]) + readFloat64(b[row*8:]), false
		},
	}

	op := &arithmeticOp{}
	op.Setup(ctx)
	op.StepBlock(ctx)
	op.Finalize(ctx)
	assert.Equal(t, 11.0, readFloat64(ctx.Output[0:8]))
	assert.Equal(t, 22.0, readFloat64(ctx.Output[8:16]))
	assert.Equal(t, 33.0, readFloat64(ctx.Output[16:24]))
}

func TestProjectionDescendingWritesAtDecreasingOffsets(t *testing.T) {
	ctx := newCtx([]float64{1, 2, 3}, nil)
	ctx.Order = Desc
	ctx.OutputBytes = 8
	op := &projectionOp{}
	op.Setup(ctx)
	op.StepBlock(ctx)
	assert.Equal(t, 3.0, readFloat64(ctx.Output[0:8]))
	assert.Equal(t, 2.0, readFloat64(ctx.Output[8:16]))
	assert.Equal(t, 1.0, readFloat64(ctx.Output[16:24]))
}

func TestLeastsquaresFormatsTextualOutput(t *testing.T) {
	ctx := newCtx([]float64{1, 2, 3, 4}, nil)
	ctx.Params[0], ctx.Params[1] = 0, 1
	ctx.Output = make([]byte, leastsquaresOutputBytes)
	op := &leastsquaresOp{}
	op.Setup(ctx)
	op.StepBlock(ctx)
	op.Finalize(ctx)
	text := string(ctx.Output)
	require.Contains(t, text, "1.000000")
}

func TestMinMaxSuperTableWidensBuffer(t *testing.T) {
	ctx := newCtx([]float64{5, -2, 9}, nil)
	ctx.IsSuperTable = true
	op := &minmaxOp{isMax: true}
	op.Setup(ctx)
	op.StepBlock(ctx)
	assert.Equal(t, 9.0, readFloat64(ctx.Output[:8]))
	assert.Equal(t, byte(1), ctx.Output[8])
}

func TestSumMergeSkipsUnsetSnapshots(t *testing.T) {
	mergeCtx := &Context{
		Size:         2,
		Input:        make([]byte, 2*9),
		InputBytes:   9,
		ValueType:    scalar.TypeFloat64,
		Output:       make([]byte, 9),
		IsSuperTable: true,
	}
	writeFloat64(mergeCtx.Input[0:8], 10)
	mergeCtx.Input[8] = 1 // data-set flag
	// second snapshot unset (flag 0), must not contribute.
	writeFloat64(mergeCtx.Input[9:17], 999)
	mergeCtx.Input[17] = 0

	op := &sumOp{}
	op.Setup(mergeCtx)
	op.FirstMerge(mergeCtx)
	assert.Equal(t, 10.0, readFloat64(mergeCtx.Result.InterBuf[:8]))
}

func TestMinMaxUsesStrictComparisonFirstOccurrenceWins(t *testing.T) {
	op := &minmaxOp{isMax: true}
	assert.False(t, op.better(5, 5))
	assert.True(t, op.better(6, 5))
}

// TestMinCarriesTagOfFirstRowThatSetsTheExtremum: with rows
// (ts=100,v=5,tag="a"), (ts=200,v=3,tag="b"),
// (ts=300,v=3,tag="c") minimizing v must carry tag "b", since the row at
// ts=200 is the first to set the new minimum and ts=300 only ties it.
func TestMinCarriesTagOfFirstRowThatSetsTheExtremum(t *testing.T) {
	ctx := newCtx([]float64{5, 3, 3}, []int64{100, 200, 300})
	tag := &TagContext{}
	ctx.TagContexts = []*TagContext{tag}

	op := &minmaxOp{isMax: false}
	op.Setup(ctx)
	for i := 0; i < ctx.Size; i++ {
		tags := []string{"a", "b", "c"}
		tag.Pending = []byte(tags[i])
		op.StepRow(ctx, i)
	}
	op.Finalize(ctx)

	assert.Equal(t, 3.0, readFloat64(ctx.Output[:8]))
	assert.Equal(t, "b", string(tag.Value))
}

// TestAvgDistributedSecondMergeOfTwoNodes: node A sees [1.0, 2.0] (sum=3, count=2), node B sees
// [3.0, null] (sum=3, count=1); second-merge combines to (6, 3) and
// finalize divides to 2.0.
func TestAvgDistributedSecondMergeOfTwoNodes(t *testing.T) {
	nodeA := newCtx([]float64{1.0, 2.0}, nil)
	opA := &avgOp{}
	opA.Setup(nodeA)
	opA.StepBlock(nodeA)

	nodeB := newCtx([]float64{3.0, scalar.NullFloat64()}, nil)
	opB := &avgOp{}
	opB.Setup(nodeB)
	opB.StepBlock(nodeB)

	// nodeA and nodeB are not super-table contexts, so StepBlock writes no
	// snapshot to their Output; their (sum, count) intermediates are written
	// by hand into the coordinator's second-merge input below.
	coordinator := &Context{
		Size:       2,
		Input:      make([]byte, 2*16),
		InputBytes: 16,
		InputType:  scalar.TypeBytes,
		Stage:      StageSecondMerge,
		ValueType:  scalar.TypeFloat64,
		Output:     make([]byte, 16),
	}
	writeFloat64(coordinator.Input[0:8], 3)
	writeInt64(coordinator.Input[8:16], 2)
	writeFloat64(coordinator.Input[16:24], 3)
	writeInt64(coordinator.Input[24:32], 1)

	opC := &avgOp{}
	opC.Setup(coordinator)
	opC.SecondMerge(coordinator)
	opC.Finalize(coordinator)

	assert.Equal(t, 2.0, readFloat64(coordinator.Output[:8]))
}

// TestSecondMergeRejectsNonBinaryInput covers the stage assertion: feeding a
// second-merge anything but the binary snapshot type is a programming error
// in the reduction driver and must be fatal.
func TestSecondMergeRejectsNonBinaryInput(t *testing.T) {
	ctx := &Context{
		Size:       1,
		Input:      make([]byte, 16),
		InputBytes: 16,
		InputType:  scalar.TypeFloat64, // raw column type, not a snapshot
		Stage:      StageSecondMerge,
		ValueType:  scalar.TypeFloat64,
		Output:     make([]byte, 16),
	}
	op := &avgOp{}
	op.Setup(ctx)
	assert.Panics(t, func() { op.SecondMerge(ctx) })
}

// TestDiffSkipsLeadingNullsAndFirstValue: [null, 5, 7, null, 10] at ts [1,2,3,4,5] emits (2, ts=3) and
// (3, ts=5) only — the first non-null row never emits a diff, and a null
// row produces no output.
func TestDiffSkipsLeadingNullsAndFirstValue(t *testing.T) {
	ctx := newCtx([]float64{scalar.NullFloat64(), 5, 7, scalar.NullFloat64(), 10}, []int64{1, 2, 3, 4, 5})
	ctx.PtsOutput = make([]int64, 5)
	op := &diffOp{}
	op.Setup(ctx)
	op.StepBlock(ctx)

	require.GreaterOrEqual(t, ctx.Result.NumOfRes, int64(2))
	assert.Equal(t, 2.0, readFloat64(ctx.Output[0:8]))
	assert.Equal(t, int64(3), ctx.PtsOutput[0])
	assert.Equal(t, 3.0, readFloat64(ctx.Output[8:16]))
	assert.Equal(t, int64(5), ctx.PtsOutput[1])
}
