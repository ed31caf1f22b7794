package agg

import (
	"math"

	"github.com/tsengine/aggwheel/pkg/scalar"
)

// stddevOp implements the two-pass standard deviation aggregate. Its
// intermediate state is modeled explicitly as a union of two phases rather
// than relying on struct-layout overlay:
//
//	phase 0 (accumulator): {sum, num}      — identical math to avg's pass
//	phase 1 (variance):    {avg, num, sumSq}
//
// stddev is scan-only and does not support super-table mode.
type stddevOp struct{}

const (
	stddevPhaseAccumulate = 0
	stddevPhaseVariance   = 1
	stddevInterBytes      = 8 + 8 + 8 + 1 // sum/avg, num, sumSq, phase
)

func init() {
	register(&Descriptor{
		Name:       "stddev",
		ID:         Stddev,
		DistID:     Stddev,
		Capability: SO,
		Compat:     CompatStackable,
		New:        func() Operator { return &stddevOp{} },
		DataInfo: func(inType scalar.Type, inBytes int, param int, isSuperTable bool) (DataInfo, error) {
			if isSuperTable {
				return DataInfo{}, errorsUnsupportedSuperTable("stddev")
			}
			return DataInfo{OutType: scalar.TypeFloat64, OutBytes: 8, InterBytes: stddevInterBytes}, nil
		},
	})
}

func (stddevOp) phase(ctx *Context) byte  { return ctx.Result.InterBuf[24] }
func (stddevOp) numField(ctx *Context) float64 { return readFloat64(ctx.Result.InterBuf[8:16]) }

func (stddevOp) Setup(ctx *Context) bool {
	if ctx.Result.Initialized {
		return false
	}
	ctx.Result.Reset(stddevInterBytes)
	ctx.Result.InterBuf[24] = stddevPhaseAccumulate
	ctx.Result.Initialized = true
	return true
}

func (o stddevOp) StepBlock(ctx *Context) {
	switch o.phase(ctx) {
	case stddevPhaseAccumulate:
		sum := readFloat64(ctx.Result.InterBuf[0:8])
		num := readFloat64(ctx.Result.InterBuf[8:16])
		for i := 0; i < ctx.Size; i++ {
			v, isNull := readFloat(ctx, i)
			if isNull {
				continue
			}
			sum += v
			num++
		}
		writeFloat64(ctx.Result.InterBuf[0:8], sum)
		writeFloat64(ctx.Result.InterBuf[8:16], num)
		if num > 0 {
			ctx.Result.HasResult = true
		}
	case stddevPhaseVariance:
		avg := readFloat64(ctx.Result.InterBuf[0:8])
		sumSq := readFloat64(ctx.Result.InterBuf[16:24])
		for i := 0; i < ctx.Size; i++ {
			v, isNull := readFloat(ctx, i)
			if isNull {
				continue
			}
			d := v - avg
			sumSq += d * d
		}
		writeFloat64(ctx.Result.InterBuf[16:24], sumSq)
	}
}

func (o stddevOp) StepRow(ctx *Context, i int) {
	switch o.phase(ctx) {
	case stddevPhaseAccumulate:
		v, isNull := readFloat(ctx, i)
		if isNull {
			return
		}
		sum := readFloat64(ctx.Result.InterBuf[0:8]) + v
		num := readFloat64(ctx.Result.InterBuf[8:16]) + 1
		writeFloat64(ctx.Result.InterBuf[0:8], sum)
		writeFloat64(ctx.Result.InterBuf[8:16], num)
		ctx.Result.HasResult = true
	case stddevPhaseVariance:
		v, isNull := readFloat(ctx, i)
		if isNull {
			return
		}
		avg := readFloat64(ctx.Result.InterBuf[0:8])
		d := v - avg
		sumSq := readFloat64(ctx.Result.InterBuf[16:24]) + d*d
		writeFloat64(ctx.Result.InterBuf[16:24], sumSq)
	}
}

// NextStage snapshots the computed mean into the variance phase's avg
// field and advances the phase. Idempotent: InterBuf[0:8] holds sum only
// during the accumulate phase and avg from here on, so a repeat call before
// the next variance-pass block arrives is a no-op rather than re-dividing
// the already-computed mean.
func (stddevOp) NextStage(ctx *Context) {
	if ctx.Result.InterBuf[24] == stddevPhaseVariance {
		return
	}
	sum := readFloat64(ctx.Result.InterBuf[0:8])
	num := readFloat64(ctx.Result.InterBuf[8:16])
	var avg float64
	if num > 0 {
		avg = sum / num
	}
	writeFloat64(ctx.Result.InterBuf[0:8], avg)
	ctx.Result.InterBuf[24] = stddevPhaseVariance
}

func (o stddevOp) Finalize(ctx *Context) {
	num := readFloat64(ctx.Result.InterBuf[8:16])
	if num == 0 {
		writeNullSentinel(ctx.Output[:8], scalar.TypeFloat64)
		return
	}
	sumSq := readFloat64(ctx.Result.InterBuf[16:24])
	writeFloat64(ctx.Output[:8], math.Sqrt(sumSq/num))
	ctx.Result.Complete = true
}

func (stddevOp) FirstMerge(ctx *Context)  {}
func (stddevOp) SecondMerge(ctx *Context) {}

func (stddevOp) BlockLoadNeed(ctx *Context, colID int) LoadNeed { return LoadAll }
