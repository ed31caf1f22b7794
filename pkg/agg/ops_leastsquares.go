package agg

import (
	"fmt"

	"github.com/tsengine/aggwheel/pkg/scalar"
)

// leastsquaresOp maintains a 2x3 coefficient matrix and a running x-value.
// ctx.Params[0] is the start x, ctx.Params[1] is the x-step. It is
// scan-only, like stddev/percentile/diff/interp.
type leastsquaresOp struct{}

const (
	leastsquaresMatrixBytes = 6 * 8 // {sumXX, sumX, sumXY, _, n, sumY} row-major 2x3
	leastsquaresRowCounter  = 8
	leastsquaresInterBytes  = leastsquaresMatrixBytes + leastsquaresRowCounter
	leastsquaresOutputBytes = 64
)

func init() {
	register(&Descriptor{
		Name:       "leastsquares",
		ID:         Leastsquares,
		DistID:     Leastsquares,
		Capability: SO,
		Compat:     CompatExclusive,
		New:        func() Operator { return &leastsquaresOp{} },
		DataInfo: func(inType scalar.Type, inBytes int, param int, isSuperTable bool) (DataInfo, error) {
			if isSuperTable {
				return DataInfo{}, errorsUnsupportedSuperTable("leastsquares")
			}
			return DataInfo{OutType: scalar.TypeBytes, OutBytes: leastsquaresOutputBytes, InterBytes: leastsquaresInterBytes}, nil
		},
	})
}

func (leastsquaresOp) Setup(ctx *Context) bool {
	if ctx.Result.Initialized {
		return false
	}
	ctx.Result.Reset(leastsquaresInterBytes)
	ctx.Result.Initialized = true
	return true
}

func (leastsquaresOp) matrix(ctx *Context) (sumXX, sumX, sumXY, n, sumY float64) {
	b := ctx.Result.InterBuf
	sumXX = readFloat64(b[0:8])
	sumX = readFloat64(b[8:16])
	sumXY = readFloat64(b[16:24])
	n = readFloat64(b[32:40])
	sumY = readFloat64(b[40:48])
	return
}

func (leastsquaresOp) setMatrix(ctx *Context, sumXX, sumX, sumXY, n, sumY float64) {
	b := ctx.Result.InterBuf
	writeFloat64(b[0:8], sumXX)
	writeFloat64(b[8:16], sumX)
	writeFloat64(b[16:24], sumXY)
	writeFloat64(b[32:40], n)
	writeFloat64(b[40:48], sumY)
}

func (leastsquaresOp) rowCounter(ctx *Context) float64 {
	return readFloat64(ctx.Result.InterBuf[48:56])
}

func (leastsquaresOp) setRowCounter(ctx *Context, v float64) {
	writeFloat64(ctx.Result.InterBuf[48:56], v)
}

func (o leastsquaresOp) step(ctx *Context, i int) {
	y, isNull := readFloat(ctx, i)
	if isNull {
		return
	}
	x := ctx.Params[0] + ctx.Params[1]*o.rowCounter(ctx)
	sumXX, sumX, sumXY, n, sumY := o.matrix(ctx)
	sumXX += x * x
	sumX += x
	sumXY += x * y
	n++
	sumY += y
	o.setMatrix(ctx, sumXX, sumX, sumXY, n, sumY)
	ctx.Result.HasResult = true
}

func (o leastsquaresOp) StepBlock(ctx *Context) {
	for i := 0; i < ctx.Size; i++ {
		o.step(ctx, i)
		o.setRowCounter(ctx, o.rowCounter(ctx)+1)
	}
}

func (o leastsquaresOp) StepRow(ctx *Context, i int) {
	o.step(ctx, i)
	o.setRowCounter(ctx, o.rowCounter(ctx)+1)
}

func (leastsquaresOp) NextStage(ctx *Context) {}

// Finalize solves the 2x2 normal-equation system by Gaussian elimination
// and formats "(slope, intercept)" into the fixed-width output buffer.
// Consumers parse this text in place; producer and consumer must change
// together.
func (o leastsquaresOp) Finalize(ctx *Context) {
	if !ctx.Result.HasResult {
		for i := range ctx.Output[:leastsquaresOutputBytes] {
			ctx.Output[i] = 0
		}
		return
	}
	sumXX, sumX, sumXY, n, sumY := o.matrix(ctx)
	// | sumXX sumX | |slope    |   |sumXY|
	// | sumX  n    | |intercept| = |sumY |
	det := sumXX*n - sumX*sumX
	var slope, intercept float64
	if det != 0 {
		slope = (sumXY*n - sumX*sumY) / det
		intercept = (sumXX*sumY - sumX*sumXY) / det
	}
	text := fmt.Sprintf("(%.6f, %.6f)", slope, intercept)
	out := ctx.Output[:leastsquaresOutputBytes]
	for i := range out {
		out[i] = 0
	}
	copy(out, text)
	ctx.Result.Complete = true
}

func (leastsquaresOp) FirstMerge(ctx *Context)  {}
func (leastsquaresOp) SecondMerge(ctx *Context) {}

func (leastsquaresOp) BlockLoadNeed(ctx *Context, colID int) LoadNeed { return LoadAll }
