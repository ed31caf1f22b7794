package agg

import "github.com/tsengine/aggwheel/pkg/scalar"

// ColumnResolver maps a column id to that column's raw bytes, element
// stride, and type within the current block. The expression evaluator
// calls it to read operands; the kernel itself never interprets the
// expression tree.
type ColumnResolver func(colID int) (data []byte, elemBytes int, typ scalar.Type)

// ExprEvaluator evaluates the caller's expression tree for one row,
// resolving column references through resolve. isNull reports that an
// operand was null, in which case the output row is the null sentinel.
type ExprEvaluator func(resolve ColumnResolver, row int) (v float64, isNull bool)

// ArithmeticExpr is the opaque evaluation pair the caller plants in
// ctx.Aux before stepping the arithmetic operator.
type ArithmeticExpr struct {
	Eval    ExprEvaluator
	Resolve ColumnResolver
}

// arithmeticOp evaluates a caller-provided expression tree over one or more
// input columns, streaming row-for-row with no cross-row state. Output is
// always a 64-bit float. With no expression
// installed it degenerates to a pass-through of the primary input column.
type arithmeticOp struct{}

func init() {
	register(&Descriptor{
		Name:       "arithmetic",
		ID:         Arithmetic,
		DistID:     Arithmetic,
		Capability: MO | Stream,
		Compat:     CompatStackable,
		New:        func() Operator { return &arithmeticOp{} },
		DataInfo: func(inType scalar.Type, inBytes int, param int, isSuperTable bool) (DataInfo, error) {
			if isSuperTable {
				return DataInfo{}, errorsUnsupportedSuperTable("arithmetic")
			}
			return DataInfo{OutType: scalar.TypeFloat64, OutBytes: 8, InterBytes: 0}, nil
		},
	})
}

func (arithmeticOp) Setup(ctx *Context) bool {
	if ctx.Result.Initialized {
		return false
	}
	ctx.Result.Reset(0)
	ctx.Result.Initialized = true
	return true
}

func (arithmeticOp) eval(ctx *Context, row int) (float64, bool) {
	if expr, ok := ctx.Aux.(*ArithmeticExpr); ok && expr != nil && expr.Eval != nil {
		return expr.Eval(expr.Resolve, row)
	}
	return readFloat(ctx, row)
}

func (o arithmeticOp) StepBlock(ctx *Context) {
	for i := 0; i < ctx.Size; i++ {
		v, isNull := o.eval(ctx, i)
		if isNull {
			writeNullSentinel(ctx.Output[i*8:i*8+8], scalar.TypeFloat64)
			continue
		}
		writeFloat64(ctx.Output[i*8:i*8+8], v)
	}
	ctx.Result.HasResult = true
	ctx.Result.NumOfRes = int64(ctx.Size)
}

func (o arithmeticOp) StepRow(ctx *Context, i int) {
	v, isNull := o.eval(ctx, i)
	if isNull {
		writeNullSentinel(ctx.Output[:8], scalar.TypeFloat64)
		return
	}
	writeFloat64(ctx.Output[:8], v)
	ctx.Result.HasResult = true
	ctx.Result.NumOfRes++
}

func (arithmeticOp) NextStage(ctx *Context) {}

func (arithmeticOp) Finalize(ctx *Context) {
	if ctx.Result.HasResult {
		ctx.Result.Complete = true
	}
}

func (arithmeticOp) FirstMerge(ctx *Context)  {}
func (arithmeticOp) SecondMerge(ctx *Context) {}

func (arithmeticOp) BlockLoadNeed(ctx *Context, colID int) LoadNeed { return LoadFieldsOnly }
