package agg

import (
	"encoding/binary"
	"math"

	"github.com/tsengine/aggwheel/pkg/scalar"
)

// readFloat reads the value at row i of ctx.Input as a float64, regardless
// of the declared numeric type, and reports whether it is null. Every
// numeric operator's step hook reads through it, except sum's integer
// family, which uses readInt.
func readFloat(ctx *Context, i int) (v float64, isNull bool) {
	off := i * ctx.InputBytes
	b := ctx.Input[off:]
	switch ctx.InputType {
	case scalar.TypeInt8:
		x := int8(b[0])
		return float64(x), x == scalar.NullInt8
	case scalar.TypeInt16:
		x := int16(binary.LittleEndian.Uint16(b))
		return float64(x), x == scalar.NullInt16
	case scalar.TypeInt32:
		x := int32(binary.LittleEndian.Uint32(b))
		return float64(x), x == scalar.NullInt32
	case scalar.TypeInt64, scalar.TypeTimestamp:
		x := int64(binary.LittleEndian.Uint64(b))
		return float64(x), x == scalar.NullInt64
	case scalar.TypeFloat32:
		x := math.Float32frombits(binary.LittleEndian.Uint32(b))
		return float64(x), scalar.IsNullFloat32(x)
	case scalar.TypeFloat64:
		x := math.Float64frombits(binary.LittleEndian.Uint64(b))
		return x, scalar.IsNullFloat64(x)
	default:
		return 0, true
	}
}

// readInt reads the value at row i as an int64, used by sum's integer
// family to preserve integer identity rather than widen to float64.
func readInt(ctx *Context, i int) (v int64, isNull bool) {
	off := i * ctx.InputBytes
	b := ctx.Input[off:]
	switch ctx.InputType {
	case scalar.TypeInt8:
		x := int8(b[0])
		return int64(x), x == scalar.NullInt8
	case scalar.TypeInt16:
		x := int16(binary.LittleEndian.Uint16(b))
		return int64(x), x == scalar.NullInt16
	case scalar.TypeInt32:
		x := int32(binary.LittleEndian.Uint32(b))
		return int64(x), x == scalar.NullInt32
	case scalar.TypeInt64, scalar.TypeTimestamp:
		x := int64(binary.LittleEndian.Uint64(b))
		return x, x == scalar.NullInt64
	default:
		f, isNull := readFloat(ctx, i)
		return int64(f), isNull
	}
}

// writeFloat64 writes v as a native float64 to dst[0:8].
func writeFloat64(dst []byte, v float64) {
	binary.LittleEndian.PutUint64(dst, math.Float64bits(v))
}

func readFloat64(src []byte) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(src))
}

func writeInt64(dst []byte, v int64) {
	binary.LittleEndian.PutUint64(dst, uint64(v))
}

// writeIntWidth writes v into dst using the width appropriate for t,
// truncating to the declared integer width (diff, which preserves the
// input type rather than widening to float64/int64).
func writeIntWidth(dst []byte, t scalar.Type, v int64) {
	switch t {
	case scalar.TypeInt8:
		dst[0] = byte(int8(v))
	case scalar.TypeInt16:
		binary.LittleEndian.PutUint16(dst, uint16(int16(v)))
	case scalar.TypeInt32:
		binary.LittleEndian.PutUint32(dst, uint32(int32(v)))
	default:
		binary.LittleEndian.PutUint64(dst, uint64(v))
	}
}

func readInt64(src []byte) int64 {
	return int64(binary.LittleEndian.Uint64(src))
}

// writeRaw copies a single raw element (of ctx.OutputBytes width) from src
// into ctx.Output at the given row index.
func writeRaw(ctx *Context, rowIndex int, src []byte) {
	off := rowIndex * ctx.OutputBytes
	copy(ctx.Output[off:off+ctx.OutputBytes], src)
}

// writeNullSentinel writes the type-specific null value to dst, sized
// ctx.OutputBytes.
func writeNullSentinel(dst []byte, t scalar.Type) {
	switch t {
	case scalar.TypeInt8:
		v8 := scalar.NullInt8
		dst[0] = byte(v8)
	case scalar.TypeInt16:
		v16 := scalar.NullInt16
		binary.LittleEndian.PutUint16(dst, uint16(v16))
	case scalar.TypeInt32:
		v32 := scalar.NullInt32
		binary.LittleEndian.PutUint32(dst, uint32(v32))
	case scalar.TypeInt64, scalar.TypeTimestamp:
		v64 := scalar.NullInt64
		binary.LittleEndian.PutUint64(dst, uint64(v64))
	case scalar.TypeFloat32:
		binary.LittleEndian.PutUint32(dst, math.Float32bits(scalar.NullFloat32()))
	case scalar.TypeFloat64:
		binary.LittleEndian.PutUint64(dst, math.Float64bits(scalar.NullFloat64()))
	default:
		for i := range dst {
			dst[i] = 0
		}
	}
}

// inputElemAt returns the raw bytes for row i of ctx.Input.
func inputElemAt(ctx *Context, i int) []byte {
	off := i * ctx.InputBytes
	return ctx.Input[off : off+ctx.InputBytes]
}
