// Package scalar implements the typed scalar values that flow through the
// aggregation kernel: the fixed set of column types the engine understands,
// their canonical null sentinels, and per-block pre-aggregate summaries.
package scalar

import (
	"math"

	"github.com/pkg/errors"
)

// Type tags the variant a column's values are stored as.
type Type uint8

const (
	TypeInt8 Type = iota
	TypeInt16
	TypeInt32
	TypeInt64
	TypeFloat32
	TypeFloat64
	TypeTimestamp // milliseconds since epoch, stored as int64
	TypeBool
	TypeBytes // fixed-width bytes (VARCHAR-like)
	TypeNChar // fixed-width wide-char bytes
)

// Bytes returns the fixed element width for the fixed-size numeric types.
// TypeBytes and TypeNChar are variable width and report 0; callers must carry
// the width out of band (as the evaluation context's InputBytes field does).
func (t Type) Bytes() int {
	switch t {
	case TypeInt8, TypeBool:
		return 1
	case TypeInt16:
		return 2
	case TypeInt32, TypeFloat32:
		return 4
	case TypeInt64, TypeFloat64, TypeTimestamp:
		return 8
	default:
		return 0
	}
}

// IsNumeric reports whether t participates in sum/avg/min/max-style
// arithmetic reduction.
func (t Type) IsNumeric() bool {
	switch t {
	case TypeInt8, TypeInt16, TypeInt32, TypeInt64, TypeFloat32, TypeFloat64, TypeTimestamp:
		return true
	default:
		return false
	}
}

// IsFloat reports whether t belongs to the float family for sum/avg dispatch.
func (t Type) IsFloat() bool {
	return t == TypeFloat32 || t == TypeFloat64
}

// Null sentinels. Each is a bit pattern that can never be produced by a
// legal, non-null value of its type: the integer families use the type's
// minimum representable value, the float families use a biased NaN payload,
// and booleans reserve a third byte value.
const (
	NullInt8      int8    = math.MinInt8
	NullInt16     int16   = math.MinInt16
	NullInt32     int32   = math.MinInt32
	NullInt64     int64   = math.MinInt64
	NullTimestamp int64   = math.MinInt64
	NullBool      uint8   = 2
	nullFloatBits uint32  = 0x7FF00000 // non-canonical NaN payload reserved for null
	nullDoubleHi  uint64  = 0xFFF0000000000001
)

// NullFloat32 is the sentinel null value for Float32 columns.
func NullFloat32() float32 {
	return math.Float32frombits(nullFloatBits)
}

// NullFloat64 is the sentinel null value for Float64 columns.
func NullFloat64() float64 {
	return math.Float64frombits(nullDoubleHi)
}

// IsNullFloat32 reports whether v bit-matches the Float32 null sentinel.
// A plain v != v (NaN) check is insufficient since ordinary NaNs must not be
// confused with the reserved null encoding.
func IsNullFloat32(v float32) bool {
	return math.Float32bits(v) == nullFloatBits
}

// IsNullFloat64 reports whether v bit-matches the Float64 null sentinel.
func IsNullFloat64(v float64) bool {
	return math.Float64bits(v) == nullDoubleHi
}

// ErrInvalidType is returned when an operator is asked to operate on a type
// it does not support.
var ErrInvalidType = errors.New("invalid column type for operator")

// PreAgg holds a single column's pre-computed block summary. Consumers must
// fall back to a raw scan whenever IsSet is false.
type PreAgg struct {
	IsSet     bool
	NullCount int64
	SumInt    int64
	SumFloat  float64
	MinInt    int64
	MaxInt    int64
	MinFloat  float64
	MaxFloat  float64
	MinIndex  int32
	MaxIndex  int32
}

// Order is the scan direction used to resolve first/last semantics.
type Order uint8

const (
	Asc Order = iota
	Desc
)
