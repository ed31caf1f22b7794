package scalar

import "testing"

func TestTypeBytes(t *testing.T) {
	cases := []struct {
		typ  Type
		want int
	}{
		{TypeInt8, 1},
		{TypeBool, 1},
		{TypeInt16, 2},
		{TypeInt32, 4},
		{TypeFloat32, 4},
		{TypeInt64, 8},
		{TypeFloat64, 8},
		{TypeTimestamp, 8},
		{TypeBytes, 0},
		{TypeNChar, 0},
	}
	for _, c := range cases {
		if got := c.typ.Bytes(); got != c.want {
			t.Errorf("Type(%d).Bytes() = %d, want %d", c.typ, got, c.want)
		}
	}
}

func TestNullFloatSentinels(t *testing.T) {
	if !IsNullFloat64(NullFloat64()) {
		t.Fatal("NullFloat64 must report as null")
	}
	if IsNullFloat64(0) {
		t.Fatal("zero must not be reported as null")
	}
	if IsNullFloat64(1.5) {
		t.Fatal("an ordinary value must not be reported as null")
	}
	if !IsNullFloat32(NullFloat32()) {
		t.Fatal("NullFloat32 must report as null")
	}
	if IsNullFloat32(-1) {
		t.Fatal("an ordinary value must not be reported as null")
	}
}

func TestIsNumericIsFloat(t *testing.T) {
	if !TypeInt32.IsNumeric() || TypeInt32.IsFloat() {
		t.Fatal("int32 must be numeric, not float")
	}
	if !TypeFloat64.IsNumeric() || !TypeFloat64.IsFloat() {
		t.Fatal("float64 must be numeric and float")
	}
	if TypeBytes.IsNumeric() {
		t.Fatal("bytes must not be numeric")
	}
}
