package codec

import "math"

// Equal compares two decoded values. NaN equals NaN, and slices compare element by
// element.
func Equal(a, b any) bool {
	switch x := a.(type) {
	case nil:
		return b == nil
	case float32:
		y, ok := b.(float32)
		return ok && floatEq(float64(x), float64(y))
	case float64:
		y, ok := b.(float64)
		return ok && floatEq(x, y)
	case []bool:
		y, ok := b.([]bool)
		return ok && sliceEq(x, y, func(p, q bool) bool { return p == q })
	case []uint8:
		y, ok := b.([]uint8)
		return ok && sliceEq(x, y, func(p, q uint8) bool { return p == q })
	case []int8:
		y, ok := b.([]int8)
		return ok && sliceEq(x, y, func(p, q int8) bool { return p == q })
	case []int16:
		y, ok := b.([]int16)
		return ok && sliceEq(x, y, func(p, q int16) bool { return p == q })
	case []int32:
		y, ok := b.([]int32)
		return ok && sliceEq(x, y, func(p, q int32) bool { return p == q })
	case []int64:
		y, ok := b.([]int64)
		return ok && sliceEq(x, y, func(p, q int64) bool { return p == q })
	case []float32:
		y, ok := b.([]float32)
		return ok && sliceEq(x, y, func(p, q float32) bool { return floatEq(float64(p), float64(q)) })
	case []float64:
		y, ok := b.([]float64)
		return ok && sliceEq(x, y, floatEq)
	case []string:
		y, ok := b.([]string)
		return ok && sliceEq(x, y, func(p, q string) bool { return p == q })
	}
	return a == b
}

func floatEq(a, b float64) bool {
	if math.IsNaN(a) {
		return math.IsNaN(b)
	}
	return a == b
}

func sliceEq[T any](a, b []T, eq func(T, T) bool) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !eq(a[i], b[i]) {
			return false
		}
	}
	return true
}

// RowsEqual compares two rows cell by cell with Equal.
func RowsEqual(a, b []any) bool {
	return sliceEq(a, b, Equal)
}

// TablesEqual compares two sets of rows row by row with RowsEqual.
func TablesEqual(a, b [][]any) bool {
	return sliceEq(a, b, RowsEqual)
}
