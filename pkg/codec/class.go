package codec

import "fmt"

// Kind is the Go element type a column's values are built from.
type Kind int

const (
	KindNone Kind = iota
	KindBool
	KindUint8
	KindInt8
	KindInt16
	KindInt32
	KindInt64
	KindFloat32
	KindFloat64
	KindRune
	KindString
)

var kindNames = [...]string{"none", "bool", "uint8", "int8", "int16", "int32", "int64", "float32", "float64", "rune", "string"}

func (k Kind) String() string {
	if int(k) >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// IsIntegral reports whether values of this kind are integers.
func (k Kind) IsIntegral() bool {
	switch k {
	case KindUint8, KindInt8, KindInt16, KindInt32, KindInt64:
		return true
	}
	return false
}

// IsFloat reports whether values of this kind are floating point.
func (k Kind) IsFloat() bool {
	return k == KindFloat32 || k == KindFloat64
}

// Class describes the Go type of a column's values: a scalar of Kind, or a slice of it
// when Array is set. A string is a scalar of KindString.
type Class struct {
	Kind  Kind
	Array bool
}

// Scalar and array class shorthands.
var (
	ClassBool    = Class{Kind: KindBool}
	ClassUint8   = Class{Kind: KindUint8}
	ClassInt8    = Class{Kind: KindInt8}
	ClassInt16   = Class{Kind: KindInt16}
	ClassInt32   = Class{Kind: KindInt32}
	ClassInt64   = Class{Kind: KindInt64}
	ClassFloat32 = Class{Kind: KindFloat32}
	ClassFloat64 = Class{Kind: KindFloat64}
	ClassRune    = Class{Kind: KindRune}
	ClassString  = Class{Kind: KindString}
)

// ArrayOf returns the array class with elements of kind k.
func ArrayOf(k Kind) Class {
	return Class{Kind: k, Array: true}
}

func (c Class) String() string {
	if c.Array {
		return "[]" + c.Kind.String()
	}
	return c.Kind.String()
}

// ClassOf returns the Class of a Go value, and false if the value's type is not one the
// codecs handle.
func ClassOf(v any) (Class, bool) {
	switch v.(type) {
	case bool:
		return ClassBool, true
	case uint8:
		return ClassUint8, true
	case int8:
		return ClassInt8, true
	case int16:
		return ClassInt16, true
	case int32:
		return ClassInt32, true
	case int64:
		return ClassInt64, true
	case float32:
		return ClassFloat32, true
	case float64:
		return ClassFloat64, true
	case string:
		return ClassString, true
	case []bool:
		return ArrayOf(KindBool), true
	case []uint8:
		return ArrayOf(KindUint8), true
	case []int8:
		return ArrayOf(KindInt8), true
	case []int16:
		return ArrayOf(KindInt16), true
	case []int32:
		return ArrayOf(KindInt32), true
	case []int64:
		return ArrayOf(KindInt64), true
	case []float32:
		return ArrayOf(KindFloat32), true
	case []float64:
		return ArrayOf(KindFloat64), true
	case []string:
		return ArrayOf(KindString), true
	}
	return Class{}, false
}

// Len returns the number of elements in an array value, 1 for a non-nil scalar and 0
// for nil.
func Len(v any) int {
	switch a := v.(type) {
	case nil:
		return 0
	case []bool:
		return len(a)
	case []uint8:
		return len(a)
	case []int8:
		return len(a)
	case []int16:
		return len(a)
	case []int32:
		return len(a)
	case []int64:
		return len(a)
	case []float32:
		return len(a)
	case []float64:
		return len(a)
	case []string:
		return len(a)
	}
	return 1
}
