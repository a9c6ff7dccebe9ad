package codec

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ErrNoElementSize is returned by MakeEncoder for string array columns whose string
// length is not known. Writers compute it with a pass over the data first.
var ErrNoElementSize = errors.New("codec: string array column needs an element size")

// Encoder writes one column's Go values in TABLEDATA text or BINARY form. It also
// reports the FIELD attributes a reader needs to decode what it writes.
type Encoder interface {
	Datatype() Datatype
	Arraysize() string
	Class() Class
	ElementSize() int

	// NullValue is the null literal to declare in VALUES, or "" if none is needed.
	NullValue() string

	// EncodeText formats v as the content of a TD element. nil gives "".
	EncodeText(v any) string

	// EncodeBinary writes v. A nil v writes the bad value so the row keeps its width.
	EncodeBinary(w io.Writer, v any) error
}

// ColumnSpec describes a column to MakeEncoder.
type ColumnSpec struct {
	Name  string
	Class Class

	// Shape is the declared shape of array values. For string arrays it excludes the
	// string length. An empty shape on an array class means one variable dimension.
	Shape Shape

	// ElementSize is the string length for character columns. Zero or Variable means
	// variable length.
	ElementSize int

	// Datatype optionally selects an alternative encoding: Bit for bool arrays,
	// UnicodeChar for character data, FloatComplex/DoubleComplex for float arrays whose
	// leading dimension is 2.
	Datatype Datatype

	Null     string
	Nullable bool
}

type encBase struct {
	datatype    Datatype
	arraysize   string
	class       Class
	null        string
	elementSize int
}

func (e *encBase) Datatype() Datatype { return e.datatype }
func (e *encBase) Arraysize() string  { return e.arraysize }
func (e *encBase) Class() Class       { return e.class }
func (e *encBase) NullValue() string  { return e.null }
func (e *encBase) ElementSize() int   { return e.elementSize }

func (e *encBase) mismatch(v any) error {
	return fmt.Errorf("codec: cannot encode %T as %s (%s)", v, e.class, e.datatype)
}

// sentinels are the null values given to nullable integral columns with none declared.
var sentinels = map[Kind]string{
	KindUint8: "255",
	KindInt8:  "-32768",
	KindInt16: "-32768",
	KindInt32: "-2147483648",
	KindInt64: "-9223372036854775808",
}

// MakeEncoder builds the Encoder for a column.
func MakeEncoder(spec ColumnSpec) (Encoder, error) {
	c := spec.Class
	b := encBase{class: c, null: spec.Null, elementSize: -1}
	if c.Kind.IsIntegral() && !c.Array && spec.Nullable && spec.Null == "" {
		b.null = sentinels[c.Kind]
	}

	shape := spec.Shape
	if c.Array && shape.NDim() == 0 {
		shape = Shape{Dims: []int{Variable}}
	}
	if c.Array {
		b.arraysize = shape.String()
	}

	switch c.Kind {
	case KindBool:
		if spec.Datatype == Bit {
			b.datatype = Bit
			return &bitEncoder{encBase: b, scalar: !c.Array, shape: shape}, nil
		}
		b.datatype = Boolean
		return &boolEncoder{encBase: b, scalar: !c.Array, shape: shape}, nil
	case KindUint8:
		b.datatype = UnsignedByte
		return newNumericEncoder(b, uint8Elem, shape, same[uint8], sameSlice[uint8])
	case KindInt8:
		b.datatype = Short
		return newNumericEncoder(b, int16Elem, shape, int16From, int16SliceFrom)
	case KindInt16:
		b.datatype = Short
		return newNumericEncoder(b, int16Elem, shape, same[int16], sameSlice[int16])
	case KindInt32:
		b.datatype = Int
		return newNumericEncoder(b, int32Elem, shape, same[int32], sameSlice[int32])
	case KindInt64:
		b.datatype = Long
		return newNumericEncoder(b, int64Elem, shape, same[int64], sameSlice[int64])
	case KindFloat32:
		b.datatype = Float
		if complexHint(spec, FloatComplex, shape) {
			b.datatype = FloatComplex
			b.arraysize = complexArraysize(shape)
		}
		return newNumericEncoder(b, float32Elem, shape, same[float32], sameSlice[float32])
	case KindFloat64:
		b.datatype = Double
		if complexHint(spec, DoubleComplex, shape) {
			b.datatype = DoubleComplex
			b.arraysize = complexArraysize(shape)
		}
		return newNumericEncoder(b, float64Elem, shape, same[float64], sameSlice[float64])
	case KindRune:
		b.datatype = charType(spec.Datatype)
		b.arraysize = ""
		b.elementSize = 1
		return &runeEncoder{encBase: b, width: charWidth(b.datatype)}, nil
	case KindString:
		b.datatype = charType(spec.Datatype)
		length := spec.ElementSize
		if length <= 0 {
			length = Variable
		}
		b.elementSize = length
		if !c.Array {
			if length == Variable {
				b.arraysize = "*"
			} else {
				b.arraysize = strconv.Itoa(length)
			}
			return &stringEncoder{encBase: b, width: charWidth(b.datatype), length: length}, nil
		}
		if length == Variable {
			return nil, fmt.Errorf("%w: %q", ErrNoElementSize, spec.Name)
		}
		b.arraysize = strconv.Itoa(length) + "x" + shape.String()
		return &stringArrayEncoder{encBase: b, width: charWidth(b.datatype), length: length, shape: shape}, nil
	}
	return nil, fmt.Errorf("codec: no encoder for class %s of column %q", c, spec.Name)
}

func charType(hint Datatype) Datatype {
	if hint == UnicodeChar {
		return UnicodeChar
	}
	return Char
}

func complexHint(spec ColumnSpec, want Datatype, shape Shape) bool {
	return spec.Datatype == want && spec.Class.Array && shape.NDim() > 0 && shape.Dims[0] == 2
}

func complexArraysize(shape Shape) string {
	tail := shape.Tail()
	if tail.IsScalar() {
		return ""
	}
	return tail.String()
}

func same[T number](v any) (T, bool) {
	x, ok := v.(T)
	return x, ok
}

func sameSlice[T number](v any) ([]T, bool) {
	x, ok := v.([]T)
	return x, ok
}

func int16From(v any) (int16, bool) {
	switch x := v.(type) {
	case int8:
		return int16(x), true
	case int16:
		return x, true
	}
	return 0, false
}

func int16SliceFrom(v any) ([]int16, bool) {
	switch x := v.(type) {
	case []int8:
		out := make([]int16, len(x))
		for i, e := range x {
			out[i] = int16(e)
		}
		return out, true
	case []int16:
		return x, true
	}
	return nil, false
}

type numericEncoder[T number] struct {
	encBase
	elem    *element[T]
	scalar  bool
	shape   Shape
	bad     T
	scalarF func(any) (T, bool)
	sliceF  func(any) ([]T, bool)
}

func newNumericEncoder[T number](b encBase, elem *element[T], shape Shape,
	scalarF func(any) (T, bool), sliceF func(any) ([]T, bool)) (Encoder, error) {
	e := &numericEncoder[T]{
		encBase: b,
		elem:    elem,
		scalar:  !b.class.Array,
		shape:   shape,
		scalarF: scalarF,
		sliceF:  sliceF,
	}
	switch {
	case elem.isNaN != nil:
		e.bad = elem.nan
	case b.null != "":
		v, ok := elem.parse(strings.TrimSpace(b.null))
		if !ok {
			return nil, fmt.Errorf("codec: null value %q does not fit %s", b.null, b.datatype)
		}
		e.bad = v
	}
	return e, nil
}

func (e *numericEncoder[T]) EncodeText(v any) string {
	if v == nil {
		return ""
	}
	if e.scalar {
		x, ok := e.scalarF(v)
		if !ok {
			return ""
		}
		return e.elem.format(x)
	}
	arr, ok := e.sliceF(v)
	if !ok {
		return ""
	}
	toks := make([]string, len(arr))
	for i, x := range arr {
		toks[i] = e.elem.format(x)
	}
	return strings.Join(toks, " ")
}

func (e *numericEncoder[T]) EncodeBinary(w io.Writer, v any) error {
	width := e.elem.width
	if e.scalar {
		x := e.bad
		if v != nil {
			var ok bool
			if x, ok = e.scalarF(v); !ok {
				return e.mismatch(v)
			}
		}
		buf := make([]byte, width)
		e.elem.put(buf, x)
		_, err := w.Write(buf)
		return err
	}

	var arr []T
	if v != nil {
		var ok bool
		if arr, ok = e.sliceF(v); !ok {
			return e.mismatch(v)
		}
	}
	n, err := writeArrayCount(w, e.shape, len(arr))
	if err != nil {
		return err
	}
	buf := make([]byte, n*width)
	for i := 0; i < n; i++ {
		x := e.bad
		if i < len(arr) {
			x = arr[i]
		}
		e.elem.put(buf[i*width:], x)
	}
	_, err = w.Write(buf)
	return err
}

// writeArrayCount returns the number of elements to write for an array of length have.
// For variable shapes it writes the count prefix first.
func writeArrayCount(w io.Writer, shape Shape, have int) (int, error) {
	if !shape.IsVariable() {
		return shape.Count(), nil
	}
	slice := shape.SliceSize()
	if slice <= 0 {
		return 0, writeCount(w, 0)
	}
	n := roundUp(have, slice)
	return n, writeCount(w, n/slice)
}

type boolEncoder struct {
	encBase
	scalar bool
	shape  Shape
}

func boolByte(v bool) byte {
	if v {
		return 'T'
	}
	return 'F'
}

func (e *boolEncoder) EncodeText(v any) string {
	switch x := v.(type) {
	case bool:
		return string(boolByte(x))
	case []bool:
		toks := make([]string, len(x))
		for i, b := range x {
			toks[i] = string(boolByte(b))
		}
		return strings.Join(toks, " ")
	}
	return ""
}

func (e *boolEncoder) EncodeBinary(w io.Writer, v any) error {
	if e.scalar {
		c := byte('?')
		switch x := v.(type) {
		case nil:
		case bool:
			c = boolByte(x)
		default:
			return e.mismatch(v)
		}
		_, err := w.Write([]byte{c})
		return err
	}
	arr, ok := v.([]bool)
	if !ok && v != nil {
		return e.mismatch(v)
	}
	n, err := writeArrayCount(w, e.shape, len(arr))
	if err != nil {
		return err
	}
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = '?'
		if i < len(arr) {
			buf[i] = boolByte(arr[i])
		}
	}
	_, err = w.Write(buf)
	return err
}

type bitEncoder struct {
	encBase
	scalar bool
	shape  Shape
}

func bitChar(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func (e *bitEncoder) EncodeText(v any) string {
	switch x := v.(type) {
	case bool:
		return bitChar(x)
	case []bool:
		toks := make([]string, len(x))
		for i, b := range x {
			toks[i] = bitChar(b)
		}
		return strings.Join(toks, " ")
	}
	return ""
}

func (e *bitEncoder) EncodeBinary(w io.Writer, v any) error {
	var bits []bool
	switch x := v.(type) {
	case nil:
	case bool:
		bits = []bool{x}
	case []bool:
		bits = x
	default:
		return e.mismatch(v)
	}
	n := 1
	if !e.scalar {
		var err error
		if n, err = writeArrayCount(w, e.shape, len(bits)); err != nil {
			return err
		}
	}
	padded := make([]bool, n)
	copy(padded, bits)
	_, err := w.Write(packBits(padded))
	return err
}

// putChar stores r as Latin-1 or UCS-2. Characters outside the range become '?'.
func putChar(b []byte, r rune, width int) {
	if width == 2 {
		if r > 0xFFFF || r < 0 {
			r = '?'
		}
		b[0] = byte(r >> 8)
		b[1] = byte(r)
		return
	}
	if r > 0xFF || r < 0 {
		r = '?'
	}
	b[0] = byte(r)
}

type runeEncoder struct {
	encBase
	width int
}

// EncodeText writes a NUL character, the null scalar char of binary data, as an empty
// cell.
func (e *runeEncoder) EncodeText(v any) string {
	if r, ok := v.(rune); ok && r != 0 {
		return string(r)
	}
	return ""
}

func (e *runeEncoder) EncodeBinary(w io.Writer, v any) error {
	buf := make([]byte, e.width)
	switch x := v.(type) {
	case nil:
	case rune:
		putChar(buf, x, e.width)
	default:
		return e.mismatch(v)
	}
	_, err := w.Write(buf)
	return err
}

type stringEncoder struct {
	encBase
	width  int
	length int
}

func (e *stringEncoder) EncodeText(v any) string {
	s, _ := v.(string)
	return s
}

func (e *stringEncoder) EncodeBinary(w io.Writer, v any) error {
	s, ok := v.(string)
	if !ok && v != nil {
		return e.mismatch(v)
	}
	runes := []rune(s)
	n := e.length
	if n == Variable {
		n = len(runes)
		if err := writeCount(w, n); err != nil {
			return err
		}
	}
	_, err := w.Write(packChars(runes, n, e.width))
	return err
}

// packChars encodes exactly n characters, truncating or padding with NUL.
func packChars(runes []rune, n, width int) []byte {
	buf := make([]byte, n*width)
	for i := 0; i < n && i < len(runes); i++ {
		putChar(buf[i*width:], runes[i], width)
	}
	return buf
}

type stringArrayEncoder struct {
	encBase
	width  int
	length int
	shape  Shape
}

func (e *stringArrayEncoder) EncodeText(v any) string {
	arr, ok := v.([]string)
	if !ok {
		return ""
	}
	var sb strings.Builder
	for _, s := range arr {
		runes := []rune(s)
		if len(runes) > e.length {
			runes = runes[:e.length]
		}
		sb.WriteString(string(runes))
		sb.WriteString(strings.Repeat(" ", e.length-len(runes)))
	}
	return sb.String()
}

func (e *stringArrayEncoder) EncodeBinary(w io.Writer, v any) error {
	arr, ok := v.([]string)
	if !ok && v != nil {
		return e.mismatch(v)
	}
	n, err := writeArrayCount(w, e.shape, len(arr))
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		var runes []rune
		if i < len(arr) {
			runes = []rune(arr[i])
		}
		if _, err := w.Write(packChars(runes, e.length, e.width)); err != nil {
			return err
		}
	}
	return nil
}
