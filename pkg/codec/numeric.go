package codec

import (
	"encoding/binary"
	"errors"
	"io"
	"math"
	"strconv"
	"strings"
)

type number interface {
	~uint8 | ~int8 | ~int16 | ~int32 | ~int64 | ~float32 | ~float64
}

// element describes how one numeric element is stored and written.
type element[T number] struct {
	kind   Kind
	width  int
	get    func(b []byte) T
	put    func(b []byte, v T)
	parse  func(tok string) (T, bool)
	format func(v T) string
	isNaN  func(v T) bool // nil for integral types
	nan    T
}

var uint8Elem = &element[uint8]{
	kind:   KindUint8,
	width:  1,
	get:    func(b []byte) uint8 { return b[0] },
	put:    func(b []byte, v uint8) { b[0] = v },
	parse:  func(tok string) (uint8, bool) { v, ok := parseInt(tok, 8, true); return uint8(v), ok },
	format: func(v uint8) string { return strconv.FormatUint(uint64(v), 10) },
}

var int16Elem = &element[int16]{
	kind:   KindInt16,
	width:  2,
	get:    func(b []byte) int16 { return int16(binary.BigEndian.Uint16(b)) },
	put:    func(b []byte, v int16) { binary.BigEndian.PutUint16(b, uint16(v)) },
	parse:  func(tok string) (int16, bool) { v, ok := parseInt(tok, 16, false); return int16(v), ok },
	format: func(v int16) string { return strconv.FormatInt(int64(v), 10) },
}

var int32Elem = &element[int32]{
	kind:   KindInt32,
	width:  4,
	get:    func(b []byte) int32 { return int32(binary.BigEndian.Uint32(b)) },
	put:    func(b []byte, v int32) { binary.BigEndian.PutUint32(b, uint32(v)) },
	parse:  func(tok string) (int32, bool) { v, ok := parseInt(tok, 32, false); return int32(v), ok },
	format: func(v int32) string { return strconv.FormatInt(int64(v), 10) },
}

var int64Elem = &element[int64]{
	kind:   KindInt64,
	width:  8,
	get:    func(b []byte) int64 { return int64(binary.BigEndian.Uint64(b)) },
	put:    func(b []byte, v int64) { binary.BigEndian.PutUint64(b, uint64(v)) },
	parse:  func(tok string) (int64, bool) { return parseInt(tok, 64, false) },
	format: func(v int64) string { return strconv.FormatInt(v, 10) },
}

var float32Elem = &element[float32]{
	kind:   KindFloat32,
	width:  4,
	get:    func(b []byte) float32 { return math.Float32frombits(binary.BigEndian.Uint32(b)) },
	put:    func(b []byte, v float32) { binary.BigEndian.PutUint32(b, math.Float32bits(v)) },
	parse:  func(tok string) (float32, bool) { v, ok := parseFloat(tok, 32); return float32(v), ok },
	format: func(v float32) string { return formatFloat(float64(v), 32) },
	isNaN:  func(v float32) bool { return v != v },
	nan:    float32(math.NaN()),
}

var float64Elem = &element[float64]{
	kind:   KindFloat64,
	width:  8,
	get:    func(b []byte) float64 { return math.Float64frombits(binary.BigEndian.Uint64(b)) },
	put:    func(b []byte, v float64) { binary.BigEndian.PutUint64(b, math.Float64bits(v)) },
	parse:  func(tok string) (float64, bool) { return parseFloat(tok, 64) },
	format: func(v float64) string { return formatFloat(v, 64) },
	isNaN:  func(v float64) bool { return v != v },
	nan:    math.NaN(),
}

// parseInt parses a decimal or 0x-prefixed hexadecimal integer of the given bit size.
// Hexadecimal literals give the bit pattern, so "0xFFFF" is -1 as a short.
func parseInt(tok string, bits int, unsigned bool) (int64, bool) {
	neg := false
	body := tok
	if strings.HasPrefix(body, "+") {
		body = body[1:]
	} else if strings.HasPrefix(body, "-") {
		neg = true
		body = body[1:]
	}
	if len(body) > 2 && (body[:2] == "0x" || body[:2] == "0X") {
		u, err := strconv.ParseUint(body[2:], 16, bits)
		if err != nil {
			return 0, false
		}
		v := int64(u)
		if !unsigned && bits < 64 && u >= 1<<(bits-1) {
			v -= 1 << bits
		}
		if neg {
			if unsigned {
				return 0, false
			}
			v = -v
		}
		return v, true
	}
	if unsigned {
		if neg {
			return 0, false
		}
		u, err := strconv.ParseUint(body, 10, bits)
		return int64(u), err == nil
	}
	v, err := strconv.ParseInt(tok, 10, bits)
	return v, err == nil
}

// parseFloat parses a floating point token. "Inf", "+Inf", "-Inf" and "NaN" are
// accepted in any case, as are 0x-prefixed integers. Out of range values saturate to
// infinity.
func parseFloat(tok string, bits int) (float64, bool) {
	if tok == "" {
		return math.NaN(), false
	}
	v, err := strconv.ParseFloat(tok, bits)
	if err == nil || errors.Is(err, strconv.ErrRange) {
		return v, true
	}
	if i, ok := parseInt(tok, 64, false); ok {
		return float64(i), true
	}
	return math.NaN(), false
}

func formatFloat(v float64, bits int) string {
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "Inf"
	case math.IsInf(v, -1):
		return "-Inf"
	}
	return strconv.FormatFloat(v, 'g', -1, bits)
}

// numericDecoder handles the integral, floating point and complex datatypes.
type numericDecoder[T number] struct {
	base
	elem    *element[T]
	scalar  bool
	hasNull bool
	nullVal T
}

func newNumericDecoder[T number](dt Datatype, arraysize string, shape Shape, elem *element[T]) *numericDecoder[T] {
	d := &numericDecoder[T]{
		base: base{datatype: dt, arraysize: arraysize},
		elem: elem,
	}
	if shape.IsScalar() {
		d.scalar = true
	} else {
		d.shape = shape
	}
	return d
}

func (d *numericDecoder[T]) Class() Class {
	return Class{Kind: d.elem.kind, Array: !d.scalar}
}

func (d *numericDecoder[T]) SetNullValue(null string) {
	d.null = null
	if d.elem.isNaN != nil {
		return
	}
	if v, ok := d.elem.parse(strings.TrimSpace(null)); ok {
		d.hasNull = true
		d.nullVal = v
	} else {
		d.hasNull = false
	}
}

// bad returns the value used for elements that cannot be decoded.
func (d *numericDecoder[T]) bad() T {
	if d.elem.isNaN != nil {
		return d.elem.nan
	}
	if d.hasNull {
		return d.nullVal
	}
	var zero T
	return zero
}

func (d *numericDecoder[T]) isBad(v T) bool {
	if d.elem.isNaN != nil {
		return d.elem.isNaN(v)
	}
	return d.hasNull && v == d.nullVal
}

func (d *numericDecoder[T]) DecodeText(text string) any {
	if d.scalar {
		tok := strings.TrimSpace(text)
		if v, ok := d.elem.parse(tok); ok {
			return v
		}
		if d.elem.isNaN != nil {
			return d.elem.nan
		}
		return nil
	}

	toks := strings.Fields(text)
	n := d.shape.Count()
	if n == Variable {
		n = roundUp(len(toks), d.shape.SliceSize())
	}
	arr := make([]T, n)
	for i := range arr {
		if i < len(toks) {
			if v, ok := d.elem.parse(toks[i]); ok {
				arr[i] = v
				continue
			}
		}
		arr[i] = d.bad()
	}
	return arr
}

// count returns the number of elements of the next value, reading the length prefix
// of variable arrays.
func (d *numericDecoder[T]) count(r io.Reader) (n int, prefixed bool, err error) {
	if !d.shape.IsVariable() {
		return d.shape.Count(), false, nil
	}
	units, err := readCount(r)
	if err != nil {
		return 0, false, err
	}
	return d.shape.itemCount(units), true, nil
}

func (d *numericDecoder[T]) DecodeBinary(r io.Reader) (any, error) {
	w := d.elem.width
	if d.scalar {
		b, err := readBytes(r, w)
		if err != nil {
			return nil, err
		}
		return d.elem.get(b), nil
	}

	n, prefixed, err := d.count(r)
	if err != nil {
		return nil, err
	}
	b, err := readBytes(r, n*w)
	if err != nil {
		if prefixed {
			err = midElement(err)
		}
		return nil, err
	}
	arr := make([]T, n)
	for i := range arr {
		arr[i] = d.elem.get(b[i*w:])
	}
	return arr, nil
}

func (d *numericDecoder[T]) SkipBinary(r io.Reader) error {
	if d.scalar {
		return skipBytes(r, d.elem.width)
	}
	n, prefixed, err := d.count(r)
	if err != nil {
		return err
	}
	if err := skipBytes(r, n*d.elem.width); err != nil {
		if prefixed {
			return midElement(err)
		}
		return err
	}
	return nil
}

func (d *numericDecoder[T]) IsNull(v any, index int) bool {
	switch x := v.(type) {
	case nil:
		return true
	case T:
		return d.isBad(x)
	case []T:
		if index < 0 || index >= len(x) {
			return false
		}
		return d.isBad(x[index])
	}
	return false
}
