package codec

import (
	"encoding/binary"
	"io"
	"strings"
	"unicode/utf8"
)

// charWidth returns the bytes per character for char or unicodeChar.
func charWidth(dt Datatype) int {
	if dt == UnicodeChar {
		return 2
	}
	return 1
}

// decodeChars converts raw char (Latin-1) or unicodeChar (UCS-2) bytes to a string.
// A NUL ends the string and trailing spaces are trimmed.
func decodeChars(b []byte, width int) string {
	var sb strings.Builder
	sb.Grow(len(b) / width)
	for i := 0; i+width <= len(b); i += width {
		var r rune
		if width == 2 {
			r = rune(binary.BigEndian.Uint16(b[i:]))
		} else {
			r = rune(b[i])
		}
		if r == 0 {
			break
		}
		sb.WriteRune(r)
	}
	return strings.TrimRight(sb.String(), " ")
}

// newCharDecoder picks the character decoder for a shape. The first dimension is the
// string length.
func newCharDecoder(dt Datatype, arraysize string, shape Shape) Decoder {
	b := base{datatype: dt, arraysize: arraysize}
	switch {
	case shape.NDim() == 0 || shape.IsScalar():
		return &scalarCharDecoder{base: b, width: charWidth(dt)}
	case shape.NDim() == 1:
		return &stringDecoder{base: b, width: charWidth(dt), length: shape.Dims[0]}
	default:
		b.shape = shape.Tail()
		return &stringArrayDecoder{base: b, width: charWidth(dt), length: shape.Dims[0]}
	}
}

// scalarCharDecoder decodes a single character to a rune.
type scalarCharDecoder struct {
	base
	width int
}

func (d *scalarCharDecoder) Class() Class { return ClassRune }

func (d *scalarCharDecoder) ElementSize() int { return 1 }

func (d *scalarCharDecoder) SetNullValue(null string) { d.null = null }

func (d *scalarCharDecoder) DecodeText(text string) any {
	if text == "" {
		return nil
	}
	t := strings.TrimSpace(text)
	if t == "" {
		return ' '
	}
	r, _ := utf8.DecodeRuneInString(t)
	return r
}

func (d *scalarCharDecoder) DecodeBinary(r io.Reader) (any, error) {
	b, err := readBytes(r, d.width)
	if err != nil {
		return nil, err
	}
	if d.width == 2 {
		return rune(binary.BigEndian.Uint16(b)), nil
	}
	return rune(b[0]), nil
}

func (d *scalarCharDecoder) SkipBinary(r io.Reader) error {
	return skipBytes(r, d.width)
}

func (d *scalarCharDecoder) IsNull(v any, _ int) bool {
	c, ok := v.(rune)
	if !ok {
		return true
	}
	if d.null == "" {
		return false
	}
	n, _ := utf8.DecodeRuneInString(d.null)
	return c == n
}

// stringDecoder decodes a one-dimensional character array to a string.
type stringDecoder struct {
	base
	width  int
	length int // Variable or a fixed character count
}

func (d *stringDecoder) Class() Class { return ClassString }

func (d *stringDecoder) ElementSize() int { return d.length }

func (d *stringDecoder) SetNullValue(null string) { d.null = null }

func (d *stringDecoder) DecodeText(text string) any {
	return text
}

func (d *stringDecoder) nchars(r io.Reader) (int, bool, error) {
	if d.length != Variable {
		return d.length, false, nil
	}
	n, err := readCount(r)
	return n, true, err
}

func (d *stringDecoder) DecodeBinary(r io.Reader) (any, error) {
	n, prefixed, err := d.nchars(r)
	if err != nil {
		return nil, err
	}
	b, err := readBytes(r, n*d.width)
	if err != nil {
		if prefixed {
			err = midElement(err)
		}
		return nil, err
	}
	return decodeChars(b, d.width), nil
}

func (d *stringDecoder) SkipBinary(r io.Reader) error {
	n, prefixed, err := d.nchars(r)
	if err != nil {
		return err
	}
	if err := skipBytes(r, n*d.width); err != nil {
		if prefixed {
			return midElement(err)
		}
		return err
	}
	return nil
}

// IsNull treats the empty string as null in addition to the configured literal.
func (d *stringDecoder) IsNull(v any, _ int) bool {
	s, ok := v.(string)
	if !ok {
		return true
	}
	return s == "" || (d.null != "" && s == d.null)
}

// stringArrayDecoder decodes a character array of two or more dimensions to a slice of
// strings, each of the declared length.
type stringArrayDecoder struct {
	base
	width  int
	length int
}

func (d *stringArrayDecoder) Class() Class { return ArrayOf(KindString) }

func (d *stringArrayDecoder) ElementSize() int { return d.length }

func (d *stringArrayDecoder) SetNullValue(null string) { d.null = null }

func (d *stringArrayDecoder) DecodeText(text string) any {
	runes := []rune(text)
	n := d.shape.Count()
	if n == Variable {
		nstr := (len(runes) + d.length - 1) / d.length
		n = roundUp(nstr, d.shape.SliceSize())
	}
	out := make([]string, n)
	for i := range out {
		lo := i * d.length
		if lo >= len(runes) {
			break
		}
		hi := lo + d.length
		if hi > len(runes) {
			hi = len(runes)
		}
		out[i] = strings.TrimRight(string(runes[lo:hi]), " ")
	}
	return out
}

func (d *stringArrayDecoder) nstrings(r io.Reader) (int, bool, error) {
	if !d.shape.IsVariable() {
		return d.shape.Count(), false, nil
	}
	units, err := readCount(r)
	if err != nil {
		return 0, false, err
	}
	return d.shape.itemCount(units), true, nil
}

func (d *stringArrayDecoder) DecodeBinary(r io.Reader) (any, error) {
	n, prefixed, err := d.nstrings(r)
	if err != nil {
		return nil, err
	}
	step := d.length * d.width
	b, err := readBytes(r, n*step)
	if err != nil {
		if prefixed {
			err = midElement(err)
		}
		return nil, err
	}
	out := make([]string, n)
	for i := range out {
		out[i] = decodeChars(b[i*step:(i+1)*step], d.width)
	}
	return out, nil
}

func (d *stringArrayDecoder) SkipBinary(r io.Reader) error {
	n, prefixed, err := d.nstrings(r)
	if err != nil {
		return err
	}
	if err := skipBytes(r, n*d.length*d.width); err != nil {
		if prefixed {
			return midElement(err)
		}
		return err
	}
	return nil
}

func (d *stringArrayDecoder) IsNull(v any, index int) bool {
	arr, ok := v.([]string)
	if !ok {
		return v == nil
	}
	if index < 0 || index >= len(arr) {
		return false
	}
	return arr[index] == "" || (d.null != "" && arr[index] == d.null)
}
