package codec

import (
	"io"
	"strings"
)

// booleanDecoder handles the boolean datatype. Scalars decode to bool or nil; in
// arrays a null element reads as false.
type booleanDecoder struct {
	base
	scalar bool
}

func newBooleanDecoder(arraysize string, shape Shape) *booleanDecoder {
	d := &booleanDecoder{base: base{datatype: Boolean, arraysize: arraysize}}
	if shape.IsScalar() {
		d.scalar = true
	} else {
		d.shape = shape
	}
	return d
}

func (d *booleanDecoder) Class() Class { return Class{Kind: KindBool, Array: !d.scalar} }

func (d *booleanDecoder) SetNullValue(null string) { d.null = null }

// boolFromByte maps a boolean byte or the first character of a token to a value.
// ok is false for the null representations.
func boolFromByte(c byte) (v bool, ok bool) {
	switch c {
	case 'T', 't', '1', 'Y', 'y':
		return true, true
	case 'F', 'f', '0', 'N', 'n':
		return false, true
	}
	return false, false
}

func (d *booleanDecoder) DecodeText(text string) any {
	if d.scalar {
		tok := strings.TrimSpace(text)
		if tok == "" {
			return nil
		}
		if v, ok := boolFromByte(tok[0]); ok {
			return v
		}
		return nil
	}

	toks := strings.Fields(text)
	n := d.shape.Count()
	if n == Variable {
		n = roundUp(len(toks), d.shape.SliceSize())
	}
	arr := make([]bool, n)
	for i := 0; i < n && i < len(toks); i++ {
		arr[i], _ = boolFromByte(toks[i][0])
	}
	return arr
}

func (d *booleanDecoder) count(r io.Reader) (int, bool, error) {
	if !d.shape.IsVariable() {
		return d.shape.Count(), false, nil
	}
	units, err := readCount(r)
	if err != nil {
		return 0, false, err
	}
	return d.shape.itemCount(units), true, nil
}

func (d *booleanDecoder) DecodeBinary(r io.Reader) (any, error) {
	if d.scalar {
		b, err := readBytes(r, 1)
		if err != nil {
			return nil, err
		}
		if v, ok := boolFromByte(b[0]); ok {
			return v, nil
		}
		return nil, nil
	}
	n, prefixed, err := d.count(r)
	if err != nil {
		return nil, err
	}
	b, err := readBytes(r, n)
	if err != nil {
		if prefixed {
			err = midElement(err)
		}
		return nil, err
	}
	arr := make([]bool, n)
	for i, c := range b {
		arr[i], _ = boolFromByte(c)
	}
	return arr, nil
}

func (d *booleanDecoder) SkipBinary(r io.Reader) error {
	if d.scalar {
		return skipBytes(r, 1)
	}
	n, prefixed, err := d.count(r)
	if err != nil {
		return err
	}
	if err := skipBytes(r, n); err != nil && prefixed {
		return midElement(err)
	} else if err != nil {
		return err
	}
	return nil
}

func (d *booleanDecoder) IsNull(v any, _ int) bool {
	return v == nil
}

// bitDecoder handles the bit datatype: packed MSB-first in binary streams, a run of
// '0'/'1' characters in text.
type bitDecoder struct {
	base
	scalar bool
}

func newBitDecoder(arraysize string, shape Shape) *bitDecoder {
	d := &bitDecoder{base: base{datatype: Bit, arraysize: arraysize}}
	if shape.IsScalar() {
		d.scalar = true
	} else {
		d.shape = shape
	}
	return d
}

func (d *bitDecoder) Class() Class { return Class{Kind: KindBool, Array: !d.scalar} }

func (d *bitDecoder) SetNullValue(null string) { d.null = null }

// bitChars returns the '0'/'1' characters of text with whitespace removed.
func bitChars(text string) []byte {
	out := make([]byte, 0, len(text))
	for i := 0; i < len(text); i++ {
		switch c := text[i]; c {
		case ' ', '\t', '\n', '\r':
		default:
			out = append(out, c)
		}
	}
	return out
}

func (d *bitDecoder) DecodeText(text string) any {
	chars := bitChars(text)
	if d.scalar {
		if len(chars) == 0 {
			return nil
		}
		return chars[0] == '1'
	}
	n := d.shape.Count()
	if n == Variable {
		n = roundUp(len(chars), d.shape.SliceSize())
	}
	arr := make([]bool, n)
	for i := 0; i < n && i < len(chars); i++ {
		arr[i] = chars[i] == '1'
	}
	return arr
}

func (d *bitDecoder) nbits(r io.Reader) (int, bool, error) {
	if d.scalar {
		return 1, false, nil
	}
	if !d.shape.IsVariable() {
		return d.shape.Count(), false, nil
	}
	units, err := readCount(r)
	if err != nil {
		return 0, false, err
	}
	return d.shape.itemCount(units), true, nil
}

func (d *bitDecoder) DecodeBinary(r io.Reader) (any, error) {
	n, prefixed, err := d.nbits(r)
	if err != nil {
		return nil, err
	}
	b, err := readBytes(r, (n+7)/8)
	if err != nil {
		if prefixed {
			err = midElement(err)
		}
		return nil, err
	}
	bits := unpackBits(b, n)
	if d.scalar {
		return bits[0], nil
	}
	return bits, nil
}

func (d *bitDecoder) SkipBinary(r io.Reader) error {
	n, prefixed, err := d.nbits(r)
	if err != nil {
		return err
	}
	if err := skipBytes(r, (n+7)/8); err != nil {
		if prefixed {
			return midElement(err)
		}
		return err
	}
	return nil
}

func (d *bitDecoder) IsNull(v any, _ int) bool {
	return v == nil
}

// unpackBits reads n MSB-first bits from b.
func unpackBits(b []byte, n int) []bool {
	out := make([]bool, n)
	for i := 0; i < n; i++ {
		out[i] = b[i>>3]&(0x80>>uint(i&7)) != 0
	}
	return out
}

// packBits is the inverse of unpackBits.
func packBits(bits []bool) []byte {
	out := make([]byte, (len(bits)+7)/8)
	for i, v := range bits {
		if v {
			out[i>>3] |= 0x80 >> uint(i&7)
		}
	}
	return out
}
