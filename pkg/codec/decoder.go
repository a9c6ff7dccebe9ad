package codec

import (
	"errors"
	"io"

	"github.com/sirupsen/logrus"
)

// ErrBinaryUnsupported is returned by decoders that can only handle text, which is the
// case for fields with an unrecognised datatype.
var ErrBinaryUnsupported = errors.New("codec: binary decoding not supported for this datatype")

// Decoder turns the serialized form of one column's values into Go values.
type Decoder interface {
	// Datatype returns the declared datatype.
	Datatype() Datatype

	// Arraysize returns the arraysize attribute the decoder was built from.
	Arraysize() string

	// Class returns the Go class of decoded values.
	Class() Class

	// Shape returns the shape of decoded values: the empty shape for scalars and
	// single strings, the string-array shape for multi-dimensional char fields.
	Shape() Shape

	// ElementSize returns the declared string length for character data, Variable when
	// it is not fixed, and -1 for other datatypes.
	ElementSize() int

	// DecodeText decodes the text content of a TABLEDATA cell. It never fails; bad
	// tokens become the decoder's bad value.
	DecodeText(text string) any

	// DecodeBinary reads one value from a BINARY stream.
	DecodeBinary(r io.Reader) (any, error)

	// SkipBinary consumes exactly the bytes DecodeBinary would, without building a value.
	SkipBinary(r io.Reader) error

	// IsNull reports whether element index of v is the bad value. For scalars index
	// is ignored.
	IsNull(v any, index int) bool

	// SetNullValue configures the null literal, normally from a VALUES element.
	SetNullValue(null string)

	// NullValue returns the configured null literal or "".
	NullValue() string
}

// base carries the attributes every decoder reports.
type base struct {
	datatype  Datatype
	arraysize string
	shape     Shape
	null      string
}

func (b *base) Datatype() Datatype { return b.datatype }
func (b *base) Arraysize() string  { return b.arraysize }
func (b *base) Shape() Shape       { return b.shape }
func (b *base) NullValue() string  { return b.null }
func (b *base) ElementSize() int   { return -1 }

// DecoderOption configures MakeDecoder.
type DecoderOption func(*decoderConfig)

type decoderConfig struct {
	log logrus.FieldLogger
}

// WithLogger sets the logger that reports unknown datatypes. The default is
// logrus.StandardLogger().
func WithLogger(log logrus.FieldLogger) DecoderOption {
	return func(c *decoderConfig) {
		if log != nil {
			c.log = log
		}
	}
}

// MakeDecoder builds the Decoder for a FIELD or PARAM with the given datatype,
// arraysize and null attributes. The only error is a malformed arraysize; an unknown
// datatype is logged and falls back to a text-only string decoder.
func MakeDecoder(datatype, arraysize, null string, opts ...DecoderOption) (Decoder, error) {
	cfg := decoderConfig{log: logrus.StandardLogger()}
	for _, o := range opts {
		o(&cfg)
	}

	shape, err := ParseArraysize(arraysize)
	if err != nil {
		return nil, err
	}

	dt := ParseDatatype(datatype)
	if datatype == "" && shape.NDim() == 1 && shape.IsVariable() {
		dt = Char
	}

	var d Decoder
	switch dt {
	case Boolean:
		d = newBooleanDecoder(arraysize, shape)
	case Bit:
		d = newBitDecoder(arraysize, shape)
	case UnsignedByte:
		d = newNumericDecoder(dt, arraysize, shape, uint8Elem)
	case Short:
		d = newNumericDecoder(dt, arraysize, shape, int16Elem)
	case Int:
		d = newNumericDecoder(dt, arraysize, shape, int32Elem)
	case Long:
		d = newNumericDecoder(dt, arraysize, shape, int64Elem)
	case Float:
		d = newNumericDecoder(dt, arraysize, shape, float32Elem)
	case Double:
		d = newNumericDecoder(dt, arraysize, shape, float64Elem)
	case FloatComplex:
		d = newNumericDecoder(dt, arraysize, complexShape(shape), float32Elem)
	case DoubleComplex:
		d = newNumericDecoder(dt, arraysize, complexShape(shape), float64Elem)
	case Char, UnicodeChar:
		d = newCharDecoder(dt, arraysize, shape)
	default:
		cfg.log.WithFields(logrus.Fields{
			"datatype":  datatype,
			"arraysize": arraysize,
		}).Warn("unknown VOTable datatype, values will be kept as strings")
		d = newUnknownDecoder(arraysize)
	}

	if null != "" {
		d.SetNullValue(null)
	}
	return d, nil
}

// MustDecoder is like MakeDecoder but panics on a malformed arraysize.
func MustDecoder(datatype, arraysize, null string, opts ...DecoderOption) Decoder {
	d, err := MakeDecoder(datatype, arraysize, null, opts...)
	if err != nil {
		panic(err)
	}
	return d
}

// BlankNull returns nil when v is an integral scalar that d reports as its bad value,
// and v otherwise. Binary readers use it so that a declared null reaches consumers as
// nil, as an empty TABLEDATA cell does.
func BlankNull(d Decoder, v any) any {
	if v == nil {
		return nil
	}
	c := d.Class()
	if c.Array || !c.Kind.IsIntegral() {
		return v
	}
	if d.IsNull(v, 0) {
		return nil
	}
	return v
}

// complexShape splices the (real, imaginary) pair dimension in front of the declared
// shape.
func complexShape(s Shape) Shape {
	if s.IsScalar() {
		s = Shape{}
	}
	return s.Prepend(2)
}

// unknownDecoder keeps cell text as-is. It cannot read binary data because the element
// width is unknown.
type unknownDecoder struct {
	base
}

func newUnknownDecoder(arraysize string) *unknownDecoder {
	return &unknownDecoder{base: base{datatype: Unknown, arraysize: arraysize}}
}

func (d *unknownDecoder) Class() Class { return ClassString }

func (d *unknownDecoder) DecodeText(text string) any { return text }

func (d *unknownDecoder) DecodeBinary(io.Reader) (any, error) {
	return nil, ErrBinaryUnsupported
}

func (d *unknownDecoder) SkipBinary(io.Reader) error {
	return ErrBinaryUnsupported
}

func (d *unknownDecoder) IsNull(v any, _ int) bool {
	s, ok := v.(string)
	if !ok {
		return v == nil
	}
	return s == "" || (d.null != "" && s == d.null)
}

func (d *unknownDecoder) SetNullValue(null string) { d.null = null }
