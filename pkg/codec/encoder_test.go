package codec

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roundTripCases() []struct {
	name  string
	spec  ColumnSpec
	value any
} {
	return []struct {
		name  string
		spec  ColumnSpec
		value any
	}{
		{"int", ColumnSpec{Class: ClassInt32}, int32(42)},
		{"long", ColumnSpec{Class: ClassInt64}, int64(-1 << 40)},
		{"unsigned bytes", ColumnSpec{Class: ArrayOf(KindUint8)}, []uint8{1, 2, 255}},
		{"doubles with NaN", ColumnSpec{Class: ArrayOf(KindFloat64)}, []float64{1.5, math.NaN(), math.Inf(-1)}},
		{"float scalar", ColumnSpec{Class: ClassFloat32}, float32(0.1)},
		{"fixed short array", ColumnSpec{Class: ArrayOf(KindInt16), Shape: MustShape("3")}, []int16{7, -7, 0}},
		{"2d variable ints", ColumnSpec{Class: ArrayOf(KindInt32), Shape: MustShape("2x*")}, []int32{1, 2, 3, 4}},
		{"variable string", ColumnSpec{Class: ClassString}, "hello"},
		{"fixed string", ColumnSpec{Class: ClassString, ElementSize: 8}, "abc"},
		{"unicode string", ColumnSpec{Class: ClassString, Datatype: UnicodeChar}, "héllo"},
		{"string array", ColumnSpec{Class: ArrayOf(KindString), ElementSize: 4}, []string{"ab", "cdef"}},
		{"rune", ColumnSpec{Class: ClassRune}, 'x'},
		{"boolean", ColumnSpec{Class: ClassBool}, true},
		{"boolean array", ColumnSpec{Class: ArrayOf(KindBool)}, []bool{true, false, true}},
		{"bit array", ColumnSpec{Class: ArrayOf(KindBool), Datatype: Bit}, []bool{true, false, true, true, false, false, true, false, true}},
		{"double complex", ColumnSpec{Class: ArrayOf(KindFloat64), Shape: MustShape("2"), Datatype: DoubleComplex}, []float64{1, 2}},
		{"float complex array", ColumnSpec{Class: ArrayOf(KindFloat32), Shape: MustShape("2x*"), Datatype: FloatComplex}, []float32{1, 2, 3, 4}},
	}
}

func decoderFor(t *testing.T, e Encoder) Decoder {
	t.Helper()
	d, err := MakeDecoder(e.Datatype().String(), e.Arraysize(), e.NullValue())
	require.NoError(t, err)
	return d
}

func TestEncoder_BinaryRoundTrip(t *testing.T) {
	for _, tc := range roundTripCases() {
		t.Run(tc.name, func(t *testing.T) {
			e, err := MakeEncoder(tc.spec)
			require.NoError(t, err)
			d := decoderFor(t, e)

			var buf bytes.Buffer
			require.NoError(t, e.EncodeBinary(&buf, tc.value))
			n := buf.Len()

			r := bytes.NewReader(buf.Bytes())
			got, err := d.DecodeBinary(r)
			require.NoError(t, err)
			assert.True(t, Equal(tc.value, got), "got %#v, want %#v", got, tc.value)
			assert.Zero(t, r.Len())

			r = bytes.NewReader(buf.Bytes())
			require.NoError(t, d.SkipBinary(r))
			assert.Equal(t, n, int(r.Size())-r.Len())
		})
	}
}

func TestEncoder_TextRoundTrip(t *testing.T) {
	for _, tc := range roundTripCases() {
		t.Run(tc.name, func(t *testing.T) {
			e, err := MakeEncoder(tc.spec)
			require.NoError(t, err)
			d := decoderFor(t, e)

			got := d.DecodeText(e.EncodeText(tc.value))
			assert.True(t, Equal(tc.value, got), "got %#v, want %#v", got, tc.value)
		})
	}
}

func TestMakeEncoder_Attributes(t *testing.T) {
	tests := []struct {
		name      string
		spec      ColumnSpec
		datatype  Datatype
		arraysize string
		null      string
	}{
		{"int8 promoted", ColumnSpec{Class: ClassInt8}, Short, "", ""},
		{"int8 array promoted", ColumnSpec{Class: ArrayOf(KindInt8)}, Short, "*", ""},
		{"nullable int", ColumnSpec{Class: ClassInt32, Nullable: true}, Int, "", "-2147483648"},
		{"nullable byte", ColumnSpec{Class: ClassUint8, Nullable: true}, UnsignedByte, "", "255"},
		{"declared null kept", ColumnSpec{Class: ClassInt16, Nullable: true, Null: "-1"}, Short, "", "-1"},
		{"nullable float has no sentinel", ColumnSpec{Class: ClassFloat64, Nullable: true}, Double, "", ""},
		{"fixed string", ColumnSpec{Class: ClassString, ElementSize: 12}, Char, "12", ""},
		{"variable string", ColumnSpec{Class: ClassString}, Char, "*", ""},
		{"string array gains star", ColumnSpec{Class: ArrayOf(KindString), ElementSize: 6}, Char, "6x*", ""},
		{"fixed string array", ColumnSpec{Class: ArrayOf(KindString), ElementSize: 6, Shape: MustShape("3")}, Char, "6x3", ""},
		{"rune", ColumnSpec{Class: ClassRune, Datatype: UnicodeChar}, UnicodeChar, "", ""},
		{"shaped doubles", ColumnSpec{Class: ArrayOf(KindFloat64), Shape: MustShape("3x4")}, Double, "3x4", ""},
		{"complex scalar", ColumnSpec{Class: ArrayOf(KindFloat64), Shape: MustShape("2"), Datatype: DoubleComplex}, DoubleComplex, "", ""},
		{"complex needs pair", ColumnSpec{Class: ArrayOf(KindFloat64), Shape: MustShape("3"), Datatype: DoubleComplex}, Double, "3", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := MakeEncoder(tt.spec)
			require.NoError(t, err)
			assert.Equal(t, tt.datatype, e.Datatype())
			assert.Equal(t, tt.arraysize, e.Arraysize())
			assert.Equal(t, tt.null, e.NullValue())
		})
	}
}

func TestMakeEncoder_Errors(t *testing.T) {
	_, err := MakeEncoder(ColumnSpec{Name: "tags", Class: ArrayOf(KindString)})
	assert.ErrorIs(t, err, ErrNoElementSize)

	_, err = MakeEncoder(ColumnSpec{Class: ClassInt16, Null: "huge"})
	assert.Error(t, err)

	_, err = MakeEncoder(ColumnSpec{Class: Class{Kind: KindNone}})
	assert.Error(t, err)
}

func TestEncoder_Nil(t *testing.T) {
	t.Run("nullable int writes sentinel", func(t *testing.T) {
		e, err := MakeEncoder(ColumnSpec{Class: ClassInt16, Nullable: true})
		require.NoError(t, err)
		d := decoderFor(t, e)

		var buf bytes.Buffer
		require.NoError(t, e.EncodeBinary(&buf, nil))
		assert.Equal(t, []byte{0x80, 0x00}, buf.Bytes())

		v, err := d.DecodeBinary(&buf)
		require.NoError(t, err)
		assert.True(t, d.IsNull(v, 0))
		assert.Equal(t, "", e.EncodeText(nil))
	})

	t.Run("int8 value", func(t *testing.T) {
		e, err := MakeEncoder(ColumnSpec{Class: ClassInt8})
		require.NoError(t, err)
		var buf bytes.Buffer
		require.NoError(t, e.EncodeBinary(&buf, int8(-5)))
		v, err := decoderFor(t, e).DecodeBinary(&buf)
		require.NoError(t, err)
		assert.Equal(t, int16(-5), v)
	})

	t.Run("fixed widths kept", func(t *testing.T) {
		specs := []ColumnSpec{
			{Class: ClassFloat64},
			{Class: ClassBool},
			{Class: ClassString, ElementSize: 5},
			{Class: ArrayOf(KindInt32), Shape: MustShape("3")},
			{Class: ArrayOf(KindString), ElementSize: 2, Shape: MustShape("2")},
		}
		widths := []int{8, 1, 5, 12, 4}
		for i, spec := range specs {
			e, err := MakeEncoder(spec)
			require.NoError(t, err)
			var buf bytes.Buffer
			require.NoError(t, e.EncodeBinary(&buf, nil))
			assert.Equal(t, widths[i], buf.Len(), spec.Class.String())
		}
	})

	t.Run("wrong type", func(t *testing.T) {
		e, err := MakeEncoder(ColumnSpec{Class: ClassInt32})
		require.NoError(t, err)
		assert.Error(t, e.EncodeBinary(&bytes.Buffer{}, "nope"))
	})
}

func TestEncoder_Text(t *testing.T) {
	tests := []struct {
		spec  ColumnSpec
		value any
		want  string
	}{
		{ColumnSpec{Class: ClassBool}, false, "F"},
		{ColumnSpec{Class: ArrayOf(KindBool)}, []bool{true, false}, "T F"},
		{ColumnSpec{Class: ClassFloat64}, math.Inf(1), "Inf"},
		{ColumnSpec{Class: ClassFloat32}, float32(math.NaN()), "NaN"},
		{ColumnSpec{Class: ArrayOf(KindInt32)}, []int32{1, -2}, "1 -2"},
		{ColumnSpec{Class: ArrayOf(KindString), ElementSize: 3}, []string{"a", "bcdx"}, "a  bcd"},
		{ColumnSpec{Class: ClassString}, "a<b", "a<b"},
		{ColumnSpec{Class: ClassRune}, 'q', "q"},
		{ColumnSpec{Class: ClassRune}, rune(0), ""},
	}
	for _, tt := range tests {
		e, err := MakeEncoder(tt.spec)
		require.NoError(t, err)
		assert.Equal(t, tt.want, e.EncodeText(tt.value))
	}
}

func TestEncoder_CharRange(t *testing.T) {
	e, err := MakeEncoder(ColumnSpec{Class: ClassString, ElementSize: 3})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, e.EncodeBinary(&buf, "a€bcd"))
	assert.Equal(t, []byte("a?b"), buf.Bytes())
}
