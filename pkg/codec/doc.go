// Package codec provides the per-column value codecs used by VOTable readers and writers.
//
// A VOTable FIELD declares a datatype, an optional arraysize and an optional null
// ("bad") value. From those three attributes MakeDecoder builds a Decoder which knows how
// to turn a TABLEDATA cell, or the bytes of a BINARY/BINARY2 stream, into a Go value.
// MakeEncoder goes the other way, deriving the attributes from a column's Go value class.
//
// # Value Classes
//
// Decoded values use plain Go types:
//
//	boolean        bool          []bool
//	bit            bool          []bool
//	unsignedByte   uint8         []uint8
//	short          int16         []int16
//	int            int32         []int32
//	long           int64         []int64
//	float          float32       []float32
//	double         float64       []float64
//	floatComplex   []float32 (re, im pairs)
//	doubleComplex  []float64 (re, im pairs)
//	char           rune          string          []string
//	unicodeChar    rune          string          []string
//
// A null scalar decodes to nil. Floating point types use NaN as their intrinsic bad
// value; integral types compare against the configured null literal.
//
// # Binary Format
//
// All binary values are big-endian. Element widths are:
//
//	boolean, unsignedByte, char   1 byte
//	short, unicodeChar            2 bytes
//	int, float                    4 bytes
//	long, double                  8 bytes
//	bit                           1 bit, packed MSB-first into ceil(n/8) bytes
//
// A variable-length array (arraysize ending in "*") is preceded by a 4-byte count
// giving the number of units of its last dimension. For example a "3x*" int array with
// a count of 2 carries 6 ints.
//
// # Character Data
//
// For char and unicodeChar the first arraysize dimension is the string length. A
// one-dimensional char array therefore decodes to a single string, and "10x5" decodes to
// five strings of up to ten characters. When decoding binary data a NUL character ends
// the string early and trailing spaces are trimmed.
//
// # Null Flags
//
// BINARY2 rows start with a bitmap of ceil(ncol/8) bytes in which bit i (mask 0x80 for
// column 0) marks column i as null. NullFlags packs and unpacks that bitmap.
//
// # Error Handling
//
// Text decoding never fails: a malformed token becomes the decoder's bad value so one
// broken cell cannot abort a table. Binary decoding returns io.EOF when the stream ends
// cleanly before an element and io.ErrUnexpectedEOF when it ends inside one.
//
// # Thread Safety
//
// A Decoder is safe for concurrent use once SetNullValue is no longer being called.
// Encoders are immutable.
package codec
