package codec

import "io"

// NullFlags is the per-row null bitmap of a BINARY2 stream. Bit i, mask 0x80>>(i%8) of
// byte i/8, is set when column i is null.
type NullFlags struct {
	ncol int
	bits []byte
}

// NewNullFlags returns a cleared bitmap for ncol columns.
func NewNullFlags(ncol int) *NullFlags {
	return &NullFlags{ncol: ncol, bits: make([]byte, (ncol+7)/8)}
}

// ReadNullFlags reads the bitmap that starts a BINARY2 row. io.EOF means the stream
// ended cleanly between rows.
func ReadNullFlags(r io.Reader, ncol int) (*NullFlags, error) {
	f := NewNullFlags(ncol)
	if len(f.bits) == 0 {
		return f, nil
	}
	if _, err := io.ReadFull(r, f.bits); err != nil {
		return nil, err
	}
	return f, nil
}

// Len returns the number of columns.
func (f *NullFlags) Len() int { return f.ncol }

// Set marks column i null or not null.
func (f *NullFlags) Set(i int, null bool) {
	if null {
		f.bits[i>>3] |= 0x80 >> uint(i&7)
	} else {
		f.bits[i>>3] &^= 0x80 >> uint(i&7)
	}
}

// IsSet reports whether column i is flagged null.
func (f *NullFlags) IsSet(i int) bool {
	return f.bits[i>>3]&(0x80>>uint(i&7)) != 0
}

// Reset clears every flag.
func (f *NullFlags) Reset() {
	for i := range f.bits {
		f.bits[i] = 0
	}
}

// Bytes returns the packed bitmap. The slice is shared with f.
func (f *NullFlags) Bytes() []byte { return f.bits }

// WriteTo writes the packed bitmap.
func (f *NullFlags) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(f.bits)
	return int64(n), err
}
