package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// maxCount bounds variable-length counts so a corrupt prefix cannot trigger a huge
// allocation.
const maxCount = 1 << 30

const chunkSize = 1 << 16

type discarder interface {
	Discard(n int) (int, error)
}

// readBytes reads exactly n bytes. It returns io.EOF only when no byte at all could be
// read.
func readBytes(r io.Reader, n int) ([]byte, error) {
	if n > chunkSize {
		// grow with the data so a corrupt length cannot force a huge allocation
		var buf bytes.Buffer
		m, err := buf.ReadFrom(io.LimitReader(r, int64(n)))
		switch {
		case err != nil:
			return nil, err
		case m == 0:
			return nil, io.EOF
		case int(m) < n:
			return nil, io.ErrUnexpectedEOF
		}
		return buf.Bytes(), nil
	}
	buf := make([]byte, n)
	if n == 0 {
		return buf, nil
	}
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// skipBytes advances r by n bytes without keeping them.
func skipBytes(r io.Reader, n int) error {
	if n <= 0 {
		return nil
	}
	if d, ok := r.(discarder); ok {
		m, err := d.Discard(n)
		if err == io.EOF && m > 0 {
			return io.ErrUnexpectedEOF
		}
		return err
	}
	m, err := io.CopyN(io.Discard, r, int64(n))
	if err == io.EOF && m > 0 {
		return io.ErrUnexpectedEOF
	}
	return err
}

// readCount reads the 4-byte prefix of a variable-length value.
func readCount(r io.Reader) (int, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	n := int32(binary.BigEndian.Uint32(b[:]))
	if n < 0 || n > maxCount {
		return 0, fmt.Errorf("codec: bad array length prefix %d", n)
	}
	return int(n), nil
}

// writeCount writes the 4-byte prefix of a variable-length value.
func writeCount(w io.Writer, n int) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(n))
	_, err := w.Write(b[:])
	return err
}

// midElement turns an io.EOF seen after part of a value was consumed into
// io.ErrUnexpectedEOF.
func midElement(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
