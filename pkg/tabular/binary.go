package tabular

import (
	"bufio"
	"fmt"
	"io"

	"github.com/ssargent/votable/pkg/codec"
)

// BinaryRowReader reads rows from a BINARY or BINARY2 byte stream.
type BinaryRowReader struct {
	r        *bufio.Reader
	decoders []codec.Decoder
	binary2  bool
	keep     []bool
	rows     int64
}

// NewBinaryRowReader creates a row reader. For BINARY2 streams each row starts with a
// null flag bitmap.
func NewBinaryRowReader(r io.Reader, decoders []codec.Decoder, binary2 bool) *BinaryRowReader {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	return &BinaryRowReader{r: br, decoders: decoders, binary2: binary2}
}

// SetColumns restricts decoding to the columns marked true. The bytes of the other
// columns are skipped and their cells are nil.
func (br *BinaryRowReader) SetColumns(keep []bool) {
	br.keep = keep
}

// RowsRead returns the number of complete rows read so far.
func (br *BinaryRowReader) RowsRead() int64 {
	return br.rows
}

// ReadNext reads the next row. It returns io.EOF when the stream ends between rows.
func (br *BinaryRowReader) ReadNext() ([]any, error) {
	ncol := len(br.decoders)
	if ncol == 0 {
		return nil, io.EOF
	}

	var flags *codec.NullFlags
	if br.binary2 {
		var err error
		flags, err = codec.ReadNullFlags(br.r, ncol)
		if err == io.EOF {
			return nil, io.EOF
		}
		if err != nil {
			return nil, fmt.Errorf("row %d null flags: %w", br.rows, err)
		}
	}

	row := make([]any, ncol)
	for i, d := range br.decoders {
		skip := (flags != nil && flags.IsSet(i)) || (br.keep != nil && i < len(br.keep) && !br.keep[i])
		var err error
		if skip {
			err = d.SkipBinary(br.r)
		} else {
			var v any
			if v, err = d.DecodeBinary(br.r); err == nil {
				row[i] = codec.BlankNull(d, v)
			}
		}
		if err != nil {
			if err == io.EOF {
				if i == 0 && flags == nil {
					return nil, io.EOF
				}
				err = io.ErrUnexpectedEOF
			}
			return nil, fmt.Errorf("row %d column %d: %w", br.rows, i, err)
		}
	}
	br.rows++
	return row, nil
}

// ReadBinaryRows decodes every row of r and passes it to h.Row. It does not call
// StartTable or EndTable.
func ReadBinaryRows(r io.Reader, decoders []codec.Decoder, binary2 bool, h TableHandler) (int64, error) {
	br := NewBinaryRowReader(r, decoders, binary2)
	for {
		row, err := br.ReadNext()
		if err == io.EOF {
			return br.RowsRead(), nil
		}
		if err != nil {
			return br.RowsRead(), err
		}
		if err := h.Row(row); err != nil {
			return br.RowsRead(), err
		}
	}
}

// BinaryRowWriter writes rows as a BINARY or BINARY2 byte stream.
type BinaryRowWriter struct {
	w        io.Writer
	encoders []codec.Encoder
	flags    *codec.NullFlags
}

// NewBinaryRowWriter creates a row writer. When binary2 is set each row is preceded by
// its null flags and nil cells are flagged.
func NewBinaryRowWriter(w io.Writer, encoders []codec.Encoder, binary2 bool) *BinaryRowWriter {
	bw := &BinaryRowWriter{w: w, encoders: encoders}
	if binary2 {
		bw.flags = codec.NewNullFlags(len(encoders))
	}
	return bw
}

// WriteRow writes one row. Nil cells are written as the column's bad value.
func (bw *BinaryRowWriter) WriteRow(row []any) error {
	if len(row) != len(bw.encoders) {
		return fmt.Errorf("row has %d cells, table has %d columns", len(row), len(bw.encoders))
	}
	if bw.flags != nil {
		bw.flags.Reset()
		for i, v := range row {
			bw.flags.Set(i, v == nil)
		}
		if _, err := bw.flags.WriteTo(bw.w); err != nil {
			return err
		}
	}
	for i, e := range bw.encoders {
		if err := e.EncodeBinary(bw.w, row[i]); err != nil {
			return fmt.Errorf("column %d: %w", i, err)
		}
	}
	return nil
}

// Opener opens a fresh copy of a byte stream.
type Opener func() (io.ReadCloser, error)

// BinaryData is row data held in a BINARY or BINARY2 stream. It can only be read
// sequentially; each sequence opens the stream again.
type BinaryData struct {
	decoders []codec.Decoder
	binary2  bool
	open     Opener
}

// NewBinaryData returns Data reading the stream produced by open.
func NewBinaryData(decoders []codec.Decoder, binary2 bool, open Opener) *BinaryData {
	return &BinaryData{decoders: decoders, binary2: binary2, open: open}
}

func (d *BinaryData) ColumnCount() int              { return len(d.decoders) }
func (d *BinaryData) RowCount() int64               { return -1 }
func (d *BinaryData) ColumnClass(i int) codec.Class { return d.decoders[i].Class() }
func (d *BinaryData) RandomAccess() bool            { return false }

func (d *BinaryData) Access() (RowAccess, error) {
	return nil, ErrSequentialOnly
}

func (d *BinaryData) Rows() (RowSequence, error) {
	rc, err := d.open()
	if err != nil {
		return nil, err
	}
	return &binarySequence{
		rc:     rc,
		reader: NewBinaryRowReader(rc, d.decoders, d.binary2),
	}, nil
}

type binarySequence struct {
	cursor
	rc     io.ReadCloser
	reader *BinaryRowReader
}

func (s *binarySequence) Next() (bool, error) {
	switch s.state {
	case stateClosed:
		return false, ErrClosed
	case stateDone:
		return false, nil
	}
	row, err := s.reader.ReadNext()
	if err == io.EOF {
		s.finish()
		return false, s.release()
	}
	if err != nil {
		s.finish()
		s.release()
		return false, err
	}
	s.set(row)
	return true, nil
}

func (s *binarySequence) release() error {
	if s.rc == nil {
		return nil
	}
	err := s.rc.Close()
	s.rc = nil
	return err
}

func (s *binarySequence) Close() error {
	s.close()
	return s.release()
}
