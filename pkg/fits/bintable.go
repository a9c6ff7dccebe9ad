package fits

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	goerrors "gopkg.in/src-d/go-errors.v1"

	"github.com/ssargent/votable/pkg/codec"
	"github.com/ssargent/votable/pkg/tabular"
)

var (
	// ErrNoExtension is returned when a stream ends before the requested HDU.
	ErrNoExtension = goerrors.NewKind("FITS stream has no HDU %d")

	// ErrNotBinTable is returned when the requested HDU is not a BINTABLE.
	ErrNotBinTable = goerrors.NewKind("HDU %d is %q, not a BINTABLE")

	// ErrUnsupportedColumn is returned for columns BinTable cannot represent.
	ErrUnsupportedColumn = goerrors.NewKind("column %q: %s")
)

// TableReader reads the BINTABLE in HDU extnum of a FITS stream that starts at the
// primary HDU. The returned table does not use r after ReadTable returns.
type TableReader interface {
	ReadTable(ctx context.Context, r io.Reader, extnum int) (tabular.Table, error)
}

// TableWriter writes a table as one BINTABLE extension HDU.
type TableWriter interface {
	WriteTable(w io.Writer, t tabular.Table) error
}

// BinTable reads and writes row-oriented BINTABLE extensions with fixed-size columns.
// Variable-length string columns are written at the width of their longest value.
type BinTable struct{}

var (
	_ TableReader = BinTable{}
	_ TableWriter = BinTable{}
)

var tformCodes = map[codec.Datatype]byte{
	codec.Boolean:       'L',
	codec.Bit:           'X',
	codec.UnsignedByte:  'B',
	codec.Short:         'I',
	codec.Int:           'J',
	codec.Long:          'K',
	codec.Float:         'E',
	codec.Double:        'D',
	codec.FloatComplex:  'C',
	codec.DoubleComplex: 'M',
	codec.Char:          'A',
}

func datatypeOf(code byte) (codec.Datatype, bool) {
	for dt, c := range tformCodes {
		if c == code {
			return dt, true
		}
	}
	return codec.Unknown, false
}

// WriteFITS writes a complete FITS stream: an empty primary HDU followed by t.
func (b BinTable) WriteFITS(w io.Writer, t tabular.Table) error {
	primary := Header{
		Bool("SIMPLE", true, "file conforms to FITS standard"),
		Int("BITPIX", 8, ""),
		Int("NAXIS", 0, ""),
		Bool("EXTEND", true, "extensions may follow"),
	}
	if _, err := primary.WriteTo(w); err != nil {
		return err
	}
	return b.WriteTable(w, t)
}

// WriteTable writes t as a BINTABLE HDU.
func (BinTable) WriteTable(w io.Writer, t tabular.Table) error {
	cols := t.Columns()
	specs := make([]codec.ColumnSpec, len(cols))
	for i, c := range cols {
		specs[i] = c.EncoderSpec()
		if specs[i].Datatype == codec.UnicodeChar {
			specs[i].Datatype = codec.Unknown
		}
	}
	nrows, err := tabular.SizeStrings(t, specs, true)
	if err != nil {
		return err
	}

	encoders := make([]codec.Encoder, len(specs))
	h := Header{
		String("XTENSION", "BINTABLE", "binary table extension"),
		Int("BITPIX", 8, ""),
		Int("NAXIS", 2, ""),
		Int("NAXIS1", 0, "bytes per row"),
		Int("NAXIS2", nrows, "number of rows"),
		Int("PCOUNT", 0, ""),
		Int("GCOUNT", 1, ""),
		Int("TFIELDS", int64(len(specs)), ""),
	}
	var rowBytes int64
	for i, spec := range specs {
		enc, err := codec.MakeEncoder(spec)
		if err != nil {
			return err
		}
		encoders[i] = enc

		col, err := columnCards(i+1, cols[i], enc)
		if err != nil {
			return err
		}
		h = append(h, col.cards...)
		rowBytes += col.width
	}
	h[3] = Int("NAXIS1", rowBytes, "bytes per row")

	if _, err := h.WriteTo(w); err != nil {
		return err
	}

	bw := bufio.NewWriter(w)
	rw := tabular.NewBinaryRowWriter(bw, encoders, false)
	seq, err := t.Rows()
	if err != nil {
		return err
	}
	defer seq.Close()

	var n int64
	for {
		ok, err := seq.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		row, err := seq.Row()
		if err != nil {
			return err
		}
		if err := rw.WriteRow(row); err != nil {
			return fmt.Errorf("row %d: %w", n, err)
		}
		n++
	}
	if n != nrows {
		return fmt.Errorf("table changed while writing: %d rows, expected %d", n, nrows)
	}
	if _, err := bw.Write(make([]byte, padding(n*rowBytes))); err != nil {
		return err
	}
	return bw.Flush()
}

type columnHeader struct {
	cards []Card
	width int64
}

func columnCards(n int, col tabular.ColumnInfo, enc codec.Encoder) (columnHeader, error) {
	dt := enc.Datatype()
	code, ok := tformCodes[dt]
	if !ok {
		return columnHeader{}, ErrUnsupportedColumn.New(col.Name, "datatype "+dt.String())
	}
	shape, err := codec.ParseArraysize(enc.Arraysize())
	if err != nil {
		return columnHeader{}, err
	}
	if shape.IsVariable() {
		return columnHeader{}, ErrUnsupportedColumn.New(col.Name, "variable-length arrays are not supported")
	}

	repeat := int64(shape.Count())
	var width int64
	switch dt {
	case codec.Bit:
		width = (repeat + 7) / 8
	case codec.FloatComplex, codec.DoubleComplex:
		width = repeat * 2 * int64(dt.ElementWidth())
	default:
		width = repeat * int64(dt.ElementWidth())
	}

	suffix := strconv.Itoa(n)
	cards := []Card{
		String("TTYPE"+suffix, col.Name, ""),
		String("TFORM"+suffix, fmt.Sprintf("%d%c", repeat, code), ""),
	}
	if col.Unit != "" {
		cards = append(cards, String("TUNIT"+suffix, col.Unit, ""))
	}
	if shape.NDim() > 1 {
		dims := make([]string, shape.NDim())
		for i, d := range shape.Dims {
			dims[i] = strconv.Itoa(d)
		}
		cards = append(cards, String("TDIM"+suffix, "("+strings.Join(dims, ",")+")", ""))
	}
	if null := enc.NullValue(); null != "" && dt.IsIntegral() {
		v, err := strconv.ParseInt(null, 10, 64)
		if err == nil {
			cards = append(cards, Int("TNULL"+suffix, v, ""))
		}
	}
	return columnHeader{cards: cards, width: width}, nil
}

// ReadTable reads the BINTABLE in HDU extnum, counting the primary HDU as 0.
func (BinTable) ReadTable(ctx context.Context, r io.Reader, extnum int) (tabular.Table, error) {
	br := bufio.NewReader(r)
	for hdu := 0; ; hdu++ {
		h, err := ReadHeader(br)
		if err == io.EOF {
			return nil, ErrNoExtension.New(extnum)
		}
		if err != nil {
			return nil, err
		}
		if hdu < extnum {
			if err := skipData(br, dataSize(h)); err != nil {
				return nil, err
			}
			continue
		}
		if xt, _ := h.Str("XTENSION"); xt != "BINTABLE" {
			return nil, ErrNotBinTable.New(extnum, xt)
		}
		return readBinTable(ctx, h, br)
	}
}

func readBinTable(ctx context.Context, h Header, r io.Reader) (tabular.Table, error) {
	naxis1, _ := h.Int("NAXIS1")
	naxis2, _ := h.Int("NAXIS2")
	tfields, _ := h.Int("TFIELDS")

	decoders := make([]codec.Decoder, tfields)
	columns := make([]tabular.ColumnInfo, tfields)
	var width int64
	for i := range decoders {
		suffix := strconv.Itoa(i + 1)
		name, ok := h.Str("TTYPE" + suffix)
		if !ok {
			name = "col" + suffix
		}
		tform, _ := h.Str("TFORM" + suffix)
		tdim, _ := h.Str("TDIM" + suffix)
		tnull, _ := h.Str("TNULL" + suffix)

		dec, w, err := columnDecoder(name, tform, tdim, tnull)
		if err != nil {
			return nil, err
		}
		decoders[i] = dec
		width += w

		columns[i] = tabular.ColumnFromDecoder(name, dec)
		columns[i].Unit, _ = h.Str("TUNIT" + suffix)
	}
	if width != naxis1 {
		return nil, fmt.Errorf("BINTABLE columns take %d bytes but rows are %d", width, naxis1)
	}

	store := tabular.NewRowStore(tabular.TableMeta{Columns: columns, RowCount: naxis2})
	rows := tabular.NewBinaryRowReader(io.LimitReader(r, naxis1*naxis2), decoders, false)
	for i := int64(0); i < naxis2; i++ {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		row, err := rows.ReadNext()
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		if err != nil {
			return nil, fmt.Errorf("BINTABLE row %d: %w", i, err)
		}
		if err := store.Row(row); err != nil {
			return nil, err
		}
	}
	if err := store.EndTable(); err != nil {
		return nil, err
	}
	return store, nil
}

// columnDecoder maps a TFORM such as "10A" or "3J" to a decoder and the column width.
func columnDecoder(name, tform, tdim, tnull string) (codec.Decoder, int64, error) {
	tform = strings.TrimSpace(tform)
	i := 0
	for i < len(tform) && tform[i] >= '0' && tform[i] <= '9' {
		i++
	}
	if i >= len(tform) {
		return nil, 0, ErrUnsupportedColumn.New(name, "bad TFORM "+strconv.Quote(tform))
	}
	repeat := int64(1)
	if i > 0 {
		n, err := strconv.ParseInt(tform[:i], 10, 64)
		if err != nil {
			return nil, 0, ErrUnsupportedColumn.New(name, "bad TFORM "+strconv.Quote(tform))
		}
		repeat = n
	}
	dt, ok := datatypeOf(tform[i])
	if !ok {
		return nil, 0, ErrUnsupportedColumn.New(name, "TFORM "+strconv.Quote(tform))
	}

	var arraysize string
	switch {
	case tdim != "":
		dims := strings.Split(strings.Trim(strings.TrimSpace(tdim), "()"), ",")
		for j := range dims {
			dims[j] = strings.TrimSpace(dims[j])
		}
		arraysize = strings.Join(dims, "x")
	case dt == codec.Char || repeat != 1:
		arraysize = strconv.FormatInt(repeat, 10)
	}

	dec, err := codec.MakeDecoder(dt.String(), arraysize, strings.TrimSpace(tnull))
	if err != nil {
		return nil, 0, ErrUnsupportedColumn.New(name, err.Error())
	}

	var width int64
	switch dt {
	case codec.Bit:
		width = (repeat + 7) / 8
	case codec.FloatComplex, codec.DoubleComplex:
		width = repeat * 2 * int64(dt.ElementWidth())
	default:
		width = repeat * int64(dt.ElementWidth())
	}
	return dec, width, nil
}
