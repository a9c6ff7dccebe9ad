package serialize

import (
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/ssargent/votable/pkg/codec"
	"github.com/ssargent/votable/pkg/tabular"
)

var (
	// ErrNoFITSWriter is returned when FITS output is asked for without a FITSWriter.
	ErrNoFITSWriter = errors.New("serialize: FITS format needs a FITSWriter")

	// ErrNoHref is returned for href output in TABLEDATA, which has no STREAM form.
	ErrNoHref = errors.New("serialize: TABLEDATA cannot be written to an external stream")
)

// FITSWriter writes a table as a complete FITS stream: a primary HDU followed by one
// BINTABLE extension.
type FITSWriter interface {
	WriteFITS(w io.Writer, t tabular.Table) error
}

// Serializer writes the parts of a TABLE element for one table in one data format.
type Serializer struct {
	// Indent is the nesting depth of the TABLE's children.
	Indent int

	table    tabular.Table
	format   DataFormat
	columns  []tabular.ColumnInfo
	encoders []codec.Encoder
	fits     FITSWriter
}

// NewSerializer prepares t for writing. String columns without a known length are
// measured first, which reads the table once.
func NewSerializer(t tabular.Table, format DataFormat, fw FITSWriter) (*Serializer, error) {
	if format == FITS && fw == nil {
		return nil, ErrNoFITSWriter
	}
	cols := t.Columns()
	specs := make([]codec.ColumnSpec, len(cols))
	for i, c := range cols {
		specs[i] = c.EncoderSpec()
		if format == FITS && specs[i].Datatype == codec.UnicodeChar {
			specs[i].Datatype = codec.Unknown
		}
	}
	if _, err := tabular.SizeStrings(t, specs, format == FITS); err != nil {
		return nil, fmt.Errorf("measuring %q: %w", t.Name(), err)
	}

	s := &Serializer{
		table:    t,
		format:   format,
		columns:  cols,
		encoders: make([]codec.Encoder, len(specs)),
		fits:     fw,
	}
	for i, spec := range specs {
		enc, err := codec.MakeEncoder(spec)
		if err != nil {
			return nil, err
		}
		s.encoders[i] = enc
	}
	return s, nil
}

// Format returns the data format rows are written in.
func (s *Serializer) Format() DataFormat { return s.format }

// Encoders returns the column encoders.
func (s *Serializer) Encoders() []codec.Encoder { return s.encoders }

// WriteFields writes a FIELD element per column.
func (s *Serializer) WriteFields(w io.Writer) error {
	x := newXMLWriter(w)
	for i, c := range s.columns {
		writeDescribed(x, s.Indent, "FIELD", c, s.encoders[i], nil)
	}
	return x.flush()
}

// WriteParams writes a PARAM element per table parameter.
func (s *Serializer) WriteParams(w io.Writer) error {
	x := newXMLWriter(w)
	for _, p := range s.table.Params() {
		enc, err := paramEncoder(p)
		if err != nil {
			return err
		}
		value := enc.EncodeText(p.Value)
		writeDescribed(x, s.Indent, "PARAM", p.ColumnInfo, enc, &value)
	}
	return x.flush()
}

func paramEncoder(p tabular.Param) (codec.Encoder, error) {
	spec := p.EncoderSpec()
	if spec.Class == codec.ArrayOf(codec.KindString) && spec.ElementSize <= 0 {
		spec.ElementSize = 1
		if v, ok := p.Value.([]string); ok {
			for _, e := range v {
				spec.ElementSize = max(spec.ElementSize, utf8.RuneCountInString(e))
			}
		}
	}
	return codec.MakeEncoder(spec)
}

func writeDescribed(x *xmlWriter, depth int, tag string, c tabular.ColumnInfo, enc codec.Encoder, value *string) {
	kv := []string{
		"name", c.Name,
		"ID", c.ID,
		"datatype", enc.Datatype().String(),
		"arraysize", enc.Arraysize(),
		"unit", c.Unit,
		"ucd", c.UCD,
		"utype", c.Utype,
		"xtype", c.Xtype,
	}
	x.raw(indent(depth) + "<" + tag)
	x.attrs(kv...)
	if value != nil {
		x.raw(` value="`)
		x.text(*value)
		x.raw(`"`)
	}

	null := enc.NullValue()
	if c.Description == "" && null == "" {
		x.raw("/>\n")
		return
	}
	x.raw(">\n")
	if c.Description != "" {
		x.raw(indent(depth + 1))
		x.element("DESCRIPTION", c.Description)
		x.raw("\n")
	}
	if null != "" {
		x.raw(indent(depth + 1))
		x.empty("VALUES", "null", null)
		x.raw("\n")
	}
	x.raw(indent(depth))
	x.close(tag)
	x.raw("\n")
}

// WriteInlineData writes a DATA element holding the rows.
func (s *Serializer) WriteInlineData(w io.Writer) error {
	x := newXMLWriter(w)
	in := indent(s.Indent)
	x.raw(in + "<DATA>\n")

	var err error
	switch s.format {
	case TableData:
		err = s.writeTableData(x)
	default:
		x.raw(in + "  <" + s.format.String() + ">\n")
		x.raw(in + `    <STREAM encoding="base64">`)
		err = writeBase64(x, s.writeStream)
		x.raw(in + "    </STREAM>\n")
		x.raw(in + "  </" + s.format.String() + ">\n")
	}
	if err != nil {
		return err
	}
	x.raw(in + "</DATA>\n")
	return x.flush()
}

// WriteHrefData writes a DATA element whose STREAM refers to href, and writes the
// stream bytes to stream.
func (s *Serializer) WriteHrefData(w io.Writer, href string, stream io.Writer) error {
	if s.format == TableData {
		return ErrNoHref
	}
	if err := s.writeStream(stream); err != nil {
		return err
	}

	x := newXMLWriter(w)
	in := indent(s.Indent)
	x.raw(in + "<DATA>\n")
	x.raw(in + "  <" + s.format.String() + ">\n")
	x.raw(in + "    ")
	x.empty("STREAM", "href", href)
	x.raw("\n")
	x.raw(in + "  </" + s.format.String() + ">\n")
	x.raw(in + "</DATA>\n")
	return x.flush()
}

// writeStream writes the raw bytes of a BINARY, BINARY2 or FITS stream.
func (s *Serializer) writeStream(w io.Writer) error {
	if s.format == FITS {
		return s.fits.WriteFITS(w, s.table)
	}
	rw := tabular.NewBinaryRowWriter(w, s.encoders, s.format == Binary2)
	_, err := s.eachRow(rw.WriteRow)
	return err
}

func (s *Serializer) writeTableData(x *xmlWriter) error {
	in := indent(s.Indent)
	x.raw(in + "  <TABLEDATA>\n")
	_, err := s.eachRow(func(row []any) error {
		x.raw(in + "    <TR>")
		for i, e := range s.encoders {
			x.raw("<TD>")
			x.text(e.EncodeText(row[i]))
			x.raw("</TD>")
		}
		x.raw("</TR>\n")
		return x.err
	})
	if err != nil {
		return err
	}
	x.raw(in + "  </TABLEDATA>\n")
	return x.err
}

func (s *Serializer) eachRow(fn func(row []any) error) (int64, error) {
	seq, err := s.table.Rows()
	if err != nil {
		return 0, err
	}
	defer seq.Close()

	width := len(s.encoders)
	var n int64
	for {
		ok, err := seq.Next()
		if err != nil {
			return n, err
		}
		if !ok {
			return n, nil
		}
		row, err := seq.Row()
		if err != nil {
			return n, err
		}
		if len(row) != width {
			return n, fmt.Errorf("row %d has %d cells, table has %d columns", n, len(row), width)
		}
		if err := fn(row); err != nil {
			return n, fmt.Errorf("row %d: %w", n, err)
		}
		n++
	}
}
