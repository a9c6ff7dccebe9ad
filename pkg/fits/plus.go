package fits

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	goerrors "gopkg.in/src-d/go-errors.v1"

	"github.com/ssargent/votable/pkg/parser"
	"github.com/ssargent/votable/pkg/serialize"
	"github.com/ssargent/votable/pkg/tabular"
	"github.com/ssargent/votable/pkg/votable"
)

// ErrNotFitsPlus is returned by ReadPlus for streams without the fits-plus markers.
var ErrNotFitsPlus = goerrors.NewKind("not a fits-plus stream: %s")

// PlusOptions configures WritePlus and ReadPlus.
type PlusOptions struct {
	// Colfits marks the primary header as colfits-plus.
	Colfits bool
	Version serialize.Version
	Logger  logrus.FieldLogger
}

func (o PlusOptions) logger() logrus.FieldLogger {
	if o.Logger == nil {
		return logrus.StandardLogger()
	}
	return o.Logger
}

// WritePlus writes a fits-plus stream: a primary HDU whose data is a VOTable document
// describing the tables, then one BINTABLE per table written by tw. Table i of the
// document is HDU i+1.
func WritePlus(w io.Writer, tables []tabular.Table, tw TableWriter, opts PlusOptions) error {
	dw, err := serialize.NewDocumentWriter(serialize.Options{
		Version: opts.Version,
		Format:  serialize.FITS,
		Mode:    serialize.NoData,
		FITS:    BinTable{},
		Logger:  opts.Logger,
	})
	if err != nil {
		return err
	}
	var meta bytes.Buffer
	if err := dw.Write(&meta, tables...); err != nil {
		return fmt.Errorf("writing metadata: %w", err)
	}

	primary := Header{
		Bool("SIMPLE", true, "file conforms to FITS standard"),
		Int("BITPIX", 8, "character data"),
		Int("NAXIS", 1, "text string"),
		Int("NAXIS1", int64(meta.Len()), "VOTable metadata length"),
	}
	if opts.Colfits {
		primary = append(primary, Bool("COLFITS", true, "column-oriented extensions"))
	}
	primary = append(primary,
		Bool("VOTMETA", true, "table metadata in VOTable format"),
		Bool("EXTEND", true, "table extensions follow"),
		Int("NTABLE", int64(len(tables)), "number of tables"),
	)

	if _, err := primary.WriteTo(w); err != nil {
		return err
	}
	n := int64(meta.Len())
	if _, err := meta.WriteTo(w); err != nil {
		return err
	}
	if _, err := w.Write(make([]byte, padding(n))); err != nil {
		return err
	}

	for i, t := range tables {
		if err := tw.WriteTable(w, t); err != nil {
			return fmt.Errorf("table %d (%q): %w", i, t.Name(), err)
		}
	}
	opts.logger().WithField("tables", len(tables)).Debug("fits-plus written")
	return nil
}

// Plus is a decoded fits-plus stream.
type Plus struct {
	// Doc is the metadata document. Each of its tables has its rows attached.
	Doc *votable.Document

	// Tables joins the VOTable column metadata with the rows of the matching HDU.
	Tables []tabular.Table
}

// ReadPlus reads a fits-plus stream. open is called once for the primary header and
// once per table, since each table reader starts at the beginning of the stream.
func ReadPlus(ctx context.Context, open tabular.Opener, tr TableReader, opts PlusOptions) (*Plus, error) {
	meta, colfits, err := readMetadata(open)
	if err != nil {
		return nil, err
	}
	if colfits {
		opts.logger().Debug("colfits-plus stream, reading extensions with the given table reader")
	}

	doc, err := parser.Parse(ctx, bytes.NewReader(meta), parser.Options{Logger: opts.Logger})
	if err != nil {
		return nil, fmt.Errorf("fits-plus metadata: %w", err)
	}

	plus := &Plus{Doc: doc}
	for i, t := range doc.Tables() {
		ft, err := readExtension(ctx, open, tr, i+1)
		if err != nil {
			return nil, fmt.Errorf("table %d (%q): %w", i, t.Name(), err)
		}
		if ft.ColumnCount() != len(t.Fields()) {
			return nil, fmt.Errorf("table %d (%q): HDU %d has %d columns, metadata has %d",
				i, t.Name(), i+1, ft.ColumnCount(), len(t.Fields()))
		}
		t.SetData(ft)
		plus.Tables = append(plus.Tables, tabular.External(ft, t.Name(), joinColumns(t.Columns(), ft.Columns()), t.TabularParams()))
	}
	return plus, nil
}

func readMetadata(open tabular.Opener) ([]byte, bool, error) {
	rc, err := open()
	if err != nil {
		return nil, false, err
	}
	defer rc.Close()

	h, err := ReadHeader(rc)
	if err != nil {
		return nil, false, ErrNotFitsPlus.Wrap(err, "unreadable primary header")
	}
	var head bytes.Buffer
	if _, err := h.WriteTo(&head); err != nil {
		return nil, false, err
	}
	buf := head.Bytes()
	if !IsFitsPlus(buf) && !IsColfitsPlus(buf) {
		return nil, false, ErrNotFitsPlus.New("no VOTMETA primary header")
	}

	n, _ := h.Int("NAXIS1")
	meta := make([]byte, n)
	if _, err := io.ReadFull(rc, meta); err != nil {
		return nil, false, ErrNotFitsPlus.Wrap(err, "truncated metadata")
	}
	return meta, IsColfitsPlus(buf), nil
}

func readExtension(ctx context.Context, open tabular.Opener, tr TableReader, extnum int) (tabular.Table, error) {
	rc, err := open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return tr.ReadTable(ctx, rc, extnum)
}

// joinColumns keeps the VOTable description of each column and takes the value
// representation from the FITS column, which is what the rows hold.
func joinColumns(meta, data []tabular.ColumnInfo) []tabular.ColumnInfo {
	out := make([]tabular.ColumnInfo, len(meta))
	for i, c := range meta {
		d := data[i]
		c.Class = d.Class
		c.Shape = d.Shape
		c.ElementSize = d.ElementSize
		c.Nullable = c.Nullable || d.Nullable
		if c.Null == "" {
			c.Null = d.Null
		}
		out[i] = c
	}
	return out
}
