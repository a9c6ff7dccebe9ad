package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/cockroachdb/pebble"
	"github.com/segmentio/ksuid"
	"github.com/sirupsen/logrus"

	"github.com/ssargent/votable/pkg/codec"
	"github.com/ssargent/votable/pkg/tabular"
)

// flushBytes is the batch size at which rows are committed before the table ends.
const flushBytes = 4 << 20

// ErrNotEnded is returned by SpoolWriter.Result before EndTable.
var ErrNotEnded = errors.New("storage: table has not ended")

// columnFormat is how a column is encoded in the spooled rows.
type columnFormat struct {
	Datatype  string `cbor:"1,keyasint"`
	Arraysize string `cbor:"2,keyasint,omitempty"`
	Null      string `cbor:"3,keyasint,omitempty"`
}

func (f columnFormat) decoder() (codec.Decoder, error) {
	return codec.MakeDecoder(f.Datatype, f.Arraysize, f.Null)
}

func formatOf(e codec.Encoder) columnFormat {
	return columnFormat{Datatype: e.Datatype().String(), Arraysize: e.Arraysize(), Null: e.NullValue()}
}

type paramRecord struct {
	Info   tabular.ColumnInfo `cbor:"1,keyasint"`
	Format columnFormat       `cbor:"2,keyasint"`
	Text   string             `cbor:"3,keyasint"`
}

type manifest struct {
	Name     string               `cbor:"1,keyasint"`
	Columns  []tabular.ColumnInfo `cbor:"2,keyasint"`
	Formats  []columnFormat       `cbor:"3,keyasint"`
	Params   []paramRecord        `cbor:"4,keyasint,omitempty"`
	RowCount int64                `cbor:"5,keyasint"`
}

// SpoolWriter receives one streamed table and stores it in a Spool.
type SpoolWriter struct {
	spool *Spool
	id    ksuid.KSUID

	m     manifest
	rows  *tabular.BinaryRowWriter
	buf   bytes.Buffer
	batch *pebble.Batch
	ended bool
}

var _ tabular.Collector = (*SpoolWriter)(nil)

// ID returns the key the table is stored under.
func (w *SpoolWriter) ID() ksuid.KSUID { return w.id }

func (w *SpoolWriter) StartTable(meta tabular.TableMeta) error {
	if w.batch != nil {
		w.batch.Close()
		w.batch = nil
	}
	if w.m.RowCount > 0 || w.ended {
		if err := w.spool.Delete(w.id); err != nil {
			return err
		}
	}

	encoders := make([]codec.Encoder, len(meta.Columns))
	formats := make([]columnFormat, len(meta.Columns))
	for i, c := range meta.Columns {
		enc, err := codec.MakeEncoder(c.EncoderSpec())
		if err != nil {
			return fmt.Errorf("storage: column %q: %w", c.Name, err)
		}
		encoders[i] = enc
		formats[i] = formatOf(enc)
	}
	params := make([]paramRecord, len(meta.Params))
	for i, p := range meta.Params {
		rec, err := recordParam(p)
		if err != nil {
			return err
		}
		params[i] = rec
	}

	w.m = manifest{Name: meta.Name, Columns: meta.Columns, Formats: formats, Params: params}
	w.rows = tabular.NewBinaryRowWriter(&w.buf, encoders, true)
	w.batch = w.spool.db.NewBatch()
	w.ended = false
	return nil
}

func recordParam(p tabular.Param) (paramRecord, error) {
	spec := p.EncoderSpec()
	if spec.Class == codec.ArrayOf(codec.KindString) && spec.ElementSize <= 0 {
		spec.ElementSize = 1
		if v, ok := p.Value.([]string); ok {
			for _, e := range v {
				spec.ElementSize = max(spec.ElementSize, utf8.RuneCountInString(e))
			}
		}
	}
	enc, err := codec.MakeEncoder(spec)
	if err != nil {
		return paramRecord{}, fmt.Errorf("storage: param %q: %w", p.Name, err)
	}
	return paramRecord{Info: p.ColumnInfo, Format: formatOf(enc), Text: enc.EncodeText(p.Value)}, nil
}

func (w *SpoolWriter) Row(row []any) error {
	if w.batch == nil {
		return fmt.Errorf("storage: row before StartTable")
	}
	w.buf.Reset()
	if err := w.rows.WriteRow(row); err != nil {
		return fmt.Errorf("row %d: %w", w.m.RowCount, err)
	}
	if err := w.batch.Set(rowKey(w.id, w.m.RowCount), w.buf.Bytes(), nil); err != nil {
		return err
	}
	w.m.RowCount++

	if w.batch.Len() >= flushBytes {
		if err := w.batch.Commit(pebble.NoSync); err != nil {
			return err
		}
		w.batch.Close()
		w.batch = w.spool.db.NewBatch()
	}
	return nil
}

// EndTable writes the manifest and commits the remaining rows.
func (w *SpoolWriter) EndTable() error {
	if w.batch == nil {
		return fmt.Errorf("storage: EndTable before StartTable")
	}
	raw, err := encMode.Marshal(&w.m)
	if err != nil {
		return err
	}
	if err := w.batch.Set(manifestKey(w.id), raw, nil); err != nil {
		return err
	}
	if err := w.batch.Commit(pebble.NoSync); err != nil {
		return err
	}
	w.batch.Close()
	w.batch = nil
	w.ended = true

	w.spool.log.WithFields(logrus.Fields{
		"table": w.m.Name,
		"id":    w.id.String(),
		"rows":  w.m.RowCount,
	}).Debug("table spooled")
	return nil
}

// Result returns the stored table.
func (w *SpoolWriter) Result() (tabular.Table, error) {
	if !w.ended {
		return nil, ErrNotEnded
	}
	return w.spool.Table(w.id)
}

// Discard drops the table, finished or not.
func (w *SpoolWriter) Discard() error {
	if w.batch != nil {
		w.batch.Close()
		w.batch = nil
	}
	w.ended = false
	return w.spool.Delete(w.id)
}

// SpoolTable is a table read back from a Spool. Rows are decoded on demand.
type SpoolTable struct {
	spool    *Spool
	id       ksuid.KSUID
	m        manifest
	decoders []codec.Decoder
	params   []tabular.Param
}

var _ tabular.Table = (*SpoolTable)(nil)

func newSpoolTable(s *Spool, id ksuid.KSUID, m manifest) (*SpoolTable, error) {
	t := &SpoolTable{spool: s, id: id, m: m, decoders: make([]codec.Decoder, len(m.Formats))}
	for i, f := range m.Formats {
		d, err := f.decoder()
		if err != nil {
			return nil, err
		}
		t.decoders[i] = d
	}
	for _, p := range m.Params {
		d, err := p.Format.decoder()
		if err != nil {
			return nil, err
		}
		t.params = append(t.params, tabular.Param{ColumnInfo: p.Info, Value: d.DecodeText(p.Text)})
	}
	return t, nil
}

func (t *SpoolTable) ID() ksuid.KSUID               { return t.id }
func (t *SpoolTable) Name() string                  { return t.m.Name }
func (t *SpoolTable) Columns() []tabular.ColumnInfo { return t.m.Columns }
func (t *SpoolTable) Params() []tabular.Param       { return t.params }
func (t *SpoolTable) ColumnCount() int              { return len(t.decoders) }
func (t *SpoolTable) RowCount() int64               { return t.m.RowCount }
func (t *SpoolTable) ColumnClass(i int) codec.Class { return t.decoders[i].Class() }
func (t *SpoolTable) RandomAccess() bool            { return true }

func (t *SpoolTable) decode(raw []byte) ([]any, error) {
	return tabular.NewBinaryRowReader(bytes.NewReader(raw), t.decoders, true).ReadNext()
}

func (t *SpoolTable) Rows() (tabular.RowSequence, error) {
	lower := rowPrefix(t.id)
	upper := append(t.id.Bytes(), rowTag+1)
	iter, err := t.spool.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, err
	}

	started := false
	next := func() ([]any, error) {
		if started {
			iter.Next()
		} else {
			iter.First()
			started = true
		}
		if !iter.Valid() {
			if err := iter.Error(); err != nil {
				return nil, err
			}
			return nil, io.EOF
		}
		return t.decode(iter.Value())
	}
	return tabular.NewFuncSequence(next, iter.Close), nil
}

func (t *SpoolTable) Access() (tabular.RowAccess, error) {
	get := func(index int64) ([]any, error) {
		raw, closer, err := t.spool.db.Get(rowKey(t.id, index))
		if err != nil {
			return nil, fmt.Errorf("storage: row %d of %s: %w", index, t.id, err)
		}
		defer closer.Close()
		return t.decode(raw)
	}
	return tabular.NewFuncAccess(t.m.RowCount, get, nil), nil
}
