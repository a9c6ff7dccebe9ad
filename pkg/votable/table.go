package votable

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/ssargent/votable/pkg/codec"
	"github.com/ssargent/votable/pkg/tabular"
)

var (
	// ErrNoLinker is returned when a table's data is external but the document has no
	// Linker.
	ErrNoLinker = errors.New("votable: no linker configured for external data")

	// ErrMissingStream is returned for BINARY, BINARY2 and FITS elements without a STREAM.
	ErrMissingStream = errors.New("votable: data element has no STREAM")
)

// Linker fetches data that is not held in the document tree.
type Linker interface {
	// OpenStream opens the resource named by a STREAM href, relative to the document's
	// SystemID, and undoes the STREAM encoding.
	OpenStream(doc *Document, href, encoding string) (io.ReadCloser, error)

	// ReadFITS reads the BINTABLE in HDU extnum of a FITS stream.
	ReadFITS(open tabular.Opener, extnum int) (tabular.Table, error)
}

type tablePayload struct {
	mu   sync.Mutex
	data atomic.Pointer[tabular.Data]
	err  error
}

// Table is a TABLE element.
type Table struct{ element }

// Table returns the TABLE at id.
func (d *Document) Table(id NodeID) (Table, bool) {
	return Table{element{d, id}}, d.Tag(id) == TagTable
}

func (t Table) Ref() string { return t.attr("ref") }

// NRows returns the nrows attribute, or -1.
func (t Table) NRows() int64 {
	v, ok := t.Attr("nrows")
	if !ok {
		return -1
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || n < 0 {
		return -1
	}
	return n
}

// Fields returns the FIELD children. A TABLE with a ref and no FIELDs of its own uses
// the fields of the referenced TABLE.
func (t Table) Fields() []Field {
	ids := t.doc.ChildrenByTag(t.id, TagField)
	if len(ids) == 0 {
		if target, ok := t.doc.ByID(t.Ref()); ok && target != t.id && t.doc.Tag(target) == TagTable {
			ids = t.doc.ChildrenByTag(target, TagField)
		}
	}
	return views(t.doc, ids, func(e element) Field { return Field{e} })
}

// Params returns the PARAM children.
func (t Table) Params() []Param {
	return views(t.doc, t.doc.ChildrenByTag(t.id, TagParam), func(e element) Param { return Param{Field{e}} })
}

// Groups returns the GROUP children.
func (t Table) Groups() []Group {
	return views(t.doc, t.doc.ChildrenByTag(t.id, TagGroup), func(e element) Group { return Group{e} })
}

// Links returns the LINK children.
func (t Table) Links() []Link {
	return views(t.doc, t.doc.ChildrenByTag(t.id, TagLink), func(e element) Link { return Link{e} })
}

// Infos returns the INFO children.
func (t Table) Infos() []Info {
	return views(t.doc, t.doc.ChildrenByTag(t.id, TagInfo), func(e element) Info { return Info{e} })
}

// Decoders returns one decoder per FIELD.
func (t Table) Decoders() []codec.Decoder {
	fields := t.Fields()
	out := make([]codec.Decoder, len(fields))
	for i, f := range fields {
		out[i] = f.Decoder()
	}
	return out
}

// Columns returns the column descriptions of the FIELDs.
func (t Table) Columns() []tabular.ColumnInfo {
	fields := t.Fields()
	out := make([]tabular.ColumnInfo, len(fields))
	for i, f := range fields {
		out[i] = f.Info()
	}
	return out
}

// TabularParams returns the PARAMs in tabular form.
func (t Table) TabularParams() []tabular.Param {
	params := t.Params()
	out := make([]tabular.Param, len(params))
	for i, p := range params {
		out[i] = p.TabularParam()
	}
	return out
}

// Meta returns the table description handed to a TableHandler.
func (t Table) Meta() tabular.TableMeta {
	return tabular.TableMeta{
		Name:     t.Name(),
		Columns:  t.Columns(),
		Params:   t.TabularParams(),
		RowCount: t.NRows(),
	}
}

// DataFormat returns the tag of the element holding the table's rows, or TagOther.
func (t Table) DataFormat() Tag {
	data := t.doc.FirstChild(t.id, TagData)
	if data == NoNode {
		return TagOther
	}
	for _, c := range t.doc.Children(data) {
		if tag := t.doc.Tag(c); tag.IsDataFormat() {
			return tag
		}
	}
	return TagOther
}

func (t Table) payload() *tablePayload {
	return t.doc.payload(t.id).(*tablePayload)
}

// SetData attaches row data read elsewhere, for example rows collected while the
// document was streamed. It replaces anything resolved before.
func (t Table) SetData(data tabular.Data) {
	p := t.payload()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = nil
	p.data.Store(&data)
}

// Data returns the table's rows, resolving them on first use. If they cannot be read
// an empty table is returned and the failure is available from DataErr.
func (t Table) Data() tabular.Data {
	p := t.payload()
	if d := p.data.Load(); d != nil {
		return *d
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if d := p.data.Load(); d != nil {
		return *d
	}

	data, err := t.resolveData()
	if err != nil {
		t.doc.log.WithFields(logrus.Fields{
			"table": t.Name(),
		}).WithError(err).Warn("table data unavailable")
		p.err = err
		data = tabular.Empty(t.Name(), t.Columns(), t.TabularParams())
	}
	p.data.Store(&data)
	return data
}

// DataErr returns the error met resolving the table's data, if any.
func (t Table) DataErr() error {
	t.Data()
	p := t.payload()
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// AsTable returns the table as a tabular.Table.
func (t Table) AsTable() tabular.Table {
	return tabular.External(t.Data(), t.Name(), t.Columns(), t.TabularParams())
}

func (t Table) resolveData() (tabular.Data, error) {
	data := t.doc.FirstChild(t.id, TagData)
	if data == NoNode {
		return tabular.Empty(t.Name(), t.Columns(), t.TabularParams()), nil
	}

	for _, c := range t.doc.Children(data) {
		switch tag := t.doc.Tag(c); tag {
		case TagTableData:
			return newTableDataRows(t.doc, c, t.Decoders()), nil

		case TagBinary, TagBinary2:
			open, err := t.streamOpener(c)
			if err != nil {
				return nil, err
			}
			return tabular.NewBinaryData(t.Decoders(), tag == TagBinary2, open), nil

		case TagFITS:
			return t.resolveFITS(c)
		}
	}
	return tabular.Empty(t.Name(), t.Columns(), t.TabularParams()), nil
}

func (t Table) resolveFITS(fits NodeID) (tabular.Data, error) {
	linker := t.doc.getLinker()
	if linker == nil {
		return nil, ErrNoLinker
	}
	extnum := 1
	if v, ok := t.doc.Attr(fits, "extnum"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || n < 1 {
			return nil, fmt.Errorf("votable: bad FITS extnum %q", v)
		}
		extnum = n
	}
	open, err := t.streamOpener(fits)
	if err != nil {
		return nil, err
	}
	ft, err := linker.ReadFITS(open, extnum)
	if err != nil {
		return nil, fmt.Errorf("votable: reading FITS extension %d: %w", extnum, err)
	}

	// the FIELDs describe the FITS columns when they agree in number
	columns := t.Columns()
	if len(columns) != ft.ColumnCount() {
		columns = nil
	}
	return tabular.External(ft, t.Name(), columns, t.TabularParams()), nil
}

// streamOpener returns an Opener for the STREAM under a BINARY, BINARY2 or FITS element.
func (t Table) streamOpener(format NodeID) (tabular.Opener, error) {
	stream := t.doc.FirstChild(format, TagStream)
	if stream == NoNode {
		return nil, ErrMissingStream
	}
	encoding := t.doc.AttrOr(stream, "encoding", "")
	if href, ok := t.doc.Attr(stream, "href"); ok && href != "" {
		linker := t.doc.getLinker()
		if linker == nil {
			return nil, ErrNoLinker
		}
		doc := t.doc
		return func() (io.ReadCloser, error) {
			return linker.OpenStream(doc, href, encoding)
		}, nil
	}

	text := t.doc.Text(stream)
	return func() (io.ReadCloser, error) {
		return InlineBase64(text), nil
	}, nil
}

// InlineBase64 returns a reader over the bytes of base64 text that may contain
// whitespace.
func InlineBase64(text string) io.ReadCloser {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r':
			return -1
		}
		return r
	}, text)
	return io.NopCloser(base64.NewDecoder(base64.StdEncoding, strings.NewReader(clean)))
}
