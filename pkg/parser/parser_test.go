package parser

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/votable/pkg/codec"
	"github.com/ssargent/votable/pkg/tabular"
	"github.com/ssargent/votable/pkg/votable"
)

const header = `<?xml version="1.0" encoding="UTF-8"?>
<VOTABLE version="1.4" xmlns="http://www.ivoa.net/xml/VOTable/v1.3">
<RESOURCE name="r">
`

const footer = `</RESOURCE>
</VOTABLE>
`

const fields = `<FIELD name="id" datatype="int"><VALUES null="-1"/></FIELD>
<FIELD name="name" datatype="char" arraysize="*"/>
`

func tableDataDoc(name string, rows ...string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<TABLE name=%q>\n%s<DATA><TABLEDATA>\n", name, fields)
	for _, r := range rows {
		b.WriteString("<TR>")
		for _, c := range strings.Split(r, "|") {
			fmt.Fprintf(&b, "<TD>%s</TD>", c)
		}
		b.WriteString("</TR>\n")
	}
	b.WriteString("</TABLEDATA></DATA>\n</TABLE>\n")
	return b.String()
}

func testOptions() Options {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return Options{Logger: log}
}

func binaryPayload(t *testing.T, binary2 bool, n int) ([]byte, [][]any) {
	t.Helper()
	idEnc, err := codec.MakeEncoder(codec.ColumnSpec{Class: codec.ClassInt32, Null: "-1"})
	require.NoError(t, err)
	nameEnc, err := codec.MakeEncoder(codec.ColumnSpec{Class: codec.ClassString})
	require.NoError(t, err)

	var buf bytes.Buffer
	w := tabular.NewBinaryRowWriter(&buf, []codec.Encoder{idEnc, nameEnc}, binary2)
	var rows [][]any
	for i := 0; i < n; i++ {
		row := []any{int32(i), fmt.Sprintf("row-%d", i)}
		if binary2 && i%7 == 3 {
			row[0] = nil
		}
		require.NoError(t, w.WriteRow(row))
		rows = append(rows, row)
	}
	return buf.Bytes(), rows
}

func wrap64(b []byte) string {
	text := base64.StdEncoding.EncodeToString(b)
	var out strings.Builder
	for i := 0; i < len(text); i += 76 {
		out.WriteString("\n")
		out.WriteString(text[i:min(i+76, len(text))])
	}
	out.WriteString("\n")
	return out.String()
}

func binaryTable(format, stream string) string {
	return fmt.Sprintf("<TABLE name=\"bin\">\n%s<DATA><%s>%s</%s></DATA>\n</TABLE>\n", fields, format, stream, format)
}

func TestParse_Tree(t *testing.T) {
	doc := header + `<PARAM name="ra" datatype="double" value="10.5"/>` +
		tableDataDoc("t", "1|alpha", "|beta", "3") + footer

	d, err := Parse(context.Background(), strings.NewReader(doc), testOptions())
	require.NoError(t, err)
	assert.Equal(t, "1.4", d.Version())

	tables := d.Tables()
	require.Len(t, tables, 1)
	assert.Equal(t, votable.TagTableData, tables[0].DataFormat())

	rows, err := tabular.ReadAllRows(tables[0].Data())
	require.NoError(t, err)
	assert.Equal(t, [][]any{{int32(1), "alpha"}, {nil, "beta"}, {int32(3), ""}}, rows)

	params := d.Resources()[0].Params()
	require.Len(t, params, 1)
	assert.Equal(t, 10.5, params[0].Value())
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		check  func(error) bool
		reason string
	}{
		{"other root", `<html><body/></html>`, ErrNotVOTable.Is, "not a VOTable"},
		{"empty input", ``, ErrNotVOTable.Is, "not a VOTable"},
		{"mismatched tags", `<VOTABLE><RESOURCE></TABLE></VOTABLE>`, isSyntaxError, "syntax"},
		{"unclosed", `<VOTABLE><RESOURCE>`, isSyntaxError, "syntax"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(context.Background(), strings.NewReader(tt.input), testOptions())
			require.Error(t, err)
			assert.True(t, tt.check(err), "expected %s error, got %v", tt.reason, err)
		})
	}
}

func isSyntaxError(err error) bool {
	var se *xml.SyntaxError
	return errors.As(err, &se)
}

func TestParse_Namespacing(t *testing.T) {
	const prefixed = `<v:VOTABLE xmlns:v="http://www.ivoa.net/xml/VOTable/v1.3"><v:RESOURCE><v:TABLE name="a"/></v:RESOURCE></v:VOTABLE>`
	const foreign = `<VOTABLE xmlns="http://example.org/other"><RESOURCE><TABLE name="a"/></RESOURCE></VOTABLE>`
	const plain = `<VOTABLE><RESOURCE><TABLE name="a"/></RESOURCE></VOTABLE>`
	const mixed = `<VOTABLE xmlns="http://www.ivoa.net/xml/VOTable/v1.4" xmlns:x="http://example.org/x"><RESOURCE><x:TABLE name="a"/><TABLE name="b"/></RESOURCE></VOTABLE>`

	tests := []struct {
		name   string
		mode   Namespacing
		input  string
		tables []string
		reject bool
	}{
		{"lax prefixed", NamespacingLax, prefixed, []string{"a"}, false},
		{"lax foreign", NamespacingLax, foreign, []string{"a"}, false},
		{"none prefixed", NamespacingNone, prefixed, nil, true},
		{"none plain", NamespacingNone, plain, []string{"a"}, false},
		{"strict prefixed", NamespacingStrict, prefixed, []string{"a"}, false},
		{"strict foreign", NamespacingStrict, foreign, nil, true},
		{"strict plain", NamespacingStrict, plain, []string{"a"}, false},
		{"strict mixed", NamespacingStrict, mixed, []string{"b"}, false},
		{"lax mixed", NamespacingLax, mixed, []string{"a", "b"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := testOptions()
			opts.Namespacing = tt.mode
			d, err := Parse(context.Background(), strings.NewReader(tt.input), opts)
			if tt.reject {
				assert.True(t, ErrNotVOTable.Is(err), "got %v", err)
				return
			}
			require.NoError(t, err)
			var names []string
			for _, tbl := range d.Tables() {
				names = append(names, tbl.Name())
			}
			assert.Equal(t, tt.tables, names)
		})
	}
}

func TestParseNamespacing(t *testing.T) {
	for _, s := range []string{"none", "lax", "strict"} {
		n, err := ParseNamespacing(s)
		require.NoError(t, err)
		assert.Equal(t, s, n.String())
	}
	n, err := ParseNamespacing("")
	require.NoError(t, err)
	assert.Equal(t, NamespacingLax, n)
	_, err = ParseNamespacing("loose")
	assert.Error(t, err)
}

func TestStreamTable(t *testing.T) {
	doc := header + tableDataDoc("first", "1|a") + tableDataDoc("second", "2|b", "3|c") + footer

	t.Run("selects by index", func(t *testing.T) {
		store := tabular.NewRowStore(tabular.TableMeta{})
		err := StreamTable(context.Background(), strings.NewReader(doc), 1, store, testOptions())
		require.NoError(t, err)
		assert.True(t, store.Ended())
		assert.Equal(t, "second", store.Name())
		rows, err := tabular.ReadAllRows(store)
		require.NoError(t, err)
		assert.Equal(t, [][]any{{int32(2), "b"}, {int32(3), "c"}}, rows)
	})

	t.Run("missing index", func(t *testing.T) {
		store := tabular.NewRowStore(tabular.TableMeta{})
		err := StreamTable(context.Background(), strings.NewReader(doc), 2, store, testOptions())
		assert.True(t, ErrTableNotFound.Is(err))
	})

	t.Run("stops after the table", func(t *testing.T) {
		truncated := header + tableDataDoc("first", "1|a") + `<TABLE name="broken"><DATA><TABLEDATA><TR>`
		store := tabular.NewRowStore(tabular.TableMeta{})
		err := StreamTable(context.Background(), strings.NewReader(truncated), 0, store, testOptions())
		require.NoError(t, err)
		assert.Equal(t, int64(1), store.RowCount())
	})

	t.Run("nested data names", func(t *testing.T) {
		odd := header + `<TABLE name="odd"><FIELD name="x" datatype="int"/><DATA><TABLEDATA><TR><TD><DATA><DATA/></DATA>1</TD></TR></TABLEDATA></DATA></TABLE>` +
			tableDataDoc("after", "7|z") + footer
		store := tabular.NewRowStore(tabular.TableMeta{})
		err := StreamTable(context.Background(), strings.NewReader(odd), 1, store, testOptions())
		require.NoError(t, err)
		rows, err := tabular.ReadAllRows(store)
		require.NoError(t, err)
		assert.Equal(t, [][]any{{int32(7), "z"}}, rows)
	})

	t.Run("table without data", func(t *testing.T) {
		empty := header + `<TABLE name="e">` + fields + `</TABLE>` + footer
		store := tabular.NewRowStore(tabular.TableMeta{})
		err := StreamTable(context.Background(), strings.NewReader(empty), 0, store, testOptions())
		require.NoError(t, err)
		assert.True(t, store.Ended())
		assert.Equal(t, 2, store.ColumnCount())
		assert.Equal(t, int64(0), store.RowCount())
	})
}

type failingHandler struct {
	tabular.RowStore
	after int
}

func (h *failingHandler) Row(row []any) error {
	if h.after == 0 {
		return errors.New("handler full")
	}
	h.after--
	return h.RowStore.Row(row)
}

func TestStreamTable_DeclaredNull(t *testing.T) {
	const nullFields = `<FIELD name="n" datatype="int"><VALUES null="-99"/></FIELD>
`
	payload := []byte{0xff, 0xff, 0xff, 0x9d, 0x00, 0x00, 0x00, 0x05}
	docs := map[string]struct {
		data string
		want [][]any
	}{
		"TABLEDATA": {
			data: "<TABLEDATA><TR><TD>-99</TD></TR><TR><TD></TD></TR></TABLEDATA>",
			want: [][]any{{int32(-99)}, {nil}},
		},
		"BINARY": {
			data: "<BINARY><STREAM encoding=\"base64\">" + base64.StdEncoding.EncodeToString(payload) + "</STREAM></BINARY>",
			want: [][]any{{nil}, {int32(5)}},
		},
	}
	for name, tt := range docs {
		t.Run(name, func(t *testing.T) {
			doc := header + "<TABLE name=\"n\">\n" + nullFields + "<DATA>" + tt.data + "</DATA>\n</TABLE>\n" + footer
			store := tabular.NewRowStore(tabular.TableMeta{})
			require.NoError(t, StreamTable(context.Background(), strings.NewReader(doc), 0, store, testOptions()))
			got, err := tabular.ReadAllRows(store)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStreamTable_HandlerError(t *testing.T) {
	payload, _ := binaryPayload(t, true, 10)
	docs := map[string]string{
		"tabledata": header + tableDataDoc("t", "1|a", "2|b", "3|c") + footer,
		"pipe":      header + binaryTable("BINARY2", `<STREAM encoding="base64">`+wrap64(payload)+`</STREAM>`) + footer,
	}
	for name, doc := range docs {
		t.Run(name, func(t *testing.T) {
			h := &failingHandler{after: 2}
			err := StreamTable(context.Background(), strings.NewReader(doc), 0, h, testOptions())
			var te *TableError
			require.ErrorAs(t, err, &te)
			assert.Equal(t, 0, te.Index)
			assert.ErrorContains(t, err, "handler full")
			assert.Equal(t, int64(2), h.RowCount())
		})
	}
}

func TestInlineAndHrefAgree(t *testing.T) {
	dir := t.TempDir()

	for _, format := range []string{"BINARY", "BINARY2"} {
		payload, want := binaryPayload(t, format == "BINARY2", 3000)

		raw := filepath.Join(dir, format+".bin")
		require.NoError(t, os.WriteFile(raw, payload, 0o644))

		var gz bytes.Buffer
		zw := gzip.NewWriter(&gz)
		_, err := zw.Write(payload)
		require.NoError(t, err)
		require.NoError(t, zw.Close())
		require.NoError(t, os.WriteFile(raw+".gz", gz.Bytes(), 0o644))

		require.NoError(t, os.WriteFile(raw+".b64", []byte(wrap64(payload)), 0o644))

		streams := map[string]string{
			"inline":       `<STREAM encoding="base64">` + wrap64(payload) + `</STREAM>`,
			"href":         `<STREAM href="` + format + `.bin"/>`,
			"href gzip":    `<STREAM href="` + format + `.bin.gz" encoding="gzip"/>`,
			"href dynamic": `<STREAM href="` + format + `.bin.gz" encoding="dynamic"/>`,
			"href base64":  `<STREAM href="` + format + `.bin.b64" encoding="base64"/>`,
			"href abs":     `<STREAM href="file://` + filepath.ToSlash(raw) + `"/>`,
		}
		for name, stream := range streams {
			t.Run(format+" "+name, func(t *testing.T) {
				doc := header + binaryTable(format, stream) + footer
				opts := testOptions()
				opts.SystemID = filepath.Join(dir, "doc.vot")
				opts.PipeDepth = 1

				store := tabular.NewRowStore(tabular.TableMeta{})
				err := StreamTable(context.Background(), strings.NewReader(doc), 0, store, opts)
				require.NoError(t, err)
				got, err := tabular.ReadAllRows(store)
				require.NoError(t, err)
				assert.Equal(t, len(want), len(got))
				assert.True(t, codec.TablesEqual(want, got))
			})
		}
	}
}

func TestStreamTable_ExternalFailures(t *testing.T) {
	tests := []struct {
		name  string
		table string
		check func(t *testing.T, err error)
	}{
		{
			name:  "missing file",
			table: binaryTable("BINARY", `<STREAM href="nowhere.bin"/>`),
			check: func(t *testing.T, err error) { assert.True(t, ErrHref.Is(errors.Unwrap(err)), "got %v", err) },
		},
		{
			name:  "fits without reader",
			table: binaryTable("FITS", `<STREAM encoding="base64">AAAA</STREAM>`),
			check: func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrNoFITSReader) },
		},
		{
			name:  "bad base64",
			table: binaryTable("BINARY", `<STREAM encoding="base64">!!!!</STREAM>`),
			check: func(t *testing.T, err error) { assert.ErrorContains(t, err, "base64") },
		},
		{
			name:  "stream without format",
			table: `<TABLE><FIELD name="x" datatype="int"/><DATA><STREAM href="x"/></DATA></TABLE>`,
			check: func(t *testing.T, err error) { assert.True(t, ErrStructure.Is(errors.Unwrap(err)), "got %v", err) },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := testOptions()
			opts.SystemID = filepath.Join(t.TempDir(), "doc.vot")
			store := tabular.NewRowStore(tabular.TableMeta{})
			err := StreamTable(context.Background(), strings.NewReader(header+tt.table+footer), 0, store, opts)
			var te *TableError
			require.ErrorAs(t, err, &te)
			tt.check(t, err)
		})
	}
}

type stubFITS struct {
	extnum int
	read   []byte
}

func (s *stubFITS) ReadTable(ctx context.Context, r io.Reader, extnum int) (tabular.Table, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	s.extnum, s.read = extnum, b
	store := tabular.NewRowStore(tabular.TableMeta{Columns: make([]tabular.ColumnInfo, 2)})
	if err := store.Row([]any{int32(len(b)), "fits"}); err != nil {
		return nil, err
	}
	return store, nil
}

func TestStreamTable_FITS(t *testing.T) {
	fits := &stubFITS{}
	opts := testOptions()
	opts.FITS = fits

	doc := header + strings.Replace(binaryTable("FITS", `<STREAM encoding="base64">`+wrap64([]byte("SIMPLE"))+`</STREAM>`),
		"<FITS>", `<FITS extnum="2">`, 1) + footer
	store := tabular.NewRowStore(tabular.TableMeta{})
	require.NoError(t, StreamTable(context.Background(), strings.NewReader(doc), 0, store, opts))

	assert.Equal(t, 2, fits.extnum)
	assert.Equal(t, []byte("SIMPLE"), fits.read)
	rows, err := tabular.ReadAllRows(store)
	require.NoError(t, err)
	assert.Equal(t, [][]any{{int32(6), "fits"}}, rows)
}

func TestParseStored(t *testing.T) {
	payload, want := binaryPayload(t, true, 50)
	doc := header + tableDataDoc("a", "1|x") +
		binaryTable("BINARY2", `<STREAM encoding="base64">`+wrap64(payload)+`</STREAM>`) +
		binaryTable("BINARY", `<STREAM href="missing.bin"/>`) + footer

	opts := testOptions()
	opts.SystemID = filepath.Join(t.TempDir(), "doc.vot")
	d, err := ParseStored(context.Background(), strings.NewReader(doc), opts)
	require.NotNil(t, d)
	var te *TableError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 2, te.Index)

	tables := d.Tables()
	require.Len(t, tables, 3)

	rows, err := tabular.ReadAllRows(tables[0].Data())
	require.NoError(t, err)
	assert.Equal(t, [][]any{{int32(1), "x"}}, rows)

	// rows are no longer in the tree
	td := d.Find(votable.TagTableData)
	require.Len(t, td, 1)
	assert.Empty(t, d.ChildrenByTag(td[0], votable.TagTR))

	assert.True(t, tables[1].Data().RandomAccess())
	rows, err = tabular.ReadAllRows(tables[1].Data())
	require.NoError(t, err)
	assert.True(t, codec.TablesEqual(want, rows))

	assert.Equal(t, int64(0), tables[2].Data().RowCount())
}

func TestStreamTables(t *testing.T) {
	payload, want := binaryPayload(t, true, 20)
	doc := header + tableDataDoc("a", "1|x", "2|y") +
		binaryTable("BINARY", `<STREAM href="missing.bin"/>`) +
		binaryTable("BINARY2", `<STREAM encoding="base64">`+wrap64(payload)+`</STREAM>`) + footer

	opts := testOptions()
	opts.SystemID = filepath.Join(t.TempDir(), "doc.vot")
	opts.QueueDepth = 1
	seq, err := StreamTables(context.Background(), strings.NewReader(doc), opts)
	require.NoError(t, err)
	defer seq.Close()

	first, err := seq.Next()
	require.NoError(t, err)
	assert.Equal(t, "a", first.Name())
	assert.Equal(t, int64(2), first.RowCount())

	_, err = seq.Next()
	var te *TableError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 1, te.Index)

	third, err := seq.Next()
	require.NoError(t, err)
	rows, err := tabular.ReadAllRows(third)
	require.NoError(t, err)
	assert.True(t, codec.TablesEqual(want, rows))

	_, err = seq.Next()
	assert.Equal(t, io.EOF, err)
	_, err = seq.Next()
	assert.Equal(t, io.EOF, err)
}

func TestStreamTables_NotVOTable(t *testing.T) {
	inputs := map[string]string{
		"other root":  `<?xml version="1.0"?><TABLE><DATA/></TABLE>`,
		"empty":       ``,
		"only prolog": `<?xml version="1.0"?>`,
	}
	for name, input := range inputs {
		t.Run(name, func(t *testing.T) {
			seq, err := StreamTables(context.Background(), strings.NewReader(input), testOptions())
			assert.Nil(t, seq)
			assert.True(t, ErrNotVOTable.Is(err), "got %v", err)
		})
	}
}

func TestStreamTables_FatalAfterTables(t *testing.T) {
	doc := header + tableDataDoc("a", "1|x") + `<TABLE name="b"></RESOURCE>`
	seq, err := StreamTables(context.Background(), strings.NewReader(doc), testOptions())
	require.NoError(t, err)
	defer seq.Close()

	tbl, err := seq.Next()
	require.NoError(t, err)
	assert.Equal(t, "a", tbl.Name())

	_, err = seq.Next()
	assert.True(t, isSyntaxError(err), "got %v", err)
	_, err = seq.Next()
	assert.Equal(t, io.EOF, err)
}

func TestStreamTables_CloseEarly(t *testing.T) {
	var b strings.Builder
	b.WriteString(header)
	for i := 0; i < 50; i++ {
		b.WriteString(tableDataDoc(fmt.Sprint(i), "1|x"))
	}
	b.WriteString(footer)

	opts := testOptions()
	opts.QueueDepth = 1
	seq, err := StreamTables(context.Background(), strings.NewReader(b.String()), opts)
	require.NoError(t, err)
	_, err = seq.Next()
	require.NoError(t, err)
	require.NoError(t, seq.Close())
	_, err = seq.Next()
	assert.Equal(t, io.EOF, err)
}

func TestResolveHref(t *testing.T) {
	tests := []struct {
		href, base, dir string
		want            string
	}{
		{"data.bin", "/tmp/docs/doc.vot", "", "/tmp/docs/data.bin"},
		{"data.bin", "", "/srv", "/srv/data.bin"},
		{"/abs/data.bin", "/tmp/doc.vot", "", "/abs/data.bin"},
		{"data.bin", "http://example.org/a/doc.vot", "", "http://example.org/a/data.bin"},
		{"https://cdn.example.org/x.bin", "/tmp/doc.vot", "", "https://cdn.example.org/x.bin"},
		{"rows.bin", "file:///data/doc.vot", "", "file:///data/rows.bin"},
	}
	for _, tt := range tests {
		t.Run(tt.href+" "+tt.base, func(t *testing.T) {
			u, err := resolveHref(tt.href, tt.base, tt.dir)
			require.NoError(t, err)
			assert.Equal(t, tt.want, u.String())
		})
	}
}
