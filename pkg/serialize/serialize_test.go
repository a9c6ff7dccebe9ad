package serialize_test

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/votable/pkg/codec"
	"github.com/ssargent/votable/pkg/fits"
	"github.com/ssargent/votable/pkg/parser"
	"github.com/ssargent/votable/pkg/serialize"
	"github.com/ssargent/votable/pkg/tabular"
)

func quietLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func sourceRows() [][]any {
	return [][]any{
		{int32(1), "alpha", 10.5, []int32{1, 2, 3}, true},
		{nil, "beta <&> gamma", -0.25, []int32{4, 5, 6}, false},
		{int32(3), "é", 1e10, []int32{7, 8, 9}, true},
	}
}

func sourceTable(t *testing.T) *tabular.RowStore {
	t.Helper()
	store := tabular.NewRowStore(tabular.TableMeta{
		Name: "sources",
		Columns: []tabular.ColumnInfo{
			{Name: "id", Class: codec.ClassInt32, Nullable: true, Description: "source id"},
			{Name: "name", Class: codec.ClassString, ElementSize: -1},
			{Name: "ra", Class: codec.ClassFloat64, Unit: "deg", UCD: "pos.eq.ra"},
			{Name: "vec", Class: codec.ArrayOf(codec.KindInt32), Shape: codec.MustShape("3")},
			{Name: "flag", Class: codec.ClassBool},
		},
		Params: []tabular.Param{
			{ColumnInfo: tabular.ColumnInfo{Name: "epoch", Class: codec.ClassFloat64}, Value: 2000.0},
		},
	})
	for _, row := range sourceRows() {
		require.NoError(t, store.Row(row))
	}
	require.NoError(t, store.EndTable())
	return store
}

func TestParseDataFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    serialize.DataFormat
		wantErr bool
	}{
		{"tabledata", serialize.TableData, false},
		{"BINARY", serialize.Binary, false},
		{"binary2", serialize.Binary2, false},
		{"fits", serialize.FITS, false},
		{"csv", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := serialize.ParseDataFormat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.True(t, strings.EqualFold(tt.in, got.String()))
		})
	}
}

func TestVersion(t *testing.T) {
	v, err := serialize.ParseVersion("v1.3")
	require.NoError(t, err)
	assert.Equal(t, serialize.V13, v)
	assert.True(t, v.Supports(serialize.Binary2))
	assert.Equal(t, "http://www.ivoa.net/xml/VOTable/v1.3", v.Namespace())

	v, err = serialize.ParseVersion("")
	require.NoError(t, err)
	assert.Equal(t, serialize.DefaultVersion, v)

	assert.False(t, serialize.V12.Supports(serialize.Binary2))
	assert.True(t, serialize.V12.Supports(serialize.Binary))

	_, err = serialize.ParseVersion("2.0")
	assert.Error(t, err)

	_, err = serialize.NewDocumentWriter(serialize.Options{Version: serialize.V12, Format: serialize.Binary2})
	assert.Error(t, err)
}

func TestNewDocumentWriter_Rejects(t *testing.T) {
	tests := []struct {
		name string
		opts serialize.Options
		want error
	}{
		{"fits without writer", serialize.Options{Format: serialize.FITS}, serialize.ErrNoFITSWriter},
		{"href tabledata", serialize.Options{Format: serialize.TableData, Mode: serialize.Href}, serialize.ErrNoHref},
		{"href without streams", serialize.Options{Format: serialize.Binary, Mode: serialize.Href}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := serialize.NewDocumentWriter(tt.opts)
			require.Error(t, err)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
}

func TestSerializer_Fields(t *testing.T) {
	s, err := serialize.NewSerializer(sourceTable(t), serialize.TableData, nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, s.WriteFields(&buf))
	out := buf.String()

	assert.Contains(t, out, `<FIELD name="id" datatype="int">`)
	assert.Contains(t, out, `<DESCRIPTION>source id</DESCRIPTION>`)
	assert.Contains(t, out, `<VALUES null="-2147483648"/>`)
	assert.Contains(t, out, `<FIELD name="name" datatype="char" arraysize="*"/>`)
	assert.Contains(t, out, `<FIELD name="ra" datatype="double" unit="deg" ucd="pos.eq.ra"/>`)
	assert.Contains(t, out, `<FIELD name="vec" datatype="int" arraysize="3"/>`)
	assert.Contains(t, out, `<FIELD name="flag" datatype="boolean"/>`)

	buf.Reset()
	require.NoError(t, s.WriteParams(&buf))
	assert.Contains(t, buf.String(), `<PARAM name="epoch" datatype="double" value="2000"/>`)
}

func TestSerializer_TableDataEscapes(t *testing.T) {
	s, err := serialize.NewSerializer(sourceTable(t), serialize.TableData, nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, s.WriteInlineData(&buf))
	out := buf.String()
	assert.Contains(t, out, "<TD>beta &lt;&amp;&gt; gamma</TD>")
	assert.Contains(t, out, "<TR><TD></TD>")
	assert.Contains(t, out, "<TD>T</TD>")
	assert.Equal(t, 3, strings.Count(out, "<TR>"))

	var stream bytes.Buffer
	assert.ErrorIs(t, s.WriteHrefData(&buf, "x.bin", &stream), serialize.ErrNoHref)
}

func TestSerializer_StringArrayPrepass(t *testing.T) {
	store := tabular.NewRowStore(tabular.TableMeta{
		Name: "labels",
		Columns: []tabular.ColumnInfo{
			{Name: "tags", Class: codec.ArrayOf(codec.KindString), Shape: codec.MustShape("2"), ElementSize: -1},
		},
	})
	require.NoError(t, store.Row([]any{[]string{"a", "bcd"}}))
	require.NoError(t, store.Row([]any{[]string{"efghij", ""}}))

	s, err := serialize.NewSerializer(store, serialize.Binary, nil)
	require.NoError(t, err)
	assert.Equal(t, 6, s.Encoders()[0].ElementSize())
	assert.Equal(t, "6x2", s.Encoders()[0].Arraysize())
}

func TestDocumentWriter_RoundTrip(t *testing.T) {
	formats := []serialize.DataFormat{serialize.TableData, serialize.Binary, serialize.Binary2, serialize.FITS}
	for _, format := range formats {
		t.Run(format.String(), func(t *testing.T) {
			dw, err := serialize.NewDocumentWriter(serialize.Options{
				Format:      format,
				FITS:        fits.BinTable{},
				Description: "round trip",
				Infos:       []serialize.Info{{Name: "QUERY_STATUS", Value: "OK"}},
				Logger:      quietLogger(),
			})
			require.NoError(t, err)

			var buf bytes.Buffer
			require.NoError(t, dw.Write(&buf, sourceTable(t)))

			doc, err := parser.ParseStored(context.Background(), &buf, parser.Options{
				Logger: quietLogger(),
				FITS:   fits.BinTable{},
			})
			require.NoError(t, err)
			assert.Equal(t, "1.4", doc.Version())

			tables := doc.Tables()
			require.Len(t, tables, 1)
			table := tables[0]
			assert.Equal(t, "sources", table.Name())
			assert.Len(t, table.Fields(), 5)

			params := table.Params()
			require.Len(t, params, 1)
			assert.Equal(t, 2000.0, params[0].Value())

			rows, err := tabular.ReadAllRows(table.Data())
			require.NoError(t, err)
			want := sourceRows()
			require.Len(t, rows, len(want))
			for i := range want {
				assert.True(t, codec.RowsEqual(want[i], rows[i]), "row %d: %v != %v", i, rows[i], want[i])
			}
		})
	}
}

func TestDocumentWriter_Href(t *testing.T) {
	for _, format := range []serialize.DataFormat{serialize.Binary2, serialize.FITS} {
		t.Run(format.String(), func(t *testing.T) {
			dir := t.TempDir()
			dw, err := serialize.NewDocumentWriter(serialize.Options{
				Format:  format,
				Mode:    serialize.Href,
				FITS:    fits.BinTable{},
				Streams: serialize.DirStreams(dir, "sources", format),
				Logger:  quietLogger(),
			})
			require.NoError(t, err)

			path := filepath.Join(dir, "sources.vot")
			f, err := os.Create(path)
			require.NoError(t, err)
			require.NoError(t, dw.Write(f, sourceTable(t)))
			require.NoError(t, f.Close())

			raw, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Contains(t, string(raw), `<STREAM href="sources-1.`)

			f, err = os.Open(path)
			require.NoError(t, err)
			defer f.Close()

			var rows [][]any
			h := &collect{rows: &rows}
			err = parser.StreamTable(context.Background(), f, 0, h, parser.Options{
				Logger:   quietLogger(),
				SystemID: path,
				FITS:     fits.BinTable{},
			})
			require.NoError(t, err)

			want := sourceRows()
			require.Len(t, rows, len(want))
			for i := range want {
				assert.True(t, codec.RowsEqual(want[i], rows[i]), "row %d", i)
			}
		})
	}
}

func TestDocumentWriter_NoData(t *testing.T) {
	dw, err := serialize.NewDocumentWriter(serialize.Options{Mode: serialize.NoData, Logger: quietLogger()})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, dw.Write(&buf, sourceTable(t)))
	out := buf.String()
	assert.NotContains(t, out, "<DATA>")
	assert.NotContains(t, out, "nrows")
	assert.Contains(t, out, `<TABLE name="sources">`)
}

type collect struct {
	rows *[][]any
}

func (c *collect) StartTable(tabular.TableMeta) error { return nil }

func (c *collect) Row(row []any) error {
	*c.rows = append(*c.rows, append([]any(nil), row...))
	return nil
}

func (c *collect) EndTable() error { return nil }
