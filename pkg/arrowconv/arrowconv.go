// Package arrowconv turns tables into Apache Arrow records.
//
// Scalar columns become Arrow primitives, character columns become utf8 and array
// columns become list<element>. Null cells stay null. Column metadata that Arrow has no
// place for (datatype, arraysize, unit, ucd) is kept in the field metadata.
package arrowconv

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/ssargent/votable/pkg/codec"
	"github.com/ssargent/votable/pkg/tabular"
)

// Field metadata keys.
const (
	MetaDatatype  = "votable.datatype"
	MetaArraysize = "votable.arraysize"
	MetaUnit      = "votable.unit"
	MetaUCD       = "votable.ucd"
	MetaTableName = "votable.table"
)

// ElementType returns the Arrow type of a single element of kind k.
func ElementType(k codec.Kind) (arrow.DataType, error) {
	switch k {
	case codec.KindBool:
		return arrow.FixedWidthTypes.Boolean, nil
	case codec.KindUint8:
		return arrow.PrimitiveTypes.Uint8, nil
	case codec.KindInt8:
		return arrow.PrimitiveTypes.Int8, nil
	case codec.KindInt16:
		return arrow.PrimitiveTypes.Int16, nil
	case codec.KindInt32:
		return arrow.PrimitiveTypes.Int32, nil
	case codec.KindInt64:
		return arrow.PrimitiveTypes.Int64, nil
	case codec.KindFloat32:
		return arrow.PrimitiveTypes.Float32, nil
	case codec.KindFloat64:
		return arrow.PrimitiveTypes.Float64, nil
	case codec.KindRune, codec.KindString:
		return arrow.BinaryTypes.String, nil
	}
	return nil, fmt.Errorf("arrowconv: no arrow type for %s", k)
}

// TypeOf returns the Arrow type for a column class.
func TypeOf(c codec.Class) (arrow.DataType, error) {
	elem, err := ElementType(c.Kind)
	if err != nil {
		return nil, err
	}
	if c.Array {
		return arrow.ListOf(elem), nil
	}
	return elem, nil
}

// Field returns the Arrow field for a column.
func Field(c tabular.ColumnInfo) (arrow.Field, error) {
	dt, err := TypeOf(c.Class)
	if err != nil {
		return arrow.Field{}, fmt.Errorf("arrowconv: column %q: %w", c.Name, err)
	}
	var keys, values []string
	add := func(k, v string) {
		if v != "" {
			keys = append(keys, k)
			values = append(values, v)
		}
	}
	add(MetaDatatype, c.Datatype)
	add(MetaArraysize, c.Arraysize)
	add(MetaUnit, c.Unit)
	add(MetaUCD, c.UCD)

	return arrow.Field{
		Name:     c.Name,
		Type:     dt,
		Nullable: true,
		Metadata: arrow.NewMetadata(keys, values),
	}, nil
}

// Schema returns the Arrow schema of a table.
func Schema(meta tabular.TableMeta) (*arrow.Schema, error) {
	fields := make([]arrow.Field, len(meta.Columns))
	for i, c := range meta.Columns {
		f, err := Field(c)
		if err != nil {
			return nil, err
		}
		fields[i] = f
	}
	var md *arrow.Metadata
	if meta.Name != "" {
		m := arrow.NewMetadata([]string{MetaTableName}, []string{meta.Name})
		md = &m
	}
	return arrow.NewSchema(fields, md), nil
}

// RecordBuilder is a TableHandler that accumulates a streamed table into one record.
type RecordBuilder struct {
	mem     memory.Allocator
	classes []codec.Class
	nulls   []codec.Decoder
	b       *array.RecordBuilder
	rows    int64
	rec     arrow.Record
}

var _ tabular.TableHandler = (*RecordBuilder)(nil)

// NewRecordBuilder returns a builder allocating from mem, or from the Go allocator if
// mem is nil.
func NewRecordBuilder(mem memory.Allocator) *RecordBuilder {
	if mem == nil {
		mem = memory.NewGoAllocator()
	}
	return &RecordBuilder{mem: mem}
}

func (r *RecordBuilder) StartTable(meta tabular.TableMeta) error {
	schema, err := Schema(meta)
	if err != nil {
		return err
	}
	r.Release()
	r.classes = make([]codec.Class, len(meta.Columns))
	r.nulls = make([]codec.Decoder, len(meta.Columns))
	for i, c := range meta.Columns {
		r.classes[i] = c.Class
		r.nulls[i] = nullDecoder(c)
	}
	r.b = array.NewRecordBuilder(r.mem, schema)
	r.rows = 0
	return nil
}

func (r *RecordBuilder) Row(row []any) error {
	if r.b == nil {
		return fmt.Errorf("arrowconv: row before StartTable")
	}
	if len(row) != len(r.classes) {
		return fmt.Errorf("arrowconv: row %d has %d cells, want %d", r.rows, len(row), len(r.classes))
	}
	for i, v := range row {
		if d := r.nulls[i]; d != nil {
			v = codec.BlankNull(d, v)
		}
		if err := appendValue(r.b.Field(i), r.classes[i], v); err != nil {
			return fmt.Errorf("arrowconv: row %d column %d: %w", r.rows, i, err)
		}
	}
	r.rows++
	return nil
}

func (r *RecordBuilder) EndTable() error {
	if r.b == nil {
		return fmt.Errorf("arrowconv: EndTable before StartTable")
	}
	r.rec = r.b.NewRecord()
	r.b.Release()
	r.b = nil
	return nil
}

// Record returns the finished record. The caller owns it and must Release it.
func (r *RecordBuilder) Record() (arrow.Record, error) {
	if r.rec == nil {
		return nil, fmt.Errorf("arrowconv: table has not ended")
	}
	rec := r.rec
	r.rec = nil
	return rec, nil
}

// Release frees anything the builder still holds.
func (r *RecordBuilder) Release() {
	if r.b != nil {
		r.b.Release()
		r.b = nil
	}
	if r.rec != nil {
		r.rec.Release()
		r.rec = nil
	}
}

// ToRecord reads every row of t into a single record.
func ToRecord(t tabular.Table, mem memory.Allocator) (arrow.Record, error) {
	b := NewRecordBuilder(mem)
	defer b.Release()
	if _, err := tabular.PipeTable(t, b); err != nil {
		return nil, err
	}
	return b.Record()
}

var integralDatatypes = map[codec.Kind]codec.Datatype{
	codec.KindUint8: codec.UnsignedByte,
	codec.KindInt16: codec.Short,
	codec.KindInt32: codec.Int,
	codec.KindInt64: codec.Long,
}

// nullDecoder returns a decoder that recognizes the declared null of an integral
// scalar column, or nil when the column has none.
func nullDecoder(c tabular.ColumnInfo) codec.Decoder {
	if c.Null == "" || c.Class.Array {
		return nil
	}
	dt, ok := integralDatatypes[c.Class.Kind]
	if !ok {
		return nil
	}
	d, err := codec.MakeDecoder(dt.String(), "", c.Null)
	if err != nil {
		return nil
	}
	return d
}

func appendValue(b array.Builder, c codec.Class, v any) error {
	if v == nil {
		b.AppendNull()
		return nil
	}
	if c == codec.ClassRune {
		r, ok := v.(rune)
		if !ok {
			return fmt.Errorf("unexpected value of type %T in %s column", v, c)
		}
		b.(*array.StringBuilder).Append(string(r))
		return nil
	}
	if got, ok := codec.ClassOf(v); !ok || got != c {
		return fmt.Errorf("unexpected value of type %T in %s column", v, c)
	}
	if c.Array {
		lb := b.(*array.ListBuilder)
		lb.Append(true)
		return appendSlice(lb.ValueBuilder(), v)
	}
	return appendScalar(b, v)
}

func appendScalar(b array.Builder, v any) error {
	switch x := v.(type) {
	case bool:
		b.(*array.BooleanBuilder).Append(x)
	case uint8:
		b.(*array.Uint8Builder).Append(x)
	case int8:
		b.(*array.Int8Builder).Append(x)
	case int16:
		b.(*array.Int16Builder).Append(x)
	case int32:
		b.(*array.Int32Builder).Append(x)
	case int64:
		b.(*array.Int64Builder).Append(x)
	case float32:
		b.(*array.Float32Builder).Append(x)
	case float64:
		b.(*array.Float64Builder).Append(x)
	case string:
		b.(*array.StringBuilder).Append(x)
	default:
		return fmt.Errorf("unexpected value of type %T", v)
	}
	return nil
}

func appendSlice(b array.Builder, v any) error {
	switch x := v.(type) {
	case []bool:
		b.(*array.BooleanBuilder).AppendValues(x, nil)
	case []uint8:
		b.(*array.Uint8Builder).AppendValues(x, nil)
	case []int8:
		b.(*array.Int8Builder).AppendValues(x, nil)
	case []int16:
		b.(*array.Int16Builder).AppendValues(x, nil)
	case []int32:
		b.(*array.Int32Builder).AppendValues(x, nil)
	case []int64:
		b.(*array.Int64Builder).AppendValues(x, nil)
	case []float32:
		b.(*array.Float32Builder).AppendValues(x, nil)
	case []float64:
		b.(*array.Float64Builder).AppendValues(x, nil)
	case []string:
		b.(*array.StringBuilder).AppendValues(x, nil)
	default:
		return fmt.Errorf("unexpected array of type %T", v)
	}
	return nil
}
