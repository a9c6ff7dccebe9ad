package tabular

import (
	"github.com/ssargent/votable/pkg/codec"
)

// ColumnInfo describes one column of a table.
type ColumnInfo struct {
	Name        string
	ID          string
	Datatype    string // VOTable datatype attribute
	Arraysize   string
	Unit        string
	UCD         string
	Utype       string
	Xtype       string
	Description string
	Null        string // declared null literal, if any

	Class       codec.Class
	Shape       codec.Shape // decoded value shape
	ElementSize int         // string length for character columns, -1 otherwise
	Nullable    bool
}

// Param is a table-level value described like a column.
type Param struct {
	ColumnInfo
	Value any
}

// TableMeta is what a TableHandler is told about a table before its rows arrive.
type TableMeta struct {
	Name     string
	Columns  []ColumnInfo
	Params   []Param
	RowCount int64 // -1 when unknown
}

// Data is a source of rows, however they are stored.
type Data interface {
	ColumnCount() int

	// RowCount returns the number of rows, or -1 if it can only be found by reading
	// to the end.
	RowCount() int64

	ColumnClass(i int) codec.Class

	// RandomAccess reports whether Access is supported.
	RandomAccess() bool

	// Rows returns a new sequential cursor. Each call is independent.
	Rows() (RowSequence, error)

	// Access returns a new random access cursor, or ErrSequentialOnly.
	Access() (RowAccess, error)
}

// Table is Data with column metadata.
type Table interface {
	Data
	Name() string
	Columns() []ColumnInfo
	Params() []Param
}

// RowSequence is a forward-only cursor. Cell and Row fail with ErrNoCurrentRow before
// the first successful Next and after the last one.
type RowSequence interface {
	Next() (bool, error)
	Cell(i int) (any, error)
	Row() ([]any, error)
	Close() error
}

// RowAccess is a random access cursor positioned with SetRow.
type RowAccess interface {
	SetRow(index int64) error
	Cell(i int) (any, error)
	Row() ([]any, error)
	Close() error
}

// TableHandler receives a streamed table: StartTable once, Row any number of times,
// then EndTable. The row slice passed to Row must not be retained after it returns.
type TableHandler interface {
	StartTable(meta TableMeta) error
	Row(row []any) error
	EndTable() error
}

// Collector is a TableHandler that keeps what it is given. Result returns the collected
// table once EndTable has been called.
type Collector interface {
	TableHandler
	Result() (Table, error)
}

// Errors
var (
	ErrNoCurrentRow   = &Error{"no current row"}
	ErrClosed         = &Error{"cursor closed"}
	ErrSequentialOnly = &Error{"table data supports sequential access only"}
	ErrRowIndex       = &Error{"row index out of range"}
	ErrColumnIndex    = &Error{"column index out of range"}
)

// Error is a tabular data access error.
type Error struct {
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// MetaOf returns the TableMeta describing t.
func MetaOf(t Table) TableMeta {
	return TableMeta{
		Name:     t.Name(),
		Columns:  t.Columns(),
		Params:   t.Params(),
		RowCount: t.RowCount(),
	}
}

// ColumnFromDecoder fills the codec derived fields of a ColumnInfo.
func ColumnFromDecoder(name string, d codec.Decoder) ColumnInfo {
	return ColumnInfo{
		Name:        name,
		Datatype:    d.Datatype().String(),
		Arraysize:   d.Arraysize(),
		Null:        d.NullValue(),
		Class:       d.Class(),
		Shape:       d.Shape(),
		ElementSize: d.ElementSize(),
		Nullable:    d.NullValue() != "" || d.Class().Kind.IsFloat() || !d.Class().Array,
	}
}

// EncoderSpec returns the codec.ColumnSpec used to write values of this column.
func (c ColumnInfo) EncoderSpec() codec.ColumnSpec {
	spec := codec.ColumnSpec{
		Name:        c.Name,
		Class:       c.Class,
		Shape:       c.Shape,
		ElementSize: c.ElementSize,
		Null:        c.Null,
		Nullable:    c.Nullable,
	}
	switch dt := codec.ParseDatatype(c.Datatype); dt {
	case codec.Bit, codec.UnicodeChar, codec.FloatComplex, codec.DoubleComplex:
		spec.Datatype = dt
	}
	return spec
}
