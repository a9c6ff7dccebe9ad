package tabular

import "github.com/ssargent/votable/pkg/codec"

// EmptyTable has columns but no rows. It stands in for tables without data and for
// tables whose data could not be read.
type EmptyTable struct {
	name    string
	columns []ColumnInfo
	params  []Param
}

// Empty returns a table with the given columns and no rows.
func Empty(name string, columns []ColumnInfo, params []Param) *EmptyTable {
	return &EmptyTable{name: name, columns: columns, params: params}
}

func (t *EmptyTable) Name() string                  { return t.name }
func (t *EmptyTable) Columns() []ColumnInfo         { return t.columns }
func (t *EmptyTable) Params() []Param               { return t.params }
func (t *EmptyTable) ColumnCount() int              { return len(t.columns) }
func (t *EmptyTable) RowCount() int64               { return 0 }
func (t *EmptyTable) ColumnClass(i int) codec.Class { return t.columns[i].Class }
func (t *EmptyTable) RandomAccess() bool            { return true }

func (t *EmptyTable) Rows() (RowSequence, error) {
	return newSliceSequence(nil), nil
}

func (t *EmptyTable) Access() (RowAccess, error) {
	return newSliceAccess(nil), nil
}
