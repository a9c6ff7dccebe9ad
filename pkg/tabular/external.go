package tabular

// ExternalTable presents rows held by another Data under its own metadata, for example
// a FITS table described by VOTable FIELDs.
type ExternalTable struct {
	Data
	name    string
	columns []ColumnInfo
	params  []Param
}

// External joins data with column metadata. If columns is nil and data is a Table, the
// table's own metadata is used.
func External(data Data, name string, columns []ColumnInfo, params []Param) *ExternalTable {
	if t, ok := data.(Table); ok {
		if columns == nil {
			columns = t.Columns()
		}
		if name == "" {
			name = t.Name()
		}
		if params == nil {
			params = t.Params()
		}
	}
	return &ExternalTable{Data: data, name: name, columns: columns, params: params}
}

func (t *ExternalTable) Name() string          { return t.name }
func (t *ExternalTable) Columns() []ColumnInfo { return t.columns }
func (t *ExternalTable) Params() []Param       { return t.params }
