package votable

import (
	"io"
	"sync"

	"github.com/ssargent/votable/pkg/codec"
	"github.com/ssargent/votable/pkg/tabular"
)

// tableDataRows reads rows straight from the TR and TD nodes of a TABLEDATA element.
type tableDataRows struct {
	doc      *Document
	node     NodeID
	decoders []codec.Decoder

	indexOnce sync.Once
	index     []NodeID
}

func newTableDataRows(doc *Document, node NodeID, decoders []codec.Decoder) *tableDataRows {
	return &tableDataRows{doc: doc, node: node, decoders: decoders}
}

func (r *tableDataRows) ColumnCount() int              { return len(r.decoders) }
func (r *tableDataRows) ColumnClass(i int) codec.Class { return r.decoders[i].Class() }
func (r *tableDataRows) RandomAccess() bool            { return true }

func (r *tableDataRows) RowCount() int64 {
	return int64(len(r.rowIndex()))
}

// rowIndex lists the TR nodes, once.
func (r *tableDataRows) rowIndex() []NodeID {
	r.indexOnce.Do(func() {
		r.index = r.doc.ChildrenByTag(r.node, TagTR)
	})
	return r.index
}

func (r *tableDataRows) decodeRow(tr NodeID) []any {
	row := make([]any, len(r.decoders))
	tds := r.doc.ChildrenByTag(tr, TagTD)
	for i, d := range r.decoders {
		text := ""
		if i < len(tds) {
			text = r.doc.Text(tds[i])
		}
		row[i] = d.DecodeText(text)
	}
	return row
}

func (r *tableDataRows) Rows() (tabular.RowSequence, error) {
	kids := r.doc.Children(r.node)
	pos := 0
	return tabular.NewFuncSequence(func() ([]any, error) {
		for pos < len(kids) {
			id := kids[pos]
			pos++
			if r.doc.Tag(id) == TagTR {
				return r.decodeRow(id), nil
			}
		}
		return nil, io.EOF
	}, nil), nil
}

func (r *tableDataRows) Access() (tabular.RowAccess, error) {
	index := r.rowIndex()
	return tabular.NewFuncAccess(int64(len(index)), func(i int64) ([]any, error) {
		return r.decodeRow(index[i]), nil
	}, nil), nil
}
