package tabular

import (
	"fmt"
	"sync"

	"github.com/ssargent/votable/pkg/codec"
)

// RowStore keeps a table's rows in memory. It is a TableHandler, so a streamed table
// can be collected into it, and a random access Table.
type RowStore struct {
	mu    sync.RWMutex
	meta  TableMeta
	rows  [][]any
	ended bool
}

// NewRowStore returns an empty store. meta may be replaced by StartTable.
func NewRowStore(meta TableMeta) *RowStore {
	return &RowStore{meta: meta}
}

func (s *RowStore) StartTable(meta TableMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta = meta
	s.rows = nil
	s.ended = false
	return nil
}

func (s *RowStore) Row(row []any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.meta.Columns) > 0 && len(row) != len(s.meta.Columns) {
		return fmt.Errorf("row has %d cells, table has %d columns", len(row), len(s.meta.Columns))
	}
	cp := make([]any, len(row))
	copy(cp, row)
	s.rows = append(s.rows, cp)
	return nil
}

func (s *RowStore) EndTable() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ended = true
	return nil
}

func (s *RowStore) Result() (Table, error) { return s, nil }

// Ended reports whether EndTable has been called.
func (s *RowStore) Ended() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ended
}

func (s *RowStore) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.meta.Name
}

func (s *RowStore) Columns() []ColumnInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.meta.Columns
}

func (s *RowStore) Params() []Param {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.meta.Params
}

func (s *RowStore) ColumnCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.meta.Columns)
}

func (s *RowStore) RowCount() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.rows))
}

func (s *RowStore) ColumnClass(i int) codec.Class {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.meta.Columns[i].Class
}

func (s *RowStore) RandomAccess() bool { return true }

// snapshot returns the rows stored so far. Rows are never modified after Row copies
// them, so the slice header is enough.
func (s *RowStore) snapshot() [][]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rows[:len(s.rows):len(s.rows)]
}

func (s *RowStore) Rows() (RowSequence, error) {
	return newSliceSequence(s.snapshot()), nil
}

func (s *RowStore) Access() (RowAccess, error) {
	return newSliceAccess(s.snapshot()), nil
}
