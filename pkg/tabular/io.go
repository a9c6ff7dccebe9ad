package tabular

import (
	"errors"
	"fmt"
)

// ReadAllRows reads every row of d into memory. Usually this is used for testing or
// with small tables.
func ReadAllRows(d Data) ([][]any, error) {
	seq, err := d.Rows()
	if err != nil {
		return nil, err
	}
	defer seq.Close()

	var rows [][]any
	for {
		ok, err := seq.Next()
		if err != nil {
			return rows, err
		}
		if !ok {
			return rows, nil
		}
		row, err := seq.Row()
		if err != nil {
			return rows, err
		}
		rows = append(rows, row)
	}
}

// PipeRows passes every row of seq to h.Row and returns the number of rows piped. It
// does not call StartTable or EndTable.
func PipeRows(seq RowSequence, h TableHandler) (int64, error) {
	var n int64
	for {
		ok, err := seq.Next()
		if err != nil {
			return n, err
		}
		if !ok {
			return n, nil
		}
		row, err := seq.Row()
		if err != nil {
			return n, err
		}
		if err := h.Row(row); err != nil {
			return n, err
		}
		n++
	}
}

// PipeTable streams the whole of t to h, including the StartTable and EndTable calls.
func PipeTable(t Table, h TableHandler) (n int64, err error) {
	if err := h.StartTable(MetaOf(t)); err != nil {
		return 0, err
	}
	seq, err := t.Rows()
	if err != nil {
		return 0, err
	}
	defer func() {
		if cerr := seq.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	if n, err = PipeRows(seq, h); err != nil {
		return n, err
	}
	return n, h.EndTable()
}

// Materialize copies t into a RowStore. Tables that are already random access are
// still copied, so the result does not share state with t.
func Materialize(t Table) (*RowStore, error) {
	store := NewRowStore(MetaOf(t))
	if _, err := PipeTable(t, store); err != nil {
		return nil, fmt.Errorf("materialize %q: %w", t.Name(), err)
	}
	return store, nil
}

// RandomAccessOf returns t if it supports random access, and a materialized copy
// otherwise.
func RandomAccessOf(t Table) (Table, error) {
	if t.RandomAccess() {
		return t, nil
	}
	return Materialize(t)
}

// MultiHandler fans one table stream out to several handlers.
type MultiHandler []TableHandler

func (m MultiHandler) StartTable(meta TableMeta) error {
	var errs []error
	for _, h := range m {
		errs = append(errs, h.StartTable(meta))
	}
	return errors.Join(errs...)
}

func (m MultiHandler) Row(row []any) error {
	for _, h := range m {
		if err := h.Row(row); err != nil {
			return err
		}
	}
	return nil
}

func (m MultiHandler) EndTable() error {
	var errs []error
	for _, h := range m {
		errs = append(errs, h.EndTable())
	}
	return errors.Join(errs...)
}
