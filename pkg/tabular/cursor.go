package tabular

import "io"

type cursorState int

const (
	stateBefore cursorState = iota
	stateCurrent
	stateDone
	stateClosed
)

// cursor holds the current row of a sequence and enforces the accessor contract.
type cursor struct {
	row   []any
	state cursorState
}

func (c *cursor) check() error {
	switch c.state {
	case stateCurrent:
		return nil
	case stateClosed:
		return ErrClosed
	}
	return ErrNoCurrentRow
}

func (c *cursor) set(row []any) {
	c.row = row
	c.state = stateCurrent
}

func (c *cursor) finish() {
	c.row = nil
	if c.state != stateClosed {
		c.state = stateDone
	}
}

func (c *cursor) close() {
	c.row = nil
	c.state = stateClosed
}

func (c *cursor) Cell(i int) (any, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	if i < 0 || i >= len(c.row) {
		return nil, ErrColumnIndex
	}
	return c.row[i], nil
}

func (c *cursor) Row() ([]any, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	out := make([]any, len(c.row))
	copy(out, c.row)
	return out, nil
}

// sliceSequence iterates a fixed list of rows.
type sliceSequence struct {
	cursor
	rows [][]any
	next int
}

func newSliceSequence(rows [][]any) *sliceSequence {
	return &sliceSequence{rows: rows}
}

func (s *sliceSequence) Next() (bool, error) {
	if s.state == stateClosed {
		return false, ErrClosed
	}
	if s.next >= len(s.rows) {
		s.finish()
		return false, nil
	}
	s.set(s.rows[s.next])
	s.next++
	return true, nil
}

func (s *sliceSequence) Close() error {
	s.close()
	return nil
}

// sliceAccess gives random access to a fixed list of rows.
type sliceAccess struct {
	cursor
	rows [][]any
}

func newSliceAccess(rows [][]any) *sliceAccess {
	return &sliceAccess{rows: rows}
}

func (a *sliceAccess) SetRow(index int64) error {
	if a.state == stateClosed {
		return ErrClosed
	}
	if index < 0 || index >= int64(len(a.rows)) {
		a.state = stateBefore
		return ErrRowIndex
	}
	a.set(a.rows[index])
	return nil
}

func (a *sliceAccess) Close() error {
	a.close()
	return nil
}

// NewFuncSequence returns a RowSequence that calls next for each row until it returns
// io.EOF. release, if not nil, is called once when the sequence ends or is closed.
func NewFuncSequence(next func() ([]any, error), release func() error) RowSequence {
	return &funcSequence{next: next, release: release}
}

type funcSequence struct {
	cursor
	next    func() ([]any, error)
	release func() error
}

func (s *funcSequence) Next() (bool, error) {
	switch s.state {
	case stateClosed:
		return false, ErrClosed
	case stateDone:
		return false, nil
	}
	row, err := s.next()
	if err == io.EOF {
		s.finish()
		return false, s.free()
	}
	if err != nil {
		s.finish()
		s.free()
		return false, err
	}
	s.set(row)
	return true, nil
}

func (s *funcSequence) free() error {
	if s.release == nil {
		return nil
	}
	err := s.release()
	s.release = nil
	return err
}

func (s *funcSequence) Close() error {
	s.close()
	return s.free()
}

// NewFuncAccess returns a RowAccess over count rows fetched with get.
func NewFuncAccess(count int64, get func(index int64) ([]any, error), release func() error) RowAccess {
	return &funcAccess{count: count, get: get, release: release}
}

type funcAccess struct {
	cursor
	count   int64
	get     func(index int64) ([]any, error)
	release func() error
}

func (a *funcAccess) SetRow(index int64) error {
	if a.state == stateClosed {
		return ErrClosed
	}
	if index < 0 || index >= a.count {
		a.state = stateBefore
		return ErrRowIndex
	}
	row, err := a.get(index)
	if err != nil {
		a.state = stateBefore
		return err
	}
	a.set(row)
	return nil
}

func (a *funcAccess) Close() error {
	a.close()
	if a.release == nil {
		return nil
	}
	err := a.release()
	a.release = nil
	return err
}
