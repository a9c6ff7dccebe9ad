package parser

import (
	"context"
	"io"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ssargent/votable/pkg/tabular"
	"github.com/ssargent/votable/pkg/votable"
)

// TableSequence yields the tables of a document while it is parsed in the background.
type TableSequence struct {
	results <-chan tableResult
	cancel  context.CancelFunc
	g       *errgroup.Group
	once    sync.Once
}

type tableResult struct {
	table tabular.Table
	err   error
}

// StreamTables starts parsing r in a new goroutine and returns once the root element
// has been read. Input whose root is not VOTABLE is rejected with ErrNotVOTable before
// any table is produced. Each table's rows are collected with Options.Collector.
func StreamTables(ctx context.Context, r io.Reader, opts Options) (*TableSequence, error) {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(ctx)

	results := make(chan tableResult, opts.QueueDepth)
	confirmed := make(chan bool, 1)
	sink := &queueSink{ctx: ctx, out: results, collect: opts.Collector}
	p := newParser(ctx, opts, sink)
	sink.p = p

	var once sync.Once
	p.onRoot = func(ok bool) {
		once.Do(func() { confirmed <- ok })
	}

	g := &errgroup.Group{}
	g.Go(func() error {
		defer close(results)
		err := p.run(r)
		p.confirm(false)
		if err != nil && p.rooted {
			select {
			case results <- tableResult{err: err}:
			case <-ctx.Done():
			}
		}
		return err
	})

	if !<-confirmed {
		err := g.Wait()
		cancel()
		if err == nil {
			err = ErrNotVOTable.New("missing")
		}
		return nil, err
	}
	return &TableSequence{results: results, cancel: cancel, g: g}, nil
}

// Next returns the next table. A table that could not be read is reported as a
// *TableError and the tables after it still follow. A failure of the document itself
// is returned once, and io.EOF after the last table.
func (s *TableSequence) Next() (tabular.Table, error) {
	r, ok := <-s.results
	if !ok {
		return nil, io.EOF
	}
	return r.table, r.err
}

// Close stops the parse and waits for it to finish. It returns once the underlying
// reader returns from its current Read.
func (s *TableSequence) Close() error {
	s.once.Do(func() {
		s.cancel()
		for range s.results {
		}
		_ = s.g.Wait()
	})
	return nil
}

type queueSink struct {
	p       *parser
	ctx     context.Context
	out     chan<- tableResult
	collect func(tabular.TableMeta) (tabular.Collector, error)
	current tabular.Collector
}

func (s *queueSink) open(index int, t votable.Table) (tabular.TableHandler, error) {
	c, err := s.collect(t.Meta())
	if err != nil {
		return nil, err
	}
	s.current = c
	return c, nil
}

func (s *queueSink) close(index int, t votable.Table, err error) error {
	c := s.current
	s.current = nil

	var res tableResult
	switch {
	case err != nil:
		res.err = s.p.tableError(index, t, err)
	case c == nil:
		res.table = tabular.Empty(t.Name(), t.Columns(), t.TabularParams())
	default:
		tbl, err := c.Result()
		if err != nil {
			res.err = s.p.tableError(index, t, err)
		} else {
			res.table = tbl
		}
	}

	select {
	case s.out <- res:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	}
}
