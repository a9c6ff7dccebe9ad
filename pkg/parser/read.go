package parser

import (
	"context"
	"errors"
	"io"

	"github.com/ssargent/votable/pkg/tabular"
	"github.com/ssargent/votable/pkg/votable"
)

// Parse reads a whole document into a tree. Rows are left in the tree, or behind their
// STREAM href, and decoded when a table's Data is first used.
func Parse(ctx context.Context, r io.Reader, opts Options) (*votable.Document, error) {
	p := newParser(ctx, opts, nil)
	if err := p.run(r); err != nil {
		return nil, err
	}
	if err := p.checkRoot(); err != nil {
		return nil, err
	}
	return p.doc, nil
}

// ParseStored reads a document, streaming each table's rows into the store made by
// Options.Collector instead of keeping them in the tree. Tables whose rows could not be
// read are left empty and their errors returned, joined, along with the document.
func ParseStored(ctx context.Context, r io.Reader, opts Options) (*votable.Document, error) {
	s := &storeSink{collect: opts.withDefaults().Collector}
	p := newParser(ctx, opts, s)
	s.p = p
	if err := p.run(r); err != nil {
		return nil, err
	}
	if err := p.checkRoot(); err != nil {
		return nil, err
	}
	return p.doc, errors.Join(s.errs...)
}

type storeSink struct {
	p       *parser
	collect func(tabular.TableMeta) (tabular.Collector, error)
	current tabular.Collector
	errs    []error
}

func (s *storeSink) open(index int, t votable.Table) (tabular.TableHandler, error) {
	c, err := s.collect(t.Meta())
	if err != nil {
		return nil, err
	}
	s.current = c
	return c, nil
}

func (s *storeSink) close(index int, t votable.Table, err error) error {
	c := s.current
	s.current = nil
	if err == nil && c != nil {
		var res tabular.Table
		if res, err = c.Result(); err == nil {
			t.SetData(res)
			return nil
		}
	}
	if err != nil {
		s.errs = append(s.errs, s.p.tableError(index, t, err))
		if d, ok := c.(interface{ Discard() error }); ok {
			_ = d.Discard()
		}
	}
	t.SetData(tabular.Empty(t.Name(), t.Columns(), t.TabularParams()))
	return nil
}

// StreamTable sends the rows of the index'th TABLE of the document, counting from 0, to
// h. Reading stops once that table ends. Rows read from inline binary data are passed
// to h from a separate goroutine, one at a time.
func StreamTable(ctx context.Context, r io.Reader, index int, h tabular.TableHandler, opts Options) error {
	s := &singleSink{index: index, h: h}
	p := newParser(ctx, opts, s)
	s.p = p
	if err := p.run(r); err != nil {
		return err
	}
	if err := p.checkRoot(); err != nil {
		return err
	}
	if !s.found {
		return ErrTableNotFound.New(index)
	}
	return s.err
}

type singleSink struct {
	p     *parser
	index int
	h     tabular.TableHandler
	found bool
	err   error
}

func (s *singleSink) open(index int, t votable.Table) (tabular.TableHandler, error) {
	if index != s.index {
		return nil, nil
	}
	s.found = true
	return s.h, nil
}

func (s *singleSink) close(index int, t votable.Table, err error) error {
	if index != s.index {
		return nil
	}
	s.found = true
	if err != nil {
		s.err = s.p.tableError(index, t, err)
	}
	return errStop
}
