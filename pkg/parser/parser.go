package parser

import (
	"context"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/ssargent/votable/pkg/tabular"
	"github.com/ssargent/votable/pkg/votable"
)

// contentHandler receives the events of the part of the document it is responsible
// for. The parser sends every event to the handler on top of its stack.
type contentHandler interface {
	startElement(p *parser, el element) error
	endElement(p *parser, el element) error
	characters(p *parser, data []byte) error
}

// tableSink decides what happens to the rows of each TABLE.
type tableSink interface {
	// open returns the handler for a table's rows, or nil to drop them.
	open(index int, t votable.Table) (tabular.TableHandler, error)
	// close is called when the TABLE ends, with the error that stopped its rows if any.
	// Returning errStop ends the parse.
	close(index int, t votable.Table, err error) error
}

type parser struct {
	ctx  context.Context
	opts Options
	log  logrus.FieldLogger
	doc  *votable.Document

	// sink is nil when rows stay in the tree.
	sink tableSink

	handlers []contentHandler
	nodes    []votable.NodeID

	rooted bool
	onRoot func(ok bool)

	table      votable.NodeID
	tableIndex int
	tableErr   error
	dataSeen   bool
	rows       *countingHandler
}

func newParser(ctx context.Context, opts Options, sink tableSink) *parser {
	opts = opts.withDefaults()
	doc := votable.NewDocument(opts.Logger)
	doc.SystemID = opts.SystemID
	doc.SetLinker(newLinker(ctx, opts))
	return &parser{
		ctx:        ctx,
		opts:       opts,
		log:        opts.Logger,
		doc:        doc,
		sink:       sink,
		handlers:   []contentHandler{treeBuilder{}},
		table:      votable.NoNode,
		tableIndex: -1,
	}
}

func (p *parser) run(r io.Reader) error {
	defer p.abort()

	tz := newTokenizer(r, p.opts.Namespacing)
	for {
		if err := p.ctx.Err(); err != nil {
			return err
		}
		ev, err := tz.next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		h := p.handlers[len(p.handlers)-1]
		switch ev.kind {
		case startEvent:
			if !p.rooted {
				if ev.el.tag != votable.TagVOTable {
					p.confirm(false)
					return ErrNotVOTable.New("<" + ev.el.name + ">")
				}
				p.rooted = true
				p.confirm(true)
			}
			err = h.startElement(p, ev.el)
		case endEvent:
			err = h.endElement(p, ev.el)
		case textEvent:
			err = h.characters(p, ev.data)
		case commentEvent:
			if _, ok := h.(treeBuilder); ok && p.cur() != votable.NoNode {
				p.doc.AddComment(p.cur(), string(ev.data))
			}
		}

		if err == errStop {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (p *parser) confirm(ok bool) {
	if p.onRoot != nil {
		p.onRoot(ok)
	}
}

// checkRoot reports input that ended before any element.
func (p *parser) checkRoot() error {
	if !p.rooted {
		return ErrNotVOTable.New("missing")
	}
	return nil
}

// abort stops sub-handlers that own goroutines.
func (p *parser) abort() {
	for i := len(p.handlers) - 1; i > 0; i-- {
		if a, ok := p.handlers[i].(interface{ abort() }); ok {
			a.abort()
		}
	}
	p.handlers = p.handlers[:1]
}

func (p *parser) push(h contentHandler) { p.handlers = append(p.handlers, h) }
func (p *parser) pop()                  { p.handlers = p.handlers[:len(p.handlers)-1] }

func (p *parser) cur() votable.NodeID {
	if len(p.nodes) == 0 {
		return votable.NoNode
	}
	return p.nodes[len(p.nodes)-1]
}

// open adds el under the current node and makes it current.
func (p *parser) open(el element) votable.NodeID {
	var id votable.NodeID
	if el.tag == votable.TagOther {
		id = p.doc.AddOther(p.cur(), el.space, el.name, el.attrs)
	} else {
		id = p.doc.AddElement(p.cur(), el.space, el.name, el.attrs)
	}
	p.nodes = append(p.nodes, id)
	return id
}

func (p *parser) close() {
	p.nodes = p.nodes[:len(p.nodes)-1]
}

func (p *parser) currentTable() votable.Table {
	t, _ := p.doc.Table(p.table)
	return t
}

func (p *parser) beginTable(id votable.NodeID) {
	p.table = id
	p.tableIndex++
	p.tableErr = nil
	p.dataSeen = false
	p.rows = nil
}

// failTable records the first error of the current table.
func (p *parser) failTable(err error) {
	if p.tableErr != nil {
		return
	}
	p.tableErr = err
	p.log.WithFields(logrus.Fields{
		"table": p.currentTable().Name(),
		"index": p.tableIndex,
	}).WithError(err).Warn("table rows abandoned")
}

// beginData decides whether the rows under a DATA element are kept in the tree,
// dropped or streamed to a handler.
func (p *parser) beginData(id votable.NodeID, el element) {
	if p.sink == nil {
		return
	}
	if p.table == votable.NoNode {
		p.log.Warn("DATA outside TABLE ignored")
		p.discardNode(id, el)
		return
	}

	p.dataSeen = true
	t := p.currentTable()
	h, err := p.sink.open(p.tableIndex, t)
	if err != nil {
		p.failTable(err)
	}
	if err != nil || h == nil {
		p.discardNode(id, el)
		return
	}

	p.rows = &countingHandler{TableHandler: h}
	if err := p.rows.StartTable(t.Meta()); err != nil {
		p.failTable(err)
		p.discardNode(id, el)
		return
	}
	p.push(&dataHandler{h: p.rows, decoders: t.Decoders()})
}

// discardNode removes id from the tree and ignores everything up to its end tag.
func (p *parser) discardNode(id votable.NodeID, el element) {
	p.doc.Detach(id)
	p.push(&discardHandler{name: el.name, closeNode: true})
}

func (p *parser) endTable() error {
	if p.sink == nil {
		p.table = votable.NoNode
		return nil
	}

	t := p.currentTable()
	if !p.dataSeen && p.tableErr == nil {
		// a table without DATA still has a header to report
		h, err := p.sink.open(p.tableIndex, t)
		if err == nil && h != nil {
			if err = h.StartTable(t.Meta()); err == nil {
				err = h.EndTable()
			}
		}
		if err != nil {
			p.failTable(err)
		}
	}

	if p.tableErr == nil && p.rows != nil {
		p.log.WithFields(logrus.Fields{
			"table": t.Name(),
			"index": p.tableIndex,
			"rows":  p.rows.n,
		}).Debug("table read")
	}

	err := p.sink.close(p.tableIndex, t, p.tableErr)
	p.table = votable.NoNode
	p.tableErr = nil
	p.rows = nil
	return err
}

func (p *parser) tableError(index int, t votable.Table, err error) *TableError {
	return &TableError{Index: index, Name: t.Name(), Err: err}
}

// countingHandler counts the rows passed to a handler.
type countingHandler struct {
	tabular.TableHandler
	n int64
}

func (c *countingHandler) Row(row []any) error {
	if err := c.TableHandler.Row(row); err != nil {
		return err
	}
	c.n++
	return nil
}
