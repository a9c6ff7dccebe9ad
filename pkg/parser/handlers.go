package parser

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/ssargent/votable/pkg/codec"
	"github.com/ssargent/votable/pkg/tabular"
	"github.com/ssargent/votable/pkg/votable"
)

// treeBuilder adds every element and piece of text to the document.
type treeBuilder struct{}

func (treeBuilder) startElement(p *parser, el element) error {
	id := p.open(el)
	switch el.tag {
	case votable.TagTable:
		if p.table == votable.NoNode {
			p.beginTable(id)
		}
	case votable.TagData:
		p.beginData(id, el)
	}
	return nil
}

func (treeBuilder) endElement(p *parser, el element) error {
	id := p.cur()
	p.close()
	if el.tag == votable.TagTable && id == p.table {
		return p.endTable()
	}
	return nil
}

func (treeBuilder) characters(p *parser, data []byte) error {
	cur := p.cur()
	if cur == votable.NoNode {
		return nil
	}
	// whitespace is only significant in cells
	if p.doc.Tag(cur) != votable.TagTD && len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	p.doc.AddText(cur, string(data))
	return nil
}

// discardHandler ignores a subtree. Elements inside it with the same name are counted
// so that only the matching end tag finishes it.
type discardHandler struct {
	name      string
	depth     int
	closeNode bool
}

func (d *discardHandler) startElement(p *parser, el element) error {
	if el.name == d.name {
		d.depth++
	}
	return nil
}

func (d *discardHandler) endElement(p *parser, el element) error {
	if el.name != d.name {
		return nil
	}
	if d.depth > 0 {
		d.depth--
		return nil
	}
	p.pop()
	if d.closeNode {
		p.close()
	}
	return nil
}

func (d *discardHandler) characters(p *parser, data []byte) error { return nil }

// dataHandler handles the children of a DATA element whose rows go to a TableHandler.
type dataHandler struct {
	h        tabular.TableHandler
	decoders []codec.Decoder
	format   votable.Tag
	extnum   int
}

func (d *dataHandler) startElement(p *parser, el element) error {
	switch el.tag {
	case votable.TagTableData:
		p.open(el)
		p.push(&tableDataHandler{h: d.h, decoders: d.decoders})

	case votable.TagBinary, votable.TagBinary2, votable.TagFITS:
		p.open(el)
		d.format = el.tag
		if el.tag == votable.TagFITS {
			n, err := extnum(el.attrs)
			if err != nil {
				p.failTable(err)
			}
			d.extnum = n
		}

	case votable.TagStream:
		p.open(el)
		if d.format == votable.TagOther {
			p.failTable(ErrStructure.New("STREAM outside BINARY, BINARY2 or FITS"))
		}
		if p.tableErr != nil {
			p.push(&discardHandler{name: el.name, closeNode: true})
			return nil
		}

		consume := p.consumer(d.format, d.decoders, d.h, d.extnum)
		encoding := attr(el.attrs, "encoding")
		if href := attr(el.attrs, "href"); href != "" {
			p.push(&discardHandler{name: el.name, closeNode: true})
			if err := p.readHref(href, encoding, consume); err != nil {
				p.failTable(err)
			}
			return p.ctx.Err()
		}
		if encoding != "" && !strings.EqualFold(encoding, "base64") {
			p.failTable(ErrStructure.New(fmt.Sprintf("inline STREAM with encoding %q", encoding)))
			p.push(&discardHandler{name: el.name, closeNode: true})
			return nil
		}
		p.push(newPipe(p, el.name, consume))

	default:
		p.push(&discardHandler{name: el.name})
	}
	return nil
}

func (d *dataHandler) endElement(p *parser, el element) error {
	p.close()
	if el.tag != votable.TagData {
		return nil
	}
	p.pop()
	if p.tableErr == nil {
		if err := d.h.EndTable(); err != nil {
			p.failTable(err)
		}
	}
	return nil
}

func (d *dataHandler) characters(p *parser, data []byte) error { return nil }

// tableDataHandler decodes TR and TD elements into rows as they are read.
type tableDataHandler struct {
	h        tabular.TableHandler
	decoders []codec.Decoder

	row  []any
	col  int
	inTD bool
	buf  []byte
	rows int64
}

func (t *tableDataHandler) startElement(p *parser, el element) error {
	switch el.tag {
	case votable.TagTR:
		t.row = make([]any, len(t.decoders))
		t.col = 0
	case votable.TagTD:
		t.inTD = true
		t.buf = t.buf[:0]
	}
	return nil
}

func (t *tableDataHandler) endElement(p *parser, el element) error {
	switch el.tag {
	case votable.TagTD:
		if t.row != nil && t.col < len(t.decoders) {
			t.row[t.col] = t.decoders[t.col].DecodeText(string(t.buf))
		}
		t.col++
		t.inTD = false

	case votable.TagTR:
		if t.row == nil {
			return nil
		}
		for i := t.col; i < len(t.decoders); i++ {
			t.row[i] = t.decoders[i].DecodeText("")
		}
		if p.tableErr == nil {
			if err := t.h.Row(t.row); err != nil {
				p.failTable(fmt.Errorf("row %d: %w", t.rows, err))
			}
		}
		t.rows++
		t.row = nil

	case votable.TagTableData:
		p.doc.AddComment(p.cur(), fmt.Sprintf(" %d rows streamed ", t.rows))
		p.close()
		p.pop()
	}
	return nil
}

func (t *tableDataHandler) characters(p *parser, data []byte) error {
	if t.inTD {
		t.buf = append(t.buf, data...)
	}
	return nil
}

func attr(attrs []votable.Attr, name string) string {
	for _, a := range attrs {
		if a.Name == name {
			return a.Value
		}
	}
	return ""
}

// extnum returns the FITS extnum attribute, 1 by default.
func extnum(attrs []votable.Attr) (int, error) {
	v := strings.TrimSpace(attr(attrs, "extnum"))
	if v == "" {
		return 1, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 1, ErrStructure.New(fmt.Sprintf("bad FITS extnum %q", v))
	}
	return n, nil
}
