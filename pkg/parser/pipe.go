package parser

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"
)

// pipeChunk is the number of base64 characters collected before they are decoded and
// passed to the reader.
const pipeChunk = 1 << 14

// pipe decodes inline base64 STREAM text while it is being parsed. The parser side
// unescapes the text and sends byte chunks over a bounded channel. A goroutine reads
// them as a stream and decodes rows, calling the table handler itself.
type pipe struct {
	ctx  context.Context
	name string

	ch     chan []byte
	done   chan struct{}
	g      errgroup.Group
	closed bool

	depth   int
	pending []byte
	err     error
}

func newPipe(p *parser, name string, consume func(io.Reader) error) *pipe {
	pp := &pipe{
		ctx:  p.ctx,
		name: name,
		ch:   make(chan []byte, p.opts.PipeDepth),
		done: make(chan struct{}),
	}
	pp.g.Go(func() error {
		defer close(pp.done)
		return consume(&chanReader{ch: pp.ch})
	})
	return pp
}

func (pp *pipe) startElement(p *parser, el element) error {
	if el.name == pp.name {
		pp.depth++
	}
	return nil
}

func (pp *pipe) endElement(p *parser, el element) error {
	if el.name != pp.name {
		return nil
	}
	if pp.depth > 0 {
		pp.depth--
		return nil
	}

	err := pp.finish()
	p.pop()
	p.doc.AddComment(p.cur(), " inline data streamed ")
	p.close()
	if err != nil {
		p.failTable(err)
	}
	return p.ctx.Err()
}

func (pp *pipe) characters(p *parser, data []byte) error {
	if pp.err != nil {
		return nil
	}
	for _, c := range data {
		switch c {
		case ' ', '\t', '\n', '\r':
		default:
			pp.pending = append(pp.pending, c)
		}
	}
	if len(pp.pending) >= pipeChunk {
		pp.err = pp.flush(false)
	}
	if pp.err != nil && pp.ctx.Err() != nil {
		return pp.err
	}
	return nil
}

// flush decodes the complete quanta of pending text, or all of it when final is set.
func (pp *pipe) flush(final bool) error {
	n := len(pp.pending)
	if !final {
		n -= n % 4
	}
	if n == 0 {
		return nil
	}

	src := pp.pending[:n]
	enc := base64.StdEncoding
	if final && n%4 != 0 {
		src = bytes.TrimRight(src, "=")
		enc = base64.RawStdEncoding
	}
	out := make([]byte, enc.DecodedLen(len(src)))
	m, err := enc.Decode(out, src)
	pp.pending = append(pp.pending[:0], pp.pending[n:]...)
	if err != nil {
		return fmt.Errorf("inline base64 data: %w", err)
	}
	return pp.send(out[:m])
}

// send blocks while the reader is behind, but never after it has stopped.
func (pp *pipe) send(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	select {
	case pp.ch <- b:
		return nil
	case <-pp.done:
		return nil
	case <-pp.ctx.Done():
		return pp.ctx.Err()
	}
}

// finish ends the stream and waits for the reader.
func (pp *pipe) finish() error {
	if pp.err == nil {
		pp.err = pp.flush(true)
	}
	pp.closeWriter()
	werr := pp.g.Wait()
	if pp.err != nil {
		return pp.err
	}
	return werr
}

func (pp *pipe) closeWriter() {
	if !pp.closed {
		close(pp.ch)
		pp.closed = true
	}
}

func (pp *pipe) abort() {
	pp.closeWriter()
	_ = pp.g.Wait()
}

// chanReader reads the chunks sent on a channel until it is closed.
type chanReader struct {
	ch  <-chan []byte
	buf []byte
}

func (r *chanReader) Read(b []byte) (int, error) {
	for len(r.buf) == 0 {
		chunk, ok := <-r.ch
		if !ok {
			return 0, io.EOF
		}
		r.buf = chunk
	}
	n := copy(b, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}
