package serialize

import (
	"bufio"
	"encoding/base64"
	"encoding/xml"
	"io"
	"strings"
)

// WriteBufSize is the buffer size used by the writers in this package.
var WriteBufSize = 64 * 1024

// base64Line is the width of base64 lines inside a STREAM.
const base64Line = 76

// xmlWriter accumulates the first error so element writers can be straight-line code.
type xmlWriter struct {
	w   *bufio.Writer
	err error
}

func newXMLWriter(w io.Writer) *xmlWriter {
	if bw, ok := w.(*bufio.Writer); ok {
		return &xmlWriter{w: bw}
	}
	return &xmlWriter{w: bufio.NewWriterSize(w, WriteBufSize)}
}

func (x *xmlWriter) raw(s string) {
	if x.err == nil {
		_, x.err = x.w.WriteString(s)
	}
}

func (x *xmlWriter) text(s string) {
	if x.err == nil {
		x.err = xml.EscapeText(x.w, []byte(s))
	}
}

// attrs writes name="value" pairs, skipping empty values.
func (x *xmlWriter) attrs(kv ...string) {
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i+1] == "" {
			continue
		}
		x.raw(" " + kv[i] + `="`)
		x.text(kv[i+1])
		x.raw(`"`)
	}
}

// open writes a start tag. Empty attribute values are left out.
func (x *xmlWriter) open(name string, kv ...string) {
	x.raw("<" + name)
	x.attrs(kv...)
	x.raw(">")
}

// empty writes a self-closing element.
func (x *xmlWriter) empty(name string, kv ...string) {
	x.raw("<" + name)
	x.attrs(kv...)
	x.raw("/>")
}

func (x *xmlWriter) close(name string) {
	x.raw("</" + name + ">")
}

func (x *xmlWriter) element(name, content string) {
	x.raw("<" + name + ">")
	x.text(content)
	x.close(name)
}

func (x *xmlWriter) flush() error {
	if x.err != nil {
		return x.err
	}
	return x.w.Flush()
}

// lineWriter breaks a byte stream into lines of a fixed width.
type lineWriter struct {
	w     io.Writer
	width int
	col   int
}

func (l *lineWriter) Write(p []byte) (int, error) {
	n := 0
	for len(p) > 0 {
		if l.col == l.width {
			if _, err := l.w.Write([]byte{'\n'}); err != nil {
				return n, err
			}
			l.col = 0
		}
		chunk := min(len(p), l.width-l.col)
		m, err := l.w.Write(p[:chunk])
		n += m
		l.col += m
		if err != nil {
			return n, err
		}
		p = p[chunk:]
	}
	return n, nil
}

// writeBase64 writes the base64 text of what fill produces, wrapped into lines.
func writeBase64(x *xmlWriter, fill func(io.Writer) error) error {
	if x.err != nil {
		return x.err
	}
	x.raw("\n")
	enc := base64.NewEncoder(base64.StdEncoding, &lineWriter{w: x.w, width: base64Line})
	if err := fill(enc); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	x.raw("\n")
	return x.err
}

func indent(depth int) string {
	return strings.Repeat("  ", depth)
}
