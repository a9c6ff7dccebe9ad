package parser

import (
	"encoding/xml"
	"fmt"
	"io"
	"regexp"

	"golang.org/x/net/html/charset"

	"github.com/ssargent/votable/pkg/votable"
)

var votableNamespace = regexp.MustCompile(`^http://www\.ivoa\.net/xml/VOTable/v1\.\d+$`)

const xmlNamespace = "http://www.w3.org/XML/1998/namespace"

// element is a start tag after namespace handling.
type element struct {
	tag   votable.Tag
	name  string
	space string
	attrs []votable.Attr
}

type eventKind int

const (
	startEvent eventKind = iota
	endEvent
	textEvent
	commentEvent
)

// event is one unit of input. data is only valid until the next call to next.
type event struct {
	kind eventKind
	el   element
	data []byte
}

type scope struct {
	raw xml.Name
	ns  map[string]string
	el  element
}

// tokenizer turns raw XML tokens into events, checking that end tags match and
// resolving namespace prefixes itself so that each Namespacing policy sees the names
// as written.
type tokenizer struct {
	dec   *xml.Decoder
	mode  Namespacing
	stack []scope
}

func newTokenizer(r io.Reader, mode Namespacing) *tokenizer {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = charset.NewReaderLabel
	return &tokenizer{dec: dec, mode: mode}
}

func (t *tokenizer) depth() int { return len(t.stack) }

func (t *tokenizer) next() (event, error) {
	for {
		tok, err := t.dec.RawToken()
		if err == io.EOF {
			if n := len(t.stack); n > 0 {
				return event{}, t.syntaxError(fmt.Sprintf("unexpected EOF inside <%s>", qname(t.stack[n-1].raw)))
			}
			return event{}, io.EOF
		}
		if err != nil {
			return event{}, err
		}

		switch tk := tok.(type) {
		case xml.StartElement:
			return event{kind: startEvent, el: t.start(tk)}, nil

		case xml.EndElement:
			n := len(t.stack)
			if n == 0 {
				return event{}, t.syntaxError(fmt.Sprintf("unexpected </%s>", qname(tk.Name)))
			}
			top := t.stack[n-1]
			if top.raw != tk.Name {
				return event{}, t.syntaxError(fmt.Sprintf("element <%s> closed by </%s>", qname(top.raw), qname(tk.Name)))
			}
			t.stack = t.stack[:n-1]
			return event{kind: endEvent, el: top.el}, nil

		case xml.CharData:
			if len(t.stack) > 0 {
				return event{kind: textEvent, data: tk}, nil
			}

		case xml.Comment:
			if len(t.stack) > 0 {
				return event{kind: commentEvent, data: tk}, nil
			}
		}
	}
}

func (t *tokenizer) start(tk xml.StartElement) element {
	sc := scope{raw: tk.Name}
	for _, a := range tk.Attr {
		switch {
		case a.Name.Space == "xmlns":
			sc.setNS(a.Name.Local, a.Value)
		case a.Name.Space == "" && a.Name.Local == "xmlns":
			sc.setNS("", a.Value)
		}
	}
	t.stack = append(t.stack, sc)

	uri := t.resolve(tk.Name.Space)
	el := element{space: uri}
	foreign := false
	switch t.mode {
	case NamespacingNone:
		el.name = qname(tk.Name)
	case NamespacingLax:
		el.name = tk.Name.Local
	default:
		el.name = tk.Name.Local
		if uri != "" && !votableNamespace.MatchString(uri) {
			el.name = qname(tk.Name)
			foreign = true
		}
	}
	if !foreign {
		el.tag = votable.LookupTag(el.name)
	}

	if len(tk.Attr) > 0 {
		el.attrs = make([]votable.Attr, len(tk.Attr))
		for i, a := range tk.Attr {
			name := a.Name.Local
			if a.Name.Space != "" {
				name = qname(a.Name)
			}
			el.attrs[i] = votable.Attr{Name: name, Value: a.Value}
		}
	}

	t.stack[len(t.stack)-1].el = el
	return el
}

func (s *scope) setNS(prefix, uri string) {
	if s.ns == nil {
		s.ns = make(map[string]string)
	}
	s.ns[prefix] = uri
}

// resolve maps a prefix to its namespace URI. Unbound prefixes resolve to themselves.
func (t *tokenizer) resolve(prefix string) string {
	if prefix == "xml" {
		return xmlNamespace
	}
	for i := len(t.stack) - 1; i >= 0; i-- {
		if uri, ok := t.stack[i].ns[prefix]; ok {
			return uri
		}
	}
	return prefix
}

func (t *tokenizer) syntaxError(msg string) error {
	line, _ := t.dec.InputPos()
	return &xml.SyntaxError{Msg: msg, Line: line}
}

func qname(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return n.Space + ":" + n.Local
}
