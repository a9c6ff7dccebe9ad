package votable

import (
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ssargent/votable/pkg/codec"
	"github.com/ssargent/votable/pkg/tabular"
)

type fieldPayload struct {
	decoder codec.Decoder
}

func newFieldPayload(log logrus.FieldLogger, n *Node) *fieldPayload {
	datatype, _ := n.Attr("datatype")
	arraysize, _ := n.Attr("arraysize")
	dec, err := codec.MakeDecoder(datatype, arraysize, "", codec.WithLogger(log))
	if err != nil {
		name, _ := n.Attr("name")
		log.WithFields(logrus.Fields{
			"field":     name,
			"arraysize": arraysize,
		}).WithError(err).Warn("bad arraysize, reading values as text")
		dec = codec.MustDecoder("", "", "")
	}
	return &fieldPayload{decoder: dec}
}

// element is the common part of the typed views.
type element struct {
	doc *Document
	id  NodeID
}

// Node returns the node handle.
func (e element) Node() NodeID { return e.id }

// Document returns the document the element belongs to.
func (e element) Document() *Document { return e.doc }

func (e element) attr(name string) string {
	return e.doc.AttrOr(e.id, name, "")
}

// Attr returns the named attribute.
func (e element) Attr(name string) (string, bool) {
	return e.doc.Attr(e.id, name)
}

// ElementID returns the ID attribute.
func (e element) ElementID() string { return e.attr("ID") }

// Name returns the name attribute.
func (e element) Name() string { return e.attr("name") }

// Description returns the trimmed text of the DESCRIPTION child.
func (e element) Description() string {
	return e.doc.ChildText(e.id, TagDescription)
}

// Field is a FIELD element.
type Field struct{ element }

// Field returns the FIELD or PARAM at id as a Field.
func (d *Document) Field(id NodeID) (Field, bool) {
	t := d.Tag(id)
	return Field{element{d, id}}, t == TagField || t == TagParam
}

func (f Field) Datatype() string  { return f.attr("datatype") }
func (f Field) Arraysize() string { return f.attr("arraysize") }
func (f Field) Unit() string      { return f.attr("unit") }
func (f Field) UCD() string       { return f.attr("ucd") }
func (f Field) Utype() string     { return f.attr("utype") }
func (f Field) Xtype() string     { return f.attr("xtype") }
func (f Field) Ref() string       { return f.attr("ref") }

// Decoder returns the decoder built from the FIELD attributes and any VALUES null.
func (f Field) Decoder() codec.Decoder {
	return f.doc.payload(f.id).(*fieldPayload).decoder
}

// Values returns the VALUES child.
func (f Field) Values() (Values, bool) {
	v := f.doc.FirstChild(f.id, TagValues)
	return Values{element{f.doc, v}}, v != NoNode
}

// Links returns the LINK children.
func (f Field) Links() []Link {
	return views(f.doc, f.doc.ChildrenByTag(f.id, TagLink), func(e element) Link { return Link{e} })
}

// Info returns the column description used by tabular consumers.
func (f Field) Info() tabular.ColumnInfo {
	dec := f.Decoder()
	ci := tabular.ColumnFromDecoder(f.Name(), dec)
	ci.ID = f.ElementID()
	if dec.Datatype() == codec.Unknown {
		ci.Datatype = f.Datatype()
	}
	ci.Unit = f.Unit()
	ci.UCD = f.UCD()
	ci.Utype = f.Utype()
	ci.Xtype = f.Xtype()
	ci.Description = f.Description()
	return ci
}

// Param is a PARAM element: a FIELD with a fixed value.
type Param struct{ Field }

// Param returns the PARAM at id.
func (d *Document) Param(id NodeID) (Param, bool) {
	return Param{Field{element{d, id}}}, d.Tag(id) == TagParam
}

// RawValue returns the value attribute.
func (p Param) RawValue() string { return p.attr("value") }

// Value decodes the value attribute.
func (p Param) Value() any {
	return p.Decoder().DecodeText(p.RawValue())
}

// TabularParam returns the parameter in tabular form.
func (p Param) TabularParam() tabular.Param {
	return tabular.Param{ColumnInfo: p.Info(), Value: p.Value()}
}

// Values is a VALUES element.
type Values struct{ element }

// Null returns the null attribute.
func (v Values) Null() string { return v.attr("null") }

// Type returns the type attribute, "legal" by default.
func (v Values) Type() string { return v.doc.AttrOr(v.id, "type", "legal") }

// Min returns the MIN value and whether it is inclusive.
func (v Values) Min() (value string, inclusive bool, ok bool) {
	return v.bound(TagMin)
}

// Max returns the MAX value and whether it is inclusive.
func (v Values) Max() (value string, inclusive bool, ok bool) {
	return v.bound(TagMax)
}

func (v Values) bound(tag Tag) (string, bool, bool) {
	id := v.doc.FirstChild(v.id, tag)
	if id == NoNode {
		return "", false, false
	}
	return v.doc.AttrOr(id, "value", ""), v.doc.AttrOr(id, "inclusive", "yes") != "no", true
}

// Option is an OPTION of a VALUES element. Options may nest.
type Option struct {
	Name    string
	Value   string
	Options []Option
}

// Options returns the OPTION children.
func (v Values) Options() []Option {
	return v.doc.options(v.id)
}

func (d *Document) options(id NodeID) []Option {
	var out []Option
	for _, o := range d.ChildrenByTag(id, TagOption) {
		out = append(out, Option{
			Name:    d.AttrOr(o, "name", ""),
			Value:   d.AttrOr(o, "value", ""),
			Options: d.options(o),
		})
	}
	return out
}

// Link is a LINK element.
type Link struct{ element }

func (l Link) Href() string        { return l.attr("href") }
func (l Link) ContentRole() string { return l.attr("content-role") }
func (l Link) ContentType() string { return l.attr("content-type") }
func (l Link) Title() string       { return l.attr("title") }
func (l Link) Action() string      { return l.attr("action") }

// Group is a GROUP element.
type Group struct{ element }

func (g Group) Ref() string   { return g.attr("ref") }
func (g Group) UCD() string   { return g.attr("ucd") }
func (g Group) Utype() string { return g.attr("utype") }

// Fields returns the FIELDs referenced by FIELDref children.
func (g Group) Fields() []Field {
	var out []Field
	for _, r := range g.doc.ChildrenByTag(g.id, TagFieldRef) {
		if target, ok := g.doc.ByID(g.doc.AttrOr(r, "ref", "")); ok {
			if f, ok := g.doc.Field(target); ok {
				out = append(out, f)
			}
		}
	}
	return out
}

// Params returns the PARAM children and the PARAMs referenced by PARAMref children.
func (g Group) Params() []Param {
	var out []Param
	for _, c := range g.doc.Children(g.id) {
		switch g.doc.Tag(c) {
		case TagParam:
			out = append(out, Param{Field{element{g.doc, c}}})
		case TagParamRef:
			if target, ok := g.doc.ByID(g.doc.AttrOr(c, "ref", "")); ok {
				if p, ok := g.doc.Param(target); ok {
					out = append(out, p)
				}
			}
		}
	}
	return out
}

// Groups returns nested GROUPs.
func (g Group) Groups() []Group {
	return views(g.doc, g.doc.ChildrenByTag(g.id, TagGroup), func(e element) Group { return Group{e} })
}

// Timesys is a TIMESYS element.
type Timesys struct{ element }

func (t Timesys) Timescale() string   { return t.attr("timescale") }
func (t Timesys) Refposition() string { return t.attr("refposition") }

// TimeOrigin returns the timeorigin attribute. JD-origin and MJD-origin are returned as
// the Julian dates they stand for.
func (t Timesys) TimeOrigin() (float64, bool) {
	v, ok := t.Attr("timeorigin")
	if !ok {
		return 0, false
	}
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "JD-ORIGIN":
		return 0, true
	case "MJD-ORIGIN":
		return 2400000.5, true
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	return f, err == nil
}

// Info is an INFO element.
type Info struct{ element }

func (i Info) Value() string { return i.attr("value") }

// Content returns the trimmed text of the element.
func (i Info) Content() string { return strings.TrimSpace(i.doc.Text(i.id)) }

// Resource is a RESOURCE element.
type Resource struct{ element }

func (r Resource) Type() string { return r.attr("type") }

// Tables returns the TABLE children.
func (r Resource) Tables() []Table {
	return views(r.doc, r.doc.ChildrenByTag(r.id, TagTable), func(e element) Table { return Table{e} })
}

// Resources returns nested RESOURCEs.
func (r Resource) Resources() []Resource {
	return views(r.doc, r.doc.ChildrenByTag(r.id, TagResource), func(e element) Resource { return Resource{e} })
}

// Infos returns the INFO children.
func (r Resource) Infos() []Info {
	return views(r.doc, r.doc.ChildrenByTag(r.id, TagInfo), func(e element) Info { return Info{e} })
}

// Params returns the PARAM children.
func (r Resource) Params() []Param {
	return views(r.doc, r.doc.ChildrenByTag(r.id, TagParam), func(e element) Param { return Param{Field{e}} })
}

// Links returns the LINK children.
func (r Resource) Links() []Link {
	return views(r.doc, r.doc.ChildrenByTag(r.id, TagLink), func(e element) Link { return Link{e} })
}

// Resources returns the top level RESOURCE elements.
func (d *Document) Resources() []Resource {
	root := d.Root()
	if root == NoNode {
		return nil
	}
	return views(d, d.ChildrenByTag(root, TagResource), func(e element) Resource { return Resource{e} })
}

// Tables returns every reachable TABLE in document order.
func (d *Document) Tables() []Table {
	return views(d, d.Find(TagTable), func(e element) Table { return Table{e} })
}

// Infos returns the INFO children of the root.
func (d *Document) Infos() []Info {
	root := d.Root()
	if root == NoNode {
		return nil
	}
	return views(d, d.ChildrenByTag(root, TagInfo), func(e element) Info { return Info{e} })
}

// Timesystems returns every TIMESYS element.
func (d *Document) Timesystems() []Timesys {
	return views(d, d.Find(TagTimesys), func(e element) Timesys { return Timesys{e} })
}

func views[T any](d *Document, ids []NodeID, wrap func(element) T) []T {
	out := make([]T, len(ids))
	for i, id := range ids {
		out[i] = wrap(element{d, id})
	}
	return out
}
