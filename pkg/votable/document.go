package votable

import (
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// NodeID is the index of a node in its Document.
type NodeID int32

// NoNode is returned where no node exists.
const NoNode NodeID = -1

// NodeKind distinguishes elements from character data.
type NodeKind uint8

const (
	ElementNode NodeKind = iota
	TextNode
	CommentNode
)

// Attr is an element attribute. Prefixes are kept only for attributes in a foreign
// namespace.
type Attr struct {
	Name  string
	Value string
}

// Node is one entry of the document arena.
type Node struct {
	Kind     NodeKind
	Tag      Tag
	Name     string // local name, or the qualified name outside the VOTable namespace
	Space    string // namespace URI or prefix, when known
	Attrs    []Attr
	Text     string // content of text and comment nodes
	Parent   NodeID
	Children []NodeID

	payload any
}

// Attr returns the value of the named attribute.
func (n *Node) Attr(name string) (string, bool) {
	for _, a := range n.Attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// Document is the structural tree of a VOTable document. Nodes live in an arena and
// refer to each other by NodeID. A Document may be read while a parser is still adding
// to it.
type Document struct {
	mu     sync.RWMutex
	nodes  []Node
	root   NodeID
	ids    map[string]NodeID
	linker Linker
	log    logrus.FieldLogger

	// SystemID is the location the document was read from, used to resolve relative
	// hrefs.
	SystemID string
}

// NewDocument returns an empty document.
func NewDocument(log logrus.FieldLogger) *Document {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Document{root: NoNode, ids: make(map[string]NodeID), log: log}
}

// SetLinker installs the resolver used for external and FITS data.
func (d *Document) SetLinker(l Linker) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.linker = l
}

func (d *Document) getLinker() Linker {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.linker
}

// Logger returns the document's logger.
func (d *Document) Logger() logrus.FieldLogger {
	return d.log
}

// AddElement appends an element under parent, or makes it the root when parent is
// NoNode. FIELD and PARAM elements get their decoders here, and a VALUES null attribute
// is applied to the enclosing FIELD or PARAM.
func (d *Document) AddElement(parent NodeID, space, name string, attrs []Attr) NodeID {
	return d.addElement(parent, LookupTag(name), space, name, attrs)
}

// AddOther appends an element that is not part of the VOTable vocabulary, whatever its
// name.
func (d *Document) AddOther(parent NodeID, space, name string, attrs []Attr) NodeID {
	return d.addElement(parent, TagOther, space, name, attrs)
}

func (d *Document) addElement(parent NodeID, tag Tag, space, name string, attrs []Attr) NodeID {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := NodeID(len(d.nodes))
	n := Node{
		Kind:   ElementNode,
		Tag:    tag,
		Name:   name,
		Space:  space,
		Attrs:  attrs,
		Parent: parent,
	}

	switch n.Tag {
	case TagField, TagParam:
		n.payload = newFieldPayload(d.log, &n)
	case TagTable:
		n.payload = &tablePayload{}
	case TagValues:
		if null, ok := n.Attr("null"); ok && parent != NoNode {
			if fp, ok := d.nodes[parent].payload.(*fieldPayload); ok {
				fp.decoder.SetNullValue(null)
			}
		}
	}

	d.nodes = append(d.nodes, n)
	d.link(parent, id)
	if v, ok := n.Attr("ID"); ok && v != "" {
		d.ids[v] = id
	}
	return id
}

// AddText appends character data under parent. Adjacent text is merged.
func (d *Document) AddText(parent NodeID, text string) NodeID {
	d.mu.Lock()
	defer d.mu.Unlock()
	if parent != NoNode {
		if kids := d.nodes[parent].Children; len(kids) > 0 {
			last := kids[len(kids)-1]
			if d.nodes[last].Kind == TextNode {
				d.nodes[last].Text += text
				return last
			}
		}
	}
	return d.addLeaf(parent, TextNode, text)
}

// AddComment appends a comment under parent.
func (d *Document) AddComment(parent NodeID, text string) NodeID {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.addLeaf(parent, CommentNode, text)
}

func (d *Document) addLeaf(parent NodeID, kind NodeKind, text string) NodeID {
	id := NodeID(len(d.nodes))
	d.nodes = append(d.nodes, Node{Kind: kind, Text: text, Parent: parent})
	d.link(parent, id)
	return id
}

func (d *Document) link(parent, id NodeID) {
	if parent == NoNode {
		if d.root == NoNode {
			d.root = id
		}
		return
	}
	d.nodes[parent].Children = append(d.nodes[parent].Children, id)
}

// Detach removes id from its parent's children. The node stays in the arena but is no
// longer reachable from the root.
func (d *Document) Detach(id NodeID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p := d.nodes[id].Parent
	if p == NoNode {
		if d.root == id {
			d.root = NoNode
		}
		return
	}
	kids := d.nodes[p].Children
	for i, k := range kids {
		if k == id {
			d.nodes[p].Children = append(kids[:i:i], kids[i+1:]...)
			break
		}
	}
	d.nodes[id].Parent = NoNode
}

// Root returns the root element, or NoNode for an empty document.
func (d *Document) Root() NodeID {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.root
}

// Len returns the number of nodes in the arena, including detached ones.
func (d *Document) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.nodes)
}

// Node returns a copy of the node. The Children and Attrs slices must not be modified.
func (d *Document) Node(id NodeID) Node {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.nodes[id]
}

// Tag returns the tag of id.
func (d *Document) Tag(id NodeID) Tag {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.nodes[id].Tag
}

// Parent returns the parent of id.
func (d *Document) Parent(id NodeID) NodeID {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.nodes[id].Parent
}

// Attr returns the named attribute of id.
func (d *Document) Attr(id NodeID, name string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.nodes[id].Attr(name)
}

// AttrOr returns the named attribute of id or def.
func (d *Document) AttrOr(id NodeID, name, def string) string {
	if v, ok := d.Attr(id, name); ok {
		return v
	}
	return def
}

// Children returns the children of id.
func (d *Document) Children(id NodeID) []NodeID {
	d.mu.RLock()
	defer d.mu.RUnlock()
	kids := d.nodes[id].Children
	return kids[:len(kids):len(kids)]
}

// ChildrenByTag returns the element children of id with the given tag.
func (d *Document) ChildrenByTag(id NodeID, tag Tag) []NodeID {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []NodeID
	for _, k := range d.nodes[id].Children {
		if d.nodes[k].Kind == ElementNode && d.nodes[k].Tag == tag {
			out = append(out, k)
		}
	}
	return out
}

// FirstChild returns the first element child of id with the given tag.
func (d *Document) FirstChild(id NodeID, tag Tag) NodeID {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.firstChild(id, tag)
}

func (d *Document) firstChild(id NodeID, tag Tag) NodeID {
	for _, k := range d.nodes[id].Children {
		if d.nodes[k].Kind == ElementNode && d.nodes[k].Tag == tag {
			return k
		}
	}
	return NoNode
}

// Ancestor returns the nearest ancestor of id with the given tag.
func (d *Document) Ancestor(id NodeID, tag Tag) NodeID {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for p := d.nodes[id].Parent; p != NoNode; p = d.nodes[p].Parent {
		if d.nodes[p].Tag == tag && d.nodes[p].Kind == ElementNode {
			return p
		}
	}
	return NoNode
}

// Text returns the concatenated character data directly under id.
func (d *Document) Text(id NodeID) string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.text(id)
}

func (d *Document) text(id NodeID) string {
	kids := d.nodes[id].Children
	if len(kids) == 1 && d.nodes[kids[0]].Kind == TextNode {
		return d.nodes[kids[0]].Text
	}
	var sb strings.Builder
	for _, k := range kids {
		if d.nodes[k].Kind == TextNode {
			sb.WriteString(d.nodes[k].Text)
		}
	}
	return sb.String()
}

// ChildText returns the text of the first child element with the given tag.
func (d *Document) ChildText(id NodeID, tag Tag) string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c := d.firstChild(id, tag)
	if c == NoNode {
		return ""
	}
	return strings.TrimSpace(d.text(c))
}

// ByID returns the element with the given ID attribute.
func (d *Document) ByID(id string) (NodeID, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n, ok := d.ids[id]
	return n, ok
}

// Walk visits the elements reachable from the root in document order. Returning false
// from fn skips the element's children.
func (d *Document) Walk(fn func(id NodeID, n *Node) bool) {
	root := d.Root()
	if root == NoNode {
		return
	}
	stack := []NodeID{root}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		n := d.Node(id)
		if n.Kind != ElementNode {
			continue
		}
		if !fn(id, &n) {
			continue
		}
		for i := len(n.Children) - 1; i >= 0; i-- {
			stack = append(stack, n.Children[i])
		}
	}
}

// Find returns all reachable elements with the given tag in document order.
func (d *Document) Find(tag Tag) []NodeID {
	var out []NodeID
	d.Walk(func(id NodeID, n *Node) bool {
		if n.Tag == tag {
			out = append(out, id)
		}
		// bulk rows never hold the elements callers look for
		return n.Tag != TagTableData
	})
	return out
}

// Version returns the VOTABLE version attribute.
func (d *Document) Version() string {
	root := d.Root()
	if root == NoNode {
		return ""
	}
	return d.AttrOr(root, "version", "")
}

func (d *Document) payload(id NodeID) any {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.nodes[id].payload
}
