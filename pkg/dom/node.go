package dom

import (
	"fmt"
	"sort"

	rerrors "github.com/vango-dev/reactor/internal/errors"
)

// treeNode is implemented by every node of the reference platform.
type treeNode interface {
	Node
	base() *nodeBase
}

// nodeBase holds identity and sibling links. Children are a doubly linked
// list so that inserts, removals and NextSibling are O(1).
type nodeBase struct {
	id     uint64
	doc    *Document
	parent *childList
	prev   treeNode
	next   treeNode
}

func (b *nodeBase) base() *nodeBase { return b }

// ID returns the document-unique identifier of the node.
func (b *nodeBase) ID() uint64 { return b.id }

// Parent returns the container holding the node, or nil.
func (b *nodeBase) Parent() Container {
	if b.parent == nil {
		return nil
	}
	return b.parent.owner
}

// childList is the child list of an Element or a Fragment.
type childList struct {
	owner interface {
		Container
		treeNode
	}
	first, last treeNode
	n           int
}

func (l *childList) children() []Node {
	out := make([]Node, 0, l.n)
	for c := l.first; c != nil; c = c.base().next {
		out = append(out, c)
	}
	return out
}

func (l *childList) link(n, ref treeNode) {
	b := n.base()
	b.parent = l
	if ref == nil {
		b.prev = l.last
		b.next = nil
		if l.last != nil {
			l.last.base().next = n
		} else {
			l.first = n
		}
		l.last = n
	} else {
		rb := ref.base()
		b.prev = rb.prev
		b.next = ref
		if rb.prev != nil {
			rb.prev.base().next = n
		} else {
			l.first = n
		}
		rb.prev = n
	}
	l.n++
}

func (l *childList) unlink(n treeNode) {
	b := n.base()
	if b.prev != nil {
		b.prev.base().next = b.next
	} else {
		l.first = b.next
	}
	if b.next != nil {
		b.next.base().prev = b.prev
	} else {
		l.last = b.prev
	}
	b.parent, b.prev, b.next = nil, nil, nil
	l.n--
}

func (l *childList) insertBefore(node, ref Node) {
	n := asTree(node)
	if n.Kind() == KindFragment {
		f := n.(*Fragment)
		for _, c := range f.kids.children() {
			l.insertBefore(c, ref)
		}
		return
	}

	var r treeNode
	if ref != nil {
		r = asTree(ref)
		l.mustContain(r, "insertBefore")
		if r == n {
			return
		}
	}
	l.mustNotContainAncestor(n)

	if p := n.base().parent; p != nil {
		p.unlink(n)
	}
	l.link(n, r)
	l.owner.base().doc.emit(Mutation{Op: OpInsert, Parent: l.owner, Node: n, Ref: ref})
}

func (l *childList) removeChild(node Node) {
	n := asTree(node)
	l.mustContain(n, "removeChild")
	l.unlink(n)
	l.owner.base().doc.emit(Mutation{Op: OpRemove, Parent: l.owner, Node: n})
}

func (l *childList) replaceChild(newChild, oldChild Node) {
	o := asTree(oldChild)
	l.mustContain(o, "replaceChild")
	n := asTree(newChild)
	if n == o {
		return
	}
	if n.Kind() == KindFragment {
		l.insertBefore(n, o)
		l.removeChild(o)
		return
	}
	l.mustNotContainAncestor(n)

	if p := n.base().parent; p != nil {
		p.unlink(n)
	}
	l.link(n, o)
	l.unlink(o)
	l.owner.base().doc.emit(Mutation{Op: OpReplace, Parent: l.owner, Node: n, Old: o})
}

func (l *childList) nextSibling(node Node) Node {
	n := asTree(node)
	l.mustContain(n, "nextSibling")
	if next := n.base().next; next != nil {
		return next
	}
	return nil
}

func (l *childList) mustContain(n treeNode, op string) {
	if n.base().parent != l {
		panic(rerrors.New("R020").WithDetail(fmt.Sprintf("%s: %s is not a child of %s", op, describe(n), describe(l.owner))))
	}
}

func (l *childList) mustNotContainAncestor(n treeNode) {
	for p := Node(l.owner); p != nil; {
		if p == Node(n) {
			panic(rerrors.New("R021").WithDetail(fmt.Sprintf("%s contains %s", describe(n), describe(l.owner))))
		}
		tn := asTree(p)
		if tn.base().parent == nil {
			return
		}
		p = tn.base().parent.owner
	}
}

func asTree(n Node) treeNode {
	tn, ok := n.(treeNode)
	if !ok {
		panic(fmt.Sprintf("dom: foreign node %T", n))
	}
	return tn
}

func describe(n treeNode) string {
	return fmt.Sprintf("%s#%d", n.Kind(), n.base().id)
}

// Element is a tagged container with attributes.
type Element struct {
	nodeBase
	tag   string
	attrs map[string]string
	kids  childList
}

// Kind implements Node.
func (e *Element) Kind() Kind { return KindElement }

// Tag returns the element tag name.
func (e *Element) Tag() string { return e.tag }

// InsertBefore implements Container.
func (e *Element) InsertBefore(node, ref Node) { e.kids.insertBefore(node, ref) }

// RemoveChild implements Container.
func (e *Element) RemoveChild(node Node) { e.kids.removeChild(node) }

// ReplaceChild implements Container.
func (e *Element) ReplaceChild(newChild, oldChild Node) { e.kids.replaceChild(newChild, oldChild) }

// NextSibling implements Container.
func (e *Element) NextSibling(node Node) Node { return e.kids.nextSibling(node) }

// AppendChild appends node.
func (e *Element) AppendChild(node Node) { e.kids.insertBefore(node, nil) }

// Children returns a copy of the child list.
func (e *Element) Children() []Node { return e.kids.children() }

// Len returns the number of children.
func (e *Element) Len() int { return e.kids.n }

// NewFragment implements FragmentFactory.
func (e *Element) NewFragment() Container { return e.doc.CreateFragment() }

// Attr returns the attribute value and whether it is set.
func (e *Element) Attr(name string) (string, bool) {
	v, ok := e.attrs[name]
	return v, ok
}

// SetAttr sets an attribute.
func (e *Element) SetAttr(name, value string) {
	if old, ok := e.attrs[name]; ok && old == value {
		return
	}
	if e.attrs == nil {
		e.attrs = make(map[string]string)
	}
	e.attrs[name] = value
	e.doc.emit(Mutation{Op: OpSetAttr, Node: e, Name: name, Value: value})
}

// RemoveAttr removes an attribute.
func (e *Element) RemoveAttr(name string) {
	if _, ok := e.attrs[name]; !ok {
		return
	}
	delete(e.attrs, name)
	e.doc.emit(Mutation{Op: OpRemoveAttr, Node: e, Name: name})
}

// AttrNames returns the attribute names in sorted order.
func (e *Element) AttrNames() []string {
	names := make([]string, 0, len(e.attrs))
	for k := range e.attrs {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Fragment is a detached container whose children move into the target
// container when it is inserted.
type Fragment struct {
	nodeBase
	kids childList
}

// Kind implements Node.
func (f *Fragment) Kind() Kind { return KindFragment }

// InsertBefore implements Container.
func (f *Fragment) InsertBefore(node, ref Node) { f.kids.insertBefore(node, ref) }

// RemoveChild implements Container.
func (f *Fragment) RemoveChild(node Node) { f.kids.removeChild(node) }

// ReplaceChild implements Container.
func (f *Fragment) ReplaceChild(newChild, oldChild Node) { f.kids.replaceChild(newChild, oldChild) }

// NextSibling implements Container.
func (f *Fragment) NextSibling(node Node) Node { return f.kids.nextSibling(node) }

// AppendChild appends node.
func (f *Fragment) AppendChild(node Node) { f.kids.insertBefore(node, nil) }

// Children returns a copy of the child list.
func (f *Fragment) Children() []Node { return f.kids.children() }

// Len returns the number of children.
func (f *Fragment) Len() int { return f.kids.n }

// NewFragment implements FragmentFactory.
func (f *Fragment) NewFragment() Container { return f.doc.CreateFragment() }

// Text is a text leaf.
type Text struct {
	nodeBase
	data string
}

// Kind implements Node.
func (t *Text) Kind() Kind { return KindText }

// Data returns the text content.
func (t *Text) Data() string { return t.data }

// SetData replaces the text content.
func (t *Text) SetData(s string) {
	if t.data == s {
		return
	}
	t.data = s
	t.doc.emit(Mutation{Op: OpSetText, Node: t, Value: s})
}

// Comment is a comment leaf. Markers are comments.
type Comment struct {
	nodeBase
	data string
}

// Kind implements Node.
func (c *Comment) Kind() Kind { return KindComment }

// Data returns the comment content.
func (c *Comment) Data() string { return c.data }
