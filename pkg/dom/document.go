package dom

// Op is the type of a tree mutation.
type Op uint8

const (
	OpInsert     Op = 0x01 // Node inserted (or moved) before Ref in Parent
	OpRemove     Op = 0x02 // Node detached from Parent
	OpReplace    Op = 0x03 // Node took the place of Old in Parent
	OpSetText    Op = 0x04 // Text content changed
	OpSetAttr    Op = 0x05 // Attribute set
	OpRemoveAttr Op = 0x06 // Attribute removed
)

// String returns the string representation of the Op.
func (op Op) String() string {
	switch op {
	case OpInsert:
		return "Insert"
	case OpRemove:
		return "Remove"
	case OpReplace:
		return "Replace"
	case OpSetText:
		return "SetText"
	case OpSetAttr:
		return "SetAttr"
	case OpRemoveAttr:
		return "RemoveAttr"
	default:
		return "Unknown"
	}
}

// Mutation describes one change applied to the tree.
type Mutation struct {
	Op     Op
	Parent Node // Container for Insert/Remove/Replace
	Node   Node // Inserted, removed or updated node
	Ref    Node // Insert: the node Node was inserted before, nil for append
	Old    Node // Replace: the detached node
	Name   string
	Value  string
}

// MutationListener is notified synchronously of every mutation.
type MutationListener func(Mutation)

// Document is the in-memory reference platform. It allocates node IDs and
// fans mutations out to listeners. Like the runtime driving it, it is not
// safe for concurrent use.
type Document struct {
	nextID    uint64
	listeners []*MutationListener
}

// NewDocument creates an empty document.
func NewDocument() *Document {
	return &Document{}
}

func (d *Document) alloc() nodeBase {
	d.nextID++
	return nodeBase{id: d.nextID, doc: d}
}

// CreateElement creates a detached element.
func (d *Document) CreateElement(tag string) *Element {
	e := &Element{nodeBase: d.alloc(), tag: tag}
	e.kids.owner = e
	return e
}

// CreateText creates a detached text node.
func (d *Document) CreateText(data string) *Text {
	return &Text{nodeBase: d.alloc(), data: data}
}

// CreateComment creates a detached comment.
func (d *Document) CreateComment(data string) *Comment {
	return &Comment{nodeBase: d.alloc(), data: data}
}

// CreateFragment creates an empty fragment.
func (d *Document) CreateFragment() *Fragment {
	f := &Fragment{nodeBase: d.alloc()}
	f.kids.owner = f
	return f
}

// CreateMarker implements Platform with a comment.
func (d *Document) CreateMarker(label string) Node {
	return d.CreateComment(label)
}

// Listen registers l and returns a function that removes it.
func (d *Document) Listen(l MutationListener) (remove func()) {
	p := &l
	d.listeners = append(d.listeners, p)
	return func() {
		for i, q := range d.listeners {
			if q == p {
				d.listeners = append(d.listeners[:i:i], d.listeners[i+1:]...)
				return
			}
		}
	}
}

func (d *Document) emit(m Mutation) {
	for _, l := range d.listeners {
		(*l)(m)
	}
}

// Contains reports whether n is root or one of its descendants.
func Contains(root, n Node) bool {
	for n != nil {
		if n == root {
			return true
		}
		tn, ok := n.(treeNode)
		if !ok || tn.base().parent == nil {
			return false
		}
		n = tn.base().parent.owner
	}
	return false
}

// IDOf returns the document-unique ID of a reference platform node, or 0.
func IDOf(n Node) uint64 {
	if tn, ok := n.(treeNode); ok {
		return tn.base().id
	}
	return 0
}

// ParentOf returns the container of a reference platform node, or nil.
func ParentOf(n Node) Container {
	if tn, ok := n.(treeNode); ok {
		return tn.base().Parent()
	}
	return nil
}
