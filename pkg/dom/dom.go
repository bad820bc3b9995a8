// Package dom defines the platform contract the reconciler and control-flow
// blocks mutate, and an in-memory reference platform implementing it.
//
// The contract is intentionally small: opaque nodes, containers that can
// insert, remove and replace children, and a platform that creates markers.
// Any retained-mode tree (a browser DOM over a bridge, a terminal UI, a test
// double) can implement it.
package dom

// Kind is the node type discriminator.
type Kind uint8

const (
	KindElement  Kind = iota + 1 // <div>, <li>, etc.
	KindText                     // Text content
	KindComment                  // Comments and markers
	KindFragment                 // Detached grouping, children move on insert
)

// String returns the string representation of the Kind.
func (k Kind) String() string {
	switch k {
	case KindElement:
		return "Element"
	case KindText:
		return "Text"
	case KindComment:
		return "Comment"
	case KindFragment:
		return "Fragment"
	default:
		return "Unknown"
	}
}

// Node is an opaque platform node. Identity is pointer identity: two Nodes
// are the same node iff they compare equal.
type Node interface {
	Kind() Kind
}

// Container is a node whose ordered children can be mutated.
type Container interface {
	Node

	// InsertBefore inserts node before ref, or appends it when ref is nil.
	// A node that already has a parent is moved. Inserting a fragment moves
	// all of its children, in order, and leaves it empty.
	InsertBefore(node, ref Node)

	// RemoveChild detaches node.
	RemoveChild(node Node)

	// ReplaceChild puts newChild in place of oldChild and detaches oldChild.
	ReplaceChild(newChild, oldChild Node)

	// NextSibling returns the child following node, or nil.
	NextSibling(node Node) Node
}

// Platform creates nodes that are not produced by user factories.
// *Document implements it.
type Platform interface {
	// CreateMarker returns an empty placeholder node that anchors a dynamic
	// region of a container.
	CreateMarker(label string) Node
}

// FragmentFactory is implemented by containers that can group several
// detached nodes so they are inserted with a single InsertBefore call.
type FragmentFactory interface {
	NewFragment() Container
}
