package protocol

import (
	"fmt"

	"github.com/vango-dev/reactor/pkg/dom"
)

// Attr is one element attribute.
type Attr struct {
	Name  string
	Value string
}

// NodeDesc describes a node and its subtree as seen at encoding time.
type NodeDesc struct {
	ID       uint64
	Kind     dom.Kind
	Tag      string // Element
	Data     string // Text, Comment
	Attrs    []Attr
	Children []*NodeDesc
}

// Describe captures n and its descendants. Nodes that are not part of the
// reference platform describe as an empty comment.
func Describe(n dom.Node) *NodeDesc {
	desc := &NodeDesc{ID: dom.IDOf(n), Kind: n.Kind()}
	switch v := n.(type) {
	case *dom.Element:
		desc.Tag = v.Tag()
		for _, name := range v.AttrNames() {
			value, _ := v.Attr(name)
			desc.Attrs = append(desc.Attrs, Attr{Name: name, Value: value})
		}
		for _, c := range v.Children() {
			desc.Children = append(desc.Children, Describe(c))
		}
	case *dom.Fragment:
		for _, c := range v.Children() {
			desc.Children = append(desc.Children, Describe(c))
		}
	case *dom.Text:
		desc.Data = v.Data()
	case *dom.Comment:
		desc.Data = v.Data()
	default:
		desc.Kind = dom.KindComment
	}
	return desc
}

// EncodeTree appends desc to e.
//
//	[Kind: byte][ID: varint]
//	Element:  [Tag][AttrCount][Name Value]...[ChildCount][Child]...
//	Fragment: [ChildCount][Child]...
//	Text, Comment: [Data]
func EncodeTree(e *Encoder, desc *NodeDesc) {
	e.WriteByte(byte(desc.Kind))
	e.WriteUvarint(desc.ID)
	switch desc.Kind {
	case dom.KindElement:
		e.WriteString(desc.Tag)
		e.WriteUvarint(uint64(len(desc.Attrs)))
		for _, a := range desc.Attrs {
			e.WriteString(a.Name)
			e.WriteString(a.Value)
		}
		encodeChildren(e, desc.Children)
	case dom.KindFragment:
		encodeChildren(e, desc.Children)
	default:
		e.WriteString(desc.Data)
	}
}

func encodeChildren(e *Encoder, children []*NodeDesc) {
	e.WriteUvarint(uint64(len(children)))
	for _, c := range children {
		EncodeTree(e, c)
	}
}

// DecodeTree reads a node descriptor, rejecting trees nested deeper than
// MaxTreeDepth.
func DecodeTree(d *Decoder) (*NodeDesc, error) {
	return decodeTree(d, 0)
}

func decodeTree(d *Decoder, depth int) (*NodeDesc, error) {
	if depth >= MaxTreeDepth {
		return nil, ErrMaxDepthExceeded
	}
	kind, err := d.ReadByte()
	if err != nil {
		return nil, err
	}
	id, err := d.ReadUvarint()
	if err != nil {
		return nil, err
	}
	desc := &NodeDesc{ID: id, Kind: dom.Kind(kind)}

	switch desc.Kind {
	case dom.KindElement:
		if desc.Tag, err = d.ReadString(); err != nil {
			return nil, err
		}
		var n int
		if n, err = d.ReadCollectionCount(); err != nil {
			return nil, err
		}
		desc.Attrs = make([]Attr, n)
		for i := range desc.Attrs {
			if desc.Attrs[i].Name, err = d.ReadString(); err != nil {
				return nil, err
			}
			if desc.Attrs[i].Value, err = d.ReadString(); err != nil {
				return nil, err
			}
		}
		desc.Children, err = decodeChildren(d, depth)
	case dom.KindFragment:
		desc.Children, err = decodeChildren(d, depth)
	case dom.KindText, dom.KindComment:
		desc.Data, err = d.ReadString()
	default:
		return nil, fmt.Errorf("protocol: unknown node kind 0x%02x", kind)
	}
	if err != nil {
		return nil, err
	}
	return desc, nil
}

func decodeChildren(d *Decoder, depth int) ([]*NodeDesc, error) {
	n, err := d.ReadCollectionCount()
	if err != nil {
		return nil, err
	}
	children := make([]*NodeDesc, 0, n)
	for i := 0; i < n; i++ {
		c, err := decodeTree(d, depth+1)
		if err != nil {
			return nil, err
		}
		children = append(children, c)
	}
	return children, nil
}
