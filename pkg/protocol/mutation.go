package protocol

import (
	"fmt"

	"github.com/vango-dev/reactor/pkg/dom"
)

// Mutation is the wire form of a dom.Mutation. Nodes are referenced by ID;
// inserted nodes carry their full subtree since the receiver may never have
// seen them.
type Mutation struct {
	Op     dom.Op
	Parent uint64    // Insert, Remove, Replace
	Target uint64    // Remove, SetText, SetAttr, RemoveAttr
	Ref    uint64    // Insert: 0 appends
	Old    uint64    // Replace
	Tree   *NodeDesc // Insert, Replace
	Name   string    // SetAttr, RemoveAttr
	Value  string    // SetText, SetAttr
}

// FromDOM converts m, capturing the subtree of inserted nodes as it is now.
func FromDOM(m dom.Mutation) Mutation {
	out := Mutation{Op: m.Op, Name: m.Name, Value: m.Value}
	switch m.Op {
	case dom.OpInsert:
		out.Parent = dom.IDOf(m.Parent)
		out.Ref = dom.IDOf(m.Ref)
		out.Tree = Describe(m.Node)
	case dom.OpRemove:
		out.Parent = dom.IDOf(m.Parent)
		out.Target = dom.IDOf(m.Node)
	case dom.OpReplace:
		out.Parent = dom.IDOf(m.Parent)
		out.Old = dom.IDOf(m.Old)
		out.Tree = Describe(m.Node)
	default:
		out.Target = dom.IDOf(m.Node)
	}
	return out
}

// Batch is the payload of a FrameMutations. Seq increases by one per batch
// sent to a viewer so gaps are detectable.
type Batch struct {
	Seq       uint64
	Mutations []Mutation
}

// EncodeBatch encodes b as a frame payload.
func EncodeBatch(b *Batch) []byte {
	e := NewEncoder()
	e.WriteUvarint(b.Seq)
	e.WriteUvarint(uint64(len(b.Mutations)))
	for i := range b.Mutations {
		encodeMutation(e, &b.Mutations[i])
	}
	return e.Bytes()
}

func encodeMutation(e *Encoder, m *Mutation) {
	e.WriteByte(byte(m.Op))
	switch m.Op {
	case dom.OpInsert:
		e.WriteUvarint(m.Parent)
		e.WriteUvarint(m.Ref)
		EncodeTree(e, m.Tree)
	case dom.OpRemove:
		e.WriteUvarint(m.Parent)
		e.WriteUvarint(m.Target)
	case dom.OpReplace:
		e.WriteUvarint(m.Parent)
		e.WriteUvarint(m.Old)
		EncodeTree(e, m.Tree)
	case dom.OpSetText:
		e.WriteUvarint(m.Target)
		e.WriteString(m.Value)
	case dom.OpSetAttr:
		e.WriteUvarint(m.Target)
		e.WriteString(m.Name)
		e.WriteString(m.Value)
	case dom.OpRemoveAttr:
		e.WriteUvarint(m.Target)
		e.WriteString(m.Name)
	}
}

// DecodeBatch decodes a FrameMutations payload.
func DecodeBatch(data []byte) (*Batch, error) {
	d := NewDecoder(data)
	seq, err := d.ReadUvarint()
	if err != nil {
		return nil, err
	}
	n, err := d.ReadCollectionCount()
	if err != nil {
		return nil, err
	}
	b := &Batch{Seq: seq, Mutations: make([]Mutation, n)}
	for i := range b.Mutations {
		if err := decodeMutation(d, &b.Mutations[i]); err != nil {
			return nil, fmt.Errorf("mutation %d: %w", i, err)
		}
	}
	return b, nil
}

func decodeMutation(d *Decoder, m *Mutation) (err error) {
	op, err := d.ReadByte()
	if err != nil {
		return err
	}
	m.Op = dom.Op(op)

	switch m.Op {
	case dom.OpInsert:
		if m.Parent, err = d.ReadUvarint(); err != nil {
			return err
		}
		if m.Ref, err = d.ReadUvarint(); err != nil {
			return err
		}
		m.Tree, err = DecodeTree(d)
	case dom.OpRemove:
		if m.Parent, err = d.ReadUvarint(); err != nil {
			return err
		}
		m.Target, err = d.ReadUvarint()
	case dom.OpReplace:
		if m.Parent, err = d.ReadUvarint(); err != nil {
			return err
		}
		if m.Old, err = d.ReadUvarint(); err != nil {
			return err
		}
		m.Tree, err = DecodeTree(d)
	case dom.OpSetText:
		if m.Target, err = d.ReadUvarint(); err != nil {
			return err
		}
		m.Value, err = d.ReadString()
	case dom.OpSetAttr:
		if m.Target, err = d.ReadUvarint(); err != nil {
			return err
		}
		if m.Name, err = d.ReadString(); err != nil {
			return err
		}
		m.Value, err = d.ReadString()
	case dom.OpRemoveAttr:
		if m.Target, err = d.ReadUvarint(); err != nil {
			return err
		}
		m.Name, err = d.ReadString()
	default:
		return fmt.Errorf("protocol: unknown op 0x%02x", op)
	}
	return err
}

// Snapshot is the payload of a FrameSnapshot: the full tree as of the
// batch numbered Seq. The next batch a viewer receives is Seq+1.
type Snapshot struct {
	Seq  uint64
	Root *NodeDesc
}

// EncodeSnapshot encodes a FrameSnapshot payload.
func EncodeSnapshot(s *Snapshot) []byte {
	e := NewEncoder()
	e.WriteUvarint(s.Seq)
	EncodeTree(e, s.Root)
	return e.Bytes()
}

// DecodeSnapshot decodes a FrameSnapshot payload.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	d := NewDecoder(data)
	seq, err := d.ReadUvarint()
	if err != nil {
		return nil, err
	}
	root, err := DecodeTree(d)
	if err != nil {
		return nil, err
	}
	if !d.EOF() {
		return nil, ErrTrailingBytes
	}
	return &Snapshot{Seq: seq, Root: root}, nil
}
