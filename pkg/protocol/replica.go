package protocol

import (
	"errors"
	"fmt"

	"github.com/vango-dev/reactor/pkg/dom"
)

// Replica errors.
var (
	ErrNoSnapshot   = errors.New("protocol: mutations before snapshot")
	ErrSequenceGap  = errors.New("protocol: mutation batch out of sequence")
	ErrUnknownNode  = errors.New("protocol: unknown node id")
	ErrNodeMismatch = errors.New("protocol: node has the wrong kind for the mutation")
)

// Replica rebuilds a remote tree from a snapshot followed by mutation
// batches. It is what a viewer runs, and what tests use to check that a
// stream reproduces the source tree.
type Replica struct {
	doc   *dom.Document
	root  dom.Node
	nodes map[uint64]dom.Node
	seq   uint64
}

// NewReplica creates an empty replica.
func NewReplica() *Replica {
	return &Replica{doc: dom.NewDocument()}
}

// Load replaces the replica with the snapshot tree and its sequence.
func (r *Replica) Load(s *Snapshot) {
	r.nodes = make(map[uint64]dom.Node)
	r.root = r.build(s.Root)
	r.seq = s.Seq
}

// Root returns the replicated root, or nil before Load.
func (r *Replica) Root() dom.Node {
	return r.root
}

// Seq returns the sequence number of the last applied batch.
func (r *Replica) Seq() uint64 {
	return r.seq
}

// Markup serializes the replicated tree.
func (r *Replica) Markup() string {
	if r.root == nil {
		return ""
	}
	return dom.Markup(r.root)
}

// Apply applies one batch. Batches must arrive in sequence.
func (r *Replica) Apply(b *Batch) (err error) {
	if r.root == nil {
		return ErrNoSnapshot
	}
	if b.Seq != r.seq+1 {
		return fmt.Errorf("%w: got %d after %d", ErrSequenceGap, b.Seq, r.seq)
	}
	defer func() {
		// The platform panics on structural misuse, which here means the
		// stream and the replica disagree.
		if rec := recover(); rec != nil {
			if e, ok := rec.(error); ok {
				err = e
				return
			}
			err = fmt.Errorf("protocol: apply: %v", rec)
		}
	}()
	for i := range b.Mutations {
		if err := r.apply(&b.Mutations[i]); err != nil {
			return fmt.Errorf("mutation %d (%s): %w", i, b.Mutations[i].Op, err)
		}
	}
	r.seq = b.Seq
	return nil
}

func (r *Replica) apply(m *Mutation) error {
	switch m.Op {
	case dom.OpInsert:
		parent, err := r.container(m.Parent)
		if err != nil {
			return err
		}
		var ref dom.Node
		if m.Ref != 0 {
			if ref, err = r.node(m.Ref); err != nil {
				return err
			}
		}
		parent.InsertBefore(r.resolve(m.Tree), ref)
	case dom.OpRemove:
		parent, err := r.container(m.Parent)
		if err != nil {
			return err
		}
		n, err := r.node(m.Target)
		if err != nil {
			return err
		}
		parent.RemoveChild(n)
	case dom.OpReplace:
		parent, err := r.container(m.Parent)
		if err != nil {
			return err
		}
		old, err := r.node(m.Old)
		if err != nil {
			return err
		}
		parent.ReplaceChild(r.resolve(m.Tree), old)
	case dom.OpSetText:
		n, err := r.node(m.Target)
		if err != nil {
			return err
		}
		t, ok := n.(*dom.Text)
		if !ok {
			return ErrNodeMismatch
		}
		t.SetData(m.Value)
	case dom.OpSetAttr, dom.OpRemoveAttr:
		n, err := r.node(m.Target)
		if err != nil {
			return err
		}
		e, ok := n.(*dom.Element)
		if !ok {
			return ErrNodeMismatch
		}
		if m.Op == dom.OpSetAttr {
			e.SetAttr(m.Name, m.Value)
		} else {
			e.RemoveAttr(m.Name)
		}
	default:
		return fmt.Errorf("protocol: unknown op 0x%02x", byte(m.Op))
	}
	return nil
}

func (r *Replica) node(id uint64) (dom.Node, error) {
	n, ok := r.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownNode, id)
	}
	return n, nil
}

func (r *Replica) container(id uint64) (dom.Container, error) {
	n, err := r.node(id)
	if err != nil {
		return nil, err
	}
	c, ok := n.(dom.Container)
	if !ok {
		return nil, ErrNodeMismatch
	}
	return c, nil
}

// resolve returns the node for desc. A node still in the live tree is moved
// as is; anything else is rebuilt, since mutations made to it while it was
// detached were never sent.
func (r *Replica) resolve(desc *NodeDesc) dom.Node {
	if n, ok := r.nodes[desc.ID]; ok && dom.Contains(r.root, n) {
		return n
	}
	return r.build(desc)
}

func (r *Replica) build(desc *NodeDesc) dom.Node {
	var n dom.Node
	switch desc.Kind {
	case dom.KindElement:
		e := r.doc.CreateElement(desc.Tag)
		for _, a := range desc.Attrs {
			e.SetAttr(a.Name, a.Value)
		}
		for _, c := range desc.Children {
			e.AppendChild(r.build(c))
		}
		n = e
	case dom.KindFragment:
		f := r.doc.CreateFragment()
		for _, c := range desc.Children {
			f.AppendChild(r.build(c))
		}
		n = f
	case dom.KindText:
		n = r.doc.CreateText(desc.Data)
	default:
		n = r.doc.CreateComment(desc.Data)
	}
	r.nodes[desc.ID] = n
	return n
}
