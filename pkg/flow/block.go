package flow

import (
	"github.com/vango-dev/reactor/pkg/dom"
	"github.com/vango-dev/reactor/pkg/reactive"
	"github.com/vango-dev/reactor/pkg/reconcile"
)

// ErrDuplicateKey is reported when For sees the same key twice in one
// evaluation.
var ErrDuplicateKey = reactive.ErrDuplicateKey

// Host tells a block where its region lives.
type Host struct {
	// Platform creates the block's marker.
	Platform dom.Platform
	// Parent is the container holding the region.
	Parent dom.Container
	// Before is the node the region is inserted before. Nil appends.
	Before dom.Node
}

// Block is a mounted Show or For region.
type Block struct {
	rt     *reactive.Runtime
	parent dom.Container
	marker dom.Node
	owner  *reactive.Owner
	nodes  []dom.Node
}

func newBlock(rt *reactive.Runtime, host Host, label string) *Block {
	marker := host.Platform.CreateMarker(label)
	host.Parent.InsertBefore(marker, host.Before)

	b := &Block{
		rt:     rt,
		parent: host.Parent,
		marker: marker,
		owner:  rt.NewOwner(),
	}
	// Runs after branch and item owners are gone.
	b.owner.OnCleanup(b.detach)
	return b
}

// mount runs fn in the block's owner.
func (b *Block) mount(fn func()) {
	b.rt.HandleError(b.rt.RunWithOwner(b.owner, fn))
}

// update reconciles the region to target.
func (b *Block) update(target []dom.Node) {
	reconcile.ReconcileBefore(b.parent, b.nodes, target, b.marker)
	b.nodes = target
}

func (b *Block) detach() {
	for _, n := range b.nodes {
		b.parent.RemoveChild(n)
	}
	b.nodes = nil
	b.parent.RemoveChild(b.marker)
}

// Marker returns the node that ends the block's region.
func (b *Block) Marker() dom.Node {
	return b.marker
}

// Nodes returns the nodes currently mounted by the block, in order.
func (b *Block) Nodes() []dom.Node {
	out := make([]dom.Node, len(b.nodes))
	copy(out, b.nodes)
	return out
}

// Owner returns the scope that owns the block's branches or items.
func (b *Block) Owner() *reactive.Owner {
	return b.owner
}

// Dispose disposes every branch or item scope, then removes the block's
// nodes and marker from the container. Repeated calls are no-ops.
func (b *Block) Dispose() error {
	return b.owner.Dispose()
}
