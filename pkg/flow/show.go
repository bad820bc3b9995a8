package flow

import (
	"go.uber.org/multierr"

	"github.com/vango-dev/reactor/pkg/dom"
	"github.com/vango-dev/reactor/pkg/reactive"
)

// ShowProps configures a conditional block.
type ShowProps[D any] struct {
	// When selects the branch. It is the only tracked read of the block.
	When func() bool
	// Then produces the content shown while When is true.
	Then func() D
	// Else produces the content shown while When is false. Nil shows
	// nothing.
	Else func() D
	// Render turns produced content into a node. A nil node shows nothing.
	Render func(D) dom.Node
}

// Show mounts a conditional block in host.
//
// Whenever When changes value, the previous branch's owner is disposed and
// the new branch is produced untracked in a fresh owner. Re-evaluations that
// keep the branch do nothing.
func Show[D any](rt *reactive.Runtime, host Host, props ShowProps[D]) *Block {
	b := newBlock(rt, host, "show")

	var (
		branch  *reactive.Owner
		current bool
		mounted bool
	)
	b.mount(func() {
		rt.CreateEffect(func() reactive.Cleanup {
			show := props.When()
			if mounted && show == current {
				return nil
			}
			mounted, current = true, show

			produce := props.Else
			if show {
				produce = props.Then
			}

			var target []dom.Node
			rt.HandleError(rt.RunWithOwner(b.owner, func() {
				if branch != nil {
					rt.HandleError(branch.Dispose())
					branch = nil
				}
				if produce == nil {
					return
				}
				branch = rt.NewOwner()
				err := rt.TryWithOwner(branch, func() {
					if n := props.Render(produce()); n != nil {
						target = []dom.Node{n}
					}
				})
				if err != nil {
					// The region is emptied and the branch is produced
					// again on the next evaluation.
					rt.HandleError(multierr.Append(err, branch.Dispose()))
					branch, target, mounted = nil, nil, false
				}
			}))
			b.update(target)
			return nil
		})
	})
	return b
}
