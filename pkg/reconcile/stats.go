package reconcile

import "github.com/vango-dev/reactor/pkg/dom"

// Stats counts the child-list operations issued against a container.
type Stats struct {
	Inserts  int // InsertBefore calls, a fragment counts once
	Removes  int
	Replaces int
}

// Total returns the number of operations.
func (s Stats) Total() int { return s.Inserts + s.Removes + s.Replaces }

// Counting wraps a container and tallies the operations passed through it.
type Counting struct {
	dom.Container
	Stats Stats
}

// Count returns a counting wrapper around parent.
func Count(parent dom.Container) *Counting {
	return &Counting{Container: parent}
}

// InsertBefore implements dom.Container.
func (c *Counting) InsertBefore(node, ref dom.Node) {
	c.Stats.Inserts++
	c.Container.InsertBefore(node, ref)
}

// RemoveChild implements dom.Container.
func (c *Counting) RemoveChild(node dom.Node) {
	c.Stats.Removes++
	c.Container.RemoveChild(node)
}

// ReplaceChild implements dom.Container.
func (c *Counting) ReplaceChild(newChild, oldChild dom.Node) {
	c.Stats.Replaces++
	c.Container.ReplaceChild(newChild, oldChild)
}

// NewFragment implements dom.FragmentFactory when the wrapped container does.
func (c *Counting) NewFragment() dom.Container {
	if ff, ok := c.Container.(dom.FragmentFactory); ok {
		return ff.NewFragment()
	}
	return nil
}

// Reset zeroes the counters.
func (c *Counting) Reset() { c.Stats = Stats{} }
