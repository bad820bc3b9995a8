package reactive

// NodeID identifies a reactive node inside its Runtime's arena.
// The zero value never refers to a live node.
type NodeID uint32

// nodeKind is the closed set of reactive node variants.
type nodeKind uint8

const (
	kindCell nodeKind = iota + 1
	kindDerived
	kindEffect
)

// String returns a human-readable name for the node kind.
func (k nodeKind) String() string {
	switch k {
	case kindCell:
		return "cell"
	case kindDerived:
		return "derived"
	case kindEffect:
		return "effect"
	default:
		return "free"
	}
}

type nodeFlags uint8

const (
	// flagDirty marks a node whose dependencies may have changed.
	flagDirty nodeFlags = 1 << iota
	// flagScheduled marks an effect that sits in the pending queue.
	flagScheduled
	// flagRunning marks a derived or effect whose function is executing.
	flagRunning
	// flagInit marks a derived or effect that has completed at least one run.
	flagInit
)

// nodeRef is a generation-checked handle to an arena slot.
type nodeRef struct {
	id  NodeID
	gen uint32
}

// edge records a dependency read during a run and the version observed.
type edge struct {
	dep     NodeID
	gen     uint32
	version uint64
}

// node is a single arena slot. Typed state (values, functions) lives in the
// generic handles; the slot only holds what the scheduler needs.
type node struct {
	kind    nodeKind
	flags   nodeFlags
	gen     uint32
	version uint64

	// deps are the dependencies read during the last run (derived, effect).
	deps []edge

	// subs are the derived/effect nodes that read this node (cell, derived).
	subs []NodeID

	// owner is the scope that disposes this node.
	owner OwnerID

	// scope owns everything created during the last run (derived, effect).
	scope OwnerID

	// cleanups registered during the last run, executed LIFO.
	cleanups []func()

	// run executes the node function and reports whether the value changed.
	run func() bool

	// err caches a panic raised by the last derived computation.
	err error
}

// allocNode reserves an arena slot for a node owned by the current owner.
func (rt *Runtime) allocNode(kind nodeKind, run func() bool) nodeRef {
	var id NodeID
	if n := len(rt.freeNodes); n > 0 {
		id = rt.freeNodes[n-1]
		rt.freeNodes = rt.freeNodes[:n-1]
	} else {
		rt.nodes = append(rt.nodes, node{})
		id = NodeID(len(rt.nodes) - 1)
	}

	owner := rt.ctx.owner
	if owner != 0 && !rt.ownerLive(owner) {
		rt.log.Debug("reactive: node created under disposed owner", "kind", kind.String(), "owner", owner)
		owner = 0
	}

	n := &rt.nodes[id]
	n.kind = kind
	n.run = run
	n.owner = owner
	if kind != kindCell {
		n.flags = flagDirty
	}
	ref := nodeRef{id: id, gen: n.gen}
	if owner != 0 {
		o := &rt.owners[owner]
		o.nodes = append(o.nodes, ref)
	}
	rt.liveNodes++
	return ref
}

// lookup returns the slot for ref, or nil if it was freed.
func (rt *Runtime) lookup(ref nodeRef) *node {
	if ref.id == 0 || int(ref.id) >= len(rt.nodes) {
		return nil
	}
	n := &rt.nodes[ref.id]
	if n.gen != ref.gen || n.kind == 0 {
		return nil
	}
	return n
}

func (rt *Runtime) alive(ref nodeRef) bool {
	return rt.lookup(ref) != nil
}

// freeNode unlinks every edge of the slot and returns it to the free list.
func (rt *Runtime) freeNode(id NodeID) {
	n := &rt.nodes[id]
	for _, e := range n.deps {
		rt.removeSub(e.dep, e.gen, id)
	}
	subs := n.subs
	n.subs = nil
	for _, s := range subs {
		rt.removeDep(s, id)
	}

	n = &rt.nodes[id]
	*n = node{gen: n.gen + 1}
	rt.freeNodes = append(rt.freeNodes, id)
	rt.liveNodes--
}

func (rt *Runtime) addSub(dep NodeID, gen uint32, sub NodeID) {
	d := &rt.nodes[dep]
	if d.gen != gen || d.kind == 0 {
		return
	}
	for _, s := range d.subs {
		if s == sub {
			return
		}
	}
	d.subs = append(d.subs, sub)
}

// removeSub keeps the remaining subscribers in insertion order so that
// notification order stays deterministic.
func (rt *Runtime) removeSub(dep NodeID, gen uint32, sub NodeID) {
	d := &rt.nodes[dep]
	if d.gen != gen || d.kind == 0 {
		return
	}
	for i, s := range d.subs {
		if s == sub {
			d.subs = append(d.subs[:i], d.subs[i+1:]...)
			return
		}
	}
}

// removeDep copies instead of shifting in place: depsChanged may be iterating
// the old backing array while a resolution frees one of its subscribers.
func (rt *Runtime) removeDep(sub, dep NodeID) {
	s := &rt.nodes[sub]
	for i, e := range s.deps {
		if e.dep == dep {
			s.deps = append(s.deps[:i:i], s.deps[i+1:]...)
			return
		}
	}
}

// relink replaces the dependency list of id with the edges collected during
// its latest run. Edges that were not read again are unlinked.
func (rt *Runtime) relink(id NodeID, next []edge) {
	prev := rt.nodes[id].deps
	inNext := newDepIndex(next)
	inPrev := newDepIndex(prev)

	for _, e := range prev {
		if !inNext.has(e.dep) {
			rt.removeSub(e.dep, e.gen, id)
		}
	}

	live := next[:0]
	for _, e := range next {
		d := &rt.nodes[e.dep]
		if d.gen != e.gen || d.kind == 0 {
			continue
		}
		if !inPrev.has(e.dep) {
			rt.addSub(e.dep, e.gen, id)
		}
		live = append(live, e)
	}
	rt.nodes[id].deps = live
}

// depIndex answers membership queries over an edge list, switching to a map
// once the list is long enough for linear scans to hurt.
type depIndex struct {
	list []edge
	set  map[NodeID]struct{}
}

func newDepIndex(list []edge) depIndex {
	idx := depIndex{list: list}
	if len(list) > 8 {
		idx.set = make(map[NodeID]struct{}, len(list))
		for _, e := range list {
			idx.set[e.dep] = struct{}{}
		}
	}
	return idx
}

func (d depIndex) has(id NodeID) bool {
	if d.set != nil {
		_, ok := d.set[id]
		return ok
	}
	for _, e := range d.list {
		if e.dep == id {
			return true
		}
	}
	return false
}

// markStale flags id dirty and walks its dependents. Effects are queued for
// the next flush; derived nodes are recomputed only when read.
func (rt *Runtime) markStale(id NodeID) {
	n := &rt.nodes[id]
	if n.flags&flagDirty != 0 {
		return
	}
	n.flags |= flagDirty
	switch n.kind {
	case kindDerived:
		for _, s := range n.subs {
			rt.markStale(s)
		}
	case kindEffect:
		rt.schedule(id)
	}
}

// notify marks every dependent of a changed cell or derived node.
func (rt *Runtime) notify(id NodeID) {
	for _, s := range rt.nodes[id].subs {
		rt.markStale(s)
	}
}

// resolve brings a dirty derived node up to date. Dependencies are resolved
// in read order and the node only recomputes if one of them moved on.
func (rt *Runtime) resolve(id NodeID) {
	n := &rt.nodes[id]
	if n.flags&flagDirty == 0 {
		return
	}
	if n.flags&flagRunning != 0 {
		panic(newUsageError("R003", "derived.get", ErrCycle))
	}
	if n.flags&flagInit != 0 && !rt.depsChanged(id) {
		rt.nodes[id].flags &^= flagDirty
		return
	}
	rt.fail(rt.execute(id))
}

// depsChanged reports whether any dependency of id advanced past the version
// recorded on its edge. Stops at the first change.
func (rt *Runtime) depsChanged(id NodeID) bool {
	deps := rt.nodes[id].deps
	for _, e := range deps {
		d := &rt.nodes[e.dep]
		if d.gen != e.gen || d.kind == 0 {
			return true
		}
		if d.kind == kindDerived {
			rt.resolve(e.dep)
			d = &rt.nodes[e.dep]
		}
		if d.version != e.version {
			return true
		}
	}
	return false
}
