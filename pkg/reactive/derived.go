package reactive

// Derived is a cached computation that automatically tracks its dependencies.
// When any dependency changes, the derived node is marked dirty and will
// recompute on the next read, after bringing its own dirty dependencies up to
// date first. A read never observes a half-updated graph.
//
// Derived nodes are lazy: they only compute their value when Get() is called.
// If multiple cells change before a read, the derived node recomputes once,
// and not at all if none of the dependencies it read actually changed.
//
// A derived node can itself be a dependency, which allows chains of derived
// values.
type Derived[T any] struct {
	rt  *Runtime
	ref nodeRef

	// compute is the function that computes the value.
	compute func() T

	// value is the cached computed value.
	value T

	// equal decides whether a recomputation changed the value.
	equal func(T, T) bool
}

// NewDerived creates a derived node owned by the current owner.
// The computation is not run immediately; it runs lazily on first Get().
func NewDerived[T any](rt *Runtime, compute func() T, opts ...CellOption[T]) *Derived[T] {
	d := &Derived[T]{rt: rt, compute: compute}
	for _, opt := range opts {
		opt(&d.equal)
	}
	d.ref = rt.allocNode(kindDerived, d.recompute)
	return d
}

// Get returns the value, recomputing it first if necessary, and records a
// dependency for the running derived node or effect, if any.
// If the computation panicked, Get re-panics with a *RunError until one of
// its dependencies changes.
func (d *Derived[T]) Get() T {
	d.refresh()
	rt := d.rt
	n := rt.lookup(d.ref)
	if n == nil {
		return d.value
	}
	if n.flags&flagRunning != 0 {
		panic(newUsageError("R003", "derived.get", ErrCycle))
	}
	rt.track(d.ref)
	if err := rt.nodes[d.ref.id].err; err != nil {
		panic(err)
	}
	return d.value
}

// Peek returns the value without recording a dependency.
// Still triggers recomputation if the value is stale.
func (d *Derived[T]) Peek() T {
	d.refresh()
	n := d.rt.lookup(d.ref)
	if n == nil {
		return d.value
	}
	if n.flags&flagRunning != 0 {
		panic(newUsageError("R003", "derived.get", ErrCycle))
	}
	if n.err != nil {
		panic(n.err)
	}
	return d.value
}

// Dirty reports whether the next read will have to check its dependencies.
func (d *Derived[T]) Dirty() bool {
	n := d.rt.lookup(d.ref)
	return n != nil && n.flags&flagDirty != 0
}

// ID returns the arena identifier of the derived node.
func (d *Derived[T]) ID() NodeID {
	return d.ref.id
}

// Dispose releases the derived node and everything its last run created.
// Disposed nodes keep returning their last value.
func (d *Derived[T]) Dispose() error {
	return d.rt.disposeNode(d.ref)
}

func (d *Derived[T]) refresh() {
	rt := d.rt
	n := rt.lookup(d.ref)
	if n == nil || n.flags&flagDirty == 0 {
		return
	}
	rt.enter()
	defer rt.leaveAndReport()
	rt.resolve(d.ref.id)
}

// recompute runs the computation and reports whether the cached value changed.
func (d *Derived[T]) recompute() bool {
	v := d.compute()
	first := d.rt.nodes[d.ref.id].flags&flagInit == 0
	if !first && d.equals(d.value, v) {
		return false
	}
	d.value = v
	return true
}

func (d *Derived[T]) equals(a, b T) bool {
	if d.equal != nil {
		return d.equal(a, b)
	}
	return defaultEquals(a, b)
}
