package reactive

// frame is the execution context of the runtime: which node, if any, is
// collecting dependencies and which owner adopts newly created nodes.
// It is saved and restored around every nested run instead of living in
// goroutine-local storage, so independent runtimes never share state.
type frame struct {
	// consumer is the derived/effect node currently executing, or 0 when
	// reads are untracked.
	consumer NodeID

	// owner adopts nodes, owners and cleanups created in this frame.
	owner OwnerID

	// deps collects the edges read during this run.
	deps []edge

	// index speeds up dedupe once deps grows past a few entries.
	index map[NodeID]struct{}
}

// track records a read of ref by the current consumer. Repeated reads in the
// same run are idempotent.
func (rt *Runtime) track(ref nodeRef) {
	f := &rt.ctx
	if f.consumer == 0 || f.consumer == ref.id {
		return
	}
	if f.index != nil {
		if _, ok := f.index[ref.id]; ok {
			return
		}
	} else {
		for _, e := range f.deps {
			if e.dep == ref.id {
				return
			}
		}
	}

	f.deps = append(f.deps, edge{
		dep:     ref.id,
		gen:     ref.gen,
		version: rt.nodes[ref.id].version,
	})

	if f.index != nil {
		f.index[ref.id] = struct{}{}
	} else if len(f.deps) > 8 {
		f.index = make(map[NodeID]struct{}, len(f.deps)*2)
		for _, e := range f.deps {
			f.index[e.dep] = struct{}{}
		}
	}
}

// readsInFrame reports whether the current consumer already read id during
// this run, or read it on its previous run.
func (rt *Runtime) readsInFrame(id NodeID) bool {
	f := &rt.ctx
	if f.consumer == 0 {
		return false
	}
	if f.index != nil {
		if _, ok := f.index[id]; ok {
			return true
		}
	} else {
		for _, e := range f.deps {
			if e.dep == id {
				return true
			}
		}
	}
	for _, e := range rt.nodes[f.consumer].deps {
		if e.dep == id {
			return true
		}
	}
	return false
}

// Untracked runs fn without recording dependency reads. The previous
// consumer is restored even if fn panics.
//
// Example:
//
//	rt.Untracked(func() {
//	    // Reading count here won't subscribe the running effect
//	    fmt.Println("Current value:", count.Get())
//	})
func (rt *Runtime) Untracked(fn func()) {
	prev := rt.ctx.consumer
	rt.ctx.consumer = 0
	defer func() { rt.ctx.consumer = prev }()
	fn()
}

// Untrack runs fn without recording dependency reads and returns its result.
func Untrack[T any](rt *Runtime, fn func() T) T {
	var v T
	rt.Untracked(func() { v = fn() })
	return v
}

// Tracking reports whether reads are currently recorded as dependencies.
func (rt *Runtime) Tracking() bool {
	return rt.ctx.consumer != 0
}
