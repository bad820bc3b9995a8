package reactive

import (
	"runtime/debug"

	"go.uber.org/multierr"
)

// OwnerID identifies an ownership scope inside its Runtime's arena.
// The zero value means "no owner".
type OwnerID uint32

// owner is a single slot of the ownership arena.
type owner struct {
	gen  uint32
	live bool

	// disposing is set for the whole duration of a disposal so that reentrant
	// calls return immediately.
	disposing bool

	parent   OwnerID
	children []OwnerID

	// nodes are the cells, derived nodes and effects created in this scope.
	nodes []nodeRef

	// cleanups are registered with OnCleanup/OnDestroy and run LIFO.
	cleanups []func()

	// runOf is the derived/effect node whose run created this scope, if any.
	runOf NodeID

	// values holds context values provided in this scope.
	values map[any]any
}

// ownerRef is a generation-checked handle to an owner slot.
type ownerRef struct {
	id  OwnerID
	gen uint32
}

// newOwner allocates a scope under parent. A disposed parent yields a
// detached scope.
func (rt *Runtime) newOwner(parent OwnerID) OwnerID {
	var id OwnerID
	if n := len(rt.freeOwners); n > 0 {
		id = rt.freeOwners[n-1]
		rt.freeOwners = rt.freeOwners[:n-1]
	} else {
		rt.owners = append(rt.owners, owner{})
		id = OwnerID(len(rt.owners) - 1)
	}
	if parent != 0 && !rt.ownerLive(parent) {
		rt.log.Debug("reactive: owner created under disposed owner", "parent", parent)
		parent = 0
	}

	o := &rt.owners[id]
	o.live = true
	o.parent = parent
	if parent != 0 {
		p := &rt.owners[parent]
		p.children = append(p.children, id)
	}
	rt.liveOwners++
	return id
}

// ownerLive reports whether id names a scope that still accepts registrations.
func (rt *Runtime) ownerLive(id OwnerID) bool {
	if id == 0 || int(id) >= len(rt.owners) {
		return false
	}
	o := &rt.owners[id]
	return o.live && !o.disposing
}

func (rt *Runtime) ownerAlive(ref ownerRef) bool {
	return rt.ownerLive(ref.id) && rt.owners[ref.id].gen == ref.gen
}

func (rt *Runtime) refOwner(id OwnerID) ownerRef {
	return ownerRef{id: id, gen: rt.owners[id].gen}
}

// freeOwner returns an emptied slot to the free list.
func (rt *Runtime) freeOwner(id OwnerID) {
	o := &rt.owners[id]
	if parent := o.parent; parent != 0 {
		rt.detachChild(parent, id)
	}
	if n := o.runOf; n != 0 && rt.nodes[n].scope == id {
		rt.nodes[n].scope = 0
	}
	if rt.ctx.owner == id {
		rt.ctx.owner = 0
	}
	*o = owner{gen: o.gen + 1}
	rt.freeOwners = append(rt.freeOwners, id)
	rt.liveOwners--
}

func (rt *Runtime) detachChild(parent, child OwnerID) {
	p := &rt.owners[parent]
	for i := len(p.children) - 1; i >= 0; i-- {
		if p.children[i] == child {
			p.children = append(p.children[:i], p.children[i+1:]...)
			return
		}
	}
}

// detachFromOwner forgets ref in its owner's node list. Recently created
// nodes are disposed most often, so the search runs from the end.
func (rt *Runtime) detachFromOwner(id OwnerID, ref nodeRef) {
	if id == 0 || !rt.owners[id].live {
		return
	}
	o := &rt.owners[id]
	for i := len(o.nodes) - 1; i >= 0; i-- {
		if o.nodes[i] == ref {
			o.nodes = append(o.nodes[:i], o.nodes[i+1:]...)
			return
		}
	}
}

// disposeOwner tears a scope down: child scopes in reverse creation order,
// then owned nodes in reverse creation order, then cleanups LIFO. Every
// callback runs in its own failure boundary; the collected failures are
// returned. Disposing a scope that is already being disposed is a no-op.
func (rt *Runtime) disposeOwner(id OwnerID) error {
	if id == 0 || int(id) >= len(rt.owners) {
		return nil
	}
	o := &rt.owners[id]
	if !o.live || o.disposing {
		return nil
	}
	o.disposing = true
	if o.parent != 0 {
		rt.detachChild(o.parent, id)
		rt.owners[id].parent = 0
	}

	var errs error
	for {
		children := rt.owners[id].children
		if len(children) == 0 {
			break
		}
		child := children[len(children)-1]
		rt.owners[id].children = children[:len(children)-1]
		errs = multierr.Append(errs, rt.disposeOwner(child))
	}

	for {
		nodes := rt.owners[id].nodes
		if len(nodes) == 0 {
			break
		}
		ref := nodes[len(nodes)-1]
		rt.owners[id].nodes = nodes[:len(nodes)-1]
		errs = multierr.Append(errs, rt.disposeNode(ref))
	}

	for {
		cleanups := rt.owners[id].cleanups
		if len(cleanups) == 0 {
			break
		}
		fn := cleanups[len(cleanups)-1]
		rt.owners[id].cleanups = cleanups[:len(cleanups)-1]
		if fn != nil {
			errs = multierr.Append(errs, safeCall(fn))
		}
	}

	rt.freeOwner(id)
	rt.observeOwnerDisposed(id, errs)
	return errs
}

// addOwnerCleanup registers fn on a scope. On a scope that is being disposed
// fn runs immediately; with no usable scope it is dropped.
func (rt *Runtime) addOwnerCleanup(id OwnerID, fn func()) {
	switch {
	case rt.ownerLive(id):
		o := &rt.owners[id]
		o.cleanups = append(o.cleanups, fn)
	case id != 0 && int(id) < len(rt.owners) && rt.owners[id].disposing:
		rt.fail(safeCall(fn))
	default:
		rt.log.Debug("reactive: cleanup registered outside of any owner is never run")
	}
}

// Owner is a handle to an ownership scope. Owners form a tree: disposing an
// owner disposes every scope, node and cleanup created under it.
type Owner struct {
	rt  *Runtime
	ref ownerRef
}

// NewOwner creates a scope under the current owner, or a detached scope at
// the top level.
func (rt *Runtime) NewOwner() *Owner {
	id := rt.newOwner(rt.ctx.owner)
	return &Owner{rt: rt, ref: rt.refOwner(id)}
}

// CurrentOwner returns the scope that adopts nodes created right now, or nil
// at the top level.
func (rt *Runtime) CurrentOwner() *Owner {
	if !rt.ownerLive(rt.ctx.owner) {
		return nil
	}
	return &Owner{rt: rt, ref: rt.refOwner(rt.ctx.owner)}
}

// RunWithOwner runs fn with o as the current owner and no tracking consumer,
// inside a batch. Nodes, scopes and cleanups created by fn belong to o.
// Running on a disposed owner returns ErrDisposed without calling fn.
func (rt *Runtime) RunWithOwner(o *Owner, fn func()) error {
	if o == nil || !rt.ownerAlive(o.ref) {
		return newUsageError("R005", "owner.run", ErrDisposed)
	}
	return rt.runScoped(o.ref.id, fn)
}

// TryWithOwner is RunWithOwner with a failure boundary: a panic in fn is
// recovered into a *RunError of kind "scope" and returned together with the
// settle error. Work queued by fn before it failed still settles.
func (rt *Runtime) TryWithOwner(o *Owner, fn func()) error {
	var runErr error
	err := rt.RunWithOwner(o, func() {
		defer func() {
			if r := recover(); r != nil {
				runErr = &RunError{Kind: "scope", Value: r, Stack: debug.Stack()}
			}
		}()
		fn()
	})
	return multierr.Append(runErr, err)
}

// runScoped runs fn inside an implicit batch with owner as the current scope.
// A panic in fn leaves the queued work for the next settle.
func (rt *Runtime) runScoped(owner OwnerID, fn func()) (err error) {
	rt.enter()
	prev := rt.ctx
	rt.ctx = frame{owner: owner}
	panicking := true
	defer func() {
		rt.ctx = prev
		if panicking {
			rt.batchDepth--
			return
		}
		err = rt.leave()
	}()
	fn()
	panicking = false
	return nil
}

// ID returns the arena identifier of the scope.
func (o *Owner) ID() OwnerID {
	return o.ref.id
}

// Parent returns the enclosing scope, or nil for a detached scope.
func (o *Owner) Parent() *Owner {
	if !o.rt.ownerAlive(o.ref) {
		return nil
	}
	parent := o.rt.owners[o.ref.id].parent
	if parent == 0 {
		return nil
	}
	return &Owner{rt: o.rt, ref: o.rt.refOwner(parent)}
}

// IsDisposed reports whether the scope was disposed.
func (o *Owner) IsDisposed() bool {
	return !o.rt.ownerAlive(o.ref)
}

// OnCleanup registers fn to run when the scope is disposed. On a disposed
// scope fn is dropped.
func (o *Owner) OnCleanup(fn func()) {
	if fn == nil {
		return
	}
	if !o.rt.ownerAlive(o.ref) && !o.disposing() {
		return
	}
	o.rt.addOwnerCleanup(o.ref.id, fn)
}

func (o *Owner) disposing() bool {
	ow := &o.rt.owners[o.ref.id]
	return ow.gen == o.ref.gen && ow.disposing
}

// Dispose disposes the scope and everything beneath it. It may be called from
// inside a callback of the scope itself; repeated calls are no-ops.
func (o *Owner) Dispose() error {
	if !o.rt.ownerAlive(o.ref) {
		return nil
	}
	rt := o.rt
	rt.enter()
	err := rt.disposeOwner(o.ref.id)
	return multierr.Append(err, rt.leave())
}

// OnCleanup registers fn on the running derived or effect, where it runs
// before the next run or on disposal, or on the current owner when no
// computation is running.
func (rt *Runtime) OnCleanup(fn func()) {
	if fn == nil {
		return
	}
	if c := rt.ctx.consumer; c != 0 {
		rt.addNodeCleanup(c, fn)
		return
	}
	rt.addOwnerCleanup(rt.ctx.owner, fn)
}

// OnDestroy registers fn on the current owner, even while a computation runs.
// Inside a derived or effect run the owner is that run's scope.
func (rt *Runtime) OnDestroy(fn func()) {
	if fn == nil {
		return
	}
	rt.addOwnerCleanup(rt.ctx.owner, fn)
}

// Root is a detached ownership scope created by CreateRoot.
type Root[T any] struct {
	// Value is what the root function returned.
	Value T

	owner *Owner
}

// CreateRoot runs fn in a new detached scope, inside a batch, and returns the
// root. fn receives the root's dispose function. The error aggregates
// failures of the effects flushed when fn returns.
//
// Example:
//
//	root, err := reactive.CreateRoot(rt, func(dispose func() error) *reactive.Cell[int] {
//	    count := reactive.NewCell(rt, 0)
//	    rt.CreateEffect(func() reactive.Cleanup {
//	        fmt.Println(count.Get())
//	        return nil
//	    })
//	    return count
//	})
//	defer root.Dispose()
func CreateRoot[T any](rt *Runtime, fn func(dispose func() error) T) (*Root[T], error) {
	id := rt.newOwner(0)
	r := &Root[T]{owner: &Owner{rt: rt, ref: rt.refOwner(id)}}
	err := rt.runScoped(id, func() {
		r.Value = fn(r.Dispose)
	})
	return r, err
}

// Owner returns the root scope.
func (r *Root[T]) Owner() *Owner {
	return r.owner
}

// Dispose disposes the root scope. Idempotent.
func (r *Root[T]) Dispose() error {
	return r.owner.Dispose()
}

// Context is a value provided by an owner to every scope beneath it.
type Context[T any] struct {
	def T
}

// NewContext creates a context whose Use returns def when nothing is
// provided.
func NewContext[T any](def T) *Context[T] {
	return &Context[T]{def: def}
}

// Provide sets the context value on the current owner.
func (c *Context[T]) Provide(rt *Runtime, v T) {
	id := rt.ctx.owner
	if !rt.ownerLive(id) {
		rt.log.Debug("reactive: context provided outside of any owner is ignored")
		return
	}
	o := &rt.owners[id]
	if o.values == nil {
		o.values = make(map[any]any)
	}
	o.values[c] = v
}

// Use returns the value provided by the nearest enclosing owner.
func (c *Context[T]) Use(rt *Runtime) T {
	for id := rt.ctx.owner; id != 0; id = rt.owners[id].parent {
		if v, ok := rt.owners[id].values[c]; ok {
			return v.(T)
		}
	}
	return c.def
}
