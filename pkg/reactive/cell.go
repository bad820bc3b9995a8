package reactive

import "reflect"

// Cell is a reactive value container.
// Reading a Cell inside a derived computation or an effect records a
// dependency; writing a different value marks every dependent dirty.
type Cell[T any] struct {
	rt  *Runtime
	ref nodeRef

	// value is the current cell value.
	value T

	// equal decides whether a write changes the value.
	// If nil, uses defaultEquals.
	equal func(T, T) bool
}

// CellOption configures a Cell or a Derived.
type CellOption[T any] func(*func(T, T) bool)

// WithEquals sets a custom equality function.
// This is useful for custom types where reflect.DeepEqual is too expensive
// or has incorrect semantics.
func WithEquals[T any](fn func(T, T) bool) CellOption[T] {
	return func(eq *func(T, T) bool) {
		*eq = fn
	}
}

// NewCell creates a cell owned by the current owner.
func NewCell[T any](rt *Runtime, initial T, opts ...CellOption[T]) *Cell[T] {
	c := &Cell[T]{rt: rt, value: initial}
	for _, opt := range opts {
		opt(&c.equal)
	}
	c.ref = rt.allocNode(kindCell, nil)
	return c
}

// Get returns the current value and records a dependency for the running
// derived node or effect, if any.
func (c *Cell[T]) Get() T {
	if c.rt.alive(c.ref) {
		c.rt.track(c.ref)
	}
	return c.value
}

// Peek returns the current value without recording a dependency.
func (c *Cell[T]) Peek() T {
	return c.value
}

// Set stores value and notifies dependents if it differs from the current
// value. Writes are visible to later reads immediately; effects run when the
// enclosing batch closes, or right away outside a batch.
// Writes to a disposed cell are ignored.
func (c *Cell[T]) Set(value T) {
	rt := c.rt
	n := rt.lookup(c.ref)
	if n == nil {
		return
	}
	if rt.ctx.consumer != 0 && rt.nodes[rt.ctx.consumer].kind == kindDerived && rt.readsInFrame(c.ref.id) {
		panic(newUsageError("R002", "cell.set", ErrWriteInDerived))
	}
	if c.equals(c.value, value) {
		return
	}
	c.value = value
	n.version++

	rt.enter()
	rt.notify(c.ref.id)
	rt.leaveAndReport()
}

// Update replaces the value with fn applied to the current value.
// The current value is read without tracking.
func (c *Cell[T]) Update(fn func(T) T) {
	c.Set(fn(c.value))
}

// ID returns the arena identifier of the cell.
func (c *Cell[T]) ID() NodeID {
	return c.ref.id
}

// Version returns how many times the cell value has changed.
func (c *Cell[T]) Version() uint64 {
	if n := c.rt.lookup(c.ref); n != nil {
		return n.version
	}
	return 0
}

// IsDisposed reports whether the cell was released by its owner.
func (c *Cell[T]) IsDisposed() bool {
	return !c.rt.alive(c.ref)
}

// Dispose releases the cell. Dependents keep their last value.
func (c *Cell[T]) Dispose() {
	if n := c.rt.lookup(c.ref); n != nil {
		c.rt.detachFromOwner(n.owner, c.ref)
		c.rt.freeNode(c.ref.id)
	}
}

func (c *Cell[T]) equals(a, b T) bool {
	if c.equal != nil {
		return c.equal(a, b)
	}
	return defaultEquals(a, b)
}

// defaultEquals provides type-appropriate equality checking.
// Uses == for common comparable types and pointers, and reflect.DeepEqual
// for slices, maps and structs.
func defaultEquals[T any](a, b T) bool {
	ai, bi := any(a), any(b)
	switch av := ai.(type) {
	case int:
		bv, ok := bi.(int)
		return ok && av == bv
	case int64:
		bv, ok := bi.(int64)
		return ok && av == bv
	case int32:
		bv, ok := bi.(int32)
		return ok && av == bv
	case uint:
		bv, ok := bi.(uint)
		return ok && av == bv
	case uint64:
		bv, ok := bi.(uint64)
		return ok && av == bv
	case float64:
		bv, ok := bi.(float64)
		return ok && av == bv
	case float32:
		bv, ok := bi.(float32)
		return ok && av == bv
	case string:
		bv, ok := bi.(string)
		return ok && av == bv
	case bool:
		bv, ok := bi.(bool)
		return ok && av == bv
	case nil:
		return bi == nil
	}

	switch reflect.ValueOf(ai).Kind() {
	case reflect.Pointer, reflect.Chan, reflect.UnsafePointer:
		return ai == bi
	}
	return reflect.DeepEqual(ai, bi)
}
