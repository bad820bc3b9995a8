package reactive

import (
	"context"

	"go.uber.org/multierr"
)

// Cleanup is returned by effect and mount functions to undo their work.
// It runs before the next run and when the effect is disposed. Nil is
// allowed.
type Cleanup func()

// Continuation is the part of an async effect that runs after its suspension
// point. It runs later as a microtask, without dependency tracking.
type Continuation func() Cleanup

// Effect is a side-effecting subscriber. It runs once when created and again
// whenever a dependency it read during its last run changes.
type Effect struct {
	rt  *Runtime
	ref nodeRef
	fn  func() Cleanup
}

// CreateEffect creates an effect owned by the current owner and runs it
// immediately.
//
// Example:
//
//	rt.CreateEffect(func() reactive.Cleanup {
//	    fmt.Println("Count is:", count.Get())
//	    return nil
//	})
//
//	count.Set(5) // Prints: "Count is: 5"
func (rt *Runtime) CreateEffect(fn func() Cleanup) *Effect {
	e := &Effect{rt: rt, fn: fn}
	e.ref = rt.allocNode(kindEffect, e.run)

	rt.enter()
	rt.fail(rt.execute(e.ref.id))
	rt.leaveAndReport()
	return e
}

// CreateAsyncEffect creates an effect whose body suspends. Reads made by fn
// before it returns are tracked; the returned continuation runs afterwards as
// a microtask and its reads are not tracked.
//
// ctx is cancelled when the effect re-runs or is disposed, and the pending
// continuation of a cancelled run is skipped. Work that finishes on another
// goroutine should hand its results back with Post.
func (rt *Runtime) CreateAsyncEffect(fn func(ctx context.Context) Continuation) *Effect {
	return rt.CreateEffect(func() Cleanup {
		ctx, cancel := context.WithCancel(context.Background())
		// Registered on the run's scope: this keeps the scope alive until the
		// continuation had its chance to adopt nodes into it.
		rt.OnDestroy(cancel)
		scope := rt.refOwner(rt.ctx.owner)

		next := fn(ctx)
		if next == nil {
			return nil
		}
		rt.queueMicrotask(microTask{owner: scope, fn: func() {
			if ctx.Err() != nil {
				return
			}
			if c := next(); c != nil {
				rt.addOwnerCleanup(scope.id, c)
			}
		}})
		return nil
	})
}

func (e *Effect) run() bool {
	if c := e.fn(); c != nil {
		e.rt.OnCleanup(c)
	}
	return false
}

// ID returns the arena identifier of the effect.
func (e *Effect) ID() NodeID {
	return e.ref.id
}

// IsDisposed reports whether the effect was disposed.
func (e *Effect) IsDisposed() bool {
	return !e.rt.alive(e.ref)
}

// Dispose stops the effect: everything its last run created is disposed and
// its cleanups run LIFO. Safe to call from inside the effect itself and more
// than once.
func (e *Effect) Dispose() error {
	rt := e.rt
	if !rt.alive(e.ref) {
		return nil
	}
	rt.enter()
	err := rt.disposeNode(e.ref)
	return multierr.Append(err, rt.leave())
}
