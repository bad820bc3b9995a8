package reactive

import (
	"time"

	"go.uber.org/multierr"
)

// execute runs a derived or effect node through its full cycle:
//
//	dispose last run's scope -> run cleanups LIFO -> clear dirty ->
//	run under tracking in a fresh scope -> relink edges
//
// A panic in the node function is recovered. Derived nodes cache it and
// re-raise it on read; for effects it is returned as a *RunError. Failures of
// the previous run's cleanups are returned as well.
func (rt *Runtime) execute(id NodeID) (err error) {
	gen := rt.nodes[id].gen
	kind := rt.nodes[id].kind

	err = rt.resetRun(id)
	if rt.nodes[id].gen != gen {
		// A cleanup disposed the node.
		return err
	}

	n := &rt.nodes[id]
	n.flags |= flagRunning
	n.flags &^= flagDirty
	hadErr := n.err != nil
	n.err = nil
	scope := rt.newOwner(n.owner)
	rt.owners[scope].runOf = id
	rt.nodes[id].scope = scope

	prev := rt.ctx
	rt.ctx = frame{consumer: id, owner: scope}
	start := time.Now()

	var changed, ok bool
	defer func() {
		var runErr error
		if !ok {
			runErr = newRunError(id, kind, recover())
		}
		deps := rt.ctx.deps
		rt.ctx = prev

		if rt.nodes[id].gen != gen {
			// Disposed from inside its own run.
			err = multierr.Append(err, runErr)
			return
		}
		n := &rt.nodes[id]
		n.flags &^= flagRunning
		n.flags |= flagInit
		rt.relink(id, deps)
		rt.releaseIfEmpty(id)

		if runErr != nil {
			// The turn is closed but nothing from the failed run is kept:
			// cleanups it registered run now instead of before the next run.
			cleanups := rt.nodes[id].cleanups
			rt.nodes[id].cleanups = nil
			runErr = multierr.Append(runErr, runCleanups(cleanups))
		}

		switch kind {
		case kindDerived:
			if runErr != nil {
				rt.nodes[id].err = runErr
				changed = true
			} else if hadErr {
				changed = true
			}
			if changed {
				rt.nodes[id].version++
			}
		case kindEffect:
			err = multierr.Append(err, runErr)
			rt.observeEffect(id, time.Since(start), runErr)
		}

		rt.recheck(id)
	}()

	changed = n.run()
	ok = true
	return err
}

// recheck marks id stale again if a dependency moved on while it ran, e.g.
// an effect that writes a cell it has already read.
func (rt *Runtime) recheck(id NodeID) {
	for _, e := range rt.nodes[id].deps {
		if rt.nodes[e.dep].version != e.version {
			rt.markStale(id)
			return
		}
	}
}

// resetRun disposes everything the previous run of id created and runs its
// cleanups in reverse registration order.
func (rt *Runtime) resetRun(id NodeID) error {
	var errs error
	if scope := rt.nodes[id].scope; scope != 0 {
		rt.nodes[id].scope = 0
		errs = multierr.Append(errs, rt.disposeOwner(scope))
	}
	cleanups := rt.nodes[id].cleanups
	rt.nodes[id].cleanups = nil
	return multierr.Append(errs, runCleanups(cleanups))
}

// releaseIfEmpty frees the run scope of id when the run created nothing.
func (rt *Runtime) releaseIfEmpty(id NodeID) {
	scope := rt.nodes[id].scope
	if scope == 0 {
		return
	}
	o := &rt.owners[scope]
	if len(o.children) == 0 && len(o.nodes) == 0 && len(o.cleanups) == 0 && o.values == nil {
		rt.nodes[id].scope = 0
		rt.freeOwner(scope)
	}
}

// addNodeCleanup registers fn on a running derived or effect node.
func (rt *Runtime) addNodeCleanup(id NodeID, fn func()) {
	n := &rt.nodes[id]
	n.cleanups = append(n.cleanups, fn)
}

// disposeNode releases a derived or effect node: its run scope and cleanups
// first, then its edges.
func (rt *Runtime) disposeNode(ref nodeRef) error {
	n := rt.lookup(ref)
	if n == nil {
		return nil
	}
	rt.detachFromOwner(n.owner, ref)
	var errs error
	if n.kind != kindCell {
		errs = rt.resetRun(ref.id)
		if !rt.alive(ref) {
			return errs
		}
	}
	rt.freeNode(ref.id)
	return errs
}
