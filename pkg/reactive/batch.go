package reactive

import (
	"time"

	"go.uber.org/multierr"
)

// Batch groups multiple cell writes into a single propagation pass.
// Writes inside fn are visible to reads immediately; effects that became
// dirty run once each, in the order they were first marked, when the
// outermost batch returns.
//
// Batches can be nested. Effects only flush when the outermost batch
// completes. The returned error aggregates every effect and cleanup failure
// of that flush.
//
// Example:
//
//	err := rt.Batch(func() {
//	    firstName.Set("John")
//	    lastName.Set("Doe")
//	    age.Set(30)
//	})
//	// Effects reading any of the three ran once
func (rt *Runtime) Batch(fn func()) (err error) {
	rt.enter()
	defer func() {
		err = multierr.Append(err, rt.leave())
	}()
	fn()
	return nil
}

// Batched is Batch for functions that return a value.
func Batched[T any](rt *Runtime, fn func() T) (T, error) {
	var v T
	err := rt.Batch(func() { v = fn() })
	return v, err
}

// schedule queues an effect for the next flush, once.
func (rt *Runtime) schedule(id NodeID) {
	n := &rt.nodes[id]
	if n.flags&flagScheduled != 0 {
		return
	}
	n.flags |= flagScheduled
	rt.pending = append(rt.pending, nodeRef{id: id, gen: n.gen})
}

// settle drains the pending effects, then mount callbacks, then microtasks,
// repeating until all queues are empty.
func (rt *Runtime) settle() error {
	if rt.settling {
		return nil
	}
	rt.settling = true
	defer func() { rt.settling = false }()

	rt.budget.reset()
	start := time.Now()
	rt.observeSettleStarted()

	var stats SettleStats
	errs := rt.takeErrs()
	for {
		switch {
		case len(rt.pending) > 0:
			n, err := rt.flush()
			stats.Effects += n
			errs = multierr.Append(errs, err)
		case len(rt.mounts) > 0:
			stats.Mounts += len(rt.mounts)
			errs = multierr.Append(errs, rt.runMounts())
		case len(rt.micro) > 0:
			stats.Microtasks += len(rt.micro)
			errs = multierr.Append(errs, rt.runMicrotasks())
		default:
			errs = multierr.Append(errs, rt.takeErrs())
			stats.Duration = time.Since(start)
			stats.Err = errs
			rt.observeSettleFinished(stats)
			if errs != nil {
				rt.log.Debug("reactive: settle finished with errors", "effects", stats.Effects, "error", errs)
			}
			return errs
		}
	}
}

// flush runs every pending effect whose dependencies actually changed.
// Effects queued while flushing are appended and run in the same pass.
// A failing effect does not stop the others.
func (rt *Runtime) flush() (ran int, errs error) {
	for i := 0; i < len(rt.pending); i++ {
		ref := rt.pending[i]
		n := rt.lookup(ref)
		if n == nil {
			continue
		}
		n.flags &^= flagScheduled
		if n.flags&flagDirty == 0 {
			continue
		}
		if err := rt.budget.take(); err != nil {
			errs = multierr.Append(errs, rt.dropPending(i))
			rt.log.Warn("reactive: effect budget exceeded, dropping queued effects",
				"limit", rt.budget.max, "dropped", len(rt.pending)-i)
			rt.pending = rt.pending[:0]
			return ran, multierr.Append(errs, err)
		}
		executed, err := rt.updateEffect(ref.id)
		if executed {
			ran++
		}
		errs = multierr.Append(errs, err)
	}
	rt.pending = rt.pending[:0]
	return ran, errs
}

// updateEffect re-runs a dirty effect if any dependency version advanced.
// Dirty derived dependencies are resolved first, in read order.
func (rt *Runtime) updateEffect(id NodeID) (executed bool, err error) {
	gen := rt.nodes[id].gen
	if rt.nodes[id].flags&flagInit != 0 {
		changed, checkErr := rt.checkDeps(id)
		if checkErr != nil {
			if rt.nodes[id].gen == gen {
				rt.nodes[id].flags &^= flagDirty
				checkErr = multierr.Append(checkErr, rt.releaseDeps(id))
			}
			return false, checkErr
		}
		if rt.nodes[id].gen != gen {
			return false, nil
		}
		if !changed {
			rt.nodes[id].flags &^= flagDirty
			return false, nil
		}
	}
	return true, rt.execute(id)
}

// checkDeps is depsChanged inside a failure boundary: resolving a derived
// dependency can panic on a cycle.
func (rt *Runtime) checkDeps(id NodeID) (changed bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = newRunError(id, kindEffect, r)
		}
	}()
	return rt.depsChanged(id), nil
}

// dropPending clears queue state of the effects that will not run.
func (rt *Runtime) dropPending(from int) (errs error) {
	for _, ref := range rt.pending[from:] {
		n := rt.lookup(ref)
		if n == nil {
			continue
		}
		dirty := n.flags&flagDirty != 0
		n.flags &^= flagScheduled | flagDirty
		if dirty {
			errs = multierr.Append(errs, rt.releaseDeps(ref.id))
		}
	}
	return errs
}

// releaseDeps resolves the dirty derived dependencies of an effect that is
// skipped without running. A derived node left dirty would swallow later
// notifications, and the effect would never be scheduled again.
func (rt *Runtime) releaseDeps(id NodeID) (errs error) {
	deps := append([]edge(nil), rt.nodes[id].deps...)
	for _, e := range deps {
		d := &rt.nodes[e.dep]
		if d.gen != e.gen || d.kind != kindDerived || d.flags&flagDirty == 0 {
			continue
		}
		errs = multierr.Append(errs, rt.tryResolve(e.dep))
	}
	return errs
}

func (rt *Runtime) tryResolve(id NodeID) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = newRunError(id, kindDerived, r)
		}
	}()
	rt.resolve(id)
	return nil
}

// DefaultMaxEffectRuns is the effect run limit of a settle unless
// WithMaxEffectRuns overrides it.
const DefaultMaxEffectRuns = 100_000

// effectBudget counts effect runs within one settle and trips when an effect
// storm (effects re-triggering each other) exceeds the limit.
type effectBudget struct {
	max  int
	used int
}

func (b *effectBudget) take() error {
	if b.max <= 0 {
		return nil
	}
	if b.used >= b.max {
		return newUsageError("R004", "flush", ErrBudgetExceeded)
	}
	b.used++
	return nil
}

func (b *effectBudget) reset() {
	b.used = 0
}
