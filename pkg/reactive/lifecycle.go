package reactive

import (
	"runtime/debug"

	"go.uber.org/multierr"
)

// mountTask is an OnMount callback waiting for the settle to reach the mount
// phase.
type mountTask struct {
	owner ownerRef
	fn    func() Cleanup
}

// microTask is deferred work that runs after effects and mounts.
type microTask struct {
	owner ownerRef
	fn    func()
}

// OnMount queues fn to run once the current synchronous work and its effect
// flush are done, under the current owner and without tracking. It is
// skipped if the owner is disposed before then. A returned Cleanup runs when
// the owner is disposed.
func (rt *Runtime) OnMount(fn func() Cleanup) {
	if fn == nil {
		return
	}
	var ref ownerRef
	if id := rt.ctx.owner; rt.ownerLive(id) {
		ref = rt.refOwner(id)
	}
	rt.mounts = append(rt.mounts, mountTask{owner: ref, fn: fn})
	rt.kick()
}

// QueueMicrotask queues fn to run at the end of the current settle, after
// effects and mount callbacks, without tracking.
func (rt *Runtime) QueueMicrotask(fn func()) {
	if fn == nil {
		return
	}
	var ref ownerRef
	if id := rt.ctx.owner; rt.ownerLive(id) {
		ref = rt.refOwner(id)
	}
	rt.queueMicrotask(microTask{owner: ref, fn: fn})
}

// QueueDetachedMicrotask is QueueMicrotask without an owner: fn runs even if
// the current owner is disposed before the settle reaches it.
func (rt *Runtime) QueueDetachedMicrotask(fn func()) {
	if fn == nil {
		return
	}
	rt.queueMicrotask(microTask{fn: fn})
}

func (rt *Runtime) queueMicrotask(t microTask) {
	rt.micro = append(rt.micro, t)
	rt.kick()
}

// kick settles right away when nothing else will.
func (rt *Runtime) kick() {
	if !rt.idle() {
		return
	}
	rt.enter()
	rt.leaveAndReport()
}

func (rt *Runtime) runMounts() error {
	tasks := rt.mounts
	rt.mounts = nil

	var errs error
	for _, t := range tasks {
		if t.owner.id != 0 && !rt.ownerAlive(t.owner) {
			continue
		}
		var cleanup Cleanup
		errs = multierr.Append(errs, rt.runTask("mount", t.owner.id, func() {
			cleanup = t.fn()
		}))
		if cleanup == nil {
			continue
		}
		if t.owner.id == 0 {
			rt.log.Debug("reactive: mount cleanup returned outside of any owner is never run")
			continue
		}
		rt.addOwnerCleanup(t.owner.id, cleanup)
	}
	return errs
}

func (rt *Runtime) runMicrotasks() error {
	tasks := rt.micro
	rt.micro = nil

	var errs error
	for _, t := range tasks {
		if t.owner.id != 0 && !rt.ownerAlive(t.owner) {
			continue
		}
		errs = multierr.Append(errs, rt.runTask("microtask", t.owner.id, t.fn))
	}
	return errs
}

// runTask runs fn untracked under owner inside a failure boundary.
func (rt *Runtime) runTask(kind string, owner OwnerID, fn func()) (err error) {
	prev := rt.ctx
	rt.ctx = frame{owner: owner}
	defer func() {
		rt.ctx = prev
		if r := recover(); r != nil {
			err = &RunError{Kind: kind, Value: r, Stack: debug.Stack()}
		}
	}()
	fn()
	return nil
}
