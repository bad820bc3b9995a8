package reactive

import "time"

// Observer receives runtime events. Implementations must not call back into
// the runtime. Embed NopObserver to implement a subset.
type Observer interface {
	// SettleStarted is called when the outermost batch starts settling.
	SettleStarted()
	// EffectRan is called after every effect run.
	EffectRan(EffectRun)
	// SettleFinished is called once all queues are empty.
	SettleFinished(SettleStats)
	// OwnerDisposed is called after a scope was disposed.
	OwnerDisposed(id OwnerID, err error)
}

// EffectRun describes one effect execution.
type EffectRun struct {
	Effect   NodeID
	Duration time.Duration
	Err      error
}

// SettleStats summarizes one settle.
type SettleStats struct {
	Effects    int
	Mounts     int
	Microtasks int
	Duration   time.Duration
	Err        error
}

// NopObserver implements Observer with no-ops.
type NopObserver struct{}

func (NopObserver) SettleStarted() {}
func (NopObserver) EffectRan(EffectRun) {}
func (NopObserver) SettleFinished(SettleStats) {}
func (NopObserver) OwnerDisposed(OwnerID, error) {}

func (rt *Runtime) observeSettleStarted() {
	for _, o := range rt.observers {
		o.SettleStarted()
	}
}

func (rt *Runtime) observeSettleFinished(s SettleStats) {
	for _, o := range rt.observers {
		o.SettleFinished(s)
	}
}

func (rt *Runtime) observeEffect(id NodeID, d time.Duration, err error) {
	if len(rt.observers) == 0 {
		return
	}
	run := EffectRun{Effect: id, Duration: d, Err: err}
	for _, o := range rt.observers {
		o.EffectRan(run)
	}
}

func (rt *Runtime) observeOwnerDisposed(id OwnerID, err error) {
	for _, o := range rt.observers {
		o.OwnerDisposed(id, err)
	}
}
