package reactive

import (
	"context"
	"log/slog"
	"sync"

	"go.uber.org/multierr"
)

// Runtime owns one reactive graph: the node and owner arenas, the execution
// context, the batch depth and the queues drained when a batch settles.
//
// A Runtime is single-threaded. Every method except Post must be called from
// the goroutine that drives it (usually via Run). Independent runtimes share
// nothing and may live on different goroutines.
type Runtime struct {
	nodes     []node
	freeNodes []NodeID
	liveNodes int

	owners     []owner
	freeOwners []OwnerID
	liveOwners int

	ctx frame

	batchDepth int
	settling   bool

	// pending effects in first-marked order.
	pending []nodeRef
	// mounts are OnMount callbacks waiting for the current settle.
	mounts []mountTask
	// micro are deferred continuations (async effect bodies).
	micro []microTask

	// errs accumulates failures raised while a batch is open.
	errs error

	budget    effectBudget
	log       *slog.Logger
	observers []Observer
	onError   func(error)

	inbox inbox
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(rt *Runtime) {
		if l != nil {
			rt.log = l
		}
	}
}

// WithObserver registers an Observer notified of settles, effect runs and
// disposals. May be given more than once.
func WithObserver(o Observer) Option {
	return func(rt *Runtime) {
		if o != nil {
			rt.observers = append(rt.observers, o)
		}
	}
}

// WithErrorHandler sets the function that receives errors which have no
// caller to return to, such as a failing effect re-run triggered by a Set
// outside any batch. Without a handler those errors are logged and re-panicked.
func WithErrorHandler(fn func(error)) Option {
	return func(rt *Runtime) {
		rt.onError = fn
	}
}

// WithMaxEffectRuns bounds the number of effect runs in one settle. Zero
// disables the limit. Exceeding it aborts the flush with ErrBudgetExceeded.
func WithMaxEffectRuns(n int) Option {
	return func(rt *Runtime) {
		rt.budget.max = n
	}
}

// NewRuntime creates an empty reactive runtime.
func NewRuntime(opts ...Option) *Runtime {
	rt := &Runtime{
		// Slot 0 is reserved so that the zero ID never names a live entry.
		nodes:  make([]node, 1, 64),
		owners: make([]owner, 1, 16),
		log:    slog.Default(),
		budget: effectBudget{max: DefaultMaxEffectRuns},
	}
	rt.inbox.wake = make(chan struct{}, 1)
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

// Stats is a snapshot of arena occupancy.
type Stats struct {
	Nodes   int
	Owners  int
	Pending int
}

// Stats returns the number of live nodes and owners and queued effects.
func (rt *Runtime) Stats() Stats {
	return Stats{
		Nodes:   rt.liveNodes,
		Owners:  rt.liveOwners,
		Pending: len(rt.pending),
	}
}

// enter opens an implicit batch around runtime work started by the caller.
func (rt *Runtime) enter() {
	rt.batchDepth++
}

// leave closes an implicit batch. The outermost leave settles the runtime
// and returns everything that failed while the batch was open.
func (rt *Runtime) leave() error {
	rt.batchDepth--
	if rt.batchDepth > 0 || rt.settling {
		return nil
	}
	return rt.settle()
}

// leaveAndReport closes an implicit batch for entry points that have no
// error return.
func (rt *Runtime) leaveAndReport() {
	rt.report(rt.leave())
}

// idle reports whether no batch or settle is in progress.
func (rt *Runtime) idle() bool {
	return rt.batchDepth == 0 && !rt.settling
}

// fail records err for the enclosing batch, or reports it immediately when
// nothing will settle afterwards.
func (rt *Runtime) fail(err error) {
	if err == nil {
		return
	}
	if rt.idle() {
		rt.report(err)
		return
	}
	rt.errs = multierr.Append(rt.errs, err)
}

// HandleError routes err the way the runtime routes its own failures: it
// joins the error of the enclosing batch, or goes to the error handler when
// the runtime is idle. Packages layered on the runtime use it for errors
// that have no caller to return to.
func (rt *Runtime) HandleError(err error) {
	rt.fail(err)
}

func (rt *Runtime) takeErrs() error {
	err := rt.errs
	rt.errs = nil
	return err
}

// report hands err to the error handler. Without one the error is logged and
// re-panicked so it is never lost.
func (rt *Runtime) report(err error) {
	if err == nil {
		return
	}
	if rt.onError != nil {
		rt.onError(err)
		return
	}
	rt.log.Error("reactive: unhandled error", "error", err)
	panic(err)
}

// inbox is the goroutine-safe queue behind Post.
type inbox struct {
	mu    sync.Mutex
	queue []func()
	wake  chan struct{}
}

// Post queues fn to run on the runtime's goroutine inside a batch. It is the
// only Runtime method that may be called from any goroutine.
func (rt *Runtime) Post(fn func()) {
	if fn == nil {
		return
	}
	rt.inbox.mu.Lock()
	rt.inbox.queue = append(rt.inbox.queue, fn)
	rt.inbox.mu.Unlock()

	select {
	case rt.inbox.wake <- struct{}{}:
	default:
	}
}

// Drain runs every posted function, each in its own batch, and returns the
// aggregated errors.
func (rt *Runtime) Drain() error {
	var errs error
	for {
		rt.inbox.mu.Lock()
		queue := rt.inbox.queue
		rt.inbox.queue = nil
		rt.inbox.mu.Unlock()

		if len(queue) == 0 {
			return errs
		}
		for _, fn := range queue {
			errs = multierr.Append(errs, rt.Batch(fn))
		}
	}
}

// Run drives the runtime until ctx is done, executing posted work as it
// arrives. Failures are delivered to the error handler.
func (rt *Runtime) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-rt.inbox.wake:
			if err := rt.Drain(); err != nil {
				rt.report(err)
			}
		}
	}
}
