package reactive

import (
	"errors"
	"fmt"
	"runtime/debug"

	"go.uber.org/multierr"

	rerrors "github.com/vango-dev/reactor/internal/errors"
)

// ErrCycle is raised when a derived node reads itself, directly or through
// other derived nodes, while it is being computed.
var ErrCycle = errors.New("reactive: circular dependency")

// ErrWriteInDerived is raised when a derived computation writes a cell it
// depends on.
var ErrWriteInDerived = errors.New("reactive: cell written inside its own derived computation")

// ErrDuplicateKey is raised by keyed list blocks when two source items share
// a key in one evaluation.
var ErrDuplicateKey = errors.New("reactive: duplicate key in keyed list")

// ErrBudgetExceeded is returned when a single settle runs more effects than
// the runtime allows, which usually means effects keep re-triggering each
// other.
var ErrBudgetExceeded = errors.New("reactive: effect run budget exceeded")

// ErrDisposed is returned when an operation targets a disposed owner.
var ErrDisposed = errors.New("reactive: owner disposed")

// UsageError reports misuse of the reactive API. It carries the registered
// error code and unwraps to one of the sentinel errors above.
type UsageError struct {
	Code string
	Op   string
	Err  error
	// Detail is optional context such as the offending key.
	Detail string
}

func newUsageError(code, op string, err error) *UsageError {
	return &UsageError{Code: code, Op: op, Err: err}
}

// NewUsageError builds a UsageError for packages layered on the runtime.
func NewUsageError(code, op string, err error, detail string) *UsageError {
	return &UsageError{Code: code, Op: op, Err: err, Detail: detail}
}

// Error implements the error interface.
func (e *UsageError) Error() string {
	msg := fmt.Sprintf("%s: %s: %v", e.Code, e.Op, e.Err)
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

// Unwrap returns the sentinel error.
func (e *UsageError) Unwrap() error {
	return e.Err
}

// Coded converts the error into the registry form used by the CLI.
func (e *UsageError) Coded() *rerrors.Error {
	ce := rerrors.New(e.Code).Wrap(e)
	if e.Detail != "" {
		ce.WithDetail(e.Detail)
	}
	return ce
}

// RunError wraps a panic raised by a derived or effect function.
type RunError struct {
	Node  NodeID
	Kind  string
	Value any
	Stack []byte
}

func newRunError(id NodeID, kind nodeKind, v any) *RunError {
	return &RunError{Node: id, Kind: kind.String(), Value: v, Stack: debug.Stack()}
}

// Error implements the error interface.
func (e *RunError) Error() string {
	if e.Node == 0 {
		return fmt.Sprintf("reactive: %s panicked: %v", e.Kind, e.Value)
	}
	return fmt.Sprintf("reactive: %s %d panicked: %v", e.Kind, e.Node, e.Value)
}

// Unwrap returns the panic value when it is an error.
func (e *RunError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// CleanupError wraps a panic raised by a cleanup callback during disposal or
// before a re-run.
type CleanupError struct {
	Value any
	Stack []byte
}

// Error implements the error interface.
func (e *CleanupError) Error() string {
	return fmt.Sprintf("reactive: cleanup panicked: %v", e.Value)
}

// Unwrap returns the panic value when it is an error.
func (e *CleanupError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// safeCall runs fn inside its own failure boundary.
func safeCall(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &CleanupError{Value: r, Stack: debug.Stack()}
		}
	}()
	fn()
	return nil
}

// runCleanups executes fns last-in-first-out, each isolated, and returns the
// collected failures.
func runCleanups(fns []func()) error {
	var errs error
	for i := len(fns) - 1; i >= 0; i-- {
		if fns[i] == nil {
			continue
		}
		errs = multierr.Append(errs, safeCall(fns[i]))
	}
	return errs
}
