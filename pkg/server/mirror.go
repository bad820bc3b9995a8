package server

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/vango-dev/reactor/pkg/dom"
	"github.com/vango-dev/reactor/pkg/instrument"
	"github.com/vango-dev/reactor/pkg/protocol"
	"github.com/vango-dev/reactor/pkg/reactive"
)

// ErrMirrorClosed is returned by operations on a closed mirror.
var ErrMirrorClosed = errors.New("server: mirror closed")

// Mirror streams the mutations of one subtree to its viewers.
type Mirror struct {
	rt      *reactive.Runtime
	root    dom.Node
	logger  *slog.Logger
	metrics *instrument.Metrics
	history *History

	// Owned by the runtime goroutine.
	pending   []protocol.Mutation
	scheduled bool
	seq       uint64
	unlisten  func()

	mu      sync.Mutex
	viewers map[string]*viewer
	closed  bool
}

// MirrorOption configures a Mirror.
type MirrorOption func(*Mirror)

// WithMirrorLogger sets the mirror's logger.
func WithMirrorLogger(l *slog.Logger) MirrorOption {
	return func(m *Mirror) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithMirrorMetrics reports frames and viewers to metrics.
func WithMirrorMetrics(metrics *instrument.Metrics) MirrorOption {
	return func(m *Mirror) {
		m.metrics = metrics
	}
}

// WithHistory sets how many batches are kept for reconnecting viewers.
func WithHistory(size int) MirrorOption {
	return func(m *Mirror) {
		m.history = NewHistory(size)
	}
}

// NewMirror starts recording the mutations under root. It must be called on
// the goroutine that owns rt, before the runtime is handed to Runtime.Run.
func NewMirror(rt *reactive.Runtime, doc *dom.Document, root dom.Node, opts ...MirrorOption) *Mirror {
	m := &Mirror{
		rt:      rt,
		root:    root,
		logger:  slog.Default(),
		viewers: make(map[string]*viewer),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.history == nil {
		m.history = NewHistory(0)
	}
	m.unlisten = doc.Listen(m.record)
	return m
}

// record keeps mutations under the root. Descriptors are taken now because
// the inserted subtree may change again before the batch is sent.
func (m *Mirror) record(mu dom.Mutation) {
	target := mu.Parent
	if target == nil {
		target = mu.Node
	}
	if !dom.Contains(m.root, target) {
		return
	}
	m.pending = append(m.pending, protocol.FromDOM(mu))
	if !m.scheduled {
		m.scheduled = true
		m.rt.QueueDetachedMicrotask(m.flush)
	}
}

// flush sends the pending mutations as the next batch.
func (m *Mirror) flush() {
	m.scheduled = false
	if len(m.pending) == 0 {
		return
	}
	m.seq++
	batch := &protocol.Batch{Seq: m.seq, Mutations: m.pending}
	m.pending = nil

	frame, err := protocol.NewFrame(protocol.FrameMutations, protocol.EncodeBatch(batch)).Encode()
	if err != nil {
		// The tree can no longer be followed incrementally; viewers resync.
		m.logger.Error("mirror: batch dropped", "seq", batch.Seq, "mutations", len(batch.Mutations), "error", err)
		m.resetViewers()
		return
	}
	m.history.Add(batch.Seq, frame)
	m.broadcast(protocol.FrameMutations, frame)
}

// Seq returns the number of the last batch sent. Runtime goroutine only.
func (m *Mirror) Seq() uint64 {
	return m.seq
}

func (m *Mirror) broadcast(ft protocol.FrameType, frame []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.viewers {
		if !v.enqueue(frame) {
			m.logger.Warn("mirror: dropping slow viewer", "viewer", v.id)
			m.dropLocked(v, protocol.CloseSlowViewer)
			continue
		}
		m.frameSent(ft, len(frame))
	}
}

// resetViewers disconnects everyone after a batch could not be encoded.
func (m *Mirror) resetViewers() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.viewers {
		m.dropLocked(v, protocol.CloseNormal)
	}
}

func (m *Mirror) frameSent(ft protocol.FrameType, n int) {
	if m.metrics != nil {
		m.metrics.FrameSent(ft.String(), n)
	}
}

// attach registers v and sets the frames it starts with: the batches after
// since if resume is set and the history still has them, a snapshot
// otherwise. Runtime goroutine only.
func (m *Mirror) attach(v *viewer, since uint64, resume bool) error {
	// Direct tree edits outside any settle may still be pending.
	m.flush()

	var frames [][]byte
	if resume {
		frames, resume = m.history.Range(since, m.seq)
	}
	ft := protocol.FrameMutations
	if !resume {
		snap := &protocol.Snapshot{Seq: m.seq, Root: protocol.Describe(m.root)}
		frame, err := protocol.NewFrame(protocol.FrameSnapshot, protocol.EncodeSnapshot(snap)).Encode()
		if err != nil {
			return err
		}
		frames = [][]byte{frame}
		ft = protocol.FrameSnapshot
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrMirrorClosed
	}
	v.initial = frames
	m.viewers[v.id] = v
	for _, f := range frames {
		m.frameSent(ft, len(f))
	}
	if m.metrics != nil {
		m.metrics.ViewerConnected()
	}
	m.logger.Info("viewer attached", "viewer", v.id, "seq", m.seq, "resumed", resume, "frames", len(frames))
	return nil
}

// detach removes v if it is still registered.
func (m *Mirror) detach(v *viewer, reason protocol.CloseReason) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.viewers[v.id]; ok {
		m.dropLocked(v, reason)
	}
}

func (m *Mirror) dropLocked(v *viewer, reason protocol.CloseReason) {
	delete(m.viewers, v.id)
	v.close(reason)
	if m.metrics != nil {
		m.metrics.ViewerDisconnected()
	}
	m.logger.Info("viewer detached", "viewer", v.id, "reason", reason.String())
}

// Viewers returns the number of connected viewers.
func (m *Mirror) Viewers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.viewers)
}

// Markup renders the mirrored subtree on the runtime goroutine.
func (m *Mirror) Markup(ctx context.Context) (string, error) {
	var markup string
	err := m.onRuntime(ctx, func() error {
		markup = dom.Markup(m.root)
		return nil
	})
	return markup, err
}

// onRuntime runs fn on the runtime goroutine and waits for it.
func (m *Mirror) onRuntime(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	m.rt.Post(func() { done <- fn() })
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops recording and disconnects every viewer with reason.
func (m *Mirror) Close(reason protocol.CloseReason) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	for _, v := range m.viewers {
		m.dropLocked(v, reason)
	}
	// Listener removal touches the document, which belongs to the runtime.
	m.rt.Post(m.unlisten)
}
