package server

import (
	"io"
	"log/slog"
	"testing"

	"github.com/vango-dev/reactor/pkg/dom"
	"github.com/vango-dev/reactor/pkg/protocol"
	"github.com/vango-dev/reactor/pkg/reactive"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testViewer(id string, queue int) *viewer {
	return &viewer{
		id:   id,
		send: make(chan []byte, queue),
		done: make(chan struct{}),
	}
}

func TestMirrorBatchesPerSettle(t *testing.T) {
	rt := reactive.NewRuntime()
	doc := dom.NewDocument()
	root := doc.CreateElement("ul")
	outside := doc.CreateElement("div")
	m := NewMirror(rt, doc, root, WithMirrorLogger(quietLogger()))
	v := testViewer("v", 8)
	m.viewers[v.id] = v

	// Each edit outside a batch settles on its own.
	root.AppendChild(doc.CreateText("a"))
	if m.Seq() != 1 || len(v.send) != 1 {
		t.Fatalf("seq = %d, queued = %d", m.Seq(), len(v.send))
	}

	_ = rt.Batch(func() {
		root.AppendChild(doc.CreateText("b"))
		root.AppendChild(doc.CreateText("c"))
		outside.AppendChild(doc.CreateText("ignored"))
	})
	if m.Seq() != 2 || len(v.send) != 2 {
		t.Fatalf("seq = %d, queued = %d", m.Seq(), len(v.send))
	}

	outside.AppendChild(doc.CreateText("ignored"))
	if m.Seq() != 2 {
		t.Errorf("mutation outside the root produced a batch, seq = %d", m.Seq())
	}

	<-v.send
	f, err := protocol.DecodeFrame(<-v.send)
	if err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	b, err := protocol.DecodeBatch(f.Payload)
	if err != nil {
		t.Fatalf("decode batch: %v", err)
	}
	if b.Seq != 2 || len(b.Mutations) != 2 {
		t.Errorf("batch seq %d with %d mutations", b.Seq, len(b.Mutations))
	}
	if frames, ok := m.history.Range(0, 2); !ok || len(frames) != 2 {
		t.Errorf("history holds %d frames, ok=%v", len(frames), ok)
	}
}

func TestMirrorDropsSlowViewer(t *testing.T) {
	rt := reactive.NewRuntime()
	doc := dom.NewDocument()
	root := doc.CreateElement("ul")
	m := NewMirror(rt, doc, root, WithMirrorLogger(quietLogger()))
	slow := testViewer("slow", 1)
	fast := testViewer("fast", 8)
	m.viewers[slow.id] = slow
	m.viewers[fast.id] = fast

	root.AppendChild(doc.CreateText("a"))
	root.AppendChild(doc.CreateText("b"))

	if m.Viewers() != 1 {
		t.Fatalf("expected only the fast viewer to remain, got %d", m.Viewers())
	}
	select {
	case <-slow.done:
	default:
		t.Fatal("slow viewer was not closed")
	}
	if slow.reason != protocol.CloseSlowViewer {
		t.Errorf("close reason = %v", slow.reason)
	}
	if len(fast.send) != 2 {
		t.Errorf("fast viewer queued %d frames", len(fast.send))
	}
}

func TestMirrorAttachSnapshotOrResume(t *testing.T) {
	rt := reactive.NewRuntime()
	doc := dom.NewDocument()
	root := doc.CreateElement("ul")
	m := NewMirror(rt, doc, root, WithMirrorLogger(quietLogger()), WithHistory(2))
	for _, s := range []string{"a", "b", "c"} {
		root.AppendChild(doc.CreateText(s))
	}

	tests := []struct {
		name   string
		since  uint64
		resume bool
		want   protocol.FrameType
		frames int
	}{
		{"fresh", 0, false, protocol.FrameSnapshot, 1},
		{"recent", 1, true, protocol.FrameMutations, 2},
		{"current", 3, true, protocol.FrameMutations, 0},
		{"evicted", 0, true, protocol.FrameSnapshot, 1},
		{"ahead", 9, true, protocol.FrameSnapshot, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := testViewer(tt.name, 1)
			if err := m.attach(v, tt.since, tt.resume); err != nil {
				t.Fatalf("attach: %v", err)
			}
			if len(v.initial) != tt.frames {
				t.Fatalf("initial frames = %d, want %d", len(v.initial), tt.frames)
			}
			for _, raw := range v.initial {
				f, err := protocol.DecodeFrame(raw)
				if err != nil {
					t.Fatalf("decode: %v", err)
				}
				if f.Type != tt.want {
					t.Errorf("frame type = %v, want %v", f.Type, tt.want)
				}
				if f.Type == protocol.FrameSnapshot {
					snap, err := protocol.DecodeSnapshot(f.Payload)
					if err != nil || snap.Seq != 3 {
						t.Errorf("snapshot seq = %v, err = %v", snap, err)
					}
				}
			}
		})
	}

	m.Close(protocol.CloseServerStopped)
	if err := m.attach(testViewer("late", 1), 0, false); err != ErrMirrorClosed {
		t.Errorf("attach after close = %v", err)
	}
}
