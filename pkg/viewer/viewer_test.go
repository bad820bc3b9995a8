package viewer

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/vango-dev/reactor/internal/demo"
	"github.com/vango-dev/reactor/pkg/dom"
	"github.com/vango-dev/reactor/pkg/protocol"
	"github.com/vango-dev/reactor/pkg/reactive"
	"github.com/vango-dev/reactor/pkg/server"
)

type harness struct {
	t      *testing.T
	rt     *reactive.Runtime
	app    *demo.App
	mirror *server.Mirror
	url    string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	rt := reactive.NewRuntime()
	doc := dom.NewDocument()
	app, err := demo.New(rt, doc, demo.Options{Items: 5, Seed: 3})
	if err != nil {
		t.Fatalf("demo: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := server.NewMirror(rt, doc, app.Root(), server.WithMirrorLogger(logger))
	s := server.New(m, &server.Config{Logger: logger, Gatherer: prometheus.NewRegistry()})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = rt.Run(ctx)
		close(done)
	}()
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		m.Close(protocol.CloseServerStopped)
		ts.Close()
		cancel()
		<-done
	})
	return &harness{t: t, rt: rt, app: app, mirror: m, url: ts.URL}
}

// step applies n random edits and returns the mirror's sequence number and
// markup afterwards.
func (h *harness) step(n int) (uint64, string) {
	h.t.Helper()
	type state struct {
		seq    uint64
		markup string
	}
	for i := 0; i < n; i++ {
		h.rt.Post(func() {
			_, err := h.app.Step()
			h.rt.HandleError(err)
		})
	}
	ch := make(chan state, 1)
	h.rt.Post(func() { ch <- state{h.mirror.Seq(), dom.Markup(h.app.Root())} })
	select {
	case s := <-ch:
		return s.seq, s.markup
	case <-time.After(2 * time.Second):
		h.t.Fatal("runtime did not answer")
		return 0, ""
	}
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestClientFollowsMirror(t *testing.T) {
	h := newHarness(t)
	ctx := testContext(t)

	c, err := Dial(ctx, h.url)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	ft, err := c.Next(ctx)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if ft != protocol.FrameSnapshot {
		t.Fatalf("expected a snapshot first, got %v", ft)
	}

	seq, markup := h.step(25)
	if err := c.WaitSeq(ctx, seq); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if got := c.Replica().Markup(); got != markup {
		t.Errorf("replica diverged\n got: %s\nwant: %s", got, markup)
	}
	if s := c.Stats(); s.Snapshots != 1 || s.Batches == 0 || s.Mutations < s.Batches {
		t.Errorf("unexpected stats %+v", s)
	}
}

func TestClientResume(t *testing.T) {
	h := newHarness(t)
	ctx := testContext(t)

	first, err := Dial(ctx, h.url)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	seq, _ := h.step(3)
	if err := first.WaitSeq(ctx, seq); err != nil {
		t.Fatalf("wait: %v", err)
	}
	replica := first.Replica()
	first.Close()

	seq, markup := h.step(10)
	second, err := Resume(ctx, h.url, replica)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	defer second.Close()
	if err := second.WaitSeq(ctx, seq); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if got := second.Replica().Markup(); got != markup {
		t.Errorf("resumed replica diverged\n got: %s\nwant: %s", got, markup)
	}
	if s := second.Stats(); s.Snapshots != 0 {
		t.Errorf("resume should replay history, got %d snapshots", s.Snapshots)
	}
}

func TestClientSeesServerClose(t *testing.T) {
	h := newHarness(t)
	ctx := testContext(t)

	c, err := Dial(ctx, h.url)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()
	if _, err := c.Next(ctx); err != nil {
		t.Fatalf("next: %v", err)
	}

	h.mirror.Close(protocol.CloseServerStopped)
	for {
		_, err := c.Next(ctx)
		if err == nil {
			continue
		}
		ce, ok := err.(*CloseError)
		if !ok {
			t.Fatalf("expected *CloseError, got %v", err)
		}
		if ce.Reason != protocol.CloseServerStopped || !IsClosed(err) {
			t.Errorf("unexpected close %v", ce)
		}
		return
	}
}

func TestWSURL(t *testing.T) {
	tests := []struct {
		in, want string
		ok       bool
	}{
		{"http://localhost:3000", "ws://localhost:3000/ws", true},
		{"https://example.com/app", "wss://example.com/ws", true},
		{"ws://h", "ws://h/ws", true},
		{"ftp://h", "", false},
	}
	for _, tt := range tests {
		u, err := wsURL(tt.in)
		if (err == nil) != tt.ok {
			t.Errorf("wsURL(%q) error = %v", tt.in, err)
			continue
		}
		if tt.ok && u.String() != tt.want {
			t.Errorf("wsURL(%q) = %s, want %s", tt.in, u, tt.want)
		}
	}
}
