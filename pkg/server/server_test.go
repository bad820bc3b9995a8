package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/vango-dev/reactor/pkg/dom"
	"github.com/vango-dev/reactor/pkg/instrument"
	"github.com/vango-dev/reactor/pkg/protocol"
	"github.com/vango-dev/reactor/pkg/reactive"
	"github.com/vango-dev/reactor/pkg/reconcile"
	"github.com/vango-dev/reactor/pkg/snapshot"
)

type fixture struct {
	t      *testing.T
	doc    *dom.Document
	root   *dom.Element
	mirror *Mirror
	server *Server
	http   *httptest.Server
	items  map[string]dom.Node
	shown  []dom.Node
}

func newFixture(t *testing.T, config *Config) *fixture {
	t.Helper()
	rt := reactive.NewRuntime()
	doc := dom.NewDocument()
	root := doc.CreateElement("ul")
	if config == nil {
		config = DefaultConfig()
	}
	config.Logger = quietLogger()
	m := NewMirror(rt, doc, root, WithMirrorLogger(config.Logger), WithMirrorMetrics(config.Metrics), WithHistory(4))
	s := New(m, config)

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
	return &fixture{t: t, doc: doc, root: root, mirror: m, server: s, http: ts, items: map[string]dom.Node{}}
}

// show reconciles the list to keys on the runtime goroutine.
func (f *fixture) show(keys string) {
	f.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := f.mirror.onRuntime(ctx, func() error {
		next := make([]dom.Node, 0, len(keys))
		for _, k := range keys {
			n, ok := f.items[string(k)]
			if !ok {
				li := f.doc.CreateElement("li")
				li.AppendChild(f.doc.CreateText(string(k)))
				n = li
				f.items[string(k)] = n
			}
			next = append(next, n)
		}
		reconcile.Reconcile(f.root, f.shown, next)
		f.shown = next
		return nil
	})
	if err != nil {
		f.t.Fatalf("show %q: %v", keys, err)
	}
}

func (f *fixture) markup() string {
	f.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	markup, err := f.mirror.Markup(ctx)
	if err != nil {
		f.t.Fatalf("markup: %v", err)
	}
	return markup
}

func (f *fixture) dial(query string) *websocket.Conn {
	f.t.Helper()
	url := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		f.t.Fatalf("dial: %v", err)
	}
	f.t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) *protocol.Frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	frame, err := protocol.DecodeFrame(msg)
	if err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	return frame
}

func applyNext(t *testing.T, conn *websocket.Conn, r *protocol.Replica) {
	t.Helper()
	frame := readFrame(t, conn)
	if frame.Type != protocol.FrameMutations {
		t.Fatalf("expected mutations, got %v", frame.Type)
	}
	b, err := protocol.DecodeBatch(frame.Payload)
	if err != nil {
		t.Fatalf("decode batch: %v", err)
	}
	if err := r.Apply(b); err != nil {
		t.Fatalf("apply: %v", err)
	}
}

func loadSnapshot(t *testing.T, conn *websocket.Conn) *protocol.Replica {
	t.Helper()
	frame := readFrame(t, conn)
	if frame.Type != protocol.FrameSnapshot {
		t.Fatalf("expected snapshot, got %v", frame.Type)
	}
	snap, err := protocol.DecodeSnapshot(frame.Payload)
	if err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	r := protocol.NewReplica()
	r.Load(snap)
	return r
}

func TestViewerFollowsTree(t *testing.T) {
	f := newFixture(t, nil)
	f.show("abc")

	conn := f.dial("")
	replica := loadSnapshot(t, conn)
	if got := replica.Markup(); got != "<ul><li>a</li><li>b</li><li>c</li></ul>" {
		t.Fatalf("snapshot markup = %s", got)
	}

	for _, keys := range []string{"cab", "cdaeb", "e", "", "ba"} {
		f.show(keys)
		applyNext(t, conn, replica)
		if got, want := replica.Markup(), f.markup(); got != want {
			t.Fatalf("after %q replica = %s, want %s", keys, got, want)
		}
	}
}

func TestViewerResumesFromHistory(t *testing.T) {
	f := newFixture(t, nil)
	f.show("ab")

	first := f.dial("")
	replica := loadSnapshot(t, first)
	first.Close()

	f.show("ba")
	f.show("bac")

	second := f.dial("?since=" + itoa(replica.Seq()))
	applyNext(t, second, replica)
	applyNext(t, second, replica)
	if got, want := replica.Markup(), f.markup(); got != want {
		t.Errorf("resumed replica = %s, want %s", got, want)
	}

	// Beyond the history window the viewer starts over from a snapshot.
	for _, keys := range []string{"a", "ab", "abc", "abcd", "abcde"} {
		f.show(keys)
	}
	third := f.dial("?since=" + itoa(replica.Seq()))
	fresh := loadSnapshot(t, third)
	if got, want := fresh.Markup(), f.markup(); got != want {
		t.Errorf("fresh replica = %s, want %s", got, want)
	}
}

func TestViewerGetsCloseOnShutdown(t *testing.T) {
	f := newFixture(t, nil)
	conn := f.dial("")
	loadSnapshot(t, conn)

	f.mirror.Close(protocol.CloseServerStopped)
	frame := readFrame(t, conn)
	if frame.Type != protocol.FrameControl {
		t.Fatalf("expected control frame, got %v", frame.Type)
	}
	c, err := protocol.DecodeControl(frame.Payload)
	if err != nil {
		t.Fatalf("decode control: %v", err)
	}
	if c.Type != protocol.ControlClose || c.Reason != protocol.CloseServerStopped {
		t.Errorf("control = %+v", c)
	}
}

func TestViewerPingPong(t *testing.T) {
	f := newFixture(t, nil)
	conn := f.dial("")
	loadSnapshot(t, conn)

	ping := protocol.Control{Type: protocol.ControlPing, Timestamp: 1234}
	frame, _ := protocol.NewFrame(protocol.FrameControl, protocol.EncodeControl(ping)).Encode()
	if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		t.Fatalf("write: %v", err)
	}
	reply := readFrame(t, conn)
	c, err := protocol.DecodeControl(reply.Payload)
	if err != nil || c.Type != protocol.ControlPong || c.Timestamp != 1234 {
		t.Errorf("reply = %+v, %v", c, err)
	}
}

func TestRoutes(t *testing.T) {
	reg := prometheus.NewRegistry()
	store, err := snapshot.NewDiskStore(t.TempDir(), 0)
	if err != nil {
		t.Fatal(err)
	}
	config := DefaultConfig()
	config.Metrics = instrument.NewMetrics(instrument.WithRegistry(reg), instrument.WithNamespace("test"))
	config.Gatherer = reg
	config.Snapshots = store
	config.Title = "<demo>"
	f := newFixture(t, config)
	f.show("xy")

	get := func(path string) (int, string) {
		t.Helper()
		resp, err := http.Get(f.http.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, string(body)
	}

	if code, body := get("/healthz"); code != http.StatusOK || body != "ok\n" {
		t.Errorf("/healthz = %d %q", code, body)
	}
	if code, body := get("/snapshot"); code != http.StatusOK || body != "<ul><li>x</li><li>y</li></ul>" {
		t.Errorf("/snapshot = %d %q", code, body)
	}
	if _, body := get("/"); !strings.Contains(body, "<title>&lt;demo&gt;</title>") || !strings.Contains(body, "<li>x</li>") {
		t.Errorf("/ = %q", body)
	}

	conn := f.dial("")
	loadSnapshot(t, conn)
	if _, body := get("/metrics"); !strings.Contains(body, "test_viewers 1") || !strings.Contains(body, `test_frames_sent_total{type="Snapshot"} 1`) {
		t.Errorf("/metrics missing viewer metrics:\n%s", body)
	}

	resp, err := http.Post(f.http.URL+"/snapshots", "", nil)
	if err != nil {
		t.Fatalf("POST /snapshots: %v", err)
	}
	var saved snapshot.Info
	if err := json.NewDecoder(resp.Body).Decode(&saved); err != nil {
		t.Fatalf("decode saved: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated || !strings.HasPrefix(saved.Key, "mirror-") {
		t.Fatalf("POST /snapshots = %d %+v", resp.StatusCode, saved)
	}

	code, body := get("/snapshots")
	var infos []snapshot.Info
	if err := json.Unmarshal([]byte(body), &infos); err != nil || code != http.StatusOK || len(infos) != 1 {
		t.Fatalf("/snapshots = %d %s", code, body)
	}
	if code, body := get("/snapshots/" + saved.Key); code != http.StatusOK || body != "<ul><li>x</li><li>y</li></ul>" {
		t.Errorf("/snapshots/{key} = %d %q", code, body)
	}
	if code, body := get("/snapshots/mirror-20000101T000000.000000000Z.html"); code != http.StatusNotFound || !strings.Contains(body, "R141") {
		t.Errorf("missing snapshot = %d %q", code, body)
	}
	if code, _ := get("/snapshots/nope"); code != http.StatusBadRequest {
		t.Errorf("invalid key = %d", code)
	}
	if code, _ := get("/ws?since=x"); code != http.StatusBadRequest {
		t.Errorf("bad since = %d", code)
	}
}

func TestSnapshotRoutesWithoutStore(t *testing.T) {
	f := newFixture(t, nil)
	resp, err := http.Get(f.http.URL + "/snapshots")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusNotFound || !strings.Contains(string(body), `"code":"R121"`) {
		t.Errorf("status %d body %s", resp.StatusCode, body)
	}
}

func TestMetricsRouteConfig(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		disable bool
		get     string
		want    int
	}{
		{"default path", "", false, "/metrics", http.StatusOK},
		{"custom path", "/internal/metrics", false, "/internal/metrics", http.StatusOK},
		{"custom path hides default", "/internal/metrics", false, "/metrics", http.StatusNotFound},
		{"disabled", "", true, "/metrics", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			config.Gatherer = prometheus.NewRegistry()
			config.DisableMetricsRoute = tt.disable
			if tt.path != "" {
				config.MetricsPath = tt.path
			}
			f := newFixture(t, config)

			resp, err := http.Get(f.http.URL + tt.get)
			if err != nil {
				t.Fatalf("GET %s: %v", tt.get, err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("GET %s = %d, want %d", tt.get, resp.StatusCode, tt.want)
			}
		})
	}
}

func itoa(n uint64) string {
	return strconv.FormatUint(n, 10)
}
