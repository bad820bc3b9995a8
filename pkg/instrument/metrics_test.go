package instrument

import (
	"errors"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/vango-dev/reactor/pkg/dom"
	"github.com/vango-dev/reactor/pkg/reactive"
	"github.com/vango-dev/reactor/pkg/reconcile"
)

func metricCounterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("counter Write() error: %v", err)
	}
	if m.Counter == nil {
		t.Fatalf("counter metric missing Counter field")
	}
	return m.Counter.GetValue()
}

func metricGaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		t.Fatalf("gauge Write() error: %v", err)
	}
	if m.Gauge == nil {
		t.Fatalf("gauge metric missing Gauge field")
	}
	return m.Gauge.GetValue()
}

func metricHistogramCount(t *testing.T, h prometheus.Histogram) uint64 {
	t.Helper()
	var m dto.Metric
	if err := h.Write(&m); err != nil {
		t.Fatalf("histogram Write() error: %v", err)
	}
	if m.Histogram == nil {
		t.Fatalf("histogram metric missing Histogram field")
	}
	return m.Histogram.GetSampleCount()
}

func newTestMetrics() *Metrics {
	return NewMetrics(WithRegistry(prometheus.NewRegistry()), WithNamespace("test"))
}

func TestMetricsRecordsSettles(t *testing.T) {
	m := newTestMetrics()
	rt := reactive.NewRuntime(reactive.WithObserver(m))
	a := reactive.NewCell(rt, 0)
	for i := 0; i < 3; i++ {
		rt.CreateEffect(func() reactive.Cleanup {
			_ = a.Get()
			return nil
		})
	}

	settles := metricCounterValue(t, m.settlesTotal.WithLabelValues("success"))
	runs := metricCounterValue(t, m.effectRuns.WithLabelValues("success"))
	durations := metricHistogramCount(t, m.effectDuration)

	if err := rt.Batch(func() {
		a.Set(1)
		rt.OnMount(func() reactive.Cleanup { return nil })
		rt.QueueMicrotask(func() {})
	}); err != nil {
		t.Fatalf("batch: %v", err)
	}

	if got := metricCounterValue(t, m.settlesTotal.WithLabelValues("success")) - settles; got != 1 {
		t.Errorf("settles = %v, want 1", got)
	}
	if got := metricCounterValue(t, m.effectRuns.WithLabelValues("success")) - runs; got != 3 {
		t.Errorf("effect runs = %v, want 3", got)
	}
	if got := metricHistogramCount(t, m.effectDuration) - durations; got != 3 {
		t.Errorf("effect duration samples = %d, want 3", got)
	}
	if got := metricCounterValue(t, m.mountsTotal); got != 1 {
		t.Errorf("mounts = %v, want 1", got)
	}
	if got := metricCounterValue(t, m.microtasksTotal); got != 1 {
		t.Errorf("microtasks = %v, want 1", got)
	}
}

func TestMetricsRecordsFailures(t *testing.T) {
	m := newTestMetrics()
	rt := reactive.NewRuntime(reactive.WithObserver(m), reactive.WithErrorHandler(func(error) {}))
	c := reactive.NewCell(rt, 0)
	rt.CreateEffect(func() reactive.Cleanup {
		if c.Get() > 0 {
			panic("boom")
		}
		return nil
	})

	if err := rt.Batch(func() { c.Set(1) }); err == nil {
		t.Fatal("expected the failing effect to be reported")
	}
	if got := metricCounterValue(t, m.effectRuns.WithLabelValues("error")); got != 1 {
		t.Errorf("failed effect runs = %v, want 1", got)
	}
	if got := metricCounterValue(t, m.settlesTotal.WithLabelValues("error")); got != 1 {
		t.Errorf("failed settles = %v, want 1", got)
	}
	if got := metricCounterValue(t, m.errorsTotal.WithLabelValues("panic")); got != 1 {
		t.Errorf("panic errors = %v, want 1", got)
	}

	o := rt.NewOwner()
	_ = rt.RunWithOwner(o, func() {
		rt.OnCleanup(func() { panic("cleanup") })
	})
	if err := o.Dispose(); err == nil {
		t.Fatal("expected cleanup error")
	}
	if got := metricCounterValue(t, m.ownersDisposed.WithLabelValues("error")); got != 1 {
		t.Errorf("failed disposals = %v, want 1", got)
	}
	if got := metricCounterValue(t, m.errorsTotal.WithLabelValues("cleanup")); got != 1 {
		t.Errorf("cleanup errors = %v, want 1", got)
	}
}

func TestCategorizeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"budget", reactive.ErrBudgetExceeded, "budget"},
		{"wrapped budget", fmt.Errorf("flush: %w", reactive.ErrBudgetExceeded), "budget"},
		{"disposed", reactive.ErrDisposed, "disposed"},
		{"usage", reactive.NewUsageError("R001", "flow.for", reactive.ErrDuplicateKey, "key 1"), "usage"},
		{"panic", &reactive.RunError{Kind: "effect", Value: "boom"}, "panic"},
		{"cleanup", &reactive.CleanupError{Value: "boom"}, "cleanup"},
		{"other", errors.New("disk full"), "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := categorizeError(tt.err); got != tt.want {
				t.Errorf("categorizeError() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMetricsContainerCountsOps(t *testing.T) {
	m := newTestMetrics()
	doc := dom.NewDocument()
	list := doc.CreateElement("ul")
	parent := m.Container(list)

	var items []dom.Node
	for _, s := range []string{"a", "b", "c"} {
		items = append(items, doc.CreateText(s))
	}
	reconcile.Reconcile(parent, nil, items)
	if got := metricCounterValue(t, m.containerOps.WithLabelValues("insert")); got != 1 {
		t.Errorf("inserts = %v, want 1 fragment insert", got)
	}

	reconcile.Reconcile(parent, items, nil)
	if got := metricCounterValue(t, m.containerOps.WithLabelValues("remove")); got != 3 {
		t.Errorf("removes = %v, want 3", got)
	}
	if list.Len() != 0 {
		t.Errorf("list still has %d children", list.Len())
	}
}

func TestMetricsViewerTraffic(t *testing.T) {
	m := newTestMetrics()
	m.ViewerConnected()
	m.ViewerConnected()
	m.ViewerDisconnected()
	m.FrameSent("snapshot", 120)
	m.FrameSent("mutations", 30)
	m.FrameSent("mutations", 12)
	m.WebSocketError("write")

	if got := metricGaugeValue(t, m.viewers); got != 1 {
		t.Errorf("viewers = %v, want 1", got)
	}
	if got := metricCounterValue(t, m.framesSent.WithLabelValues("mutations")); got != 2 {
		t.Errorf("mutation frames = %v, want 2", got)
	}
	if got := metricCounterValue(t, m.frameBytes.WithLabelValues("mutations")); got != 42 {
		t.Errorf("mutation bytes = %v, want 42", got)
	}
	if got := metricCounterValue(t, m.wsErrors.WithLabelValues("write")); got != 1 {
		t.Errorf("websocket errors = %v, want 1", got)
	}
}

func TestNewMetricsDuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics(WithRegistry(reg))
	defer func() {
		if recover() == nil {
			t.Error("expected duplicate registration to panic")
		}
	}()
	NewMetrics(WithRegistry(reg))
}
