package instrument

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/vango-dev/reactor/pkg/dom"
	"github.com/vango-dev/reactor/pkg/reactive"
)

// MetricsConfig configures the Prometheus observer.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "reactor").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for settle and effect durations.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures the Prometheus observer.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "reactor",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics is a reactive.Observer that records runtime activity as
// Prometheus metrics. It also carries the counters the mirror server
// reports viewer traffic to.
type Metrics struct {
	settlesTotal    *prometheus.CounterVec
	settleDuration  prometheus.Histogram
	effectRuns      *prometheus.CounterVec
	effectDuration  prometheus.Histogram
	mountsTotal     prometheus.Counter
	microtasksTotal prometheus.Counter
	errorsTotal     *prometheus.CounterVec
	ownersDisposed  *prometheus.CounterVec
	containerOps    *prometheus.CounterVec
	viewers         prometheus.Gauge
	framesSent      *prometheus.CounterVec
	frameBytes      *prometheus.CounterVec
	wsErrors        *prometheus.CounterVec
}

var _ reactive.Observer = (*Metrics)(nil)

// NewMetrics registers the metrics with the configured registry. Registering
// twice with the same registry panics, so create one Metrics per registry.
func NewMetrics(opts ...MetricsOption) *Metrics {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	counter := func(name, help string) prometheus.Counter {
		return factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: config.ConstLabels,
		})
	}
	counterVec := func(name, help string, labels ...string) *prometheus.CounterVec {
		return factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: config.ConstLabels,
		}, labels)
	}
	histogram := func(name, help string) prometheus.Histogram {
		return factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		})
	}

	return &Metrics{
		settlesTotal:    counterVec("settles_total", "Total number of settles by status", "status"),
		settleDuration:  histogram("settle_duration_seconds", "Settle duration in seconds"),
		effectRuns:      counterVec("effect_runs_total", "Total number of effect runs by status", "status"),
		effectDuration:  histogram("effect_duration_seconds", "Effect run duration in seconds"),
		mountsTotal:     counter("mounts_total", "Total number of mount callbacks run"),
		microtasksTotal: counter("microtasks_total", "Total number of microtasks run"),
		errorsTotal:     counterVec("errors_total", "Total number of reported errors by type", "error_type"),
		ownersDisposed:  counterVec("owners_disposed_total", "Total number of disposed scopes by status", "status"),
		containerOps:    counterVec("container_ops_total", "Total number of container mutations by op", "op"),
		viewers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "viewers",
			Help:        "Number of connected viewers",
			ConstLabels: config.ConstLabels,
		}),
		framesSent: counterVec("frames_sent_total", "Total number of frames sent to viewers by type", "type"),
		frameBytes: counterVec("frame_bytes_total", "Total encoded frame bytes sent to viewers by type", "type"),
		wsErrors:   counterVec("websocket_errors_total", "Total WebSocket errors by type", "type"),
	}
}

// SettleStarted implements reactive.Observer.
func (m *Metrics) SettleStarted() {}

// EffectRan implements reactive.Observer.
func (m *Metrics) EffectRan(r reactive.EffectRun) {
	m.effectDuration.Observe(r.Duration.Seconds())
	m.effectRuns.WithLabelValues(status(r.Err)).Inc()
}

// SettleFinished implements reactive.Observer.
func (m *Metrics) SettleFinished(s reactive.SettleStats) {
	m.settleDuration.Observe(s.Duration.Seconds())
	m.settlesTotal.WithLabelValues(status(s.Err)).Inc()
	m.mountsTotal.Add(float64(s.Mounts))
	m.microtasksTotal.Add(float64(s.Microtasks))
	if s.Err != nil {
		m.errorsTotal.WithLabelValues(categorizeError(s.Err)).Inc()
	}
}

// OwnerDisposed implements reactive.Observer.
func (m *Metrics) OwnerDisposed(_ reactive.OwnerID, err error) {
	m.ownersDisposed.WithLabelValues(status(err)).Inc()
	if err != nil {
		m.errorsTotal.WithLabelValues(categorizeError(err)).Inc()
	}
}

// ViewerConnected records a viewer joining the mirror.
func (m *Metrics) ViewerConnected() { m.viewers.Inc() }

// ViewerDisconnected records a viewer leaving the mirror.
func (m *Metrics) ViewerDisconnected() { m.viewers.Dec() }

// FrameSent records one frame of n encoded bytes.
func (m *Metrics) FrameSent(frameType string, n int) {
	m.framesSent.WithLabelValues(frameType).Inc()
	m.frameBytes.WithLabelValues(frameType).Add(float64(n))
}

// WebSocketError records a WebSocket failure.
func (m *Metrics) WebSocketError(errorType string) {
	m.wsErrors.WithLabelValues(errorType).Inc()
}

// Container wraps parent so that every insert, remove and replace is counted
// under reactor_container_ops_total. Pass the result as a block host parent
// to measure reconciler work.
func (m *Metrics) Container(parent dom.Container) dom.Container {
	return &meteredContainer{Container: parent, ops: m.containerOps}
}

type meteredContainer struct {
	dom.Container
	ops *prometheus.CounterVec
}

func (c *meteredContainer) InsertBefore(node, ref dom.Node) {
	c.Container.InsertBefore(node, ref)
	c.ops.WithLabelValues("insert").Inc()
}

func (c *meteredContainer) RemoveChild(node dom.Node) {
	c.Container.RemoveChild(node)
	c.ops.WithLabelValues("remove").Inc()
}

func (c *meteredContainer) ReplaceChild(newChild, oldChild dom.Node) {
	c.Container.ReplaceChild(newChild, oldChild)
	c.ops.WithLabelValues("replace").Inc()
}

// NewFragment keeps batched appends available through the wrapper.
func (c *meteredContainer) NewFragment() dom.Container {
	if f, ok := c.Container.(dom.FragmentFactory); ok {
		return f.NewFragment()
	}
	return nil
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// categorizeError maps an error to a low-cardinality label.
func categorizeError(err error) string {
	var (
		usage   *reactive.UsageError
		run     *reactive.RunError
		cleanup *reactive.CleanupError
	)
	switch {
	case errors.Is(err, reactive.ErrBudgetExceeded):
		return "budget"
	case errors.Is(err, reactive.ErrDisposed):
		return "disposed"
	case errors.As(err, &usage):
		return "usage"
	case errors.As(err, &run):
		return "panic"
	case errors.As(err, &cleanup):
		return "cleanup"
	default:
		return "internal"
	}
}
