package instrument

import (
	"context"

	"github.com/vango-dev/reactor/pkg/reactive"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Default tracer name for reactor runtimes.
const defaultTracerName = "github.com/vango-dev/reactor"

// TracerConfig configures the OpenTelemetry observer.
type TracerConfig struct {
	// TracerName is the instrumentation scope name.
	TracerName string

	// Provider supplies the tracer. If nil, the global provider is used.
	Provider trace.TracerProvider

	// Context is the parent of every settle span (default: context.Background()).
	Context context.Context

	// RecordEffects adds one span event per effect run. Enabled by default.
	RecordEffects bool
}

// TracerOption configures the OpenTelemetry observer.
type TracerOption func(*TracerConfig)

// WithTracerName sets the tracer name.
func WithTracerName(name string) TracerOption {
	return func(c *TracerConfig) {
		c.TracerName = name
	}
}

// WithTracerProvider sets the tracer provider.
func WithTracerProvider(tp trace.TracerProvider) TracerOption {
	return func(c *TracerConfig) {
		c.Provider = tp
	}
}

// WithParentContext sets the context settle spans are started from.
func WithParentContext(ctx context.Context) TracerOption {
	return func(c *TracerConfig) {
		c.Context = ctx
	}
}

// WithEffectEvents enables or disables per-effect span events.
func WithEffectEvents(record bool) TracerOption {
	return func(c *TracerConfig) {
		c.RecordEffects = record
	}
}

func defaultTracerConfig() TracerConfig {
	return TracerConfig{
		TracerName:    defaultTracerName,
		Context:       context.Background(),
		RecordEffects: true,
	}
}

// Tracer is a reactive.Observer that records one span per settle. Effect
// runs become span events and failures are recorded on the span.
//
// Settles never nest, so a Tracer holds at most one open span. Like every
// observer it is called on the goroutine that owns the runtime.
type Tracer struct {
	config TracerConfig
	tracer trace.Tracer
	span   trace.Span
}

var _ reactive.Observer = (*Tracer)(nil)

// NewTracer creates a tracing observer.
func NewTracer(opts ...TracerOption) *Tracer {
	config := defaultTracerConfig()
	for _, opt := range opts {
		opt(&config)
	}
	if config.Context == nil {
		config.Context = context.Background()
	}

	var tracer trace.Tracer
	if config.Provider != nil {
		tracer = config.Provider.Tracer(config.TracerName)
	} else {
		tracer = otel.Tracer(config.TracerName)
	}
	return &Tracer{config: config, tracer: tracer}
}

// SettleStarted implements reactive.Observer.
func (t *Tracer) SettleStarted() {
	_, t.span = t.tracer.Start(t.config.Context, "reactor.settle",
		trace.WithSpanKind(trace.SpanKindInternal))
}

// EffectRan implements reactive.Observer.
func (t *Tracer) EffectRan(r reactive.EffectRun) {
	if t.span == nil {
		return
	}
	if t.config.RecordEffects {
		t.span.AddEvent("effect", trace.WithAttributes(
			attribute.Int64("reactor.effect.id", int64(r.Effect)),
			attribute.Int64("reactor.effect.duration_us", r.Duration.Microseconds()),
		))
	}
	if r.Err != nil {
		t.span.RecordError(r.Err, trace.WithAttributes(
			attribute.Int64("reactor.effect.id", int64(r.Effect)),
		))
	}
}

// SettleFinished implements reactive.Observer.
func (t *Tracer) SettleFinished(s reactive.SettleStats) {
	span := t.span
	t.span = nil
	if span == nil {
		return
	}
	span.SetAttributes(
		attribute.Int("reactor.settle.effects", s.Effects),
		attribute.Int("reactor.settle.mounts", s.Mounts),
		attribute.Int("reactor.settle.microtasks", s.Microtasks),
	)
	if s.Err != nil {
		span.RecordError(s.Err)
		span.SetStatus(codes.Error, s.Err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// OwnerDisposed implements reactive.Observer. Successful disposals are not
// traced. A failing one is recorded on the open settle span, or on a span of
// its own when the runtime is idle.
func (t *Tracer) OwnerDisposed(id reactive.OwnerID, err error) {
	if err == nil {
		return
	}
	attrs := trace.WithAttributes(attribute.Int64("reactor.owner.id", int64(id)))
	if t.span != nil {
		t.span.RecordError(err, attrs)
		return
	}
	_, span := t.tracer.Start(t.config.Context, "reactor.dispose",
		trace.WithSpanKind(trace.SpanKindInternal), attrs)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.End()
}
