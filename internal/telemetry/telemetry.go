// Package telemetry sets up the OpenTelemetry trace pipeline for the reactor
// binary. The spans themselves come from instrument.Tracer.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/vango-dev/reactor/internal/config"
	"github.com/vango-dev/reactor/internal/errors"
)

// Options configures Init beyond what reactor.json holds.
type Options struct {
	// ServiceVersion is reported as service.version.
	ServiceVersion string
	// Writer receives stdout spans. Default: os.Stdout.
	Writer io.Writer
}

// Init builds a tracer provider for cfg. When tracing is disabled it returns
// a no-op provider. shutdown flushes pending spans.
func Init(ctx context.Context, cfg config.TracingConfig, opts Options) (tp trace.TracerProvider, shutdown func(context.Context) error, err error) {
	if !cfg.Enabled {
		return noop.NewTracerProvider(), func(context.Context) error { return nil }, nil
	}

	exporter, err := newExporter(ctx, cfg, opts)
	if err != nil {
		return nil, nil, errors.New("R170").WithDetail(cfg.Exporter + ": " + err.Error()).Wrap(err)
	}

	res := resource.NewWithAttributes(
		"",
		attribute.String("service.name", "reactor"),
		attribute.String("service.version", opts.ServiceVersion),
	)
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	return provider, provider.Shutdown, nil
}

func newExporter(ctx context.Context, cfg config.TracingConfig, opts Options) (sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case config.ExporterStdout:
		w := opts.Writer
		if w == nil {
			w = os.Stdout
		}
		return stdouttrace.New(stdouttrace.WithWriter(w))
	case config.ExporterOTLP:
		grpcOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			grpcOpts = append(grpcOpts, otlptracegrpc.WithInsecure())
		}
		return otlptracegrpc.New(ctx, grpcOpts...)
	default:
		return nil, fmt.Errorf("unknown exporter %q", cfg.Exporter)
	}
}
