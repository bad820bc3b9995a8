package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"github.com/vango-dev/reactor/internal/config"
	"github.com/vango-dev/reactor/internal/demo"
	"github.com/vango-dev/reactor/internal/telemetry"
	"github.com/vango-dev/reactor/pkg/dom"
	"github.com/vango-dev/reactor/pkg/instrument"
	"github.com/vango-dev/reactor/pkg/reactive"
	"github.com/vango-dev/reactor/pkg/snapshot"
)

// stack is the demo application with its runtime and instrumentation,
// built from reactor.json.
type stack struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *instrument.Metrics
	rt       *reactive.Runtime
	doc      *dom.Document
	app      *demo.App

	shutdownTracing func(context.Context) error
}

type stackOptions struct {
	seed  uint64
	quiet bool
}

func loadConfig(dir string) (*config.Config, error) {
	cfg, err := config.LoadOrDefault(dir)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(debug, quiet bool) *slog.Logger {
	level := slog.LevelInfo
	switch {
	case debug:
		level = slog.LevelDebug
	case quiet:
		level = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// newStack builds the runtime and mounts the demo. It must be called before
// the runtime is handed to Runtime.Run.
func newStack(ctx context.Context, cfg *config.Config, opts stackOptions) (*stack, error) {
	s := &stack{
		cfg:      cfg,
		logger:   newLogger(cfg.Runtime.Debug, opts.quiet),
		registry: prometheus.NewRegistry(),
		doc:      dom.NewDocument(),
	}
	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	rtOpts := []reactive.Option{
		reactive.WithLogger(s.logger.With("component", "runtime")),
		reactive.WithMaxEffectRuns(cfg.Runtime.MaxEffectRuns),
		reactive.WithErrorHandler(func(err error) {
			s.logger.Error("runtime error", "error", err)
		}),
	}

	if cfg.Metrics.Enabled {
		s.metrics = instrument.NewMetrics(
			instrument.WithNamespace(cfg.Metrics.Namespace),
			instrument.WithRegistry(s.registry),
		)
		rtOpts = append(rtOpts, reactive.WithObserver(s.metrics))
	}

	tp, shutdown, err := telemetry.Init(ctx, cfg.Tracing, telemetry.Options{ServiceVersion: currentBuild().Version})
	if err != nil {
		return nil, err
	}
	s.shutdownTracing = shutdown
	if cfg.Tracing.Enabled {
		rtOpts = append(rtOpts, reactive.WithObserver(instrument.NewTracer(
			instrument.WithTracerName(cfg.Tracing.TracerName),
			instrument.WithTracerProvider(tp),
		)))
	}

	s.rt = reactive.NewRuntime(rtOpts...)

	demoOpts := demo.Options{Items: cfg.Server.Items, Seed: opts.seed}
	if s.metrics != nil {
		demoOpts.Wrap = s.metrics.Container
	}
	s.app, err = demo.New(s.rt, s.doc, demoOpts)
	if err != nil {
		return nil, multierr.Append(err, shutdown(ctx))
	}
	return s, nil
}

// close disposes the demo and flushes spans. The runtime must no longer be
// running.
func (s *stack) close(ctx context.Context) error {
	return multierr.Combine(
		s.app.Dispose(),
		s.rt.Drain(),
		s.shutdownTracing(ctx),
	)
}

// openStore returns the snapshot store selected in reactor.json.
func openStore(cfg *config.Config) (snapshot.Store, error) {
	switch cfg.Snapshot.Driver {
	case config.DriverS3:
		client := snapshot.NewS3Client(snapshot.S3Options{
			Region:   cfg.Snapshot.Region,
			Endpoint: cfg.Snapshot.Endpoint,
		})
		return snapshot.NewS3Store(client, cfg.Snapshot.Bucket, cfg.Snapshot.Prefix, 0), nil
	default:
		return snapshot.NewDiskStore(cfg.SnapshotPath(), 0)
	}
}
