package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vango-dev/reactor/pkg/server"
	"github.com/vango-dev/reactor/pkg/snapshot"
)

type serveOptions struct {
	addr   string
	items  int
	tick   time.Duration
	seed   uint64
	noStep bool
}

func serveCmd(configDir *string) *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the demo and mirror it to viewers",
		Long: `Run the demo application and serve its tree.

The demo edits a keyed list on every tick. Each settle that changes the
tree becomes one sequenced batch sent to every connected viewer.

Routes:
  /            server-rendered page
  /ws          WebSocket mirror (?since=N resumes)
  /snapshot    current markup
  /snapshots   archived snapshots
  /metrics     Prometheus metrics

Examples:
  reactor serve
  reactor serve --addr=0.0.0.0:8080 --tick=250ms
  reactor serve --items=100 --no-step`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(*configDir, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.addr, "addr", "a", "", "Listen address (default from reactor.json)")
	cmd.Flags().IntVarP(&opts.items, "items", "n", 0, "Initial list length (default from reactor.json)")
	cmd.Flags().DurationVarP(&opts.tick, "tick", "t", 0, "Time between demo edits (default from reactor.json)")
	cmd.Flags().Uint64Var(&opts.seed, "seed", 0, "Seed for the demo edits (default: time based)")
	cmd.Flags().BoolVar(&opts.noStep, "no-step", false, "Serve the initial tree without editing it")

	return cmd
}

func runServe(configDir string, opts serveOptions) error {
	cfg, err := loadConfig(configDir)
	if err != nil {
		return err
	}
	if opts.addr != "" {
		cfg.Server.Addr = opts.addr
	}
	if opts.items > 0 {
		cfg.Server.Items = opts.items
	}
	tick, err := cfg.TickInterval()
	if err != nil {
		return err
	}
	if opts.tick > 0 {
		tick = opts.tick
	}
	writeTimeout, err := cfg.WriteTimeout()
	if err != nil {
		return err
	}
	seed := opts.seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := newStack(ctx, cfg, stackOptions{seed: seed})
	if err != nil {
		return err
	}

	var store snapshot.Store
	if s, err := openStore(cfg); err != nil {
		warn("Snapshots disabled: %v", err)
	} else {
		store = s
	}

	mirror := server.NewMirror(st.rt, st.doc, st.app.Root(),
		server.WithMirrorLogger(st.logger.With("component", "mirror")),
		server.WithMirrorMetrics(st.metrics),
	)
	srv := server.New(mirror, &server.Config{
		Addr:                cfg.Server.Addr,
		WriteTimeout:        writeTimeout,
		Metrics:             st.metrics,
		Gatherer:            st.registry,
		MetricsPath:         cfg.Metrics.Path,
		DisableMetricsRoute: !cfg.Metrics.Enabled,
		Snapshots:           store,
		Logger:              st.logger,
	})

	printBanner()
	fmt.Println("  serve")
	fmt.Println()
	success("Mirroring %d items on http://%s", cfg.Server.Items, cfg.Server.Addr)
	if opts.noStep {
		info("Demo edits disabled")
	} else {
		info("Editing every %s (seed %d)", tick, seed)
	}
	if cfg.Tracing.Enabled {
		info("Tracing to %s", cfg.Tracing.Exporter)
	}
	fmt.Println()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return st.rt.Run(gctx) })
	g.Go(func() error { return srv.ListenAndServe(gctx) })
	if !opts.noStep {
		g.Go(func() error { return st.app.Run(gctx, tick) })
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if cerr := st.close(closeCtx); cerr != nil {
		errorMsg("Shutdown: %v", cerr)
	}
	if err != nil {
		return err
	}
	success("Stopped")
	return nil
}
