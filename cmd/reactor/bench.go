package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"os"
	"runtime"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vango-dev/reactor/internal/config"
	rerrors "github.com/vango-dev/reactor/internal/errors"
	"github.com/vango-dev/reactor/pkg/dom"
	"github.com/vango-dev/reactor/pkg/server"
	"github.com/vango-dev/reactor/pkg/viewer"
)

type benchProfile struct {
	Name        string
	Viewers     int
	Duration    time.Duration
	StepsPerSec float64
	Items       int
}

var benchProfiles = map[string]benchProfile{
	"fast": {
		Name:        "fast",
		Viewers:     10,
		Duration:    5 * time.Second,
		StepsPerSec: 50,
		Items:       50,
	},
	"standard": {
		Name:        "standard",
		Viewers:     100,
		Duration:    20 * time.Second,
		StepsPerSec: 100,
		Items:       200,
	},
	"stress": {
		Name:        "stress",
		Viewers:     500,
		Duration:    60 * time.Second,
		StepsPerSec: 500,
		Items:       1000,
	},
}

type benchOptions struct {
	profile     string
	viewers     int
	duration    time.Duration
	stepsPerSec float64
	items       int
	seed        uint64
	jsonOutput  string
}

type benchReport struct {
	Version  string            `json:"version"`
	Run      benchRun          `json:"run"`
	Workload benchProfileJSON  `json:"workload"`
	StepUS   benchLatency      `json:"step_us"`
	Mirror   benchMirrorTotals `json:"mirror"`
	Errors   benchErrorTotals  `json:"errors"`
}

type benchRun struct {
	Timestamp string `json:"timestamp"`
	Go        string `json:"go"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
	CPUCount  int    `json:"cpu_count"`
}

type benchProfileJSON struct {
	Profile     string  `json:"profile"`
	Viewers     int     `json:"viewers"`
	DurationMS  int64   `json:"duration_ms"`
	StepsPerSec float64 `json:"steps_per_sec"`
	Items       int     `json:"items"`
	Seed        uint64  `json:"seed"`
}

type benchLatency struct {
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
	Max float64 `json:"max"`
}

type benchMirrorTotals struct {
	Steps          uint64  `json:"steps"`
	Batches        uint64  `json:"batches"`
	FramesReceived uint64  `json:"frames_received"`
	BytesReceived  uint64  `json:"bytes_received"`
	MutationsPerS  float64 `json:"mutations_per_sec"`
	InSync         int     `json:"viewers_in_sync"`
}

type benchErrorTotals struct {
	DialFailures uint64 `json:"dial_failures"`
	Disconnected uint64 `json:"disconnected"`
	Diverged     uint64 `json:"diverged"`
}

func benchCmd() *cobra.Command {
	var opts benchOptions

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure the mirror under load",
		Long: `Run the demo in process with a set of viewers and report step latency,
mirror throughput and whether every viewer converged on the final tree.

Profiles:
  fast       10 viewers, 5s, 50 steps/s, 50 items
  standard   100 viewers, 20s, 100 steps/s, 200 items
  stress     500 viewers, 60s, 500 steps/s, 1000 items

Examples:
  reactor bench --profile=fast
  reactor bench --viewers=20 --duration=10s --json=report.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := resolveBenchProfile(opts)
			if err != nil {
				return err
			}
			report, err := runBench(commandContext(cmd), p, opts.seed)
			if err != nil {
				return err
			}
			if opts.jsonOutput != "" {
				return writeBenchJSON(opts.jsonOutput, report)
			}
			printBenchReport(report)
			if report.Errors.Diverged > 0 {
				return rerrors.New("R162").WithDetail(fmt.Sprintf("%d viewers diverged", report.Errors.Diverged))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.profile, "profile", "p", "fast", "Profile: fast|standard|stress")
	cmd.Flags().IntVar(&opts.viewers, "viewers", 0, "Concurrent viewers (default from profile)")
	cmd.Flags().DurationVarP(&opts.duration, "duration", "d", 0, "Run time (default from profile)")
	cmd.Flags().Float64Var(&opts.stepsPerSec, "steps", 0, "Demo edits per second (default from profile)")
	cmd.Flags().IntVarP(&opts.items, "items", "n", 0, "Initial list length (default from profile)")
	cmd.Flags().Uint64Var(&opts.seed, "seed", 1, "Seed for the demo edits")
	cmd.Flags().StringVar(&opts.jsonOutput, "json", "", "Write a JSON report to this path ('-' for stdout)")

	return cmd
}

func resolveBenchProfile(opts benchOptions) (benchProfile, error) {
	name := strings.ToLower(strings.TrimSpace(opts.profile))
	p, ok := benchProfiles[name]
	if !ok {
		return benchProfile{}, rerrors.New("R161").WithDetail(fmt.Sprintf("unknown profile %q", opts.profile))
	}
	if opts.viewers > 0 {
		p.Viewers = opts.viewers
	}
	if opts.duration > 0 {
		p.Duration = opts.duration
	}
	if opts.stepsPerSec > 0 {
		p.StepsPerSec = opts.stepsPerSec
	}
	if opts.items > 0 {
		p.Items = opts.items
	}
	if p.Viewers < 0 || p.Duration <= 0 || p.StepsPerSec <= 0 {
		return benchProfile{}, rerrors.New("R161").WithDetail("viewers, duration and steps must be positive")
	}
	return p, nil
}

func runBench(parent context.Context, p benchProfile, seed uint64) (benchReport, error) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	cfg := config.New()
	cfg.Server.Items = p.Items
	st, err := newStack(ctx, cfg, stackOptions{seed: seed, quiet: true})
	if err != nil {
		return benchReport{}, err
	}

	mirror := server.NewMirror(st.rt, st.doc, st.app.Root(),
		server.WithMirrorLogger(st.logger),
		server.WithMirrorMetrics(st.metrics),
		server.WithHistory(1024),
	)
	srv := server.New(mirror, &server.Config{
		Metrics:   st.metrics,
		Gatherer:  st.registry,
		QueueSize: 1024,
		Logger:    st.logger,
	})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return benchReport{}, err
	}
	url := "http://" + ln.Addr().String()

	infra, infraCtx := errgroup.WithContext(ctx)
	infra.Go(func() error { return st.rt.Run(infraCtx) })
	infra.Go(func() error { return srv.Serve(infraCtx, ln) })

	var (
		errs     benchErrorTotals
		clientMu sync.Mutex
		clients  []*viewer.Client
	)
	var dialFailures, disconnected atomic.Uint64

	followCtx, stopFollowing := context.WithCancel(ctx)
	defer stopFollowing()
	var followers sync.WaitGroup
	for i := 0; i < p.Viewers; i++ {
		c, err := viewer.Dial(ctx, url)
		if err != nil {
			dialFailures.Add(1)
			continue
		}
		clientMu.Lock()
		clients = append(clients, c)
		clientMu.Unlock()

		followers.Add(1)
		go func() {
			defer followers.Done()
			for {
				if _, err := c.Next(followCtx); err != nil {
					if followCtx.Err() == nil {
						disconnected.Add(1)
					}
					return
				}
			}
		}()
	}

	var (
		stepMu    sync.Mutex
		stepTimes []time.Duration
		steps     atomic.Uint64
	)
	interval := time.Duration(float64(time.Second) / p.StepsPerSec)
	ticker := time.NewTicker(interval)
	deadline := time.After(p.Duration)
	start := time.Now()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-deadline:
			break loop
		case <-ticker.C:
			st.rt.Post(func() {
				t0 := time.Now()
				_, err := st.app.Step()
				st.rt.HandleError(err)
				// Microtasks run once the effects of the step have flushed.
				st.rt.QueueDetachedMicrotask(func() {
					d := time.Since(t0)
					steps.Add(1)
					stepMu.Lock()
					stepTimes = append(stepTimes, d)
					stepMu.Unlock()
				})
			})
		}
	}
	ticker.Stop()
	elapsed := time.Since(start)

	// Read the final state on the runtime goroutine, after every queued step.
	type final struct {
		seq    uint64
		markup string
	}
	finalCh := make(chan final, 1)
	st.rt.Post(func() { finalCh <- final{mirror.Seq(), dom.Markup(st.app.Root())} })
	var want final
	select {
	case want = <-finalCh:
	case <-time.After(10 * time.Second):
		return benchReport{}, errors.New("bench: runtime did not drain")
	}

	// Let followers catch up before stopping them. Disconnected viewers
	// never will.
	settle := time.Now().Add(10 * time.Second)
	for time.Now().Before(settle) {
		behind := 0
		clientMu.Lock()
		for _, c := range clients {
			if c.Stats().Snapshots == 0 || c.Seq() < want.seq {
				behind++
			}
		}
		clientMu.Unlock()
		if uint64(behind) <= disconnected.Load() {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	stopFollowing()
	for _, c := range clients {
		c.Close()
	}
	followers.Wait()

	var frames, bytes, mutations uint64
	inSync := 0
	for _, c := range clients {
		s := c.Stats()
		frames += s.Frames
		bytes += s.Bytes
		mutations += s.Mutations
		if c.Replica().Seq() == want.seq && c.Replica().Markup() == want.markup {
			inSync++
		} else {
			errs.Diverged++
		}
	}
	errs.DialFailures = dialFailures.Load()
	errs.Disconnected = disconnected.Load()

	cancel()
	if err := infra.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return benchReport{}, err
	}
	if err := st.close(context.Background()); err != nil {
		return benchReport{}, err
	}

	slices.Sort(stepTimes)
	report := benchReport{
		Version: currentBuild().Version,
		Run: benchRun{
			Timestamp: start.UTC().Format(time.RFC3339),
			Go:        runtime.Version(),
			OS:        runtime.GOOS,
			Arch:      runtime.GOARCH,
			CPUCount:  runtime.NumCPU(),
		},
		Workload: benchProfileJSON{
			Profile:     p.Name,
			Viewers:     p.Viewers,
			DurationMS:  p.Duration.Milliseconds(),
			StepsPerSec: p.StepsPerSec,
			Items:       p.Items,
			Seed:        seed,
		},
		StepUS: benchLatency{
			P50: micros(percentile(stepTimes, 0.50)),
			P95: micros(percentile(stepTimes, 0.95)),
			P99: micros(percentile(stepTimes, 0.99)),
			Max: micros(percentile(stepTimes, 1)),
		},
		Mirror: benchMirrorTotals{
			Steps:          steps.Load(),
			Batches:        want.seq,
			FramesReceived: frames,
			BytesReceived:  bytes,
			InSync:         inSync,
		},
		Errors: errs,
	}
	if elapsed > 0 {
		report.Mirror.MutationsPerS = float64(mutations) / elapsed.Seconds()
	}
	return report, nil
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[len(sorted)-1]
	}
	idx := int(math.Ceil(float64(len(sorted))*p)) - 1
	idx = max(0, min(idx, len(sorted)-1))
	return sorted[idx]
}

func micros(d time.Duration) float64 {
	return float64(d.Nanoseconds()) / 1e3
}

func writeBenchJSON(path string, report benchReport) error {
	var out io.Writer = os.Stdout
	if path != "-" {
		file, err := os.Create(path)
		if err != nil {
			return err
		}
		defer file.Close()
		out = file
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func printBenchReport(r benchReport) {
	printBanner()
	fmt.Println("  bench")
	fmt.Println()
	info("Profile:     %s (%d viewers, %d items, %.0f steps/s, %s)",
		r.Workload.Profile, r.Workload.Viewers, r.Workload.Items, r.Workload.StepsPerSec,
		time.Duration(r.Workload.DurationMS)*time.Millisecond)
	info("Steps:       %d", r.Mirror.Steps)
	info("Step (µs):   p50 %.1f  p95 %.1f  p99 %.1f  max %.1f", r.StepUS.P50, r.StepUS.P95, r.StepUS.P99, r.StepUS.Max)
	info("Batches:     %d", r.Mirror.Batches)
	info("Received:    %d frames, %d bytes, %.0f mutations/s", r.Mirror.FramesReceived, r.Mirror.BytesReceived, r.Mirror.MutationsPerS)
	fmt.Println()
	if r.Errors.DialFailures > 0 || r.Errors.Disconnected > 0 {
		warn("%d dial failures, %d disconnected", r.Errors.DialFailures, r.Errors.Disconnected)
	}
	if r.Errors.Diverged > 0 {
		errorMsg("%d of %d viewers diverged", r.Errors.Diverged, r.Workload.Viewers)
		return
	}
	success("All %d viewers converged", r.Mirror.InSync)
}
