// Package instrument reports reactive runtime activity to Prometheus and
// OpenTelemetry.
//
// Both reporters implement reactive.Observer and are registered with
// reactive.WithObserver:
//
//	m := instrument.NewMetrics(instrument.WithNamespace("reactor"))
//	tr := instrument.NewTracer(instrument.WithTracerName("demo"))
//	rt := reactive.NewRuntime(
//	    reactive.WithObserver(m),
//	    reactive.WithObserver(tr),
//	)
//
// Metrics collected:
//   - reactor_settles_total: Counter of settles by status
//   - reactor_settle_duration_seconds: Histogram of settle duration
//   - reactor_effect_runs_total: Counter of effect runs by status
//   - reactor_effect_duration_seconds: Histogram of effect run duration
//   - reactor_mounts_total, reactor_microtasks_total: Counters of settled callbacks
//   - reactor_errors_total: Counter of reported errors by type
//   - reactor_owners_disposed_total: Counter of disposed scopes by status
//   - reactor_container_ops_total: Counter of container mutations by op (see Metrics.Container)
//   - reactor_viewers: Gauge of connected viewers
//   - reactor_frames_sent_total, reactor_frame_bytes_total: frame traffic by type
//   - reactor_websocket_errors_total: Counter of WebSocket errors by type
//
// Expose them with promhttp.Handler or promhttp.HandlerFor the registry
// passed to WithRegistry.
package instrument
