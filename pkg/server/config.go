package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/vango-dev/reactor/pkg/instrument"
	"github.com/vango-dev/reactor/pkg/snapshot"
)

// Config holds the server configuration.
type Config struct {
	// Addr is the listen address. Default: "localhost:3000".
	Addr string

	// WriteTimeout bounds a single WebSocket write. Default: 10 seconds.
	WriteTimeout time.Duration

	// ReadTimeout is how long a viewer may stay silent before it is
	// dropped. Viewers answer pings, so this must exceed PingInterval.
	// Default: 60 seconds.
	ReadTimeout time.Duration

	// PingInterval is the time between heartbeat pings. Default: 20 seconds.
	PingInterval time.Duration

	// QueueSize is the number of frames buffered per viewer. A viewer whose
	// queue is full is disconnected with CloseSlowViewer. Default: 64.
	QueueSize int

	// HistorySize is the number of batches kept for reconnecting viewers.
	// Default: 128.
	HistorySize int

	// ReadBufferSize and WriteBufferSize size the WebSocket buffers.
	ReadBufferSize  int
	WriteBufferSize int

	// CheckOrigin validates the Origin header of WebSocket upgrades. If nil,
	// the gorilla/websocket same-origin check applies.
	CheckOrigin func(r *http.Request) bool

	// Title is the page title served on "/".
	Title string

	// Metrics receives viewer and frame counts. Optional.
	Metrics *instrument.Metrics

	// Gatherer backs the metrics route. Default: prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer

	// MetricsPath is where Gatherer is served. Default: "/metrics".
	MetricsPath string

	// DisableMetricsRoute leaves the metrics route unmounted.
	DisableMetricsRoute bool

	// Snapshots archives markup for the /snapshots routes. Optional.
	Snapshots snapshot.Store

	// SnapshotName names archived snapshots. Default: "mirror".
	SnapshotName string

	// Logger is the structured logger. Default: slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Addr:            "localhost:3000",
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    20 * time.Second,
		QueueSize:       64,
		HistorySize:     128,
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		Title:           "reactor",
		Gatherer:        prometheus.DefaultGatherer,
		MetricsPath:     "/metrics",
		SnapshotName:    "mirror",
		Logger:          slog.Default(),
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c *Config) withDefaults() *Config {
	d := DefaultConfig()
	if c == nil {
		return d
	}
	out := *c
	if out.Addr == "" {
		out.Addr = d.Addr
	}
	if out.WriteTimeout <= 0 {
		out.WriteTimeout = d.WriteTimeout
	}
	if out.ReadTimeout <= 0 {
		out.ReadTimeout = d.ReadTimeout
	}
	if out.PingInterval <= 0 {
		out.PingInterval = d.PingInterval
	}
	if out.QueueSize <= 0 {
		out.QueueSize = d.QueueSize
	}
	if out.HistorySize <= 0 {
		out.HistorySize = d.HistorySize
	}
	if out.Title == "" {
		out.Title = d.Title
	}
	if out.Gatherer == nil {
		out.Gatherer = d.Gatherer
	}
	if out.MetricsPath == "" {
		out.MetricsPath = d.MetricsPath
	}
	if out.SnapshotName == "" {
		out.SnapshotName = d.SnapshotName
	}
	if out.Logger == nil {
		out.Logger = d.Logger
	}
	return &out
}
