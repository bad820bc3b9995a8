package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/vango-dev/reactor/internal/errors"
)

const (
	// ConfigFileName is the name of the configuration file.
	ConfigFileName = "reactor.json"

	// DefaultAddr is the default mirror server address.
	DefaultAddr = "localhost:3000"

	// DefaultTickInterval is how often the demo application mutates its data.
	DefaultTickInterval = "1s"

	// DefaultWriteTimeout bounds a single websocket write.
	DefaultWriteTimeout = "10s"

	// DefaultMaxEffectRuns bounds effect runs per settle.
	DefaultMaxEffectRuns = 100_000

	// DefaultMetricsNamespace prefixes every Prometheus metric.
	DefaultMetricsNamespace = "reactor"

	// DefaultMetricsPath is where the server exposes metrics.
	DefaultMetricsPath = "/metrics"

	// DefaultTracerName is the OpenTelemetry instrumentation scope.
	DefaultTracerName = "github.com/vango-dev/reactor"

	// DefaultTraceExporter is where spans go when tracing is enabled.
	DefaultTraceExporter = ExporterStdout

	// DefaultOTLPEndpoint is the OTLP/gRPC collector address.
	DefaultOTLPEndpoint = "localhost:4317"

	// DefaultSnapshotDir is where the file store writes snapshots.
	DefaultSnapshotDir = "snapshots"
)

// Trace exporters.
const (
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

// Snapshot drivers.
const (
	DriverFile = "file"
	DriverS3   = "s3"
)

// Config represents the complete reactor.json configuration.
type Config struct {
	// Runtime configures the reactive runtime.
	Runtime RuntimeConfig `json:"runtime"`

	// Server configures the mirror server.
	Server ServerConfig `json:"server"`

	// Metrics configures Prometheus instrumentation.
	Metrics MetricsConfig `json:"metrics"`

	// Tracing configures OpenTelemetry spans.
	Tracing TracingConfig `json:"tracing"`

	// Snapshot configures where snapshots are archived.
	Snapshot SnapshotConfig `json:"snapshot"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// RuntimeConfig contains reactive runtime settings.
type RuntimeConfig struct {
	// MaxEffectRuns bounds effect runs per settle. Zero disables the limit.
	MaxEffectRuns int `json:"maxEffectRuns"`

	// Debug enables debug logging.
	Debug bool `json:"debug,omitempty"`
}

// ServerConfig contains mirror server settings.
type ServerConfig struct {
	// Addr is the listen address.
	Addr string `json:"addr,omitempty"`

	// TickInterval is how often the demo mutates its list (e.g., "1s").
	TickInterval string `json:"tickInterval,omitempty"`

	// WriteTimeout bounds a websocket write (e.g., "10s").
	WriteTimeout string `json:"writeTimeout,omitempty"`

	// Items is the initial size of the demo list.
	Items int `json:"items,omitempty"`
}

// MetricsConfig contains Prometheus settings.
type MetricsConfig struct {
	Enabled   bool   `json:"enabled"`
	Namespace string `json:"namespace,omitempty"`
	Path      string `json:"path,omitempty"`
}

// TracingConfig contains OpenTelemetry settings.
type TracingConfig struct {
	Enabled    bool   `json:"enabled"`
	TracerName string `json:"tracerName,omitempty"`

	// Exporter is "stdout" or "otlp".
	Exporter string `json:"exporter,omitempty"`

	// Endpoint is the OTLP collector address.
	Endpoint string `json:"endpoint,omitempty"`

	// Insecure disables TLS towards the collector.
	Insecure bool `json:"insecure,omitempty"`
}

// SnapshotConfig selects and configures the snapshot store.
type SnapshotConfig struct {
	// Driver is "file" or "s3".
	Driver string `json:"driver,omitempty"`

	// Dir is the file store directory.
	Dir string `json:"dir,omitempty"`

	// Bucket, Prefix, Region and Endpoint configure the S3 store. Endpoint
	// is optional and selects an S3-compatible service.
	Bucket   string `json:"bucket,omitempty"`
	Prefix   string `json:"prefix,omitempty"`
	Region   string `json:"region,omitempty"`
	Endpoint string `json:"endpoint,omitempty"`
}

// New creates a new Config with default values.
func New() *Config {
	return &Config{
		Runtime: RuntimeConfig{
			MaxEffectRuns: DefaultMaxEffectRuns,
		},
		Server: ServerConfig{
			Addr:         DefaultAddr,
			TickInterval: DefaultTickInterval,
			WriteTimeout: DefaultWriteTimeout,
			Items:        8,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: DefaultMetricsNamespace,
			Path:      DefaultMetricsPath,
		},
		Tracing: TracingConfig{
			TracerName: DefaultTracerName,
			Exporter:   DefaultTraceExporter,
			Endpoint:   DefaultOTLPEndpoint,
		},
		Snapshot: SnapshotConfig{
			Driver: DriverFile,
			Dir:    DefaultSnapshotDir,
		},
	}
}

// Load reads configuration from the specified directory.
// It looks for reactor.json in the directory.
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, ConfigFileName))
}

// LoadOrDefault is Load that falls back to defaults when dir has no
// reactor.json. Malformed files are still an error.
func LoadOrDefault(dir string) (*Config, error) {
	if !Exists(dir) {
		return New(), nil
	}
	return Load(dir)
}

// LoadFile reads configuration from the specified file path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("R121").
				WithDetail("No reactor.json found in " + filepath.Dir(path)).
				WithSuggestion("Create reactor.json or run without --config to use defaults")
		}
		return nil, errors.New("R120").Wrap(err)
	}

	cfg := New()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.New("R120").
			WithDetail("Failed to parse reactor.json: " + err.Error())
	}

	cfg.configPath = path
	cfg.applyDefaults()

	return cfg, nil
}

// Save writes the configuration to the file it was loaded from.
func (c *Config) Save() error {
	if c.configPath == "" {
		return errors.Newf(errors.CategoryConfig, "no config path set")
	}
	return c.SaveTo(c.configPath)
}

// SaveTo writes the configuration to the specified path.
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.New("R120").Wrap(err)
	}

	// Add newline at end of file
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.New("R120").Wrap(err)
	}

	c.configPath = path
	return nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// Dir returns the directory containing the config file.
func (c *Config) Dir() string {
	if c.configPath == "" {
		return ""
	}
	return filepath.Dir(c.configPath)
}

// applyDefaults fills in default values for empty fields.
func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if c.Server.TickInterval == "" {
		c.Server.TickInterval = DefaultTickInterval
	}
	if c.Server.WriteTimeout == "" {
		c.Server.WriteTimeout = DefaultWriteTimeout
	}
	if c.Server.Items == 0 {
		c.Server.Items = 8
	}

	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = DefaultMetricsNamespace
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}

	if c.Tracing.TracerName == "" {
		c.Tracing.TracerName = DefaultTracerName
	}
	if c.Tracing.Exporter == "" {
		c.Tracing.Exporter = DefaultTraceExporter
	}
	if c.Tracing.Endpoint == "" {
		c.Tracing.Endpoint = DefaultOTLPEndpoint
	}

	if c.Snapshot.Driver == "" {
		c.Snapshot.Driver = DriverFile
	}
	if c.Snapshot.Dir == "" {
		c.Snapshot.Dir = DefaultSnapshotDir
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Runtime.MaxEffectRuns < 0 {
		return errors.New("R122").
			WithDetail("runtime.maxEffectRuns must not be negative")
	}
	if _, err := c.TickInterval(); err != nil {
		return errors.New("R122").
			WithDetail("server.tickInterval: " + err.Error())
	}
	if d, err := c.WriteTimeout(); err != nil || d <= 0 {
		return errors.New("R122").
			WithDetail("server.writeTimeout must be a positive duration")
	}
	if c.Server.Items < 0 {
		return errors.New("R122").
			WithDetail("server.items must not be negative, got " + strconv.Itoa(c.Server.Items))
	}

	if c.Tracing.Exporter != ExporterStdout && c.Tracing.Exporter != ExporterOTLP {
		return errors.New("R122").
			WithDetail("tracing.exporter must be \"stdout\" or \"otlp\", got " + strconv.Quote(c.Tracing.Exporter))
	}

	switch c.Snapshot.Driver {
	case DriverFile:
		if c.Snapshot.Dir == "" {
			return errors.New("R121").WithDetail("snapshot.dir is required for the file driver")
		}
	case DriverS3:
		if c.Snapshot.Bucket == "" {
			return errors.New("R121").WithDetail("snapshot.bucket is required for the s3 driver")
		}
		if c.Snapshot.Region == "" {
			return errors.New("R121").WithDetail("snapshot.region is required for the s3 driver")
		}
	default:
		return errors.New("R122").
			WithDetail("snapshot.driver must be \"file\" or \"s3\", got " + strconv.Quote(c.Snapshot.Driver))
	}
	return nil
}

// TickInterval parses Server.TickInterval.
func (c *Config) TickInterval() (time.Duration, error) {
	return time.ParseDuration(c.Server.TickInterval)
}

// WriteTimeout parses Server.WriteTimeout.
func (c *Config) WriteTimeout() (time.Duration, error) {
	return time.ParseDuration(c.Server.WriteTimeout)
}

// SnapshotPath returns the absolute path to the snapshot directory.
func (c *Config) SnapshotPath() string {
	if filepath.IsAbs(c.Snapshot.Dir) {
		return c.Snapshot.Dir
	}
	return filepath.Join(c.Dir(), c.Snapshot.Dir)
}

// Exists checks if a config file exists in the given directory.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ConfigFileName))
	return err == nil
}

// FindProjectRoot walks up directories to find the directory containing
// reactor.json.
func FindProjectRoot(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	for {
		if Exists(dir) {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("R121").
				WithDetail("No reactor.json found in " + startDir + " or any parent directory")
		}
		dir = parent
	}
}
