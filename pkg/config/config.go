package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/openweft/weft/pkg/telemetry"
)

// Backend names accepted by StoreConfig.Backend.
const (
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
	BackendNone   = "none"
)

// validate is the shared validator instance. go-playground/validator
// caches struct metadata, so one instance serves the whole package.
var validate = validator.New()

// Config is the runtime configuration for the Weft engine. It is
// loaded from a YAML file, filled with defaults, and validated before
// any subsystem is constructed.
type Config struct {
	// Engine configures orchestration behavior.
	Engine EngineConfig `yaml:"engine"`

	// Cache configures the tiered execution cache.
	Cache CacheConfig `yaml:"cache"`

	// Store configures the persistent slow tier.
	Store StoreConfig `yaml:"store"`

	// Telemetry configures logging, metrics, tracing, and events.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// EngineConfig configures the orchestrator.
type EngineConfig struct {
	// Parallelism bounds concurrent component executions within a
	// graph level. Values below 2 select sequential execution.
	Parallelism int `yaml:"parallelism" validate:"min=0"`
}

// CacheConfig configures the tiered execution cache.
type CacheConfig struct {
	// Capacity is the maximum number of fast-tier entries.
	Capacity int `yaml:"capacity" validate:"required,min=1"`

	// MaxBytes bounds the total fast-tier payload size in bytes.
	// Zero means no byte limit.
	MaxBytes int64 `yaml:"max_bytes" validate:"min=0"`

	// Eviction selects the fast-tier eviction strategy.
	Eviction string `yaml:"eviction" validate:"required,oneof=lru lfu fifo"`

	// DefaultTTL applies to entries stored without an explicit TTL.
	// Zero means entries do not expire.
	DefaultTTL Duration `yaml:"default_ttl" validate:"min=0"`

	// SweepInterval is how often the expiry sweeper purges expired
	// entries. Zero disables the sweeper.
	SweepInterval Duration `yaml:"sweep_interval" validate:"min=0"`
}

// StoreConfig configures the slow-tier persistence backend.
type StoreConfig struct {
	// Backend selects the slow-tier backend. "none" runs the cache
	// fast-tier only.
	Backend string `yaml:"backend" validate:"required,oneof=sqlite badger none"`

	// Path is the SQLite database file or the BadgerDB directory.
	Path string `yaml:"path"`

	// InMemory runs the badger backend without disk persistence.
	InMemory bool `yaml:"in_memory"`

	// SyncWrites enables synchronous writes on the badger backend.
	SyncWrites bool `yaml:"sync_writes"`

	// GCInterval is how often the badger value-log garbage collector
	// runs. Zero disables the GC runner.
	GCInterval Duration `yaml:"gc_interval" validate:"min=0"`
}

// TelemetryConfig configures the observability stack. It is a flat
// YAML-friendly projection of telemetry.Config; ToTelemetryConfig
// performs the mapping.
type TelemetryConfig struct {
	// ServiceName identifies the service in logs, metrics, and traces.
	ServiceName string `yaml:"service_name" validate:"required"`

	// ServiceVersion is reported with telemetry data.
	ServiceVersion string `yaml:"service_version"`

	// Environment is the deployment environment (development, staging,
	// production).
	Environment string `yaml:"environment"`

	// LogLevel sets the minimum log level.
	LogLevel string `yaml:"log_level" validate:"required,oneof=trace debug info warn error fatal"`

	// LogFormat selects console or json log output.
	LogFormat string `yaml:"log_format" validate:"required,oneof=console json"`

	// MetricsEnabled toggles Prometheus metrics collection.
	MetricsEnabled bool `yaml:"metrics_enabled"`

	// MetricsListen is the address for the metrics HTTP endpoint.
	MetricsListen string `yaml:"metrics_listen"`

	// TracingEnabled toggles OpenTelemetry tracing.
	TracingEnabled bool `yaml:"tracing_enabled"`

	// TraceExporter selects the trace exporter.
	TraceExporter string `yaml:"trace_exporter" validate:"omitempty,oneof=otlp stdout none"`

	// TraceEndpoint is the OTLP collector endpoint.
	TraceEndpoint string `yaml:"trace_endpoint"`

	// TraceSampling is the trace sampling rate between 0 and 1.
	TraceSampling float64 `yaml:"trace_sampling" validate:"min=0,max=1"`

	// EventsEnabled toggles the in-process event publisher.
	EventsEnabled bool `yaml:"events_enabled"`
}

// Duration wraps time.Duration so YAML values like "90s" or "5m" parse
// with time.ParseDuration.
type Duration time.Duration

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}

	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Default returns the default runtime configuration: a 1024-entry LRU
// fast tier over a SQLite slow tier, sequential execution, console
// logging at info level.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			Parallelism: 0,
		},
		Cache: CacheConfig{
			Capacity:      1024,
			MaxBytes:      0,
			Eviction:      "lru",
			DefaultTTL:    0,
			SweepInterval: Duration(time.Minute),
		},
		Store: StoreConfig{
			Backend:    BackendSQLite,
			Path:       "weft.db",
			SyncWrites: true,
		},
		Telemetry: TelemetryConfig{
			ServiceName:    "weft",
			ServiceVersion: "dev",
			Environment:    "development",
			LogLevel:       "info",
			LogFormat:      "console",
			MetricsEnabled: true,
			MetricsListen:  ":9090",
			TracingEnabled: false,
			TraceExporter:  "stdout",
			TraceSampling:  1.0,
			EventsEnabled:  true,
		},
	}
}

// Load reads a YAML configuration file, applies defaults, and
// validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}

	return cfg, nil
}

// Parse parses YAML configuration bytes over the defaults and
// validates the result. Keys absent from the document keep their
// default values.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyDefaults fills unset fields with their default values. Parse
// calls it before validation; callers constructing a Config by hand
// can use it the same way. Fields whose zero value is meaningful
// (parallelism, TTLs, byte limits) are left alone.
func (c *Config) ApplyDefaults() {
	def := Default()

	if c.Cache.Capacity == 0 {
		c.Cache.Capacity = def.Cache.Capacity
	}
	if c.Cache.Eviction == "" {
		c.Cache.Eviction = def.Cache.Eviction
	}
	if c.Store.Backend == "" {
		c.Store.Backend = def.Store.Backend
	}
	if c.Store.Backend == BackendSQLite && c.Store.Path == "" {
		c.Store.Path = def.Store.Path
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = def.Telemetry.ServiceName
	}
	if c.Telemetry.ServiceVersion == "" {
		c.Telemetry.ServiceVersion = def.Telemetry.ServiceVersion
	}
	if c.Telemetry.Environment == "" {
		c.Telemetry.Environment = def.Telemetry.Environment
	}
	if c.Telemetry.LogLevel == "" {
		c.Telemetry.LogLevel = def.Telemetry.LogLevel
	}
	if c.Telemetry.LogFormat == "" {
		c.Telemetry.LogFormat = def.Telemetry.LogFormat
	}
	if c.Telemetry.TraceExporter == "" {
		c.Telemetry.TraceExporter = def.Telemetry.TraceExporter
	}
	if c.Telemetry.MetricsEnabled && c.Telemetry.MetricsListen == "" {
		c.Telemetry.MetricsListen = def.Telemetry.MetricsListen
	}
}

// Validate checks the configuration against struct tags and
// backend-specific constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	switch c.Store.Backend {
	case BackendSQLite:
		if c.Store.Path == "" {
			return fmt.Errorf("store path is required for the sqlite backend")
		}
	case BackendBadger:
		if !c.Store.InMemory && c.Store.Path == "" {
			return fmt.Errorf("store path is required for the badger backend unless in_memory is set")
		}
	}

	return nil
}

// ToTelemetryConfig maps the flat telemetry section onto a full
// telemetry.Config, starting from the preset matching the configured
// environment.
func (c *Config) ToTelemetryConfig() *telemetry.Config {
	var tc *telemetry.Config
	if c.Telemetry.Environment == "production" {
		tc = telemetry.ProductionConfig()
	} else {
		tc = telemetry.DefaultConfig()
	}

	tc.ServiceName = c.Telemetry.ServiceName
	tc.ServiceVersion = c.Telemetry.ServiceVersion
	tc.Environment = c.Telemetry.Environment

	tc.Logging.Level = c.Telemetry.LogLevel
	tc.Logging.Format = c.Telemetry.LogFormat

	tc.Metrics.Enabled = c.Telemetry.MetricsEnabled
	if c.Telemetry.MetricsListen != "" {
		tc.Metrics.ListenAddress = c.Telemetry.MetricsListen
	}

	tc.Tracing.Enabled = c.Telemetry.TracingEnabled
	if c.Telemetry.TraceExporter != "" {
		tc.Tracing.Exporter = c.Telemetry.TraceExporter
	}
	tc.Tracing.Endpoint = c.Telemetry.TraceEndpoint
	tc.Tracing.SamplingRate = c.Telemetry.TraceSampling

	tc.Events.Enabled = c.Telemetry.EventsEnabled

	return tc
}
