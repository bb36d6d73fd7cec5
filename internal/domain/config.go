package domain

import "time"

// Config holds the complete fraudscan configuration.
type Config struct {
	// Server settings for the report server
	Server ServerConfig `koanf:"server"`

	// Component configurations
	Repository RepositoryConfig `koanf:"repository"`
	Cache      CacheConfig      `koanf:"cache"`
	EventBus   EventBusConfig   `koanf:"event_bus"`

	// Scan pipeline
	Pipeline PipelineConfig `koanf:"pipeline"`

	// Observability
	Logging LoggingConfig `koanf:"logging"`
	Tracing TracingConfig `koanf:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string        `koanf:"host"`
	Port         int           `koanf:"port"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

// PipelineConfig controls selection, filtering and network actionability.
type PipelineConfig struct {
	// MaxProviders caps the final flagged list. 0 disables the cap.
	MaxProviders int `koanf:"max_providers"`

	// MinPerSignal is the per-signal-type quota honored before the cap.
	MinPerSignal int `koanf:"min_per_signal"`

	// DetectorConcurrency bounds how many detectors query at once.
	DetectorConcurrency int `koanf:"detector_concurrency"`

	// LegitimacyPatternsPath overrides the embedded pattern set.
	LegitimacyPatternsPath string `koanf:"legitimacy_patterns_path"`

	// Detectors restricts the run to the named signal types. Empty runs all.
	Detectors []string `koanf:"detectors"`

	// Network actionability thresholds
	MinNetworkOverpayment float64 `koanf:"min_network_overpayment"`
	SoloMinOverpayment    float64 `koanf:"solo_min_overpayment"`
	MaxCovidEraRatio      float64 `koanf:"max_covid_era_ratio"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `koanf:"enabled"`
	ServiceName string `koanf:"service_name"`
}

// DefaultConfig returns the local single-node configuration:
// SQLite dataset, in-memory cache and channel bus.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Repository: RepositoryConfig{
			Driver:          "sqlite",
			SQLitePath:      "./medicaid.db",
			LookupBatchSize: 500,
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 50000,
			LocalTTL:     time.Hour,
			ReferenceTTL: time.Hour,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Pipeline: PipelineConfig{
			MaxProviders:          5000,
			MinPerSignal:          100,
			DetectorConcurrency:   4,
			MinNetworkOverpayment: 500_000,
			SoloMinOverpayment:    5_000_000,
			MaxCovidEraRatio:      0.75,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "fraudscan",
		},
	}
}
