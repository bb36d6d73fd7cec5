// Package config loads fraudscan configuration from defaults, an optional
// YAML file and FRAUDSCAN_ environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/opensource-finance/fraudscan/internal/domain"
)

// EnvPrefix prefixes every environment override. A double underscore
// separates nesting levels: FRAUDSCAN_PIPELINE__MAX_PROVIDERS.
const EnvPrefix = "FRAUDSCAN_"

// ErrInvalidConfig is returned when a loaded configuration fails validation.
var ErrInvalidConfig = errors.New("invalid config")

// Load builds the configuration. An empty path skips the file layer; a
// missing file at a non-empty path is an error.
func Load(path string) (*domain.Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(domain.DefaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envValue), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg domain.Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envValue(key, value string) (string, any) {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	key = strings.ReplaceAll(key, "__", ".")
	if key == "pipeline.detectors" {
		var names []string
		for _, n := range strings.Split(value, ",") {
			if n = strings.TrimSpace(n); n != "" {
				names = append(names, n)
			}
		}
		return key, names
	}
	return key, value
}

// Validate rejects configurations no component can run with.
func Validate(cfg *domain.Config) error {
	var problems []string

	switch cfg.Repository.Driver {
	case "sqlite", "postgres", "":
	default:
		problems = append(problems, fmt.Sprintf("repository.driver %q must be sqlite or postgres", cfg.Repository.Driver))
	}
	switch cfg.Cache.Type {
	case "memory", "redis", "none", "":
	default:
		problems = append(problems, fmt.Sprintf("cache.type %q must be memory, redis or none", cfg.Cache.Type))
	}
	switch cfg.EventBus.Type {
	case "channel", "nats", "none", "":
	default:
		problems = append(problems, fmt.Sprintf("event_bus.type %q must be channel, nats or none", cfg.EventBus.Type))
	}
	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "error", "":
	default:
		problems = append(problems, fmt.Sprintf("logging.level %q is not a level", cfg.Logging.Level))
	}
	switch cfg.Logging.Format {
	case "json", "text", "":
	default:
		problems = append(problems, fmt.Sprintf("logging.format %q must be json or text", cfg.Logging.Format))
	}

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port %d out of range", cfg.Server.Port))
	}
	if cfg.Pipeline.MaxProviders < 0 {
		problems = append(problems, "pipeline.max_providers must not be negative")
	}
	if cfg.Pipeline.MinPerSignal < 0 {
		problems = append(problems, "pipeline.min_per_signal must not be negative")
	}
	if r := cfg.Pipeline.MaxCovidEraRatio; r < 0 || r > 1 {
		problems = append(problems, fmt.Sprintf("pipeline.max_covid_era_ratio %.2f must be within [0, 1]", r))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}
