package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fraudscan.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Repository.Driver != "sqlite" {
		t.Errorf("expected sqlite driver, got %s", cfg.Repository.Driver)
	}
	if cfg.Pipeline.MaxProviders != 5000 {
		t.Errorf("expected max_providers 5000, got %d", cfg.Pipeline.MaxProviders)
	}
	if cfg.Pipeline.MinPerSignal != 100 {
		t.Errorf("expected min_per_signal 100, got %d", cfg.Pipeline.MinPerSignal)
	}
	if cfg.Server.ReadTimeout != 30*time.Second {
		t.Errorf("expected 30s read timeout, got %s", cfg.Server.ReadTimeout)
	}
	if cfg.EventBus.Type != "channel" {
		t.Errorf("expected channel bus, got %s", cfg.EventBus.Type)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, `
repository:
  driver: postgres
  postgres_host: db.internal
  postgres_db: medicaid
cache:
  type: redis
  redis_addr: cache.internal:6379
  reference_ttl: 15m
pipeline:
  max_providers: 250
  detectors:
    - excluded_provider
    - billing_outlier
logging:
  level: debug
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Repository.Driver != "postgres" || cfg.Repository.PostgresHost != "db.internal" {
		t.Errorf("expected postgres at db.internal, got %s at %s", cfg.Repository.Driver, cfg.Repository.PostgresHost)
	}
	if cfg.Cache.ReferenceTTL != 15*time.Minute {
		t.Errorf("expected 15m reference ttl, got %s", cfg.Cache.ReferenceTTL)
	}
	if cfg.Pipeline.MaxProviders != 250 {
		t.Errorf("expected max_providers 250, got %d", cfg.Pipeline.MaxProviders)
	}
	if len(cfg.Pipeline.Detectors) != 2 {
		t.Errorf("expected 2 detectors, got %v", cfg.Pipeline.Detectors)
	}
	// untouched keys keep their defaults
	if cfg.Pipeline.MinPerSignal != 100 {
		t.Errorf("expected default min_per_signal 100, got %d", cfg.Pipeline.MinPerSignal)
	}
	if cfg.Repository.LookupBatchSize != 500 {
		t.Errorf("expected default lookup batch size 500, got %d", cfg.Repository.LookupBatchSize)
	}
}

func TestLoadEnv(t *testing.T) {
	path := writeFile(t, "pipeline:\n  max_providers: 250\n")

	t.Setenv("FRAUDSCAN_PIPELINE__MAX_PROVIDERS", "75")
	t.Setenv("FRAUDSCAN_REPOSITORY__SQLITE_PATH", "/data/claims.db")
	t.Setenv("FRAUDSCAN_PIPELINE__DETECTORS", "excluded_provider, phantom_servicing_hub")
	t.Setenv("FRAUDSCAN_SERVER__WRITE_TIMEOUT", "2m")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Pipeline.MaxProviders != 75 {
		t.Errorf("expected env to override file, got %d", cfg.Pipeline.MaxProviders)
	}
	if cfg.Repository.SQLitePath != "/data/claims.db" {
		t.Errorf("expected /data/claims.db, got %s", cfg.Repository.SQLitePath)
	}
	if len(cfg.Pipeline.Detectors) != 2 || cfg.Pipeline.Detectors[1] != "phantom_servicing_hub" {
		t.Errorf("expected 2 detectors from env, got %v", cfg.Pipeline.Detectors)
	}
	if cfg.Server.WriteTimeout != 2*time.Minute {
		t.Errorf("expected 2m write timeout, got %s", cfg.Server.WriteTimeout)
	}
}

func TestLoadErrors(t *testing.T) {
	t.Run("MissingFile", func(t *testing.T) {
		if _, err := Load("/nonexistent/fraudscan.yaml"); err == nil {
			t.Error("expected error for missing file")
		}
	})

	t.Run("MalformedYAML", func(t *testing.T) {
		path := writeFile(t, "pipeline: [unclosed\n")
		if _, err := Load(path); err == nil {
			t.Error("expected error for malformed yaml")
		}
	})

	t.Run("InvalidValues", func(t *testing.T) {
		path := writeFile(t, "repository:\n  driver: oracle\npipeline:\n  max_covid_era_ratio: 1.5\n")
		_, err := Load(path)
		if !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})
}
