package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/marmos91/eradb/internal/bytesize"
	"github.com/marmos91/eradb/pkg/engine"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestLoad_FileWithDefaults(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: debug

database:
  path: /var/lib/eradb
  max_journal_eras: 8
  preallocated_size: 16Mi
  era_limit_policy: REJECT
  cache:
    size: 1Mi

flusher:
  interval: 5s
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected normalized level DEBUG, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Database.Path != "/var/lib/eradb" {
		t.Errorf("Expected database path /var/lib/eradb, got %q", cfg.Database.Path)
	}
	if cfg.Database.MaxJournalEras != 8 {
		t.Errorf("Expected 8 journal eras, got %d", cfg.Database.MaxJournalEras)
	}
	if cfg.Database.PreallocatedSize != 16*bytesize.MiB {
		t.Errorf("Expected 16Mi preallocated, got %v", cfg.Database.PreallocatedSize)
	}
	if cfg.Database.ExtendThresholdPct != 80 {
		t.Errorf("Expected default threshold 80, got %d", cfg.Database.ExtendThresholdPct)
	}
	if cfg.Database.EraLimitPolicy != "reject" {
		t.Errorf("Expected policy 'reject', got %q", cfg.Database.EraLimitPolicy)
	}
	if !cfg.Database.Cache.Enabled {
		t.Error("Expected cache enabled by default")
	}
	if cfg.Database.Cache.Size != bytesize.MiB {
		t.Errorf("Expected cache size 1Mi, got %v", cfg.Database.Cache.Size)
	}
	if cfg.Flusher.Interval != 5*time.Second {
		t.Errorf("Expected flusher interval 5s, got %v", cfg.Flusher.Interval)
	}
	if !cfg.Flusher.FlushOnStop {
		t.Error("Expected flush_on_stop enabled by default")
	}
}

func TestLoad_NoConfigFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	if err != nil {
		t.Fatalf("Expected no error when loading default config, got: %v", err)
	}

	def := GetDefaultConfig()
	if cfg.Database != def.Database {
		t.Errorf("Expected default database config %+v, got %+v", def.Database, cfg.Database)
	}
	if !reflect.DeepEqual(cfg.Telemetry, def.Telemetry) {
		t.Errorf("Expected default telemetry config %+v, got %+v", def.Telemetry, cfg.Telemetry)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, `
database:
  max_journal_eras: 8
`)
	t.Setenv("ERADB_DATABASE_MAX_JOURNAL_ERAS", "12")
	t.Setenv("ERADB_DATABASE_CACHE_ENABLED", "false")
	t.Setenv("ERADB_LOGGING_FORMAT", "json")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Database.MaxJournalEras != 12 {
		t.Errorf("Expected env override 12, got %d", cfg.Database.MaxJournalEras)
	}
	if cfg.Database.Cache.Enabled {
		t.Error("Expected cache disabled by env")
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Expected json format from env, got %q", cfg.Logging.Format)
	}
}

func TestLoad_EnvWithoutFile(t *testing.T) {
	t.Setenv("ERADB_DATABASE_PREALLOCATED_SIZE", "1Gi")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Database.PreallocatedSize != bytesize.GiB {
		t.Errorf("Expected 1Gi from env, got %v", cfg.Database.PreallocatedSize)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: INFO
  invalid yaml here [[[
`)
	if _, err := Load(path); err == nil {
		t.Fatal("Expected error with invalid YAML, got nil")
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	path := writeConfig(t, `
database:
  extend_threshold_pct: 150
`)
	if _, err := Load(path); err == nil {
		t.Fatal("Expected validation error for threshold over 100")
	}
}

func TestMustLoad_MissingExplicitFile(t *testing.T) {
	_, err := MustLoad(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("Expected error for missing explicit config file")
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := GetDefaultConfig()
	cfg.Database.Path = "/data/db"
	cfg.Database.PreallocatedSize = 256 * bytesize.MiB
	cfg.Flusher.Interval = time.Minute

	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load saved config: %v", err)
	}
	if loaded.Database != cfg.Database {
		t.Errorf("Database config mismatch: saved %+v, loaded %+v", cfg.Database, loaded.Database)
	}
	if loaded.Flusher != cfg.Flusher {
		t.Errorf("Flusher config mismatch: saved %+v, loaded %+v", cfg.Flusher, loaded.Flusher)
	}
}

func TestEngineOptions(t *testing.T) {
	cfg := GetDefaultConfig()
	opts := cfg.Database.EngineOptions()

	if opts != engine.DefaultOptions() {
		t.Errorf("Expected default engine options %+v, got %+v", engine.DefaultOptions(), opts)
	}
	if err := opts.Validate(); err != nil {
		t.Errorf("Default engine options do not validate: %v", err)
	}
}

func TestCacheConfig_NewCache(t *testing.T) {
	c, err := CacheConfig{Enabled: false}.NewCache()
	if err != nil {
		t.Fatalf("NewCache failed: %v", err)
	}
	c.Set([]byte("k"), []byte("v"))
	c.Wait()
	if _, ok := c.Get([]byte("k")); ok {
		t.Error("Expected disabled cache to store nothing")
	}

	c, err = CacheConfig{Enabled: true, Size: bytesize.MiB}.NewCache()
	if err != nil {
		t.Fatalf("NewCache failed: %v", err)
	}
	defer c.Close()
	c.Set([]byte("k"), []byte("v"))
	c.Wait()
	if _, ok := c.Get([]byte("k")); !ok {
		t.Error("Expected enabled cache to keep the entry")
	}
}

func TestDefaultConfigPath_XDG(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	want := filepath.Join(dir, "eradb", "config.yaml")
	if got := GetDefaultConfigPath(); got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}
	if DefaultConfigExists() {
		t.Error("Expected no default config in a fresh dir")
	}
}
