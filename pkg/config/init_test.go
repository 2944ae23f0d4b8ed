package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestInitConfig_DefaultLocation(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	path, err := InitConfig(false)
	if err != nil {
		t.Fatalf("InitConfig failed: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read config file: %v", err)
	}
	for _, section := range []string{"# eradb configuration file", "logging:", "database:", "flusher:"} {
		if !strings.Contains(string(content), section) {
			t.Errorf("Config file missing section: %s", section)
		}
	}

	var cfg Config
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		t.Fatalf("Generated config is not valid YAML: %v", err)
	}

	if _, err := InitConfig(false); err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Errorf("Expected 'already exists' error, got: %v", err)
	}
	if _, err := InitConfig(true); err != nil {
		t.Errorf("InitConfig with force failed: %v", err)
	}
}

func TestGeneratedConfigIsLoadable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom", "config.yaml")
	if err := InitConfigToPath(path, false); err != nil {
		t.Fatalf("InitConfigToPath failed: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	def := GetDefaultConfig()
	if cfg.Logging != def.Logging {
		t.Errorf("Expected logging %+v, got %+v", def.Logging, cfg.Logging)
	}
	if cfg.Database != def.Database {
		t.Errorf("Expected database %+v, got %+v", def.Database, cfg.Database)
	}
}

func TestSchema(t *testing.T) {
	data, err := SchemaJSON()
	if err != nil {
		t.Fatalf("SchemaJSON failed: %v", err)
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("Schema is not valid JSON: %v", err)
	}
	props, ok := doc["properties"].(map[string]any)
	if !ok {
		t.Fatal("Schema has no properties")
	}
	for _, key := range []string{"logging", "telemetry", "metrics", "database", "flusher"} {
		if _, ok := props[key]; !ok {
			t.Errorf("Schema missing property %q", key)
		}
	}
}
