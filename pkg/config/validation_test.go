package config

import (
	"strings"
	"testing"

	"github.com/marmos91/eradb/internal/telemetry"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"invalid log level", func(c *Config) { c.Logging.Level = "INVALID" }, "oneof"},
		{"invalid log format", func(c *Config) { c.Logging.Format = "xml" }, "oneof"},
		{"sample rate above one", func(c *Config) { c.Telemetry.SampleRate = 1.5 }, "lte"},
		{"telemetry without endpoint", func(c *Config) {
			c.Telemetry.Enabled = true
			c.Telemetry.Endpoint = ""
		}, "required_if"},
		{"profiling without endpoint", func(c *Config) {
			c.Telemetry.Profiling.Enabled = true
			c.Telemetry.Profiling.Endpoint = ""
		}, "required_if"},
		{"unknown profile type", func(c *Config) {
			c.Telemetry.Profiling.ProfileTypes = []string{"cpu", "heap"}
		}, "oneof"},
		{"empty database path", func(c *Config) { c.Database.Path = "" }, "required"},
		{"zero journal eras", func(c *Config) { c.Database.MaxJournalEras = 0 }, "gte"},
		{"threshold above 100", func(c *Config) { c.Database.ExtendThresholdPct = 101 }, "lte"},
		{"unknown policy", func(c *Config) { c.Database.EraLimitPolicy = "drop" }, "oneof"},
		{"negative high water", func(c *Config) { c.Flusher.HighWater = -1 }, "gte"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Expected valid config, got: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Expected validation error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected %q in error, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidate_Nil(t *testing.T) {
	if err := Validate(nil); err == nil {
		t.Fatal("Expected error for nil config")
	}
}

func TestValidate_AcceptsEveryProfileType(t *testing.T) {
	for _, name := range telemetry.ProfileTypeNames() {
		cfg := GetDefaultConfig()
		cfg.Telemetry.Profiling.ProfileTypes = []string{name}
		if err := Validate(cfg); err != nil {
			t.Errorf("Expected profile type %q to validate, got: %v", name, err)
		}
	}
}
