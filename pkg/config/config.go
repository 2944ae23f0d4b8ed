package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/marmos91/eradb/internal/bytesize"
	"github.com/marmos91/eradb/pkg/flusher"
)

// Config represents the eradb configuration.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (ERADB_*)
//  3. Configuration file (YAML)
//  4. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// Metrics controls Prometheus metrics collection
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Database holds the options the database is opened with
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`

	// Flusher configures background flushing for long-running commands
	Flusher flusher.Config `mapstructure:"flusher" yaml:"flusher"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
// When enabled, trace data is exported to an OTLP-compatible collector.
type TelemetryConfig struct {
	// Enabled controls whether distributed tracing is enabled
	// Default: false
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port)
	// Default: "localhost:4317"
	Endpoint string `mapstructure:"endpoint" validate:"required_if=Enabled true" yaml:"endpoint"`

	// Insecure controls whether to use a non-TLS connection
	// Default: true
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate controls the trace sampling rate (0.0 to 1.0)
	// Default: 1.0
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`

	// Profiling controls Pyroscope continuous profiling
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
// Worth enabling for long-running commands such as import.
type ProfilingConfig struct {
	// Enabled controls whether profiles are pushed
	// Default: false
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the Pyroscope server URL
	// Default: "http://localhost:4040"
	Endpoint string `mapstructure:"endpoint" validate:"required_if=Enabled true" yaml:"endpoint"`

	// ProfileTypes lists the profiles to collect
	// Valid values: cpu, alloc_objects, alloc_space, inuse_objects, inuse_space,
	//               goroutines, mutex_count, mutex_duration, block_count, block_duration
	// Default: ["cpu", "alloc_space", "inuse_space", "goroutines", "mutex_duration"]
	ProfileTypes []string `mapstructure:"profile_types" validate:"dive,oneof=cpu alloc_objects alloc_space inuse_objects inuse_space goroutines mutex_count mutex_duration block_count block_duration" yaml:"profile_types"`
}

// MetricsConfig controls Prometheus metrics collection.
// When Enabled is false, no metrics are collected (zero overhead).
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// Load loads configuration from file, environment, and defaults.
//
// A missing configuration file is not an error: environment variables and
// defaults still apply.
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	if _, err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration, failing with instructions when an explicitly
// named file does not exist.
func MustLoad(configPath string) (*Config, error) {
	if configPath != "" {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file not found: %s\n\n"+
				"Please create the configuration file:\n"+
				"  eradb config init --config %s",
				configPath, configPath)
		}
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// SaveConfig saves the configuration to the specified file path in YAML.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Example: ERADB_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("ERADB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v, reflect.TypeOf(Config{}), "")

	// booleans defaulting to true; ApplyDefaults cannot tell them from an
	// explicit false
	v.SetDefault("telemetry.insecure", true)
	v.SetDefault("database.cache.enabled", true)
	v.SetDefault("flusher.flush_on_stop", true)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// $XDG_CONFIG_HOME/eradb/config.yaml
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// bindEnvs registers every leaf key of t with viper. AutomaticEnv only
// resolves keys viper already knows, and without a config file it knows none.
func bindEnvs(v *viper.Viper, t reflect.Type, prefix string) {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}
		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}
		if field.Type.Kind() == reflect.Struct && field.Type != reflect.TypeOf(time.Time{}) {
			bindEnvs(v, field.Type, key)
			continue
		}
		_ = v.BindEnv(key)
	}
}

// readConfigFile reads the configuration file if it exists.
// Returns (fileFound, error) where fileFound indicates if a config file was found.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// configDecodeHooks returns a combined decode hook for ByteSize and
// time.Duration fields.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

// byteSizeDecodeHook converts strings and integers to bytesize.ByteSize, so
// config files can use sizes like "64Mi", "1GB", or plain numbers.
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// durationDecodeHook converts strings like "30s" to time.Duration.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			// Assume nanoseconds for raw integers
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns $XDG_CONFIG_HOME/eradb, ~/.config/eradb, or "." when
// the home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "eradb")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "eradb")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path.
func GetConfigDir() string {
	return getConfigDir()
}
