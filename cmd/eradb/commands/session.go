package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marmos91/eradb/internal/cli/output"
	"github.com/marmos91/eradb/internal/logger"
	"github.com/marmos91/eradb/internal/telemetry"
	"github.com/marmos91/eradb/pkg/cache"
	"github.com/marmos91/eradb/pkg/config"
	"github.com/marmos91/eradb/pkg/engine"
	"github.com/marmos91/eradb/pkg/metrics"

	// Import prometheus metrics to register init() functions
	_ "github.com/marmos91/eradb/pkg/metrics/prometheus"
)

// session is an open database together with the ambient setup of one
// command invocation.
type session struct {
	cfg      *config.Config
	db       *engine.Engine
	cache    cache.Cache
	printer  *output.Printer
	encoding output.Encoding

	shutdownTelemetry func(context.Context) error
	stopProfiling     func() error
}

type sessionOptions struct {
	// forceMetrics enables the registry even when metrics.enabled is false.
	forceMetrics bool
}

// loadConfig loads the configuration and applies the global flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.MustLoad(cfgFile)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}
	if logLevel != "" {
		cfg.Logging.Level = strings.ToUpper(logLevel)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// InitLogger initializes the structured logger from configuration.
func InitLogger(cfg *config.Config) error {
	loggerCfg := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}
	if err := logger.Init(loggerCfg); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// openSession loads the configuration, sets up logging, tracing and
// metrics, and opens the database. The caller must Close the session.
func openSession(cmd *cobra.Command, so sessionOptions) (_ *session, err error) {
	ctx := cmd.Context()

	format, err := output.ParseFormat(outputFormat)
	if err != nil {
		return nil, err
	}
	enc, err := output.ParseEncoding(encodingName)
	if err != nil {
		return nil, err
	}

	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := InitLogger(cfg); err != nil {
		return nil, err
	}

	s := &session{
		cfg:      cfg,
		printer:  output.NewPrinter(cmd.OutOrStdout(), format),
		encoding: enc,
	}
	defer func() {
		if err != nil {
			_ = s.Close()
		}
	}()

	s.shutdownTelemetry, err = telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "eradb",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	prof := cfg.Telemetry.Profiling
	s.stopProfiling, err = telemetry.StartProfiling(telemetry.ProfilingConfig{
		Enabled:        prof.Enabled,
		ServiceName:    "eradb",
		ServiceVersion: Version,
		Endpoint:       prof.Endpoint,
		ProfileTypes:   prof.ProfileTypes,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start profiling: %w", err)
	}
	if prof.Enabled {
		logger.Debug("Profiling enabled", "endpoint", prof.Endpoint, "profile_types", prof.ProfileTypes)
	}

	s.cache, err = cfg.Database.Cache.NewCache()
	if err != nil {
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}
	deps := []engine.Option{engine.WithCache(s.cache)}

	if cfg.Metrics.Enabled || so.forceMetrics {
		metrics.InitRegistry()
		if m := metrics.NewEngineMetrics(); m != nil {
			deps = append(deps, engine.WithMetrics(m))
		}
	}

	s.db, err = engine.Open(ctx, cfg.Database.Path, cfg.Database.EngineOptions(), deps...)
	if err != nil {
		return nil, fmt.Errorf("failed to open database at %s: %w", cfg.Database.Path, err)
	}
	return s, nil
}

// Close closes the database, the cache, the profiler and the tracer
// provider.
func (s *session) Close() error {
	var errs []error
	if s.db != nil {
		errs = append(errs, s.db.Close())
	}
	if s.cache != nil {
		s.cache.Close()
	}
	if s.stopProfiling != nil {
		errs = append(errs, s.stopProfiling())
	}
	if s.shutdownTelemetry != nil {
		errs = append(errs, s.shutdownTelemetry(context.Background()))
	}
	return errors.Join(errs...)
}

// decodeArgs decodes command line keys or values with the session encoding.
func (s *session) decodeArgs(args []string) ([][]byte, error) {
	out := make([][]byte, len(args))
	for i, arg := range args {
		b, err := s.encoding.Decode(arg)
		if err != nil {
			return nil, err
		}
		out[i] = b
	}
	return out, nil
}
