package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/eradb/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate the eradb configuration file.

Checks for syntax errors, missing required fields, and invalid values.

Examples:
  # Validate default config
  eradb config validate

  # Validate specific config file
  eradb config validate --config /etc/eradb/config.yaml`,
	Args: cobra.NoArgs,
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	path := configPath(cmd)
	if path == "" {
		path = config.GetDefaultConfigPath()
	}

	cfg, err := config.MustLoad(path)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Configuration is valid: %s\n", path)
	_, _ = fmt.Fprintf(out, "  Database:     %s\n", cfg.Database.Path)
	_, _ = fmt.Fprintf(out, "  Journal eras: %d (%s when full)\n", cfg.Database.MaxJournalEras, cfg.Database.EraLimitPolicy)
	_, _ = fmt.Fprintf(out, "  Prealloc:     %s\n", cfg.Database.PreallocatedSize)
	return nil
}
