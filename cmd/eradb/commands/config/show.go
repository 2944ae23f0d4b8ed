package config

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/eradb/internal/cli/output"
	"github.com/marmos91/eradb/pkg/config"
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the configuration after merging the file, ERADB_* environment
variables and defaults.

Examples:
  eradb config show
  ERADB_DATABASE_MAX_JOURNAL_ERAS=10 eradb config show -o json`,
	Args: cobra.NoArgs,
	RunE: runShow,
}

func runShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath(cmd))
	if err != nil {
		return err
	}

	outputFlag, _ := cmd.Flags().GetString("output")
	format, err := output.ParseFormat(outputFlag)
	if err != nil {
		return err
	}
	// no table view of a nested document
	if format == output.FormatTable {
		format = output.FormatYAML
	}
	return output.NewPrinter(cmd.OutOrStdout(), format).Print(cfg)
}
