package config

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/eradb/pkg/config"
)

var schemaFile string

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Generate JSON schema for configuration",
	Long: `Generate a JSON schema for the eradb configuration file, for editor
completion and external validation.

Examples:
  # Print schema to stdout
  eradb config schema

  # Save schema to file
  eradb config schema --file config.schema.json`,
	Args: cobra.NoArgs,
	RunE: runSchema,
}

func init() {
	schemaCmd.Flags().StringVar(&schemaFile, "file", "", "Output file (default: stdout)")
}

func runSchema(cmd *cobra.Command, args []string) error {
	schemaJSON, err := config.SchemaJSON()
	if err != nil {
		return err
	}

	if schemaFile != "" {
		if err := os.WriteFile(schemaFile, schemaJSON, 0644); err != nil {
			return fmt.Errorf("failed to write schema file: %w", err)
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "JSON schema written to %s\n", schemaFile)
		return nil
	}

	_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(schemaJSON))
	return nil
}
