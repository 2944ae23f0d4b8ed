// Package config implements the eradb config subcommands.
package config

import (
	"github.com/spf13/cobra"
)

// Cmd is the parent command for configuration management.
var Cmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `Create, inspect and validate the eradb configuration file.

The file is looked up at $XDG_CONFIG_HOME/eradb/config.yaml unless --config
names another one. Every key can be overridden with an ERADB_* environment
variable, e.g. ERADB_DATABASE_PATH=/var/lib/eradb.`,
}

func init() {
	Cmd.AddCommand(initCmd)
	Cmd.AddCommand(showCmd)
	Cmd.AddCommand(validateCmd)
	Cmd.AddCommand(schemaCmd)
}

// configPath returns the --config flag inherited from the root command.
func configPath(cmd *cobra.Command) string {
	path, _ := cmd.Flags().GetString("config")
	return path
}
