// Package commands implements the eradb command line.
package commands

import (
	"context"

	"github.com/spf13/cobra"

	configcmd "github.com/marmos91/eradb/cmd/eradb/commands/config"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	cfgFile      string
	dbPath       string
	outputFormat string
	logLevel     string
	encodingName string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "eradb",
	Short: "eradb - Embedded key/value store with a crash-safe journal",
	Long: `eradb is an embedded key/value database. Every commit is written to a
journal of era files; a flush merges the pending eras into a memory-mapped
data file through a virtual commit that survives crashes at any step.

Keys and values are taken literally unless --encoding selects hex or base64.

Use "eradb [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command with a background context.
func Execute() error {
	return rootCmd.Execute()
}

// ExecuteContext runs the root command; ctx is canceled on interrupt.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// GetRootCmd returns the root command for testing purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/eradb/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database directory (overrides database.path)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "Output format (table|json|yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (DEBUG|INFO|WARN|ERROR, overrides logging.level)")
	rootCmd.PersistentFlags().StringVarP(&encodingName, "encoding", "e", "raw", "Key and value encoding (raw|hex|base64)")

	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(putCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(flushCmd)
	rootCmd.AddCommand(compactCmd)
	rootCmd.AddCommand(rollbackCmd)
	rootCmd.AddCommand(recoverCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(configcmd.Cmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(completionCmd)

	// Hide the default completion command (we provide our own)
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
