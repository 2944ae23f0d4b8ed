package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/eradb/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with the defaults",
	Long: `Write a configuration file holding every option at its default value.

Examples:
  # Create the default config file
  eradb config init

  # Create it somewhere else, replacing an existing file
  eradb config init --config ./eradb.yaml --force`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite an existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	path := configPath(cmd)

	var err error
	if path != "" {
		err = config.InitConfigToPath(path, initForce)
	} else {
		path, err = config.InitConfig(initForce)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Configuration file created at: %s\n", path)
	_, _ = fmt.Fprintln(out, "\nNext steps:")
	_, _ = fmt.Fprintln(out, "  1. Set database.path to where the data should live")
	_, _ = fmt.Fprintf(out, "  2. Check the file with: eradb config validate --config %s\n", path)
	return nil
}
