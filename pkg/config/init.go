package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const configHeader = `# eradb configuration file
#
# Precedence: command line flags > ERADB_* environment variables > this file.
# Environment variables use the key path in upper case, e.g.
# ERADB_DATABASE_MAX_JOURNAL_ERAS=10.

`

// InitConfig writes the default configuration to the default location and
// returns its path. An existing file is only replaced when force is set.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes the default configuration to path.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("configuration file already exists at %s (use --force to overwrite)", path)
		}
	}

	data, err := yaml.Marshal(GetDefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to marshal default config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, append([]byte(configHeader), data...), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
