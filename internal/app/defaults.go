package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetDefaults returns application default paths, checking environment
// variables first.
// Environment variables:
//   - CREDBAK_CONFIG_PATH: config file location (default: ~/.config/credbak.toml)
//   - CREDBAK_HOME: base directory for credbak data (default: ~/.local/share/credbak)
func GetDefaults() (map[string]string, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	baseDir, err := getBaseDir()
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"backup_root": filepath.Join(baseDir, "backups"),
	}, nil
}

// getConfigPath returns the config file path, checking CREDBAK_CONFIG_PATH
// first, then falling back to the default ~/.config/credbak.toml.
func getConfigPath() (string, error) {
	if path := os.Getenv("CREDBAK_CONFIG_PATH"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "credbak.toml"), nil
}

// getBaseDir returns the base directory for credbak data, checking
// CREDBAK_HOME first, then falling back to the XDG default
// ~/.local/share/credbak.
func getBaseDir() (string, error) {
	if path := os.Getenv("CREDBAK_HOME"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "credbak"), nil
}
