package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// AppName names the per-user directories.
const AppName = "ecnu-power-usage"

// ResolveDirs fills empty storage directories with the per-user defaults and
// expands a leading "~" in configured ones.
func (c *Config) ResolveDirs() error {
	if c.Storage.ConfigDir == "" {
		dir, err := defaultConfigDir()
		if err != nil {
			return err
		}
		c.Storage.ConfigDir = dir
	}
	if c.Storage.DataDir == "" {
		dir, err := defaultDataDir()
		if err != nil {
			return err
		}
		c.Storage.DataDir = dir
	}
	c.Storage.ConfigDir = ExpandHome(c.Storage.ConfigDir)
	c.Storage.DataDir = ExpandHome(c.Storage.DataDir)
	if c.Storage.LogDir == "" {
		c.Storage.LogDir = filepath.Join(c.Storage.DataDir, "logs")
	}
	c.Storage.LogDir = ExpandHome(c.Storage.LogDir)
	return nil
}

// ExpandHome replaces a leading "~" with the user's home directory. Paths
// without one, and paths when the home directory is unknown, are returned
// unchanged.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

func defaultConfigDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("config: locate user config dir: %w", err)
	}
	return filepath.Join(dir, AppName), nil
}

// defaultDataDir follows XDG_DATA_HOME, falling back to ~/.local/share.
func defaultDataDir() (string, error) {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" && filepath.IsAbs(dir) {
		return filepath.Join(dir, AppName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: locate home dir: %w", err)
	}
	return filepath.Join(home, ".local", "share", AppName), nil
}

// EnsureDirs creates the data, config and log directories.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.Storage.DataDir, c.Storage.ConfigDir, c.Storage.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: create %s: %w", dir, err)
		}
	}
	return nil
}
