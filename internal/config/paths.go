package config

import (
	"os"
	"path/filepath"
)

// ConfigDir returns the emrun config directory, respecting XDG_CONFIG_HOME.
// Defaults to ~/.config/emrun/.
func ConfigDir() (string, error) {
	return xdgDir("XDG_CONFIG_HOME", ".config")
}

// GlobalConfigPath returns the path to the global config file.
func GlobalConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// DataDir returns the emrun data directory (session history),
// respecting XDG_DATA_HOME. Defaults to ~/.local/share/emrun/.
func DataDir() (string, error) {
	return xdgDir("XDG_DATA_HOME", filepath.Join(".local", "share"))
}

// StateDir returns the emrun state directory (logs), respecting
// XDG_STATE_HOME. Defaults to ~/.local/state/emrun/.
func StateDir() (string, error) {
	return xdgDir("XDG_STATE_HOME", filepath.Join(".local", "state"))
}

func xdgDir(env, homeRel string) (string, error) {
	base := os.Getenv(env)
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, homeRel)
	}
	return filepath.Join(base, "emrun"), nil
}
