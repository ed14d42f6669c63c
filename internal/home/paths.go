package home

import (
	"os"
	"path/filepath"
)

// BaseDir returns ~/.graceline, the daemon's data directory.
func BaseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".graceline")
}

// DBPath returns the path of the SQLite database backing the local store.
func DBPath() string {
	return filepath.Join(BaseDir(), "graceline.db")
}

// LogDir returns the log directory.
func LogDir() string {
	return filepath.Join(BaseDir(), "logs")
}

// LogPath returns the daemon log file path.
func LogPath() string {
	return filepath.Join(LogDir(), "gracelined.log")
}

// ConfigPath returns the config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// EnsureDirs creates the data directory tree with owner-only permissions.
func EnsureDirs() error {
	for _, d := range []string{BaseDir(), LogDir()} {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
