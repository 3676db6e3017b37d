package config

import (
	"os"
	"path/filepath"
)

// DefaultHistoryPath returns the run history database location. It does
// not create directories.
func DefaultHistoryPath() string {
	return filepath.Join(userConfigDir(), "streakkeeper", "history.db")
}

func userConfigDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config")
}
