// Package config provides configuration management for Eliksir Analytics.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/eliksir-bar/eliksir-analytics/internal/appinfo"
)

// DefaultDataDir returns the platform data directory path.
// On Windows: %LOCALAPPDATA%/eliksir/
// On other platforms: ~/.config/eliksir/ or equivalent
func DefaultDataDir() (string, error) {
	var base string

	if runtime.GOOS == "windows" {
		if localAppData := os.Getenv("LOCALAPPDATA"); localAppData != "" {
			base = localAppData
		} else {
			dir, err := os.UserConfigDir()
			if err != nil {
				return "", fmt.Errorf("get user config dir: %w", err)
			}
			base = dir
		}
	} else {
		dir, err := os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("get user config dir: %w", err)
		}
		base = dir
	}

	return filepath.Join(base, appinfo.DirName), nil
}

// Dir returns storage.data_dir, or the platform default when unset.
func (s StorageConfig) Dir() (string, error) {
	if s.DataDir != "" {
		return s.DataDir, nil
	}
	return DefaultDataDir()
}

// EnsureDir creates the data directory if it doesn't exist and returns it.
func (s StorageConfig) EnsureDir() (string, error) {
	dir, err := s.Dir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("create data dir %q: %w", dir, err)
	}
	return dir, nil
}

// DatabasePath returns the SQLite file: storage.path, or the data directory default.
func (s StorageConfig) DatabasePath() (string, error) {
	if s.Path != "" {
		return filepath.Abs(s.Path)
	}
	return s.dataPath(appinfo.DatabaseFileName)
}

// LockFilePath returns the path to the lock file for single instance control.
func (s StorageConfig) LockFilePath() (string, error) {
	return s.dataPath(appinfo.LockFileName)
}

func (s StorageConfig) dataPath(filename string) (string, error) {
	dir, err := s.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, filename), nil
}
