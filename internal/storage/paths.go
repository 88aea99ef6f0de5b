// Package storage keeps the game history and the trained model on disk.
package storage

import (
	"os"
	"path/filepath"
	"runtime"
)

const appName = "tictacnet"

// DataDir returns the platform-specific data directory for the application,
// creating it when missing.
// - macOS: ~/Library/Application Support/tictacnet/
// - Linux: $XDG_DATA_HOME/tictacnet/ or ~/.local/share/tictacnet/
// - Windows: %APPDATA%/tictacnet/
func DataDir() (string, error) {
	var baseDir string

	switch runtime.GOOS {
	case "darwin":
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		baseDir = filepath.Join(homeDir, "Library", "Application Support")

	case "windows":
		baseDir = os.Getenv("APPDATA")
		if baseDir == "" {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			baseDir = filepath.Join(homeDir, "AppData", "Roaming")
		}

	default:
		baseDir = os.Getenv("XDG_DATA_HOME")
		if baseDir == "" {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			baseDir = filepath.Join(homeDir, ".local", "share")
		}
	}

	dataDir := filepath.Join(baseDir, appName)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return "", err
	}
	return dataDir, nil
}

// DatabaseDir returns the badger directory under root, or under DataDir
// when root is empty.
func DatabaseDir(root string) (string, error) {
	return subDir(root, "db")
}

// ModelPath returns where the trained network is saved under root, or
// under DataDir when root is empty.
func ModelPath(root string) (string, error) {
	dir, err := subDir(root, "model")
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "network.bin"), nil
}

func subDir(root, name string) (string, error) {
	if root == "" {
		var err error
		if root, err = DataDir(); err != nil {
			return "", err
		}
	}
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}
