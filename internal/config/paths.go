package config

import (
	"os"
	"path/filepath"
)

// BaseDir returns ~/.chatsync.
func BaseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".chatsync")
}

// Path returns the default config file path.
func Path() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// LogPath returns the default engine log file path.
func LogPath() string {
	return filepath.Join(BaseDir(), "logs", "engine.log")
}
