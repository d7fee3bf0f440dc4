package config

import (
	"os"
	"path/filepath"
)

// FerryPath returns the root directory for ferry data.
// It uses $FERRY_PATH if set, otherwise defaults to ~/.ferry.
func FerryPath() string {
	if v := os.Getenv("FERRY_PATH"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".ferry")
	}
	return filepath.Join(home, ".ferry")
}

// ConfigPath returns the path to the ferry config file. A config.yaml next to
// the default config.jsonc wins if it exists.
func ConfigPath() string {
	yml := filepath.Join(FerryPath(), "config.yaml")
	if _, err := os.Stat(yml); err == nil {
		return yml
	}
	return filepath.Join(FerryPath(), "config.jsonc")
}

// DotenvPath returns the path to the ferry .env file.
func DotenvPath() string {
	return filepath.Join(FerryPath(), ".env")
}

// SocketPath returns the default IPC socket path.
func SocketPath() string {
	return filepath.Join(FerryPath(), "ipc.sock")
}

// HeartbeatPath returns the path to the daemon heartbeat file.
func HeartbeatPath() string {
	return filepath.Join(FerryPath(), "heartbeat.json")
}
