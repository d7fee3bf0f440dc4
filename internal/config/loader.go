package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/tailscale/hujson"
	"gopkg.in/yaml.v3"
)

var envTemplateRe = regexp.MustCompile(`\$\{\{\s*\.Env\.(\w+)\s*\}\}`)

// Load reads a config file, expands ${{ .Env.VAR }} templates, unmarshals it
// into Config, and applies defaults. The format is chosen by extension:
// .jsonc/.json are parsed as JSONC, .yaml/.yml as YAML.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand before parsing, since templates live inside strings.
	expanded := []byte(expandEnvTemplates(string(data)))

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
	default:
		std, err := hujson.Standardize(expanded)
		if err != nil {
			return nil, fmt.Errorf("standardize jsonc: %w", err)
		}
		if err := json.Unmarshal(std, &cfg); err != nil {
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// Default returns a config with every field at its default value.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

// expandEnvTemplates replaces ${{ .Env.VAR }} with the env var value.
func expandEnvTemplates(s string) string {
	return envTemplateRe.ReplaceAllStringFunc(s, func(match string) string {
		parts := envTemplateRe.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		return os.Getenv(parts[1])
	})
}

// applyDefaults fills in zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	if cfg.Bot.Workspace == "" {
		cfg.Bot.Workspace = "."
	}
	if cfg.Bot.MaxConcurrentTasks == 0 {
		cfg.Bot.MaxConcurrentTasks = 3
	}
	if cfg.Bot.PermissionTimeout == 0 {
		cfg.Bot.PermissionTimeout = Duration(time.Hour)
	}
	if cfg.Bot.MaxOutputLength == 0 {
		cfg.Bot.MaxOutputLength = 3000
	}
	if cfg.Bot.TaskRetention == 0 {
		cfg.Bot.TaskRetention = Duration(24 * time.Hour)
	}
	if cfg.Bot.SessionTTL == 0 {
		cfg.Bot.SessionTTL = Duration(24 * time.Hour)
	}
	if cfg.IPC.SocketPath == "" {
		cfg.IPC.SocketPath = SocketPath()
	}
	if cfg.Gateway.Host == "" {
		cfg.Gateway.Host = "127.0.0.1"
	}
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = 18720
	}
	if cfg.Agent.Path == "" {
		cfg.Agent.Path = "claude"
	}
	if cfg.Events.BufferSize == 0 {
		cfg.Events.BufferSize = 1024
	}
}
