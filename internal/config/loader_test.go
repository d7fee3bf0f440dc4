package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadJSONC(t *testing.T) {
	content := `{
	// This is a JSONC comment
	"bot": {
		"workspace": "/srv/repo",
		"max_concurrent_tasks": 5,
		"permission_timeout": "30m"
	},
	"gateway": {
		"host": "0.0.0.0",
		"port": 9999,
		"auth_token": "${{ .Env.FERRY_GATEWAY_TOKEN }}"
	},
	"agent": {
		"path": "/usr/local/bin/claude",
		"default_args": ["--permission-mode", "default"]
	}
}`

	dir := t.TempDir()
	path := filepath.Join(dir, "config.jsonc")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("FERRY_GATEWAY_TOKEN", "tok-123")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Bot.Workspace != "/srv/repo" {
		t.Errorf("expected workspace /srv/repo, got %s", cfg.Bot.Workspace)
	}
	if cfg.Bot.MaxConcurrentTasks != 5 {
		t.Errorf("expected 5 concurrent tasks, got %d", cfg.Bot.MaxConcurrentTasks)
	}
	if cfg.Bot.PermissionTimeout.Duration() != 30*time.Minute {
		t.Errorf("expected 30m permission timeout, got %s", cfg.Bot.PermissionTimeout.Duration())
	}
	if cfg.Gateway.Host != "0.0.0.0" {
		t.Errorf("expected host 0.0.0.0, got %s", cfg.Gateway.Host)
	}
	if cfg.Gateway.Port != 9999 {
		t.Errorf("expected port 9999, got %d", cfg.Gateway.Port)
	}
	if cfg.Gateway.AuthToken != "tok-123" {
		t.Errorf("expected auth_token tok-123, got %s", cfg.Gateway.AuthToken)
	}
	if cfg.Agent.Path != "/usr/local/bin/claude" {
		t.Errorf("expected agent path override, got %s", cfg.Agent.Path)
	}
	if len(cfg.Agent.DefaultArgs) != 2 {
		t.Errorf("expected 2 default args, got %d", len(cfg.Agent.DefaultArgs))
	}
}

func TestLoadYAML(t *testing.T) {
	content := `bot:
  workspace: /srv/repo
  session_ttl: 2h
ipc:
  socket_path: /tmp/ferry-test.sock
`
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Bot.Workspace != "/srv/repo" {
		t.Errorf("expected workspace /srv/repo, got %s", cfg.Bot.Workspace)
	}
	if cfg.Bot.SessionTTL.Duration() != 2*time.Hour {
		t.Errorf("expected 2h session ttl, got %s", cfg.Bot.SessionTTL.Duration())
	}
	if cfg.IPC.SocketPath != "/tmp/ferry-test.sock" {
		t.Errorf("expected socket path override, got %s", cfg.IPC.SocketPath)
	}
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.jsonc")
	if err := os.WriteFile(path, []byte(`{}`), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Bot.MaxConcurrentTasks != 3 {
		t.Errorf("expected default 3 concurrent tasks, got %d", cfg.Bot.MaxConcurrentTasks)
	}
	if cfg.Bot.PermissionTimeout.Duration() != time.Hour {
		t.Errorf("expected default 1h permission timeout, got %s", cfg.Bot.PermissionTimeout.Duration())
	}
	if cfg.Bot.MaxOutputLength != 3000 {
		t.Errorf("expected default output length 3000, got %d", cfg.Bot.MaxOutputLength)
	}
	if cfg.Gateway.Host != "127.0.0.1" {
		t.Errorf("expected default host 127.0.0.1, got %s", cfg.Gateway.Host)
	}
	if !cfg.Bot.RollbackOnCancel() {
		t.Error("expected auto_rollback to default on")
	}
	if !cfg.Agent.SetupHooks() {
		t.Error("expected auto_setup_hooks to default on")
	}
	if cfg.IPC.SocketPath == "" {
		t.Error("expected default socket path")
	}
}

func TestLoadDisableRollback(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.jsonc")
	if err := os.WriteFile(path, []byte(`{"bot": {"auto_rollback": false}}`), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Bot.RollbackOnCancel() {
		t.Error("expected auto_rollback off")
	}
}
