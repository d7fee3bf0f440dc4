package config

import "time"

// Config is the root configuration for ferry.
type Config struct {
	Bot     BotConfig     `json:"bot" yaml:"bot"`
	IPC     IPCConfig     `json:"ipc" yaml:"ipc"`
	Gateway GatewayConfig `json:"gateway" yaml:"gateway"`
	Agent   AgentConfig   `json:"agent" yaml:"agent"`
	Events  EventsConfig  `json:"events" yaml:"events"`
}

// BotConfig holds orchestrator settings.
type BotConfig struct {
	Workspace          string   `json:"workspace" yaml:"workspace"`
	MaxConcurrentTasks int      `json:"max_concurrent_tasks" yaml:"max_concurrent_tasks"`
	PermissionTimeout  Duration `json:"permission_timeout" yaml:"permission_timeout"`
	MaxOutputLength    int      `json:"max_output_length" yaml:"max_output_length"`
	TaskRetention      Duration `json:"task_retention" yaml:"task_retention"`
	SessionTTL         Duration `json:"session_ttl" yaml:"session_ttl"`
	AutoRollback       *bool    `json:"auto_rollback,omitempty" yaml:"auto_rollback,omitempty"`
}

// RollbackOnCancel reports whether cancellation should discard uncommitted changes.
func (b BotConfig) RollbackOnCancel() bool {
	return b.AutoRollback == nil || *b.AutoRollback
}

// IPCConfig holds the unix socket settings for the hook channel.
type IPCConfig struct {
	SocketPath string `json:"socket_path" yaml:"socket_path"`
}

// GatewayConfig holds the chat gateway server settings.
type GatewayConfig struct {
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port"`
	// AuthToken may be a plain value or an ENC[age:...] blob.
	AuthToken string `json:"auth_token,omitempty" yaml:"auth_token,omitempty"`
}

// AgentConfig holds the external coding-agent CLI settings.
type AgentConfig struct {
	Path           string   `json:"path" yaml:"path"`
	DefaultArgs    []string `json:"default_args" yaml:"default_args"`
	AutoSetupHooks *bool    `json:"auto_setup_hooks,omitempty" yaml:"auto_setup_hooks,omitempty"`
}

// SetupHooks reports whether the hook settings file should be written on start.
func (a AgentConfig) SetupHooks() bool {
	return a.AutoSetupHooks == nil || *a.AutoSetupHooks
}

// EventsConfig holds event bus settings.
type EventsConfig struct {
	BufferSize int `json:"buffer_size" yaml:"buffer_size"`
}

// Duration wraps time.Duration for JSON and YAML unmarshaling from "1h30m" strings.
type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	return d.parse(s)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	return d.parse(s)
}

func (d *Duration) parse(s string) error {
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}
