package agent

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// hookEntry is one command hook in the agent's settings file.
type hookEntry struct {
	Type    string `json:"type"`
	Command string `json:"command"`
}

type hookMatcher struct {
	Matcher map[string]any `json:"matcher"`
	Hooks   []hookEntry    `json:"hooks"`
}

func commandHook(hookBin, subcommand string) []hookMatcher {
	return []hookMatcher{{
		Matcher: map[string]any{},
		Hooks:   []hookEntry{{Type: "command", Command: hookBin + " " + subcommand}},
	}}
}

// SetupHooks merges ferry's hook wiring into the agent's settings file under
// homeDir (~/.claude/settings.json). Existing unrelated settings are kept.
// The PermissionRequest hook is skipped when default args already bypass
// permission prompts.
func (c *CLI) SetupHooks(homeDir, hookBin string) error {
	configDir := filepath.Join(homeDir, ".claude")
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", configDir, err)
	}

	settingsPath := filepath.Join(configDir, "settings.json")
	settings := map[string]json.RawMessage{}
	if data, err := os.ReadFile(settingsPath); err == nil {
		// A corrupt file is replaced rather than failing setup.
		_ = json.Unmarshal(data, &settings)
	}

	hooks := map[string]json.RawMessage{}
	if raw, ok := settings["hooks"]; ok {
		_ = json.Unmarshal(raw, &hooks)
	}

	wire := map[string][]hookMatcher{
		"Stop":        commandHook(hookBin, "stop"),
		"PostToolUse": commandHook(hookBin, "tool-complete"),
	}
	if !c.skipsPermissions() {
		wire["PermissionRequest"] = commandHook(hookBin, "permission")
	}
	for event, matchers := range wire {
		raw, err := json.Marshal(matchers)
		if err != nil {
			return err
		}
		hooks[event] = raw
	}

	rawHooks, err := json.Marshal(hooks)
	if err != nil {
		return err
	}
	settings["hooks"] = rawHooks

	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(settingsPath, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", settingsPath, err)
	}
	return nil
}

func (c *CLI) skipsPermissions() bool {
	for _, a := range c.defaultArgs {
		if a == "--dangerously-skip-permissions" {
			return true
		}
	}
	return false
}
