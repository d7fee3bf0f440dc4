package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ferrybot/ferry/internal/agent"
	"github.com/ferrybot/ferry/internal/config"
	"github.com/ferrybot/ferry/internal/ipc"
)

const connectTimeout = 2 * time.Second

// hookInput is the JSON the agent writes to the hook's stdin. Fields vary by
// event; absent ones stay zero.
type hookInput struct {
	SessionID      string         `json:"session_id"`
	ToolName       string         `json:"tool_name"`
	ToolInput      map[string]any `json:"tool_input"`
	ToolOutput     map[string]any `json:"tool_output"`
	TranscriptPath string         `json:"transcript_path"`
	StopHookActive bool           `json:"stop_hook_active"`
}

func readInput(r io.Reader) (hookInput, error) {
	var in hookInput
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		return hookInput{}, fmt.Errorf("decode hook input: %w", err)
	}
	return in, nil
}

// sessionID prefers the hook payload, then the env var ferry exported when it
// spawned the agent.
func (in hookInput) sessionID() string {
	if in.SessionID != "" {
		return in.SessionID
	}
	return os.Getenv(agent.EnvSessionID)
}

func socketPath() string {
	if v := os.Getenv(agent.EnvSocketPath); v != "" {
		return v
	}
	return config.SocketPath()
}

// dial connects to the daemon's socket. A nil client means it is not running.
func dial() *ipc.Client {
	client := ipc.NewClient(socketPath())
	if err := client.Connect(connectTimeout); err != nil {
		return nil
	}
	return client
}

// stringField pulls a string out of a loosely typed hook map.
func stringField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

// truncateRunes caps s at n runes, appending an ellipsis when cut.
func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
