package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"
)

const (
	pollInterval    = 2 * time.Second
	maxDecisionWait = time.Hour
)

// decision is the JSON the agent expects back from a PermissionRequest hook.
type decision struct {
	Decision string `json:"decision"`
	Reason   string `json:"reason,omitempty"`
}

func newPermissionCommand() *cli.Command {
	return &cli.Command{
		Name:   "permission",
		Usage:  "Forward a permission request to chat and wait for the verdict",
		Action: runPermission,
	}
}

// runPermission blocks until the operator answers, the wait cap elapses or
// the daemon is unreachable. Anything short of an explicit approve denies.
func runPermission(_ context.Context, _ *cli.Command) error {
	in, err := readInput(os.Stdin)
	if err != nil {
		return emit(decision{Decision: "deny", Reason: "invalid hook input: " + err.Error()})
	}

	client := dial()
	if client == nil {
		return emit(decision{Decision: "deny", Reason: "ferry daemon not running"})
	}
	defer client.Close()

	requestID := uuid.NewString()
	err = client.Send("permission_request", requestID, map[string]any{
		"request_id": requestID,
		"session_id": in.sessionID(),
		"tool_name":  in.ToolName,
		"command":    formatToolInput(in.ToolName, in.ToolInput),
		"full_input": in.ToolInput,
	})
	if err != nil {
		return emit(decision{Decision: "deny", Reason: "send failed: " + err.Error()})
	}

	resolution, err := client.PollForResponse("get_permission_response", requestID, pollInterval, maxDecisionWait)
	if err != nil {
		return emit(decision{Decision: "deny", Reason: "poll failed: " + err.Error()})
	}
	if resolution == nil {
		return emit(decision{Decision: "deny", Reason: "confirmation timeout (1 hour)"})
	}

	var d decision
	if err := json.Unmarshal(resolution, &d); err != nil || d.Decision == "" {
		return emit(decision{Decision: "deny", Reason: "malformed resolution"})
	}
	return emit(d)
}

// formatToolInput renders the tool call the way the operator should read it.
func formatToolInput(toolName string, toolInput map[string]any) string {
	switch toolName {
	case "Bash":
		if cmd := stringField(toolInput, "command"); cmd != "" {
			return cmd
		}
	case "Edit", "Write", "Read":
		if path := stringField(toolInput, "file_path"); path != "" {
			return toolName + ": " + path
		}
	}
	raw, err := json.Marshal(toolInput)
	if err != nil {
		return fmt.Sprintf("%v", toolInput)
	}
	return truncateRunes(string(raw), 200)
}

// emit writes the hook decision to stdout. The agent reads it there.
func emit(d decision) error {
	return json.NewEncoder(os.Stdout).Encode(d)
}
