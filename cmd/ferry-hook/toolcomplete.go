package main

import (
	"context"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/ferrybot/ferry/internal/agent"
)

const previewMaxRunes = 200

func newToolCompleteCommand() *cli.Command {
	return &cli.Command{
		Name:   "tool-complete",
		Usage:  "Report a finished tool call as task progress",
		Action: runToolComplete,
	}
}

func runToolComplete(_ context.Context, _ *cli.Command) error {
	in, err := readInput(os.Stdin)
	if err != nil {
		return nil
	}

	client := dial()
	if client == nil {
		return nil
	}
	defer client.Close()

	status := "completed"
	var exitCode any
	if code, ok := in.ToolOutput["exit_code"].(float64); ok {
		exitCode = int(code)
		if code == 0 {
			status = "success"
		} else {
			status = "failed"
		}
	}

	_ = client.Send("task_progress", "", map[string]any{
		"session_id":     in.sessionID(),
		"tool_name":      in.ToolName,
		"status":         status,
		"exit_code":      exitCode,
		"output_preview": outputPreview(in.ToolOutput),
	})
	return nil
}

// outputPreview favors stderr over stdout, since failures matter most in a
// one-line progress ping.
func outputPreview(toolOutput map[string]any) string {
	stdout := stringField(toolOutput, "stdout")
	stderr := stringField(toolOutput, "stderr")

	var preview string
	switch {
	case stderr != "":
		preview = "stderr: " + stderr
	case stdout != "":
		preview = stdout
	default:
		preview = "(no output)"
	}
	return truncateRunes(agent.CleanANSI(preview), previewMaxRunes)
}
