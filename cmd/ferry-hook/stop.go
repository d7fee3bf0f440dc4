package main

import (
	"context"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/ferrybot/ferry/internal/agent"
	"github.com/ferrybot/ferry/internal/gitops"
)

const summaryTailRunes = 500

func newStopCommand() *cli.Command {
	return &cli.Command{
		Name:   "stop",
		Usage:  "Notify the daemon that the agent run finished",
		Action: runStop,
	}
}

func runStop(ctx context.Context, _ *cli.Command) error {
	in, err := readInput(os.Stdin)
	if err != nil {
		return nil
	}

	client := dial()
	if client == nil {
		return nil
	}
	defer client.Close()

	// Runs in the agent's working directory, so "." is the workspace.
	filesChanged, gitErr := gitops.ChangedFiles(ctx, ".", "**/*")
	if gitErr != nil {
		filesChanged = nil
	}

	_ = client.Send("task_complete", "", map[string]any{
		"session_id":       in.sessionID(),
		"transcript_path":  in.TranscriptPath,
		"summary":          transcriptTail(in.TranscriptPath),
		"files_changed":    filesChanged,
		"stop_hook_active": in.StopHookActive,
	})
	return nil
}

// transcriptTail reads the end of the transcript as a rough summary.
func transcriptTail(path string) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	clean := agent.CleanANSI(string(data))
	runes := []rune(clean)
	if len(runes) > summaryTailRunes {
		return string(runes[len(runes)-summaryTailRunes:])
	}
	return clean
}
