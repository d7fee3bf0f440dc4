package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/ferrybot/ferry/internal/config"
	"github.com/ferrybot/ferry/internal/heartbeat"
)

// NewStatusCommand returns the status subcommand.
func NewStatusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show ferry daemon status",
		Action: func(_ context.Context, _ *cli.Command) error {
			status, hb, err := heartbeat.Check(config.HeartbeatPath(), 2*time.Minute)
			if err != nil {
				return fmt.Errorf("check heartbeat: %w", err)
			}

			switch status {
			case heartbeat.StatusAlive:
				fmt.Printf("Daemon: ALIVE (PID %d, uptime %s)\n", hb.PID, hb.Uptime)
				fmt.Printf("  active tasks:        %d\n", hb.Stats.ActiveTasks)
				fmt.Printf("  pending permissions: %d\n", hb.Stats.PendingPermissions)
				fmt.Printf("  hook connections:    %d\n", hb.Stats.HookPeers)
			case heartbeat.StatusStale:
				fmt.Printf("Daemon: STALE (PID %d, last heartbeat %s ago)\n",
					hb.PID, time.Since(hb.Timestamp).Truncate(time.Second))
			case heartbeat.StatusDead:
				fmt.Println("Daemon: NOT RUNNING")
			}

			return nil
		},
	}
}
