// ferry-hook is spawned by the coding agent on hook events and relays them to
// the ferry daemon over the unix socket. It must never fail the agent: every
// subcommand exits 0, falling back to a deny or a silent no-op when the
// daemon is unreachable.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:  "ferry-hook",
		Usage: "Relay agent hook events to the ferry daemon",
		Commands: []*cli.Command{
			newPermissionCommand(),
			newStopCommand(),
			newToolCompleteCommand(),
		},
	}
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}
