package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/ferrybot/ferry/internal/agent"
	"github.com/ferrybot/ferry/internal/bot"
	"github.com/ferrybot/ferry/internal/config"
	"github.com/ferrybot/ferry/internal/events"
	"github.com/ferrybot/ferry/internal/gateway"
	"github.com/ferrybot/ferry/internal/heartbeat"
	"github.com/ferrybot/ferry/internal/ipc"
	"github.com/ferrybot/ferry/internal/janitor"
	"github.com/ferrybot/ferry/internal/secrets"
	"github.com/ferrybot/ferry/internal/tasks"
)

// NewServeCommand returns the serve subcommand.
func NewServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the ferry daemon",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Gateway host to listen on",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "Gateway port to listen on",
			},
			&cli.StringFlag{
				Name:  "workspace",
				Usage: "Working directory handed to the agent",
			},
		},
		Action: runServe,
	}
}

// agentRunner narrows *agent.CLI to the surface the bot needs.
type agentRunner struct {
	cli *agent.CLI
}

func (r agentRunner) Name() string      { return r.cli.Name() }
func (r agentRunner) IsAvailable() bool { return r.cli.IsAvailable() }

func (r agentRunner) Run(ctx context.Context, prompt, sessionID, workspace string, resume bool) (tasks.Handle, error) {
	return r.cli.ExecuteAsync(ctx, prompt, sessionID, workspace, resume)
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	if cmd.Bool("debug") {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	configPath := cmd.String("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Warn("config not found, using defaults", "path", configPath, "error", err)
		cfg = config.Default()
	}

	// CLI flags override config.
	if cmd.IsSet("host") {
		cfg.Gateway.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		cfg.Gateway.Port = cmd.Int("port")
	}
	if cmd.IsSet("workspace") {
		cfg.Bot.Workspace = cmd.String("workspace")
	}

	if err := os.MkdirAll(config.FerryPath(), 0o755); err != nil {
		return fmt.Errorf("create ferry home: %w", err)
	}

	// Auth token may be stored encrypted in the config.
	keyPath := secrets.KeyPath()
	if err := secrets.GenerateIdentity(keyPath); err != nil {
		return fmt.Errorf("prepare age key: %w", err)
	}
	authToken, err := secrets.Resolve(cfg.Gateway.AuthToken, keyPath)
	if err != nil {
		return fmt.Errorf("resolve auth token: %w", err)
	}

	// Event bus
	bus := events.NewBus(cfg.Events.BufferSize)
	defer bus.Close()

	// IPC server for the agent's hooks
	ipcSrv := ipc.NewServer(cfg.IPC.SocketPath, slog.Default())

	// Agent CLI adapter
	agentCLI := agent.NewCLI(cfg.Agent.Path, cfg.Agent.DefaultArgs, cfg.IPC.SocketPath)
	if cfg.Agent.SetupHooks() {
		if err := setupAgentHooks(agentCLI); err != nil {
			slog.Warn("hook setup failed, permission relay may not work", "error", err)
		}
	}

	// Orchestrator
	b := bot.New(bot.Options{
		Config: cfg.Bot,
		Agent:  agentRunner{cli: agentCLI},
		IPC:    ipcSrv,
		Bus:    bus,
	})

	// Chat gateway is the bot's platform.
	gw := gateway.NewServer(bus, b.Tasks(), cfg.Gateway.Host, cfg.Gateway.Port, authToken)
	b.AddPlatform(gw)

	if err := b.Start(ctx); err != nil {
		return err
	}
	defer b.Stop()

	// Heartbeat for `ferry status`
	hb := heartbeat.NewWriter(config.HeartbeatPath(), func() heartbeat.Stats {
		return heartbeat.Stats{
			ActiveTasks:        b.Tasks().ActiveCount(),
			PendingPermissions: b.Permissions().PendingCount(),
			HookPeers:          ipcSrv.ClientCount(),
		}
	})
	hb.Start()
	defer hb.Stop()

	// Background sweeps
	jan := janitor.New(janitor.Config{
		Sessions:      b.Sessions(),
		Tasks:         b.Tasks(),
		Permissions:   b.Permissions(),
		Bus:           bus,
		SessionTTL:    cfg.Bot.SessionTTL.Duration(),
		TaskRetention: cfg.Bot.TaskRetention.Duration(),
	})
	if err := jan.Start(); err != nil {
		return fmt.Errorf("start janitor: %w", err)
	}
	defer jan.Stop()

	slog.Info("ferry is up",
		"gateway", fmt.Sprintf("%s:%d", cfg.Gateway.Host, cfg.Gateway.Port),
		"socket", cfg.IPC.SocketPath,
		"agent", cfg.Agent.Path,
		"workspace", cfg.Bot.Workspace,
	)

	<-ctx.Done()
	slog.Info("shutting down...")
	return nil
}

// setupAgentHooks wires ferry-hook into the agent's settings file. The hook
// binary is looked up on PATH first, then next to the ferry binary itself.
func setupAgentHooks(agentCLI *agent.CLI) error {
	hookBin, err := exec.LookPath("ferry-hook")
	if err != nil {
		self, selfErr := os.Executable()
		if selfErr != nil {
			return fmt.Errorf("locate ferry-hook: %w", err)
		}
		hookBin = filepath.Join(filepath.Dir(self), "ferry-hook")
		if _, statErr := os.Stat(hookBin); statErr != nil {
			return fmt.Errorf("locate ferry-hook: %w", err)
		}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("resolve home: %w", err)
	}
	return agentCLI.SetupHooks(home, hookBin)
}
