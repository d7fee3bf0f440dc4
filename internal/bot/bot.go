// Package bot wires the chat platforms, the task and permission registries,
// the IPC channel and the agent CLI into the orchestrator.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ferrybot/ferry/internal/command"
	"github.com/ferrybot/ferry/internal/config"
	"github.com/ferrybot/ferry/internal/events"
	"github.com/ferrybot/ferry/internal/gitops"
	"github.com/ferrybot/ferry/internal/im"
	"github.com/ferrybot/ferry/internal/ipc"
	"github.com/ferrybot/ferry/internal/permissions"
	"github.com/ferrybot/ferry/internal/sessions"
	"github.com/ferrybot/ferry/internal/tasks"
)

// Runner is the agent CLI surface the bot needs.
type Runner interface {
	Name() string
	IsAvailable() bool
	Run(ctx context.Context, prompt, sessionID, workspace string, resume bool) (tasks.Handle, error)
}

// gitFuncs lets tests stub out the repository operations.
type gitFuncs struct {
	diff     func(ctx context.Context, workspace, pattern string) (bool, string)
	commit   func(ctx context.Context, workspace, message string) (bool, string)
	push     func(ctx context.Context, workspace string) (bool, string)
	rollback func(ctx context.Context, workspace string) (bool, string)
	status   func(ctx context.Context, workspace string) (bool, string)
}

func defaultGit() gitFuncs {
	return gitFuncs{
		diff:     gitops.Diff,
		commit:   gitops.Commit,
		push:     gitops.Push,
		rollback: gitops.Rollback,
		status:   gitops.Status,
	}
}

// Options carries the bot's collaborators.
type Options struct {
	Config config.BotConfig
	Agent  Runner
	IPC    *ipc.Server
	Bus    *events.Bus
	Logger *slog.Logger
}

// Bot routes chat messages to tasks and relays agent hook traffic back to
// chat.
type Bot struct {
	cfg    config.BotConfig
	agent  Runner
	ipcSrv *ipc.Server
	bus    *events.Bus
	log    *slog.Logger
	git    gitFuncs

	sessions  *sessions.Manager
	tasks     *tasks.Registry
	perms     *permissions.Registry
	platforms []im.Platform

	mu   sync.Mutex
	seen map[string]struct{}

	runCtx context.Context
}

// New assembles a bot. The task registry's rollback hook is wired only when
// auto rollback is enabled.
func New(opts Options) *Bot {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	b := &Bot{
		cfg:      opts.Config,
		agent:    opts.Agent,
		ipcSrv:   opts.IPC,
		bus:      opts.Bus,
		log:      log.With("component", "bot"),
		git:      defaultGit(),
		sessions: sessions.NewManager(),
		perms:    permissions.NewRegistry(opts.Config.PermissionTimeout.Duration()),
		seen:     make(map[string]struct{}),
		runCtx:   context.Background(),
	}

	taskCfg := tasks.Config{
		MaxConcurrent: opts.Config.MaxConcurrentTasks,
		Bus:           opts.Bus,
	}
	if opts.Config.RollbackOnCancel() {
		taskCfg.Rollback = func(ctx context.Context, workspace string) (bool, string) {
			return b.git.rollback(ctx, workspace)
		}
	}
	b.tasks = tasks.NewRegistry(taskCfg)

	b.registerIPCHandlers()
	return b
}

// AddPlatform attaches a chat platform. Call before Start.
func (b *Bot) AddPlatform(p im.Platform) {
	b.platforms = append(b.platforms, p)
}

// Tasks exposes the task registry for the janitor and the gateway API.
func (b *Bot) Tasks() *tasks.Registry { return b.tasks }

// Permissions exposes the permission registry for the janitor.
func (b *Bot) Permissions() *permissions.Registry { return b.perms }

// Sessions exposes the session manager for the janitor.
func (b *Bot) Sessions() *sessions.Manager { return b.sessions }

// Start brings up the IPC server and every chat platform.
func (b *Bot) Start(ctx context.Context) error {
	if !b.agent.IsAvailable() {
		return fmt.Errorf("agent %q not available", b.agent.Name())
	}
	b.runCtx = ctx

	if err := b.ipcSrv.Start(ctx); err != nil {
		return fmt.Errorf("start ipc: %w", err)
	}
	for _, p := range b.platforms {
		b.log.Info("starting platform", "platform", p.Name())
		if err := p.Start(ctx, b.OnMessage); err != nil {
			return fmt.Errorf("start platform %s: %w", p.Name(), err)
		}
	}
	return nil
}

// Stop shuts down platforms and the IPC server.
func (b *Bot) Stop() {
	for _, p := range b.platforms {
		if err := p.Stop(); err != nil {
			b.log.Warn("platform stop failed", "platform", p.Name(), "error", err)
		}
	}
	if err := b.ipcSrv.Stop(); err != nil {
		b.log.Warn("ipc stop failed", "error", err)
	}
}

// OnMessage handles one inbound chat message. Duplicate deliveries of the
// same message id are dropped.
func (b *Bot) OnMessage(msg im.Message) {
	b.mu.Lock()
	if _, dup := b.seen[msg.ID]; dup {
		b.mu.Unlock()
		return
	}
	b.seen[msg.ID] = struct{}{}
	b.mu.Unlock()

	cmd := command.Parse(msg.Content)
	if cmd.Raw == "" {
		return
	}

	b.publish(events.NewTypedEvent(events.SourceBot, events.ChatMessagePayload{
		ChatID:   msg.ChatID,
		SenderID: msg.SenderID,
		Content:  msg.Content,
	}))

	if task, ok := b.tasks.ActiveForChat(msg.ChatID); ok && cmd.Type != command.Message {
		b.handleCommand(msg, cmd, task)
		return
	}
	b.startTask(msg, cmd.Raw)
}

func (b *Bot) handleCommand(msg im.Message, cmd command.Parsed, task tasks.Task) {
	ctx := b.runCtx

	switch {
	case cmd.IsPermissionResponse():
		pending, ok := b.perms.LatestPending(task.ID)
		if !ok {
			// Nothing awaits confirmation, so the reply is agent input.
			b.startTask(msg, cmd.Raw)
			return
		}
		decision := "deny"
		if cmd.Type == command.Approve {
			decision = "approve"
		}
		if err := b.perms.Respond(pending.RequestID, decision, ""); err != nil {
			b.log.Warn("respond failed", "request_id", pending.RequestID, "error", err)
			return
		}
		b.publish(events.NewTypedEventWithSession(events.SourceBot, events.PermissionResolvedPayload{
			RequestID: pending.RequestID,
			Decision:  decision,
		}, task.ID))
		if decision == "approve" {
			b.send(msg.ChatID, "✅ approved")
		} else {
			b.send(msg.ChatID, "❌ denied")
		}

	case cmd.Type == command.Cancel:
		result, err := b.tasks.Cancel(ctx, task.ID)
		b.perms.CancelAllForSession(task.ID)
		switch {
		case errors.Is(err, tasks.ErrAlreadyCompleted):
			b.send(msg.ChatID, "task already completed, nothing to cancel")
		case errors.Is(err, tasks.ErrAlreadyCancelled):
			b.send(msg.ChatID, "task already cancelled")
		case err != nil:
			b.send(msg.ChatID, "❌ cancel failed: "+err.Error())
		default:
			b.send(msg.ChatID, "⏹️ "+result)
		}

	case cmd.Type == command.Diff:
		ok, diff := b.git.diff(ctx, task.Workspace, cmd.Args)
		if !ok {
			b.send(msg.ChatID, "❌ "+diff)
			return
		}
		b.send(msg.ChatID, "📄 changes:\n\n```diff\n"+b.truncate(diff)+"\n```")

	case cmd.Type == command.Commit:
		message := cmd.Args
		if message == "" {
			message = "update via ferry"
		}
		ok, result := b.git.commit(ctx, task.Workspace, message)
		if !ok {
			b.send(msg.ChatID, "❌ commit failed: "+result)
			return
		}
		b.send(msg.ChatID, fmt.Sprintf("✅ committed %s\nmessage: %s\n\nreply \"push\" to push", result, message))

	case cmd.Type == command.Push:
		ok, result := b.git.push(ctx, task.Workspace)
		if !ok {
			b.send(msg.ChatID, "❌ "+result)
			return
		}
		b.send(msg.ChatID, "✅ "+result)

	case cmd.Type == command.Rollback:
		ok, result := b.git.rollback(ctx, task.Workspace)
		if !ok {
			b.send(msg.ChatID, "❌ "+result)
			return
		}
		b.send(msg.ChatID, "✅ "+result)

	case cmd.Type == command.Status:
		b.send(msg.ChatID, formatTaskStatus(task))

	case cmd.Type == command.Continue:
		if cmd.Args == "" {
			b.send(msg.ChatID, "tell me what to continue with")
			return
		}
		b.startTask(msg, cmd.Args)
	}
}

// startTask creates and spawns a new task for the message's chat.
func (b *Bot) startTask(msg im.Message, prompt string) {
	b.send(msg.ChatID, "🤔 on it...")

	_, resume := b.sessions.Peek(msg.ChatID)
	sess := b.sessions.GetOrCreate(msg.ChatID)

	_, err := b.tasks.Create(sess.ID, msg.ChatID, msg.SenderID, prompt, b.cfg.Workspace)
	if errors.Is(err, tasks.ErrCapacity) {
		b.send(msg.ChatID, "⚠️ all task slots are busy, try again later")
		return
	}
	if err != nil {
		b.send(msg.ChatID, "❌ "+err.Error())
		return
	}

	handle, err := b.agent.Run(b.runCtx, prompt, sess.ID, b.cfg.Workspace, resume)
	if err != nil {
		b.tasks.SetStatus(sess.ID, tasks.StatusFailed, err.Error())
		b.send(msg.ChatID, "❌ failed to start: "+err.Error())
		return
	}
	if err := b.tasks.Start(sess.ID, handle); err != nil {
		b.log.Error("start task failed", "session_id", sess.ID, "error", err)
	}
}

// send delivers a reply through the first platform that accepts it.
func (b *Bot) send(chatID, content string) {
	for _, p := range b.platforms {
		if p.Send(chatID, im.Reply{Content: content}) {
			b.publish(events.NewTypedEvent(events.SourceBot, events.ChatReplyPayload{
				ChatID:  chatID,
				Content: content,
			}))
			return
		}
	}
	b.log.Warn("no platform accepted reply", "chat_id", chatID)
}

// truncate caps operator-facing output at the configured length.
func (b *Bot) truncate(s string) string {
	max := b.cfg.MaxOutputLength
	if max <= 0 || len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "\n\n... (truncated)"
}

func (b *Bot) publish(e events.Event) {
	if b.bus != nil {
		b.bus.Publish(e)
	}
}

func formatTaskStatus(task tasks.Task) string {
	statusEmoji := map[tasks.Status]string{
		tasks.StatusPending:        "⏳",
		tasks.StatusRunning:        "🔄",
		tasks.StatusWaitingConfirm: "⚠️",
		tasks.StatusCompleted:      "✅",
		tasks.StatusFailed:         "❌",
		tasks.StatusCancelling:     "⏹️",
		tasks.StatusCancelled:      "⏹️",
	}
	emoji, ok := statusEmoji[task.Status]
	if !ok {
		emoji = "❓"
	}

	prompt := task.Prompt
	if runes := []rune(prompt); len(runes) > 50 {
		prompt = string(runes[:50]) + "..."
	}

	out := fmt.Sprintf("%s status: %s\n📝 task: %s\n🕐 created: %s",
		emoji, task.Status, prompt, task.CreatedAt.Format("15:04:05"))
	if task.Status == tasks.StatusCompleted {
		out += "\n\navailable commands: diff, commit, push, rollback, continue"
	}
	return out
}
