// Package agent adapts the external coding-agent CLI. The bot never talks to
// a model directly; it spawns the agent in print mode and hears back through
// hooks over IPC.
package agent

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
)

// Env vars handed to the spawned agent so its hooks can find their way back.
const (
	EnvSessionID  = "FERRY_SESSION_ID"
	EnvSocketPath = "FERRY_SOCKET"
)

// CLI drives one coding-agent binary.
type CLI struct {
	path        string
	defaultArgs []string
	socketPath  string
}

// NewCLI creates an adapter for the agent binary at path. socketPath is
// exported to spawned processes so hook invocations can reach the bot.
func NewCLI(path string, defaultArgs []string, socketPath string) *CLI {
	return &CLI{path: path, defaultArgs: defaultArgs, socketPath: socketPath}
}

// Name returns the agent binary name.
func (c *CLI) Name() string { return c.path }

// IsAvailable reports whether the agent binary resolves on PATH.
func (c *CLI) IsAvailable() bool {
	_, err := exec.LookPath(c.path)
	return err == nil
}

// buildArgs assembles the print-mode invocation. A fresh session pins its id
// with --session-id; a continuation resumes it with --resume.
func (c *CLI) buildArgs(prompt, sessionID string, resume bool) []string {
	args := []string{"--print", prompt}
	args = append(args, c.defaultArgs...)
	if resume {
		args = append(args, "--resume", sessionID)
	} else {
		args = append(args, "--session-id", sessionID)
	}
	return args
}

// ExecuteAsync spawns the agent and returns immediately. Progress and results
// arrive through hooks; the handle exists for termination and reaping only.
func (c *CLI) ExecuteAsync(ctx context.Context, prompt, sessionID, workspace string, resume bool) (*Handle, error) {
	cmd := exec.CommandContext(ctx, c.path, c.buildArgs(prompt, sessionID, resume)...)
	cmd.Dir = workspace
	cmd.Env = append(os.Environ(),
		EnvSessionID+"="+sessionID,
		EnvSocketPath+"="+c.socketPath,
	)
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawn %s: %w", c.path, err)
	}

	h := &Handle{cmd: cmd, done: make(chan struct{})}
	go h.reap()
	return h, nil
}

// Handle is the process behind a running task. Wait is idempotent: the
// process is reaped exactly once regardless of how many callers wait.
type Handle struct {
	cmd  *exec.Cmd
	done chan struct{}

	mu      sync.Mutex
	waitErr error
}

func (h *Handle) reap() {
	err := h.cmd.Wait()
	h.mu.Lock()
	h.waitErr = err
	h.mu.Unlock()
	close(h.done)
}

// IsRunning reports whether the process has not exited yet.
func (h *Handle) IsRunning() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// Terminate asks the process to exit with SIGTERM.
func (h *Handle) Terminate() error {
	if !h.IsRunning() {
		return nil
	}
	return h.cmd.Process.Signal(syscall.SIGTERM)
}

// Kill forcibly ends the process.
func (h *Handle) Kill() error {
	if !h.IsRunning() {
		return nil
	}
	return h.cmd.Process.Kill()
}

// Wait blocks until the process exits and returns its exit error. Safe to
// call from multiple goroutines.
func (h *Handle) Wait() error {
	<-h.done
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.waitErr
}

// PID returns the process id.
func (h *Handle) PID() int {
	return h.cmd.Process.Pid
}
