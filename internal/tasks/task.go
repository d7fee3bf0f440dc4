// Package tasks tracks the lifecycle of work delegated to the external
// coding agent.
package tasks

import "time"

// Status represents the lifecycle state of a task.
type Status string

const (
	StatusPending        Status = "pending"
	StatusRunning        Status = "running"
	StatusWaitingConfirm Status = "waiting_confirm"
	StatusCompleted      Status = "completed"
	StatusFailed         Status = "failed"
	StatusCancelling     Status = "cancelling"
	StatusCancelled      Status = "cancelled"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Active reports whether the task counts against the concurrency ceiling.
func (s Status) Active() bool {
	return s == StatusRunning || s == StatusWaitingConfirm
}

// Handle is the exclusively-owned external process behind a running task.
// Only the registry's cancellation and completion paths may terminate or
// reap it.
type Handle interface {
	IsRunning() bool
	Terminate() error
	Kill() error
	Wait() error
}

// Task is one unit of externally-delegated work. Its ID is the session id of
// the conversation it belongs to.
type Task struct {
	ID           string     `json:"id"`
	ChatID       string     `json:"chat_id"`
	UserID       string     `json:"user_id"`
	Prompt       string     `json:"prompt"`
	Workspace    string     `json:"workspace"`
	Status       Status     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	Summary      string     `json:"summary,omitempty"`
	FilesChanged []string   `json:"files_changed,omitempty"`

	// handle is owned by the registry; it is attached by Start and consumed
	// exactly once by the cancellation path.
	handle Handle
}

// Snapshot returns a copy safe to read without the registry lock. The
// process handle is not part of the copy.
func (t *Task) snapshot() Task {
	c := *t
	c.handle = nil
	c.FilesChanged = append([]string(nil), t.FilesChanged...)
	return c
}
