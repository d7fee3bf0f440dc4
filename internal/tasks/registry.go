package tasks

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ferrybot/ferry/internal/events"
)

var (
	// ErrCapacity means the concurrency ceiling is reached. This is admission
	// control, not a queue: the caller should tell the operator to retry later.
	ErrCapacity = errors.New("task capacity reached")

	ErrNotFound         = errors.New("task not found")
	ErrAlreadyCompleted = errors.New("task already completed")
	ErrAlreadyCancelled = errors.New("task already cancelled")
)

// RollbackFunc discards uncommitted workspace changes during cancellation.
// It reports whether the rollback ran and a human-readable result.
type RollbackFunc func(ctx context.Context, workspace string) (bool, string)

// Config holds construction parameters for a Registry.
type Config struct {
	MaxConcurrent int
	GracePeriod   time.Duration // wait between Terminate and Kill
	Rollback      RollbackFunc  // optional, invoked on cancel
	Bus           *events.Bus   // optional lifecycle events
}

// Registry tracks every task and enforces the concurrency ceiling. The mutex
// guards map mutation only; waiting on the external process and rollback
// happen outside it so a slow process cannot block unrelated operations.
type Registry struct {
	mu     sync.Mutex
	tasks  map[string]*Task    // session id -> task
	byChat map[string][]string // chat id -> session ids, creation order

	maxConcurrent int
	gracePeriod   time.Duration
	rollback      RollbackFunc
	bus           *events.Bus
}

// NewRegistry creates a task registry.
func NewRegistry(cfg Config) *Registry {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 3
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = 10 * time.Second
	}
	return &Registry{
		tasks:         make(map[string]*Task),
		byChat:        make(map[string][]string),
		maxConcurrent: cfg.MaxConcurrent,
		gracePeriod:   cfg.GracePeriod,
		rollback:      cfg.Rollback,
		bus:           cfg.Bus,
	}
}

// Create registers a new pending task. It refuses with ErrCapacity when the
// count of running or confirm-waiting tasks already equals the ceiling.
func (r *Registry) Create(sessionID, chatID, userID, prompt, workspace string) (Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	active := 0
	for _, t := range r.tasks {
		if t.Status.Active() {
			active++
		}
	}
	if active >= r.maxConcurrent {
		return Task{}, ErrCapacity
	}

	now := time.Now()
	t := &Task{
		ID:        sessionID,
		ChatID:    chatID,
		UserID:    userID,
		Prompt:    prompt,
		Workspace: workspace,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.tasks[sessionID] = t
	if !contains(r.byChat[chatID], sessionID) {
		r.byChat[chatID] = append(r.byChat[chatID], sessionID)
	}

	r.publish(events.NewTypedEventWithSession(events.SourceTask, events.TaskCreatedPayload{
		TaskID: sessionID,
		ChatID: chatID,
		Prompt: prompt,
	}, sessionID))

	return t.snapshot(), nil
}

// Start attaches the process handle and marks the task running. At most one
// handle is ever associated with a task.
func (r *Registry) Start(sessionID string, h Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[sessionID]
	if !ok {
		return ErrNotFound
	}
	t.Status = StatusRunning
	t.handle = h
	t.UpdatedAt = time.Now()

	r.publish(events.NewTypedEventWithSession(events.SourceTask, events.TaskStartedPayload{
		TaskID: sessionID,
		ChatID: t.ChatID,
	}, sessionID))
	return nil
}

// SetStatus updates a task's status. Once a cancellation has been observed,
// progress events may not revert the task to running.
func (r *Registry) SetStatus(sessionID string, status Status, errMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[sessionID]
	if !ok {
		return ErrNotFound
	}
	if t.Status == StatusCancelling || t.Status == StatusCancelled {
		return nil
	}

	t.Status = status
	t.UpdatedAt = time.Now()
	if errMsg != "" {
		t.ErrorMessage = errMsg
	}
	if status == StatusCompleted {
		now := time.Now()
		t.CompletedAt = &now
	}

	if status == StatusFailed {
		r.publish(events.NewTypedEventWithSession(events.SourceTask, events.TaskFailedPayload{
			TaskID: sessionID,
			Error:  errMsg,
		}, sessionID))
	}
	return nil
}

// Complete marks a task completed with its summary and changed files.
func (r *Registry) Complete(sessionID, summary string, filesChanged []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[sessionID]
	if !ok {
		return ErrNotFound
	}
	if t.Status == StatusCancelling || t.Status == StatusCancelled {
		return nil
	}

	now := time.Now()
	t.Status = StatusCompleted
	t.Summary = summary
	t.FilesChanged = append([]string(nil), filesChanged...)
	t.UpdatedAt = now
	t.CompletedAt = &now
	t.handle = nil

	r.publish(events.NewTypedEventWithSession(events.SourceTask, events.TaskCompletedPayload{
		TaskID:       sessionID,
		Summary:      summary,
		FilesChanged: filesChanged,
		Duration:     now.Sub(t.CreatedAt),
	}, sessionID))
	return nil
}

// Get returns a copy of the task for the session.
func (r *Registry) Get(sessionID string) (Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[sessionID]
	if !ok {
		return Task{}, false
	}
	return t.snapshot(), true
}

// ActiveForChat returns the chat's most recent task that is running, waiting
// for confirmation, or completed. A completed task stays addressable so
// follow-up commands like diff and commit still resolve to it.
func (r *Registry) ActiveForChat(chatID string) (Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := r.byChat[chatID]
	for i := len(ids) - 1; i >= 0; i-- {
		t, ok := r.tasks[ids[i]]
		if !ok {
			continue
		}
		switch t.Status {
		case StatusRunning, StatusWaitingConfirm, StatusCompleted:
			return t.snapshot(), true
		}
	}
	return Task{}, false
}

// ActiveTasks returns copies of all tasks counting against the ceiling.
func (r *Registry) ActiveTasks() []Task {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Task
	for _, t := range r.tasks {
		if t.Status.Active() {
			out = append(out, t.snapshot())
		}
	}
	return out
}

// ActiveCount returns the number of tasks counting against the ceiling.
func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, t := range r.tasks {
		if t.Status.Active() {
			n++
		}
	}
	return n
}

// Cancel drives the cancellation protocol: mark cancelling and take the
// handle under the lock, then terminate the process and roll back the
// workspace outside it, then mark cancelled. The handle is consumed here;
// no other path can double-kill it. Returns a human-readable result.
func (r *Registry) Cancel(ctx context.Context, sessionID string) (string, error) {
	r.mu.Lock()
	t, ok := r.tasks[sessionID]
	if !ok {
		r.mu.Unlock()
		return "", ErrNotFound
	}
	switch t.Status {
	case StatusCompleted:
		r.mu.Unlock()
		return "", ErrAlreadyCompleted
	case StatusCancelled:
		r.mu.Unlock()
		return "", ErrAlreadyCancelled
	}

	t.Status = StatusCancelling
	t.UpdatedAt = time.Now()
	h := t.handle
	t.handle = nil
	workspace := t.Workspace
	r.mu.Unlock()

	if h != nil && h.IsRunning() {
		r.terminate(sessionID, h)
	}

	rollbackResult := ""
	if r.rollback != nil {
		ok, msg := r.rollback(ctx, workspace)
		if !ok {
			// Best effort: a failed rollback never blocks reaching cancelled.
			slog.Warn("rollback failed", "task_id", sessionID, "result", msg)
		}
		rollbackResult = msg
	}

	r.mu.Lock()
	t.Status = StatusCancelled
	t.UpdatedAt = time.Now()
	r.mu.Unlock()

	msg := "task cancelled"
	if rollbackResult != "" {
		msg += ", " + rollbackResult
	}

	r.publish(events.NewTypedEventWithSession(events.SourceTask, events.TaskCancelledPayload{
		TaskID: sessionID,
		Reason: msg,
	}, sessionID))
	return msg, nil
}

// terminate asks the process to exit, waits the grace period, then escalates
// to a kill. Runs outside the registry lock.
func (r *Registry) terminate(sessionID string, h Handle) {
	if err := h.Terminate(); err != nil {
		slog.Warn("terminate failed", "task_id", sessionID, "error", err)
	}

	done := make(chan struct{})
	go func() {
		_ = h.Wait()
		close(done)
	}()

	select {
	case <-done:
		return
	case <-time.After(r.gracePeriod):
	}

	if err := h.Kill(); err != nil {
		slog.Warn("kill failed", "task_id", sessionID, "error", err)
	}
	<-done
}

// PurgeOld removes terminal tasks whose last update is older than maxAge,
// along with their chat index entries. Returns the number purged.
func (r *Registry) PurgeOld(maxAge time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	purged := 0
	for id, t := range r.tasks {
		if !t.Status.Terminal() || t.UpdatedAt.After(cutoff) {
			continue
		}
		delete(r.tasks, id)
		r.byChat[t.ChatID] = removeID(r.byChat[t.ChatID], id)
		if len(r.byChat[t.ChatID]) == 0 {
			delete(r.byChat, t.ChatID)
		}
		purged++
	}
	return purged
}

// Count returns the total number of tracked tasks.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

func (r *Registry) publish(e events.Event) {
	if r.bus != nil {
		r.bus.Publish(e)
	}
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
