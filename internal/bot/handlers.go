package bot

import (
	"context"
	"encoding/json"

	"github.com/ferrybot/ferry/internal/events"
	"github.com/ferrybot/ferry/internal/permissions"
	"github.com/ferrybot/ferry/internal/tasks"
)

// Payloads arriving from the agent hooks over IPC.
type taskProgressPayload struct {
	SessionID     string `json:"session_id"`
	ToolName      string `json:"tool_name"`
	Status        string `json:"status"`
	OutputPreview string `json:"output_preview,omitempty"`
}

type taskCompletePayload struct {
	SessionID    string   `json:"session_id"`
	Summary      string   `json:"summary,omitempty"`
	Status       string   `json:"status,omitempty"`
	FilesChanged []string `json:"files_changed,omitempty"`
}

type permissionRequestPayload struct {
	RequestID string         `json:"request_id"`
	SessionID string         `json:"session_id"`
	ToolName  string         `json:"tool_name"`
	Command   string         `json:"command"`
	FullInput map[string]any `json:"full_input,omitempty"`
}

type permissionQueryPayload struct {
	RequestID string `json:"request_id"`
}

func (b *Bot) registerIPCHandlers() {
	b.ipcSrv.Handle("task_progress", b.onTaskProgress)
	b.ipcSrv.Handle("task_complete", b.onTaskComplete)
	b.ipcSrv.Handle("permission_request", b.onPermissionRequest)
	b.ipcSrv.Handle("get_permission_response", b.onGetPermissionResponse)
}

// onTaskProgress relays a tool-use notification to the task's chat.
func (b *Bot) onTaskProgress(_ context.Context, raw json.RawMessage) (any, error) {
	var p taskProgressPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}

	task, ok := b.tasks.Get(p.SessionID)
	if !ok {
		b.log.Debug("progress for unknown task", "session_id", p.SessionID)
		return nil, nil
	}

	msg := "📍 " + p.ToolName + ": " + p.Status
	if p.OutputPreview != "" && len(p.OutputPreview) < 100 {
		msg += "\n" + p.OutputPreview
	}
	b.send(task.ChatID, msg)

	b.publish(events.NewTypedEventWithSession(events.SourceIPC, events.TaskProgressPayload{
		TaskID:        p.SessionID,
		ToolName:      p.ToolName,
		Status:        p.Status,
		OutputPreview: p.OutputPreview,
	}, p.SessionID))
	return nil, nil
}

// onTaskComplete relays the agent's final answer and completes the task.
func (b *Bot) onTaskComplete(_ context.Context, raw json.RawMessage) (any, error) {
	var p taskCompletePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}

	task, ok := b.tasks.Get(p.SessionID)
	if !ok {
		b.log.Debug("completion for unknown task", "session_id", p.SessionID)
		return nil, nil
	}

	if p.Summary != "" {
		emoji := "✅"
		if p.Status != "" && p.Status != "completed" {
			emoji = "❌"
		}
		b.send(task.ChatID, emoji+" agent:\n\n"+b.truncate(p.Summary))
	}

	if err := b.tasks.Complete(p.SessionID, p.Summary, p.FilesChanged); err != nil {
		b.log.Warn("complete failed", "session_id", p.SessionID, "error", err)
	}
	return nil, nil
}

// onPermissionRequest registers a confirmation request and prompts the
// operator. The hook keeps polling get_permission_response for the outcome.
func (b *Bot) onPermissionRequest(_ context.Context, raw json.RawMessage) (any, error) {
	var p permissionRequestPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}

	task, ok := b.tasks.Get(p.SessionID)
	if !ok {
		return permissions.Response{Decision: permissions.DecisionDeny, Reason: "task not found"}, nil
	}

	if err := b.tasks.SetStatus(p.SessionID, tasks.StatusWaitingConfirm, ""); err != nil {
		b.log.Warn("mark waiting_confirm failed", "session_id", p.SessionID, "error", err)
	}

	req := b.perms.Create(p.RequestID, p.SessionID, p.ToolName, p.Command, p.FullInput)
	b.send(task.ChatID, permissions.FormatRequestMessage(req))

	b.publish(events.NewTypedEventWithSession(events.SourceIPC, events.PermissionRequestedPayload{
		RequestID: p.RequestID,
		TaskID:    p.SessionID,
		ToolName:  p.ToolName,
		Command:   p.Command,
	}, p.SessionID))

	return map[string]string{"status": "pending"}, nil
}

// onGetPermissionResponse answers a hook poll. Delivering a resolution
// restores the task from waiting_confirm to running; the agent resumes (or
// aborts the tool call) either way.
func (b *Bot) onGetPermissionResponse(_ context.Context, raw json.RawMessage) (any, error) {
	var p permissionQueryPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}

	lookup := b.perms.GetResponse(p.RequestID)
	if lookup.Status == permissions.LookupResponded {
		if req, ok := b.perms.Get(p.RequestID); ok {
			if task, ok := b.tasks.Get(req.SessionID); ok && task.Status == tasks.StatusWaitingConfirm {
				if err := b.tasks.SetStatus(req.SessionID, tasks.StatusRunning, ""); err != nil {
					b.log.Warn("restore running failed", "session_id", req.SessionID, "error", err)
				}
			}
		}
	}
	return lookup, nil
}
