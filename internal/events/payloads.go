package events

import (
	"encoding/json"
	"time"
)

// EventPayload is the interface all typed payloads implement.
type EventPayload interface {
	EventType() EventType
}

type ChatMessagePayload struct {
	ChatID   string `json:"chat_id"`
	SenderID string `json:"sender_id"`
	Content  string `json:"content"`
}

func (ChatMessagePayload) EventType() EventType { return EventChatMessage }

type ChatReplyPayload struct {
	ChatID  string `json:"chat_id"`
	Content string `json:"content"`
}

func (ChatReplyPayload) EventType() EventType { return EventChatReply }

type TaskCreatedPayload struct {
	TaskID string `json:"task_id"`
	ChatID string `json:"chat_id"`
	Prompt string `json:"prompt"`
}

func (TaskCreatedPayload) EventType() EventType { return EventTaskCreated }

type TaskStartedPayload struct {
	TaskID string `json:"task_id"`
	ChatID string `json:"chat_id"`
}

func (TaskStartedPayload) EventType() EventType { return EventTaskStarted }

type TaskProgressPayload struct {
	TaskID        string `json:"task_id"`
	ToolName      string `json:"tool_name"`
	Status        string `json:"status"`
	OutputPreview string `json:"output_preview,omitempty"`
}

func (TaskProgressPayload) EventType() EventType { return EventTaskProgress }

type TaskCompletedPayload struct {
	TaskID       string        `json:"task_id"`
	Summary      string        `json:"summary,omitempty"`
	FilesChanged []string      `json:"files_changed,omitempty"`
	Duration     time.Duration `json:"duration,omitempty"`
}

func (TaskCompletedPayload) EventType() EventType { return EventTaskCompleted }

type TaskFailedPayload struct {
	TaskID string `json:"task_id"`
	Error  string `json:"error"`
}

func (TaskFailedPayload) EventType() EventType { return EventTaskFailed }

type TaskCancelledPayload struct {
	TaskID string `json:"task_id"`
	Reason string `json:"reason,omitempty"`
}

func (TaskCancelledPayload) EventType() EventType { return EventTaskCancelled }

type PermissionRequestedPayload struct {
	RequestID string `json:"request_id"`
	TaskID    string `json:"task_id"`
	ToolName  string `json:"tool_name"`
	Command   string `json:"command"`
}

func (PermissionRequestedPayload) EventType() EventType { return EventPermissionRequested }

type PermissionResolvedPayload struct {
	RequestID string `json:"request_id"`
	Decision  string `json:"decision"`
	Reason    string `json:"reason,omitempty"`
}

func (PermissionResolvedPayload) EventType() EventType { return EventPermissionResolved }

type SessionExpiredPayload struct {
	ChatID    string `json:"chat_id"`
	SessionID string `json:"session_id"`
}

func (SessionExpiredPayload) EventType() EventType { return EventSessionExpired }

// NewTypedEvent creates an event from a typed payload.
func NewTypedEvent(source EventSource, payload EventPayload) Event {
	return Event{
		ID:        generateEventID(),
		Type:      payload.EventType(),
		Timestamp: time.Now(),
		Source:    source,
		Payload:   toMap(payload),
	}
}

// NewTypedEventWithSession creates an event carrying session context.
func NewTypedEventWithSession(source EventSource, payload EventPayload, sessionID string) Event {
	e := NewTypedEvent(source, payload)
	e.SessionID = sessionID
	return e
}

func toMap(v any) map[string]any {
	var result map[string]any
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil
	}
	return result
}

// ExtractPayload converts an event's payload map back into a typed payload.
func ExtractPayload[T EventPayload](e Event) (T, bool) {
	var result T
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return result, false
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return result, false
	}
	return result, true
}
