// Package im defines the chat platform contract the orchestrator speaks.
// Concrete platforms (the websocket gateway, test fakes) live elsewhere.
package im

import "context"

// Message is one inbound chat message, normalized across platforms.
type Message struct {
	ID        string `json:"id"`
	ChatID    string `json:"chat_id"`
	Content   string `json:"content"`
	SenderID  string `json:"sender_id"`
	IsPrivate bool   `json:"is_private"`
}

// Reply is one outbound chat message.
type Reply struct {
	Content          string `json:"content"`
	ReplyToMessageID string `json:"reply_to_message_id,omitempty"`
}

// Handler receives each inbound message. Implementations must not block;
// the platform's receive loop calls them inline.
type Handler func(Message)

// Platform is a chat transport the bot can listen and reply on.
type Platform interface {
	Name() string
	Start(ctx context.Context, onMessage Handler) error
	Stop() error

	// Send delivers a reply to a chat. Reports whether any recipient
	// received it.
	Send(chatID string, reply Reply) bool
}
