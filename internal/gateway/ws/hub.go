package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/ferrybot/ferry/internal/events"
	"github.com/ferrybot/ferry/internal/im"
)

// Client represents a connected WebSocket peer. A peer belongs to one chat,
// set by its subscribe call; until then it only receives bus events.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	mu     sync.Mutex
	chatID string
}

func (c *Client) chat() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chatID
}

func (c *Client) setChat(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chatID = id
}

// Hub manages WebSocket peers. Inbound send_message frames become chat
// messages for the bot; replies fan out to the chat's peers. The hub also
// bridges bus events to every peer for observability.
type Hub struct {
	mu          sync.RWMutex
	clients     map[*Client]struct{}
	onMessage   im.Handler
	bus         *events.Bus
	unsubscribe func()
}

// NewHub creates a hub. bus may be nil when event bridging is not wanted.
func NewHub(bus *events.Bus) *Hub {
	h := &Hub{
		clients: make(map[*Client]struct{}),
		bus:     bus,
	}
	if bus != nil {
		h.unsubscribe = bus.Subscribe(func(e events.Event) {
			frame, err := NewEventFrame(string(e.Type), "", e)
			if err != nil {
				slog.Error("marshal event frame", "error", err)
				return
			}
			data, err := MarshalFrame(frame)
			if err != nil {
				return
			}
			h.broadcast("", data)
		})
	}
	return h
}

// SetHandler installs the bot callback for inbound chat messages.
func (h *Hub) SetHandler(onMessage im.Handler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onMessage = onMessage
}

func (h *Hub) handler() im.Handler {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.onMessage
}

// broadcast sends data to connected peers. An empty chatID reaches everyone;
// otherwise only peers subscribed to that chat.
func (h *Hub) broadcast(chatID string, data []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	sent := 0
	for c := range h.clients {
		if chatID != "" && c.chat() != chatID {
			continue
		}
		select {
		case c.send <- data:
			sent++
		default:
			// Peer too slow, skip.
		}
	}
	return sent
}

// SendReply delivers a bot reply to the chat's peers. Reports whether anyone
// received it.
func (h *Hub) SendReply(chatID string, reply im.Reply) bool {
	frame, err := NewEventFrame("chat.reply", chatID, reply)
	if err != nil {
		return false
	}
	data, err := MarshalFrame(frame)
	if err != nil {
		return false
	}
	return h.broadcast(chatID, data) > 0
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	slog.Info("ws client connected", "clients", len(h.clients))
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		slog.Info("ws client disconnected", "clients", len(h.clients))
	}
}

// ClientCount returns the number of connected peers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS handles a WebSocket upgrade and manages the client lifecycle.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // local gateway, any origin
	})
	if err != nil {
		slog.Error("ws accept", "error", err)
		return
	}

	client := &Client{
		conn: conn,
		send: make(chan []byte, 256),
		hub:  h,
	}
	h.register(client)

	ctx := r.Context()
	go client.writePump(ctx)
	client.readPump(ctx)
}

func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			slog.Debug("ws read ended", "error", err)
			return
		}

		frame, err := UnmarshalFrame(data)
		if err != nil {
			slog.Error("ws unmarshal frame", "error", err)
			continue
		}
		if frame.Type == FrameTypeRequest {
			c.handleRequest(frame)
		}
	}
}

func (c *Client) handleRequest(frame Frame) {
	switch frame.Method {
	case MethodSubscribe:
		var params struct {
			ChatID string `json:"chat_id"`
		}
		if err := json.Unmarshal(frame.Params, &params); err != nil || params.ChatID == "" {
			c.sendError(frame.ID, "invalid params")
			return
		}
		c.setChat(params.ChatID)
		c.sendOK(frame.ID, map[string]string{"chat_id": params.ChatID})

	case MethodSendMessage:
		var params struct {
			ChatID   string `json:"chat_id"`
			Content  string `json:"content"`
			SenderID string `json:"sender_id"`
		}
		if err := json.Unmarshal(frame.Params, &params); err != nil {
			c.sendError(frame.ID, "invalid params")
			return
		}
		chatID := params.ChatID
		if chatID == "" {
			chatID = c.chat()
		}
		if chatID == "" {
			c.sendError(frame.ID, "no chat: subscribe first or set chat_id")
			return
		}

		handler := c.hub.handler()
		if handler == nil {
			c.sendError(frame.ID, "bot not listening")
			return
		}

		id := frame.ID
		if id == "" {
			id = uuid.NewString()
		}
		handler(im.Message{
			ID:       id,
			ChatID:   chatID,
			Content:  params.Content,
			SenderID: params.SenderID,
		})
		c.sendOK(frame.ID, map[string]string{"status": "accepted"})

	default:
		c.sendError(frame.ID, "unknown method: "+frame.Method)
	}
}

func (c *Client) writePump(ctx context.Context) {
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.Write(ctx, websocket.MessageText, msg); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) sendOK(id string, payload any) {
	c.enqueue(id, true, payload, "")
}

func (c *Client) sendError(id, errMsg string) {
	c.enqueue(id, false, nil, errMsg)
}

func (c *Client) enqueue(id string, ok bool, payload any, errMsg string) {
	f, err := NewResponseFrame(id, ok, payload, errMsg)
	if err != nil {
		return
	}
	data, err := MarshalFrame(f)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// Close shuts down the hub and all client connections.
func (h *Hub) Close() {
	if h.unsubscribe != nil {
		h.unsubscribe()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.conn.Close(websocket.StatusGoingAway, "server shutdown")
		delete(h.clients, c)
	}
}
