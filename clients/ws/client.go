// Package ws provides a WebSocket client for the ferry chat gateway.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/coder/websocket"

	wsprotocol "github.com/ferrybot/ferry/internal/gateway/ws"
)

// Client is a WebSocket client for the ferry gateway.
type Client struct {
	conn   *websocket.Conn
	reqSeq uint64
	ctx    context.Context
	cancel context.CancelFunc
}

// Dial connects to the gateway WebSocket endpoint. authToken may be empty
// when the gateway runs without auth.
func Dial(ctx context.Context, url, authToken string) (*Client, error) {
	var opts *websocket.DialOptions
	if authToken != "" {
		opts = &websocket.DialOptions{
			HTTPHeader: http.Header{"Authorization": {"Bearer " + authToken}},
		}
	}

	conn, _, err := websocket.Dial(ctx, url, opts)
	if err != nil {
		return nil, fmt.Errorf("ws dial: %w", err)
	}

	clientCtx, cancel := context.WithCancel(ctx)

	return &Client{
		conn:   conn,
		ctx:    clientCtx,
		cancel: cancel,
	}, nil
}

// Subscribe binds this connection to a chat. Replies for the chat arrive as
// chat.reply event frames.
func (c *Client) Subscribe(chatID string) error {
	params, _ := json.Marshal(map[string]string{"chat_id": chatID})
	return c.request(wsprotocol.MethodSubscribe, params)
}

// SendMessage sends an operator message into the chat. An empty chatID uses
// the subscribed chat.
func (c *Client) SendMessage(chatID, senderID, content string) error {
	params, _ := json.Marshal(map[string]string{
		"chat_id":   chatID,
		"sender_id": senderID,
		"content":   content,
	})
	return c.request(wsprotocol.MethodSendMessage, params)
}

func (c *Client) request(method string, params json.RawMessage) error {
	seq := atomic.AddUint64(&c.reqSeq, 1)

	frame := wsprotocol.Frame{
		Type:   wsprotocol.FrameTypeRequest,
		ID:     fmt.Sprintf("req-%d", seq),
		Method: method,
		Params: params,
	}

	data, err := wsprotocol.MarshalFrame(frame)
	if err != nil {
		return err
	}
	return c.conn.Write(c.ctx, websocket.MessageText, data)
}

// ReadFrame reads the next frame from the connection.
func (c *Client) ReadFrame() (wsprotocol.Frame, error) {
	_, data, err := c.conn.Read(c.ctx)
	if err != nil {
		return wsprotocol.Frame{}, err
	}
	return wsprotocol.UnmarshalFrame(data)
}

// Close gracefully closes the connection.
func (c *Client) Close() error {
	c.cancel()
	return c.conn.Close(websocket.StatusNormalClosure, "bye")
}
