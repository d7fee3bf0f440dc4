package ipc

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"
)

// ErrNotConnected means an operation ran before Connect or after Close.
var ErrNotConnected = errors.New("ipc: not connected")

// Client is the hook-side end of the channel. It is synchronous and blocking,
// which is what a short-lived hook process wants.
type Client struct {
	socketPath string
	conn       net.Conn
	reader     *bufio.Reader
}

// NewClient creates a client for the given socket path.
func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath}
}

// Connect dials the bot's socket.
func (c *Client) Connect(timeout time.Duration) error {
	conn, err := net.DialTimeout("unix", c.socketPath, timeout)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.socketPath, err)
	}
	c.conn = conn
	c.reader = bufio.NewReaderSize(conn, maxLineSize)
	return nil
}

// Send writes one envelope, fire and forget.
func (c *Client) Send(msgType, requestID string, payload any) error {
	if c.conn == nil {
		return ErrNotConnected
	}
	msg, err := NewMessage(msgType, requestID, payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if _, err := c.conn.Write(data); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// SendAndWait writes one envelope and reads until a reply carrying the same
// request id arrives or the timeout elapses. Unrelated lines are skipped.
func (c *Client) SendAndWait(msgType, requestID string, payload any, timeout time.Duration) (Message, error) {
	if err := c.Send(msgType, requestID, payload); err != nil {
		return Message{}, err
	}

	deadline := time.Now().Add(timeout)
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return Message{}, err
	}
	defer c.conn.SetReadDeadline(time.Time{})

	for {
		line, err := c.reader.ReadBytes('\n')
		if err != nil {
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				return Message{}, ErrTimeout
			}
			return Message{}, fmt.Errorf("read: %w", err)
		}

		var msg Message
		if err := json.Unmarshal(line, &msg); err != nil {
			continue
		}
		if msg.RequestID == requestID {
			return msg, nil
		}
	}
}

// PollStatus is the server's answer to a permission lookup.
type PollStatus struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response,omitempty"`
}

// PollForResponse repeatedly queries the server for the resolution of
// requestID until it resolves or maxWait elapses. Intended for the permission
// hook, where the operator may take a long time to answer.
//
// The returned payload is the resolution for "responded"; "cancelled" and
// "not_found" synthesize a denial. nil means maxWait elapsed.
func (c *Client) PollForResponse(queryType, requestID string, interval, maxWait time.Duration) (json.RawMessage, error) {
	deadline := time.Now().Add(maxWait)

	for time.Now().Before(deadline) {
		pollID := fmt.Sprintf("poll_%s_%d", requestID, time.Now().UnixNano())
		reply, err := c.SendAndWait(queryType, pollID, map[string]string{"request_id": requestID}, interval+time.Second)
		if err != nil {
			if errors.Is(err, ErrTimeout) {
				continue
			}
			return nil, err
		}

		var status PollStatus
		if err := reply.DecodePayload(&status); err != nil {
			return nil, fmt.Errorf("decode poll reply: %w", err)
		}

		switch status.Status {
		case "responded":
			return status.Response, nil
		case "cancelled":
			return json.Marshal(map[string]string{"decision": "deny", "reason": "task cancelled"})
		case "not_found":
			return json.Marshal(map[string]string{"decision": "deny", "reason": "request not found"})
		}
		time.Sleep(interval)
	}
	return nil, nil
}

// Close tears down the connection. Safe to call twice.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.reader = nil
	return err
}

// Connected reports whether the client holds an open connection.
func (c *Client) Connected() bool {
	return c.conn != nil
}
