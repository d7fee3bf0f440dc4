package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/ferrybot/ferry/internal/gateway/ws"
	"github.com/ferrybot/ferry/internal/im"
	"github.com/ferrybot/ferry/internal/tasks"
)

type recorder struct {
	mu   sync.Mutex
	msgs []im.Message
}

func (r *recorder) handle(m im.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, m)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

func startServer(t *testing.T, reg *tasks.Registry, token string) (*Server, *recorder) {
	t.Helper()
	s := NewServer(nil, reg, "127.0.0.1", 0, token)
	rec := &recorder{}
	if err := s.Start(context.Background(), rec.handle); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { s.Stop() })
	return s, rec
}

func TestHealth(t *testing.T) {
	s, _ := startServer(t, nil, "")

	resp, err := http.Get("http://" + s.Addr() + "/api/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestAuthToken(t *testing.T) {
	s, _ := startServer(t, tasks.NewRegistry(tasks.Config{MaxConcurrent: 1}), "secret")

	// Health stays open.
	resp, err := http.Get("http://" + s.Addr() + "/api/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d", resp.StatusCode)
	}

	// Tasks requires the bearer token.
	resp, err = http.Get("http://" + s.Addr() + "/api/tasks")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("unauthenticated status = %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, "http://"+s.Addr()+"/api/tasks", nil)
	req.Header.Set("Authorization", "Bearer secret")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("authenticated status = %d", resp.StatusCode)
	}
}

func TestTasksEndpoint(t *testing.T) {
	reg := tasks.NewRegistry(tasks.Config{MaxConcurrent: 3})
	if _, err := reg.Create("s1", "chat-1", "u1", "work", "."); err != nil {
		t.Fatal(err)
	}
	s, _ := startServer(t, reg, "")

	resp, err := http.Get("http://" + s.Addr() + "/api/tasks")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)

	var list []tasks.Task
	if err := json.Unmarshal(data, &list); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	// Pending tasks are not active yet.
	if len(list) != 0 {
		t.Errorf("active = %v", list)
	}
}

func TestWebsocketChat(t *testing.T) {
	s, rec := startServer(t, nil, "")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws://"+s.Addr()+"/api/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// Subscribe to a chat.
	sub, _ := ws.MarshalFrame(ws.Frame{
		Type:   ws.FrameTypeRequest,
		ID:     "f1",
		Method: ws.MethodSubscribe,
		Params: json.RawMessage(`{"chat_id": "chat-1"}`),
	})
	if err := conn.Write(ctx, websocket.MessageText, sub); err != nil {
		t.Fatal(err)
	}
	readResponse(t, ctx, conn, "f1", true)

	// Send a chat message; the bot handler receives it.
	send, _ := ws.MarshalFrame(ws.Frame{
		Type:   ws.FrameTypeRequest,
		ID:     "f2",
		Method: ws.MethodSendMessage,
		Params: json.RawMessage(`{"content": "hello bot", "sender_id": "op"}`),
	})
	if err := conn.Write(ctx, websocket.MessageText, send); err != nil {
		t.Fatal(err)
	}
	readResponse(t, ctx, conn, "f2", true)

	if rec.count() != 1 {
		t.Fatalf("handler got %d messages", rec.count())
	}
	rec.mu.Lock()
	got := rec.msgs[0]
	rec.mu.Unlock()
	if got.ChatID != "chat-1" || got.Content != "hello bot" || got.SenderID != "op" {
		t.Errorf("message = %+v", got)
	}

	// A bot reply reaches the subscribed peer as an event frame.
	if !s.Send("chat-1", im.Reply{Content: "done"}) {
		t.Fatal("send reached no peers")
	}
	frame := readFrame(t, ctx, conn)
	if frame.Type != ws.FrameTypeEvent || frame.Event != "chat.reply" {
		t.Fatalf("frame = %+v", frame)
	}
	var reply im.Reply
	if err := json.Unmarshal(frame.Payload, &reply); err != nil {
		t.Fatal(err)
	}
	if reply.Content != "done" {
		t.Errorf("reply = %+v", reply)
	}

	// Replies for other chats do not reach this peer.
	if s.Send("chat-2", im.Reply{Content: "elsewhere"}) {
		t.Error("reply to unsubscribed chat reported delivered")
	}
}

func TestSendMessageWithoutChat(t *testing.T) {
	s, rec := startServer(t, nil, "")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws://"+s.Addr()+"/api/ws", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	send, _ := ws.MarshalFrame(ws.Frame{
		Type:   ws.FrameTypeRequest,
		ID:     "f1",
		Method: ws.MethodSendMessage,
		Params: json.RawMessage(`{"content": "orphan"}`),
	})
	if err := conn.Write(ctx, websocket.MessageText, send); err != nil {
		t.Fatal(err)
	}
	readResponse(t, ctx, conn, "f1", false)

	if rec.count() != 0 {
		t.Error("handler received a message without a chat")
	}
}

func readFrame(t *testing.T, ctx context.Context, conn *websocket.Conn) ws.Frame {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	frame, err := ws.UnmarshalFrame(data)
	if err != nil {
		t.Fatalf("unmarshal %s: %v", data, err)
	}
	return frame
}

func readResponse(t *testing.T, ctx context.Context, conn *websocket.Conn, id string, wantOK bool) {
	t.Helper()
	frame := readFrame(t, ctx, conn)
	if frame.Type != ws.FrameTypeResponse || frame.ID != id {
		t.Fatalf("frame = %+v, want response %s", frame, id)
	}
	if frame.OK == nil || *frame.OK != wantOK {
		t.Fatalf("ok = %v, want %v (error %q)", frame.OK, wantOK, frame.Error)
	}
}
