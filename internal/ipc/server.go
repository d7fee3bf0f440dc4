package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"
)

// HandlerFunc processes an inbound message and returns the reply payload.
// A nil result with nil error means no reply is sent.
type HandlerFunc func(ctx context.Context, payload json.RawMessage) (any, error)

// maxLineSize bounds a single NDJSON line. Hook payloads carry tool inputs,
// which can be large.
const maxLineSize = 1 << 20

// Server accepts hook connections on a unix socket and dispatches NDJSON
// envelopes to registered handlers. Inbound messages whose request id matches
// an in-flight correlation resolve that correlation instead of reaching a
// handler.
type Server struct {
	socketPath string
	log        *slog.Logger

	mu       sync.Mutex
	handlers map[string]HandlerFunc
	conns    map[net.Conn]struct{}
	listener net.Listener
	running  bool

	pending *pendingSet
	wg      sync.WaitGroup
}

// NewServer creates a server bound to the given socket path once started.
func NewServer(socketPath string, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		socketPath: socketPath,
		log:        log.With("component", "ipc"),
		handlers:   make(map[string]HandlerFunc),
		conns:      make(map[net.Conn]struct{}),
		pending:    newPendingSet(),
	}
}

// Handle registers the handler for a message type. Must be called before
// Start.
func (s *Server) Handle(msgType string, h HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[msgType] = h
}

// Start binds the socket and begins accepting connections. A stale socket
// file left by a dead process is removed; a live one is a bind error, so two
// bots never share a socket.
func (s *Server) Start(ctx context.Context) error {
	if err := s.removeStaleSocket(); err != nil {
		return err
	}

	l, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("bind %s: %w", s.socketPath, err)
	}
	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		l.Close()
		return fmt.Errorf("chmod socket: %w", err)
	}

	s.mu.Lock()
	s.listener = l
	s.running = true
	s.mu.Unlock()

	s.log.Info("listening", "socket", s.socketPath)

	s.wg.Add(1)
	go s.acceptLoop(ctx, l)
	return nil
}

func (s *Server) removeStaleSocket() error {
	if _, err := os.Stat(s.socketPath); err != nil {
		return nil
	}
	// Probe: if something answers, another instance owns the path.
	conn, err := net.DialTimeout("unix", s.socketPath, time.Second)
	if err == nil {
		conn.Close()
		return fmt.Errorf("socket %s is in use by another process", s.socketPath)
	}
	if err := os.Remove(s.socketPath); err != nil {
		return fmt.Errorf("remove stale socket: %w", err)
	}
	return nil
}

func (s *Server) acceptLoop(ctx context.Context, l net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := l.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Warn("accept failed", "error", err)
			continue
		}

		s.mu.Lock()
		if !s.running {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.serveConn(ctx, conn)
	}
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 4096), maxLineSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var msg Message
		if err := json.Unmarshal(line, &msg); err != nil {
			// A bad line does not poison the connection.
			s.log.Warn("malformed message", "error", err)
			continue
		}
		s.dispatch(ctx, conn, msg)
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, net.ErrClosed) {
		s.log.Debug("connection read ended", "error", err)
	}
}

// dispatch routes one envelope. Correlation wins over handlers: a message
// carrying a request id someone is waiting on is that waiter's reply, never
// a fresh request.
func (s *Server) dispatch(ctx context.Context, conn net.Conn, msg Message) {
	if msg.RequestID != "" && s.pending.resolve(msg.RequestID, msg) {
		return
	}

	s.mu.Lock()
	handler, ok := s.handlers[msg.Type]
	s.mu.Unlock()
	if !ok {
		s.log.Warn("no handler for message type", "type", msg.Type)
		return
	}

	result, err := s.invoke(ctx, handler, msg)
	if err != nil {
		s.log.Warn("handler failed", "type", msg.Type, "error", err)
		reply, merr := NewMessage("error", msg.RequestID, errorPayload{Error: err.Error()})
		if merr == nil {
			s.sendTo(conn, reply)
		}
		return
	}
	if result == nil {
		return
	}

	reply, err := NewMessage(msg.Type+"_response", msg.RequestID, result)
	if err != nil {
		s.log.Warn("encode reply failed", "type", msg.Type, "error", err)
		return
	}
	s.sendTo(conn, reply)
}

// invoke runs one handler, converting a panic into an ordinary error so a
// broken handler answers with an error envelope instead of taking down the
// connection loop.
func (s *Server) invoke(ctx context.Context, handler HandlerFunc, msg Message) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("handler panicked", "type", msg.Type, "panic", r)
			result = nil
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, msg.Payload)
}

func (s *Server) sendTo(conn net.Conn, msg Message) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		return false
	}
	data = append(data, '\n')
	if _, err := conn.Write(data); err != nil {
		s.log.Debug("write failed", "error", err)
		return false
	}
	return true
}

// Broadcast sends the message to every connected peer, best effort. Peers
// that fail the write are dropped. Returns the number of successful sends.
func (s *Server) Broadcast(msg Message) int {
	s.mu.Lock()
	peers := make([]net.Conn, 0, len(s.conns))
	for c := range s.conns {
		peers = append(peers, c)
	}
	s.mu.Unlock()

	sent := 0
	for _, c := range peers {
		if s.sendTo(c, msg) {
			sent++
			continue
		}
		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()
		c.Close()
	}
	return sent
}

// CreatePending registers a correlation the server will resolve when a
// message with this request id arrives on any connection.
func (s *Server) CreatePending(requestID string) {
	s.pending.create(requestID)
}

// WaitForResponse blocks until the correlation for requestID resolves or the
// timeout elapses. The correlation is removed either way.
func (s *Server) WaitForResponse(ctx context.Context, requestID string, timeout time.Duration) (Message, error) {
	return s.pending.wait(ctx, requestID, timeout)
}

// Resolve completes a correlation locally, as if a reply had arrived.
func (s *Server) Resolve(requestID string, payload any) bool {
	msg, err := NewMessage("", requestID, payload)
	if err != nil {
		return false
	}
	return s.pending.resolve(requestID, msg)
}

// ClientCount returns the number of connected peers.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Running reports whether the server is accepting connections.
func (s *Server) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Stop closes the listener and every connection, then removes the socket
// file.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	l := s.listener
	s.listener = nil
	conns := make([]net.Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	if l != nil {
		l.Close()
	}
	for _, c := range conns {
		c.Close()
	}
	s.wg.Wait()

	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove socket: %w", err)
	}
	s.log.Info("stopped")
	return nil
}
