// Package gateway exposes the chat platform over HTTP and websocket. It is
// the default im.Platform: operators connect a websocket peer, subscribe to a
// chat and talk to the bot through it.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ferrybot/ferry/internal/events"
	"github.com/ferrybot/ferry/internal/gateway/ws"
	"github.com/ferrybot/ferry/internal/im"
	"github.com/ferrybot/ferry/internal/tasks"
)

// Server is the ferry gateway HTTP server. It implements im.Platform.
type Server struct {
	httpServer *http.Server
	hub        *ws.Hub
	bus        *events.Bus
	tasks      *tasks.Registry
	authToken  string
	host       string
	port       int
	addr       string
}

// NewServer creates a gateway. authToken may be empty, which disables auth.
// reg may be nil, which disables the task listing endpoint.
func NewServer(bus *events.Bus, reg *tasks.Registry, host string, port int, authToken string) *Server {
	s := &Server{
		hub:       ws.NewHub(bus),
		bus:       bus,
		tasks:     reg,
		authToken: authToken,
		host:      host,
		port:      port,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(s.auth)

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/ws", s.hub.ServeWS)
	r.Get("/api/events", s.handleEvents)
	r.Get("/api/tasks", s.handleTasks)

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", host, port),
		Handler: r,
	}
	return s
}

// Name implements im.Platform.
func (s *Server) Name() string { return "gateway" }

// Start installs the message handler and begins serving in the background.
func (s *Server) Start(ctx context.Context, onMessage im.Handler) error {
	s.hub.SetHandler(onMessage)

	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.httpServer.Addr, err)
	}
	s.addr = ln.Addr().String()
	slog.Info("gateway listening", "addr", s.addr)

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("gateway serve failed", "error", err)
		}
	}()
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	s.hub.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

// Send implements im.Platform by fanning the reply to the chat's peers.
func (s *Server) Send(chatID string, reply im.Reply) bool {
	return s.hub.SendReply(chatID, reply)
}

// Hub exposes the websocket hub for tests.
func (s *Server) Hub() *ws.Hub { return s.hub }

// Addr returns the bound address once Start has succeeded.
func (s *Server) Addr() string { return s.addr }

// auth enforces the bearer token on every route except health.
func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.authToken == "" || r.URL.Path == "/api/health" {
			next.ServeHTTP(w, r)
			return
		}
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" {
			// Browsers cannot set headers on websocket dials.
			token = r.URL.Query().Get("token")
		}
		if token != s.authToken {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		fmt.Sscanf(v, "%d", &limit)
	}
	if s.bus == nil {
		http.Error(w, "events not available", http.StatusServiceUnavailable)
		return
	}

	history := s.bus.History(limit)

	type eventJSON struct {
		ID        string             `json:"id"`
		SessionID string             `json:"session_id,omitempty"`
		Type      string             `json:"type"`
		Timestamp string             `json:"timestamp"`
		Source    events.EventSource `json:"source"`
		Payload   map[string]any     `json:"payload"`
	}
	result := make([]eventJSON, len(history))
	for i, e := range history {
		result[i] = eventJSON{
			ID:        e.ID,
			SessionID: e.SessionID,
			Type:      string(e.Type),
			Timestamp: e.Timestamp.Format(time.RFC3339Nano),
			Source:    e.Source,
			Payload:   e.Payload,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	if s.tasks == nil {
		http.Error(w, "task system not available", http.StatusServiceUnavailable)
		return
	}

	list := s.tasks.ActiveTasks()
	if list == nil {
		list = []tasks.Task{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(list)
}
