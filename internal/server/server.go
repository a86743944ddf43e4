// Package server exposes the operational HTTP and WebSocket surface:
// health, active sessions, engine counters, and a live activity feed.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lromero/chatvault/internal/engine"
	"github.com/lromero/chatvault/internal/session"
)

// Server serves /health, /sessions, /stats and the /ws activity feed.
type Server struct {
	registry *session.Registry
	eng      *engine.Engine
	mux      *http.ServeMux
	httpSrv  *http.Server

	wsMu    sync.Mutex
	wsConns map[*wsConn]bool
}

// New creates a Server over the given registry and engine.
func New(registry *session.Registry, eng *engine.Engine) *Server {
	s := &Server{
		registry: registry,
		eng:      eng,
		mux:      http.NewServeMux(),
		wsConns:  make(map[*wsConn]bool),
	}
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/sessions", s.handleSessions)
	s.mux.HandleFunc("/stats", s.handleStats)
	s.mux.HandleFunc("/ws", s.handleWS)
	return s
}

// Handler returns the HTTP handler (exported for tests).
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start listens on host:port. Blocks until Shutdown or a listener error.
func (s *Server) Start(host string, port int) error {
	s.httpSrv = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", host, port),
		Handler: s.mux,
	}
	log.Printf("[Server] Listening on %s", s.httpSrv.Addr)
	if err := s.httpSrv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the HTTP server and closes all WebSocket clients.
func (s *Server) Shutdown(ctx context.Context) error {
	s.wsMu.Lock()
	for conn := range s.wsConns {
		conn.WriteCloseSafe(websocket.CloseGoingAway, "shutting down")
		conn.Close()
		delete(s.wsConns, conn)
	}
	s.wsMu.Unlock()

	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// Broadcast pushes an activity event to all WebSocket clients. Dead
// connections are pruned.
func (s *Server) Broadcast(act engine.Activity) {
	s.wsMu.Lock()
	conns := make([]*wsConn, 0, len(s.wsConns))
	for conn := range s.wsConns {
		conns = append(conns, conn)
	}
	s.wsMu.Unlock()

	for _, conn := range conns {
		if err := conn.WriteJSONSafe(act); err != nil {
			s.wsMu.Lock()
			delete(s.wsConns, conn)
			s.wsMu.Unlock()
			conn.Close()
		}
	}
}

// --- handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleSessions(w http.ResponseWriter, _ *http.Request) {
	contacts := s.registry.ActiveContacts()
	if contacts == nil {
		contacts = []string{}
	}
	writeJSON(w, map[string]any{
		"active": contacts,
		"total":  s.registry.Len(),
		"ttl":    s.registry.TTL().String(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.eng.Stats())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[Server] Response encode failed: %v", err)
	}
}

// --- WebSocket ---

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsConn wraps a websocket.Conn with a write mutex for thread safety.
// gorilla/websocket does NOT support concurrent writes.
type wsConn struct {
	*websocket.Conn
	mu sync.Mutex
}

func (c *wsConn) WriteJSONSafe(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteJSON(v)
}

func (c *wsConn) WriteCloseSafe(code int, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, text))
}

// handleWS upgrades the connection and streams activity events until the
// client goes away. Inbound frames are read only to detect the close.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	raw, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[Server] ⚠️ WebSocket upgrade failed: %v", err)
		return
	}

	conn := &wsConn{Conn: raw}
	peer := r.RemoteAddr
	log.Printf("[Server] 🔗 Activity feed connected: %s", peer)

	s.wsMu.Lock()
	s.wsConns[conn] = true
	s.wsMu.Unlock()

	defer func() {
		s.wsMu.Lock()
		delete(s.wsConns, conn)
		s.wsMu.Unlock()
		raw.Close()
		log.Printf("[Server] 🔌 Activity feed disconnected: %s", peer)
	}()

	for {
		if _, _, err := raw.ReadMessage(); err != nil {
			return
		}
	}
}
