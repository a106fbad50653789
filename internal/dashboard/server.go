// Package dashboard provides a real-time WebSocket feed of dispatch activity.
//
// The server broadcasts every batch the emitter sends, every failed dispatch,
// and running statistics to connected WebSocket clients, so a session can be
// watched live from a browser or a small script. A client that connects
// mid-session first receives the current statistics and then the most recent
// batches.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// DefaultBacklog is the number of recent batches replayed to a new client.
const DefaultBacklog = 20

// Config holds server configuration
type Config struct {
	// Host to bind (default: 127.0.0.1)
	Host string

	// Port to listen on (0 picks a free port)
	Port int

	// Backlog is the number of recent batch_sent messages a new client
	// receives after the welcome. Zero uses DefaultBacklog; negative disables it.
	Backlog int

	// Logger for server activity (default: stderr logger)
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Host:    "127.0.0.1",
		Backlog: DefaultBacklog,
		Logger:  log.New(os.Stderr, "[dashboard] ", log.LstdFlags),
	}
}

// Server serves the dispatch feed over WebSocket.
type Server struct {
	addr     string
	listener net.Listener
	http     *http.Server
	hub      *hub

	stats   StatsData
	statsMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *log.Logger
}

// NewServer creates a dashboard server. It does not listen until Start.
func NewServer(config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	logger := config.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[dashboard] ", log.LstdFlags)
	}
	host := config.Host
	if host == "" {
		host = "127.0.0.1"
	}
	backlog := config.Backlog
	if backlog == 0 {
		backlog = DefaultBacklog
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		addr:   net.JoinHostPort(host, strconv.Itoa(config.Port)),
		hub:    newHub(backlog, logger),
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
	}
}

// Start listens and serves /ws, /health and / in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/", s.handleRoot)

	s.http = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Printf("Dashboard listening on %s", ln.Addr())
		if err := s.http.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("Server error: %v", err)
		}
	}()

	return nil
}

// Stop disconnects every client and shuts the HTTP server down.
func (s *Server) Stop() error {
	s.logger.Println("Stopping dashboard")

	s.cancel()
	s.hub.closeAll()

	if s.http != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := s.http.Shutdown(ctx); err != nil {
			return fmt.Errorf("dashboard shutdown: %w", err)
		}
	}

	s.wg.Wait()
	return nil
}

// Broadcast queues msg for every connected client. It never blocks on a
// client; one that falls too far behind is disconnected.
func (s *Server) Broadcast(msg Message) {
	if s.ctx.Err() != nil {
		return
	}
	s.hub.publish(msg)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"localhost:*", "127.0.0.1:*"},
	})
	if err != nil {
		s.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	welcome, err := s.statsMessage()
	if err != nil {
		s.logger.Printf("Failed to build welcome message: %v", err)
		_ = conn.Close(websocket.StatusInternalError, "")
		return
	}

	sub, n := s.hub.join(conn, welcome)
	s.logger.Printf("Client connected (total: %d)", n)

	go s.hub.writeLoop(s.ctx, sub)
	go s.hub.readLoop(s.ctx, sub)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"clients": s.ClientCount(),
		"stats":   s.Stats(),
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html")
	_, _ = fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head><title>diffsync</title></head>
<body>
  <h1>diffsync</h1>
  <p>Batch feed: <code>ws://%s/ws</code></p>
  <p>Session totals: <a href="/health">/health</a></p>
</body>
</html>`, r.Host)
}

// GetAddr returns the server's listening address
func (s *Server) GetAddr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ClientCount returns the current number of connected clients
func (s *Server) ClientCount() int {
	return s.hub.count()
}
