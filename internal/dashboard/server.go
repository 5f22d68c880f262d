// Package dashboard serves the request board over HTTP and pushes diffs to WebSocket clients.
//
// Every change the engine publishes is marshalled once and broadcast to all connected
// clients. Clients that want the full picture fetch /api/data first and then apply the
// add, update and delete events they receive.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/reqboard/reqboard/internal/engine"
	"github.com/reqboard/reqboard/internal/request"
)

// Board is the view of the engine the HTTP layer needs.
type Board interface {
	Snapshot() []request.Request
	MarkDone(ctx context.Context, id string) error
}

// Server manages WebSocket clients and the board API
type Server struct {
	board Board

	addr      string
	staticDir string
	listener  net.Listener
	server    *http.Server

	clients   map[string]*client
	clientsMu sync.RWMutex

	broadcast chan []byte

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *log.Logger
}

type client struct {
	id   string
	conn *websocket.Conn
	open atomic.Bool
}

// Config holds server configuration
type Config struct {
	// Port to listen on (default: 3111). Zero picks a free port.
	Port int

	// StaticDir is served at / when it exists
	StaticDir string

	// Logger for server activity (default: stderr logger)
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Port:      3111,
		StaticDir: "public",
		Logger:    log.New(os.Stderr, "[dashboard] ", log.LstdFlags),
	}
}

// NewServer creates a dashboard server backed by board
func NewServer(board Board, config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = DefaultConfig().Logger
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		board:     board,
		addr:      fmt.Sprintf(":%d", config.Port),
		staticDir: config.StaticDir,
		clients:   make(map[string]*client),
		broadcast: make(chan []byte, 100),
		ctx:       ctx,
		cancel:    cancel,
		logger:    config.Logger,
	}
}

// Handler returns the HTTP routes without starting the broadcast loop.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	// The board API is served both under /api and at the root.
	for _, prefix := range []string{"/api", ""} {
		mux.HandleFunc(prefix+"/data", s.handleData)
		mux.HandleFunc(prefix+"/done", s.handleDone)
	}
	mux.Handle("/", s.rootHandler())
	return mux
}

// Start begins the HTTP server and broadcast loop
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go s.broadcastLoop()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Printf("Server is running on http://%s", s.GetAddr())
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("Server error: %v", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the server
func (s *Server) Stop() error {
	s.logger.Println("Stopping dashboard server")

	s.cancel()

	s.clientsMu.Lock()
	for id, c := range s.clients {
		c.open.Store(false)
		_ = c.conn.Close(websocket.StatusGoingAway, "Server shutting down")
		delete(s.clients, id)
	}
	s.clientsMu.Unlock()

	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
	}

	s.wg.Wait()

	s.logger.Println("Dashboard server stopped")
	return nil
}

// Publish queues an engine event for every connected client. It never blocks: when the
// queue is full the event is dropped.
func (s *Server) Publish(ev engine.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		s.logger.Printf("Failed to marshal event: %v", err)
		return
	}

	select {
	case s.broadcast <- data:
	case <-s.ctx.Done():
		return
	default:
		s.logger.Printf("Warning: broadcast channel full, dropping %s", ev.Type)
	}
}

// broadcastLoop writes queued events to all clients
func (s *Server) broadcastLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return

		case data := <-s.broadcast:
			s.clientsMu.RLock()
			clients := make([]*client, 0, len(s.clients))
			for _, c := range s.clients {
				clients = append(clients, c)
			}
			s.clientsMu.RUnlock()

			for _, c := range clients {
				if !c.open.Load() {
					continue
				}

				ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
				err := c.conn.Write(ctx, websocket.MessageText, data)
				cancel()

				if err != nil {
					s.logger.Printf("Failed to send to client %s: %v", c.id, err)
					s.removeClient(c)
				}
			}
		}
	}
}

// handleWebSocket upgrades HTTP connections to WebSocket
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	c := &client{id: uuid.NewString(), conn: conn}
	c.open.Store(true)

	s.clientsMu.Lock()
	s.clients[c.id] = c
	clientCount := len(s.clients)
	s.clientsMu.Unlock()

	s.logger.Printf("Client connected: %s (total: %d)", c.id, clientCount)

	go s.readLoop(c)
}

// readLoop keeps the connection alive until the client goes away. Client messages are ignored.
func (s *Server) readLoop(c *client) {
	defer s.removeClient(c)

	for {
		if _, _, err := c.conn.Read(s.ctx); err != nil {
			return
		}
	}
}

func (s *Server) removeClient(c *client) {
	c.open.Store(false)

	s.clientsMu.Lock()
	if _, exists := s.clients[c.id]; !exists {
		s.clientsMu.Unlock()
		return
	}
	delete(s.clients, c.id)
	clientCount := len(s.clients)
	s.clientsMu.Unlock()

	_ = c.conn.Close(websocket.StatusNormalClosure, "")
	s.logger.Printf("Client disconnected: %s (total: %d)", c.id, clientCount)
}

// rootHandler serves the static board when the directory exists. WebSocket upgrades on /
// are accepted too, for clients that connect to the bare host.
func (s *Server) rootHandler() http.Handler {
	var static http.Handler
	if s.staticDir != "" {
		if info, err := os.Stat(s.staticDir); err == nil && info.IsDir() {
			static = http.FileServer(http.Dir(s.staticDir))
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
			s.handleWebSocket(w, r)
			return
		}
		if static != nil {
			static.ServeHTTP(w, r)
			return
		}
		s.handleIndex(w, r)
	})
}

// handleIndex returns basic server information when no static board is configured
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html")
	_, _ = fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head>
    <title>Request Board</title>
</head>
<body>
    <h1>Request Board</h1>
    <p>WebSocket endpoint: <code>ws://%s/ws</code></p>
    <p>Current requests: <a href="/api/data">/api/data</a></p>
    <p>Health check: <a href="/health">/health</a></p>
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
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}
