package broadcast

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

// ServerConfig holds the WebSocket server configuration.
type ServerConfig struct {
	Port int

	// AuthToken, when set, is required as the Authorization bearer token
	// on the upgrade request.
	AuthToken string

	Logger zerolog.Logger
}

// Server exposes the event stream over a WebSocket endpoint. Connected
// clients receive every broadcast frame; the server reads nothing but
// close frames from them.
type Server struct {
	port      string
	authToken string
	server    *http.Server
	upgrader  websocket.Upgrader
	clients   *Registry
	logger    zerolog.Logger

	shuttingDown bool
	shutdownMu   sync.RWMutex
}

// NewServer creates the server and its client registry.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Port <= 0 {
		return nil, fmt.Errorf("invalid port: %d", cfg.Port)
	}

	return &Server{
		port:      fmt.Sprintf(":%d", cfg.Port),
		authToken: cfg.AuthToken,
		clients:   NewRegistry(),
		logger:    cfg.Logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}, nil
}

// Clients returns the registry, for wiring a Broadcaster.
func (s *Server) Clients() *Registry { return s.clients }

// Start begins listening. It does not block.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	s.server = &http.Server{Addr: s.port, Handler: mux}

	s.logger.Info().Str("addr", s.port).Msg("Starting event stream server")

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Event stream server error")
		}
	}()

	return nil
}

// Stop closes all client connections and shuts the listener down.
func (s *Server) Stop() error {
	s.shutdownMu.Lock()
	s.shuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down event stream server")

	for _, client := range s.clients.All() {
		client.Conn.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.shutdownMu.RLock()
	if s.shuttingDown {
		s.shutdownMu.RUnlock()
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}
	s.shutdownMu.RUnlock()

	if !s.authorized(r) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	clientID, _ := gonanoid.New()
	client := &Client{
		ID:           clientID,
		Conn:         conn,
		ConnectedAt:  time.Now(),
		LastActivity: time.Now(),
		IPAddress:    r.RemoteAddr,
	}

	s.clients.Add(client)

	s.logger.Info().
		Str("client_id", clientID).
		Str("ip", r.RemoteAddr).
		Msg("Client connected")

	go s.readLoop(client)
}

func (s *Server) authorized(r *http.Request) bool {
	if s.authToken == "" {
		return true
	}
	provided := r.Header.Get("Authorization")
	expected := "Bearer " + s.authToken
	return subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) == 1
}

// readLoop drains client frames until the connection dies, which is how
// disconnects are detected.
func (s *Server) readLoop(client *Client) {
	defer func() {
		client.Conn.Close()
		s.clients.Remove(client.ID)
		s.logger.Info().Str("client_id", client.ID).Msg("Client disconnected")
	}()

	for {
		if _, _, err := client.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn().Err(err).Str("client_id", client.ID).Msg("WebSocket error")
			}
			return
		}
		client.LastActivity = time.Now()
	}
}
