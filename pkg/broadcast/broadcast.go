// Package broadcast streams session lifecycle events to WebSocket
// subscribers.
package broadcast

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Client is one connected subscriber.
type Client struct {
	ID           string
	Conn         *websocket.Conn
	ConnectedAt  time.Time
	LastActivity time.Time
	IPAddress    string

	writeMu sync.Mutex
}

// Write sends one text frame, serialized against concurrent writers.
func (c *Client) Write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.Conn.WriteMessage(websocket.TextMessage, data)
}

// Registry tracks connected clients.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]*Client)}
}

// Add registers a client.
func (r *Registry) Add(client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[client.ID] = client
}

// Remove drops a client by id.
func (r *Registry) Remove(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, clientID)
}

// All returns every connected client.
func (r *Registry) All() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clients := make([]*Client, 0, len(r.clients))
	for _, client := range r.clients {
		clients = append(clients, client)
	}
	return clients
}

// Count returns the number of connected clients.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// EventMessage is the wire shape of one broadcast frame.
type EventMessage struct {
	Event       string `json:"event"`
	SessionUUID string `json:"session_uuid,omitempty"`
	Data        any    `json:"data"`
	Seq         int64  `json:"seq"`
	Timestamp   int64  `json:"timestamp"`
}

// Broadcaster fans event frames out to every connected client.
type Broadcaster struct {
	clients *Registry
	logger  zerolog.Logger
	seq     uint64
}

// NewBroadcaster creates a broadcaster over the given registry.
func NewBroadcaster(clients *Registry, logger zerolog.Logger) *Broadcaster {
	return &Broadcaster{clients: clients, logger: logger}
}

// Broadcast sends one event to all clients. A failed write logs and skips
// the client; the read loop notices the dead connection and removes it.
func (b *Broadcaster) Broadcast(msg EventMessage) {
	msg.Seq = int64(atomic.AddUint64(&b.seq, 1))
	msg.Timestamp = time.Now().UnixMilli()

	data, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error().Err(err).Str("event", msg.Event).Msg("Failed to marshal event")
		return
	}

	clients := b.clients.All()
	if len(clients) == 0 {
		return
	}

	failed := 0
	for _, client := range clients {
		if err := client.Write(data); err != nil {
			b.logger.Warn().
				Err(err).
				Str("client_id", client.ID).
				Str("event", msg.Event).
				Msg("Failed to broadcast to client")
			failed++
		}
	}

	b.logger.Debug().
		Str("event", msg.Event).
		Int64("seq", msg.Seq).
		Int("clients", len(clients)).
		Int("failed", failed).
		Msg("Event broadcast complete")
}
