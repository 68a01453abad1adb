package websocket

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const writeTimeout = 10 * time.Second

// Conn is the subset of a websocket connection the registry needs. The
// gorilla connection satisfies it; tests substitute a recorder.
type Conn interface {
	WriteJSON(v any) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Client is one registered connection. Writes are serialized per client so
// concurrent broadcasts never interleave frames.
type Client struct {
	ID        uuid.UUID
	SessionID uuid.UUID

	conn Conn
	mu   sync.Mutex
}

// Send writes one message to the client with a write deadline.
func (c *Client) Send(message any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteJSON(message)
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Close()
}

// Registry tracks live connections grouped by session. It only moves bytes;
// session semantics live with the coordinator.
type Registry struct {
	mu       sync.RWMutex
	clients  map[uuid.UUID]*Client
	sessions map[uuid.UUID]map[uuid.UUID]*Client
	logger   zerolog.Logger
}

// NewRegistry creates an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{
		clients:  make(map[uuid.UUID]*Client),
		sessions: make(map[uuid.UUID]map[uuid.UUID]*Client),
		logger:   log.With().Str("component", "ws_registry").Logger(),
	}
}

// Register adds a connection under a session and returns its client handle.
func (r *Registry) Register(sessionID uuid.UUID, conn Conn) *Client {
	client := &Client{
		ID:        uuid.New(),
		SessionID: sessionID,
		conn:      conn,
	}

	r.mu.Lock()
	r.clients[client.ID] = client
	bucket, ok := r.sessions[sessionID]
	if !ok {
		bucket = make(map[uuid.UUID]*Client)
		r.sessions[sessionID] = bucket
	}
	bucket[client.ID] = client
	r.mu.Unlock()

	return client
}

// Unregister removes a connection. The caller closes the socket.
func (r *Registry) Unregister(clientID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	client, ok := r.clients[clientID]
	if !ok {
		return
	}
	delete(r.clients, clientID)
	if bucket, ok := r.sessions[client.SessionID]; ok {
		delete(bucket, clientID)
		if len(bucket) == 0 {
			delete(r.sessions, client.SessionID)
		}
	}
}

// SendTo delivers one message to one client. Unknown clients are ignored:
// the connection may have dropped between enqueue and delivery.
func (r *Registry) SendTo(clientID uuid.UUID, message any) {
	r.mu.RLock()
	client, ok := r.clients[clientID]
	r.mu.RUnlock()
	if !ok {
		return
	}
	if err := client.Send(message); err != nil {
		r.logger.Debug().Err(err).
			Str("client_id", clientID.String()).
			Msg("dropping undeliverable message")
	}
}

// Broadcast sends a message to every client in a session except one.
// A failed write to one recipient never blocks delivery to the rest.
func (r *Registry) Broadcast(sessionID uuid.UUID, message any, exclude uuid.UUID) {
	r.mu.RLock()
	recipients := make([]*Client, 0, len(r.sessions[sessionID]))
	for id, client := range r.sessions[sessionID] {
		if id == exclude {
			continue
		}
		recipients = append(recipients, client)
	}
	r.mu.RUnlock()

	for _, client := range recipients {
		if err := client.Send(message); err != nil {
			r.logger.Debug().Err(err).
				Str("client_id", client.ID.String()).
				Str("session_id", sessionID.String()).
				Msg("broadcast write failed")
		}
	}
}

// CloseSession closes and removes every connection in a session.
func (r *Registry) CloseSession(sessionID uuid.UUID) {
	r.mu.Lock()
	bucket := r.sessions[sessionID]
	delete(r.sessions, sessionID)
	clients := make([]*Client, 0, len(bucket))
	for id, client := range bucket {
		delete(r.clients, id)
		clients = append(clients, client)
	}
	r.mu.Unlock()

	for _, client := range clients {
		_ = client.Close()
	}
}

// Disconnect closes and removes one connection.
func (r *Registry) Disconnect(clientID uuid.UUID) {
	r.mu.Lock()
	client, ok := r.clients[clientID]
	if ok {
		delete(r.clients, clientID)
		if bucket, bucketOK := r.sessions[client.SessionID]; bucketOK {
			delete(bucket, clientID)
			if len(bucket) == 0 {
				delete(r.sessions, client.SessionID)
			}
		}
	}
	r.mu.Unlock()

	if ok {
		_ = client.Close()
	}
}

// SessionSize reports the number of live connections in a session.
func (r *Registry) SessionSize(sessionID uuid.UUID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions[sessionID])
}
