package ws

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	// ErrConnectionClosed is returned when sending on a closed connection.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrSendBufferFull is returned when a slow client cannot keep up. The
	// connection is closed when this happens.
	ErrSendBufferFull = errors.New("send buffer full")
)

// sendBufferSize is the number of frames queued per client.
const sendBufferSize = 256

// Connection is one live transport endpoint bound to a session.
type Connection interface {
	ID() string
	SessionID() string
	Send(data []byte) error
	Close()
}

// FramePublisher receives a copy of every broadcast frame.
type FramePublisher interface {
	Publish(sessionID string, frame []byte) error
}

// Client is a WebSocket-backed Connection. Frames are queued on a buffered
// channel and written by the handler's write pump.
type Client struct {
	id        string
	conn      *websocket.Conn
	sessionID string
	send      chan []byte
	mu        sync.Mutex
	closed    bool
}

// NewClient creates a new WebSocket client. conn may be nil in tests.
func NewClient(id string, conn *websocket.Conn, sessionID string) *Client {
	return &Client{
		id:        id,
		conn:      conn,
		sessionID: sessionID,
		send:      make(chan []byte, sendBufferSize),
	}
}

func (c *Client) ID() string        { return c.id }
func (c *Client) SessionID() string { return c.sessionID }

// Send queues a frame for the client.
func (c *Client) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrConnectionClosed
	}

	select {
	case c.send <- data:
		return nil
	default:
		c.closeLocked()
		return ErrSendBufferFull
	}
}

// Close closes the send queue; the write pump then closes the socket.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Client) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// IsClosed returns true if the client is closed.
func (c *Client) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Conn returns the underlying WebSocket connection.
func (c *Client) Conn() *websocket.Conn {
	return c.conn
}

// SendChan returns the send channel for the client.
func (c *Client) SendChan() <-chan []byte {
	return c.send
}

// Hub holds the connections of one session.
type Hub struct {
	sessionID string
	conns     map[string]Connection
	mu        sync.RWMutex
}

// NewHub creates a new Hub for the given session.
func NewHub(sessionID string) *Hub {
	return &Hub{
		sessionID: sessionID,
		conns:     make(map[string]Connection),
	}
}

// SessionID returns the session ID for this hub.
func (h *Hub) SessionID() string {
	return h.sessionID
}

// Register adds a connection to the hub.
func (h *Hub) Register(conn Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[conn.ID()] = conn
}

// Unregister removes a connection and returns how many remain.
func (h *Hub) Unregister(conn Connection) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if current, ok := h.conns[conn.ID()]; ok && current == conn {
		delete(h.conns, conn.ID())
	}
	return len(h.conns)
}

// Connections returns a snapshot of the registered connections.
func (h *Hub) Connections() []Connection {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Connection, 0, len(h.conns))
	for _, c := range h.conns {
		out = append(out, c)
	}
	return out
}

// Broadcast sends data to every connection and returns the ones that failed.
// A failure never stops delivery to the others.
func (h *Hub) Broadcast(data []byte) (failed []Connection) {
	for _, c := range h.Connections() {
		if err := c.Send(data); err != nil {
			log.Warn().Err(err).Str("component", "ws").Str("session_id", h.sessionID).Str("connection_id", c.ID()).Msg("broadcast send failed")
			failed = append(failed, c)
		}
	}
	return failed
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Close closes every connection and empties the hub.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := make([]Connection, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.conns = make(map[string]Connection)
	h.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}

// HubManager tracks per-session hubs. A hub exists only while its session
// has at least one connection.
type HubManager struct {
	hubs      map[string]*Hub
	mu        sync.RWMutex
	publisher FramePublisher
}

// NewHubManager creates a new HubManager. publisher may be nil.
func NewHubManager(publisher FramePublisher) *HubManager {
	return &HubManager{
		hubs:      make(map[string]*Hub),
		publisher: publisher,
	}
}

// Register adds conn under its session, creating the hub on first use.
func (m *HubManager) Register(conn Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()

	hub, ok := m.hubs[conn.SessionID()]
	if !ok {
		hub = NewHub(conn.SessionID())
		m.hubs[conn.SessionID()] = hub
	}
	hub.Register(conn)
}

// Unregister removes conn and drops its hub once empty. The connection itself
// is not closed.
func (m *HubManager) Unregister(conn Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()

	hub, ok := m.hubs[conn.SessionID()]
	if !ok {
		return
	}
	if hub.Unregister(conn) == 0 {
		delete(m.hubs, conn.SessionID())
	}
}

// Get returns the hub for the session, or nil if nobody is connected.
func (m *HubManager) Get(sessionID string) *Hub {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hubs[sessionID]
}

// Broadcast marshals frame and sends it to every connection of the session.
// Connections whose send fails are unregistered and closed.
func (m *HubManager) Broadcast(sessionID string, frame any) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	m.BroadcastRaw(sessionID, data)
	return nil
}

// BroadcastRaw is Broadcast for an already encoded frame.
func (m *HubManager) BroadcastRaw(sessionID string, data []byte) {
	if hub := m.Get(sessionID); hub != nil {
		for _, c := range hub.Broadcast(data) {
			m.Unregister(c)
			c.Close()
		}
	}

	if m.publisher != nil {
		if err := m.publisher.Publish(sessionID, data); err != nil {
			log.Warn().Err(err).Str("component", "ws").Str("session_id", sessionID).Msg("frame publish failed")
		}
	}
}

// ConnectionCount returns the number of live connections across all sessions.
func (m *HubManager) ConnectionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := 0
	for _, hub := range m.hubs {
		total += hub.ClientCount()
	}
	return total
}

// SessionConnectionCount returns the number of live connections of a session.
func (m *HubManager) SessionConnectionCount(sessionID string) int {
	if hub := m.Get(sessionID); hub != nil {
		return hub.ClientCount()
	}
	return 0
}

// SessionCount returns the number of sessions with at least one connection.
func (m *HubManager) SessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.hubs)
}

// Remove closes every connection of the session and drops its hub.
func (m *HubManager) Remove(sessionID string) {
	m.mu.Lock()
	hub, ok := m.hubs[sessionID]
	delete(m.hubs, sessionID)
	m.mu.Unlock()

	if ok {
		hub.Close()
	}
}

// Close closes all hubs.
func (m *HubManager) Close() {
	m.mu.Lock()
	hubs := m.hubs
	m.hubs = make(map[string]*Hub)
	m.mu.Unlock()

	for _, hub := range hubs {
		hub.Close()
	}
}
