package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Hub configuration constants.
const (
	defaultBroadcastBufferSize = 64
	defaultSendBufferSize      = 16
	defaultPingInterval        = 30 * time.Second
	defaultPongWait            = 60 * time.Second
	defaultWriteWait           = 10 * time.Second
	defaultMaxMessageSize      = 4096
)

// Hub manages the WebSocket subscribers of the push channel and fans
// broadcast frames out to them.
type Hub struct {
	// clients holds all connected subscribers.
	clients map[*hubClient]bool

	// register channel for new subscriber connections.
	register chan *hubClient

	// unregister channel for subscriber disconnections.
	unregister chan *hubClient

	// broadcast channel for frames to fan out.
	broadcast chan []byte

	// mu protects concurrent access to clients.
	mu sync.RWMutex

	// logger for structured logging.
	logger *slog.Logger

	// done signals when the hub should stop.
	done chan struct{}

	// running indicates if the hub loop is active.
	running bool

	// runningMu protects the running flag.
	runningMu sync.RWMutex
}

// HubOption configures the Hub.
type HubOption func(*Hub)

// WithHubLogger sets the logger for the hub.
func WithHubLogger(logger *slog.Logger) HubOption {
	return func(h *Hub) {
		h.logger = logger
	}
}

// NewHub creates a new hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		clients:    make(map[*hubClient]bool),
		register:   make(chan *hubClient),
		unregister: make(chan *hubClient),
		broadcast:  make(chan []byte, defaultBroadcastBufferSize),
		logger:     slog.Default(),
		done:       make(chan struct{}),
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// Run processes hub events until the context is cancelled or Stop is called.
// It should be run as a goroutine.
func (h *Hub) Run(ctx context.Context) {
	h.runningMu.Lock()
	if h.running {
		h.runningMu.Unlock()
		return
	}
	h.running = true
	h.runningMu.Unlock()

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case <-h.done:
			h.shutdown()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("push subscriber connected", slog.Int("subscribers", count))

		case client := <-h.unregister:
			h.mu.Lock()
			if h.clients[client] {
				delete(h.clients, client)
				client.close()
			}
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("push subscriber disconnected", slog.Int("subscribers", count))

		case message := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				client.enqueue(message)
			}
			h.mu.RUnlock()
		}
	}
}

// Stop terminates the hub loop and disconnects all subscribers.
func (h *Hub) Stop() {
	h.runningMu.Lock()
	defer h.runningMu.Unlock()

	if !h.running {
		return
	}
	h.running = false
	close(h.done)
}

// Broadcast fans a frame out to every connected subscriber.
func (h *Hub) Broadcast(message []byte) {
	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("hub broadcast buffer full, dropping frame")
	}
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// shutdown closes every subscriber connection.
func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		client.close()
		delete(h.clients, client)
	}
}

// hubClient is a single WebSocket subscriber.
type hubClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	closed   bool
	closedMu sync.Mutex
}

// newHubClient wraps an upgraded connection.
func newHubClient(hub *Hub, conn *websocket.Conn) *hubClient {
	return &hubClient{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, defaultSendBufferSize),
	}
}

// enqueue queues a frame for delivery, dropping it if the subscriber lags.
func (c *hubClient) enqueue(message []byte) {
	select {
	case c.send <- message:
	default:
		c.hub.logger.Warn("subscriber send buffer full, dropping frame")
	}
}

// readPump drains inbound frames to detect connection closure.
// It should be run as a goroutine.
func (c *hubClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
	}()

	c.conn.SetReadLimit(defaultMaxMessageSize)

	if err := c.conn.SetReadDeadline(time.Now().Add(defaultPongWait)); err != nil {
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(defaultPongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debug("subscriber read error", slog.String("error", err.Error()))
			}
			return
		}
	}
}

// writePump writes queued frames and pings to the subscriber.
// It should be run as a goroutine.
func (c *hubClient) writePump() {
	ticker := time.NewTicker(defaultPingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(defaultWriteWait)); err != nil {
				return
			}

			if !ok {
				// Hub closed the channel
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(defaultWriteWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// close shuts the subscriber connection down once.
func (c *hubClient) close() {
	c.closedMu.Lock()
	defer c.closedMu.Unlock()

	if c.closed {
		return
	}
	c.closed = true

	close(c.send)
	_ = c.conn.Close()
}
