package push

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
)

// WebSocket source timing constants.
const (
	defaultDialTimeout      = 10 * time.Second
	defaultPongWait         = 60 * time.Second
	defaultReconnectInitial = 1 * time.Second
	defaultReconnectMax     = 30 * time.Second
	defaultEventBufferSize  = 16
)

// wireMessage is the JSON frame format on the push channel.
type wireMessage struct {
	ID   string          `json:"id,omitempty"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// healthStatusData is the payload of a health_status frame.
type healthStatusData struct {
	Status string `json:"status"`
}

// WebSocketSource subscribes to the service's WebSocket endpoint and keeps
// the subscription alive across connection drops with exponential backoff.
type WebSocketSource struct {
	url              string
	dialer           *websocket.Dialer
	header           http.Header
	pongWait         time.Duration
	reconnectInitial time.Duration
	reconnectMax     time.Duration
	logger           *slog.Logger

	events chan Event
	done   chan struct{}

	mu        sync.Mutex
	conn      *websocket.Conn
	started   bool
	closeOnce sync.Once
}

// WebSocketOption configures a WebSocketSource.
type WebSocketOption func(*WebSocketSource)

// WithWebSocketLogger sets the logger for the source.
func WithWebSocketLogger(logger *slog.Logger) WebSocketOption {
	return func(s *WebSocketSource) {
		s.logger = logger
	}
}

// WithReconnectBackoff sets the reconnect backoff bounds.
func WithReconnectBackoff(initial, maxInterval time.Duration) WebSocketOption {
	return func(s *WebSocketSource) {
		s.reconnectInitial = initial
		s.reconnectMax = maxInterval
	}
}

// WithDialer sets a custom WebSocket dialer.
func WithDialer(dialer *websocket.Dialer) WebSocketOption {
	return func(s *WebSocketSource) {
		s.dialer = dialer
	}
}

// WithHeader sets extra headers sent on the dial request.
func WithHeader(header http.Header) WebSocketOption {
	return func(s *WebSocketSource) {
		s.header = header
	}
}

// NewWebSocketSource creates a push source for the WebSocket endpoint at url.
func NewWebSocketSource(url string, opts ...WebSocketOption) *WebSocketSource {
	s := &WebSocketSource{
		url: url,
		dialer: &websocket.Dialer{
			HandshakeTimeout: defaultDialTimeout,
		},
		pongWait:         defaultPongWait,
		reconnectInitial: defaultReconnectInitial,
		reconnectMax:     defaultReconnectMax,
		logger:           slog.Default(),
		events:           make(chan Event, defaultEventBufferSize),
		done:             make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Subscribe starts the dial/read loop and returns the event stream.
func (s *WebSocketSource) Subscribe(ctx context.Context) (<-chan Event, error) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil, errors.New("websocket source already subscribed")
	}
	s.started = true
	s.mu.Unlock()

	go s.run(ctx)

	return s.events, nil
}

// Close stops the source and closes the event stream.
func (s *WebSocketSource) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)

		s.mu.Lock()
		conn := s.conn
		s.conn = nil
		s.mu.Unlock()

		if conn != nil {
			_ = conn.Close()
		}
	})
	return nil
}

// run dials the endpoint and pumps messages until the source is closed.
// Each connection drop is reported as a Disconnected event and followed by
// a backoff-paced redial.
func (s *WebSocketSource) run(ctx context.Context) {
	defer close(s.events)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.reconnectInitial
	bo.MaxInterval = s.reconnectMax
	bo.MaxElapsedTime = 0

	for {
		if s.stopped(ctx) {
			return
		}

		conn, err := s.dial(ctx)
		if err != nil {
			wait := bo.NextBackOff()
			s.logger.DebugContext(ctx, "push channel dial failed",
				slog.String("url", s.url),
				slog.Duration("retry_in", wait),
				slog.String("error", err.Error()),
			)
			if !s.sleep(ctx, wait) {
				return
			}
			continue
		}

		bo.Reset()
		s.emit(ctx, Event{Kind: KindConnected})
		s.logger.InfoContext(ctx, "push channel connected", slog.String("url", s.url))

		s.readLoop(ctx, conn)

		s.mu.Lock()
		if s.conn == conn {
			s.conn = nil
		}
		s.mu.Unlock()
		_ = conn.Close()

		if s.stopped(ctx) {
			return
		}

		s.emit(ctx, Event{Kind: KindDisconnected})
		s.logger.WarnContext(ctx, "push channel dropped", slog.String("url", s.url))

		if !s.sleep(ctx, bo.NextBackOff()) {
			return
		}
	}
}

// dial opens a single WebSocket connection.
func (s *WebSocketSource) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, resp, err := s.dialer.DialContext(ctx, s.url, s.header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	return conn, nil
}

// readLoop reads frames until the connection fails or the source stops.
func (s *WebSocketSource) readLoop(ctx context.Context, conn *websocket.Conn) {
	if err := conn.SetReadDeadline(time.Now().Add(s.pongWait)); err != nil {
		return
	}
	conn.SetPingHandler(func(appData string) error {
		_ = conn.SetReadDeadline(time.Now().Add(s.pongWait))
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(time.Second))
	})
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.pongWait))
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.DebugContext(ctx, "push channel read error", slog.String("error", err.Error()))
			}
			return
		}

		_ = conn.SetReadDeadline(time.Now().Add(s.pongWait))
		s.handleMessage(ctx, message)
	}
}

// handleMessage parses a frame and emits health_status events.
func (s *WebSocketSource) handleMessage(ctx context.Context, message []byte) {
	var msg wireMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		s.logger.DebugContext(ctx, "invalid push message", slog.String("error", err.Error()))
		return
	}

	if msg.Type != "health_status" {
		return
	}

	var data healthStatusData
	if err := json.Unmarshal(msg.Data, &data); err != nil || data.Status == "" {
		s.logger.DebugContext(ctx, "malformed health_status payload")
		return
	}

	s.emit(ctx, Event{Kind: KindHealthStatus, Status: data.Status})
}

// emit delivers an event unless the source is shutting down. Lifecycle
// events block until delivered: a lost connect/disconnect would leave the
// consumer's view of the channel stale. health_status frames are droppable
// on a full buffer; the next frame or probe covers the gap.
func (s *WebSocketSource) emit(ctx context.Context, ev Event) {
	if ev.Kind != KindHealthStatus {
		select {
		case <-s.done:
		case <-ctx.Done():
		case s.events <- ev:
		}
		return
	}

	select {
	case <-s.done:
	case <-ctx.Done():
	case s.events <- ev:
	default:
		s.logger.WarnContext(ctx, "push event buffer full, dropping event",
			slog.String("kind", ev.Kind.String()),
		)
	}
}

// sleep waits for d, returning false if the source stopped meanwhile.
func (s *WebSocketSource) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-s.done:
		return false
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// stopped reports whether the source or its context has been shut down.
func (s *WebSocketSource) stopped(ctx context.Context) bool {
	select {
	case <-s.done:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

var _ Source = (*WebSocketSource)(nil)
