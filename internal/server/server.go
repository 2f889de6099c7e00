// Package server implements the companion service the monitor watches: the
// health probe endpoint, the WebSocket push channel, and the settings API.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/uplinkd/uplink/internal/config"
	"github.com/uplinkd/uplink/internal/settings"
)

const upgraderBufferSize = 1024

// Server is the companion service: HTTP API plus the push channel hub.
type Server struct {
	cfg      config.ServerConfig
	echo     *echo.Echo
	hub      *Hub
	provider settings.Provider
	logger   *slog.Logger
	upgrader websocket.Upgrader

	// publisher mirrors every broadcast frame to Redis pub/sub, for
	// clients that consume the push channel through the broker.
	publisher      *redis.Client
	publishChannel string

	startedAt time.Time
	done      chan struct{}
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerLogger sets the logger for the server.
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithRedisPublisher mirrors health broadcasts to a Redis pub/sub channel.
func WithRedisPublisher(client *redis.Client, channel string) ServerOption {
	return func(s *Server) {
		s.publisher = client
		s.publishChannel = channel
	}
}

// WithMetricsRegistry exposes a Prometheus registry on /metrics.
func WithMetricsRegistry(registry *prometheus.Registry) ServerOption {
	return func(s *Server) {
		s.echo.GET("/metrics", echo.WrapHandler(
			promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		))
	}
}

// New creates the companion service around a settings provider.
func New(cfg config.ServerConfig, provider settings.Provider, opts ...ServerOption) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())

	s := &Server{
		cfg:      cfg,
		echo:     e,
		hub:      NewHub(),
		provider: provider,
		logger:   slog.Default(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  upgraderBufferSize,
			WriteBufferSize: upgraderBufferSize,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		startedAt: time.Now(),
		done:      make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.routes()

	return s
}

// Echo exposes the underlying Echo instance, mainly for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Hub exposes the push channel hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// routes registers all HTTP endpoints.
func (s *Server) routes() {
	s.echo.GET("/api/health", s.handleHealth)
	s.echo.GET("/internal/health", s.handleInternalHealth)
	s.echo.GET("/api/ws", s.handleWebSocket)
	s.echo.GET("/api/settings/:key", s.handleGetSetting)
	s.echo.PUT("/api/settings/:key", s.handlePutSetting)
}

// Start runs the hub, the health broadcaster, and the HTTP listener.
// It blocks until the listener fails or shuts down.
func (s *Server) Start(ctx context.Context) error {
	go s.hub.Run(ctx)
	go s.broadcastLoop(ctx)

	s.echo.Server.ReadTimeout = s.cfg.ReadTimeout
	s.echo.Server.WriteTimeout = s.cfg.WriteTimeout

	s.logger.Info("server listening", slog.String("address", s.cfg.Address()))

	return s.echo.Start(s.cfg.Address())
}

// Shutdown stops the HTTP listener and disconnects all push subscribers.
func (s *Server) Shutdown(ctx context.Context) error {
	close(s.done)
	s.hub.Stop()
	return s.echo.Shutdown(ctx)
}

// handleWebSocket upgrades a connection and attaches it to the hub.
func (s *Server) handleWebSocket(c echo.Context) error {
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed",
			slog.String("error", err.Error()),
			echoRemoteAttr(c),
		)
		return nil
	}

	client := newHubClient(s.hub, conn)

	select {
	case s.hub.register <- client:
	case <-s.done:
		client.close()
		return nil
	}

	go client.writePump()
	go client.readPump()

	// Greet the subscriber with the current status so it does not have
	// to wait for the next broadcast tick.
	client.enqueue(s.healthFrame())

	return nil
}

// broadcastLoop periodically pushes the current health status to all
// subscribers and mirrors it to Redis when a publisher is configured.
func (s *Server) broadcastLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.BroadcastPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			s.BroadcastHealth(ctx)
		}
	}
}

// BroadcastHealth pushes the current health status to every subscriber.
func (s *Server) BroadcastHealth(ctx context.Context) {
	s.hub.Broadcast(s.healthFrame())

	if s.publisher != nil {
		payload, _ := json.Marshal(map[string]string{"status": s.status()})
		if err := s.publisher.Publish(ctx, s.publishChannel, payload).Err(); err != nil {
			s.logger.Warn("failed to publish health status",
				slog.String("channel", s.publishChannel),
				slog.String("error", err.Error()),
			)
		}
	}
}

// healthFrame builds a push channel frame carrying the current status.
func (s *Server) healthFrame() []byte {
	frame := map[string]any{
		"id":   uuid.New().String(),
		"type": "health_status",
		"data": map[string]string{"status": s.status()},
	}
	message, _ := json.Marshal(frame)
	return message
}

// echoRemoteAttr returns a log attribute for the request's client address.
func echoRemoteAttr(c echo.Context) slog.Attr {
	return slog.String("remote", c.RealIP())
}
