package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

const defaultChannel = "health_status"

// RedisSource consumes health_status messages from the service's Redis
// pub/sub channel. It is the broker-side alternative to the WebSocket
// transport for deployments where clients already hold a Redis connection.
type RedisSource struct {
	client  *redis.Client
	channel string
	logger  *slog.Logger

	events chan Event
	done   chan struct{}

	mu        sync.Mutex
	pubsub    *redis.PubSub
	started   bool
	closeOnce sync.Once
}

// RedisOption configures a RedisSource.
type RedisOption func(*RedisSource)

// WithRedisLogger sets the logger for the source.
func WithRedisLogger(logger *slog.Logger) RedisOption {
	return func(s *RedisSource) {
		s.logger = logger
	}
}

// WithChannel sets the pub/sub channel name.
func WithChannel(channel string) RedisOption {
	return func(s *RedisSource) {
		s.channel = channel
	}
}

// NewRedisSource creates a push source reading from a Redis pub/sub channel.
func NewRedisSource(client *redis.Client, opts ...RedisOption) *RedisSource {
	s := &RedisSource{
		client:  client,
		channel: defaultChannel,
		logger:  slog.Default(),
		events:  make(chan Event, defaultEventBufferSize),
		done:    make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Subscribe opens the pub/sub subscription and returns the event stream.
// Unlike the WebSocket source, subscription failure is reported here so the
// caller can degrade to pull-only mode.
func (s *RedisSource) Subscribe(ctx context.Context) (<-chan Event, error) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil, errors.New("redis source already subscribed")
	}
	s.started = true
	s.mu.Unlock()

	pubsub := s.client.Subscribe(ctx, s.channel)

	// Wait for subscription confirmation
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to channel %s: %w", s.channel, err)
	}

	s.mu.Lock()
	s.pubsub = pubsub
	s.mu.Unlock()

	go s.run(ctx, pubsub)

	return s.events, nil
}

// Close tears down the subscription and closes the event stream.
func (s *RedisSource) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)

		s.mu.Lock()
		pubsub := s.pubsub
		s.pubsub = nil
		s.mu.Unlock()

		if pubsub != nil {
			err = pubsub.Close()
		}
	})
	return err
}

// run pumps pub/sub messages into the event stream.
func (s *RedisSource) run(ctx context.Context, pubsub *redis.PubSub) {
	defer close(s.events)

	s.emit(ctx, Event{Kind: KindConnected})
	s.logger.InfoContext(ctx, "push channel subscribed",
		slog.String("channel", s.channel),
	)

	msgCh := pubsub.Channel()

	for {
		select {
		case <-s.done:
			return

		case <-ctx.Done():
			return

		case msg, ok := <-msgCh:
			if !ok {
				// Subscription closed underneath us.
				s.emit(ctx, Event{Kind: KindDisconnected})
				return
			}
			s.handleMessage(ctx, msg)
		}
	}
}

// handleMessage parses a pub/sub payload and emits a health_status event.
func (s *RedisSource) handleMessage(ctx context.Context, msg *redis.Message) {
	var data healthStatusData
	if err := json.Unmarshal([]byte(msg.Payload), &data); err != nil || data.Status == "" {
		s.logger.DebugContext(ctx, "malformed health_status payload",
			slog.String("channel", msg.Channel),
		)
		return
	}

	s.emit(ctx, Event{Kind: KindHealthStatus, Status: data.Status})
}

// emit delivers an event unless the source is shutting down. Lifecycle
// events block until delivered so connect/disconnect transitions are never
// lost; only health_status frames may be dropped on a full buffer.
func (s *RedisSource) emit(ctx context.Context, ev Event) {
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

var _ Source = (*RedisSource)(nil)
