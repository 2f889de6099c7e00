// Package settings manages user-tunable monitor settings backed by a remote store.
package settings

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"
)

// Store keys for monitor settings.
const (
	// KeyDisconnectScreenEnabled controls whether the disconnect overlay is shown.
	KeyDisconnectScreenEnabled = "DISCONNECT_SCREEN_ENABLED"

	// KeyDisconnectScreenDelay controls how long to wait before showing the overlay.
	KeyDisconnectScreenDelay = "DISCONNECT_SCREEN_DELAY"
)

// Defaults used until a load succeeds and whenever a value is malformed.
const (
	DefaultDisconnectScreenEnabled = true
	DefaultDisconnectScreenDelay   = 10 * time.Second
)

// Settings errors.
var (
	ErrNotFound = errors.New("setting not found")
)

// Provider reads and writes settings in an external store.
type Provider interface {
	// Get returns the stored value for key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key with optional metadata.
	Set(ctx context.Context, key, value string, metadata map[string]string) error
}

// Settings is an immutable snapshot of the monitor settings.
type Settings struct {
	DisconnectScreenEnabled bool
	DisconnectScreenDelay   time.Duration
}

// Update carries a partial settings change; nil fields are left untouched.
type Update struct {
	DisconnectScreenEnabled *bool
	DisconnectScreenDelay   *time.Duration
}

// Service caches settings in memory and keeps them in sync with a Provider.
// Loads are best-effort: any provider or parse failure keeps the current values.
type Service struct {
	provider Provider
	logger   *slog.Logger

	mu      sync.RWMutex
	current Settings
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the logger for the service.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService creates a settings service with default values.
func NewService(provider Provider, opts ...ServiceOption) *Service {
	s := &Service{
		provider: provider,
		logger:   slog.Default(),
		current: Settings{
			DisconnectScreenEnabled: DefaultDisconnectScreenEnabled,
			DisconnectScreenDelay:   DefaultDisconnectScreenDelay,
		},
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Load refreshes the cached settings from the provider.
// Failures are swallowed: the previous values stay in effect.
func (s *Service) Load(ctx context.Context) {
	if s.provider == nil {
		return
	}

	if raw, err := s.provider.Get(ctx, KeyDisconnectScreenEnabled); err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.WarnContext(ctx, "failed to load disconnect screen setting",
				slog.String("key", KeyDisconnectScreenEnabled),
				slog.String("error", err.Error()),
			)
		}
	} else if enabled, parseErr := strconv.ParseBool(raw); parseErr != nil {
		s.logger.WarnContext(ctx, "malformed disconnect screen setting",
			slog.String("key", KeyDisconnectScreenEnabled),
			slog.String("value", raw),
		)
	} else {
		s.mu.Lock()
		s.current.DisconnectScreenEnabled = enabled
		s.mu.Unlock()
	}

	if raw, err := s.provider.Get(ctx, KeyDisconnectScreenDelay); err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.WarnContext(ctx, "failed to load disconnect screen delay",
				slog.String("key", KeyDisconnectScreenDelay),
				slog.String("error", err.Error()),
			)
		}
	} else if delay, parseErr := time.ParseDuration(raw); parseErr != nil || delay < 0 {
		s.logger.WarnContext(ctx, "malformed disconnect screen delay",
			slog.String("key", KeyDisconnectScreenDelay),
			slog.String("value", raw),
		)
	} else {
		s.mu.Lock()
		s.current.DisconnectScreenDelay = delay
		s.mu.Unlock()
	}
}

// Snapshot returns the current settings.
func (s *Service) Snapshot() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Apply updates the cached settings and persists the change to the provider.
// The in-memory value is updated even if persistence fails, so the running
// session honors the change immediately.
func (s *Service) Apply(ctx context.Context, upd Update) error {
	s.mu.Lock()
	if upd.DisconnectScreenEnabled != nil {
		s.current.DisconnectScreenEnabled = *upd.DisconnectScreenEnabled
	}
	if upd.DisconnectScreenDelay != nil {
		s.current.DisconnectScreenDelay = *upd.DisconnectScreenDelay
	}
	s.mu.Unlock()

	if s.provider == nil {
		return nil
	}

	meta := map[string]string{"category": "features"}

	var errs []error
	if upd.DisconnectScreenEnabled != nil {
		value := strconv.FormatBool(*upd.DisconnectScreenEnabled)
		if err := s.provider.Set(ctx, KeyDisconnectScreenEnabled, value, meta); err != nil {
			errs = append(errs, err)
		}
	}
	if upd.DisconnectScreenDelay != nil {
		value := upd.DisconnectScreenDelay.String()
		if err := s.provider.Set(ctx, KeyDisconnectScreenDelay, value, meta); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// MemoryProvider is an in-memory Provider for tests and standalone runs.
type MemoryProvider struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryProvider creates an empty in-memory provider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		values: make(map[string]string),
	}
}

// Get returns the stored value for key, or ErrNotFound.
func (p *MemoryProvider) Get(_ context.Context, key string) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	value, ok := p.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return value, nil
}

// Set stores value under key. Metadata is ignored.
func (p *MemoryProvider) Set(_ context.Context, key, value string, _ map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values[key] = value
	return nil
}

var _ Provider = (*MemoryProvider)(nil)
