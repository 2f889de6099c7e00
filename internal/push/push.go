// Package push provides the push-channel signal sources for the monitor.
//
// A Source delivers channel lifecycle events and remote health_status
// messages. The monitor treats the source as an optional capability:
// when none is available it degrades to pull-only probing.
package push

import (
	"context"
	"sync"
)

// Health status values carried by health_status events.
const (
	StatusHealthy   = "healthy"
	StatusOnline    = "online"
	StatusUnhealthy = "unhealthy"
	StatusOffline   = "offline"
)

// EventKind discriminates push events.
type EventKind int

// Push event kinds.
const (
	// KindConnected signals the push channel came up.
	KindConnected EventKind = iota

	// KindDisconnected signals the push channel dropped.
	KindDisconnected

	// KindHealthStatus carries a remote health_status message.
	KindHealthStatus
)

// String returns a readable name for the event kind.
func (k EventKind) String() string {
	switch k {
	case KindConnected:
		return "connected"
	case KindDisconnected:
		return "disconnected"
	case KindHealthStatus:
		return "health_status"
	default:
		return "unknown"
	}
}

// Event is a single push-channel occurrence.
type Event struct {
	Kind EventKind

	// Status is set for KindHealthStatus events.
	Status string
}

// Positive reports whether a health_status event is an explicit healthy signal.
func (e Event) Positive() bool {
	return e.Kind == KindHealthStatus && (e.Status == StatusHealthy || e.Status == StatusOnline)
}

// Negative reports whether a health_status event is an explicit unhealthy signal.
func (e Event) Negative() bool {
	return e.Kind == KindHealthStatus && (e.Status == StatusUnhealthy || e.Status == StatusOffline)
}

// Source is a subscribable push channel.
type Source interface {
	// Subscribe starts the source and returns its event stream. The
	// stream is closed when the source shuts down. Subscribe may be
	// called at most once per source.
	Subscribe(ctx context.Context) (<-chan Event, error)

	// Close tears the source down and releases its connection.
	Close() error
}

// NopSource is the absent-capability implementation: it never emits.
type NopSource struct {
	events    chan Event
	closeOnce sync.Once
}

// NewNopSource creates a push source that never delivers events.
func NewNopSource() *NopSource {
	return &NopSource{
		events: make(chan Event),
	}
}

// Subscribe returns a stream that stays silent until Close.
func (s *NopSource) Subscribe(_ context.Context) (<-chan Event, error) {
	return s.events, nil
}

// Close closes the (always empty) event stream. Safe to call more than
// once: the monitor closes its source at the end of every session.
func (s *NopSource) Close() error {
	s.closeOnce.Do(func() {
		close(s.events)
	})
	return nil
}

var _ Source = (*NopSource)(nil)
