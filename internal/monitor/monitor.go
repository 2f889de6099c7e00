// Package monitor implements the connection-health monitor: it reconciles a
// push channel and a pull prober into a single debounced connectivity verdict
// and drives the disconnect/reconnect notifications of the host client.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/uplinkd/uplink/internal/metrics"
	"github.com/uplinkd/uplink/internal/push"
	"github.com/uplinkd/uplink/internal/settings"
)

// Default arbitration constants.
const (
	// DefaultMissedThreshold is the number of consecutive failed probes
	// before the monitor declares a disconnect.
	DefaultMissedThreshold = 3

	// DefaultProbeInterval is the period of the pull prober's timer.
	DefaultProbeInterval = 30 * time.Second
)

// Monitor errors.
var (
	ErrAlreadyRunning = errors.New("monitor already running")
	ErrNotRunning     = errors.New("monitor not running")
)

// HealthChecker is the pull prober capability consumed by the monitor.
type HealthChecker interface {
	// Check probes the service once; all failures read as false.
	Check(ctx context.Context) bool
}

// Callbacks are the notification hooks supplied once per monitoring session.
// Both are invoked at most once per state transition and never concurrently
// with each other.
type Callbacks struct {
	OnDisconnected func()
	OnReconnected  func()
}

// Monitor reconciles push and pull health signals into a binary
// connected/disconnected verdict with debounced transitions.
type Monitor struct {
	checker  HealthChecker
	source   push.Source
	settings *settings.Service
	logger   *slog.Logger
	metrics  *metrics.MonitorMetrics

	threshold uint
	interval  time.Duration

	// mu guards st, callbacks and the running flag.
	mu        sync.RWMutex
	st        connState
	callbacks Callbacks
	running   bool

	// dispatchMu serializes transitions so callbacks never overlap.
	dispatchMu sync.Mutex

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithLogger sets the logger for the monitor.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Monitor) {
		m.logger = logger
	}
}

// WithMetrics attaches Prometheus metrics to the monitor.
func WithMetrics(mm *metrics.MonitorMetrics) Option {
	return func(m *Monitor) {
		m.metrics = mm
	}
}

// WithMissedThreshold sets the consecutive-failure threshold.
func WithMissedThreshold(threshold uint) Option {
	return func(m *Monitor) {
		if threshold > 0 {
			m.threshold = threshold
		}
	}
}

// WithProbeInterval sets the pull prober's timer period.
func WithProbeInterval(interval time.Duration) Option {
	return func(m *Monitor) {
		if interval > 0 {
			m.interval = interval
		}
	}
}

// New creates a Monitor. source may be nil for pull-only operation and
// settingsService may be nil to run with built-in defaults.
func New(checker HealthChecker, source push.Source, settingsService *settings.Service, opts ...Option) *Monitor {
	if source == nil {
		source = push.NewNopSource()
	}
	if settingsService == nil {
		settingsService = settings.NewService(nil)
	}

	m := &Monitor{
		checker:   checker,
		source:    source,
		settings:  settingsService,
		logger:    slog.Default(),
		threshold: DefaultMissedThreshold,
		interval:  DefaultProbeInterval,
		st:        initialState(),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Start begins a monitoring session. Settings load asynchronously and
// best-effort; the push channel is attempted first and, if it cannot be
// initialized, the monitor degrades permanently to pull-only for the session.
func (m *Monitor) Start(ctx context.Context, callbacks Callbacks) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return ErrAlreadyRunning
	}
	m.running = true
	m.callbacks = callbacks
	m.st = initialState()
	m.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	// Fire-and-forget: start never blocks on the settings store.
	go m.settings.Load(runCtx)

	events, err := m.source.Subscribe(runCtx)
	if err != nil {
		m.logger.WarnContext(runCtx, "push channel unavailable, falling back to polling",
			slog.String("error", err.Error()),
		)
		events = nil
	}

	m.wg.Add(1)
	go m.run(runCtx, events)

	m.logger.InfoContext(runCtx, "health monitor started",
		slog.Uint64("missed_threshold", uint64(m.threshold)),
		slog.Duration("probe_interval", m.interval),
	)

	m.observeState()
	return nil
}

// Stop ends the session: the probe timer is cancelled and the push channel
// closed before callbacks are cleared, so no late event can invoke a
// callback after Stop returns.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.mu.Unlock()

	m.cancel()
	_ = m.source.Close()
	m.wg.Wait()

	m.mu.Lock()
	m.callbacks = Callbacks{}
	m.mu.Unlock()

	m.logger.Info("health monitor stopped")
}

// IsConnected returns the externally observable connectivity verdict.
func (m *Monitor) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.state == StateConnected
}

// ForceDisconnect forces the failure counter to the threshold and declares
// an immediate disconnect, for external signals that demand instant UI
// feedback (for example a hard channel close).
func (m *Monitor) ForceDisconnect() {
	m.dispatch(evForceDisconnect)
}

// NotifyTransportReconnected clears the failure counter after a
// transport-level reconnect. It deliberately does not declare the service
// connected: that still requires a real positive signal.
func (m *Monitor) NotifyTransportReconnected() {
	m.dispatch(evTransportReconnected)
}

// Settings returns the current disconnect-screen settings.
func (m *Monitor) Settings() settings.Settings {
	return m.settings.Snapshot()
}

// UpdateSettings applies a partial settings change and persists it.
func (m *Monitor) UpdateSettings(ctx context.Context, upd settings.Update) error {
	return m.settings.Apply(ctx, upd)
}

// run is the arbitration loop. It owns all periodic probing and push event
// handling; transitions triggered here and through the public forced
// operations are serialized by dispatch.
func (m *Monitor) run(ctx context.Context, events <-chan push.Event) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-events:
			if !ok {
				// Source shut down for good: pull-only from here on.
				events = nil
				m.dispatch(evPushDisconnected)
				continue
			}
			m.handlePushEvent(ctx, ev)

		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

// tick runs one probe cycle. While the push channel is active the timer
// fires but short-circuits: the push side is the cheaper source of truth.
func (m *Monitor) tick(ctx context.Context) {
	m.mu.RLock()
	pushActive := m.st.pushActive
	m.mu.RUnlock()

	if pushActive {
		if m.metrics != nil {
			m.metrics.ProbesTotal.WithLabelValues(metrics.ProbeResultSkipped).Inc()
		}
		return
	}

	start := time.Now()
	healthy := m.checker.Check(ctx)

	if m.metrics != nil {
		m.metrics.ProbeDuration.Observe(time.Since(start).Seconds())
		if healthy {
			m.metrics.ProbesTotal.WithLabelValues(metrics.ProbeResultSuccess).Inc()
		} else {
			m.metrics.ProbesTotal.WithLabelValues(metrics.ProbeResultFailure).Inc()
		}
	}

	if healthy {
		m.dispatch(evProbeSuccess)
	} else {
		m.dispatch(evProbeFailure)
	}
}

// handlePushEvent maps a push event onto the state machine.
func (m *Monitor) handlePushEvent(ctx context.Context, ev push.Event) {
	if m.metrics != nil {
		m.metrics.PushEventsTotal.WithLabelValues(ev.Kind.String()).Inc()
	}

	switch ev.Kind {
	case push.KindConnected:
		m.dispatch(evPushConnected)

	case push.KindDisconnected:
		m.dispatch(evPushDisconnected)

	case push.KindHealthStatus:
		switch {
		case ev.Positive():
			m.dispatch(evPushHealthy)
		case ev.Negative():
			m.dispatch(evPushUnhealthy)
		default:
			m.logger.DebugContext(ctx, "ignoring unknown health status",
				slog.String("status", ev.Status),
			)
		}
	}
}

// dispatch applies one event to the state machine and executes the
// resulting effect. dispatchMu guarantees callbacks never run concurrently;
// the state itself is updated before any callback fires, so callbacks
// observe the post-transition verdict.
func (m *Monitor) dispatch(kind eventKind) {
	m.dispatchMu.Lock()
	defer m.dispatchMu.Unlock()

	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	prev := m.st
	next, eff := apply(m.st, kind, m.threshold)
	m.st = next
	callbacks := m.callbacks
	m.mu.Unlock()

	if prev.pushActive != next.pushActive {
		m.logger.Info("push channel state changed",
			slog.Bool("active", next.pushActive),
		)
	}
	m.observeState()

	switch eff {
	case effectNone:

	case effectNotifyDisconnected:
		m.logger.Warn("connection lost",
			slog.String("trigger", kind.String()),
			slog.Uint64("missed_checks", uint64(next.missedChecks)),
		)
		if m.metrics != nil {
			m.metrics.TransitionsTotal.WithLabelValues(StateDisconnected.String()).Inc()
		}
		// The reconnect notification is unconditional, but the
		// disconnect overlay is a user preference.
		if m.settings.Snapshot().DisconnectScreenEnabled && callbacks.OnDisconnected != nil {
			callbacks.OnDisconnected()
		}

	case effectNotifyReconnected:
		m.logger.Info("connection restored",
			slog.String("trigger", kind.String()),
		)
		if m.metrics != nil {
			m.metrics.TransitionsTotal.WithLabelValues(StateConnected.String()).Inc()
		}
		if callbacks.OnReconnected != nil {
			callbacks.OnReconnected()
		}
	}
}

// observeState reflects the current state into the gauges.
func (m *Monitor) observeState() {
	if m.metrics == nil {
		return
	}

	m.mu.RLock()
	st := m.st
	m.mu.RUnlock()

	if st.state == StateConnected {
		m.metrics.Connected.Set(1)
	} else {
		m.metrics.Connected.Set(0)
	}
	if st.pushActive {
		m.metrics.PushChannelActive.Set(1)
	} else {
		m.metrics.PushChannelActive.Set(0)
	}
	m.metrics.MissedChecks.Set(float64(st.missedChecks))
}
