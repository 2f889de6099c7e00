package monitor

// State is the binary connectivity verdict driven by the monitor.
type State int

// Connectivity states.
const (
	// StateConnected means the service is considered reachable.
	StateConnected State = iota

	// StateDisconnected means the debounce threshold was crossed or an
	// authoritative negative signal arrived.
	StateDisconnected
)

// String returns a readable name for the state.
func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// connState is the full internal connectivity state owned by the monitor.
type connState struct {
	state        State
	missedChecks uint
	pushActive   bool
}

// initialState is the state at the start of a monitoring session.
func initialState() connState {
	return connState{
		state:        StateConnected,
		missedChecks: 0,
		pushActive:   false,
	}
}

// eventKind discriminates the trigger events of the state machine.
type eventKind int

const (
	// evProbeSuccess: the pull prober got a healthy answer.
	evProbeSuccess eventKind = iota

	// evProbeFailure: the pull prober timed out, errored, or got an
	// unhealthy answer.
	evProbeFailure

	// evPushConnected / evPushDisconnected: push channel lifecycle.
	evPushConnected
	evPushDisconnected

	// evPushHealthy / evPushUnhealthy: explicit remote health_status
	// messages. The remote side is authoritative about its own state,
	// so these bypass the debounce threshold.
	evPushHealthy
	evPushUnhealthy

	// evForceDisconnect: an external signal demands instant disconnect.
	evForceDisconnect

	// evTransportReconnected: a transport-level reconnect happened.
	// Clears the failure counter but is not proof of application health.
	evTransportReconnected
)

// String returns a readable name for the event kind.
func (k eventKind) String() string {
	switch k {
	case evProbeSuccess:
		return "probe_success"
	case evProbeFailure:
		return "probe_failure"
	case evPushConnected:
		return "push_connected"
	case evPushDisconnected:
		return "push_disconnected"
	case evPushHealthy:
		return "push_healthy"
	case evPushUnhealthy:
		return "push_unhealthy"
	case evForceDisconnect:
		return "force_disconnect"
	case evTransportReconnected:
		return "transport_reconnected"
	default:
		return "unknown"
	}
}

// effect is the side effect a transition demands from the monitor.
type effect int

const (
	effectNone effect = iota

	// effectNotifyDisconnected fires once per CONNECTED→DISCONNECTED
	// transition, gated by the disconnect-screen setting.
	effectNotifyDisconnected

	// effectNotifyReconnected fires once per DISCONNECTED→CONNECTED
	// transition, unconditionally.
	effectNotifyReconnected
)

// apply is the pure transition function of the connectivity state machine.
// threshold is the number of consecutive missed checks that triggers a
// disconnect. apply never produces an effect twice for the same logical
// transition: repeated failures while already disconnected and repeated
// successes while already connected are no-ops effect-wise.
func apply(s connState, kind eventKind, threshold uint) (connState, effect) {
	switch kind {
	case evProbeSuccess, evPushHealthy:
		s.missedChecks = 0
		if s.state == StateDisconnected {
			s.state = StateConnected
			return s, effectNotifyReconnected
		}
		return s, effectNone

	case evProbeFailure:
		s.missedChecks++
		if s.state == StateConnected && s.missedChecks >= threshold {
			s.state = StateDisconnected
			return s, effectNotifyDisconnected
		}
		return s, effectNone

	case evPushUnhealthy, evForceDisconnect:
		if s.missedChecks < threshold {
			s.missedChecks = threshold
		}
		if s.state == StateConnected {
			s.state = StateDisconnected
			return s, effectNotifyDisconnected
		}
		return s, effectNone

	case evPushConnected:
		s.pushActive = true
		return s, effectNone

	case evPushDisconnected:
		s.pushActive = false
		return s, effectNone

	case evTransportReconnected:
		// Only clears the counter: the next probe starts clean, but
		// reconnection still requires a real positive signal.
		s.missedChecks = 0
		return s, effectNone

	default:
		return s, effectNone
	}
}
