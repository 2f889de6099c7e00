package monitor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyProbeFailureDebounce(t *testing.T) {
	const threshold = 3

	tests := []struct {
		name       string
		start      connState
		kind       eventKind
		wantState  State
		wantMissed uint
		wantEffect effect
	}{
		{
			name:       "first failure only counts",
			start:      connState{state: StateConnected},
			kind:       evProbeFailure,
			wantState:  StateConnected,
			wantMissed: 1,
			wantEffect: effectNone,
		},
		{
			name:       "second failure only counts",
			start:      connState{state: StateConnected, missedChecks: 1},
			kind:       evProbeFailure,
			wantState:  StateConnected,
			wantMissed: 2,
			wantEffect: effectNone,
		},
		{
			name:       "threshold failure disconnects",
			start:      connState{state: StateConnected, missedChecks: 2},
			kind:       evProbeFailure,
			wantState:  StateDisconnected,
			wantMissed: 3,
			wantEffect: effectNotifyDisconnected,
		},
		{
			name:       "failure while disconnected is silent",
			start:      connState{state: StateDisconnected, missedChecks: 3},
			kind:       evProbeFailure,
			wantState:  StateDisconnected,
			wantMissed: 4,
			wantEffect: effectNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, eff := apply(tt.start, tt.kind, threshold)

			assert.Equal(t, tt.wantState, next.state)
			assert.Equal(t, tt.wantMissed, next.missedChecks)
			assert.Equal(t, tt.wantEffect, eff)
		})
	}
}

func TestApplyRecovery(t *testing.T) {
	const threshold = 3

	tests := []struct {
		name       string
		start      connState
		kind       eventKind
		wantState  State
		wantEffect effect
	}{
		{
			name:       "probe success while disconnected reconnects",
			start:      connState{state: StateDisconnected, missedChecks: 5},
			kind:       evProbeSuccess,
			wantState:  StateConnected,
			wantEffect: effectNotifyReconnected,
		},
		{
			name:       "probe success while connected is silent",
			start:      connState{state: StateConnected, missedChecks: 2},
			kind:       evProbeSuccess,
			wantState:  StateConnected,
			wantEffect: effectNone,
		},
		{
			name:       "push healthy while disconnected reconnects",
			start:      connState{state: StateDisconnected, missedChecks: 3},
			kind:       evPushHealthy,
			wantState:  StateConnected,
			wantEffect: effectNotifyReconnected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, eff := apply(tt.start, tt.kind, threshold)

			assert.Equal(t, tt.wantState, next.state)
			assert.Zero(t, next.missedChecks, "any positive signal resets the counter")
			assert.Equal(t, tt.wantEffect, eff)
		})
	}
}

func TestApplyAuthoritativeDisconnect(t *testing.T) {
	const threshold = 3

	for _, kind := range []eventKind{evPushUnhealthy, evForceDisconnect} {
		t.Run(kind.String(), func(t *testing.T) {
			next, eff := apply(connState{state: StateConnected, missedChecks: 1}, kind, threshold)

			assert.Equal(t, StateDisconnected, next.state, "bypasses the debounce threshold")
			assert.Equal(t, uint(threshold), next.missedChecks)
			assert.Equal(t, effectNotifyDisconnected, eff)

			// Repeating the signal while already disconnected must not
			// produce a second notification.
			again, eff := apply(next, kind, threshold)
			assert.Equal(t, StateDisconnected, again.state)
			assert.Equal(t, effectNone, eff)
		})
	}
}

func TestApplyPushChannelLifecycle(t *testing.T) {
	const threshold = 3

	s := initialState()
	assert.False(t, s.pushActive)

	s, eff := apply(s, evPushConnected, threshold)
	assert.True(t, s.pushActive)
	assert.Equal(t, effectNone, eff)
	assert.Equal(t, StateConnected, s.state, "channel lifecycle never flips the verdict")

	s, eff = apply(s, evPushDisconnected, threshold)
	assert.False(t, s.pushActive)
	assert.Equal(t, effectNone, eff)
	assert.Equal(t, StateConnected, s.state)
}

func TestApplyTransportReconnected(t *testing.T) {
	const threshold = 3

	s := connState{state: StateDisconnected, missedChecks: 4}

	next, eff := apply(s, evTransportReconnected, threshold)

	assert.Zero(t, next.missedChecks, "counter resets so the next probe starts clean")
	assert.Equal(t, StateDisconnected, next.state, "reconnect still needs a positive signal")
	assert.Equal(t, effectNone, eff)
}

func TestApplyThresholdOne(t *testing.T) {
	next, eff := apply(initialState(), evProbeFailure, 1)

	assert.Equal(t, StateDisconnected, next.state)
	assert.Equal(t, effectNotifyDisconnected, eff)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "connected", StateConnected.String())
	assert.Equal(t, "disconnected", StateDisconnected.String())
	assert.Equal(t, "unknown", State(42).String())
}
