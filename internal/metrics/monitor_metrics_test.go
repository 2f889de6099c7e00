package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uplinkd/uplink/internal/metrics"
)

func TestNewMonitorMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	mm := metrics.NewMonitorMetrics(registry)

	mm.Connected.Set(1)
	mm.PushChannelActive.Set(0)
	mm.MissedChecks.Set(2)
	mm.ProbesTotal.WithLabelValues(metrics.ProbeResultSuccess).Inc()
	mm.ProbesTotal.WithLabelValues(metrics.ProbeResultFailure).Add(3)
	mm.TransitionsTotal.WithLabelValues("disconnected").Inc()
	mm.PushEventsTotal.WithLabelValues("health_status").Inc()
	mm.ProbeDuration.Observe(0.042)

	assert.InDelta(t, 1.0, testutil.ToFloat64(mm.Connected), 0)
	assert.InDelta(t, 2.0, testutil.ToFloat64(mm.MissedChecks), 0)
	assert.InDelta(t, 3.0, testutil.ToFloat64(mm.ProbesTotal.WithLabelValues(metrics.ProbeResultFailure)), 0)

	families, err := registry.Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, family := range families {
		names[family.GetName()] = true
	}

	for _, want := range []string{
		"uplink_connected",
		"uplink_push_channel_active",
		"uplink_probes_total",
		"uplink_probe_duration_seconds",
		"uplink_transitions_total",
		"uplink_push_events_total",
		"uplink_missed_checks",
	} {
		assert.True(t, names[want], "metric %s not registered", want)
	}
}

func TestNewMonitorMetricsDoubleRegisterPanics(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics.NewMonitorMetrics(registry)

	assert.Panics(t, func() {
		metrics.NewMonitorMetrics(registry)
	})
}
