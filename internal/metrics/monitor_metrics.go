// Package metrics provides Prometheus collectors for the connection monitor.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MonitorMetrics contains Prometheus metrics for the connection-health monitor.
type MonitorMetrics struct {
	Connected         prometheus.Gauge
	PushChannelActive prometheus.Gauge
	ProbesTotal       *prometheus.CounterVec
	ProbeDuration     prometheus.Histogram
	TransitionsTotal  *prometheus.CounterVec
	PushEventsTotal   *prometheus.CounterVec
	MissedChecks      prometheus.Gauge
}

// NewMonitorMetrics creates and registers monitor metrics with the given registerer.
func NewMonitorMetrics(registerer prometheus.Registerer) *MonitorMetrics {
	metrics := &MonitorMetrics{
		Connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "uplink_connected",
			Help: "Whether the monitor currently considers the service reachable (1) or not (0)",
		}),
		PushChannelActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "uplink_push_channel_active",
			Help: "Whether the push channel is currently connected (1) or the monitor runs pull-only (0)",
		}),
		ProbesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "uplink_probes_total",
				Help: "Total number of pull probes by result",
			},
			[]string{"result"}, // result: success/failure/skipped
		),
		ProbeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "uplink_probe_duration_seconds",
			Help:    "Wall time of a single pull probe including the optional retry",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
		}),
		TransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "uplink_transitions_total",
				Help: "Total number of connectivity state transitions",
			},
			[]string{"to"}, // to: connected/disconnected
		),
		PushEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "uplink_push_events_total",
				Help: "Total number of push channel events received",
			},
			[]string{"kind"}, // kind: connected/disconnected/health_status
		),
		MissedChecks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "uplink_missed_checks",
			Help: "Current consecutive-failure counter of the pull prober",
		}),
	}

	// Register all metrics
	registerer.MustRegister(
		metrics.Connected,
		metrics.PushChannelActive,
		metrics.ProbesTotal,
		metrics.ProbeDuration,
		metrics.TransitionsTotal,
		metrics.PushEventsTotal,
		metrics.MissedChecks,
	)

	return metrics
}

// Probe result label values.
const (
	ProbeResultSuccess = "success"
	ProbeResultFailure = "failure"
	ProbeResultSkipped = "skipped"
)
