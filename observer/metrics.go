package observer

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/leosat/MMVJ/metric"
)

// serverMetrics holds Prometheus metrics for the indicator server.
type serverMetrics struct {
	framesSent       prometheus.Counter
	framesDropped    prometheus.Counter
	clientsConnected prometheus.Gauge
	connections      prometheus.Counter
	errors           prometheus.Counter
}

// newServerMetrics creates and registers indicator metrics. A nil registry
// disables metrics.
func newServerMetrics(registry *metric.MetricsRegistry) *serverMetrics {
	if registry == nil {
		return nil
	}

	m := &serverMetrics{
		framesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mmvj",
			Subsystem: "indicator",
			Name:      "frames_sent_total",
			Help:      "Frame batches written to indicator clients",
		}),
		framesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mmvj",
			Subsystem: "indicator",
			Name:      "frames_dropped_total",
			Help:      "Frame batches dropped because a client backlog was full",
		}),
		clientsConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mmvj",
			Subsystem: "indicator",
			Name:      "clients_connected",
			Help:      "Currently connected indicator clients",
		}),
		connections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mmvj",
			Subsystem: "indicator",
			Name:      "client_connections_total",
			Help:      "Total indicator client connections",
		}),
		errors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mmvj",
			Subsystem: "indicator",
			Name:      "errors_total",
			Help:      "WebSocket upgrade and write failures",
		}),
	}

	registry.RegisterCounter("indicator", "frames_sent", m.framesSent)
	registry.RegisterCounter("indicator", "frames_dropped", m.framesDropped)
	registry.RegisterGauge("indicator", "clients_connected", m.clientsConnected)
	registry.RegisterCounter("indicator", "connections", m.connections)
	registry.RegisterCounter("indicator", "errors", m.errors)

	return m
}
