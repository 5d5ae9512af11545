package midi

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/leosat/MMVJ/metric"
)

// adapterMetrics holds Prometheus metrics for the MIDI adapter.
type adapterMetrics struct {
	events     prometheus.Counter
	drops      prometheus.Counter
	openPorts  prometheus.Gauge
	portErrors prometheus.Counter
}

// newAdapterMetrics creates and registers MIDI adapter metrics. A nil
// registry disables metrics.
func newAdapterMetrics(registry *metric.MetricsRegistry) *adapterMetrics {
	if registry == nil {
		return nil
	}

	m := &adapterMetrics{
		events: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mmvj",
			Subsystem: "midi",
			Name:      "events_total",
			Help:      "Total MIDI events delivered to the dispatcher",
		}),
		drops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mmvj",
			Subsystem: "midi",
			Name:      "events_dropped_total",
			Help:      "MIDI events dropped because the dispatcher queue was full",
		}),
		openPorts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mmvj",
			Subsystem: "midi",
			Name:      "open_ports",
			Help:      "Currently subscribed MIDI input ports",
		}),
		portErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mmvj",
			Subsystem: "midi",
			Name:      "port_errors_total",
			Help:      "Port open failures and disappearances",
		}),
	}

	registry.RegisterCounter("midi_input", "events", m.events)
	registry.RegisterCounter("midi_input", "drops", m.drops)
	registry.RegisterGauge("midi_input", "open_ports", m.openPorts)
	registry.RegisterCounter("midi_input", "port_errors", m.portErrors)

	return m
}
