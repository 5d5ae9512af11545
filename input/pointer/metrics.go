package pointer

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/leosat/MMVJ/metric"
)

// adapterMetrics holds Prometheus metrics for the pointer adapter.
type adapterMetrics struct {
	events       prometheus.Counter
	drops        prometheus.Counter
	openDevices  prometheus.Gauge
	deviceErrors prometheus.Counter
}

// newAdapterMetrics creates and registers pointer adapter metrics. A nil
// registry disables metrics.
func newAdapterMetrics(registry *metric.MetricsRegistry) *adapterMetrics {
	if registry == nil {
		return nil
	}

	m := &adapterMetrics{
		events: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mmvj",
			Subsystem: "pointer",
			Name:      "events_total",
			Help:      "Total pointer events delivered to the dispatcher",
		}),
		drops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mmvj",
			Subsystem: "pointer",
			Name:      "events_dropped_total",
			Help:      "Pointer events dropped because the dispatcher queue was full",
		}),
		openDevices: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mmvj",
			Subsystem: "pointer",
			Name:      "open_devices",
			Help:      "Currently open evdev devices",
		}),
		deviceErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mmvj",
			Subsystem: "pointer",
			Name:      "device_errors_total",
			Help:      "Device open failures and losses",
		}),
	}

	registry.RegisterCounter("pointer_input", "events", m.events)
	registry.RegisterCounter("pointer_input", "drops", m.drops)
	registry.RegisterGauge("pointer_input", "open_devices", m.openDevices)
	registry.RegisterCounter("pointer_input", "device_errors", m.deviceErrors)

	return m
}
