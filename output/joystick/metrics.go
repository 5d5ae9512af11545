package joystick

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/leosat/MMVJ/metric"
)

// outputMetrics holds Prometheus metrics for the joystick output adapter.
type outputMetrics struct {
	eventsWritten prometheus.Counter
	ffEvents      prometheus.Counter
	ffDrops       prometheus.Counter
	activeDevices prometheus.Gauge
	deviceErrors  prometheus.Counter
}

// newOutputMetrics creates and registers joystick output metrics. A nil
// registry disables metrics.
func newOutputMetrics(registry *metric.MetricsRegistry) *outputMetrics {
	if registry == nil {
		return nil
	}

	m := &outputMetrics{
		eventsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mmvj",
			Subsystem: "joystick",
			Name:      "events_written_total",
			Help:      "Axis and button events written to the kernel",
		}),
		ffEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mmvj",
			Subsystem: "joystick",
			Name:      "ff_events_total",
			Help:      "Force-feedback events delivered to the engine",
		}),
		ffDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mmvj",
			Subsystem: "joystick",
			Name:      "ff_events_dropped_total",
			Help:      "Force-feedback events dropped because the feedback queue was full",
		}),
		activeDevices: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mmvj",
			Subsystem: "joystick",
			Name:      "active_devices",
			Help:      "Currently live virtual joysticks",
		}),
		deviceErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mmvj",
			Subsystem: "joystick",
			Name:      "device_errors_total",
			Help:      "Device creation and write failures",
		}),
	}

	registry.RegisterCounter("joystick_output", "events_written", m.eventsWritten)
	registry.RegisterCounter("joystick_output", "ff_events", m.ffEvents)
	registry.RegisterCounter("joystick_output", "ff_drops", m.ffDrops)
	registry.RegisterGauge("joystick_output", "active_devices", m.activeDevices)
	registry.RegisterCounter("joystick_output", "device_errors", m.deviceErrors)

	return m
}
