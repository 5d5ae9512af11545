package engine

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/leosat/MMVJ/metric"
)

// engineMetrics holds Prometheus metrics for the dispatcher loop.
type engineMetrics struct {
	tickDuration   prometheus.Histogram
	tickOverruns   prometheus.Counter
	eventsIn       prometheus.Counter
	eventsUnrouted prometheus.Counter
	ffEvents       prometheus.Counter
	activeMappings prometheus.Gauge
	reloads        prometheus.Counter
}

// newEngineMetrics creates and registers dispatcher metrics with the
// provided registry. A nil registry disables metrics.
func newEngineMetrics(registry *metric.MetricsRegistry) (*engineMetrics, error) {
	if registry == nil {
		return nil, nil
	}

	m := &engineMetrics{
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "mmvj",
			Subsystem: "engine",
			Name:      "tick_duration_seconds",
			Help:      "Dispatcher tick duration in seconds",
			Buckets:   []float64{0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01},
		}),
		tickOverruns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mmvj",
			Subsystem: "engine",
			Name:      "tick_overruns_total",
			Help:      "Total number of ticks that exceeded their period",
		}),
		eventsIn: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mmvj",
			Subsystem: "engine",
			Name:      "events_in_total",
			Help:      "Total number of input events ingested",
		}),
		eventsUnrouted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mmvj",
			Subsystem: "engine",
			Name:      "events_unrouted_total",
			Help:      "Total number of input events with no matching mapping",
		}),
		ffEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mmvj",
			Subsystem: "engine",
			Name:      "ff_events_total",
			Help:      "Total number of force-feedback events routed",
		}),
		activeMappings: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mmvj",
			Subsystem: "engine",
			Name:      "active_mappings",
			Help:      "Current number of active mapping pipelines",
		}),
		reloads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mmvj",
			Subsystem: "engine",
			Name:      "reloads_total",
			Help:      "Total number of configuration revisions applied",
		}),
	}

	if err := registry.RegisterHistogram("engine", "tick_duration", m.tickDuration); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter("engine", "tick_overruns", m.tickOverruns); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter("engine", "events_in", m.eventsIn); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter("engine", "events_unrouted", m.eventsUnrouted); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter("engine", "ff_events", m.ffEvents); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge("engine", "active_mappings", m.activeMappings); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter("engine", "reloads", m.reloads); err != nil {
		return nil, err
	}

	return m, nil
}
