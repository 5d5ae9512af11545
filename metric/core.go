package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains all platform-level metrics (not adapter-specific)
type Metrics struct {
	// Component lifecycle metrics
	ComponentState  *prometheus.GaugeVec
	ComponentHealth *prometheus.GaugeVec
	ErrorsTotal     *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all platform metrics
func NewMetrics() *Metrics {
	return &Metrics{
		ComponentState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "mmvj",
				Subsystem: "component",
				Name:      "state",
				Help:      "Component lifecycle state (0=created, 1=initialized, 2=started, 3=stopped, 4=failed)",
			},
			[]string{"component"},
		),

		ComponentHealth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "mmvj",
				Subsystem: "component",
				Name:      "health",
				Help:      "Component health (0=unhealthy, 1=degraded, 2=healthy)",
			},
			[]string{"component"},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mmvj",
				Subsystem: "errors",
				Name:      "total",
				Help:      "Total number of errors",
			},
			[]string{"component", "code"},
		),
	}
}

// RecordComponentState updates the lifecycle state gauge for a component
func (c *Metrics) RecordComponentState(component string, state int) {
	c.ComponentState.WithLabelValues(component).Set(float64(state))
}

// RecordComponentHealth updates the health gauge for a component
func (c *Metrics) RecordComponentHealth(component string, healthy, degraded bool) {
	value := 0.0
	switch {
	case healthy:
		value = 2.0
	case degraded:
		value = 1.0
	}
	c.ComponentHealth.WithLabelValues(component).Set(value)
}

// RecordError increments the error counter for a component
func (c *Metrics) RecordError(component, code string) {
	c.ErrorsTotal.WithLabelValues(component, code).Inc()
}
