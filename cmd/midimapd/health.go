package main

import (
	"context"
	"time"

	"github.com/leosat/MMVJ/component"
	"github.com/leosat/MMVJ/health"
	"github.com/leosat/MMVJ/metric"
)

// healthPollInterval is how often component health is mirrored into the
// monitor and the platform gauges.
const healthPollInterval = 10 * time.Second

// pollHealth mirrors component health and lifecycle state into the health
// monitor and the platform metrics until the context is cancelled.
func pollHealth(ctx context.Context, components *component.Manager, monitor *health.Monitor, core *metric.Metrics) {
	ticker := time.NewTicker(healthPollInterval)
	defer ticker.Stop()

	poll := func() {
		for name, hs := range components.Health() {
			st := health.FromComponentHealth(name, hs)
			monitor.Update(name, st)
			core.RecordComponentHealth(name, st.IsHealthy(), st.IsDegraded())
		}
		for name, state := range components.States() {
			core.RecordComponentState(name, int(state))
		}
	}
	poll()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			poll()
		}
	}
}
