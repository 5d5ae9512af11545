// Package metric provides Prometheus-based metrics collection and an HTTP
// server for midimapd monitoring and observability.
//
// The package offers a centralized metrics registry managing both core
// platform metrics (component lifecycle, health, errors) and adapter-specific
// metrics registered by the engine, input adapters, and output adapters. It
// includes an HTTP server exposing metrics in Prometheus format together
// with an aggregate health endpoint.
//
// # Architecture
//
// The package follows a three-layer design:
//
//  1. Core Metrics: Platform-level metrics automatically registered (Metrics type)
//  2. Adapter Registry: Extensible registration for adapter-specific metrics (MetricsRegistrar interface)
//  3. HTTP Server: Metrics endpoint with health checks (Server type)
//
// This architecture separates infrastructure concerns (core metrics) from
// adapter concerns (event counters, queue depths, device gauges) while
// providing a unified scrape endpoint.
//
// # Basic Usage
//
// Setting up metrics collection and the HTTP server:
//
//	registry := metric.NewMetricsRegistry()
//	securityCfg := security.Config{} // Platform security config
//	server := metric.NewServer(9090, "/metrics", registry, securityCfg)
//	server.SetHealthMonitor(monitor)
//
//	if err := server.Start(); err != nil {
//	    log.Printf("Metrics server error: %v", err)
//	}
//	defer server.Stop()
//
//	// Record core platform metrics
//	coreMetrics := registry.CoreMetrics()
//	coreMetrics.RecordComponentState("engine", 2)
//	coreMetrics.RecordComponentHealth("engine", true, false)
//
// The server exposes Prometheus-formatted metrics at
// http://localhost:9090/metrics and an aggregate health check at
// http://localhost:9090/health.
//
// # Core Metrics
//
// The package automatically registers core platform metrics tracking:
//
//   - Component lifecycle: component_state (0=created, 1=initialized, 2=started, 3=stopped, 4=failed)
//   - Component health: component_health (0=unhealthy, 1=degraded, 2=healthy)
//   - Error tracking: errors_total{component, code}
//
// All core metrics use the namespace "mmvj":
//   - mmvj_component_state{component="..."}
//   - mmvj_component_health{component="..."}
//   - mmvj_errors_total{component="...", code="..."}
//
// Adapter metrics follow the same namespace with their own subsystem
// (mmvj_engine_tick_duration_seconds, mmvj_midi_events_total,
// mmvj_joystick_events_written_total).
//
// # Adapter-Specific Metrics
//
// Adapters register custom metrics through the registry:
//
//	events := prometheus.NewCounter(prometheus.CounterOpts{
//	    Namespace: "mmvj",
//	    Subsystem: "midi",
//	    Name:      "events_total",
//	    Help:      "Total MIDI events delivered",
//	})
//	err := registry.RegisterCounter("midi-input", "events_total", events)
//
// Vector variants (RegisterCounterVec, RegisterGaugeVec,
// RegisterHistogramVec) cover labeled metrics.
//
// # HTTP Server
//
// The metrics server provides three endpoints:
//
//   - GET / - HTML page with links to metrics and health endpoints
//   - GET /metrics - Prometheus-formatted metrics (default path, configurable)
//   - GET /health - JSON aggregate health, 503 when any component is unhealthy
//
// Start binds the listen socket synchronously and serves in the background,
// so a port conflict surfaces at startup rather than on first scrape.
//
// # MetricsRegistrar Interface
//
// MetricsRegistry satisfies the MetricsRegistrar interface, which enables
// testing with mock registrars. The adapters take the concrete
// *MetricsRegistry; a nil registry leaves an adapter's metrics struct nil,
// and its call sites check for nil before recording.
//
// # Thread Safety
//
// All registry operations are thread-safe:
//   - Registration methods use mutex protection
//   - Metric recording is lock-free (Prometheus guarantee)
//   - CoreMetrics() returns a thread-safe shared instance
//   - PrometheusRegistry() is safe for concurrent access
//
// # Error Handling
//
// Registration methods return errors for duplicate registration, Prometheus
// conflicts, and invalid parameters. Server.Start() returns errors for an
// already-running server, a nil registry, and socket bind failures.
package metric
