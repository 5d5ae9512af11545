// Package health provides health monitoring functionality for midimapd
// components with thread-safe status tracking and aggregation.
//
// The health package enables tracking the health status of individual
// components (input adapters, the engine, output adapters) and aggregating
// process-wide health for the /health endpoint and operational visibility.
//
// # Health States
//
// The package supports three health states:
//   - Healthy: component operating normally
//   - Degraded: component operating with reduced functionality
//   - Unhealthy: component not functioning properly
//
// This three-state model enables nuanced reporting. A MIDI adapter whose
// port vanished is degraded while it retries with backoff; an output
// adapter that cannot open uinput at all is unhealthy.
//
// # Core Components
//
// Status: Individual component health state containing status level,
// descriptive message, timestamp, optional metrics, and hierarchical
// sub-statuses.
//
// Monitor: Thread-safe centralized tracking for multiple component health
// statuses with concurrent read/write access.
//
// Helpers: Convenience constructors and system-wide aggregation.
//
// # Basic Usage
//
// Creating and tracking component health:
//
//	monitor := health.NewMonitor()
//
//	// Update component health
//	monitor.UpdateHealthy("engine", "Tick loop running")
//	monitor.UpdateDegraded("midi-input", "Port disconnected, retrying")
//	monitor.UpdateUnhealthy("joystick-output", "uinput open failed")
//
//	// Check individual component health
//	if status, exists := monitor.Get("engine"); exists {
//	    if status.IsHealthy() {
//	        log.Println("Engine is healthy")
//	    }
//	}
//
// # System-Wide Health Aggregation
//
// Combining component statuses into one process indicator:
//
//	systemHealth := monitor.AggregateHealth("midimapd")
//	if systemHealth.IsUnhealthy() {
//	    log.Printf("Process unhealthy: %s", systemHealth.Message)
//	}
//
//	// Aggregation uses hierarchical rules:
//	// - Any unhealthy component → system unhealthy
//	// - Any degraded component (with no unhealthy) → system degraded
//	// - All healthy → system healthy
//
// # Integration with Components
//
// Converting component.HealthStatus to health.Status:
//
//	componentHealth := adapter.Health() // component.HealthStatus
//	healthStatus := health.FromComponentHealth("midi-input", componentHealth)
//
// Error messages pass through sanitization that removes URLs, file paths,
// IP addresses, ports, and credential-shaped substrings, so device paths
// and listen addresses never leak through health dashboards.
//
// # Thread Safety
//
// All Monitor operations are thread-safe. The Monitor uses an RWMutex
// internally to allow concurrent reads while protecting writes. Status
// objects are immutable; WithMetrics and WithSubStatus return new copies
// rather than modifying the original.
//
// # Error Handling Philosophy
//
// The health package does not return errors because it represents the
// *result* of error handling, not part of error propagation. Components
// wrap failures with the errors package first; the health package then
// sanitizes those messages for safe display.
//
// # Design Decisions
//
// Three-State Model: healthy/degraded/unhealthy instead of a boolean lets
// a retrying adapter report reduced capacity without tripping the same
// response as a hard failure.
//
// Automatic Sanitization: messages are sanitized with no opt-out, so a
// device path or listen address in an error can never reach a dashboard.
//
// Value-Based Status: Status is a struct, not *Status. Mutation-looking
// methods return copies.
//
// Conservative Aggregation: a single unhealthy component marks the whole
// process unhealthy, so problems are not masked by healthy neighbors.
package health
