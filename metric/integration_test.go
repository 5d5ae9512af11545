package metric

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockAdapter simulates an input adapter that registers its own metrics
type MockAdapter struct {
	name    string
	metrics struct {
		eventsTotal prometheus.Counter
		queueDepth  prometheus.Gauge
	}
}

func NewMockAdapter(name string) *MockAdapter {
	return &MockAdapter{name: name}
}

func (m *MockAdapter) Name() string {
	return m.name
}

// RegisterMetrics registers adapter-specific metrics for the mock adapter
func (m *MockAdapter) RegisterMetrics(registrar MetricsRegistrar) error {
	// Register a custom counter
	m.metrics.eventsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mmvj",
		Subsystem: "mock_input",
		Name:      "events_total",
		Help:      "Total number of input events delivered",
	})

	err := registrar.RegisterCounter(m.name, "events_total", m.metrics.eventsTotal)
	if err != nil {
		return err
	}

	// Register a custom gauge
	m.metrics.queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "mmvj",
		Subsystem: "mock_input",
		Name:      "queue_depth",
		Help:      "Current depth of the event queue",
	})

	return registrar.RegisterGauge(m.name, "queue_depth", m.metrics.queueDepth)
}

// DeliverEvents simulates event delivery and updates metrics
func (m *MockAdapter) DeliverEvents(events int, queueDepth int) {
	m.metrics.eventsTotal.Add(float64(events))
	m.metrics.queueDepth.Set(float64(queueDepth))
}

func TestMetricsIntegration_AdapterRegistration(t *testing.T) {
	// Create a new metrics registry
	registry := NewMetricsRegistry()

	// Create mock adapter
	mockAdapter := NewMockAdapter("test-input")

	// Register the adapter's metrics
	err := mockAdapter.RegisterMetrics(registry)
	require.NoError(t, err)

	// Simulate some adapter activity
	mockAdapter.DeliverEvents(10, 5)

	// Verify metrics are registered and have values
	metricFamilies, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	foundMetrics := make(map[string]bool)
	for _, mf := range metricFamilies {
		foundMetrics[mf.GetName()] = true
	}

	// Verify custom metrics are registered
	assert.True(t, foundMetrics["mmvj_mock_input_events_total"],
		"Custom events metric should be registered")
	assert.True(t, foundMetrics["mmvj_mock_input_queue_depth"],
		"Custom queue_depth metric should be registered")
}

func TestMetricsIntegration_NoDuplicateRegistration(t *testing.T) {
	registry := NewMetricsRegistry()

	// Create two adapters with the same name (this shouldn't happen in real usage)
	adapter1 := NewMockAdapter("duplicate-input")
	adapter2 := NewMockAdapter("duplicate-input")

	// Register first adapter's metrics
	err := adapter1.RegisterMetrics(registry)
	require.NoError(t, err)

	// Try to register second adapter's metrics - should fail
	err = adapter2.RegisterMetrics(registry)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestMetricsIntegration_CoreAndAdapterMetricsSeparate(t *testing.T) {
	registry := NewMetricsRegistry()
	coreMetrics := registry.CoreMetrics()

	mockAdapter := NewMockAdapter("separation-test")
	err := mockAdapter.RegisterMetrics(registry)
	require.NoError(t, err)

	// Use core metrics
	coreMetrics.RecordComponentState("separation-test", 2)
	coreMetrics.RecordComponentHealth("separation-test", true, false)

	// Use adapter-specific metrics
	mockAdapter.DeliverEvents(5, 3)

	// Verify both types of metrics are present
	metricFamilies, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	foundMetrics := make(map[string]bool)
	for _, mf := range metricFamilies {
		foundMetrics[mf.GetName()] = true
	}

	// Verify core metrics
	assert.True(t, foundMetrics["mmvj_component_state"],
		"core component state metric should be present")
	assert.True(t, foundMetrics["mmvj_component_health"],
		"core component health metric should be present")

	// Verify adapter-specific metrics
	assert.True(t, foundMetrics["mmvj_mock_input_events_total"],
		"Adapter-specific events metric should be present")
	assert.True(t, foundMetrics["mmvj_mock_input_queue_depth"],
		"Adapter-specific queue depth metric should be present")

	// Verify adapter metrics are NOT present unless a specific adapter registered them
	assert.False(t, foundMetrics["mmvj_midi_events_total"],
		"MIDI adapter metric should NOT be in core registry")
	assert.False(t, foundMetrics["mmvj_joystick_events_written_total"],
		"Joystick adapter metric should NOT be in core registry")
}

func TestMetricsIntegration_MetricsUnregistration(t *testing.T) {
	registry := NewMetricsRegistry()

	mockAdapter := NewMockAdapter("unregister-test")

	// Register metrics
	err := mockAdapter.RegisterMetrics(registry)
	require.NoError(t, err)

	// Deliver some events to make metrics visible
	mockAdapter.DeliverEvents(1, 1)

	// Verify metrics are present
	metricFamilies, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	foundBefore := make(map[string]bool)
	for _, mf := range metricFamilies {
		foundBefore[mf.GetName()] = true
	}

	assert.True(t, foundBefore["mmvj_mock_input_events_total"],
		"Metric should be present before unregistration")

	// Unregister one of the metrics
	success := registry.Unregister("unregister-test", "events_total")
	assert.True(t, success, "Unregistration should succeed")

	// Verify metric is no longer present
	metricFamilies, err = registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	foundAfter := make(map[string]bool)
	for _, mf := range metricFamilies {
		foundAfter[mf.GetName()] = true
	}

	assert.False(t, foundAfter["mmvj_mock_input_events_total"],
		"Metric should be absent after unregistration")
	assert.True(t, foundAfter["mmvj_mock_input_queue_depth"],
		"Other adapter metrics should remain")
}

func TestMetricsIntegration_MultipleAdaptersWithUniqueMetrics(t *testing.T) {
	registry := NewMetricsRegistry()

	// Create multiple adapters - they need different metric names to coexist
	adapter1 := NewMockAdapter("midi-input")
	adapter2 := NewMockAdapter("pointer-input")

	// Register first adapter
	err := adapter1.RegisterMetrics(registry)
	require.NoError(t, err)

	// The second adapter will fail because it tries to register the same Prometheus metric names
	// This demonstrates that our registry correctly prevents Prometheus-level conflicts
	err = adapter2.RegisterMetrics(registry)
	assert.Error(t, err, "Second adapter should fail due to Prometheus metric name conflict")
	assert.Contains(t, err.Error(), "prometheus conflict")
}

func TestMetricsIntegration_MultipleAdaptersSameNames(t *testing.T) {
	registry := NewMetricsRegistry()

	// Create adapters with identical names - this simulates trying to register
	// the same adapter twice, which should be prevented
	adapter1 := NewMockAdapter("identical-input")
	adapter2 := NewMockAdapter("identical-input")

	// Register first adapter
	err := adapter1.RegisterMetrics(registry)
	require.NoError(t, err)

	// Second adapter with same name should fail at our registry level
	err = adapter2.RegisterMetrics(registry)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}
