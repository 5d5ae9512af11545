package component

import (
	"context"
	"log/slog"
	"time"

	apperrors "github.com/leosat/MMVJ/errors"
)

// managed pairs a component with its lifecycle bookkeeping.
type managed struct {
	component Component
	state     State
	order     int
	lastErr   error
}

// Manager owns a set of components and drives their lifecycle: initialize
// and start in registration order, stop in reverse. A start failure stops
// the components already started.
type Manager struct {
	logger     *slog.Logger
	components []*managed
}

// NewManager creates an empty manager.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{logger: logger.With("component", "manager")}
}

// Add registers a component. Registration order is start order.
func (m *Manager) Add(c Component) {
	m.components = append(m.components, &managed{
		component: c,
		state:     StateCreated,
		order:     len(m.components),
	})
}

// StartAll initializes and starts every component in order. On failure the
// already-started components are stopped in reverse and the error returned.
func (m *Manager) StartAll(ctx context.Context, stopTimeout time.Duration) error {
	for _, mc := range m.components {
		meta := mc.component.Meta()
		if err := mc.component.Initialize(); err != nil {
			mc.state = StateFailed
			mc.lastErr = err
			m.stopStarted(stopTimeout)
			return apperrors.Wrap(err, "manager", "StartAll", "initialize "+meta.Name)
		}
		mc.state = StateInitialized

		if err := mc.component.Start(ctx); err != nil {
			mc.state = StateFailed
			mc.lastErr = err
			m.stopStarted(stopTimeout)
			return apperrors.Wrap(err, "manager", "StartAll", "start "+meta.Name)
		}
		mc.state = StateStarted
		m.logger.Info("Component started", "name", meta.Name, "type", meta.Type)
	}
	return nil
}

// StopAll stops every started component in reverse order. All stops are
// attempted; the first error is returned.
func (m *Manager) StopAll(timeout time.Duration) error {
	var firstErr error
	for i := len(m.components) - 1; i >= 0; i-- {
		mc := m.components[i]
		if mc.state != StateStarted {
			continue
		}
		meta := mc.component.Meta()
		if err := mc.component.Stop(timeout); err != nil {
			mc.state = StateFailed
			mc.lastErr = err
			m.logger.Error("Component stop failed", "name", meta.Name, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		mc.state = StateStopped
		m.logger.Info("Component stopped", "name", meta.Name)
	}
	return firstErr
}

func (m *Manager) stopStarted(timeout time.Duration) {
	for i := len(m.components) - 1; i >= 0; i-- {
		mc := m.components[i]
		if mc.state == StateStarted {
			if err := mc.component.Stop(timeout); err == nil {
				mc.state = StateStopped
			}
		}
	}
}

// Health reports the health of every component keyed by name.
func (m *Manager) Health() map[string]HealthStatus {
	out := make(map[string]HealthStatus, len(m.components))
	for _, mc := range m.components {
		out[mc.component.Meta().Name] = mc.component.Health()
	}
	return out
}

// States reports the lifecycle state of every component keyed by name.
func (m *Manager) States() map[string]State {
	out := make(map[string]State, len(m.components))
	for _, mc := range m.components {
		out[mc.component.Meta().Name] = mc.state
	}
	return out
}
