package pipeline

import (
	"github.com/leosat/MMVJ/event"
)

// Holds tracks the live normalized value of every source control so pedal
// and steering hold-factor references can read other controls by name.
// It is written and read only from the dispatcher goroutine.
type Holds struct {
	values map[event.ControlID]float64
}

func NewHolds() *Holds {
	return &Holds{values: make(map[event.ControlID]float64)}
}

// Observe records an input event's normalized value. Relative samples carry
// no position and are ignored.
func (h *Holds) Observe(in event.Input) {
	switch in.Sample.Kind {
	case event.Absolute:
		h.values[in.Source] = in.Sample.Range.Normalize(in.Sample.Range.Clamp(in.Sample.Value))
	case event.Button:
		h.values[in.Source] = in.Sample.Value
	}
}

// NormValue resolves a control reference to its last observed value.
func (h *Holds) NormValue(id event.ControlID) (float64, bool) {
	v, ok := h.values[id]
	return v, ok
}

// Forget drops a device's controls, typically when its adapter goes away.
func (h *Holds) Forget(device string) {
	for id := range h.values {
		if id.Device == device {
			delete(h.values, id)
		}
	}
}
