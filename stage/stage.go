// Package stage implements the per-sample transformation stages composed
// into mapping pipelines: clamp, invert, integrate, interpolation curves,
// smoothing filters, the pedal filter, and the steering model.
//
// Every stage satisfies the Stage contract: Advance folds one sample through
// the transform with a real dt, Reset discards private state, and Feedback
// receives force-feedback events (ignored by all stages except steering).
// The stage set is closed; dispatch is by concrete type, not reflection.
package stage

import (
	"time"

	"github.com/leosat/MMVJ/event"
)

// Stage transforms one sample per tick. Implementations own their private
// state; nothing is shared between stages.
type Stage interface {
	// Advance folds one sample through the stage. dt is the real time since
	// the previous tick, never a nominal tick period.
	Advance(s event.Sample, dt time.Duration) event.Sample

	// Reset discards accumulated state.
	Reset()

	// Feedback delivers a force-feedback event. Most stages ignore it.
	Feedback(ff event.FF)

	// IdleActive reports whether the stage must advance on ticks without
	// fresh input (decay, fall, autocenter all continue while idle).
	IdleActive() bool
}

// HoldSource resolves the instantaneous normalized value of a named control.
// The pipeline executor provides one backed by the live mapping values so
// pedal and steering stages can reference other controls.
type HoldSource interface {
	NormValue(id event.ControlID) (float64, bool)
}

// HoldFactor is either a literal in [0, 1] or a reference to another
// control whose normalized value is read each tick.
type HoldFactor struct {
	Value float64
	Ref   *event.ControlID
}

// Resolve returns the current hold value, falling back to the literal when
// the reference cannot be read.
func (h HoldFactor) Resolve(src HoldSource) float64 {
	if h.Ref != nil && src != nil {
		if v, ok := src.NormValue(*h.Ref); ok {
			return clampUnit(v)
		}
	}
	return clampUnit(h.Value)
}

// nopFeedback is embedded by stages that ignore force feedback.
type nopFeedback struct{}

func (nopFeedback) Feedback(event.FF) {}

// stateless is embedded by stages with no private state.
type stateless struct{}

func (stateless) Reset() {}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
