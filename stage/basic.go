package stage

import (
	"math"
	"time"

	"github.com/leosat/MMVJ/event"
)

// Clamp saturates samples at a fixed interval and, when OverrideRange is
// set, replaces the downstream range with that interval.
type Clamp struct {
	nopFeedback
	stateless

	Bounds        event.Range
	OverrideRange bool
}

// NewClamp builds a clamp stage. OverrideRange defaults to true in the
// configuration surface.
func NewClamp(bounds event.Range, overrideRange bool) *Clamp {
	return &Clamp{Bounds: bounds, OverrideRange: overrideRange}
}

func (c *Clamp) Advance(s event.Sample, _ time.Duration) event.Sample {
	s.Value = c.Bounds.Clamp(s.Value)
	if c.OverrideRange {
		s.Range = c.Bounds
	}
	return s
}

func (c *Clamp) IdleActive() bool { return false }

// Invert reflects absolute samples around the midpoint of their range and
// negates relative deltas.
type Invert struct {
	nopFeedback
	stateless

	// Relative forces delta negation even for absolute samples carrying
	// accumulated motion.
	Relative bool
}

func NewInvert(relative bool) *Invert {
	return &Invert{Relative: relative}
}

func (i *Invert) Advance(s event.Sample, _ time.Duration) event.Sample {
	if i.Relative || s.Kind == event.Relative {
		s.Value = -s.Value
		return s
	}
	s.Value = s.Range.Invert(s.Value)
	return s
}

func (i *Invert) IdleActive() bool { return false }

// Integrate accumulates relative deltas into an absolute position within a
// range, saturating at the bounds. An optional leak decays the position
// toward the range default with half-life semantics; an optional deadzone
// suppresses small normalized deltas; an optional alpha applies one-pole
// smoothing to the output.
type Integrate struct {
	nopFeedback

	Bounds       event.Range
	DeadzoneNorm float64
	LeakHalflife float64 // seconds; 0 or +Inf disables the leak
	Alpha        float64 // (0, 1]; 1 disables smoothing

	cur      float64
	smoothed float64
	primed   bool
}

func NewIntegrate(bounds event.Range, deadzoneNorm, leakHalflife, alpha float64) *Integrate {
	if alpha <= 0 || alpha > 1 {
		alpha = 1
	}
	st := &Integrate{
		Bounds:       bounds,
		DeadzoneNorm: deadzoneNorm,
		LeakHalflife: leakHalflife,
		Alpha:        alpha,
	}
	st.Reset()
	return st
}

func (st *Integrate) Reset() {
	st.cur = st.Bounds.Default
	st.smoothed = st.Bounds.Default
	st.primed = false
}

func (st *Integrate) Advance(s event.Sample, dt time.Duration) event.Sample {
	delta := 0.0
	if s.Kind == event.Relative {
		delta = s.Value
	} else if s.Kind == event.Button {
		// Button input drives the integrator like a held delta.
		delta = s.Value
	}

	if st.DeadzoneNorm > 0 && s.Range.Span() > 0 {
		if math.Abs(delta)/s.Range.Span() < st.DeadzoneNorm {
			delta = 0
		}
	}

	st.cur = st.Bounds.Clamp(st.cur + delta)

	if st.LeakHalflife > 0 && !math.IsInf(st.LeakHalflife, 1) {
		k := event.HalfLifeDecay(st.LeakHalflife, dt.Seconds())
		st.cur += (st.Bounds.Default - st.cur) * k
	}

	if !st.primed {
		st.smoothed = st.cur
		st.primed = true
	} else {
		st.smoothed = st.Alpha*st.cur + (1-st.Alpha)*st.smoothed
	}

	return event.AbsoluteSample(st.Bounds, st.smoothed)
}

func (st *Integrate) IdleActive() bool {
	return st.LeakHalflife > 0 && !math.IsInf(st.LeakHalflife, 1)
}
