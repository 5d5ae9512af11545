// Package pipeline folds coalesced input events through an ordered stage
// chain once per tick and maps the result into the destination control's
// range. Each executor is exclusively owned by one mapping; the dispatcher
// drives all executors from its tick loop.
package pipeline

import (
	"time"

	"github.com/leosat/MMVJ/event"
	"github.com/leosat/MMVJ/stage"
)

// Executor runs one mapping's stage chain. Between ticks it buffers and
// coalesces incoming samples; at the tick boundary Tick folds the buffered
// batch through the stages and produces at most one output sample.
type Executor struct {
	source      event.ControlID
	destination event.ControlID
	destRange   event.Range
	stages      []stage.Stage
	idleActive  bool

	pending []event.Sample
	relIdx  int
	absIdx  int
	scratch [1]event.Sample

	lastAbs  event.Sample
	haveAbs  bool
	relRange event.Range

	lastOut  float64
	lastNorm float64
	primed   bool
}

// New builds an executor for one mapping. The chain is idle-active when any
// of its stages is, and then advances with a synthesized sample on ticks
// without fresh input.
func New(source, destination event.ControlID, destRange event.Range, stages []stage.Stage) *Executor {
	x := &Executor{
		source:      source,
		destination: destination,
		destRange:   destRange,
		stages:      stages,
		relIdx:      -1,
		absIdx:      -1,
		relRange:    event.Symmetric(),
		lastOut:     destRange.Default,
		lastNorm:    destRange.Normalize(destRange.Default),
	}
	for _, st := range stages {
		if st.IdleActive() {
			x.idleActive = true
			break
		}
	}
	return x
}

// Source returns the mapping's input control.
func (x *Executor) Source() event.ControlID { return x.source }

// Destination returns the mapping's output control.
func (x *Executor) Destination() event.ControlID { return x.destination }

// IdleActive reports whether the chain must run on ticks without input.
func (x *Executor) IdleActive() bool { return x.idleActive }

// Steering returns the chain's steering stage, or nil. The indicator
// observer uses it to read the live angle and force.
func (x *Executor) Steering() *stage.Steering {
	for _, st := range x.stages {
		if s, ok := st.(*stage.Steering); ok {
			return s
		}
	}
	return nil
}

// Offer buffers one sample for the next tick. Samples arriving within the
// same tick are coalesced: relative deltas are summed, absolute positions
// keep the last value, and adjacent button edges of the same polarity
// collapse to one.
func (x *Executor) Offer(s event.Sample) {
	switch s.Kind {
	case event.Relative:
		x.relRange = s.Range
		if x.relIdx >= 0 {
			x.pending[x.relIdx].Value += s.Value
			return
		}
		x.relIdx = len(x.pending)
		x.pending = append(x.pending, s)
	case event.Absolute:
		x.lastAbs = s
		x.haveAbs = true
		if x.absIdx >= 0 {
			x.pending[x.absIdx] = s
			return
		}
		x.absIdx = len(x.pending)
		x.pending = append(x.pending, s)
	case event.Button:
		if n := len(x.pending); n > 0 &&
			x.pending[n-1].Kind == event.Button &&
			x.pending[n-1].Pressed() == s.Pressed() {
			return
		}
		x.pending = append(x.pending, s)
	}
}

// Tick advances the chain with the real dt since the previous tick. It
// returns the mapped output sample and whether the chain produced one this
// tick. With an empty buffer, idle-active chains re-evaluate the last
// absolute value (or a zero delta); passive chains do nothing.
func (x *Executor) Tick(dt time.Duration) (event.Sample, bool) {
	batch := x.pending
	if len(batch) == 0 {
		if !x.idleActive {
			return event.Sample{}, false
		}
		if x.haveAbs {
			x.scratch[0] = x.lastAbs
		} else {
			x.scratch[0] = event.RelativeSample(x.relRange, 0)
		}
		batch = x.scratch[:1]
	}

	var out event.Sample
	step := dt
	for _, s := range batch {
		if s.Kind == event.Absolute {
			s.Value = s.Range.Clamp(s.Value)
		}
		for _, st := range x.stages {
			s = st.Advance(s, step)
		}
		// Time only elapses once per tick however many samples coalesced.
		step = 0
		out = s
	}

	x.pending = x.pending[:0]
	x.relIdx, x.absIdx = -1, -1

	return x.finish(out), true
}

// finish maps the chain's final sample into the destination range and
// records the normalized value served to hold-factor references.
func (x *Executor) finish(s event.Sample) event.Sample {
	switch s.Kind {
	case event.Button:
		x.lastNorm = s.Value
		x.lastOut = x.destRange.Denormalize(s.Value)
	case event.Relative:
		// A chain that still ends relative integrates naively onto the
		// destination axis.
		scale := x.destRange.Span() / nonZero(s.Range.Span())
		x.lastOut = x.destRange.Clamp(x.lastOut + s.Value*scale)
		x.lastNorm = x.destRange.Normalize(x.lastOut)
		s = event.AbsoluteSample(x.destRange, x.lastOut)
	default:
		x.lastOut = s.Range.MapTo(x.destRange, s.Value)
		x.lastNorm = x.destRange.Normalize(x.lastOut)
		s = event.AbsoluteSample(x.destRange, x.lastOut)
	}
	x.primed = true
	return s
}

// Feedback fans a force-feedback event out to every stage in the chain.
func (x *Executor) Feedback(ff event.FF) {
	for _, st := range x.stages {
		st.Feedback(ff)
	}
}

// Last returns the most recent mapped output value in destination units.
func (x *Executor) Last() float64 { return x.lastOut }

// Norm returns the most recent output normalized to [0, 1] and whether the
// chain has produced any output yet. Hold-factor references read this.
func (x *Executor) Norm() (float64, bool) {
	return x.lastNorm, x.primed
}

// Reset discards all stage state and the buffered batch.
func (x *Executor) Reset() {
	for _, st := range x.stages {
		st.Reset()
	}
	x.pending = x.pending[:0]
	x.relIdx, x.absIdx = -1, -1
	x.haveAbs = false
	x.lastOut = x.destRange.Default
	x.lastNorm = x.destRange.Normalize(x.destRange.Default)
	x.primed = false
}

func nonZero(v float64) float64 {
	if v == 0 {
		return 1
	}
	return v
}
