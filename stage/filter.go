package stage

import (
	"math"
	"time"

	"github.com/leosat/MMVJ/event"
)

// EMA is a one-pole low-pass with time constant tau. The per-tick
// coefficient is derived from real dt so the response is invariant to the
// update rate.
type EMA struct {
	nopFeedback

	Tau    float64 // seconds; <= 0 passes through
	OnIdle bool

	prev   float64
	primed bool
}

func NewEMA(tau float64, onIdle bool) *EMA {
	return &EMA{Tau: tau, OnIdle: onIdle}
}

func (e *EMA) Reset() {
	e.prev = 0
	e.primed = false
}

func (e *EMA) Advance(s event.Sample, dt time.Duration) event.Sample {
	if s.Kind == event.Button {
		return s
	}
	alpha := 1.0
	if e.Tau > 0 {
		alpha = 1 - math.Exp(-dt.Seconds()/e.Tau)
	}
	if !e.primed {
		e.prev = s.Value
		e.primed = true
	} else {
		e.prev += alpha * (s.Value - e.prev)
	}
	s.Value = e.prev
	return s
}

func (e *EMA) IdleActive() bool { return e.OnIdle }

// Step advances a scalar without a Sample wrapper. Used by the steering
// stage for input conditioning.
func (e *EMA) Step(v float64, dt time.Duration) float64 {
	alpha := 1.0
	if e.Tau > 0 {
		alpha = 1 - math.Exp(-dt.Seconds()/e.Tau)
	}
	if !e.primed {
		e.prev = v
		e.primed = true
	} else {
		e.prev += alpha * (v - e.prev)
	}
	return e.prev
}

// MovingAverage keeps the N most recent samples in a ring and outputs their
// arithmetic mean. During warm-up the mean covers what has been seen.
type MovingAverage struct {
	nopFeedback

	window int

	ring  []float64
	head  int
	count int
	sum   float64
}

func NewMovingAverage(window int) *MovingAverage {
	if window < 1 {
		window = 1
	}
	return &MovingAverage{window: window, ring: make([]float64, window)}
}

func (m *MovingAverage) Reset() {
	for i := range m.ring {
		m.ring[i] = 0
	}
	m.head = 0
	m.count = 0
	m.sum = 0
}

func (m *MovingAverage) Advance(s event.Sample, _ time.Duration) event.Sample {
	if s.Kind == event.Button {
		return s
	}
	if m.count == m.window {
		m.sum -= m.ring[m.head]
	} else {
		m.count++
	}
	m.ring[m.head] = s.Value
	m.sum += s.Value
	m.head = (m.head + 1) % m.window

	s.Value = m.sum / float64(m.count)
	return s
}

func (m *MovingAverage) IdleActive() bool { return false }

// Window returns the configured window size.
func (m *MovingAverage) Window() int { return m.window }
