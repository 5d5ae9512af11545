package stage

import (
	"time"

	"github.com/leosat/MMVJ/event"
)

// Pedal models a throttle/brake/clutch that rises quickly toward the
// driving input and falls back toward zero at an independent rate, with the
// fall optionally gated by a hold timeout and scaled down by another
// control's value.
type Pedal struct {
	nopFeedback

	RiseRate    float64 // units per second toward the input
	FallRate    float64 // units per second toward zero; +Inf tracks input
	FallHold    HoldFactor
	FallTimeout float64 // seconds of no rise before the fall begins
	Alpha       float64 // (0, 1]; one-pole output smoothing, 1 disables

	holds HoldSource

	cur       float64
	smoothed  float64
	primed    bool
	sinceRise float64 // seconds accumulated since the last rise
}

// NewPedal builds a pedal stage. holds may be nil when FallHold is a
// literal.
func NewPedal(riseRate, fallRate float64, fallHold HoldFactor, fallTimeout, alpha float64, holds HoldSource) *Pedal {
	if alpha <= 0 || alpha > 1 {
		alpha = 1
	}
	return &Pedal{
		RiseRate:    riseRate,
		FallRate:    fallRate,
		FallHold:    fallHold,
		FallTimeout: fallTimeout,
		Alpha:       alpha,
		holds:       holds,
	}
}

func (p *Pedal) Reset() {
	p.cur = 0
	p.smoothed = 0
	p.primed = false
	p.sinceRise = 0
}

func (p *Pedal) Advance(s event.Sample, dt time.Duration) event.Sample {
	input := s.Range.Normalize(s.Range.Clamp(s.Value))
	dts := dt.Seconds()

	switch {
	case input > p.cur:
		step := p.RiseRate * dts
		if p.cur+step >= input {
			p.cur = input
		} else {
			p.cur += step
		}
		p.sinceRise = 0
	case p.sinceRise < p.FallTimeout:
		p.sinceRise += dts
	default:
		p.sinceRise += dts
		hold := p.FallHold.Resolve(p.holds)
		fall := p.FallRate * (1 - hold) * dts
		if p.cur-fall <= 0 {
			p.cur = 0
		} else {
			p.cur -= fall
		}
		// Never fall below the live input.
		if p.cur < input {
			p.cur = input
		}
	}

	if !p.primed {
		p.smoothed = p.cur
		p.primed = true
	} else {
		p.smoothed = p.Alpha*p.cur + (1-p.Alpha)*p.smoothed
	}

	s.Value = s.Range.Denormalize(p.smoothed)
	return s
}

func (p *Pedal) IdleActive() bool { return true }
