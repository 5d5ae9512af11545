package stage

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/leosat/MMVJ/event"
)

// SteeringParams configures the steering model.
type SteeringParams struct {
	// Sensitivity converts input delta units into angle units.
	Sensitivity float64
	// AutocenterHalflife is the time in seconds for an unhindered wheel at
	// rest to halve its offset. +Inf disables autocentering; 0 snaps to
	// center immediately when unheld.
	AutocenterHalflife float64
	// Hold trades user authority against autocenter and force feedback:
	// 0 = no hands, 1 = rigid grip.
	Hold HoldFactor
	// FFScale converts the normalized constant-force magnitude into angle
	// velocity units.
	FFScale float64
	// FFInvert flips the sign of incoming force.
	FFInvert bool
	// Alpha is the one-pole output smoothing coefficient in (0, 1];
	// 1 disables smoothing.
	Alpha float64
	// InputPower optionally curves the incoming delta with a sign-preserving
	// power before integration. <= 0 disables.
	InputPower float64
	// InputTau optionally low-passes the incoming delta with the given time
	// constant in seconds. <= 0 disables.
	InputTau float64
}

// Steering integrates pointer motion into a steering angle in [-1, 1] that
// is continuously pulled toward center by autocentering and by
// externally-supplied constant force, both dampened by the hand-hold
// factor. Autocentering uses an exponential-decay formulation so settling
// behavior is invariant to the update rate.
type Steering struct {
	params SteeringParams
	holds  HoldSource

	theta    float64
	smoothed float64
	primed   bool

	inputEMA *EMA

	force    atomic.Value // float64; written by Feedback, read by Advance
	effectID int
}

// NewSteering builds a steering stage. holds may be nil when Hold is a
// literal.
func NewSteering(params SteeringParams, holds HoldSource) *Steering {
	if params.Alpha <= 0 || params.Alpha > 1 {
		params.Alpha = 1
	}
	st := &Steering{params: params, holds: holds}
	if params.InputTau > 0 {
		st.inputEMA = NewEMA(params.InputTau, false)
	}
	st.force.Store(0.0)
	return st
}

func (st *Steering) Reset() {
	st.theta = 0
	st.smoothed = 0
	st.primed = false
	st.force.Store(0.0)
	st.effectID = 0
	if st.inputEMA != nil {
		st.inputEMA.Reset()
	}
}

// Feedback receives force-feedback events from the output adapter.
func (st *Steering) Feedback(ff event.FF) {
	switch ff.Kind {
	case event.FFUpload:
		f := ff.Force
		if st.params.FFInvert {
			f = -f
		}
		st.effectID = ff.EffectID
		st.force.Store(f)
	case event.FFCancel:
		if ff.EffectID == st.effectID || ff.EffectID < 0 {
			st.force.Store(0.0)
		}
	case event.FFStop:
		st.force.Store(0.0)
	case event.FFPlay:
		// Level was set at upload; nothing to do.
	}
}

// Force returns the current external force, for the indicator observer.
func (st *Steering) Force() float64 {
	return st.force.Load().(float64)
}

// Angle returns the smoothed output angle in [-1, 1].
func (st *Steering) Angle() float64 {
	return st.smoothed
}

func (st *Steering) Advance(s event.Sample, dt time.Duration) event.Sample {
	delta := 0.0
	if s.Kind == event.Relative {
		delta = s.Value
	}

	if st.params.InputPower > 0 {
		delta = signedPow(delta, st.params.InputPower)
	}
	if st.inputEMA != nil {
		delta = st.inputEMA.Step(delta, dt)
	}

	dts := dt.Seconds()
	hold := st.params.Hold.Resolve(st.holds)

	// 1. Apply input.
	st.theta = clampSym(st.theta + st.params.Sensitivity*delta)

	// 2. Autocenter pull, exponential toward zero, dampened by hold.
	if eff := (1 - hold) * dts; eff > 0 && !math.IsInf(st.params.AutocenterHalflife, 1) {
		k := event.HalfLifeDecay(st.params.AutocenterHalflife, eff)
		st.theta += (0 - st.theta) * k
	}

	// 3. Force-feedback pull, dampened by hold.
	fext := st.force.Load().(float64)
	if fext != 0 {
		st.theta = clampSym(st.theta + st.params.FFScale*fext*(1-hold)*dts)
	}

	// 4. Smooth.
	if !st.primed {
		st.smoothed = st.theta
		st.primed = true
	} else {
		st.smoothed = st.params.Alpha*st.theta + (1-st.params.Alpha)*st.smoothed
	}

	return event.AbsoluteSample(event.Symmetric(), st.smoothed)
}

func (st *Steering) IdleActive() bool { return true }

func clampSym(v float64) float64 {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}
