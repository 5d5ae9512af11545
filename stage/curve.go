package stage

import (
	"math"
	"time"

	"github.com/leosat/MMVJ/event"
)

// CurveFunc maps the unit interval onto itself. Curves operate on the
// normalized sample and remap into the same range, so they compose with any
// upstream units.
type CurveFunc func(x float64) float64

// Curve applies a unit-interval function to the normalized sample value.
type Curve struct {
	nopFeedback
	stateless

	Name   string
	Fn     CurveFunc
	OnIdle bool
}

func newCurve(name string, onIdle bool, fn CurveFunc) *Curve {
	return &Curve{Name: name, Fn: fn, OnIdle: onIdle}
}

func (c *Curve) Advance(s event.Sample, _ time.Duration) event.Sample {
	if s.Kind == event.Button {
		return s
	}
	u := s.Range.Normalize(s.Value)
	s.Value = s.Range.Denormalize(c.Fn(u))
	return s
}

func (c *Curve) IdleActive() bool { return c.OnIdle }

// NewLinear builds slope*(x - shiftX) + shiftY on the unit interval.
// Defaults slope=1, shiftX=0, shiftY=0 give the identity.
func NewLinear(slope, shiftX, shiftY float64, onIdle bool) *Curve {
	return newCurve("linear", onIdle, func(x float64) float64 {
		return slope*(x-shiftX) + shiftY
	})
}

// NewQuadratic builds x^2.
func NewQuadratic(onIdle bool) *Curve {
	return newCurve("quadratic", onIdle, func(x float64) float64 { return x * x })
}

// NewCubic builds x^3.
func NewCubic(onIdle bool) *Curve {
	return newCurve("cubic", onIdle, func(x float64) float64 { return x * x * x })
}

// NewSmoothstep builds 3t^2 - 2t^3.
func NewSmoothstep(onIdle bool) *Curve {
	return newCurve("smoothstep", onIdle, func(x float64) float64 {
		return 3*x*x - 2*x*x*x
	})
}

// NewSmootherstep builds 6t^5 - 15t^4 + 10t^3.
func NewSmootherstep(onIdle bool) *Curve {
	return newCurve("smootherstep", onIdle, func(x float64) float64 {
		return x * x * x * (x*(6*x-15) + 10)
	})
}

// NewSCurve builds the centered tanh-based s-curve with s(0)=0, s(0.5)=0.5,
// s(1)=1. Larger steepness compresses inputs near the center. Steepness near
// zero degenerates to the identity.
func NewSCurve(steepness float64, onIdle bool) *Curve {
	return newCurve("s_curve", onIdle, func(x float64) float64 {
		if math.Abs(steepness) < 1e-8 {
			return x
		}
		u := 0.5 * steepness * (x - 0.5)
		denom := math.Tanh(0.25 * steepness)
		if math.Abs(denom) < 1e-8 {
			return x
		}
		y := 0.5 * (1 + math.Tanh(u)/denom)
		return clampUnit(y)
	})
}

// NewExponential builds (base^x - 1) / (base - 1). Base <= 1 degenerates to
// the identity.
func NewExponential(base float64, onIdle bool) *Curve {
	return newCurve("exponential", onIdle, func(x float64) float64 {
		if base <= 1 {
			return x
		}
		return (math.Pow(base, x) - 1) / (base - 1)
	})
}

// NewPower builds the sign-preserving |x|^p. Power <= 0 degenerates to the
// identity.
func NewPower(power float64, onIdle bool) *Curve {
	return newCurve("power", onIdle, func(x float64) float64 {
		return signedPow(x, power)
	})
}

// NewSymmetricPower rescales the unit interval to [-1, 1], applies the
// sign-preserving power curve, and scales back, so each half of a symmetric
// axis is curved independently around the midpoint.
func NewSymmetricPower(power float64, onIdle bool) *Curve {
	return newCurve("symmetric_power", onIdle, func(x float64) float64 {
		return (symmetricPow(2*x-1, power) + 1) / 2
	})
}

func signedPow(x, power float64) float64 {
	if power <= 0 {
		return x
	}
	r := math.Pow(math.Abs(x), power)
	if x < 0 {
		return -r
	}
	return r
}

func symmetricPow(x, power float64) float64 {
	return signedPow(x, power)
}
