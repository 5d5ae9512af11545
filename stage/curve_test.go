package stage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leosat/MMVJ/event"
)

func unitSample(v float64) event.Sample {
	return event.AbsoluteSample(event.Unit(), v)
}

func TestLinear_Identity(t *testing.T) {
	c := NewLinear(1, 0, 0, false)
	for _, v := range []float64{0, 0.1, 0.5, 1} {
		out := c.Advance(unitSample(v), time.Millisecond)
		assert.InDelta(t, v, out.Value, 1e-9)
	}
}

func TestQuadraticCubic(t *testing.T) {
	q := NewQuadratic(false)
	assert.InDelta(t, 0.25, q.Advance(unitSample(0.5), 0).Value, 1e-9)
	assert.InDelta(t, 0.0, q.Advance(unitSample(0), 0).Value, 1e-9)
	assert.InDelta(t, 1.0, q.Advance(unitSample(1), 0).Value, 1e-9)

	c := NewCubic(false)
	assert.InDelta(t, 0.125, c.Advance(unitSample(0.5), 0).Value, 1e-9)
}

func TestSmoothstep_Anchors(t *testing.T) {
	s := NewSmoothstep(false)
	assert.InDelta(t, 0.0, s.Advance(unitSample(0), 0).Value, 1e-9)
	assert.InDelta(t, 0.5, s.Advance(unitSample(0.5), 0).Value, 1e-3)
	assert.InDelta(t, 1.0, s.Advance(unitSample(1), 0).Value, 1e-9)
}

func TestSmootherstep_Anchors(t *testing.T) {
	s := NewSmootherstep(false)
	assert.InDelta(t, 0.0, s.Advance(unitSample(0), 0).Value, 1e-9)
	assert.InDelta(t, 0.5, s.Advance(unitSample(0.5), 0).Value, 1e-9)
	assert.InDelta(t, 1.0, s.Advance(unitSample(1), 0).Value, 1e-9)
}

func TestSCurve_AnchorsAndCompression(t *testing.T) {
	s := NewSCurve(8, false)

	// Anchor points are preserved.
	assert.InDelta(t, 0.0, s.Advance(unitSample(0), 0).Value, 1e-6)
	assert.InDelta(t, 0.5, s.Advance(unitSample(0.5), 0).Value, 1e-6)
	assert.InDelta(t, 1.0, s.Advance(unitSample(1), 0).Value, 1e-6)

	// Compressive near center: s(0.25) < 0.25.
	out := s.Advance(unitSample(0.25), 0).Value
	assert.Less(t, out, 0.25)

	// Monotonically increasing.
	prev := -1.0
	for x := 0.0; x <= 1.0; x += 0.05 {
		y := s.Advance(unitSample(x), 0).Value
		assert.GreaterOrEqual(t, y, prev)
		prev = y
	}
}

func TestSCurve_DegeneratesToIdentity(t *testing.T) {
	s := NewSCurve(0, false)
	assert.InDelta(t, 0.42, s.Advance(unitSample(0.42), 0).Value, 1e-9)
}

func TestExponential(t *testing.T) {
	e := NewExponential(10, false)
	assert.InDelta(t, 0.0, e.Advance(unitSample(0), 0).Value, 1e-9)
	assert.InDelta(t, 1.0, e.Advance(unitSample(1), 0).Value, 1e-9)
	// Compressive for base > 1.
	assert.Less(t, e.Advance(unitSample(0.5), 0).Value, 0.5)

	// Base <= 1 is the identity.
	id := NewExponential(1, false)
	assert.InDelta(t, 0.3, id.Advance(unitSample(0.3), 0).Value, 1e-9)
}

func TestSymmetricPower_SymmetryAroundMidpoint(t *testing.T) {
	s := NewSymmetricPower(2, false)

	assert.InDelta(t, 0.5, s.Advance(unitSample(0.5), 0).Value, 1e-9)

	lo := s.Advance(unitSample(0.25), 0).Value
	hi := s.Advance(unitSample(0.75), 0).Value
	assert.InDelta(t, lo, 1-hi, 1e-9)
}

func TestPower_SignPreserving(t *testing.T) {
	p := NewPower(2, false)
	sym := event.Symmetric()
	out := p.Advance(event.AbsoluteSample(sym, -0.5), 0)
	// Normalized -0.5 on [-1,1] is 0.25, squared 0.0625, denormalized -0.875.
	assert.InDelta(t, -0.875, out.Value, 1e-9)
}

func TestCurve_PreservesRange(t *testing.T) {
	r := event.NewRange(-32767, 32767)
	curves := []Stage{
		NewLinear(1, 0, 0, false),
		NewQuadratic(false),
		NewCubic(false),
		NewSmoothstep(false),
		NewSmootherstep(false),
		NewSCurve(10, false),
		NewExponential(5, false),
		NewPower(2, false),
		NewSymmetricPower(2, false),
	}

	for _, c := range curves {
		for _, v := range []float64{-32767, -1000, 0, 1000, 32767} {
			out := c.Advance(event.AbsoluteSample(r, v), time.Millisecond)
			require.True(t, r.Contains(out.Value),
				"curve output %v escaped range for input %v", out.Value, v)
			assert.Equal(t, r, out.Range)
		}
	}
}

func TestCurve_PassesButtonsThrough(t *testing.T) {
	c := NewQuadratic(false)
	out := c.Advance(event.ButtonEdge(true), 0)
	assert.Equal(t, event.Button, out.Kind)
	assert.Equal(t, 1.0, out.Value)
}
