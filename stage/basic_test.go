package stage

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leosat/MMVJ/event"
)

func TestClamp_Saturates(t *testing.T) {
	c := NewClamp(event.NewRange(0, 100), true)
	r := event.NewRange(-200, 200)

	out := c.Advance(event.AbsoluteSample(r, 150), 0)
	assert.Equal(t, 100.0, out.Value)
	assert.Equal(t, c.Bounds, out.Range)

	out = c.Advance(event.AbsoluteSample(r, -50), 0)
	assert.Equal(t, 0.0, out.Value)
}

func TestClamp_NoOverrideKeepsRange(t *testing.T) {
	c := NewClamp(event.NewRange(0, 100), false)
	r := event.NewRange(-200, 200)

	out := c.Advance(event.AbsoluteSample(r, 150), 0)
	assert.Equal(t, 100.0, out.Value)
	assert.Equal(t, r, out.Range)
}

func TestInvert_Absolute(t *testing.T) {
	inv := NewInvert(false)
	r := event.NewRange(0, 127)

	out := inv.Advance(event.AbsoluteSample(r, 0), 0)
	assert.Equal(t, 127.0, out.Value)

	out = inv.Advance(event.AbsoluteSample(r, 100), 0)
	assert.Equal(t, 27.0, out.Value)
}

func TestInvert_Relative(t *testing.T) {
	inv := NewInvert(false)
	out := inv.Advance(event.RelativeSample(event.Symmetric(), 3), 0)
	assert.Equal(t, -3.0, out.Value)
}

func TestInvert_Involution(t *testing.T) {
	inv := NewInvert(false)
	r := event.NewRange(-32767, 32767)
	for _, v := range []float64{-32767, -100, 0, 512, 32767} {
		once := inv.Advance(event.AbsoluteSample(r, v), 0)
		twice := inv.Advance(once, 0)
		assert.InDelta(t, v, twice.Value, 1e-9)
	}
}

func TestClampInvertRoundTrip(t *testing.T) {
	// clamp . invert . invert . clamp with matching ranges is the identity
	// on the clamp interval.
	bounds := event.NewRange(-100, 100)
	clampA := NewClamp(bounds, true)
	clampB := NewClamp(bounds, true)
	inv := NewInvert(false)

	for _, v := range []float64{-100, -37.5, 0, 42, 100} {
		s := event.AbsoluteSample(bounds, v)
		s = clampA.Advance(s, 0)
		s = inv.Advance(s, 0)
		s = inv.Advance(s, 0)
		s = clampB.Advance(s, 0)
		assert.InDelta(t, v, s.Value, 1e-9)
	}
}

func TestIntegrate_AccumulatesAndSaturates(t *testing.T) {
	bounds := event.NewRangeAt(0, 100, 0)
	in := NewIntegrate(bounds, 0, 0, 1)
	src := event.Symmetric()

	out := in.Advance(event.RelativeSample(src, 30), time.Millisecond)
	assert.Equal(t, 30.0, out.Value)

	out = in.Advance(event.RelativeSample(src, 30), time.Millisecond)
	assert.Equal(t, 60.0, out.Value)

	// Saturates at the upper bound, no wrap.
	out = in.Advance(event.RelativeSample(src, 1000), time.Millisecond)
	assert.Equal(t, 100.0, out.Value)

	out = in.Advance(event.RelativeSample(src, -1000), time.Millisecond)
	assert.Equal(t, 0.0, out.Value)
}

func TestIntegrate_StartsAtDefault(t *testing.T) {
	bounds := event.NewRange(-100, 100) // default midpoint 0
	in := NewIntegrate(bounds, 0, 0, 1)

	out := in.Advance(event.RelativeSample(event.Symmetric(), 0), time.Millisecond)
	assert.Equal(t, 0.0, out.Value)
}

func TestIntegrate_LeakHalflife(t *testing.T) {
	// With leak half-life h and zero input, value decays from 1 to 0.5 in h.
	bounds := event.NewRangeAt(0, 1, 0)
	in := NewIntegrate(bounds, 0, 1.0, 1)
	src := event.Symmetric()

	// Push to 1.
	in.Advance(event.RelativeSample(src, 10), 0)

	// Advance one second in 1 ms ticks with zero delta.
	var out event.Sample
	for i := 0; i < 1000; i++ {
		out = in.Advance(event.RelativeSample(src, 0), time.Millisecond)
	}
	assert.InDelta(t, 0.5, out.Value, 0.01)
}

func TestIntegrate_LeakRateInvariance(t *testing.T) {
	// The decay must not depend on the tick rate.
	for _, hz := range []int{100, 500, 2000, 10000} {
		bounds := event.NewRangeAt(0, 1, 0)
		in := NewIntegrate(bounds, 0, 1.0, 1)
		src := event.Symmetric()
		in.Advance(event.RelativeSample(src, 10), 0)

		dt := time.Second / time.Duration(hz)
		var out event.Sample
		for i := 0; i < hz; i++ {
			out = in.Advance(event.RelativeSample(src, 0), dt)
		}
		assert.InDeltaf(t, 0.5, out.Value, 0.05, "rate %d Hz", hz)
	}
}

func TestIntegrate_Deadzone(t *testing.T) {
	bounds := event.NewRangeAt(0, 100, 0)
	in := NewIntegrate(bounds, 0.05, 0, 1)
	src := event.NewRange(-100, 100) // span 200, deadzone 10

	out := in.Advance(event.RelativeSample(src, 5), time.Millisecond)
	assert.Equal(t, 0.0, out.Value, "delta below deadzone is suppressed")

	out = in.Advance(event.RelativeSample(src, 50), time.Millisecond)
	assert.Equal(t, 50.0, out.Value)
}

func TestIntegrate_Reset(t *testing.T) {
	bounds := event.NewRangeAt(0, 100, 25)
	in := NewIntegrate(bounds, 0, 0, 1)
	in.Advance(event.RelativeSample(event.Symmetric(), 50), 0)
	in.Reset()

	out := in.Advance(event.RelativeSample(event.Symmetric(), 0), 0)
	assert.Equal(t, 25.0, out.Value)
}

func TestIntegrate_IdleActiveOnlyWithLeak(t *testing.T) {
	bounds := event.NewRange(0, 1)
	assert.False(t, NewIntegrate(bounds, 0, 0, 1).IdleActive())
	assert.False(t, NewIntegrate(bounds, 0, math.Inf(1), 1).IdleActive())
	assert.True(t, NewIntegrate(bounds, 0, 0.5, 1).IdleActive())
}

func TestStage_OutputStaysInDeclaredRange(t *testing.T) {
	// Invariant: Advance preserves the declared output range for every
	// stage under extreme inputs.
	bounds := event.NewRange(-1, 1)
	stages := []Stage{
		NewClamp(bounds, true),
		NewIntegrate(bounds, 0, 0, 1),
		NewEMA(0.1, false),
		NewMovingAverage(8),
	}
	src := event.Symmetric()

	for _, st := range stages {
		for _, v := range []float64{-1e6, -1, 0, 1, 1e6} {
			out := st.Advance(event.RelativeSample(src, v), time.Millisecond)
			require.False(t, math.IsNaN(out.Value))
			if out.Kind == event.Absolute {
				assert.True(t, out.Range.Contains(out.Value),
					"%T output %v outside range", st, out.Value)
			}
		}
	}
}
