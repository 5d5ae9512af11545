package stage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/leosat/MMVJ/event"
)

func TestEMA_Primes(t *testing.T) {
	e := NewEMA(0.5, false)
	out := e.Advance(unitSample(0.7), time.Millisecond)
	assert.Equal(t, 0.7, out.Value, "first sample primes the filter")
}

func TestEMA_Converges(t *testing.T) {
	e := NewEMA(0.1, false)
	e.Advance(unitSample(0), time.Millisecond)

	var out event.Sample
	for i := 0; i < 1000; i++ {
		out = e.Advance(unitSample(1), time.Millisecond)
	}
	assert.InDelta(t, 1.0, out.Value, 1e-3)
}

func TestEMA_TimeConstant(t *testing.T) {
	// After exactly tau of a unit step the output sits at 1 - 1/e.
	e := NewEMA(0.2, false)
	e.Advance(unitSample(0), 0)

	var out event.Sample
	for i := 0; i < 200; i++ {
		out = e.Advance(unitSample(1), time.Millisecond)
	}
	assert.InDelta(t, 0.6321, out.Value, 0.01)
}

func TestEMA_RateInvariance(t *testing.T) {
	for _, hz := range []int{100, 500, 2000, 10000} {
		e := NewEMA(0.2, false)
		e.Advance(unitSample(0), 0)

		dt := time.Second / time.Duration(hz)
		var out event.Sample
		for i := 0; i < hz/5; i++ { // one time constant
			out = e.Advance(unitSample(1), dt)
		}
		assert.InDeltaf(t, 0.6321, out.Value, 0.02, "rate %d Hz", hz)
	}
}

func TestEMA_ZeroTauPassesThrough(t *testing.T) {
	e := NewEMA(0, false)
	out := e.Advance(unitSample(0.9), time.Millisecond)
	assert.Equal(t, 0.9, out.Value)
	out = e.Advance(unitSample(0.1), time.Millisecond)
	assert.Equal(t, 0.1, out.Value)
}

func TestEMA_ButtonsPassThrough(t *testing.T) {
	e := NewEMA(1, false)
	out := e.Advance(event.ButtonEdge(true), time.Millisecond)
	assert.Equal(t, event.Button, out.Kind)
	assert.Equal(t, 1.0, out.Value)
}

func TestEMA_Reset(t *testing.T) {
	e := NewEMA(0.5, false)
	e.Advance(unitSample(1), time.Millisecond)
	e.Reset()
	out := e.Advance(unitSample(0.3), time.Millisecond)
	assert.Equal(t, 0.3, out.Value, "reset re-primes on the next sample")
}

func TestEMA_IdleActive(t *testing.T) {
	assert.False(t, NewEMA(0.1, false).IdleActive())
	assert.True(t, NewEMA(0.1, true).IdleActive())
}

func TestMovingAverage_ReachesConstantAfterWindow(t *testing.T) {
	const window = 8
	m := NewMovingAverage(window)

	var out event.Sample
	for i := 0; i < window; i++ {
		out = m.Advance(unitSample(0.6), time.Millisecond)
	}
	assert.Equal(t, 0.6, out.Value, "constant signal is reproduced after N samples")
}

func TestMovingAverage_WarmupMean(t *testing.T) {
	m := NewMovingAverage(4)
	assert.Equal(t, 1.0, m.Advance(unitSample(1), 0).Value)
	assert.Equal(t, 0.5, m.Advance(unitSample(0), 0).Value)
	assert.InDelta(t, 1.0/3.0, m.Advance(unitSample(0), 0).Value, 1e-9)
}

func TestMovingAverage_SlidesWindow(t *testing.T) {
	m := NewMovingAverage(2)
	m.Advance(unitSample(0), 0)
	m.Advance(unitSample(1), 0)
	out := m.Advance(unitSample(1), 0)
	assert.Equal(t, 1.0, out.Value, "oldest sample has left the window")
}

func TestMovingAverage_WindowFloor(t *testing.T) {
	m := NewMovingAverage(0)
	assert.Equal(t, 1, m.Window())
	out := m.Advance(unitSample(0.4), 0)
	assert.Equal(t, 0.4, out.Value)
}

func TestMovingAverage_Reset(t *testing.T) {
	m := NewMovingAverage(3)
	m.Advance(unitSample(1), 0)
	m.Advance(unitSample(1), 0)
	m.Reset()
	out := m.Advance(unitSample(0.2), 0)
	assert.Equal(t, 0.2, out.Value)
}
