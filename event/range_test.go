package event

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRange_OrdersEndpoints(t *testing.T) {
	r := NewRange(10, -10)
	assert.Equal(t, -10.0, r.Lo)
	assert.Equal(t, 10.0, r.Hi)
	assert.Equal(t, 0.0, r.Default)
}

func TestRange_Validate(t *testing.T) {
	tests := []struct {
		name    string
		r       Range
		wantErr bool
	}{
		{"valid", Range{Lo: 0, Hi: 1, Default: 0.5}, false},
		{"inverted", Range{Lo: 1, Hi: 0, Default: 0.5}, true},
		{"degenerate", Range{Lo: 1, Hi: 1, Default: 1}, true},
		{"default outside", Range{Lo: 0, Hi: 1, Default: 2}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.r.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRange_NormalizeDenormalize(t *testing.T) {
	r := NewRange(-100, 100)

	assert.InDelta(t, 0.5, r.Normalize(0), 1e-9)
	assert.InDelta(t, 0.0, r.Normalize(-100), 1e-9)
	assert.InDelta(t, 1.0, r.Normalize(100), 1e-9)

	for _, v := range []float64{-100, -33.3, 0, 42, 100} {
		assert.InDelta(t, v, r.Denormalize(r.Normalize(v)), 1e-9, "round trip for %v", v)
	}
}

func TestRange_MapTo(t *testing.T) {
	src := NewRange(0, 127)
	dst := NewRange(-32767, 32767)

	assert.InDelta(t, -32767, src.MapTo(dst, 0), 1e-6)
	assert.InDelta(t, 32767, src.MapTo(dst, 127), 1e-6)
	// Out-of-range input clamps at the destination bound.
	assert.InDelta(t, 32767, src.MapTo(dst, 500), 1e-6)
}

func TestRange_Invert(t *testing.T) {
	r := NewRange(0, 127)
	assert.Equal(t, 127.0, r.Invert(0))
	assert.Equal(t, 0.0, r.Invert(127))
	assert.Equal(t, 63.5, r.Invert(63.5))

	// Inversion is an involution.
	for _, v := range []float64{0, 1, 63, 127} {
		assert.Equal(t, v, r.Invert(r.Invert(v)))
	}
}

func TestRange_Clamp(t *testing.T) {
	r := NewRange(-1, 1)
	assert.Equal(t, -1.0, r.Clamp(-5))
	assert.Equal(t, 1.0, r.Clamp(5))
	assert.Equal(t, 0.25, r.Clamp(0.25))
}

func TestHalfLifeDecay(t *testing.T) {
	// After exactly one half-life, half the offset remains.
	f := HalfLifeDecay(1.0, 1.0)
	assert.InDelta(t, 0.5, f, 1e-9)

	// Infinite half-life never decays.
	assert.Equal(t, 0.0, HalfLifeDecay(math.Inf(1), 1.0))

	// Zero half-life snaps immediately.
	assert.Equal(t, 1.0, HalfLifeDecay(0, 0.001))

	// Decay composes: two half-steps equal one full step.
	half := HalfLifeDecay(1.0, 0.5)
	composed := 1 - (1-half)*(1-half)
	require.InDelta(t, HalfLifeDecay(1.0, 1.0), composed, 1e-9)
}
