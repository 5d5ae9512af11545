package pointer

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/holoplot/go-evdev"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leosat/MMVJ/event"
	"github.com/leosat/MMVJ/pkg/retry"
)

func testHandle(t *testing.T) *deviceHandle {
	t.Helper()
	return &deviceHandle{
		path:    "/dev/input/event7",
		sysName: "Kensington Expert Mouse",
		device:  "trackball",
		controls: map[string]event.Key{
			"x":      event.MustParseKey("REL_X"),
			"left":   event.MustParseKey("BTN_LEFT"),
			"scroll": event.MustParseKey("WHEEL"),
			"slider": event.MustParseKey("ABS_Z"),
		},
		absInfos: map[evdev.EvCode]evdev.AbsInfo{
			evdev.ABS_Z: {Minimum: 0, Maximum: 255},
		},
	}
}

func recvInput(t *testing.T, ch <-chan event.Input) event.Input {
	t.Helper()
	select {
	case in := <-ch:
		return in
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
		return event.Input{}
	}
}

func TestAdapter_InitializeRequiresQueue(t *testing.T) {
	a := New(Deps{})
	require.Error(t, a.Initialize())

	a = New(Deps{Queue: make(chan event.Input, 1)})
	require.NoError(t, a.Initialize())
}

func TestAdapter_TranslateRelativeMotion(t *testing.T) {
	queue := make(chan event.Input, 4)
	a := New(Deps{Queue: queue})
	h := testHandle(t)

	a.translate(h, &evdev.InputEvent{Type: evdev.EV_REL, Code: evdev.REL_X, Value: -12})

	in := recvInput(t, queue)
	assert.Equal(t, "trackball", in.Source.Device)
	assert.Equal(t, event.Relative, in.Sample.Kind)
	assert.InDelta(t, -12, in.Sample.Value, 1e-9)
}

func TestAdapter_TranslateUndeclaredAxisIgnored(t *testing.T) {
	queue := make(chan event.Input, 4)
	a := New(Deps{Queue: queue})

	a.translate(testHandle(t), &evdev.InputEvent{Type: evdev.EV_REL, Code: evdev.REL_Y, Value: 3})
	assert.Empty(t, queue)
}

func TestAdapter_TranslateButtonEdges(t *testing.T) {
	queue := make(chan event.Input, 4)
	a := New(Deps{Queue: queue})
	h := testHandle(t)

	a.translate(h, &evdev.InputEvent{Type: evdev.EV_KEY, Code: evdev.BTN_LEFT, Value: 1})
	in := recvInput(t, queue)
	assert.Equal(t, event.Button, in.Sample.Kind)
	assert.True(t, in.Sample.Pressed())

	// Autorepeat is not an edge.
	a.translate(h, &evdev.InputEvent{Type: evdev.EV_KEY, Code: evdev.BTN_LEFT, Value: 2})
	assert.Empty(t, queue)

	a.translate(h, &evdev.InputEvent{Type: evdev.EV_KEY, Code: evdev.BTN_LEFT, Value: 0})
	in = recvInput(t, queue)
	assert.False(t, in.Sample.Pressed())
}

func TestAdapter_TranslateWheelMatchesWheelKey(t *testing.T) {
	queue := make(chan event.Input, 4)
	a := New(Deps{Queue: queue})

	a.translate(testHandle(t), &evdev.InputEvent{Type: evdev.EV_REL, Code: evdev.REL_WHEEL, Value: 1})

	in := recvInput(t, queue)
	assert.Equal(t, event.KindWheel, in.Source.Control.Kind)
	assert.Equal(t, event.Relative, in.Sample.Kind)
}

func TestAdapter_TranslateAbsoluteScaledByAbsInfo(t *testing.T) {
	queue := make(chan event.Input, 4)
	a := New(Deps{Queue: queue})

	a.translate(testHandle(t), &evdev.InputEvent{Type: evdev.EV_ABS, Code: evdev.ABS_Z, Value: 255})

	in := recvInput(t, queue)
	assert.Equal(t, event.Absolute, in.Sample.Kind)
	assert.InDelta(t, 1.0, in.Sample.Range.Normalize(in.Sample.Value), 1e-9)
}

func TestAdapter_TranslateSynIgnored(t *testing.T) {
	queue := make(chan event.Input, 4)
	a := New(Deps{Queue: queue})

	a.translate(testHandle(t), &evdev.InputEvent{Type: evdev.EV_SYN, Code: 0, Value: 0})
	assert.Empty(t, queue)
}

func TestAdapter_PushDropsOnFullQueue(t *testing.T) {
	queue := make(chan event.Input, 1)
	a := New(Deps{Queue: queue})
	h := testHandle(t)

	a.translate(h, &evdev.InputEvent{Type: evdev.EV_REL, Code: evdev.REL_X, Value: 1})
	a.translate(h, &evdev.InputEvent{Type: evdev.EV_REL, Code: evdev.REL_X, Value: 2})

	assert.Len(t, queue, 1)
	assert.EqualValues(t, 1, a.Drops())
}

func TestAdapter_AbsRangeFallsBackToSymmetric(t *testing.T) {
	a := New(Deps{Queue: make(chan event.Input, 1)})
	h := testHandle(t)

	r := a.absRange(h, evdev.ABS_X)
	assert.Equal(t, event.Symmetric(), r)
}

func TestAdapter_ReopenDefaultsToBackoffSchedule(t *testing.T) {
	a := New(Deps{Queue: make(chan event.Input, 1)})

	assert.Equal(t, retry.Reopen(), a.reopen)
	assert.Equal(t, 100*time.Millisecond, a.reopen.InitialDelay)
	assert.Equal(t, 5*time.Second, a.reopen.MaxDelay)
	assert.InDelta(t, 2.0, a.reopen.Multiplier, 1e-9)
	assert.Negative(t, a.reopen.MaxAttempts)
}

func TestAdapter_ScanBacksOffOnListFailure(t *testing.T) {
	a := New(Deps{Queue: make(chan event.Input, 1)})
	a.reopen = retry.Config{
		MaxAttempts:  3,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     80 * time.Millisecond,
		Multiplier:   2.0,
	}

	var mu sync.Mutex
	var attempts []time.Time
	a.listDevices = func() ([]evdev.InputPath, error) {
		mu.Lock()
		attempts = append(attempts, time.Now())
		mu.Unlock()
		return nil, fmt.Errorf("scandir /dev/input: permission denied")
	}

	require.NoError(t, a.Start(context.Background()))
	t.Cleanup(func() { _ = a.Stop(time.Second) })

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(attempts) >= 3
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, attempts[1].Sub(attempts[0]), 10*time.Millisecond)
	assert.GreaterOrEqual(t, attempts[2].Sub(attempts[1]), 20*time.Millisecond)
	assert.Empty(t, a.OpenDevices())
}

func TestAdapter_Meta(t *testing.T) {
	a := New(Deps{Queue: make(chan event.Input, 1)})
	meta := a.Meta()
	assert.Equal(t, "pointer-input", meta.Name)
	assert.Equal(t, "input", meta.Type)
}
