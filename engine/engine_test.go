package engine

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leosat/MMVJ/config"
	apperrors "github.com/leosat/MMVJ/errors"
	"github.com/leosat/MMVJ/event"
)

const testDocument = `
global:
  update_rate: 1000

midi_devices:
  nano:
    match_name_regex: "nanoKONTROL2"
    controls:
      throttle: "CC 7"
      grip: "CC 9"

mouse_devices:
  trackball:
    match_name_regex: "Trackball"
    controls:
      x: "REL_X"

virtual_joysticks:
  wheel:
    name: "Virtual Racing Wheel"
    controls:
      steer: "ABS_X"
      throttle: "ABS_Y"

mappings:
  - source: {device: trackball, control: x}
    destination: {joystick: wheel, control: steer}
    transformation:
      - steering:
          sensitivity: 0.0017
          autocenter_halflife: 0.3
  - source: {device: nano, control: throttle}
    destination: {joystick: wheel, control: throttle}
    transformation:
      - clamp: {from: 0, to: 127}
`

type fakeOutput struct {
	mu          sync.Mutex
	reconciles  int
	reconcileFn func(*config.Resolved) error
	writes      map[event.ControlID]event.Sample
	flushes     int
}

func newFakeOutput() *fakeOutput {
	return &fakeOutput{writes: make(map[event.ControlID]event.Sample)}
}

func (f *fakeOutput) Reconcile(rev *config.Resolved) error {
	f.mu.Lock()
	f.reconciles++
	fn := f.reconcileFn
	f.mu.Unlock()
	if fn != nil {
		return fn(rev)
	}
	return nil
}

func (f *fakeOutput) Write(dest event.ControlID, s event.Sample) {
	f.mu.Lock()
	f.writes[dest] = s
	f.mu.Unlock()
}

func (f *fakeOutput) Flush() {
	f.mu.Lock()
	f.flushes++
	f.mu.Unlock()
}

func (f *fakeOutput) Reconciles() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reconciles
}

func (f *fakeOutput) Written(dest event.ControlID) (event.Sample, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.writes[dest]
	return s, ok
}

type fakeInput struct {
	reconciles  int
	reconcileFn func(*config.Resolved) error
}

func (f *fakeInput) Reconcile(rev *config.Resolved) error {
	f.reconciles++
	if f.reconcileFn != nil {
		return f.reconcileFn(rev)
	}
	return nil
}

type fakeIndicator struct {
	frames [][]IndicatorFrame
}

func (f *fakeIndicator) Offer(frames []IndicatorFrame) { f.frames = append(f.frames, frames) }

func newTestManager(t *testing.T, doc string) *config.Manager {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mapping.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	mgr := config.NewManager(path, "", nil)
	_, err := mgr.Load()
	require.NoError(t, err)
	return mgr
}

func sourceID(t *testing.T, rev *config.Revision, device, control string) event.ControlID {
	t.Helper()
	id, err := rev.Resolved.SourceControl(device, control)
	require.NoError(t, err)
	return id
}

func TestEngine_InitializeRequiresConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mapping.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testDocument), 0o644))
	mgr := config.NewManager(path, "", nil)

	e := New(Deps{ConfigManager: mgr})
	err := e.Initialize()
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrMissingConfig)
}

func TestEngine_TickRoutesInputToOutput(t *testing.T) {
	mgr := newTestManager(t, testDocument)
	out := newFakeOutput()
	e := New(Deps{ConfigManager: mgr, Output: out})
	require.NoError(t, e.Initialize())

	rev := mgr.Current()
	throttle := sourceID(t, rev, "nano", "throttle")
	dest := e.wiring.executors[1].Destination()

	e.ingest(event.Input{
		Source: throttle,
		Sample: event.AbsoluteSample(event.NewRange(0, 127), 127),
		At:     time.Now(),
	})
	e.tick(time.Millisecond)

	s, ok := out.Written(dest)
	require.True(t, ok)
	assert.InDelta(t, 32767, s.Value, 1)
	assert.Equal(t, 1, out.flushes)
}

func TestEngine_UnroutedInputIsDropped(t *testing.T) {
	mgr := newTestManager(t, testDocument)
	out := newFakeOutput()
	e := New(Deps{ConfigManager: mgr, Output: out})
	require.NoError(t, e.Initialize())

	grip := sourceID(t, mgr.Current(), "nano", "grip")
	e.ingest(event.Input{
		Source: grip,
		Sample: event.AbsoluteSample(event.NewRange(0, 127), 64),
	})
	e.tick(time.Millisecond)

	// Steering is idle-active so the steer axis still flushes; the grip
	// event itself reaches no executor.
	assert.NotContains(t, out.writes, sourceID(t, mgr.Current(), "nano", "grip"))
	assert.EqualValues(t, 1, e.eventsIn.Load())
}

func TestEngine_FeedbackRoutesToSteeringMapping(t *testing.T) {
	mgr := newTestManager(t, testDocument)
	e := New(Deps{ConfigManager: mgr, Output: newFakeOutput()})
	require.NoError(t, e.Initialize())

	steer := e.wiring.executors[0].Steering()
	require.NotNil(t, steer)

	e.feedback(event.FF{
		Kind:   event.FFUpload,
		Target: event.ControlID{Device: "wheel"},
		Force:  0.5,
	})
	e.feedback(event.FF{Kind: event.FFPlay, Target: event.ControlID{Device: "wheel"}})
	assert.NotZero(t, steer.Force())

	// Unknown device is ignored.
	e.feedback(event.FF{Kind: event.FFUpload, Target: event.ControlID{Device: "ghost"}})
}

func TestEngine_IdleActiveChainsRunWithoutInput(t *testing.T) {
	mgr := newTestManager(t, testDocument)
	out := newFakeOutput()
	e := New(Deps{ConfigManager: mgr, Output: out})
	require.NoError(t, e.Initialize())

	steerDest := e.wiring.executors[0].Destination()
	e.tick(time.Millisecond)

	assert.Contains(t, out.writes, steerDest, "steering advances on empty ticks")
	assert.Len(t, out.writes, 1, "passive chain stays silent without input")
}

func TestEngine_ApplySwapsWiringAndKeepsHolds(t *testing.T) {
	mgr := newTestManager(t, testDocument)
	out := newFakeOutput()
	e := New(Deps{ConfigManager: mgr, Output: out})
	require.NoError(t, e.Initialize())

	grip := sourceID(t, mgr.Current(), "nano", "grip")
	e.ingest(event.Input{
		Source: grip,
		Sample: event.AbsoluteSample(event.NewRange(0, 127), 127),
	})
	holds := e.wiring.holds

	rev, err := mgr.Load()
	require.NoError(t, err)
	require.NoError(t, e.apply(rev))

	assert.Same(t, holds, e.wiring.holds, "hold values survive reloads")
	v, ok := e.wiring.holds.NormValue(grip)
	require.True(t, ok)
	assert.InDelta(t, 1.0, v, 1e-9)
	assert.Equal(t, 2, out.Reconciles())
}

func TestEngine_ApplyOutputFailureKeepsPreviousWiring(t *testing.T) {
	mgr := newTestManager(t, testDocument)
	out := newFakeOutput()
	e := New(Deps{ConfigManager: mgr, Output: out})
	require.NoError(t, e.Initialize())

	prev := e.wiring
	out.reconcileFn = func(*config.Resolved) error {
		return apperrors.ErrDeviceUnavailable
	}

	rev, err := mgr.Load()
	require.NoError(t, err)
	require.Error(t, e.apply(rev))
	assert.Same(t, prev, e.wiring)
}

func TestEngine_ApplyInputFailureOnlyDegrades(t *testing.T) {
	mgr := newTestManager(t, testDocument)
	in := &fakeInput{reconcileFn: func(*config.Resolved) error {
		return apperrors.ErrNoMatchingDevice
	}}
	e := New(Deps{ConfigManager: mgr, Output: newFakeOutput(), InputPorts: []InputPort{in}})
	require.NoError(t, e.Initialize())

	assert.Equal(t, 1, in.reconciles)
	assert.NotNil(t, e.wiring, "degraded inputs do not block the swap")
	assert.EqualValues(t, 1, e.errorCount.Load())
}

func TestEngine_IndicatorFramesAtDivisor(t *testing.T) {
	mgr := newTestManager(t, testDocument)
	ind := &fakeIndicator{}
	e := New(Deps{ConfigManager: mgr, Output: newFakeOutput(), Indicator: ind})
	require.NoError(t, e.Initialize())

	// update_rate 1000 and a 30 Hz target push one frame batch every 33 ticks.
	require.Equal(t, 33, e.indicatorEvery)
	for i := 0; i < 66; i++ {
		e.tick(time.Millisecond)
	}
	require.Len(t, ind.frames, 2)

	frames := ind.frames[0]
	require.Len(t, frames, 2)
	assert.True(t, frames[0].HasSteering)
	assert.False(t, frames[1].HasSteering)
	assert.Equal(t, "wheel/ABS_Y", frames[1].Destination)
}

func TestEngine_Lifecycle(t *testing.T) {
	mgr := newTestManager(t, testDocument)
	out := newFakeOutput()
	e := New(Deps{ConfigManager: mgr, Output: out})
	require.NoError(t, e.Initialize())

	assert.ErrorIs(t, e.Stop(time.Second), apperrors.ErrNotStarted)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, e.Start(ctx))
	assert.ErrorIs(t, e.Start(ctx), apperrors.ErrAlreadyStarted)

	assert.Eventually(t, func() bool { return e.Ticks() > 2 }, time.Second, time.Millisecond)

	require.NoError(t, e.Stop(2*time.Second))
	assert.ErrorIs(t, e.Stop(time.Second), apperrors.ErrAlreadyStopped)

	h := e.Health()
	assert.False(t, h.Healthy)
}

func TestEngine_RunAppliesRevisionsBetweenTicks(t *testing.T) {
	mgr := newTestManager(t, testDocument)
	out := newFakeOutput()
	e := New(Deps{ConfigManager: mgr, Output: out})
	require.NoError(t, e.Initialize())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, e.Start(ctx))
	defer e.Stop(2 * time.Second)

	require.Equal(t, 1, out.Reconciles())
	_, err := mgr.Load()
	require.NoError(t, err)

	// The run loop picks the revision off the subscription channel and
	// reconciles the output layer again.
	assert.Eventually(t, func() bool {
		return out.Reconciles() == 2
	}, 2*time.Second, 5*time.Millisecond)
}

func TestEngine_QueueDeliveryThroughRunLoop(t *testing.T) {
	mgr := newTestManager(t, testDocument)
	out := newFakeOutput()
	e := New(Deps{ConfigManager: mgr, Output: out})
	require.NoError(t, e.Initialize())

	throttle := sourceID(t, mgr.Current(), "nano", "throttle")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, e.Start(ctx))
	defer e.Stop(2 * time.Second)

	e.InputQueue() <- event.Input{
		Source: throttle,
		Sample: event.AbsoluteSample(event.NewRange(0, 127), 127),
		At:     time.Now(),
	}

	assert.Eventually(t, func() bool {
		return e.eventsIn.Load() == 1
	}, time.Second, time.Millisecond)
}

func TestEngine_Meta(t *testing.T) {
	mgr := newTestManager(t, testDocument)
	e := New(Deps{ConfigManager: mgr})
	meta := e.Meta()
	assert.Equal(t, "engine", meta.Name)
	assert.Equal(t, "engine", meta.Type)
}
