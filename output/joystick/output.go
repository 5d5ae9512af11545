// Package joystick provides the uinput output adapter: it materializes
// declared virtual joysticks as kernel input devices, batches axis and
// button writes into per-tick reports, and feeds force-feedback requests
// from applications back into the engine. Persistent joysticks survive
// configuration reloads with their kernel identity intact so applications
// keep their device handles open.
package joystick

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/leosat/MMVJ/component"
	"github.com/leosat/MMVJ/config"
	"github.com/leosat/MMVJ/errors"
	"github.com/leosat/MMVJ/event"
	"github.com/leosat/MMVJ/metric"
)

// Deps carries the output adapter's collaborators. FeedbackQueue is
// required; Path defaults to the kernel uinput node.
type Deps struct {
	FeedbackQueue   chan<- event.FF
	MetricsRegistry *metric.MetricsRegistry
	Logger          *slog.Logger
	Path            string
}

// Output owns the set of live virtual joysticks. The dispatcher calls
// Reconcile, Write, and Flush from its tick goroutine; each device's
// force-feedback reader runs on its own goroutine and delivers into the
// feedback queue.
type Output struct {
	path     string
	ffQueue  chan<- event.FF
	logger   *slog.Logger
	metrics  *outputMetrics
	openConn func(path string, spec deviceSpec) (conn, error)

	mu      sync.Mutex
	devices map[string]*device
	parked  map[config.OutputIdentity]*device

	running   atomic.Bool
	stopped   atomic.Bool
	startTime time.Time

	errorCount atomic.Int64
	lastErr    atomic.Value // string
	ffDrops    atomic.Int64
}

var _ component.Component = (*Output)(nil)

// New creates the joystick output adapter. Virtual devices are created on
// the first Reconcile.
func New(deps Deps) *Output {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	path := deps.Path
	if path == "" {
		path = DefaultUinputPath
	}
	o := &Output{
		path:    path,
		ffQueue: deps.FeedbackQueue,
		logger:  logger.With("component", "joystick-output"),
		metrics: newOutputMetrics(deps.MetricsRegistry),
		openConn: func(path string, spec deviceSpec) (conn, error) {
			return createUinputDevice(path, spec)
		},
		devices: make(map[string]*device),
		parked:  make(map[config.OutputIdentity]*device),
	}
	o.lastErr.Store("")
	return o
}

// Meta implements component.Component.
func (o *Output) Meta() component.Metadata {
	return component.Metadata{
		Name:        "joystick-output",
		Type:        "output",
		Description: "uinput adapter materializing virtual joysticks with force feedback",
	}
}

// Health implements component.Component.
func (o *Output) Health() component.HealthStatus {
	lastErr, _ := o.lastErr.Load().(string)
	return component.HealthStatus{
		Healthy:    o.running.Load(),
		LastCheck:  time.Now(),
		ErrorCount: int(o.errorCount.Load()),
		LastError:  lastErr,
		Uptime:     time.Since(o.startTime),
	}
}

// Initialize implements component.Component.
func (o *Output) Initialize() error {
	if o.ffQueue == nil {
		return errors.WrapInvalid(fmt.Errorf("nil feedback queue"),
			"joystick-output", "Initialize", "validate dependencies")
	}
	return nil
}

// Start implements component.Component.
func (o *Output) Start(ctx context.Context) error {
	if !o.running.CompareAndSwap(false, true) {
		return errors.ErrAlreadyStarted
	}
	o.startTime = time.Now()
	o.logger.Info("Joystick output started", "uinput_path", o.path)
	return nil
}

// Stop destroys every live and parked virtual device.
func (o *Output) Stop(timeout time.Duration) error {
	if !o.running.Load() {
		return errors.ErrNotStarted
	}
	if !o.stopped.CompareAndSwap(false, true) {
		return errors.ErrAlreadyStopped
	}

	o.mu.Lock()
	for name, d := range o.devices {
		d.destroy()
		delete(o.devices, name)
	}
	for id, d := range o.parked {
		d.destroy()
		delete(o.parked, id)
	}
	o.mu.Unlock()

	o.running.Store(false)
	o.logger.Info("Joystick output stopped", "ff_drops", o.ffDrops.Load())
	return nil
}

// Reconcile aligns the live device set with the revision's declarations.
// A declared joystick reuses its existing handle when the kernel identity
// and capability surface are unchanged; otherwise the old handle is torn
// down and a fresh one created. Undeclared persistent joysticks are
// parked with neutral controls so applications keep their fds; anything
// else is destroyed. An error creating any declared device aborts the
// reconcile so the engine keeps the previous revision.
func (o *Output) Reconcile(rev *config.Resolved) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	declared := make(map[string]config.ResolvedOutput)
	for name, out := range rev.Outputs {
		if out.Device.IsEnabled() {
			declared[name] = out
		}
	}

	// Tear down or park devices that no longer match their declaration.
	for name, d := range o.devices {
		out, ok := declared[name]
		if ok && d.identity == out.Identity() && specsEqual(d.spec, o.specOf(out)) {
			continue
		}
		delete(o.devices, name)
		o.retire(d)
	}

	names := make([]string, 0, len(declared))
	for name := range declared {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		out := declared[name]
		if d, ok := o.devices[name]; ok {
			d.retarget(out)
			continue
		}
		spec := o.specOf(out)
		if d, ok := o.parked[out.Identity()]; ok {
			delete(o.parked, out.Identity())
			if specsEqual(d.spec, spec) {
				d.retarget(out)
				o.devices[name] = d
				o.logger.Info("Reattached persistent joystick", "joystick", name, "device_name", out.Device.Name)
				continue
			}
			// The kernel device cannot grow new controls; replace it.
			d.destroy()
			o.logger.Info("Replacing persistent joystick with changed controls", "joystick", name)
		}
		c, err := o.openConn(o.path, spec)
		if err != nil {
			o.errorCount.Add(1)
			o.lastErr.Store(err.Error())
			if o.metrics != nil {
				o.metrics.deviceErrors.Inc()
			}
			return errors.Wrap(err, "joystick-output", "Reconcile", "create "+name)
		}
		o.devices[name] = newDevice(out, spec, c, o.ffQueue, &o.ffDrops, o.metrics, o.logger)
		o.logger.Info("Created virtual joystick",
			"joystick", name, "device_name", out.Device.Name,
			"axes", len(spec.Axes), "buttons", len(spec.Buttons),
			"ff_effects", spec.FFEffectsMax)
	}

	if o.metrics != nil {
		o.metrics.activeDevices.Set(float64(len(o.devices)))
	}
	return nil
}

// retire parks a persistent device after neutralizing its controls, and
// destroys everything else. Caller holds the mutex.
func (o *Output) retire(d *device) {
	if d.persistent {
		if err := d.neutralize(); err != nil {
			o.logger.Warn("Failed to neutralize parked joystick", "joystick", d.logical, "error", err)
		}
		o.parked[d.identity] = d
		o.logger.Info("Parked persistent joystick", "joystick", d.logical, "device_name", d.identity.Name)
		return
	}
	d.destroy()
	o.logger.Info("Destroyed virtual joystick", "joystick", d.logical)
}

// specOf derives the kernel capability spec for a declaration.
func (o *Output) specOf(out config.ResolvedOutput) deviceSpec {
	return specFor(
		out.Device.Name,
		out.Device.Properties.VendorID,
		out.Device.Properties.ProductID,
		out.Device.Properties.Version,
		out.Controls,
		out.Device.FF.MaxEffects,
	)
}

// specsEqual compares two kernel capability surfaces. Axis and button
// order is irrelevant.
func specsEqual(a, b deviceSpec) bool {
	if a.Name != b.Name || a.Vendor != b.Vendor || a.Product != b.Product ||
		a.Version != b.Version || a.FFEffectsMax != b.FFEffectsMax {
		return false
	}
	return codeSetEqual(a.Axes, b.Axes) && codeSetEqual(a.Buttons, b.Buttons)
}

func codeSetEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[int]bool, len(a))
	for _, c := range a {
		set[c] = true
	}
	for _, c := range b {
		if !set[c] {
			return false
		}
	}
	return true
}

// Write records the desired value of one virtual control.
func (o *Output) Write(dest event.ControlID, s event.Sample) {
	o.mu.Lock()
	defer o.mu.Unlock()
	d, ok := o.devices[dest.Device]
	if !ok {
		return
	}
	d.write(dest.Control, s)
}

// Flush emits every device's changed controls followed by a sync report.
func (o *Output) Flush() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for name, d := range o.devices {
		if err := d.flush(); err != nil {
			o.errorCount.Add(1)
			o.lastErr.Store(err.Error())
			if o.metrics != nil {
				o.metrics.deviceErrors.Inc()
			}
			o.logger.Warn("Failed to flush virtual joystick", "joystick", name, "error", err)
		}
	}
}

// FFDrops returns the number of force-feedback events discarded on a full
// feedback queue.
func (o *Output) FFDrops() int64 { return o.ffDrops.Load() }

// Devices returns the logical names of the live virtual joysticks.
func (o *Output) Devices() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	names := make([]string, 0, len(o.devices))
	for name := range o.devices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
