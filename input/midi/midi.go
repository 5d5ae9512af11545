// Package midi provides the MIDI input adapter: it matches system MIDI
// ports against configured device regexes, subscribes to every match, and
// normalizes channel messages into engine input events.
package midi

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // register MIDI driver

	"github.com/leosat/MMVJ/component"
	"github.com/leosat/MMVJ/config"
	"github.com/leosat/MMVJ/errors"
	"github.com/leosat/MMVJ/event"
	"github.com/leosat/MMVJ/metric"
	"github.com/leosat/MMVJ/pkg/retry"
)

// PollInterval is the hot-plug scan period. The MIDI driver has no
// notification mechanism, so the adapter polls the port list.
const PollInterval = time.Second

// Wire ranges of the raw MIDI value spaces. Samples keep their original
// units; downstream ranges normalize them.
var (
	dataRange  = event.NewRange(0, 127)
	pitchRange = event.NewRangeAt(-8192, 8191, 0)
)

// Deps carries the adapter's collaborators. Queue is required.
type Deps struct {
	Queue           chan<- event.Input
	MetricsRegistry *metric.MetricsRegistry
	Logger          *slog.Logger
}

// Adapter owns one subscription per matched MIDI input port. Each
// subscription delivers into the dispatcher queue without blocking;
// events that do not fit are dropped and counted.
type Adapter struct {
	queue   chan<- event.Input
	logger  *slog.Logger
	metrics *adapterMetrics

	// reopen paces scan retries after a failed port attach.
	reopen retry.Config
	ports  func() map[string]drivers.In
	attach func(p drivers.In, recv func(gomidi.Message)) (func(), error)

	mu       sync.Mutex
	declared map[string]config.ResolvedInput
	open     map[string]*portHandle

	shutdown  chan struct{}
	wg        sync.WaitGroup
	running   atomic.Bool
	stopped   atomic.Bool
	startTime time.Time

	eventsOut  atomic.Int64
	drops      atomic.Int64
	errorCount atomic.Int64
	lastErr    atomic.Value // string
}

// portHandle is one open subscription on a system MIDI port.
type portHandle struct {
	portName string
	device   string
	stop     func()
}

var _ component.Component = (*Adapter)(nil)

// New creates the MIDI adapter. Events are delivered into queue.
func New(deps Deps) *Adapter {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	a := &Adapter{
		queue:    deps.Queue,
		logger:   logger.With("component", "midi-input"),
		metrics:  newAdapterMetrics(deps.MetricsRegistry),
		reopen:   retry.Reopen(),
		ports:    livePorts,
		attach:   listenTo,
		declared: make(map[string]config.ResolvedInput),
		open:     make(map[string]*portHandle),
		shutdown: make(chan struct{}),
	}
	a.lastErr.Store("")
	return a
}

// livePorts snapshots the system's MIDI input ports keyed by name.
func livePorts() map[string]drivers.In {
	ports := gomidi.GetInPorts()
	live := make(map[string]drivers.In, len(ports))
	for _, p := range ports {
		live[p.String()] = p
	}
	return live
}

// listenTo subscribes to one port, forwarding every message to recv.
func listenTo(p drivers.In, recv func(gomidi.Message)) (func(), error) {
	return gomidi.ListenTo(p, func(msg gomidi.Message, _ int32) {
		recv(msg)
	})
}

// Meta implements component.Component.
func (a *Adapter) Meta() component.Metadata {
	return component.Metadata{
		Name:        "midi-input",
		Type:        "input",
		Description: "MIDI port adapter normalizing channel messages into input events",
	}
}

// Health implements component.Component.
func (a *Adapter) Health() component.HealthStatus {
	lastErr, _ := a.lastErr.Load().(string)
	return component.HealthStatus{
		Healthy:    a.running.Load(),
		LastCheck:  time.Now(),
		ErrorCount: int(a.errorCount.Load()),
		LastError:  lastErr,
		Uptime:     time.Since(a.startTime),
	}
}

// Initialize implements component.Component.
func (a *Adapter) Initialize() error {
	if a.queue == nil {
		return errors.WrapInvalid(fmt.Errorf("nil event queue"),
			"midi-input", "Initialize", "validate dependencies")
	}
	return nil
}

// Start launches the hot-plug scan loop.
func (a *Adapter) Start(ctx context.Context) error {
	if !a.running.CompareAndSwap(false, true) {
		return errors.ErrAlreadyStarted
	}
	a.startTime = time.Now()
	a.wg.Add(1)
	go a.scanLoop(ctx)
	a.logger.Info("MIDI adapter started", "poll_interval", PollInterval)
	return nil
}

// Stop closes all port subscriptions and halts the scan loop.
func (a *Adapter) Stop(timeout time.Duration) error {
	if !a.running.Load() {
		return errors.ErrNotStarted
	}
	if !a.stopped.CompareAndSwap(false, true) {
		return errors.ErrAlreadyStopped
	}
	close(a.shutdown)

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		return errors.Wrap(errors.ErrShuttingDown, "midi-input", "Stop", "wait for scan loop")
	}

	a.mu.Lock()
	for name, h := range a.open {
		h.stop()
		delete(a.open, name)
	}
	a.mu.Unlock()
	a.running.Store(false)
	a.logger.Info("MIDI adapter stopped", "events", a.eventsOut.Load(), "drops", a.drops.Load())
	return nil
}

// Reconcile replaces the declared device set with the revision's MIDI
// declarations. Subscriptions whose device vanished or whose regex no
// longer matches are closed; new matches attach on the next scan.
func (a *Adapter) Reconcile(rev *config.Resolved) error {
	declared := make(map[string]config.ResolvedInput)
	for name, in := range rev.Inputs {
		if in.Family == config.FamilyMIDI {
			declared[name] = in
		}
	}

	a.mu.Lock()
	a.declared = declared
	for portName, h := range a.open {
		decl, ok := declared[h.device]
		if ok && decl.Regex.MatchString(portName) {
			continue
		}
		h.stop()
		delete(a.open, portName)
		a.logger.Info("Closed MIDI port", "port", portName, "device", h.device)
	}
	a.mu.Unlock()

	return a.scan()
}

func (a *Adapter) scanLoop(ctx context.Context) {
	defer a.wg.Done()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-a.shutdown:
			cancel()
		case <-ctx.Done():
		}
	}()

	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	for {
		// A failed attach retries on the reopen backoff schedule
		// (100ms doubling to 5s); a clean pass falls back to the flat
		// hot-plug poll.
		_ = retry.Do(ctx, a.reopen, a.scan)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// scan reconciles open subscriptions against the live port list: vanished
// ports are dropped, unmatched ports are tried against every declaration.
// Returns the last attach error so the scan loop can back off.
func (a *Adapter) scan() error {
	live := a.ports()

	a.mu.Lock()
	defer a.mu.Unlock()

	for portName, h := range a.open {
		if _, ok := live[portName]; ok {
			continue
		}
		h.stop()
		delete(a.open, portName)
		a.errorCount.Add(1)
		a.lastErr.Store("port disappeared: " + portName)
		if a.metrics != nil {
			a.metrics.portErrors.Inc()
		}
		a.logger.Warn("MIDI port disappeared", "port", portName, "device", h.device)
	}

	var attachErr error
	for portName, p := range live {
		if _, ok := a.open[portName]; ok {
			continue
		}
		for name, decl := range a.declared {
			if !decl.Regex.MatchString(portName) {
				continue
			}
			if err := a.openPort(p, portName, decl); err != nil {
				attachErr = err
				a.errorCount.Add(1)
				a.lastErr.Store(err.Error())
				if a.metrics != nil {
					a.metrics.portErrors.Inc()
				}
				a.logger.Warn("Failed to open MIDI port", "port", portName, "device", name, "error", err)
				continue
			}
			a.logger.Info("Opened MIDI port", "port", portName, "device", name)
			break
		}
	}

	if a.metrics != nil {
		a.metrics.openPorts.Set(float64(len(a.open)))
	}
	return attachErr
}

// openPort subscribes to one port and attaches it to a logical device.
// Caller holds the mutex.
func (a *Adapter) openPort(p drivers.In, portName string, decl config.ResolvedInput) error {
	device := decl.Name
	controls := decl.Controls
	stop, err := a.attach(p, func(msg gomidi.Message) {
		a.deliver(device, controls, msg)
	})
	if err != nil {
		return errors.WrapTransient(err, "midi-input", "openPort", "listen to "+portName)
	}
	a.open[portName] = &portHandle{portName: portName, device: device, stop: stop}
	return nil
}

// deliver translates one channel message and pushes matching controls to
// the dispatcher. Runs on the driver's callback goroutine.
func (a *Adapter) deliver(device string, controls map[string]event.Key, msg gomidi.Message) {
	var ch, b1, b2 uint8
	var rel int16
	var abs uint16

	var kind event.KeyKind
	var code int
	var sample event.Sample

	switch {
	case msg.GetNoteOn(&ch, &b1, &b2):
		kind, code = event.KindNote, int(b1)
		// Velocity zero is a note-off in disguise.
		sample = event.AbsoluteSample(dataRange, float64(b2))
	case msg.GetNoteOff(&ch, &b1, &b2):
		kind, code = event.KindNote, int(b1)
		sample = event.AbsoluteSample(dataRange, 0)
	case msg.GetControlChange(&ch, &b1, &b2):
		kind, code = event.KindControlChange, int(b1)
		sample = event.AbsoluteSample(dataRange, float64(b2))
	case msg.GetPitchBend(&ch, &rel, &abs):
		kind = event.KindPitchWheel
		sample = event.AbsoluteSample(pitchRange, float64(rel))
	case msg.GetAfterTouch(&ch, &b1):
		kind = event.KindChannelPressure
		sample = event.AbsoluteSample(dataRange, float64(b1))
	case msg.GetPolyAfterTouch(&ch, &b1, &b2):
		kind, code = event.KindPolyPressure, int(b1)
		sample = event.AbsoluteSample(dataRange, float64(b2))
	default:
		return
	}

	for _, key := range controls {
		if key.Kind != kind {
			continue
		}
		if keyHasCode(kind) && key.Code != code {
			continue
		}
		if key.Channel >= 0 && key.Channel != int(ch) {
			continue
		}
		a.push(event.Input{
			Source: event.ControlID{Device: device, Control: key},
			Sample: sample,
			At:     time.Now(),
		})
	}
}

func keyHasCode(kind event.KeyKind) bool {
	return kind == event.KindNote || kind == event.KindControlChange || kind == event.KindPolyPressure
}

func (a *Adapter) push(in event.Input) {
	select {
	case a.queue <- in:
		a.eventsOut.Add(1)
		if a.metrics != nil {
			a.metrics.events.Inc()
		}
	default:
		a.drops.Add(1)
		if a.metrics != nil {
			a.metrics.drops.Inc()
		}
	}
}

// Drops returns the number of events discarded on a full queue.
func (a *Adapter) Drops() int64 { return a.drops.Load() }

// OpenPorts returns the names of the currently subscribed ports.
func (a *Adapter) OpenPorts() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	names := make([]string, 0, len(a.open))
	for name := range a.open {
		names = append(names, name)
	}
	return names
}

// EnumeratePorts lists the system's MIDI input port names.
func EnumeratePorts() []string {
	ports := gomidi.GetInPorts()
	names := make([]string, 0, len(ports))
	for _, p := range ports {
		names = append(names, p.String())
	}
	return names
}
