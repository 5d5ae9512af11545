// Package pointer provides the evdev input adapter: it matches
// /dev/input devices against configured name regexes, reads their event
// streams, and normalizes relative motion, absolute axes, and button
// edges into engine input events.
package pointer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/holoplot/go-evdev"

	"github.com/leosat/MMVJ/component"
	"github.com/leosat/MMVJ/config"
	"github.com/leosat/MMVJ/errors"
	"github.com/leosat/MMVJ/event"
	"github.com/leosat/MMVJ/metric"
	"github.com/leosat/MMVJ/pkg/retry"
)

// PollInterval is the hot-plug scan period over /dev/input.
const PollInterval = time.Second

// Deps carries the adapter's collaborators. Queue is required.
type Deps struct {
	Queue           chan<- event.Input
	MetricsRegistry *metric.MetricsRegistry
	Logger          *slog.Logger
}

// Adapter owns one reader goroutine per matched evdev device. Readers
// deliver into the dispatcher queue without blocking; events that do not
// fit are dropped and counted. A read error drops the handle and the
// scan loop reopens the device when it reappears.
type Adapter struct {
	queue   chan<- event.Input
	logger  *slog.Logger
	metrics *adapterMetrics

	// reopen paces scan retries after a failed device open.
	reopen      retry.Config
	listDevices func() ([]evdev.InputPath, error)

	mu       sync.Mutex
	declared map[string]config.ResolvedInput
	open     map[string]*deviceHandle

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

// deviceHandle is one open evdev device attached to a logical device.
type deviceHandle struct {
	path     string
	sysName  string
	device   string
	dev      *evdev.InputDevice
	controls map[string]event.Key
	absInfos map[evdev.EvCode]evdev.AbsInfo
}

var _ component.Component = (*Adapter)(nil)

// New creates the pointer adapter. Events are delivered into queue.
func New(deps Deps) *Adapter {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	a := &Adapter{
		queue:       deps.Queue,
		logger:      logger.With("component", "pointer-input"),
		metrics:     newAdapterMetrics(deps.MetricsRegistry),
		reopen:      retry.Reopen(),
		listDevices: evdev.ListDevicePaths,
		declared:    make(map[string]config.ResolvedInput),
		open:        make(map[string]*deviceHandle),
		shutdown:    make(chan struct{}),
	}
	a.lastErr.Store("")
	return a
}

// Meta implements component.Component.
func (a *Adapter) Meta() component.Metadata {
	return component.Metadata{
		Name:        "pointer-input",
		Type:        "input",
		Description: "evdev adapter normalizing pointer motion and buttons into input events",
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
			"pointer-input", "Initialize", "validate dependencies")
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
	a.logger.Info("Pointer adapter started", "poll_interval", PollInterval)
	return nil
}

// Stop closes all devices and waits for the reader goroutines.
func (a *Adapter) Stop(timeout time.Duration) error {
	if !a.running.Load() {
		return errors.ErrNotStarted
	}
	if !a.stopped.CompareAndSwap(false, true) {
		return errors.ErrAlreadyStopped
	}
	close(a.shutdown)

	// Closing the fds unblocks the reader goroutines.
	a.mu.Lock()
	for path, h := range a.open {
		_ = h.dev.Close()
		delete(a.open, path)
	}
	a.mu.Unlock()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		return errors.Wrap(errors.ErrShuttingDown, "pointer-input", "Stop", "wait for readers")
	}
	a.running.Store(false)
	a.logger.Info("Pointer adapter stopped", "events", a.eventsOut.Load(), "drops", a.drops.Load())
	return nil
}

// Reconcile replaces the declared device set with the revision's pointer
// declarations. Handles whose device vanished or whose regex no longer
// matches are closed; new matches attach on the next scan.
func (a *Adapter) Reconcile(rev *config.Resolved) error {
	declared := make(map[string]config.ResolvedInput)
	for name, in := range rev.Inputs {
		if in.Family == config.FamilyPointer {
			declared[name] = in
		}
	}

	a.mu.Lock()
	a.declared = declared
	for path, h := range a.open {
		decl, ok := declared[h.device]
		if ok && decl.Regex.MatchString(h.sysName) {
			h.controls = decl.Controls
			continue
		}
		_ = h.dev.Close()
		delete(a.open, path)
		a.logger.Info("Closed input device", "path", path, "device", h.device)
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
		// A failed open retries on the reopen backoff schedule (100ms
		// doubling to 5s); a clean pass falls back to the flat hot-plug
		// poll.
		_ = retry.Do(ctx, a.reopen, a.scan)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// scan opens every unopened /dev/input device whose reported name matches
// a declaration. Returns the last open error so the scan loop can back
// off.
func (a *Adapter) scan() error {
	paths, err := a.listDevices()
	if err != nil {
		a.errorCount.Add(1)
		a.lastErr.Store(err.Error())
		if a.metrics != nil {
			a.metrics.deviceErrors.Inc()
		}
		a.logger.Warn("Failed to list input devices", "error", err)
		return errors.WrapTransient(err, "pointer-input", "scan", "list /dev/input")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	var openErr error
	for _, p := range paths {
		if _, ok := a.open[p.Path]; ok {
			continue
		}
		for name, decl := range a.declared {
			if !decl.Regex.MatchString(p.Name) {
				continue
			}
			if err := a.openDevice(p.Path, p.Name, decl); err != nil {
				openErr = err
				a.errorCount.Add(1)
				a.lastErr.Store(err.Error())
				if a.metrics != nil {
					a.metrics.deviceErrors.Inc()
				}
				a.logger.Warn("Failed to open input device",
					"path", p.Path, "device", name, "error", err)
				continue
			}
			a.logger.Info("Opened input device", "path", p.Path, "name", p.Name, "device", name)
			break
		}
	}

	if a.metrics != nil {
		a.metrics.openDevices.Set(float64(len(a.open)))
	}
	return openErr
}

// openDevice opens one evdev node and starts its reader. Caller holds the
// mutex.
func (a *Adapter) openDevice(path, sysName string, decl config.ResolvedInput) error {
	dev, err := evdev.Open(path)
	if err != nil {
		return errors.WrapTransient(err, "pointer-input", "openDevice", "open "+path)
	}

	absInfos, err := dev.AbsInfos()
	if err != nil {
		// Pure relative devices have no absolute axes.
		absInfos = nil
	}

	h := &deviceHandle{
		path:     path,
		sysName:  sysName,
		device:   decl.Name,
		dev:      dev,
		controls: decl.Controls,
		absInfos: absInfos,
	}
	a.open[path] = h

	a.wg.Add(1)
	go a.readLoop(h)
	return nil
}

// readLoop blocks on the device fd until it is closed or the device goes
// away. The handle is dropped on error; the scan loop reopens on return.
func (a *Adapter) readLoop(h *deviceHandle) {
	defer a.wg.Done()

	for {
		ev, err := h.dev.ReadOne()
		if err != nil {
			a.mu.Lock()
			if cur, ok := a.open[h.path]; ok && cur == h {
				delete(a.open, h.path)
				_ = h.dev.Close()
			}
			a.mu.Unlock()

			select {
			case <-a.shutdown:
			default:
				a.errorCount.Add(1)
				a.lastErr.Store(err.Error())
				if a.metrics != nil {
					a.metrics.deviceErrors.Inc()
				}
				a.logger.Warn("Input device lost", "path", h.path, "device", h.device, "error", err)
			}
			return
		}
		a.translate(h, ev)
	}
}

// translate converts one evdev event into input events for every declared
// control it matches.
func (a *Adapter) translate(h *deviceHandle, ev *evdev.InputEvent) {
	var kinds [2]event.KeyKind
	n := 0
	var sample event.Sample

	switch ev.Type {
	case evdev.EV_REL:
		kinds[0], n = event.KindRelAxis, 1
		if ev.Code == evdev.REL_WHEEL || ev.Code == evdev.REL_HWHEEL {
			kinds[1] = event.KindWheel
			n = 2
		}
		sample = event.RelativeSample(event.Symmetric(), float64(ev.Value))
	case evdev.EV_ABS:
		kinds[0], n = event.KindAbsAxis, 1
		sample = event.AbsoluteSample(a.absRange(h, ev.Code), float64(ev.Value))
	case evdev.EV_KEY:
		// Value 2 is key autorepeat, which is not an edge.
		if ev.Value == 2 {
			return
		}
		kinds[0], n = event.KindButton, 1
		sample = event.ButtonEdge(ev.Value != 0)
	default:
		return
	}

	for _, key := range h.controls {
		match := false
		for i := 0; i < n; i++ {
			if key.Kind == kinds[i] && key.Code == int(ev.Code) {
				match = true
				break
			}
		}
		if !match {
			continue
		}
		a.push(event.Input{
			Source: event.ControlID{Device: h.device, Control: key},
			Sample: sample,
			At:     time.Now(),
		})
	}
}

// absRange resolves an absolute axis's reported span, falling back to the
// symmetric unit range when the device reports none.
func (a *Adapter) absRange(h *deviceHandle, code evdev.EvCode) event.Range {
	if info, ok := h.absInfos[code]; ok && info.Maximum > info.Minimum {
		return event.NewRange(float64(info.Minimum), float64(info.Maximum))
	}
	return event.Symmetric()
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

// OpenDevices returns the paths of the currently open devices.
func (a *Adapter) OpenDevices() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	paths := make([]string, 0, len(a.open))
	for path := range a.open {
		paths = append(paths, path)
	}
	return paths
}

// EnumerateDevices lists the system's input devices as path/name pairs.
func EnumerateDevices() ([]evdev.InputPath, error) {
	paths, err := evdev.ListDevicePaths()
	if err != nil {
		return nil, errors.WrapTransient(err, "pointer-input", "EnumerateDevices", "list /dev/input")
	}
	return paths, nil
}
