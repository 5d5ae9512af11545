package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/leosat/MMVJ/component"
	"github.com/leosat/MMVJ/config"
	"github.com/leosat/MMVJ/errors"
	"github.com/leosat/MMVJ/event"
	"github.com/leosat/MMVJ/metric"
	"github.com/leosat/MMVJ/pipeline"
)

// InputPort is the engine's view of an input adapter family. Reconcile
// re-matches device regexes against the revision's declarations; the
// adapter keeps delivering events to the queue handed to it at
// construction.
type InputPort interface {
	Reconcile(rev *config.Resolved) error
}

// OutputPort is the engine's view of the virtual-controller layer. Write
// records the desired value of one control; Flush emits every changed
// control per device followed by one sync event.
type OutputPort interface {
	Reconcile(rev *config.Resolved) error
	Write(dest event.ControlID, s event.Sample)
	Flush()
}

// IndicatorFrame is one observer sample of a mapping's live output.
type IndicatorFrame struct {
	Mapping     string  `json:"mapping"`
	Destination string  `json:"destination"`
	Value       float64 `json:"value"`
	Angle       float64 `json:"angle"`
	Force       float64 `json:"force"`
	HasSteering bool    `json:"has_steering"`
}

// IndicatorSink receives frames pushed by the dispatcher at a divisor of
// the tick rate. Offer must never block.
type IndicatorSink interface {
	Offer(frames []IndicatorFrame)
}

// queue capacities; adapters drop (and count) rather than block when full.
const (
	inputQueueDepth = 4096
	ffQueueDepth    = 256
)

// indicatorMaxRate sets the indicator frame divisor: frames go out every
// update_rate/indicatorMaxRate ticks, rounded down and at least one, so
// the pushed rate sits at or slightly above this many frames per second
// (and equals the tick rate when that is below it).
const indicatorMaxRate = 30

// Deps carries the engine's collaborators. InputPorts and Output may be
// nil in tests; Indicator and MetricsRegistry are optional.
type Deps struct {
	ConfigManager   *config.Manager
	InputPorts      []InputPort
	Output          OutputPort
	Indicator       IndicatorSink
	MetricsRegistry *metric.MetricsRegistry
	Logger          *slog.Logger
}

// Engine is the dispatcher. All pipeline state is owned by its run
// goroutine; adapters and the config manager communicate with it only
// through bounded queues.
type Engine struct {
	cfgMgr     *config.Manager
	inputPorts []InputPort
	output     OutputPort
	indicator  IndicatorSink
	logger     *slog.Logger
	metrics    *engineMetrics

	inputs chan event.Input
	ffs    chan event.FF
	revCh  <-chan *config.Revision

	wiring   *wiring
	period   time.Duration
	lastTick time.Time

	indicatorEvery int
	tickCount      uint64

	shutdown  chan struct{}
	wg        sync.WaitGroup
	running   atomic.Bool
	stopped   atomic.Bool
	startTime time.Time

	ticks      atomic.Int64
	overruns   atomic.Int64
	eventsIn   atomic.Int64
	lastErr    atomic.Value // string
	errorCount atomic.Int64
}

var _ component.Component = (*Engine)(nil)

// New creates the dispatcher. The initial revision must already be loaded
// on the config manager.
func New(deps Deps) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m, err := newEngineMetrics(deps.MetricsRegistry)
	if err != nil {
		logger.Error("Failed to initialize engine metrics", "error", err)
		m = nil
	}
	e := &Engine{
		cfgMgr:     deps.ConfigManager,
		inputPorts: deps.InputPorts,
		output:     deps.Output,
		indicator:  deps.Indicator,
		logger:     logger.With("component", "engine"),
		metrics:    m,
		inputs:     make(chan event.Input, inputQueueDepth),
		ffs:        make(chan event.FF, ffQueueDepth),
		shutdown:   make(chan struct{}),
	}
	e.lastErr.Store("")
	return e
}

// InputQueue is the bounded queue input adapters deliver into.
func (e *Engine) InputQueue() chan<- event.Input { return e.inputs }

// FeedbackQueue is the bounded queue output adapters deliver
// force-feedback events into.
func (e *Engine) FeedbackQueue() chan<- event.FF { return e.ffs }

// AttachInput registers an input adapter for revision reconciliation.
// Adapters are constructed with the engine's queues, so attachment
// happens after New and before Initialize.
func (e *Engine) AttachInput(p InputPort) {
	e.inputPorts = append(e.inputPorts, p)
}

// AttachOutput sets the output layer. Must be called before Initialize.
func (e *Engine) AttachOutput(o OutputPort) {
	e.output = o
}

// AttachIndicator sets the indicator sink. Must be called before Start.
func (e *Engine) AttachIndicator(s IndicatorSink) {
	e.indicator = s
}

// Meta implements component.Component.
func (e *Engine) Meta() component.Metadata {
	return component.Metadata{
		Name:        "engine",
		Type:        "engine",
		Description: "tick-loop dispatcher routing input events through mapping pipelines",
	}
}

// Health implements component.Component.
func (e *Engine) Health() component.HealthStatus {
	lastErr, _ := e.lastErr.Load().(string)
	return component.HealthStatus{
		Healthy:    e.running.Load(),
		LastCheck:  time.Now(),
		ErrorCount: int(e.errorCount.Load()),
		LastError:  lastErr,
		Uptime:     time.Since(e.startTime),
	}
}

// Initialize wires the initial revision. It fails when no revision has
// been loaded, which is fatal at startup per the error policy.
func (e *Engine) Initialize() error {
	rev := e.cfgMgr.Current()
	if rev == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig, "engine", "Initialize", "no configuration loaded")
	}
	if err := e.apply(rev); err != nil {
		return err
	}
	e.revCh = e.cfgMgr.Subscribe()
	return nil
}

// Start launches the dispatcher loop.
func (e *Engine) Start(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return errors.ErrAlreadyStarted
	}
	e.startTime = time.Now()
	e.lastTick = e.startTime
	e.wg.Add(1)
	go e.run(ctx)
	e.logger.Info("Dispatcher started",
		"update_rate", e.wiring.rev.Config.Global.UpdateRate,
		"mappings", len(e.wiring.executors))
	return nil
}

// Stop signals the loop and waits for it, up to timeout.
func (e *Engine) Stop(timeout time.Duration) error {
	if e.stopped.Load() {
		return errors.ErrAlreadyStopped
	}
	if !e.running.Load() {
		return errors.ErrNotStarted
	}
	if !e.stopped.CompareAndSwap(false, true) {
		return errors.ErrAlreadyStopped
	}
	close(e.shutdown)

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		e.running.Store(false)
		e.logger.Info("Dispatcher stopped", "ticks", e.ticks.Load(), "overruns", e.overruns.Load())
		return nil
	case <-time.After(timeout):
		return errors.Wrap(errors.ErrShuttingDown, "engine", "Stop", "wait for dispatcher loop")
	}
}

// run is the dispatcher loop. It suspends only on the tick timer, the
// input queue, the feedback queue, and the reload channel.
func (e *Engine) run(ctx context.Context) {
	defer e.wg.Done()

	timer := time.NewTimer(e.period)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.shutdown:
			return
		case in := <-e.inputs:
			e.ingest(in)
		case ff := <-e.ffs:
			e.feedback(ff)
		case rev := <-e.revCh:
			// Swap happens strictly between ticks.
			if err := e.apply(rev); err != nil {
				e.fault(err)
				e.logger.Error("Failed to apply revision, keeping previous wiring",
					"revision", rev.ID, "error", err)
			}
		case <-timer.C:
			now := time.Now()
			dt := now.Sub(e.lastTick)
			e.lastTick = now
			e.tick(dt)

			// No catch-up: an overrun fires the next tick immediately and
			// dt widens to the real elapsed time.
			elapsed := time.Since(now)
			next := e.period - elapsed
			if next < 0 {
				next = 0
				e.overruns.Add(1)
				if e.metrics != nil {
					e.metrics.tickOverruns.Inc()
				}
			}
			timer.Reset(next)
			if e.metrics != nil {
				e.metrics.tickDuration.Observe(elapsed.Seconds())
			}
		}
	}
}

// ingest buffers one input event into every mapping whose source matches
// and records its normalized value for hold-factor references.
func (e *Engine) ingest(in event.Input) {
	e.eventsIn.Add(1)
	if e.metrics != nil {
		e.metrics.eventsIn.Inc()
	}
	e.wiring.holds.Observe(in)
	xs, ok := e.wiring.bySource[in.Source]
	if !ok {
		if e.metrics != nil {
			e.metrics.eventsUnrouted.Inc()
		}
		return
	}
	for _, x := range xs {
		x.Offer(in.Sample)
	}
}

// feedback routes a force-feedback event to the steering mapping that
// authors the target device. Validation guarantees at most one.
func (e *Engine) feedback(ff event.FF) {
	if e.metrics != nil {
		e.metrics.ffEvents.Inc()
	}
	x, ok := e.wiring.ffByDevice[ff.Target.Device]
	if !ok {
		return
	}
	x.Feedback(ff)
}

// tick is one dispatcher iteration: drain inputs, advance every pipeline
// with the real dt, drain feedback for the next tick, flush outputs.
func (e *Engine) tick(dt time.Duration) {
	e.ticks.Add(1)

	drained := 0
drainIn:
	for {
		select {
		case in := <-e.inputs:
			e.ingest(in)
			drained++
		default:
			break drainIn
		}
	}

	wrote := 0
	for _, x := range e.wiring.executors {
		out, ok := x.Tick(dt)
		if !ok {
			continue
		}
		wrote++
		if e.output != nil {
			e.output.Write(x.Destination(), out)
		}
	}
	if drained == 0 && wrote > 0 {
		e.logger.Debug("Idle tick emitted", "dt", dt, "writes", wrote)
	}

drainFF:
	for {
		select {
		case ff := <-e.ffs:
			e.feedback(ff)
		default:
			break drainFF
		}
	}

	if e.output != nil {
		e.output.Flush()
	}

	e.tickCount++
	if e.indicator != nil && e.indicatorEvery > 0 && e.tickCount%uint64(e.indicatorEvery) == 0 {
		e.indicator.Offer(e.wiring.frames())
	}
}

// apply builds the wiring for a validated revision off-line, reconciles
// the adapter layers, and swaps it in. Called from the run goroutine (or
// before Start), so the swap is atomic with respect to ticks.
func (e *Engine) apply(rev *config.Revision) error {
	var prevHolds *pipeline.Holds
	if e.wiring != nil {
		prevHolds = e.wiring.holds
	}
	w, err := buildWiring(rev, prevHolds)
	if err != nil {
		return err
	}

	if e.output != nil {
		if err := e.output.Reconcile(rev.Resolved); err != nil {
			return errors.Wrap(err, "engine", "apply", "reconcile outputs")
		}
	}
	for _, p := range e.inputPorts {
		if err := p.Reconcile(rev.Resolved); err != nil {
			// Input trouble degrades, never blocks the swap: the mapping
			// layer keeps running and the adapter retries with backoff.
			e.fault(err)
			e.logger.Warn("Input reconcile degraded", "error", err)
		}
	}

	e.wiring = w
	rate := rev.Config.Global.UpdateRate
	e.period = time.Second / time.Duration(rate)
	e.indicatorEvery = rate / indicatorMaxRate
	if e.indicatorEvery < 1 {
		e.indicatorEvery = 1
	}
	if e.metrics != nil {
		e.metrics.activeMappings.Set(float64(len(w.executors)))
		e.metrics.reloads.Inc()
	}
	e.logger.Info("Revision applied",
		"revision", rev.ID,
		"mappings", len(w.executors),
		"update_rate", rate)
	return nil
}

func (e *Engine) fault(err error) {
	e.errorCount.Add(1)
	e.lastErr.Store(err.Error())
}

// Ticks returns the number of completed ticks, for tests and health.
func (e *Engine) Ticks() int64 { return e.ticks.Load() }

// Overruns returns the number of ticks that missed their budget.
func (e *Engine) Overruns() int64 { return e.overruns.Load() }
