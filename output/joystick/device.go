package joystick

import (
	"log/slog"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/leosat/MMVJ/config"
	"github.com/leosat/MMVJ/event"
)

// device is one live virtual joystick. The dispatcher goroutine owns
// write/flush; the ffLoop goroutine owns the kernel's force-feedback
// handshake and publishes FF events into the engine queue.
type device struct {
	logical    string
	identity   config.OutputIdentity
	spec       deviceSpec
	persistent bool
	controls   map[string]event.Key
	conn     conn
	logger   *slog.Logger
	metrics  *outputMetrics

	ffQueue chan<- event.FF
	ffDrops *atomic.Int64

	// gain is the kernel-requested FF gain in [0, 0xFFFF]. Only the
	// ffLoop goroutine touches it.
	gain uint32

	desired map[event.Key]int32
	current map[event.Key]int32

	wg sync.WaitGroup
}

// newDevice wraps an open conn and starts the force-feedback reader when
// the device registered any effects.
func newDevice(out config.ResolvedOutput, spec deviceSpec, c conn, ffQueue chan<- event.FF, ffDrops *atomic.Int64, metrics *outputMetrics, logger *slog.Logger) *device {
	d := &device{
		logical:    out.Name,
		identity:   out.Identity(),
		spec:       spec,
		persistent: out.Persistent,
		controls:   out.Controls,
		conn:     c,
		logger:   logger.With("joystick", out.Name),
		metrics:  metrics,
		ffQueue:  ffQueue,
		ffDrops:  ffDrops,
		gain:     uint32(out.Device.FF.Gain),
		desired:  make(map[event.Key]int32),
		current:  make(map[event.Key]int32),
	}
	if out.Device.FF.MaxEffects > 0 {
		d.wg.Add(1)
		go d.ffLoop()
	}
	return d
}

// retarget rebinds a parked handle to a new logical declaration with the
// same kernel identity and control set.
func (d *device) retarget(out config.ResolvedOutput) {
	d.logical = out.Name
	d.persistent = out.Persistent
	d.controls = out.Controls
}

// write records the desired wire value of one control. Axis samples
// arrive already mapped into the signed 16-bit span; buttons arrive as
// unit values.
func (d *device) write(key event.Key, s event.Sample) {
	switch key.Kind {
	case event.KindAbsAxis:
		d.desired[key] = int32(math.Round(s.Range.Clamp(s.Value)))
	case event.KindButton:
		v := int32(0)
		if s.Value >= 0.5 {
			v = 1
		}
		d.desired[key] = v
	}
}

// flush emits every control whose desired value differs from what the
// kernel last saw, followed by one SYN_REPORT when anything changed.
// Emission order is deterministic so a replayed stream is comparable.
func (d *device) flush() error {
	keys := make([]event.Key, 0, len(d.desired))
	for key, v := range d.desired {
		if d.current[key] != v {
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		return nil
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Kind != keys[j].Kind {
			return keys[i].Kind < keys[j].Kind
		}
		return keys[i].Code < keys[j].Code
	})

	for _, key := range keys {
		typ := uint16(evAbs)
		if key.Kind == event.KindButton {
			typ = evKey
		}
		v := d.desired[key]
		if err := d.conn.writeEvent(typ, uint16(key.Code), v); err != nil {
			return err
		}
		d.current[key] = v
		if d.metrics != nil {
			d.metrics.eventsWritten.Inc()
		}
	}
	return d.conn.writeEvent(evSyn, synReport, 0)
}

// neutralize drives every control back to its resting value. Used when a
// persistent handle is parked so a stale deflection does not survive into
// the next revision.
func (d *device) neutralize() error {
	for _, key := range d.controls {
		d.desired[key] = 0
	}
	return d.flush()
}

// destroy tears down the kernel device. Closing the fd unblocks the
// ffLoop reader.
func (d *device) destroy() {
	if err := d.conn.close(); err != nil {
		d.logger.Warn("Failed to close virtual joystick", "error", err)
	}
	d.wg.Wait()
}

// ffLoop services the kernel's force-feedback requests until the fd is
// closed.
func (d *device) ffLoop() {
	defer d.wg.Done()
	for {
		ev, err := d.conn.readEvent()
		if err != nil {
			return
		}
		d.handleFF(ev)
	}
}

// handleFF translates one kernel-side event into engine FF events. Upload
// and erase require the begin/end ioctl handshake before the requesting
// application unblocks.
func (d *device) handleFF(ev inputEvent) {
	switch ev.Type {
	case evUinput:
		switch ev.Code {
		case uiFFUpload:
			d.serviceUpload(uint32(ev.Value))
		case uiFFErase:
			d.serviceErase(uint32(ev.Value))
		}
	case evFF:
		if ev.Code == ffGain {
			g := ev.Value
			if g < 0 {
				g = 0
			}
			if g > 0xFFFF {
				g = 0xFFFF
			}
			d.gain = uint32(g)
			d.logger.Debug("FF gain set", "gain", d.gain)
			return
		}
		kind := event.FFStop
		if ev.Value > 0 {
			kind = event.FFPlay
		}
		d.logger.Debug("FF playback", "effect_id", int(ev.Code), "playing", ev.Value > 0)
		d.pushFF(event.FF{Kind: kind, EffectID: int(ev.Code)})
	}
}

func (d *device) serviceUpload(requestID uint32) {
	up := uinputFFUpload{RequestID: requestID}
	if err := d.conn.beginFFUpload(&up); err != nil {
		d.logger.Warn("FF upload handshake failed", "error", err)
		return
	}
	if up.Effect.Type == ffConstant {
		up.Retval = 0
	} else {
		// Only constant force is advertised; refuse anything else.
		up.Retval = -1
	}
	if err := d.conn.endFFUpload(&up); err != nil {
		d.logger.Warn("FF upload handshake failed", "error", err)
		return
	}
	if up.Effect.Type != ffConstant {
		return
	}
	force := float64(up.Effect.constantLevel()) / axisMax
	force *= float64(d.gain) / 0xFFFF
	d.logger.Debug("FF constant force uploaded", "effect_id", int(up.Effect.ID), "force", force)
	d.pushFF(event.FF{
		Kind:     event.FFUpload,
		Force:    force,
		EffectID: int(up.Effect.ID),
	})
}

func (d *device) serviceErase(requestID uint32) {
	er := uinputFFErase{RequestID: requestID}
	if err := d.conn.beginFFErase(&er); err != nil {
		d.logger.Warn("FF erase handshake failed", "error", err)
		return
	}
	er.Retval = 0
	if err := d.conn.endFFErase(&er); err != nil {
		d.logger.Warn("FF erase handshake failed", "error", err)
		return
	}
	d.logger.Debug("FF effect erased", "effect_id", int(er.EffectID))
	d.pushFF(event.FF{Kind: event.FFCancel, EffectID: int(er.EffectID)})
}

// pushFF delivers without blocking; a full queue drops the event so the
// kernel handshake never stalls on a slow dispatcher.
func (d *device) pushFF(ff event.FF) {
	ff.Target = event.ControlID{Device: d.logical}
	ff.At = time.Now()
	select {
	case d.ffQueue <- ff:
		if d.metrics != nil {
			d.metrics.ffEvents.Inc()
		}
	default:
		d.ffDrops.Add(1)
		if d.metrics != nil {
			d.metrics.ffDrops.Inc()
		}
	}
}
