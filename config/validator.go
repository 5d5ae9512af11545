package config

import (
	"fmt"
	"regexp"

	apperrors "github.com/leosat/MMVJ/errors"
	"github.com/leosat/MMVJ/event"
)

// InputFamily distinguishes the two input adapter domains.
type InputFamily int

const (
	FamilyMIDI InputFamily = iota
	FamilyPointer
)

func (f InputFamily) String() string {
	if f == FamilyMIDI {
		return "midi"
	}
	return "mouse"
}

// ResolvedInput is a validated input device declaration with its compiled
// regex and parsed control table.
type ResolvedInput struct {
	Name     string
	Family   InputFamily
	Regex    *regexp.Regexp
	Controls map[string]event.Key
}

// ResolvedOutput is a validated virtual joystick declaration.
type ResolvedOutput struct {
	Name       string
	Device     VirtualDevice
	Persistent bool
	Controls   map[string]event.Key
}

// Identity is the tuple that decides whether a persistent handle can be
// reused across reloads.
func (o ResolvedOutput) Identity() OutputIdentity {
	return OutputIdentity{
		Name:       o.Device.Name,
		Properties: o.Device.Properties,
	}
}

// OutputIdentity identifies a virtual device to the host.
type OutputIdentity struct {
	Name       string
	Properties DeviceProperties
}

// ResolvedMapping is a validated mapping with canonical endpoint identities.
// Stage state is built fresh by the caller from Stages.
type ResolvedMapping struct {
	Index       int
	Source      event.ControlID
	Destination event.ControlID
	DestRange   event.Range
	Stages      []StageConfig
	HasSteering bool
}

// Resolved is the compiled form of a validated configuration.
type Resolved struct {
	Config   *Config
	Inputs   map[string]ResolvedInput
	Outputs  map[string]ResolvedOutput
	Mappings []ResolvedMapping
}

// SourceControl implements ControlResolver against the declared inputs.
func (r *Resolved) SourceControl(device, control string) (event.ControlID, error) {
	in, ok := r.Inputs[device]
	if !ok {
		return event.ControlID{}, fmt.Errorf("device %q not declared", device)
	}
	key, ok := in.Controls[control]
	if !ok {
		return event.ControlID{}, fmt.Errorf("device %q has no control %q", device, control)
	}
	return event.ControlID{Device: device, Control: key}, nil
}

// Validate checks the configuration without retaining the compiled form.
func Validate(cfg *Config) error {
	_, err := Resolve(cfg)
	return err
}

// Resolve validates the configuration structurally and semantically and
// returns its compiled form. Mappings whose destination joystick is
// disabled are excluded rather than rejected.
func Resolve(cfg *Config) (*Resolved, error) {
	if cfg == nil {
		return nil, invalid("configuration is empty")
	}
	if cfg.Global.UpdateRate < 1 || cfg.Global.UpdateRate > MaxUpdateRate {
		return nil, invalid("global.update_rate %d outside [1, %d]", cfg.Global.UpdateRate, MaxUpdateRate)
	}

	res := &Resolved{
		Config:  cfg,
		Inputs:  make(map[string]ResolvedInput),
		Outputs: make(map[string]ResolvedOutput),
	}

	if err := resolveInputs(res, cfg.MIDIDevices, FamilyMIDI); err != nil {
		return nil, err
	}
	if err := resolveInputs(res, cfg.MouseDevices, FamilyPointer); err != nil {
		return nil, err
	}

	for name, vj := range cfg.VirtualJoysticks {
		if vj.FF.Gain < 0 || vj.FF.Gain > 0xFFFF {
			return nil, invalid("virtual_joysticks.%s: ff.gain %d outside [0, 65535]", name, vj.FF.Gain)
		}
		if vj.FF.MaxEffects < 1 {
			return nil, invalid("virtual_joysticks.%s: ff.max_effects must be >= 1", name)
		}
		if len(vj.Controls) == 0 {
			return nil, invalid("virtual_joysticks.%s: no controls declared", name)
		}
		controls := make(map[string]event.Key, len(vj.Controls))
		for cname, literal := range vj.Controls {
			key, err := event.ParseKey(literal)
			if err != nil {
				return nil, invalid("virtual_joysticks.%s.controls.%s: %v", name, cname, err)
			}
			if key.Kind != event.KindAbsAxis && key.Kind != event.KindButton {
				return nil, invalid("virtual_joysticks.%s.controls.%s: %s is not an axis or button", name, cname, literal)
			}
			controls[cname] = key
		}
		res.Outputs[name] = ResolvedOutput{
			Name:       name,
			Device:     vj,
			Persistent: vj.Persistent || cfg.Global.PersistentJoysticks,
			Controls:   controls,
		}
	}

	authors := make(map[event.ControlID]int)
	ffSinks := make(map[string]int)
	for i, m := range cfg.Mappings {
		src, err := res.SourceControl(m.Source.Device, m.Source.Control)
		if err != nil {
			return nil, invalid("mappings[%d].source: %v", i, err)
		}
		out, ok := res.Outputs[m.Destination.Joystick]
		if !ok {
			return nil, invalid("mappings[%d].destination: joystick %q not declared", i, m.Destination.Joystick)
		}
		destKey, ok := out.Controls[m.Destination.Control]
		if !ok {
			return nil, invalid("mappings[%d].destination: joystick %q has no control %q", i, m.Destination.Joystick, m.Destination.Control)
		}
		dest := event.ControlID{Device: m.Destination.Joystick, Control: destKey}

		hasSteering := false
		for _, sc := range m.Transformation {
			if sc.Kind == "steering" {
				hasSteering = true
			}
		}

		if prev, taken := authors[dest]; taken {
			return nil, conflict("mappings[%d] and mappings[%d] both author %s/%s", prev, i, m.Destination.Joystick, m.Destination.Control)
		}
		authors[dest] = i
		if hasSteering {
			if prev, taken := ffSinks[m.Destination.Joystick]; taken {
				return nil, conflict("mappings[%d] and mappings[%d] both accept force feedback from joystick %q", prev, i, m.Destination.Joystick)
			}
			ffSinks[m.Destination.Joystick] = i
		}

		// Trial-build the chain so parameter and reference errors surface
		// at validation time, then discard the state.
		if _, err := BuildStages(m.Transformation, res, nil); err != nil {
			return nil, invalid("mappings[%d].transformation: %v", i, err)
		}

		if !out.Device.IsEnabled() {
			continue
		}
		res.Mappings = append(res.Mappings, ResolvedMapping{
			Index:       i,
			Source:      src,
			Destination: dest,
			DestRange:   destRange(destKey),
			Stages:      m.Transformation,
			HasSteering: hasSteering,
		})
	}

	return res, nil
}

func resolveInputs(res *Resolved, devices map[string]InputDevice, family InputFamily) error {
	for name, dev := range devices {
		if prior, dup := res.Inputs[name]; dup {
			return invalid("device %q declared in both %s_devices and %s_devices", name, prior.Family, family)
		}
		if dev.MatchNameRegex == "" {
			return invalid("%s_devices.%s: match_name_regex is required", family, name)
		}
		re, err := regexp.Compile(dev.MatchNameRegex)
		if err != nil {
			return invalid("%s_devices.%s: match_name_regex: %v", family, name, err)
		}
		if len(dev.Controls) == 0 {
			return invalid("%s_devices.%s: no controls declared", family, name)
		}
		controls := make(map[string]event.Key, len(dev.Controls))
		for cname, literal := range dev.Controls {
			key, err := event.ParseKey(literal)
			if err != nil {
				return invalid("%s_devices.%s.controls.%s: %v", family, name, cname, err)
			}
			if family == FamilyMIDI && !key.Kind.IsMIDI() {
				return invalid("midi_devices.%s.controls.%s: %s is not a MIDI control", name, cname, literal)
			}
			if family == FamilyPointer && key.Kind.IsMIDI() {
				return invalid("mouse_devices.%s.controls.%s: %s is not a pointer control", name, cname, literal)
			}
			controls[cname] = key
		}
		res.Inputs[name] = ResolvedInput{
			Name:     name,
			Family:   family,
			Regex:    re,
			Controls: controls,
		}
	}
	return nil
}

// destRange returns the wire range of a virtual joystick control: the
// signed 16-bit axis span for absolute axes, the unit range for buttons.
func destRange(key event.Key) event.Range {
	if key.Kind == event.KindAbsAxis {
		return event.Range{Lo: -32767, Hi: 32767}
	}
	return event.Unit()
}

func invalid(format string, args ...any) error {
	return apperrors.WrapInvalid(fmt.Errorf(format, args...), "config", "Resolve", "validate configuration")
}

func conflict(format string, args ...any) error {
	return apperrors.WrapCode(fmt.Errorf(format, args...), apperrors.ErrorInvalid, apperrors.CodeOutputConflict, "config", "Resolve", "validate configuration")
}
