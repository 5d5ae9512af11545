package event

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/holoplot/go-evdev"
)

// KeyKind discriminates control keys across MIDI, pointer, and virtual
// controller domains.
type KeyKind int

const (
	KindUnknown KeyKind = iota
	// MIDI controls
	KindNote
	KindControlChange
	KindPitchWheel
	KindChannelPressure
	KindPolyPressure
	// Pointer / virtual controls (code is the evdev code)
	KindRelAxis
	KindAbsAxis
	KindButton
	KindWheel
)

// String returns the kind name used in logs.
func (k KeyKind) String() string {
	switch k {
	case KindNote:
		return "note"
	case KindControlChange:
		return "control_change"
	case KindPitchWheel:
		return "pitch_wheel"
	case KindChannelPressure:
		return "channel_pressure"
	case KindPolyPressure:
		return "poly_pressure"
	case KindRelAxis:
		return "rel_axis"
	case KindAbsAxis:
		return "abs_axis"
	case KindButton:
		return "button"
	case KindWheel:
		return "wheel"
	default:
		return "unknown"
	}
}

// IsMIDI reports whether the key belongs to the MIDI domain.
func (k KeyKind) IsMIDI() bool {
	switch k {
	case KindNote, KindControlChange, KindPitchWheel, KindChannelPressure, KindPolyPressure:
		return true
	}
	return false
}

// IsRelative reports whether samples for this kind carry deltas.
func (k KeyKind) IsRelative() bool {
	return k == KindRelAxis || k == KindWheel
}

// Key identifies one control on a device. Code is the MIDI data number for
// MIDI kinds and the evdev event code for axis/button kinds. Channel is the
// MIDI channel, or -1 for any.
type Key struct {
	Kind    KeyKind
	Code    int
	Channel int
}

// ControlID addresses one control on one logical device.
type ControlID struct {
	Device  string
	Control Key
}

func (c ControlID) String() string {
	return c.Device + "/" + c.Control.String()
}

// String renders the canonical configuration literal for the key.
// The output round-trips through ParseKey.
func (k Key) String() string {
	switch k.Kind {
	case KindNote:
		return fmt.Sprintf("NOTE %d", k.Code)
	case KindControlChange:
		return fmt.Sprintf("CC %d", k.Code)
	case KindPitchWheel:
		return "PITCH_WHEEL"
	case KindChannelPressure:
		return "CHANNEL_PRESSURE"
	case KindPolyPressure:
		return fmt.Sprintf("POLY_PRESSURE %d", k.Code)
	case KindWheel:
		return "WHEEL"
	case KindRelAxis:
		return lastAlias(evdev.CodeName(evdev.EV_REL, evdev.EvCode(k.Code)))
	case KindAbsAxis:
		return lastAlias(evdev.CodeName(evdev.EV_ABS, evdev.EvCode(k.Code)))
	case KindButton:
		return lastAlias(evdev.CodeName(evdev.EV_KEY, evdev.EvCode(k.Code)))
	default:
		return "UNKNOWN"
	}
}

// lastAlias picks one name out of evdev's "A/B" alias list for a code;
// every alias parses back to the same code.
func lastAlias(names string) string {
	if i := strings.LastIndex(names, "/"); i >= 0 {
		return names[i+1:]
	}
	return names
}

// ParseKey parses a control literal such as "NOTE 60", "CC 7", "PITCH_WHEEL",
// "POLY_PRESSURE 60", "REL_X", "ABS_X", "BTN_LEFT", "BTN_0", or "WHEEL".
func ParseKey(s string) (Key, error) {
	fields := strings.Fields(strings.TrimSpace(s))
	if len(fields) == 0 {
		return Key{}, fmt.Errorf("empty control literal")
	}
	head := strings.ToUpper(fields[0])

	numArg := func(kind KeyKind, lo, hi int) (Key, error) {
		if len(fields) != 2 {
			return Key{}, fmt.Errorf("control %q: expected one numeric argument", s)
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil {
			return Key{}, fmt.Errorf("control %q: %w", s, err)
		}
		if n < lo || n > hi {
			return Key{}, fmt.Errorf("control %q: value %d outside [%d, %d]", s, n, lo, hi)
		}
		return Key{Kind: kind, Code: n, Channel: -1}, nil
	}

	switch head {
	case "NOTE":
		return numArg(KindNote, 0, 127)
	case "CC", "CONTROL_CHANGE":
		return numArg(KindControlChange, 0, 127)
	case "POLY_PRESSURE", "POLY_AFTERTOUCH":
		return numArg(KindPolyPressure, 0, 127)
	case "PITCH_WHEEL", "PITCH_BEND":
		return Key{Kind: KindPitchWheel, Channel: -1}, nil
	case "CHANNEL_PRESSURE", "AFTERTOUCH":
		return Key{Kind: KindChannelPressure, Channel: -1}, nil
	case "WHEEL":
		return Key{Kind: KindWheel, Code: int(evdev.REL_WHEEL), Channel: -1}, nil
	}

	if len(fields) != 1 {
		return Key{}, fmt.Errorf("unknown control literal %q", s)
	}

	switch {
	case strings.HasPrefix(head, "REL_"):
		if code, ok := evdev.RELFromString[head]; ok {
			return Key{Kind: KindRelAxis, Code: int(code), Channel: -1}, nil
		}
	case strings.HasPrefix(head, "ABS_"):
		if code, ok := evdev.ABSFromString[head]; ok {
			return Key{Kind: KindAbsAxis, Code: int(code), Channel: -1}, nil
		}
	case strings.HasPrefix(head, "BTN_"), strings.HasPrefix(head, "KEY_"):
		if code, ok := evdev.KEYFromString[head]; ok {
			return Key{Kind: KindButton, Code: int(code), Channel: -1}, nil
		}
	}

	return Key{}, fmt.Errorf("unknown control literal %q", s)
}

// MustParseKey is ParseKey for literals known good at compile time; panics on
// error. Used by tests and built-in defaults.
func MustParseKey(s string) Key {
	k, err := ParseKey(s)
	if err != nil {
		panic(err)
	}
	return k
}
