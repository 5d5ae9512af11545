// Package config loads, validates, and watches the declarative mapping
// configuration.
package config

import (
	"bytes"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	apperrors "github.com/leosat/MMVJ/errors"
)

// Config is the root configuration document.
type Config struct {
	Global           GlobalConfig              `yaml:"global"`
	MIDIDevices      map[string]InputDevice    `yaml:"midi_devices"`
	MouseDevices     map[string]InputDevice    `yaml:"mouse_devices"`
	VirtualJoysticks map[string]VirtualDevice  `yaml:"virtual_joysticks"`
	Mappings         []Mapping                 `yaml:"mappings"`
}

// GlobalConfig holds engine-wide settings.
type GlobalConfig struct {
	// UpdateRate is the tick frequency in Hz. Valid range 1..10000.
	UpdateRate int `yaml:"update_rate"`
	// PersistentJoysticks makes every virtual joystick persistent across
	// hot-reloads regardless of its own persistent flag.
	PersistentJoysticks bool `yaml:"persistent_joysticks"`
	// EnableSteeringIndicatorWindow serves the live steering indicator.
	EnableSteeringIndicatorWindow bool `yaml:"enable_steering_indicator_window"`
}

// InputDevice declares one logical input device: a name-match regex and the
// named controls exposed to mappings. Control values are literals such as
// "CC 7", "NOTE 60", "PITCH_WHEEL", "REL_X", "BTN_LEFT", or the name of a
// predefined control.
type InputDevice struct {
	MatchNameRegex string            `yaml:"match_name_regex"`
	Controls       map[string]string `yaml:"controls"`
}

// VirtualDevice declares one virtual joystick output.
type VirtualDevice struct {
	// Enabled defaults to true when omitted.
	Enabled    *bool             `yaml:"enabled"`
	Persistent bool              `yaml:"persistent"`
	Name       string            `yaml:"name"`
	Properties DeviceProperties  `yaml:"properties"`
	FF         FFSettings        `yaml:"ff"`
	Controls   map[string]string `yaml:"controls"`
}

// IsEnabled reports the effective enabled state.
func (v VirtualDevice) IsEnabled() bool {
	return v.Enabled == nil || *v.Enabled
}

// DeviceProperties is the USB identity of a virtual joystick. Together with
// the device name it determines whether a persistent handle can be reused.
type DeviceProperties struct {
	VendorID  uint16 `yaml:"vendor_id"`
	ProductID uint16 `yaml:"product_id"`
	Version   uint16 `yaml:"version"`
}

// FFSettings configures the force-feedback surface of a virtual joystick.
type FFSettings struct {
	MaxEffects int `yaml:"max_effects"`
	Gain       int `yaml:"gain"`
}

// Mapping routes one source control through a transformation chain to one
// destination control.
type Mapping struct {
	Source         SourceRef      `yaml:"source"`
	Destination    DestinationRef `yaml:"destination"`
	Transformation []StageConfig  `yaml:"transformation"`
}

// SourceRef names a control on a declared input device.
type SourceRef struct {
	Device  string `yaml:"device"`
	Control string `yaml:"control"`
}

// DestinationRef names a control on a declared virtual joystick.
type DestinationRef struct {
	Joystick string `yaml:"joystick"`
	Control  string `yaml:"control"`
}

// Predefines is an optional secondary document mapping reusable names to
// control literals, per input/output family. Device control sections may
// reference these names instead of spelling out the literal.
type Predefines struct {
	MIDI     map[string]string `yaml:"midi"`
	Mouse    map[string]string `yaml:"mouse"`
	Joystick map[string]string `yaml:"joystick"`
}

const (
	DefaultUpdateRate = 500
	MaxUpdateRate     = 10000
	DefaultFFGain     = 0xFFFF
	DefaultMaxEffects = 1
)

// ApplyDefaults fills unset fields with their documented defaults.
func (c *Config) ApplyDefaults() {
	if c.Global.UpdateRate == 0 {
		c.Global.UpdateRate = DefaultUpdateRate
	}
	for name, vj := range c.VirtualJoysticks {
		if vj.FF.MaxEffects == 0 {
			vj.FF.MaxEffects = DefaultMaxEffects
		}
		if vj.FF.Gain == 0 {
			vj.FF.Gain = DefaultFFGain
		}
		if vj.Name == "" {
			vj.Name = name
		}
		c.VirtualJoysticks[name] = vj
	}
}

// ResolvePredefines substitutes predefined control names with their
// literals in every device control table. Unknown names pass through
// unchanged so validation reports them against the right device.
func (c *Config) ResolvePredefines(p *Predefines) {
	if p == nil {
		return
	}
	substitute := func(controls map[string]string, table map[string]string) {
		for name, literal := range controls {
			if resolved, ok := table[literal]; ok {
				controls[name] = resolved
			}
		}
	}
	for _, dev := range c.MIDIDevices {
		substitute(dev.Controls, p.MIDI)
	}
	for _, dev := range c.MouseDevices {
		substitute(dev.Controls, p.Mouse)
	}
	for _, vj := range c.VirtualJoysticks {
		substitute(vj.Controls, p.Joystick)
	}
}

// Parse decodes a configuration document. Unknown fields are rejected so
// typos surface as errors instead of silently ignored settings.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, apperrors.WrapCode(err, apperrors.ErrorInvalid, apperrors.CodeConfigInvalid, "config", "Parse", "decode document")
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

// LoadFile reads and parses the configuration document at path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.WrapCode(err, apperrors.ErrorInvalid, apperrors.CodeConfigInvalid, "config", "LoadFile", fmt.Sprintf("read %s", path))
	}
	return Parse(data)
}

// ParsePredefines decodes a predefines document.
func ParsePredefines(data []byte) (*Predefines, error) {
	var p Predefines
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return nil, apperrors.WrapCode(err, apperrors.ErrorInvalid, apperrors.CodeConfigInvalid, "config", "ParsePredefines", "decode document")
	}
	return &p, nil
}

// LoadPredefines reads and parses the predefines document at path.
func LoadPredefines(path string) (*Predefines, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.WrapCode(err, apperrors.ErrorInvalid, apperrors.CodeConfigInvalid, "config", "LoadPredefines", fmt.Sprintf("read %s", path))
	}
	return ParsePredefines(data)
}

// Clone returns a deep copy. Mutating the copy never affects the original.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	out := &Config{
		Global:   c.Global,
		Mappings: make([]Mapping, len(c.Mappings)),
	}
	out.MIDIDevices = cloneInputDevices(c.MIDIDevices)
	out.MouseDevices = cloneInputDevices(c.MouseDevices)
	if c.VirtualJoysticks != nil {
		out.VirtualJoysticks = make(map[string]VirtualDevice, len(c.VirtualJoysticks))
		for name, vj := range c.VirtualJoysticks {
			cp := vj
			if vj.Enabled != nil {
				e := *vj.Enabled
				cp.Enabled = &e
			}
			cp.Controls = cloneStringMap(vj.Controls)
			out.VirtualJoysticks[name] = cp
		}
	}
	for i, m := range c.Mappings {
		cp := m
		cp.Transformation = make([]StageConfig, len(m.Transformation))
		copy(cp.Transformation, m.Transformation)
		out.Mappings[i] = cp
	}
	return out
}

func cloneInputDevices(in map[string]InputDevice) map[string]InputDevice {
	if in == nil {
		return nil
	}
	out := make(map[string]InputDevice, len(in))
	for name, dev := range in {
		out[name] = InputDevice{
			MatchNameRegex: dev.MatchNameRegex,
			Controls:       cloneStringMap(dev.Controls),
		}
	}
	return out
}

func cloneStringMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// SafeConfig wraps a Config for concurrent access. Readers receive deep
// clones so accidental mutation cannot leak between goroutines.
type SafeConfig struct {
	mu     sync.RWMutex
	config *Config
}

// NewSafeConfig wraps cfg. A nil cfg is allowed; Get returns nil until the
// first Update.
func NewSafeConfig(cfg *Config) *SafeConfig {
	return &SafeConfig{config: cfg}
}

// Get returns a deep clone of the current configuration.
func (s *SafeConfig) Get() *Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config.Clone()
}

// Update validates and swaps in a new configuration. The previous
// configuration stays active when validation fails.
func (s *SafeConfig) Update(cfg *Config) error {
	if cfg == nil {
		return apperrors.WrapInvalid(apperrors.ErrMissingConfig, "config", "Update", "validate replacement")
	}
	if _, err := Resolve(cfg); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config = cfg.Clone()
	return nil
}
