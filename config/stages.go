package config

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/leosat/MMVJ/event"
	"github.com/leosat/MMVJ/stage"
)

// ControlResolver turns a (device, control-name) pair from the configuration
// into the canonical control identity used on the event bus.
type ControlResolver interface {
	SourceControl(device, control string) (event.ControlID, error)
}

// StageConfig is one element of a mapping's transformation chain. In the
// document it is a single-key map where the key selects the stage type and
// the value carries its parameters.
type StageConfig struct {
	Kind   string
	params stageParams
}

type stageParams interface {
	build(res ControlResolver, holds stage.HoldSource) (stage.Stage, error)
}

// UnmarshalYAML decodes the single-key stage form.
func (sc *StageConfig) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode || len(node.Content) != 2 {
		return fmt.Errorf("stage must be a single-key map naming the stage type")
	}
	var kind string
	if err := node.Content[0].Decode(&kind); err != nil {
		return err
	}
	body := node.Content[1]

	var params stageParams
	switch kind {
	case "clamp":
		p := &clampParams{}
		if err := decodeStrict(body, p); err != nil {
			return fmt.Errorf("clamp: %w", err)
		}
		params = p
	case "invert":
		p := &invertParams{}
		if err := decodeStrict(body, p); err != nil {
			return fmt.Errorf("invert: %w", err)
		}
		params = p
	case "integrate":
		p := &integrateParams{LeakHalflife: math.Inf(1), SmoothingAlpha: 1}
		if err := decodeStrict(body, p); err != nil {
			return fmt.Errorf("integrate: %w", err)
		}
		params = p
	case "linear":
		p := &linearParams{Slope: 1}
		if err := decodeStrict(body, p); err != nil {
			return fmt.Errorf("linear: %w", err)
		}
		params = p
	case "quadratic", "cubic", "smoothstep", "smootherstep":
		p := &simpleCurveParams{kind: kind}
		if err := decodeStrict(body, p); err != nil {
			return fmt.Errorf("%s: %w", kind, err)
		}
		params = p
	case "s_curve":
		p := &sCurveParams{Steepness: 10}
		if err := decodeStrict(body, p); err != nil {
			return fmt.Errorf("s_curve: %w", err)
		}
		params = p
	case "exponential":
		p := &exponentialParams{}
		if err := decodeStrict(body, p); err != nil {
			return fmt.Errorf("exponential: %w", err)
		}
		params = p
	case "power":
		p := &powerParams{Power: 1}
		if err := decodeStrict(body, p); err != nil {
			return fmt.Errorf("power: %w", err)
		}
		params = p
	case "symmetric_power":
		p := &symmetricPowerParams{Power: 1}
		if err := decodeStrict(body, p); err != nil {
			return fmt.Errorf("symmetric_power: %w", err)
		}
		params = p
	case "moving_average":
		p := &movingAverageParams{}
		if err := decodeStrict(body, p); err != nil {
			return fmt.Errorf("moving_average: %w", err)
		}
		if p.Window < 1 {
			return fmt.Errorf("moving_average: window must be >= 1, got %d", p.Window)
		}
		params = p
	case "ema_filter":
		p := &emaParams{}
		if err := decodeStrict(body, p); err != nil {
			return fmt.Errorf("ema_filter: %w", err)
		}
		params = p
	case "lowpass":
		p := &lowpassParams{}
		if err := decodeStrict(body, p); err != nil {
			return fmt.Errorf("lowpass: %w", err)
		}
		params = p
	case "pedal_filter":
		p := &pedalParams{SmoothingAlpha: 1}
		if err := decodeStrict(body, p); err != nil {
			return fmt.Errorf("pedal_filter: %w", err)
		}
		params = p
	case "steering":
		p := defaultSteeringParams()
		if err := decodeStrict(body, p); err != nil {
			return fmt.Errorf("steering: %w", err)
		}
		params = p
	default:
		return fmt.Errorf("unknown stage type %q", kind)
	}

	sc.Kind = kind
	sc.params = params
	return nil
}

// Build constructs the runtime stage for this configuration element.
func (sc StageConfig) Build(res ControlResolver, holds stage.HoldSource) (stage.Stage, error) {
	if sc.params == nil {
		return nil, fmt.Errorf("stage %q not decoded", sc.Kind)
	}
	return sc.params.build(res, holds)
}

// BuildStages constructs the full transformation chain.
func BuildStages(cfgs []StageConfig, res ControlResolver, holds stage.HoldSource) ([]stage.Stage, error) {
	stages := make([]stage.Stage, 0, len(cfgs))
	for i, sc := range cfgs {
		st, err := sc.Build(res, holds)
		if err != nil {
			return nil, fmt.Errorf("stage %d (%s): %w", i, sc.Kind, err)
		}
		stages = append(stages, st)
	}
	return stages, nil
}

// decodeStrict decodes a node rejecting unknown fields, so parameter typos
// fail loudly instead of silently falling back to defaults.
func decodeStrict(node *yaml.Node, out any) error {
	raw, err := yaml.Marshal(node)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		return err
	}
	return nil
}

type clampParams struct {
	Range         event.Range `yaml:",inline"`
	OverrideRange *bool       `yaml:"override_range"`
}

func (p *clampParams) build(ControlResolver, stage.HoldSource) (stage.Stage, error) {
	if p.Range.Lo >= p.Range.Hi {
		return nil, fmt.Errorf("from %v must be below to %v", p.Range.Lo, p.Range.Hi)
	}
	override := p.OverrideRange == nil || *p.OverrideRange
	return stage.NewClamp(p.Range, override), nil
}

type invertParams struct {
	IsRelative bool `yaml:"is_relative"`
}

func (p *invertParams) build(ControlResolver, stage.HoldSource) (stage.Stage, error) {
	return stage.NewInvert(p.IsRelative), nil
}

type integrateParams struct {
	Range          event.Range `yaml:"range"`
	DeadzoneNorm   float64     `yaml:"deadzone_norm"`
	LeakHalflife   float64     `yaml:"leak_halflife"`
	SmoothingAlpha float64     `yaml:"smoothing_alpha"`
}

func (p *integrateParams) build(ControlResolver, stage.HoldSource) (stage.Stage, error) {
	if p.Range.Lo >= p.Range.Hi {
		return nil, fmt.Errorf("range from %v must be below to %v", p.Range.Lo, p.Range.Hi)
	}
	if p.DeadzoneNorm < 0 || p.DeadzoneNorm >= 1 {
		return nil, fmt.Errorf("deadzone_norm %v outside [0, 1)", p.DeadzoneNorm)
	}
	if p.LeakHalflife < 0 {
		return nil, fmt.Errorf("leak_halflife must not be negative")
	}
	return stage.NewIntegrate(p.Range, p.DeadzoneNorm, p.LeakHalflife, p.SmoothingAlpha), nil
}

type linearParams struct {
	Slope  float64 `yaml:"slope"`
	ShiftX float64 `yaml:"shift_x"`
	ShiftY float64 `yaml:"shift_y"`
	OnIdle bool    `yaml:"on_idle"`
}

func (p *linearParams) build(ControlResolver, stage.HoldSource) (stage.Stage, error) {
	return stage.NewLinear(p.Slope, p.ShiftX, p.ShiftY, p.OnIdle), nil
}

type simpleCurveParams struct {
	kind   string
	OnIdle bool `yaml:"on_idle"`
}

func (p *simpleCurveParams) build(ControlResolver, stage.HoldSource) (stage.Stage, error) {
	switch p.kind {
	case "quadratic":
		return stage.NewQuadratic(p.OnIdle), nil
	case "cubic":
		return stage.NewCubic(p.OnIdle), nil
	case "smoothstep":
		return stage.NewSmoothstep(p.OnIdle), nil
	case "smootherstep":
		return stage.NewSmootherstep(p.OnIdle), nil
	}
	return nil, fmt.Errorf("unknown curve %q", p.kind)
}

type sCurveParams struct {
	Steepness float64 `yaml:"steepness"`
	OnIdle    bool    `yaml:"on_idle"`
}

func (p *sCurveParams) build(ControlResolver, stage.HoldSource) (stage.Stage, error) {
	return stage.NewSCurve(p.Steepness, p.OnIdle), nil
}

type exponentialParams struct {
	Base   float64 `yaml:"base"`
	OnIdle bool    `yaml:"on_idle"`
}

func (p *exponentialParams) build(ControlResolver, stage.HoldSource) (stage.Stage, error) {
	return stage.NewExponential(p.Base, p.OnIdle), nil
}

type powerParams struct {
	Power  float64 `yaml:"power"`
	OnIdle bool    `yaml:"on_idle"`
}

func (p *powerParams) build(ControlResolver, stage.HoldSource) (stage.Stage, error) {
	return stage.NewPower(p.Power, p.OnIdle), nil
}

type symmetricPowerParams struct {
	Power  float64 `yaml:"power"`
	OnIdle bool    `yaml:"on_idle"`
}

func (p *symmetricPowerParams) build(ControlResolver, stage.HoldSource) (stage.Stage, error) {
	return stage.NewSymmetricPower(p.Power, p.OnIdle), nil
}

type movingAverageParams struct {
	Window int `yaml:"window"`
}

func (p *movingAverageParams) build(ControlResolver, stage.HoldSource) (stage.Stage, error) {
	return stage.NewMovingAverage(p.Window), nil
}

type emaParams struct {
	Tau    float64 `yaml:"tau"`
	OnIdle bool    `yaml:"on_idle"`
}

func (p *emaParams) build(ControlResolver, stage.HoldSource) (stage.Stage, error) {
	return stage.NewEMA(p.Tau, p.OnIdle), nil
}

type lowpassParams struct {
	TimeConstant float64 `yaml:"time_constant"`
	OnIdle       bool    `yaml:"on_idle"`
}

func (p *lowpassParams) build(ControlResolver, stage.HoldSource) (stage.Stage, error) {
	return stage.NewEMA(p.TimeConstant, p.OnIdle), nil
}

type pedalParams struct {
	RiseRate       float64 `yaml:"rise_rate"`
	FallRate       float64 `yaml:"fall_rate"`
	FallHoldRef    HoldRef `yaml:"fall_hold_ref"`
	FallTimeout    float64 `yaml:"fall_timeout"`
	SmoothingAlpha float64 `yaml:"smoothing_alpha"`
}

func (p *pedalParams) build(res ControlResolver, holds stage.HoldSource) (stage.Stage, error) {
	if p.RiseRate <= 0 {
		return nil, fmt.Errorf("rise_rate must be positive, got %v", p.RiseRate)
	}
	if p.FallRate < 0 {
		return nil, fmt.Errorf("fall_rate must not be negative, got %v", p.FallRate)
	}
	if p.FallTimeout < 0 {
		return nil, fmt.Errorf("fall_timeout must not be negative, got %v", p.FallTimeout)
	}
	hold, err := p.FallHoldRef.factor(res)
	if err != nil {
		return nil, fmt.Errorf("fall_hold_ref: %w", err)
	}
	return stage.NewPedal(p.RiseRate, p.FallRate, hold, p.FallTimeout, p.SmoothingAlpha, holds), nil
}

type steeringParams struct {
	Sensitivity        float64      `yaml:"sensitivity"`
	AutocenterHalflife float64      `yaml:"autocenter_halflife"`
	HoldFactor         HoldRef      `yaml:"hold_factor"`
	FFScale            float64      `yaml:"ff_scale"`
	FFInvert           bool         `yaml:"ff_invert"`
	Alpha              float64      `yaml:"alpha"`
	InputPowerCurve    *powerCurve  `yaml:"input_power_curve"`
	InputEMA           *inputEMACfg `yaml:"input_ema"`
}

type powerCurve struct {
	Power float64 `yaml:"power"`
}

type inputEMACfg struct {
	Tau float64 `yaml:"tau"`
}

func defaultSteeringParams() *steeringParams {
	return &steeringParams{
		// 600 input counts travel from center to full lock.
		Sensitivity:        1.0 / 600,
		AutocenterHalflife: 0.3,
		HoldFactor:         HoldRef{literal: 0.7},
		FFScale:            1,
		Alpha:              1,
	}
}

func (p *steeringParams) build(res ControlResolver, holds stage.HoldSource) (stage.Stage, error) {
	if p.Sensitivity <= 0 {
		return nil, fmt.Errorf("sensitivity must be positive, got %v", p.Sensitivity)
	}
	if p.AutocenterHalflife < 0 {
		return nil, fmt.Errorf("autocenter_halflife must not be negative, got %v", p.AutocenterHalflife)
	}
	hold, err := p.HoldFactor.factor(res)
	if err != nil {
		return nil, fmt.Errorf("hold_factor: %w", err)
	}
	sp := stage.SteeringParams{
		Sensitivity:        p.Sensitivity,
		AutocenterHalflife: p.AutocenterHalflife,
		Hold:               hold,
		FFScale:            p.FFScale,
		FFInvert:           p.FFInvert,
		Alpha:              p.Alpha,
	}
	if p.InputPowerCurve != nil {
		sp.InputPower = p.InputPowerCurve.Power
	}
	if p.InputEMA != nil {
		sp.InputTau = p.InputEMA.Tau
	}
	return stage.NewSteering(sp, holds), nil
}

// HoldRef is either a literal hold factor in [0, 1] or a reference to a
// source control whose live normalized value is read each tick. The YAML
// forms are a bare number, a "device/control" string, or a
// {device, control} map.
type HoldRef struct {
	literal float64
	device  string
	control string
}

// UnmarshalYAML accepts the three reference forms.
func (h *HoldRef) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if v, err := strconv.ParseFloat(node.Value, 64); err == nil {
			if v < 0 || v > 1 {
				return fmt.Errorf("hold factor %v outside [0, 1]", v)
			}
			*h = HoldRef{literal: v}
			return nil
		}
		parts := strings.SplitN(node.Value, "/", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return fmt.Errorf("hold reference %q: want a number or \"device/control\"", node.Value)
		}
		*h = HoldRef{device: parts[0], control: parts[1]}
		return nil
	case yaml.MappingNode:
		var ref struct {
			Device  string `yaml:"device"`
			Control string `yaml:"control"`
		}
		if err := decodeStrict(node, &ref); err != nil {
			return err
		}
		if ref.Device == "" || ref.Control == "" {
			return fmt.Errorf("hold reference needs both device and control")
		}
		*h = HoldRef{device: ref.Device, control: ref.Control}
		return nil
	}
	return fmt.Errorf("hold reference must be a number, string, or map")
}

// IsRef reports whether the hold references a control.
func (h HoldRef) IsRef() bool {
	return h.device != ""
}

// Literal returns the literal hold factor.
func (h HoldRef) Literal() float64 {
	return h.literal
}

func (h HoldRef) factor(res ControlResolver) (stage.HoldFactor, error) {
	if !h.IsRef() {
		return stage.HoldFactor{Value: h.literal}, nil
	}
	if res == nil {
		return stage.HoldFactor{}, fmt.Errorf("no resolver for reference %s/%s", h.device, h.control)
	}
	id, err := res.SourceControl(h.device, h.control)
	if err != nil {
		return stage.HoldFactor{}, err
	}
	return stage.HoldFactor{Ref: &id}, nil
}
