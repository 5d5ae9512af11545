package event

import "time"

// SampleKind discriminates the event variants delivered to pipelines.
type SampleKind int

const (
	// Absolute carries a position within the origin range.
	Absolute SampleKind = iota
	// Relative carries a delta accumulated since the last tick.
	Relative
	// Button carries an edge (0 or 1).
	Button
)

func (k SampleKind) String() string {
	switch k {
	case Absolute:
		return "absolute"
	case Relative:
		return "relative"
	case Button:
		return "button"
	default:
		return "unknown"
	}
}

// Sample is a scalar tagged with its origin range and relativity. Stages
// operate on samples in original units; normalization happens at the output
// adapter.
type Sample struct {
	Kind  SampleKind
	Value float64
	Range Range
}

// AbsoluteSample builds a position sample.
func AbsoluteSample(r Range, v float64) Sample {
	return Sample{Kind: Absolute, Value: v, Range: r}
}

// RelativeSample builds a delta sample.
func RelativeSample(r Range, delta float64) Sample {
	return Sample{Kind: Relative, Value: delta, Range: r}
}

// ButtonEdge builds a button edge sample.
func ButtonEdge(pressed bool) Sample {
	v := 0.0
	if pressed {
		v = 1
	}
	return Sample{Kind: Button, Value: v, Range: Unit()}
}

// Pressed reports a button sample's state.
func (s Sample) Pressed() bool {
	return s.Kind == Button && s.Value != 0
}

// Input is one timestamped control event produced by an input adapter and
// delivered to the dispatcher.
type Input struct {
	Source ControlID
	Sample Sample
	At     time.Time
}

// FFKind discriminates force-feedback events flowing from an output adapter
// back to the steering stage of the mapping that authors the target control.
type FFKind int

const (
	// FFUpload sets the current constant-force magnitude.
	FFUpload FFKind = iota
	// FFCancel clears the current effect.
	FFCancel
	// FFPlay starts playback of the uploaded effect.
	FFPlay
	// FFStop halts playback without erasing the effect.
	FFStop
)

func (k FFKind) String() string {
	switch k {
	case FFUpload:
		return "upload"
	case FFCancel:
		return "cancel"
	case FFPlay:
		return "play"
	case FFStop:
		return "stop"
	default:
		return "unknown"
	}
}

// FF is a force-feedback event. Force is the signed constant-force level
// normalized to [-1, 1] by the output adapter. Target addresses the virtual
// control whose authoring mapping should receive the event.
type FF struct {
	Kind     FFKind
	Target   ControlID
	Force    float64
	EffectID int
	At       time.Time
}
