package engine

import (
	"fmt"

	"github.com/leosat/MMVJ/config"
	"github.com/leosat/MMVJ/errors"
	"github.com/leosat/MMVJ/event"
	"github.com/leosat/MMVJ/pipeline"
)

// wiring is one revision's executable form: an executor per enabled
// mapping plus the routing indexes the dispatcher consults per event. It
// is built off-line and swapped in whole, so a failed build never
// disturbs the active revision.
type wiring struct {
	rev        *config.Revision
	executors  []*pipeline.Executor
	bySource   map[event.ControlID][]*pipeline.Executor
	ffByDevice map[string]*pipeline.Executor
	holds      *pipeline.Holds

	names []string
}

// buildWiring compiles a validated revision into executors. prevHolds
// carries the observed input values across reloads so hold-factor
// references keep their readings; nil starts fresh.
func buildWiring(rev *config.Revision, prevHolds *pipeline.Holds) (*wiring, error) {
	holds := prevHolds
	if holds == nil {
		holds = pipeline.NewHolds()
	}

	w := &wiring{
		rev:        rev,
		executors:  make([]*pipeline.Executor, 0, len(rev.Resolved.Mappings)),
		bySource:   make(map[event.ControlID][]*pipeline.Executor),
		ffByDevice: make(map[string]*pipeline.Executor),
		holds:      holds,
		names:      make([]string, 0, len(rev.Resolved.Mappings)),
	}

	for _, m := range rev.Resolved.Mappings {
		stages, err := config.BuildStages(m.Stages, rev.Resolved, holds)
		if err != nil {
			return nil, errors.WrapInvalid(err, "engine", "buildWiring",
				fmt.Sprintf("build mapping %d", m.Index))
		}
		x := pipeline.New(m.Source, m.Destination, m.DestRange, stages)
		w.executors = append(w.executors, x)
		w.bySource[m.Source] = append(w.bySource[m.Source], x)
		if m.HasSteering {
			w.ffByDevice[m.Destination.Device] = x
		}
		w.names = append(w.names, fmt.Sprintf("mappings[%d]", m.Index))
	}

	return w, nil
}

// frames snapshots every executor's live output for the indicator
// observer. Steering chains additionally report angle and force.
func (w *wiring) frames() []IndicatorFrame {
	frames := make([]IndicatorFrame, 0, len(w.executors))
	for i, x := range w.executors {
		f := IndicatorFrame{
			Mapping:     w.names[i],
			Destination: x.Destination().String(),
			Value:       x.Last(),
		}
		if s := x.Steering(); s != nil {
			f.HasSteering = true
			f.Angle = s.Angle()
			f.Force = s.Force()
		}
		frames = append(frames, f)
	}
	return frames
}
