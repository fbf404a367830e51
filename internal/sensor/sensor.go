// Package sensor describes the values the controller publishes and fans
// each one out to every configured sink.
package sensor

import "github.com/thatsimonsguy/battery-controller/internal/model"

type Output interface {
	Publish(value float64)
}

type TextOutput interface {
	PublishText(value string)
}

type StatusOutput interface {
	PublishStatus(component string, status model.Status)
}

// Sink is implemented by publishers that can carry numeric metrics. A sink
// returns nil for metrics it does not handle.
type Sink interface {
	Output(m Metric) Output
}

type TextSink interface {
	TextOutput(m Metric) TextOutput
}

type OutputFunc func(value float64)

func (f OutputFunc) Publish(value float64) { f(value) }

type fanout []Output

func (f fanout) Publish(value float64) {
	for _, o := range f {
		o.Publish(value)
	}
}

type textFanout []TextOutput

func (f textFanout) PublishText(value string) {
	for _, o := range f {
		o.PublishText(value)
	}
}

type statusFanout []StatusOutput

func (f statusFanout) PublishStatus(component string, status model.Status) {
	for _, o := range f {
		o.PublishStatus(component, status)
	}
}

// Outputs resolves metric ids to the fan-out of every sink that accepted
// them. Metrics that are disabled or that no sink accepted resolve to nil.
type Outputs struct {
	values map[string]Output
	texts  map[string]TextOutput
	status StatusOutput
}

// NewOutputs wires the enabled metrics to sinks. Each sink may implement
// any of Sink, TextSink and StatusOutput. An empty enabled list enables
// everything.
func NewOutputs(enabled []string, sinks ...any) *Outputs {
	allowed := map[string]bool{}
	for _, id := range enabled {
		allowed[id] = true
	}

	o := &Outputs{values: map[string]Output{}, texts: map[string]TextOutput{}}
	var statuses statusFanout

	for _, m := range Metrics {
		if len(allowed) > 0 && !allowed[m.ID] {
			continue
		}
		var values fanout
		var texts textFanout
		for _, s := range sinks {
			if m.Text {
				if ts, ok := s.(TextSink); ok {
					if out := ts.TextOutput(m); out != nil {
						texts = append(texts, out)
					}
				}
				continue
			}
			if vs, ok := s.(Sink); ok {
				if out := vs.Output(m); out != nil {
					values = append(values, out)
				}
			}
		}
		if len(values) > 0 {
			o.values[m.ID] = values
		}
		if len(texts) > 0 {
			o.texts[m.ID] = texts
		}
	}

	for _, s := range sinks {
		if so, ok := s.(StatusOutput); ok {
			statuses = append(statuses, so)
		}
	}
	if len(statuses) > 0 {
		o.status = statuses
	}
	return o
}

func (o *Outputs) Get(id string) Output {
	if out, ok := o.values[id]; ok {
		return out
	}
	return nil
}

func (o *Outputs) Text(id string) TextOutput {
	if out, ok := o.texts[id]; ok {
		return out
	}
	return nil
}

func (o *Outputs) Status() StatusOutput {
	return o.status
}
