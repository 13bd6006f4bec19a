// Package metrics exports sensor outcomes and events to a go-metrics registry.
package metrics

import (
	"strings"

	gometrics "github.com/rcrowley/go-metrics"

	"github.com/jkbrsn/vigil"
)

const sampleSize = 1000

// RegistrySink is a vigil.MetricsSink recording into a go-metrics registry:
//
//	<prefix>.outcomes.<state>               counter of terminal outcomes per state
//	<prefix>.sensor.<name>.outcomes.<state> same, per sensor name
//	<prefix>.elapsed                        timer of run durations
//	<prefix>.pokes                          histogram of pokes per run
//	<prefix>.events.<event>                 counter per event name
type RegistrySink struct {
	registry gometrics.Registry
	prefix   string
}

// NewRegistrySink creates a sink recording into registry under prefix. A nil registry means
// the go-metrics default registry.
func NewRegistrySink(registry gometrics.Registry, prefix string) *RegistrySink {
	if registry == nil {
		registry = gometrics.DefaultRegistry
	}
	return &RegistrySink{registry: registry, prefix: strings.TrimSuffix(prefix, ".")}
}

// Registry returns the underlying registry.
func (s *RegistrySink) Registry() gometrics.Registry {
	return s.registry
}

// ObserveOutcome records a terminal outcome.
func (s *RegistrySink) ObserveOutcome(m vigil.OutcomeMetrics) {
	gometrics.GetOrRegisterCounter(s.name("outcomes", m.State), s.registry).Inc(1)
	gometrics.GetOrRegisterCounter(s.name("sensor", m.TaskName, "outcomes", m.State), s.registry).Inc(1)
	gometrics.GetOrRegisterTimer(s.name("elapsed"), s.registry).Update(m.Elapsed)
	gometrics.GetOrRegisterHistogram(s.name("pokes"), s.registry, gometrics.NewUniformSample(sampleSize)).Update(m.Pokes)
}

// ObserveEvent counts an event. Fields are not recorded.
func (s *RegistrySink) ObserveEvent(name string, _ map[string]any) {
	gometrics.GetOrRegisterCounter(s.name("events", name), s.registry).Inc(1)
}

func (s *RegistrySink) name(parts ...string) string {
	if s.prefix == "" {
		return strings.Join(parts, ".")
	}
	return s.prefix + "." + strings.Join(parts, ".")
}
