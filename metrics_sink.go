package vigil

import "time"

// MetricsSink is a pluggable observer for sensor outcomes and lifecycle events.
// Implementations must be non-blocking or very fast; sensors invoke the sink
// inline and do not wait for anything else.
type MetricsSink interface {
	ObserveOutcome(OutcomeMetrics)
	ObserveEvent(name string, fields map[string]any)
}

// OutcomeMetrics is a snapshot of a terminal sensor outcome suitable for metrics export.
type OutcomeMetrics struct {
	TaskName string
	RunID    string
	State    string
	Elapsed  time.Duration
	Pokes    int64
	Err      string
}

// Event names passed to MetricsSink.ObserveEvent.
const (
	EventSensorStarted     = "sensor_started"
	EventSensorRescheduled = "sensor_rescheduled"
	EventPokeFailed        = "poke_failed"
)

// nopSink discards everything.
type nopSink struct{}

func (nopSink) ObserveOutcome(OutcomeMetrics) {}
func (nopSink) ObserveEvent(string, map[string]any) {}

func outcomeMetrics(o Outcome, err error) OutcomeMetrics {
	m := OutcomeMetrics{
		TaskName: o.TaskName,
		RunID:    o.RunID.String(),
		State:    o.State.String(),
		Elapsed:  o.Elapsed,
		Pokes:    o.Pokes,
	}
	if err != nil {
		m.Err = err.Error()
	}
	return m
}
