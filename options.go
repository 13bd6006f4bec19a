package vigil

import (
	"time"

	"github.com/rs/zerolog"
)

// SensorOption is a functional option for the Sensor struct.
type SensorOption func(*Sensor)

// WithPollConfig replaces the whole timing configuration of the sensor.
func WithPollConfig(cfg PollConfig) SensorOption {
	return func(s *Sensor) { s.cfg = cfg }
}

// WithPokeInterval sets the time to wait after a false poke.
func WithPokeInterval(d time.Duration) SensorOption {
	return func(s *Sensor) { s.cfg.PokeInterval = d }
}

// WithTimeout sets the maximum time the sensor may poll.
func WithTimeout(d time.Duration) SensorOption {
	return func(s *Sensor) {
		s.cfg.Timeout = d
		s.cfg.Unbounded = false
	}
}

// WithoutTimeout lets the sensor poll until its condition holds or its context is cancelled.
func WithoutTimeout() SensorOption {
	return func(s *Sensor) { s.cfg.Unbounded = true }
}

// WithSoftFail makes a timeout end the run as skipped instead of failed.
func WithSoftFail(softFail bool) SensorOption {
	return func(s *Sensor) { s.cfg.SoftFail = softFail }
}

// WithExponentialBackoff doubles the wait after each false poke, capped by maxWait when it is
// positive.
func WithExponentialBackoff(maxWait time.Duration) SensorOption {
	return func(s *Sensor) {
		s.cfg.ExponentialBackoff = true
		s.cfg.MaxWait = maxWait
	}
}

// WithMode sets how the sensor waits between pokes.
func WithMode(m Mode) SensorOption {
	return func(s *Sensor) { s.cfg.Mode = m }
}

// WithLogger sets the logger of the sensor. The sensor adds its own name and run ID fields.
func WithLogger(l zerolog.Logger) SensorOption {
	return func(s *Sensor) { s.logger = l }
}

// WithMetricsSink registers a sink observing the sensor's outcome and events.
func WithMetricsSink(sink MetricsSink) SensorOption {
	return func(s *Sensor) {
		if sink != nil {
			s.metrics = sink
		}
	}
}
