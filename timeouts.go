package vigil

import (
	"math"
	"time"

	"github.com/cenkalti/backoff"
)

const (
	// DefaultPokeInterval is the time between pokes when none is configured.
	DefaultPokeInterval = 60 * time.Second
	// DefaultTimeout is the polling timeout when none is configured.
	DefaultTimeout = 7 * 24 * time.Hour
)

// Mode selects how a sensor waits between pokes.
type Mode uint8

const (
	// ModePoke keeps the caller's goroutine for the whole run, sleeping between pokes.
	ModePoke Mode = iota
	// ModeReschedule releases the caller between pokes; a Rescheduler drives each poke.
	ModeReschedule
)

func (m Mode) String() string {
	switch m {
	case ModePoke:
		return "poke"
	case ModeReschedule:
		return "reschedule"
	default:
		return "unknown"
	}
}

// PollConfig configures the timing of a sensor.
type PollConfig struct {
	// PokeInterval is the time to wait after a false poke. Zero is a busy poll.
	PokeInterval time.Duration

	// Timeout is the maximum total time the sensor may poll. It is checked after each wait,
	// before the next poke. Ignored when Unbounded is set.
	Timeout time.Duration

	// Unbounded disables the timeout.
	Unbounded bool

	// SoftFail turns a timeout into a skip.
	SoftFail bool

	// ExponentialBackoff doubles the wait after every false poke, starting at PokeInterval.
	ExponentialBackoff bool

	// MaxWait caps the wait between pokes when ExponentialBackoff is set. Zero means no cap.
	MaxWait time.Duration

	Mode Mode
}

// DefaultPollConfig returns the configuration sensors start from.
func DefaultPollConfig() PollConfig {
	return PollConfig{
		PokeInterval: DefaultPokeInterval,
		Timeout:      DefaultTimeout,
		Mode:         ModePoke,
	}
}

// Validate checks that the PollConfig is valid.
func (c PollConfig) Validate() error {
	if c.PokeInterval < 0 {
		return configError("PokeInterval cannot be negative")
	}
	if c.Timeout < 0 {
		return configError("Timeout cannot be negative")
	}
	if c.MaxWait < 0 {
		return configError("MaxWait cannot be negative")
	}
	switch c.Mode {
	case ModePoke:
	case ModeReschedule:
		if c.ExponentialBackoff {
			return configError("ExponentialBackoff is not supported in reschedule mode")
		}
		if c.PokeInterval == 0 {
			return configError("PokeInterval must be positive in reschedule mode")
		}
	default:
		return configError("unknown mode %d", c.Mode)
	}
	return nil
}

// timeout returns the configured timeout, or zero when unbounded.
func (c PollConfig) timeout() time.Duration {
	if c.Unbounded {
		return 0
	}
	return c.Timeout
}

// newBackOff returns the interval policy for one sensor run. The policy never returns
// backoff.Stop; the sensor enforces the timeout itself.
func (c PollConfig) newBackOff() backoff.BackOff {
	if !c.ExponentialBackoff {
		return backoff.NewConstantBackOff(c.PokeInterval)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.PokeInterval
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = time.Duration(math.MaxInt64)
	if c.MaxWait > 0 {
		b.MaxInterval = c.MaxWait
	}
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}
