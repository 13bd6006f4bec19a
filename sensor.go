package vigil

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/rs/xid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.uber.org/atomic"
)

// timeoutSlack is added to the wait that ends at the timeout, so the check right after it fires.
const timeoutSlack = time.Millisecond

// Sensor is a polling task: it pokes a condition repeatedly until the condition holds or the
// timeout expires. A Sensor is created for one scheduled run and executed once.
type Sensor struct {
	name    string
	poker   Poker
	cfg     PollConfig
	logger  zerolog.Logger
	metrics MetricsSink

	// sleep waits between pokes; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error

	state stateMachine
	pokes atomic.Int64

	mu        sync.Mutex
	runID     xid.ID
	startTime time.Time
	interval  backoff.BackOff
}

// NewSensor creates a sensor named name that waits for poker. The configuration is validated
// here, before any polling happens.
func NewSensor(name string, poker Poker, opts ...SensorOption) (*Sensor, error) {
	s := &Sensor{
		name:    name,
		poker:   poker,
		cfg:     DefaultPollConfig(),
		logger:  log.Logger,
		metrics: nopSink{},
		sleep:   sleepContext,
	}
	for _, opt := range opts {
		opt(s)
	}

	if name == "" {
		return nil, configError("sensor name is empty")
	}
	if poker == nil {
		return nil, configError("sensor %q has no poker", name)
	}
	if err := s.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("sensor %q: %w", name, err)
	}
	if v, ok := poker.(Validator); ok {
		if err := v.Validate(); err != nil {
			if !errors.Is(err, ErrInvalidConfig) {
				err = fmt.Errorf("%w: %w", ErrInvalidConfig, err)
			}
			return nil, fmt.Errorf("sensor %q: %w", name, err)
		}
	}

	s.logger = s.logger.With().Str("sensor", name).Logger()
	return s, nil
}

// Name returns the task name of the sensor.
func (s *Sensor) Name() string {
	return s.name
}

// Config returns the timing configuration of the sensor.
func (s *Sensor) Config() PollConfig {
	return s.cfg
}

// State returns the current state of the sensor.
func (s *Sensor) State() State {
	return s.state.load()
}

// StartTime returns the time of the first poke, or the zero time if the sensor has not started.
func (s *Sensor) StartTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startTime
}

// Pokes returns the number of predicate calls made so far.
func (s *Sensor) Pokes() int64 {
	return s.pokes.Load()
}

// Poke evaluates the condition once, without touching the sensor's state.
func (s *Sensor) Poke(ctx context.Context) (bool, error) {
	return s.poker.Poke(ctx)
}

// Execute runs the sensor to completion. The first poke happens immediately. After every false
// poke the sensor waits for the next interval and then checks the elapsed time against the
// timeout before poking again.
//
// The returned error is nil when the condition was met and when the run was skipped after a
// timeout with soft fail set; Outcome.State tells the two apart. A timeout without soft fail
// returns a *TimeoutError, a poke error a *PokeError.
func (s *Sensor) Execute(ctx context.Context) (Outcome, error) {
	if err := s.start(); err != nil {
		return s.outcome(), err
	}

	for {
		if out, done, err := s.pokeOnce(ctx); done {
			return out, err
		}

		if err := s.sleep(ctx, s.nextInterval()); err != nil {
			return s.abandon(err)
		}

		if out, done, err := s.checkTimeout(); done {
			return out, err
		}
	}
}

// Step runs a single poll cycle without waiting: it starts the sensor if it is pending,
// otherwise checks the timeout, and then pokes. The bool result reports whether the outcome is
// terminal. Step is what a Rescheduler calls on every tick.
func (s *Sensor) Step(ctx context.Context) (Outcome, bool, error) {
	switch s.State() {
	case StatePending:
		if err := s.start(); err != nil {
			return s.outcome(), true, err
		}
	case StatePolling:
		if out, done, err := s.checkTimeout(); done {
			return out, true, err
		}
	default:
		return s.outcome(), true, ErrAlreadyExecuted
	}
	return s.pokeOnce(ctx)
}

// start moves the sensor from pending to polling and initializes the run.
func (s *Sensor) start() error {
	if !s.state.transition(StatePending, StatePolling) {
		return fmt.Errorf("sensor %q: %w", s.name, ErrAlreadyExecuted)
	}

	s.mu.Lock()
	s.runID = xid.New()
	s.startTime = time.Now()
	s.interval = s.cfg.newBackOff()
	s.logger = s.logger.With().Str("run_id", s.runID.String()).Logger()
	s.mu.Unlock()

	s.logger.Debug().
		Dur("poke_interval", s.cfg.PokeInterval).
		Dur("timeout", s.cfg.timeout()).
		Bool("soft_fail", s.cfg.SoftFail).
		Str("mode", s.cfg.Mode.String()).
		Msg("sensor started")
	s.metrics.ObserveEvent(EventSensorStarted, map[string]any{"sensor": s.name})
	return nil
}

// pokeOnce calls the predicate and finishes the run if it returned true or an error.
func (s *Sensor) pokeOnce(ctx context.Context) (Outcome, bool, error) {
	attempt := s.pokes.Inc()
	ok, err := s.poker.Poke(ctx)
	if err != nil {
		pokeErr := &PokeError{TaskName: s.name, Attempt: attempt, Err: err}
		s.metrics.ObserveEvent(EventPokeFailed, map[string]any{"sensor": s.name, "attempt": attempt})
		out := s.finish(StateFailed, pokeErr)
		return out, true, pokeErr
	}
	if ok {
		return s.finish(StateSuccess, nil), true, nil
	}

	s.logger.Trace().Int64("attempt", attempt).Msg("condition not met")
	return s.outcome(), false, nil
}

// checkTimeout finishes the run if the elapsed time exceeds the timeout.
func (s *Sensor) checkTimeout() (Outcome, bool, error) {
	if s.cfg.Unbounded {
		return s.outcome(), false, nil
	}
	elapsed := time.Since(s.StartTime())
	if elapsed <= s.cfg.Timeout {
		return s.outcome(), false, nil
	}

	if s.cfg.SoftFail {
		s.logger.Info().Dur("elapsed", elapsed).Msg("sensor timed out, skipping")
		return s.finish(StateSkipped, nil), true, nil
	}

	timeoutErr := &TimeoutError{TaskName: s.name, Elapsed: elapsed, Timeout: s.cfg.Timeout}
	s.logger.Warn().Dur("elapsed", elapsed).Dur("timeout", s.cfg.Timeout).Msg("sensor timed out")
	return s.finish(StateFailed, timeoutErr), true, timeoutErr
}

// abandon fails the run after its context was cancelled between pokes.
func (s *Sensor) abandon(cause error) (Outcome, error) {
	err := fmt.Errorf("sensor %q abandoned: %w", s.name, cause)
	return s.finish(StateFailed, err), err
}

// finish moves the sensor to a terminal state and reports the outcome.
func (s *Sensor) finish(to State, err error) Outcome {
	if !s.state.transition(StatePolling, to) {
		// Unreachable as long as a single caller drives the run.
		s.logger.Error().Str("state", s.State().String()).Str("to", to.String()).Msg("invalid transition")
	}
	out := s.outcome()

	event := s.logger.Debug()
	if err != nil {
		event = s.logger.Error().Err(err)
	}
	event.Str("state", out.State.String()).
		Int64("pokes", out.Pokes).
		Dur("elapsed", out.Elapsed).
		Msg("sensor finished")

	s.metrics.ObserveOutcome(outcomeMetrics(out, err))
	return out
}

// nextInterval returns the wait before the next poke. A bounded run never waits past its
// timeout by more than timeoutSlack.
func (s *Sensor) nextInterval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.interval.NextBackOff()
	if d < 0 {
		d = s.cfg.PokeInterval
	}
	if !s.cfg.Unbounded {
		left := s.cfg.Timeout - time.Since(s.startTime) + timeoutSlack
		if left < 0 {
			left = 0
		}
		if d > left {
			d = left
		}
	}
	return d
}

// outcome snapshots the sensor.
func (s *Sensor) outcome() Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := Outcome{
		TaskName:  s.name,
		RunID:     s.runID,
		State:     s.state.load(),
		StartedAt: s.startTime,
		Timeout:   s.cfg.timeout(),
		Pokes:     s.pokes.Load(),
	}
	if !s.startTime.IsZero() {
		out.Elapsed = time.Since(s.startTime)
	}
	return out
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
