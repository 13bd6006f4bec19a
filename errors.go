package vigil

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidConfig indicates a sensor or hook was configured with invalid parameters.
	ErrInvalidConfig = errors.New("invalid sensor configuration")

	// ErrSensorTimeout is matched by every *TimeoutError.
	ErrSensorTimeout = errors.New("sensor timed out")

	// ErrAlreadyExecuted is returned when Execute is called on a sensor that has left Pending.
	ErrAlreadyExecuted = errors.New("sensor already executed")

	// ErrResource marks a failed call to the resource behind a hook, e.g. a connection error.
	ErrResource = errors.New("resource error")
)

// configError wraps a message with ErrInvalidConfig.
func configError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// TimeoutError is returned by Execute when the sensor polled for longer than its timeout.
type TimeoutError struct {
	TaskName string
	Elapsed  time.Duration
	Timeout  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("sensor %q timed out after %s (timeout %s)", e.TaskName, e.Elapsed, e.Timeout)
}

// Is reports whether target is ErrSensorTimeout.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrSensorTimeout
}

// PokeError wraps an error returned by the predicate. The sensor does not retry it.
type PokeError struct {
	TaskName string
	Attempt  int64
	Err      error
}

func (e *PokeError) Error() string {
	return fmt.Sprintf("sensor %q poke %d failed: %v", e.TaskName, e.Attempt, e.Err)
}

func (e *PokeError) Unwrap() error {
	return e.Err
}

// ResourceError wraps err with ErrResource, adding the operation that failed.
func ResourceError(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrResource, op, err)
}
