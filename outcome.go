package vigil

import (
	"time"

	"github.com/rs/xid"
)

// Outcome describes the result of a sensor run. Callers branch on State: StateSuccess and
// StateSkipped come with a nil error from Execute, StateFailed with a non-nil one.
type Outcome struct {
	TaskName  string
	RunID     xid.ID
	State     State
	StartedAt time.Time
	Elapsed   time.Duration
	// Timeout is the configured timeout, zero when polling is unbounded.
	Timeout time.Duration
	Pokes   int64
}

// Done reports whether the outcome is terminal.
func (o Outcome) Done() bool {
	return o.State.Terminal()
}

// Skipped reports whether the run timed out with soft fail set.
func (o Outcome) Skipped() bool {
	return o.State == StateSkipped
}

// Succeeded reports whether the condition was met.
func (o Outcome) Succeeded() bool {
	return o.State == StateSuccess
}
