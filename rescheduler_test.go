package vigil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rescheduledSensor(t *testing.T, name string, poker Poker, opts ...SensorOption) *Sensor {
	t.Helper()
	return fastSensor(t, name, poker, append([]SensorOption{WithMode(ModeReschedule)}, opts...)...)
}

func waitResult(t *testing.T, r *Rescheduler) Result {
	t.Helper()
	select {
	case res, ok := <-r.Results():
		require.True(t, ok, "results closed")
		return res
	case <-time.After(2 * time.Second):
		t.Fatal("no result delivered")
		return Result{}
	}
}

func TestReschedulerSucceeds(t *testing.T) {
	r := NewRescheduler(4)
	defer func() { _ = r.Close() }()

	poker := trueAfter(2)
	s := rescheduledSensor(t, "rescheduled", poker, WithoutTimeout())
	require.NoError(t, r.Add(s))
	assert.Equal(t, 1, r.Pending())
	assert.Equal(t, 1, poker.Calls(), "first poke runs in Add")

	res := waitResult(t, r)
	require.NoError(t, res.Err)
	assert.Equal(t, StateSuccess, res.Outcome.State)
	assert.Equal(t, "rescheduled", res.Outcome.TaskName)
	assert.Equal(t, 3, poker.Calls())

	assert.Eventually(t, func() bool { return r.Pending() == 0 }, time.Second, 5*time.Millisecond)
}

func TestReschedulerImmediateSuccess(t *testing.T) {
	r := NewRescheduler(1)
	defer func() { _ = r.Close() }()

	require.NoError(t, r.Add(rescheduledSensor(t, "now", trueAfter(0))))
	assert.Zero(t, r.Pending())

	res := waitResult(t, r)
	assert.Equal(t, StateSuccess, res.Outcome.State)
}

func TestReschedulerTimeouts(t *testing.T) {
	r := NewRescheduler(4)
	defer func() { _ = r.Close() }()

	require.NoError(t, r.Add(rescheduledSensor(t, "hard", alwaysFalse(), WithTimeout(30*time.Millisecond))))
	require.NoError(t, r.Add(rescheduledSensor(t, "soft", alwaysFalse(),
		WithTimeout(30*time.Millisecond), WithSoftFail(true))))

	got := make(map[string]Result)
	for range 2 {
		res := waitResult(t, r)
		got[res.Outcome.TaskName] = res
	}

	assert.ErrorIs(t, got["hard"].Err, ErrSensorTimeout)
	assert.Equal(t, StateFailed, got["hard"].Outcome.State)
	assert.NoError(t, got["soft"].Err)
	assert.Equal(t, StateSkipped, got["soft"].Outcome.State)
}

func TestReschedulerAddErrors(t *testing.T) {
	r := NewRescheduler(1)

	err := r.Add(fastSensor(t, "poke-mode", alwaysFalse()))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	used := rescheduledSensor(t, "used", trueAfter(0))
	_, err = used.Execute(context.Background())
	require.NoError(t, err)
	assert.ErrorIs(t, r.Add(used), ErrAlreadyExecuted)

	polling := alwaysFalse()
	twice := rescheduledSensor(t, "twice", polling, WithPokeInterval(time.Second), WithoutTimeout())
	require.NoError(t, r.Add(twice))
	assert.ErrorIs(t, r.Add(twice), ErrAlreadyExecuted)
	assert.Equal(t, 1, r.Pending())
	assert.Equal(t, 1, polling.Calls(), "rejected add does not poke")

	stepped := alwaysFalse()
	inUse := rescheduledSensor(t, "in-use", stepped, WithoutTimeout())
	_, done, err := inUse.Step(context.Background())
	require.NoError(t, err)
	require.False(t, done)
	assert.ErrorIs(t, r.Add(inUse), ErrAlreadyExecuted)
	assert.Equal(t, 1, stepped.Calls())
	assert.Equal(t, 1, r.Pending())

	require.NoError(t, r.Close())
	assert.ErrorIs(t, r.Add(rescheduledSensor(t, "late", alwaysFalse())), ErrReschedulerClosed)
}

func TestReschedulerClose(t *testing.T) {
	r := NewRescheduler(0)
	s := rescheduledSensor(t, "pending", alwaysFalse(), WithoutTimeout())
	require.NoError(t, r.Add(s))

	require.NoError(t, r.Close())
	require.NoError(t, r.Close(), "close is idempotent")

	_, ok := <-r.Results()
	assert.False(t, ok)
	assert.Equal(t, StatePolling, s.State())
}
