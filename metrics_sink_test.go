package vigil

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsSinkReceivesOutcomes(t *testing.T) {
	sink := &stubMetricsSink{}
	s := fastSensor(t, "timeouts", alwaysFalse(), WithMetricsSink(sink))

	_, err := s.Execute(context.Background())
	require.ErrorIs(t, err, ErrSensorTimeout)

	outcomes, events := sink.snapshot()
	require.Len(t, outcomes, 1)
	got := outcomes[0]
	assert.Equal(t, "timeouts", got.TaskName)
	assert.Equal(t, "failed", got.State)
	assert.NotEmpty(t, got.RunID)
	assert.Contains(t, got.Err, "timed out")
	assert.Greater(t, got.Pokes, int64(1))
	assert.Equal(t, []string{EventSensorStarted}, events)
}

func TestMetricsSinkReceivesPokeFailures(t *testing.T) {
	sink := &stubMetricsSink{}
	poker := &MockPoker{err: errors.New("boom"), errAt: 1}
	s := fastSensor(t, "fails", poker, WithMetricsSink(sink))

	_, err := s.Execute(context.Background())
	require.Error(t, err)

	outcomes, events := sink.snapshot()
	require.Len(t, outcomes, 1)
	assert.Equal(t, "failed", outcomes[0].State)
	assert.Contains(t, outcomes[0].Err, "boom")
	assert.Equal(t, []string{EventSensorStarted, EventPokeFailed}, events)
}

func TestOutcomeMetrics(t *testing.T) {
	m := outcomeMetrics(Outcome{TaskName: "t", State: StateSkipped, Pokes: 3}, nil)
	assert.Equal(t, "t", m.TaskName)
	assert.Equal(t, "skipped", m.State)
	assert.Equal(t, int64(3), m.Pokes)
	assert.Empty(t, m.Err)
}
