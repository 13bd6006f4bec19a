package vigil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunAll(t *testing.T) {
	t.Run("all succeed", func(t *testing.T) {
		outcomes, err := RunAll(context.Background(),
			fastSensor(t, "a", trueAfter(0)),
			fastSensor(t, "b", trueAfter(2)),
			fastSensor(t, "c", alwaysFalse(), WithTimeout(20*time.Millisecond), WithSoftFail(true)),
		)
		require.NoError(t, err)
		require.Len(t, outcomes, 3)
		assert.Equal(t, "a", outcomes[0].TaskName)
		assert.Equal(t, StateSuccess, outcomes[0].State)
		assert.Equal(t, StateSuccess, outcomes[1].State)
		assert.Equal(t, StateSkipped, outcomes[2].State)
	})

	t.Run("one failure does not cancel the others", func(t *testing.T) {
		outcomes, err := RunAll(context.Background(),
			fastSensor(t, "fails", alwaysFalse(), WithTimeout(0)),
			fastSensor(t, "succeeds", trueAfter(4)),
		)
		assert.ErrorIs(t, err, ErrSensorTimeout)
		assert.Equal(t, StateFailed, outcomes[0].State)
		assert.Equal(t, StateSuccess, outcomes[1].State)
	})

	t.Run("no sensors", func(t *testing.T) {
		outcomes, err := RunAll(context.Background())
		require.NoError(t, err)
		assert.Empty(t, outcomes)
	})
}
