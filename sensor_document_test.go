package vigil

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentSensor(t *testing.T) {
	hook := newFakeDocs()
	hook.insert("", "foo", map[string]any{"bar": "baz"})
	hook.insert("nontest", "nontest", map[string]any{"1": "2"})

	t.Run("poke finds document", func(t *testing.T) {
		sensor := &DocumentSensor{Hook: hook, Query: DocumentQuery{
			Collection: "foo",
			Filter:     map[string]any{"bar": "baz"},
		}}
		ok, err := sensor.Poke(context.Background())
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("poke with database", func(t *testing.T) {
		sensor := &DocumentSensor{Hook: hook, Query: DocumentQuery{
			Database:   "nontest",
			Collection: "nontest",
			Filter:     map[string]any{"1": "2"},
		}}
		ok, err := sensor.Poke(context.Background())
		require.NoError(t, err)
		assert.True(t, ok)

		// Same query against the default namespace finds nothing.
		sensor.Query.Database = ""
		ok, err = sensor.Poke(context.Background())
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("execute times out on empty collection", func(t *testing.T) {
		s := fastSensor(t, "empty", &DocumentSensor{Hook: hook, Query: DocumentQuery{
			Collection: "empty",
			Filter:     map[string]any{"bar": "baz"},
		}}, WithTimeout(30*time.Millisecond))
		_, err := s.Execute(context.Background())
		assert.ErrorIs(t, err, ErrSensorTimeout)
	})

	t.Run("hook error propagates", func(t *testing.T) {
		broken := newFakeDocs()
		broken.err = ResourceError("find", errors.New("server selection timeout"))
		s := fastSensor(t, "broken", &DocumentSensor{Hook: broken, Query: DocumentQuery{
			Collection: "foo",
			Filter:     map[string]any{},
		}})
		out, err := s.Execute(context.Background())
		assert.ErrorIs(t, err, ErrResource)
		assert.Equal(t, StateFailed, out.State)
	})

	t.Run("validation", func(t *testing.T) {
		assert.ErrorIs(t, (&DocumentSensor{}).Validate(), ErrInvalidConfig)
		assert.ErrorIs(t, (&DocumentSensor{Hook: hook, Query: DocumentQuery{Collection: "foo"}}).Validate(), ErrInvalidConfig)
		assert.NoError(t, (&DocumentSensor{Hook: hook, Query: DocumentQuery{Collection: "foo", Filter: map[string]any{}}}).Validate())
	})
}
