package vigil

import (
	"bytes"
	"context"

	"github.com/rs/zerolog/log"
)

// KVHook is the query surface of a key/value store.
type KVHook interface {
	// Get returns the value stored at key. The bool result is false when the key is absent.
	Get(ctx context.Context, key string) ([]byte, bool, error)
}

// KVSensor waits for a key to exist, and optionally to hold an exact value.
type KVSensor struct {
	Hook KVHook
	Key  string
	// Value, when non-nil, must equal the stored value.
	Value []byte
}

// Validate checks that the KVSensor is ready to poke.
func (s *KVSensor) Validate() error {
	if s.Hook == nil {
		return configError("KVSensor has no hook")
	}
	if s.Key == "" {
		return configError("KVSensor key is empty")
	}
	return nil
}

// Poke reports whether the key exists with the expected value.
func (s *KVSensor) Poke(ctx context.Context) (bool, error) {
	log.Trace().Str("key", s.Key).Msg("poking for key")

	value, ok, err := s.Hook.Get(ctx, s.Key)
	if err != nil || !ok {
		return false, err
	}
	if s.Value != nil && !bytes.Equal(value, s.Value) {
		return false, nil
	}
	return true, nil
}
