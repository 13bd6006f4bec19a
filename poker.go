package vigil

import "context"

// Poker is the condition a Sensor waits for. Poke must be a pure query: it must not change the
// resource it inspects, and repeated calls against an unchanged resource return the same result.
// A false result means "not yet"; an error fails the sensor run.
type Poker interface {
	Poke(ctx context.Context) (bool, error)
}

// PokeFunc adapts a plain function to the Poker interface.
type PokeFunc func(ctx context.Context) (bool, error)

// Poke calls f(ctx).
func (f PokeFunc) Poke(ctx context.Context) (bool, error) {
	return f(ctx)
}

// Validator is implemented by pokers that can check their own configuration. NewSensor calls
// Validate before accepting the poker.
type Validator interface {
	Validate() error
}
