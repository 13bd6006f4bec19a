package vigil

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// RunAll executes independent sensors concurrently and waits for all of them. Outcomes are
// returned in the order of the sensors; the error is the first one returned by any Execute.
// Sensors do not cancel each other.
func RunAll(ctx context.Context, sensors ...*Sensor) ([]Outcome, error) {
	outcomes := make([]Outcome, len(sensors))

	var g errgroup.Group
	for i, s := range sensors {
		g.Go(func() error {
			out, err := s.Execute(ctx)
			outcomes[i] = out
			return err
		})
	}
	err := g.Wait()
	return outcomes, err
}
