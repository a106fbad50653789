package sink

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"
)

type multi struct {
	sinks []Sink
}

// NewMulti fans a batch out to every sink concurrently. Every sink is attempted
// even when another fails; the returned error joins all failures.
func NewMulti(sinks ...Sink) (Sink, error) {
	if len(sinks) == 0 {
		return nil, ErrNoSinks
	}
	if len(sinks) == 1 {
		return sinks[0], nil
	}
	return &multi{sinks: sinks}, nil
}

func (m *multi) Send(ctx context.Context, b *Batch) error {
	errs := make([]error, len(m.sinks))

	var g errgroup.Group
	for i, s := range m.sinks {
		g.Go(func() error {
			errs[i] = s.Send(ctx, b)
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}
