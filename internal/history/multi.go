package history

import (
	"context"
	"errors"
	"io"
	"time"

	"golang.org/x/sync/errgroup"
)

// Multi sends every event to all sinks concurrently. A failing sink does
// not stop delivery to the others.
type Multi []Sink

func (m Multi) Send(ctx context.Context, e Event) error {
	var g errgroup.Group
	for _, s := range m {
		g.Go(func() error { return s.Send(ctx, e) })
	}
	return g.Wait()
}

// Query reads from the first sink that supports it.
func (m Multi) Query(ctx context.Context, mod string, since time.Time, limit int) ([]Event, error) {
	for _, s := range m {
		if q, ok := s.(Querier); ok {
			return q.Query(ctx, mod, since, limit)
		}
	}
	return nil, ErrNoQuerier
}

func (m Multi) PurgeOlderThan(ctx context.Context, t time.Time) (int64, error) {
	var g errgroup.Group
	counts := make([]int64, len(m))
	for i, s := range m {
		p, ok := s.(Purger)
		if !ok {
			continue
		}
		g.Go(func() error {
			n, err := p.PurgeOlderThan(ctx, t)
			counts[i] = n
			return err
		})
	}
	err := g.Wait()
	var total int64
	for _, n := range counts {
		total += n
	}
	return total, err
}

func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if c, ok := s.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}
