package pagination

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Fetch runs the page query and the count query concurrently. Both must apply
// the same filter predicate so the metadata describes the returned items.
func Fetch[T any](
	ctx context.Context,
	p Params,
	list func(ctx context.Context) ([]T, error),
	count func(ctx context.Context) (int, error),
) (Page[T], error) {
	var (
		items []T
		total int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		items, err = list(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		total, err = count(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return Page[T]{}, err
	}
	return NewPage(p, items, total), nil
}
