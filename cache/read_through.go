package cache

import (
	"context"
	"errors"

	"github.com/goliatone/go-recipe-query/internal/cacheinfra"
)

// readThrough translates between ErrMissing and the backing client's
// missing record signals.
type readThrough struct {
	svc *cacheinfra.SturdycService
}

func (r *readThrough) GetOrFetch(ctx context.Context, key string, fetchFn func(context.Context) (any, error)) (any, error) {
	v, err := r.svc.GetOrFetch(ctx, key, func(ctx context.Context) (any, error) {
		v, err := fetchFn(ctx)
		if errors.Is(err, ErrMissing) {
			return nil, cacheinfra.ErrNotFound
		}
		return v, err
	})
	if cacheinfra.IsMissing(err) {
		return nil, ErrMissing
	}
	return v, err
}

func (r *readThrough) Delete(ctx context.Context, key string) error {
	return r.svc.Delete(ctx, key)
}

func (r *readThrough) DeleteByPrefix(ctx context.Context, prefix string) error {
	return r.svc.DeleteByPrefix(ctx, prefix, Matches)
}
