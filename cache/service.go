package cache

import (
	"context"
	"errors"
)

// KeySerializer builds a cache key from a namespace + arbitrary args.
// It is responsible for producing stable keys across calls.
type KeySerializer interface {
	SerializeKey(namespace string, args ...any) string
}

// LoadFn is the function signature CacheService expects when fetching from the source of truth.
type LoadFn[T any] func(ctx context.Context) (T, error)

// ErrMissing is returned by a LoadFn to report that the record does not exist.
// Services that store missing records answer later reads with ErrMissing
// without calling the loader again until the entry expires.
var ErrMissing = errors.New("cache: missing record")

// CacheService exposes plain read-through caching with a fixed TTL. It backs
// small, rarely changing lookups such as the auth session, which do not need
// the observer and staleness machinery of Store.
type CacheService interface {
	GetOrFetch(ctx context.Context, key string, fetchFn func(context.Context) (any, error)) (any, error)
	Delete(ctx context.Context, key string) error
	DeleteByPrefix(ctx context.Context, prefix string) error
}

// GetOrFetch is a type-safe wrapper function that provides generic support for CacheService.
func GetOrFetch[T any](ctx context.Context, service CacheService, key string, fetchFn LoadFn[T]) (T, error) {
	var zero T

	result, err := service.GetOrFetch(ctx, key, func(ctx context.Context) (any, error) {
		return fetchFn(ctx)
	})
	if err != nil {
		return zero, err
	}

	if result == nil {
		return zero, nil
	}
	typed, ok := result.(T)
	if !ok {
		return zero, ErrInvalidResultType
	}
	return typed, nil
}
