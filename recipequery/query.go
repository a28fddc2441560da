package recipequery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-recipe-query/cache"
	"github.com/goliatone/go-recipe-query/internal/background"
	"github.com/goliatone/go-recipe-query/recipe"
)

// Result is what a query hands its consumer. Errors are carried in Error and
// never returned separately.
type Result[T any] struct {
	Data    T
	HasData bool
	Status  cache.Status
	Error   error

	// IsLoading is true while there is no data to show: before the first
	// result, and forever for a disabled query.
	IsLoading    bool
	IsFetching   bool
	IsRefetching bool
	IsStale      bool
	UpdatedAt    time.Time
	Enabled      bool
}

// Query is one declared read. While enabled it observes its cache entry until
// Close, which keeps the entry from being collected.
type Query[T any] struct {
	store   cache.Store
	key     string
	policy  cache.Policy
	fetch   cache.FetchFn
	decode  func(cache.Value) (T, error)
	enabled bool

	once    sync.Once
	release func()
}

func newQuery[T any](store cache.Store, key string, policy cache.Policy, enabled bool, fetch cache.FetchFn, decode func(cache.Value) (T, error)) *Query[T] {
	q := &Query[T]{
		store:   store,
		key:     key,
		policy:  policy,
		fetch:   fetch,
		decode:  decode,
		enabled: enabled,
		release: func() {},
	}
	if enabled {
		q.release = store.Observe(key, policy)
	}
	return q
}

// Key returns the cache key, empty for a disabled query.
func (q *Query[T]) Key() string { return q.key }

// Enabled reports whether the query will ever fetch.
func (q *Query[T]) Enabled() bool { return q.enabled }

// Result serves the query from cache, fetching when the entry is missing or
// stale. A stale entry is returned at once while it refreshes in the background.
func (q *Query[T]) Result(ctx context.Context) Result[T] {
	if !q.enabled {
		return q.disabled()
	}
	snap, err := q.store.Fetch(ctx, q.key, q.policy, q.fetch)
	return q.build(snap, err)
}

// Refetch always fetches and waits for the result.
func (q *Query[T]) Refetch(ctx context.Context) Result[T] {
	if !q.enabled {
		return q.disabled()
	}
	snap, err := q.store.Refetch(ctx, q.key, q.policy, q.fetch)
	return q.build(snap, err)
}

// Peek returns the cached state without fetching.
func (q *Query[T]) Peek() Result[T] {
	if !q.enabled {
		return q.disabled()
	}
	snap, _ := q.store.Snapshot(q.key)
	return q.build(snap, nil)
}

// Watch calls fn with the new state after every change to the entry. The
// returned func stops watching.
func (q *Query[T]) Watch(fn func(Result[T])) (stop func()) {
	if !q.enabled {
		return func() {}
	}
	return q.store.Subscribe(cache.Exact(q.key), func(ev cache.Event) {
		fn(q.build(ev.Snapshot, nil))
	})
}

// Close releases the observation. It is safe to call more than once.
func (q *Query[T]) Close() {
	q.once.Do(q.release)
}

func (q *Query[T]) disabled() Result[T] {
	return Result[T]{Status: cache.StatusIdle, IsLoading: true}
}

func (q *Query[T]) build(snap cache.Snapshot, err error) Result[T] {
	r := Result[T]{
		Status:     snap.Status,
		Error:      snap.Err,
		IsFetching: snap.IsFetching,
		IsStale:    snap.IsStale,
		UpdatedAt:  snap.UpdatedAt,
		Enabled:    true,
	}
	if err != nil {
		r.Error = err
	}
	if snap.HasValue() {
		data, derr := q.decode(snap.Value)
		if derr != nil {
			r.Error = fmt.Errorf("%s: %w", q.key, derr)
		} else {
			r.Data = data
			r.HasData = true
		}
	}
	r.IsLoading = !r.HasData && r.Error == nil
	r.IsRefetching = r.IsFetching && r.HasData
	return r
}

func decodeList(v cache.Value) ([]recipe.Summary, error) {
	l, err := cache.ValueAs[cache.List[recipe.Summary]](v)
	if err != nil {
		return nil, err
	}
	return l.Items, nil
}

// DetailData is the detail query's payload. Found is false when the id did
// not resolve to a published recipe.
type DetailData = cache.Single[recipe.Detail]

func decodeDetail(v cache.Value) (DetailData, error) {
	return cache.ValueAs[DetailData](v)
}

// listValue removes repeated ids, keeping first occurrences.
func listValue(items []recipe.Summary) cache.List[recipe.Summary] {
	out := make([]recipe.Summary, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, s := range items {
		if _, dup := seen[s.ID]; dup {
			continue
		}
		seen[s.ID] = struct{}{}
		out = append(out, s)
	}
	return cache.List[recipe.Summary]{Items: out}
}

// Recipes is the filtered list query. A filter that fails validation fails
// the query without retrying.
func (c *Client) Recipes(v Viewer, f recipe.Filter) *Query[[]recipe.Summary] {
	f = f.Normalized()
	fetch := func(ctx context.Context, _ cache.Value) (cache.Value, error) {
		if err := f.Validate(); err != nil {
			return nil, cache.Permanent(err)
		}
		items, err := c.gateway.ListRecipes(ctx, recipe.ListRequest{Filter: f, UserID: v.UserID})
		if err != nil {
			return nil, permanentIfInvalid(err)
		}
		return listValue(items), nil
	}
	return newQuery(c.store, c.keys.List(v, f), c.policies.List, true, fetch, decodeList)
}

// Featured is the featured recipes query.
func (c *Client) Featured(v Viewer) *Query[[]recipe.Summary] {
	fetch := func(ctx context.Context, _ cache.Value) (cache.Value, error) {
		items, err := c.gateway.FeaturedRecipes(ctx, v.UserID)
		if err != nil {
			return nil, err
		}
		return listValue(items), nil
	}
	return newQuery(c.store, c.keys.Featured(v), c.policies.Featured, true, fetch, decodeList)
}

// Saved lists the viewer's saved recipes. It is disabled for anonymous viewers.
func (c *Client) Saved(v Viewer) *Query[[]recipe.Summary] {
	fetch := func(ctx context.Context, _ cache.Value) (cache.Value, error) {
		items, err := c.gateway.SavedRecipes(ctx, v.UserID)
		if err != nil {
			return nil, err
		}
		for i := range items {
			items[i].IsSaved = true
		}
		return listValue(items), nil
	}
	key := ""
	if !v.IsAnonymous() {
		key = c.keys.Saved(v)
	}
	return newQuery(c.store, key, c.policies.Saved, !v.IsAnonymous(), fetch, decodeList)
}

// Detail is the single recipe query. It is disabled while id is blank. Every
// successful fetch, and not every cache hit, queues one view count increment.
func (c *Client) Detail(v Viewer, id string) *Query[DetailData] {
	id = strings.TrimSpace(id)
	enabled := id != ""

	fetch := func(ctx context.Context, _ cache.Value) (cache.Value, error) {
		d, err := c.gateway.RecipeDetail(ctx, id, v.UserID)
		if errors.Is(err, recipe.ErrNotFound) {
			return DetailData{}, nil
		}
		if err != nil {
			return nil, err
		}
		d.SortParts()
		c.countView(ctx, id)
		return DetailData{Item: d, Found: true}, nil
	}

	key := ""
	if enabled {
		key = c.keys.Detail(v, id)
	}
	return newQuery(c.store, key, c.policies.Detail, enabled, fetch, decodeDetail)
}

func (c *Client) countView(ctx context.Context, id string) {
	job := background.JobFunc{
		Label: "increment_view_count",
		Fn: func(ctx context.Context) error {
			return c.gateway.IncrementViewCount(ctx, id)
		},
	}
	if !c.pool.Enqueue(ctx, job) {
		c.logger.Warn("view count dropped", "recipe_id", id)
	}
}

func permanentIfInvalid(err error) error {
	if errors.Is(err, recipe.ErrInvalidFilter) {
		return cache.Permanent(err)
	}
	return err
}
