package recipequery

import (
	"context"
	"sync/atomic"

	"github.com/goliatone/go-recipe-query/cache"
	"github.com/goliatone/go-recipe-query/recipe"
)

// Pages is the cached value of an infinite query.
type Pages = cache.PagedList[recipe.Summary]

// InfiniteResult adds paging state to a query result.
type InfiniteResult struct {
	Result[Pages]
	// Items is every loaded item in page order.
	Items              []recipe.Summary
	HasNextPage        bool
	IsFetchingNextPage bool
}

// InfiniteQuery loads a filtered list in fixed size pages at offset
// pageIndex*pageSize. Offsets are recomputed from the number of loaded pages,
// so rows inserted or removed between page loads can be skipped or repeated.
type InfiniteQuery struct {
	q        *Query[Pages]
	gateway  recipe.Gateway
	viewer   Viewer
	filter   recipe.Filter
	pageSize int

	fetchingNext atomic.Bool
}

// Infinite builds an infinite query. Limit and offset of f are ignored; a
// non-positive pageSize uses the client default.
func (c *Client) Infinite(v Viewer, f recipe.Filter, pageSize int) *InfiniteQuery {
	if pageSize <= 0 {
		pageSize = c.pageSize
	}
	f = f.Normalized().WithoutPaging()

	iq := &InfiniteQuery{
		gateway:  c.gateway,
		viewer:   v,
		filter:   f,
		pageSize: pageSize,
	}
	iq.q = newQuery(c.store, c.keys.Infinite(v, f, pageSize), c.policies.Infinite, true, iq.fetchAll, cache.ValueAs[Pages])
	return iq
}

func (iq *InfiniteQuery) page(ctx context.Context, offset int) ([]recipe.Summary, error) {
	if err := iq.filter.Validate(); err != nil {
		return nil, cache.Permanent(err)
	}
	items, err := iq.gateway.ListRecipes(ctx, recipe.ListRequest{
		Filter: iq.filter.WithPage(iq.pageSize, offset),
		UserID: iq.viewer.UserID,
	})
	if err != nil {
		return nil, permanentIfInvalid(err)
	}
	if items == nil {
		items = []recipe.Summary{}
	}
	return items, nil
}

// fetchAll reloads as many pages as are loaded, at least one, stopping early
// at a short page.
func (iq *InfiniteQuery) fetchAll(ctx context.Context, prev cache.Value) (cache.Value, error) {
	want := 1
	if p, ok := prev.(Pages); ok && len(p.Pages) > want {
		want = len(p.Pages)
	}

	out := Pages{PageSize: iq.pageSize, Pages: make([][]recipe.Summary, 0, want)}
	for i := 0; i < want; i++ {
		items, err := iq.page(ctx, i*iq.pageSize)
		if err != nil {
			return nil, err
		}
		out.Pages = append(out.Pages, items)
		if len(items) < iq.pageSize {
			break
		}
	}
	return out, nil
}

// fetchNext loads the page after the ones in prev and returns it alone, with
// the index it belongs at. With nothing loaded it reloads every page and
// returns index -1.
func (iq *InfiniteQuery) fetchNext(ctx context.Context, prev cache.Value) (cache.Value, int, error) {
	p, ok := prev.(Pages)
	if !ok || len(p.Pages) == 0 {
		v, err := iq.fetchAll(ctx, prev)
		return v, -1, err
	}
	if !p.HasNextPage() {
		return Pages{PageSize: p.PageSize}, len(p.Pages), nil
	}

	items, err := iq.page(ctx, p.NextOffset())
	if err != nil {
		return nil, 0, err
	}
	return Pages{PageSize: p.PageSize, Pages: [][]recipe.Summary{items}}, len(p.Pages), nil
}

// appendPage puts the pages of fetched at index at of current. A value whose
// pages were reloaded meanwhile to fewer than at is kept as is.
func appendPage(current, fetched cache.Value, at int) cache.Value {
	if at < 0 {
		return fetched
	}
	cur, ok := current.(Pages)
	next, ok2 := fetched.(Pages)
	if !ok || !ok2 || len(cur.Pages) < at {
		return current
	}
	pages := make([][]recipe.Summary, at, at+len(next.Pages))
	copy(pages, cur.Pages[:at])
	return Pages{PageSize: cur.PageSize, Pages: append(pages, next.Pages...)}
}

// Key returns the cache key.
func (iq *InfiniteQuery) Key() string { return iq.q.Key() }

// PageSize returns the requested page length.
func (iq *InfiniteQuery) PageSize() int { return iq.pageSize }

// Result serves the loaded pages, fetching the first page on a miss.
func (iq *InfiniteQuery) Result(ctx context.Context) InfiniteResult {
	return iq.wrap(iq.q.Result(ctx))
}

// Refetch reloads every loaded page.
func (iq *InfiniteQuery) Refetch(ctx context.Context) InfiniteResult {
	return iq.wrap(iq.q.Refetch(ctx))
}

// Peek returns the loaded pages without fetching.
func (iq *InfiniteQuery) Peek() InfiniteResult {
	return iq.wrap(iq.q.Peek())
}

// FetchNextPage loads the next page. It is a no-op while any fetch of this
// query is in flight and once the last page was short.
func (iq *InfiniteQuery) FetchNextPage(ctx context.Context) InfiniteResult {
	current := iq.q.Peek()
	if !current.HasData {
		if current.IsFetching {
			return iq.wrap(current)
		}
		return iq.Result(ctx)
	}
	if current.IsFetching || !current.Data.HasNextPage() {
		return iq.wrap(current)
	}
	if !iq.fetchingNext.CompareAndSwap(false, true) {
		return iq.wrap(current)
	}
	// fetch and merge run on the same goroutine, one after the other
	at := -1
	fetch := func(ctx context.Context, prev cache.Value) (cache.Value, error) {
		v, idx, err := iq.fetchNext(ctx, prev)
		at = idx
		return v, err
	}
	merge := func(current, fetched cache.Value) cache.Value {
		return appendPage(current, fetched, at)
	}
	snap, _, err := iq.q.store.Extend(ctx, iq.q.key, iq.q.policy, fetch, merge)
	iq.fetchingNext.Store(false)
	return iq.wrap(iq.q.build(snap, err))
}

// Close releases the observation.
func (iq *InfiniteQuery) Close() { iq.q.Close() }

func (iq *InfiniteQuery) wrap(r Result[Pages]) InfiniteResult {
	out := InfiniteResult{
		Result:             r,
		IsFetchingNextPage: iq.fetchingNext.Load(),
	}
	if r.HasData {
		out.Items = r.Data.Flatten()
		out.HasNextPage = r.Data.HasNextPage()
	}
	return out
}
