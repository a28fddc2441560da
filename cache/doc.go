// Package cache defines the query cache contract used by the recipe query layer.
//
// # Overview
//
// The package exports the pieces every cache consumer shares:
//
//   - Store: a keyed cache of query results with stale and GC windows, shared
//     in-flight fetches, retries and atomic multi-entry patches
//   - Value: the tagged result shapes a Store holds (Single, List, PagedList)
//   - KeySerializer: builds stable, namespace-first keys from query inputs
//   - CacheService: a plain read-through TTL cache for small lookups
//
// The Store implementation lives in internal/querystore; the read-through
// service wraps sturdyc and is built with NewCacheService.
//
// # Keys
//
// Keys are built from a namespace followed by one segment per argument,
// joined with "::":
//
//	serializer := cache.NewDefaultKeySerializer()
//	key := serializer.SerializeKey("recipes", "list", filter, "anon")
//	// recipes::list::struct:{Stage:2,Vegan:true}::anon
//
// Struct arguments keep only their non-zero exported fields, so two filters
// that compare equal always produce the same key. Segments longer than
// MaxSegmentLength, or containing the separator, are replaced by an xxhash
// digest so a single argument never yields more than one segment.
//
// Matches compares whole segments: "recipes::saved::u1" matches the prefix
// "recipes::saved" but not "recipes::saved::u" and "recipes::saved::u10" does
// not match "recipes::saved::u1".
//
// # Values
//
// A Store holds one of three value shapes. Each knows how to replace a record
// by id without touching the original:
//
//	next, changed := value.PatchByID("r1", func(r cache.Record) cache.Record {
//		s := r.(recipe.Summary)
//		s.IsSaved = true
//		return s
//	})
//
// Store.Patch applies such an update to every matching entry under a single
// lock, so observers never see some entries patched and others not.
//
// # Fetching
//
// Store.Fetch returns fresh data without calling the loader, returns stale
// data while starting one background refetch, and otherwise starts or joins
// the single in-flight fetch for the key. Fetches outlive the caller's
// context; a result is stored only if no newer fetch for the same key has
// already landed. Errors wrapped with Permanent are not retried.
//
// # Read-through
//
// CacheService is used for values that only need a TTL, such as the signed-in
// session:
//
//	user, err := cache.GetOrFetch(ctx, svc, "auth::user", func(ctx context.Context) (auth.User, error) {
//		return gateway.GetUser(ctx, token)
//	})
//
// A loader returning ErrMissing records the miss, and later reads answer
// ErrMissing without calling the loader until the entry is deleted or expires.
package cache
