package metrics

// Namespace prefixes every collector registered by this package.
const Namespace = "recipes"

// Metric names
const (
	MetricNameCacheHits          = "cache_hits_total"
	MetricNameCacheMisses        = "cache_misses_total"
	MetricNameCacheFetches       = "cache_fetches_total"
	MetricNameCacheFetchDuration = "cache_fetch_duration_seconds"
	MetricNameCacheRetries       = "cache_retries_total"
	MetricNameCachePatched       = "cache_patched_entries_total"
	MetricNameCacheInvalidated   = "cache_invalidated_entries_total"
	MetricNameCacheEvicted       = "cache_evicted_entries_total"
	MetricNameCacheEntries       = "cache_entries"
)

// Help text
const (
	HelpTextCacheHits          = "Cache reads answered from a stored value"
	HelpTextCacheMisses        = "Cache reads that had to wait for a fetch"
	HelpTextCacheFetches       = "Completed gateway fetches by outcome"
	HelpTextCacheFetchDuration = "Gateway fetch latency in seconds, retries included"
	HelpTextCacheRetries       = "Fetch attempts retried after a failure"
	HelpTextCachePatched       = "Entries rewritten by mutation patches"
	HelpTextCacheInvalidated   = "Entries marked stale by invalidation"
	HelpTextCacheEvicted       = "Entries removed by reason"
	HelpTextCacheEntries       = "Current number of cache entries"
)

// Labels
const (
	LabelNamespace = "namespace"
	LabelFreshness = "freshness"
	LabelOutcome   = "outcome"
	LabelReason    = "reason"
)

// FetchLatencyBuckets covers fast local gateways up to a fully retried remote call.
var FetchLatencyBuckets = []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60}
