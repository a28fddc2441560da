package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Cache records query store activity as Prometheus collectors.
type Cache struct {
	Hits          *prometheus.CounterVec
	Misses        *prometheus.CounterVec
	Fetches       *prometheus.CounterVec
	FetchDuration *prometheus.HistogramVec
	Retries       *prometheus.CounterVec
	PatchedTotal  prometheus.Counter
	Invalidations prometheus.Counter
	Evictions     *prometheus.CounterVec
	EntryCount    prometheus.Gauge
}

// NewCache registers the cache collectors on reg. A nil reg registers on the
// default registerer.
func NewCache(reg prometheus.Registerer) *Cache {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Cache{
		Hits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      MetricNameCacheHits,
				Help:      HelpTextCacheHits,
			},
			[]string{LabelNamespace, LabelFreshness},
		),
		Misses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      MetricNameCacheMisses,
				Help:      HelpTextCacheMisses,
			},
			[]string{LabelNamespace},
		),
		Fetches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      MetricNameCacheFetches,
				Help:      HelpTextCacheFetches,
			},
			[]string{LabelNamespace, LabelOutcome},
		),
		FetchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      MetricNameCacheFetchDuration,
				Help:      HelpTextCacheFetchDuration,
				Buckets:   FetchLatencyBuckets,
			},
			[]string{LabelNamespace},
		),
		Retries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      MetricNameCacheRetries,
				Help:      HelpTextCacheRetries,
			},
			[]string{LabelNamespace},
		),
		PatchedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      MetricNameCachePatched,
				Help:      HelpTextCachePatched,
			},
		),
		Invalidations: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      MetricNameCacheInvalidated,
				Help:      HelpTextCacheInvalidated,
			},
		),
		Evictions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      MetricNameCacheEvicted,
				Help:      HelpTextCacheEvicted,
			},
			[]string{LabelReason},
		),
		EntryCount: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      MetricNameCacheEntries,
				Help:      HelpTextCacheEntries,
			},
		),
	}
}

func (c *Cache) Hit(namespace string, stale bool) {
	freshness := "fresh"
	if stale {
		freshness = "stale"
	}
	c.Hits.WithLabelValues(namespace, freshness).Inc()
}

func (c *Cache) Miss(namespace string) {
	c.Misses.WithLabelValues(namespace).Inc()
}

func (c *Cache) Fetched(namespace, outcome string, took time.Duration) {
	c.Fetches.WithLabelValues(namespace, outcome).Inc()
	c.FetchDuration.WithLabelValues(namespace).Observe(took.Seconds())
}

func (c *Cache) Retried(namespace string) {
	c.Retries.WithLabelValues(namespace).Inc()
}

func (c *Cache) Patched(n int) {
	c.PatchedTotal.Add(float64(n))
}

func (c *Cache) Invalidated(n int) {
	c.Invalidations.Add(float64(n))
}

func (c *Cache) Evicted(reason string, n int) {
	c.Evictions.WithLabelValues(reason).Add(float64(n))
}

func (c *Cache) Entries(n int) {
	c.EntryCount.Set(float64(n))
}
