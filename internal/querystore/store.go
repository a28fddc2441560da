package querystore

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jonboulle/clockwork"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/sethvargo/go-retry"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/goliatone/go-recipe-query/cache"
	"github.com/goliatone/go-recipe-query/internal/logger"
)

// Metrics receives store activity. Namespaces are the first key segment.
type Metrics interface {
	Hit(namespace string, stale bool)
	Miss(namespace string)
	Fetched(namespace, outcome string, took time.Duration)
	Retried(namespace string)
	Patched(n int)
	Invalidated(n int)
	Evicted(reason string, n int)
	Entries(n int)
}

type noopMetrics struct{}

func (noopMetrics) Hit(string, bool)                     {}
func (noopMetrics) Miss(string)                          {}
func (noopMetrics) Fetched(string, string, time.Duration) {}
func (noopMetrics) Retried(string)                       {}
func (noopMetrics) Patched(int)                          {}
func (noopMetrics) Invalidated(int)                      {}
func (noopMetrics) Evicted(string, int)                  {}
func (noopMetrics) Entries(int)                          {}

// Option customizes the store.
type Option func(*store)

// WithClock replaces the wall clock, used by tests to control staleness and GC.
func WithClock(c clockwork.Clock) Option {
	return func(s *store) { s.clock = c }
}

// WithLogger sets the store logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *store) { s.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(s *store) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithoutSweeper disables the periodic GC sweep. Sweep can still be called.
func WithoutSweeper() Option {
	return func(s *store) { s.sweep = false }
}

type call struct {
	seq  uint64
	done chan struct{}
	snap cache.Snapshot
	err  error

	// set for Extend; patches are the updates applied while it ran
	merge   cache.MergeFn
	patches []func(string, cache.Value) (cache.Value, bool)
}

// mergeInto replays the patches made while c was in flight onto fetched and
// merges the result into current.
func (c *call) mergeInto(key string, current, fetched cache.Value) cache.Value {
	for _, update := range c.patches {
		if next, ok := update(key, fetched); ok && next != nil {
			fetched = next
		}
	}
	if current == nil {
		return fetched
	}
	return c.merge(current, fetched)
}

type entry struct {
	key    string
	policy cache.Policy
	fn     cache.FetchFn

	value       cache.Value
	fingerprint uint64
	err         error
	status      cache.Status
	updatedAt   time.Time
	errorAt     time.Time

	// seq is the last issued fetch sequence, dataSeq the sequence of the
	// stored value. Fetches at or below staleBefore land stale.
	seq         uint64
	dataSeq     uint64
	staleBefore uint64
	invalidated bool

	call          *call
	inflight      int
	observers     int
	inactiveSince time.Time
}

func (e *entry) isStale(now time.Time) bool {
	if e.value == nil || e.invalidated {
		return true
	}
	return now.Sub(e.updatedAt) >= e.policy.StaleTime
}

func (e *entry) snapshot(now time.Time) cache.Snapshot {
	return cache.Snapshot{
		Key:         e.key,
		Value:       e.value,
		Err:         e.err,
		Status:      e.status,
		UpdatedAt:   e.updatedAt,
		ErrorAt:     e.errorAt,
		IsStale:     e.isStale(now),
		IsFetching:  e.inflight > 0,
		Fingerprint: e.fingerprint,
		Observers:   e.observers,
	}
}

type subscriber struct {
	match func(string) bool
	fn    func(cache.Event)
}

type store struct {
	mu      sync.Mutex
	entries *lru.Cache[string, *entry]
	evicted []string
	closed  bool

	clock   clockwork.Clock
	logger  *slog.Logger
	metrics Metrics

	subs   *xsync.MapOf[uint64, subscriber]
	subSeq atomic.Uint64

	sweep         bool
	sweepInterval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a cache.Store from cfg.
func New(cfg cache.Config, opts ...Option) (cache.Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("query store: %w", err)
	}

	s := &store{
		clock:         clockwork.NewRealClock(),
		logger:        slog.Default(),
		metrics:       noopMetrics{},
		subs:          xsync.NewMapOf[uint64, subscriber](),
		sweep:         true,
		sweepInterval: cfg.EvictionInterval,
	}
	for _, opt := range opts {
		opt(s)
	}

	entries, err := lru.NewWithEvict[string, *entry](cfg.Capacity, func(key string, _ *entry) {
		s.evicted = append(s.evicted, key)
	})
	if err != nil {
		return nil, fmt.Errorf("query store: %w", err)
	}
	s.entries = entries
	s.ctx, s.cancel = context.WithCancel(context.Background())

	if s.sweep {
		s.wg.Add(1)
		go s.sweeper()
	}
	return s, nil
}

func namespace(key string) string {
	return cache.Segments(key)[0]
}

// entryLocked returns the entry for key, creating it if needed. The caller
// holds s.mu and must pass the returned events to notify after unlocking.
func (s *store) entryLocked(key string, policy cache.Policy) (*entry, []cache.Event) {
	if e, ok := s.entries.Get(key); ok {
		return e, nil
	}

	e := &entry{key: key, policy: policy, inactiveSince: s.clock.Now()}
	s.evicted = s.evicted[:0]
	s.entries.Add(key, e)

	var events []cache.Event
	for _, k := range s.evicted {
		events = append(events, cache.Event{Type: cache.EventRemoved, Snapshot: cache.Snapshot{Key: k}})
	}
	if n := len(s.evicted); n > 0 {
		s.metrics.Evicted("capacity", n)
		s.evicted = s.evicted[:0]
	}
	s.metrics.Entries(s.entries.Len())
	return e, events
}

func (s *store) Fetch(ctx context.Context, key string, policy cache.Policy, fn cache.FetchFn) (cache.Snapshot, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return cache.Snapshot{}, cache.ErrClosed
	}

	e, events := s.entryLocked(key, policy)
	e.policy = policy
	e.fn = fn
	now := s.clock.Now()

	if e.value != nil {
		snap := e.snapshot(now)
		if snap.IsStale && e.inflight == 0 {
			s.startLocked(ctx, e, fn)
			snap.IsFetching = true
		}
		s.mu.Unlock()
		s.notify(events)
		s.metrics.Hit(namespace(key), snap.IsStale)
		return snap, nil
	}

	c := e.call
	if c == nil {
		c = s.startLocked(ctx, e, fn)
	}
	s.mu.Unlock()
	s.notify(events)
	s.metrics.Miss(namespace(key))

	return s.wait(ctx, key, c)
}

func (s *store) Refetch(ctx context.Context, key string, policy cache.Policy, fn cache.FetchFn) (cache.Snapshot, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return cache.Snapshot{}, cache.ErrClosed
	}
	e, events := s.entryLocked(key, policy)
	e.policy = policy
	e.fn = fn
	c := s.startLocked(ctx, e, fn)
	s.mu.Unlock()
	s.notify(events)

	return s.wait(ctx, key, c)
}

func (s *store) Extend(ctx context.Context, key string, policy cache.Policy, fn cache.FetchFn, merge cache.MergeFn) (cache.Snapshot, bool, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return cache.Snapshot{}, false, cache.ErrClosed
	}
	e, events := s.entryLocked(key, policy)
	if e.inflight > 0 {
		snap := e.snapshot(s.clock.Now())
		s.mu.Unlock()
		s.notify(events)
		return snap, false, nil
	}
	e.policy = policy
	c := s.startLocked(ctx, e, fn)
	c.merge = merge
	s.mu.Unlock()
	s.notify(events)

	snap, err := s.wait(ctx, key, c)
	return snap, true, err
}

// startLocked issues the next fetch sequence for e and runs fn detached from
// the caller's cancellation. The store's own context still cancels it on Close.
func (s *store) startLocked(ctx context.Context, e *entry, fn cache.FetchFn) *call {
	e.seq++
	c := &call{seq: e.seq, done: make(chan struct{})}
	e.call = c
	e.inflight++
	if e.status == cache.StatusIdle {
		e.status = cache.StatusPending
	}

	prev := e.value
	policy := e.policy
	s.wg.Add(1)
	go s.run(context.WithoutCancel(ctx), e, c, fn, prev, policy)
	return c
}

func (s *store) run(ctx context.Context, e *entry, c *call, fn cache.FetchFn, prev cache.Value, policy cache.Policy) {
	defer s.wg.Done()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	ns := namespace(e.key)
	start := s.clock.Now()
	attempts := 0

	var result cache.Value
	err := retry.Do(ctx, newBackoff(policy.Retry), func(ctx context.Context) error {
		attempts++
		if attempts > 1 {
			s.metrics.Retried(ns)
		}

		v, err := fn(ctx, prev)
		if err == nil && v == nil {
			err = cache.Permanent(fmt.Errorf("fetch %s returned no value: %w", e.key, cache.ErrInvalidResultType))
		}
		if err != nil {
			if cache.IsPermanent(err) || ctx.Err() != nil {
				return err
			}
			logger.FromContext(ctx).Debug("fetch attempt failed", "key", e.key, "attempt", attempts, "error", err)
			return retry.RetryableError(err)
		}
		result = v
		return nil
	})

	outcome := "success"
	if err != nil {
		outcome = "error"
		s.logger.Warn("fetch failed", "key", e.key, "attempts", attempts, "error", err)
	}
	s.metrics.Fetched(ns, outcome, s.clock.Since(start))

	s.land(ctx, e, c, result, err)
}

// newBackoff waits p.Delay(n) before retry n, for at most p.MaxRetries retries.
func newBackoff(p cache.RetryPolicy) retry.Backoff {
	retries := uint64(0)
	if p.MaxRetries > 0 {
		retries = uint64(p.MaxRetries)
	}

	attempt := 0
	b := retry.BackoffFunc(func() (time.Duration, bool) {
		d := p.Delay(attempt)
		attempt++
		return d, false
	})
	return retry.WithMaxRetries(retries, b)
}

// land writes a finished fetch into its entry if the entry is still live and
// no more recently initiated fetch has already written data.
func (s *store) land(ctx context.Context, e *entry, c *call, result cache.Value, err error) {
	var events []cache.Event

	s.mu.Lock()
	now := s.clock.Now()
	e.inflight--
	if e.call == c {
		e.call = nil
	}

	current, ok := s.entries.Peek(e.key)
	live := ok && current == e && !s.closed
	superseded := c.seq <= e.dataSeq

	if err == nil && c.merge != nil && !superseded {
		result = c.mergeInto(e.key, e.value, result)
	}

	switch {
	case !live || superseded:
	case err == nil:
		fp := fingerprint(result)
		changed := e.value == nil || fp != e.fingerprint
		e.value = result
		e.fingerprint = fp
		e.dataSeq = c.seq
		e.updatedAt = now
		e.status = cache.StatusSuccess
		e.err = nil
		e.errorAt = time.Time{}
		if c.seq > e.staleBefore {
			e.invalidated = false
		}
		if changed {
			events = append(events, cache.Event{Type: cache.EventUpdated})
		}
	default:
		e.err = err
		e.errorAt = now
		e.status = cache.StatusError
		events = append(events, cache.Event{Type: cache.EventFailed})
	}

	if live && e.inflight == 0 {
		if e.observers > 0 && e.invalidated && e.fn != nil && err == nil && !superseded {
			// landed stale; observed entries get the refetch they missed
			s.startLocked(ctx, e, e.fn)
		} else if e.observers == 0 {
			e.inactiveSince = now
		}
	}

	if live {
		c.snap = e.snapshot(now)
	} else {
		// removed or evicted while fetching; waiters still get the outcome
		c.snap = detachedSnapshot(e.key, result, err, now)
	}
	c.err = err
	if err != nil && live && superseded && e.value != nil {
		c.err = nil
	}
	for i := range events {
		events[i].Snapshot = c.snap
	}
	close(c.done)
	s.mu.Unlock()

	s.notify(events)
}

func detachedSnapshot(key string, v cache.Value, err error, now time.Time) cache.Snapshot {
	if err != nil {
		return cache.Snapshot{Key: key, Err: err, Status: cache.StatusError, ErrorAt: now}
	}
	return cache.Snapshot{
		Key:         key,
		Value:       v,
		Status:      cache.StatusSuccess,
		UpdatedAt:   now,
		Fingerprint: fingerprint(v),
	}
}

func (s *store) wait(ctx context.Context, key string, c *call) (cache.Snapshot, error) {
	select {
	case <-c.done:
		return c.snap, c.err
	case <-ctx.Done():
		snap, _ := s.Snapshot(key)
		return snap, ctx.Err()
	}
}

func (s *store) Snapshot(key string) (cache.Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries.Peek(key)
	if !ok {
		return cache.Snapshot{Key: key}, false
	}
	return e.snapshot(s.clock.Now()), true
}

func (s *store) Observe(key string, policy cache.Policy) func() {
	s.mu.Lock()
	e, events := s.entryLocked(key, policy)
	e.observers++
	e.inactiveSince = time.Time{}
	s.mu.Unlock()
	s.notify(events)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			e.observers--
			if e.observers == 0 && e.inflight == 0 {
				e.inactiveSince = s.clock.Now()
			}
		})
	}
}

func (s *store) SetValue(key string, policy cache.Policy, v cache.Value) cache.Snapshot {
	s.mu.Lock()
	e, events := s.entryLocked(key, policy)
	now := s.clock.Now()

	fp := fingerprint(v)
	changed := e.value == nil || fp != e.fingerprint

	e.policy = policy
	e.seq++
	e.dataSeq = e.seq
	e.value = v
	e.fingerprint = fp
	e.updatedAt = now
	e.status = cache.StatusSuccess
	e.err = nil
	e.invalidated = false

	snap := e.snapshot(now)
	if changed {
		events = append(events, cache.Event{Type: cache.EventUpdated, Snapshot: snap})
	}
	s.mu.Unlock()

	s.notify(events)
	return snap
}

func (s *store) Patch(match func(string) bool, update func(string, cache.Value) (cache.Value, bool)) []string {
	var (
		keys   []string
		events []cache.Event
	)

	s.mu.Lock()
	now := s.clock.Now()
	for _, key := range s.entries.Keys() {
		if !match(key) {
			continue
		}
		e, ok := s.entries.Peek(key)
		if !ok || e.value == nil {
			continue
		}

		// a lone Extend in flight replays the update when it lands
		merging := e.inflight == 1 && e.call != nil && e.call.merge != nil
		if merging {
			e.call.patches = append(e.call.patches, update)
		}

		next, ok := update(key, e.value)
		if !ok || next == nil {
			continue
		}
		fp := fingerprint(next)
		if fp == e.fingerprint {
			continue
		}

		e.value = next
		e.fingerprint = fp
		if e.inflight > 0 && !merging {
			e.invalidated = true
			e.staleBefore = e.seq
		}
		keys = append(keys, key)
		events = append(events, cache.Event{Type: cache.EventUpdated, Snapshot: e.snapshot(now)})
	}
	s.mu.Unlock()

	s.notify(events)
	if len(keys) > 0 {
		s.metrics.Patched(len(keys))
	}
	return keys
}

func (s *store) Invalidate(match func(string) bool) []string {
	var (
		keys   []string
		events []cache.Event
	)

	s.mu.Lock()
	now := s.clock.Now()
	for _, key := range s.entries.Keys() {
		if !match(key) {
			continue
		}
		e, ok := s.entries.Peek(key)
		if !ok {
			continue
		}

		e.invalidated = true
		e.staleBefore = e.seq
		if e.observers > 0 && e.inflight == 0 && e.fn != nil && !s.closed {
			s.startLocked(s.ctx, e, e.fn)
		}
		keys = append(keys, key)
		events = append(events, cache.Event{Type: cache.EventInvalidated, Snapshot: e.snapshot(now)})
	}
	s.mu.Unlock()

	s.notify(events)
	if len(keys) > 0 {
		s.metrics.Invalidated(len(keys))
	}
	return keys
}

func (s *store) Remove(match func(string) bool) []string {
	s.mu.Lock()
	keys := s.removeLocked(func(key string, _ *entry) bool { return match(key) })
	s.mu.Unlock()

	s.notifyRemoved(keys)
	return keys
}

func (s *store) removeLocked(pred func(string, *entry) bool) []string {
	var keys []string
	for _, key := range s.entries.Keys() {
		e, ok := s.entries.Peek(key)
		if !ok || !pred(key, e) {
			continue
		}
		s.entries.Remove(key)
		keys = append(keys, key)
	}
	s.evicted = s.evicted[:0]
	s.metrics.Entries(s.entries.Len())
	return keys
}

func (s *store) notifyRemoved(keys []string) {
	if len(keys) == 0 {
		return
	}
	events := make([]cache.Event, len(keys))
	for i, k := range keys {
		events[i] = cache.Event{Type: cache.EventRemoved, Snapshot: cache.Snapshot{Key: k}}
	}
	s.notify(events)
}

func (s *store) Sweep() []string {
	s.mu.Lock()
	now := s.clock.Now()
	keys := s.removeLocked(func(_ string, e *entry) bool {
		if e.observers > 0 || e.inflight > 0 || e.inactiveSince.IsZero() {
			return false
		}
		return now.Sub(e.inactiveSince) >= e.policy.GCTime
	})
	s.mu.Unlock()

	if len(keys) > 0 {
		s.metrics.Evicted("gc", len(keys))
		s.logger.Debug("swept inactive entries", "count", len(keys))
	}
	s.notifyRemoved(keys)
	return keys
}

func (s *store) sweeper() {
	defer s.wg.Done()

	ticker := s.clock.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			s.Sweep()
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *store) Subscribe(match func(string) bool, fn func(cache.Event)) func() {
	id := s.subSeq.Add(1)
	s.subs.Store(id, subscriber{match: match, fn: fn})
	return func() { s.subs.Delete(id) }
}

func (s *store) notify(events []cache.Event) {
	for _, ev := range events {
		s.subs.Range(func(_ uint64, sub subscriber) bool {
			if sub.match(ev.Snapshot.Key) {
				sub.fn(ev)
			}
			return true
		})
	}
}

func (s *store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries.Len()
}

func (s *store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	return nil
}

// fingerprint hashes the msgpack encoding of v. Values that cannot be
// encoded fall back to their printed form.
func fingerprint(v cache.Value) uint64 {
	if v == nil {
		return 0
	}
	raw, err := msgpack.Marshal(v)
	if err != nil {
		return xxhash.Sum64String(fmt.Sprintf("%d:%#v", v.Kind(), v))
	}
	h := xxhash.New()
	_, _ = h.WriteString(v.Kind().String())
	_, _ = h.Write(raw)
	return h.Sum64()
}
