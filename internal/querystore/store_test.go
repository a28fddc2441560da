package querystore

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/goliatone/go-recipe-query/cache"
	"github.com/goliatone/go-recipe-query/internal/logger"
)

type item struct {
	ID    string
	Label string
	Saved bool
}

func (i item) RecordID() string { return i.ID }

var testPolicy = cache.Policy{StaleTime: time.Minute, GCTime: 2 * time.Minute}

func newTestStore(t *testing.T, clock clockwork.Clock, capacity int) cache.Store {
	t.Helper()

	cfg := cache.DefaultConfig()
	if capacity > 0 {
		cfg.Capacity = capacity
	}
	s, err := New(cfg, WithClock(clock), WithLogger(logger.Discard()), WithoutSweeper())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// counter is a fetch function that returns a list labelled with its call number.
type counter struct {
	calls atomic.Int32
}

func (c *counter) fetch(ctx context.Context, _ cache.Value) (cache.Value, error) {
	n := c.calls.Add(1)
	return cache.List[item]{Items: []item{{ID: "a", Label: string(rune('0' + n))}}}, nil
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func label(t *testing.T, snap cache.Snapshot) string {
	t.Helper()
	list, err := cache.ValueAs[cache.List[item]](snap.Value)
	if err != nil {
		t.Fatalf("value is %T, want List[item]", snap.Value)
	}
	return list.Items[0].Label
}

func TestFetch_FreshHitSkipsNetwork(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := newTestStore(t, clock, 0)
	c := &counter{}

	snap, err := s.Fetch(context.Background(), "recipes::list", testPolicy, c.fetch)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if snap.Status != cache.StatusSuccess || snap.IsStale {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	clock.Advance(testPolicy.StaleTime - time.Nanosecond)

	snap, err = s.Fetch(context.Background(), "recipes::list", testPolicy, c.fetch)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if got := c.calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
	if snap.IsFetching || snap.IsStale {
		t.Errorf("fresh hit reported stale=%v fetching=%v", snap.IsStale, snap.IsFetching)
	}
}

func TestFetch_StaleServesCachedAndRefetchesOnce(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := newTestStore(t, clock, 0)

	var calls atomic.Int32
	release := make(chan struct{})
	fn := func(ctx context.Context, _ cache.Value) (cache.Value, error) {
		n := calls.Add(1)
		if n > 1 {
			<-release
		}
		return cache.List[item]{Items: []item{{ID: "a", Label: string(rune('0' + n))}}}, nil
	}

	if _, err := s.Fetch(context.Background(), "recipes::list", testPolicy, fn); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	clock.Advance(testPolicy.StaleTime)

	snap, err := s.Fetch(context.Background(), "recipes::list", testPolicy, fn)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if !snap.IsStale || !snap.IsFetching {
		t.Fatalf("expected stale snapshot with refetch, got %+v", snap)
	}
	if got := label(t, snap); got != "1" {
		t.Fatalf("stale value label = %q, want 1", got)
	}

	// further observations while the refetch runs do not start another
	for i := 0; i < 3; i++ {
		if _, err := s.Fetch(context.Background(), "recipes::list", testPolicy, fn); err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
	}
	waitFor(t, "background refetch to start", func() bool { return calls.Load() == 2 })
	close(release)

	waitFor(t, "refetch to land", func() bool {
		snap, _ := s.Snapshot("recipes::list")
		return !snap.IsFetching && !snap.IsStale
	})
	if got := calls.Load(); got != 2 {
		t.Errorf("calls = %d, want 2", got)
	}
	snap, _ = s.Snapshot("recipes::list")
	if got := label(t, snap); got != "2" {
		t.Errorf("label = %q, want 2", got)
	}
}

func TestFetch_DeduplicatesConcurrentMisses(t *testing.T) {
	s := newTestStore(t, clockwork.NewFakeClock(), 0)

	var calls atomic.Int32
	release := make(chan struct{})
	fn := func(ctx context.Context, _ cache.Value) (cache.Value, error) {
		calls.Add(1)
		<-release
		return cache.Single[item]{Item: item{ID: "a"}, Found: true}, nil
	}

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Fetch(context.Background(), "recipes::details::a", testPolicy, fn)
			errs <- err
		}()
	}

	waitFor(t, "fetch to start", func() bool { return calls.Load() == 1 })
	waitFor(t, "all callers to join", func() bool {
		snap, _ := s.Snapshot("recipes::details::a")
		return snap.IsFetching
	})
	time.Sleep(5 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("Fetch() error = %v", err)
		}
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
}

func TestRefetch_MostRecentlyInitiatedWins(t *testing.T) {
	s := newTestStore(t, clockwork.NewFakeClock(), 0)
	key := "recipes::list::x"

	entered := make(chan struct{})
	releaseOld := make(chan struct{})
	slow := func(ctx context.Context, _ cache.Value) (cache.Value, error) {
		close(entered)
		<-releaseOld
		return cache.List[item]{Items: []item{{ID: "a", Label: "old"}}}, nil
	}
	fast := func(ctx context.Context, _ cache.Value) (cache.Value, error) {
		return cache.List[item]{Items: []item{{ID: "a", Label: "new"}}}, nil
	}

	type result struct {
		snap cache.Snapshot
		err  error
	}
	oldDone := make(chan result, 1)
	go func() {
		snap, err := s.Fetch(context.Background(), key, testPolicy, slow)
		oldDone <- result{snap, err}
	}()
	<-entered

	snap, err := s.Refetch(context.Background(), key, testPolicy, fast)
	if err != nil {
		t.Fatalf("Refetch() error = %v", err)
	}
	if got := label(t, snap); got != "new" {
		t.Fatalf("label after refetch = %q, want new", got)
	}

	close(releaseOld)
	old := <-oldDone
	if old.err != nil {
		t.Fatalf("old Fetch() error = %v", old.err)
	}
	if got := label(t, old.snap); got != "new" {
		t.Errorf("older response overwrote newer one: label = %q", got)
	}

	final, _ := s.Snapshot(key)
	if got := label(t, final); got != "new" {
		t.Errorf("final label = %q, want new", got)
	}
}

func TestFetch_RetriesTransientFailures(t *testing.T) {
	s := newTestStore(t, clockwork.NewFakeClock(), 0)
	policy := testPolicy
	policy.Retry = cache.RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond}

	var calls atomic.Int32
	fn := func(ctx context.Context, _ cache.Value) (cache.Value, error) {
		if calls.Add(1) < 3 {
			return nil, errors.New("connection reset")
		}
		return cache.List[item]{Items: []item{{ID: "a"}}}, nil
	}

	snap, err := s.Fetch(context.Background(), "recipes::list", policy, fn)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if snap.Status != cache.StatusSuccess {
		t.Errorf("status = %v, want success", snap.Status)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestFetch_SurfacesErrorAfterRetries(t *testing.T) {
	s := newTestStore(t, clockwork.NewFakeClock(), 0)
	policy := testPolicy
	policy.Retry = cache.RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}

	boom := errors.New("503 service unavailable")
	var calls atomic.Int32
	fn := func(ctx context.Context, _ cache.Value) (cache.Value, error) {
		calls.Add(1)
		return nil, boom
	}

	snap, err := s.Fetch(context.Background(), "recipes::list", policy, fn)
	if !errors.Is(err, boom) {
		t.Fatalf("Fetch() error = %v, want %v", err, boom)
	}
	if snap.Status != cache.StatusError || !errors.Is(snap.Err, boom) {
		t.Errorf("unexpected snapshot %+v", snap)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3 (1 + 2 retries)", got)
	}
}

func TestFetch_PermanentErrorsAreNotRetried(t *testing.T) {
	s := newTestStore(t, clockwork.NewFakeClock(), 0)
	policy := testPolicy
	policy.Retry = cache.RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond}

	var calls atomic.Int32
	fn := func(ctx context.Context, _ cache.Value) (cache.Value, error) {
		calls.Add(1)
		return nil, cache.Permanent(errors.New("401 unauthorized"))
	}

	if _, err := s.Fetch(context.Background(), "recipes::list", policy, fn); !cache.IsPermanent(err) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
}

func TestFetch_AbandonedWaitStillFillsCache(t *testing.T) {
	s := newTestStore(t, clockwork.NewFakeClock(), 0)

	release := make(chan struct{})
	fn := func(ctx context.Context, _ cache.Value) (cache.Value, error) {
		<-release
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return cache.Single[item]{Item: item{ID: "a"}, Found: true}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := s.Fetch(ctx, "recipes::details::a", testPolicy, fn)
		done <- err
	}()

	waitFor(t, "fetch to start", func() bool {
		snap, _ := s.Snapshot("recipes::details::a")
		return snap.IsFetching
	})
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Fetch() error = %v, want context.Canceled", err)
	}

	close(release)
	waitFor(t, "abandoned fetch to land", func() bool {
		snap, _ := s.Snapshot("recipes::details::a")
		return snap.Status == cache.StatusSuccess
	})
}

func TestFetch_RemovedWhileFetchingStillReturnsResult(t *testing.T) {
	s := newTestStore(t, clockwork.NewFakeClock(), 0)

	release := make(chan struct{})
	fn := func(ctx context.Context, _ cache.Value) (cache.Value, error) {
		<-release
		return cache.Single[item]{Item: item{ID: "a"}, Found: true}, nil
	}

	type result struct {
		snap cache.Snapshot
		err  error
	}
	done := make(chan result, 1)
	go func() {
		snap, err := s.Fetch(context.Background(), "recipes::details::a", testPolicy, fn)
		done <- result{snap, err}
	}()

	waitFor(t, "fetch to start", func() bool {
		snap, _ := s.Snapshot("recipes::details::a")
		return snap.IsFetching
	})
	if keys := s.Remove(cache.Exact("recipes::details::a")); len(keys) != 1 {
		t.Fatalf("removed %v", keys)
	}
	close(release)

	res := <-done
	if res.err != nil {
		t.Fatalf("Fetch() error = %v", res.err)
	}
	if res.snap.Status != cache.StatusSuccess || !res.snap.HasValue() {
		t.Fatalf("waiter got %+v, want the fetched value", res.snap)
	}
	if _, ok := s.Snapshot("recipes::details::a"); ok {
		t.Error("removed entry was recreated by the landing fetch")
	}
}

func TestFetch_EvictedWhileFetchingReportsFailure(t *testing.T) {
	s := newTestStore(t, clockwork.NewFakeClock(), 1)

	release := make(chan struct{})
	boom := cache.Permanent(errors.New("404 not found"))
	fn := func(ctx context.Context, _ cache.Value) (cache.Value, error) {
		<-release
		return nil, boom
	}

	done := make(chan cache.Snapshot, 1)
	go func() {
		snap, _ := s.Fetch(context.Background(), "recipes::details::a", testPolicy, fn)
		done <- snap
	}()

	waitFor(t, "fetch to start", func() bool {
		snap, _ := s.Snapshot("recipes::details::a")
		return snap.IsFetching
	})
	s.SetValue("recipes::details::b", testPolicy, cache.Single[item]{Item: item{ID: "b"}, Found: true})
	close(release)

	snap := <-done
	if snap.Status != cache.StatusError || !errors.Is(snap.Err, boom) {
		t.Errorf("waiter got %+v, want the fetch error", snap)
	}
}

func TestExtend_MergesIntoPatchedValue(t *testing.T) {
	s := newTestStore(t, clockwork.NewFakeClock(), 0)
	key := "recipes::infinite"
	s.SetValue(key, testPolicy, cache.PagedList[item]{PageSize: 1, Pages: [][]item{{{ID: "r1"}}}})

	release := make(chan struct{})
	fetch := func(ctx context.Context, _ cache.Value) (cache.Value, error) {
		<-release
		return cache.PagedList[item]{PageSize: 1, Pages: [][]item{{{ID: "r2"}}}}, nil
	}
	merge := func(current, fetched cache.Value) cache.Value {
		cur := current.(cache.PagedList[item])
		next := fetched.(cache.PagedList[item])
		pages := append(append([][]item{}, cur.Pages...), next.Pages...)
		return cache.PagedList[item]{PageSize: cur.PageSize, Pages: pages}
	}

	done := make(chan cache.Snapshot, 1)
	go func() {
		snap, started, err := s.Extend(context.Background(), key, testPolicy, fetch, merge)
		if err != nil || !started {
			t.Errorf("Extend() = %v, %v", started, err)
		}
		done <- snap
	}()
	waitFor(t, "extend to start", func() bool {
		snap, _ := s.Snapshot(key)
		return snap.IsFetching
	})

	saved := func(id string) func(string, cache.Value) (cache.Value, bool) {
		return func(_ string, v cache.Value) (cache.Value, bool) {
			return v.PatchByID(id, func(r cache.Record) cache.Record {
				it := r.(item)
				it.Saved = true
				return it
			})
		}
	}
	s.Patch(cache.Exact(key), saved("r1"))
	s.Patch(cache.Exact(key), saved("r2"))
	close(release)

	snap := <-done
	got := snap.Value.(cache.PagedList[item]).Flatten()
	if len(got) != 2 || !got[0].Saved || !got[1].Saved {
		t.Fatalf("merged value = %+v, want r1 and r2 saved", got)
	}
	if snap.IsStale {
		t.Error("merged extend landed stale")
	}
}

func TestNewBackoff_FollowsRetryPolicyDelays(t *testing.T) {
	p := cache.RetryPolicy{MaxRetries: 4, BaseDelay: 100 * time.Millisecond, MaxDelay: 250 * time.Millisecond}
	b := newBackoff(p)

	for i := 0; i < p.MaxRetries; i++ {
		d, stop := b.Next()
		if stop {
			t.Fatalf("backoff stopped after %d retries", i)
		}
		if want := p.Delay(i); d != want {
			t.Errorf("delay %d = %v, want %v", i, d, want)
		}
	}
	if _, stop := b.Next(); !stop {
		t.Error("backoff did not stop after MaxRetries")
	}

	d, stop := newBackoff(cache.RetryPolicy{MaxRetries: 1}).Next()
	if stop || d != 0 {
		t.Errorf("zero base delay = (%v, %v), want (0, false)", d, stop)
	}
}

func TestPatch_AppliesToAllMatchingEntriesAtomically(t *testing.T) {
	s := newTestStore(t, clockwork.NewFakeClock(), 0)

	s.SetValue("recipes::list", testPolicy, cache.List[item]{Items: []item{{ID: "r1"}, {ID: "r2"}}})
	s.SetValue("recipes::infinite", testPolicy, cache.PagedList[item]{PageSize: 2, Pages: [][]item{{{ID: "r0"}, {ID: "r3"}}, {{ID: "r1"}}}})
	s.SetValue("recipes::details::r1", testPolicy, cache.Single[item]{Item: item{ID: "r1"}, Found: true})
	s.SetValue("recipes::details::r2", testPolicy, cache.Single[item]{Item: item{ID: "r2"}, Found: true})
	s.SetValue("other::list", testPolicy, cache.List[item]{Items: []item{{ID: "r1"}}})

	var mu sync.Mutex
	var seen []string
	unsubscribe := s.Subscribe(cache.Prefix("recipes"), func(ev cache.Event) {
		// every patched entry is visible before the first notification
		for _, key := range []string{"recipes::list", "recipes::infinite", "recipes::details::r1"} {
			snap, _ := s.Snapshot(key)
			if !savedIn(snap.Value, "r1") {
				t.Errorf("%s not patched when %s was delivered", key, ev.Snapshot.Key)
			}
		}
		mu.Lock()
		seen = append(seen, ev.Snapshot.Key)
		mu.Unlock()
	})
	defer unsubscribe()

	keys := s.Patch(cache.Prefix("recipes"), func(_ string, v cache.Value) (cache.Value, bool) {
		return v.PatchByID("r1", func(r cache.Record) cache.Record {
			it := r.(item)
			it.Saved = true
			return it
		})
	})

	if len(keys) != 3 {
		t.Fatalf("patched keys = %v, want 3", keys)
	}
	mu.Lock()
	if len(seen) != 3 {
		t.Errorf("events = %v, want 3", seen)
	}
	mu.Unlock()

	other, _ := s.Snapshot("other::list")
	if savedIn(other.Value, "r1") {
		t.Error("entry outside the namespace was patched")
	}
	untouched, _ := s.Snapshot("recipes::details::r2")
	if savedIn(untouched.Value, "r2") {
		t.Error("unrelated record was patched")
	}
	paged, _ := s.Snapshot("recipes::infinite")
	if savedIn(paged.Value, "r0") || savedIn(paged.Value, "r3") {
		t.Error("other records in the page were patched")
	}
}

func savedIn(v cache.Value, id string) bool {
	var items []item
	switch val := v.(type) {
	case cache.List[item]:
		items = val.Items
	case cache.PagedList[item]:
		items = val.Flatten()
	case cache.Single[item]:
		items = []item{val.Item}
	}
	for _, it := range items {
		if it.ID == id && it.Saved {
			return true
		}
	}
	return false
}

func TestPatch_MarksInFlightEntriesStale(t *testing.T) {
	s := newTestStore(t, clockwork.NewFakeClock(), 0)
	key := "recipes::list"

	s.SetValue(key, testPolicy, cache.List[item]{Items: []item{{ID: "r1"}}})

	entered := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_, _ = s.Refetch(context.Background(), key, testPolicy, func(ctx context.Context, _ cache.Value) (cache.Value, error) {
			close(entered)
			<-release
			return cache.List[item]{Items: []item{{ID: "r1"}}}, nil
		})
	}()
	<-entered

	s.Patch(cache.Exact(key), func(_ string, v cache.Value) (cache.Value, bool) {
		return v.PatchByID("r1", func(r cache.Record) cache.Record {
			it := r.(item)
			it.Saved = true
			return it
		})
	})
	close(release)

	waitFor(t, "refetch to land", func() bool {
		snap, _ := s.Snapshot(key)
		return !snap.IsFetching
	})
	snap, _ := s.Snapshot(key)
	if !snap.IsStale {
		t.Error("response initiated before the patch was served as fresh")
	}
}

func TestInvalidate_RefetchesObservedEntriesOnly(t *testing.T) {
	s := newTestStore(t, clockwork.NewFakeClock(), 0)
	observed, idle := &counter{}, &counter{}

	release := s.Observe("recipes::saved::u1", testPolicy)
	defer release()

	if _, err := s.Fetch(context.Background(), "recipes::saved::u1", testPolicy, observed.fetch); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Fetch(context.Background(), "recipes::saved::u10", testPolicy, idle.fetch); err != nil {
		t.Fatal(err)
	}

	keys := s.Invalidate(cache.Prefix("recipes::saved::u1"))
	if len(keys) != 1 || keys[0] != "recipes::saved::u1" {
		t.Fatalf("invalidated keys = %v", keys)
	}

	waitFor(t, "observed refetch", func() bool { return observed.calls.Load() == 2 })
	waitFor(t, "observed entry fresh", func() bool {
		snap, _ := s.Snapshot("recipes::saved::u1")
		return !snap.IsStale
	})
	if got := idle.calls.Load(); got != 1 {
		t.Errorf("u10 calls = %d, want 1", got)
	}

	s.Invalidate(cache.Exact("recipes::saved::u10"))
	snap, _ := s.Snapshot("recipes::saved::u10")
	if !snap.IsStale || snap.IsFetching {
		t.Errorf("unobserved entry should be stale and idle, got %+v", snap)
	}
}

func TestInvalidate_FetchStartedBeforeKeepsStaleMark(t *testing.T) {
	s := newTestStore(t, clockwork.NewFakeClock(), 0)
	key := "recipes::featured::anon"

	entered := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_, _ = s.Fetch(context.Background(), key, testPolicy, func(ctx context.Context, _ cache.Value) (cache.Value, error) {
			close(entered)
			<-release
			return cache.List[item]{Items: []item{{ID: "a"}}}, nil
		})
	}()
	<-entered

	s.Invalidate(cache.Exact(key))
	close(release)

	waitFor(t, "fetch to land", func() bool {
		snap, _ := s.Snapshot(key)
		return snap.Status == cache.StatusSuccess && !snap.IsFetching
	})
	snap, _ := s.Snapshot(key)
	if !snap.IsStale {
		t.Error("fetch initiated before invalidation cleared the stale mark")
	}
}

func TestSweep_EvictsInactiveEntriesAfterGCTime(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := newTestStore(t, clock, 0)
	c := &counter{}

	_, _ = s.Fetch(context.Background(), "recipes::a", testPolicy, c.fetch)
	_, _ = s.Fetch(context.Background(), "recipes::b", testPolicy, c.fetch)
	release := s.Observe("recipes::b", testPolicy)

	clock.Advance(testPolicy.GCTime - time.Second)
	if got := s.Sweep(); len(got) != 0 {
		t.Fatalf("swept %v before GC time", got)
	}

	clock.Advance(time.Second)
	got := s.Sweep()
	if len(got) != 1 || got[0] != "recipes::a" {
		t.Fatalf("swept %v, want [recipes::a]", got)
	}

	release()
	clock.Advance(testPolicy.GCTime)
	if got := s.Sweep(); len(got) != 1 {
		t.Fatalf("swept %v after release", got)
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0", s.Len())
	}
}

func TestCapacityIsAHardBound(t *testing.T) {
	s := newTestStore(t, clockwork.NewFakeClock(), 2)

	var removed []string
	s.Subscribe(func(string) bool { return true }, func(ev cache.Event) {
		if ev.Type == cache.EventRemoved {
			removed = append(removed, ev.Snapshot.Key)
		}
	})

	for _, k := range []string{"recipes::1", "recipes::2", "recipes::3"} {
		s.SetValue(k, testPolicy, cache.List[item]{Items: []item{{ID: k}}})
	}

	if s.Len() != 2 {
		t.Errorf("Len() = %d, want 2", s.Len())
	}
	if len(removed) != 1 || removed[0] != "recipes::1" {
		t.Errorf("removed = %v, want [recipes::1]", removed)
	}
}

func TestRemove_IsSegmentAware(t *testing.T) {
	s := newTestStore(t, clockwork.NewFakeClock(), 0)
	s.SetValue("recipes::saved::u1", testPolicy, cache.List[item]{})
	s.SetValue("recipes::saved::u10", testPolicy, cache.List[item]{})

	keys := s.Remove(cache.Prefix("recipes::saved::u1"))
	if len(keys) != 1 {
		t.Fatalf("removed %v", keys)
	}
	if _, ok := s.Snapshot("recipes::saved::u10"); !ok {
		t.Error("u10 entry removed by u1 prefix")
	}
}

func TestIdenticalRefetchDoesNotNotify(t *testing.T) {
	s := newTestStore(t, clockwork.NewFakeClock(), 0)
	fn := func(ctx context.Context, _ cache.Value) (cache.Value, error) {
		return cache.List[item]{Items: []item{{ID: "a", Label: "same"}}}, nil
	}

	first, err := s.Fetch(context.Background(), "recipes::list", testPolicy, fn)
	if err != nil {
		t.Fatal(err)
	}

	var updates atomic.Int32
	s.Subscribe(cache.Exact("recipes::list"), func(ev cache.Event) {
		if ev.Type == cache.EventUpdated {
			updates.Add(1)
		}
	})

	second, err := s.Refetch(context.Background(), "recipes::list", testPolicy, fn)
	if err != nil {
		t.Fatal(err)
	}
	if first.Fingerprint != second.Fingerprint {
		t.Error("fingerprint changed for identical data")
	}
	if updates.Load() != 0 {
		t.Errorf("updates = %d, want 0", updates.Load())
	}
}

func TestClosedStoreRejectsFetches(t *testing.T) {
	s := newTestStore(t, clockwork.NewFakeClock(), 0)
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	c := &counter{}
	if _, err := s.Fetch(context.Background(), "recipes::list", testPolicy, c.fetch); !errors.Is(err, cache.ErrClosed) {
		t.Errorf("Fetch() error = %v, want ErrClosed", err)
	}
}
