package cache

import (
	"testing"
	"time"
)

type card struct {
	ID    string
	Saved bool
}

func (c card) RecordID() string { return c.ID }

func markSaved(r Record) Record {
	c := r.(card)
	c.Saved = true
	return c
}

func TestSingle_PatchByID(t *testing.T) {
	orig := Single[card]{Item: card{ID: "r1"}, Found: true}

	patched, ok := orig.PatchByID("r1", markSaved)
	if !ok {
		t.Fatal("expected match")
	}
	if !patched.(Single[card]).Item.Saved {
		t.Error("item not patched")
	}
	if orig.Item.Saved {
		t.Error("original modified")
	}

	if _, ok := orig.PatchByID("r2", markSaved); ok {
		t.Error("patched a different id")
	}
	if _, ok := (Single[card]{Item: card{ID: "r1"}}).PatchByID("r1", markSaved); ok {
		t.Error("patched a not-found result")
	}
}

func TestList_PatchByIDCopiesOnWrite(t *testing.T) {
	orig := List[card]{Items: []card{{ID: "r1"}, {ID: "r2"}}}

	patched, ok := orig.PatchByID("r2", markSaved)
	if !ok {
		t.Fatal("expected match")
	}
	items := patched.(List[card]).Items
	if items[0].Saved || !items[1].Saved {
		t.Errorf("unexpected items %+v", items)
	}
	if orig.Items[1].Saved {
		t.Error("original slice modified")
	}

	same, ok := orig.PatchByID("r9", markSaved)
	if ok {
		t.Error("reported a match for a missing id")
	}
	if len(same.(List[card]).Items) != 2 {
		t.Error("unmatched patch changed the value")
	}
}

func TestPagedList_PatchByIDAndPaging(t *testing.T) {
	orig := PagedList[card]{
		PageSize: 2,
		Pages:    [][]card{{{ID: "r0"}, {ID: "r1"}}, {{ID: "r2"}, {ID: "r1"}}},
	}

	patched, ok := orig.PatchByID("r1", markSaved)
	if !ok {
		t.Fatal("expected match")
	}
	p := patched.(PagedList[card])
	if !p.Pages[0][1].Saved || !p.Pages[1][1].Saved || p.Pages[1][0].Saved {
		t.Errorf("unexpected pages %+v", p.Pages)
	}
	if orig.Pages[0][1].Saved {
		t.Error("original page modified")
	}

	if !orig.HasNextPage() {
		t.Error("full last page should report a next page")
	}
	if got := orig.NextOffset(); got != 4 {
		t.Errorf("NextOffset() = %d, want 4", got)
	}
	if got := len(orig.Flatten()); got != 4 {
		t.Errorf("Flatten() len = %d, want 4", got)
	}

	short := PagedList[card]{PageSize: 2, Pages: [][]card{{{ID: "a"}, {ID: "b"}}, {{ID: "c"}}}}
	if short.HasNextPage() {
		t.Error("short page should end pagination")
	}
	empty := PagedList[card]{PageSize: 2, Pages: [][]card{{}}}
	if empty.HasNextPage() {
		t.Error("empty page should end pagination")
	}
}

func TestValueAs(t *testing.T) {
	var v Value = List[card]{Items: []card{{ID: "a"}}}

	if _, err := ValueAs[List[card]](v); err != nil {
		t.Errorf("ValueAs() error = %v", err)
	}
	if _, err := ValueAs[Single[card]](v); err != ErrInvalidResultType {
		t.Errorf("ValueAs() error = %v, want ErrInvalidResultType", err)
	}
}

func TestRetryPolicy_Delay(t *testing.T) {
	p := Backoff(3)

	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second, 30 * time.Second, 30 * time.Second}
	for attempt, w := range want {
		if got := p.Delay(attempt); got != w {
			t.Errorf("Delay(%d) = %v, want %v", attempt, got, w)
		}
	}
}

func TestPolicy_Validate(t *testing.T) {
	if err := (Policy{StaleTime: time.Minute, GCTime: time.Minute, Retry: Backoff(2)}).Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
	if err := (Policy{StaleTime: -time.Second}).Validate(); err == nil {
		t.Error("expected error for negative stale time")
	}
	if err := (Policy{Retry: RetryPolicy{MaxRetries: -1}}).Validate(); err == nil {
		t.Error("expected error for negative retries")
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("DefaultConfig().Validate() error = %v", err)
	}

	cfg.Capacity = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for zero capacity")
	}

	cfg = DefaultConfig()
	cfg.ReadThrough.EvictionPercentage = 101
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for eviction percentage above 100")
	}
}
