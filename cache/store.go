package cache

import (
	"context"
	"errors"
	"time"
)

// Status is the lifecycle state of a cache entry.
type Status int

const (
	// StatusIdle entries have never been fetched.
	StatusIdle Status = iota
	// StatusPending entries are waiting for their first result.
	StatusPending
	StatusSuccess
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusPending:
		return "pending"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Snapshot is an immutable view of an entry at one point in time.
type Snapshot struct {
	Key   string
	Value Value
	// Err is the last fetch error. It is kept alongside the last good Value.
	Err        error
	Status     Status
	UpdatedAt  time.Time
	ErrorAt    time.Time
	IsStale    bool
	IsFetching bool
	// Fingerprint changes whenever Value changes.
	Fingerprint uint64
	Observers   int
}

// HasValue reports whether the snapshot carries data.
func (s Snapshot) HasValue() bool { return s.Value != nil }

// FetchFn loads a value from the source of truth. prev is the entry's value
// when the fetch was initiated, nil if it had none.
type FetchFn func(ctx context.Context, prev Value) (Value, error)

// MergeFn combines a fetched value with the entry's value at landing time.
// It must not return nil.
type MergeFn func(current, fetched Value) Value

// EventType names what happened to an entry.
type EventType int

const (
	EventUpdated EventType = iota + 1
	EventFailed
	EventInvalidated
	EventRemoved
)

func (e EventType) String() string {
	switch e {
	case EventUpdated:
		return "updated"
	case EventFailed:
		return "failed"
	case EventInvalidated:
		return "invalidated"
	case EventRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Event is delivered to subscribers after the change it describes is visible
// to every reader.
type Event struct {
	Type     EventType
	Snapshot Snapshot
}

// Store is the query cache: a process-wide map from key to entry that owns
// fetching, freshness, retries and retention. Consumers read snapshots and
// request refreshes, patches and invalidations.
type Store interface {
	// Fetch serves key. A fresh entry is returned without calling fn. A stale
	// entry with a value is returned at once and one background refetch is
	// started unless one is already running. An entry without a value joins
	// or starts the in-flight fetch and waits for it; if ctx ends first the
	// fetch still completes into the cache.
	Fetch(ctx context.Context, key string, policy Policy, fn FetchFn) (Snapshot, error)

	// Refetch starts a new fetch even if one is in flight and waits for it.
	// Of overlapping fetches, the most recently initiated one wins.
	Refetch(ctx context.Context, key string, policy Policy, fn FetchFn) (Snapshot, error)

	// Extend starts a fetch only when none is in flight for key, and waits
	// for it. started is false when the call was a no-op. A successful result
	// is merged into the value current when it lands, after replaying any
	// Patch made while it was in flight, so concurrent patches survive. A nil
	// merge replaces the value.
	Extend(ctx context.Context, key string, policy Policy, fn FetchFn, merge MergeFn) (snap Snapshot, started bool, err error)

	// Snapshot returns the entry without fetching.
	Snapshot(key string) (Snapshot, bool)

	// Observe registers an observer; the entry is not collected while it has
	// observers. The returned func releases the observation and is idempotent.
	Observe(key string, policy Policy) (release func())

	// SetValue writes v as a fresh result, superseding in-flight fetches.
	SetValue(key string, policy Policy, v Value) Snapshot

	// Patch applies update to the value of every entry whose key satisfies
	// match, under a single lock. It returns the keys that changed.
	Patch(match func(key string) bool, update func(key string, v Value) (Value, bool)) []string

	// Invalidate marks matching entries stale and refetches the observed ones
	// in the background. It returns the matching keys.
	Invalidate(match func(key string) bool) []string

	// Remove drops matching entries. In-flight fetches complete but are not
	// written back.
	Remove(match func(key string) bool) []string

	// Subscribe calls fn for events on keys satisfying match until the
	// returned func is called.
	Subscribe(match func(key string) bool, fn func(Event)) (unsubscribe func())

	// Sweep evicts inactive entries whose GC time has elapsed and returns
	// their keys.
	Sweep() []string

	Len() int

	// Close stops background work and waits for in-flight fetches.
	Close() error
}

var (
	// ErrInvalidResultType is returned when a cached value is not of the requested type.
	ErrInvalidResultType = errors.New("cache: invalid result type")

	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("cache: store closed")
)

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err, or anything it wraps, was marked Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
