package recipequery

import (
	"fmt"
	"time"

	"github.com/goliatone/go-recipe-query/cache"
)

// DefaultPageSize is the page size of infinite queries that do not set one.
const DefaultPageSize = 20

// Policies holds the freshness, retention and retry settings of each query kind.
type Policies struct {
	List     cache.Policy
	Infinite cache.Policy
	Featured cache.Policy
	Detail   cache.Policy
	Saved    cache.Policy
}

// DefaultPolicies returns the production settings.
func DefaultPolicies() Policies {
	list := cache.Policy{StaleTime: 5 * time.Minute, GCTime: 10 * time.Minute, Retry: cache.Backoff(3)}
	return Policies{
		List:     list,
		Infinite: list,
		Featured: cache.Policy{StaleTime: 15 * time.Minute, GCTime: 15 * time.Minute, Retry: cache.Backoff(3)},
		Detail:   cache.Policy{StaleTime: 10 * time.Minute, GCTime: 15 * time.Minute, Retry: cache.Backoff(2)},
		Saved:    cache.Policy{StaleTime: 5 * time.Minute, GCTime: 10 * time.Minute, Retry: cache.Backoff(2)},
	}
}

// Validate checks every policy.
func (p Policies) Validate() error {
	for name, policy := range map[string]cache.Policy{
		"list":     p.List,
		"infinite": p.Infinite,
		"featured": p.Featured,
		"detail":   p.Detail,
		"saved":    p.Saved,
	} {
		if err := policy.Validate(); err != nil {
			return fmt.Errorf("%s policy: %w", name, err)
		}
	}
	return nil
}

// WithRetryDelays returns a copy with every retry base and cap replaced.
// Tests use it to keep backoff short.
func (p Policies) WithRetryDelays(base, max time.Duration) Policies {
	set := func(c cache.Policy) cache.Policy {
		c.Retry.BaseDelay = base
		c.Retry.MaxDelay = max
		return c
	}
	return Policies{
		List:     set(p.List),
		Infinite: set(p.Infinite),
		Featured: set(p.Featured),
		Detail:   set(p.Detail),
		Saved:    set(p.Saved),
	}
}
