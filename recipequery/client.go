package recipequery

import (
	"fmt"
	"log/slog"

	"github.com/goliatone/go-recipe-query/cache"
	"github.com/goliatone/go-recipe-query/internal/background"
	"github.com/goliatone/go-recipe-query/recipe"
)

// Option customizes a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithPolicies replaces the default query policies.
func WithPolicies(p Policies) Option {
	return func(c *Client) { c.policies = p }
}

// WithKeySerializer sets the serializer cache keys are built with.
func WithKeySerializer(s cache.KeySerializer) Option {
	return func(c *Client) { c.keys = NewKeys(s) }
}

// WithPool runs side calls such as view counting on p. The caller owns p.
func WithPool(p *background.Pool) Option {
	return func(c *Client) { c.pool = p }
}

// WithDefaultPageSize sets the page size of infinite queries built with a
// non-positive one.
func WithDefaultPageSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// Client builds recipe queries and mutations over a shared query store.
type Client struct {
	store    cache.Store
	gateway  recipe.Gateway
	keys     Keys
	policies Policies
	pool     *background.Pool
	ownsPool bool
	logger   *slog.Logger
	pageSize int
}

// New returns a Client reading through gw into store.
func New(store cache.Store, gw recipe.Gateway, opts ...Option) (*Client, error) {
	if store == nil || gw == nil {
		return nil, fmt.Errorf("recipequery: store and gateway are required")
	}

	c := &Client{
		store:    store,
		gateway:  gw,
		keys:     NewKeys(nil),
		policies: DefaultPolicies(),
		logger:   slog.Default(),
		pageSize: DefaultPageSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.policies.Validate(); err != nil {
		return nil, fmt.Errorf("recipequery: %w", err)
	}

	if c.pool == nil {
		c.pool = background.NewPool(2, 64, background.WithLogger(c.logger))
		c.ownsPool = true
	}
	c.pool.Start()
	return c, nil
}

// Keys returns the key builder used by the client.
func (c *Client) Keys() Keys { return c.keys }

// Store returns the underlying query store.
func (c *Client) Store() cache.Store { return c.store }

// Wait blocks until queued side calls have finished.
func (c *Client) Wait() { c.pool.Wait() }

// Close stops the side call pool if the client created it. The store is not
// closed; it is shared.
func (c *Client) Close() {
	if c.ownsPool {
		c.pool.Stop()
	}
}

// HandleViewerChange drops every entry of the previous viewer after the
// signed-in user changes. Entries of the next viewer are keyed apart and are
// untouched.
func (c *Client) HandleViewerChange(prev, next Viewer) {
	if prev == next {
		return
	}
	removed := c.store.Remove(c.keys.ForViewer(prev))
	c.logger.Debug("viewer changed", "prev", prev.marker(), "next", next.marker(), "removed", len(removed))
}
