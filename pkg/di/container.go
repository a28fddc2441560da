package di

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/goliatone/go-recipe-query/auth"
	"github.com/goliatone/go-recipe-query/cache"
	"github.com/goliatone/go-recipe-query/gateway/memory"
	"github.com/goliatone/go-recipe-query/gateway/postgrest"
	"github.com/goliatone/go-recipe-query/gateway/sqlstore"
	"github.com/goliatone/go-recipe-query/internal/background"
	"github.com/goliatone/go-recipe-query/internal/config"
	"github.com/goliatone/go-recipe-query/internal/logger"
	"github.com/goliatone/go-recipe-query/internal/metrics"
	"github.com/goliatone/go-recipe-query/internal/querystore"
	"github.com/goliatone/go-recipe-query/recipe"
	"github.com/goliatone/go-recipe-query/recipequery"
)

// Gateway is a backend serving both recipe data and authentication.
type Gateway interface {
	recipe.Gateway
	auth.Gateway
}

// Option customizes how the container builds its components.
type Option func(*options)

type options struct {
	gateway   Gateway
	sessions  auth.SessionStore
	clock     clockwork.Clock
	logWriter io.Writer
	registry  *prometheus.Registry
	version   string
	workers   int
}

// WithGateway uses gw instead of the backend named by the configuration.
func WithGateway(gw Gateway) Option {
	return func(o *options) { o.gateway = gw }
}

// WithSessionStore overrides the session store chosen from the configuration.
func WithSessionStore(s auth.SessionStore) Option {
	return func(o *options) { o.sessions = s }
}

// WithClock sets the clock shared by the store, gateways and accessor.
func WithClock(c clockwork.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithLogWriter sets where logs are written. Defaults to stderr.
func WithLogWriter(w io.Writer) Option {
	return func(o *options) { o.logWriter = w }
}

// WithRegistry registers the cache metrics on reg instead of a new registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *options) { o.registry = reg }
}

// WithVersion sets the version attached to every log record.
func WithVersion(v string) Option {
	return func(o *options) { o.version = v }
}

// WithWorkers sets the number of background workers for side calls.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// Container holds the wired application components. Build it once and
// share it; Close releases everything it opened.
type Container struct {
	config   config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *metrics.Cache
	store    cache.Store
	gateway  Gateway
	sessions auth.SessionStore
	accessor *auth.Accessor
	pool     *background.Pool
	client   *recipequery.Client

	unlisten func()
	closers  []func() error
}

// NewFromEnv loads the configuration from the environment and builds a
// container from it.
func NewFromEnv(ctx context.Context, opts ...Option) (*Container, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return New(ctx, *cfg, opts...)
}

// New builds the container: config, logger, metrics, query store, gateway,
// auth accessor and query client, in that order. On error everything
// already opened is closed.
func New(ctx context.Context, cfg config.Config, opts ...Option) (c *Container, err error) {
	o := options{
		clock:     clockwork.NewRealClock(),
		logWriter: os.Stderr,
		workers:   2,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.gateway == nil {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
	}

	c = &Container{config: cfg}
	defer func() {
		if err != nil {
			_ = c.Close()
			c = nil
		}
	}()

	c.logger = logger.New(cfg.LoggerConfig(o.version), o.logWriter)

	c.registry = o.registry
	if c.registry == nil {
		c.registry = prometheus.NewRegistry()
	}
	c.metrics = metrics.NewCache(c.registry)

	cacheCfg := cfg.CacheConfig()
	c.store, err = querystore.New(cacheCfg,
		querystore.WithClock(o.clock),
		querystore.WithLogger(c.logger.With("component", "querystore")),
		querystore.WithMetrics(c.metrics),
	)
	if err != nil {
		return nil, fmt.Errorf("query store: %w", err)
	}
	c.closers = append(c.closers, c.store.Close)

	c.gateway = o.gateway
	if c.gateway == nil {
		if c.gateway, err = c.openGateway(ctx, o); err != nil {
			return nil, err
		}
	}

	c.sessions = o.sessions
	if c.sessions == nil {
		if c.sessions, err = openSessions(cfg); err != nil {
			return nil, err
		}
	}

	authCache, err := cache.NewCacheService(cacheCfg.ReadThrough)
	if err != nil {
		return nil, fmt.Errorf("auth cache: %w", err)
	}
	c.accessor = auth.NewAccessor(c.gateway, c.sessions, authCache,
		auth.WithClock(o.clock),
		auth.WithLogger(c.logger.With("component", "auth")),
	)

	c.pool = background.NewPool(o.workers, 64, background.WithLogger(c.logger.With("component", "background")))
	c.closers = append(c.closers, func() error {
		c.pool.Stop()
		return nil
	})

	c.client, err = recipequery.New(c.store, c.gateway,
		recipequery.WithLogger(c.logger.With("component", "recipequery")),
		recipequery.WithPool(c.pool),
	)
	if err != nil {
		return nil, err
	}

	c.unlisten = c.accessor.OnChange(func(prev, next string) {
		c.client.HandleViewerChange(recipequery.Viewer{UserID: prev}, recipequery.Viewer{UserID: next})
	})

	c.logger.Info("container ready", "backend", c.backend(o))
	return c, nil
}

func (c *Container) backend(o options) string {
	if o.gateway != nil {
		return "custom"
	}
	return c.config.Backend
}

func (c *Container) openGateway(ctx context.Context, o options) (Gateway, error) {
	cfg := c.config
	switch cfg.Backend {
	case config.BackendMemory:
		gw, err := memory.NewSeeded(memory.WithClock(o.clock))
		if err != nil {
			return nil, fmt.Errorf("memory gateway: %w", err)
		}
		return gw, nil

	case config.BackendSQL:
		db, err := sqlstore.Open(cfg.SQL.Driver, cfg.SQL.DSN)
		if err != nil {
			return nil, err
		}
		store := sqlstore.New(db,
			sqlstore.WithClock(o.clock),
			sqlstore.WithLogger(c.logger.With("component", "sqlstore")),
		)
		c.closers = append(c.closers, store.Close)

		if err := store.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		if cfg.SQL.Seed {
			details, err := memory.SeedRecipes()
			if err != nil {
				return nil, err
			}
			if err := store.Seed(ctx, details); err != nil {
				return nil, fmt.Errorf("seed: %w", err)
			}
		}
		return store, nil

	case config.BackendPostgREST:
		return postgrest.New(postgrest.Config{
			URL:       cfg.API.URL,
			Key:       cfg.API.Key,
			RateLimit: cfg.API.RateLimit,
			Burst:     cfg.API.Burst,
			Timeout:   cfg.API.Timeout.Duration,
		},
			postgrest.WithClock(o.clock),
			postgrest.WithLogger(c.logger.With("component", "postgrest")),
		)
	}
	return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}

func openSessions(cfg config.Config) (auth.SessionStore, error) {
	if cfg.SessionFile == "" {
		return auth.NewMemorySessionStore(), nil
	}
	return auth.NewFileSessionStore(cfg.SessionFile)
}

// Config returns the configuration the container was built from.
func (c *Container) Config() config.Config { return c.config }

// Logger returns the application logger.
func (c *Container) Logger() *slog.Logger { return c.logger }

// Registry returns the registry holding the cache metrics.
func (c *Container) Registry() *prometheus.Registry { return c.registry }

// Store returns the shared query store.
func (c *Container) Store() cache.Store { return c.store }

// Gateway returns the backend in use.
func (c *Container) Gateway() Gateway { return c.gateway }

// Accessor returns the auth accessor.
func (c *Container) Accessor() *auth.Accessor { return c.accessor }

// Client returns the recipe query client.
func (c *Container) Client() *recipequery.Client { return c.client }

// Viewer resolves the current viewer from the stored session.
func (c *Container) Viewer(ctx context.Context) recipequery.Viewer {
	return recipequery.Viewer{UserID: c.accessor.UserID(ctx)}
}

// Close stops background work and closes the store and gateway, in reverse
// order of creation.
func (c *Container) Close() error {
	if c.unlisten != nil {
		c.unlisten()
		c.unlisten = nil
	}

	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
