package postgrest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/supabase-community/gotrue-go"
	pgrst "github.com/supabase-community/postgrest-go"
	"golang.org/x/time/rate"

	"github.com/goliatone/go-recipe-query/auth"
	"github.com/goliatone/go-recipe-query/internal/logger"
	"github.com/goliatone/go-recipe-query/recipe"
)

const (
	restPath = "/rest/v1"
	authPath = "/auth/v1"

	schema = "public"

	// HeaderAPIKey carries the project's public key on every request.
	HeaderAPIKey = "apikey"

	// HeaderRequestID correlates client logs with server logs.
	HeaderRequestID = "X-Request-Id"

	headerPrefer = "Prefer"

	// accept header asking PostgREST for a single object; zero rows is PGRST116
	acceptObject = "application/vnd.pgrst.object+json"
)

var (
	_ recipe.Gateway = (*Client)(nil)
	_ auth.Gateway   = (*Client)(nil)
)

// Config configures the hosted backend connection.
type Config struct {
	URL       string
	Key       string
	RateLimit float64 // requests per second, <= 0 disables throttling
	Burst     int
	Timeout   time.Duration
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient sends requests through hc's transport. A positive hc.Timeout
// wins over Config.Timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc.Transport != nil {
			c.base = hc.Transport
		}
		if hc.Timeout > 0 {
			c.timeout = hc.Timeout
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithClock sets the clock used to turn expires_in into an expiry time.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Client) { c.clock = clock }
}

// Client talks to a PostgREST API through postgrest-go and to its GoTrue
// auth server through gotrue-go. Requests are sent with the public key until
// a session is established, then with the session's access token.
type Client struct {
	restURL string
	authURL string
	key     string

	base    http.RoundTripper
	timeout time.Duration
	limiter *rate.Limiter
	logger  *slog.Logger
	clock   clockwork.Clock

	mu    sync.RWMutex
	token string
}

// New validates cfg and returns a client.
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("postgrest: url is required")
	}
	if cfg.Key == "" {
		return nil, fmt.Errorf("postgrest: api key is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.URL, "/"))
	if err != nil {
		return nil, fmt.Errorf("postgrest: invalid url: %w", err)
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	c := &Client{
		restURL: base.JoinPath(restPath).String(),
		authURL: base.JoinPath(authPath).String(),
		key:     cfg.Key,
		base:    http.DefaultTransport,
		timeout: timeout,
		limiter: rate.NewLimiter(limit, burst),
		logger:  slog.Default(),
		clock:   clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SetAccessToken sets the bearer token used for data requests. An empty
// token falls back to the public key.
func (c *Client) SetAccessToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// AccessToken returns the bearer token currently used for data requests.
func (c *Client) AccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) bearer() string {
	if token := c.AccessToken(); token != "" {
		return token
	}
	return c.key
}

// rest returns a PostgREST client whose requests run under ctx. The library
// builds requests without a context, so ctx is bound in the transport.
func (c *Client) rest(ctx context.Context) *pgrst.Client {
	pc := pgrst.NewClient(c.restURL, schema, nil)
	pc.SetApiKey(c.key)
	pc.SetAuthToken(c.bearer())
	pc.Transport.Parent = c.transport(ctx)
	return pc
}

// authClient returns a GoTrue client whose requests run under ctx,
// authenticated with token when it is set.
func (c *Client) authClient(ctx context.Context, token string) gotrue.Client {
	gc := gotrue.New("", c.key).
		WithCustomGoTrueURL(c.authURL).
		WithClient(http.Client{Transport: c.transport(ctx)})
	if token != "" {
		gc = gc.WithToken(token)
	}
	return gc
}

func (c *Client) transport(ctx context.Context) *transport {
	return &transport{ctx: ctx, client: c}
}

// transport throttles, tags and times every request of one call, and turns
// error responses into *APIError before the library sees them.
type transport struct {
	ctx    context.Context
	client *Client
}

func (t *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	c := t.client
	if err := c.limiter.Wait(t.ctx); err != nil {
		return nil, fmt.Errorf("postgrest: rate limit wait: %w", err)
	}

	ctx, cancel := context.WithTimeout(t.ctx, c.timeout)
	req = req.Clone(ctx)

	requestID, ok := logger.RequestIDFromContext(t.ctx)
	if !ok {
		requestID = logger.GenerateRequestID()
	}
	req.Header.Set(HeaderRequestID, requestID)
	req.Header.Set(HeaderAPIKey, c.key)

	start := c.clock.Now()
	resp, err := c.base.RoundTrip(req)
	if err != nil {
		cancel()
		c.logger.Warn("request failed", "method", req.Method, "path", req.URL.Path, "request_id", requestID, "error", err)
		return nil, err
	}

	c.logger.Debug("request",
		"method", req.Method,
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"request_id", requestID,
		"duration", c.clock.Since(start),
	)

	if resp.StatusCode >= http.StatusBadRequest {
		data, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		cancel()
		if readErr != nil {
			return nil, fmt.Errorf("postgrest: read error response: %w", readErr)
		}
		return nil, decodeError(resp.StatusCode, data)
	}

	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// cancelOnClose releases the request timeout once the body is consumed.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelOnClose) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}
