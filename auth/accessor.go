package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/sethvargo/go-retry"

	"github.com/goliatone/go-recipe-query/cache"
)

// Namespace is the cache namespace of the auth entries.
const Namespace = "auth"

var (
	keySession = cache.NewDefaultKeySerializer().SerializeKey(Namespace, "session")
	keyUser    = cache.NewDefaultKeySerializer().SerializeKey(Namespace, "user")
)

// ChangeFunc is called with the previous and next user ids after the signed-in
// user changes. Either may be empty.
type ChangeFunc func(prev, next string)

// AccessorOption customizes an Accessor.
type AccessorOption func(*Accessor)

// WithClock sets the clock used for session expiry.
func WithClock(c clockwork.Clock) AccessorOption {
	return func(a *Accessor) { a.clock = c }
}

// WithLogger sets the accessor logger.
func WithLogger(l *slog.Logger) AccessorOption {
	return func(a *Accessor) { a.logger = l }
}

// WithRetryDelay sets the wait before the single user lookup retry.
func WithRetryDelay(d time.Duration) AccessorOption {
	return func(a *Accessor) { a.retryDelay = d }
}

// Accessor exposes the current session and user. Both are read through a
// TTL cache and dropped from it after every sign-up, sign-in and sign-out.
type Accessor struct {
	gateway  Gateway
	sessions SessionStore
	cache    cache.CacheService

	clock      clockwork.Clock
	logger     *slog.Logger
	retryDelay time.Duration

	mu        sync.Mutex
	lastUser  string
	listeners *xsync.MapOf[uint64, ChangeFunc]
	nextID    uint64
}

// NewAccessor builds an accessor over the gateway, the persisted session and
// a read-through cache.
func NewAccessor(gw Gateway, sessions SessionStore, svc cache.CacheService, opts ...AccessorOption) *Accessor {
	a := &Accessor{
		gateway:    gw,
		sessions:   sessions,
		cache:      svc,
		clock:      clockwork.NewRealClock(),
		logger:     slog.Default(),
		retryDelay: time.Second,
		listeners:  xsync.NewMapOf[uint64, ChangeFunc](),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Session returns the stored session. It returns ErrNotAuthenticated when
// signed out or when the stored session has expired.
func (a *Accessor) Session(ctx context.Context) (Session, error) {
	s, err := cache.GetOrFetch(ctx, a.cache, keySession, func(ctx context.Context) (Session, error) {
		s, err := a.sessions.Load(ctx)
		if errors.Is(err, ErrNoSession) {
			return Session{}, cache.ErrMissing
		}
		if err != nil {
			return Session{}, err
		}
		return s, nil
	})
	if errors.Is(err, cache.ErrMissing) {
		return Session{}, ErrNotAuthenticated
	}
	if err != nil {
		return Session{}, err
	}
	if s.Expired(a.clock.Now()) {
		return Session{}, ErrNotAuthenticated
	}
	return s, nil
}

// CurrentUser resolves the session's user through the gateway. A failed
// lookup is retried once; a rejected token reads as signed out.
func (a *Accessor) CurrentUser(ctx context.Context) (User, error) {
	u, err := cache.GetOrFetch(ctx, a.cache, keyUser, func(ctx context.Context) (User, error) {
		s, err := a.Session(ctx)
		if errors.Is(err, ErrNotAuthenticated) {
			return User{}, cache.ErrMissing
		}
		if err != nil {
			return User{}, err
		}
		return a.lookupUser(ctx, s.AccessToken)
	})
	if errors.Is(err, cache.ErrMissing) {
		return User{}, ErrNotAuthenticated
	}
	if err == nil {
		a.observe(u.ID)
	}
	return u, err
}

func (a *Accessor) lookupUser(ctx context.Context, token string) (User, error) {
	delay := a.retryDelay
	if delay <= 0 {
		delay = time.Millisecond
	}

	var user User
	b := retry.WithMaxRetries(1, retry.NewConstant(delay))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		u, err := a.gateway.GetUser(ctx, token)
		if errors.Is(err, ErrNotAuthenticated) {
			return cache.ErrMissing
		}
		if err != nil {
			return retry.RetryableError(err)
		}
		user = u
		return nil
	})
	return user, err
}

// UserID returns the signed-in user's id, empty when signed out or when the
// user cannot be resolved.
func (a *Accessor) UserID(ctx context.Context) string {
	u, err := a.CurrentUser(ctx)
	if err != nil {
		if !errors.Is(err, ErrNotAuthenticated) {
			a.logger.Warn("resolve current user", "error", err)
		}
		return ""
	}
	return u.ID
}

// IsAuthenticated reports whether a user is signed in.
func (a *Accessor) IsAuthenticated(ctx context.Context) bool {
	return a.UserID(ctx) != ""
}

// SignUp registers an account and stores its session.
func (a *Accessor) SignUp(ctx context.Context, in SignUpInput) (User, error) {
	if err := in.Validate(); err != nil {
		return User{}, fmt.Errorf("sign up: %w", err)
	}
	s, err := a.gateway.SignUp(ctx, in)
	if err != nil {
		return User{}, fmt.Errorf("sign up: %w", err)
	}
	return s.User, a.establish(ctx, s)
}

// SignIn authenticates and stores the session.
func (a *Accessor) SignIn(ctx context.Context, in SignInInput) (User, error) {
	if err := in.Validate(); err != nil {
		return User{}, fmt.Errorf("sign in: %w", err)
	}
	s, err := a.gateway.SignIn(ctx, in)
	if err != nil {
		return User{}, fmt.Errorf("sign in: %w", err)
	}
	return s.User, a.establish(ctx, s)
}

func (a *Accessor) establish(ctx context.Context, s Session) error {
	if err := a.sessions.Save(ctx, s); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	a.Refresh(ctx)
	a.observe(s.User.ID)
	return nil
}

// SignOut ends the remote session and forgets the local one. The local
// session is cleared even when the gateway call fails.
func (a *Accessor) SignOut(ctx context.Context) error {
	var remoteErr error
	if s, err := a.sessions.Load(ctx); err == nil {
		remoteErr = a.gateway.SignOut(ctx, s.AccessToken)
		if remoteErr != nil {
			a.logger.Warn("remote sign out failed", "error", remoteErr)
		}
	}

	if err := a.sessions.Clear(ctx); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	a.Refresh(ctx)
	a.observe("")

	if remoteErr != nil {
		return fmt.Errorf("sign out: %w", remoteErr)
	}
	return nil
}

// Refresh drops the cached session and user so the next read reloads them.
func (a *Accessor) Refresh(ctx context.Context) {
	if err := a.cache.DeleteByPrefix(ctx, Namespace); err != nil {
		a.logger.Warn("drop cached auth state", "error", err)
	}
}

// OnChange registers fn for user changes and returns a func removing it.
func (a *Accessor) OnChange(fn ChangeFunc) (remove func()) {
	a.mu.Lock()
	a.nextID++
	id := a.nextID
	a.mu.Unlock()

	a.listeners.Store(id, fn)
	return func() { a.listeners.Delete(id) }
}

func (a *Accessor) observe(userID string) {
	a.mu.Lock()
	prev := a.lastUser
	a.lastUser = userID
	a.mu.Unlock()

	if prev == userID {
		return
	}
	a.logger.Debug("signed-in user changed", "prev", prev, "next", userID)
	a.listeners.Range(func(_ uint64, fn ChangeFunc) bool {
		fn(prev, userID)
		return true
	})
}
