package memory

import (
	"context"
	"crypto/subtle"
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/goliatone/go-recipe-query/auth"
	"github.com/goliatone/go-recipe-query/recipe"
)

// Operation names, used for call counters, hooks and injected failures.
const (
	OpListRecipes        = "ListRecipes"
	OpRecipeDetail       = "RecipeDetail"
	OpFeaturedRecipes    = "FeaturedRecipes"
	OpSavedRecipes       = "SavedRecipes"
	OpSaveRecipe         = "SaveRecipe"
	OpUnsaveRecipe       = "UnsaveRecipe"
	OpIncrementViewCount = "IncrementViewCount"
	OpSignUp             = "SignUp"
	OpSignIn             = "SignIn"
	OpSignOut            = "SignOut"
	OpGetUser            = "GetUser"
)

// DefaultSessionTTL is how long issued sessions stay valid.
const DefaultSessionTTL = time.Hour

//go:embed seed.json
var seedJSON []byte

// SeedRecipes returns the bundled demo recipes.
func SeedRecipes() ([]recipe.Detail, error) {
	var details []recipe.Detail
	if err := json.Unmarshal(seedJSON, &details); err != nil {
		return nil, fmt.Errorf("decode seed recipes: %w", err)
	}
	for i := range details {
		details[i].SortParts()
		if err := details[i].Validate(); err != nil {
			return nil, err
		}
	}
	return details, nil
}

var (
	_ recipe.Gateway = (*Gateway)(nil)
	_ auth.Gateway   = (*Gateway)(nil)
)

// Hook runs at the start of every operation. A non-nil error fails the
// operation. Tests use it to block or observe calls.
type Hook func(ctx context.Context, op string) error

type account struct {
	user     auth.User
	password string
}

// Gateway is an in-process recipe and auth backend. It applies the same
// filtering, ordering and paging rules as the hosted service.
type Gateway struct {
	mu       sync.RWMutex
	recipes  map[string]recipe.Detail
	order    []string
	saved    map[string]map[string]time.Time
	accounts map[string]*account
	sessions map[string]auth.Session

	calls    map[string]int
	failures map[string][]error
	hook     Hook

	clock      clockwork.Clock
	sessionTTL time.Duration
}

// Option customizes the gateway.
type Option func(*Gateway)

// WithRecipes seeds the gateway.
func WithRecipes(details ...recipe.Detail) Option {
	return func(g *Gateway) {
		for _, d := range details {
			g.putLocked(d)
		}
	}
}

// WithHook installs a hook called at the start of every operation.
func WithHook(h Hook) Option {
	return func(g *Gateway) { g.hook = h }
}

// WithClock sets the clock used for timestamps and session expiry.
func WithClock(c clockwork.Clock) Option {
	return func(g *Gateway) { g.clock = c }
}

// WithSessionTTL sets the lifetime of issued sessions.
func WithSessionTTL(d time.Duration) Option {
	return func(g *Gateway) { g.sessionTTL = d }
}

// New returns an empty gateway.
func New(opts ...Option) *Gateway {
	g := &Gateway{
		recipes:    make(map[string]recipe.Detail),
		saved:      make(map[string]map[string]time.Time),
		accounts:   make(map[string]*account),
		sessions:   make(map[string]auth.Session),
		calls:      make(map[string]int),
		failures:   make(map[string][]error),
		clock:      clockwork.NewRealClock(),
		sessionTTL: DefaultSessionTTL,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// NewSeeded returns a gateway loaded with SeedRecipes.
func NewSeeded(opts ...Option) (*Gateway, error) {
	details, err := SeedRecipes()
	if err != nil {
		return nil, err
	}
	return New(append([]Option{WithRecipes(details...)}, opts...)...), nil
}

// Put adds or replaces a recipe.
func (g *Gateway) Put(d recipe.Detail) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.putLocked(d)
}

func (g *Gateway) putLocked(d recipe.Detail) {
	d.IsSaved = false
	if _, ok := g.recipes[d.ID]; !ok {
		g.order = append(g.order, d.ID)
	}
	g.recipes[d.ID] = d
}

// Recipe returns the stored recipe, counters included.
func (g *Gateway) Recipe(id string) (recipe.Detail, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	d, ok := g.recipes[id]
	return d, ok
}

// Calls returns how many times op was invoked, failed calls included.
func (g *Gateway) Calls(op string) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.calls[op]
}

// TotalCalls returns the number of recipe reads across all read operations.
func (g *Gateway) TotalCalls() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	total := 0
	for _, op := range []string{OpListRecipes, OpRecipeDetail, OpFeaturedRecipes, OpSavedRecipes} {
		total += g.calls[op]
	}
	return total
}

// FailNext makes the next n calls of op return err.
func (g *Gateway) FailNext(op string, err error, n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := 0; i < n; i++ {
		g.failures[op] = append(g.failures[op], err)
	}
}

// enter counts the call, runs the hook and pops an injected failure.
func (g *Gateway) enter(ctx context.Context, op string) error {
	g.mu.Lock()
	g.calls[op]++
	var injected error
	if queue := g.failures[op]; len(queue) > 0 {
		injected = queue[0]
		g.failures[op] = queue[1:]
	}
	hook := g.hook
	g.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, op); err != nil {
			return err
		}
	}
	if injected != nil {
		return injected
	}
	return ctx.Err()
}

func (g *Gateway) allLocked() []recipe.Detail {
	out := make([]recipe.Detail, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.recipes[id])
	}
	return out
}

func (g *Gateway) savedLookup(userID string) func(string) bool {
	set := g.saved[userID]
	return func(id string) bool {
		_, ok := set[id]
		return ok
	}
}

func (g *Gateway) ListRecipes(ctx context.Context, req recipe.ListRequest) ([]recipe.Summary, error) {
	if err := g.enter(ctx, OpListRecipes); err != nil {
		return nil, err
	}
	if err := req.Filter.Validate(); err != nil {
		return nil, err
	}

	g.mu.RLock()
	defer g.mu.RUnlock()
	return recipe.Select(g.allLocked(), req.Filter.Normalized(), g.savedLookup(req.UserID)), nil
}

func (g *Gateway) RecipeDetail(ctx context.Context, id, userID string) (recipe.Detail, error) {
	if err := g.enter(ctx, OpRecipeDetail); err != nil {
		return recipe.Detail{}, err
	}

	g.mu.RLock()
	defer g.mu.RUnlock()
	d, ok := g.recipes[id]
	if !ok || !d.Published {
		return recipe.Detail{}, fmt.Errorf("recipe %q: %w", id, recipe.ErrNotFound)
	}
	d.IsSaved = g.savedLookup(userID)(id)
	d.Ingredients = append([]recipe.Ingredient(nil), d.Ingredients...)
	d.Instructions = append([]recipe.Instruction(nil), d.Instructions...)
	d.Equipment = append([]recipe.Equipment(nil), d.Equipment...)
	return d, nil
}

func (g *Gateway) FeaturedRecipes(ctx context.Context, userID string) ([]recipe.Summary, error) {
	if err := g.enter(ctx, OpFeaturedRecipes); err != nil {
		return nil, err
	}

	g.mu.RLock()
	defer g.mu.RUnlock()
	return recipe.SelectFeatured(g.allLocked(), g.savedLookup(userID)), nil
}

// SavedRecipes returns the user's saved published recipes, most recently
// saved first.
func (g *Gateway) SavedRecipes(ctx context.Context, userID string) ([]recipe.Summary, error) {
	if err := g.enter(ctx, OpSavedRecipes); err != nil {
		return nil, err
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	set := g.saved[userID]
	ids := make([]string, 0, len(set))
	for id := range set {
		if d, ok := g.recipes[id]; ok && d.Published {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		ti, tj := set[ids[i]], set[ids[j]]
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return ids[i] < ids[j]
	})

	out := make([]recipe.Summary, 0, len(ids))
	for _, id := range ids {
		s := g.recipes[id].Card()
		s.IsSaved = true
		out = append(out, s)
	}
	return out, nil
}

func (g *Gateway) SaveRecipe(ctx context.Context, userID, recipeID string) error {
	if err := g.enter(ctx, OpSaveRecipe); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	d, ok := g.recipes[recipeID]
	if !ok {
		return fmt.Errorf("recipe %q: %w", recipeID, recipe.ErrNotFound)
	}
	set := g.saved[userID]
	if set == nil {
		set = make(map[string]time.Time)
		g.saved[userID] = set
	}
	if _, dup := set[recipeID]; dup {
		return fmt.Errorf("user %s recipe %s: %w", userID, recipeID, recipe.ErrAlreadySaved)
	}
	set[recipeID] = g.clock.Now()
	d.SaveCount++
	g.recipes[recipeID] = d
	return nil
}

func (g *Gateway) UnsaveRecipe(ctx context.Context, userID, recipeID string) error {
	if err := g.enter(ctx, OpUnsaveRecipe); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	set := g.saved[userID]
	if _, ok := set[recipeID]; !ok {
		return nil
	}
	delete(set, recipeID)
	if d, ok := g.recipes[recipeID]; ok && d.SaveCount > 0 {
		d.SaveCount--
		g.recipes[recipeID] = d
	}
	return nil
}

func (g *Gateway) IncrementViewCount(ctx context.Context, recipeID string) error {
	if err := g.enter(ctx, OpIncrementViewCount); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	d, ok := g.recipes[recipeID]
	if !ok {
		return fmt.Errorf("recipe %q: %w", recipeID, recipe.ErrNotFound)
	}
	d.ViewCount++
	g.recipes[recipeID] = d
	return nil
}

func (g *Gateway) SignUp(ctx context.Context, in auth.SignUpInput) (auth.Session, error) {
	if err := g.enter(ctx, OpSignUp); err != nil {
		return auth.Session{}, err
	}

	email := strings.ToLower(strings.TrimSpace(in.Email))
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, taken := g.accounts[email]; taken {
		return auth.Session{}, auth.ErrEmailTaken
	}
	acc := &account{
		user: auth.User{
			ID:          uuid.NewString(),
			Email:       email,
			DisplayName: in.DisplayName,
			CreatedAt:   g.clock.Now().UTC(),
		},
		password: in.Password,
	}
	g.accounts[email] = acc
	return g.issueLocked(acc.user), nil
}

func (g *Gateway) SignIn(ctx context.Context, in auth.SignInInput) (auth.Session, error) {
	if err := g.enter(ctx, OpSignIn); err != nil {
		return auth.Session{}, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	acc, ok := g.accounts[strings.ToLower(strings.TrimSpace(in.Email))]
	if !ok || subtle.ConstantTimeCompare([]byte(acc.password), []byte(in.Password)) != 1 {
		return auth.Session{}, auth.ErrInvalidCredentials
	}
	return g.issueLocked(acc.user), nil
}

func (g *Gateway) issueLocked(u auth.User) auth.Session {
	s := auth.Session{
		AccessToken:  uuid.NewString(),
		RefreshToken: uuid.NewString(),
		ExpiresAt:    g.clock.Now().Add(g.sessionTTL).UTC(),
		User:         u,
	}
	g.sessions[s.AccessToken] = s
	return s
}

func (g *Gateway) SignOut(ctx context.Context, accessToken string) error {
	if err := g.enter(ctx, OpSignOut); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.sessions, accessToken)
	return nil
}

func (g *Gateway) GetUser(ctx context.Context, accessToken string) (auth.User, error) {
	if err := g.enter(ctx, OpGetUser); err != nil {
		return auth.User{}, err
	}

	g.mu.RLock()
	defer g.mu.RUnlock()
	s, ok := g.sessions[accessToken]
	if !ok || s.Expired(g.clock.Now()) {
		return auth.User{}, auth.ErrNotAuthenticated
	}
	return s.User, nil
}
