package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/goliatone/go-recipe-query/auth"
	"github.com/goliatone/go-recipe-query/gateway/memory"
	"github.com/goliatone/go-recipe-query/recipe"
)

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := Open(DriverSQLite, fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	require.NoError(t, err)

	s := New(db, append([]Option{WithPasswordCost(bcrypt.MinCost)}, opts...)...)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func seeded(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s := newTestStore(t, opts...)
	details, err := memory.SeedRecipes()
	require.NoError(t, err)
	require.NoError(t, s.Seed(context.Background(), details))
	return s
}

func ids(items []recipe.Summary) []string {
	out := make([]string, len(items))
	for i, s := range items {
		out[i] = s.ID
	}
	return out
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open("oracle", "")
	assert.Error(t, err)
}

func TestMigrate_Idempotent(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Migrate(context.Background()))
}

func TestSeed_ReplacesExisting(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	details, err := memory.SeedRecipes()
	require.NoError(t, err)
	require.NoError(t, s.Seed(ctx, details[:1]))

	d, err := s.RecipeDetail(ctx, details[0].ID, "")
	require.NoError(t, err)
	assert.Len(t, d.Ingredients, len(details[0].Ingredients))
	assert.Len(t, d.Instructions, len(details[0].Instructions))
}

func TestListRecipes_MatchesInMemoryGateway(t *testing.T) {
	s := seeded(t)
	mem, err := memory.NewSeeded()
	require.NoError(t, err)
	ctx := context.Background()

	filters := map[string]recipe.Filter{
		"default":        {},
		"vegan":          {Vegan: recipe.Bool(true)},
		"not vegan":      {Vegan: recipe.Bool(false)},
		"stage 2":        {Stage: 2},
		"title asc":      {SortBy: recipe.SortByTitle, SortOrder: recipe.SortAsc},
		"title desc":     {SortBy: recipe.SortByTitle},
		"rating asc":     {SortOrder: recipe.SortAsc},
		"age 12":         {AgeInMonths: 12},
		"min rating":     {MinRating: 4.5},
		"dinner":         {MealType: recipe.MealDinner},
		"cuisine":        {CuisineType: " Indian "},
		"easy":           {Difficulty: recipe.DifficultyEasy},
		"search":         {Search: "  Banana "},
		"search two":     {Search: "sweet potato"},
		"paged":          {Limit: 5, Offset: 5},
		"offset only":    {Offset: 20},
		"past the end":   {Limit: 10, Offset: 100},
		"gluten and nut": {GlutenFree: recipe.Bool(true), NutFree: recipe.Bool(true)},
	}

	for name, f := range filters {
		t.Run(name, func(t *testing.T) {
			want, err := mem.ListRecipes(ctx, recipe.ListRequest{Filter: f})
			require.NoError(t, err)
			got, err := s.ListRecipes(ctx, recipe.ListRequest{Filter: f})
			require.NoError(t, err)
			assert.Equal(t, ids(want), ids(got))
		})
	}
}

func TestListRecipes_InvalidFilter(t *testing.T) {
	s := newTestStore(t)
	_, err := s.ListRecipes(context.Background(), recipe.ListRequest{Filter: recipe.Filter{Stage: 9}})
	assert.ErrorIs(t, err, recipe.ErrInvalidFilter)
}

func TestListRecipes_SearchEscapesWildcards(t *testing.T) {
	s := seeded(t)
	got, err := s.ListRecipes(context.Background(), recipe.ListRequest{Filter: recipe.Filter{Search: "%"}})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRecipeDetail(t *testing.T) {
	s := seeded(t)
	mem, err := memory.NewSeeded()
	require.NoError(t, err)
	ctx := context.Background()

	want, err := mem.RecipeDetail(ctx, "rcp-001", "")
	require.NoError(t, err)
	got, err := s.RecipeDetail(ctx, "rcp-001", "")
	require.NoError(t, err)

	assert.Equal(t, want.Summary, got.Summary)
	assert.Equal(t, want.Ingredients, got.Ingredients)
	assert.Equal(t, want.Instructions, got.Instructions)
	assert.ElementsMatch(t, want.Equipment, got.Equipment)
	assert.Equal(t, want.MealType, got.MealType)
	assert.Equal(t, want.Difficulty, got.Difficulty)

	_, err = s.RecipeDetail(ctx, "rcp-draft", "")
	assert.ErrorIs(t, err, recipe.ErrNotFound)
	_, err = s.RecipeDetail(ctx, "missing", "")
	assert.ErrorIs(t, err, recipe.ErrNotFound)
}

func TestFeaturedRecipes(t *testing.T) {
	s := seeded(t)
	mem, err := memory.NewSeeded()
	require.NoError(t, err)
	ctx := context.Background()

	want, err := mem.FeaturedRecipes(ctx, "")
	require.NoError(t, err)
	got, err := s.FeaturedRecipes(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, ids(want), ids(got))
	assert.Len(t, got, 6)
}

func TestSaveRecipe_RelationAndCounters(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := seeded(t, WithClock(clock))
	ctx := context.Background()

	_, before, err := s.Counters(ctx, "rcp-001")
	require.NoError(t, err)

	require.NoError(t, s.SaveRecipe(ctx, "u1", "rcp-003"))
	clock.Advance(time.Minute)
	require.NoError(t, s.SaveRecipe(ctx, "u1", "rcp-001"))
	assert.ErrorIs(t, s.SaveRecipe(ctx, "u1", "rcp-001"), recipe.ErrAlreadySaved)
	assert.ErrorIs(t, s.SaveRecipe(ctx, "u1", "missing"), recipe.ErrNotFound)

	_, after, err := s.Counters(ctx, "rcp-001")
	require.NoError(t, err)
	assert.Equal(t, before+1, after, "duplicate save does not count")

	saved, err := s.SavedRecipes(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"rcp-001", "rcp-003"}, ids(saved))
	for _, sum := range saved {
		assert.True(t, sum.IsSaved)
	}

	list, err := s.ListRecipes(ctx, recipe.ListRequest{UserID: "u1"})
	require.NoError(t, err)
	for _, sum := range list {
		assert.Equal(t, sum.ID == "rcp-001" || sum.ID == "rcp-003", sum.IsSaved, sum.ID)
	}

	other, err := s.ListRecipes(ctx, recipe.ListRequest{UserID: "u2"})
	require.NoError(t, err)
	for _, sum := range other {
		assert.False(t, sum.IsSaved, sum.ID)
	}

	d, err := s.RecipeDetail(ctx, "rcp-003", "u1")
	require.NoError(t, err)
	assert.True(t, d.IsSaved)

	require.NoError(t, s.UnsaveRecipe(ctx, "u1", "rcp-001"))
	require.NoError(t, s.UnsaveRecipe(ctx, "u1", "rcp-001"))
	require.NoError(t, s.UnsaveRecipe(ctx, "nobody", "rcp-001"))

	_, final, err := s.Counters(ctx, "rcp-001")
	require.NoError(t, err)
	assert.Equal(t, before, final)

	saved, err = s.SavedRecipes(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"rcp-003"}, ids(saved))
}

func TestIncrementViewCount(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	views, _, err := s.Counters(ctx, "rcp-002")
	require.NoError(t, err)

	require.NoError(t, s.IncrementViewCount(ctx, "rcp-002"))
	require.NoError(t, s.IncrementViewCount(ctx, "rcp-002"))

	after, _, err := s.Counters(ctx, "rcp-002")
	require.NoError(t, err)
	assert.Equal(t, views+2, after)

	assert.ErrorIs(t, s.IncrementViewCount(ctx, "missing"), recipe.ErrNotFound)
}

func TestAuthFlow(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := newTestStore(t, WithClock(clock), WithSessionTTL(time.Minute))
	ctx := context.Background()

	sess, err := s.SignUp(ctx, auth.SignUpInput{Email: " Kim@Example.com ", Password: "hunter22"})
	require.NoError(t, err)
	assert.Equal(t, "kim@example.com", sess.User.Email)
	assert.NotEmpty(t, sess.AccessToken)

	_, err = s.SignUp(ctx, auth.SignUpInput{Email: "kim@example.com", Password: "other1"})
	assert.ErrorIs(t, err, auth.ErrEmailTaken)

	_, err = s.SignIn(ctx, auth.SignInInput{Email: "kim@example.com", Password: "nope"})
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	_, err = s.SignIn(ctx, auth.SignInInput{Email: "who@example.com", Password: "hunter22"})
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	sess2, err := s.SignIn(ctx, auth.SignInInput{Email: "KIM@example.com", Password: "hunter22"})
	require.NoError(t, err)
	assert.Equal(t, sess.User.ID, sess2.User.ID)

	u, err := s.GetUser(ctx, sess2.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, sess.User.ID, u.ID)

	require.NoError(t, s.SignOut(ctx, sess2.AccessToken))
	_, err = s.GetUser(ctx, sess2.AccessToken)
	assert.ErrorIs(t, err, auth.ErrNotAuthenticated)

	clock.Advance(time.Minute)
	_, err = s.GetUser(ctx, sess.AccessToken)
	assert.ErrorIs(t, err, auth.ErrNotAuthenticated, "expired")

	purged, err := s.PurgeSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)
}
