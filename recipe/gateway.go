package recipe

import "context"

// ListRequest is the input of a list fetch. UserID is empty for anonymous
// callers, in which case every IsSaved flag comes back false.
type ListRequest struct {
	Filter Filter
	UserID string
}

// Gateway is the remote data service the query layer reads from and writes to.
// Implementations own filtering, paging, search and the view/save counters.
type Gateway interface {
	ListRecipes(ctx context.Context, req ListRequest) ([]Summary, error)

	// RecipeDetail returns ErrNotFound when id does not resolve to a
	// published recipe.
	RecipeDetail(ctx context.Context, id, userID string) (Detail, error)

	FeaturedRecipes(ctx context.Context, userID string) ([]Summary, error)
	SavedRecipes(ctx context.Context, userID string) ([]Summary, error)

	// SaveRecipe returns ErrAlreadySaved (possibly wrapped) when the relation
	// already exists.
	SaveRecipe(ctx context.Context, userID, recipeID string) error

	// UnsaveRecipe succeeds whether or not the relation existed.
	UnsaveRecipe(ctx context.Context, userID, recipeID string) error

	IncrementViewCount(ctx context.Context, recipeID string) error
}

// FeaturedLimit caps the featured set returned by gateways.
const FeaturedLimit = 10
