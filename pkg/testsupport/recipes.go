package testsupport

import (
	"fmt"

	"github.com/goliatone/go-recipe-query/recipe"
)

// RecipeOption customizes a recipe built by NewRecipe.
type RecipeOption func(*recipe.Detail)

// NewRecipe returns a published, valid recipe detail with one ingredient and
// one instruction. Options are applied in order.
func NewRecipe(id string, opts ...RecipeOption) recipe.Detail {
	d := recipe.Detail{
		Summary: recipe.Summary{
			ID:           id,
			Title:        "Recipe " + id,
			Description:  "Simple toddler meal " + id,
			Rating:       3,
			MinAgeMonths: 6,
			Stage:        1,
		},
		ServingSize: 2,
		Difficulty:  recipe.DifficultyEasy,
		Published:   true,
		Ingredients: []recipe.Ingredient{
			{ID: id + "-i1", Name: "Sweet potato", QuantityMetric: 100, UnitMetric: "g", OrderIndex: 1},
		},
		Instructions: []recipe.Instruction{
			{ID: id + "-s1", StepNumber: 1, Text: "Steam until soft."},
		},
	}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

func WithTitle(title string) RecipeOption {
	return func(d *recipe.Detail) { d.Title = title }
}

func WithDescription(desc string) RecipeOption {
	return func(d *recipe.Detail) { d.Description = desc }
}

func WithRating(rating float64) RecipeOption {
	return func(d *recipe.Detail) { d.Rating = rating }
}

func WithStage(stage int) RecipeOption {
	return func(d *recipe.Detail) { d.Stage = stage }
}

func WithAges(minMonths int, maxMonths *int) RecipeOption {
	return func(d *recipe.Detail) {
		d.MinAgeMonths = minMonths
		d.MaxAgeMonths = maxMonths
	}
}

func WithVegan() RecipeOption {
	return func(d *recipe.Detail) {
		d.Vegan = true
		d.Vegetarian = true
	}
}

func WithFeatured() RecipeOption {
	return func(d *recipe.Detail) { d.IsFeatured = true }
}

func Unpublished() RecipeOption {
	return func(d *recipe.Detail) { d.Published = false }
}

// Months returns a pointer to m, for optional age bounds.
func Months(m int) *int { return &m }

// NumberedRecipes builds n recipes with ids r1..rn and strictly decreasing
// ratings, so the default sort returns them in id order.
func NumberedRecipes(n int, opts ...RecipeOption) []recipe.Detail {
	out := make([]recipe.Detail, 0, n)
	for i := 1; i <= n; i++ {
		rating := 5 - float64(i)/float64(n+1)
		all := append([]RecipeOption{WithRating(rating)}, opts...)
		out = append(out, NewRecipe(fmt.Sprintf("r%d", i), all...))
	}
	return out
}

// MixedCorpus returns twenty recipes in which exactly three (v1, v2, v3) are
// vegan and stage 2. The rest are vegan at another stage or stage 2 but not
// vegan, or neither. The expected rating order of the three is v2, v3, v1.
func MixedCorpus() []recipe.Detail {
	out := []recipe.Detail{
		NewRecipe("v1", WithVegan(), WithStage(2), WithRating(3.1), WithTitle("Lentil mash")),
		NewRecipe("v2", WithVegan(), WithStage(2), WithRating(4.8), WithTitle("Avocado toast fingers")),
		NewRecipe("v3", WithVegan(), WithStage(2), WithRating(4.2), WithTitle("Pea fritters")),
	}
	for i := 1; i <= 5; i++ {
		out = append(out, NewRecipe(fmt.Sprintf("vs%d", i), WithVegan(), WithStage(1+i%2*2), WithRating(4.9)))
	}
	for i := 1; i <= 6; i++ {
		out = append(out, NewRecipe(fmt.Sprintf("s%d", i), WithStage(2), WithRating(4.5)))
	}
	for i := 1; i <= 6; i++ {
		out = append(out, NewRecipe(fmt.Sprintf("n%d", i), WithStage(4), WithRating(2.5)))
	}
	return out
}
