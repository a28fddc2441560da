package main

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/goliatone/go-recipe-query/recipe"
)

// filterFlags collects list filters from flags and an optional TOML file.
// Flags given on the command line override the file.
type filterFlags struct {
	file       string
	search     string
	stage      int
	difficulty string
	mealType   string
	cuisine    string
	age        int
	minRating  float64
	sortBy     string
	sortOrder  string
	limit      int
	offset     int

	vegan, vegetarian, glutenFree, dairyFree, nutFree, freezerFriendly bool
}

func (ff *filterFlags) register(cmd *cobra.Command, paging bool) {
	fs := cmd.Flags()
	fs.StringVar(&ff.file, "filter", "", "TOML file with filter fields")
	fs.StringVarP(&ff.search, "search", "s", "", "search title and description")
	fs.IntVar(&ff.stage, "stage", 0, "feeding stage (1-4)")
	fs.StringVar(&ff.difficulty, "difficulty", "", "easy or medium")
	fs.StringVar(&ff.mealType, "meal", "", "breakfast, lunch, dinner, snack or dessert")
	fs.StringVar(&ff.cuisine, "cuisine", "", "cuisine type")
	fs.IntVar(&ff.age, "age", 0, "child age in months")
	fs.Float64Var(&ff.minRating, "min-rating", 0, "minimum rating")
	fs.StringVar(&ff.sortBy, "sort", "", "rating or title")
	fs.StringVar(&ff.sortOrder, "order", "", "asc or desc")
	fs.BoolVar(&ff.vegan, "vegan", false, "only vegan recipes (--vegan=false for the opposite)")
	fs.BoolVar(&ff.vegetarian, "vegetarian", false, "only vegetarian recipes")
	fs.BoolVar(&ff.glutenFree, "gluten-free", false, "only gluten free recipes")
	fs.BoolVar(&ff.dairyFree, "dairy-free", false, "only dairy free recipes")
	fs.BoolVar(&ff.nutFree, "nut-free", false, "only nut free recipes")
	fs.BoolVar(&ff.freezerFriendly, "freezer-friendly", false, "only freezer friendly recipes")
	if paging {
		fs.IntVarP(&ff.limit, "limit", "n", 0, "maximum number of results")
		fs.IntVar(&ff.offset, "offset", 0, "number of results to skip")
	}
}

func (ff *filterFlags) filter(cmd *cobra.Command) (recipe.Filter, error) {
	var f recipe.Filter
	if ff.file != "" {
		data, err := os.ReadFile(ff.file)
		if err != nil {
			return f, fmt.Errorf("failed to read filter file: %w", err)
		}
		if err := toml.Unmarshal(data, &f); err != nil {
			return f, fmt.Errorf("failed to parse filter file %s: %w", ff.file, err)
		}
	}

	fs := cmd.Flags()
	changed := fs.Changed
	if changed("search") {
		f.Search = ff.search
	}
	if changed("stage") {
		f.Stage = ff.stage
	}
	if changed("difficulty") {
		f.Difficulty = recipe.Difficulty(ff.difficulty)
	}
	if changed("meal") {
		f.MealType = recipe.MealType(ff.mealType)
	}
	if changed("cuisine") {
		f.CuisineType = ff.cuisine
	}
	if changed("age") {
		f.AgeInMonths = ff.age
	}
	if changed("min-rating") {
		f.MinRating = ff.minRating
	}
	if changed("sort") {
		f.SortBy = recipe.SortKey(ff.sortBy)
	}
	if changed("order") {
		f.SortOrder = recipe.SortOrder(ff.sortOrder)
	}
	if fs.Lookup("limit") != nil && changed("limit") {
		f.Limit = ff.limit
	}
	if fs.Lookup("offset") != nil && changed("offset") {
		f.Offset = ff.offset
	}

	flags := []struct {
		name  string
		value bool
		dst   **bool
	}{
		{"vegan", ff.vegan, &f.Vegan},
		{"vegetarian", ff.vegetarian, &f.Vegetarian},
		{"gluten-free", ff.glutenFree, &f.GlutenFree},
		{"dairy-free", ff.dairyFree, &f.DairyFree},
		{"nut-free", ff.nutFree, &f.NutFree},
		{"freezer-friendly", ff.freezerFriendly, &f.FreezerFriendly},
	}
	for _, fl := range flags {
		if changed(fl.name) {
			*fl.dst = recipe.Bool(fl.value)
		}
	}

	if err := f.Validate(); err != nil {
		return f, err
	}
	return f, nil
}
