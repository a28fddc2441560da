package recipe

import (
	"errors"
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// SortKey selects the column list results are ordered by.
type SortKey string

const (
	SortByRating SortKey = "rating"
	SortByTitle  SortKey = "title"
)

// SortOrder is the sort direction.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// DefaultListLimit is the page length used when an offset is given without a limit.
const DefaultListLimit = 50

// Filter is the query value object for recipe lists. Two filters with equal
// fields always produce the same cache key. Nil pointer fields mean "not
// filtered"; a non-nil dietary flag filters on equality.
type Filter struct {
	Search          string     `json:"search,omitempty" toml:"search"`
	Stage           int        `json:"stage,omitempty" toml:"stage"`
	Difficulty      Difficulty `json:"difficultyLevel,omitempty" toml:"difficulty"`
	MealType        MealType   `json:"mealType,omitempty" toml:"meal_type"`
	CuisineType     string     `json:"cuisineType,omitempty" toml:"cuisine"`
	Vegan           *bool      `json:"isVegan,omitempty" toml:"vegan"`
	Vegetarian      *bool      `json:"isVegetarian,omitempty" toml:"vegetarian"`
	GlutenFree      *bool      `json:"isGlutenFree,omitempty" toml:"gluten_free"`
	DairyFree       *bool      `json:"isDairyFree,omitempty" toml:"dairy_free"`
	NutFree         *bool      `json:"isNutFree,omitempty" toml:"nut_free"`
	FreezerFriendly *bool      `json:"isFreezerFriendly,omitempty" toml:"freezer_friendly"`
	AgeInMonths     int        `json:"ageInMonths,omitempty" toml:"age_in_months"`
	MinRating       float64    `json:"minRating,omitempty" toml:"min_rating"`
	SortBy          SortKey    `json:"sortBy,omitempty" toml:"sort_by"`
	SortOrder       SortOrder  `json:"sortOrder,omitempty" toml:"sort_order"`
	Limit           int        `json:"limit,omitempty" toml:"limit"`
	Offset          int        `json:"offset,omitempty" toml:"offset"`
}

// Bool returns a pointer to v, for filling the dietary fields of a Filter.
func Bool(v bool) *bool { return &v }

// Validate checks field ranges and enumerations.
func (f Filter) Validate() error {
	err := validation.ValidateStruct(&f,
		validation.Field(&f.Stage, validation.Min(0), validation.Max(4)),
		validation.Field(&f.Difficulty, validation.In(DifficultyEasy, DifficultyMedium)),
		validation.Field(&f.MealType, validation.In(MealBreakfast, MealLunch, MealDinner, MealSnack, MealDessert)),
		validation.Field(&f.AgeInMonths, validation.Min(0)),
		validation.Field(&f.MinRating, validation.Min(0.0), validation.Max(5.0)),
		validation.Field(&f.SortBy, validation.In(SortByRating, SortByTitle)),
		validation.Field(&f.SortOrder, validation.In(SortAsc, SortDesc)),
		validation.Field(&f.Limit, validation.Min(0)),
		validation.Field(&f.Offset, validation.Min(0)),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}
	return nil
}

// Normalized returns the filter with request-time defaults applied: trimmed
// search text and the default sort of rating descending. Normalizing is
// idempotent, so normalized filters are safe to use as cache key input.
func (f Filter) Normalized() Filter {
	f.Search = strings.TrimSpace(f.Search)
	f.CuisineType = strings.TrimSpace(f.CuisineType)
	if f.SortBy == "" {
		f.SortBy = SortByRating
	}
	if f.SortOrder == "" {
		f.SortOrder = SortDesc
	}
	if f.Stage < 0 {
		f.Stage = 0
	}
	if f.AgeInMonths < 0 {
		f.AgeInMonths = 0
	}
	if f.MinRating < 0 {
		f.MinRating = 0
	}
	return f
}

// WithoutPaging drops limit and offset. Infinite queries own their paging.
func (f Filter) WithoutPaging() Filter {
	f.Limit = 0
	f.Offset = 0
	return f
}

// WithPage returns a copy limited to one page starting at offset.
func (f Filter) WithPage(limit, offset int) Filter {
	f.Limit = limit
	f.Offset = offset
	return f
}

// IsZero reports whether the filter restricts nothing beyond defaults.
func (f Filter) IsZero() bool {
	n := f.Normalized()
	return n == Filter{SortBy: SortByRating, SortOrder: SortDesc}
}

var (
	// ErrNotFound is returned when an id does not resolve to a published recipe.
	ErrNotFound = errors.New("recipe not found")

	// ErrAlreadySaved is the constraint violation returned when a save relation exists.
	ErrAlreadySaved = errors.New("recipe already saved")

	// ErrInvalidFilter wraps filter validation failures.
	ErrInvalidFilter = errors.New("invalid recipe filter")
)
