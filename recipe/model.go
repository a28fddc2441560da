package recipe

import (
	"fmt"
	"sort"
)

// Difficulty is the preparation difficulty of a recipe.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
)

// MealType classifies when a recipe is usually served.
type MealType string

const (
	MealBreakfast MealType = "breakfast"
	MealLunch     MealType = "lunch"
	MealDinner    MealType = "dinner"
	MealSnack     MealType = "snack"
	MealDessert   MealType = "dessert"
)

// Dietary groups the boolean dietary flags shared by summaries and details.
type Dietary struct {
	Vegan           bool `json:"isVegan" msgpack:"vegan"`
	Vegetarian      bool `json:"isVegetarian" msgpack:"vegetarian"`
	GlutenFree      bool `json:"isGlutenFree" msgpack:"gluten_free"`
	DairyFree       bool `json:"isDairyFree" msgpack:"dairy_free"`
	NutFree         bool `json:"isNutFree" msgpack:"nut_free"`
	FreezerFriendly bool `json:"isFreezerFriendly" msgpack:"freezer_friendly"`
}

// Summary is the card projection of a recipe used by list and grid views.
type Summary struct {
	ID           string  `json:"id" msgpack:"id"`
	Title        string  `json:"title" msgpack:"title"`
	Description  string  `json:"description" msgpack:"description"`
	ImageURL     string  `json:"imageUrl" msgpack:"image_url"`
	Rating       float64 `json:"rating" msgpack:"rating"`
	ReviewCount  int     `json:"reviewCount" msgpack:"review_count"`
	MinAgeMonths int     `json:"minMonths" msgpack:"min_age"`
	MaxAgeMonths *int    `json:"maxMonths,omitempty" msgpack:"max_age"`
	Stage        int     `json:"stage" msgpack:"stage"`
	Dietary
	IsSaved    bool `json:"isSaved" msgpack:"saved"`
	IsFeatured bool `json:"isFeatured" msgpack:"featured"`
	IsPremium  bool `json:"isPremium" msgpack:"premium"`
}

// RecordID returns the recipe identifier.
func (s Summary) RecordID() string { return s.ID }

// Validate checks the age window invariant.
func (s Summary) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("recipe: summary without id")
	}
	if s.MaxAgeMonths != nil && *s.MaxAgeMonths < s.MinAgeMonths {
		return fmt.Errorf("recipe %s: max age %d below min age %d", s.ID, *s.MaxAgeMonths, s.MinAgeMonths)
	}
	return nil
}

// SuitableFor reports whether the recipe covers the given age in months.
func (s Summary) SuitableFor(ageInMonths int) bool {
	if s.MinAgeMonths > ageInMonths {
		return false
	}
	return s.MaxAgeMonths == nil || *s.MaxAgeMonths >= ageInMonths
}

// Ingredient is one line of a recipe's ingredient list.
type Ingredient struct {
	ID               string   `json:"id" msgpack:"id"`
	Name             string   `json:"ingredientName" msgpack:"name"`
	Category         string   `json:"category,omitempty" msgpack:"category"`
	QuantityMetric   float64  `json:"quantityMetric" msgpack:"qty_metric"`
	UnitMetric       string   `json:"unitMetric" msgpack:"unit_metric"`
	QuantityImperial *float64 `json:"quantityImperial,omitempty" msgpack:"qty_imperial"`
	UnitImperial     string   `json:"unitImperial,omitempty" msgpack:"unit_imperial"`
	PreparationNote  string   `json:"preparationNote,omitempty" msgpack:"prep_note"`
	Optional         bool     `json:"isOptional" msgpack:"optional"`
	Allergen         bool     `json:"isCommonAllergen" msgpack:"allergen"`
	AllergenType     string   `json:"allergenType,omitempty" msgpack:"allergen_type"`
	OrderIndex       int      `json:"orderIndex" msgpack:"order_index"`
}

// Instruction is a single numbered step.
type Instruction struct {
	ID               string `json:"id" msgpack:"id"`
	StepNumber       int    `json:"stepNumber" msgpack:"step"`
	Text             string `json:"instructionText" msgpack:"text"`
	EstimatedMinutes *int   `json:"estimatedTimeMinutes,omitempty" msgpack:"minutes"`
	Tip              string `json:"tipText,omitempty" msgpack:"tip"`
}

// Equipment is a tool used by a recipe.
type Equipment struct {
	ID       string `json:"equipmentId" msgpack:"id"`
	Name     string `json:"equipmentName" msgpack:"name"`
	Category string `json:"category,omitempty" msgpack:"category"`
	Required bool   `json:"isRequired" msgpack:"required"`
}

// Detail is the full recipe as shown on the detail screen.
type Detail struct {
	Summary
	PrepTimeMinutes  *int          `json:"prepTimeMinutes,omitempty" msgpack:"prep_time"`
	CookTimeMinutes  *int          `json:"cookTimeMinutes,omitempty" msgpack:"cook_time"`
	TotalTimeMinutes *int          `json:"totalTimeMinutes,omitempty" msgpack:"total_time"`
	ServingSize      int           `json:"baseServingSize" msgpack:"serving_size"`
	Difficulty       Difficulty    `json:"difficultyLevel" msgpack:"difficulty"`
	MealType         *MealType     `json:"mealType,omitempty" msgpack:"meal_type"`
	CuisineType      *string       `json:"cuisineType,omitempty" msgpack:"cuisine"`
	Published        bool          `json:"isPublished" msgpack:"published"`
	ViewCount        int           `json:"viewCount" msgpack:"view_count"`
	SaveCount        int           `json:"saveCount" msgpack:"save_count"`
	Ingredients      []Ingredient  `json:"ingredients" msgpack:"ingredients"`
	Instructions     []Instruction `json:"instructions" msgpack:"instructions"`
	Equipment        []Equipment   `json:"equipment" msgpack:"equipment"`
}

// RecordID returns the recipe identifier.
func (d Detail) RecordID() string { return d.ID }

// Card returns the summary projection of the detail.
func (d Detail) Card() Summary { return d.Summary }

// Validate checks the summary invariants plus ingredient and step ordering.
func (d Detail) Validate() error {
	if err := d.Summary.Validate(); err != nil {
		return err
	}
	if d.Difficulty != "" && d.Difficulty != DifficultyEasy && d.Difficulty != DifficultyMedium {
		return fmt.Errorf("recipe %s: unknown difficulty %q", d.ID, d.Difficulty)
	}

	seen := make(map[int]struct{}, len(d.Ingredients))
	for _, ing := range d.Ingredients {
		if _, dup := seen[ing.OrderIndex]; dup {
			return fmt.Errorf("recipe %s: duplicate ingredient order index %d", d.ID, ing.OrderIndex)
		}
		seen[ing.OrderIndex] = struct{}{}
	}

	for i, step := range d.Instructions {
		if step.StepNumber != i+1 {
			return fmt.Errorf("recipe %s: instruction %d has step number %d", d.ID, i+1, step.StepNumber)
		}
	}
	return nil
}

// SortParts orders ingredients by order index and instructions by step number,
// the display order the backend does not guarantee.
func (d *Detail) SortParts() {
	sort.SliceStable(d.Ingredients, func(i, j int) bool {
		return d.Ingredients[i].OrderIndex < d.Ingredients[j].OrderIndex
	})
	sort.SliceStable(d.Instructions, func(i, j int) bool {
		return d.Instructions[i].StepNumber < d.Instructions[j].StepNumber
	})
}
