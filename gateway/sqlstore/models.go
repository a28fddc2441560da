package sqlstore

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/goliatone/go-recipe-query/auth"
	"github.com/goliatone/go-recipe-query/recipe"
)

type recipeRow struct {
	bun.BaseModel `bun:"table:recipes,alias:r"`

	ID              string    `bun:"id,pk"`
	Title           string    `bun:"title,notnull"`
	Description     string    `bun:"description"`
	ImageURL        string    `bun:"image_url"`
	Rating          float64   `bun:"rating,notnull,default:0"`
	ReviewCount     int       `bun:"review_count,notnull,default:0"`
	MinAgeMonths    int       `bun:"min_age_months,notnull,default:0"`
	MaxAgeMonths    *int      `bun:"max_age_months"`
	Stage           int       `bun:"stage,notnull,default:1"`
	Vegan           bool      `bun:"vegan,notnull,default:false"`
	Vegetarian      bool      `bun:"vegetarian,notnull,default:false"`
	GlutenFree      bool      `bun:"gluten_free,notnull,default:false"`
	DairyFree       bool      `bun:"dairy_free,notnull,default:false"`
	NutFree         bool      `bun:"nut_free,notnull,default:false"`
	FreezerFriendly bool      `bun:"freezer_friendly,notnull,default:false"`
	Featured        bool      `bun:"featured,notnull,default:false"`
	Premium         bool      `bun:"premium,notnull,default:false"`
	PrepTime        *int      `bun:"prep_time_minutes"`
	CookTime        *int      `bun:"cook_time_minutes"`
	TotalTime       *int      `bun:"total_time_minutes"`
	ServingSize     int       `bun:"serving_size,notnull,default:1"`
	Difficulty      string    `bun:"difficulty"`
	MealType        *string   `bun:"meal_type"`
	CuisineType     *string   `bun:"cuisine_type"`
	Published       bool      `bun:"published,notnull,default:false"`
	ViewCount       int       `bun:"view_count,notnull,default:0"`
	SaveCount       int       `bun:"save_count,notnull,default:0"`
	CreatedAt       time.Time `bun:"created_at,notnull"`
}

type ingredientRow struct {
	bun.BaseModel `bun:"table:recipe_ingredients,alias:i"`

	ID               string   `bun:"id,pk"`
	RecipeID         string   `bun:"recipe_id,notnull"`
	Name             string   `bun:"name,notnull"`
	Category         string   `bun:"category"`
	QuantityMetric   float64  `bun:"quantity_metric"`
	UnitMetric       string   `bun:"unit_metric"`
	QuantityImperial *float64 `bun:"quantity_imperial"`
	UnitImperial     string   `bun:"unit_imperial"`
	PreparationNote  string   `bun:"preparation_note"`
	Optional         bool     `bun:"optional,notnull,default:false"`
	Allergen         bool     `bun:"allergen,notnull,default:false"`
	AllergenType     string   `bun:"allergen_type"`
	OrderIndex       int      `bun:"order_index,notnull"`
}

type instructionRow struct {
	bun.BaseModel `bun:"table:recipe_instructions,alias:s"`

	ID               string `bun:"id,pk"`
	RecipeID         string `bun:"recipe_id,notnull"`
	StepNumber       int    `bun:"step_number,notnull"`
	Text             string `bun:"text,notnull"`
	EstimatedMinutes *int   `bun:"estimated_minutes"`
	Tip              string `bun:"tip"`
}

type equipmentRow struct {
	bun.BaseModel `bun:"table:recipe_equipment,alias:e"`

	RecipeID string `bun:"recipe_id,pk"`
	ID       string `bun:"id,pk"`
	Name     string `bun:"name,notnull"`
	Category string `bun:"category"`
	Required bool   `bun:"required,notnull,default:false"`
}

// savedRow is the save relation. The composite key is the duplicate guard.
type savedRow struct {
	bun.BaseModel `bun:"table:saved_recipes,alias:sv"`

	UserID    string    `bun:"user_id,pk"`
	RecipeID  string    `bun:"recipe_id,pk"`
	CreatedAt time.Time `bun:"created_at,notnull"`
}

type userRow struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID           string    `bun:"id,pk"`
	Email        string    `bun:"email,notnull,unique"`
	DisplayName  string    `bun:"display_name"`
	PasswordHash []byte    `bun:"password_hash,notnull"`
	CreatedAt    time.Time `bun:"created_at,notnull"`
}

// sessionRow stores token digests only.
type sessionRow struct {
	bun.BaseModel `bun:"table:sessions,alias:ss"`

	TokenHash   string    `bun:"token_hash,pk"`
	RefreshHash string    `bun:"refresh_hash"`
	UserID      string    `bun:"user_id,notnull"`
	ExpiresAt   time.Time `bun:"expires_at,notnull"`
}

var models = []any{
	(*recipeRow)(nil),
	(*ingredientRow)(nil),
	(*instructionRow)(nil),
	(*equipmentRow)(nil),
	(*savedRow)(nil),
	(*userRow)(nil),
	(*sessionRow)(nil),
}

func (r recipeRow) summary() recipe.Summary {
	return recipe.Summary{
		ID:           r.ID,
		Title:        r.Title,
		Description:  r.Description,
		ImageURL:     r.ImageURL,
		Rating:       r.Rating,
		ReviewCount:  r.ReviewCount,
		MinAgeMonths: r.MinAgeMonths,
		MaxAgeMonths: r.MaxAgeMonths,
		Stage:        r.Stage,
		Dietary: recipe.Dietary{
			Vegan:           r.Vegan,
			Vegetarian:      r.Vegetarian,
			GlutenFree:      r.GlutenFree,
			DairyFree:       r.DairyFree,
			NutFree:         r.NutFree,
			FreezerFriendly: r.FreezerFriendly,
		},
		IsFeatured: r.Featured,
		IsPremium:  r.Premium,
	}
}

func (r recipeRow) detail() recipe.Detail {
	d := recipe.Detail{
		Summary:          r.summary(),
		PrepTimeMinutes:  r.PrepTime,
		CookTimeMinutes:  r.CookTime,
		TotalTimeMinutes: r.TotalTime,
		ServingSize:      r.ServingSize,
		Difficulty:       recipe.Difficulty(r.Difficulty),
		CuisineType:      r.CuisineType,
		Published:        r.Published,
		ViewCount:        r.ViewCount,
		SaveCount:        r.SaveCount,
	}
	if r.MealType != nil {
		mt := recipe.MealType(*r.MealType)
		d.MealType = &mt
	}
	return d
}

func newRecipeRow(d recipe.Detail, now time.Time) *recipeRow {
	row := &recipeRow{
		ID:              d.ID,
		Title:           d.Title,
		Description:     d.Description,
		ImageURL:        d.ImageURL,
		Rating:          d.Rating,
		ReviewCount:     d.ReviewCount,
		MinAgeMonths:    d.MinAgeMonths,
		MaxAgeMonths:    d.MaxAgeMonths,
		Stage:           d.Stage,
		Vegan:           d.Vegan,
		Vegetarian:      d.Vegetarian,
		GlutenFree:      d.GlutenFree,
		DairyFree:       d.DairyFree,
		NutFree:         d.NutFree,
		FreezerFriendly: d.FreezerFriendly,
		Featured:        d.IsFeatured,
		Premium:         d.IsPremium,
		PrepTime:        d.PrepTimeMinutes,
		CookTime:        d.CookTimeMinutes,
		TotalTime:       d.TotalTimeMinutes,
		ServingSize:     d.ServingSize,
		Difficulty:      string(d.Difficulty),
		CuisineType:     d.CuisineType,
		Published:       d.Published,
		ViewCount:       d.ViewCount,
		SaveCount:       d.SaveCount,
		CreatedAt:       now,
	}
	if d.MealType != nil {
		mt := string(*d.MealType)
		row.MealType = &mt
	}
	return row
}

func (i ingredientRow) ingredient() recipe.Ingredient {
	return recipe.Ingredient{
		ID:               i.ID,
		Name:             i.Name,
		Category:         i.Category,
		QuantityMetric:   i.QuantityMetric,
		UnitMetric:       i.UnitMetric,
		QuantityImperial: i.QuantityImperial,
		UnitImperial:     i.UnitImperial,
		PreparationNote:  i.PreparationNote,
		Optional:         i.Optional,
		Allergen:         i.Allergen,
		AllergenType:     i.AllergenType,
		OrderIndex:       i.OrderIndex,
	}
}

func (s instructionRow) instruction() recipe.Instruction {
	return recipe.Instruction{
		ID:               s.ID,
		StepNumber:       s.StepNumber,
		Text:             s.Text,
		EstimatedMinutes: s.EstimatedMinutes,
		Tip:              s.Tip,
	}
}

func (e equipmentRow) equipment() recipe.Equipment {
	return recipe.Equipment{ID: e.ID, Name: e.Name, Category: e.Category, Required: e.Required}
}

func (u userRow) user() auth.User {
	return auth.User{ID: u.ID, Email: u.Email, DisplayName: u.DisplayName, CreatedAt: u.CreatedAt.UTC()}
}
