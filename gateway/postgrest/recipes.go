package postgrest

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	pgrst "github.com/supabase-community/postgrest-go"

	"github.com/goliatone/go-recipe-query/recipe"
)

// summaryColumns aliases table columns onto the recipe.Summary JSON names.
const summaryColumns = "id,title,description," +
	"imageUrl:featured_image_url,rating:average_rating,reviewCount:total_ratings_count," +
	"minMonths:min_age_months,maxMonths:max_age_months,stage," +
	"isVegan:is_vegan,isVegetarian:is_vegetarian,isGlutenFree:is_gluten_free," +
	"isDairyFree:is_dairy_free,isNutFree:is_nut_free,isFreezerFriendly:is_freezer_friendly," +
	"isFeatured:is_featured,isPremium:is_premium"

const detailColumns = summaryColumns + "," +
	"prepTimeMinutes:prep_time_minutes,cookTimeMinutes:cook_time_minutes,totalTimeMinutes:total_time_minutes," +
	"baseServingSize:base_serving_size,difficultyLevel:difficulty_level,mealType:meal_type,cuisineType:cuisine_type," +
	"isPublished:is_published,viewCount:view_count,saveCount:save_count," +
	"recipe_ingredients(id,quantityMetric:quantity_metric,unitMetric:unit_metric," +
	"quantityImperial:quantity_imperial,unitImperial:unit_imperial,preparationNote:preparation_note," +
	"isOptional:is_optional,orderIndex:order_index," +
	"ingredients:ingredient_id(name,category,isCommonAllergen:is_common_allergen,allergenType:allergen_type))," +
	"instructions(id,stepNumber:step_number,instructionText:instruction_text," +
	"estimatedTimeMinutes:estimated_time_minutes,tipText:tip_text)," +
	"recipe_equipment(isRequired:is_required,equipment:equipment_id(id,name,category))"

const (
	tableRecipes = "recipes"
	tableSaved   = "saved_recipes"
)

var (
	ascending  = &pgrst.OrderOpts{Ascending: true}
	descending = &pgrst.OrderOpts{}
)

type ingredientRow struct {
	ID               string   `json:"id"`
	QuantityMetric   float64  `json:"quantityMetric"`
	UnitMetric       string   `json:"unitMetric"`
	QuantityImperial *float64 `json:"quantityImperial"`
	UnitImperial     string   `json:"unitImperial"`
	PreparationNote  string   `json:"preparationNote"`
	Optional         bool     `json:"isOptional"`
	OrderIndex       int      `json:"orderIndex"`
	Ingredient       struct {
		Name         string `json:"name"`
		Category     string `json:"category"`
		Allergen     bool   `json:"isCommonAllergen"`
		AllergenType string `json:"allergenType"`
	} `json:"ingredients"`
}

type equipmentRow struct {
	Required  bool `json:"isRequired"`
	Equipment struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		Category string `json:"category"`
	} `json:"equipment"`
}

type detailRow struct {
	recipe.Detail
	IngredientRows []ingredientRow `json:"recipe_ingredients"`
	EquipmentRows  []equipmentRow  `json:"recipe_equipment"`
}

func (r detailRow) detail() recipe.Detail {
	d := r.Detail
	d.Ingredients = make([]recipe.Ingredient, 0, len(r.IngredientRows))
	for _, row := range r.IngredientRows {
		d.Ingredients = append(d.Ingredients, recipe.Ingredient{
			ID:               row.ID,
			Name:             row.Ingredient.Name,
			Category:         row.Ingredient.Category,
			QuantityMetric:   row.QuantityMetric,
			UnitMetric:       row.UnitMetric,
			QuantityImperial: row.QuantityImperial,
			UnitImperial:     row.UnitImperial,
			PreparationNote:  row.PreparationNote,
			Optional:         row.Optional,
			Allergen:         row.Ingredient.Allergen,
			AllergenType:     row.Ingredient.AllergenType,
			OrderIndex:       row.OrderIndex,
		})
	}
	d.Equipment = make([]recipe.Equipment, 0, len(r.EquipmentRows))
	for _, row := range r.EquipmentRows {
		d.Equipment = append(d.Equipment, recipe.Equipment{
			ID:       row.Equipment.ID,
			Name:     row.Equipment.Name,
			Category: row.Equipment.Category,
			Required: row.Required,
		})
	}
	d.SortParts()
	return d
}

// applyFilter translates a normalized filter onto a recipes select.
func applyFilter(q *pgrst.FilterBuilder, f recipe.Filter) *pgrst.FilterBuilder {
	q = q.Eq("is_published", "true")

	if terms := strings.Fields(strings.ToLower(f.Search)); len(terms) > 0 {
		groups := make([]string, len(terms))
		for i, term := range terms {
			pattern := quote("*" + term + "*")
			groups[i] = fmt.Sprintf("or(title.ilike.%s,description.ilike.%s)", pattern, pattern)
		}
		q = q.And(strings.Join(groups, ","), "")
	}

	if f.Stage != 0 {
		q = q.Eq("stage", strconv.Itoa(f.Stage))
	}
	if f.Difficulty != "" {
		q = q.Eq("difficulty_level", string(f.Difficulty))
	}
	if f.MealType != "" {
		q = q.Eq("meal_type", string(f.MealType))
	}
	if f.CuisineType != "" {
		q = q.Ilike("cuisine_type", quote(f.CuisineType))
	}

	flags := []struct {
		column string
		want   *bool
	}{
		{"is_vegan", f.Vegan},
		{"is_vegetarian", f.Vegetarian},
		{"is_gluten_free", f.GlutenFree},
		{"is_dairy_free", f.DairyFree},
		{"is_nut_free", f.NutFree},
		{"is_freezer_friendly", f.FreezerFriendly},
	}
	for _, flag := range flags {
		if flag.want != nil {
			q = q.Eq(flag.column, strconv.FormatBool(*flag.want))
		}
	}

	if f.AgeInMonths > 0 {
		age := strconv.Itoa(f.AgeInMonths)
		q = q.Lte("min_age_months", age).
			Or("max_age_months.is.null,max_age_months.gte."+age, "")
	}
	if f.MinRating > 0 {
		q = q.Gte("average_rating", strconv.FormatFloat(f.MinRating, 'f', -1, 64))
	}

	order := descending
	if f.SortOrder == recipe.SortAsc {
		order = ascending
	}
	column := "average_rating"
	if f.SortBy == recipe.SortByTitle {
		column = "title"
	}
	q = q.Order(column, order).Order("id", ascending)

	if f.Limit > 0 || f.Offset > 0 {
		limit := f.Limit
		if limit <= 0 {
			limit = recipe.DefaultListLimit
		}
		q = q.Range(f.Offset, f.Offset+limit-1, "")
	}
	return q
}

// quote wraps a value in double quotes so reserved characters in it are
// taken literally.
func quote(v string) string {
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(v) + `"`
}

func (c *Client) ListRecipes(ctx context.Context, req recipe.ListRequest) ([]recipe.Summary, error) {
	if err := req.Filter.Validate(); err != nil {
		return nil, err
	}

	var out []recipe.Summary
	q := c.rest(ctx).From(tableRecipes).Select(summaryColumns, "", false)
	if _, err := applyFilter(q, req.Filter.Normalized()).ExecuteTo(&out); err != nil {
		return nil, classify(err)
	}
	return c.markSaved(ctx, out, req.UserID)
}

func (c *Client) RecipeDetail(ctx context.Context, id, userID string) (recipe.Detail, error) {
	var row detailRow
	_, err := c.rest(ctx).From(tableRecipes).
		Select(detailColumns, "", false).
		Eq("id", id).
		Eq("is_published", "true").
		Single().
		ExecuteTo(&row)
	if err != nil {
		return recipe.Detail{}, classify(err)
	}

	d := row.detail()
	if userID != "" {
		saved, err := c.savedSet(ctx, userID, []string{d.ID})
		if err != nil {
			return recipe.Detail{}, err
		}
		d.IsSaved = saved[d.ID]
	}
	return d, nil
}

func (c *Client) FeaturedRecipes(ctx context.Context, userID string) ([]recipe.Summary, error) {
	var out []recipe.Summary
	_, err := c.rest(ctx).From(tableRecipes).
		Select(summaryColumns, "", false).
		Eq("is_featured", "true").
		Eq("is_published", "true").
		Order("average_rating", descending).
		Order("id", ascending).
		Limit(recipe.FeaturedLimit, "").
		ExecuteTo(&out)
	if err != nil {
		return nil, classify(err)
	}
	return c.markSaved(ctx, out, userID)
}

type savedRecipeRow struct {
	Recipe *struct {
		recipe.Summary
		Published bool `json:"isPublished"`
	} `json:"recipe"`
}

// SavedRecipes returns the user's saved published recipes, most recently
// saved first.
func (c *Client) SavedRecipes(ctx context.Context, userID string) ([]recipe.Summary, error) {
	var rows []savedRecipeRow
	_, err := c.rest(ctx).From(tableSaved).
		Select("created_at,recipe:recipes("+summaryColumns+",isPublished:is_published)", "", false).
		Eq("user_id", userID).
		Order("created_at", descending).
		Order("recipe_id", ascending).
		ExecuteTo(&rows)
	if err != nil {
		return nil, classify(err)
	}

	out := make([]recipe.Summary, 0, len(rows))
	for _, row := range rows {
		if row.Recipe == nil || !row.Recipe.Published {
			continue
		}
		s := row.Recipe.Summary
		s.IsSaved = true
		out = append(out, s)
	}
	return out, nil
}

// SaveRecipe inserts the save relation. The save counter is maintained by
// the database.
func (c *Client) SaveRecipe(ctx context.Context, userID, recipeID string) error {
	_, _, err := c.rest(ctx).From(tableSaved).
		Insert(map[string]string{"user_id": userID, "recipe_id": recipeID}, false, "", "minimal", "").
		Execute()
	if err != nil {
		return classify(err)
	}
	return nil
}

func (c *Client) UnsaveRecipe(ctx context.Context, userID, recipeID string) error {
	_, _, err := c.rest(ctx).From(tableSaved).
		Delete("minimal", "").
		Eq("user_id", userID).
		Eq("recipe_id", recipeID).
		Execute()
	if err != nil {
		return classify(err)
	}
	return nil
}

// IncrementViewCount calls the increment_recipe_view function, which bumps
// the counter in a single statement.
func (c *Client) IncrementViewCount(ctx context.Context, recipeID string) error {
	pc := c.rest(ctx)
	pc.Rpc("increment_recipe_view", "", map[string]string{"recipe_id": recipeID})
	if pc.ClientError != nil {
		return classify(pc.ClientError)
	}
	return nil
}

func (c *Client) markSaved(ctx context.Context, items []recipe.Summary, userID string) ([]recipe.Summary, error) {
	if items == nil {
		items = []recipe.Summary{}
	}
	if userID == "" || len(items) == 0 {
		return items, nil
	}

	ids := make([]string, len(items))
	for i, s := range items {
		ids[i] = s.ID
	}
	saved, err := c.savedSet(ctx, userID, ids)
	if err != nil {
		return nil, err
	}
	for i := range items {
		items[i].IsSaved = saved[items[i].ID]
	}
	return items, nil
}

func (c *Client) savedSet(ctx context.Context, userID string, ids []string) (map[string]bool, error) {
	var rows []struct {
		RecipeID string `json:"recipe_id"`
	}
	_, err := c.rest(ctx).From(tableSaved).
		Select("recipe_id", "", false).
		Eq("user_id", userID).
		In("recipe_id", ids).
		ExecuteTo(&rows)
	if err != nil {
		return nil, classify(err)
	}

	set := make(map[string]bool, len(rows))
	for _, row := range rows {
		set[row.RecipeID] = true
	}
	return set, nil
}
