package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/goliatone/go-recipe-query/recipe"
)

func (s *Store) ListRecipes(ctx context.Context, req recipe.ListRequest) ([]recipe.Summary, error) {
	if err := req.Filter.Validate(); err != nil {
		return nil, err
	}

	var rows []recipeRow
	q := apply(s.db.NewSelect().Model(&rows), filterCriteria(req.Filter.Normalized()))
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("list recipes: %w", err)
	}
	return s.summaries(ctx, rows, req.UserID)
}

func (s *Store) RecipeDetail(ctx context.Context, id, userID string) (recipe.Detail, error) {
	row := new(recipeRow)
	err := s.db.NewSelect().
		Model(row).
		Where("r.id = ?", id).
		Where("r.published = ?", true).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return recipe.Detail{}, fmt.Errorf("recipe %q: %w", id, recipe.ErrNotFound)
	}
	if err != nil {
		return recipe.Detail{}, fmt.Errorf("recipe %q: %w", id, err)
	}

	d := row.detail()

	var ingredients []ingredientRow
	if err := s.db.NewSelect().Model(&ingredients).
		Where("i.recipe_id = ?", id).
		OrderExpr("i.order_index ASC").
		Scan(ctx); err != nil {
		return recipe.Detail{}, fmt.Errorf("ingredients of %q: %w", id, err)
	}
	for _, ing := range ingredients {
		d.Ingredients = append(d.Ingredients, ing.ingredient())
	}

	var steps []instructionRow
	if err := s.db.NewSelect().Model(&steps).
		Where("s.recipe_id = ?", id).
		OrderExpr("s.step_number ASC").
		Scan(ctx); err != nil {
		return recipe.Detail{}, fmt.Errorf("instructions of %q: %w", id, err)
	}
	for _, step := range steps {
		d.Instructions = append(d.Instructions, step.instruction())
	}

	var equipment []equipmentRow
	if err := s.db.NewSelect().Model(&equipment).
		Where("e.recipe_id = ?", id).
		OrderExpr("e.id ASC").
		Scan(ctx); err != nil {
		return recipe.Detail{}, fmt.Errorf("equipment of %q: %w", id, err)
	}
	for _, eq := range equipment {
		d.Equipment = append(d.Equipment, eq.equipment())
	}

	if userID != "" {
		saved, err := s.savedSet(ctx, userID, []string{id})
		if err != nil {
			return recipe.Detail{}, err
		}
		d.IsSaved = saved[id]
	}
	return d, nil
}

func (s *Store) FeaturedRecipes(ctx context.Context, userID string) ([]recipe.Summary, error) {
	var rows []recipeRow
	err := s.db.NewSelect().
		Model(&rows).
		Where("r.featured = ?", true).
		Where("r.published = ?", true).
		OrderExpr("r.rating DESC").
		OrderExpr("r.id ASC").
		Limit(recipe.FeaturedLimit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("featured recipes: %w", err)
	}
	return s.summaries(ctx, rows, userID)
}

// SavedRecipes returns the user's saved published recipes, most recently
// saved first.
func (s *Store) SavedRecipes(ctx context.Context, userID string) ([]recipe.Summary, error) {
	var rows []recipeRow
	err := s.db.NewSelect().
		Model(&rows).
		Join("JOIN saved_recipes AS sv ON sv.recipe_id = r.id").
		Where("sv.user_id = ?", userID).
		Where("r.published = ?", true).
		OrderExpr("sv.created_at DESC").
		OrderExpr("r.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("saved recipes of %s: %w", userID, err)
	}

	out := make([]recipe.Summary, 0, len(rows))
	for _, r := range rows {
		sum := r.summary()
		sum.IsSaved = true
		out = append(out, sum)
	}
	return out, nil
}

func (s *Store) SaveRecipe(ctx context.Context, userID, recipeID string) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		exists, err := tx.NewSelect().Model((*recipeRow)(nil)).Where("r.id = ?", recipeID).Exists(ctx)
		if err != nil {
			return fmt.Errorf("recipe %q: %w", recipeID, err)
		}
		if !exists {
			return fmt.Errorf("recipe %q: %w", recipeID, recipe.ErrNotFound)
		}

		res, err := tx.NewInsert().
			Model(&savedRow{UserID: userID, RecipeID: recipeID, CreatedAt: s.clock.Now().UTC()}).
			On("CONFLICT (user_id, recipe_id) DO NOTHING").
			Exec(ctx)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("user %s recipe %s: %w", userID, recipeID, recipe.ErrAlreadySaved)
			}
			return fmt.Errorf("save recipe %s: %w", recipeID, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("user %s recipe %s: %w", userID, recipeID, recipe.ErrAlreadySaved)
		}

		_, err = tx.NewUpdate().
			Model((*recipeRow)(nil)).
			Set("save_count = save_count + 1").
			Where("id = ?", recipeID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("bump save count of %s: %w", recipeID, err)
		}
		return nil
	})
}

// UnsaveRecipe succeeds whether or not the relation existed. The save
// counter only moves when a row was removed and never goes below zero.
func (s *Store) UnsaveRecipe(ctx context.Context, userID, recipeID string) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewDelete().
			Model((*savedRow)(nil)).
			Where("user_id = ?", userID).
			Where("recipe_id = ?", recipeID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("unsave recipe %s: %w", recipeID, err)
		}
		if n, err := res.RowsAffected(); err != nil || n == 0 {
			return nil
		}

		_, err = tx.NewUpdate().
			Model((*recipeRow)(nil)).
			Set("save_count = save_count - 1").
			Where("id = ?", recipeID).
			Where("save_count > 0").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("drop save count of %s: %w", recipeID, err)
		}
		return nil
	})
}

func (s *Store) IncrementViewCount(ctx context.Context, recipeID string) error {
	res, err := s.db.NewUpdate().
		Model((*recipeRow)(nil)).
		Set("view_count = view_count + 1").
		Where("id = ?", recipeID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("increment view count of %s: %w", recipeID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("recipe %q: %w", recipeID, recipe.ErrNotFound)
	}
	return nil
}

// Counters returns the stored view and save counts of a recipe, published or
// not.
func (s *Store) Counters(ctx context.Context, recipeID string) (views, saves int, err error) {
	row := new(recipeRow)
	err = s.db.NewSelect().Model(row).Column("view_count", "save_count").Where("r.id = ?", recipeID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, fmt.Errorf("recipe %q: %w", recipeID, recipe.ErrNotFound)
	}
	if err != nil {
		return 0, 0, err
	}
	return row.ViewCount, row.SaveCount, nil
}

func (s *Store) summaries(ctx context.Context, rows []recipeRow, userID string) ([]recipe.Summary, error) {
	out := make([]recipe.Summary, 0, len(rows))
	if len(rows) == 0 {
		return out, nil
	}

	var saved map[string]bool
	if userID != "" {
		ids := make([]string, len(rows))
		for i, r := range rows {
			ids[i] = r.ID
		}
		var err error
		if saved, err = s.savedSet(ctx, userID, ids); err != nil {
			return nil, err
		}
	}

	for _, r := range rows {
		sum := r.summary()
		sum.IsSaved = saved[r.ID]
		out = append(out, sum)
	}
	return out, nil
}

func (s *Store) savedSet(ctx context.Context, userID string, ids []string) (map[string]bool, error) {
	var recipeIDs []string
	err := s.db.NewSelect().
		Model((*savedRow)(nil)).
		Column("recipe_id").
		Where("user_id = ?", userID).
		Where("recipe_id IN (?)", bun.In(ids)).
		Scan(ctx, &recipeIDs)
	if err != nil {
		return nil, fmt.Errorf("saved lookup for %s: %w", userID, err)
	}

	set := make(map[string]bool, len(recipeIDs))
	for _, id := range recipeIDs {
		set[id] = true
	}
	return set, nil
}
