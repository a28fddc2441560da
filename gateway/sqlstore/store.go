package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"golang.org/x/crypto/bcrypt"

	"github.com/goliatone/go-recipe-query/auth"
	"github.com/goliatone/go-recipe-query/recipe"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

var (
	_ recipe.Gateway = (*Store)(nil)
	_ auth.Gateway   = (*Store)(nil)
)

// Open connects to dsn and returns a bun handle with the matching dialect.
func Open(driver, dsn string) (*bun.DB, error) {
	switch driver {
	case DriverSQLite:
		sqldb, err := sql.Open(DriverSQLite, dsn)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		// one writer at a time; sqlite locks the whole file anyway
		sqldb.SetMaxOpenConns(1)
		return bun.NewDB(sqldb, sqlitedialect.New()), nil
	case DriverPostgres:
		sqldb, err := sql.Open(DriverPostgres, dsn)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return bun.NewDB(sqldb, pgdialect.New()), nil
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}
}

// Option customizes a Store.
type Option func(*Store)

// WithClock sets the clock used for timestamps and session expiry.
func WithClock(c clockwork.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// WithSessionTTL sets the lifetime of issued sessions.
func WithSessionTTL(d time.Duration) Option {
	return func(s *Store) { s.sessionTTL = d }
}

// WithPasswordCost sets the bcrypt cost of stored password hashes.
func WithPasswordCost(cost int) Option {
	return func(s *Store) { s.passwordCost = cost }
}

// WithLogger sets the store logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store is a recipe and auth backend over a SQL database. Filtering, paging
// and the view and save counters run in the database.
type Store struct {
	db           *bun.DB
	clock        clockwork.Clock
	logger       *slog.Logger
	sessionTTL   time.Duration
	passwordCost int
}

// New wraps db. Call Migrate before first use on an empty database.
func New(db *bun.DB, opts ...Option) *Store {
	s := &Store{
		db:           db,
		clock:        clockwork.NewRealClock(),
		logger:       slog.Default(),
		sessionTTL:   time.Hour,
		passwordCost: bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the underlying handle.
func (s *Store) DB() *bun.DB { return s.db }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Migrate creates missing tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	for _, model := range models {
		if _, err := s.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", model, err)
		}
	}

	indexes := []struct {
		model   any
		name    string
		columns []string
	}{
		{(*ingredientRow)(nil), "recipe_ingredients_recipe_idx", []string{"recipe_id", "order_index"}},
		{(*instructionRow)(nil), "recipe_instructions_recipe_idx", []string{"recipe_id", "step_number"}},
		{(*savedRow)(nil), "saved_recipes_user_idx", []string{"user_id", "created_at"}},
		{(*recipeRow)(nil), "recipes_published_rating_idx", []string{"published", "rating"}},
	}
	for _, idx := range indexes {
		_, err := s.db.NewCreateIndex().
			Model(idx.model).
			Index(idx.name).
			Column(idx.columns...).
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("create index %s: %w", idx.name, err)
		}
	}
	return nil
}

// Seed writes details, replacing recipes with the same ids along with their
// ingredients, steps and equipment.
func (s *Store) Seed(ctx context.Context, details []recipe.Detail) error {
	now := s.clock.Now().UTC()
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, d := range details {
			if err := d.Validate(); err != nil {
				return err
			}
			if err := deleteRecipe(ctx, tx, d.ID); err != nil {
				return err
			}
			if _, err := tx.NewInsert().Model(newRecipeRow(d, now)).Exec(ctx); err != nil {
				return fmt.Errorf("insert recipe %s: %w", d.ID, err)
			}
			if err := insertParts(ctx, tx, d); err != nil {
				return err
			}
		}
		s.logger.Info("seeded recipes", "count", len(details))
		return nil
	})
}

func deleteRecipe(ctx context.Context, tx bun.Tx, id string) error {
	children := []any{(*ingredientRow)(nil), (*instructionRow)(nil), (*equipmentRow)(nil)}
	for _, model := range children {
		if _, err := tx.NewDelete().Model(model).Where("recipe_id = ?", id).Exec(ctx); err != nil {
			return fmt.Errorf("delete parts of %s: %w", id, err)
		}
	}
	if _, err := tx.NewDelete().Model((*recipeRow)(nil)).Where("id = ?", id).Exec(ctx); err != nil {
		return fmt.Errorf("delete recipe %s: %w", id, err)
	}
	return nil
}

func insertParts(ctx context.Context, tx bun.Tx, d recipe.Detail) error {
	if len(d.Ingredients) > 0 {
		rows := make([]ingredientRow, len(d.Ingredients))
		for i, ing := range d.Ingredients {
			rows[i] = ingredientRow{
				ID:               ing.ID,
				RecipeID:         d.ID,
				Name:             ing.Name,
				Category:         ing.Category,
				QuantityMetric:   ing.QuantityMetric,
				UnitMetric:       ing.UnitMetric,
				QuantityImperial: ing.QuantityImperial,
				UnitImperial:     ing.UnitImperial,
				PreparationNote:  ing.PreparationNote,
				Optional:         ing.Optional,
				Allergen:         ing.Allergen,
				AllergenType:     ing.AllergenType,
				OrderIndex:       ing.OrderIndex,
			}
		}
		if _, err := tx.NewInsert().Model(&rows).Exec(ctx); err != nil {
			return fmt.Errorf("insert ingredients of %s: %w", d.ID, err)
		}
	}

	if len(d.Instructions) > 0 {
		rows := make([]instructionRow, len(d.Instructions))
		for i, step := range d.Instructions {
			rows[i] = instructionRow{
				ID:               step.ID,
				RecipeID:         d.ID,
				StepNumber:       step.StepNumber,
				Text:             step.Text,
				EstimatedMinutes: step.EstimatedMinutes,
				Tip:              step.Tip,
			}
		}
		if _, err := tx.NewInsert().Model(&rows).Exec(ctx); err != nil {
			return fmt.Errorf("insert instructions of %s: %w", d.ID, err)
		}
	}

	if len(d.Equipment) > 0 {
		rows := make([]equipmentRow, len(d.Equipment))
		for i, eq := range d.Equipment {
			rows[i] = equipmentRow{RecipeID: d.ID, ID: eq.ID, Name: eq.Name, Category: eq.Category, Required: eq.Required}
		}
		if _, err := tx.NewInsert().Model(&rows).Exec(ctx); err != nil {
			return fmt.Errorf("insert equipment of %s: %w", d.ID, err)
		}
	}
	return nil
}

// isUniqueViolation reports whether err is a unique or primary key
// constraint failure on either driver.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
