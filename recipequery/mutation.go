package recipequery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/goliatone/go-recipe-query/cache"
	"github.com/goliatone/go-recipe-query/recipe"
)

// SaveInput sets whether UserID has RecipeID saved.
type SaveInput struct {
	UserID   string
	RecipeID string
	Saved    bool
}

// Validate requires both ids.
func (in SaveInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.UserID, validation.Required, validation.By(notBlank)),
		validation.Field(&in.RecipeID, validation.Required, validation.By(notBlank)),
	)
}

func notBlank(v any) error {
	if s, _ := v.(string); strings.TrimSpace(s) == "" {
		return errors.New("cannot be blank")
	}
	return nil
}

// Mutation toggles saved state. On success it patches IsSaved in every cached
// recipe entry of the user and invalidates the user's saved list.
type Mutation struct {
	client *Client

	mu      sync.Mutex
	pending int
	err     error
}

// SaveMutation returns a new save/unsave mutation.
func (c *Client) SaveMutation() *Mutation {
	return &Mutation{client: c}
}

// MutateAsync performs the save or unsave and waits for it. A save rejected
// because the relation already exists counts as success.
func (m *Mutation) MutateAsync(ctx context.Context, in SaveInput) error {
	m.mu.Lock()
	m.pending++
	m.mu.Unlock()

	err := m.client.setSaved(ctx, in)

	m.mu.Lock()
	m.pending--
	m.err = err
	m.mu.Unlock()
	return err
}

// IsPending reports whether a call is in flight.
func (m *Mutation) IsPending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending > 0
}

// Error returns the outcome of the last finished call.
func (m *Mutation) Error() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Reset clears the last error.
func (m *Mutation) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = nil
}

func (c *Client) setSaved(ctx context.Context, in SaveInput) error {
	if err := in.Validate(); err != nil {
		return fmt.Errorf("save recipe: %w", err)
	}

	var err error
	if in.Saved {
		err = c.gateway.SaveRecipe(ctx, in.UserID, in.RecipeID)
		if errors.Is(err, recipe.ErrAlreadySaved) {
			c.logger.Debug("recipe already saved", "recipe_id", in.RecipeID, "user_id", in.UserID)
			err = nil
		}
	} else {
		err = c.gateway.UnsaveRecipe(ctx, in.UserID, in.RecipeID)
	}
	if err != nil {
		if in.Saved {
			return fmt.Errorf("save recipe %s: %w", in.RecipeID, err)
		}
		return fmt.Errorf("unsave recipe %s: %w", in.RecipeID, err)
	}

	c.PropagateSaved(Viewer{UserID: in.UserID}, in.RecipeID, in.Saved)
	return nil
}

// PropagateSaved flips IsSaved for recipeID in every cached entry of v in one
// atomic patch, then invalidates v's saved list, whose membership changed.
// It returns the patched keys.
func (c *Client) PropagateSaved(v Viewer, recipeID string, saved bool) []string {
	owned := c.keys.ForViewer(v)
	match := func(key string) bool {
		return owned(key) && !InScope(key, ScopeSaved)
	}

	patched := c.store.Patch(match, func(_ string, val cache.Value) (cache.Value, bool) {
		return val.PatchByID(recipeID, func(r cache.Record) cache.Record {
			return withSaved(r, saved)
		})
	})
	c.store.Invalidate(cache.Exact(c.keys.Saved(v)))

	c.logger.Debug("saved state propagated", "recipe_id", recipeID, "saved", saved, "entries", len(patched))
	return patched
}

func withSaved(r cache.Record, saved bool) cache.Record {
	switch t := r.(type) {
	case recipe.Summary:
		t.IsSaved = saved
		return t
	case recipe.Detail:
		t.IsSaved = saved
		return t
	}
	return r
}
