package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-recipe-query/auth"
	"github.com/goliatone/go-recipe-query/pkg/di"
	"github.com/goliatone/go-recipe-query/recipe"
	"github.com/goliatone/go-recipe-query/recipequery"
)

// opener builds the container for one command run. release is called once
// the command finishes.
type opener func(ctx context.Context) (c *di.Container, release func() error, err error)

type app struct {
	open    opener
	c       *di.Container
	release func() error
	json    bool
}

// newRootCmd builds the command tree. closeFn releases the container opened
// by the command that ran, whether it failed or not.
func newRootCmd(open opener) (root *cobra.Command, closeFn func() error) {
	a := &app{open: open}

	root = &cobra.Command{
		Use:   "recipes",
		Short: "Browse and save toddler recipes",
		Long: `Browse, filter and save toddler recipes.

The backend is chosen by RECIPES_BACKEND (memory, sql or postgrest) or the
TOML file named by RECIPES_CONFIG_FILE. Sessions persist between runs when
RECIPES_SESSION_FILE is set.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().BoolVar(&a.json, "json", false, "output results as JSON")

	root.AddCommand(
		newListCmd(a),
		newBrowseCmd(a),
		newFeaturedCmd(a),
		newShowCmd(a),
		newSaveCmd(a, true),
		newSaveCmd(a, false),
		newSavedCmd(a),
		newLoginCmd(a),
		newLogoutCmd(a),
		newWhoamiCmd(a),
		newSeedCmd(a),
	)
	return root, a.close
}

func (a *app) container(ctx context.Context) (*di.Container, error) {
	if a.c != nil {
		return a.c, nil
	}
	c, release, err := a.open(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to start: %w", err)
	}
	a.c, a.release = c, release
	return c, nil
}

func (a *app) close() error {
	if a.c == nil {
		return nil
	}
	a.c.Client().Wait()
	err := a.release()
	a.c, a.release = nil, nil
	return err
}

// signedIn resolves the viewer and fails for anonymous sessions.
func (a *app) signedIn(ctx context.Context) (*di.Container, recipequery.Viewer, error) {
	c, err := a.container(ctx)
	if err != nil {
		return nil, recipequery.Viewer{}, err
	}
	v := c.Viewer(ctx)
	if v.IsAnonymous() {
		return nil, v, fmt.Errorf("sign in first: %w", auth.ErrNotAuthenticated)
	}
	return c, v, nil
}

func (a *app) print(cmd *cobra.Command, data any, text func(w io.Writer)) error {
	out := cmd.OutOrStdout()
	if a.json {
		raw, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal results: %w", err)
		}
		fmt.Fprintln(out, string(raw))
		return nil
	}
	text(out)
	return nil
}

func (a *app) printSummaries(cmd *cobra.Command, items []recipe.Summary) error {
	if items == nil {
		items = []recipe.Summary{}
	}
	return a.print(cmd, items, func(w io.Writer) {
		writeSummaries(w, items, 0)
	})
}

func writeSummaries(w io.Writer, items []recipe.Summary, start int) {
	if len(items) == 0 {
		fmt.Fprintln(w, "No recipes found.")
		return
	}
	for i, s := range items {
		mark := " "
		if s.IsSaved {
			mark = "*"
		}
		fmt.Fprintf(w, "%s [%d] %s (%.1f, %d reviews)\n", mark, start+i+1, s.Title, s.Rating, s.ReviewCount)
		fmt.Fprintf(w, "      %s  stage %d  %s  %s\n", s.ID, s.Stage, ageRange(s.MinAgeMonths, s.MaxAgeMonths), dietaryLabels(s.Dietary))
	}
}

func ageRange(minMonths int, maxMonths *int) string {
	if maxMonths == nil {
		return fmt.Sprintf("%d+ months", minMonths)
	}
	return fmt.Sprintf("%d-%d months", minMonths, *maxMonths)
}

func dietaryLabels(d recipe.Dietary) string {
	var labels []string
	flags := []struct {
		on    bool
		label string
	}{
		{d.Vegan, "vegan"},
		{d.Vegetarian, "vegetarian"},
		{d.GlutenFree, "gluten free"},
		{d.DairyFree, "dairy free"},
		{d.NutFree, "nut free"},
		{d.FreezerFriendly, "freezer friendly"},
	}
	for _, f := range flags {
		if f.on {
			labels = append(labels, f.label)
		}
	}
	return strings.Join(labels, ", ")
}

// resultError wraps a query error with the failed operation.
func resultError(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s failed: %w", op, err)
}
