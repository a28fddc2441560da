package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-recipe-query/recipe"
	"github.com/goliatone/go-recipe-query/recipequery"
)

func newListCmd(a *app) *cobra.Command {
	var ff filterFlags
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recipes matching a filter",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := ff.filter(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			c, err := a.container(ctx)
			if err != nil {
				return err
			}

			q := c.Client().Recipes(c.Viewer(ctx), f)
			defer q.Close()
			res := q.Result(ctx)
			if res.Error != nil {
				return resultError("list", res.Error)
			}
			return a.printSummaries(cmd, res.Data)
		},
	}
	ff.register(cmd, true)
	return cmd
}

func newBrowseCmd(a *app) *cobra.Command {
	var (
		ff       filterFlags
		pageSize int
		pages    int
	)
	cmd := &cobra.Command{
		Use:   "browse",
		Short: "Load recipes page by page",
		Long: `Loads a filtered list in fixed size pages, the way the recipe grid
scrolls. Limit and offset are managed by the pager.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := ff.filter(cmd)
			if err != nil {
				return err
			}
			if pages < 1 {
				return fmt.Errorf("--pages must be at least 1")
			}
			ctx := cmd.Context()
			c, err := a.container(ctx)
			if err != nil {
				return err
			}

			iq := c.Client().Infinite(c.Viewer(ctx), f, pageSize)
			defer iq.Close()
			res := iq.Result(ctx)
			for loaded := 1; res.Error == nil && res.HasNextPage && loaded < pages; loaded++ {
				res = iq.FetchNextPage(ctx)
			}
			if res.Error != nil {
				return resultError("browse", res.Error)
			}

			items := res.Items
			if items == nil {
				items = []recipe.Summary{}
			}
			return a.print(cmd, items, func(w io.Writer) {
				writeSummaries(w, items, 0)
				if res.HasNextPage {
					fmt.Fprintln(w, "More recipes available, use --pages to load more.")
				}
			})
		},
	}
	ff.register(cmd, false)
	cmd.Flags().IntVar(&pageSize, "page-size", 0, "recipes per page (default 20)")
	cmd.Flags().IntVar(&pages, "pages", 1, "number of pages to load")
	return cmd
}

func newFeaturedCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "featured",
		Short: "Show featured recipes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			c, err := a.container(ctx)
			if err != nil {
				return err
			}

			q := c.Client().Featured(c.Viewer(ctx))
			defer q.Close()
			res := q.Result(ctx)
			if res.Error != nil {
				return resultError("featured", res.Error)
			}
			return a.printSummaries(cmd, res.Data)
		},
	}
}

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show [recipe-id]",
		Short: "Show a recipe with ingredients and steps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := a.container(ctx)
			if err != nil {
				return err
			}

			q := c.Client().Detail(c.Viewer(ctx), args[0])
			defer q.Close()
			res := q.Result(ctx)
			if res.Error != nil {
				return resultError("show", res.Error)
			}
			if !res.Data.Found {
				return fmt.Errorf("recipe %s: %w", args[0], recipe.ErrNotFound)
			}
			d := res.Data.Item
			return a.print(cmd, d, func(w io.Writer) { writeDetail(w, d) })
		},
	}
}

func writeDetail(w io.Writer, d recipe.Detail) {
	fmt.Fprintln(w, d.Title)
	if d.Description != "" {
		fmt.Fprintln(w, d.Description)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Rating:     %.1f (%d reviews)\n", d.Rating, d.ReviewCount)
	fmt.Fprintf(w, "Ages:       %s, stage %d\n", ageRange(d.MinAgeMonths, d.MaxAgeMonths), d.Stage)
	fmt.Fprintf(w, "Serves:     %d\n", d.ServingSize)
	if d.Difficulty != "" {
		fmt.Fprintf(w, "Difficulty: %s\n", d.Difficulty)
	}
	if d.TotalTimeMinutes != nil {
		fmt.Fprintf(w, "Time:       %d min\n", *d.TotalTimeMinutes)
	}
	if labels := dietaryLabels(d.Dietary); labels != "" {
		fmt.Fprintf(w, "Dietary:    %s\n", labels)
	}
	if d.IsSaved {
		fmt.Fprintln(w, "Saved:      yes")
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Ingredients:")
	for _, ing := range d.Ingredients {
		line := fmt.Sprintf("  - %g %s %s", ing.QuantityMetric, ing.UnitMetric, ing.Name)
		if ing.PreparationNote != "" {
			line += ", " + ing.PreparationNote
		}
		if ing.Optional {
			line += " (optional)"
		}
		fmt.Fprintln(w, line)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Steps:")
	for _, step := range d.Instructions {
		fmt.Fprintf(w, "  %d. %s\n", step.StepNumber, step.Text)
		if step.Tip != "" {
			fmt.Fprintf(w, "     Tip: %s\n", step.Tip)
		}
	}

	if len(d.Equipment) > 0 {
		names := make([]string, 0, len(d.Equipment))
		for _, e := range d.Equipment {
			names = append(names, e.Name)
		}
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Equipment: %s\n", strings.Join(names, ", "))
	}
}

func newSaveCmd(a *app, saved bool) *cobra.Command {
	use, short, done := "save [recipe-id]", "Save a recipe to your collection", "Saved"
	if !saved {
		use, short, done = "unsave [recipe-id]", "Remove a recipe from your collection", "Removed"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, v, err := a.signedIn(ctx)
			if err != nil {
				return err
			}

			in := recipequery.SaveInput{UserID: v.UserID, RecipeID: args[0], Saved: saved}
			if err := c.Client().SaveMutation().MutateAsync(ctx, in); err != nil {
				return err
			}
			out := map[string]any{"recipeId": args[0], "saved": saved}
			return a.print(cmd, out, func(w io.Writer) {
				fmt.Fprintf(w, "%s %s.\n", done, args[0])
			})
		},
	}
}

func newSavedCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "saved",
		Short: "List your saved recipes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			c, v, err := a.signedIn(ctx)
			if err != nil {
				return err
			}

			q := c.Client().Saved(v)
			defer q.Close()
			res := q.Result(ctx)
			if res.Error != nil {
				return resultError("saved", res.Error)
			}
			return a.printSummaries(cmd, res.Data)
		},
	}
}
