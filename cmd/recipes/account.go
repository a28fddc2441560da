package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-recipe-query/auth"
	"github.com/goliatone/go-recipe-query/gateway/memory"
	"github.com/goliatone/go-recipe-query/gateway/sqlstore"
	"github.com/goliatone/go-recipe-query/recipe"
)

func newLoginCmd(a *app) *cobra.Command {
	var (
		email, password, name string
		signUp                bool
	)
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in, or create an account with --signup",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			c, err := a.container(ctx)
			if err != nil {
				return err
			}

			var u auth.User
			if signUp {
				u, err = c.Accessor().SignUp(ctx, auth.SignUpInput{Email: email, Password: password, DisplayName: name})
			} else {
				u, err = c.Accessor().SignIn(ctx, auth.SignInInput{Email: email, Password: password})
			}
			if err != nil {
				return err
			}
			return a.print(cmd, u, func(w io.Writer) {
				fmt.Fprintf(w, "Signed in as %s.\n", u.Email)
			})
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "account email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password")
	cmd.Flags().StringVar(&name, "name", "", "display name for a new account")
	cmd.Flags().BoolVar(&signUp, "signup", false, "create the account first")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			c, err := a.container(ctx)
			if err != nil {
				return err
			}
			if err := c.Accessor().SignOut(ctx); err != nil {
				return err
			}
			return a.print(cmd, map[string]bool{"signedIn": false}, func(w io.Writer) {
				fmt.Fprintln(w, "Signed out.")
			})
		},
	}
}

func newWhoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			c, err := a.container(ctx)
			if err != nil {
				return err
			}

			u, err := c.Accessor().CurrentUser(ctx)
			if errors.Is(err, auth.ErrNotAuthenticated) {
				return a.print(cmd, nil, func(w io.Writer) {
					fmt.Fprintln(w, "Not signed in.")
				})
			}
			if err != nil {
				return err
			}
			return a.print(cmd, u, func(w io.Writer) {
				if u.DisplayName != "" {
					fmt.Fprintf(w, "%s <%s>\n", u.DisplayName, u.Email)
					return
				}
				fmt.Fprintln(w, u.Email)
			})
		},
	}
}

func newSeedCmd(a *app) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load recipes into the SQL backend",
		Long: `Writes recipes into the SQL backend, replacing rows with the same ids.
Without --file the bundled demo recipes are loaded.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			c, err := a.container(ctx)
			if err != nil {
				return err
			}
			store, ok := c.Gateway().(*sqlstore.Store)
			if !ok {
				return fmt.Errorf("seed needs the sql backend, got %s", c.Config().Backend)
			}

			details, err := loadDetails(file)
			if err != nil {
				return err
			}
			if err := store.Seed(ctx, details); err != nil {
				return fmt.Errorf("seed failed: %w", err)
			}
			return a.print(cmd, map[string]int{"seeded": len(details)}, func(w io.Writer) {
				fmt.Fprintf(w, "Seeded %d recipes.\n", len(details))
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON file with recipe details")
	return cmd
}

func loadDetails(path string) ([]recipe.Detail, error) {
	if path == "" {
		return memory.SeedRecipes()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read recipes: %w", err)
	}
	var details []recipe.Detail
	if err := json.Unmarshal(data, &details); err != nil {
		return nil, fmt.Errorf("failed to parse recipes %s: %w", path, err)
	}
	for i := range details {
		details[i].SortParts()
	}
	return details, nil
}
