package sqlstore

import (
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-recipe-query/recipe"
)

// filterCriteria translates a normalized filter into select criteria over
// the recipes table (alias r). Unpublished recipes are always excluded.
func filterCriteria(f recipe.Filter) []repository.SelectCriteria {
	criteria := []repository.SelectCriteria{
		where("r.published = ?", true),
	}

	for _, term := range strings.Fields(strings.ToLower(f.Search)) {
		pattern := "%" + escapeLike(term) + "%"
		criteria = append(criteria, func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
				return q.Where("LOWER(r.title) LIKE ? ESCAPE '\\'", pattern).
					WhereOr("LOWER(r.description) LIKE ? ESCAPE '\\'", pattern)
			})
		})
	}

	if f.Stage != 0 {
		criteria = append(criteria, where("r.stage = ?", f.Stage))
	}
	if f.Difficulty != "" {
		criteria = append(criteria, where("r.difficulty = ?", string(f.Difficulty)))
	}
	if f.MealType != "" {
		criteria = append(criteria, where("r.meal_type = ?", string(f.MealType)))
	}
	if f.CuisineType != "" {
		criteria = append(criteria, where("LOWER(r.cuisine_type) = ?", strings.ToLower(f.CuisineType)))
	}

	flags := []struct {
		column string
		want   *bool
	}{
		{"r.vegan", f.Vegan},
		{"r.vegetarian", f.Vegetarian},
		{"r.gluten_free", f.GlutenFree},
		{"r.dairy_free", f.DairyFree},
		{"r.nut_free", f.NutFree},
		{"r.freezer_friendly", f.FreezerFriendly},
	}
	for _, flag := range flags {
		if flag.want != nil {
			criteria = append(criteria, where(flag.column+" = ?", *flag.want))
		}
	}

	if f.AgeInMonths > 0 {
		age := f.AgeInMonths
		criteria = append(criteria, func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("r.min_age_months <= ?", age).
				WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
					return q.Where("r.max_age_months IS NULL").WhereOr("r.max_age_months >= ?", age)
				})
		})
	}
	if f.MinRating > 0 {
		criteria = append(criteria, where("r.rating >= ?", f.MinRating))
	}

	return append(criteria, orderBy(f), paginate(f))
}

func where(cond string, arg any) repository.SelectCriteria {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where(cond, arg)
	}
}

// orderBy sorts by the filter's key and direction, ties broken by id
// ascending.
func orderBy(f recipe.Filter) repository.SelectCriteria {
	dir := "DESC"
	if f.SortOrder == recipe.SortAsc {
		dir = "ASC"
	}
	column := "r.rating"
	if f.SortBy == recipe.SortByTitle {
		column = "LOWER(r.title)"
	}
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.OrderExpr(column + " " + dir).OrderExpr("r.id ASC")
	}
}

func paginate(f recipe.Filter) repository.SelectCriteria {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		if f.Limit <= 0 && f.Offset <= 0 {
			return q
		}
		limit := f.Limit
		if limit <= 0 {
			limit = recipe.DefaultListLimit
		}
		return q.Limit(limit).Offset(f.Offset)
	}
}

func apply(q *bun.SelectQuery, criteria []repository.SelectCriteria) *bun.SelectQuery {
	for _, c := range criteria {
		q = c(q)
	}
	return q
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
