package recipe_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-recipe-query/recipe"
)

func TestFilterValidate(t *testing.T) {
	tests := []struct {
		name    string
		filter  recipe.Filter
		wantErr bool
	}{
		{name: "zero filter", filter: recipe.Filter{}},
		{name: "full filter", filter: recipe.Filter{
			Search: "pea", Stage: 2, Difficulty: recipe.DifficultyEasy, MealType: recipe.MealLunch,
			Vegan: recipe.Bool(true), AgeInMonths: 12, MinRating: 4.5,
			SortBy: recipe.SortByTitle, SortOrder: recipe.SortAsc, Limit: 20, Offset: 40,
		}},
		{name: "stage too high", filter: recipe.Filter{Stage: 5}, wantErr: true},
		{name: "negative age", filter: recipe.Filter{AgeInMonths: -1}, wantErr: true},
		{name: "rating above five", filter: recipe.Filter{MinRating: 5.5}, wantErr: true},
		{name: "unknown sort key", filter: recipe.Filter{SortBy: "views"}, wantErr: true},
		{name: "unknown sort order", filter: recipe.Filter{SortOrder: "up"}, wantErr: true},
		{name: "unknown difficulty", filter: recipe.Filter{Difficulty: "hard"}, wantErr: true},
		{name: "negative offset", filter: recipe.Filter{Offset: -20}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.filter.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, recipe.ErrInvalidFilter)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestFilterNormalized(t *testing.T) {
	f := recipe.Filter{Search: "  pea fritters ", Stage: -1}.Normalized()

	assert.Equal(t, "pea fritters", f.Search)
	assert.Equal(t, 0, f.Stage)
	assert.Equal(t, recipe.SortByRating, f.SortBy)
	assert.Equal(t, recipe.SortDesc, f.SortOrder)
	assert.Equal(t, f, f.Normalized(), "normalizing twice changes nothing")
}

func TestFilterWithoutPaging(t *testing.T) {
	f := recipe.Filter{Stage: 2, Limit: 20, Offset: 40}.WithoutPaging()

	assert.Equal(t, recipe.Filter{Stage: 2}, f)
	assert.True(t, recipe.Filter{Limit: 10}.WithoutPaging().IsZero())
	assert.False(t, recipe.Filter{Vegan: recipe.Bool(false)}.IsZero())
}

func TestParseSearchParams(t *testing.T) {
	tests := []struct {
		name   string
		params map[string]string
		want   recipe.Filter
	}{
		{
			name:   "empty",
			params: map[string]string{},
			want:   recipe.Filter{},
		},
		{
			name:   "query and dietary flags",
			params: map[string]string{"q": " banana ", "isVegan": "true", "isNutFree": "false"},
			want:   recipe.Filter{Search: "banana", Vegan: recipe.Bool(true)},
		},
		{
			name:   "stage wins over age",
			params: map[string]string{"stage": "3", "ageInMonths": "18"},
			want:   recipe.Filter{Stage: 3},
		},
		{
			name:   "age used without stage",
			params: map[string]string{"ageInMonths": "18"},
			want:   recipe.Filter{AgeInMonths: 18},
		},
		{
			name:   "invalid stage falls back to age",
			params: map[string]string{"stage": "9", "ageInMonths": "10"},
			want:   recipe.Filter{AgeInMonths: 10},
		},
		{
			name:   "non numeric and non positive ages ignored",
			params: map[string]string{"ageInMonths": "soon"},
			want:   recipe.Filter{},
		},
		{
			name:   "zero age ignored",
			params: map[string]string{"ageInMonths": "0"},
			want:   recipe.Filter{},
		},
		{
			name:   "sort and rating",
			params: map[string]string{"sortBy": "title", "sortOrder": "asc", "minRating": "4"},
			want:   recipe.Filter{SortBy: recipe.SortByTitle, SortOrder: recipe.SortAsc, MinRating: 4},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, recipe.ParseSearchParams(tt.params))
		})
	}
}

func TestSearchParamsRoundTrip(t *testing.T) {
	f := recipe.Filter{Search: "oat", Vegan: recipe.Bool(true), GlutenFree: recipe.Bool(true), Stage: 2}

	params := f.SearchParams()
	assert.Equal(t, map[string]string{"q": "oat", "isVegan": "true", "isGlutenFree": "true", "stage": "2"}, params)
	assert.Equal(t, f, recipe.ParseSearchParams(params))
}
