package recipe

import (
	"sort"
	"strings"
)

// Match reports whether a published recipe satisfies the filter's predicates.
// Paging and sorting are not considered. Search is a case-insensitive match of
// every whitespace separated term against title and description.
func Match(d Detail, f Filter) bool {
	if !d.Published {
		return false
	}
	f = f.Normalized()

	if f.Search != "" {
		haystack := strings.ToLower(d.Title + " " + d.Description)
		for _, term := range strings.Fields(strings.ToLower(f.Search)) {
			if !strings.Contains(haystack, term) {
				return false
			}
		}
	}

	if f.Stage != 0 && d.Stage != f.Stage {
		return false
	}
	if f.Difficulty != "" && d.Difficulty != f.Difficulty {
		return false
	}
	if f.MealType != "" && (d.MealType == nil || *d.MealType != f.MealType) {
		return false
	}
	if f.CuisineType != "" && (d.CuisineType == nil || !strings.EqualFold(*d.CuisineType, f.CuisineType)) {
		return false
	}

	if !flagMatches(f.Vegan, d.Vegan) ||
		!flagMatches(f.Vegetarian, d.Vegetarian) ||
		!flagMatches(f.GlutenFree, d.GlutenFree) ||
		!flagMatches(f.DairyFree, d.DairyFree) ||
		!flagMatches(f.NutFree, d.NutFree) ||
		!flagMatches(f.FreezerFriendly, d.FreezerFriendly) {
		return false
	}

	if f.AgeInMonths > 0 && !d.SuitableFor(f.AgeInMonths) {
		return false
	}
	if f.MinRating > 0 && d.Rating < f.MinRating {
		return false
	}
	return true
}

func flagMatches(want *bool, got bool) bool {
	return want == nil || *want == got
}

// Sort orders summaries in place by the filter's sort key and direction.
// Ties are broken by ID so results are deterministic.
func Sort(items []Summary, f Filter) {
	f = f.Normalized()
	asc := f.SortOrder == SortAsc

	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		var cmp int
		switch f.SortBy {
		case SortByTitle:
			cmp = strings.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title))
		default:
			switch {
			case a.Rating < b.Rating:
				cmp = -1
			case a.Rating > b.Rating:
				cmp = 1
			}
		}
		if cmp == 0 {
			return a.ID < b.ID
		}
		if asc {
			return cmp < 0
		}
		return cmp > 0
	})
}

// Page applies the filter's limit and offset to an already sorted slice. An
// offset without a limit uses DefaultListLimit.
func Page(items []Summary, f Filter) []Summary {
	if f.Limit <= 0 && f.Offset <= 0 {
		return items
	}
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if f.Offset >= len(items) {
		return []Summary{}
	}
	end := f.Offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[f.Offset:end]
}

// Select runs Match, Sort and Page over a set of details and returns the
// resulting summaries with IsSaved resolved through the saved lookup.
func Select(details []Detail, f Filter, saved func(id string) bool) []Summary {
	out := make([]Summary, 0, len(details))
	for _, d := range details {
		if !Match(d, f) {
			continue
		}
		s := d.Card()
		s.IsSaved = saved != nil && saved(s.ID)
		out = append(out, s)
	}
	Sort(out, f)
	return Page(out, f)
}

// SelectFeatured returns the published featured recipes, best rated first,
// capped at FeaturedLimit.
func SelectFeatured(details []Detail, saved func(id string) bool) []Summary {
	featured := make([]Detail, 0, len(details))
	for _, d := range details {
		if d.IsFeatured {
			featured = append(featured, d)
		}
	}
	return Select(featured, Filter{Limit: FeaturedLimit}, saved)
}
