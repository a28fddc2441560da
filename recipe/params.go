package recipe

import (
	"strconv"
	"strings"
)

// Search parameter names used by the search screen.
const (
	ParamQuery           = "q"
	ParamStage           = "stage"
	ParamAgeInMonths     = "ageInMonths"
	ParamVegan           = "isVegan"
	ParamVegetarian      = "isVegetarian"
	ParamGlutenFree      = "isGlutenFree"
	ParamDairyFree       = "isDairyFree"
	ParamNutFree         = "isNutFree"
	ParamFreezerFriendly = "isFreezerFriendly"
	ParamSortBy          = "sortBy"
	ParamSortOrder       = "sortOrder"
	ParamMinRating       = "minRating"
)

// ParseSearchParams converts string search parameters into a Filter.
//
// Dietary flags are only applied when set to "true"; any other value leaves
// the flag unfiltered. Stage and age are mutually exclusive: when both are
// present the stage wins. Non-numeric or non-positive ages and out of range
// stages are ignored rather than reported.
func ParseSearchParams(params map[string]string) Filter {
	var f Filter

	f.Search = strings.TrimSpace(params[ParamQuery])

	flags := []struct {
		name string
		dst  **bool
	}{
		{ParamVegan, &f.Vegan},
		{ParamVegetarian, &f.Vegetarian},
		{ParamGlutenFree, &f.GlutenFree},
		{ParamDairyFree, &f.DairyFree},
		{ParamNutFree, &f.NutFree},
		{ParamFreezerFriendly, &f.FreezerFriendly},
	}
	for _, flag := range flags {
		if params[flag.name] == "true" {
			*flag.dst = Bool(true)
		}
	}

	if stage, err := strconv.Atoi(params[ParamStage]); err == nil && stage >= 1 && stage <= 4 {
		f.Stage = stage
	} else if age, err := strconv.Atoi(params[ParamAgeInMonths]); err == nil && age > 0 {
		f.AgeInMonths = age
	}

	switch SortKey(params[ParamSortBy]) {
	case SortByRating, SortByTitle:
		f.SortBy = SortKey(params[ParamSortBy])
	}
	switch SortOrder(params[ParamSortOrder]) {
	case SortAsc, SortDesc:
		f.SortOrder = SortOrder(params[ParamSortOrder])
	}

	if rating, err := strconv.ParseFloat(params[ParamMinRating], 64); err == nil && rating > 0 && rating <= 5 {
		f.MinRating = rating
	}

	return f
}

// SearchParams is the inverse of ParseSearchParams for the fields the search
// screen round-trips.
func (f Filter) SearchParams() map[string]string {
	out := make(map[string]string)
	if s := strings.TrimSpace(f.Search); s != "" {
		out[ParamQuery] = s
	}
	set := func(name string, v *bool) {
		if v != nil && *v {
			out[name] = "true"
		}
	}
	set(ParamVegan, f.Vegan)
	set(ParamVegetarian, f.Vegetarian)
	set(ParamGlutenFree, f.GlutenFree)
	set(ParamDairyFree, f.DairyFree)
	set(ParamNutFree, f.NutFree)
	set(ParamFreezerFriendly, f.FreezerFriendly)

	if f.Stage > 0 {
		out[ParamStage] = strconv.Itoa(f.Stage)
	} else if f.AgeInMonths > 0 {
		out[ParamAgeInMonths] = strconv.Itoa(f.AgeInMonths)
	}
	return out
}
