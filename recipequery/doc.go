// Package recipequery is the recipe data layer consumers read from. It turns
// declared reads (filtered lists, infinite lists, featured, saved, detail)
// into cache keys and fetch functions over a recipe.Gateway, and keeps the
// cached entries consistent when a recipe is saved or unsaved.
//
// Every key is namespaced under "recipes" and ends with the acting user, so
// entries of different users never mix:
//
//	recipes::list::<filter>::<user>
//	recipes::infinite::<filter>::<pageSize>::<user>
//	recipes::featured::<user>
//	recipes::saved::<user>
//	recipes::details::<id>::<user>
//
// A typical read:
//
//	q := client.Recipes(recipequery.Viewer{UserID: uid}, recipe.Filter{Stage: 2})
//	defer q.Close()
//	res := q.Result(ctx)
//	if res.Error != nil { ... }
//
// A save patches IsSaved in place in every list, page and detail entry of the
// user that holds the recipe, and marks the saved list stale.
package recipequery
