package recipequery

import (
	"strings"

	"github.com/goliatone/go-recipe-query/cache"
	"github.com/goliatone/go-recipe-query/recipe"
)

// Namespace is the first segment of every recipe cache key.
const Namespace = "recipes"

// AnonymousUser stands in for the user segment of signed-out viewers.
const AnonymousUser = "anon"

// userPrefix marks user ids that would otherwise read as AnonymousUser.
const userPrefix = "user:"

// Key scopes, the second segment of every recipe key.
const (
	ScopeList     = "list"
	ScopeInfinite = "infinite"
	ScopeFeatured = "featured"
	ScopeSaved    = "saved"
	ScopeDetails  = "details"
)

// Viewer is the acting user a query runs for. The zero Viewer is anonymous.
type Viewer struct {
	UserID string
}

// Anonymous returns the signed-out viewer.
func Anonymous() Viewer { return Viewer{} }

// IsAnonymous reports whether no user is signed in.
func (v Viewer) IsAnonymous() bool { return v.UserID == "" }

func (v Viewer) marker() string {
	switch {
	case v.IsAnonymous():
		return AnonymousUser
	case v.UserID == AnonymousUser, strings.HasPrefix(v.UserID, userPrefix):
		return userPrefix + v.UserID
	}
	return v.UserID
}

// Keys derives cache keys from query inputs. Every key ends with the
// viewer's user segment, so a change of user never reads another user's entry.
type Keys struct {
	serializer cache.KeySerializer
}

// NewKeys returns Keys built on s. A nil s uses the default serializer.
func NewKeys(s cache.KeySerializer) Keys {
	if s == nil {
		s = cache.NewDefaultKeySerializer()
	}
	return Keys{serializer: s}
}

// List is recipes::list::<filter>::<user>.
func (k Keys) List(v Viewer, f recipe.Filter) string {
	return k.serializer.SerializeKey(Namespace, ScopeList, f.Normalized(), v.marker())
}

// Infinite is recipes::infinite::<filter>::<pageSize>::<user>. Paging fields
// of the filter are ignored.
func (k Keys) Infinite(v Viewer, f recipe.Filter, pageSize int) string {
	return k.serializer.SerializeKey(Namespace, ScopeInfinite, f.Normalized().WithoutPaging(), pageSize, v.marker())
}

func (k Keys) Featured(v Viewer) string {
	return k.serializer.SerializeKey(Namespace, ScopeFeatured, v.marker())
}

func (k Keys) Saved(v Viewer) string {
	return k.serializer.SerializeKey(Namespace, ScopeSaved, v.marker())
}

func (k Keys) Detail(v Viewer, id string) string {
	return k.serializer.SerializeKey(Namespace, ScopeDetails, id, v.marker())
}

// ForViewer matches every recipe key that belongs to v. The user segment is
// compared in its serialized form, so digested ids match too.
func (k Keys) ForViewer(v Viewer) func(key string) bool {
	userSeg := k.userSegment(v)
	return func(key string) bool {
		segs := cache.Segments(key)
		return len(segs) > 2 && segs[0] == Namespace && segs[len(segs)-1] == userSeg
	}
}

func (k Keys) userSegment(v Viewer) string {
	segs := cache.Segments(k.serializer.SerializeKey(Namespace, v.marker()))
	return segs[len(segs)-1]
}

// InScope reports whether key is a recipe key of the given scope.
func InScope(key, scope string) bool {
	return cache.Matches(key, Namespace+cache.KeySeparator+scope)
}
