package cache

// Record is implemented by anything a cache value can hold and be patched by id.
type Record interface {
	RecordID() string
}

// ValueKind tags the shape of a cached value.
type ValueKind int

const (
	KindSingle ValueKind = iota + 1
	KindList
	KindPaged
)

func (k ValueKind) String() string {
	switch k {
	case KindSingle:
		return "single"
	case KindList:
		return "list"
	case KindPaged:
		return "paged"
	default:
		return "unknown"
	}
}

// Value is a cached query result. The only implementations are Single, List
// and PagedList, so every shape a patch may meet is known at compile time.
type Value interface {
	Kind() ValueKind

	// PatchByID applies fn to every record whose id equals id and returns the
	// updated copy. The receiver is never modified. When nothing matched, the
	// original value and false are returned.
	PatchByID(id string, fn func(Record) Record) (Value, bool)

	sealed()
}

// Single holds one record. Found is false for a lookup that resolved to no
// record, which is a result and not an error.
type Single[T Record] struct {
	Item  T
	Found bool
}

func (Single[T]) Kind() ValueKind { return KindSingle }
func (Single[T]) sealed()         {}

func (s Single[T]) PatchByID(id string, fn func(Record) Record) (Value, bool) {
	if !s.Found || s.Item.RecordID() != id {
		return s, false
	}
	next, ok := fn(s.Item).(T)
	if !ok {
		return s, false
	}
	return Single[T]{Item: next, Found: true}, true
}

// List holds a flat result set.
type List[T Record] struct {
	Items []T
}

func (List[T]) Kind() ValueKind { return KindList }
func (List[T]) sealed()         {}

func (l List[T]) PatchByID(id string, fn func(Record) Record) (Value, bool) {
	items, changed := patchSlice(l.Items, id, fn)
	if !changed {
		return l, false
	}
	return List[T]{Items: items}, true
}

// PagedList holds the pages of an offset paginated query in fetch order.
type PagedList[T Record] struct {
	Pages    [][]T
	PageSize int
}

func (PagedList[T]) Kind() ValueKind { return KindPaged }
func (PagedList[T]) sealed()         {}

func (p PagedList[T]) PatchByID(id string, fn func(Record) Record) (Value, bool) {
	var pages [][]T
	for i, page := range p.Pages {
		next, changed := patchSlice(page, id, fn)
		if !changed {
			continue
		}
		if pages == nil {
			pages = make([][]T, len(p.Pages))
			copy(pages, p.Pages)
		}
		pages[i] = next
	}
	if pages == nil {
		return p, false
	}
	return PagedList[T]{Pages: pages, PageSize: p.PageSize}, true
}

// HasNextPage reports whether another page may exist: false before the first
// page and after any page shorter than the page size.
func (p PagedList[T]) HasNextPage() bool {
	if len(p.Pages) == 0 || p.PageSize <= 0 {
		return false
	}
	return len(p.Pages[len(p.Pages)-1]) >= p.PageSize
}

// NextOffset is the offset of the page after the loaded ones.
func (p PagedList[T]) NextOffset() int {
	return len(p.Pages) * p.PageSize
}

// Flatten returns every item across pages.
func (p PagedList[T]) Flatten() []T {
	n := 0
	for _, page := range p.Pages {
		n += len(page)
	}
	out := make([]T, 0, n)
	for _, page := range p.Pages {
		out = append(out, page...)
	}
	return out
}

// patchSlice copies items on the first match only.
func patchSlice[T Record](items []T, id string, fn func(Record) Record) ([]T, bool) {
	var out []T
	for i, item := range items {
		if item.RecordID() != id {
			continue
		}
		next, ok := fn(item).(T)
		if !ok {
			continue
		}
		if out == nil {
			out = make([]T, len(items))
			copy(out, items)
		}
		out[i] = next
	}
	return out, out != nil
}

// ValueAs converts a cached value to the concrete variant V.
func ValueAs[V Value](v Value) (V, error) {
	typed, ok := v.(V)
	if !ok {
		var zero V
		return zero, ErrInvalidResultType
	}
	return typed, nil
}
