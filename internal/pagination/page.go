package pagination

// Page is one slice of a keyset scan. NextCursor is nil on the last page.
type Page[T any] struct {
	Items      []T     `json:"items"`
	NextCursor *string `json:"nextCursor,omitempty"`
}

// Paginate trims rows fetched with Plan.FetchLimit down to limit and derives
// the next cursor from the last kept row when the extra row is present.
func Paginate[T any](rows []T, limit int, key func(T) Cursor) Page[T] {
	if rows == nil {
		rows = []T{}
	}
	if limit <= 0 || len(rows) <= limit {
		return Page[T]{Items: rows}
	}

	items := rows[:limit]
	next := EncodeCursor(key(items[len(items)-1]))
	return Page[T]{Items: items, NextCursor: &next}
}
