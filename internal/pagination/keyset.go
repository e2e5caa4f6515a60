package pagination

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
)

// Direction is the ordering of a keyset scan.
type Direction string

const (
	Descending Direction = "desc"
	Ascending  Direction = "asc"
)

// ParseDirection maps a query value to a Direction. Empty means Descending.
func ParseDirection(value string) (Direction, error) {
	switch Direction(strings.ToLower(strings.TrimSpace(value))) {
	case "", Descending:
		return Descending, nil
	case Ascending:
		return Ascending, nil
	default:
		return "", fmt.Errorf("invalid order %q: must be asc or desc", value)
	}
}

// Plan describes one page request.
type Plan struct {
	Direction Direction
	Cursor    *Cursor
	Limit     int
}

// NewPlan builds a Plan, defaulting an empty direction to Descending.
func NewPlan(direction Direction, cursor *Cursor, limit int) Plan {
	if direction == "" {
		direction = Descending
	}
	return Plan{Direction: direction, Cursor: cursor, Limit: limit}
}

// FetchLimit is the number of rows to request: one more than the page size,
// so that the presence of the extra row signals another page.
func (p Plan) FetchLimit() int {
	return p.Limit + 1
}

func (p Plan) operator() string {
	if p.Direction == Ascending {
		return ">"
	}
	return "<"
}

func (p Plan) sortKeyword() string {
	if p.Direction == Ascending {
		return "ASC"
	}
	return "DESC"
}

// Predicate returns the SQL row comparison that selects rows strictly past
// the cursor, using positional parameters starting at firstArg. Without a
// cursor it returns an empty clause and no arguments.
func (p Plan) Predicate(tsColumn, idColumn string, firstArg int) (string, []any) {
	if p.Cursor == nil {
		return "", nil
	}
	clause := fmt.Sprintf("(%s, %s) %s ($%d, $%d)",
		quote(tsColumn), quote(idColumn), p.operator(), firstArg, firstArg+1)
	return clause, []any{p.Cursor.Timestamp, p.Cursor.ID}
}

// OrderBy returns the ORDER BY list matching the plan direction on both
// key columns.
func (p Plan) OrderBy(tsColumn, idColumn string) string {
	kw := p.sortKeyword()
	return fmt.Sprintf("%s %s, %s %s", quote(tsColumn), kw, quote(idColumn), kw)
}

// Admits reports whether a row keyed by k lies strictly past the cursor.
func (p Plan) Admits(k Cursor) bool {
	if p.Cursor == nil {
		return true
	}
	c := compare(k, *p.Cursor)
	if p.Direction == Ascending {
		return c > 0
	}
	return c < 0
}

// Before reports whether a sorts ahead of b in the plan direction.
func (p Plan) Before(a, b Cursor) bool {
	c := compare(a, b)
	if p.Direction == Ascending {
		return c < 0
	}
	return c > 0
}

// Apply is the in-memory counterpart of Predicate, OrderBy and LIMIT: it
// keeps rows past the cursor, orders them and truncates to FetchLimit.
func Apply[T any](rows []T, p Plan, key func(T) Cursor) []T {
	out := make([]T, 0, len(rows))
	for _, r := range rows {
		if p.Admits(key(r)) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return p.Before(key(out[i]), key(out[j])) })
	if len(out) > p.FetchLimit() {
		out = out[:p.FetchLimit()]
	}
	return out
}

func compare(a, b Cursor) int {
	switch {
	case a.Timestamp.Before(b.Timestamp):
		return -1
	case a.Timestamp.After(b.Timestamp):
		return 1
	}
	return strings.Compare(a.ID, b.ID)
}

func quote(column string) string {
	return pgx.Identifier(strings.Split(column, ".")).Sanitize()
}
