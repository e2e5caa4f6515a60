package database

import (
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

// IsUniqueViolation reports whether err is a Postgres unique constraint failure.
func IsUniqueViolation(err error) bool {
	return hasCode(err, pgerrcode.UniqueViolation)
}

// IsInvalidText reports whether Postgres rejected a literal, for example a
// malformed uuid in a WHERE clause.
func IsInvalidText(err error) bool {
	return hasCode(err, pgerrcode.InvalidTextRepresentation)
}

// IsForeignKeyViolation reports whether err is a Postgres foreign key
// failure. A non-empty constraint narrows the match to that constraint.
func IsForeignKeyViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgerrcode.ForeignKeyViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

// ErrorClass returns a low-cardinality label for metrics.
func ErrorClass(err error) string {
	if err == nil {
		return "none"
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "other"
	}

	switch {
	case pgErr.Code == pgerrcode.UniqueViolation:
		return "unique_violation"
	case pgErr.Code == pgerrcode.ForeignKeyViolation:
		return "foreign_key_violation"
	case pgErr.Code == pgerrcode.InvalidTextRepresentation:
		return "invalid_text"
	case pgerrcode.IsConnectionException(pgErr.Code):
		return "connection"
	case pgerrcode.IsTransactionRollback(pgErr.Code):
		return "rollback"
	default:
		return "postgres"
	}
}

func hasCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
