package database

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned by repositories when no row matches.
var ErrNotFound = errors.New("not found")

// ErrInactive is returned when a write depends on a parent row that has been
// deactivated.
var ErrInactive = errors.New("inactive")

// UniqueViolation is returned by repositories when an insert or update hits a
// unique constraint. Constraint names the violated index.
type UniqueViolation struct {
	Constraint string
	Err        error
}

func (e *UniqueViolation) Error() string { return "unique violation on " + e.Constraint }

func (e *UniqueViolation) Unwrap() error { return e.Err }

const uniqueViolationCode = "23505"

// Translate maps pgx errors onto the repository sentinels.
func Translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
		return &UniqueViolation{Constraint: pgErr.ConstraintName, Err: err}
	}
	return err
}

// IsUniqueViolation reports whether err is a unique violation, optionally on one
// of the named constraints.
func IsUniqueViolation(err error, constraints ...string) bool {
	var uv *UniqueViolation
	if !errors.As(err, &uv) {
		return false
	}
	if len(constraints) == 0 {
		return true
	}
	for _, c := range constraints {
		if uv.Constraint == c {
			return true
		}
	}
	return false
}

// ErrConflict is returned when a write is refused because a conflicting row
// already exists but no unique constraint names it.
var ErrConflict = errors.New("conflicting row exists")
