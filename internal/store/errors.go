package store

import (
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
	ErrNoTenant = errors.New("query requires a tenant")
)

// RejectedError is a write the database refused (constraint or data error).
// Message is safe to return to the API caller.
type RejectedError struct {
	Message string
	Err     error
}

func (e *RejectedError) Error() string { return e.Message }

func (e *RejectedError) Unwrap() error { return e.Err }

// classify maps driver errors onto the package's error values.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505":
			return &RejectedError{Message: pgErr.Message, Err: ErrConflict}
		case strings.HasPrefix(pgErr.Code, "23"), strings.HasPrefix(pgErr.Code, "22"):
			return &RejectedError{Message: pgErr.Message, Err: err}
		}
	}
	return err
}
