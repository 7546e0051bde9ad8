package postgres

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type errorKind int

const (
	kindUnknown errorKind = iota
	kindNotFound
	kindConflict
	kindUnavailable
)

// Error normalizes pgx failures into the classification the repository layer
// exposes to services.
type Error struct {
	kind errorKind
	err  error
}

func (e *Error) Error() string {
	if e.err == nil {
		return "postgres: unknown error"
	}
	return fmt.Sprintf("postgres: %v", e.err)
}

func (e *Error) Unwrap() error { return e.err }

func (e *Error) IsNotFound() bool    { return e.kind == kindNotFound }
func (e *Error) IsConflict() bool    { return e.kind == kindConflict }
func (e *Error) IsUnavailable() bool { return e.kind == kindUnavailable }

// NotFound builds a not-found repository error for the given entity.
func NotFound(entity string, id any) error {
	return &Error{kind: kindNotFound, err: fmt.Errorf("%s %v not found", entity, id)}
}

// Conflict builds a conflict repository error with the given cause.
func Conflict(err error) error {
	return &Error{kind: kindConflict, err: err}
}

// MapError classifies a raw pgx error. Row misses become not-found, unique
// and serialization violations become conflicts, and connection failures
// become unavailable. Context cancellation passes through untouched.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var mapped *Error
	if errors.As(err, &mapped) {
		return err
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return &Error{kind: kindNotFound, err: err}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505", "23503", "23514": // unique, foreign key, check violations
			return &Error{kind: kindConflict, err: err}
		case "40001", "40P01": // serialization failure, deadlock
			return &Error{kind: kindConflict, err: err}
		case "53300", "57P01", "57P02", "57P03": // too many connections, shutdown
			return &Error{kind: kindUnavailable, err: err}
		}
		return &Error{kind: kindUnknown, err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return &Error{kind: kindUnavailable, err: err}
	}
	if errors.Is(err, pgx.ErrTxClosed) {
		return &Error{kind: kindConflict, err: err}
	}

	return &Error{kind: kindUnknown, err: err}
}
