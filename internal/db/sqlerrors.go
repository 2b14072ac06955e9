package db

import (
	"errors"
	"strings"

	"github.com/mattn/go-sqlite3"
)

var (
	// ErrUniqueViolation marks an insert that collided with a primary key
	// or unique index, such as a second review with an existing id.
	ErrUniqueViolation = errors.New("unique constraint violation")

	// ErrBusy marks a transaction that lost a lock to another connection.
	// Transactions failing with it are retried.
	ErrBusy = errors.New("database busy")

	// ErrSchema marks a query against a table the schema lacks, usually a
	// database that was not migrated.
	ErrSchema = errors.New("schema mismatch")

	// ErrRetriesExceeded is returned when a transaction stayed busy for
	// every allowed attempt.
	ErrRetriesExceeded = errors.New("db tx retries exceeded")
)

// SQLError pairs a driver error with the kind it was classified as. Both are
// reachable through errors.Is and errors.As.
type SQLError struct {
	Kind error
	Err  error
}

// Error implements error.
func (e *SQLError) Error() string {
	return e.Kind.Error() + ": " + e.Err.Error()
}

// Unwrap exposes the kind and the driver error.
func (e *SQLError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// MapSQLError classifies sqlite driver errors. Other errors are returned as
// they are.
func MapSQLError(err error) error {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return err
	}

	var kind error
	switch sqliteErr.Code {
	case sqlite3.ErrConstraint:
		switch sqliteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			kind = ErrUniqueViolation
		}

	case sqlite3.ErrBusy, sqlite3.ErrLocked:
		kind = ErrBusy

	case sqlite3.ErrError:
		if strings.Contains(sqliteErr.Error(), "no such table") {
			kind = ErrSchema
		}
	}

	if kind == nil {
		return err
	}

	return &SQLError{Kind: kind, Err: err}
}

// IsRetryable reports whether a transaction that failed with err may be run
// again.
func IsRetryable(err error) bool {
	return errors.Is(MapSQLError(err), ErrBusy)
}
