package database

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// ErrRecordNotFound is returned when no record exists for the requested date.
var ErrRecordNotFound = errors.New("record not found")

// uniqueViolationCode is the PostgreSQL error code for unique constraint
// violations.
const uniqueViolationCode = "23505"

// recordsDateConstraint is the constraint name of the date primary key on
// apod_records. A unique violation on this constraint is the expected
// conflict-resolution path; a violation on any other constraint is a
// data-model bug.
const recordsDateConstraint = "apod_records_pkey"

// StoreError is a typed persistence failure.
type StoreError struct {
	// Fatal marks failures that must not be retried: they indicate a
	// data-model bug rather than an unavailable store.
	Fatal bool
	Err   error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e.Fatal {
		return fmt.Sprintf("store failed (fatal): %v", e.Err)
	}
	return fmt.Sprintf("store failed (transient): %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// classifyStoreError maps a driver error to a typed store error.
// The upsert statement resolves conflicts on the date key itself, so any
// unique violation that still surfaces hit a different constraint and is
// fatal. Everything else (connection loss, timeouts) is transient.
func classifyStoreError(op string, err error) *StoreError {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolationCode {
		return &StoreError{
			Fatal: true,
			Err:   fmt.Errorf("%s: unexpected unique violation on %q: %w", op, pqErr.Constraint, err),
		}
	}
	return &StoreError{Err: fmt.Errorf("%s: %w", op, err)}
}
