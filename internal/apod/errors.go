package apod

import "fmt"

// ErrorKind classifies a fetch failure for the caller's retry decision.
type ErrorKind string

const (
	// KindTransient marks failures that are safe to retry with backoff.
	KindTransient ErrorKind = "transient"
	// KindPermanent marks failures that need intervention before retrying.
	KindPermanent ErrorKind = "permanent"
)

// FetchError is a typed failure from the metadata endpoint.
type FetchError struct {
	Kind       ErrorKind
	StatusCode int
	Err        error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch failed (%s, status %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch failed (%s): %v", e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// Transient reports whether the failure is safe to retry.
func (e *FetchError) Transient() bool {
	return e.Kind == KindTransient
}

// ValidationError is a typed failure from normalization. It is always
// permanent: the same raw input will fail the same way on every retry.
type ValidationError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid record: field %q %s", e.Field, e.Reason)
}
