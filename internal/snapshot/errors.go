package snapshot

import "fmt"

// CommitError is a typed failure from the snapshot store.
// Commit is idempotent under deduplication, so transient failures are always
// safe to retry by re-running the whole commit.
type CommitError struct {
	// Transient marks failures of the backing or remote store that are safe
	// to retry. Non-transient failures indicate corrupted local state.
	Transient bool
	Err       error
}

// Error implements the error interface.
func (e *CommitError) Error() string {
	if e.Transient {
		return fmt.Sprintf("commit failed (transient): %v", e.Err)
	}
	return fmt.Sprintf("commit failed: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *CommitError) Unwrap() error {
	return e.Err
}
