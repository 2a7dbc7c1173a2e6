package store

import "errors"

// Shared error taxonomy. Callers discriminate with errors.Is.
var (
	// ErrNotFound means a referenced record id does not exist (stale id).
	ErrNotFound = errors.New("record not found")

	// ErrInvalidInput means the caller supplied bad input; no side effect
	// was attempted.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidState means the operation is not legal for the record's
	// current lifecycle state.
	ErrInvalidState = errors.New("invalid state")

	// ErrUnavailable means the remote store is unreachable or rejected the
	// operation at the transport level.
	ErrUnavailable = errors.New("remote store unavailable")
)
