package transfer

import "errors"

// Manager contract errors.
//
// These are returned synchronously from mutating operations and never
// alter transfer state. Callers distinguish them with errors.Is.
var (
	// ErrNotFound indicates the referenced transfer or file ID is unknown
	// to the manager.
	ErrNotFound = errors.New("transfer not found")

	// ErrInvalidState indicates the operation is illegal for the item's
	// current status, e.g. adding files to a completed transfer or
	// retrying a file that is not in error.
	ErrInvalidState = errors.New("operation invalid for current transfer state")
)
