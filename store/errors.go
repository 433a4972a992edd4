package store

import "errors"

var (
	// ErrNotFound is returned when no run with the requested id was saved.
	ErrNotFound = errors.New("run not found")

	// ErrInvalidID is returned for empty run ids or ids that cannot be used
	// as a key or file name.
	ErrInvalidID = errors.New("invalid run id")
)
