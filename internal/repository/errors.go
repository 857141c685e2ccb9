package repository

import "errors"

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a unique constraint rejects an insert.
	ErrDuplicate = errors.New("already exists")
	// ErrConflict is returned when an optimistic update matched no row because
	// the stored version or status moved underneath the caller.
	ErrConflict = errors.New("concurrent modification")
)
