package storage

import "errors"

// Common storage errors.
var (
	// ErrNotFound is returned when a named graph does not exist.
	ErrNotFound = errors.New("graph not found")

	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("store closed")
)
