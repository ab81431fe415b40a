package database

import "errors"

var (
	ErrNotFound = errors.New("record not found")
	// ErrConcurrentModification means a conditional update matched no row.
	ErrConcurrentModification = errors.New("concurrent modification")
)
