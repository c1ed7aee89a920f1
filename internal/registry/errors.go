package registry

import "errors"

var (
	// ErrExists is returned when a channel is already registered.
	ErrExists = errors.New("destination already registered")
	// ErrNotFound is returned when no destination matches a channel ID.
	ErrNotFound = errors.New("destination not registered")
	// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
	ErrSchemaMismatch = errors.New("schema version mismatch")
)
