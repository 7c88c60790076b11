package persistence

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("persistence: not found")
	// ErrConflict is returned when a write lost a race with a concurrent writer.
	// Callers may retry the whole unit of work.
	ErrConflict = errors.New("persistence: conflict")
	// ErrUnavailable is returned when the backing store cannot serve the request.
	ErrUnavailable = errors.New("persistence: unavailable")
	// ErrInvalidField is returned when a field name or value cannot be stored or queried.
	ErrInvalidField = errors.New("persistence: invalid field")
)
