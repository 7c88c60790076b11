package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/ghmassaro/presenca-treino/internal/persistence"
)

var (
	// ErrUnauthorized is returned when the caller lacks permission for an operation.
	ErrUnauthorized = errors.New("application: unauthorized")
	// ErrUnauthenticated is returned when an operation requires an identity and none was supplied.
	ErrUnauthenticated = errors.New("application: unauthenticated")
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrAlreadyExists is returned when a unique attribute such as an email is taken.
	ErrAlreadyExists = errors.New("application: already exists")
	// ErrStoreUnavailable is returned when the record store failed. Callers may retry.
	ErrStoreUnavailable = errors.New("application: store unavailable")
	// ErrInvalidCredentials is returned when a login or token cannot be verified.
	ErrInvalidCredentials = errors.New("application: invalid credentials")
)

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	return "validation failed"
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}

// merge copies entries from another validation error into the receiver.
func (v *ValidationError) merge(other *ValidationError) {
	if other == nil || len(other.FieldErrors) == 0 {
		return
	}
	for field, msg := range other.FieldErrors {
		v.add(field, msg)
	}
}

// mapStoreError translates record store failures into application errors.
// Errors that are already application errors pass through unchanged.
func mapStoreError(err error) error {
	if err == nil {
		return nil
	}

	var vErr *ValidationError
	switch {
	case errors.As(err, &vErr),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrUnauthorized),
		errors.Is(err, ErrUnauthenticated),
		errors.Is(err, ErrAlreadyExists),
		errors.Is(err, ErrStoreUnavailable),
		errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, persistence.ErrRetriesExhausted):
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	case errors.Is(err, persistence.ErrNotFound):
		return ErrNotFound
	}
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}
